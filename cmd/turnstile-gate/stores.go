package main

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/BrandonDHaskell/turnstile/internal/config"
	"github.com/BrandonDHaskell/turnstile/internal/db"
	"github.com/BrandonDHaskell/turnstile/internal/gate/store"
	"github.com/BrandonDHaskell/turnstile/internal/gate/store/memory"
	"github.com/BrandonDHaskell/turnstile/internal/gate/store/sqlite"
	"github.com/BrandonDHaskell/turnstile/internal/gate/types"
)

const (
	devAdminStaffID = "staff-dev-admin"
	devDemoTickets  = 5
)

type stores struct {
	tickets   store.TicketStore
	records   store.ValidationLog
	actions   store.ActionStore
	staff     store.StaffStore
	accessLog store.AccessLogStore
	close     func()
}

// openStores opens the SQLite device database. If that fails the device
// keeps working on memory stores; nothing survives a restart then.
func openStores(ctx context.Context, cfg *config.Config, logger *zap.Logger) stores {
	st, err := openSQLite(ctx, cfg)
	if err == nil {
		logger.Info("device database ready", zap.String("path", cfg.DB.Path))
		return st
	}
	logger.Error("device database unavailable; falling back to memory stores",
		zap.String("path", cfg.DB.Path), zap.Error(err))

	var (
		staff   []types.StaffMember
		tickets []types.Ticket
	)
	if cfg.Env == "dev" && cfg.DB.SeedDev {
		staff, tickets = devFixtures(cfg)
	}
	return stores{
		tickets:   memory.NewTicketStore(tickets...),
		records:   memory.NewValidationLog(),
		actions:   memory.NewActionStore(),
		staff:     memory.NewStaffStore(staff...),
		accessLog: memory.NewAccessLogStore(),
		close:     func() {},
	}
}

func openSQLite(ctx context.Context, cfg *config.Config) (stores, error) {
	conn, err := db.Open(ctx, db.Config{Path: cfg.DB.Path, Env: cfg.Env})
	if err != nil {
		return stores{}, err
	}
	if cfg.Env == "dev" && cfg.DB.SeedDev {
		if err := db.SeedDev(ctx, conn, db.SeedDevOptions{
			AdminStaffID: devAdminStaffID,
			GateID:       cfg.Device.GateID,
			EventIDs:     cfg.Device.EventIDs,
			DemoTickets:  devDemoTickets,
		}); err != nil {
			_ = conn.Close()
			return stores{}, fmt.Errorf("seed dev data: %w", err)
		}
	}

	writer := db.NewWorker(conn)
	return stores{
		tickets:   sqlite.NewTicketStore(conn, writer),
		records:   sqlite.NewValidationLog(conn, writer),
		actions:   sqlite.NewActionStore(conn, writer),
		staff:     sqlite.NewStaffStore(conn, writer),
		accessLog: sqlite.NewAccessLogStore(conn, writer),
		close: func() {
			writer.Close()
			_ = conn.Close()
		},
	}, nil
}

// devFixtures mirrors db.SeedDev for memory-backed dev runs and the
// in-process authority.
func devFixtures(cfg *config.Config) ([]types.StaffMember, []types.Ticket) {
	admin := types.StaffMember{
		StaffID:  devAdminStaffID,
		Name:     "Dev Admin",
		Role:     types.RoleAdmin,
		EventIDs: cfg.Device.EventIDs,
		IsActive: true,
	}
	if cfg.Device.GateID != "" {
		admin.GateIDs = []string{cfg.Device.GateID}
	}

	now := time.Now().UTC()
	var tickets []types.Ticket
	for _, eventID := range cfg.Device.EventIDs {
		for i := 1; i <= devDemoTickets; i++ {
			tickets = append(tickets, types.Ticket{
				TicketID:   fmt.Sprintf("%s-demo-%03d", eventID, i),
				EventID:    eventID,
				UserID:     "demo-user",
				Tier:       "general",
				ValidFrom:  now,
				ValidUntil: now.Add(24 * time.Hour),
			})
		}
	}
	return []types.StaffMember{admin}, tickets
}
