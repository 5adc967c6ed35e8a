package db

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

type SeedDevOptions struct {
	// AdminStaffID is created as an active admin bound to the listed gate and events.
	AdminStaffID string
	GateID       string
	EventIDs     []string
	// DemoTickets adds this many unused tickets per event, valid for a day.
	DemoTickets int
}

// SeedDev gives a fresh dev database a staff member and a few tickets so
// the device can scan before its first sync.
func SeedDev(ctx context.Context, db *sql.DB, opt SeedDevOptions) error {
	now := time.Now().UTC()
	nowMs := now.UnixMilli()

	staffID := strings.TrimSpace(opt.AdminStaffID)
	if staffID == "" {
		staffID = "staff-dev-admin"
	}

	if _, err := db.ExecContext(ctx, `
INSERT INTO staff_members(staff_id, name, role, is_active)
VALUES (?, 'Dev Admin', 'admin', 1)
ON CONFLICT(staff_id) DO UPDATE SET role = 'admin', is_active = 1;`, staffID); err != nil {
		return fmt.Errorf("seed staff: %w", err)
	}

	if opt.GateID != "" {
		if _, err := db.ExecContext(ctx, `
INSERT OR IGNORE INTO staff_gates(staff_id, gate_id) VALUES (?, ?);`, staffID, opt.GateID); err != nil {
			return fmt.Errorf("seed staff gate: %w", err)
		}
	}

	for _, eventID := range opt.EventIDs {
		eventID = strings.TrimSpace(eventID)
		if eventID == "" {
			continue
		}
		if _, err := db.ExecContext(ctx, `
INSERT OR IGNORE INTO staff_events(staff_id, event_id) VALUES (?, ?);`, staffID, eventID); err != nil {
			return fmt.Errorf("seed staff event %s: %w", eventID, err)
		}

		for i := 1; i <= opt.DemoTickets; i++ {
			ticketID := fmt.Sprintf("%s-demo-%03d", eventID, i)
			if _, err := db.ExecContext(ctx, `
INSERT OR IGNORE INTO tickets(ticket_id, event_id, user_id, tier, is_used, valid_from_ms, valid_until_ms)
VALUES (?, ?, 'demo-user', 'general', 0, ?, ?);`,
				ticketID, eventID, nowMs, now.Add(24*time.Hour).UnixMilli(),
			); err != nil {
				return fmt.Errorf("seed ticket %s: %w", ticketID, err)
			}
		}
	}

	return nil
}
