package main

import (
	"context"
	"fmt"
	"net/http"

	"github.com/BrandonDHaskell/turnstile/internal/authority"
	"github.com/BrandonDHaskell/turnstile/internal/authority/grpcclient"
	"github.com/BrandonDHaskell/turnstile/internal/authority/httpclient"
	authmem "github.com/BrandonDHaskell/turnstile/internal/authority/memory"
	"github.com/BrandonDHaskell/turnstile/internal/config"
	"github.com/BrandonDHaskell/turnstile/internal/gate/types"
)

func newAuthorityClient(ctx context.Context, cfg *config.Config, st stores) (authority.Client, func(), error) {
	switch cfg.Authority.Transport {
	case config.TransportHTTP:
		c, err := httpclient.New(cfg.Authority.BaseURL, cfg.Authority.Timeout, &http.Client{Timeout: cfg.Authority.Timeout})
		if err != nil {
			return nil, nil, err
		}
		return c, func() {}, nil

	case config.TransportGRPC:
		c, err := grpcclient.Dial(cfg.Authority.Target)
		if err != nil {
			return nil, nil, err
		}
		return c, func() { _ = c.Close() }, nil

	case config.TransportMemory:
		// Serve what the device already holds so a dev run can sync
		// against itself without wiping its tickets.
		snaps, err := localSnapshots(ctx, cfg, st)
		if err != nil {
			return nil, nil, err
		}
		return authmem.New(snaps...), func() {}, nil
	}
	return nil, nil, fmt.Errorf("unknown authority transport %q", cfg.Authority.Transport)
}

func localSnapshots(ctx context.Context, cfg *config.Config, st stores) ([]types.Snapshot, error) {
	tickets, err := st.tickets.LoadAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("load local tickets: %w", err)
	}
	staff, _ := devFixtures(cfg)

	byEvent := make(map[string]*types.Snapshot, len(cfg.Device.EventIDs))
	snaps := make([]types.Snapshot, 0, len(cfg.Device.EventIDs))
	for _, id := range cfg.Device.EventIDs {
		snaps = append(snaps, types.Snapshot{EventID: id, Staff: staff})
	}
	for i := range snaps {
		byEvent[snaps[i].EventID] = &snaps[i]
	}
	for _, t := range tickets {
		if s, ok := byEvent[t.EventID]; ok {
			t.UsedLocallyAt = nil
			s.Tickets = append(s.Tickets, t)
		}
	}
	return snaps, nil
}
