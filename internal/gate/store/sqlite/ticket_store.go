package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	dbpkg "github.com/BrandonDHaskell/turnstile/internal/db"
	"github.com/BrandonDHaskell/turnstile/internal/gate/types"
)

type TicketStore struct {
	db     *sql.DB
	writer *dbpkg.Worker
}

func NewTicketStore(db *sql.DB, writer *dbpkg.Worker) *TicketStore {
	return &TicketStore{db: db, writer: writer}
}

func (s *TicketStore) LoadAll(ctx context.Context) ([]types.Ticket, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT ticket_id, event_id, user_id, tier, seat_number, is_used,
       valid_from_ms, valid_until_ms, used_locally_at_ms
FROM tickets;
`)
	if err != nil {
		return nil, fmt.Errorf("LoadAll query: %w", err)
	}
	defer rows.Close()

	var out []types.Ticket
	for rows.Next() {
		var (
			t          types.Ticket
			seat       sql.NullString
			used       int
			validFrom  sql.NullInt64
			validUntil sql.NullInt64
			usedLocal  sql.NullInt64
		)
		if err := rows.Scan(&t.TicketID, &t.EventID, &t.UserID, &t.Tier, &seat, &used,
			&validFrom, &validUntil, &usedLocal); err != nil {
			return nil, fmt.Errorf("LoadAll scan: %w", err)
		}
		t.SeatNumber = seat.String
		t.IsUsed = used == 1
		t.ValidFrom = timeFromNull(validFrom)
		t.ValidUntil = timeFromNull(validUntil)
		t.UsedLocallyAt = timePtrFromNull(usedLocal)
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("LoadAll rows: %w", err)
	}
	return out, nil
}

// ReplaceAll swaps the whole ticket table inside one transaction.
func (s *TicketStore) ReplaceAll(ctx context.Context, tickets []types.Ticket) error {
	return s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM tickets;`); err != nil {
			return fmt.Errorf("ReplaceAll clear: %w", err)
		}

		stmt, err := tx.PrepareContext(ctx, `
INSERT INTO tickets(
  ticket_id, event_id, user_id, tier, seat_number, is_used,
  valid_from_ms, valid_until_ms, used_locally_at_ms
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(ticket_id) DO UPDATE SET
  event_id = excluded.event_id,
  user_id = excluded.user_id,
  tier = excluded.tier,
  seat_number = excluded.seat_number,
  is_used = excluded.is_used,
  valid_from_ms = excluded.valid_from_ms,
  valid_until_ms = excluded.valid_until_ms,
  used_locally_at_ms = excluded.used_locally_at_ms;
`)
		if err != nil {
			return fmt.Errorf("ReplaceAll prepare: %w", err)
		}
		defer stmt.Close()

		for _, t := range tickets {
			id := strings.TrimSpace(t.TicketID)
			if id == "" {
				continue
			}
			if _, err := stmt.ExecContext(ctx,
				id, t.EventID, t.UserID, t.Tier, stringOrNil(t.SeatNumber), boolToInt(t.IsUsed),
				msOrNil(t.ValidFrom), msOrNil(t.ValidUntil), msPtrOrNil(t.UsedLocallyAt),
			); err != nil {
				return fmt.Errorf("ReplaceAll insert %s: %w", id, err)
			}
		}
		return nil
	})
}

// MarkUsed only updates a row that is still unused, so the row count
// tells whether this call won.
func (s *TicketStore) MarkUsed(ctx context.Context, ticketID string, usedAt time.Time) (bool, error) {
	var won bool
	err := s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
UPDATE tickets
SET is_used = 1,
    used_locally_at_ms = ?
WHERE ticket_id = ? AND is_used = 0;
`, usedAt.UTC().UnixMilli(), ticketID)
		if err != nil {
			return fmt.Errorf("MarkUsed update: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("MarkUsed rows: %w", err)
		}
		won = n == 1
		return nil
	})
	if err != nil {
		return false, err
	}
	return won, nil
}
