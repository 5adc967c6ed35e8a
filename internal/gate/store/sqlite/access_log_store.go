package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	dbpkg "github.com/BrandonDHaskell/turnstile/internal/db"
	"github.com/BrandonDHaskell/turnstile/internal/gate/types"
)

type AccessLogStore struct {
	db     *sql.DB
	writer *dbpkg.Worker
}

func NewAccessLogStore(db *sql.DB, writer *dbpkg.Worker) *AccessLogStore {
	return &AccessLogStore{db: db, writer: writer}
}

func (s *AccessLogStore) RecordAccess(ctx context.Context, e types.AccessLogEntry) error {
	if e.At.IsZero() {
		e.At = time.Now().UTC()
	}

	return s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
INSERT INTO access_log(staff_id, action, resource, gate_id, event_id, granted, reason, at_ms)
VALUES (?, ?, ?, ?, ?, ?, ?, ?);
`,
			e.StaffID, e.Action, e.Resource, stringOrNil(e.GateID), stringOrNil(e.EventID),
			boolToInt(e.Granted), e.Reason, e.At.UTC().UnixMilli(),
		); err != nil {
			return fmt.Errorf("RecordAccess insert: %w", err)
		}
		return nil
	})
}

// PruneOlderThan deletes access log rows before cutoff, using
// idx_access_log_time.
func (s *AccessLogStore) PruneOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	var deleted int64
	err := s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `DELETE FROM access_log WHERE at_ms < ?;`, cutoff.UTC().UnixMilli())
		if err != nil {
			return fmt.Errorf("PruneOlderThan: %w", err)
		}
		deleted, _ = res.RowsAffected()
		return nil
	})
	return deleted, err
}
