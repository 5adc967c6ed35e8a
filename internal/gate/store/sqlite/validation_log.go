package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	dbpkg "github.com/BrandonDHaskell/turnstile/internal/db"
	"github.com/BrandonDHaskell/turnstile/internal/gate/types"
)

type ValidationLog struct {
	db     *sql.DB
	writer *dbpkg.Worker
}

func NewValidationLog(db *sql.DB, writer *dbpkg.Worker) *ValidationLog {
	return &ValidationLog{db: db, writer: writer}
}

func (l *ValidationLog) Append(ctx context.Context, rec types.ValidationRecord) error {
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now().UTC()
	}
	if rec.SyncStatus == "" {
		rec.SyncStatus = types.SyncPending
	}

	return l.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
INSERT INTO validation_records(
  record_id, ticket_id, event_id, gate_id, staff_id, device_id,
  scanned_at_ms, status, reason, sync_status, sync_note, seq
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?,
  (SELECT COALESCE(MAX(seq), 0) + 1 FROM validation_records));
`,
			rec.ID, rec.TicketID, rec.EventID, rec.GateID, rec.StaffID, rec.DeviceID,
			rec.Timestamp.UTC().UnixMilli(), string(rec.Status), rec.Reason,
			string(rec.SyncStatus), stringOrNil(rec.SyncNote),
		); err != nil {
			return fmt.Errorf("Append insert: %w", err)
		}
		return nil
	})
}

func (l *ValidationLog) ListPending(ctx context.Context, limit int) ([]types.ValidationRecord, error) {
	if limit <= 0 {
		limit = -1 // SQLite: no limit
	}
	rows, err := l.db.QueryContext(ctx, `
SELECT record_id, ticket_id, event_id, gate_id, staff_id, device_id,
       scanned_at_ms, status, reason, sync_status, sync_note
FROM validation_records
WHERE sync_status = 'pending'
ORDER BY seq
LIMIT ?;
`, limit)
	if err != nil {
		return nil, fmt.Errorf("ListPending query: %w", err)
	}
	defer rows.Close()

	var out []types.ValidationRecord
	for rows.Next() {
		var (
			r         types.ValidationRecord
			scannedMs int64
			status    string
			syncSt    string
			note      sql.NullString
		)
		if err := rows.Scan(&r.ID, &r.TicketID, &r.EventID, &r.GateID, &r.StaffID, &r.DeviceID,
			&scannedMs, &status, &r.Reason, &syncSt, &note); err != nil {
			return nil, fmt.Errorf("ListPending scan: %w", err)
		}
		r.Timestamp = time.UnixMilli(scannedMs).UTC()
		r.Status = types.ValidationStatus(status)
		r.SyncStatus = types.SyncStatus(syncSt)
		r.SyncNote = note.String
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ListPending rows: %w", err)
	}
	return out, nil
}

// MarkSynced moves pending records to synced. Records that already left
// pending are not touched.
func (l *ValidationLog) MarkSynced(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	return l.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
UPDATE validation_records SET sync_status = 'synced'
WHERE record_id = ? AND sync_status = 'pending';
`)
		if err != nil {
			return fmt.Errorf("MarkSynced prepare: %w", err)
		}
		defer stmt.Close()
		for _, id := range ids {
			if _, err := stmt.ExecContext(ctx, id); err != nil {
				return fmt.Errorf("MarkSynced %s: %w", id, err)
			}
		}
		return nil
	})
}

func (l *ValidationLog) MarkFailed(ctx context.Context, id string, note string) error {
	return l.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
UPDATE validation_records SET sync_status = 'failed', sync_note = ?
WHERE record_id = ? AND sync_status = 'pending';
`, stringOrNil(note), id); err != nil {
			return fmt.Errorf("MarkFailed %s: %w", id, err)
		}
		return nil
	})
}

func (l *ValidationLog) CountPending(ctx context.Context) (int, error) {
	var n int
	err := l.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM validation_records WHERE sync_status = 'pending';`,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("CountPending: %w", err)
	}
	return n, nil
}

// PruneOlderThan deletes synced records scanned before cutoff. Pending and
// failed records are kept.
func (l *ValidationLog) PruneOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	var deleted int64
	err := l.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
DELETE FROM validation_records
WHERE sync_status = 'synced' AND scanned_at_ms < ?;
`, cutoff.UTC().UnixMilli())
		if err != nil {
			return fmt.Errorf("PruneOlderThan: %w", err)
		}
		deleted, _ = res.RowsAffected()
		return nil
	})
	return deleted, err
}
