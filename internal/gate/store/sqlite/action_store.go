package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	dbpkg "github.com/BrandonDHaskell/turnstile/internal/db"
	"github.com/BrandonDHaskell/turnstile/internal/gate/store"
	"github.com/BrandonDHaskell/turnstile/internal/gate/types"
)

// ActionStore keeps the queue ordered by a seq column: the tail is
// MAX(seq)+1 and the head is MIN(seq)-1, so order survives restarts.
type ActionStore struct {
	db     *sql.DB
	writer *dbpkg.Worker
}

func NewActionStore(db *sql.DB, writer *dbpkg.Worker) *ActionStore {
	return &ActionStore{db: db, writer: writer}
}

func (s *ActionStore) Push(ctx context.Context, a types.QueuedAction) error {
	payload, err := encodePayload(a.Payload)
	if err != nil {
		return err
	}
	if a.EnqueuedAt.IsZero() {
		a.EnqueuedAt = time.Now().UTC()
	}

	return s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
INSERT INTO queued_actions(
  action_id, seq, action_type, payload, enqueued_at_ms, retry_count, last_error
) VALUES (?, (SELECT COALESCE(MAX(seq), 0) + 1 FROM queued_actions), ?, ?, ?, ?, ?);
`,
			a.ID, string(a.Type), payload, a.EnqueuedAt.UTC().UnixMilli(),
			a.RetryCount, stringOrNil(a.LastError),
		); err != nil {
			return fmt.Errorf("Push insert: %w", err)
		}
		return nil
	})
}

// List returns the queue head first. A row whose payload cannot be
// decoded is returned with an empty payload so it still drains or
// discards instead of blocking the queue.
func (s *ActionStore) List(ctx context.Context) ([]types.QueuedAction, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT action_id, action_type, payload, enqueued_at_ms, retry_count, last_error
FROM queued_actions
ORDER BY seq;
`)
	if err != nil {
		return nil, fmt.Errorf("List query: %w", err)
	}
	defer rows.Close()

	var out []types.QueuedAction
	for rows.Next() {
		var (
			a          types.QueuedAction
			actionType string
			payload    []byte
			enqueuedMs int64
			lastErr    sql.NullString
		)
		if err := rows.Scan(&a.ID, &actionType, &payload, &enqueuedMs, &a.RetryCount, &lastErr); err != nil {
			return nil, fmt.Errorf("List scan: %w", err)
		}
		a.Type = types.ActionType(actionType)
		a.EnqueuedAt = time.UnixMilli(enqueuedMs).UTC()
		a.LastError = lastErr.String
		if p, err := decodePayload(payload); err == nil {
			a.Payload = p
		} else {
			a.Payload = types.Payload{}
			if a.LastError == "" {
				a.LastError = err.Error()
			}
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("List rows: %w", err)
	}
	return out, nil
}

func (s *ActionStore) Remove(ctx context.Context, id string) error {
	return s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `DELETE FROM queued_actions WHERE action_id = ?;`, id)
		if err != nil {
			return fmt.Errorf("Remove %s: %w", id, err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return store.ErrNotFound
		}
		return nil
	})
}

func (s *ActionStore) Requeue(ctx context.Context, a types.QueuedAction, toHead bool) error {
	seqExpr := `(SELECT COALESCE(MAX(seq), 0) + 1 FROM queued_actions)`
	if toHead {
		seqExpr = `(SELECT COALESCE(MIN(seq), 0) - 1 FROM queued_actions)`
	}

	return s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
UPDATE queued_actions
SET seq = `+seqExpr+`,
    retry_count = ?,
    last_error = ?
WHERE action_id = ?;
`, a.RetryCount, stringOrNil(a.LastError), a.ID)
		if err != nil {
			return fmt.Errorf("Requeue %s: %w", a.ID, err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return store.ErrNotFound
		}
		return nil
	})
}

func (s *ActionStore) Len(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM queued_actions;`).Scan(&n); err != nil {
		return 0, fmt.Errorf("Len: %w", err)
	}
	return n, nil
}
