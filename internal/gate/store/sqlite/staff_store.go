package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	dbpkg "github.com/BrandonDHaskell/turnstile/internal/db"
	"github.com/BrandonDHaskell/turnstile/internal/gate/store"
	"github.com/BrandonDHaskell/turnstile/internal/gate/types"
)

// StaffStore keeps staff members with their event and gate assignments in
// child tables. Permissions are not stored; they are derived from the
// role on every read.
type StaffStore struct {
	db     *sql.DB
	writer *dbpkg.Worker
}

func NewStaffStore(db *sql.DB, writer *dbpkg.Worker) *StaffStore {
	return &StaffStore{db: db, writer: writer}
}

func (s *StaffStore) Get(ctx context.Context, staffID string) (types.StaffMember, error) {
	staffID = strings.TrimSpace(staffID)
	if staffID == "" {
		return types.StaffMember{}, store.ErrNotFound
	}

	var (
		m         types.StaffMember
		role      string
		active    int
		lastLogin sql.NullInt64
	)
	err := s.db.QueryRowContext(ctx, `
SELECT staff_id, name, role, is_active, last_login_ms
FROM staff_members
WHERE staff_id = ?;
`, staffID).Scan(&m.StaffID, &m.Name, &role, &active, &lastLogin)
	if errors.Is(err, sql.ErrNoRows) {
		return types.StaffMember{}, store.ErrNotFound
	}
	if err != nil {
		return types.StaffMember{}, fmt.Errorf("Get staff query: %w", err)
	}
	m.Role = types.Role(role)
	m.IsActive = active == 1
	m.LastLogin = timePtrFromNull(lastLogin)

	if m.EventIDs, err = s.column(ctx, `SELECT event_id FROM staff_events WHERE staff_id = ? ORDER BY event_id;`, staffID); err != nil {
		return types.StaffMember{}, fmt.Errorf("Get staff events: %w", err)
	}
	if m.GateIDs, err = s.column(ctx, `SELECT gate_id FROM staff_gates WHERE staff_id = ? ORDER BY gate_id;`, staffID); err != nil {
		return types.StaffMember{}, fmt.Errorf("Get staff gates: %w", err)
	}

	return m.WithDerivedPermissions(), nil
}

func (s *StaffStore) column(ctx context.Context, query, staffID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, query, staffID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func (s *StaffStore) Upsert(ctx context.Context, m types.StaffMember) error {
	return s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		return upsertStaff(ctx, tx, m)
	})
}

// ReplaceAll swaps the staff cache for a snapshot in one transaction.
func (s *StaffStore) ReplaceAll(ctx context.Context, staff []types.StaffMember) error {
	return s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		// staff_events and staff_gates go with ON DELETE CASCADE.
		if _, err := tx.ExecContext(ctx, `DELETE FROM staff_members;`); err != nil {
			return fmt.Errorf("ReplaceAll staff clear: %w", err)
		}
		for _, m := range staff {
			if err := upsertStaff(ctx, tx, m); err != nil {
				return err
			}
		}
		return nil
	})
}

func upsertStaff(ctx context.Context, tx *sql.Tx, m types.StaffMember) error {
	id := strings.TrimSpace(m.StaffID)
	if id == "" {
		return fmt.Errorf("upsert staff: empty staff_id")
	}

	if _, err := tx.ExecContext(ctx, `
INSERT INTO staff_members(staff_id, name, role, is_active, last_login_ms)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT(staff_id) DO UPDATE SET
  name = excluded.name,
  role = excluded.role,
  is_active = excluded.is_active,
  last_login_ms = excluded.last_login_ms;
`, id, m.Name, string(m.Role), boolToInt(m.IsActive), msPtrOrNil(m.LastLogin)); err != nil {
		return fmt.Errorf("upsert staff %s: %w", id, err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM staff_events WHERE staff_id = ?;`, id); err != nil {
		return fmt.Errorf("upsert staff %s clear events: %w", id, err)
	}
	for _, ev := range m.EventIDs {
		if _, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO staff_events(staff_id, event_id) VALUES (?, ?);`, id, ev,
		); err != nil {
			return fmt.Errorf("upsert staff %s event %s: %w", id, ev, err)
		}
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM staff_gates WHERE staff_id = ?;`, id); err != nil {
		return fmt.Errorf("upsert staff %s clear gates: %w", id, err)
	}
	for _, g := range m.GateIDs {
		if _, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO staff_gates(staff_id, gate_id) VALUES (?, ?);`, id, g,
		); err != nil {
			return fmt.Errorf("upsert staff %s gate %s: %w", id, g, err)
		}
	}
	return nil
}
