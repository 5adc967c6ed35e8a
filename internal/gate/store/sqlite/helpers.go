package sqlite

import (
	"database/sql"
	"time"
)

func msOrNil(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.UTC().UnixMilli()
}

func msPtrOrNil(t *time.Time) any {
	if t == nil {
		return nil
	}
	return msOrNil(*t)
}

func timeFromNull(v sql.NullInt64) time.Time {
	if !v.Valid {
		return time.Time{}
	}
	return time.UnixMilli(v.Int64).UTC()
}

func timePtrFromNull(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := time.UnixMilli(v.Int64).UTC()
	return &t
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func stringOrNil(s string) any {
	if s == "" {
		return nil
	}
	return s
}
