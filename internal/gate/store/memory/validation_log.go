package memory

import (
	"context"
	"sync"
	"time"

	"github.com/BrandonDHaskell/turnstile/internal/gate/types"
)

// ValidationLog is an in-memory append-only validation log.
type ValidationLog struct {
	mu         sync.Mutex
	records    []types.ValidationRecord
	FailAppend error
}

func NewValidationLog() *ValidationLog {
	return &ValidationLog{}
}

func (l *ValidationLog) Append(_ context.Context, rec types.ValidationRecord) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.FailAppend != nil {
		return l.FailAppend
	}
	l.records = append(l.records, rec)
	return nil
}

func (l *ValidationLog) ListPending(_ context.Context, limit int) ([]types.ValidationRecord, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []types.ValidationRecord
	for _, r := range l.records {
		if r.SyncStatus != types.SyncPending {
			continue
		}
		out = append(out, r)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (l *ValidationLog) MarkSynced(_ context.Context, ids []string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	want := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		want[id] = struct{}{}
	}
	for i := range l.records {
		if _, ok := want[l.records[i].ID]; ok && l.records[i].SyncStatus == types.SyncPending {
			l.records[i].SyncStatus = types.SyncSynced
		}
	}
	return nil
}

func (l *ValidationLog) MarkFailed(_ context.Context, id string, note string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i := range l.records {
		if l.records[i].ID == id && l.records[i].SyncStatus == types.SyncPending {
			l.records[i].SyncStatus = types.SyncFailed
			l.records[i].SyncNote = note
		}
	}
	return nil
}

func (l *ValidationLog) CountPending(_ context.Context) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, r := range l.records {
		if r.SyncStatus == types.SyncPending {
			n++
		}
	}
	return n, nil
}

func (l *ValidationLog) PruneOlderThan(_ context.Context, cutoff time.Time) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	kept := l.records[:0]
	var deleted int64
	for _, r := range l.records {
		if r.SyncStatus == types.SyncSynced && r.Timestamp.Before(cutoff) {
			deleted++
			continue
		}
		kept = append(kept, r)
	}
	l.records = kept
	return deleted, nil
}

// Records returns a copy of all records.  Test-only helper.
func (l *ValidationLog) Records() []types.ValidationRecord {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]types.ValidationRecord, len(l.records))
	copy(out, l.records)
	return out
}
