package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/BrandonDHaskell/turnstile/internal/telemetry"
)

// Pruner deletes rows older than cutoff and reports how many went.
type Pruner interface {
	PruneOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// PruneTarget is one store the RetentionPruner keeps trimmed.
type PruneTarget struct {
	Name      string
	Store     Pruner
	Retention time.Duration
}

// RetentionPruner periodically deletes rows past their retention window.
// It runs as a background goroutine and is stopped via its context or Stop.
//
// Targets with a retention of 0 are skipped; with no targets left the
// pruner does not start.
type RetentionPruner struct {
	targets  []PruneTarget
	interval time.Duration
	logger   *zap.Logger
	events   telemetry.Emitter
	now      func() time.Time
	cancel   context.CancelFunc
	done     chan struct{}
}

// NewRetentionPruner creates a pruner but does not start it. interval
// defaults to 6h.
func NewRetentionPruner(targets []PruneTarget, interval time.Duration, logger *zap.Logger, em telemetry.Emitter) *RetentionPruner {
	if interval <= 0 {
		interval = 6 * time.Hour
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if em == nil {
		em = telemetry.Nop()
	}

	active := make([]PruneTarget, 0, len(targets))
	for _, t := range targets {
		if t.Retention > 0 && t.Store != nil {
			active = append(active, t)
		}
	}

	return &RetentionPruner{
		targets:  active,
		interval: interval,
		logger:   logger.Named("pruner"),
		events:   em,
		now:      func() time.Time { return time.Now().UTC() },
		done:     make(chan struct{}),
	}
}

// Start runs an immediate prune, then repeats on the interval until ctx
// is cancelled or Stop is called.
func (p *RetentionPruner) Start(ctx context.Context) {
	if len(p.targets) == 0 {
		p.logger.Info("retention pruner disabled (no targets)")
		close(p.done)
		return
	}

	ctx, p.cancel = context.WithCancel(ctx)

	go p.loop(ctx)

	p.logger.Info("retention pruner started",
		zap.Int("targets", len(p.targets)),
		zap.Duration("interval", p.interval))
}

// Stop signals the pruner to exit and waits for it to finish.
func (p *RetentionPruner) Stop() {
	if p.cancel != nil {
		p.cancel()
	}
	<-p.done
}

func (p *RetentionPruner) loop(ctx context.Context) {
	defer close(p.done)

	p.PruneNow(ctx)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.PruneNow(ctx)
		}
	}
}

// PruneNow runs one pass over every target and returns the rows deleted
// per target name.
func (p *RetentionPruner) PruneNow(ctx context.Context) map[string]int64 {
	out := make(map[string]int64, len(p.targets))
	for _, t := range p.targets {
		cutoff := p.now().Add(-t.Retention)
		deleted, err := t.Store.PruneOlderThan(ctx, cutoff)
		if err != nil {
			p.logger.Warn("prune failed", zap.String("target", t.Name), zap.Error(err))
			continue
		}
		out[t.Name] = deleted
		if deleted > 0 {
			p.logger.Info("pruned",
				zap.String("target", t.Name),
				zap.Int64("deleted", deleted),
				zap.Time("cutoff", cutoff))
			p.events.Emit(telemetry.New(telemetry.RetentionPruned, telemetry.Fields{
				"target":  t.Name,
				"deleted": deleted,
			}))
		}
	}
	return out
}
