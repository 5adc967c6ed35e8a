package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/BrandonDHaskell/turnstile/internal/authority"
	"github.com/BrandonDHaskell/turnstile/internal/gate/store"
	"github.com/BrandonDHaskell/turnstile/internal/gate/types"
	"github.com/BrandonDHaskell/turnstile/internal/telemetry"
)

const (
	tracerName       = "github.com/BrandonDHaskell/turnstile/internal/gate/service"
	defaultBatchSize = 100
)

// Sync step names, used in reports, spans and events.
const (
	StepDrain = "drain"
	StepPush  = "push"
	StepPull  = "pull"
)

type SyncConfig struct {
	// EventIDs are the events whose snapshots this device pulls.
	EventIDs []string
	// BatchSize bounds how many validation records go in one push.
	BatchSize int
	// Interval is the period of the background probe/sync loop.
	// 0 disables the loop.
	Interval time.Duration
}

// SyncReport describes one sync cycle.
type SyncReport struct {
	Skipped    bool              `json:"skipped"`
	Drain      DrainReport       `json:"drain"`
	Pushed     int               `json:"pushed"`
	Acked      int               `json:"acked"`
	Rejected   int               `json:"rejected"`
	Duplicates int               `json:"duplicates"`
	Pulled     bool              `json:"pulled"`
	Tickets    int               `json:"tickets"`
	Errors     map[string]string `json:"errors,omitempty"`
	Duration   time.Duration     `json:"duration"`
}

func (r *SyncReport) fail(step string, err error) {
	if r.Errors == nil {
		r.Errors = make(map[string]string)
	}
	r.Errors[step] = err.Error()
}

// SyncCoordinator reconciles local state with the authority: drain the
// action queue, push pending validation records, then pull fresh
// snapshots. At most one cycle runs at a time; requests that arrive while
// one is running are dropped.
type SyncCoordinator struct {
	client     authority.Client
	queue      *ActionQueue
	dispatcher Dispatcher
	records    store.ValidationLog
	cache      *TicketCache
	staff      store.StaffStore
	cfg        SyncConfig
	events     telemetry.Emitter
	logger     *zap.Logger
	tracer     trace.Tracer

	running atomic.Bool
	online  atomic.Bool

	loopMu sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// SyncDeps are the collaborators of a SyncCoordinator.
type SyncDeps struct {
	Client     authority.Client
	Queue      *ActionQueue
	Dispatcher Dispatcher
	Records    store.ValidationLog
	Cache      *TicketCache
	Staff      store.StaffStore
}

func NewSyncCoordinator(deps SyncDeps, cfg SyncConfig, em telemetry.Emitter, logger *zap.Logger) *SyncCoordinator {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaultBatchSize
	}
	if em == nil {
		em = telemetry.Nop()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if deps.Dispatcher == nil {
		deps.Dispatcher = NewAuthorityDispatcher(deps.Client)
	}
	return &SyncCoordinator{
		client:     deps.Client,
		queue:      deps.Queue,
		dispatcher: deps.Dispatcher,
		records:    deps.Records,
		cache:      deps.Cache,
		staff:      deps.Staff,
		cfg:        cfg,
		events:     em,
		logger:     logger.Named("sync"),
		tracer:     otel.Tracer(tracerName),
	}
}

func (s *SyncCoordinator) Online() bool { return s.online.Load() }

// SetOnline records a connectivity report. An offline to online transition
// runs a sync cycle; the returned bool says whether one ran.
func (s *SyncCoordinator) SetOnline(ctx context.Context, online bool) (SyncReport, bool) {
	prev := s.online.Swap(online)
	if prev == online {
		return SyncReport{}, false
	}
	s.events.Emit(telemetry.New(telemetry.ConnectivityChanged, telemetry.Fields{"online": online}))
	if !online {
		return SyncReport{}, false
	}
	return s.Sync(ctx), true
}

// Pending is the number of items still waiting for the authority: queued
// actions plus unsynced validation records.
func (s *SyncCoordinator) Pending(ctx context.Context) (int, error) {
	n, err := s.queue.Len(ctx)
	if err != nil {
		return 0, fmt.Errorf("queue length: %w", err)
	}
	m, err := s.records.CountPending(ctx)
	if err != nil {
		return 0, fmt.Errorf("pending records: %w", err)
	}
	return n + m, nil
}

// Sync runs one cycle. Each step is best effort: a failing step is
// reported and the next step still runs, except that snapshots are only
// applied when every configured event was fetched.
func (s *SyncCoordinator) Sync(ctx context.Context) SyncReport {
	if !s.running.CompareAndSwap(false, true) {
		s.events.Emit(telemetry.New(telemetry.SyncSkipped, nil))
		return SyncReport{Skipped: true}
	}
	defer s.running.Store(false)

	start := time.Now()
	ctx, span := s.tracer.Start(ctx, "sync")
	defer span.End()
	s.events.Emit(telemetry.New(telemetry.SyncStarted, nil))

	var rep SyncReport
	s.step(ctx, &rep, StepDrain, s.drain)
	s.step(ctx, &rep, StepPush, s.push)
	s.step(ctx, &rep, StepPull, s.pull)

	rep.Duration = time.Since(start)
	span.SetAttributes(
		attribute.Int("sync.pushed", rep.Pushed),
		attribute.Int("sync.rejected", rep.Rejected),
		attribute.Int("sync.errors", len(rep.Errors)),
	)
	if len(rep.Errors) > 0 {
		span.SetStatus(codes.Error, "partial sync")
	}
	s.events.Emit(telemetry.New(telemetry.SyncFinished, telemetry.Fields{
		"pushed":           rep.Pushed,
		"acked":            rep.Acked,
		"rejected":         rep.Rejected,
		"pulled":           rep.Pulled,
		"failed_steps":     len(rep.Errors),
		"duration_seconds": rep.Duration.Seconds(),
	}))
	return rep
}

func (s *SyncCoordinator) step(ctx context.Context, rep *SyncReport, name string, fn func(context.Context, *SyncReport) error) {
	ctx, span := s.tracer.Start(ctx, "sync."+name)
	defer span.End()

	err := fn(ctx, rep)
	if err == nil {
		s.events.Emit(telemetry.New(telemetry.SyncStepCompleted, telemetry.Fields{"step": name}))
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	rep.fail(name, err)
	s.noteUnavailable(err)
	s.events.Emit(telemetry.New(telemetry.SyncStepFailed, telemetry.Fields{
		"step":  name,
		"error": err.Error(),
	}))
}

// noteUnavailable flips the device offline when a step failed because the
// authority could not be reached.
func (s *SyncCoordinator) noteUnavailable(err error) {
	if errors.Is(err, authority.ErrUnavailable) && s.online.Swap(false) {
		s.events.Emit(telemetry.New(telemetry.ConnectivityChanged, telemetry.Fields{"online": false}))
	}
}

func (s *SyncCoordinator) drain(ctx context.Context, rep *SyncReport) error {
	dr, err := s.queue.Drain(ctx, s.dispatcher)
	rep.Drain = dr
	return err
}

func (s *SyncCoordinator) push(ctx context.Context, rep *SyncReport) error {
	for {
		batch, err := s.records.ListPending(ctx, s.cfg.BatchSize)
		if err != nil {
			return fmt.Errorf("list pending records: %w", err)
		}
		if len(batch) == 0 {
			return nil
		}

		results, err := s.client.PushValidations(ctx, batch)
		if err != nil {
			return fmt.Errorf("push validations: %w", err)
		}
		rep.Pushed += len(batch)

		byID := make(map[string]types.ValidationRecord, len(batch))
		for _, r := range batch {
			byID[r.ID] = r
		}

		var acked []string
		progressed := 0
		for _, res := range results {
			rec, ok := byID[res.RecordID]
			if !ok {
				continue
			}
			delete(byID, res.RecordID)
			progressed++

			if res.Accepted {
				acked = append(acked, res.RecordID)
				continue
			}
			if err := s.records.MarkFailed(ctx, res.RecordID, res.Reason); err != nil {
				return fmt.Errorf("mark record failed: %w", err)
			}
			rep.Rejected++
			s.events.Emit(telemetry.New(telemetry.RecordRejected, telemetry.Fields{
				"record_id": res.RecordID,
				"ticket_id": rec.TicketID,
				"reason":    res.Reason,
			}))
			if res.Reason == authority.ReasonDuplicateAdmission {
				rep.Duplicates++
				s.events.Emit(telemetry.New(telemetry.DuplicateAdmissionDetected, telemetry.Fields{
					"record_id": rec.ID,
					"ticket_id": rec.TicketID,
					"event_id":  rec.EventID,
					"gate_id":   rec.GateID,
					"device_id": rec.DeviceID,
				}))
			}
		}

		if len(acked) > 0 {
			if err := s.records.MarkSynced(ctx, acked); err != nil {
				return fmt.Errorf("mark records synced: %w", err)
			}
			rep.Acked += len(acked)
		}
		s.events.Emit(telemetry.New(telemetry.RecordsPushed, telemetry.Fields{
			"batch":     len(batch),
			"acked":     len(acked),
			"unsettled": len(byID),
		}))

		// Records the authority did not answer for stay pending for the
		// next cycle.
		if progressed == 0 || len(batch) < s.cfg.BatchSize {
			return nil
		}
	}
}

func (s *SyncCoordinator) pull(ctx context.Context, rep *SyncReport) error {
	if len(s.cfg.EventIDs) == 0 {
		return nil
	}

	var (
		tickets []types.Ticket
		staff   []types.StaffMember
		errs    []error
	)
	seen := make(map[string]int)
	for _, eventID := range s.cfg.EventIDs {
		snap, err := s.client.FetchSnapshot(ctx, eventID)
		if err != nil {
			errs = append(errs, fmt.Errorf("fetch snapshot %s: %w", eventID, err))
			continue
		}
		tickets = append(tickets, snap.Tickets...)
		for _, m := range snap.Staff {
			if i, ok := seen[m.StaffID]; ok {
				staff[i] = m
				continue
			}
			seen[m.StaffID] = len(staff)
			staff = append(staff, m)
		}
	}
	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	if err := s.cache.Replace(ctx, tickets); err != nil {
		return err
	}
	if err := s.staff.ReplaceAll(ctx, staff); err != nil {
		return fmt.Errorf("replace staff: %w", err)
	}
	rep.Pulled = true
	rep.Tickets = len(tickets)
	return nil
}

// Start runs the background loop: every interval it pings the authority,
// records the result with SetOnline and, when already online, syncs.
func (s *SyncCoordinator) Start(ctx context.Context) {
	s.loopMu.Lock()
	defer s.loopMu.Unlock()
	if s.done != nil {
		return
	}
	s.done = make(chan struct{})
	if s.cfg.Interval <= 0 {
		s.logger.Info("periodic sync disabled (interval=0)")
		close(s.done)
		return
	}

	ctx, s.cancel = context.WithCancel(ctx)
	go s.loop(ctx)

	s.logger.Info("periodic sync started", zap.Duration("interval", s.cfg.Interval))
}

// Stop ends the background loop and waits for it. Safe to call more than once.
func (s *SyncCoordinator) Stop() {
	s.loopMu.Lock()
	cancel, done := s.cancel, s.done
	s.loopMu.Unlock()
	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
}

func (s *SyncCoordinator) loop(ctx context.Context) {
	defer close(s.done)

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

func (s *SyncCoordinator) tick(ctx context.Context) {
	online := s.client.Ping(ctx) == nil
	if _, ran := s.SetOnline(ctx, online); ran || !online {
		return
	}
	rep := s.Sync(ctx)
	if len(rep.Errors) > 0 {
		s.logger.Warn("periodic sync incomplete", zap.Any("errors", rep.Errors))
	}
}
