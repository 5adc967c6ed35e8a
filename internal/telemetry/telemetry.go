// Package telemetry carries gate state transitions to log and metric sinks.
//
// Every transition the core cares about (a validation verdict, an action
// enqueued or discarded, a sync step finishing) is emitted as an Event.
// Sinks decide what to do with it; the core never logs directly.
package telemetry

import (
	"sync"
	"time"
)

type Kind string

const (
	CacheLoaded     Kind = "cache_loaded"
	CacheLoadFailed Kind = "cache_load_failed"
	CacheReplaced   Kind = "cache_replaced"

	ValidationDecided      Kind = "validation_decided"
	ValidationNotPersisted Kind = "validation_not_persisted"

	AccessGranted Kind = "access_granted"
	AccessDenied  Kind = "access_denied"

	ActionEnqueued      Kind = "action_enqueued"
	ActionExecuted      Kind = "action_executed"
	ActionRetried       Kind = "action_retried"
	ActionRequeueFailed Kind = "action_requeue_failed"
	ActionDiscarded     Kind = "action_discarded"

	SyncStarted       Kind = "sync_started"
	SyncSkipped       Kind = "sync_skipped"
	SyncStepCompleted Kind = "sync_step_completed"
	SyncStepFailed    Kind = "sync_step_failed"
	SyncFinished      Kind = "sync_finished"

	RecordsPushed              Kind = "records_pushed"
	RecordRejected             Kind = "record_rejected"
	DuplicateAdmissionDetected Kind = "duplicate_admission_detected"

	ConnectivityChanged Kind = "connectivity_changed"
	RetentionPruned     Kind = "retention_pruned"
)

// Fields are flat key/value attributes of an Event.
type Fields map[string]any

type Event struct {
	Kind   Kind
	At     time.Time
	Fields Fields
}

// Emitter receives events. Implementations must be safe for concurrent
// use and must not block for long.
type Emitter interface {
	Emit(e Event)
}

// EmitterFunc adapts a function to Emitter.
type EmitterFunc func(Event)

func (f EmitterFunc) Emit(e Event) { f(e) }

// Nop discards every event.
func Nop() Emitter { return EmitterFunc(func(Event) {}) }

type multi []Emitter

func (m multi) Emit(e Event) {
	for _, em := range m {
		em.Emit(e)
	}
}

// Multi fans an event out to every non-nil emitter in order.
func Multi(emitters ...Emitter) Emitter {
	out := make(multi, 0, len(emitters))
	for _, e := range emitters {
		if e != nil {
			out = append(out, e)
		}
	}
	return out
}

// New builds an Event stamped with the current UTC time.
func New(kind Kind, fields Fields) Event {
	return Event{Kind: kind, At: time.Now().UTC(), Fields: fields}
}

// Recorder keeps every event in memory. Intended for tests.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func NewRecorder() *Recorder { return &Recorder{} }

func (r *Recorder) Emit(e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

// Events returns a copy of all events.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// OfKind returns the recorded events of one kind.
func (r *Recorder) OfKind(kind Kind) []Event {
	var out []Event
	for _, e := range r.Events() {
		if e.Kind == kind {
			out = append(out, e)
		}
	}
	return out
}
