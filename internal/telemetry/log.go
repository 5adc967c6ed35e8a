package telemetry

import (
	"sort"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// warnKinds are logged at warn level; everything else is info or debug.
var warnKinds = map[Kind]bool{
	CacheLoadFailed:            true,
	ValidationNotPersisted:     true,
	ActionRequeueFailed:        true,
	ActionDiscarded:            true,
	SyncStepFailed:             true,
	RecordRejected:             true,
	DuplicateAdmissionDetected: true,
}

var debugKinds = map[Kind]bool{
	AccessGranted:     true,
	SyncStepCompleted: true,
	SyncSkipped:       true,
}

type logEmitter struct {
	logger *zap.Logger
}

// NewLogEmitter writes each event as one structured zap entry.
func NewLogEmitter(logger *zap.Logger) Emitter {
	return &logEmitter{logger: logger.Named("events")}
}

func (l *logEmitter) Emit(e Event) {
	level := zapcore.InfoLevel
	switch {
	case warnKinds[e.Kind]:
		level = zapcore.WarnLevel
	case debugKinds[e.Kind]:
		level = zapcore.DebugLevel
	}
	ce := l.logger.Check(level, string(e.Kind))
	if ce == nil {
		return
	}

	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	fields := make([]zap.Field, 0, len(keys)+1)
	fields = append(fields, zap.Time("at", e.At))
	for _, k := range keys {
		fields = append(fields, zap.Any(k, e.Fields[k]))
	}
	ce.Write(fields...)
}
