package telemetry_test

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/BrandonDHaskell/turnstile/internal/telemetry"
)

func TestMetrics_DiscardCountedSeparately(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := telemetry.NewMetrics(reg)
	require.NoError(t, err)

	m.Emit(telemetry.New(telemetry.ActionDiscarded, telemetry.Fields{"type": "validate-ticket"}))
	m.Emit(telemetry.New(telemetry.ActionDiscarded, telemetry.Fields{"type": "validate-ticket"}))
	m.Emit(telemetry.New(telemetry.ActionRetried, telemetry.Fields{"type": "validate-ticket"}))

	n, err := testutil.GatherAndCount(reg, "turnstile_actions_discarded_total")
	require.NoError(t, err)
	assert.Equal(t, 1, n, "one series per action type")

	expected := `
# HELP turnstile_actions_discarded_total Actions dropped after exhausting retries (data loss)
# TYPE turnstile_actions_discarded_total counter
turnstile_actions_discarded_total{type="validate-ticket"} 2
`
	require.NoError(t, testutil.GatherAndCompare(reg, stringsReader(expected), "turnstile_actions_discarded_total"))
}

func TestMetrics_DoubleRegistrationFails(t *testing.T) {
	reg := prometheus.NewRegistry()
	_, err := telemetry.NewMetrics(reg)
	require.NoError(t, err)
	_, err = telemetry.NewMetrics(reg)
	assert.Error(t, err)
}

func TestLogEmitter_LevelsByKind(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	em := telemetry.NewLogEmitter(zap.New(core))

	em.Emit(telemetry.New(telemetry.ActionDiscarded, telemetry.Fields{"action_id": "a1", "type": "validate-ticket"}))
	em.Emit(telemetry.New(telemetry.ValidationDecided, telemetry.Fields{"status": "valid"}))

	entries := logs.All()
	require.Len(t, entries, 2)
	assert.Equal(t, zap.WarnLevel, entries[0].Level)
	assert.Equal(t, "action_discarded", entries[0].Message)
	assert.Equal(t, "a1", entries[0].ContextMap()["action_id"])
	assert.Equal(t, zap.InfoLevel, entries[1].Level)
}

func TestMulti_SkipsNilAndFansOut(t *testing.T) {
	a, b := telemetry.NewRecorder(), telemetry.NewRecorder()
	em := telemetry.Multi(a, nil, b)

	em.Emit(telemetry.New(telemetry.SyncStarted, nil))

	assert.Len(t, a.Events(), 1)
	assert.Len(t, b.OfKind(telemetry.SyncStarted), 1)
}
