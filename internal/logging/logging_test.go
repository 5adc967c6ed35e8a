package logging_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BrandonDHaskell/turnstile/internal/logging"
)

func TestNew_WritesRotatedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gate.log")

	logger, err := logging.New(logging.Config{Level: "info", Encoding: "console", File: path, MaxSizeMB: 1})
	require.NoError(t, err)

	logger.Info("scan accepted")
	logger.Debug("filtered out")
	_ = logger.Sync()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"msg":"scan accepted"`)
	assert.NotContains(t, string(data), "filtered out")
}

func TestNew_RejectsBadSettings(t *testing.T) {
	_, err := logging.New(logging.Config{Level: "loud"})
	assert.Error(t, err)

	_, err = logging.New(logging.Config{Level: "info", Encoding: "xml"})
	assert.Error(t, err)
}
