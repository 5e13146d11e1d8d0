package observability

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/xkilldash9x/gatecrash/internal/config"
)

// syncBuffer adapts bytes.Buffer to zapcore.WriteSyncer with locking so the
// logger's background writes do not race the test's reads.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) Sync() error { return nil }

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func baseConfig() config.LoggerConfig {
	return config.LoggerConfig{
		Level:       "debug",
		Format:      "console",
		ServiceName: "gatecrash",
		Colors: config.ColorConfig{
			Info: "green",
			Warn: "yellow",
		},
	}
}

func TestInitializeConsoleOutput(t *testing.T) {
	ResetForTest()
	t.Cleanup(ResetForTest)

	out := &syncBuffer{}
	Initialize(baseConfig(), out)

	GetLogger().Info("challenge detected", zap.String("provider", "recaptcha"))

	logged := out.String()
	assert.Contains(t, logged, "challenge detected")
	assert.Contains(t, logged, "gatecrash.")
	assert.Contains(t, logged, colorGreen, "info lines should carry the configured color")
}

func TestInitializeRespectsLevel(t *testing.T) {
	ResetForTest()
	t.Cleanup(ResetForTest)

	cfg := baseConfig()
	cfg.Level = "warn"
	out := &syncBuffer{}
	Initialize(cfg, out)

	logger := GetLogger()
	logger.Debug("hidden")
	logger.Info("also hidden")
	logger.Warn("visible")

	logged := out.String()
	assert.NotContains(t, logged, "hidden")
	assert.Contains(t, logged, "visible")
}

func TestInitializeInvalidLevelFallsBackToInfo(t *testing.T) {
	ResetForTest()
	t.Cleanup(ResetForTest)

	cfg := baseConfig()
	cfg.Level = "not-a-level"
	out := &syncBuffer{}
	Initialize(cfg, out)

	logger := GetLogger()
	logger.Debug("below fallback")
	logger.Info("at fallback")

	logged := out.String()
	assert.NotContains(t, logged, "below fallback")
	assert.Contains(t, logged, "at fallback")
}

func TestInitializeIsIdempotent(t *testing.T) {
	ResetForTest()
	t.Cleanup(ResetForTest)

	first := &syncBuffer{}
	second := &syncBuffer{}
	Initialize(baseConfig(), first)
	Initialize(baseConfig(), second)

	GetLogger().Info("routed once")

	assert.Contains(t, first.String(), "routed once")
	assert.Empty(t, second.String())
}

func TestFileOutputIsStructuredJSON(t *testing.T) {
	ResetForTest()
	t.Cleanup(ResetForTest)

	logFile := filepath.Join(t.TempDir(), "gatecrash.log")
	cfg := baseConfig()
	cfg.LogFile = logFile

	Initialize(cfg, zapcore.AddSync(&syncBuffer{}))
	GetLogger().Info("solve complete", zap.Int("attempts", 2))
	Sync()

	raw, err := os.ReadFile(logFile)
	require.NoError(t, err)

	line := strings.TrimSpace(strings.Split(string(raw), "\n")[0])
	var entry map[string]any
	require.NoError(t, json.Unmarshal([]byte(line), &entry), "file log line should be JSON: %s", line)
	assert.Equal(t, "solve complete", entry["msg"])
	assert.Equal(t, float64(2), entry["attempts"])
}

func TestGetLoggerBeforeInitializeReturnsFallback(t *testing.T) {
	ResetForTest()
	t.Cleanup(ResetForTest)

	logger := GetLogger()
	require.NotNil(t, logger)
	// The fallback must never be the stored global.
	assert.Nil(t, globalLogger.Load())
}
