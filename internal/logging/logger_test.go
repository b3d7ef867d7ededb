package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"veritas/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func observe(t *testing.T, lc config.LoggingConfig) *observer.ObservedLogs {
	t.Helper()
	core, logs := observer.New(zapcore.DebugLevel)
	InitializeWithLogger(zap.New(core), lc)
	t.Cleanup(func() { InitializeWithLogger(zap.NewNop(), config.LoggingConfig{}) })
	return logs
}

func TestCategoryLoggersAreNamed(t *testing.T) {
	logs := observe(t, config.LoggingConfig{})

	API("POST /scan -> %d", 200)
	WorkflowDebug("Idle -> Submitting")

	entries := logs.All()
	require.Len(t, entries, 2)
	assert.Equal(t, "api", entries[0].LoggerName)
	assert.Equal(t, "POST /scan -> 200", entries[0].Message)
	assert.Equal(t, "workflow", entries[1].LoggerName)
	assert.Equal(t, zapcore.DebugLevel, entries[1].Level)
}

func TestDisabledCategoryIsNoop(t *testing.T) {
	logs := observe(t, config.LoggingConfig{Categories: map[string]bool{"ui": false}})

	UI("should not appear")
	Get(CategoryUI).With("k", "v").Error("nor this")
	Stub("but this does")

	entries := logs.All()
	require.Len(t, entries, 1)
	assert.Equal(t, "stub", entries[0].LoggerName)
}

func TestWithAttachesFields(t *testing.T) {
	logs := observe(t, config.LoggingConfig{})

	Get(CategoryAPI).With("request_id", "req-1").Warn("slow response")

	entries := logs.FilterField(zap.String("request_id", "req-1")).All()
	require.Len(t, entries, 1)
	assert.Equal(t, "slow response", entries[0].Message)
}

func TestAuditEvent(t *testing.T) {
	logs := observe(t, config.LoggingConfig{})

	Audit(AuditEvent{
		Type:      AuditStageFailure,
		ScanID:    "scan_1234",
		Stage:     "adjudication",
		RequestID: "req-9",
		Duration:  1500 * time.Millisecond,
		Fields:    map[string]interface{}{"status_code": 502},
	})

	entries := logs.All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, "stage_failure", fields["event"])
	assert.Equal(t, "scan_1234", fields["scan_id"])
	assert.Equal(t, int64(1500), fields["duration_ms"])
	assert.Equal(t, false, fields["success"])
}

func TestInitializeFileSink(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "veritas.log")
	require.NoError(t, Initialize(config.LoggingConfig{Level: "debug", File: path}, SinkFile))
	t.Cleanup(func() { InitializeWithLogger(zap.NewNop(), config.LoggingConfig{}) })

	Boot("console started")
	Sync()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(data), "console started"))
}

func TestInitializeRejectsBadLevel(t *testing.T) {
	err := Initialize(config.LoggingConfig{Level: "loud"}, SinkStderr)
	assert.Error(t, err)
}

func TestInitializeFileSinkRequiresPath(t *testing.T) {
	err := Initialize(config.LoggingConfig{Level: "info"}, SinkFile)
	assert.Error(t, err)
}
