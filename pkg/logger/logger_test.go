package logger

import (
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("warning"))
	assert.Equal(t, slog.LevelError, ParseLevel("error"))
	assert.Equal(t, slog.LevelInfo, ParseLevel("verbose"))
}

func TestInitWritesAuditFile(t *testing.T) {
	dir := t.TempDir()
	appPath := filepath.Join(dir, "app.log")
	auditPath := filepath.Join(dir, "audit", "audit.log")

	require.NoError(t, Init(Config{
		Level:       "debug",
		OutputPaths: []string{appPath},
		Audit:       AuditConfig{Enabled: true, Path: auditPath},
	}))
	t.Cleanup(func() {
		_ = Sync()
		_ = Init(Config{})
	})

	Named("payroll").Info("应用日志", slog.String("run_id", "r-1"))
	Audit().Info("付款完成", slog.String("payment_id", "payment_1"))
	require.NoError(t, Sync())

	appContent, err := os.ReadFile(appPath)
	require.NoError(t, err)
	assert.Contains(t, string(appContent), `"component":"payroll"`)

	auditContent, err := os.ReadFile(auditPath)
	require.NoError(t, err)
	line := strings.TrimSpace(string(auditContent))
	var entry map[string]any
	require.NoError(t, json.Unmarshal([]byte(line), &entry))
	assert.Equal(t, "payment_1", entry["payment_id"])
}

func TestInitRejectsAuditWithoutPath(t *testing.T) {
	err := Init(Config{Audit: AuditConfig{Enabled: true}})
	require.Error(t, err)
}
