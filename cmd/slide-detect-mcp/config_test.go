package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ironsheep/slide-detect-mcp/internal/server"
	"github.com/ironsheep/slide-detect-mcp/internal/session"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := loadConfig("")
	require.NoError(t, err)

	assert.Equal(t, "eng", cfg.OCR.Language)
	assert.Equal(t, server.DefaultMaxFrameSide, cfg.Server.MaxFrameSide)
	assert.Equal(t, session.DefaultTickInterval, cfg.tickInterval())

	settings, err := cfg.settings()
	require.NoError(t, err)
	assert.Equal(t, session.DefaultSettings(), settings)
}

func TestLoadConfig_File(t *testing.T) {
	path := writeConfig(t, `
detection:
  sensitivityThreshold: 0.45
  debounceTime: 250
  enableColorAnalysis: false
  layout:
    titleBand: 0.25
ocr:
  language: deu
server:
  maxFrameSide: 1280
  tickInterval: 20
  metricsAddr: "127.0.0.1:9464"
`)

	cfg, err := loadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "deu", cfg.OCR.Language)
	assert.Equal(t, 1280, cfg.Server.MaxFrameSide)
	assert.Equal(t, 20*time.Millisecond, cfg.tickInterval())
	assert.Equal(t, "127.0.0.1:9464", cfg.Server.MetricsAddr)

	settings, err := cfg.settings()
	require.NoError(t, err)
	assert.Equal(t, 0.45, settings.SensitivityThreshold)
	assert.Equal(t, 250*time.Millisecond, settings.DebounceTime)
	assert.False(t, settings.EnableColorAnalysis)
	assert.True(t, settings.EnableEdgeDetection)
	assert.Equal(t, 0.25, settings.Layout.TitleBand)
	assert.Equal(t, session.DefaultSettings().Layout.TileSize, settings.Layout.TileSize)
}

func TestLoadConfig_PartialKeepsDefaults(t *testing.T) {
	path := writeConfig(t, "ocr:\n  tessdataPrefix: /opt/tessdata\n")

	cfg, err := loadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "eng", cfg.OCR.Language)
	assert.Equal(t, "/opt/tessdata", cfg.OCR.TessdataPrefix)
	assert.Equal(t, server.DefaultMaxFrameSide, cfg.Server.MaxFrameSide)
}

func TestLoadConfig_Errors(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"unknown section", "metrics: {}\n"},
		{"unknown server key", "server:\n  port: 80\n"},
		{"malformed", "server: [\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := loadConfig(writeConfig(t, tt.body))
			assert.Error(t, err)
		})
	}

	_, err := loadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestConfigSettings_InvalidDetection(t *testing.T) {
	cfg, err := loadConfig(writeConfig(t, "detection:\n  sensitivity: 0.5\n"))
	require.NoError(t, err, "detection keys are checked when settings are built")

	_, err = cfg.settings()
	assert.Error(t, err)
}

func TestNewLogger(t *testing.T) {
	logger, err := newLogger("debug")
	require.NoError(t, err)
	assert.True(t, logger.Core().Enabled(-1))

	_, err = newLogger("loud")
	assert.Error(t, err)
}
