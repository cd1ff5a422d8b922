package main

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ironsheep/slide-detect-mcp/internal/ocr"
	"github.com/ironsheep/slide-detect-mcp/internal/server"
	"github.com/ironsheep/slide-detect-mcp/internal/session"
)

// config is the --config file layout:
//
//	detection:            # session settings, see session.SettingsPatch
//	  sensitivityThreshold: 0.35
//	  debounceTime: 300
//	ocr:
//	  language: eng
//	server:
//	  maxFrameSide: 1920
//	  tickInterval: 50    # milliseconds
//	  metricsAddr: ":9464"
type config struct {
	Detection yaml.Node  `yaml:"detection"`
	OCR       ocr.Config `yaml:"ocr"`
	Server    struct {
		MaxFrameSide   int    `yaml:"maxFrameSide"`
		TickIntervalMs int64  `yaml:"tickInterval"`
		MetricsAddr    string `yaml:"metricsAddr"`
	} `yaml:"server"`
}

func defaultConfig() config {
	var cfg config
	cfg.OCR.Language = ocr.DefaultLanguage
	cfg.Server.MaxFrameSide = server.DefaultMaxFrameSide
	cfg.Server.TickIntervalMs = session.DefaultTickInterval.Milliseconds()
	return cfg
}

// loadConfig reads path, or returns the defaults when path is empty.
func loadConfig(path string) (config, error) {
	cfg := defaultConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("failed to read config: %w", err)
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return cfg, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// settings applies the detection section over the default settings.
func (c config) settings() (session.Settings, error) {
	base := session.DefaultSettings()
	if c.Detection.Kind == 0 {
		return base, nil
	}
	doc, err := yaml.Marshal(&c.Detection)
	if err != nil {
		return base, err
	}
	patch, err := session.ParseSettingsYAML(doc, base)
	if err != nil {
		return base, err
	}
	return base.Merge(patch), nil
}

func (c config) tickInterval() time.Duration {
	return time.Duration(c.Server.TickIntervalMs) * time.Millisecond
}
