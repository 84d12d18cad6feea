package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"gopkg.in/yaml.v3"
)

const DefaultSettingsFileName = "settings.yaml"

// Settings holds the runtime tunables. Zero fields fall back to defaults,
// so a partial settings file only overrides what it names.
type Settings struct {
	ConnectTimeoutSec int   `yaml:"connect_timeout_seconds"`
	ExecTimeoutSec    int   `yaml:"exec_timeout_seconds"`
	SearchWorkers     int64 `yaml:"search_workers"`
	TraceMaxDepth     int   `yaml:"trace_max_depth"`
	ReadMaxLines      int   `yaml:"read_max_lines"`
	ExecMaxOutput     int   `yaml:"exec_max_output_bytes"`
}

// DefaultSettings returns the built-in tunables: 10s connect, 30s exec,
// 1 MiB output cap, trace depth 10, 1000-line reads.
func DefaultSettings() *Settings {
	return &Settings{
		ConnectTimeoutSec: 10,
		ExecTimeoutSec:    30,
		SearchWorkers:     int64(2 * runtime.NumCPU()),
		TraceMaxDepth:     10,
		ReadMaxLines:      1000,
		ExecMaxOutput:     1 << 20,
	}
}

// LoadSettings reads the settings file. A missing file yields the defaults;
// a present file overrides only the fields it sets.
func LoadSettings(path string) (*Settings, error) {
	if path == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return DefaultSettings(), nil
		}
		path = filepath.Join(homeDir, DefaultConfigDir, DefaultSettingsFileName)
	}

	settings := DefaultSettings()

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return settings, nil
		}
		return nil, fmt.Errorf("failed to read settings file: %v", err)
	}

	if err := yaml.Unmarshal(data, settings); err != nil {
		return nil, fmt.Errorf("failed to parse settings file: %v", err)
	}
	settings.applyDefaults()

	return settings, nil
}

func (s *Settings) applyDefaults() {
	defaults := DefaultSettings()
	if s.ConnectTimeoutSec <= 0 {
		s.ConnectTimeoutSec = defaults.ConnectTimeoutSec
	}
	if s.ExecTimeoutSec <= 0 {
		s.ExecTimeoutSec = defaults.ExecTimeoutSec
	}
	if s.SearchWorkers <= 0 {
		s.SearchWorkers = defaults.SearchWorkers
	}
	if s.TraceMaxDepth <= 0 {
		s.TraceMaxDepth = defaults.TraceMaxDepth
	}
	if s.ReadMaxLines <= 0 {
		s.ReadMaxLines = defaults.ReadMaxLines
	}
	if s.ExecMaxOutput <= 0 {
		s.ExecMaxOutput = defaults.ExecMaxOutput
	}
}

// ConnectTimeout returns the connect timeout as a duration.
func (s *Settings) ConnectTimeout() time.Duration {
	return time.Duration(s.ConnectTimeoutSec) * time.Second
}

// ExecTimeout returns the one-shot command timeout as a duration.
func (s *Settings) ExecTimeout() time.Duration {
	return time.Duration(s.ExecTimeoutSec) * time.Second
}
