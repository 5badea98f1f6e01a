package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/hamed0406/pulseops/internal/domain"
)

// MonitorSeed is one entry of the MONITORS_FILE YAML document.
type MonitorSeed struct {
	Name               string `yaml:"name"`
	URL                string `yaml:"url"`
	Type               string `yaml:"type"`
	Interval           int    `yaml:"interval"`
	Timeout            int    `yaml:"timeout"`
	ExpectedStatusCode int    `yaml:"expectedStatusCode"`
	Enabled            *bool  `yaml:"enabled"`
}

type seedFile struct {
	Monitors []MonitorSeed `yaml:"monitors"`
}

// LoadMonitors parses a seed file into monitors with defaults applied.
func LoadMonitors(path string) ([]domain.Monitor, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseMonitors(data)
}

func ParseMonitors(data []byte) ([]domain.Monitor, error) {
	var f seedFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse monitors: %w", err)
	}
	out := make([]domain.Monitor, 0, len(f.Monitors))
	for i, s := range f.Monitors {
		if s.URL == "" {
			return nil, fmt.Errorf("monitor %d: url required", i)
		}
		m := domain.Monitor{
			Name:               s.Name,
			URL:                s.URL,
			Type:               domain.MonitorType(s.Type),
			Interval:           s.Interval,
			Timeout:            s.Timeout,
			ExpectedStatusCode: s.ExpectedStatusCode,
			Enabled:            s.Enabled == nil || *s.Enabled,
		}
		if m.Name == "" {
			m.Name = s.URL
		}
		m.ApplyDefaults()
		if !m.Type.Valid() {
			return nil, fmt.Errorf("monitor %q: unsupported type %q", m.Name, s.Type)
		}
		out = append(out, m)
	}
	return out, nil
}
