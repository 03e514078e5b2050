package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Source types.
const (
	SourceDropzone = "dropzone"
	SourceSDK      = "sdk"
)

// Source is one harvest source from the sources file.
type Source struct {
	Name string `yaml:"name" json:"name"`
	// ID identifies the source in the catalog's harvest_source_id field.
	ID   string `yaml:"id" json:"id"`
	Type string `yaml:"type" json:"type"`
	URL  string `yaml:"url" json:"url,omitempty"`
	// Config is the JSON source configuration.
	Config string `yaml:"config" json:"config,omitempty"`
}

type sourcesFile struct {
	Sources []Source `yaml:"sources"`
}

// LoadSources reads harvest source definitions from a YAML file.
// Environment variables in the file are expanded.
func LoadSources(path string) ([]Source, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read sources file: %w", err)
	}

	var f sourcesFile
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), &f); err != nil {
		return nil, fmt.Errorf("parse sources file: %w", err)
	}

	seen := make(map[string]bool, len(f.Sources))
	for i, s := range f.Sources {
		if s.Name == "" {
			return nil, fmt.Errorf("source %d: name is required", i)
		}
		if seen[s.Name] {
			return nil, fmt.Errorf("source %s: duplicate name", s.Name)
		}
		seen[s.Name] = true

		if s.ID == "" {
			f.Sources[i].ID = s.Name
		}
		switch s.Type {
		case SourceDropzone:
			if _, err := ParseSourceConfig(s.Config); err != nil {
				return nil, fmt.Errorf("source %s: %w", s.Name, err)
			}
		case SourceSDK:
			if s.URL == "" {
				return nil, fmt.Errorf("source %s: url is required", s.Name)
			}
		default:
			return nil, fmt.Errorf("source %s: unknown type %q", s.Name, s.Type)
		}
	}
	return f.Sources, nil
}

// SourceConfig is the configuration of a dropzone source.
type SourceConfig struct {
	DataPath               string `json:"data_path"`
	MetafileDir            string `json:"metafile_dir"`
	DatasetPrefix          string `json:"dataset_prefix"`
	UpdateDatasets         bool   `json:"update_datasets"`
	UpdateDateLastModified bool   `json:"update_date_last_modified"`
	DeleteMissingDatasets  bool   `json:"delete_missing_datasets"`
}

// InvalidConfigError reports a source config field of the wrong shape.
type InvalidConfigError struct {
	Field  string
	Reason string
}

func (e InvalidConfigError) Error() string {
	return fmt.Sprintf("%s %s", e.Field, e.Reason)
}

// ValidateSourceConfig checks the field types of a dropzone source config.
// data_path is required, update_datasets and update_date_last_modified must
// be present.
func ValidateSourceConfig(raw string) error {
	var obj map[string]any
	if err := json.Unmarshal([]byte(raw), &obj); err != nil {
		return fmt.Errorf("decode source config: %w", err)
	}

	checks := []struct {
		field    string
		required bool
		isBool   bool
	}{
		{"data_path", true, false},
		{"metafile_dir", false, false},
		{"dataset_prefix", false, false},
		{"update_datasets", true, true},
		{"update_date_last_modified", true, true},
		{"delete_missing_datasets", false, true},
	}
	for _, c := range checks {
		v, ok := obj[c.field]
		if !ok {
			if c.required {
				return InvalidConfigError{Field: c.field, Reason: "is required"}
			}
			continue
		}
		if c.isBool {
			if _, ok := v.(bool); !ok {
				return InvalidConfigError{Field: c.field, Reason: "must be a boolean"}
			}
			continue
		}
		if _, ok := v.(string); !ok {
			return InvalidConfigError{Field: c.field, Reason: "must be a string"}
		}
	}
	return nil
}

// ParseSourceConfig validates a dropzone source config and decodes it.
// Absent optional fields take their zero value.
func ParseSourceConfig(raw string) (SourceConfig, error) {
	if err := ValidateSourceConfig(raw); err != nil {
		return SourceConfig{}, err
	}
	var cfg SourceConfig
	if err := json.Unmarshal([]byte(raw), &cfg); err != nil {
		return SourceConfig{}, fmt.Errorf("decode source config: %w", err)
	}
	cfg.DataPath = strings.TrimSpace(cfg.DataPath)
	return cfg, nil
}
