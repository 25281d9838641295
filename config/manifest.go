package config

import (
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/upb/inference-router/models"
	"gopkg.in/yaml.v3"
)

// Manifest is the YAML backend fleet definition loaded at startup.
type Manifest struct {
	Backends []BackendManifest `yaml:"backends" validate:"required,min=1,dive"`
}

// BackendManifest declares one routable backend.
type BackendManifest struct {
	ID       string `yaml:"id" validate:"required"`
	Provider string `yaml:"provider" validate:"required"`
	Model    string `yaml:"model" validate:"required"`
	Tier     int    `yaml:"tier" validate:"gte=0"`

	// BaseURL and APIKeyEnv configure the HTTP dispatcher. Both are empty
	// for last-resort local backends.
	BaseURL   string `yaml:"base_url" validate:"omitempty,url"`
	APIKeyEnv string `yaml:"api_key_env"`

	Concurrency       int      `yaml:"concurrency" validate:"gt=0"`
	RequestsPerMinute float64  `yaml:"requests_per_minute" validate:"gt=0"`
	UnitsPerMinute    float64  `yaml:"units_per_minute" validate:"gt=0"`
	EstimatedUnits    float64  `yaml:"estimated_units" validate:"gte=0"`
	Timeout           Duration `yaml:"timeout"`
	LastResort        bool     `yaml:"last_resort"`
}

// Duration parses YAML scalars like "30s" or "2m" through time.ParseDuration.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var raw string
	if err := node.Decode(&raw); err != nil {
		return err
	}
	if raw == "" {
		*d = 0
		return nil
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// Definition converts the manifest entry to a backend definition.
func (m BackendManifest) Definition() models.Backend {
	return models.Backend{
		ID:                m.ID,
		Provider:          m.Provider,
		Model:             m.Model,
		Tier:              models.Tier(m.Tier),
		Concurrency:       m.Concurrency,
		RequestsPerMinute: m.RequestsPerMinute,
		UnitsPerMinute:    m.UnitsPerMinute,
		EstimatedUnits:    m.EstimatedUnits,
		Timeout:           time.Duration(m.Timeout),
		LastResort:        m.LastResort,
	}
}

// APIKey resolves the backend's API key from the environment.
func (m BackendManifest) APIKey() string {
	if m.APIKeyEnv == "" {
		return ""
	}
	return os.Getenv(m.APIKeyEnv)
}

// LoadManifest reads and validates the backend manifest at path.
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}

	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse manifest: %w", err)
	}

	if err := validator.New().Struct(&m); err != nil {
		return nil, fmt.Errorf("invalid manifest: %w", err)
	}

	seen := make(map[string]struct{}, len(m.Backends))
	for _, b := range m.Backends {
		if _, dup := seen[b.ID]; dup {
			return nil, fmt.Errorf("invalid manifest: duplicate backend id %q", b.ID)
		}
		seen[b.ID] = struct{}{}
		if !b.LastResort && b.BaseURL == "" {
			return nil, fmt.Errorf("invalid manifest: backend %q needs a base_url or last_resort: true", b.ID)
		}
	}
	return &m, nil
}
