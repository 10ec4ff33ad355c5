package jones

import (
	"fmt"
	"math/rand"
	"os"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

// LogConfig controls log output
type LogConfig struct {
	Level  string `yaml:"level,omitempty" json:"level,omitempty"`   // trace, debug, info, warn, error
	Pretty bool   `yaml:"pretty,omitempty" json:"pretty,omitempty"` // Console writer instead of JSON
}

// HTTPConfig holds HTTP server settings
type HTTPConfig struct {
	Listen string `yaml:"listen,omitempty" json:"listen,omitempty"` // Listen address, default ":8080"
}

// MQTTConfig holds MQTT connection settings
type MQTTConfig struct {
	Broker        string `yaml:"broker" json:"broker"`
	ClientID      string `yaml:"clientId" json:"clientId"`
	TopicPrefix   string `yaml:"topicPrefix" json:"topicPrefix"`     // Subscribe side: <prefix>/<bench>/input|target|angles
	PublishPrefix string `yaml:"publishPrefix" json:"publishPrefix"` // Publish side: <prefix>/<bench>/result|state
	Username      string `yaml:"username,omitempty" json:"username,omitempty"`
	Password      string `yaml:"password,omitempty" json:"password,omitempty"`
	QoS           byte   `yaml:"qos,omitempty" json:"qos,omitempty"`
	Retain        bool   `yaml:"retain,omitempty" json:"retain,omitempty"`
}

// SearchSettings is the file form of SearchConfig. Zero fields keep the
// package defaults; Seed 0 means time-seeded.
type SearchSettings struct {
	MaxIterations int     `yaml:"maxIterations,omitempty" json:"maxIterations,omitempty"`
	Tolerance     float64 `yaml:"tolerance,omitempty" json:"tolerance,omitempty"`
	RandomStarts  int     `yaml:"randomStarts,omitempty" json:"randomStarts,omitempty"`
	Refine        *bool   `yaml:"refine,omitempty" json:"refine,omitempty"` // Optional; absent means enabled
	Seed          int64   `yaml:"seed,omitempty" json:"seed,omitempty"`
}

// ToSearchConfig builds a SearchConfig from the settings, filling defaults
// for anything left unset.
func (s SearchSettings) ToSearchConfig() SearchConfig {
	config := DefaultSearchConfig()
	if s.MaxIterations > 0 {
		config.MaxIterations = s.MaxIterations
	}
	if s.Tolerance > 0 {
		config.Tolerance = s.Tolerance
	}
	if s.RandomStarts > 0 {
		config.RandomStarts = s.RandomStarts
	}
	if s.Refine != nil {
		config.Refine = *s.Refine
	}
	if s.Seed != 0 {
		config.RNG = rand.New(rand.NewSource(s.Seed))
	}
	return config
}

// RenderConfig holds rendering settings shared by both renderers
type RenderConfig struct {
	Width             int     `yaml:"width,omitempty" json:"width,omitempty"`                         // Raster width in pixels (default 800)
	Height            int     `yaml:"height,omitempty" json:"height,omitempty"`                       // Raster height in pixels (default 600)
	Samples           int     `yaml:"samples,omitempty" json:"samples,omitempty"`                     // Trace samples per optical period (default 256)
	Grid              *bool   `yaml:"grid,omitempty" json:"grid,omitempty"`                           // Optional; absent means enabled
	SimplifyTolerance float64 `yaml:"simplifyTolerance,omitempty" json:"simplifyTolerance,omitempty"` // Douglas-Peucker tolerance for vector traces
}

// GridEnabled returns whether the background grid should be drawn
func (r RenderConfig) GridEnabled() bool {
	return r.Grid == nil || *r.Grid
}

// StoreConfig holds solution store settings
type StoreConfig struct {
	Solutions string `yaml:"solutions,omitempty" json:"solutions,omitempty"` // Path to the solutions JSON file; empty disables
}

// HistoryConfig holds run history settings
type HistoryConfig struct {
	Database string `yaml:"database,omitempty" json:"database,omitempty"` // Path to the SQLite file; empty disables
}

// BenchConfig defines an optical bench from the config file
type BenchConfig struct {
	ID    string `yaml:"id" json:"id"`
	Color string `yaml:"color,omitempty" json:"color,omitempty"` // Hex trace color, e.g. "#00AAFF"
	Input string `yaml:"input,omitempty" json:"input,omitempty"` // Optional initial input preset name
}

// Config represents the full configuration file
type Config struct {
	Log     LogConfig      `yaml:"log,omitempty" json:"log,omitempty"`
	HTTP    HTTPConfig     `yaml:"http,omitempty" json:"http,omitempty"`
	MQTT    MQTTConfig     `yaml:"mqtt,omitempty" json:"mqtt,omitempty"`
	Search  SearchSettings `yaml:"search,omitempty" json:"search,omitempty"`
	Render  RenderConfig   `yaml:"render,omitempty" json:"render,omitempty"`
	Store   StoreConfig    `yaml:"store,omitempty" json:"store,omitempty"`
	History HistoryConfig  `yaml:"history,omitempty" json:"history,omitempty"`
	Benches []BenchConfig  `yaml:"benches,omitempty" json:"benches,omitempty"`
}

// GetBenchByID returns the bench config for the given ID
func (c *Config) GetBenchByID(id string) *BenchConfig {
	for i := range c.Benches {
		if c.Benches[i].ID == id {
			return &c.Benches[i]
		}
	}
	return nil
}

// DefaultBench returns the first configured bench ID, or empty string.
// Handlers fall back to it when no bench query parameter is given.
func (c *Config) DefaultBench() string {
	if len(c.Benches) == 0 {
		return ""
	}
	return c.Benches[0].ID
}

// LoadConfig loads the unified configuration from a YAML file
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config file not found: %s", path)
		}
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("parsing config YAML: %w", err)
	}

	// Validate fields that would otherwise fail far from their cause.
	// An empty broker is allowed here: only serve mode requires MQTT.
	if config.Log.Level != "" {
		if _, err := zerolog.ParseLevel(config.Log.Level); err != nil {
			return nil, fmt.Errorf("log.level %q is not a valid level", config.Log.Level)
		}
	}
	if config.MQTT.QoS > 2 {
		return nil, fmt.Errorf("mqtt.qos must be 0, 1 or 2")
	}

	seen := make(map[string]bool, len(config.Benches))
	for i, bc := range config.Benches {
		if bc.ID == "" {
			return nil, fmt.Errorf("bench[%d].id is required", i)
		}
		if seen[bc.ID] {
			return nil, fmt.Errorf("bench[%d].id %q duplicates an earlier bench", i, bc.ID)
		}
		seen[bc.ID] = true
		if bc.Input != "" {
			if _, ok := StateByName(bc.Input); !ok {
				return nil, fmt.Errorf("bench[%d].input: unknown state %q", i, bc.Input)
			}
		}
	}

	return &config, nil
}

// SaveConfig saves the configuration to a YAML file
func SaveConfig(path string, config *Config) error {
	data, err := yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("marshaling config YAML: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	return nil
}
