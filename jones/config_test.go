package jones

import (
	"os"
	"path/filepath"
	"testing"
)

// ---------------------------------------------------------------------------
// helpers
// ---------------------------------------------------------------------------

func boolPtr(v bool) *bool { return &v }

func validConfigYAML() string {
	return `log:
  level: debug
  pretty: true
http:
  listen: ":9090"
mqtt:
  broker: tcp://localhost:1883
  clientId: joneslab-test
  topicPrefix: polarimeter
  publishPrefix: joneslab
  qos: 1
  retain: true
search:
  maxIterations: 500
  tolerance: 1e-10
  randomStarts: 12
  seed: 42
render:
  width: 1024
  height: 768
  samples: 128
  simplifyTolerance: 0.005
store:
  solutions: solutions.json
history:
  database: runs.db
benches:
  - id: bench-a
    color: "#FF0000"
    input: H
  - id: bench-b
    color: "#00FF00"
    input: RCP
`
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatalf("write config fixture: %v", err)
	}
	return path
}

// ---------------------------------------------------------------------------
// LoadConfig
// ---------------------------------------------------------------------------

func TestLoadConfig_NotExists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nope.yaml")
	_, err := LoadConfig(path)
	if err == nil {
		t.Fatal("expected error for missing config file, got nil")
	}
}

func TestLoadConfig_ValidYAML(t *testing.T) {
	path := writeConfig(t, validConfigYAML())

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Log.Level != "debug" || !cfg.Log.Pretty {
		t.Errorf("Log = %+v, want debug/pretty", cfg.Log)
	}
	if cfg.HTTP.Listen != ":9090" {
		t.Errorf("HTTP.Listen = %q, want %q", cfg.HTTP.Listen, ":9090")
	}
	if cfg.MQTT.Broker != "tcp://localhost:1883" {
		t.Errorf("Broker = %q, want %q", cfg.MQTT.Broker, "tcp://localhost:1883")
	}
	if cfg.MQTT.TopicPrefix != "polarimeter" || cfg.MQTT.PublishPrefix != "joneslab" {
		t.Errorf("MQTT prefixes = %q/%q, want polarimeter/joneslab",
			cfg.MQTT.TopicPrefix, cfg.MQTT.PublishPrefix)
	}
	if cfg.MQTT.QoS != 1 || !cfg.MQTT.Retain {
		t.Errorf("MQTT qos/retain = %d/%v, want 1/true", cfg.MQTT.QoS, cfg.MQTT.Retain)
	}
	if cfg.Search.MaxIterations != 500 || cfg.Search.Seed != 42 {
		t.Errorf("Search = %+v, want maxIterations 500 seed 42", cfg.Search)
	}
	if cfg.Render.Width != 1024 || cfg.Render.SimplifyTolerance != 0.005 {
		t.Errorf("Render = %+v, want width 1024 simplifyTolerance 0.005", cfg.Render)
	}
	if cfg.Store.Solutions != "solutions.json" {
		t.Errorf("Store.Solutions = %q, want solutions.json", cfg.Store.Solutions)
	}
	if cfg.History.Database != "runs.db" {
		t.Errorf("History.Database = %q, want runs.db", cfg.History.Database)
	}
	if len(cfg.Benches) != 2 {
		t.Fatalf("len(Benches) = %d, want 2", len(cfg.Benches))
	}
	if cfg.Benches[0].ID != "bench-a" || cfg.Benches[0].Input != "H" {
		t.Errorf("Benches[0] = %+v, want bench-a with input H", cfg.Benches[0])
	}
	if cfg.Benches[1].Color != "#00FF00" {
		t.Errorf("Benches[1].Color = %q, want #00FF00", cfg.Benches[1].Color)
	}
}

func TestLoadConfig_Validation(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{
			name: "bad log level",
			yaml: `log:
  level: shouting
`,
		},
		{
			name: "qos above 2",
			yaml: `mqtt:
  broker: tcp://localhost:1883
  qos: 3
`,
		},
		{
			name: "bench missing id",
			yaml: `benches:
  - id: ""
    color: "#FF0000"
`,
		},
		{
			name: "duplicate bench id",
			yaml: `benches:
  - id: bench-a
  - id: bench-a
`,
		},
		{
			name: "unknown bench input preset",
			yaml: `benches:
  - id: bench-a
    input: sideways
`,
		},
		{
			name: "malformed yaml",
			yaml: "benches: [\n",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			path := writeConfig(t, tc.yaml)
			_, err := LoadConfig(path)
			if err == nil {
				t.Errorf("expected validation error for %q, got nil", tc.name)
			}
		})
	}
}

func TestLoadConfig_EmptyBrokerAllowed(t *testing.T) {
	// Only serve mode needs MQTT, so a broker-less config must load
	path := writeConfig(t, `benches:
  - id: bench-a
`)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.MQTT.Broker != "" {
		t.Errorf("Broker = %q, want empty", cfg.MQTT.Broker)
	}
}

// ---------------------------------------------------------------------------
// SaveConfig
// ---------------------------------------------------------------------------

func TestSaveConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.yaml")

	original := &Config{
		Log:  LogConfig{Level: "info"},
		HTTP: HTTPConfig{Listen: ":8080"},
		MQTT: MQTTConfig{
			Broker:        "tcp://localhost:1883",
			ClientID:      "test-client",
			TopicPrefix:   "polarimeter",
			PublishPrefix: "joneslab",
		},
		Search: SearchSettings{Seed: 7},
		Benches: []BenchConfig{
			{ID: "bench-a", Color: "#FF0000", Input: "V"},
		},
	}

	if err := SaveConfig(path, original); err != nil {
		t.Fatalf("SaveConfig: %v", err)
	}

	// Round-trip: LoadConfig must succeed and reproduce the data
	loaded, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig after save: %v", err)
	}
	if loaded.MQTT.Broker != original.MQTT.Broker {
		t.Errorf("Broker = %q, want %q", loaded.MQTT.Broker, original.MQTT.Broker)
	}
	if loaded.Search.Seed != 7 {
		t.Errorf("Search.Seed = %d, want 7", loaded.Search.Seed)
	}
	if len(loaded.Benches) != 1 || loaded.Benches[0].ID != "bench-a" {
		t.Errorf("Benches round-trip mismatch: %+v", loaded.Benches)
	}
}

// ---------------------------------------------------------------------------
// SearchSettings
// ---------------------------------------------------------------------------

func TestSearchSettings_ToSearchConfig(t *testing.T) {
	t.Run("zero settings keep defaults", func(t *testing.T) {
		got := SearchSettings{}.ToSearchConfig()
		want := DefaultSearchConfig()
		if got.MaxIterations != want.MaxIterations {
			t.Errorf("MaxIterations = %d, want %d", got.MaxIterations, want.MaxIterations)
		}
		if got.Tolerance != want.Tolerance {
			t.Errorf("Tolerance = %g, want %g", got.Tolerance, want.Tolerance)
		}
		if got.RandomStarts != want.RandomStarts {
			t.Errorf("RandomStarts = %d, want %d", got.RandomStarts, want.RandomStarts)
		}
		if !got.Refine {
			t.Error("Refine should default to enabled")
		}
	})

	t.Run("overrides applied", func(t *testing.T) {
		s := SearchSettings{
			MaxIterations: 50,
			Tolerance:     1e-4,
			RandomStarts:  2,
			Refine:        boolPtr(false),
		}
		got := s.ToSearchConfig()
		if got.MaxIterations != 50 || got.Tolerance != 1e-4 || got.RandomStarts != 2 {
			t.Errorf("overrides not applied: %+v", got)
		}
		if got.Refine {
			t.Error("Refine override should disable refinement")
		}
	})

	t.Run("seed makes the RNG deterministic", func(t *testing.T) {
		a := SearchSettings{Seed: 99}.ToSearchConfig()
		b := SearchSettings{Seed: 99}.ToSearchConfig()
		if a.RNG == nil || b.RNG == nil {
			t.Fatal("seeded settings should build an RNG")
		}
		if a.RNG.Float64() != b.RNG.Float64() {
			t.Error("same seed should draw the same sequence")
		}
	})
}

// ---------------------------------------------------------------------------
// RenderConfig
// ---------------------------------------------------------------------------

func TestRenderConfig_GridEnabled(t *testing.T) {
	if !(RenderConfig{}).GridEnabled() {
		t.Error("unset grid should default to enabled")
	}
	if !(RenderConfig{Grid: boolPtr(true)}).GridEnabled() {
		t.Error("explicit true should enable the grid")
	}
	if (RenderConfig{Grid: boolPtr(false)}).GridEnabled() {
		t.Error("explicit false should disable the grid")
	}
}

// ---------------------------------------------------------------------------
// Bench lookup
// ---------------------------------------------------------------------------

func TestConfig_GetBenchByID(t *testing.T) {
	cfg := &Config{Benches: []BenchConfig{
		{ID: "bench-a", Color: "#FF0000"},
		{ID: "bench-b", Color: "#00FF00"},
	}}

	b := cfg.GetBenchByID("bench-b")
	if b == nil {
		t.Fatal("bench-b not found")
	}
	if b.Color != "#00FF00" {
		t.Errorf("Color = %q, want #00FF00", b.Color)
	}

	// Returned pointer aliases the slice entry
	b.Color = "#0000FF"
	if cfg.Benches[1].Color != "#0000FF" {
		t.Error("GetBenchByID should return a pointer into the config")
	}

	if cfg.GetBenchByID("ghost") != nil {
		t.Error("unknown ID should return nil")
	}
}

func TestConfig_DefaultBench(t *testing.T) {
	if got := (&Config{}).DefaultBench(); got != "" {
		t.Errorf("empty config DefaultBench = %q, want empty", got)
	}

	cfg := &Config{Benches: []BenchConfig{{ID: "bench-a"}, {ID: "bench-b"}}}
	if got := cfg.DefaultBench(); got != "bench-a" {
		t.Errorf("DefaultBench = %q, want bench-a", got)
	}
}
