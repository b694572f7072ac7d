package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/vovakirdan/bomberboy/internal/session"
)

func TestEmbeddedDefaultsMatch(t *testing.T) {
	cfg, err := Parse(DefaultYAML())
	if err != nil {
		t.Fatalf("Parse() failed: %v", err)
	}
	if cfg != Default() {
		t.Errorf("embedded defaults differ from Default():\n%+v\n%+v", cfg, Default())
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults do not validate: %v", err)
	}
}

func TestLoadCustomPath(t *testing.T) {
	t.Chdir(t.TempDir())
	path := filepath.Join(t.TempDir(), "custom.yaml")
	data := "session:\n  fps: 30\n  input_delay: 0\nlog:\n  level: debug\n"
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatalf("WriteFile() failed: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if cfg.Session.FPS != 30 || cfg.Session.InputDelay != 0 || cfg.Log.Level != "debug" {
		t.Errorf("file values not applied: %+v", cfg)
	}
	if cfg.Session.MaxPredictionWindow != 12 || cfg.SSH.Port != 2222 {
		t.Errorf("unset keys should keep defaults: %+v", cfg)
	}
}

func TestLoadMissingCustomPath(t *testing.T) {
	t.Chdir(t.TempDir())
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("Load() should fail for a missing explicit path")
	}
}

func TestLoadLocalConfigsDir(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("HOME", t.TempDir())
	if err := os.MkdirAll("configs", 0o755); err != nil {
		t.Fatalf("MkdirAll() failed: %v", err)
	}
	if err := os.WriteFile(filepath.Join("configs", "bomberboy.yaml"), []byte("ssh:\n  port: 2323\n"), 0o644); err != nil {
		t.Fatalf("WriteFile() failed: %v", err)
	}

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if cfg.SSH.Port != 2323 {
		t.Errorf("ssh.port = %d, expected 2323", cfg.SSH.Port)
	}
}

func TestEnvOverrides(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("HOME", t.TempDir())
	t.Setenv(EnvDB, "/tmp/override.db")
	t.Setenv(EnvLogLevel, "")
	if err := os.WriteFile(".env", []byte(EnvRelayURL+"=ws://relay.example:9000\n"), 0o644); err != nil {
		t.Fatalf("WriteFile() failed: %v", err)
	}
	t.Cleanup(func() { os.Unsetenv(EnvRelayURL) })

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if cfg.Storage.Path != "/tmp/override.db" {
		t.Errorf("storage.path = %q", cfg.Storage.Path)
	}
	if cfg.Relay.URL != "ws://relay.example:9000" {
		t.Errorf("relay.url = %q, expected the .env value", cfg.Relay.URL)
	}
	if cfg.Log.Level != "info" {
		t.Errorf("empty env var should not override, got %q", cfg.Log.Level)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"zero fps", func(c *Config) { c.Session.FPS = 0 }, "fps"},
		{"zero window", func(c *Config) { c.Session.MaxPredictionWindow = 0 }, "max_prediction_window"},
		{"huge window", func(c *Config) { c.Session.MaxPredictionWindow = 1000 }, "max_prediction_window"},
		{"bad port", func(c *Config) { c.SSH.Port = 0 }, "ssh.port"},
		{"no lobby timeout", func(c *Config) { c.SSH.LobbyTimeoutSecs = 0 }, "ssh.lobby_timeout_secs"},
		{"no db", func(c *Config) { c.Storage.Path = "" }, "storage.path"},
		{"bad level", func(c *Config) { c.Log.Level = "loud" }, "log.level"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			var cfgErr *session.InvalidConfigurationError
			if err := cfg.Validate(); !errors.As(err, &cfgErr) {
				t.Fatalf("Validate() = %v, expected InvalidConfigurationError", err)
			}
			if cfgErr.Field != tt.field {
				t.Errorf("field = %q, expected %q", cfgErr.Field, tt.field)
			}
		})
	}
}

func TestOnlineConfig(t *testing.T) {
	roster := []session.Participant{
		{Handle: 0, Kind: session.LocalParticipant},
		{Handle: 1, Kind: session.RemoteParticipant, Address: "peer"},
	}
	oc := Default().Online(roster)
	if err := oc.Validate(); err != nil {
		t.Fatalf("Validate() failed: %v", err)
	}
	if oc.MaxPredictionWindow != 12 || oc.InputDelay != 2 || oc.NumParticipants != 2 {
		t.Errorf("online config = %+v", oc)
	}
}

func TestSchema(t *testing.T) {
	data, err := SchemaJSON()
	if err != nil {
		t.Fatalf("SchemaJSON() failed: %v", err)
	}
	for _, key := range []string{`"max_prediction_window"`, `"check_distance"`, `"host_key_path"`, `"level"`} {
		if !strings.Contains(string(data), key) {
			t.Errorf("schema is missing %s", key)
		}
	}
}

func TestMarshalRoundTrip(t *testing.T) {
	cfg := Default()
	cfg.Session.FPS = 120
	data, err := Marshal(cfg)
	if err != nil {
		t.Fatalf("Marshal() failed: %v", err)
	}
	back, err := Parse(data)
	if err != nil {
		t.Fatalf("Parse() failed: %v", err)
	}
	if back != cfg {
		t.Errorf("round trip changed the config: %+v", back)
	}
}
