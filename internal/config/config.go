// Package config loads the bomberboy configuration file.
package config

import (
	"github.com/charmbracelet/log"

	"github.com/vovakirdan/bomberboy/internal/session"
)

// Config is the whole configuration file.
type Config struct {
	Session SessionConfig `yaml:"session" jsonschema:"description=Simulation and rollback tuning"`
	Relay   RelayConfig   `yaml:"relay" jsonschema:"description=WebSocket relay used by online rounds"`
	SSH     SSHConfig     `yaml:"ssh" jsonschema:"description=SSH server for remote terminal play"`
	Storage StorageConfig `yaml:"storage"`
	Log     LogConfig     `yaml:"log"`
}

// SessionConfig holds the rollback session parameters.
type SessionConfig struct {
	FPS                 int `yaml:"fps" jsonschema:"minimum=1,default=60,description=Simulation ticks per second"`
	InputDelay          int `yaml:"input_delay" jsonschema:"minimum=0,default=2,description=Ticks between sampling and applying local input"`
	MaxPredictionWindow int `yaml:"max_prediction_window" jsonschema:"minimum=1,maximum=64,default=12,description=Ticks the simulation may run ahead of confirmed remote input"`
	CheckDistance       int `yaml:"check_distance" jsonschema:"minimum=1,maximum=64,default=2,description=Ticks re-simulated every tick by the local sync test"`
	NumParticipants     int `yaml:"num_participants" jsonschema:"minimum=1,maximum=2,default=2"`
}

// RelayConfig configures both the relay server and the client side.
type RelayConfig struct {
	Listen string `yaml:"listen" jsonschema:"default=:3536,description=Address the relay server listens on"`
	URL    string `yaml:"url" jsonschema:"description=Base URL clients dial; the room name is appended"`
}

// SSHConfig configures the SSH server.
type SSHConfig struct {
	Host             string `yaml:"host"`
	Port             int    `yaml:"port" jsonschema:"minimum=1,maximum=65535,default=2222"`
	HostKeyPath      string `yaml:"host_key_path"`
	LobbyTimeoutSecs int    `yaml:"lobby_timeout_secs" jsonschema:"minimum=1,default=120"`
}

// StorageConfig locates the session database.
type StorageConfig struct {
	Path string `yaml:"path" jsonschema:"description=SQLite database path; ~ expands to the home directory"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level string `yaml:"level" jsonschema:"enum=debug,enum=info,enum=warn,enum=error,default=info"`
}

// Local returns the local sync-test configuration.
func (c Config) Local() session.LocalConfig {
	return session.LocalConfig{
		NumParticipants: c.Session.NumParticipants,
		InputDelay:      c.Session.InputDelay,
		CheckDistance:   c.Session.CheckDistance,
		FPS:             c.Session.FPS,
	}
}

// Online returns an online configuration for the given roster.
func (c Config) Online(roster []session.Participant) session.OnlineConfig {
	return session.OnlineConfig{
		NumParticipants:     len(roster),
		Roster:              roster,
		InputDelay:          c.Session.InputDelay,
		MaxPredictionWindow: c.Session.MaxPredictionWindow,
		FPS:                 c.Session.FPS,
	}
}

// Validate reports the first invalid field as a
// *session.InvalidConfigurationError.
func (c Config) Validate() error {
	if err := c.Local().Validate(); err != nil {
		return err
	}
	if w := c.Session.MaxPredictionWindow; w < 1 || w > session.MaxWindow {
		return &session.InvalidConfigurationError{Field: "max_prediction_window", Reason: "out of range"}
	}
	if p := c.SSH.Port; p < 1 || p > 65535 {
		return &session.InvalidConfigurationError{Field: "ssh.port", Reason: "out of range"}
	}
	if c.SSH.LobbyTimeoutSecs < 1 {
		return &session.InvalidConfigurationError{Field: "ssh.lobby_timeout_secs", Reason: "must be positive"}
	}
	if c.Storage.Path == "" {
		return &session.InvalidConfigurationError{Field: "storage.path", Reason: "must not be empty"}
	}
	if _, err := log.ParseLevel(c.Log.Level); err != nil {
		return &session.InvalidConfigurationError{Field: "log.level", Reason: err.Error()}
	}
	return nil
}
