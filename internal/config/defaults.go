package config

import (
	_ "embed"
)

//go:embed defaults/bomberboy.yaml
var defaultYAML []byte

// Default returns the built-in configuration. It matches the embedded
// defaults/bomberboy.yaml.
func Default() Config {
	return Config{
		Session: SessionConfig{
			FPS:                 60,
			InputDelay:          2,
			MaxPredictionWindow: 12,
			CheckDistance:       2,
			NumParticipants:     2,
		},
		Relay: RelayConfig{
			Listen: ":3536",
			URL:    "ws://127.0.0.1:3536",
		},
		SSH: SSHConfig{
			Host:             "0.0.0.0",
			Port:             2222,
			HostKeyPath:      ".ssh/bomberboy_ed25519",
			LobbyTimeoutSecs: 120,
		},
		Storage: StorageConfig{
			Path: "~/.bomberboy/bomberboy.db",
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// DefaultYAML returns the embedded default file.
func DefaultYAML() []byte {
	return defaultYAML
}
