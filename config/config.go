package config

import (
	"os"

	"github.com/BurntSushi/toml"
)

// Config is the node's on-disk configuration, TOML-encoded like the
// teacher's. A fresh keystore is minted on first run rather than a bare hex
// key, so ValidatorKey is gone in favor of KeystorePath/KeystorePassphraseEnv.
type Config struct {
	ListenAddress          string   `toml:"ListenAddress"`
	RPCAddress             string   `toml:"RPCAddress"`
	DataDir                string   `toml:"DataDir"`
	KeystorePath           string   `toml:"KeystorePath"`
	KeystorePassphraseEnv  string   `toml:"KeystorePassphraseEnv"`
	GovernanceSubjectID    string   `toml:"GovernanceSubjectID"`
	BootstrapPeers         []string `toml:"BootstrapPeers"`
	MessageTaskTimeoutMS   int64    `toml:"MessageTaskTimeoutMS"`
	MessageTaskReplication float64  `toml:"MessageTaskReplication"`
	MessageTaskRetries     uint32   `toml:"MessageTaskRetries"`
	TelemetryEndpoint      string   `toml:"TelemetryEndpoint"`
	TelemetryInsecure      bool     `toml:"TelemetryInsecure"`
}

// Load reads the configuration at path, writing out a fresh default file
// (with a fresh keystore path, not yet populated with a key) if none exists.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}

	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func createDefault(path string) (*Config, error) {
	cfg := &Config{
		ListenAddress:          ":6001",
		RPCAddress:             ":8080",
		DataDir:                "./taple-data",
		KeystorePath:           "./taple-data/keystore",
		KeystorePassphraseEnv:  "TAPLE_KEYSTORE_PASSPHRASE",
		BootstrapPeers:         []string{},
		MessageTaskTimeoutMS:   10000,
		MessageTaskReplication: 0.25,
		MessageTaskRetries:     10,
		TelemetryEndpoint:      "",
		TelemetryInsecure:      true,
	}

	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	if err := toml.NewEncoder(f).Encode(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}
