package commands

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

const envPrefix = "SIMPLEDAO"

// Config contains the CLI configuration. Values come from SIMPLEDAO_*
// environment variables, optionally loaded from a .env file, and are
// overridden by flags.
type Config struct {
	RPCURL      string `envconfig:"RPC_URL" default:"https://rpc.sepolia.org"`
	BridgeURL   string `envconfig:"BRIDGE_URL"`
	KeystoreDir string `envconfig:"KEYSTORE_DIR"`
	Account     string `envconfig:"ACCOUNT"`
	LogDir      string `envconfig:"LOG_DIR"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`
}

// loadConfig reads envFile, if present, and processes the environment.
// A missing file is only an error when it was asked for explicitly.
func loadConfig(envFile string, explicit bool) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			if explicit || !errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("load env (%s): %w", envFile, err)
			}
		}
	}

	cfg := &Config{}
	if err := envconfig.Process(envPrefix, cfg); err != nil {
		return nil, fmt.Errorf("failed to process config: %w", err)
	}

	if cfg.KeystoreDir == "" {
		dir, err := os.UserHomeDir()
		if err != nil {
			return nil, err
		}
		cfg.KeystoreDir = filepath.Join(dir, ".simpledao", "keystore")
	}
	return cfg, nil
}
