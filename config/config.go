package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

type Config struct {
	ListenAddress string    `toml:"ListenAddress"`
	DataDir       string    `toml:"DataDir"`
	GenesisFile   string    `toml:"GenesisFile"`
	Environment   string    `toml:"Environment"`
	Log           Log       `toml:"log"`
	Gateway       Gateway   `toml:"gateway"`
	Indexer       Indexer   `toml:"indexer"`
	Telemetry     Telemetry `toml:"telemetry"`
}

// Load loads the configuration from the given path, writing the defaults
// there first when the file does not exist.
func Load(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}

	cfg := Default()
	meta, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, err
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("config file %s has unknown key %s", path, undecoded[0])
	}
	cfg.normalize(filepath.Dir(path))
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config file %s: %w", path, err)
	}
	return cfg, nil
}

// Default returns the configuration written on first start.
func Default() *Config {
	return &Config{
		ListenAddress: "127.0.0.1:8547",
		DataDir:       "./cdp-data",
		GenesisFile:   "genesis.yaml",
		Environment:   "local",
		Log: Log{
			Level:      "info",
			MaxSizeMB:  100,
			MaxBackups: 5,
			MaxAgeDays: 14,
		},
		Gateway: Gateway{
			Auth: Auth{
				HMACSecretEnv:    "CDP_GATEWAY_SECRET",
				ClockSkewSeconds: 120,
			},
			Reads:               RateLimit{RequestsPerMinute: 600, Burst: 60},
			Writes:              RateLimit{RequestsPerMinute: 60, Burst: 10},
			AllowedOrigins:      []string{},
			ReadTimeoutSeconds:  15,
			WriteTimeoutSeconds: 30,
		},
		Indexer: Indexer{
			Enabled: true,
			Driver:  "sqlite",
			DSN:     "events.db",
		},
		Telemetry: Telemetry{
			SampleRatio:           1,
			MetricIntervalSeconds: 15,
		},
	}
}

func (c *Config) normalize(baseDir string) {
	c.ListenAddress = strings.TrimSpace(c.ListenAddress)
	c.Environment = strings.TrimSpace(c.Environment)
	if c.Environment == "" {
		c.Environment = "local"
	}
	if c.GenesisFile != "" && !filepath.IsAbs(c.GenesisFile) && baseDir != "" {
		c.GenesisFile = filepath.Join(baseDir, c.GenesisFile)
	}
	c.Indexer.Driver = strings.ToLower(strings.TrimSpace(c.Indexer.Driver))
	if c.Indexer.Driver == "" {
		c.Indexer.Driver = "sqlite"
	}
	// A relative sqlite path lives in the data directory.
	if c.Indexer.Driver == "sqlite" && c.Indexer.DSN != "" && !filepath.IsAbs(c.Indexer.DSN) && !strings.HasPrefix(c.Indexer.DSN, "file:") {
		c.Indexer.DSN = filepath.Join(c.DataDir, c.Indexer.DSN)
	}
	if c.Gateway.AllowedOrigins == nil {
		c.Gateway.AllowedOrigins = []string{}
	}
}

// StateDir is where the LevelDB state lives.
func (c *Config) StateDir() string {
	return filepath.Join(c.DataDir, "state")
}

// ReadTimeout and WriteTimeout bound the gateway's HTTP server.
func (c *Config) ReadTimeout() time.Duration {
	return time.Duration(c.Gateway.ReadTimeoutSeconds) * time.Second
}

func (c *Config) WriteTimeout() time.Duration {
	return time.Duration(c.Gateway.WriteTimeoutSeconds) * time.Second
}

// HMACSecret resolves the gateway token secret.
func (a Auth) HMACSecret() (string, error) {
	if env := strings.TrimSpace(a.HMACSecretEnv); env != "" {
		if v := strings.TrimSpace(os.Getenv(env)); v != "" {
			return v, nil
		}
	}
	if path := strings.TrimSpace(a.HMACSecretFile); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return "", fmt.Errorf("read gateway secret: %w", err)
		}
		if v := strings.TrimSpace(string(data)); v != "" {
			return v, nil
		}
	}
	return "", fmt.Errorf("gateway auth enabled but no secret in $%s or %q", a.HMACSecretEnv, a.HMACSecretFile)
}

// createDefault creates and saves a default configuration file.
func createDefault(path string) (*Config, error) {
	cfg := Default()
	if err := persist(path, cfg); err != nil {
		return nil, err
	}
	cfg.normalize(filepath.Dir(path))
	return cfg, nil
}

func persist(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(cfg)
}
