package config

import (
	"fmt"
	"net"
	"strings"
)

// Validate rejects configurations the daemon cannot start with.
func (c *Config) Validate() error {
	if _, _, err := net.SplitHostPort(c.ListenAddress); err != nil {
		return fmt.Errorf("ListenAddress: %w", err)
	}
	if strings.TrimSpace(c.DataDir) == "" {
		return fmt.Errorf("DataDir must be set")
	}
	if strings.TrimSpace(c.GenesisFile) == "" {
		return fmt.Errorf("GenesisFile must be set")
	}
	for name, limit := range map[string]RateLimit{"reads": c.Gateway.Reads, "writes": c.Gateway.Writes} {
		if limit.RequestsPerMinute < 0 || limit.Burst < 0 {
			return fmt.Errorf("gateway.%s: limits must not be negative", name)
		}
	}
	if c.Gateway.Auth.ClockSkewSeconds < 0 {
		return fmt.Errorf("gateway.auth: ClockSkewSeconds must not be negative")
	}
	if c.Indexer.Enabled {
		switch c.Indexer.Driver {
		case "sqlite", "postgres":
		default:
			return fmt.Errorf("indexer: unsupported driver %q", c.Indexer.Driver)
		}
		if strings.TrimSpace(c.Indexer.DSN) == "" {
			return fmt.Errorf("indexer: DSN must be set")
		}
	}
	if r := c.Telemetry.SampleRatio; r < 0 || r > 1 {
		return fmt.Errorf("telemetry: SampleRatio must be within [0, 1]")
	}
	return nil
}
