package config

// Log controls the daemon's structured logs.
type Log struct {
	Level string `toml:"Level"`
	// File enables a rotated copy of the log stream when set.
	File       string `toml:"File"`
	MaxSizeMB  int    `toml:"MaxSizeMB"`
	MaxBackups int    `toml:"MaxBackups"`
	MaxAgeDays int    `toml:"MaxAgeDays"`
	Compress   bool   `toml:"Compress"`
}

// Auth configures bearer token checks on the write routes.
type Auth struct {
	Enabled bool `toml:"Enabled"`
	// The HMAC secret is read from HMACSecretEnv, then HMACSecretFile.
	HMACSecretEnv    string `toml:"HMACSecretEnv"`
	HMACSecretFile   string `toml:"HMACSecretFile"`
	Issuer           string `toml:"Issuer"`
	Audience         string `toml:"Audience"`
	ClockSkewSeconds int    `toml:"ClockSkewSeconds"`
}

// RateLimit is a per client token bucket.
type RateLimit struct {
	RequestsPerMinute float64 `toml:"RequestsPerMinute"`
	Burst             int     `toml:"Burst"`
}

type Gateway struct {
	Auth Auth `toml:"auth"`

	// AllowUnauthenticatedWrites accepts transactions while auth is
	// disabled. The sender of such a transaction is whatever the body says.
	AllowUnauthenticatedWrites bool `toml:"AllowUnauthenticatedWrites"`

	Reads               RateLimit `toml:"reads"`
	Writes              RateLimit `toml:"writes"`
	AllowedOrigins      []string  `toml:"AllowedOrigins"`
	ReadTimeoutSeconds  int       `toml:"ReadTimeoutSeconds"`
	WriteTimeoutSeconds int       `toml:"WriteTimeoutSeconds"`
}

// Indexer selects the event index database.
type Indexer struct {
	Enabled bool   `toml:"Enabled"`
	Driver  string `toml:"Driver"`
	DSN     string `toml:"DSN"`
}

// Telemetry configures the OTLP exporters. An empty endpoint disables them.
type Telemetry struct {
	Endpoint              string  `toml:"Endpoint"`
	Insecure              bool    `toml:"Insecure"`
	Headers               string  `toml:"Headers"`
	SampleRatio           float64 `toml:"SampleRatio"`
	MetricIntervalSeconds int     `toml:"MetricIntervalSeconds"`
}
