package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/triage-ai/errgate/internal/gate"
)

type Config struct {
	HTTPPort      string        // ERRGATE_HTTP_PORT (default "8080")
	LogLevel      string        // ERRGATE_LOG_LEVEL (default "info")
	PostgresDSN   string        // POSTGRES_DSN (required by the server)
	ClickHouseDSN string        // CLICKHOUSE_DSN (optional, empty = log writer)
	NATSURL       string        // NATS_URL (optional, empty = no publishing)
	NATSSubject   string        // ERRGATE_NATS_SUBJECT (default "errgate.events.forwarded")
	AuthCacheTTL  time.Duration // ERRGATE_AUTH_CACHE_TTL_S (default 30)
	ConfigFile    string        // ERRGATE_CONFIG_FILE (optional TOML overlay)

	// Gate defaults, applied to every project before its stored settings.
	Gate gate.Config
}

// File is the TOML overlay. Only keys present in the file override the
// built-in gate defaults.
type File struct {
	Gate struct {
		ThrottleInterval *Duration `toml:"throttle_interval"`
		IgnoredPrefixes  []string  `toml:"ignored_prefixes"`
		MaxTraceLines    *int      `toml:"max_trace_lines"`
	} `toml:"gate"`
}

// Duration decodes TOML strings such as "750ms" or "2s".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

// Load reads configuration from the environment. Gate defaults start from
// gate.DefaultConfig, then the TOML file named by ERRGATE_CONFIG_FILE, then
// the ERRGATE_* gate variables; a variable that is set wins over the file.
func Load() (*Config, error) {
	c := &Config{
		HTTPPort:      envOrDefault("ERRGATE_HTTP_PORT", "8080"),
		LogLevel:      envOrDefault("ERRGATE_LOG_LEVEL", "info"),
		PostgresDSN:   os.Getenv("POSTGRES_DSN"),
		ClickHouseDSN: os.Getenv("CLICKHOUSE_DSN"),
		NATSURL:       os.Getenv("NATS_URL"),
		NATSSubject:   envOrDefault("ERRGATE_NATS_SUBJECT", "errgate.events.forwarded"),
		ConfigFile:    os.Getenv("ERRGATE_CONFIG_FILE"),
		Gate:          gate.DefaultConfig(),
	}

	ttl, err := envInt("ERRGATE_AUTH_CACHE_TTL_S", 30)
	if err != nil {
		return nil, err
	}
	c.AuthCacheTTL = time.Duration(ttl) * time.Second

	if c.ConfigFile != "" {
		if err := ApplyFile(c.ConfigFile, &c.Gate); err != nil {
			return nil, err
		}
	}

	if v := os.Getenv("ERRGATE_THROTTLE_INTERVAL"); v != "" {
		interval, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("ERRGATE_THROTTLE_INTERVAL: %w", err)
		}
		c.Gate.ThrottleInterval = interval
	}
	maxLines, err := envInt("ERRGATE_MAX_TRACE_LINES", c.Gate.MaxTraceLines)
	if err != nil {
		return nil, err
	}
	c.Gate.MaxTraceLines = maxLines
	if v := os.Getenv("ERRGATE_IGNORED_PREFIXES"); v != "" {
		c.Gate.IgnoredPrefixes = SplitList(v)
	}

	return c, nil
}

// ApplyFile decodes a TOML file and overlays its [gate] section onto cfg.
func ApplyFile(path string, cfg *gate.Config) error {
	var f File
	if _, err := toml.DecodeFile(path, &f); err != nil {
		return fmt.Errorf("config file %s: %w", path, err)
	}
	if f.Gate.ThrottleInterval != nil {
		cfg.ThrottleInterval = f.Gate.ThrottleInterval.Duration
	}
	if f.Gate.IgnoredPrefixes != nil {
		cfg.IgnoredPrefixes = f.Gate.IgnoredPrefixes
	}
	if f.Gate.MaxTraceLines != nil {
		cfg.MaxTraceLines = *f.Gate.MaxTraceLines
	}
	return nil
}

// SplitList splits a comma-separated list, dropping empty entries.
func SplitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return i, nil
}
