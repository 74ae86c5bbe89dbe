package config

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/solatis/boorukeeper/internal/types"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// FlagBinding maps a config key to a CLI flag. A flag only takes effect
// when it was set on the command line.
type FlagBinding struct {
	Key  string
	Flag *pflag.Flag
}

// LoadConfig loads configuration from file using viper.
// CLI flags > environment > config file > defaults precedence.
func LoadConfig(configPath string, flags ...FlagBinding) (*Config, error) {
	v := viper.New()

	// Set defaults matching DefaultConfig
	def := DefaultConfig()
	v.SetDefault("server.host", def.Server.Host)
	v.SetDefault("server.port", def.Server.Port)
	v.SetDefault("server.max_connections", def.Server.MaxConnections)
	v.SetDefault("server.request_timeout", def.Server.RequestTimeout.String())
	v.SetDefault("http.timeout", def.HTTP.Timeout.String())
	v.SetDefault("http.user_agent", def.HTTP.UserAgent)
	v.SetDefault("http.cache_entries", def.HTTP.CacheEntries)
	v.SetDefault("http.cache_ttl", def.HTTP.CacheTTL.String())
	v.SetDefault("selection.ratings", []string{string(types.RatingGeneral)})
	v.SetDefault("selection.quality", string(def.Selection.Quality))
	v.SetDefault("backends.dir", "")
	v.SetDefault("tagsearch.max_pages", def.TagSearch.MaxPages)
	v.SetDefault("tagsearch.memo_entries", def.TagSearch.MemoEntries)
	v.SetDefault("tagsearch.memo_ttl", def.TagSearch.MemoTTL.String())
	v.SetDefault("database.url", "")
	v.SetDefault("log.level", def.Log.Level)
	v.SetDefault("log.format", def.Log.Format)

	// Load config file if provided
	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// Runs before the environment is bound so only file values are seen.
	if err := validateNoSecretsInConfig(v); err != nil {
		return nil, err
	}

	// Bind environment variables with BK_ prefix
	v.SetEnvPrefix("BK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	for _, b := range flags {
		if b.Flag == nil {
			continue
		}
		if err := v.BindPFlag(b.Key, b.Flag); err != nil {
			return nil, fmt.Errorf("failed to bind flag %s: %w", b.Flag.Name, err)
		}
	}

	ratings, err := ParseRatings(splitList(v.GetStringSlice("selection.ratings")))
	if err != nil {
		return nil, fmt.Errorf("selection.ratings: %w", err)
	}
	quality, ok := types.ParseQuality(v.GetString("selection.quality"))
	if !ok {
		return nil, fmt.Errorf("selection.quality: unknown quality %q (expected one of %v)",
			v.GetString("selection.quality"), types.AllQualities)
	}

	cfg := &Config{
		Server: ServerConfig{
			Host:           v.GetString("server.host"),
			Port:           v.GetInt("server.port"),
			MaxConnections: v.GetInt("server.max_connections"),
			RequestTimeout: v.GetDuration("server.request_timeout"),
		},
		HTTP: HTTPConfig{
			Timeout:      v.GetDuration("http.timeout"),
			UserAgent:    v.GetString("http.user_agent"),
			CacheEntries: v.GetInt("http.cache_entries"),
			CacheTTL:     v.GetDuration("http.cache_ttl"),
		},
		Selection: SelectionConfig{
			Ratings: ratings,
			Quality: quality,
		},
		Backends: BackendsConfig{
			Dir: v.GetString("backends.dir"),
		},
		TagSearch: TagSearchConfig{
			MaxPages:    v.GetInt("tagsearch.max_pages"),
			MemoEntries: v.GetInt("tagsearch.memo_entries"),
			MemoTTL:     v.GetDuration("tagsearch.memo_ttl"),
		},
		Database: DatabaseConfig{
			URL: v.GetString("database.url"),
		},
		Log: LogConfig{
			Level:  strings.ToLower(v.GetString("log.level")),
			Format: strings.ToLower(v.GetString("log.format")),
		},
	}

	if err := validateConfig(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// validateConfig checks port range and positive limits and durations.
func validateConfig(cfg *Config) error {
	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", cfg.Server.Port)
	}
	if cfg.Server.MaxConnections <= 0 {
		return fmt.Errorf("max_connections must be positive, got %d", cfg.Server.MaxConnections)
	}
	if cfg.Server.RequestTimeout <= 0 {
		return fmt.Errorf("request_timeout must be positive, got %v", cfg.Server.RequestTimeout)
	}
	if cfg.HTTP.Timeout <= 0 {
		return fmt.Errorf("http.timeout must be positive, got %v", cfg.HTTP.Timeout)
	}
	if cfg.HTTP.UserAgent == "" {
		return fmt.Errorf("http.user_agent must not be empty")
	}
	if cfg.HTTP.CacheEntries <= 0 {
		return fmt.Errorf("http.cache_entries must be positive, got %d", cfg.HTTP.CacheEntries)
	}
	if cfg.HTTP.CacheTTL <= 0 {
		return fmt.Errorf("http.cache_ttl must be positive, got %v", cfg.HTTP.CacheTTL)
	}
	if cfg.TagSearch.MaxPages <= 0 {
		return fmt.Errorf("tagsearch.max_pages must be positive, got %d", cfg.TagSearch.MaxPages)
	}
	if cfg.TagSearch.MemoEntries <= 0 {
		return fmt.Errorf("tagsearch.memo_entries must be positive, got %d", cfg.TagSearch.MemoEntries)
	}
	if cfg.TagSearch.MemoTTL <= 0 {
		return fmt.Errorf("tagsearch.memo_ttl must be positive, got %v", cfg.TagSearch.MemoTTL)
	}
	switch cfg.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level must be one of debug, info, warn, error, got %q", cfg.Log.Level)
	}
	switch cfg.Log.Format {
	case "json", "text":
	default:
		return fmt.Errorf("log.format must be json or text, got %q", cfg.Log.Format)
	}
	if cfg.Database.URL != "" {
		u, err := url.Parse(cfg.Database.URL)
		if err != nil {
			return fmt.Errorf("database.url: %w", err)
		}
		if u.Scheme != "sqlite" && u.Scheme != "postgres" {
			return fmt.Errorf("database.url: unsupported scheme %q (expected sqlite or postgres)", u.Scheme)
		}
	}
	return nil
}

// validateNoSecretsInConfig enforces environment-only secrets (12-factor principle).
func validateNoSecretsInConfig(v *viper.Viper) error {
	if hasPassword(v.GetString("database.url")) {
		return fmt.Errorf("database credentials not allowed in config files (use BK_DATABASE_URL environment variable)")
	}
	return nil
}

// splitList accepts both YAML lists and comma separated env values.
func splitList(items []string) []string {
	var out []string
	for _, item := range items {
		for _, part := range strings.Split(item, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}
