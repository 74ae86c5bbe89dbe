// Package config provides configuration management for boorukeeper.
package config

import (
	"fmt"
	"net/url"
	"time"

	"github.com/solatis/boorukeeper/internal/types"
)

// Config is the full runtime configuration.
type Config struct {
	Server    ServerConfig
	HTTP      HTTPConfig
	Selection SelectionConfig
	Backends  BackendsConfig
	TagSearch TagSearchConfig
	Database  DatabaseConfig
	Log       LogConfig
}

// ServerConfig holds configuration for the gRPC board service.
type ServerConfig struct {
	Host           string
	Port           int
	MaxConnections int
	RequestTimeout time.Duration
}

// HTTPConfig configures the backend fetcher.
type HTTPConfig struct {
	Timeout      time.Duration
	UserAgent    string
	CacheEntries int
	CacheTTL     time.Duration
}

// SelectionConfig is the default rating selection and media quality.
// An empty rating list means no filtering.
type SelectionConfig struct {
	Ratings types.RatingSet
	Quality types.Quality
}

// BackendsConfig points at extra backend documents. Dir may be empty.
type BackendsConfig struct {
	Dir string
}

// TagSearchConfig bounds tag scans and their memoization.
type TagSearchConfig struct {
	MaxPages    int
	MemoEntries int
	MemoTTL     time.Duration
}

// DatabaseConfig configures the optional entity store. An empty URL
// disables persistence.
type DatabaseConfig struct {
	URL string
}

// LogConfig selects the log handler.
type LogConfig struct {
	Level  string
	Format string
}

// DefaultUserAgent identifies boorukeeper to backends.
const DefaultUserAgent = "boorukeeper/0.1 (+https://github.com/solatis/boorukeeper)"

// DefaultConfig returns configuration with default values.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:           "0.0.0.0",
			Port:           50051,
			MaxConnections: 1000,
			RequestTimeout: 30 * time.Second,
		},
		HTTP: HTTPConfig{
			Timeout:      20 * time.Second,
			UserAgent:    DefaultUserAgent,
			CacheEntries: 256,
			CacheTTL:     2 * time.Minute,
		},
		Selection: SelectionConfig{
			Ratings: types.NewRatingSet(types.RatingGeneral),
			Quality: types.QualitySample,
		},
		TagSearch: TagSearchConfig{
			MaxPages:    10,
			MemoEntries: 1024,
			MemoTTL:     10 * time.Minute,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// ParseRatings converts rating names to a set. Unknown names are an error.
func ParseRatings(names []string) (types.RatingSet, error) {
	set := types.NewRatingSet()
	for _, name := range names {
		r, ok := types.ParseRating(name)
		if !ok {
			return nil, fmt.Errorf("unknown rating %q (expected one of %v)", name, types.AllRatings)
		}
		set[r] = struct{}{}
	}
	return set, nil
}

// hasPassword reports whether a database URL embeds a password.
func hasPassword(dbURL string) bool {
	u, err := url.Parse(dbURL)
	if err != nil || u.User == nil {
		return false
	}
	_, ok := u.User.Password()
	return ok
}
