package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"
)

// Config carries every runtime knob, all driven by PASSAGE_* environment
// variables. An empty PGDSN selects the in-memory store (development only).
type Config struct {
	Addr  string
	PGDSN string

	AccessSecret  string
	RefreshSecret string
	TokenIssuer   string
	TokenAudience string
	AccessTTL     time.Duration
	RefreshTTL    time.Duration

	GoogleClientID     string
	GoogleClientSecret string
	GoogleRedirectURL  string

	RateBurst  int
	RatePerSec int
}

func getenv(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func getduration(key string, def time.Duration) (time.Duration, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("invalid %s: must be positive", key)
	}
	return d, nil
}

// Load reads configuration from the environment.
func Load() (*Config, error) {
	c := &Config{
		Addr:               getenv("PASSAGE_ADDR", ":8080"),
		PGDSN:              getenv("PASSAGE_PG_DSN", ""),
		AccessSecret:       getenv("PASSAGE_ACCESS_SECRET", ""),
		RefreshSecret:      getenv("PASSAGE_REFRESH_SECRET", ""),
		TokenIssuer:        getenv("PASSAGE_TOKEN_ISSUER", "passage"),
		TokenAudience:      getenv("PASSAGE_TOKEN_AUDIENCE", "passage-api"),
		GoogleClientID:     getenv("PASSAGE_GOOGLE_CLIENT_ID", ""),
		GoogleClientSecret: getenv("PASSAGE_GOOGLE_CLIENT_SECRET", ""),
		GoogleRedirectURL:  getenv("PASSAGE_GOOGLE_REDIRECT_URL", ""),
		RateBurst:          20,
		RatePerSec:         10,
	}

	var err error
	if c.AccessTTL, err = getduration("PASSAGE_ACCESS_TTL", 15*time.Minute); err != nil {
		return nil, err
	}
	if c.RefreshTTL, err = getduration("PASSAGE_REFRESH_TTL", 7*24*time.Hour); err != nil {
		return nil, err
	}

	if c.AccessSecret == "" || c.RefreshSecret == "" {
		return nil, errors.New("PASSAGE_ACCESS_SECRET and PASSAGE_REFRESH_SECRET must be set")
	}
	if c.AccessSecret == c.RefreshSecret {
		return nil, errors.New("PASSAGE_ACCESS_SECRET and PASSAGE_REFRESH_SECRET must differ")
	}

	if c.GoogleEnabled() && c.GoogleRedirectURL == "" {
		return nil, errors.New("PASSAGE_GOOGLE_REDIRECT_URL must be set when Google auth is configured")
	}

	return c, nil
}

// GoogleEnabled reports whether the Google federation path is configured.
func (c *Config) GoogleEnabled() bool {
	return c.GoogleClientID != "" && c.GoogleClientSecret != ""
}
