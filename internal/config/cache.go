package config

import (
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// CacheConfig defines settings for the response cache middleware.
// When Enabled is false or no Redis client is configured, caching is
// disabled.  Only the routes the router opts in are cached at all.
type CacheConfig struct {
	Enabled      bool          `env:"CACHE_ENABLED" envDefault:"true"`
	RawMethods   []string      `env:"CACHE_METHODS" envDefault:"GET" envSeparator:","`
	TTL          time.Duration `env:"CACHE_TTL" envDefault:"30s"`
	KeyStrategy  string        `env:"CACHE_KEY_STRATEGY" envDefault:"route_query"`
	Prefix       string        `env:"CACHE_PREFIX" envDefault:"cache"`
	MaxBodyBytes int           `env:"CACHE_MAX_BODY_BYTES" envDefault:"1048576"`

	Methods map[string]bool
}

// LoadCacheConfig reads CACHE_* into a CacheConfig.  Methods are upper-cased.
func LoadCacheConfig() CacheConfig {
	c, err := env.ParseAs[CacheConfig]()
	if err != nil {
		c = CacheConfig{
			Enabled:      true,
			RawMethods:   []string{"GET"},
			TTL:          30 * time.Second,
			KeyStrategy:  "route_query",
			Prefix:       "cache",
			MaxBodyBytes: 1 << 20,
		}
	}
	c.Methods = parseMethods(c.RawMethods)
	if c.TTL <= 0 {
		c.TTL = time.Second
	}
	return c
}

func parseMethods(raw []string) map[string]bool {
	m := map[string]bool{}
	for _, p := range raw {
		p = strings.TrimSpace(strings.ToUpper(p))
		if p != "" {
			m[p] = true
		}
	}
	return m
}
