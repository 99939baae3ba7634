package backend

import (
	"errors"
	"strings"
	"time"
)

// BreakerConfig controls the circuit breaker guarding backend calls.
type BreakerConfig struct {
	Enabled          bool          `mapstructure:"enabled"`
	MaxRequests      uint32        `mapstructure:"maxRequests"`
	Interval         time.Duration `mapstructure:"interval"`
	Timeout          time.Duration `mapstructure:"timeout"`
	MinRequests      uint32        `mapstructure:"minRequests"`
	FailureThreshold float64       `mapstructure:"failureThreshold"`
}

// Config contains backend client settings.
type Config struct {
	BaseURL       string        `mapstructure:"url"`
	Authorization string        `mapstructure:"authorization"`
	Timeout       time.Duration `mapstructure:"timeout"`
	RateLimit     float64       `mapstructure:"rateLimit"`
	RateBurst     int           `mapstructure:"rateBurst"`
	Breaker       BreakerConfig `mapstructure:"circuitBreaker"`
}

// ApplyDefaults fills unset fields.
func (c *Config) ApplyDefaults() {
	c.BaseURL = strings.TrimRight(strings.TrimSpace(c.BaseURL), "/")
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
	if c.RateLimit <= 0 {
		c.RateLimit = 5
	}
	if c.RateBurst <= 0 {
		c.RateBurst = 10
	}
	if c.Breaker.MaxRequests == 0 {
		c.Breaker.MaxRequests = 1
	}
	if c.Breaker.Interval <= 0 {
		c.Breaker.Interval = time.Minute
	}
	if c.Breaker.Timeout <= 0 {
		c.Breaker.Timeout = 30 * time.Second
	}
	if c.Breaker.MinRequests == 0 {
		c.Breaker.MinRequests = 5
	}
	if c.Breaker.FailureThreshold <= 0 || c.Breaker.FailureThreshold > 1 {
		c.Breaker.FailureThreshold = 0.6
	}
}

// Validate checks the configuration after defaults were applied.
func (c *Config) Validate() error {
	if c.BaseURL == "" {
		return errors.New("backend url is not configured")
	}
	if !strings.HasPrefix(c.BaseURL, "http://") && !strings.HasPrefix(c.BaseURL, "https://") {
		return errors.New("backend url must start with http:// or https://")
	}
	return nil
}
