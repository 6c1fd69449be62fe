package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	logx "dmrelay/pkg/logx"
)

// Validate checks every field and returns all problems joined.
func (c *Config) Validate() error {
	var errs []error

	if lvl := strings.TrimSpace(c.Logging.Level); lvl != "" {
		if _, ok := logx.ParseLevel(lvl); !ok {
			errs = append(errs, fmt.Errorf("logging.level: unknown level %q", lvl))
		}
	}
	if _, err := c.Platform.Timeout(); err != nil {
		errs = append(errs, err)
	}
	if _, err := c.Delivery.Durations(); err != nil {
		errs = append(errs, err)
	}
	if c.Delivery.RateLimitRetries < 0 {
		errs = append(errs, errors.New("delivery.rate_limit_retries: must be >= 0"))
	}
	if c.Delivery.MaxSendsPerSec != nil && *c.Delivery.MaxSendsPerSec < 0 {
		errs = append(errs, errors.New("delivery.max_sends_per_sec: must be >= 0"))
	}
	switch strings.ToLower(strings.TrimSpace(c.Storage.Driver)) {
	case "", "none":
	case "file", "sqlite", "sqlite3":
		if strings.TrimSpace(c.Storage.Path) == "" {
			errs = append(errs, errors.New("storage.path: required for driver "+c.Storage.Driver))
		}
	default:
		errs = append(errs, fmt.Errorf("storage.driver: unknown driver %q", c.Storage.Driver))
	}
	if _, err := ParseDurationField("storage.busy_timeout", c.Storage.BusyTimeout); err != nil {
		errs = append(errs, err)
	}

	for i, s := range c.Servers {
		p := fmt.Sprintf("servers[%d]", i)
		if strings.TrimSpace(s.Token) == "" {
			errs = append(errs, fmt.Errorf("%s.token: required (or set %s)", p, EnvToken))
		}
		if strings.TrimSpace(s.GuildID) == "" {
			errs = append(errs, fmt.Errorf("%s.guild_id: required", p))
		}
		if strings.TrimSpace(s.Message) == "" {
			errs = append(errs, fmt.Errorf("%s.message: required", p))
		}
	}
	return errors.Join(errs...)
}

// Timeout returns the gateway ready timeout.
func (p PlatformConfig) Timeout() (time.Duration, error) {
	return ParseDurationOrDefault("platform.connect_timeout", p.ConnectTimeout, 30*time.Second)
}

// Delays is the parsed pacing policy.
type Delays struct {
	Base          time.Duration
	Jitter        time.Duration
	RateLimitWait time.Duration
}

func (d DeliveryConfig) Durations() (Delays, error) {
	var (
		out Delays
		err error
	)
	if out.Base, err = ParseDurationOrDefault("delivery.base_delay", d.BaseDelay, 5*time.Second); err != nil {
		return Delays{}, err
	}
	if out.Jitter, err = ParseDurationOrDefault("delivery.jitter", d.Jitter, 5*time.Second); err != nil {
		return Delays{}, err
	}
	if out.RateLimitWait, err = ParseDurationOrDefault("delivery.rate_limit_wait", d.RateLimitWait, 60*time.Second); err != nil {
		return Delays{}, err
	}
	return out, nil
}

// SendsPerSec returns the send floor limiter rate. Unset means 1/s; 0 turns
// the limiter off.
func (d DeliveryConfig) SendsPerSec() float64 {
	if d.MaxSendsPerSec == nil {
		return 1
	}
	return *d.MaxSendsPerSec
}

// Endpoint returns the listen address and path with defaults applied.
func (m MetricsConfig) Endpoint() (addr, path string) {
	addr = strings.TrimSpace(m.Addr)
	if addr == "" {
		addr = "127.0.0.1:9464"
	}
	path = strings.TrimSpace(m.Path)
	if path == "" {
		path = "/metrics"
	}
	return addr, path
}
