package config

// Config is the on-disk configuration. JSON and YAML share this shape.
//
// All durations are Go duration strings (e.g. "500ms", "10s", "1m").
type Config struct {
	Logging  LoggingConfig  `json:"logging"`
	Platform PlatformConfig `json:"platform"`
	Delivery DeliveryConfig `json:"delivery"`
	Metrics  MetricsConfig  `json:"metrics"`
	Storage  StorageConfig  `json:"storage"`

	// Schedule is an optional cron expression ("0 18 * * 5", "@daily").
	// When set the run waits for the next activation, then runs once.
	Schedule string `json:"schedule,omitempty"`

	Servers []ServerConfig `json:"servers"`
}

// ServerConfig is one delivery target: a bot token, the community to
// enumerate and the message every member receives.
type ServerConfig struct {
	Name    string `json:"name,omitempty"`
	Token   string `json:"token"`
	GuildID string `json:"guild_id"`
	Message string `json:"message"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

type PlatformConfig struct {
	// ConnectTimeout bounds the wait for the gateway to report ready.
	// Default: "30s".
	ConnectTimeout string `json:"connect_timeout,omitempty"`
}

// DeliveryConfig controls pacing between direct messages.
//
// Defaults (when fields are omitted/zero):
//   - base_delay: "5s"
//   - jitter: "5s" (uniform in [0, jitter))
//   - rate_limit_wait: "60s"
//   - rate_limit_retries: 0 (move on to the next member)
//   - max_sends_per_sec: 1 (an explicit 0 disables the limiter)
type DeliveryConfig struct {
	BaseDelay        string   `json:"base_delay,omitempty"`
	Jitter           string   `json:"jitter,omitempty"`
	RateLimitWait    string   `json:"rate_limit_wait,omitempty"`
	RateLimitRetries int      `json:"rate_limit_retries,omitempty"`
	MaxSendsPerSec   *float64 `json:"max_sends_per_sec,omitempty"`
}

// MetricsConfig controls the optional Prometheus endpoint.
//
// Prefer binding to localhost (e.g. "127.0.0.1:9464").
type MetricsConfig struct {
	Enabled bool   `json:"enabled"`
	Addr    string `json:"addr,omitempty"` // default: "127.0.0.1:9464"
	Path    string `json:"path,omitempty"` // default: "/metrics"
	// Pprof mounts /debug/pprof/ on the same listener.
	Pprof bool `json:"pprof,omitempty"`
}

// StorageConfig controls where final run summaries go.
//
// Example:
//
//	"storage": { "driver": "file", "path": "./dmrelay_store" }
type StorageConfig struct {
	Driver      string `json:"driver,omitempty"` // none | file | sqlite
	Path        string `json:"path,omitempty"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // sqlite only
}
