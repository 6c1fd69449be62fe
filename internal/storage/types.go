package storage

import (
	"errors"
	"time"
)

var ErrDisabled = errors.New("storage disabled")

// Config configures storage. Empty Driver or "none" disables it.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// Summary is the final record of one session. Keep it compact and
// schema-stable.
type Summary struct {
	At          time.Time `json:"at"`
	RunID       string    `json:"run_id"`
	Target      string    `json:"target"`
	GuildID     string    `json:"guild_id"`
	Community   string    `json:"community,omitempty"`
	Result      string    `json:"result"`
	Total       int       `json:"total"`
	Success     int       `json:"success"`
	Failed      int       `json:"failed"`
	RateLimited int       `json:"rate_limited"`
	DMClosed    int       `json:"dm_closed"`
	Error       string    `json:"error,omitempty"`
	TookMS      int64     `json:"took_ms"`
}
