package monitor

import "time"

type Status struct {
	Driver       string    `json:"driver"`
	Database     bool      `json:"database"`
	RedisEnabled bool      `json:"redis_enabled"`
	Redis        bool      `json:"redis"`
	Buffer       bool      `json:"buffer"`
	BufferSize   int       `json:"buffer_size"`
	LastCheck    time.Time `json:"last_check"`
}

// Healthy reports whether every configured dependency answered.
func (s Status) Healthy() bool {
	return s.Database && (!s.RedisEnabled || s.Redis)
}
