package llm

import (
	"time"

	"go-autoagent/internal/config"
)

// Config controls queue behavior
type Config struct {
	MaxConcurrent int

	CriticalQueueSize   int
	BackgroundQueueSize int

	CriticalTimeout   time.Duration
	BackgroundTimeout time.Duration
}

// DefaultConfig returns sensible defaults
func DefaultConfig() *Config {
	return &Config{
		MaxConcurrent:       2,
		CriticalQueueSize:   20,
		BackgroundQueueSize: 100,
		CriticalTimeout:     120 * time.Second,
		BackgroundTimeout:   360 * time.Second,
	}
}

// ConfigFrom maps the file configuration onto queue settings.
func ConfigFrom(c config.LLMConfig) *Config {
	qc := DefaultConfig()
	if c.Queue.MaxConcurrent > 0 {
		qc.MaxConcurrent = c.Queue.MaxConcurrent
	}
	if c.Queue.CriticalQueueSize > 0 {
		qc.CriticalQueueSize = c.Queue.CriticalQueueSize
	}
	if c.Queue.BackgroundQueueSize > 0 {
		qc.BackgroundQueueSize = c.Queue.BackgroundQueueSize
	}
	if c.Timeout > 0 {
		qc.CriticalTimeout = c.Timeout.Std()
		qc.BackgroundTimeout = 3 * c.Timeout.Std()
	}
	return qc
}
