package llm

import (
	"context"
	"errors"
	"time"
)

// Priority levels (just 2)
type Priority int

const (
	PriorityCritical   Priority = 0 // API requests
	PriorityBackground Priority = 1 // Scheduled work such as the email watcher
)

func (p Priority) String() string {
	if p == PriorityCritical {
		return "critical"
	}
	return "background"
}

var (
	ErrQueueFull   = errors.New("llm queue full")
	ErrStopped     = errors.New("llm queue stopped")
	ErrEmptyOutput = errors.New("model returned no text")
)

// Completer produces a completion for a single prompt.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// CompleterFunc adapts a function to Completer.
type CompleterFunc func(ctx context.Context, prompt string) (string, error)

func (f CompleterFunc) Complete(ctx context.Context, prompt string) (string, error) {
	return f(ctx, prompt)
}

// Request is one unit of queued work.
type Request struct {
	ID       string
	Priority Priority
	Context  context.Context
	Run      func(ctx context.Context) (string, error)

	resultCh   chan result
	SubmitTime time.Time
	Timeout    time.Duration
}

type result struct {
	text string
	err  error
}

// Metrics tracks queue performance
type Metrics struct {
	CriticalEnqueued    int64            `json:"critical_enqueued"`
	CriticalProcessed   int64            `json:"critical_processed"`
	CriticalDropped     int64            `json:"critical_dropped"`
	BackgroundEnqueued  int64            `json:"background_enqueued"`
	BackgroundProcessed int64            `json:"background_processed"`
	BackgroundDropped   int64            `json:"background_dropped"`
	CurrentQueueDepth   map[Priority]int `json:"current_queue_depth"`
	BreakerState        string           `json:"breaker_state,omitempty"`
}
