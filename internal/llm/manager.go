package llm

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"go-autoagent/internal/logging"
)

// Manager coordinates all completion calls: two priority queues, a
// concurrency limit and an optional circuit breaker.
type Manager struct {
	criticalQueue   chan *Request
	backgroundQueue chan *Request

	semaphore chan struct{}
	breaker   *CircuitBreaker

	mu      sync.RWMutex
	metrics Metrics
	stopped bool

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	config *Config
	log    *slog.Logger
}

// NewManager starts the dispatcher. breaker may be nil.
func NewManager(config *Config, breaker *CircuitBreaker, logger *slog.Logger) *Manager {
	if config == nil {
		config = DefaultConfig()
	}
	m := &Manager{
		criticalQueue:   make(chan *Request, config.CriticalQueueSize),
		backgroundQueue: make(chan *Request, config.BackgroundQueueSize),
		semaphore:       make(chan struct{}, config.MaxConcurrent),
		breaker:         breaker,
		metrics: Metrics{
			CurrentQueueDepth: map[Priority]int{
				PriorityCritical:   0,
				PriorityBackground: 0,
			},
		},
		stopCh: make(chan struct{}),
		config: config,
		log:    logging.Component(logger, "llm-queue"),
	}

	m.wg.Add(1)
	go m.dispatcher()

	m.log.Info("queue started", "slots", config.MaxConcurrent)
	return m
}

// Do queues fn at the given priority and waits for its result.
func (m *Manager) Do(ctx context.Context, p Priority, fn func(ctx context.Context) (string, error)) (string, error) {
	timeout := m.config.CriticalTimeout
	if p == PriorityBackground {
		timeout = m.config.BackgroundTimeout
	}
	req := &Request{
		ID:         uuid.NewString(),
		Priority:   p,
		Context:    ctx,
		Run:        fn,
		resultCh:   make(chan result, 1),
		SubmitTime: time.Now(),
		Timeout:    timeout,
	}
	if err := m.Submit(req); err != nil {
		return "", err
	}
	select {
	case r := <-req.resultCh:
		return r.text, r.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// Submit adds a request to the queue without blocking; a full queue drops it.
func (m *Manager) Submit(req *Request) error {
	if req.resultCh == nil {
		req.resultCh = make(chan result, 1)
	}
	queue := m.backgroundQueue
	if req.Priority == PriorityCritical {
		queue = m.criticalQueue
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stopped {
		return ErrStopped
	}
	if req.Priority == PriorityCritical {
		m.metrics.CriticalEnqueued++
	} else {
		m.metrics.BackgroundEnqueued++
	}

	select {
	case queue <- req:
		return nil
	default:
		if req.Priority == PriorityCritical {
			m.metrics.CriticalDropped++
		} else {
			m.metrics.BackgroundDropped++
		}
		m.log.Warn("queue full, dropping request", "priority", req.Priority, "id", req.ID)
		return ErrQueueFull
	}
}

// next prefers critical work whenever any is waiting.
func (m *Manager) next() (*Request, bool) {
	select {
	case req := <-m.criticalQueue:
		return req, true
	default:
	}
	select {
	case <-m.stopCh:
		return nil, false
	case req := <-m.criticalQueue:
		return req, true
	case req := <-m.backgroundQueue:
		return req, true
	}
}

func (m *Manager) dispatcher() {
	defer m.wg.Done()
	for {
		// Take a slot first so requests wait in their queues, where a late
		// critical request can still overtake queued background work.
		select {
		case <-m.stopCh:
			return
		case m.semaphore <- struct{}{}:
		}

		req, ok := m.next()
		if !ok {
			<-m.semaphore
			return
		}

		m.wg.Add(1)
		go m.processRequest(req)
	}
}

func (m *Manager) processRequest(req *Request) {
	defer func() {
		<-m.semaphore
		m.wg.Done()

		m.mu.Lock()
		if req.Priority == PriorityCritical {
			m.metrics.CriticalProcessed++
		} else {
			m.metrics.BackgroundProcessed++
		}
		m.mu.Unlock()
	}()

	if err := req.Context.Err(); err != nil {
		req.resultCh <- result{err: err}
		return
	}

	ctx, cancel := context.WithTimeout(req.Context, req.Timeout)
	defer cancel()

	start := time.Now()
	var text string
	run := func() error {
		var err error
		text, err = req.Run(ctx)
		return err
	}
	var err error
	if m.breaker != nil {
		err = m.breaker.Call(run)
	} else {
		err = run()
	}

	if err != nil {
		m.log.Warn("request failed", "id", req.ID, "elapsed", time.Since(start), "error", err)
	} else {
		m.log.Debug("request completed", "id", req.ID, "elapsed", time.Since(start),
			"waited", start.Sub(req.SubmitTime))
	}
	req.resultCh <- result{text: text, err: err}
}

// GetMetrics returns current queue statistics
func (m *Manager) GetMetrics() Metrics {
	m.mu.RLock()
	defer m.mu.RUnlock()

	metrics := m.metrics
	metrics.CurrentQueueDepth = map[Priority]int{
		PriorityCritical:   len(m.criticalQueue),
		PriorityBackground: len(m.backgroundQueue),
	}
	if m.breaker != nil {
		metrics.BreakerState = string(m.breaker.State())
	}
	return metrics
}

// Stop shuts down the dispatcher, waits for in-flight calls and fails
// anything still queued.
func (m *Manager) Stop() {
	m.stopOnce.Do(func() {
		m.mu.Lock()
		m.stopped = true
		m.mu.Unlock()

		close(m.stopCh)
		m.wg.Wait()

		for _, q := range []chan *Request{m.criticalQueue, m.backgroundQueue} {
		drain:
			for {
				select {
				case req := <-q:
					req.resultCh <- result{err: ErrStopped}
				default:
					break drain
				}
			}
		}
		m.log.Info("queue stopped")
	})
}

// Queued routes a Completer through the manager at a fixed priority.
type Queued struct {
	next     Completer
	manager  *Manager
	priority Priority
}

func NewQueued(next Completer, m *Manager, p Priority) *Queued {
	return &Queued{next: next, manager: m, priority: p}
}

func (q *Queued) Complete(ctx context.Context, prompt string) (string, error) {
	return q.manager.Do(ctx, q.priority, func(ctx context.Context) (string, error) {
		return q.next.Complete(ctx, prompt)
	})
}
