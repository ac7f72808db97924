// Package agent runs goal-directed completions enriched with retrieved
// memories and records each interaction back into memory.
package agent

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/m-mizutani/goerr/v2"
	"golang.org/x/sync/errgroup"

	"go-autoagent/internal/llm"
	"go-autoagent/internal/logging"
	"go-autoagent/internal/memory"
)

// ErrCompletionProvider marks failures of the language model call.
var ErrCompletionProvider = errors.New("completion provider error")

const (
	// RelevanceThreshold is the minimum similarity for a memory to be
	// included in the prompt.
	RelevanceThreshold = 0.3
	DefaultSearchLimit = 5

	ObservationImportance = 0.5
	LearningImportance    = 0.8
	ReflectionImportance  = 0.7
)

// MemoryStore is the part of memory.Store the agent depends on.
type MemoryStore interface {
	Add(ctx context.Context, in memory.AddInput) (string, error)
	Search(ctx context.Context, q memory.SearchQuery) ([]memory.Record, error)
	GetByType(ctx context.Context, t memory.Type, limit int) ([]memory.Record, error)
	Stats(ctx context.Context) (*memory.Stats, error)
}

type Agent struct {
	store       MemoryStore
	completer   llm.Completer
	strictWrite bool
	log         *slog.Logger
}

type Option func(*Agent)

// WithStrictWriteBack makes a failed write-back fail the whole run.
func WithStrictWriteBack() Option { return func(a *Agent) { a.strictWrite = true } }

func WithLogger(l *slog.Logger) Option { return func(a *Agent) { a.log = l } }

func New(store MemoryStore, completer llm.Completer, opts ...Option) *Agent {
	a := &Agent{store: store, completer: completer}
	for _, opt := range opts {
		opt(a)
	}
	a.log = logging.Component(a.log, "agent")
	return a
}

type RunInput struct {
	Goal        string
	Context     string
	SearchLimit int // zero means DefaultSearchLimit
}

// Run retrieves memories relevant to the goal, asks the model for a
// response and stores the goal and the response as new memories.
func (a *Agent) Run(ctx context.Context, in RunInput) (string, error) {
	if strings.TrimSpace(in.Goal) == "" {
		return "", goerr.Wrap(memory.ErrValidation, "goal must not be empty")
	}
	limit := in.SearchLimit
	if limit == 0 {
		limit = DefaultSearchLimit
	}
	if limit < 0 {
		return "", goerr.Wrap(memory.ErrValidation, "search limit must be positive", goerr.V("limit", limit))
	}

	recs, err := a.store.Search(ctx, memory.SearchQuery{
		Query:               in.Goal,
		Limit:               limit,
		SimilarityThreshold: RelevanceThreshold,
	})
	if err != nil {
		return "", goerr.Wrap(err, "failed to retrieve memories")
	}

	prompt, err := renderPrompt(in.Goal, FormatMemories(recs), in.Context)
	if err != nil {
		return "", goerr.Wrap(err, "failed to render prompt")
	}

	response, err := a.completer.Complete(ctx, prompt)
	if err != nil {
		return "", goerr.Wrap(memory.Classify(ErrCompletionProvider, err), "completion failed")
	}
	a.log.Info("agent run completed", "memories", len(recs), "response_len", len(response))

	if err := a.writeBack(ctx, in.Goal, in.Context, response); err != nil {
		if a.strictWrite {
			return "", err
		}
		a.log.Warn("write-back failed, returning response anyway", "error", err)
	}
	return response, nil
}

// writeBack stores the goal and the response. Both writes are always
// attempted; the first error is returned.
func (a *Agent) writeBack(ctx context.Context, goal, extra, response string) error {
	var g errgroup.Group
	g.Go(func() error {
		_, err := a.store.Add(ctx, memory.AddInput{
			Content:  goal,
			Type:     memory.TypeGoal,
			Metadata: map[string]any{"context": extra},
		})
		if err != nil {
			return goerr.Wrap(err, "failed to store goal")
		}
		return nil
	})
	g.Go(func() error {
		_, err := a.store.Add(ctx, memory.AddInput{
			Content:  response,
			Type:     memory.TypeAction,
			Metadata: map[string]any{"goal": goal, "context": extra},
		})
		if err != nil {
			return goerr.Wrap(err, "failed to store action")
		}
		return nil
	})
	return g.Wait()
}

func (a *Agent) add(ctx context.Context, content string, t memory.Type, importance *float64, def float64, meta map[string]any) (string, error) {
	if importance == nil {
		importance = memory.Float64(def)
	}
	return a.store.Add(ctx, memory.AddInput{Content: content, Type: t, Importance: importance, Metadata: meta})
}

// AddObservation stores an observation; nil importance means 0.5.
func (a *Agent) AddObservation(ctx context.Context, content string, importance *float64, meta map[string]any) (string, error) {
	return a.add(ctx, content, memory.TypeObservation, importance, ObservationImportance, meta)
}

// AddLearning stores a learning; nil importance means 0.8.
func (a *Agent) AddLearning(ctx context.Context, content string, importance *float64, meta map[string]any) (string, error) {
	return a.add(ctx, content, memory.TypeLearning, importance, LearningImportance, meta)
}

// AddReflection stores a reflection; nil importance means 0.7.
func (a *Agent) AddReflection(ctx context.Context, content string, importance *float64, meta map[string]any) (string, error) {
	return a.add(ctx, content, memory.TypeReflection, importance, ReflectionImportance, meta)
}

func (a *Agent) Search(ctx context.Context, q memory.SearchQuery) ([]memory.Record, error) {
	return a.store.Search(ctx, q)
}

func (a *Agent) GetByType(ctx context.Context, t memory.Type, limit int) ([]memory.Record, error) {
	return a.store.GetByType(ctx, t, limit)
}

func (a *Agent) Stats(ctx context.Context) (*memory.Stats, error) {
	return a.store.Stats(ctx)
}
