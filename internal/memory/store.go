package memory

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/m-mizutani/goerr/v2"

	"go-autoagent/internal/logging"
)

// Store persists typed memory records in a vector backend.
type Store struct {
	backend  Backend
	embedder Embedder
	clock    clockwork.Clock
	timeout  time.Duration
	pageSize int
	log      *slog.Logger
}

type Option func(*Store)

func WithClock(c clockwork.Clock) Option { return func(s *Store) { s.clock = c } }

// WithCallTimeout bounds every embedding and backend call. Zero disables it.
func WithCallTimeout(d time.Duration) Option { return func(s *Store) { s.timeout = d } }

func WithScanPageSize(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.pageSize = n
		}
	}
}

func WithLogger(l *slog.Logger) Option { return func(s *Store) { s.log = l } }

func New(backend Backend, embedder Embedder, opts ...Option) *Store {
	s := &Store{
		backend:  backend,
		embedder: embedder,
		clock:    clockwork.NewRealClock(),
		timeout:  30 * time.Second,
		pageSize: 256,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = logging.Component(s.log, "memory")
	return s
}

func (s *Store) CollectionName() string { return s.backend.Name() }

func (s *Store) callCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.timeout)
}

func (s *Store) embed(ctx context.Context, text string) ([]float32, error) {
	cctx, cancel := s.callCtx(ctx)
	defer cancel()

	vec, err := s.embedder.Embed(cctx, text)
	if err != nil {
		return nil, goerr.Wrap(Classify(ErrEmbeddingProvider, err), "failed to embed text")
	}
	if len(vec) == 0 {
		return nil, goerr.Wrap(ErrEmbeddingProvider, "embedder returned an empty vector")
	}
	if d := s.embedder.Dimensions(); d > 0 && len(vec) != d {
		return nil, goerr.Wrap(ErrEmbeddingProvider, "embedding has unexpected dimensions",
			goerr.V("want", d), goerr.V("got", len(vec)))
	}
	return vec, nil
}

func backendErr(err error, msg string, vals ...goerr.Option) error {
	return goerr.Wrap(Classify(ErrBackendUnavailable, err), msg, vals...)
}

// Add validates, embeds and persists a new record and returns its id.
func (s *Store) Add(ctx context.Context, in AddInput) (string, error) {
	if strings.TrimSpace(in.Content) == "" {
		return "", goerr.Wrap(ErrValidation, "content must not be empty")
	}
	if !in.Type.Valid() {
		return "", goerr.Wrap(ErrValidation, "unknown memory type", goerr.V("type", string(in.Type)))
	}
	importance := DefaultImportance
	if in.Importance != nil {
		importance = *in.Importance
	}
	if math.IsNaN(importance) || importance < 0 || importance > 1 {
		return "", goerr.Wrap(ErrValidation, "importance must be within [0,1]", goerr.V("importance", importance))
	}

	vec, err := s.embed(ctx, in.Content)
	if err != nil {
		return "", err
	}

	rec := Record{
		ID:              uuid.New().String(),
		Content:         in.Content,
		Type:            in.Type,
		CreatedAt:       s.clock.Now().UTC(),
		ImportanceScore: importance,
		Metadata:        copyMetadata(in.Metadata),
	}

	cctx, cancel := s.callCtx(ctx)
	defer cancel()
	if err := s.backend.Upsert(cctx, Document{Record: rec, Embedding: vec}); err != nil {
		return "", backendErr(err, "failed to store memory", goerr.V("id", rec.ID))
	}

	s.log.Debug("memory added", "id", rec.ID, "type", rec.Type, "importance", importance)
	return rec.ID, nil
}

// Search returns at most q.Limit records whose similarity to q.Query is at
// least q.SimilarityThreshold, most similar first.
func (s *Store) Search(ctx context.Context, q SearchQuery) ([]Record, error) {
	if strings.TrimSpace(q.Query) == "" {
		return nil, goerr.Wrap(ErrValidation, "query must not be empty")
	}
	if q.Limit <= 0 {
		return nil, goerr.Wrap(ErrValidation, "limit must be positive", goerr.V("limit", q.Limit))
	}
	if math.IsNaN(q.SimilarityThreshold) || q.SimilarityThreshold < 0 || q.SimilarityThreshold > 1 {
		return nil, goerr.Wrap(ErrValidation, "similarity threshold must be within [0,1]",
			goerr.V("threshold", q.SimilarityThreshold))
	}
	if q.Type != nil && !q.Type.Valid() {
		return nil, goerr.Wrap(ErrValidation, "unknown memory type", goerr.V("type", string(*q.Type)))
	}

	vec, err := s.embed(ctx, q.Query)
	if err != nil {
		return nil, err
	}

	cctx, cancel := s.callCtx(ctx)
	defer cancel()
	matches, err := s.backend.Query(cctx, vec, q.Limit, Filter{Type: q.Type})
	if err != nil {
		return nil, backendErr(err, "memory search failed", goerr.V("limit", q.Limit))
	}

	out := make([]Record, 0, len(matches))
	for _, m := range matches {
		sim := 1 - m.Distance
		if sim < q.SimilarityThreshold {
			continue
		}
		if q.Type != nil && m.Record.Type != *q.Type {
			continue
		}
		rec := m.Record
		rec.Similarity = Float64(sim)
		out = append(out, rec)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return *out[i].Similarity > *out[j].Similarity
	})
	if len(out) > q.Limit {
		out = out[:q.Limit]
	}

	s.log.Debug("memory search", "candidates", len(matches), "returned", len(out), "threshold", q.SimilarityThreshold)
	return out, nil
}

// GetByType lists up to limit records of type t, in backend order.
func (s *Store) GetByType(ctx context.Context, t Type, limit int) ([]Record, error) {
	if !t.Valid() {
		return nil, goerr.Wrap(ErrValidation, "unknown memory type", goerr.V("type", string(t)))
	}
	if limit <= 0 {
		return nil, goerr.Wrap(ErrValidation, "limit must be positive", goerr.V("limit", limit))
	}

	cctx, cancel := s.callCtx(ctx)
	defer cancel()
	recs, err := s.backend.Find(cctx, Filter{Type: &t}, limit)
	if err != nil {
		return nil, backendErr(err, "failed to list memories", goerr.V("type", string(t)))
	}
	if len(recs) > limit {
		recs = recs[:limit]
	}
	return recs, nil
}

// Get returns a single record or ErrNotFound.
func (s *Store) Get(ctx context.Context, id string) (*Record, error) {
	if strings.TrimSpace(id) == "" {
		return nil, goerr.Wrap(ErrValidation, "id must not be empty")
	}
	// Ids are always UUIDs; anything else cannot exist in any backend.
	if _, err := uuid.Parse(id); err != nil {
		return nil, goerr.Wrap(ErrNotFound, "memory does not exist", goerr.V("id", id))
	}
	cctx, cancel := s.callCtx(ctx)
	defer cancel()
	recs, err := s.backend.Get(cctx, id)
	if err != nil {
		return nil, backendErr(err, "failed to get memory", goerr.V("id", id))
	}
	if len(recs) == 0 {
		return nil, goerr.Wrap(ErrNotFound, "memory does not exist", goerr.V("id", id))
	}
	rec := recs[0]
	return &rec, nil
}

// Delete removes a record. It reports whether the record existed; deleting
// an unknown id is not an error.
func (s *Store) Delete(ctx context.Context, id string) (bool, error) {
	_, err := s.Get(ctx, id)
	switch {
	case errors.Is(err, ErrNotFound):
		return false, nil
	case err != nil:
		return false, err
	}

	cctx, cancel := s.callCtx(ctx)
	defer cancel()
	if err := s.backend.Delete(cctx, id); err != nil {
		return false, backendErr(err, "failed to delete memory", goerr.V("id", id))
	}
	s.log.Debug("memory deleted", "id", id)
	return true, nil
}

// Stats counts records per type with a full scan of the collection.
func (s *Store) Stats(ctx context.Context) (*Stats, error) {
	st := &Stats{
		CountByType:    make(map[Type]int, len(allTypes)),
		CollectionName: s.backend.Name(),
	}
	cctx, cancel := s.callCtx(ctx)
	defer cancel()
	err := s.backend.Scan(cctx, s.pageSize, func(page []Record) error {
		for _, r := range page {
			st.TotalCount++
			st.CountByType[r.Type]++
		}
		return nil
	})
	if err != nil {
		return nil, backendErr(err, "failed to compute memory stats")
	}
	return st, nil
}

// ClearAll deletes every record and verifies the collection is empty.
// Failures after enumeration are reported in the result rather than as an
// error so callers can see how far the deletion got.
func (s *Store) ClearAll(ctx context.Context) (*ClearResult, error) {
	var ids []string
	scanCtx, cancelScan := s.callCtx(ctx)
	err := s.backend.Scan(scanCtx, s.pageSize, func(page []Record) error {
		for _, r := range page {
			ids = append(ids, r.ID)
		}
		return nil
	})
	cancelScan()
	if err != nil {
		return nil, backendErr(err, "failed to enumerate memories")
	}

	res := &ClearResult{
		DocumentsFound: len(ids),
		CollectionName: s.backend.Name(),
	}
	if len(ids) == 0 {
		res.Success = true
		res.Message = "collection was already empty"
		return res, nil
	}

	var deleteErr error
	for start := 0; start < len(ids); start += s.pageSize {
		end := min(start+s.pageSize, len(ids))
		cctx, cancel := s.callCtx(ctx)
		err := s.backend.Delete(cctx, ids[start:end]...)
		cancel()
		if err != nil {
			s.log.Warn("batch delete failed", "offset", start, "size", end-start, "error", err)
			deleteErr = err
		}
	}

	cctx, cancel := s.callCtx(ctx)
	remaining, err := s.backend.Count(cctx)
	cancel()
	if err != nil {
		return nil, backendErr(err, "failed to verify memory deletion")
	}

	res.DocumentsRemaining = remaining
	res.DocumentsDeleted = max(len(ids)-remaining, 0)
	res.Success = deleteErr == nil && remaining == 0
	switch {
	case res.Success:
		res.Message = "all memories cleared"
	case deleteErr != nil:
		res.Message = "partial deletion: " + deleteErr.Error()
	default:
		res.Message = "partial deletion: records remain after delete"
	}

	s.log.Info("memory collection cleared", "found", res.DocumentsFound,
		"deleted", res.DocumentsDeleted, "remaining", res.DocumentsRemaining)
	return res, nil
}

func copyMetadata(in map[string]any) map[string]any {
	if len(in) == 0 {
		return nil
	}
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
