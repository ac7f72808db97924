// Package chromemstore keeps memories in an embedded chromem-go collection,
// optionally persisted to a local directory.
package chromemstore

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"time"

	chromem "github.com/philippgille/chromem-go"

	"go-autoagent/internal/memory"
)

const (
	keyType       = "memory_type"
	keyCreatedAt  = "created_at"
	keyImportance = "importance_score"
	keyMetadata   = "metadata"
)

type Store struct {
	db   *chromem.DB
	col  *chromem.Collection
	name string
	dims int
}

type Option func(*options)

type options struct {
	path     string
	compress bool
}

// WithPersistence stores the collection under dir instead of in memory.
func WithPersistence(dir string, compress bool) Option {
	return func(o *options) {
		o.path = dir
		o.compress = compress
	}
}

// New opens (or creates) the named collection. dims must match the embedder.
func New(name string, dims int, opts ...Option) (*Store, error) {
	if dims <= 0 {
		return nil, fmt.Errorf("dimensions must be positive, got %d", dims)
	}
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	db := chromem.NewDB()
	if o.path != "" {
		var err error
		db, err = chromem.NewPersistentDB(o.path, o.compress)
		if err != nil {
			return nil, fmt.Errorf("open chromem db at %s: %w", o.path, err)
		}
	}

	// Embeddings are always supplied by the caller, so no embedding func.
	col, err := db.GetOrCreateCollection(name, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("create collection: %w", err)
	}
	return &Store{db: db, col: col, name: name, dims: dims}, nil
}

func (s *Store) Name() string { return s.name }

func (s *Store) Upsert(ctx context.Context, docs ...memory.Document) error {
	for _, d := range docs {
		if len(d.Embedding) != s.dims {
			return fmt.Errorf("embedding for %s has %d dimensions, collection expects %d", d.ID, len(d.Embedding), s.dims)
		}
		meta, err := encodeMetadata(d.Record)
		if err != nil {
			return err
		}
		err = s.col.AddDocument(ctx, chromem.Document{
			ID:        d.ID,
			Content:   d.Content,
			Embedding: d.Embedding,
			Metadata:  meta,
		})
		if err != nil {
			return fmt.Errorf("add document %s: %w", d.ID, err)
		}
	}
	return nil
}

func where(f memory.Filter) map[string]string {
	if f.Type == nil {
		return nil
	}
	return map[string]string{keyType: string(*f.Type)}
}

// query clamps k to the collection size, which chromem requires.
func (s *Store) query(ctx context.Context, vector []float32, k int, f memory.Filter) ([]chromem.Result, error) {
	n := min(k, s.col.Count())
	if n <= 0 {
		return nil, nil
	}
	res, err := s.col.QueryEmbedding(ctx, vector, n, where(f), nil)
	if err != nil {
		return nil, fmt.Errorf("chromem query: %w", err)
	}
	return res, nil
}

func (s *Store) Query(ctx context.Context, vector []float32, k int, f memory.Filter) ([]memory.Match, error) {
	res, err := s.query(ctx, vector, k, f)
	if err != nil {
		return nil, err
	}
	out := make([]memory.Match, 0, len(res))
	for _, r := range res {
		rec, err := decode(r.ID, r.Content, r.Metadata)
		if err != nil {
			return nil, err
		}
		out = append(out, memory.Match{Record: rec, Distance: 1 - float64(r.Similarity)})
	}
	return out, nil
}

func (s *Store) Get(ctx context.Context, ids ...string) ([]memory.Record, error) {
	out := make([]memory.Record, 0, len(ids))
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		doc, err := s.col.GetByID(ctx, id)
		if err != nil {
			// chromem reports a missing id as an error.
			continue
		}
		rec, err := decode(doc.ID, doc.Content, doc.Metadata)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

// all lists matching records oldest first. chromem has no listing call, so
// this queries with a fixed probe vector and n = collection size.
func (s *Store) all(ctx context.Context, f memory.Filter, limit int) ([]memory.Record, error) {
	probe := make([]float32, s.dims)
	probe[0] = 1
	res, err := s.query(ctx, probe, limit, f)
	if err != nil {
		return nil, err
	}
	out := make([]memory.Record, 0, len(res))
	for _, r := range res {
		rec, err := decode(r.ID, r.Content, r.Metadata)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (s *Store) Find(ctx context.Context, f memory.Filter, limit int) ([]memory.Record, error) {
	recs, err := s.all(ctx, f, s.col.Count())
	if err != nil {
		return nil, err
	}
	if len(recs) > limit {
		recs = recs[:limit]
	}
	return recs, nil
}

func (s *Store) Scan(ctx context.Context, pageSize int, fn func([]memory.Record) error) error {
	recs, err := s.all(ctx, memory.Filter{}, s.col.Count())
	if err != nil {
		return err
	}
	for start := 0; start < len(recs); start += pageSize {
		end := min(start+pageSize, len(recs))
		if err := fn(recs[start:end]); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	if err := s.col.Delete(ctx, nil, nil, ids...); err != nil {
		return fmt.Errorf("chromem delete: %w", err)
	}
	return nil
}

func (s *Store) Count(context.Context) (int, error) {
	return s.col.Count(), nil
}

func (s *Store) Close() error { return nil }

func encodeMetadata(r memory.Record) (map[string]string, error) {
	meta := map[string]string{
		keyType:       string(r.Type),
		keyCreatedAt:  r.CreatedAt.UTC().Format(time.RFC3339Nano),
		keyImportance: strconv.FormatFloat(r.ImportanceScore, 'f', -1, 64),
	}
	if len(r.Metadata) > 0 {
		raw, err := json.Marshal(r.Metadata)
		if err != nil {
			return nil, fmt.Errorf("encode metadata for %s: %w", r.ID, err)
		}
		meta[keyMetadata] = string(raw)
	}
	return meta, nil
}

func decode(id, content string, meta map[string]string) (memory.Record, error) {
	rec := memory.Record{
		ID:      id,
		Content: content,
		Type:    memory.Type(meta[keyType]),
	}
	if v := meta[keyCreatedAt]; v != "" {
		t, err := time.Parse(time.RFC3339Nano, v)
		if err != nil {
			return rec, fmt.Errorf("decode created_at for %s: %w", id, err)
		}
		rec.CreatedAt = t
	}
	if v := meta[keyImportance]; v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return rec, fmt.Errorf("decode importance for %s: %w", id, err)
		}
		rec.ImportanceScore = f
	}
	if v := meta[keyMetadata]; v != "" {
		if err := json.Unmarshal([]byte(v), &rec.Metadata); err != nil {
			return rec, fmt.Errorf("decode metadata for %s: %w", id, err)
		}
	}
	return rec, nil
}

var _ memory.Backend = (*Store)(nil)
