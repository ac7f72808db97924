package memory

import "context"

// Embedder turns text into a fixed-length vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Dimensions() int
}

// Document is a record together with its embedding, as handed to a backend.
type Document struct {
	Record
	Embedding []float32
}

// Match is a nearest-neighbour hit. Distance is cosine distance: 0 for an
// identical direction, larger is less similar.
type Match struct {
	Record   Record
	Distance float64
}

// Filter restricts queries and scans. A nil Type matches everything.
type Filter struct {
	Type *Type
}

// Backend is a single vector collection.
type Backend interface {
	Name() string
	Upsert(ctx context.Context, docs ...Document) error
	Query(ctx context.Context, vector []float32, k int, f Filter) ([]Match, error)
	// Get returns the records that exist among ids; missing ids are skipped.
	Get(ctx context.Context, ids ...string) ([]Record, error)
	Find(ctx context.Context, f Filter, limit int) ([]Record, error)
	// Scan pages through every record in the collection.
	Scan(ctx context.Context, pageSize int, fn func([]Record) error) error
	Delete(ctx context.Context, ids ...string) error
	Count(ctx context.Context) (int, error)
	Close() error
}
