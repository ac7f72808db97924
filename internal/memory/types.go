package memory

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/m-mizutani/goerr/v2"
)

// Type classifies a memory record. The set is closed.
type Type string

const (
	TypeObservation Type = "observation"
	TypeAction      Type = "action"
	TypeGoal        Type = "goal"
	TypeReflection  Type = "reflection"
	TypeLearning    Type = "learning"
	TypeContext     Type = "context"
)

var allTypes = []Type{
	TypeObservation,
	TypeAction,
	TypeGoal,
	TypeReflection,
	TypeLearning,
	TypeContext,
}

// Types returns every valid memory type in a fixed order.
func Types() []Type {
	out := make([]Type, len(allTypes))
	copy(out, allTypes)
	return out
}

func (t Type) Valid() bool {
	for _, v := range allTypes {
		if t == v {
			return true
		}
	}
	return false
}

func (t Type) String() string { return string(t) }

// ParseType converts external input into a Type. Matching is exact after
// trimming; unknown names are a validation error.
func ParseType(s string) (Type, error) {
	t := Type(strings.TrimSpace(s))
	if !t.Valid() {
		return "", goerr.Wrap(ErrValidation, "unknown memory type", goerr.V("type", s))
	}
	return t, nil
}

func (t *Type) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return goerr.Wrap(ErrValidation, "memory type must be a string")
	}
	v, err := ParseType(s)
	if err != nil {
		return err
	}
	*t = v
	return nil
}

// DefaultImportance is used when a caller does not supply one.
const DefaultImportance = 0.5

// Record is a stored memory. Similarity is only set on search results.
type Record struct {
	ID              string         `json:"id"`
	Content         string         `json:"content"`
	Type            Type           `json:"memory_type"`
	CreatedAt       time.Time      `json:"timestamp"`
	ImportanceScore float64        `json:"importance_score"`
	Metadata        map[string]any `json:"metadata,omitempty"`
	Similarity      *float64       `json:"similarity,omitempty"`
}

// AddInput describes a new record. Importance nil means DefaultImportance.
type AddInput struct {
	Content    string
	Type       Type
	Importance *float64
	Metadata   map[string]any
}

type SearchQuery struct {
	Query               string
	Type                *Type
	Limit               int
	SimilarityThreshold float64
}

type Stats struct {
	TotalCount     int          `json:"total_memories"`
	CountByType    map[Type]int `json:"memories_by_type"`
	CollectionName string       `json:"collection_name"`
}

// ClearResult reports a bulk delete. Success=false with DocumentsRemaining>0
// is a partial deletion, not an error.
type ClearResult struct {
	Success            bool   `json:"success"`
	DocumentsFound     int    `json:"documents_found"`
	DocumentsDeleted   int    `json:"documents_deleted"`
	DocumentsRemaining int    `json:"documents_remaining"`
	Message            string `json:"message"`
	CollectionName     string `json:"collection_name"`
}

// Float64 is a small helper for optional importance values.
func Float64(v float64) *float64 { return &v }
