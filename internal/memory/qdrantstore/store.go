// Package qdrantstore keeps memories in a Qdrant collection over gRPC.
package qdrantstore

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"

	"go-autoagent/internal/logging"
	"go-autoagent/internal/memory"
)

// Payload keys.
const (
	fieldID         = "memory_id"
	fieldContent    = "content"
	fieldType       = "memory_type"
	fieldCreatedAt  = "created_at"
	fieldImportance = "importance_score"
	fieldMetadata   = "metadata"
)

// Store handles all Qdrant operations for one collection.
type Store struct {
	client     *qdrant.Client
	collection string
	dims       int
	log        *slog.Logger
}

type Config struct {
	URL        string // host[:port], scheme optional; default port 6334
	APIKey     string
	UseTLS     bool
	Collection string
	Dimensions int
}

// parseHost strips any scheme and splits off the port.
func parseHost(raw string) (string, int, error) {
	raw = strings.TrimPrefix(raw, "http://")
	raw = strings.TrimPrefix(raw, "https://")
	raw = strings.TrimSuffix(raw, "/")
	host, port := raw, 6334
	if idx := strings.LastIndex(raw, ":"); idx != -1 {
		host = raw[:idx]
		p, err := strconv.Atoi(raw[idx+1:])
		if err != nil {
			return "", 0, fmt.Errorf("invalid qdrant port in %q: %w", raw, err)
		}
		port = p
	}
	if host == "" {
		return "", 0, fmt.Errorf("qdrant host is empty")
	}
	return host, port, nil
}

// New connects and makes sure the collection and its payload indexes exist.
func New(ctx context.Context, cfg Config, logger *slog.Logger) (*Store, error) {
	host, port, err := parseHost(cfg.URL)
	if err != nil {
		return nil, err
	}
	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   host,
		Port:   port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.UseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Qdrant client: %w", err)
	}

	s := &Store{
		client:     client,
		collection: cfg.Collection,
		dims:       cfg.Dimensions,
		log:        logging.Component(logger, "qdrant"),
	}
	if err := s.ensureCollection(ctx); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to ensure collection: %w", err)
	}
	return s, nil
}

func (s *Store) ensureCollection(ctx context.Context) error {
	exists, err := s.client.CollectionExists(ctx, s.collection)
	if err != nil {
		return fmt.Errorf("failed to check collection existence: %w", err)
	}
	if exists {
		return nil
	}

	err = s.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: s.collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(s.dims),
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return fmt.Errorf("failed to create collection: %w", err)
	}

	indexes := []struct {
		field string
		typ   qdrant.FieldType
	}{
		{fieldType, qdrant.FieldType_FieldTypeKeyword},
		{fieldCreatedAt, qdrant.FieldType_FieldTypeInteger},
		{fieldImportance, qdrant.FieldType_FieldTypeFloat},
	}
	for _, idx := range indexes {
		typ := idx.typ
		_, err = s.client.CreateFieldIndex(ctx, &qdrant.CreateFieldIndexCollection{
			CollectionName: s.collection,
			FieldName:      idx.field,
			FieldType:      &typ,
			Wait:           boolPtr(true),
		})
		if err != nil {
			return fmt.Errorf("failed to create index for %s: %w", idx.field, err)
		}
	}
	s.log.Info("collection created", "collection", s.collection, "dimensions", s.dims)
	return nil
}

func (s *Store) Name() string { return s.collection }

func (s *Store) Upsert(ctx context.Context, docs ...memory.Document) error {
	points := make([]*qdrant.PointStruct, 0, len(docs))
	for _, d := range docs {
		points = append(points, &qdrant.PointStruct{
			Id:      qdrant.NewIDUUID(d.ID),
			Vectors: qdrant.NewVectors(d.Embedding...),
			Payload: toPayload(d.Record),
		})
	}
	_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: s.collection,
		Wait:           boolPtr(true),
		Points:         points,
	})
	return err
}

func filter(f memory.Filter) *qdrant.Filter {
	if f.Type == nil {
		return nil
	}
	return &qdrant.Filter{
		Must: []*qdrant.Condition{qdrant.NewMatch(fieldType, string(*f.Type))},
	}
}

// Query scores are cosine similarities, so distance is 1 - score.
func (s *Store) Query(ctx context.Context, vector []float32, k int, f memory.Filter) ([]memory.Match, error) {
	points, err := s.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: s.collection,
		Query:          qdrant.NewQuery(vector...),
		Filter:         filter(f),
		Limit:          uint64Ptr(uint64(k)),
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("search failed: %w", err)
	}
	out := make([]memory.Match, 0, len(points))
	for _, p := range points {
		out = append(out, memory.Match{
			Record:   fromPayload(p.Id, p.Payload),
			Distance: 1 - float64(p.Score),
		})
	}
	return out, nil
}

func (s *Store) Get(ctx context.Context, ids ...string) ([]memory.Record, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	pids := pointIDs(ids)
	if len(pids) == 0 {
		return nil, nil
	}
	points, err := s.client.Get(ctx, &qdrant.GetPoints{
		CollectionName: s.collection,
		Ids:            pids,
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get points: %w", err)
	}
	out := make([]memory.Record, 0, len(points))
	for _, p := range points {
		out = append(out, fromPayload(p.Id, p.Payload))
	}
	return out, nil
}

func (s *Store) Find(ctx context.Context, f memory.Filter, limit int) ([]memory.Record, error) {
	points, err := s.client.Scroll(ctx, &qdrant.ScrollPoints{
		CollectionName: s.collection,
		Filter:         filter(f),
		Limit:          uint32Ptr(uint32(limit)),
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("scroll failed: %w", err)
	}
	out := make([]memory.Record, 0, len(points))
	for _, p := range points {
		out = append(out, fromPayload(p.Id, p.Payload))
	}
	return out, nil
}

// Scan pages with the last seen id as offset. Qdrant offsets are inclusive,
// so the first point of every following page is skipped.
func (s *Store) Scan(ctx context.Context, pageSize int, fn func([]memory.Record) error) error {
	var offset *qdrant.PointId
	for {
		limit := pageSize
		if offset != nil {
			limit++
		}
		points, err := s.client.Scroll(ctx, &qdrant.ScrollPoints{
			CollectionName: s.collection,
			Limit:          uint32Ptr(uint32(limit)),
			Offset:         offset,
			WithPayload:    qdrant.NewWithPayload(true),
		})
		if err != nil {
			return fmt.Errorf("scroll failed: %w", err)
		}
		if offset != nil && len(points) > 0 && points[0].Id.GetUuid() == offset.GetUuid() {
			points = points[1:]
		}
		if len(points) == 0 {
			return nil
		}

		page := make([]memory.Record, 0, len(points))
		for _, p := range points {
			page = append(page, fromPayload(p.Id, p.Payload))
		}
		if err := fn(page); err != nil {
			return err
		}
		if len(points) < pageSize {
			return nil
		}
		offset = points[len(points)-1].Id
	}
}

func (s *Store) Delete(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	pids := pointIDs(ids)
	if len(pids) == 0 {
		return nil
	}
	_, err := s.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: s.collection,
		Wait:           boolPtr(true),
		Points:         qdrant.NewPointsSelector(pids...),
	})
	if err != nil {
		return fmt.Errorf("delete failed: %w", err)
	}
	return nil
}

func (s *Store) Count(ctx context.Context) (int, error) {
	n, err := s.client.Count(ctx, &qdrant.CountPoints{
		CollectionName: s.collection,
		Exact:          boolPtr(true),
	})
	if err != nil {
		return 0, fmt.Errorf("count failed: %w", err)
	}
	return int(n), nil
}

func (s *Store) Close() error { return s.client.Close() }

// pointIDs converts memory ids to point ids. Qdrant rejects ids that are
// not UUIDs, and no stored point can have one, so they are dropped.
func pointIDs(ids []string) []*qdrant.PointId {
	pids := make([]*qdrant.PointId, 0, len(ids))
	for _, id := range ids {
		if _, err := uuid.Parse(id); err != nil {
			continue
		}
		pids = append(pids, qdrant.NewIDUUID(id))
	}
	return pids
}

func toPayload(r memory.Record) map[string]*qdrant.Value {
	payload := map[string]*qdrant.Value{
		fieldID:         qdrant.NewValueString(r.ID),
		fieldContent:    qdrant.NewValueString(r.Content),
		fieldType:       qdrant.NewValueString(string(r.Type)),
		fieldCreatedAt:  qdrant.NewValueInt(r.CreatedAt.UnixMilli()),
		fieldImportance: qdrant.NewValueDouble(r.ImportanceScore),
	}
	if len(r.Metadata) > 0 {
		payload[fieldMetadata] = toValue(r.Metadata)
	}
	return payload
}

func fromPayload(id *qdrant.PointId, payload map[string]*qdrant.Value) memory.Record {
	rec := memory.Record{
		ID:              getString(payload, fieldID),
		Content:         getString(payload, fieldContent),
		Type:            memory.Type(getString(payload, fieldType)),
		CreatedAt:       time.UnixMilli(payload[fieldCreatedAt].GetIntegerValue()).UTC(),
		ImportanceScore: payload[fieldImportance].GetDoubleValue(),
	}
	if rec.ID == "" && id != nil {
		rec.ID = id.GetUuid()
	}
	if v, ok := payload[fieldMetadata]; ok {
		if m, ok := fromValue(v).(map[string]any); ok {
			rec.Metadata = m
		}
	}
	return rec
}

func getString(payload map[string]*qdrant.Value, key string) string {
	if v, ok := payload[key]; ok {
		return v.GetStringValue()
	}
	return ""
}

// toValue converts JSON-like Go values into Qdrant values. Unknown types are
// stored as their fmt representation.
func toValue(v any) *qdrant.Value {
	switch val := v.(type) {
	case nil:
		return &qdrant.Value{Kind: &qdrant.Value_NullValue{}}
	case string:
		return qdrant.NewValueString(val)
	case bool:
		return qdrant.NewValueBool(val)
	case int:
		return qdrant.NewValueInt(int64(val))
	case int64:
		return qdrant.NewValueInt(val)
	case float32:
		return qdrant.NewValueDouble(float64(val))
	case float64:
		return qdrant.NewValueDouble(val)
	case []string:
		items := make([]*qdrant.Value, len(val))
		for i, s := range val {
			items[i] = qdrant.NewValueString(s)
		}
		return &qdrant.Value{Kind: &qdrant.Value_ListValue{ListValue: &qdrant.ListValue{Values: items}}}
	case []any:
		items := make([]*qdrant.Value, len(val))
		for i, item := range val {
			items[i] = toValue(item)
		}
		return &qdrant.Value{Kind: &qdrant.Value_ListValue{ListValue: &qdrant.ListValue{Values: items}}}
	case map[string]any:
		fields := make(map[string]*qdrant.Value, len(val))
		for k, item := range val {
			fields[k] = toValue(item)
		}
		return &qdrant.Value{Kind: &qdrant.Value_StructValue{StructValue: &qdrant.Struct{Fields: fields}}}
	case map[string]string:
		fields := make(map[string]*qdrant.Value, len(val))
		for k, item := range val {
			fields[k] = qdrant.NewValueString(item)
		}
		return &qdrant.Value{Kind: &qdrant.Value_StructValue{StructValue: &qdrant.Struct{Fields: fields}}}
	default:
		return qdrant.NewValueString(fmt.Sprint(val))
	}
}

func fromValue(v *qdrant.Value) any {
	switch k := v.GetKind().(type) {
	case *qdrant.Value_StringValue:
		return k.StringValue
	case *qdrant.Value_BoolValue:
		return k.BoolValue
	case *qdrant.Value_IntegerValue:
		return k.IntegerValue
	case *qdrant.Value_DoubleValue:
		return k.DoubleValue
	case *qdrant.Value_ListValue:
		items := make([]any, 0, len(k.ListValue.GetValues()))
		for _, item := range k.ListValue.GetValues() {
			items = append(items, fromValue(item))
		}
		return items
	case *qdrant.Value_StructValue:
		m := make(map[string]any, len(k.StructValue.GetFields()))
		for key, item := range k.StructValue.GetFields() {
			m[key] = fromValue(item)
		}
		return m
	default:
		return nil
	}
}

func uint64Ptr(v uint64) *uint64 { return &v }
func uint32Ptr(v uint32) *uint32 { return &v }
func boolPtr(v bool) *bool       { return &v }

var _ memory.Backend = (*Store)(nil)
