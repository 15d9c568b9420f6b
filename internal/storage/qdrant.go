package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/qdrant/go-client/qdrant"

	"github.com/bull/coursemap/internal/course"
	"github.com/bull/coursemap/internal/index"
)

const vectorName = "content"

// searchOverfetch widens the server-side limit so score ties at the k-th
// place can be settled by the local tie-break.
const searchOverfetch = 2

// QdrantIndex stores chunk vectors in one collection with course and session
// payload, filtering by course_id and session_order server-side.
type QdrantIndex struct {
	client     *qdrant.Client
	collection string
	dimension  int
}

// NewQdrantIndex connects over gRPC, waits for the server to become healthy
// and ensures the collection exists.
func NewQdrantIndex(ctx context.Context, host string, port int, collection string, dimension int) (*QdrantIndex, error) {
	client, err := qdrant.NewClient(&qdrant.Config{
		Host: host,
		Port: port,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create qdrant client: %w", err)
	}

	idx := &QdrantIndex{client: client, collection: collection, dimension: dimension}
	if err := idx.healthCheckWithRetry(ctx); err != nil {
		client.Close()
		return nil, fmt.Errorf("%w: %v", ErrQdrantUnreachable, err)
	}
	if err := idx.EnsureCollection(ctx); err != nil {
		client.Close()
		return nil, err
	}
	return idx, nil
}

func newRetryBackoff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = 10 * time.Second
	b.MaxElapsedTime = 30 * time.Second
	return b
}

// healthCheckWithRetry performs health check with exponential backoff.
func (s *QdrantIndex) healthCheckWithRetry(ctx context.Context) error {
	return backoff.Retry(func() error { return s.Health(ctx) }, backoff.WithContext(newRetryBackoff(), ctx))
}

// Health performs a single health check against Qdrant.
func (s *QdrantIndex) Health(ctx context.Context) error {
	result, err := s.client.HealthCheck(ctx)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	if result == nil || result.Title == "" {
		return fmt.Errorf("health check returned invalid response")
	}
	return nil
}

// EnsureCollection creates the collection and its payload indexes when
// missing. Idempotent.
func (s *QdrantIndex) EnsureCollection(ctx context.Context) error {
	exists, err := s.client.CollectionExists(ctx, s.collection)
	if err != nil {
		return fmt.Errorf("failed to check collection: %w", err)
	}
	if exists {
		return nil
	}

	err = s.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: s.collection,
		VectorsConfig: qdrant.NewVectorsConfigMap(map[string]*qdrant.VectorParams{
			vectorName: {
				Size:     uint64(s.dimension),
				Distance: qdrant.Distance_Cosine,
			},
		}),
	})
	if err != nil {
		return fmt.Errorf("failed to create collection: %w", err)
	}
	return s.createPayloadIndexes(ctx)
}

// createPayloadIndexes indexes the fields every search filters on.
func (s *QdrantIndex) createPayloadIndexes(ctx context.Context) error {
	fields := map[string]qdrant.FieldType{
		"course_id":     qdrant.FieldType_FieldTypeKeyword,
		"session_id":    qdrant.FieldType_FieldTypeKeyword,
		"session_order": qdrant.FieldType_FieldTypeInteger,
	}
	for field, typ := range fields {
		_, err := s.client.CreateFieldIndex(ctx, &qdrant.CreateFieldIndexCollection{
			CollectionName: s.collection,
			FieldName:      field,
			FieldType:      typ.Enum(),
		})
		if err != nil {
			return fmt.Errorf("failed to create index for field %s: %w", field, err)
		}
	}
	return nil
}

func (s *QdrantIndex) Close() error {
	if s.client != nil {
		return s.client.Close()
	}
	return nil
}

func (s *QdrantIndex) upsertWithRetry(ctx context.Context, points []*qdrant.PointStruct) error {
	operation := func() error {
		_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
			CollectionName: s.collection,
			Wait:           qdrant.PtrOf(true),
			Points:         points,
		})
		return err
	}
	return backoff.Retry(operation, backoff.WithContext(newRetryBackoff(), ctx))
}

// IndexChunks upserts chunk vectors in batches of 100.
func (s *QdrantIndex) IndexChunks(ctx context.Context, chunks []course.Chunk) error {
	for i, c := range chunks {
		if len(c.Embedding) != s.dimension {
			return fmt.Errorf("%w: chunk %d has %d dimensions, expected %d",
				course.ErrEmbeddingDimensionMismatch, i, len(c.Embedding), s.dimension)
		}
	}

	for i := 0; i < len(chunks); i += insertBatchSize {
		end := min(i+insertBatchSize, len(chunks))
		points := make([]*qdrant.PointStruct, 0, end-i)
		for _, c := range chunks[i:end] {
			points = append(points, &qdrant.PointStruct{
				Id: qdrant.NewIDUUID(c.ID),
				Vectors: qdrant.NewVectorsMap(map[string]*qdrant.Vector{
					vectorName: qdrant.NewVector(c.Embedding...),
				}),
				Payload: qdrant.NewValueMap(map[string]any{
					"course_id":     c.CourseID,
					"session_id":    c.SessionID,
					"session_order": int64(c.SessionOrder),
					"position":      int64(c.Position),
					"seq":           int64(c.Seq),
					"text":          c.Text,
				}),
			})
		}
		if err := s.upsertWithRetry(ctx, points); err != nil {
			return fmt.Errorf("%w: failed to upsert batch %d-%d: %v", course.ErrTransport, i, end, err)
		}
	}
	return nil
}

// RemoveSession deletes every point of a session.
func (s *QdrantIndex) RemoveSession(ctx context.Context, courseID, sessionID string) error {
	_, err := s.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: s.collection,
		Wait:           qdrant.PtrOf(true),
		Points: qdrant.NewPointsSelectorFilter(&qdrant.Filter{
			Must: []*qdrant.Condition{
				qdrant.NewMatch("course_id", courseID),
				qdrant.NewMatch("session_id", sessionID),
			},
		}),
	})
	if err != nil {
		return fmt.Errorf("%w: failed to delete session points: %v", course.ErrTransport, err)
	}
	return nil
}

// Search runs a filtered vector query. Qdrant ranks server-side; results are
// re-ranked locally so equal scores follow session order and position.
func (s *QdrantIndex) Search(ctx context.Context, query []float32, courseID string, k int, maxSessionOrder *int) ([]course.ScoredChunk, error) {
	if err := index.CheckQuery(query, k); err != nil {
		return nil, err
	}
	if len(query) != s.dimension {
		return nil, fmt.Errorf("%w: query has %d dimensions, expected %d",
			course.ErrEmbeddingDimensionMismatch, len(query), s.dimension)
	}

	courseFilter := []*qdrant.Condition{qdrant.NewMatch("course_id", courseID)}
	total, err := s.client.Count(ctx, &qdrant.CountPoints{
		CollectionName: s.collection,
		Filter:         &qdrant.Filter{Must: courseFilter},
		Exact:          qdrant.PtrOf(true),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: failed to count course points: %v", course.ErrTransport, err)
	}
	if total == 0 {
		return nil, fmt.Errorf("%w: course %s", course.ErrEmptyIndex, courseID)
	}

	must := append([]*qdrant.Condition(nil), courseFilter...)
	if maxSessionOrder != nil {
		must = append(must, qdrant.NewRange("session_order", &qdrant.Range{
			Lte: qdrant.PtrOf(float64(*maxSessionOrder)),
		}))
	}

	using := vectorName
	results, err := s.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: s.collection,
		Query:          qdrant.NewQuery(query...),
		Using:          &using,
		Filter:         &qdrant.Filter{Must: must},
		Limit:          qdrant.PtrOf(uint64(k * searchOverfetch)),
		WithPayload:    qdrant.NewWithPayload(true),
		WithVectors:    qdrant.NewWithVectors(false),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: failed to search chunks: %v", course.ErrTransport, err)
	}

	hits := make([]course.ScoredChunk, 0, len(results))
	for _, r := range results {
		p := r.Payload
		hits = append(hits, course.ScoredChunk{
			Chunk: course.Chunk{
				ID:           r.Id.GetUuid(),
				CourseID:     p["course_id"].GetStringValue(),
				SessionID:    p["session_id"].GetStringValue(),
				SessionOrder: int(p["session_order"].GetIntegerValue()),
				Position:     int(p["position"].GetIntegerValue()),
				Seq:          int(p["seq"].GetIntegerValue()),
				Text:         p["text"].GetStringValue(),
			},
			Score: float64(r.Score),
		})
	}
	// the server's order among equal scores is arbitrary
	return index.TopK(hits, k), nil
}
