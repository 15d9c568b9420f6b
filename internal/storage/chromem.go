package storage

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"strconv"

	"github.com/philippgille/chromem-go"

	"github.com/bull/coursemap/internal/course"
	"github.com/bull/coursemap/internal/index"
)

var errNoEmbedder = errors.New("chromem index only accepts precomputed embeddings")

// ChromemIndex is an embedded index with one chromem collection per course.
// An empty path keeps everything in memory.
type ChromemIndex struct {
	db        *chromem.DB
	dimension int
}

func NewChromemIndex(path string, dimension int) (*ChromemIndex, error) {
	var (
		db  *chromem.DB
		err error
	)
	if path == "" {
		db = chromem.NewDB()
	} else {
		db, err = chromem.NewPersistentDB(path, false)
		if err != nil {
			return nil, fmt.Errorf("failed to open chromem database: %w", err)
		}
	}
	return &ChromemIndex{db: db, dimension: dimension}, nil
}

func collectionName(courseID string) string { return "course_" + courseID }

func noEmbedding(context.Context, string) ([]float32, error) { return nil, errNoEmbedder }

func (c *ChromemIndex) collection(courseID string) (*chromem.Collection, error) {
	coll, err := c.db.GetOrCreateCollection(collectionName(courseID), map[string]string{"course_id": courseID}, noEmbedding)
	if err != nil {
		return nil, fmt.Errorf("failed to create/get collection: %w", err)
	}
	return coll, nil
}

func (c *ChromemIndex) IndexChunks(ctx context.Context, chunks []course.Chunk) error {
	byCourse := make(map[string][]chromem.Document)
	var order []string
	for i, ch := range chunks {
		if len(ch.Embedding) != c.dimension {
			return fmt.Errorf("%w: chunk %d has %d dimensions, expected %d",
				course.ErrEmbeddingDimensionMismatch, i, len(ch.Embedding), c.dimension)
		}
		if _, ok := byCourse[ch.CourseID]; !ok {
			order = append(order, ch.CourseID)
		}
		byCourse[ch.CourseID] = append(byCourse[ch.CourseID], chromem.Document{
			ID:        ch.ID,
			Content:   ch.Text,
			Embedding: append([]float32(nil), ch.Embedding...),
			Metadata: map[string]string{
				"course_id":     ch.CourseID,
				"session_id":    ch.SessionID,
				"session_order": strconv.Itoa(ch.SessionOrder),
				"position":      strconv.Itoa(ch.Position),
				"seq":           strconv.Itoa(ch.Seq),
			},
		})
	}
	for _, courseID := range order {
		coll, err := c.collection(courseID)
		if err != nil {
			return err
		}
		if err := coll.AddDocuments(ctx, byCourse[courseID], runtime.NumCPU()); err != nil {
			return fmt.Errorf("failed to add documents: %w", err)
		}
	}
	return nil
}

func (c *ChromemIndex) RemoveSession(ctx context.Context, courseID, sessionID string) error {
	coll := c.db.GetCollection(collectionName(courseID), noEmbedding)
	if coll == nil {
		return nil
	}
	if err := coll.Delete(ctx, map[string]string{"session_id": sessionID}, nil); err != nil {
		return fmt.Errorf("failed to delete session documents: %w", err)
	}
	return nil
}

// Search asks chromem for every document of the course, then applies the
// session filter and tie-break locally.
func (c *ChromemIndex) Search(ctx context.Context, query []float32, courseID string, k int, maxSessionOrder *int) ([]course.ScoredChunk, error) {
	if err := index.CheckQuery(query, k); err != nil {
		return nil, err
	}
	if len(query) != c.dimension {
		return nil, fmt.Errorf("%w: query has %d dimensions, expected %d",
			course.ErrEmbeddingDimensionMismatch, len(query), c.dimension)
	}
	coll := c.db.GetCollection(collectionName(courseID), noEmbedding)
	if coll == nil || coll.Count() == 0 {
		return nil, fmt.Errorf("%w: course %s", course.ErrEmptyIndex, courseID)
	}

	results, err := coll.QueryWithOptions(ctx, chromem.QueryOptions{
		QueryEmbedding: append([]float32(nil), query...),
		NResults:       coll.Count(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to query by similarity: %w", err)
	}

	hits := make([]course.ScoredChunk, 0, len(results))
	for _, r := range results {
		order, _ := strconv.Atoi(r.Metadata["session_order"])
		if maxSessionOrder != nil && order > *maxSessionOrder {
			continue
		}
		pos, _ := strconv.Atoi(r.Metadata["position"])
		seq, _ := strconv.Atoi(r.Metadata["seq"])
		hits = append(hits, course.ScoredChunk{
			Chunk: course.Chunk{
				ID:           r.ID,
				CourseID:     courseID,
				SessionID:    r.Metadata["session_id"],
				SessionOrder: order,
				Position:     pos,
				Seq:          seq,
				Text:         r.Content,
			},
			Score: float64(r.Similarity),
		})
	}
	return index.TopK(hits, k), nil
}
