package storage

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bull/coursemap/internal/config"
	"github.com/bull/coursemap/internal/course"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	name := strings.ReplaceAll(t.Name(), "/", "_")
	s, err := Open(config.DatabaseConfig{Driver: "sqlite", DSN: fmt.Sprintf("file:%s?mode=memory&cache=shared", name)})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func seedSession(t *testing.T, s *Store, id string, order int, n int) (course.Session, []course.Chunk) {
	t.Helper()
	sess := course.Session{ID: id, CourseID: "C1", Order: order, Title: "Lecture " + id, PageCount: n}
	chunks := make([]course.Chunk, n)
	for i := range chunks {
		chunks[i] = course.Chunk{
			ID:           fmt.Sprintf("%s-c%d", id, i),
			CourseID:     "C1",
			SessionID:    id,
			SessionOrder: order,
			Position:     n - i,
			Text:         fmt.Sprintf("text %d of %s", i, id),
			Embedding:    []float32{float32(order), float32(i), 0.5},
		}
	}
	require.NoError(t, s.SaveSession(context.Background(), sess, chunks))
	return sess, chunks
}

func TestStoreSessionsAndChunks(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedSession(t, s, "s2", 2, 2)
	seedSession(t, s, "s1", 1, 3)

	sessions, err := s.ListSessions(ctx, "C1")
	require.NoError(t, err)
	require.Len(t, sessions, 2)
	assert.Equal(t, "s1", sessions[0].ID)
	assert.Equal(t, 3, sessions[0].PageCount)

	chunks, err := s.CourseChunks(ctx, "C1")
	require.NoError(t, err)
	require.Len(t, chunks, 5)
	assert.Equal(t, "s1", chunks[0].SessionID)
	assert.Equal(t, 1, chunks[0].Position)
	assert.Equal(t, []float32{1, 2, 0.5}, chunks[0].Embedding)

	dim, err := s.CourseDimension(ctx, "C1")
	require.NoError(t, err)
	assert.Equal(t, 3, dim)
	dim, err = s.CourseDimension(ctx, "NONE")
	require.NoError(t, err)
	assert.Zero(t, dim)

	limited, err := s.SessionChunks(ctx, "C1", []string{"s2", "s1"}, 4)
	require.NoError(t, err)
	assert.Len(t, limited, 4)
	assert.Equal(t, "s1", limited[0].SessionID)

	courses, err := s.ListCourses(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"C1"}, courses)
}

func TestStoreDeleteSessionCascades(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedSession(t, s, "s1", 1, 2)
	seedSession(t, s, "s2", 2, 2)
	require.NoError(t, s.ReplaceGeneration(ctx, course.Generation{
		CourseID:    "C1",
		Topics:      []course.Topic{{ID: "t1", CourseID: "C1", Name: "A"}},
		Appearances: []course.Appearance{{TopicID: "t1", SessionID: "s1", SessionOrder: 1, Frequency: 2, FirstPosition: 1}, {TopicID: "t1", SessionID: "s2", SessionOrder: 2, Frequency: 1, FirstPosition: 1}},
	}))

	deleted, err := s.DeleteSession(ctx, "C1", "s1")
	require.NoError(t, err)
	assert.Equal(t, 1, deleted.Order)

	n, err := s.CountChunks(ctx, "C1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	_, apps, err := s.GetTopic(ctx, "C1", "t1")
	require.NoError(t, err)
	require.Len(t, apps, 1)
	assert.Equal(t, "s2", apps[0].SessionID)

	_, err = s.DeleteSession(ctx, "C1", "s1")
	assert.ErrorIs(t, err, course.ErrSessionNotFound)
}

func TestStoreReplaceGenerationIsAtomic(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedSession(t, s, "s1", 1, 1)
	seedSession(t, s, "s2", 2, 1)

	first := course.Generation{
		CourseID: "C1",
		Topics:   []course.Topic{{ID: "a", CourseID: "C1", Name: "A"}, {ID: "b", CourseID: "C1", Name: "B"}},
		Appearances: []course.Appearance{
			{TopicID: "a", SessionID: "s1", SessionOrder: 1, Frequency: 1, FirstPosition: 1},
			{TopicID: "b", SessionID: "s2", SessionOrder: 2, Frequency: 1, FirstPosition: 1},
		},
		Edges: []course.PrerequisiteEdge{{FromTopicID: "a", ToTopicID: "b"}},
	}
	require.NoError(t, s.ReplaceGeneration(ctx, first))

	// References a session that does not exist: rejected, old generation kept.
	bad := course.Generation{
		CourseID:    "C1",
		Topics:      []course.Topic{{ID: "x", CourseID: "C1", Name: "X"}},
		Appearances: []course.Appearance{{TopicID: "x", SessionID: "gone", SessionOrder: 9, Frequency: 1, FirstPosition: 1}},
	}
	err := s.ReplaceGeneration(ctx, bad)
	assert.ErrorIs(t, err, course.ErrConsistency)

	// Dangling edge: rejected before touching the database.
	dangling := first
	dangling.Edges = []course.PrerequisiteEdge{{FromTopicID: "a", ToTopicID: "zzz"}}
	assert.ErrorIs(t, s.ReplaceGeneration(ctx, dangling), course.ErrConsistency)

	got, err := s.CurrentGeneration(ctx, "C1")
	require.NoError(t, err)
	assert.Equal(t, first.Topics, got.Topics)
	assert.Equal(t, first.Edges, got.Edges)
	assert.Len(t, got.Appearances, 2)

	second := course.Generation{
		CourseID:    "C1",
		Topics:      []course.Topic{{ID: "c", CourseID: "C1", Name: "C"}},
		Appearances: []course.Appearance{{TopicID: "c", SessionID: "s2", SessionOrder: 2, Frequency: 1, FirstPosition: 1}},
	}
	require.NoError(t, s.ReplaceGeneration(ctx, second))
	got, err = s.CurrentGeneration(ctx, "C1")
	require.NoError(t, err)
	assert.Equal(t, second.Topics, got.Topics)
	assert.Empty(t, got.Edges)

	_, _, err = s.GetTopic(ctx, "C1", "a")
	assert.ErrorIs(t, err, course.ErrTopicNotFound)
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	_, err := Open(config.DatabaseConfig{Driver: "mysql", DSN: "x"})
	assert.ErrorIs(t, err, ErrUnsupportedDriver)
}
