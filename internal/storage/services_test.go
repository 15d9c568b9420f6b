//go:build integration

package storage

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bull/coursemap/internal/config"
	"github.com/bull/coursemap/internal/course"
)

func TestRedisLockerExcludes(t *testing.T) {
	ctx := context.Background()
	l, err := NewRedisLocker(ctx, "localhost:6379", time.Minute, nil)
	if err != nil {
		t.Skipf("Redis not available: %v", err)
	}
	defer l.Close()

	unlock, err := l.Lock(ctx, "TEST-COURSE")
	require.NoError(t, err)

	short, cancel := context.WithTimeout(ctx, 300*time.Millisecond)
	defer cancel()
	_, err = l.Lock(short, "TEST-COURSE")
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	unlock()
	again, err := l.Lock(ctx, "TEST-COURSE")
	require.NoError(t, err)
	again()
}

func TestRedisLockerRenewsLease(t *testing.T) {
	ctx := context.Background()
	ttl := 300 * time.Millisecond
	l, err := NewRedisLocker(ctx, "localhost:6379", ttl, nil)
	if err != nil {
		t.Skipf("Redis not available: %v", err)
	}
	defer l.Close()

	unlock, err := l.Lock(ctx, "TEST-RENEW")
	require.NoError(t, err)

	// held for several TTLs; the key must still be ours
	time.Sleep(4 * ttl)
	short, cancel := context.WithTimeout(ctx, ttl)
	defer cancel()
	_, err = l.Lock(short, "TEST-RENEW")
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	remaining, err := l.rdb.PTTL(ctx, l.prefix+"TEST-RENEW").Result()
	require.NoError(t, err)
	assert.Greater(t, remaining, time.Duration(0))

	unlock()
	unlock()
	exists, err := l.rdb.Exists(ctx, l.prefix+"TEST-RENEW").Result()
	require.NoError(t, err)
	assert.Zero(t, exists)
}

func TestGraphMirror(t *testing.T) {
	uri := os.Getenv("NEO4J_URI")
	if uri == "" {
		t.Skip("NEO4J_URI not set")
	}
	ctx := context.Background()
	m, err := NewGraphMirror(ctx, config.GraphConfig{
		Neo4jURI:      uri,
		Neo4jUser:     "neo4j",
		Neo4jPassword: os.Getenv("NEO4J_PASSWORD"),
		Neo4jDatabase: "neo4j",
	}, nil)
	if err != nil {
		t.Skipf("Neo4j not available: %v", err)
	}
	defer m.Close(ctx)

	gen := course.Generation{
		CourseID:    "TEST-MIRROR",
		Topics:      []course.Topic{{ID: "tm-a", CourseID: "TEST-MIRROR", Name: "A"}, {ID: "tm-b", CourseID: "TEST-MIRROR", Name: "B"}},
		Appearances: []course.Appearance{{TopicID: "tm-a", SessionID: "tm-s1", SessionOrder: 1, Frequency: 2, FirstPosition: 1}},
		Edges:       []course.PrerequisiteEdge{{FromTopicID: "tm-a", ToTopicID: "tm-b"}},
	}
	require.NoError(t, m.MirrorGeneration(ctx, gen))
	// Replacing twice must not fail on the unique constraint.
	require.NoError(t, m.MirrorGeneration(ctx, gen))
}
