package storage

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/bull/coursemap/internal/config"
	"github.com/bull/coursemap/internal/course"
)

// GraphMirror exports committed topic generations to Neo4j as
// (:Topic)-[:PREREQUISITE_OF]->(:Topic) and (:Topic)-[:APPEARS_IN]->(:Session).
type GraphMirror struct {
	driver   neo4j.DriverWithContext
	database string
	logger   *slog.Logger
}

// NewGraphMirror returns nil, nil when no URI is configured.
func NewGraphMirror(ctx context.Context, cfg config.GraphConfig, logger *slog.Logger) (*GraphMirror, error) {
	if cfg.Neo4jURI == "" {
		return nil, nil
	}
	if logger == nil {
		logger = slog.Default()
	}
	auth := neo4j.BasicAuth(cfg.Neo4jUser, cfg.Neo4jPassword, "")
	driver, err := neo4j.NewDriverWithContext(cfg.Neo4jURI, auth, func(c *neo4j.Config) {
		c.SocketConnectTimeout = 10 * time.Second
	})
	if err != nil {
		return nil, fmt.Errorf("neo4j: init driver: %w", err)
	}
	vctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := driver.VerifyConnectivity(vctx); err != nil {
		_ = driver.Close(ctx)
		return nil, fmt.Errorf("neo4j: verify connectivity: %w", err)
	}
	m := &GraphMirror{driver: driver, database: cfg.Neo4jDatabase, logger: logger}
	m.initSchema(ctx)
	return m, nil
}

func (m *GraphMirror) initSchema(ctx context.Context) {
	session := m.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite, DatabaseName: m.database})
	defer session.Close(ctx)
	stmts := []string{
		`CREATE CONSTRAINT topic_id_unique IF NOT EXISTS FOR (t:Topic) REQUIRE t.id IS UNIQUE`,
		`CREATE CONSTRAINT session_id_unique IF NOT EXISTS FOR (s:Session) REQUIRE s.id IS UNIQUE`,
	}
	for _, q := range stmts {
		res, err := session.Run(ctx, q, nil)
		if err != nil {
			m.logger.Warn("neo4j schema init failed (continuing)", "error", err)
			continue
		}
		_, _ = res.Consume(ctx)
	}
}

// MirrorGeneration replaces the course's topic subgraph in one write
// transaction.
func (m *GraphMirror) MirrorGeneration(ctx context.Context, gen course.Generation) error {
	topics := make([]map[string]any, len(gen.Topics))
	for i, t := range gen.Topics {
		topics[i] = map[string]any{"id": t.ID, "name": t.Name, "description": t.Description}
	}
	apps := make([]map[string]any, len(gen.Appearances))
	for i, a := range gen.Appearances {
		apps[i] = map[string]any{
			"topic_id":       a.TopicID,
			"session_id":     a.SessionID,
			"session_order":  int64(a.SessionOrder),
			"frequency":      int64(a.Frequency),
			"first_position": int64(a.FirstPosition),
		}
	}
	edges := make([]map[string]any, len(gen.Edges))
	for i, e := range gen.Edges {
		edges[i] = map[string]any{"from": e.FromTopicID, "to": e.ToTopicID}
	}

	session := m.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite, DatabaseName: m.database})
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		steps := []struct {
			query  string
			params map[string]any
		}{
			{`MATCH (t:Topic {course_id: $course}) DETACH DELETE t`, map[string]any{"course": gen.CourseID}},
			{`
UNWIND $topics AS t
CREATE (n:Topic {id: t.id, course_id: $course})
SET n.name = t.name, n.description = t.description`, map[string]any{"course": gen.CourseID, "topics": topics}},
			{`
UNWIND $apps AS a
MATCH (t:Topic {id: a.topic_id})
MERGE (s:Session {id: a.session_id})
SET s.course_id = $course, s.session_order = a.session_order
MERGE (t)-[r:APPEARS_IN]->(s)
SET r.frequency = a.frequency, r.first_position = a.first_position`, map[string]any{"course": gen.CourseID, "apps": apps}},
			{`
UNWIND $edges AS e
MATCH (a:Topic {id: e.from}), (b:Topic {id: e.to})
MERGE (a)-[:PREREQUISITE_OF]->(b)`, map[string]any{"edges": edges}},
		}
		for _, st := range steps {
			res, err := tx.Run(ctx, st.query, st.params)
			if err != nil {
				return nil, err
			}
			if _, err := res.Consume(ctx); err != nil {
				return nil, err
			}
		}
		return nil, nil
	})
	if err != nil {
		return fmt.Errorf("neo4j: mirror generation for %s: %w", gen.CourseID, err)
	}
	m.logger.Info("mirrored topic graph", "course", gen.CourseID, "topics", len(topics), "edges", len(edges))
	return nil
}

func (m *GraphMirror) Close(ctx context.Context) error {
	if m == nil || m.driver == nil {
		return nil
	}
	return m.driver.Close(ctx)
}
