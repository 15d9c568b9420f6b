// Package topics turns cluster assignments into named topics, per-session
// appearances and a prerequisite graph, and runs detection for a course.
package topics

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/bull/coursemap/internal/cluster"
	"github.com/bull/coursemap/internal/course"
)

// BuilderConfig tunes naming and prerequisite inference.
type BuilderConfig struct {
	MinCoOccurrence int
	SampleSize      int
	MaxSampleChars  int
	// NamingConcurrency bounds parallel namer calls.
	NamingConcurrency int
}

// Builder produces a complete topic generation from clustered chunks.
type Builder struct {
	namer  Namer
	cfg    BuilderConfig
	newID  func() string
	logger *slog.Logger
}

func NewBuilder(namer Namer, cfg BuilderConfig, logger *slog.Logger) *Builder {
	if cfg.MinCoOccurrence <= 0 {
		cfg.MinCoOccurrence = 1
	}
	if cfg.SampleSize <= 0 {
		cfg.SampleSize = 5
	}
	if cfg.MaxSampleChars <= 0 {
		cfg.MaxSampleChars = 200
	}
	if cfg.NamingConcurrency <= 0 {
		cfg.NamingConcurrency = 4
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Builder{namer: namer, cfg: cfg, newID: uuid.NewString, logger: logger}
}

type group struct {
	members      []int // chunk indices in input order
	firstOrder   int
	appearances  map[string]*course.Appearance
	sessionOrder []string
}

// Build groups chunks by cluster label, names each cluster, computes
// appearances and infers prerequisite edges. Edges only go from a topic that
// first appears strictly earlier to one that first appears later, and only
// when the two share at least MinCoOccurrence sessions.
func (b *Builder) Build(ctx context.Context, courseID string, chunks []course.Chunk, labels []int) (course.Generation, error) {
	gen := course.Generation{CourseID: courseID}
	if len(chunks) != len(labels) {
		return gen, course.ErrorfInput("%d chunks but %d cluster labels", len(chunks), len(labels))
	}

	groups := make(map[int]*group)
	var ids []int
	for i, l := range labels {
		if l == cluster.Noise {
			continue
		}
		g, ok := groups[l]
		if !ok {
			g = &group{firstOrder: chunks[i].SessionOrder, appearances: make(map[string]*course.Appearance)}
			groups[l] = g
			ids = append(ids, l)
		}
		g.members = append(g.members, i)
		c := chunks[i]
		if c.SessionOrder < g.firstOrder {
			g.firstOrder = c.SessionOrder
		}
		a, ok := g.appearances[c.SessionID]
		if !ok {
			a = &course.Appearance{SessionID: c.SessionID, SessionOrder: c.SessionOrder, FirstPosition: c.Position}
			g.appearances[c.SessionID] = a
			g.sessionOrder = append(g.sessionOrder, c.SessionID)
		}
		a.Frequency++
		if c.Position < a.FirstPosition {
			a.FirstPosition = c.Position
		}
	}
	sort.Ints(ids)

	labelsOut, err := b.nameAll(ctx, ids, groups, chunks)
	if err != nil {
		return gen, err
	}

	topicIDs := make([]string, len(ids))
	for i, id := range ids {
		topicIDs[i] = b.newID()
		gen.Topics = append(gen.Topics, course.Topic{
			ID:          topicIDs[i],
			CourseID:    courseID,
			Name:        labelsOut[i].Name,
			Description: labelsOut[i].Description,
		})
		g := groups[id]
		var apps []course.Appearance
		for _, sid := range g.sessionOrder {
			a := *g.appearances[sid]
			a.TopicID = topicIDs[i]
			apps = append(apps, a)
		}
		sort.SliceStable(apps, func(x, y int) bool {
			if apps[x].SessionOrder != apps[y].SessionOrder {
				return apps[x].SessionOrder < apps[y].SessionOrder
			}
			return apps[x].SessionID < apps[y].SessionID
		})
		gen.Appearances = append(gen.Appearances, apps...)
	}

	for i, a := range ids {
		for j, bID := range ids {
			if i == j {
				continue
			}
			ga, gb := groups[a], groups[bID]
			if ga.firstOrder >= gb.firstOrder {
				continue
			}
			if coOccurrence(ga, gb) >= b.cfg.MinCoOccurrence {
				gen.Edges = append(gen.Edges, course.PrerequisiteEdge{FromTopicID: topicIDs[i], ToTopicID: topicIDs[j]})
			}
		}
	}

	if err := VerifyAcyclic(gen.Topics, gen.Edges); err != nil {
		return course.Generation{CourseID: courseID}, err
	}
	if err := gen.Validate(); err != nil {
		return course.Generation{CourseID: courseID}, fmt.Errorf("%w: %v", course.ErrGraphInvariantViolation, err)
	}

	b.logger.Info("topic generation built",
		"course", courseID, "topics", len(gen.Topics), "appearances", len(gen.Appearances), "edges", len(gen.Edges))
	return gen, nil
}

func (b *Builder) nameAll(ctx context.Context, ids []int, groups map[int]*group, chunks []course.Chunk) ([]Label, error) {
	out := make([]Label, len(ids))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.cfg.NamingConcurrency)
	for i, id := range ids {
		texts := make([]string, 0, len(groups[id].members))
		for _, m := range groups[id].members {
			texts = append(texts, chunks[m].Text)
		}
		samples := sampleTexts(texts, b.cfg.SampleSize, b.cfg.MaxSampleChars)
		g.Go(func() error {
			label, err := b.namer.Name(gctx, i, samples)
			if err != nil {
				return err
			}
			out[i] = label
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// coOccurrence counts sessions where both topics appear.
func coOccurrence(a, b *group) int {
	n := 0
	for sid := range a.appearances {
		if _, ok := b.appearances[sid]; ok {
			n++
		}
	}
	return n
}

// VerifyAcyclic runs Kahn's algorithm over the edge set and fails with
// course.ErrGraphInvariantViolation if a cycle remains.
func VerifyAcyclic(topics []course.Topic, edges []course.PrerequisiteEdge) error {
	indegree := make(map[string]int, len(topics))
	for _, t := range topics {
		indegree[t.ID] = 0
	}
	out := make(map[string][]string)
	for _, e := range edges {
		out[e.FromTopicID] = append(out[e.FromTopicID], e.ToTopicID)
		indegree[e.ToTopicID]++
		if _, ok := indegree[e.FromTopicID]; !ok {
			indegree[e.FromTopicID] = 0
		}
	}
	var queue []string
	for id, d := range indegree {
		if d == 0 {
			queue = append(queue, id)
		}
	}
	seen := 0
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		seen++
		for _, to := range out[id] {
			indegree[to]--
			if indegree[to] == 0 {
				queue = append(queue, to)
			}
		}
	}
	if seen != len(indegree) {
		return fmt.Errorf("%w: prerequisite graph has a cycle among %d topics",
			course.ErrGraphInvariantViolation, len(indegree)-seen)
	}
	return nil
}
