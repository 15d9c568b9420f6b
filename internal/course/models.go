// Package course holds the domain model shared by ingestion, topic detection
// and question answering.
package course

import (
	"sort"
	"strings"
)

// Session is one lecture of a course. Order is the position of the lecture in
// the teaching sequence and is unique within a course.
type Session struct {
	ID        string
	CourseID  string
	Order     int
	Title     string
	PageCount int
}

// Chunk is a unit of lecture text with its embedding. Position is the
// 1-based page/section number inside the session. Seq orders chunks that
// were split from the same position.
type Chunk struct {
	ID           string
	CourseID     string
	SessionID    string
	SessionOrder int
	Position     int
	Seq          int
	Text         string
	Embedding    []float32
}

// ScoredChunk is a search hit.
type ScoredChunk struct {
	Chunk
	Score float64
}

// Topic is a named group of semantically related chunks.
type Topic struct {
	ID          string
	CourseID    string
	Name        string
	Description string
}

// Appearance records how strongly a topic shows up in one session.
type Appearance struct {
	TopicID       string
	SessionID     string
	SessionOrder  int
	Frequency     int
	FirstPosition int
}

// PrerequisiteEdge means From was introduced before To and the two co-occur.
type PrerequisiteEdge struct {
	FromTopicID string
	ToTopicID   string
}

// Generation is one complete topic detection result for a course. It is
// replaced as a unit.
type Generation struct {
	CourseID    string
	Topics      []Topic
	Appearances []Appearance
	Edges       []PrerequisiteEdge
}

// NormalizeCourseID uppercases and trims a course code so "cs101 " and
// "CS101" address the same course.
func NormalizeCourseID(id string) string {
	return strings.ToUpper(strings.TrimSpace(id))
}

// SortChunks orders chunks by session order, session id, position, seq and id.
func SortChunks(chunks []Chunk) {
	sort.SliceStable(chunks, func(i, j int) bool {
		return chunkLess(chunks[i], chunks[j])
	})
}

func chunkLess(a, b Chunk) bool {
	if a.SessionOrder != b.SessionOrder {
		return a.SessionOrder < b.SessionOrder
	}
	if a.SessionID != b.SessionID {
		return a.SessionID < b.SessionID
	}
	if a.Position != b.Position {
		return a.Position < b.Position
	}
	if a.Seq != b.Seq {
		return a.Seq < b.Seq
	}
	return a.ID < b.ID
}

// RankChunks orders hits by descending score. Equal scores fall back to
// ascending session order and position so results are deterministic.
func RankChunks(hits []ScoredChunk) {
	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return chunkLess(hits[i].Chunk, hits[j].Chunk)
	})
}

// SortSessions orders sessions by their teaching order.
func SortSessions(sessions []Session) {
	sort.SliceStable(sessions, func(i, j int) bool {
		if sessions[i].Order != sessions[j].Order {
			return sessions[i].Order < sessions[j].Order
		}
		return sessions[i].ID < sessions[j].ID
	})
}

// Validate checks that every appearance and edge references a topic of the
// generation and that no edge is a self loop.
func (g Generation) Validate() error {
	ids := make(map[string]struct{}, len(g.Topics))
	for _, t := range g.Topics {
		if t.CourseID != g.CourseID {
			return ErrorfConsistency("topic %s belongs to course %s, not %s", t.ID, t.CourseID, g.CourseID)
		}
		ids[t.ID] = struct{}{}
	}
	for _, a := range g.Appearances {
		if _, ok := ids[a.TopicID]; !ok {
			return ErrorfConsistency("appearance references unknown topic %s", a.TopicID)
		}
	}
	for _, e := range g.Edges {
		if _, ok := ids[e.FromTopicID]; !ok {
			return ErrorfConsistency("edge references unknown topic %s", e.FromTopicID)
		}
		if _, ok := ids[e.ToTopicID]; !ok {
			return ErrorfConsistency("edge references unknown topic %s", e.ToTopicID)
		}
		if e.FromTopicID == e.ToTopicID {
			return ErrorfConsistency("self-loop on topic %s", e.FromTopicID)
		}
	}
	return nil
}
