package storage

import (
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/datatypes"

	"github.com/bull/coursemap/internal/course"
)

// SessionRecord is a lecture row.
type SessionRecord struct {
	ID           string `gorm:"column:id;primaryKey"`
	CourseID     string `gorm:"column:course_id;not null;index:idx_session_course_order"`
	SessionOrder int    `gorm:"column:session_order;not null;index:idx_session_course_order"`
	Title        string `gorm:"column:title;not null"`
	PageCount    int    `gorm:"column:page_count"`
	CreatedAt    time.Time
}

func (SessionRecord) TableName() string { return "sessions" }

// ChunkRecord stores chunk text with its embedding as a JSON array.
// SessionOrder is copied from the session so temporal filters need no join.
type ChunkRecord struct {
	ID           string         `gorm:"column:id;primaryKey"`
	CourseID     string         `gorm:"column:course_id;not null;index"`
	SessionID    string         `gorm:"column:session_id;not null;index"`
	SessionOrder int            `gorm:"column:session_order;not null"`
	Position     int            `gorm:"column:position;not null"`
	Seq          int            `gorm:"column:seq;not null"`
	Text         string         `gorm:"column:text;not null"`
	Embedding    datatypes.JSON `gorm:"column:embedding;not null"`
	Dimension    int            `gorm:"column:dimension;not null"`
}

func (ChunkRecord) TableName() string { return "chunks" }

type TopicRecord struct {
	ID          string `gorm:"column:id;primaryKey"`
	CourseID    string `gorm:"column:course_id;not null;index"`
	Name        string `gorm:"column:name;not null"`
	Description string `gorm:"column:description"`
	BuildOrder  int    `gorm:"column:build_order;not null"`
	CreatedAt   time.Time
}

func (TopicRecord) TableName() string { return "topics" }

type AppearanceRecord struct {
	TopicID       string `gorm:"column:topic_id;primaryKey"`
	SessionID     string `gorm:"column:session_id;primaryKey;index"`
	CourseID      string `gorm:"column:course_id;not null;index"`
	SessionOrder  int    `gorm:"column:session_order;not null"`
	Frequency     int    `gorm:"column:frequency;not null"`
	FirstPosition int    `gorm:"column:first_position;not null"`
}

func (AppearanceRecord) TableName() string { return "topic_appearances" }

type EdgeRecord struct {
	CourseID    string `gorm:"column:course_id;not null;index"`
	FromTopicID string `gorm:"column:from_topic_id;primaryKey"`
	ToTopicID   string `gorm:"column:to_topic_id;primaryKey"`
}

func (EdgeRecord) TableName() string { return "prerequisite_edges" }

func sessionToRecord(s course.Session) SessionRecord {
	return SessionRecord{ID: s.ID, CourseID: s.CourseID, SessionOrder: s.Order, Title: s.Title, PageCount: s.PageCount}
}

func (r SessionRecord) toSession() course.Session {
	return course.Session{ID: r.ID, CourseID: r.CourseID, Order: r.SessionOrder, Title: r.Title, PageCount: r.PageCount}
}

func chunkToRecord(c course.Chunk) (ChunkRecord, error) {
	emb, err := json.Marshal(c.Embedding)
	if err != nil {
		return ChunkRecord{}, fmt.Errorf("encode embedding: %w", err)
	}
	return ChunkRecord{
		ID:           c.ID,
		CourseID:     c.CourseID,
		SessionID:    c.SessionID,
		SessionOrder: c.SessionOrder,
		Position:     c.Position,
		Seq:          c.Seq,
		Text:         c.Text,
		Embedding:    datatypes.JSON(emb),
		Dimension:    len(c.Embedding),
	}, nil
}

func (r ChunkRecord) toChunk() (course.Chunk, error) {
	var emb []float32
	if len(r.Embedding) > 0 {
		if err := json.Unmarshal(r.Embedding, &emb); err != nil {
			return course.Chunk{}, fmt.Errorf("decode embedding of chunk %s: %w", r.ID, err)
		}
	}
	return course.Chunk{
		ID:           r.ID,
		CourseID:     r.CourseID,
		SessionID:    r.SessionID,
		SessionOrder: r.SessionOrder,
		Position:     r.Position,
		Seq:          r.Seq,
		Text:         r.Text,
		Embedding:    emb,
	}, nil
}

func (r TopicRecord) toTopic() course.Topic {
	return course.Topic{ID: r.ID, CourseID: r.CourseID, Name: r.Name, Description: r.Description}
}

func (r AppearanceRecord) toAppearance() course.Appearance {
	return course.Appearance{
		TopicID:       r.TopicID,
		SessionID:     r.SessionID,
		SessionOrder:  r.SessionOrder,
		Frequency:     r.Frequency,
		FirstPosition: r.FirstPosition,
	}
}
