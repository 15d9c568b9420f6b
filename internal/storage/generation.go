package storage

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/bull/coursemap/internal/course"
)

// ReplaceGeneration swaps a course's topics, appearances and edges for gen in
// one transaction. Readers see either the old or the new generation.
func (s *Store) ReplaceGeneration(ctx context.Context, gen course.Generation) error {
	if err := gen.Validate(); err != nil {
		return err
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := checkSessionsExist(tx, gen); err != nil {
			return err
		}
		for _, model := range []any{&EdgeRecord{}, &AppearanceRecord{}, &TopicRecord{}} {
			if err := tx.Where("course_id = ?", gen.CourseID).Delete(model).Error; err != nil {
				return fmt.Errorf("clear previous generation: %w", err)
			}
		}

		if len(gen.Topics) > 0 {
			topics := make([]TopicRecord, len(gen.Topics))
			for i, t := range gen.Topics {
				topics[i] = TopicRecord{ID: t.ID, CourseID: gen.CourseID, Name: t.Name, Description: t.Description, BuildOrder: i}
			}
			if err := tx.CreateInBatches(topics, insertBatchSize).Error; err != nil {
				return fmt.Errorf("insert topics: %w", err)
			}
		}
		if len(gen.Appearances) > 0 {
			apps := make([]AppearanceRecord, len(gen.Appearances))
			for i, a := range gen.Appearances {
				apps[i] = AppearanceRecord{
					TopicID:       a.TopicID,
					SessionID:     a.SessionID,
					CourseID:      gen.CourseID,
					SessionOrder:  a.SessionOrder,
					Frequency:     a.Frequency,
					FirstPosition: a.FirstPosition,
				}
			}
			if err := tx.CreateInBatches(apps, insertBatchSize).Error; err != nil {
				return fmt.Errorf("insert appearances: %w", err)
			}
		}
		if len(gen.Edges) > 0 {
			edges := make([]EdgeRecord, len(gen.Edges))
			for i, e := range gen.Edges {
				edges[i] = EdgeRecord{CourseID: gen.CourseID, FromTopicID: e.FromTopicID, ToTopicID: e.ToTopicID}
			}
			if err := tx.CreateInBatches(edges, insertBatchSize).Error; err != nil {
				return fmt.Errorf("insert edges: %w", err)
			}
		}
		return nil
	})
}

func checkSessionsExist(tx *gorm.DB, gen course.Generation) error {
	ids := make(map[string]struct{})
	for _, a := range gen.Appearances {
		ids[a.SessionID] = struct{}{}
	}
	if len(ids) == 0 {
		return nil
	}
	list := make([]string, 0, len(ids))
	for id := range ids {
		list = append(list, id)
	}
	var n int64
	if err := tx.Model(&SessionRecord{}).
		Where("course_id = ? AND id IN ?", gen.CourseID, list).
		Count(&n).Error; err != nil {
		return err
	}
	if int(n) != len(list) {
		return course.ErrorfConsistency("%d appearance session(s) no longer exist", len(list)-int(n))
	}
	return nil
}

// CurrentGeneration loads the committed generation of a course. Topics keep
// their build order; appearances are ordered by session order.
func (s *Store) CurrentGeneration(ctx context.Context, courseID string) (course.Generation, error) {
	gen := course.Generation{CourseID: courseID}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var topics []TopicRecord
		if err := tx.Where("course_id = ?", courseID).Order("build_order ASC").Find(&topics).Error; err != nil {
			return err
		}
		var apps []AppearanceRecord
		if err := tx.Where("course_id = ?", courseID).
			Order("session_order ASC, session_id ASC, topic_id ASC").Find(&apps).Error; err != nil {
			return err
		}
		var edges []EdgeRecord
		if err := tx.Where("course_id = ?", courseID).
			Order("from_topic_id ASC, to_topic_id ASC").Find(&edges).Error; err != nil {
			return err
		}
		for _, t := range topics {
			gen.Topics = append(gen.Topics, t.toTopic())
		}
		for _, a := range apps {
			gen.Appearances = append(gen.Appearances, a.toAppearance())
		}
		for _, e := range edges {
			gen.Edges = append(gen.Edges, course.PrerequisiteEdge{FromTopicID: e.FromTopicID, ToTopicID: e.ToTopicID})
		}
		return nil
	})
	return gen, err
}

// GetTopic returns one topic with its appearances in session order.
func (s *Store) GetTopic(ctx context.Context, courseID, topicID string) (course.Topic, []course.Appearance, error) {
	var row TopicRecord
	err := s.db.WithContext(ctx).Where("id = ? AND course_id = ?", topicID, courseID).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return course.Topic{}, nil, fmt.Errorf("%w: %s", course.ErrTopicNotFound, topicID)
	}
	if err != nil {
		return course.Topic{}, nil, err
	}
	var apps []AppearanceRecord
	if err := s.db.WithContext(ctx).Where("topic_id = ?", topicID).
		Order("session_order ASC, session_id ASC").Find(&apps).Error; err != nil {
		return course.Topic{}, nil, err
	}
	out := make([]course.Appearance, len(apps))
	for i, a := range apps {
		out[i] = a.toAppearance()
	}
	return row.toTopic(), out, nil
}
