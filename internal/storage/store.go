package storage

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"

	"github.com/bull/coursemap/internal/config"
	"github.com/bull/coursemap/internal/course"
)

const insertBatchSize = 100

// Store persists sessions, chunks and topic generations through gorm.
type Store struct {
	db *gorm.DB
}

// Open connects to sqlite or postgres and migrates the schema.
func Open(cfg config.DatabaseConfig) (*Store, error) {
	var dialector gorm.Dialector
	switch cfg.Driver {
	case "sqlite":
		dialector = sqlite.Open(cfg.DSN)
	case "postgres":
		dialector = postgres.Open(cfg.DSN)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedDriver, cfg.Driver)
	}

	gormLog := gormLogger.New(
		log.New(os.Stderr, "\r\n", log.LstdFlags),
		gormLogger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  gormLogger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)
	db, err := gorm.Open(dialector, &gorm.Config{
		DisableForeignKeyConstraintWhenMigrating: true,
		Logger:                                   gormLog,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open %s database: %w", cfg.Driver, err)
	}
	if cfg.Driver == "sqlite" {
		// sqlite allows a single writer
		sqlDB, err := db.DB()
		if err != nil {
			return nil, err
		}
		sqlDB.SetMaxOpenConns(1)
	}
	if err := db.AutoMigrate(&SessionRecord{}, &ChunkRecord{}, &TopicRecord{}, &AppearanceRecord{}, &EdgeRecord{}); err != nil {
		return nil, fmt.Errorf("failed to migrate schema: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Health pings the database.
func (s *Store) Health(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// SaveSession inserts a session and its chunks in one transaction.
func (s *Store) SaveSession(ctx context.Context, session course.Session, chunks []course.Chunk) error {
	records := make([]ChunkRecord, len(chunks))
	for i, c := range chunks {
		rec, err := chunkToRecord(c)
		if err != nil {
			return err
		}
		records[i] = rec
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		row := sessionToRecord(session)
		if err := tx.Create(&row).Error; err != nil {
			return fmt.Errorf("insert session: %w", err)
		}
		if len(records) == 0 {
			return nil
		}
		if err := tx.CreateInBatches(records, insertBatchSize).Error; err != nil {
			return fmt.Errorf("insert chunks: %w", err)
		}
		return nil
	})
}

func (s *Store) GetSession(ctx context.Context, courseID, sessionID string) (course.Session, error) {
	var row SessionRecord
	err := s.db.WithContext(ctx).
		Where("id = ? AND course_id = ?", sessionID, courseID).
		Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return course.Session{}, fmt.Errorf("%w: %s", course.ErrSessionNotFound, sessionID)
	}
	if err != nil {
		return course.Session{}, err
	}
	return row.toSession(), nil
}

// ListSessions returns a course's sessions ordered by (order, id).
func (s *Store) ListSessions(ctx context.Context, courseID string) ([]course.Session, error) {
	var rows []SessionRecord
	if err := s.db.WithContext(ctx).
		Where("course_id = ?", courseID).
		Order("session_order ASC, id ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]course.Session, len(rows))
	for i, r := range rows {
		out[i] = r.toSession()
	}
	return out, nil
}

// ListCourses returns every course id that has at least one session.
func (s *Store) ListCourses(ctx context.Context) ([]string, error) {
	var ids []string
	err := s.db.WithContext(ctx).Model(&SessionRecord{}).
		Distinct("course_id").Order("course_id").Pluck("course_id", &ids).Error
	return ids, err
}

// DeleteSession removes a session with its chunks and topic appearances.
func (s *Store) DeleteSession(ctx context.Context, courseID, sessionID string) (course.Session, error) {
	session, err := s.GetSession(ctx, courseID, sessionID)
	if err != nil {
		return course.Session{}, err
	}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("session_id = ?", sessionID).Delete(&AppearanceRecord{}).Error; err != nil {
			return err
		}
		if err := tx.Where("session_id = ?", sessionID).Delete(&ChunkRecord{}).Error; err != nil {
			return err
		}
		return tx.Where("id = ?", sessionID).Delete(&SessionRecord{}).Error
	})
	if err != nil {
		return course.Session{}, fmt.Errorf("delete session %s: %w", sessionID, err)
	}
	return session, nil
}

// CourseChunks returns all chunks of a course in (order, session, position,
// seq, id) order.
func (s *Store) CourseChunks(ctx context.Context, courseID string) ([]course.Chunk, error) {
	var rows []ChunkRecord
	if err := s.db.WithContext(ctx).
		Where("course_id = ?", courseID).
		Order("session_order ASC, session_id ASC, position ASC, seq ASC, id ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return toChunks(rows)
}

// SessionChunks returns up to limit chunks from the given sessions in
// teaching order.
func (s *Store) SessionChunks(ctx context.Context, courseID string, sessionIDs []string, limit int) ([]course.Chunk, error) {
	if len(sessionIDs) == 0 {
		return nil, nil
	}
	q := s.db.WithContext(ctx).
		Where("course_id = ? AND session_id IN ?", courseID, sessionIDs).
		Order("session_order ASC, session_id ASC, position ASC, seq ASC, id ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	var rows []ChunkRecord
	if err := q.Find(&rows).Error; err != nil {
		return nil, err
	}
	return toChunks(rows)
}

// CourseDimension returns the embedding dimension already used by a course,
// or 0 when it has no chunks.
func (s *Store) CourseDimension(ctx context.Context, courseID string) (int, error) {
	var row ChunkRecord
	err := s.db.WithContext(ctx).Select("dimension").
		Where("course_id = ?", courseID).Limit(1).Find(&row).Error
	if err != nil {
		return 0, err
	}
	return row.Dimension, nil
}

func (s *Store) CountChunks(ctx context.Context, courseID string) (int64, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&ChunkRecord{}).Where("course_id = ?", courseID).Count(&n).Error
	return n, err
}

func toChunks(rows []ChunkRecord) ([]course.Chunk, error) {
	out := make([]course.Chunk, len(rows))
	for i, r := range rows {
		c, err := r.toChunk()
		if err != nil {
			return nil, err
		}
		out[i] = c
	}
	return out, nil
}
