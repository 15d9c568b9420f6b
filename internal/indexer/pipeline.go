// Package indexer turns lecture files into stored, embedded and indexed
// chunks for one course session at a time.
package indexer

import (
	"context"
	"fmt"
	"log/slog"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/bull/coursemap/internal/course"
	"github.com/bull/coursemap/internal/extract"
	"github.com/bull/coursemap/internal/index"
)

// Store is the persistence the pipeline writes through.
type Store interface {
	SaveSession(ctx context.Context, session course.Session, chunks []course.Chunk) error
	DeleteSession(ctx context.Context, courseID, sessionID string) (course.Session, error)
	ListSessions(ctx context.Context, courseID string) ([]course.Session, error)
	CourseDimension(ctx context.Context, courseID string) (int, error)
}

// Embedder embeds many texts, index-aligned.
type Embedder interface {
	EmbedAll(ctx context.Context, texts []string) ([][]float32, error)
}

// LectureInput is one lecture file for one session.
type LectureInput struct {
	CourseID     string
	SessionOrder int
	Title        string
	FileName     string
	Data         []byte
}

// IngestResult describes a stored session.
type IngestResult struct {
	Session  course.Session
	Chunks   int
	Duration time.Duration
}

// SyncResult contains statistics about a sync run.
type SyncResult struct {
	TotalDocs      int
	TotalChunks    int
	SuccessfulDocs int
	SkippedDocs    int
	FailedDocs     []FailedDoc
	Revision       string
	Duration       time.Duration
}

// FailedDoc represents a lecture that failed to ingest.
type FailedDoc struct {
	Path   string
	Reason string
}

// Pipeline extracts, splits, embeds and persists lectures.
type Pipeline struct {
	store     Store
	index     index.Writer
	embedder  Embedder
	locker    course.Locker
	chunkSize int
	logger    *slog.Logger
	newID     func() string
}

// NewPipeline creates a new ingestion pipeline with the given components.
func NewPipeline(store Store, idx index.Writer, embedder Embedder, locker course.Locker, chunkSize int, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		store:     store,
		index:     idx,
		embedder:  embedder,
		locker:    locker,
		chunkSize: chunkSize,
		logger:    logger,
		newID:     uuid.NewString,
	}
}

// IngestLecture stores one lecture as a new session. Embedding runs before
// the course lock is taken; the duplicate-order and dimension checks and
// the writes happen under it. If the index write fails the stored session
// is removed again.
func (p *Pipeline) IngestLecture(ctx context.Context, in LectureInput) (*IngestResult, error) {
	start := time.Now()
	courseID := course.NormalizeCourseID(in.CourseID)
	if courseID == "" {
		return nil, course.ErrorfInput("course id is required")
	}
	if in.SessionOrder < 1 {
		return nil, course.WrapStage(courseID, course.StageIngest,
			course.ErrorfInput("session order must be positive, got %d", in.SessionOrder))
	}
	title := strings.TrimSpace(in.Title)
	if title == "" {
		title = TitleFromFileName(in.FileName)
	}

	extractor, err := extract.ForFile(in.FileName)
	if err != nil {
		return nil, course.WrapStage(courseID, course.StageIngest, fmt.Errorf("%w: %w", course.ErrInput, err))
	}
	doc, err := extractor.Extract(in.Data)
	if err != nil {
		return nil, course.WrapStage(courseID, course.StageIngest, fmt.Errorf("%w: extract %s: %w", course.ErrInput, in.FileName, err))
	}
	pieces := extract.Split(doc.Sections, p.chunkSize)
	if len(pieces) == 0 {
		return nil, course.WrapStage(courseID, course.StageIngest,
			course.ErrorfInput("no extractable text in %s", in.FileName))
	}
	p.logger.Debug("Extracted lecture", "course", courseID, "file", in.FileName, "positions", len(doc.Sections), "chunks", len(pieces))

	texts := make([]string, len(pieces))
	for i, piece := range pieces {
		texts[i] = piece.Text
	}
	vectors, err := p.embedder.EmbedAll(ctx, texts)
	if err != nil {
		return nil, course.WrapStage(courseID, course.StageEmbed, err)
	}

	unlock, err := p.locker.Lock(ctx, courseID)
	if err != nil {
		return nil, course.WrapStage(courseID, course.StageIngest, err)
	}
	defer unlock()

	if err := p.checkCourse(ctx, courseID, in.SessionOrder, len(vectors[0])); err != nil {
		return nil, course.WrapStage(courseID, course.StageIngest, err)
	}

	session := course.Session{
		ID:        p.newID(),
		CourseID:  courseID,
		Order:     in.SessionOrder,
		Title:     title,
		PageCount: doc.PageCount,
	}
	chunks := make([]course.Chunk, len(pieces))
	for i, piece := range pieces {
		chunks[i] = course.Chunk{
			ID:           p.newID(),
			CourseID:     courseID,
			SessionID:    session.ID,
			SessionOrder: session.Order,
			Position:     piece.Position,
			Seq:          piece.Seq,
			Text:         piece.Text,
			Embedding:    vectors[i],
		}
	}

	if err := p.store.SaveSession(ctx, session, chunks); err != nil {
		return nil, course.WrapStage(courseID, course.StageIngest, fmt.Errorf("save session: %w", err))
	}
	if err := p.index.IndexChunks(ctx, chunks); err != nil {
		if _, derr := p.store.DeleteSession(context.WithoutCancel(ctx), courseID, session.ID); derr != nil {
			p.logger.Error("Failed to roll back session after index failure",
				"course", courseID, "session", session.ID, "error", derr)
		}
		return nil, course.WrapStage(courseID, course.StageIngest, fmt.Errorf("index chunks: %w", err))
	}

	result := &IngestResult{Session: session, Chunks: len(chunks), Duration: time.Since(start)}
	p.logger.Info("Ingested lecture",
		"course", courseID,
		"session", session.ID,
		"order", session.Order,
		"chunks", len(chunks),
		"duration", result.Duration,
	)
	return result, nil
}

func (p *Pipeline) checkCourse(ctx context.Context, courseID string, order, dim int) error {
	sessions, err := p.store.ListSessions(ctx, courseID)
	if err != nil {
		return err
	}
	for _, s := range sessions {
		if s.Order == order {
			return fmt.Errorf("%w: order %d is session %q", course.ErrDuplicateSessionOrder, order, s.Title)
		}
	}
	existing, err := p.store.CourseDimension(ctx, courseID)
	if err != nil {
		return err
	}
	if existing != 0 && existing != dim {
		return fmt.Errorf("%w: course uses %d, lecture embedded with %d", course.ErrEmbeddingDimensionMismatch, existing, dim)
	}
	return nil
}

// RemoveSession deletes a session from the store and the index under the
// course lock. The previous topic generation is left as is until the next
// detection run.
func (p *Pipeline) RemoveSession(ctx context.Context, courseID, sessionID string) (course.Session, error) {
	courseID = course.NormalizeCourseID(courseID)
	unlock, err := p.locker.Lock(ctx, courseID)
	if err != nil {
		return course.Session{}, course.WrapStage(courseID, course.StageIngest, err)
	}
	defer unlock()

	session, err := p.store.DeleteSession(ctx, courseID, sessionID)
	if err != nil {
		return course.Session{}, course.WrapStage(courseID, course.StageIngest, err)
	}
	if err := p.index.RemoveSession(ctx, courseID, sessionID); err != nil {
		return course.Session{}, course.WrapStage(courseID, course.StageIngest, fmt.Errorf("remove vectors: %w", err))
	}
	p.logger.Info("Removed session", "course", courseID, "session", sessionID, "order", session.Order)
	return session, nil
}

// LectureRef names a lecture in a Source.
type LectureRef struct {
	Path         string
	SessionOrder int
	Title        string
}

// Source lists and fetches lecture files, such as a directory in a GitHub
// repository.
type Source interface {
	Revision(ctx context.Context) (string, error)
	ListLectures(ctx context.Context) ([]LectureRef, error)
	FetchLecture(ctx context.Context, ref LectureRef) ([]byte, error)
}

// Sync ingests every lecture in src whose session order the course does not
// have yet. Lectures that fail are recorded and skipped.
func (p *Pipeline) Sync(ctx context.Context, courseID string, src Source) (*SyncResult, error) {
	start := time.Now()
	courseID = course.NormalizeCourseID(courseID)
	result := &SyncResult{}

	revision, err := src.Revision(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: get revision: %w", course.ErrTransport, err)
	}
	result.Revision = revision
	p.logger.Info("Starting sync", "course", courseID, "revision", revision)

	refs, err := src.ListLectures(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: list lectures: %w", course.ErrTransport, err)
	}
	result.TotalDocs = len(refs)

	existing, err := p.store.ListSessions(ctx, courseID)
	if err != nil {
		return nil, err
	}
	have := make(map[int]bool, len(existing))
	for _, s := range existing {
		have[s.Order] = true
	}

	for _, ref := range refs {
		if have[ref.SessionOrder] {
			result.SkippedDocs++
			continue
		}
		data, err := src.FetchLecture(ctx, ref)
		if err != nil {
			p.logger.Warn("Failed to fetch lecture", "path", ref.Path, "error", err)
			result.FailedDocs = append(result.FailedDocs, FailedDoc{Path: ref.Path, Reason: err.Error()})
			continue
		}
		res, err := p.IngestLecture(ctx, LectureInput{
			CourseID:     courseID,
			SessionOrder: ref.SessionOrder,
			Title:        ref.Title,
			FileName:     path.Base(ref.Path),
			Data:         data,
		})
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			p.logger.Warn("Failed to ingest lecture", "path", ref.Path, "error", err)
			result.FailedDocs = append(result.FailedDocs, FailedDoc{Path: ref.Path, Reason: err.Error()})
			continue
		}
		have[ref.SessionOrder] = true
		result.SuccessfulDocs++
		result.TotalChunks += res.Chunks
	}

	result.Duration = time.Since(start)
	p.logger.Info("Sync complete",
		"course", courseID,
		"successful", result.SuccessfulDocs,
		"skipped", result.SkippedDocs,
		"failed", len(result.FailedDocs),
		"chunks", result.TotalChunks,
		"duration", result.Duration,
	)
	if result.TotalDocs > 0 && len(result.FailedDocs) == result.TotalDocs {
		return result, fmt.Errorf("all %d lectures failed, first: %s", result.TotalDocs, result.FailedDocs[0].Reason)
	}
	return result, nil
}
