package topics

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/bull/coursemap/internal/cluster"
	"github.com/bull/coursemap/internal/course"
)

// Store is the persistence the detector needs.
type Store interface {
	CourseChunks(ctx context.Context, courseID string) ([]course.Chunk, error)
	ReplaceGeneration(ctx context.Context, gen course.Generation) error
}

// Mirror receives each committed generation. Mirror failures are logged and
// never undo the commit.
type Mirror interface {
	MirrorGeneration(ctx context.Context, gen course.Generation) error
}

// Options override clustering settings for a single run. Zero values keep
// the detector defaults.
type Options struct {
	Method         string
	MinClusterSize int
}

// Result summarizes one detection run.
type Result struct {
	Generation course.Generation
	Method     string
	Chunks     int
	Noise      int
	Duration   time.Duration
}

// Detector runs clustering and graph building for a course under the course
// lock and commits the generation atomically.
type Detector struct {
	store          Store
	locker         course.Locker
	builder        *Builder
	clustering     cluster.Config
	minClusterSize int
	mirror         Mirror
	logger         *slog.Logger
}

func NewDetector(store Store, locker course.Locker, builder *Builder, clustering cluster.Config, minClusterSize int, logger *slog.Logger) *Detector {
	if logger == nil {
		logger = slog.Default()
	}
	if minClusterSize == 0 {
		minClusterSize = 3
	}
	return &Detector{
		store:          store,
		locker:         locker,
		builder:        builder,
		clustering:     clustering,
		minClusterSize: minClusterSize,
		logger:         logger,
	}
}

// WithMirror attaches an export target for committed generations.
func (d *Detector) WithMirror(m Mirror) *Detector {
	d.mirror = m
	return d
}

// Detect replaces the course's topic generation. On any failure the previous
// generation stays in place.
func (d *Detector) Detect(ctx context.Context, courseID string, opts Options) (*Result, error) {
	start := time.Now()
	courseID = course.NormalizeCourseID(courseID)

	cfg := d.clustering
	if opts.Method != "" {
		cfg.Method = opts.Method
	}
	minSize := d.minClusterSize
	if opts.MinClusterSize != 0 {
		minSize = opts.MinClusterSize
	}
	engine, err := cluster.New(cfg)
	if err != nil {
		return nil, course.WrapStage(courseID, course.StageCluster, err)
	}

	unlock, err := d.locker.Lock(ctx, courseID)
	if err != nil {
		return nil, course.WrapStage(courseID, course.StageCluster, fmt.Errorf("acquire course lock: %w", err))
	}
	defer unlock()

	chunks, err := d.store.CourseChunks(ctx, courseID)
	if err != nil {
		return nil, course.WrapStage(courseID, course.StageCluster, err)
	}
	course.SortChunks(chunks)

	points := make([]cluster.Point, len(chunks))
	for i, c := range chunks {
		points[i] = cluster.Point{SessionID: c.SessionID, Vector: c.Embedding}
	}
	labels, err := engine.Cluster(points, minSize)
	if err != nil {
		return nil, course.WrapStage(courseID, course.StageCluster, err)
	}
	clusters, noise := cluster.Count(labels)
	d.logger.Info("clustered course", "course", courseID, "method", engine.Method(),
		"chunks", len(chunks), "clusters", clusters, "noise", noise)

	gen, err := d.builder.Build(ctx, courseID, chunks, labels)
	if err != nil {
		return nil, course.WrapStage(courseID, course.StageBuild, err)
	}
	if err := d.store.ReplaceGeneration(ctx, gen); err != nil {
		return nil, course.WrapStage(courseID, course.StageCommit, err)
	}

	if d.mirror != nil {
		if err := d.mirror.MirrorGeneration(ctx, gen); err != nil {
			d.logger.Warn("graph mirror failed", "course", courseID, "error", err)
		}
	}

	return &Result{
		Generation: gen,
		Method:     engine.Method(),
		Chunks:     len(chunks),
		Noise:      noise,
		Duration:   time.Since(start),
	}, nil
}
