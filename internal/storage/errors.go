package storage

import (
	"fmt"

	"github.com/bull/coursemap/internal/course"
)

var (
	ErrQdrantUnreachable = fmt.Errorf("%w: qdrant server unreachable", course.ErrTransport)
	ErrUnsupportedDriver = fmt.Errorf("%w: unsupported database driver", course.ErrInput)
)
