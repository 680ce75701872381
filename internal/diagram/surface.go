package diagram

import (
	"bytes"
	"context"
	"io"
	"log/slog"

	"github.com/rendis/flowchart/internal/logging"
	"github.com/rendis/flowchart/pkg/schema"
)

// Surface is a presentation layer that exposes named containers to draw into.
type Surface interface {
	Container(id string) (io.Writer, bool)
}

// BufferSurface is an in-memory Surface keyed by container id.
type BufferSurface map[string]*bytes.Buffer

// NewBufferSurface creates a surface with an empty buffer for each id.
func NewBufferSurface(ids ...string) BufferSurface {
	s := make(BufferSurface, len(ids))
	for _, id := range ids {
		s[id] = &bytes.Buffer{}
	}
	return s
}

// Container implements Surface.
func (s BufferSurface) Container(id string) (io.Writer, bool) {
	buf, ok := s[id]
	if !ok {
		return nil, false
	}
	return buf, true
}

// Draw writes the drawables as SVG into the named container. A missing
// container is logged and nothing is drawn; the returned error lets callers
// distinguish that case but is never a panic.
func Draw(ctx context.Context, s Surface, containerID string, d *Drawables, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	ctx = logging.WithContainerID(ctx, containerID)

	w, ok := s.Container(containerID)
	if !ok || w == nil {
		logger.ErrorContext(ctx, "flowchart container not found")
		return schema.NewErrorf(schema.ErrCodeMissingContainer, "container %q not found", containerID)
	}

	if err := WriteSVG(w, d); err != nil {
		logger.ErrorContext(ctx, "flowchart draw failed", slog.String("error", err.Error()))
		return schema.NewError(schema.ErrCodeRender, "draw svg").WithCause(err)
	}
	logger.DebugContext(ctx, "flowchart drawn",
		slog.Int("shapes", len(d.Shapes)), slog.Int("lines", len(d.Lines)))
	return nil
}
