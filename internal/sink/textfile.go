package sink

import (
	"context"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"

	"github.com/vburojevic/tracesink/internal/config"
	"github.com/vburojevic/tracesink/internal/domain"
	"github.com/vburojevic/tracesink/internal/observe"
	"github.com/vburojevic/tracesink/internal/rotate"
)

// TextFile writes formatted event lines to a rotation-managed file.
type TextFile struct {
	base
	engine *rotate.Engine
}

// NewTextFile builds the text destination and opens its initial output
// file via a rotation engine.
func NewTextFile(cfg *config.Destination, clk clock.Clock, log *zap.Logger, metrics *observe.Metrics) (*TextFile, error) {
	engine, err := rotate.NewEngine(rotate.Options{
		BaseName:         cfg.Name,
		Directory:        cfg.Directory,
		FilenameTemplate: cfg.FilenameTemplate,
		RotationInterval: cfg.RotationInterval,
		TimestampLocal:   cfg.TimestampLocal,
		MaximumAge:       cfg.MaximumAge,
		MaximumSizeBytes: cfg.MaximumSizeBytes,
		Logger:           log,
		Metrics:          metrics,
		Clock:            clk,
	})
	if err != nil {
		return nil, err
	}
	return &TextFile{base: newBase(cfg, log, metrics), engine: engine}, nil
}

func (t *TextFile) Write(event *domain.TraceEvent) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed || !t.accepts(event) {
		return nil
	}
	if _, err := t.engine.Write([]byte(event.FormatText() + "\n")); err != nil {
		t.log.Error("text write failed", zap.Error(err))
		return err
	}
	t.metrics.EventWritten(context.Background(), t.cfg.Name)
	return nil
}

func (t *TextFile) RotateIfDue(now time.Time) (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return false, nil
	}
	return t.engine.CheckedRotate(now)
}

func (t *TextFile) Rotate(now time.Time) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil
	}
	return t.engine.Rotate(now)
}

// CurrentFilename exposes the active output path.
func (t *TextFile) CurrentFilename() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.engine.CurrentFilename()
}

func (t *TextFile) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil
	}
	t.closed = true
	return t.engine.Close()
}
