package sink

import (
	"context"
	"fmt"
	"io"

	"go.uber.org/zap"

	"github.com/vburojevic/tracesink/internal/config"
	"github.com/vburojevic/tracesink/internal/domain"
	"github.com/vburojevic/tracesink/internal/observe"
)

// Console writes formatted event text to a writer, normally stdout.
type Console struct {
	base
	notFileBacked
	w io.Writer
}

// NewConsole builds the console destination.
func NewConsole(cfg *config.Destination, w io.Writer, log *zap.Logger, metrics *observe.Metrics) *Console {
	return &Console{base: newBase(cfg, log, metrics), w: w}
}

func (c *Console) Write(event *domain.TraceEvent) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || !c.accepts(event) {
		return nil
	}
	if _, err := fmt.Fprintln(c.w, event.FormatText()); err != nil {
		c.log.Error("console write failed", zap.Error(err))
		return err
	}
	c.metrics.EventWritten(context.Background(), c.cfg.Name)
	return nil
}

func (c *Console) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}
