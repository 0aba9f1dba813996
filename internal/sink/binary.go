package sink

import (
	"context"
	"encoding/binary"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/klauspost/compress/zstd"
	"go.uber.org/zap"

	"github.com/vburojevic/tracesink/internal/config"
	"github.com/vburojevic/tracesink/internal/domain"
	"github.com/vburojevic/tracesink/internal/observe"
	"github.com/vburojevic/tracesink/internal/rotate"
)

// BinaryTrace writes length-prefixed binary event records into a
// zstd-compressed, rotation-managed file. Each output file holds one
// complete compression frame.
type BinaryTrace struct {
	base
	engine *rotate.Engine
	enc    *zstd.Encoder
}

// NewBinaryTrace builds the binary-trace destination.
func NewBinaryTrace(cfg *config.Destination, clk clock.Clock, log *zap.Logger, metrics *observe.Metrics) (*BinaryTrace, error) {
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
	enc, err := zstd.NewWriter(engine)
	if err != nil {
		engine.Close()
		return nil, err
	}
	return &BinaryTrace{base: newBase(cfg, log, metrics), engine: engine, enc: enc}, nil
}

func (b *BinaryTrace) Write(event *domain.TraceEvent) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed || !b.accepts(event) {
		return nil
	}
	if _, err := b.enc.Write(encodeRecord(event)); err != nil {
		b.log.Error("binary write failed", zap.Error(err))
		return err
	}
	b.metrics.EventWritten(context.Background(), b.cfg.Name)
	return nil
}

func (b *BinaryTrace) RotateIfDue(now time.Time) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed || b.cfg.RotationInterval == 0 || now.Before(b.engine.IntervalEnd()) {
		return false, nil
	}
	return true, b.rotateLocked(now)
}

func (b *BinaryTrace) Rotate(now time.Time) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	return b.rotateLocked(now)
}

// rotateLocked finishes the current compression frame into the old file
// before the engine swaps handles, then restarts the encoder on the new
// one.
func (b *BinaryTrace) rotateLocked(now time.Time) error {
	if err := b.enc.Close(); err != nil {
		b.log.Warn("flushing compressed frame failed", zap.Error(err))
	}
	if err := b.engine.Rotate(now); err != nil {
		return err
	}
	b.enc.Reset(b.engine)
	return nil
}

func (b *BinaryTrace) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	if err := b.enc.Close(); err != nil {
		b.log.Warn("flushing compressed frame failed", zap.Error(err))
	}
	return b.engine.Close()
}

// encodeRecord renders one event as a length-prefixed little-endian
// record: timestamp, provider id, severity, keywords, activity id, then
// provider name and message as length-prefixed strings.
func encodeRecord(e *domain.TraceEvent) []byte {
	name := []byte(e.ProviderName)
	msg := []byte(e.Message)

	payload := 8 + 16 + 1 + 8 + 8 + 2 + len(name) + 4 + len(msg)
	buf := make([]byte, 4+payload)

	binary.LittleEndian.PutUint32(buf[0:], uint32(payload))
	binary.LittleEndian.PutUint64(buf[4:], uint64(e.Timestamp.UnixNano()))
	copy(buf[12:], e.ProviderID[:])
	buf[28] = byte(e.Severity)
	binary.LittleEndian.PutUint64(buf[29:], e.Keywords)
	binary.LittleEndian.PutUint64(buf[37:], e.ActivityID)
	binary.LittleEndian.PutUint16(buf[45:], uint16(len(name)))
	copy(buf[47:], name)
	binary.LittleEndian.PutUint32(buf[47+len(name):], uint32(len(msg)))
	copy(buf[51+len(name):], msg)
	return buf
}
