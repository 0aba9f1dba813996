package rotate

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"

	"github.com/vburojevic/tracesink/internal/domain"
	"github.com/vburojevic/tracesink/internal/observe"
)

const (
	swapRetries = 3
	swapBackoff = 250 * time.Millisecond
)

// Options configure a rotation engine for one file-backed destination.
type Options struct {
	BaseName         string
	Directory        string
	FilenameTemplate string
	RotationInterval time.Duration // 0 = never rotate
	TimestampLocal   bool
	MaximumAge       time.Duration // 0 = no age limit
	MaximumSizeBytes int64         // 0 = no size limit
	Host             string        // defaults to os.Hostname()

	Logger  *zap.Logger
	Metrics *observe.Metrics
	Clock   clock.Clock
}

// Engine owns one destination's active output file, its rotation-interval
// bookkeeping and the retention catalog of completed files. Callers
// serialize access with the destination's write lock.
type Engine struct {
	log     *zap.Logger
	metrics *observe.Metrics
	clk     clock.Clock
	opts    Options

	catalog *Catalog

	file          *os.File
	currentPath   string
	intervalStart time.Time
	intervalEnd   time.Time

	// removeFile is a seam for eviction tests.
	removeFile func(string) error
}

// NewEngine validates the template, rebuilds the retention catalog from
// the directory contents, and opens the initial output file.
func NewEngine(opts Options) (*Engine, error) {
	if opts.FilenameTemplate == "" {
		opts.FilenameTemplate = DefaultTemplate
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}
	if opts.Host == "" {
		host, err := os.Hostname()
		if err != nil {
			host = "localhost"
		}
		opts.Host = host
	}

	catalog := NewCatalog(opts.MaximumAge, opts.MaximumSizeBytes)
	if catalog.Enabled() {
		if err := ValidateTemplateForRetention(opts.FilenameTemplate, opts.BaseName,
			opts.RotationInterval, opts.Host, opts.TimestampLocal); err != nil {
			return nil, err
		}
	} else {
		if err := ValidateTemplate(opts.FilenameTemplate, opts.BaseName,
			opts.RotationInterval, opts.TimestampLocal); err != nil {
			return nil, err
		}
	}

	e := &Engine{
		log:        opts.Logger.With(zap.String("base", opts.BaseName)),
		metrics:    opts.Metrics,
		clk:        opts.Clock,
		opts:       opts,
		catalog:    catalog,
		removeFile: os.Remove,
	}

	if err := e.open(e.clk.Now()); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrResourceUnavailable, err)
	}

	// The scan runs after open so the active file is known and stays out
	// of the catalog: it is still being written, not a completed file.
	if catalog.Enabled() {
		if err := e.rebuildCatalog(); err != nil {
			e.Close()
			return nil, err
		}
	}
	return e, nil
}

// CheckedRotate rotates iff the current instant has reached the end of
// the active interval. A disabled rotation interval never rotates.
func (e *Engine) CheckedRotate(now time.Time) (bool, error) {
	if e.opts.RotationInterval == 0 {
		return false, nil
	}
	if now.Before(e.intervalEnd) {
		return false, nil
	}
	return true, e.Rotate(now)
}

// Rotate unconditionally recomputes the interval, switches the active
// output to a freshly rendered filename, and catalogs the just-closed
// file when retention is enabled.
func (e *Engine) Rotate(now time.Time) error {
	closedPath := e.currentPath

	if err := e.open(now); err != nil {
		return err
	}

	if closedPath != "" && closedPath != e.currentPath && e.catalog.Enabled() {
		e.catalogClosedFile(closedPath)
	}
	return nil
}

// Write appends to the active output file.
func (e *Engine) Write(p []byte) (int, error) {
	if e.file == nil {
		return 0, fmt.Errorf("%w: no active output file", domain.ErrResourceUnavailable)
	}
	return e.file.Write(p)
}

// CurrentFilename returns the path of the active output file.
func (e *Engine) CurrentFilename() string { return e.currentPath }

// IntervalEnd returns the end of the active rotation interval.
func (e *Engine) IntervalEnd() time.Time { return e.intervalEnd }

// Catalog exposes the retention catalog for inspection.
func (e *Engine) Catalog() *Catalog { return e.catalog }

// Close closes the active output file.
func (e *Engine) Close() error {
	if e.file == nil {
		return nil
	}
	err := e.file.Close()
	e.file = nil
	return err
}

// open computes the interval for now, renders the filename and swaps the
// active file handle. Opening the new file is retried a small bounded
// number of times with fixed backoff: a rotation can race an external
// holder of the file (indexers, copy tools) on some platforms.
func (e *Engine) open(now time.Time) error {
	if e.opts.RotationInterval > 0 {
		e.intervalStart, e.intervalEnd = Interval(now, e.opts.RotationInterval, e.opts.TimestampLocal)
	} else {
		e.intervalStart = now.Truncate(time.Second)
		e.intervalEnd = e.intervalStart
	}

	name := CreateFilename(e.opts.FilenameTemplate, e.opts.BaseName,
		e.intervalStart, e.intervalEnd, e.opts.Host,
		MillisSinceMidnight(now, e.opts.TimestampLocal), e.opts.TimestampLocal)
	path := filepath.Join(e.opts.Directory, name)

	var file *os.File
	var err error
	for attempt := 0; attempt < swapRetries; attempt++ {
		file, err = os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
		if err == nil {
			break
		}
		e.clk.Sleep(swapBackoff)
	}
	if err != nil {
		e.log.Error("failed to swap active output file",
			zap.String("path", path), zap.Error(err))
		return fmt.Errorf("%w: %q: %v", domain.ErrRenameConflict, path, err)
	}

	if e.file != nil {
		if cerr := e.file.Close(); cerr != nil {
			e.log.Warn("closing rotated file failed", zap.String("path", e.currentPath), zap.Error(cerr))
		}
	}
	e.file = file
	e.currentPath = path
	return nil
}

// catalogClosedFile stats the just-closed file, inserts it into the
// catalog and deletes whatever eviction returns. Cleanup failures are
// logged, not escalated.
func (e *Engine) catalogClosedFile(path string) {
	info, err := os.Stat(path)
	if err != nil {
		e.log.Warn("cannot stat rotated file for retention", zap.String("path", path), zap.Error(err))
		return
	}

	evicted := e.catalog.Insert(Entry{
		Filename:   path,
		SizeBytes:  info.Size(),
		CreatedUTC: info.ModTime().UTC(),
	})
	var removed int64
	for _, entry := range evicted {
		if err := e.removeFile(entry.Filename); err != nil {
			e.log.Warn("retention eviction failed", zap.String("path", entry.Filename), zap.Error(err))
			continue
		}
		removed++
		e.log.Info("evicted rotated file",
			zap.String("path", entry.Filename),
			zap.Int64("size", entry.SizeBytes))
	}
	if removed > 0 {
		e.metrics.Eviction(context.Background(), e.opts.BaseName, removed)
	}
}

// rebuildCatalog relists the directory for files matching the base name
// plus a fixed-width wildcard derived from the template's rendered
// length, restoring retention state across restarts.
func (e *Engine) rebuildCatalog() error {
	pattern, err := e.scanPattern()
	if err != nil {
		return err
	}

	dirEntries, err := os.ReadDir(e.opts.Directory)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %v", domain.ErrResourceUnavailable, err)
		}
		return err
	}

	var found []Entry
	for _, de := range dirEntries {
		if de.IsDir() {
			continue
		}
		ok, _ := filepath.Match(pattern, de.Name())
		if !ok {
			continue
		}
		path := filepath.Join(e.opts.Directory, de.Name())
		if path == e.currentPath {
			continue
		}
		info, err := de.Info()
		if err != nil {
			continue
		}
		found = append(found, Entry{
			Filename:   path,
			SizeBytes:  info.Size(),
			CreatedUTC: info.ModTime().UTC(),
		})
	}

	for _, entry := range found {
		for _, evicted := range e.catalog.Insert(entry) {
			if err := e.removeFile(evicted.Filename); err != nil && !os.IsNotExist(err) {
				e.log.Warn("startup eviction failed", zap.String("path", evicted.Filename), zap.Error(err))
			}
		}
	}
	return nil
}

// scanPattern derives the fixed-width wildcard pattern once from a
// representative rendered name.
func (e *Engine) scanPattern() (string, error) {
	sample := CreateFilename(e.opts.FilenameTemplate, e.opts.BaseName,
		sampleTimes[0], sampleTimes[0].Add(time.Hour), e.opts.Host, 0, e.opts.TimestampLocal)
	ext := filepath.Ext(sample)
	width := len(sample) - len(e.opts.BaseName) - len(ext)
	if width < 0 {
		return "", fmt.Errorf("%w: template renders shorter than its base name", domain.ErrInvalidConfiguration)
	}
	return e.opts.BaseName + strings.Repeat("?", width) + ext, nil
}
