package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/couchcryptid/hilltop-site-loader/internal/domain"
	"github.com/couchcryptid/hilltop-site-loader/internal/observability"
)

// GISSink materializes the dataset as a table and a point feature layer.
type GISSink interface {
	MaterializeTable(ctx context.Context, records []domain.EnrichedRecord, name string, overwrite bool) (domain.TableHandle, error)
	MaterializePointLayer(ctx context.Context, table domain.TableHandle, name, xField, yField string, srid int, overwrite bool) (domain.LayerHandle, error)
}

// ProjectAttacher inserts or replaces a layer in a map project and persists it.
type ProjectAttacher interface {
	AttachToProject(ctx context.Context, layer domain.LayerHandle, mapName, displayName string) error
}

// RecordPublisher forwards enriched records to a downstream consumer.
type RecordPublisher interface {
	Publish(ctx context.Context, records []domain.EnrichedRecord) error
}

// LoadOptions names the outputs of a load run.
type LoadOptions struct {
	CachePath        string
	TableName        string
	LayerName        string
	Overwrite        bool
	SpatialReference int
	MapName          string
}

// Loader runs enrichment and hands the dataset to the GIS sink, the project
// document, and the publisher.
type Loader struct {
	enricher  *Enricher
	sink      GISSink
	project   ProjectAttacher
	publisher RecordPublisher
	opts      LoadOptions
	logger    *slog.Logger
	metrics   *observability.Metrics

	ready  atomic.Bool
	mu     sync.RWMutex
	latest []domain.EnrichedRecord
}

// NewLoader creates a Loader. project and publisher may be nil to disable
// those steps.
func NewLoader(enricher *Enricher, sink GISSink, project ProjectAttacher, publisher RecordPublisher, opts LoadOptions, logger *slog.Logger, metrics *observability.Metrics) *Loader {
	return &Loader{
		enricher:  enricher,
		sink:      sink,
		project:   project,
		publisher: publisher,
		opts:      opts,
		logger:    logger,
		metrics:   metrics,
	}
}

// Run executes one enrich-and-load pass. Dataset-level failures are returned.
// A conflict on an existing target skips that step and the steps that depend
// on it; the skip is recorded in the report.
func (l *Loader) Run(ctx context.Context) (report domain.LoadReport, err error) {
	start := time.Now()
	l.metrics.PipelineRunning.Set(1)
	defer l.metrics.PipelineRunning.Set(0)

	report.StartedAt = domain.Now()
	defer func() { report.FinishedAt = domain.Now() }()

	records, stats, err := l.enricher.Enrich(ctx, l.opts.CachePath)
	if err != nil {
		return report, fmt.Errorf("enrich: %w", err)
	}
	report.CacheHit = stats.CacheHit
	report.Sites = stats.Sites
	report.Outcomes = stats.Outcomes
	l.setLatest(records)

	if err := l.materialize(ctx, records, &report); err != nil {
		return report, err
	}

	if l.publisher != nil {
		if err := l.publisher.Publish(ctx, records); err != nil {
			return report, fmt.Errorf("publish records: %w", err)
		}
		report.Published = len(records)
		l.metrics.RecordsPublished.Add(float64(len(records)))
	}

	l.metrics.LoadDuration.Observe(time.Since(start).Seconds())
	l.metrics.LastSuccess.SetToCurrentTime()
	l.ready.Store(true)

	l.logger.Info("load complete",
		"sites", report.Sites,
		"cache_hit", report.CacheHit,
		"attached", report.Attached,
		"published", report.Published,
		"skipped", report.Skipped,
		"duration", time.Since(start),
	)
	return report, nil
}

func (l *Loader) materialize(ctx context.Context, records []domain.EnrichedRecord, report *domain.LoadReport) error {
	table, err := l.sink.MaterializeTable(ctx, records, l.opts.TableName, l.opts.Overwrite)
	if l.conflict(err, "table", l.opts.TableName, report) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("materialize table %q: %w", l.opts.TableName, err)
	}
	report.Table = &table
	l.metrics.RecordsLoaded.Add(float64(table.Rows))

	layer, err := l.sink.MaterializePointLayer(ctx, table, l.opts.LayerName,
		domain.FieldLongitude, domain.FieldLatitude, l.opts.SpatialReference, l.opts.Overwrite)
	if l.conflict(err, "layer", l.opts.LayerName, report) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("materialize layer %q: %w", l.opts.LayerName, err)
	}
	report.Layer = &layer

	if l.project == nil {
		return nil
	}
	if err := l.project.AttachToProject(ctx, layer, l.opts.MapName, l.opts.LayerName); err != nil {
		return fmt.Errorf("attach layer %q to map %q: %w", l.opts.LayerName, l.opts.MapName, err)
	}
	report.Attached = true
	return nil
}

// conflict records a skipped step when err is a domain.ErrConflict.
func (l *Loader) conflict(err error, kind, name string, report *domain.LoadReport) bool {
	if !errors.Is(err, domain.ErrConflict) {
		return false
	}
	l.metrics.SinkConflicts.Inc()
	l.logger.Error("target exists and overwrite is disabled, skipping",
		"kind", kind, "name", name, "error", err)
	report.Skipped = append(report.Skipped, kind+":"+name)
	return true
}

func (l *Loader) setLatest(records []domain.EnrichedRecord) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.latest = records
}

// Records returns the dataset from the most recent enrichment.
func (l *Loader) Records() []domain.EnrichedRecord {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.latest
}

// Ready reports whether at least one load has completed.
func (l *Loader) Ready() bool {
	return l.ready.Load()
}

// CheckReadiness returns nil once a load has completed.
func (l *Loader) CheckReadiness(_ context.Context) error {
	if !l.ready.Load() {
		return errors.New("no load has completed yet")
	}
	return nil
}
