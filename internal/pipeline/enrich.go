package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/couchcryptid/hilltop-site-loader/internal/domain"
	"github.com/couchcryptid/hilltop-site-loader/internal/observability"
)

// SiteSource fetches the full site list.
type SiteSource interface {
	FetchSites(ctx context.Context) ([]domain.Site, error)
}

// MeasurementResolver returns the first measurement name for a site. It must
// not fail; unavailability is reported as an absent measurement.
type MeasurementResolver interface {
	ResolveMeasurement(ctx context.Context, site string) domain.Measurement
}

// DatasetStore persists the raw site list and the enriched dataset.
type DatasetStore interface {
	SaveSites(path string, sites []domain.Site) error
	SaveRecords(path string, records []domain.EnrichedRecord) error
	LoadRecords(path string) ([]domain.EnrichedRecord, error)
}

// Stats describes how an enrichment run produced its dataset.
type Stats struct {
	CacheHit bool
	Sites    int
	Outcomes map[domain.MeasurementStatus]int
}

// Enricher builds the enriched dataset, reusing a cached copy when one exists.
type Enricher struct {
	sites     SiteSource
	resolver  MeasurementResolver
	store     DatasetStore
	sitesFile string
	logger    *slog.Logger
	metrics   *observability.Metrics
}

// NewEnricher creates an Enricher. sitesFile receives the raw site list on a
// rebuild; leave it empty to skip writing it.
func NewEnricher(sites SiteSource, resolver MeasurementResolver, store DatasetStore, sitesFile string, logger *slog.Logger, metrics *observability.Metrics) *Enricher {
	return &Enricher{
		sites:     sites,
		resolver:  resolver,
		store:     store,
		sitesFile: sitesFile,
		logger:    logger,
		metrics:   metrics,
	}
}

// Enrich returns the enriched dataset. A well-formed dataset at cachePath is
// returned as-is with no network calls. Otherwise the site list is fetched,
// every site is resolved in order, and the result is written to cachePath.
// Nothing is written when the site list cannot be fetched or parsed.
func (e *Enricher) Enrich(ctx context.Context, cachePath string) ([]domain.EnrichedRecord, Stats, error) {
	if records, ok := e.loadCache(cachePath); ok {
		return records, statsFor(records, true), nil
	}

	sites, err := e.sites.FetchSites(ctx)
	if err != nil {
		return nil, Stats{}, err
	}

	if e.sitesFile != "" {
		if err := e.store.SaveSites(e.sitesFile, sites); err != nil {
			return nil, Stats{}, fmt.Errorf("save site list: %w", err)
		}
	}

	records := make([]domain.EnrichedRecord, 0, len(sites))
	for i, site := range sites {
		if err := ctx.Err(); err != nil {
			return nil, Stats{}, fmt.Errorf("enrich interrupted after %d of %d sites: %w", i, len(sites), err)
		}
		m := e.resolver.ResolveMeasurement(ctx, site.Name)
		e.metrics.MeasurementOutcomes.WithLabelValues(string(m.Status)).Inc()
		records = append(records, domain.Enrich(site, m))
	}

	if err := e.store.SaveRecords(cachePath, records); err != nil {
		return nil, Stats{}, fmt.Errorf("save enriched dataset: %w", err)
	}

	stats := statsFor(records, false)
	e.logger.Info("dataset enriched",
		"sites", stats.Sites,
		"present", stats.Outcomes[domain.MeasurementPresent],
		"not_found", stats.Outcomes[domain.MeasurementNotFound],
		"unreachable", stats.Outcomes[domain.MeasurementUnreachable],
		"malformed", stats.Outcomes[domain.MeasurementMalformed],
		"cache", cachePath,
	)
	return records, stats, nil
}

// loadCache returns the cached dataset when it exists and is well-formed.
// Any other outcome is a miss; a corrupt cache is logged and rebuilt.
func (e *Enricher) loadCache(path string) ([]domain.EnrichedRecord, bool) {
	records, err := e.store.LoadRecords(path)
	switch {
	case err == nil:
		e.metrics.CacheLookups.WithLabelValues("hit").Inc()
		e.logger.Info("using cached dataset", "cache", path, "records", len(records))
		return records, true
	case errors.Is(err, domain.ErrNotFound):
		e.metrics.CacheLookups.WithLabelValues("miss").Inc()
		e.logger.Info("no cached dataset, fetching from hilltop", "cache", path)
	default:
		e.metrics.CacheLookups.WithLabelValues("invalid").Inc()
		e.logger.Warn("cached dataset unreadable, rebuilding", "cache", path, "error", err)
	}
	return nil, false
}

func statsFor(records []domain.EnrichedRecord, cacheHit bool) Stats {
	s := Stats{
		CacheHit: cacheHit,
		Sites:    len(records),
		Outcomes: make(map[domain.MeasurementStatus]int, 4),
	}
	for _, r := range records {
		s.Outcomes[r.Measurement.Status]++
	}
	return s
}
