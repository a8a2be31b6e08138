package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/couchcryptid/hilltop-site-loader/internal/adapter/csvstore"
	"github.com/couchcryptid/hilltop-site-loader/internal/adapter/gpkg"
	"github.com/couchcryptid/hilltop-site-loader/internal/adapter/hilltop"
	kafkaadapter "github.com/couchcryptid/hilltop-site-loader/internal/adapter/kafka"
	"github.com/couchcryptid/hilltop-site-loader/internal/adapter/postgis"
	"github.com/couchcryptid/hilltop-site-loader/internal/adapter/project"
	"github.com/couchcryptid/hilltop-site-loader/internal/config"
	"github.com/couchcryptid/hilltop-site-loader/internal/observability"
	"github.com/couchcryptid/hilltop-site-loader/internal/pipeline"
)

// app holds the wired loader and the resources to release after it.
type app struct {
	loader  *pipeline.Loader
	closers []func() error
	logger  *slog.Logger
}

func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	return errors.Join(errs...)
}

func buildApp(ctx context.Context, cfg *config.Config, logger *slog.Logger, metrics *observability.Metrics) (*app, error) {
	a := &app{logger: logger}

	client := hilltop.NewClient(cfg.HilltopBaseURL, cfg.HilltopTimeout, metrics, logger)
	enricher := pipeline.NewEnricher(client, client, csvstore.New(), cfg.SitesFile, logger, metrics)

	var sink pipeline.GISSink
	switch cfg.Sink {
	case config.SinkPostGIS:
		s, err := postgis.Open(ctx, cfg.PostGISURL, cfg.PostGISSchema, logger)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, func() error { s.Close(); return nil })
		sink = s
	default:
		s, err := gpkg.Open(ctx, cfg.GeoPackagePath, logger)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, s.Close)
		sink = s
	}
	logger.Info("gis sink ready", "sink", cfg.Sink)

	// Nil interfaces disable the optional steps; typed nil pointers would not.
	var attacher pipeline.ProjectAttacher
	if cfg.ProjectPath != "" {
		attacher = project.NewStore(cfg.ProjectPath, cfg.ProjectCreateMap, logger)
		logger.Info("project attach enabled", "project", cfg.ProjectPath, "map", cfg.ProjectMap)
	}

	var publisher pipeline.RecordPublisher
	if cfg.KafkaEnabled {
		p := kafkaadapter.NewPublisher(cfg, logger)
		a.closers = append(a.closers, p.Close)
		publisher = p
		logger.Info("kafka publishing enabled", "topic", cfg.KafkaTopic, "brokers", cfg.KafkaBrokers)
	}

	a.loader = pipeline.NewLoader(enricher, sink, attacher, publisher, pipeline.LoadOptions{
		CachePath:        cfg.CacheFile,
		TableName:        cfg.TableName,
		LayerName:        cfg.LayerName,
		Overwrite:        cfg.Overwrite,
		SpatialReference: cfg.SpatialReference,
		MapName:          cfg.ProjectMap,
	}, logger, metrics)
	return a, nil
}

func loadConfig() (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, observability.NewLogger(cfg), nil
}
