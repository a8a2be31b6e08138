package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
	"github.com/joho/godotenv"
)

// Sink backends.
const (
	SinkGeoPackage = "gpkg"
	SinkPostGIS    = "postgis"
)

// Config holds all loader settings, populated from environment variables.
type Config struct {
	// Hilltop source.
	HilltopBaseURL string
	HilltopTimeout time.Duration

	// Intermediate and cache files.
	SitesFile string
	CacheFile string

	// GIS sink.
	Sink             string
	GeoPackagePath   string
	PostGISURL       string
	PostGISSchema    string
	TableName        string
	LayerName        string
	Overwrite        bool
	SpatialReference int

	// Project document. Attach is disabled when ProjectPath is empty.
	ProjectPath      string
	ProjectMap       string
	ProjectCreateMap bool

	// Kafka publishing.
	KafkaEnabled bool
	KafkaBrokers []string
	KafkaTopic   string

	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration
}

// Load reads configuration from environment variables (and .env when present),
// applying defaults where unset.
func Load() (*Config, error) {
	_ = godotenv.Load(".env")

	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}

	hilltopTimeout, err := parseDuration("HILLTOP_TIMEOUT", "30s")
	if err != nil {
		return nil, err
	}

	overwrite, err := parseBool("OVERWRITE", true)
	if err != nil {
		return nil, err
	}

	createMap, err := parseBool("PROJECT_CREATE_MAP", true)
	if err != nil {
		return nil, err
	}

	kafkaEnabled, err := parseBool("KAFKA_ENABLED", false)
	if err != nil {
		return nil, err
	}

	srid, err := strconv.Atoi(sharedcfg.EnvOrDefault("SPATIAL_REFERENCE", "4326"))
	if err != nil || srid <= 0 {
		return nil, errors.New("invalid SPATIAL_REFERENCE: must be a positive EPSG code")
	}

	cfg := &Config{
		HilltopBaseURL: strings.TrimRight(sharedcfg.EnvOrDefault("HILLTOP_BASE_URL", "https://hilltop.gw.govt.nz/data.hts"), "?"),
		HilltopTimeout: hilltopTimeout,

		SitesFile: sharedcfg.EnvOrDefault("SITES_FILE", "locations.csv"),
		CacheFile: sharedcfg.EnvOrDefault("CACHE_FILE", "sensors.csv"),

		Sink:             strings.ToLower(sharedcfg.EnvOrDefault("SINK", SinkGeoPackage)),
		GeoPackagePath:   sharedcfg.EnvOrDefault("GPKG_PATH", "sites.gpkg"),
		PostGISURL:       strings.TrimSpace(os.Getenv("POSTGIS_URL")),
		PostGISSchema:    sharedcfg.EnvOrDefault("POSTGIS_SCHEMA", "public"),
		TableName:        sharedcfg.EnvOrDefault("TABLE_NAME", "Sensor_Table"),
		LayerName:        sharedcfg.EnvOrDefault("LAYER_NAME", "Sensor_Locations"),
		Overwrite:        overwrite,
		SpatialReference: srid,

		ProjectPath:      strings.TrimSpace(os.Getenv("PROJECT_PATH")),
		ProjectMap:       sharedcfg.EnvOrDefault("PROJECT_MAP", "Map"),
		ProjectCreateMap: createMap,

		KafkaEnabled: kafkaEnabled,
		KafkaBrokers: sharedcfg.ParseBrokers(sharedcfg.EnvOrDefault("KAFKA_BROKERS", "localhost:9092")),
		KafkaTopic:   sharedcfg.EnvOrDefault("KAFKA_TOPIC", "hilltop-sites"),

		HTTPAddr:        sharedcfg.EnvOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:        sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:       sharedcfg.EnvOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout: shutdownTimeout,
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.HilltopBaseURL == "" {
		return errors.New("HILLTOP_BASE_URL is required")
	}
	if c.CacheFile == "" {
		return errors.New("CACHE_FILE is required")
	}
	if c.TableName == "" || c.LayerName == "" {
		return errors.New("TABLE_NAME and LAYER_NAME are required")
	}
	if c.TableName == c.LayerName {
		return errors.New("TABLE_NAME and LAYER_NAME must differ")
	}
	switch c.Sink {
	case SinkGeoPackage:
		if c.GeoPackagePath == "" {
			return errors.New("GPKG_PATH is required when SINK=gpkg")
		}
	case SinkPostGIS:
		if c.PostGISURL == "" {
			return errors.New("POSTGIS_URL is required when SINK=postgis")
		}
	default:
		return fmt.Errorf("invalid SINK %q: must be %q or %q", c.Sink, SinkGeoPackage, SinkPostGIS)
	}
	if c.KafkaEnabled {
		if len(c.KafkaBrokers) == 0 {
			return errors.New("KAFKA_BROKERS is required when KAFKA_ENABLED is true")
		}
		if c.KafkaTopic == "" {
			return errors.New("KAFKA_TOPIC is required when KAFKA_ENABLED is true")
		}
	}
	return nil
}

func parseDuration(key, def string) (time.Duration, error) {
	d, err := time.ParseDuration(sharedcfg.EnvOrDefault(key, def))
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return d, nil
}

func parseBool(key string, def bool) (bool, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("invalid %s: %w", key, err)
	}
	return b, nil
}
