//go:build integration

package integration_test

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/couchcryptid/hilltop-site-loader/internal/adapter/csvstore"
	"github.com/couchcryptid/hilltop-site-loader/internal/adapter/gpkg"
	"github.com/couchcryptid/hilltop-site-loader/internal/adapter/hilltop"
	"github.com/couchcryptid/hilltop-site-loader/internal/adapter/kafka"
	"github.com/couchcryptid/hilltop-site-loader/internal/config"
	"github.com/couchcryptid/hilltop-site-loader/internal/domain"
	"github.com/couchcryptid/hilltop-site-loader/internal/observability"
	"github.com/couchcryptid/hilltop-site-loader/internal/pipeline"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tckafka "github.com/testcontainers/testcontainers-go/modules/kafka"
)

const testTopic = "test-hilltop-sites"

const siteList = `<?xml version="1.0" encoding="ISO-8859-1" ?>
<HilltopServer>
  <Site Name="Waiwhetu Stream at Wainuiomata Road"><Latitude>-41.2061</Latitude><Longitude>174.9296</Longitude></Site>
  <Site Name="Mangaroa River at Te Marua"><Latitude>-41.1049</Latitude><Longitude>175.1202</Longitude></Site>
  <Site Name="Offline Gauge"><Latitude>-41.0</Latitude><Longitude>175.0</Longitude></Site>
</HilltopServer>`

var measurementLists = map[string]string{
	"Waiwhetu Stream at Wainuiomata Road": `<HilltopServer><DataSource Name="Rainfall"><Measurement Name="Rainfall"/></DataSource></HilltopServer>`,
	"Mangaroa River at Te Marua":          `<HilltopServer><DataSource Name="Flow"></DataSource></HilltopServer>`,
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// startKafka runs a single-node broker and returns its address.
func startKafka(ctx context.Context, t *testing.T) string {
	t.Helper()
	container, err := tckafka.Run(ctx, "confluentinc/confluent-local:7.5.0", tckafka.WithClusterID("hilltop-test"))
	require.NoError(t, err, "start kafka container")
	t.Cleanup(func() {
		if err := testcontainers.TerminateContainer(container); err != nil {
			t.Logf("terminate kafka container: %v", err)
		}
	})

	brokers, err := container.Brokers(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, brokers)
	return brokers[0]
}

func createTopic(t *testing.T, broker, topic string) {
	t.Helper()
	conn, err := kafkago.Dial("tcp", broker)
	require.NoError(t, err)
	defer conn.Close()

	controller, err := conn.Controller()
	require.NoError(t, err)
	cc, err := kafkago.Dial("tcp", fmt.Sprintf("%s:%d", controller.Host, controller.Port))
	require.NoError(t, err)
	defer cc.Close()

	require.NoError(t, cc.CreateTopics(kafkago.TopicConfig{Topic: topic, NumPartitions: 1, ReplicationFactor: 1}))
}

// hilltopServer serves the fixture documents. Sites with no measurement list
// answer 500.
func hilltopServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		switch q.Get("Request") {
		case "SiteList":
			_, _ = io.WriteString(w, siteList)
		case "MeasurementList":
			doc, ok := measurementLists[q.Get("Site")]
			if !ok {
				http.Error(w, "site offline", http.StatusInternalServerError)
				return
			}
			_, _ = io.WriteString(w, doc)
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

type publishedRecord struct {
	Name              string  `json:"name"`
	MeasurementName   *string `json:"measurement_name"`
	MeasurementStatus string  `json:"measurement_status"`
}

// TestLoadEndToEnd runs a load against a fake Hilltop server, a GeoPackage
// file, and a real broker, then reads the published records back.
func TestLoadEndToEnd(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	broker := startKafka(ctx, t)
	createTopic(t, broker, testTopic)

	dir := t.TempDir()
	cfg := &config.Config{KafkaBrokers: []string{broker}, KafkaTopic: testTopic}
	metrics := observability.NewMetricsForTesting()
	logger := discardLogger()

	client := hilltop.NewClient(hilltopServer(t).URL, 5*time.Second, metrics, logger)
	enricher := pipeline.NewEnricher(client, client, csvstore.New(), filepath.Join(dir, "locations.csv"), logger, metrics)

	sink, err := gpkg.Open(ctx, filepath.Join(dir, "sites.gpkg"), logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = sink.Close() })

	publisher := kafka.NewPublisher(cfg, logger)
	t.Cleanup(func() { _ = publisher.Close() })

	loader := pipeline.NewLoader(enricher, sink, nil, publisher, pipeline.LoadOptions{
		CachePath:        filepath.Join(dir, "sensors.csv"),
		TableName:        "Sensor_Table",
		LayerName:        "Sensor_Locations",
		Overwrite:        true,
		SpatialReference: 2193,
	}, logger, metrics)

	report, err := loader.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, report.Sites)
	assert.Equal(t, 3, report.Published)
	require.NotNil(t, report.Layer)
	assert.Equal(t, 3, report.Layer.Features)
	assert.Equal(t, map[domain.MeasurementStatus]int{
		domain.MeasurementPresent:     1,
		domain.MeasurementNotFound:    1,
		domain.MeasurementUnreachable: 1,
	}, report.Outcomes)

	consumer := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:     []string{broker},
		Topic:       testTopic,
		GroupID:     fmt.Sprintf("test-consumer-%d", time.Now().UnixNano()),
		StartOffset: kafkago.FirstOffset,
	})
	t.Cleanup(func() { _ = consumer.Close() })

	got := map[string]publishedRecord{}
	for len(got) < 3 {
		readCtx, readCancel := context.WithTimeout(ctx, 30*time.Second)
		msg, err := consumer.ReadMessage(readCtx)
		readCancel()
		require.NoError(t, err, "read from topic")

		var rec publishedRecord
		require.NoError(t, json.Unmarshal(msg.Value, &rec))
		assert.Equal(t, rec.Name, string(msg.Key))
		got[rec.Name] = rec
	}

	wai := got["Waiwhetu Stream at Wainuiomata Road"]
	require.NotNil(t, wai.MeasurementName)
	assert.Equal(t, "Rainfall", *wai.MeasurementName)
	assert.Equal(t, "not_found", got["Mangaroa River at Te Marua"].MeasurementStatus)
	assert.Nil(t, got["Offline Gauge"].MeasurementName)
	assert.Equal(t, "unreachable", got["Offline Gauge"].MeasurementStatus)

	// A second run is served from the cache and republishes the same dataset.
	report, err = loader.Run(ctx)
	require.NoError(t, err)
	assert.True(t, report.CacheHit)
	assert.Equal(t, 3, report.Published)
}
