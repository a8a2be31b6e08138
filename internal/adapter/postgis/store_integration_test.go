//go:build integration

package postgis

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/couchcryptid/hilltop-site-loader/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func startPostGIS(ctx context.Context, t *testing.T) string {
	t.Helper()
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "postgis/postgis:16-3.4",
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_USER":     "loader",
				"POSTGRES_PASSWORD": "loader",
				"POSTGRES_DB":       "sites",
			},
			WaitingFor: wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).WithStartupTimeout(90 * time.Second),
		},
		Started: true,
	})
	require.NoError(t, err, "start postgis container")
	t.Cleanup(func() {
		if err := testcontainers.TerminateContainer(container); err != nil {
			t.Logf("terminate postgis container: %v", err)
		}
	})

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "5432/tcp")
	require.NoError(t, err)
	return fmt.Sprintf("postgres://loader:loader@%s:%s/sites?sslmode=disable", host, port.Port())
}

func TestStoreAgainstPostGIS(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	s, err := Open(ctx, startPostGIS(ctx, t), "hydro", slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	t.Cleanup(s.Close)

	records := []domain.EnrichedRecord{
		domain.Enrich(domain.Site{Name: "A", Latitude: -41.2, Longitude: 174.8}, domain.Present("Rainfall")),
		domain.Enrich(domain.Site{Name: "B", Latitude: -40.9, Longitude: 175.6}, domain.Absent(domain.MeasurementNotFound)),
	}

	table, err := s.MaterializeTable(ctx, records, "Sensor_Table", false)
	require.NoError(t, err)
	assert.Equal(t, 2, table.Rows)

	_, err = s.MaterializeTable(ctx, records[:1], "Sensor_Table", false)
	assert.ErrorIs(t, err, domain.ErrConflict)

	layer, err := s.MaterializePointLayer(ctx, table, "Sensor_Locations", domain.FieldLongitude, domain.FieldLatitude, 2193, false)
	require.NoError(t, err)
	assert.Equal(t, 2, layer.Features)

	var x, y float64
	var srid int
	require.NoError(t, s.pool.QueryRow(ctx,
		`SELECT ST_X(geom), ST_Y(geom), ST_SRID(geom) FROM "hydro"."Sensor_Locations" ORDER BY fid LIMIT 1`,
	).Scan(&x, &y, &srid))
	assert.Equal(t, 174.8, x)
	assert.Equal(t, -41.2, y)
	assert.Equal(t, 2193, srid)

	_, err = s.MaterializePointLayer(ctx, domain.TableHandle{Name: "missing"}, "L2", domain.FieldLongitude, domain.FieldLatitude, 2193, true)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
