package postgis

import (
	"testing"

	"github.com/couchcryptid/hilltop-site-loader/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
)

func TestCreateTableSQL(t *testing.T) {
	got := createTableSQL(pgx.Identifier{"public", "Sensor_Table"}, domain.EnrichedFields)
	assert.Equal(t,
		`CREATE TABLE "public"."Sensor_Table" (id bigserial PRIMARY KEY, "Name" text, "Latitude" double precision, `+
			`"Longitude" double precision, "Measurement Name" text, "Measurement Status" text)`,
		got)
}

func TestCreateLayerSQL(t *testing.T) {
	cols := columnList{{"Name", "text"}, {"Latitude", "double precision"}}
	got := createLayerSQL(pgx.Identifier{"hydro", "Sensor_Locations"}, 2193, cols)
	assert.Equal(t,
		`CREATE TABLE "hydro"."Sensor_Locations" (fid bigserial PRIMARY KEY, geom geometry(Point, 2193), "Name" text, "Latitude" double precision)`,
		got)
}

func TestCopyFeaturesSQL(t *testing.T) {
	got := copyFeaturesSQL(
		pgx.Identifier{"public", "L"}, pgx.Identifier{"public", "T"},
		[]string{"Name", "Longitude", "Latitude"}, "Longitude", "Latitude", 4326)
	assert.Equal(t,
		`INSERT INTO "public"."L" (geom, "Name", "Longitude", "Latitude") `+
			`SELECT ST_SetSRID(ST_MakePoint("Longitude", "Latitude"), 4326), "Name", "Longitude", "Latitude" FROM "public"."T" ORDER BY id`,
		got)
}

func TestIdentifierQuoting(t *testing.T) {
	got := createTableSQL(pgx.Identifier{"public", `odd"name`}, domain.SiteFields)
	assert.Contains(t, got, `"public"."odd""name"`)
}

func TestSpatialIndexSQL(t *testing.T) {
	assert.Equal(t, `CREATE INDEX "L_geom_idx" ON "public"."L" USING GIST (geom)`,
		spatialIndexSQL(pgx.Identifier{"public", "L"}, "L"))
}

func TestColumnKinds(t *testing.T) {
	cols := columnList{{"Name", "text"}, {"Latitude", "double precision"}, {"Count", "integer"}}

	k, ok := cols.kind("Latitude")
	assert.True(t, ok)
	assert.Equal(t, domain.FieldNumeric, k)

	k, ok = cols.kind("Name")
	assert.True(t, ok)
	assert.Equal(t, domain.FieldText, k)

	_, ok = cols.kind("Missing")
	assert.False(t, ok)

	assert.Equal(t, []string{"Name", "Latitude", "Count"}, cols.names())
}
