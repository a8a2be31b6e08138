package csvstore

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/couchcryptid/hilltop-site-loader/internal/domain"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRecords() []domain.EnrichedRecord {
	return []domain.EnrichedRecord{
		domain.Enrich(domain.Site{Name: "Hutt River at Taita Gorge", Latitude: -41.1802, Longitude: 174.9544}, domain.Present("Derived Flow")),
		domain.Enrich(domain.Site{Name: "Karori, Upper Dam", Latitude: -41.29941234567, Longitude: 174.7412}, domain.Absent(domain.MeasurementNotFound)),
		domain.Enrich(domain.Site{Name: `Site "Q"`, Latitude: -40.1, Longitude: 175.3}, domain.Absent(domain.MeasurementUnreachable)),
		domain.Enrich(domain.Site{Name: "Otaki at Pukehinau", Latitude: -40.8, Longitude: 175.2}, domain.Absent(domain.MeasurementMalformed)),
	}
}

func TestRecords_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sensors.csv")
	s := New()

	want := testRecords()
	require.NoError(t, s.SaveRecords(path, want))

	got, err := s.LoadRecords(path)
	require.NoError(t, err)
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestRecords_FileLayout(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sensors.csv")
	require.NoError(t, New().SaveRecords(path, testRecords()[:2]))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t,
		"Name,Latitude,Longitude,Measurement Name,Measurement Status\n"+
			"Hutt River at Taita Gorge,-41.1802,174.9544,Derived Flow,present\n"+
			"\"Karori, Upper Dam\",-41.29941234567,174.7412,,not_found\n",
		string(data))
}

func TestRecords_SaveIsDeterministic(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.csv")
	b := filepath.Join(dir, "b.csv")
	s := New()

	require.NoError(t, s.SaveRecords(a, testRecords()))
	reloaded, err := s.LoadRecords(a)
	require.NoError(t, err)
	require.NoError(t, s.SaveRecords(b, reloaded))

	da, err := os.ReadFile(a)
	require.NoError(t, err)
	db, err := os.ReadFile(b)
	require.NoError(t, err)
	assert.Equal(t, da, db)
}

func TestRecords_EmptyDataset(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sensors.csv")
	s := New()

	require.NoError(t, s.SaveRecords(path, nil))
	got, err := s.LoadRecords(path)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestLoadRecords_Missing(t *testing.T) {
	_, err := New().LoadRecords(filepath.Join(t.TempDir(), "nope.csv"))
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestLoadRecords_Malformed(t *testing.T) {
	cases := map[string]string{
		"empty file":       "",
		"wrong header":     "Name,Lat,Lon,Measurement Name,Measurement Status\n",
		"site list header": "Name,Latitude,Longitude\nA,1,2\n",
		"truncated row":    "Name,Latitude,Longitude,Measurement Name,Measurement Status\nA,-41.2,174.8,Rain",
		"bad latitude":     "Name,Latitude,Longitude,Measurement Name,Measurement Status\nA,north,174.8,Rainfall,present\n",
		"unknown status":   "Name,Latitude,Longitude,Measurement Name,Measurement Status\nA,-41.2,174.8,,missing\n",
		"present no name":  "Name,Latitude,Longitude,Measurement Name,Measurement Status\nA,-41.2,174.8,,present\n",
		"absent with name": "Name,Latitude,Longitude,Measurement Name,Measurement Status\nA,-41.2,174.8,Rainfall,not_found\n",
		"unterminated":     "Name,Latitude,Longitude,Measurement Name,Measurement Status\n\"A,-41.2,174.8,,not_found\n",
	}
	for name, content := range cases {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "sensors.csv")
			require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

			_, err := New().LoadRecords(path)
			require.Error(t, err)
			assert.ErrorIs(t, err, domain.ErrParse)
		})
	}
}

func TestSites_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "locations.csv")
	s := New()
	want := []domain.Site{
		{Name: "A", Latitude: -41.2, Longitude: 174.8},
		{Name: "B, C", Latitude: -40, Longitude: 175.000001},
	}

	require.NoError(t, s.SaveSites(path, want))
	got, err := s.LoadSites(path)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestSave_NoTempFilesLeftBehind(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, New().SaveRecords(filepath.Join(dir, "sensors.csv"), testRecords()))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "sensors.csv", entries[0].Name())
}

func TestSave_MissingDirectory(t *testing.T) {
	err := New().SaveRecords(filepath.Join(t.TempDir(), "missing", "sensors.csv"), testRecords())
	require.Error(t, err)
}
