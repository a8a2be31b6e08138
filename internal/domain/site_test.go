package domain

import (
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseMeasurement(t *testing.T) {
	tests := []struct {
		name    string
		mName   string
		status  string
		want    Measurement
		wantErr bool
	}{
		{name: "present", mName: "Rainfall", status: "present", want: Present("Rainfall")},
		{name: "not found", status: "not_found", want: Absent(MeasurementNotFound)},
		{name: "unreachable", status: "unreachable", want: Absent(MeasurementUnreachable)},
		{name: "malformed", status: "malformed", want: Absent(MeasurementMalformed)},
		{name: "present without name", status: "present", wantErr: true},
		{name: "absent with name", mName: "Flow", status: "not_found", wantErr: true},
		{name: "unknown status", mName: "Flow", status: "maybe", wantErr: true},
		{name: "empty status", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseMeasurement(tt.mName, tt.status)
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, ErrParse)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestMeasurementString(t *testing.T) {
	assert.Equal(t, "Stage", Present("Stage").String())
	assert.Equal(t, "<absent:unreachable>", Absent(MeasurementUnreachable).String())
	assert.True(t, Present("Stage").IsPresent())
	assert.False(t, Absent(MeasurementNotFound).IsPresent())
	assert.False(t, MeasurementStatus("").Valid())
}

func TestEnrichedRecordValues(t *testing.T) {
	site := Site{Name: "Te Marua", Latitude: -41.1, Longitude: 175.1}

	assert.Equal(t, []any{"Te Marua", -41.1, 175.1, "Rainfall", "present"},
		Enrich(site, Present("Rainfall")).Values())
	assert.Equal(t, []any{"Te Marua", -41.1, 175.1, nil, "not_found"},
		Enrich(site, Absent(MeasurementNotFound)).Values())
}

func TestFields(t *testing.T) {
	assert.Equal(t, []string{"Name", "Latitude", "Longitude"}, FieldNames(SiteFields))
	assert.Equal(t, []string{"Name", "Latitude", "Longitude", "Measurement Name", "Measurement Status"}, FieldNames(EnrichedFields))
	assert.Len(t, SiteFields, 3, "EnrichedFields must not alias SiteFields")
}

func TestClock(t *testing.T) {
	loc := time.FixedZone("NZST", 12*3600)
	fake := clockwork.NewFakeClockAt(time.Date(2026, 6, 1, 9, 0, 0, 0, loc))
	SetClock(fake)
	t.Cleanup(func() { SetClock(nil) })

	now := Now()
	assert.Equal(t, time.UTC, now.Location())
	assert.Equal(t, time.Date(2026, 5, 31, 21, 0, 0, 0, time.UTC), now)

	fake.Advance(time.Minute)
	assert.Equal(t, time.Date(2026, 5, 31, 21, 1, 0, 0, time.UTC), Now())
}
