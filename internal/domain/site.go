package domain

import "fmt"

// Site is a sensor location parsed from one Site element of the site list.
type Site struct {
	Name      string  `json:"name"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// MeasurementStatus says whether a measurement name was resolved, and if not, why.
type MeasurementStatus string

const (
	MeasurementPresent     MeasurementStatus = "present"
	MeasurementNotFound    MeasurementStatus = "not_found"
	MeasurementUnreachable MeasurementStatus = "unreachable"
	MeasurementMalformed   MeasurementStatus = "malformed"
)

// Valid reports whether s is one of the known statuses.
func (s MeasurementStatus) Valid() bool {
	switch s {
	case MeasurementPresent, MeasurementNotFound, MeasurementUnreachable, MeasurementMalformed:
		return true
	}
	return false
}

// Measurement is either a present measurement name or an absence with a reason.
// The zero value is not valid; use Present or Absent.
type Measurement struct {
	Name   string            `json:"name,omitempty"`
	Status MeasurementStatus `json:"status"`
}

// Present returns a resolved measurement.
func Present(name string) Measurement {
	return Measurement{Name: name, Status: MeasurementPresent}
}

// Absent returns a missing measurement tagged with why it is missing.
func Absent(reason MeasurementStatus) Measurement {
	return Measurement{Status: reason}
}

// IsPresent reports whether a measurement name was resolved.
func (m Measurement) IsPresent() bool {
	return m.Status == MeasurementPresent
}

func (m Measurement) String() string {
	if m.IsPresent() {
		return m.Name
	}
	return fmt.Sprintf("<absent:%s>", m.Status)
}

// ParseMeasurement rebuilds a Measurement from its persisted name and status.
func ParseMeasurement(name, status string) (Measurement, error) {
	s := MeasurementStatus(status)
	if !s.Valid() {
		return Measurement{}, fmt.Errorf("%w: unknown measurement status %q", ErrParse, status)
	}
	if s == MeasurementPresent {
		if name == "" {
			return Measurement{}, fmt.Errorf("%w: present measurement without a name", ErrParse)
		}
		return Present(name), nil
	}
	if name != "" {
		return Measurement{}, fmt.Errorf("%w: absent measurement %q carries name %q", ErrParse, status, name)
	}
	return Absent(s), nil
}

// EnrichedRecord is a Site joined with its first measurement name.
type EnrichedRecord struct {
	Site
	Measurement Measurement `json:"measurement"`
}

// Enrich attaches a measurement to a site.
func Enrich(site Site, m Measurement) EnrichedRecord {
	return EnrichedRecord{Site: site, Measurement: m}
}

// Field names shared by the cache files and every sink.
const (
	FieldName              = "Name"
	FieldLatitude          = "Latitude"
	FieldLongitude         = "Longitude"
	FieldMeasurementName   = "Measurement Name"
	FieldMeasurementStatus = "Measurement Status"
)

// FieldKind is the storage type a sink should use for a dataset field.
type FieldKind int

const (
	FieldText FieldKind = iota
	FieldNumeric
)

// Field describes one column of the enriched dataset.
type Field struct {
	Name string
	Kind FieldKind
}

// SiteFields are the columns of the raw site list file.
var SiteFields = []Field{
	{Name: FieldName, Kind: FieldText},
	{Name: FieldLatitude, Kind: FieldNumeric},
	{Name: FieldLongitude, Kind: FieldNumeric},
}

// EnrichedFields are the columns of the enriched dataset, in order.
var EnrichedFields = append(append([]Field(nil), SiteFields...),
	Field{Name: FieldMeasurementName, Kind: FieldText},
	Field{Name: FieldMeasurementStatus, Kind: FieldText},
)

// FieldNames returns the names of fields in order.
func FieldNames(fields []Field) []string {
	names := make([]string, len(fields))
	for i, f := range fields {
		names[i] = f.Name
	}
	return names
}

// Values returns the record's column values in EnrichedFields order. An absent
// measurement name is nil so sinks store NULL rather than an empty string.
func (r EnrichedRecord) Values() []any {
	var name any
	if r.Measurement.IsPresent() {
		name = r.Measurement.Name
	}
	return []any{r.Name, r.Latitude, r.Longitude, name, string(r.Measurement.Status)}
}
