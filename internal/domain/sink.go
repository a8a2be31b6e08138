package domain

import "time"

// TableHandle identifies an attribute table created by a GIS sink.
type TableHandle struct {
	Store   string   `json:"store" yaml:"store"` // GeoPackage path or PostGIS schema
	Name    string   `json:"name" yaml:"name"`
	Columns []string `json:"columns" yaml:"columns"`
	Rows    int      `json:"rows" yaml:"rows"`
}

// LayerHandle identifies a point feature layer created by a GIS sink.
type LayerHandle struct {
	Store    string `json:"store" yaml:"store"`
	Name     string `json:"name" yaml:"name"`
	Table    string `json:"table" yaml:"table"`
	XField   string `json:"x_field" yaml:"x_field"`
	YField   string `json:"y_field" yaml:"y_field"`
	SRID     int    `json:"srid" yaml:"srid"`
	Features int    `json:"features" yaml:"features"`
}

// LoadReport summarizes one load run.
type LoadReport struct {
	StartedAt  time.Time                 `json:"started_at"`
	FinishedAt time.Time                 `json:"finished_at"`
	CacheHit   bool                      `json:"cache_hit"`
	Sites      int                       `json:"sites"`
	Outcomes   map[MeasurementStatus]int `json:"outcomes"`
	Table      *TableHandle              `json:"table,omitempty"`
	Layer      *LayerHandle              `json:"layer,omitempty"`
	Attached   bool                      `json:"attached"`
	Published  int                       `json:"published"`
	Skipped    []string                  `json:"skipped,omitempty"`
}
