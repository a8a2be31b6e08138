// Package gpkg is a GIS sink that writes attribute tables and point feature
// layers into a single-file OGC GeoPackage.
package gpkg

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"math"
	"strings"

	_ "modernc.org/sqlite" // registers the "sqlite" driver

	"github.com/couchcryptid/hilltop-site-loader/internal/domain"
)

const (
	applicationID = 0x47504B47 // "GPKG"
	userVersion   = 10400      // GeoPackage 1.4.0

	dataTypeAttributes = "attributes"
	dataTypeFeatures   = "features"
	geometryColumn     = "geom"
)

// Store is a GeoPackage file opened for writing.
type Store struct {
	path   string
	db     *sql.DB
	logger *slog.Logger
}

// Open opens or creates the GeoPackage at path and ensures the core metadata
// tables exist.
func Open(ctx context.Context, path string, logger *slog.Logger) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open geopackage %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)

	s := &Store{path: path, db: db, logger: logger}
	if err := s.init(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("init geopackage %s: %w", path, err)
	}
	return s, nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the GeoPackage file path.
func (s *Store) Path() string {
	return s.path
}

func (s *Store) init(ctx context.Context) error {
	stmts := []string{
		fmt.Sprintf("PRAGMA application_id = %d", applicationID),
		fmt.Sprintf("PRAGMA user_version = %d", userVersion),
		`CREATE TABLE IF NOT EXISTS gpkg_spatial_ref_sys (
			srs_name TEXT NOT NULL,
			srs_id INTEGER PRIMARY KEY,
			organization TEXT NOT NULL,
			organization_coordsys_id INTEGER NOT NULL,
			definition TEXT NOT NULL,
			description TEXT
		)`,
		`CREATE TABLE IF NOT EXISTS gpkg_contents (
			table_name TEXT NOT NULL PRIMARY KEY,
			data_type TEXT NOT NULL,
			identifier TEXT UNIQUE,
			description TEXT DEFAULT '',
			last_change DATETIME NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ','now')),
			min_x DOUBLE, min_y DOUBLE, max_x DOUBLE, max_y DOUBLE,
			srs_id INTEGER,
			CONSTRAINT fk_gc_r_srs_id FOREIGN KEY (srs_id) REFERENCES gpkg_spatial_ref_sys(srs_id)
		)`,
		`CREATE TABLE IF NOT EXISTS gpkg_geometry_columns (
			table_name TEXT NOT NULL,
			column_name TEXT NOT NULL,
			geometry_type_name TEXT NOT NULL,
			srs_id INTEGER NOT NULL,
			z TINYINT NOT NULL,
			m TINYINT NOT NULL,
			CONSTRAINT pk_geom_cols PRIMARY KEY (table_name, column_name),
			CONSTRAINT fk_gc_tn FOREIGN KEY (table_name) REFERENCES gpkg_contents(table_name),
			CONSTRAINT fk_gc_srs FOREIGN KEY (srs_id) REFERENCES gpkg_spatial_ref_sys(srs_id)
		)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	for _, srid := range []int{-1, 0, 4326} {
		if err := ensureSRS(ctx, s.db, srid); err != nil {
			return err
		}
	}
	return nil
}

// MaterializeTable writes records to an attribute table. An existing table of
// the same name is replaced when overwrite is true; otherwise the call fails
// with domain.ErrConflict and the existing table is left untouched.
func (s *Store) MaterializeTable(ctx context.Context, records []domain.EnrichedRecord, name string, overwrite bool) (domain.TableHandle, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.TableHandle{}, err
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	if err := prepareTarget(ctx, tx, name, overwrite); err != nil {
		return domain.TableHandle{}, err
	}

	cols := make([]string, 0, len(domain.EnrichedFields))
	for _, f := range domain.EnrichedFields {
		cols = append(cols, quoteIdent(f.Name)+" "+sqlType(f.Kind))
	}
	create := fmt.Sprintf("CREATE TABLE %s (id INTEGER PRIMARY KEY AUTOINCREMENT, %s)", quoteIdent(name), strings.Join(cols, ", "))
	if _, err := tx.ExecContext(ctx, create); err != nil {
		return domain.TableHandle{}, fmt.Errorf("create table %q: %w", name, err)
	}

	names := domain.FieldNames(domain.EnrichedFields)
	insert := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", quoteIdent(name), quoteIdents(names), placeholders(len(names)))
	stmt, err := tx.PrepareContext(ctx, insert)
	if err != nil {
		return domain.TableHandle{}, err
	}
	defer stmt.Close()

	for _, r := range records {
		if _, err := stmt.ExecContext(ctx, r.Values()...); err != nil {
			return domain.TableHandle{}, fmt.Errorf("insert %q into %q: %w", r.Name, name, err)
		}
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO gpkg_contents (table_name, data_type, identifier, last_change) VALUES (?, ?, ?, ?)`,
		name, dataTypeAttributes, name, lastChange()); err != nil {
		return domain.TableHandle{}, fmt.Errorf("register table %q: %w", name, err)
	}

	if err := tx.Commit(); err != nil {
		return domain.TableHandle{}, err
	}
	s.logger.Info("table materialized", "store", s.path, "table", name, "rows", len(records), "overwrite", overwrite)
	return domain.TableHandle{Store: s.path, Name: name, Columns: names, Rows: len(records)}, nil
}

// MaterializePointLayer builds a point feature layer from two numeric columns
// of an existing table. Points are tagged with srid as-is; coordinates are not
// reprojected. A missing source table is domain.ErrNotFound; an existing layer
// with overwrite false is domain.ErrConflict.
func (s *Store) MaterializePointLayer(ctx context.Context, table domain.TableHandle, name, xField, yField string, srid int, overwrite bool) (domain.LayerHandle, error) {
	if name == table.Name {
		return domain.LayerHandle{}, fmt.Errorf("layer %q would replace its own source table", name)
	}
	if table.Store != "" && table.Store != s.path {
		return domain.LayerHandle{}, fmt.Errorf("%w: table %q belongs to %s, not %s", domain.ErrNotFound, table.Name, table.Store, s.path)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.LayerHandle{}, err
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	exists, err := tableExists(ctx, tx, table.Name)
	if err != nil {
		return domain.LayerHandle{}, err
	}
	if !exists {
		return domain.LayerHandle{}, fmt.Errorf("%w: table %q", domain.ErrNotFound, table.Name)
	}

	columns, err := tableColumns(ctx, tx, table.Name)
	if err != nil {
		return domain.LayerHandle{}, err
	}
	for _, f := range []string{xField, yField} {
		kind, ok := columns.kind(f)
		if !ok {
			return domain.LayerHandle{}, fmt.Errorf("%w: column %q in table %q", domain.ErrNotFound, f, table.Name)
		}
		if kind != domain.FieldNumeric {
			return domain.LayerHandle{}, fmt.Errorf("column %q in table %q is not numeric", f, table.Name)
		}
	}

	if err := prepareTarget(ctx, tx, name, overwrite); err != nil {
		return domain.LayerHandle{}, err
	}
	if err := ensureSRS(ctx, tx, srid); err != nil {
		return domain.LayerHandle{}, err
	}

	defs := make([]string, 0, len(columns))
	for _, c := range columns {
		defs = append(defs, quoteIdent(c.name)+" "+c.decl)
	}
	create := fmt.Sprintf("CREATE TABLE %s (fid INTEGER PRIMARY KEY AUTOINCREMENT, %s POINT, %s)",
		quoteIdent(name), geometryColumn, strings.Join(defs, ", "))
	if _, err := tx.ExecContext(ctx, create); err != nil {
		return domain.LayerHandle{}, fmt.Errorf("create layer %q: %w", name, err)
	}

	colNames := columns.names()
	features, bounds, err := copyFeatures(ctx, tx, table.Name, name, colNames, xField, yField, srid)
	if err != nil {
		return domain.LayerHandle{}, err
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO gpkg_contents (table_name, data_type, identifier, last_change, min_x, min_y, max_x, max_y, srs_id)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		name, dataTypeFeatures, name, lastChange(), bounds.minX(), bounds.minY(), bounds.maxX(), bounds.maxY(), srid); err != nil {
		return domain.LayerHandle{}, fmt.Errorf("register layer %q: %w", name, err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO gpkg_geometry_columns (table_name, column_name, geometry_type_name, srs_id, z, m) VALUES (?, ?, 'POINT', ?, 0, 0)`,
		name, geometryColumn, srid); err != nil {
		return domain.LayerHandle{}, fmt.Errorf("register geometry column for %q: %w", name, err)
	}

	if err := tx.Commit(); err != nil {
		return domain.LayerHandle{}, err
	}
	s.logger.Info("point layer materialized", "store", s.path, "layer", name, "table", table.Name, "features", features, "srid", srid)
	return domain.LayerHandle{
		Store:    s.path,
		Name:     name,
		Table:    table.Name,
		XField:   xField,
		YField:   yField,
		SRID:     srid,
		Features: features,
	}, nil
}

func copyFeatures(ctx context.Context, tx *sql.Tx, from, to string, cols []string, xField, yField string, srid int) (int, *extent, error) {
	xi, yi := indexOf(cols, xField), indexOf(cols, yField)

	rows, err := tx.QueryContext(ctx, fmt.Sprintf("SELECT %s FROM %s ORDER BY rowid", quoteIdents(cols), quoteIdent(from)))
	if err != nil {
		return 0, nil, fmt.Errorf("read table %q: %w", from, err)
	}
	var batch [][]any
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			rows.Close()
			return 0, nil, err
		}
		batch = append(batch, vals)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return 0, nil, err
	}
	rows.Close()

	insert := fmt.Sprintf("INSERT INTO %s (%s, %s) VALUES (?, %s)", quoteIdent(to), geometryColumn, quoteIdents(cols), placeholders(len(cols)))
	stmt, err := tx.PrepareContext(ctx, insert)
	if err != nil {
		return 0, nil, err
	}
	defer stmt.Close()

	bounds := &extent{}
	for _, vals := range batch {
		var geom any
		x, xok := toFloat(vals[xi])
		y, yok := toFloat(vals[yi])
		if xok && yok {
			geom = EncodePoint(x, y, srid)
			bounds.add(x, y)
		}
		if _, err := stmt.ExecContext(ctx, append([]any{geom}, vals...)...); err != nil {
			return 0, nil, fmt.Errorf("insert feature into %q: %w", to, err)
		}
	}
	return len(batch), bounds, nil
}

// prepareTarget clears the way for a new table called name. It fails with
// domain.ErrConflict when name exists and overwrite is false.
func prepareTarget(ctx context.Context, tx *sql.Tx, name string, overwrite bool) error {
	exists, err := tableExists(ctx, tx, name)
	if err != nil {
		return err
	}
	if !exists {
		return nil
	}
	if !overwrite {
		return fmt.Errorf("%w: %q", domain.ErrConflict, name)
	}
	for _, stmt := range []string{
		`DELETE FROM gpkg_geometry_columns WHERE table_name = ?`,
		`DELETE FROM gpkg_contents WHERE table_name = ?`,
	} {
		if _, err := tx.ExecContext(ctx, stmt, name); err != nil {
			return err
		}
	}
	if _, err := tx.ExecContext(ctx, "DROP TABLE "+quoteIdent(name)); err != nil {
		return fmt.Errorf("drop %q: %w", name, err)
	}
	return nil
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func tableExists(ctx context.Context, q queryer, name string) (bool, error) {
	var n int
	err := q.QueryRowContext(ctx, `SELECT count(*) FROM sqlite_master WHERE type = 'table' AND name = ?`, name).Scan(&n)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

type column struct {
	name string
	decl string
}

type columnList []column

func (cl columnList) names() []string {
	out := make([]string, len(cl))
	for i, c := range cl {
		out[i] = c.name
	}
	return out
}

func (cl columnList) kind(name string) (domain.FieldKind, bool) {
	for _, c := range cl {
		if c.name == name {
			if strings.EqualFold(c.decl, "REAL") || strings.EqualFold(c.decl, "DOUBLE") || strings.EqualFold(c.decl, "INTEGER") {
				return domain.FieldNumeric, true
			}
			return domain.FieldText, true
		}
	}
	return domain.FieldText, false
}

// tableColumns lists the user columns of a table, skipping its primary key.
func tableColumns(ctx context.Context, tx *sql.Tx, table string) (columnList, error) {
	rows, err := tx.QueryContext(ctx, "PRAGMA table_info("+quoteIdent(table)+")")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var cols columnList
	for rows.Next() {
		var (
			cid     int
			name    string
			decl    string
			notNull int
			dflt    sql.NullString
			pk      int
		)
		if err := rows.Scan(&cid, &name, &decl, &notNull, &dflt, &pk); err != nil {
			return nil, err
		}
		if pk > 0 {
			continue
		}
		cols = append(cols, column{name: name, decl: decl})
	}
	return cols, rows.Err()
}

func ensureSRS(ctx context.Context, q queryer, srid int) error {
	var n int
	if err := q.QueryRowContext(ctx, `SELECT count(*) FROM gpkg_spatial_ref_sys WHERE srs_id = ?`, srid).Scan(&n); err != nil {
		return err
	}
	if n > 0 {
		return nil
	}
	ref := lookupSRS(srid)
	_, err := q.ExecContext(ctx,
		`INSERT INTO gpkg_spatial_ref_sys (srs_name, srs_id, organization, organization_coordsys_id, definition, description) VALUES (?, ?, ?, ?, ?, ?)`,
		ref.name, srid, ref.organization, ref.orgID, ref.definition, ref.description)
	if err != nil {
		return fmt.Errorf("register srs %d: %w", srid, err)
	}
	return nil
}

func sqlType(k domain.FieldKind) string {
	if k == domain.FieldNumeric {
		return "REAL"
	}
	return "TEXT"
}

func quoteIdent(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

func quoteIdents(names []string) string {
	quoted := make([]string, len(names))
	for i, n := range names {
		quoted[i] = quoteIdent(n)
	}
	return strings.Join(quoted, ", ")
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func indexOf(names []string, name string) int {
	for i, n := range names {
		if n == name {
			return i
		}
	}
	return -1
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}

func lastChange() string {
	return domain.Now().Format("2006-01-02T15:04:05.000Z")
}

// extent tracks a layer's bounding box. A layer with no points has a nil extent.
type extent struct {
	set                    bool
	minx, miny, maxx, maxy float64
}

func (e *extent) add(x, y float64) {
	if !e.set {
		e.minx, e.maxx, e.miny, e.maxy = x, x, y, y
		e.set = true
		return
	}
	e.minx, e.maxx = math.Min(e.minx, x), math.Max(e.maxx, x)
	e.miny, e.maxy = math.Min(e.miny, y), math.Max(e.maxy, y)
}

func (e *extent) value(v float64) any {
	if !e.set {
		return nil
	}
	return v
}

func (e *extent) minX() any { return e.value(e.minx) }
func (e *extent) minY() any { return e.value(e.miny) }
func (e *extent) maxX() any { return e.value(e.maxx) }
func (e *extent) maxY() any { return e.value(e.maxy) }
