// Package postgis materializes the enriched dataset into a PostgreSQL schema
// with the PostGIS extension.
package postgis

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/couchcryptid/hilltop-site-loader/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Store is a GIS sink backed by a pgx pool.
type Store struct {
	pool   *pgxpool.Pool
	schema string
	logger *slog.Logger
}

// Open connects to databaseURL and makes sure the PostGIS extension is
// available.
func Open(ctx context.Context, databaseURL, schema string, logger *slog.Logger) (*Store, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect postgis: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgis: %w", err)
	}

	var version string
	if err := pool.QueryRow(ctx, `SELECT postgis_lib_version()`).Scan(&version); err != nil {
		if _, cerr := pool.Exec(ctx, `CREATE EXTENSION IF NOT EXISTS postgis`); cerr != nil {
			pool.Close()
			return nil, fmt.Errorf("postgis extension unavailable: %w", cerr)
		}
		logger.Info("postgis extension created")
	} else {
		logger.Debug("postgis available", "version", version)
	}

	if _, err := pool.Exec(ctx, "CREATE SCHEMA IF NOT EXISTS "+pgx.Identifier{schema}.Sanitize()); err != nil {
		pool.Close()
		return nil, fmt.Errorf("create schema %q: %w", schema, err)
	}
	return &Store{pool: pool, schema: schema, logger: logger}, nil
}

// Close releases the pool.
func (s *Store) Close() {
	s.pool.Close()
}

// Ref identifies this store in table and layer handles.
func (s *Store) Ref() string {
	return "postgis:" + s.schema
}

func (s *Store) ident(name string) pgx.Identifier {
	return pgx.Identifier{s.schema, name}
}

// MaterializeTable creates a table with one row per record in dataset order.
func (s *Store) MaterializeTable(ctx context.Context, records []domain.EnrichedRecord, name string, overwrite bool) (domain.TableHandle, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return domain.TableHandle{}, err
	}
	defer tx.Rollback(ctx) //nolint:errcheck // no-op after commit

	target := s.ident(name)
	if err := prepareTarget(ctx, tx, target, overwrite); err != nil {
		return domain.TableHandle{}, err
	}
	if _, err := tx.Exec(ctx, createTableSQL(target, domain.EnrichedFields)); err != nil {
		return domain.TableHandle{}, fmt.Errorf("create table %q: %w", name, err)
	}

	columns := domain.FieldNames(domain.EnrichedFields)
	rows := make([][]any, len(records))
	for i, r := range records {
		rows[i] = r.Values()
	}
	n, err := tx.CopyFrom(ctx, target, columns, pgx.CopyFromRows(rows))
	if err != nil {
		return domain.TableHandle{}, fmt.Errorf("copy rows into %q: %w", name, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return domain.TableHandle{}, err
	}
	s.logger.Info("table materialized", "schema", s.schema, "table", name, "rows", n)
	return domain.TableHandle{Store: s.Ref(), Name: name, Columns: columns, Rows: int(n)}, nil
}

// MaterializePointLayer builds a point feature table from table. Coordinates
// are tagged with srid as-is.
func (s *Store) MaterializePointLayer(ctx context.Context, table domain.TableHandle, name, xField, yField string, srid int, overwrite bool) (domain.LayerHandle, error) {
	if name == table.Name {
		return domain.LayerHandle{}, fmt.Errorf("layer %q would replace its own source table", name)
	}
	if table.Store != "" && table.Store != s.Ref() {
		return domain.LayerHandle{}, fmt.Errorf("%w: table %q belongs to %s, not %s", domain.ErrNotFound, table.Name, table.Store, s.Ref())
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return domain.LayerHandle{}, err
	}
	defer tx.Rollback(ctx) //nolint:errcheck // no-op after commit

	source := s.ident(table.Name)
	exists, err := tableExists(ctx, tx, source)
	if err != nil {
		return domain.LayerHandle{}, err
	}
	if !exists {
		return domain.LayerHandle{}, fmt.Errorf("%w: table %q", domain.ErrNotFound, table.Name)
	}

	columns, err := s.tableColumns(ctx, tx, table.Name)
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

	target := s.ident(name)
	if err := prepareTarget(ctx, tx, target, overwrite); err != nil {
		return domain.LayerHandle{}, err
	}
	if _, err := tx.Exec(ctx, createLayerSQL(target, srid, columns)); err != nil {
		return domain.LayerHandle{}, fmt.Errorf("create layer %q: %w", name, err)
	}
	tag, err := tx.Exec(ctx, copyFeaturesSQL(target, source, columns.names(), xField, yField, srid))
	if err != nil {
		return domain.LayerHandle{}, fmt.Errorf("copy features into %q: %w", name, err)
	}
	if _, err := tx.Exec(ctx, spatialIndexSQL(target, name)); err != nil {
		return domain.LayerHandle{}, fmt.Errorf("index layer %q: %w", name, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return domain.LayerHandle{}, err
	}
	features := int(tag.RowsAffected())
	s.logger.Info("point layer materialized", "schema", s.schema, "layer", name, "features", features, "srid", srid)
	return domain.LayerHandle{
		Store:    s.Ref(),
		Name:     name,
		Table:    table.Name,
		XField:   xField,
		YField:   yField,
		SRID:     srid,
		Features: features,
	}, nil
}

// prepareTarget returns domain.ErrConflict when target exists and overwrite
// is false; otherwise it drops any existing target.
func prepareTarget(ctx context.Context, tx pgx.Tx, target pgx.Identifier, overwrite bool) error {
	exists, err := tableExists(ctx, tx, target)
	if err != nil {
		return err
	}
	if !exists {
		return nil
	}
	if !overwrite {
		return fmt.Errorf("%w: %s", domain.ErrConflict, target.Sanitize())
	}
	if _, err := tx.Exec(ctx, "DROP TABLE "+target.Sanitize()); err != nil {
		return fmt.Errorf("drop %s: %w", target.Sanitize(), err)
	}
	return nil
}

func tableExists(ctx context.Context, tx pgx.Tx, target pgx.Identifier) (bool, error) {
	var exists bool
	if err := tx.QueryRow(ctx, `SELECT to_regclass($1) IS NOT NULL`, target.Sanitize()).Scan(&exists); err != nil {
		return false, fmt.Errorf("lookup %s: %w", target.Sanitize(), err)
	}
	return exists, nil
}

type column struct {
	name     string
	dataType string
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
			return kindOf(c.dataType), true
		}
	}
	return domain.FieldText, false
}

func kindOf(dataType string) domain.FieldKind {
	switch strings.ToLower(dataType) {
	case "double precision", "real", "numeric", "integer", "bigint", "smallint":
		return domain.FieldNumeric
	default:
		return domain.FieldText
	}
}

// tableColumns lists the user columns of a table in ordinal order, skipping id.
func (s *Store) tableColumns(ctx context.Context, tx pgx.Tx, table string) (columnList, error) {
	rows, err := tx.Query(ctx, `
SELECT column_name, data_type
FROM information_schema.columns
WHERE table_schema = $1 AND table_name = $2 AND column_name <> 'id'
ORDER BY ordinal_position`, s.schema, table)
	if err != nil {
		return nil, err
	}
	cols, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (column, error) {
		var c column
		err := row.Scan(&c.name, &c.dataType)
		return c, err
	})
	if err != nil {
		return nil, err
	}
	if len(cols) == 0 {
		return nil, fmt.Errorf("%w: no columns in table %q", domain.ErrNotFound, table)
	}
	return cols, nil
}

func pgType(k domain.FieldKind) string {
	if k == domain.FieldNumeric {
		return "double precision"
	}
	return "text"
}

func createTableSQL(target pgx.Identifier, fields []domain.Field) string {
	var b strings.Builder
	b.WriteString("CREATE TABLE ")
	b.WriteString(target.Sanitize())
	b.WriteString(" (id bigserial PRIMARY KEY")
	for _, f := range fields {
		b.WriteString(", ")
		b.WriteString(pgx.Identifier{f.Name}.Sanitize())
		b.WriteString(" ")
		b.WriteString(pgType(f.Kind))
	}
	b.WriteString(")")
	return b.String()
}

func createLayerSQL(target pgx.Identifier, srid int, cols columnList) string {
	var b strings.Builder
	fmt.Fprintf(&b, "CREATE TABLE %s (fid bigserial PRIMARY KEY, geom geometry(Point, %d)", target.Sanitize(), srid)
	for _, c := range cols {
		b.WriteString(", ")
		b.WriteString(pgx.Identifier{c.name}.Sanitize())
		b.WriteString(" ")
		b.WriteString(pgType(kindOf(c.dataType)))
	}
	b.WriteString(")")
	return b.String()
}

// copyFeaturesSQL copies rows in source order. A NULL coordinate yields a
// NULL geometry.
func copyFeaturesSQL(target, source pgx.Identifier, cols []string, xField, yField string, srid int) string {
	quoted := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = pgx.Identifier{c}.Sanitize()
	}
	list := strings.Join(quoted, ", ")
	return fmt.Sprintf("INSERT INTO %s (geom, %s) SELECT ST_SetSRID(ST_MakePoint(%s, %s), %d), %s FROM %s ORDER BY id",
		target.Sanitize(), list,
		pgx.Identifier{xField}.Sanitize(), pgx.Identifier{yField}.Sanitize(), srid,
		list, source.Sanitize())
}

func spatialIndexSQL(target pgx.Identifier, name string) string {
	return fmt.Sprintf("CREATE INDEX %s ON %s USING GIST (geom)",
		pgx.Identifier{name + "_geom_idx"}.Sanitize(), target.Sanitize())
}
