// Package csvstore persists site lists and enriched datasets as delimited text
// with a header row. Writes go to a temp file in the target directory and are
// renamed into place, so readers never observe a partial file.
package csvstore

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strconv"

	"github.com/couchcryptid/hilltop-site-loader/internal/domain"
)

// Store reads and writes dataset files.
type Store struct{}

// New returns a Store.
func New() *Store { return &Store{} }

// SaveSites writes the raw site list (Name, Latitude, Longitude).
func (s *Store) SaveSites(path string, sites []domain.Site) error {
	rows := make([][]string, 0, len(sites))
	for _, site := range sites {
		rows = append(rows, siteRow(site))
	}
	return writeAtomic(path, domain.FieldNames(domain.SiteFields), rows)
}

// LoadSites reads a raw site list written by SaveSites.
func (s *Store) LoadSites(path string) ([]domain.Site, error) {
	rows, err := readTable(path, domain.FieldNames(domain.SiteFields))
	if err != nil {
		return nil, err
	}
	sites := make([]domain.Site, 0, len(rows))
	for i, row := range rows {
		site, err := parseSiteRow(row)
		if err != nil {
			return nil, fmt.Errorf("%s row %d: %w", path, i+2, err)
		}
		sites = append(sites, site)
	}
	return sites, nil
}

// SaveRecords writes the enriched dataset.
func (s *Store) SaveRecords(path string, records []domain.EnrichedRecord) error {
	rows := make([][]string, 0, len(records))
	for _, r := range records {
		rows = append(rows, append(siteRow(r.Site), r.Measurement.Name, string(r.Measurement.Status)))
	}
	return writeAtomic(path, domain.FieldNames(domain.EnrichedFields), rows)
}

// LoadRecords reads an enriched dataset written by SaveRecords. A missing file
// wraps domain.ErrNotFound; anything not matching the expected layout wraps
// domain.ErrParse.
func (s *Store) LoadRecords(path string) ([]domain.EnrichedRecord, error) {
	rows, err := readTable(path, domain.FieldNames(domain.EnrichedFields))
	if err != nil {
		return nil, err
	}
	records := make([]domain.EnrichedRecord, 0, len(rows))
	for i, row := range rows {
		site, err := parseSiteRow(row[:3])
		if err != nil {
			return nil, fmt.Errorf("%s row %d: %w", path, i+2, err)
		}
		m, err := domain.ParseMeasurement(row[3], row[4])
		if err != nil {
			return nil, fmt.Errorf("%s row %d: %w", path, i+2, err)
		}
		records = append(records, domain.Enrich(site, m))
	}
	return records, nil
}

func siteRow(site domain.Site) []string {
	return []string{
		site.Name,
		strconv.FormatFloat(site.Latitude, 'f', -1, 64),
		strconv.FormatFloat(site.Longitude, 'f', -1, 64),
	}
}

func parseSiteRow(row []string) (domain.Site, error) {
	lat, err := strconv.ParseFloat(row[1], 64)
	if err != nil {
		return domain.Site{}, fmt.Errorf("%w: latitude %q", domain.ErrParse, row[1])
	}
	lon, err := strconv.ParseFloat(row[2], 64)
	if err != nil {
		return domain.Site{}, fmt.Errorf("%w: longitude %q", domain.ErrParse, row[2])
	}
	return domain.Site{Name: row[0], Latitude: lat, Longitude: lon}, nil
}

func readTable(path string, header []string) ([][]string, error) {
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", domain.ErrNotFound, path)
	}
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = len(header)

	got, err := r.Read()
	if errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: %s is empty", domain.ErrParse, path)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %s header: %v", domain.ErrParse, path, err)
	}
	if !slices.Equal(got, header) {
		return nil, fmt.Errorf("%w: %s header %q, want %q", domain.ErrParse, path, got, header)
	}

	rows, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", domain.ErrParse, path, err)
	}
	return rows, nil
}

func writeAtomic(path string, header []string, rows [][]string) error {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(header); err != nil {
		return fmt.Errorf("encode %s: %w", path, err)
	}
	if err := w.WriteAll(rows); err != nil {
		return fmt.Errorf("encode %s: %w", path, err)
	}

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp for %s: %w", path, err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) //nolint:errcheck // no-op after a successful rename

	if _, err := tmp.Write(buf.Bytes()); err != nil {
		tmp.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", path, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("rename %s: %w", path, err)
	}
	return nil
}
