// Package project keeps a YAML map project that lists the layers produced by
// the loader, grouped into named maps.
package project

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/couchcryptid/hilltop-site-loader/internal/domain"
	"gopkg.in/yaml.v3"
)

// Document is the persisted project.
type Document struct {
	UpdatedAt time.Time `yaml:"updated_at"`
	Maps      []Map     `yaml:"maps"`
}

// Map is an ordered list of layers. The first layer draws at the bottom.
type Map struct {
	Name   string  `yaml:"name"`
	Layers []Layer `yaml:"layers"`
}

// Layer references a point layer in a GIS store.
type Layer struct {
	DisplayName string `yaml:"display_name"`
	Source      string `yaml:"source"`
	Layer       string `yaml:"layer"`
	Table       string `yaml:"table"`
	SRID        int    `yaml:"srid"`
	Features    int    `yaml:"features"`
}

// Store reads and writes one project file.
type Store struct {
	path      string
	createMap bool
	logger    *slog.Logger

	mu sync.Mutex
}

// NewStore returns a Store for path. With createMap false, attaching to a map
// that does not exist is domain.ErrNotFound.
func NewStore(path string, createMap bool, logger *slog.Logger) *Store {
	return &Store{path: path, createMap: createMap, logger: logger}
}

// Path returns the project file location.
func (s *Store) Path() string {
	return s.path
}

// Load reads the project. A missing file is an empty project.
func (s *Store) Load() (*Document, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return &Document{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read project %s: %w", s.path, err)
	}
	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: project %s: %v", domain.ErrParse, s.path, err)
	}
	return &doc, nil
}

// AttachToProject inserts layer into mapName under displayName, replacing a
// layer with the same display name in place, and saves the project.
func (s *Store) AttachToProject(ctx context.Context, layer domain.LayerHandle, mapName, displayName string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.Load()
	if err != nil {
		return err
	}

	m := doc.findMap(mapName)
	if m == nil {
		if !s.createMap {
			return fmt.Errorf("%w: map %q in project %s", domain.ErrNotFound, mapName, s.path)
		}
		doc.Maps = append(doc.Maps, Map{Name: mapName})
		m = &doc.Maps[len(doc.Maps)-1]
	}

	entry := Layer{
		DisplayName: displayName,
		Source:      layer.Store,
		Layer:       layer.Name,
		Table:       layer.Table,
		SRID:        layer.SRID,
		Features:    layer.Features,
	}
	replaced := m.put(entry)
	doc.UpdatedAt = domain.Now()

	if err := s.save(doc); err != nil {
		return err
	}
	s.logger.Info("layer attached to project",
		"project", s.path, "map", mapName, "layer", displayName, "replaced", replaced)
	return nil
}

func (d *Document) findMap(name string) *Map {
	for i := range d.Maps {
		if d.Maps[i].Name == name {
			return &d.Maps[i]
		}
	}
	return nil
}

// put replaces the layer with the same display name or appends it.
func (m *Map) put(l Layer) bool {
	for i := range m.Layers {
		if m.Layers[i].DisplayName == l.DisplayName {
			m.Layers[i] = l
			return true
		}
	}
	m.Layers = append(m.Layers, l)
	return false
}

func (s *Store) save(doc *Document) error {
	data, err := yaml.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode project: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), "."+filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp for %s: %w", s.path, err)
	}
	defer os.Remove(tmp.Name()) //nolint:errcheck // no-op after a successful rename

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write %s: %w", s.path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", s.path, err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("save project %s: %w", s.path, err)
	}
	return nil
}
