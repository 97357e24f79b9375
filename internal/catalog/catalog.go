// Package catalog tracks which measurement names exist per brain and slice,
// and serves slice ordering for UI sliders. Registration happens during
// ingestion; serving-time access is read-only.
package catalog

import (
	"database/sql"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"

	_ "modernc.org/sqlite"
)

// Config contains catalog configuration. The CSV paths are read-only
// collaborator tables; a missing file leaves the corresponding lookup empty.
type Config struct {
	DBPath          string
	LookupPath      string // slice index -> brain id
	CoordinatesPath string // slice index -> anterior-posterior coordinate
	PercentilesPath string // measurement name -> [vmin, vmax]
}

// Catalog is the per-brain measurement inventory plus its auxiliary lookups.
type Catalog struct {
	db *sql.DB

	sliceToBrain map[float64]string
	sliceToAP    map[float64]float64
	ranges       map[string][2]float64
}

// NewCatalog opens the catalog database and loads the auxiliary tables.
func NewCatalog(cfg Config) (*Catalog, error) {
	dir := filepath.Dir(cfg.DBPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory for sqlite: %w", err)
	}

	db, err := sql.Open("sqlite", cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}

	c := &Catalog{
		db:           db,
		sliceToBrain: make(map[float64]string),
		sliceToAP:    make(map[float64]float64),
		ranges:       make(map[string][2]float64),
	}
	if err := c.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate: %w", err)
	}

	if cfg.LookupPath != "" {
		if err := c.loadLookup(cfg.LookupPath); err != nil {
			log.Printf("brain lookup table not loaded from %s: %v", cfg.LookupPath, err)
		}
	}
	if cfg.CoordinatesPath != "" {
		if err := c.loadCoordinates(cfg.CoordinatesPath); err != nil {
			log.Printf("coordinate table not loaded from %s: %v", cfg.CoordinatesPath, err)
		}
	}
	if cfg.PercentilesPath != "" {
		if err := c.loadPercentiles(cfg.PercentilesPath); err != nil {
			log.Printf("percentile table not loaded from %s: %v", cfg.PercentilesPath, err)
		}
	}

	return c, nil
}

// Close closes the database connection.
func (c *Catalog) Close() error {
	return c.db.Close()
}

func (c *Catalog) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS measurements (
		family TEXT NOT NULL,
		brain_id TEXT NOT NULL,
		slice_index REAL NOT NULL,
		name TEXT NOT NULL,
		UNIQUE (family, brain_id, slice_index, name)
	);
	`
	_, err := c.db.Exec(schema)
	return err
}

// Register records that a measurement exists for a (brain, slice) pair.
// Registering the same triple twice is a no-op.
func (c *Catalog) Register(family, brainID string, sliceIndex float64, name string) error {
	_, err := c.db.Exec(`
		INSERT INTO measurements (family, brain_id, slice_index, name) VALUES (?, ?, ?, ?)
		ON CONFLICT (family, brain_id, slice_index, name) DO NOTHING`,
		family, brainID, sliceIndex, name)
	if err != nil {
		return fmt.Errorf("failed to register %s/%s/%v/%s: %w", family, brainID, sliceIndex, name, err)
	}
	return nil
}

// AvailableNames returns the measurement names for a (brain, slice) pair in
// ingestion order.
func (c *Catalog) AvailableNames(family, brainID string, sliceIndex float64) ([]string, error) {
	rows, err := c.db.Query(`
		SELECT name FROM measurements
		WHERE family = ? AND brain_id = ? AND slice_index = ?
		ORDER BY rowid`,
		family, brainID, sliceIndex)
	if err != nil {
		return nil, fmt.Errorf("failed to list measurements: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// AvailableBrains returns brain IDs in order of first registration.
func (c *Catalog) AvailableBrains() ([]string, error) {
	rows, err := c.db.Query(`
		SELECT brain_id FROM measurements GROUP BY brain_id ORDER BY MIN(rowid)`)
	if err != nil {
		return nil, fmt.Errorf("failed to list brains: %w", err)
	}
	defer rows.Close()

	var brains []string
	for rows.Next() {
		var b string
		if err := rows.Scan(&b); err != nil {
			return nil, err
		}
		brains = append(brains, b)
	}
	return brains, rows.Err()
}

// AvailableSlices returns a brain's slice indices sorted by their
// anterior-posterior coordinate. Slices without a known coordinate sort
// after the rest, by slice index.
func (c *Catalog) AvailableSlices(brainID string) ([]float64, error) {
	rows, err := c.db.Query(`
		SELECT DISTINCT slice_index FROM measurements WHERE brain_id = ?`, brainID)
	if err != nil {
		return nil, fmt.Errorf("failed to list slices: %w", err)
	}
	defer rows.Close()

	var slices []float64
	for rows.Next() {
		var s float64
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		slices = append(slices, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sort.Slice(slices, func(i, j int) bool {
		ci, oki := c.sliceToAP[slices[i]]
		cj, okj := c.sliceToAP[slices[j]]
		if oki && okj {
			return ci < cj
		}
		if oki != okj {
			return oki
		}
		return slices[i] < slices[j]
	})
	return slices, nil
}

// SliceList returns all slice indices across all brains, each brain's slices
// in anatomical order.
func (c *Catalog) SliceList() ([]float64, error) {
	brains, err := c.AvailableBrains()
	if err != nil {
		return nil, err
	}
	var all []float64
	for _, b := range brains {
		slices, err := c.AvailableSlices(b)
		if err != nil {
			return nil, err
		}
		all = append(all, slices...)
	}
	return all, nil
}

// BrainForSlice resolves the brain owning a slice. A missing mapping is a
// legitimate outcome while lookup tables are built incrementally.
func (c *Catalog) BrainForSlice(sliceIndex float64) (string, bool) {
	b, ok := c.sliceToBrain[sliceIndex]
	return b, ok
}

// Range returns the normalization range for a measurement name from the
// percentile table.
func (c *Catalog) Range(name string) (float64, float64, bool) {
	r, ok := c.ranges[name]
	if !ok {
		return 0, 0, false
	}
	return r[0], r[1], true
}
