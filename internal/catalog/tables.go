package catalog

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
)

// The auxiliary tables ship as CSV exports from the acquisition pipeline:
// a SectionID -> Sample lookup, a SectionID -> rostro-caudal coordinate
// table, and a per-measurement vmin/vmax percentile table.

func readCSV(path string) ([]string, [][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	rows, err := r.ReadAll()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	if len(rows) == 0 {
		return nil, nil, fmt.Errorf("empty table %s", path)
	}
	return rows[0], rows[1:], nil
}

func columnIndex(header []string, name string) (int, error) {
	for i, h := range header {
		if h == name {
			return i, nil
		}
	}
	return 0, fmt.Errorf("missing column %q", name)
}

func (c *Catalog) loadLookup(path string) error {
	header, rows, err := readCSV(path)
	if err != nil {
		return err
	}
	sectionCol, err := columnIndex(header, "SectionID")
	if err != nil {
		return err
	}
	sampleCol, err := columnIndex(header, "Sample")
	if err != nil {
		return err
	}

	for _, row := range rows {
		section, err := strconv.ParseFloat(row[sectionCol], 64)
		if err != nil {
			continue
		}
		c.sliceToBrain[section] = row[sampleCol]
	}
	return nil
}

func (c *Catalog) loadCoordinates(path string) error {
	header, rows, err := readCSV(path)
	if err != nil {
		return err
	}
	sectionCol, err := columnIndex(header, "SectionID")
	if err != nil {
		return err
	}
	coordCol, err := columnIndex(header, "Coordinate")
	if err != nil {
		return err
	}

	for _, row := range rows {
		section, err := strconv.ParseFloat(row[sectionCol], 64)
		if err != nil {
			continue
		}
		coord, err := strconv.ParseFloat(row[coordCol], 64)
		if err != nil {
			continue
		}
		c.sliceToAP[section] = coord
	}
	return nil
}

func (c *Catalog) loadPercentiles(path string) error {
	header, rows, err := readCSV(path)
	if err != nil {
		return err
	}
	nameCol, err := columnIndex(header, "name")
	if err != nil {
		return err
	}
	vminCol, err := columnIndex(header, "vmin")
	if err != nil {
		return err
	}
	vmaxCol, err := columnIndex(header, "vmax")
	if err != nil {
		return err
	}

	for _, row := range rows {
		vmin, err := strconv.ParseFloat(row[vminCol], 64)
		if err != nil {
			continue
		}
		vmax, err := strconv.ParseFloat(row[vmaxCol], 64)
		if err != nil {
			continue
		}
		c.ranges[row[nameCol]] = [2]float64{vmin, vmax}
	}
	return nil
}
