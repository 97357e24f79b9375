// Package reconstruct converts sparse scatter records into dense section
// images: rasterization, local-window hole filling, and intensity
// normalization.
package reconstruct

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// DefaultMaxDistance is the hole-filling window half-width.
const DefaultMaxDistance = 5

// RangeSource resolves the [vmin, vmax] normalization range for a
// measurement name, typically backed by the percentile table.
type RangeSource interface {
	Range(name string) (vmin, vmax float64, ok bool)
}

// Config contains reconstructor configuration. Height and Width are the
// shared anatomical image shape for the dataset.
type Config struct {
	Height      int
	Width       int
	MaxDistance int // hole-filling window half-width, defaults to DefaultMaxDistance

	// CoordBound optionally caps accepted scatter coordinates below the
	// image shape. The upstream pipeline validated against a fixed 1000
	// regardless of shape; the true image bounds always apply on top.
	CoordBound int

	Ranges RangeSource // may be nil; table lookups then fall back to (0, 1)
}

// Reconstructor turns scatter records into dense images.
type Reconstructor struct {
	cfg Config
}

// New creates a reconstructor for a dataset's shared image shape.
func New(cfg Config) (*Reconstructor, error) {
	if cfg.Height <= 0 || cfg.Width <= 0 {
		return nil, fmt.Errorf("invalid image shape %dx%d", cfg.Height, cfg.Width)
	}
	if cfg.MaxDistance <= 0 {
		cfg.MaxDistance = DefaultMaxDistance
	}
	return &Reconstructor{cfg: cfg}, nil
}

// Shape returns the (height, width) of reconstructed images.
func (r *Reconstructor) Shape() (int, int) {
	return r.cfg.Height, r.cfg.Width
}

// Extract rasterizes a record into a dense image, optionally fills holes,
// and applies the family's normalization. Already-dense records are returned
// as-is without filling or normalization. Malformed records surface as an
// error; callers downgrade that to "unavailable".
func (r *Reconstructor) Extract(rec *Record, fam FamilyConfig, fillHoles bool) (*Image, error) {
	if rec == nil {
		return nil, fmt.Errorf("nil record")
	}

	if !rec.IsScatter {
		if rec.Dense == nil {
			return nil, fmt.Errorf("record %q marked dense but has no image", rec.Name)
		}
		return rec.Dense.Clone(), nil
	}

	img := NewImage(r.cfg.Height, r.cfg.Width)

	rowBound := r.cfg.Height
	colBound := r.cfg.Width
	if r.cfg.CoordBound > 0 {
		if r.cfg.CoordBound < rowBound {
			rowBound = r.cfg.CoordBound
		}
		if r.cfg.CoordBound < colBound {
			colBound = r.cfg.CoordBound
		}
	}

	// Last write wins on duplicate coordinates; duplicates are not averaged.
	for _, p := range rec.Points {
		row := int(p.Row)
		col := int(p.Col)
		if row < 0 || row >= rowBound || col < 0 || col >= colBound {
			continue
		}
		img.Set(row, col, p.Value)
	}

	if fillHoles && img.CountNaN() > 0 {
		img = FillHoles(img, r.cfg.MaxDistance)
	}

	switch fam.Normalization {
	case NormNone:
	case NormTable:
		vmin, vmax := 0.0, 1.0
		if r.cfg.Ranges != nil {
			if lo, hi, ok := r.cfg.Ranges.Range(rec.Name); ok {
				vmin, vmax = lo, hi
			}
		}
		applyRange(img, vmin, vmax)
	case NormPercentile:
		vmin, vmax := percentileRange(img, 0.02, 0.98)
		applyRange(img, vmin, vmax)
	default:
		return nil, fmt.Errorf("unknown normalization policy %d", fam.Normalization)
	}

	return img, nil
}

// FillHoles imputes unset pixels from the mean of the non-NaN values in the
// (2*maxDistance+1)^2 window around them, reading from the input image only.
// Pixels within maxDistance of an edge are never filled, and a pixel whose
// whole window is unset stays unset.
func FillHoles(im *Image, maxDistance int) *Image {
	filled := im.Clone()

	for row := maxDistance; row < im.Height-maxDistance; row++ {
		for col := maxDistance; col < im.Width-maxDistance; col++ {
			if !math.IsNaN(im.At(row, col)) {
				continue
			}

			sum := 0.0
			n := 0
			for wr := row - maxDistance; wr <= row+maxDistance; wr++ {
				for wc := col - maxDistance; wc <= col+maxDistance; wc++ {
					v := im.At(wr, wc)
					if !math.IsNaN(v) {
						sum += v
						n++
					}
				}
			}
			if n > 0 {
				filled.Set(row, col, sum/float64(n))
			}
		}
	}

	return filled
}

// percentileRange returns the (lo, hi) quantiles of the finite pixel values.
func percentileRange(im *Image, lo, hi float64) (float64, float64) {
	finite := make([]float64, 0, len(im.Pix))
	for _, v := range im.Pix {
		if !math.IsNaN(v) {
			finite = append(finite, v)
		}
	}
	if len(finite) == 0 {
		return 0, 1
	}
	sort.Float64s(finite)
	return stat.Quantile(lo, stat.LinInterp, finite, nil),
		stat.Quantile(hi, stat.LinInterp, finite, nil)
}

// applyRange rescales finite pixels to [0, 1] via (v - vmin) / (vmax - vmin)
// and clips. A degenerate range maps every finite pixel to 0.
func applyRange(im *Image, vmin, vmax float64) {
	span := vmax - vmin
	for i, v := range im.Pix {
		if math.IsNaN(v) {
			continue
		}
		if span == 0 {
			im.Pix[i] = 0
			continue
		}
		t := (v - vmin) / span
		if t < 0 {
			t = 0
		} else if t > 1 {
			t = 1
		}
		im.Pix[i] = t
	}
}
