// Package render draws reconstructed section images as PNGs using fogleman/gg.
package render

import (
	"bytes"
	"image"
	"image/png"
	"math"
	"sync"

	"github.com/fogleman/gg"

	"github.com/lipidatlas/server/internal/reconstruct"
	"github.com/lipidatlas/server/pkg/colormap"
)

// Config contains renderer configuration.
type Config struct {
	DefaultColormap string
}

// SectionRenderer renders dense section images through a colormap.
// Unset (NaN) pixels render transparent so the UI can layer sections over
// an anatomical background.
type SectionRenderer struct {
	config     Config
	bufferPool sync.Pool
	colormaps  map[string]colormap.Colormap
}

// NewSectionRenderer creates a new section renderer.
func NewSectionRenderer(cfg Config) *SectionRenderer {
	r := &SectionRenderer{
		config: cfg,
		bufferPool: sync.Pool{
			New: func() interface{} {
				return bytes.NewBuffer(make([]byte, 0, 64*1024))
			},
		},
		colormaps: make(map[string]colormap.Colormap),
	}

	r.colormaps["viridis"] = colormap.Viridis
	r.colormaps["inferno"] = colormap.Inferno
	r.colormaps["gray"] = colormap.Gray

	return r
}

// RenderSection renders a dense image as a PNG through the named colormap.
// Raw-intensity families can carry values outside [0, 1]; those are rescaled
// to the image's own finite range before coloring.
func (r *SectionRenderer) RenderSection(im *reconstruct.Image, colormapName string) ([]byte, error) {
	cmap, ok := r.colormaps[colormapName]
	if !ok {
		cmap = r.colormaps[r.config.DefaultColormap]
	}

	lo, hi := displayRange(im)
	span := hi - lo
	if span == 0 {
		span = 1
	}

	dc := gg.NewContext(im.Width, im.Height)
	for row := 0; row < im.Height; row++ {
		for col := 0; col < im.Width; col++ {
			v := im.At(row, col)
			if math.IsNaN(v) {
				continue
			}
			dc.SetColor(cmap.At((v - lo) / span))
			dc.SetPixel(col, row)
		}
	}

	return r.encodeContext(dc)
}

// displayRange returns the finite value range, widened to [0, 1] for images
// already normalized into it.
func displayRange(im *reconstruct.Image) (float64, float64) {
	lo := math.Inf(1)
	hi := math.Inf(-1)
	for _, v := range im.Pix {
		if math.IsNaN(v) {
			continue
		}
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	if lo > hi {
		return 0, 1
	}
	if lo >= 0 && hi <= 1 {
		return 0, 1
	}
	return lo, hi
}

func (r *SectionRenderer) encodeContext(dc *gg.Context) ([]byte, error) {
	buf := r.bufferPool.Get().(*bytes.Buffer)
	defer func() {
		buf.Reset()
		r.bufferPool.Put(buf)
	}()

	// Use fast PNG encoder
	encoder := png.Encoder{CompressionLevel: png.BestSpeed}
	if err := encoder.Encode(buf, dc.Image()); err != nil {
		return nil, err
	}

	// Copy buffer contents (buffer will be reused)
	result := make([]byte, buf.Len())
	copy(result, buf.Bytes())
	return result, nil
}

// CreateEmptySection creates a transparent placeholder image for slices
// where a measurement is unavailable.
func (r *SectionRenderer) CreateEmptySection(height, width int) ([]byte, error) {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	buf := bytes.NewBuffer(nil)
	if err := png.Encode(buf, img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
