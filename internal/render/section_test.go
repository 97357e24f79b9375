package render

import (
	"bytes"
	"image/png"
	"testing"

	"github.com/lipidatlas/server/internal/reconstruct"
)

func newTestRenderer() *SectionRenderer {
	return NewSectionRenderer(Config{DefaultColormap: "viridis"})
}

func TestRenderSectionDecodes(t *testing.T) {
	r := newTestRenderer()

	im := reconstruct.NewImage(4, 6)
	im.Set(0, 0, 0.0)
	im.Set(1, 2, 0.5)
	im.Set(3, 5, 1.0)

	data, err := r.RenderSection(im, "viridis")
	if err != nil {
		t.Fatalf("render failed: %v", err)
	}

	decoded, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("invalid PNG: %v", err)
	}
	bounds := decoded.Bounds()
	if bounds.Dx() != 6 || bounds.Dy() != 4 {
		t.Fatalf("expected 6x4, got %dx%d", bounds.Dx(), bounds.Dy())
	}
}

func TestRenderSectionUnsetPixelsTransparent(t *testing.T) {
	r := newTestRenderer()

	im := reconstruct.NewImage(2, 2)
	im.Set(0, 0, 1.0)

	data, err := r.RenderSection(im, "gray")
	if err != nil {
		t.Fatalf("render failed: %v", err)
	}
	decoded, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("invalid PNG: %v", err)
	}

	if _, _, _, a := decoded.At(0, 0).RGBA(); a == 0 {
		t.Fatalf("set pixel should be opaque")
	}
	if _, _, _, a := decoded.At(1, 1).RGBA(); a != 0 {
		t.Fatalf("unset pixel should be transparent, alpha %d", a)
	}
}

func TestRenderSectionUnknownColormapFallsBack(t *testing.T) {
	r := newTestRenderer()

	im := reconstruct.NewImage(2, 2)
	im.Set(0, 0, 0.5)

	data, err := r.RenderSection(im, "no-such-map")
	if err != nil {
		t.Fatalf("render failed: %v", err)
	}
	if _, err := png.Decode(bytes.NewReader(data)); err != nil {
		t.Fatalf("invalid PNG: %v", err)
	}
}

func TestRenderSectionRawIntensities(t *testing.T) {
	r := newTestRenderer()

	// Values above 1 rescale to the image's own range instead of clipping
	// everything to the top of the colormap.
	im := reconstruct.NewImage(1, 3)
	im.Set(0, 0, 10.0)
	im.Set(0, 1, 55.0)
	im.Set(0, 2, 100.0)

	data, err := r.RenderSection(im, "gray")
	if err != nil {
		t.Fatalf("render failed: %v", err)
	}
	decoded, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("invalid PNG: %v", err)
	}

	lo, _, _, _ := decoded.At(0, 0).RGBA()
	mid, _, _, _ := decoded.At(1, 0).RGBA()
	hi, _, _, _ := decoded.At(2, 0).RGBA()
	if !(lo < mid && mid < hi) {
		t.Fatalf("expected monotone gray levels, got %d, %d, %d", lo, mid, hi)
	}
}

func TestCreateEmptySection(t *testing.T) {
	r := newTestRenderer()

	data, err := r.CreateEmptySection(4, 8)
	if err != nil {
		t.Fatalf("render failed: %v", err)
	}
	decoded, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("invalid PNG: %v", err)
	}
	bounds := decoded.Bounds()
	if bounds.Dx() != 8 || bounds.Dy() != 4 {
		t.Fatalf("expected 8x4, got %dx%d", bounds.Dx(), bounds.Dy())
	}
	if _, _, _, a := decoded.At(0, 0).RGBA(); a != 0 {
		t.Fatalf("placeholder should be fully transparent")
	}
}
