package api

import (
	"encoding/json"
	"image/png"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/lipidatlas/server/internal/cache"
	"github.com/lipidatlas/server/internal/catalog"
	"github.com/lipidatlas/server/internal/reconstruct"
	"github.com/lipidatlas/server/internal/render"
	"github.com/lipidatlas/server/internal/service"
	"github.com/lipidatlas/server/internal/store"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	dir := t.TempDir()

	lookup := filepath.Join(dir, "lookup.csv")
	if err := os.WriteFile(lookup, []byte("SectionID,Sample\n1,TestBrain\n2,TestBrain\n"), 0644); err != nil {
		t.Fatalf("failed to write lookup: %v", err)
	}
	coords := filepath.Join(dir, "coords.csv")
	if err := os.WriteFile(coords, []byte("SectionID,Coordinate\n1,2.0\n2,-1.0\n"), 0644); err != nil {
		t.Fatalf("failed to write coordinates: %v", err)
	}

	cat, err := catalog.NewCatalog(catalog.Config{
		DBPath:          filepath.Join(dir, "metadata.sqlite"),
		LookupPath:      lookup,
		CoordinatesPath: coords,
	})
	if err != nil {
		t.Fatalf("failed to create catalog: %v", err)
	}
	t.Cleanup(func() { cat.Close() })

	st, err := store.NewStore(filepath.Join(dir, "records.sqlite"))
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	rec := &reconstruct.Record{
		Name:       "PC 34:1",
		BrainID:    "TestBrain",
		SliceIndex: 1,
		IsScatter:  true,
		Points: []reconstruct.Point{
			{Row: 2, Col: 3, Value: 1.5},
		},
	}
	if err := st.Put("lipid_images", rec, false); err != nil {
		t.Fatalf("put failed: %v", err)
	}
	if err := cat.Register("lipid", "TestBrain", 1, "PC 34:1"); err != nil {
		t.Fatalf("register failed: %v", err)
	}

	rc, err := reconstruct.New(reconstruct.Config{Height: 8, Width: 8, MaxDistance: 1, Ranges: cat})
	if err != nil {
		t.Fatalf("failed to create reconstructor: %v", err)
	}
	cm := cache.NewManager(cache.Config{ImageCacheSizeMB: 8, ImageTTL: time.Minute, QueryCacheSize: 16})
	t.Cleanup(func() { cm.Close() })

	atlas := service.NewAtlasService(service.AtlasServiceConfig{
		Store:         st,
		Catalog:       cat,
		Cache:         cm,
		Reconstructor: rc,
		Renderer:      render.NewSectionRenderer(render.Config{DefaultColormap: "viridis"}),
	})

	srv := httptest.NewServer(NewRouter(RouterConfig{
		Atlas:       atlas,
		CORSOrigins: []string{"*"},
	}))
	t.Cleanup(srv.Close)
	return srv
}

func getJSON(t *testing.T, url string, out interface{}) int {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("failed to decode response: %v", err)
		}
	}
	return resp.StatusCode
}

func TestHealth(t *testing.T) {
	srv := newTestServer(t)
	resp, err := http.Get(srv.URL + "/health")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
}

func TestFamilies(t *testing.T) {
	srv := newTestServer(t)
	var body struct {
		Families []string `json:"families"`
	}
	if code := getJSON(t, srv.URL+"/api/families", &body); code != http.StatusOK {
		t.Fatalf("expected 200, got %d", code)
	}
	if len(body.Families) != 5 || body.Families[0] != "lipid" {
		t.Fatalf("unexpected families: %v", body.Families)
	}
}

func TestBrainsAndSlices(t *testing.T) {
	srv := newTestServer(t)

	var brains struct {
		Brains []string `json:"brains"`
	}
	if code := getJSON(t, srv.URL+"/api/brains", &brains); code != http.StatusOK {
		t.Fatalf("expected 200, got %d", code)
	}
	if len(brains.Brains) != 1 || brains.Brains[0] != "TestBrain" {
		t.Fatalf("unexpected brains: %v", brains.Brains)
	}

	var slices struct {
		Slices []float64 `json:"slices"`
	}
	if code := getJSON(t, srv.URL+"/api/brains/TestBrain/slices", &slices); code != http.StatusOK {
		t.Fatalf("expected 200, got %d", code)
	}
	if len(slices.Slices) != 1 || slices.Slices[0] != 1 {
		t.Fatalf("unexpected slices: %v", slices.Slices)
	}
}

func TestMeasurements(t *testing.T) {
	srv := newTestServer(t)

	var body struct {
		Family       string   `json:"family"`
		Measurements []string `json:"measurements"`
	}
	if code := getJSON(t, srv.URL+"/api/slices/1/measurements?family=lipid", &body); code != http.StatusOK {
		t.Fatalf("expected 200, got %d", code)
	}
	if body.Family != "lipid" || len(body.Measurements) != 1 || body.Measurements[0] != "PC 34:1" {
		t.Fatalf("unexpected measurements: %+v", body)
	}
}

func TestMeasurementsUnknownFamily(t *testing.T) {
	srv := newTestServer(t)
	if code := getJSON(t, srv.URL+"/api/slices/1/measurements?family=protein", nil); code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", code)
	}
}

func TestSectionPNG(t *testing.T) {
	srv := newTestServer(t)

	resp, err := http.Get(srv.URL + "/api/images/lipid/1/PC%2034:1.png")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "image/png" {
		t.Fatalf("expected image/png, got %q", ct)
	}
}

func TestSectionPNGPlaceholder(t *testing.T) {
	srv := newTestServer(t)

	// Absent measurement with placeholder requested serves a transparent
	// section instead of a 404.
	resp, err := http.Get(srv.URL + "/api/images/lipid/1/Unknown.png?placeholder=true")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "image/png" {
		t.Fatalf("expected image/png, got %q", ct)
	}
	decoded, err := png.Decode(resp.Body)
	if err != nil {
		t.Fatalf("invalid PNG: %v", err)
	}
	bounds := decoded.Bounds()
	if bounds.Dx() != 8 || bounds.Dy() != 8 {
		t.Fatalf("expected 8x8 placeholder, got %dx%d", bounds.Dx(), bounds.Dy())
	}
	if _, _, _, a := decoded.At(0, 0).RGBA(); a != 0 {
		t.Fatalf("placeholder should be fully transparent")
	}

	// Without the flag the three-way contract still yields a 404.
	if code := getJSON(t, srv.URL+"/api/images/lipid/1/Unknown.png", nil); code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", code)
	}
}

func TestSectionJSONValues(t *testing.T) {
	srv := newTestServer(t)

	var body struct {
		Height int          `json:"height"`
		Width  int          `json:"width"`
		Values [][]*float64 `json:"values"`
	}
	if code := getJSON(t, srv.URL+"/api/images/lipid/1/PC%2034:1.json?fill_holes=false", &body); code != http.StatusOK {
		t.Fatalf("expected 200, got %d", code)
	}
	if body.Height != 8 || body.Width != 8 {
		t.Fatalf("unexpected shape %dx%d", body.Height, body.Width)
	}
	if body.Values[2][3] == nil || *body.Values[2][3] != 1.5 {
		t.Fatalf("expected 1.5 at (2,3), got %v", body.Values[2][3])
	}
	// Unset pixels serialize as JSON null.
	if body.Values[0][0] != nil {
		t.Fatalf("expected null at (0,0), got %v", *body.Values[0][0])
	}
}

func TestSectionMissingMeasurement(t *testing.T) {
	srv := newTestServer(t)
	if code := getJSON(t, srv.URL+"/api/images/lipid/1/Unknown.json", nil); code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", code)
	}
}

func TestSectionInvalidSlice(t *testing.T) {
	srv := newTestServer(t)
	if code := getJSON(t, srv.URL+"/api/images/lipid/abc/PC.json", nil); code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", code)
	}
}

func TestCacheStats(t *testing.T) {
	srv := newTestServer(t)
	var stats map[string]interface{}
	if code := getJSON(t, srv.URL+"/api/cache/stats", &stats); code != http.StatusOK {
		t.Fatalf("expected 200, got %d", code)
	}
	if _, ok := stats["image_cache_len"]; !ok {
		t.Fatalf("unexpected stats payload: %v", stats)
	}
}
