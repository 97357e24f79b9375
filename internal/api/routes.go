// Package api provides HTTP handlers for the lipid atlas server.
package api

import (
	"encoding/json"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/lipidatlas/server/internal/reconstruct"
	"github.com/lipidatlas/server/internal/service"
)

// RouterConfig contains router configuration.
type RouterConfig struct {
	Atlas       *service.AtlasService
	CORSOrigins []string
}

// NewRouter creates a new HTTP router.
func NewRouter(cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))

	// CORS
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	atlas := cfg.Atlas

	r.Get("/api/families", familiesHandler)
	r.Get("/api/brains", brainsHandler(atlas))
	r.Get("/api/brains/{brain}/slices", brainSlicesHandler(atlas))
	r.Get("/api/slices", slicesHandler(atlas))
	r.Get("/api/slices/{slice}/measurements", measurementsHandler(atlas))

	// Image endpoints.
	// NOTE: chi treats '.' as a param delimiter when the route pattern is
	// `{name}.png`, which breaks measurement names containing '.'; register
	// a fallback that captures the full segment and strip the extension in
	// the handler.
	r.Get("/api/images/{family}/{slice}/{name}.png", sectionPNGHandler(atlas))
	r.Get("/api/images/{family}/{slice}/{name}.json", sectionJSONHandler(atlas))
	r.Get("/api/images/{family}/{slice}/{name}", sectionAnyHandler(atlas))

	r.Get("/api/cache/stats", cacheStatsHandler(atlas))

	return r
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func parseSlice(w http.ResponseWriter, r *http.Request) (float64, bool) {
	s, err := strconv.ParseFloat(chi.URLParam(r, "slice"), 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid slice index")
		return 0, false
	}
	return s, true
}

func parseFamily(w http.ResponseWriter, r *http.Request) (reconstruct.Family, bool) {
	family := reconstruct.Family(chi.URLParam(r, "family"))
	if _, err := reconstruct.ConfigFor(family); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return "", false
	}
	return family, true
}

func paramName(r *http.Request) string {
	name := chi.URLParam(r, "name")
	if decoded, err := url.PathUnescape(name); err == nil {
		name = decoded
	}
	return name
}

func familiesHandler(w http.ResponseWriter, r *http.Request) {
	families := reconstruct.Families()
	out := make([]string, len(families))
	for i, f := range families {
		out[i] = string(f)
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"families": out})
}

func brainsHandler(atlas *service.AtlasService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		brains, err := atlas.AvailableBrains()
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		if brains == nil {
			brains = []string{}
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"brains": brains})
	}
}

func brainSlicesHandler(atlas *service.AtlasService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		slices, err := atlas.AvailableSlices(chi.URLParam(r, "brain"))
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		if slices == nil {
			slices = []float64{}
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"slices": slices})
	}
}

func slicesHandler(atlas *service.AtlasService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		slices, err := atlas.SliceList()
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		if slices == nil {
			slices = []float64{}
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"slices": slices})
	}
}

func measurementsHandler(atlas *service.AtlasService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sliceIndex, ok := parseSlice(w, r)
		if !ok {
			return
		}
		family := reconstruct.Family(r.URL.Query().Get("family"))
		if family == "" {
			family = reconstruct.FamilyLipid
		}
		if _, err := reconstruct.ConfigFor(family); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}

		names, err := atlas.AvailableNames(family, sliceIndex)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		if names == nil {
			names = []string{}
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"family":       string(family),
			"slice":        sliceIndex,
			"measurements": names,
		})
	}
}

func sectionPNGHandler(atlas *service.AtlasService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		servePNG(atlas, w, r, paramName(r))
	}
}

func sectionJSONHandler(atlas *service.AtlasService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		serveJSON(atlas, w, r, paramName(r))
	}
}

// sectionAnyHandler dispatches on the extension of the captured segment.
func sectionAnyHandler(atlas *service.AtlasService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := paramName(r)
		switch {
		case strings.HasSuffix(name, ".png"):
			servePNG(atlas, w, r, strings.TrimSuffix(name, ".png"))
		case strings.HasSuffix(name, ".json"):
			serveJSON(atlas, w, r, strings.TrimSuffix(name, ".json"))
		default:
			serveJSON(atlas, w, r, name)
		}
	}
}

func servePNG(atlas *service.AtlasService, w http.ResponseWriter, r *http.Request, name string) {
	family, ok := parseFamily(w, r)
	if !ok {
		return
	}
	sliceIndex, ok := parseSlice(w, r)
	if !ok {
		return
	}

	data, err := atlas.RenderSection(family, sliceIndex, name, r.URL.Query().Get("colormap"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if data == nil {
		// Clients layering sections over an anatomical background can ask
		// for a transparent placeholder instead of a 404.
		if r.URL.Query().Get("placeholder") != "true" {
			writeError(w, http.StatusNotFound, "measurement not available for this slice")
			return
		}
		data, err = atlas.EmptySection()
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "public, max-age=3600")
	w.Write(data)
}

// nullableFloat marshals NaN as JSON null.
type nullableFloat float64

func (f nullableFloat) MarshalJSON() ([]byte, error) {
	if math.IsNaN(float64(f)) {
		return []byte("null"), nil
	}
	return json.Marshal(float64(f))
}

func serveJSON(atlas *service.AtlasService, w http.ResponseWriter, r *http.Request, name string) {
	family, ok := parseFamily(w, r)
	if !ok {
		return
	}
	sliceIndex, ok := parseSlice(w, r)
	if !ok {
		return
	}

	fillHoles := r.URL.Query().Get("fill_holes") != "false"
	img, err := atlas.DenseImage(family, sliceIndex, name, fillHoles)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if img == nil {
		writeError(w, http.StatusNotFound, "measurement not available for this slice")
		return
	}

	values := make([][]nullableFloat, img.Height)
	for row := 0; row < img.Height; row++ {
		vr := make([]nullableFloat, img.Width)
		for col := 0; col < img.Width; col++ {
			vr[col] = nullableFloat(img.At(row, col))
		}
		values[row] = vr
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"family": string(family),
		"slice":  sliceIndex,
		"name":   name,
		"height": img.Height,
		"width":  img.Width,
		"values": values,
	})
}

func cacheStatsHandler(atlas *service.AtlasService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, atlas.CacheStats())
	}
}
