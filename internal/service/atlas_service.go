// Package service provides business logic for the atlas image server.
package service

import (
	"encoding/json"
	"fmt"
	"log"

	"github.com/lipidatlas/server/internal/cache"
	"github.com/lipidatlas/server/internal/catalog"
	"github.com/lipidatlas/server/internal/reconstruct"
	"github.com/lipidatlas/server/internal/render"
	"github.com/lipidatlas/server/internal/store"
)

// AtlasServiceConfig contains atlas service configuration.
type AtlasServiceConfig struct {
	Store         *store.Store
	Catalog       *catalog.Catalog
	Cache         *cache.Manager
	Reconstructor *reconstruct.Reconstructor
	Renderer      *render.SectionRenderer
}

// AtlasService serves dense, hole-filled, normalized section images.
//
// Every request resolves through the same path: catalog lookup, result
// cache, scatter store, reconstruction. The three-way outcome contract for
// callers is: image present, nil image meaning the measurement is
// unavailable for that slice, or an error meaning the backing store is
// broken.
type AtlasService struct {
	store         *store.Store
	catalog       *catalog.Catalog
	cache         *cache.Manager
	reconstructor *reconstruct.Reconstructor
	renderer      *render.SectionRenderer
}

// NewAtlasService creates a new atlas service.
func NewAtlasService(cfg AtlasServiceConfig) *AtlasService {
	return &AtlasService{
		store:         cfg.Store,
		catalog:       cfg.Catalog,
		cache:         cfg.Cache,
		reconstructor: cfg.Reconstructor,
		renderer:      cfg.Renderer,
	}
}

// Shape returns the (height, width) of served images.
func (s *AtlasService) Shape() (int, int) {
	return s.reconstructor.Shape()
}

// DenseImage returns the dense section image for a (slice, measurement)
// pair, or nil when the measurement is unavailable for that slice.
// Reconstruction-level problems are logged and surface as nil; only backend
// failures return an error.
func (s *AtlasService) DenseImage(family reconstruct.Family, sliceIndex float64, name string, fillHoles bool) (*reconstruct.Image, error) {
	famCfg, err := reconstruct.ConfigFor(family)
	if err != nil {
		return nil, err
	}

	brainID, ok := s.catalog.BrainForSlice(sliceIndex)
	if !ok {
		log.Printf("no brain known for slice %v", sliceIndex)
		return nil, nil
	}

	key := cache.Key("dense_image", string(family), brainID, sliceIndex, name, fillHoles)
	payload, err := s.cache.Memoize(key, func() ([]byte, error) {
		img, err := s.extract(famCfg, brainID, sliceIndex, name, fillHoles)
		if err != nil {
			return nil, err
		}
		if img == nil {
			return nil, nil
		}
		return reconstruct.EncodeImage(img), nil
	})
	if err != nil || payload == nil {
		return nil, err
	}

	img, err := reconstruct.DecodeImage(payload)
	if err != nil {
		// A corrupt cache entry is not fatal, recompute from the store.
		log.Printf("discarding corrupt cache entry for %s: %v", key, err)
		img, err = s.extract(famCfg, brainID, sliceIndex, name, fillHoles)
		if err != nil {
			return nil, err
		}
	}
	return img, nil
}

func (s *AtlasService) extract(famCfg reconstruct.FamilyConfig, brainID string, sliceIndex float64, name string, fillHoles bool) (*reconstruct.Image, error) {
	var rec *reconstruct.Record
	var err error

	if famCfg.MultiChannel {
		sliceRec, err := s.store.GetSlice(famCfg.Namespace, brainID, sliceIndex)
		if err != nil {
			return nil, err
		}
		if sliceRec == nil {
			log.Printf("%s in slice %v was not found", name, sliceIndex)
			return nil, nil
		}
		channel, ok := sliceRec.ChannelRecord(name)
		if !ok {
			log.Printf("channel %s missing from %s record for slice %v", name, famCfg.Family, sliceIndex)
			return nil, nil
		}
		rec = channel
	} else {
		rec, err = s.store.Get(famCfg.Namespace, brainID, sliceIndex, name)
		if err != nil {
			return nil, err
		}
		if rec == nil {
			log.Printf("%s in slice %v was not found", name, sliceIndex)
			return nil, nil
		}
	}

	img, err := s.reconstructor.Extract(rec, famCfg, fillHoles)
	if err != nil {
		// Malformed records degrade to "unavailable" so one bad measurement
		// never blocks the rest of the page.
		log.Printf("error extracting %s in slice %v: %v", name, sliceIndex, err)
		return nil, nil
	}
	return img, nil
}

// RenderSection returns the PNG rendering of a section image, or nil when
// the measurement is unavailable.
func (s *AtlasService) RenderSection(family reconstruct.Family, sliceIndex float64, name, colormapName string) ([]byte, error) {
	brainID, _ := s.catalog.BrainForSlice(sliceIndex)
	key := cache.Key("section_png", string(family), brainID, sliceIndex, name, colormapName)
	return s.cache.Memoize(key, func() ([]byte, error) {
		img, err := s.DenseImage(family, sliceIndex, name, true)
		if err != nil || img == nil {
			return nil, err
		}
		data, err := s.renderer.RenderSection(img, colormapName)
		if err != nil {
			return nil, fmt.Errorf("failed to render section: %w", err)
		}
		return data, nil
	})
}

// cachedList memoizes a listing query through the LRU query cache. Listing
// responses are small and serialize cleanly as JSON, so they ride the query
// cache rather than the image byte cache. A nil result is never cached.
func cachedList[T any](s *AtlasService, key string, compute func() ([]T, error)) ([]T, error) {
	if data, ok := s.cache.GetQuery(key); ok {
		var v []T
		if err := json.Unmarshal(data, &v); err == nil {
			return v, nil
		}
		log.Printf("discarding corrupt query cache entry for %s", key)
	}
	v, err := compute()
	if err != nil || v == nil {
		return v, err
	}
	if data, err := json.Marshal(v); err == nil {
		s.cache.SetQuery(key, data)
	}
	return v, nil
}

// EmptySection returns the transparent placeholder PNG served when a
// measurement is unavailable and the caller asked for a drawable image
// instead of a 404. The placeholder depends only on the image shape, so one
// cached rendering serves every absent measurement.
func (s *AtlasService) EmptySection() ([]byte, error) {
	h, w := s.reconstructor.Shape()
	key := cache.Key("empty_section", h, w)
	return s.cache.Memoize(key, func() ([]byte, error) {
		return s.renderer.CreateEmptySection(h, w)
	})
}

// AvailableNames lists the measurement names available for a slice, in
// ingestion order.
func (s *AtlasService) AvailableNames(family reconstruct.Family, sliceIndex float64) ([]string, error) {
	famCfg, err := reconstruct.ConfigFor(family)
	if err != nil {
		return nil, err
	}
	brainID, ok := s.catalog.BrainForSlice(sliceIndex)
	if !ok {
		return nil, nil
	}

	key := cache.Key("available_names", string(family), brainID, sliceIndex)
	return cachedList(s, key, func() ([]string, error) {
		if famCfg.MultiChannel {
			// Channel names live inside the record, not the catalog.
			rec, err := s.store.GetSlice(famCfg.Namespace, brainID, sliceIndex)
			if err != nil {
				return nil, err
			}
			if rec == nil {
				return nil, nil
			}
			return rec.ChannelOrder, nil
		}
		return s.catalog.AvailableNames(string(family), brainID, sliceIndex)
	})
}

// AvailableBrains lists brain IDs in ingestion order.
func (s *AtlasService) AvailableBrains() ([]string, error) {
	return cachedList(s, cache.Key("available_brains"), s.catalog.AvailableBrains)
}

// AvailableSlices lists a brain's slices in anatomical (anterior-posterior)
// order for UI sliders.
func (s *AtlasService) AvailableSlices(brainID string) ([]float64, error) {
	key := cache.Key("available_slices", brainID)
	return cachedList(s, key, func() ([]float64, error) {
		return s.catalog.AvailableSlices(brainID)
	})
}

// SliceList lists all slice indices across brains.
func (s *AtlasService) SliceList() ([]float64, error) {
	return cachedList(s, cache.Key("slice_list"), s.catalog.SliceList)
}

// CacheStats returns result cache statistics.
func (s *AtlasService) CacheStats() map[string]interface{} {
	return s.cache.Stats()
}
