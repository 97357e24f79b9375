// Package main is the entry point for the lipid atlas server.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lipidatlas/server/internal/api"
	"github.com/lipidatlas/server/internal/cache"
	"github.com/lipidatlas/server/internal/catalog"
	"github.com/lipidatlas/server/internal/config"
	"github.com/lipidatlas/server/internal/reconstruct"
	"github.com/lipidatlas/server/internal/render"
	"github.com/lipidatlas/server/internal/service"
	"github.com/lipidatlas/server/internal/store"
)

func main() {
	// Parse command line flags
	configPath := flag.String("config", "config/server.yaml", "Path to configuration file")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	log.Printf("Starting lipid atlas server on port %d", cfg.Server.Port)

	// The cache degrades to no-op on construction failure instead of
	// aborting startup; the store and catalog are authoritative and fatal.
	cacheManager := cache.NewManager(cache.Config{
		ImageCacheSizeMB: cfg.Cache.ImageSizeMB,
		ImageTTL:         time.Duration(cfg.Cache.ImageTTLMinutes) * time.Minute,
		QueryCacheSize:   cfg.Cache.QueryCacheSize,
	})
	defer cacheManager.Close()
	if cacheManager.Disabled() {
		log.Printf("Result cache disabled, every request recomputes")
	}

	recordStore, err := store.NewStore(cfg.Data.StorePath)
	if err != nil {
		log.Fatalf("Failed to open record store: %v", err)
	}
	defer recordStore.Close()
	log.Printf("Record store: %s", cfg.Data.StorePath)

	cat, err := catalog.NewCatalog(catalog.Config{
		DBPath:          cfg.Data.CatalogPath,
		LookupPath:      cfg.Data.LookupPath,
		CoordinatesPath: cfg.Data.CoordinatesPath,
		PercentilesPath: cfg.Data.PercentilesPath,
	})
	if err != nil {
		log.Fatalf("Failed to open metadata catalog: %v", err)
	}
	defer cat.Close()
	log.Printf("Metadata catalog: %s", cfg.Data.CatalogPath)

	reconstructor, err := reconstruct.New(reconstruct.Config{
		Height:      cfg.Image.Height,
		Width:       cfg.Image.Width,
		MaxDistance: cfg.Image.MaxDistance,
		CoordBound:  cfg.Image.CoordBound,
		Ranges:      cat,
	})
	if err != nil {
		log.Fatalf("Failed to initialize reconstructor: %v", err)
	}
	log.Printf("Image shape: %dx%d, hole-fill window: %d", cfg.Image.Height, cfg.Image.Width, cfg.Image.MaxDistance)

	sectionRenderer := render.NewSectionRenderer(render.Config{
		DefaultColormap: cfg.Render.DefaultColormap,
	})

	atlas := service.NewAtlasService(service.AtlasServiceConfig{
		Store:         recordStore,
		Catalog:       cat,
		Cache:         cacheManager,
		Reconstructor: reconstructor,
		Renderer:      sectionRenderer,
	})

	// Set up HTTP router
	router := api.NewRouter(api.RouterConfig{
		Atlas:       atlas,
		CORSOrigins: cfg.Server.CORSOrigins,
	})

	// Create HTTP server
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Printf("Server listening on http://localhost:%d", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
	}

	log.Println("Server stopped")
}
