// Package config handles configuration loading for the lipid atlas server.
package config

import (
	"os"

	"gopkg.in/yaml.v3"
)

// Config represents the server configuration.
type Config struct {
	Server ServerConfig `yaml:"server"`
	Data   DataConfig   `yaml:"data"`
	Image  ImageConfig  `yaml:"image"`
	Cache  CacheConfig  `yaml:"cache"`
	Render RenderConfig `yaml:"render"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Port        int      `yaml:"port"`
	CORSOrigins []string `yaml:"cors_origins"`
}

// DataConfig contains data source settings.
type DataConfig struct {
	StorePath       string `yaml:"store_path"`
	CatalogPath     string `yaml:"catalog_path"`
	LookupPath      string `yaml:"lookup_path"`
	CoordinatesPath string `yaml:"coordinates_path"`
	PercentilesPath string `yaml:"percentiles_path"`
}

// ImageConfig contains reconstruction settings. Height and Width are the
// shared anatomical image shape for the dataset.
type ImageConfig struct {
	Height      int `yaml:"height"`
	Width       int `yaml:"width"`
	MaxDistance int `yaml:"max_distance"`
	CoordBound  int `yaml:"coord_bound"`
}

// CacheConfig contains caching settings.
type CacheConfig struct {
	ImageSizeMB     int `yaml:"image_size_mb"`
	ImageTTLMinutes int `yaml:"image_ttl_minutes"`
	QueryCacheSize  int `yaml:"query_cache_size"`
}

// RenderConfig contains rendering settings.
type RenderConfig struct {
	DefaultColormap string `yaml:"default_colormap"`
}

// Load reads configuration from a YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		// Return default config if file doesn't exist
		return DefaultConfig(), nil
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	// Apply defaults for missing values
	applyDefaults(&cfg)

	return &cfg, nil
}

// DefaultConfig returns the default configuration. The default image shape
// matches the Allen atlas coronal section grid.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:        8080,
			CORSOrigins: []string{"http://localhost:3000", "http://localhost:5173"},
		},
		Data: DataConfig{
			StorePath:       "./data/records.sqlite",
			CatalogPath:     "./data/metadata.sqlite",
			LookupPath:      "./data/annotations/lookup_brainid.csv",
			CoordinatesPath: "./data/annotations/section_coordinates.csv",
			PercentilesPath: "./data/annotations/measurement_percentiles.csv",
		},
		Image: ImageConfig{
			Height:      320,
			Width:       456,
			MaxDistance: 5,
		},
		Cache: CacheConfig{
			ImageSizeMB:     512,
			ImageTTLMinutes: 60,
			QueryCacheSize:  1000,
		},
		Render: RenderConfig{
			DefaultColormap: "viridis",
		},
	}
}

func applyDefaults(cfg *Config) {
	defaults := DefaultConfig()

	if cfg.Server.Port == 0 {
		cfg.Server.Port = defaults.Server.Port
	}
	if len(cfg.Server.CORSOrigins) == 0 {
		cfg.Server.CORSOrigins = defaults.Server.CORSOrigins
	}
	if cfg.Data.StorePath == "" {
		cfg.Data.StorePath = defaults.Data.StorePath
	}
	if cfg.Data.CatalogPath == "" {
		cfg.Data.CatalogPath = defaults.Data.CatalogPath
	}
	if cfg.Data.LookupPath == "" {
		cfg.Data.LookupPath = defaults.Data.LookupPath
	}
	if cfg.Data.CoordinatesPath == "" {
		cfg.Data.CoordinatesPath = defaults.Data.CoordinatesPath
	}
	if cfg.Data.PercentilesPath == "" {
		cfg.Data.PercentilesPath = defaults.Data.PercentilesPath
	}
	if cfg.Image.Height == 0 {
		cfg.Image.Height = defaults.Image.Height
	}
	if cfg.Image.Width == 0 {
		cfg.Image.Width = defaults.Image.Width
	}
	if cfg.Image.MaxDistance == 0 {
		cfg.Image.MaxDistance = defaults.Image.MaxDistance
	}
	if cfg.Cache.ImageSizeMB == 0 {
		cfg.Cache.ImageSizeMB = defaults.Cache.ImageSizeMB
	}
	if cfg.Cache.ImageTTLMinutes == 0 {
		cfg.Cache.ImageTTLMinutes = defaults.Cache.ImageTTLMinutes
	}
	if cfg.Cache.QueryCacheSize == 0 {
		cfg.Cache.QueryCacheSize = defaults.Cache.QueryCacheSize
	}
	if cfg.Render.DefaultColormap == "" {
		cfg.Render.DefaultColormap = defaults.Render.DefaultColormap
	}
}
