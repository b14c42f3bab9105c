// Package config reads settings from the environment and the optional layers
// file.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/viper"
)

const DefaultTileURL = "https://tile.openstreetmap.org/{z}/{x}/{y}.png"

type Config struct {
	LogLevel string
	LogFile  string

	TileURL   string
	TileSize  int
	MaxZoom   int
	Lat       float64
	Long      float64
	Zoom      float64
	UserAgent string

	CacheType        string
	CacheDir         string
	CacheMemoryTiles int
	MaxAssets        int

	Decoder         string
	VipsMaxCacheMB  int
	VipsConcurrency int

	CellWidth       int
	FrameIntervalMS int
	Background      string
	LayersFile      string
	SnapshotDir     string
}

func Load() *Config {
	cacheDir := filepath.Join(os.TempDir(), "slippy")
	if dir, err := os.UserCacheDir(); err == nil {
		cacheDir = filepath.Join(dir, "slippy")
	}

	return &Config{
		LogLevel:         getEnv("SLIPPY_LOG_LEVEL", "info"),
		LogFile:          getEnv("SLIPPY_LOG_FILE", filepath.Join(os.TempDir(), "slippy.log")),
		TileURL:          getEnv("SLIPPY_TILE_URL", DefaultTileURL),
		TileSize:         getEnvInt("SLIPPY_TILE_SIZE", 512),
		MaxZoom:          getEnvInt("SLIPPY_MAX_ZOOM", 19),
		Lat:              getEnvFloat("SLIPPY_LAT", 0),
		Long:             getEnvFloat("SLIPPY_LONG", 0),
		Zoom:             getEnvFloat("SLIPPY_ZOOM", 3),
		UserAgent:        getEnv("SLIPPY_USER_AGENT", ""),
		CacheType:        getEnv("SLIPPY_CACHE", "file"),
		CacheDir:         getEnv("SLIPPY_CACHE_DIR", cacheDir),
		CacheMemoryTiles: getEnvInt("SLIPPY_CACHE_MEMORY_TILES", 2000),
		MaxAssets:        getEnvInt("SLIPPY_MAX_ASSETS", 5000),
		Decoder:          getEnv("SLIPPY_DECODER", "std"),
		VipsMaxCacheMB:   getEnvInt("VIPS_MAX_CACHE_MB", 128),
		VipsConcurrency:  getEnvInt("VIPS_CONCURRENCY", 1),
		CellWidth:        getEnvInt("SLIPPY_CELL_WIDTH", 8),
		FrameIntervalMS:  getEnvInt("SLIPPY_FRAME_MS", 50),
		Background:       getEnv("SLIPPY_BACKGROUND", "#0B0F14"),
		LayersFile:       getEnv("SLIPPY_LAYERS", ""),
		SnapshotDir:      getEnv("SLIPPY_SNAPSHOT_DIR", "."),
	}
}

func (c *Config) UsesVips() bool {
	return strings.EqualFold(strings.TrimSpace(c.Decoder), "vips")
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

var ErrLayerType = errors.New("unknown layer type")

// LayerSpec describes one layer in the layers file.
type LayerSpec struct {
	Name        string  `mapstructure:"name"`
	Type        string  `mapstructure:"type"`
	URL         string  `mapstructure:"url"`
	File        string  `mapstructure:"file"`
	Interactive bool    `mapstructure:"interactive"`
	Marker      string  `mapstructure:"marker"`
	Color       string  `mapstructure:"color"`
	Radius      float64 `mapstructure:"radius"`
}

type layersFile struct {
	Layers []LayerSpec `mapstructure:"layers"`
}

// LoadLayers reads a TOML file of [[layers]] tables. Relative file paths are
// resolved against the file's directory.
func LoadLayers(path string) ([]LayerSpec, error) {
	v := viper.New()
	v.SetConfigType("toml")
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read layers %s: %w", path, err)
	}
	var f layersFile
	if err := v.Unmarshal(&f); err != nil {
		return nil, fmt.Errorf("parse layers %s: %w", path, err)
	}

	dir := filepath.Dir(path)
	for i := range f.Layers {
		l := &f.Layers[i]
		l.Type = strings.ToLower(strings.TrimSpace(l.Type))
		switch l.Type {
		case "raster":
			if l.URL == "" {
				return nil, fmt.Errorf("layer %d (%s): raster layer needs a url", i, l.Name)
			}
		case "vector":
			if l.File == "" {
				return nil, fmt.Errorf("layer %d (%s): vector layer needs a file", i, l.Name)
			}
			if !filepath.IsAbs(l.File) {
				l.File = filepath.Join(dir, l.File)
			}
			if l.Marker != "" && !strings.Contains(l.Marker, "://") && !filepath.IsAbs(l.Marker) {
				l.Marker = filepath.Join(dir, l.Marker)
			}
		default:
			return nil, fmt.Errorf("layer %d (%s): %w %q", i, l.Name, ErrLayerType, l.Type)
		}
	}
	return f.Layers, nil
}
