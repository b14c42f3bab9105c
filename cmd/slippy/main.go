package main

import (
	"fmt"
	"log"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/cshum/vipsgen/vips"
	"github.com/gogpu/gg"
	"go.uber.org/zap"

	"slippy/internal/cache"
	"slippy/internal/config"
	"slippy/internal/engine"
	"slippy/internal/eventloop"
	"slippy/internal/fetch"
	"slippy/internal/geom"
	"slippy/internal/interaction"
	"slippy/internal/layer"
	"slippy/internal/logger"
	"slippy/internal/mercator"
	"slippy/internal/render"
	"slippy/internal/tui"
)

func main() {
	cfg := config.Load()

	zlog, err := logger.New(cfg.LogLevel, cfg.LogFile)
	if err != nil {
		log.Fatalf("failed to initialize logger: %v", err)
	}
	defer zlog.Sync()

	var decoder fetch.Decoder = fetch.StdDecoder{}
	if cfg.UsesVips() {
		startVips(cfg, zlog)
		defer vips.Shutdown()
		decoder = fetch.VipsDecoder{MaxSize: cfg.TileSize}
	}

	store, err := cache.NewStore(cfg.CacheType, cfg.CacheDir, cfg.CacheMemoryTiles, zlog)
	if err != nil {
		zlog.Fatal("failed to create tile store", zap.Error(err))
	}
	loader := fetch.NewHTTPLoader(store, decoder, zlog, fetch.WithUserAgent(cfg.UserAgent))
	assets := cache.NewAssetCache(loader, cfg.MaxAssets, zlog)

	queue := eventloop.NewQueue(zlog)
	defer queue.Close()

	surface := render.New(80*cfg.CellWidth, 24*2*cfg.CellWidth, cfg.Background)
	inbox := &tui.Inbox{}
	opts := engine.DefaultOptions()
	opts.TileSize = cfg.TileSize
	opts.MaxZoom = cfg.MaxZoom
	opts.FrameInterval = time.Duration(cfg.FrameIntervalMS) * time.Millisecond

	m, err := engine.New(engine.Params{
		Surface:   surface,
		Scheduler: queue,
		Assets:    assets,
		Options:   opts,
		Position:  &mercator.Position{Lat: cfg.Lat, Long: cfg.Long, Zoom: cfg.Zoom},
		OnClick:   inbox.OnClick,
		OnContext: inbox.OnContext,
		OnMapMove: inbox.OnMapMove,
		Logger:    zlog,
	})
	if err != nil {
		zlog.Fatal("failed to create map", zap.Error(err))
	}

	base := layer.NewRaster(cfg.TileURL)
	base.Name = "base"
	m.AddLayer(base)
	if cfg.LayersFile != "" {
		if err := addLayers(m, cfg.LayersFile, zlog); err != nil {
			zlog.Fatal("failed to load layers", zap.Error(err))
		}
	}

	deps := tui.Deps{
		Map:         m,
		Surface:     surface,
		Loop:        queue,
		Controller:  interaction.NewController(m, queue),
		CellWidth:   cfg.CellWidth,
		SnapshotDir: cfg.SnapshotDir,
		Inbox:       inbox,
		Log:         zlog,
	}
	var model tea.Model
	if len(os.Args) > 1 {
		model = tui.NewWithPath(deps, os.Args[1])
	} else {
		model = tui.New(deps)
	}

	zlog.Info("starting slippy",
		zap.String("tile_url", cfg.TileURL),
		zap.String("cache", cfg.CacheType),
		zap.String("decoder", cfg.Decoder),
	)
	if _, err := tea.NewProgram(model, tea.WithAltScreen(), tea.WithMouseAllMotion()).Run(); err != nil {
		zlog.Error("program exited", zap.Error(err))
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func startVips(cfg *config.Config, zlog *zap.Logger) {
	vips.SetLogging(func(domain string, level vips.LogLevel, message string) {
		if level >= vips.LogLevelError {
			zlog.Error("vips", zap.String("domain", domain), zap.Int("level", int(level)), zap.String("message", message))
		} else if level >= vips.LogLevelWarning {
			zlog.Warn("vips", zap.String("domain", domain), zap.Int("level", int(level)), zap.String("message", message))
		}
	}, vips.LogLevelError)

	vips.Startup(&vips.Config{
		ConcurrencyLevel: cfg.VipsConcurrency,
		MaxCacheMem:      cfg.VipsMaxCacheMB * 1024 * 1024,
		MaxCacheFiles:    0,
		MaxCacheSize:     0,
	})
	zlog.Info("VIPS initialized",
		zap.Int("max_cache_mb", cfg.VipsMaxCacheMB),
		zap.Int("concurrency", cfg.VipsConcurrency),
	)
}

// addLayers stacks the layers file above the base layer.
func addLayers(m *engine.Map, path string, zlog *zap.Logger) error {
	specs, err := config.LoadLayers(path)
	if err != nil {
		return err
	}
	for _, s := range specs {
		var l *layer.Layer
		switch s.Type {
		case "raster":
			l = layer.NewRaster(s.URL)
		case "vector":
			c, err := geom.Load(s.File)
			if err != nil {
				return fmt.Errorf("layer %s: %w", s.Name, err)
			}
			l = layer.NewVector(geom.NewPointIndex(c), styleFor(s))
		}
		l.Name = s.Name
		l.Interactive = s.Interactive
		m.AddLayer(l)
		zlog.Info("layer added", zap.String("name", s.Name), zap.String("type", s.Type), zap.Int("id", l.ID))
	}
	return nil
}

func styleFor(s config.LayerSpec) layer.StyleFunc {
	style := layer.DefaultStyle(layer.Point{})
	if s.Marker != "" {
		style.Image = s.Marker
	}
	if s.Color != "" {
		style.Color = gg.Hex(s.Color).Color()
	}
	if s.Radius > 0 {
		style.Radius = s.Radius
	}
	return func(layer.Point) layer.PointStyle { return style }
}
