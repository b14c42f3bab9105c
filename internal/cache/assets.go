package cache

import (
	"container/list"
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"slippy/internal/scene"
)

// DefaultMaxAssets bounds the shared asset cache.
const DefaultMaxAssets = 5000

// Loader fetches and decodes one asset.
type Loader interface {
	Load(ctx context.Context, url string) (*scene.Asset, error)
}

// Releaser is implemented by loaders that hold resources per asset. Assets
// from other loaders are left to the garbage collector on eviction.
type Releaser interface {
	Release(a *scene.Asset)
}

type LoaderFunc func(ctx context.Context, url string) (*scene.Asset, error)

func (f LoaderFunc) Load(ctx context.Context, url string) (*scene.Asset, error) { return f(ctx, url) }

// AssetCache is an LRU of loaded assets keyed by URL. Concurrent Gets for the
// same URL share a single load.
type AssetCache struct {
	mu      sync.Mutex
	maxSize int
	items   map[string]*list.Element
	lruList *list.List

	group  singleflight.Group
	loader Loader
	log    *zap.Logger
}

type assetEntry struct {
	url   string
	asset *scene.Asset
}

func NewAssetCache(loader Loader, maxSize int, log *zap.Logger) *AssetCache {
	if maxSize <= 0 {
		maxSize = DefaultMaxAssets
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &AssetCache{
		maxSize: maxSize,
		items:   make(map[string]*list.Element),
		lruList: list.New(),
		loader:  loader,
		log:     log,
	}
}

// Get returns the cached asset for url, loading it on a miss. A shared load
// outlives the caller that started it; each caller stops waiting when its
// own ctx is done.
func (c *AssetCache) Get(ctx context.Context, url string) (*scene.Asset, error) {
	if a, ok := c.lookup(url); ok {
		return a, nil
	}
	loadCtx := context.WithoutCancel(ctx)
	ch := c.group.DoChan(url, func() (any, error) {
		if a, ok := c.lookup(url); ok {
			return a, nil
		}
		a, err := c.loader.Load(loadCtx, url)
		if err != nil {
			return nil, fmt.Errorf("load asset %s: %w", url, err)
		}
		c.add(url, a)
		return a, nil
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		if res.Shared {
			c.log.Debug("asset load shared", zap.String("url", url))
		}
		return res.Val.(*scene.Asset), nil
	}
}

func (c *AssetCache) lookup(url string) (*scene.Asset, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.items[url]
	if !ok {
		return nil, false
	}
	c.lruList.MoveToFront(elem)
	return elem.Value.(*assetEntry).asset, true
}

func (c *AssetCache) add(url string, a *scene.Asset) {
	var evicted []*scene.Asset

	c.mu.Lock()
	if elem, ok := c.items[url]; ok {
		elem.Value.(*assetEntry).asset = a
		c.lruList.MoveToFront(elem)
	} else {
		c.items[url] = c.lruList.PushFront(&assetEntry{url: url, asset: a})
	}
	for c.lruList.Len() > c.maxSize {
		oldest := c.lruList.Back()
		e := oldest.Value.(*assetEntry)
		delete(c.items, e.url)
		c.lruList.Remove(oldest)
		evicted = append(evicted, e.asset)
	}
	c.mu.Unlock()

	c.release(evicted)
}

func (c *AssetCache) release(assets []*scene.Asset) {
	r, ok := c.loader.(Releaser)
	for _, a := range assets {
		c.log.Debug("asset evicted", zap.String("url", a.URL))
		if ok {
			r.Release(a)
		}
	}
}

// Contains reports whether url is cached without touching its recency.
func (c *AssetCache) Contains(url string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	_, ok := c.items[url]
	return ok
}

func (c *AssetCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.lruList.Len()
}

// Keys lists cached URLs from most to least recently used.
func (c *AssetCache) Keys() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	keys := make([]string, 0, c.lruList.Len())
	for e := c.lruList.Front(); e != nil; e = e.Next() {
		keys = append(keys, e.Value.(*assetEntry).url)
	}
	return keys
}

// Clear drops and releases every cached asset.
func (c *AssetCache) Clear() {
	c.mu.Lock()
	var all []*scene.Asset
	for e := c.lruList.Front(); e != nil; e = e.Next() {
		all = append(all, e.Value.(*assetEntry).asset)
	}
	c.items = make(map[string]*list.Element)
	c.lruList = list.New()
	c.mu.Unlock()

	c.release(all)
}
