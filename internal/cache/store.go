package cache

import (
	"container/list"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"
)

// Store keeps fetched tile bodies keyed by URL.
type Store interface {
	Get(url string) ([]byte, bool)
	Set(url string, body []byte)
	Has(url string) bool
	Clear()
}

// NewStore creates a store based on the store type
func NewStore(storeType, dir string, maxEntries int, log *zap.Logger) (Store, error) {
	switch storeType {
	case "memory":
		log.Info("Using memory tile store", zap.Int("max_entries", maxEntries))
		return NewMemoryStore(maxEntries), nil
	case "file":
		log.Info("Using file tile store", zap.String("dir", dir))
		return NewFileStore(dir)
	case "disabled":
		log.Info("Tile store disabled")
		return NoopStore{}, nil
	default:
		return nil, fmt.Errorf("unknown store type: %s (supported: memory, file, disabled)", storeType)
	}
}

type entry struct {
	url  string
	body []byte
}

// MemoryStore is an in-memory LRU of response bodies.
type MemoryStore struct {
	mu      sync.Mutex
	maxSize int
	items   map[string]*list.Element
	lruList *list.List
}

func NewMemoryStore(maxSize int) *MemoryStore {
	return &MemoryStore{
		maxSize: maxSize,
		items:   make(map[string]*list.Element),
		lruList: list.New(),
	}
}

func (s *MemoryStore) Has(url string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.items[url]
	return ok
}

func (s *MemoryStore) Get(url string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	elem, ok := s.items[url]
	if !ok {
		return nil, false
	}
	s.lruList.MoveToFront(elem)
	return elem.Value.(*entry).body, true
}

func (s *MemoryStore) Set(url string, body []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if elem, ok := s.items[url]; ok {
		elem.Value.(*entry).body = body
		s.lruList.MoveToFront(elem)
		return
	}
	if s.maxSize > 0 && s.lruList.Len() >= s.maxSize {
		if oldest := s.lruList.Back(); oldest != nil {
			delete(s.items, oldest.Value.(*entry).url)
			s.lruList.Remove(oldest)
		}
	}
	s.items[url] = s.lruList.PushFront(&entry{url: url, body: body})
}

func (s *MemoryStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.items = make(map[string]*list.Element)
	s.lruList = list.New()
}

// FileStore keeps bodies on disk.
// Structure: {dir}/{sha[0:2]}/{sha}
type FileStore struct {
	mu  sync.RWMutex
	dir string
}

func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create store directory: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

func (s *FileStore) path(url string) string {
	sum := sha256.Sum256([]byte(url))
	name := hex.EncodeToString(sum[:])
	return filepath.Join(s.dir, name[:2], name)
}

func (s *FileStore) Has(url string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, err := os.Stat(s.path(url))
	return err == nil
}

func (s *FileStore) Get(url string) ([]byte, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	data, err := os.ReadFile(s.path(url))
	if err != nil {
		return nil, false
	}
	return data, true
}

func (s *FileStore) Set(url string, body []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p := s.path(url)
	if err := os.MkdirAll(filepath.Dir(p), 0755); err != nil {
		return
	}
	// Write atomically
	tmp := p + ".tmp"
	if err := os.WriteFile(tmp, body, 0644); err != nil {
		return
	}
	if err := os.Rename(tmp, p); err != nil {
		os.Remove(tmp)
	}
}

func (s *FileStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.RemoveAll(s.dir); err != nil {
		return
	}
	os.MkdirAll(s.dir, 0755)
}

type NoopStore struct{}

func (NoopStore) Get(string) ([]byte, bool) { return nil, false }
func (NoopStore) Set(string, []byte)        {}
func (NoopStore) Has(string) bool           { return false }
func (NoopStore) Clear()                    {}
