// Package fetch loads tile and marker images over HTTP or from disk.
package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"slippy/internal/cache"
	"slippy/internal/scene"
)

const DefaultUserAgent = "slippy/1.0 (+terminal map viewer)"

// HTTPLoader fetches an asset body through a Store and decodes it.
type HTTPLoader struct {
	client    *http.Client
	store     cache.Store
	decoder   Decoder
	userAgent string
	log       *zap.Logger
}

type Option func(*HTTPLoader)

func WithClient(c *http.Client) Option { return func(l *HTTPLoader) { l.client = c } }

func WithUserAgent(ua string) Option { return func(l *HTTPLoader) { l.userAgent = ua } }

func NewHTTPLoader(store cache.Store, decoder Decoder, log *zap.Logger, opts ...Option) *HTTPLoader {
	l := &HTTPLoader{
		client:    &http.Client{Timeout: 15 * time.Second},
		store:     store,
		decoder:   decoder,
		userAgent: DefaultUserAgent,
		log:       log,
	}
	if l.store == nil {
		l.store = cache.NoopStore{}
	}
	if l.decoder == nil {
		l.decoder = StdDecoder{}
	}
	if l.log == nil {
		l.log = zap.NewNop()
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *HTTPLoader) Load(ctx context.Context, rawURL string) (*scene.Asset, error) {
	reqID := uuid.NewString()
	start := time.Now()

	body, cached, err := l.body(ctx, rawURL)
	if err != nil {
		l.log.Debug("asset fetch failed",
			zap.String("request_id", reqID),
			zap.String("url", rawURL),
			zap.Error(err),
		)
		return nil, err
	}
	img, err := l.decoder.Decode(body)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", rawURL, err)
	}
	if !cached {
		l.store.Set(rawURL, body)
	}
	l.log.Debug("asset loaded",
		zap.String("request_id", reqID),
		zap.String("url", rawURL),
		zap.Bool("cached", cached),
		zap.Int("bytes", len(body)),
		zap.Duration("took", time.Since(start)),
	)
	return scene.NewAsset(rawURL, img), nil
}

func (l *HTTPLoader) body(ctx context.Context, rawURL string) ([]byte, bool, error) {
	if data, ok := l.store.Get(rawURL); ok {
		return data, true, nil
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, false, fmt.Errorf("parse url: %w", err)
	}
	switch u.Scheme {
	case "", "file":
		p := u.Path
		if u.Scheme == "" {
			p = rawURL
		}
		data, err := os.ReadFile(p)
		if err != nil {
			return nil, false, fmt.Errorf("read asset: %w", err)
		}
		// Local files are never stored.
		return data, true, nil
	case "http", "https":
	default:
		return nil, false, fmt.Errorf("unsupported scheme %q", u.Scheme)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, false, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", l.userAgent)
	resp, err := l.client.Do(req)
	if err != nil {
		return nil, false, fmt.Errorf("get %s: %w", rawURL, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, false, fmt.Errorf("get %s: unexpected status %s", rawURL, resp.Status)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, false, fmt.Errorf("read body: %w", err)
	}
	return data, false, nil
}
