package loader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync"
)

// Fetcher reads the raw bytes behind a URL.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string) ([]byte, error)
}

// FetcherFunc adapts a function to Fetcher.
type FetcherFunc func(ctx context.Context, rawURL string) ([]byte, error)

func (f FetcherFunc) Fetch(ctx context.Context, rawURL string) ([]byte, error) {
	return f(ctx, rawURL)
}

// FSFetcher reads URLs as slash-separated paths inside a file system.
type FSFetcher struct {
	fsys fs.FS
}

func NewFSFetcher(fsys fs.FS) *FSFetcher {
	return &FSFetcher{fsys: fsys}
}

// NewFileFetcher serves paths relative to root on the local disk.
func NewFileFetcher(root string) *FSFetcher {
	return NewFSFetcher(os.DirFS(root))
}

func (f *FSFetcher) Fetch(ctx context.Context, rawURL string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p := strings.TrimPrefix(rawURL, "file://")
	p = strings.TrimPrefix(p, "/")
	if !fs.ValidPath(p) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidPath, rawURL)
	}
	data, err := fs.ReadFile(f.fsys, p)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, p)
	}
	return data, err
}

// HTTPFetcher GETs URLs, resolving relative ones against Base.
type HTTPFetcher struct {
	Client *http.Client
	Base   *url.URL
}

func NewHTTPFetcher(base string, client *http.Client) (*HTTPFetcher, error) {
	if client == nil {
		client = http.DefaultClient
	}
	f := &HTTPFetcher{Client: client}
	if base != "" {
		u, err := url.Parse(base)
		if err != nil {
			return nil, fmt.Errorf("parse base url: %w", err)
		}
		f.Base = u
	}
	return f, nil
}

func (f *HTTPFetcher) Fetch(ctx context.Context, rawURL string) ([]byte, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPath, err)
	}
	if f.Base != nil {
		u = f.Base.ResolveReference(u)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	resp, err := f.Client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("%w: %s", ErrNotFound, u)
	case resp.StatusCode >= 300:
		return nil, fmt.Errorf("GET %s: %s", u, resp.Status)
	}
	return io.ReadAll(resp.Body)
}

// MemoryFetcher serves payloads registered with Put. The "mem:" prefix is optional.
type MemoryFetcher struct {
	mu    sync.RWMutex
	files map[string][]byte
}

func NewMemoryFetcher() *MemoryFetcher {
	return &MemoryFetcher{files: make(map[string][]byte)}
}

func (m *MemoryFetcher) Put(name string, data []byte) {
	m.mu.Lock()
	m.files[strings.TrimPrefix(name, "mem:")] = data
	m.mu.Unlock()
}

func (m *MemoryFetcher) Fetch(ctx context.Context, rawURL string) ([]byte, error) {
	m.mu.RLock()
	data, ok := m.files[strings.TrimPrefix(rawURL, "mem:")]
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, rawURL)
	}
	return data, nil
}

// Mux routes URLs to fetchers by scheme. URLs without a scheme go to the fallback.
type Mux struct {
	schemes  map[string]Fetcher
	fallback Fetcher
}

func NewMux(fallback Fetcher) *Mux {
	return &Mux{schemes: make(map[string]Fetcher), fallback: fallback}
}

func (m *Mux) Handle(scheme string, f Fetcher) *Mux {
	m.schemes[scheme] = f
	return m
}

func (m *Mux) Fetch(ctx context.Context, rawURL string) ([]byte, error) {
	if scheme, ok := schemeOf(rawURL); ok {
		if f, found := m.schemes[scheme]; found {
			return f.Fetch(ctx, rawURL)
		}
		if scheme != "file" {
			return nil, fmt.Errorf("%w: %s", ErrUnsupportedScheme, scheme)
		}
	}
	if m.fallback == nil {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedScheme, rawURL)
	}
	return m.fallback.Fetch(ctx, rawURL)
}

// schemeOf returns the lowercase scheme of rawURL. Single letters are
// treated as drive names, not schemes.
func schemeOf(rawURL string) (string, bool) {
	i := strings.IndexByte(rawURL, ':')
	if i < 2 {
		return "", false
	}
	scheme := rawURL[:i]
	for _, r := range scheme {
		if !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' || r == '+' || r == '-' || r == '.') {
			return "", false
		}
	}
	return strings.ToLower(scheme), true
}
