package loader

import (
	"context"
	"path"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/zeusync/zeuscript/internal/core/observability/log"
	"github.com/zeusync/zeuscript/internal/core/scripts"
)

var _ scripts.Loader = (*Loader)(nil)

// Loader implements scripts.Loader on top of a Fetcher.
type Loader struct {
	fetcher     Fetcher
	natives     *Natives
	programs    *programCache
	inflight    singleflight.Group
	maxParallel int
	timeout     time.Duration
	logger      log.Log
}

const defaultLoadTimeout = 30 * time.Second

type Option func(*Loader)

// WithNatives resolves "native:" URLs against n.
func WithNatives(n *Natives) Option {
	return func(l *Loader) { l.natives = n }
}

// WithMaxParallel bounds concurrent fetches per batch. Zero or less means unbounded.
func WithMaxParallel(n int) Option {
	return func(l *Loader) { l.maxParallel = n }
}

// WithLoadTimeout bounds a single shared fetch and evaluation. Zero or less
// means no bound.
func WithLoadTimeout(d time.Duration) Option {
	return func(l *Loader) { l.timeout = d }
}

func WithLogger(logger log.Log) Option {
	return func(l *Loader) { l.logger = logger }
}

func New(fetcher Fetcher, opts ...Option) *Loader {
	l := &Loader{
		fetcher:  fetcher,
		natives:  NewNatives(),
		programs: newProgramCache(),
		timeout:  defaultLoadTimeout,
		logger:   log.NewNop(),
	}
	for _, opt := range opts {
		opt(l)
	}
	l.logger = l.logger.Named("loader")
	return l
}

func (l *Loader) Natives() *Natives { return l.natives }

func (l *Loader) CacheStats() CacheStats { return l.programs.stats() }

// Load resolves every URL concurrently. The first failure cancels the rest
// and fails the whole batch.
func (l *Loader) Load(ctx context.Context, urls []string) ([]scripts.Module, error) {
	out := make([]scripts.Module, len(urls))

	g, gctx := errgroup.WithContext(ctx)
	if l.maxParallel > 0 {
		g.SetLimit(l.maxParallel)
	}
	for i, u := range urls {
		i, u := i, u
		g.Go(func() error {
			m, err := l.resolve(gctx, u)
			if err != nil {
				return err
			}
			out[i] = m
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func (l *Loader) resolve(ctx context.Context, rawURL string) (scripts.Module, error) {
	if name, ok := isNative(rawURL); ok {
		m, found := l.natives.Lookup(name)
		if !found {
			return nil, newError(PhaseResolve, rawURL, ErrUnknownNative)
		}
		return m, nil
	}

	// The load is shared by every batch asking for rawURL, so it must not
	// die with whichever caller started it. Callers still give up on their
	// own ctx below.
	ch := l.inflight.DoChan(rawURL, func() (any, error) {
		shared, cancel := l.detach(ctx)
		defer cancel()
		return l.load(shared, rawURL)
	})
	select {
	case <-ctx.Done():
		return nil, newError(PhaseFetch, rawURL, ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		if res.Shared {
			l.logger.Debug("shared in-flight load", log.String("url", rawURL))
		}
		m, _ := res.Val.(scripts.Module)
		return m, nil
	}
}

func (l *Loader) detach(ctx context.Context) (context.Context, context.CancelFunc) {
	shared := context.WithoutCancel(ctx)
	if l.timeout <= 0 {
		return shared, func() {}
	}
	return context.WithTimeout(shared, l.timeout)
}

func (l *Loader) load(ctx context.Context, rawURL string) (scripts.Module, error) {
	data, err := l.fetcher.Fetch(ctx, rawURL)
	if err != nil {
		return nil, newError(PhaseFetch, rawURL, err)
	}
	payloadURL, data, err := decode(rawURL, data)
	if err != nil {
		return nil, newError(PhaseDecode, rawURL, err)
	}
	if !isJavaScript(payloadURL) {
		l.logger.Debug("non-module resource", log.String("url", rawURL), log.Int("bytes", len(data)))
		return nil, nil
	}

	program, err := l.programs.compile(payloadURL, data)
	if err != nil {
		return nil, newError(PhaseCompile, rawURL, err)
	}
	m, err := evaluate(ctx, rawURL, program, l.logger)
	if err != nil {
		return nil, newError(PhaseEvaluate, rawURL, err)
	}
	if m == nil {
		return nil, nil
	}
	l.logger.Debug("module loaded", log.String("url", rawURL), log.String("script", m.Name()))
	return m, nil
}

func isJavaScript(rawURL string) bool {
	if i := strings.IndexAny(rawURL, "?#"); i >= 0 {
		rawURL = rawURL[:i]
	}
	switch strings.ToLower(path.Ext(rawURL)) {
	case ".js", ".mjs":
		return true
	}
	return false
}
