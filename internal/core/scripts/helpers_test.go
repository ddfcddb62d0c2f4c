package scripts

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/zeusync/zeuscript/internal/core/loop"
	"github.com/zeusync/zeuscript/internal/core/models"
)

// journal records lifecycle calls in order.
type journal struct {
	entries []string
}

func (j *journal) add(format string, args ...any) {
	j.entries = append(j.entries, fmt.Sprintf(format, args...))
}

func (j *journal) index(entry string) int {
	for i, e := range j.entries {
		if e == entry {
			return i
		}
	}
	return -1
}

func (j *journal) count(entry string) int {
	n := 0
	for _, e := range j.entries {
		if e == entry {
			n++
		}
	}
	return n
}

type probe struct {
	name string
	j    *journal

	HP    int    `script:"hp"`
	Label string

	updates  int
	failInit bool
}

func (p *probe) Initialize() error {
	p.j.add("%s:initialize", p.name)
	if p.failInit {
		return errors.New("init failed")
	}
	return nil
}

func (p *probe) PostInitialize() error { p.j.add("%s:postInitialize", p.name); return nil }
func (p *probe) OnEnable() error       { p.j.add("%s:enable", p.name); return nil }
func (p *probe) OnDisable() error      { p.j.add("%s:disable", p.name); return nil }
func (p *probe) Destroy() error        { p.j.add("%s:destroy", p.name); return nil }

func (p *probe) Update(dt float64) error {
	p.updates++
	return nil
}

func (p *probe) OnAttributeChanged(name string, value, old any) error {
	p.j.add("%s:attr:%s=%v(was %v)", p.name, name, value, old)
	return nil
}

func (p *probe) TakeDamage(n int) int {
	p.HP -= n
	return p.HP
}

func probeModule(name string, j *journal) Module {
	return NewModule(name, func(e *models.Entity) (any, error) {
		j.add("%s:construct", name)
		return &probe{name: name, j: j}, nil
	})
}

type loadResult struct {
	modules []Module
	err     error
}

type loadRequest struct {
	urls []string
	done chan loadResult
}

func (r *loadRequest) resolve(modules ...Module) { r.done <- loadResult{modules: modules} }
func (r *loadRequest) fail(err error)            { r.done <- loadResult{err: err} }

// manualLoader parks every request until the test resolves it.
type manualLoader struct {
	requests chan *loadRequest
}

func newManualLoader() *manualLoader {
	return &manualLoader{requests: make(chan *loadRequest, 64)}
}

func (l *manualLoader) Load(ctx context.Context, urls []string) ([]Module, error) {
	req := &loadRequest{urls: urls, done: make(chan loadResult, 1)}
	l.requests <- req
	select {
	case r := <-req.done:
		return r.modules, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (l *manualLoader) next(t *testing.T) *loadRequest {
	t.Helper()
	select {
	case req := <-l.requests:
		return req
	case <-time.After(2 * time.Second):
		t.Fatal("no load request issued")
		return nil
	}
}

// collect receives n requests keyed by their first URL.
func (l *manualLoader) collect(t *testing.T, n int) map[string]*loadRequest {
	t.Helper()
	out := make(map[string]*loadRequest, n)
	for i := 0; i < n; i++ {
		req := l.next(t)
		out[req.urls[0]] = req
	}
	return out
}

func (l *manualLoader) idle() bool { return len(l.requests) == 0 }

// mapLoader resolves URLs from a fixed table; unknown URLs are non-modules.
func mapLoader(table map[string]Module) LoaderFunc {
	return func(ctx context.Context, urls []string) ([]Module, error) {
		out := make([]Module, len(urls))
		for i, u := range urls {
			out[i] = table[u]
		}
		return out, nil
	}
}

type fixture struct {
	loop   *loop.Loop
	system *System
	errs   []error
}

func newFixture(t *testing.T, l Loader, opts ...Option) *fixture {
	t.Helper()
	f := &fixture{loop: loop.New()}
	opts = append(opts, WithErrorSink(func(err error) { f.errs = append(f.errs, err) }))
	f.system = NewSystem(l, f.loop, opts...)
	t.Cleanup(f.system.Close)
	return f
}

// settle drains the loop until at most want loads remain in flight.
func (f *fixture) settle(t *testing.T, want int) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, f.loop.RunUntil(ctx, func() bool { return f.system.InFlight() <= want }))
	f.loop.Drain()
}
