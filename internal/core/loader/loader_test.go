package loader

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"testing/fstest"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zeusync/zeuscript/internal/core/loop"
	"github.com/zeusync/zeuscript/internal/core/models"
	"github.com/zeusync/zeuscript/internal/core/scripts"
)

const enemySource = `
script.create("enemy", function (entity) {
	this.hp = 10;
	this.log = [];
	this.owner = entity.name;
	this.initialize = function () { this.log.push("initialize"); };
	this.postInitialize = function () { this.log.push("postInitialize"); };
	this.onEnable = function () { this.log.push("enable"); };
	this.onDisable = function () { this.log.push("disable"); };
	this.update = function (dt) { this.log.push("update"); };
	this.takeDamage = function (n) { this.hp -= n; return this.hp; };
	this.history = function () { return this.log.join(","); };
	this.onAttributeChanged = function (name, value, old) { this.log.push(name + ":" + old + "->" + value); };
});
`

const spawnerSource = `
script.create("spawner", function (entity) {
	this.hit = function () { return entity.send("enemy", "takeDamage", 4); };
	this.missing = function () { return entity.send("ghost", "boo"); };
});
`

func newTestLoader(files fstest.MapFS, opts ...Option) *Loader {
	return New(NewFSFetcher(files), opts...)
}

func loadOne(t *testing.T, l *Loader, url string) scripts.Module {
	t.Helper()
	mods, err := l.Load(context.Background(), []string{url})
	require.NoError(t, err)
	require.Len(t, mods, 1)
	return mods[0]
}

func TestLoadJavaScriptModule(t *testing.T) {
	l := newTestLoader(fstest.MapFS{"scripts/enemy.js": {Data: []byte(enemySource)}})

	m := loadOne(t, l, "scripts/enemy.js")
	require.NotNil(t, m)
	assert.Equal(t, "enemy", m.Name())

	inst, err := m.New(models.NewEntity("orc"))
	require.NoError(t, err)

	hp, found, err := scripts.Dispatch(inst, "takeDamage", 3)
	require.NoError(t, err)
	assert.True(t, found)
	assert.EqualValues(t, 7, hp)

	owner := inst.(*jsScript).Object().Get("owner").String()
	assert.Equal(t, "orc", owner)

	_, found, err = scripts.Dispatch(inst, "nope")
	assert.NoError(t, err)
	assert.False(t, found)
}

func TestLoadPositionalResults(t *testing.T) {
	l := newTestLoader(fstest.MapFS{
		"a.js":      {Data: []byte(enemySource)},
		"data.json": {Data: []byte(`{"k":1}`)},
		"plain.js":  {Data: []byte(`var x = 1;`)},
	})

	mods, err := l.Load(context.Background(), []string{"data.json", "a.js", "plain.js"})
	require.NoError(t, err)
	require.Len(t, mods, 3)
	assert.Nil(t, mods[0])
	require.NotNil(t, mods[1])
	assert.Equal(t, "enemy", mods[1].Name())
	assert.Nil(t, mods[2])
}

func TestLoadErrorsCarryPhase(t *testing.T) {
	l := newTestLoader(fstest.MapFS{
		"broken.js": {Data: []byte(`script.create("x", function ( {`)},
		"throws.js": {Data: []byte(`throw new Error("nope");`)},
		"twice.js":  {Data: []byte(`script.create("a", function(){}); script.create("b", function(){});`)},
		"bad.lz4":   {Data: []byte("not lz4 at all")},
	})

	cases := map[string]Phase{
		"missing.js":  PhaseFetch,
		"broken.js":   PhaseCompile,
		"throws.js":   PhaseEvaluate,
		"twice.js":    PhaseEvaluate,
		"bad.lz4":     PhaseDecode,
		"native:nope": PhaseResolve,
	}
	for url, phase := range cases {
		url, phase := url, phase
		t.Run(url, func(t *testing.T) {
			_, err := l.Load(context.Background(), []string{url})
			require.Error(t, err)
			var le *Error
			require.ErrorAs(t, err, &le)
			assert.Equal(t, phase, le.Phase)
			assert.Equal(t, url, le.URL)
		})
	}

	_, err := l.Load(context.Background(), []string{"missing.js"})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLoadCompressedSource(t *testing.T) {
	packed, err := Compress([]byte(enemySource))
	require.NoError(t, err)
	l := newTestLoader(fstest.MapFS{"enemy.js.lz4": {Data: packed}})

	m := loadOne(t, l, "enemy.js.lz4")
	require.NotNil(t, m)
	assert.Equal(t, "enemy", m.Name())
}

func TestNativeModules(t *testing.T) {
	natives := NewNatives()
	natives.Register(scripts.NewModule("turret", func(e *models.Entity) (any, error) {
		return e.Name(), nil
	}))
	l := newTestLoader(fstest.MapFS{}, WithNatives(natives))

	m := loadOne(t, l, "native:turret")
	require.NotNil(t, m)
	assert.Equal(t, "turret", m.Name())
	assert.Equal(t, []string{"turret"}, l.Natives().Names())
}

func TestProgramCacheByContent(t *testing.T) {
	l := newTestLoader(fstest.MapFS{
		"a.js": {Data: []byte(enemySource)},
		"b.js": {Data: []byte(enemySource)},
	})

	_, err := l.Load(context.Background(), []string{"a.js"})
	require.NoError(t, err)
	_, err = l.Load(context.Background(), []string{"b.js"})
	require.NoError(t, err)

	stats := l.CacheStats()
	assert.Equal(t, uint64(1), stats.Misses)
	assert.Equal(t, uint64(1), stats.Hits)
	assert.Equal(t, 1, stats.Programs)
}

func TestConcurrentLoadsShareFetch(t *testing.T) {
	var fetches atomic.Int32
	release := make(chan struct{})
	fetcher := FetcherFunc(func(ctx context.Context, url string) ([]byte, error) {
		fetches.Add(1)
		<-release
		return []byte(enemySource), nil
	})
	l := New(fetcher)

	var wg sync.WaitGroup
	results := make([][]scripts.Module, 4)
	for i := range results {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			mods, err := l.Load(context.Background(), []string{"enemy.js"})
			assert.NoError(t, err)
			results[i] = mods
		}()
	}

	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), fetches.Load())
	for _, mods := range results {
		require.Len(t, mods, 1)
		assert.Same(t, results[0][0], mods[0])
	}
}

func TestFailedBatchDoesNotPoisonSharedLoad(t *testing.T) {
	var slowFetches atomic.Int32
	started := make(chan struct{})
	release := make(chan struct{})
	fetcher := FetcherFunc(func(ctx context.Context, url string) ([]byte, error) {
		switch url {
		case "slow.js":
			if slowFetches.Add(1) == 1 {
				close(started)
			}
			select {
			case <-release:
				return []byte(enemySource), nil
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		default:
			<-started
			return nil, errors.New("gone")
		}
	})
	l := New(fetcher)

	_, err := l.Load(context.Background(), []string{"slow.js", "bad.js"})
	require.Error(t, err)

	done := make(chan error, 1)
	var mods []scripts.Module
	go func() {
		var err error
		mods, err = l.Load(context.Background(), []string{"slow.js"})
		done <- err
	}()

	time.Sleep(20 * time.Millisecond)
	close(release)
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("shared load never completed")
	}
	require.Len(t, mods, 1)
	assert.Equal(t, "enemy", mods[0].Name())
	assert.Equal(t, int32(1), slowFetches.Load())
}

func TestMaxParallelFetches(t *testing.T) {
	var current, peak atomic.Int32
	fetcher := FetcherFunc(func(ctx context.Context, url string) ([]byte, error) {
		n := current.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(10 * time.Millisecond)
		current.Add(-1)
		return []byte("{}"), nil
	})
	l := New(fetcher, WithMaxParallel(2))

	_, err := l.Load(context.Background(), []string{"1.json", "2.json", "3.json", "4.json", "5.json"})
	require.NoError(t, err)
	assert.LessOrEqual(t, peak.Load(), int32(2))
}

func TestEvaluationHonoursContext(t *testing.T) {
	l := newTestLoader(fstest.MapFS{"spin.js": {Data: []byte(`for (;;) {}`)}},
		WithLoadTimeout(100*time.Millisecond))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := l.Load(ctx, []string{"spin.js"})
	require.Error(t, err)

	// The shared evaluation is bounded by the loader timeout.
	_, err = l.Load(context.Background(), []string{"spin.js"})
	var lerr *Error
	require.ErrorAs(t, err, &lerr)
	assert.Equal(t, PhaseEvaluate, lerr.Phase)
}

func TestModuleUsableAfterDeadline(t *testing.T) {
	files := fstest.MapFS{"enemy.js": {Data: []byte(enemySource)}}
	for i := 0; i < 50; i++ {
		l := newTestLoader(files, WithLoadTimeout(time.Duration(i+1)*50*time.Microsecond))

		ctx, cancel := context.WithCancel(context.Background())
		mods, err := l.Load(ctx, []string{"enemy.js"})
		cancel()
		if err != nil {
			continue
		}

		inst, err := mods[0].New(models.NewEntity("orc"))
		require.NoError(t, err)
		hp, found, err := scripts.Dispatch(inst, "takeDamage", 3)
		require.NoError(t, err)
		assert.True(t, found)
		assert.EqualValues(t, 7, hp)
	}
}

func TestHTTPFetcher(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/scripts/enemy.js":
			_, _ = w.Write([]byte(enemySource))
		case "/boom.js":
			w.WriteHeader(http.StatusInternalServerError)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	f, err := NewHTTPFetcher(srv.URL+"/scripts/", srv.Client())
	require.NoError(t, err)
	l := New(NewMux(nil).Handle("http", f))

	m := loadOne(t, l, srv.URL+"/scripts/enemy.js")
	require.NotNil(t, m)

	data, err := f.Fetch(context.Background(), "enemy.js")
	require.NoError(t, err)
	assert.Equal(t, enemySource, string(data))

	_, err = f.Fetch(context.Background(), "/missing.js")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = f.Fetch(context.Background(), "/boom.js")
	assert.Error(t, err)
}

func TestMuxRouting(t *testing.T) {
	mem := NewMemoryFetcher()
	mem.Put("mem:hello.js", []byte("1"))
	disk := NewFSFetcher(fstest.MapFS{"local.js": {Data: []byte("2")}})
	mux := NewMux(disk).Handle("mem", mem)

	got, err := mux.Fetch(context.Background(), "mem:hello.js")
	require.NoError(t, err)
	assert.Equal(t, "1", string(got))

	got, err = mux.Fetch(context.Background(), "local.js")
	require.NoError(t, err)
	assert.Equal(t, "2", string(got))

	got, err = mux.Fetch(context.Background(), "file:///local.js")
	require.NoError(t, err)
	assert.Equal(t, "2", string(got))

	_, err = mux.Fetch(context.Background(), "ftp://x/y.js")
	assert.ErrorIs(t, err, ErrUnsupportedScheme)

	_, err = disk.Fetch(context.Background(), "../escape.js")
	assert.ErrorIs(t, err, ErrInvalidPath)
}

// The loader drives a real System end to end: hooks run in order and
// scripts on one entity message each other through the entity handle.
func TestLoaderWithSystem(t *testing.T) {
	l := newTestLoader(fstest.MapFS{
		"enemy.js":   {Data: []byte(enemySource)},
		"spawner.js": {Data: []byte(spawnerSource)},
	})
	lp := loop.New()
	var errs []error
	sys := scripts.NewSystem(l, lp, scripts.WithErrorSink(func(err error) { errs = append(errs, err) }))
	t.Cleanup(sys.Close)

	e := models.NewEntity("orc")
	c, err := sys.AddComponent(e, []scripts.Reference{
		{URL: "enemy.js", Attributes: map[string]any{"hp": 20}},
		{URL: "spawner.js"},
	}, true)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, lp.RunUntil(ctx, func() bool { return c.Loaded() }))
	require.Empty(t, errs)

	hp, err := c.Send("spawner", "hit")
	require.NoError(t, err)
	assert.EqualValues(t, 16, hp)

	missing, err := c.Send("spawner", "missing")
	require.NoError(t, err)
	assert.Nil(t, missing)

	sys.Update(0.016)
	require.NoError(t, c.SetReferences([]scripts.Reference{
		{URL: "enemy.js", Attributes: map[string]any{"hp": 5}},
		{URL: "spawner.js"},
	}))

	history, err := c.Send("enemy", "history")
	require.NoError(t, err)
	assert.Equal(t, "initialize,enable,postInitialize,update,hp:20->5", history)
}

func TestLoaderReportsFailures(t *testing.T) {
	l := newTestLoader(fstest.MapFS{})
	lp := loop.New()
	var errs []error
	sys := scripts.NewSystem(l, lp, scripts.WithErrorSink(func(err error) { errs = append(errs, err) }))
	t.Cleanup(sys.Close)

	c, err := sys.AddComponent(models.NewEntity("x"), []scripts.Reference{{URL: "gone.js"}}, true)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, lp.RunUntil(ctx, func() bool { return len(errs) > 0 }))

	assert.False(t, c.Loaded())
	var le *Error
	require.True(t, errors.As(errs[0], &le))
	assert.Equal(t, PhaseFetch, le.Phase)
	assert.True(t, scripts.IsLoadError(errs[0]))
}
