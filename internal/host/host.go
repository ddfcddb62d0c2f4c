// Package host runs a script system as a process: it wires the loader, the
// event bus, and the scene, drives the tick loop, and serves the console.
package host

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/zeusync/zeuscript/internal/core/events/bus"
	"github.com/zeusync/zeuscript/internal/core/loader"
	"github.com/zeusync/zeuscript/internal/core/loop"
	"github.com/zeusync/zeuscript/internal/core/models"
	"github.com/zeusync/zeuscript/internal/core/observability/log"
	"github.com/zeusync/zeuscript/internal/core/scene"
	"github.com/zeusync/zeuscript/internal/core/scripts"
)

// maxFixedSteps caps catch-up FixedUpdate calls per tick after a stall.
const maxFixedSteps = 5

// Host owns the loop goroutine while Run is active. Everything touching
// scripts or entities goes through Do.
type Host struct {
	config Config
	logger log.Log

	loop    *loop.Loop
	bus     bus.EventBus
	memory  *loader.MemoryFetcher
	loader  *loader.Loader
	system  *scripts.System
	console *Console

	// loop goroutine only
	scene    *scene.Scene
	fixedAcc time.Duration

	ready   chan struct{}
	addr    atomic.Value // net.Addr
	running int32        // atomic bool
	closed  int32        // atomic bool

	ticks        atomic.Uint64
	scriptErrors atomic.Uint64
}

// New wires a host from config. natives may be nil.
func New(config Config, logger log.Log, natives *loader.Natives) (*Host, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = log.NewNop()
	}
	if natives == nil {
		natives = loader.NewNatives()
	}

	h := &Host{
		config: config,
		logger: logger.With(log.String("component", "host")),
		loop:   loop.New(),
		bus:    bus.New(),
		memory: loader.NewMemoryFetcher(),
		ready:  make(chan struct{}),
	}

	fetcher, err := h.fetcher()
	if err != nil {
		return nil, err
	}
	h.loader = loader.New(fetcher,
		loader.WithNatives(natives),
		loader.WithMaxParallel(config.MaxParallelFetches),
		loader.WithLoadTimeout(config.LoadTimeout),
		loader.WithLogger(logger))
	h.system = scripts.NewSystem(h.loader, h.loop,
		scripts.WithBus(h.bus),
		scripts.WithLogger(logger),
		scripts.WithLoadTimeout(config.LoadTimeout),
		scripts.WithErrorSink(h.onScriptError))
	h.console = NewConsole(h, config.ConsoleToken, logger)

	h.logger.Info("Host created",
		log.String("script_root", config.ScriptRoot),
		log.String("scene", config.Scene),
		log.Int("tick_rate", config.TickRate))
	return h, nil
}

// fetcher routes relative paths to the script root (or the http base when
// there is no root), http(s) URLs to the network, and mem: to memory.
func (h *Host) fetcher() (loader.Fetcher, error) {
	web, err := loader.NewHTTPFetcher(h.config.HTTPBase, &http.Client{Timeout: h.config.LoadTimeout})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	var fallback loader.Fetcher = web
	if h.config.ScriptRoot != "" {
		fallback = loader.NewFileFetcher(h.config.ScriptRoot)
	}
	return loader.NewMux(fallback).
		Handle("http", web).
		Handle("https", web).
		Handle("mem", h.memory), nil
}

func (h *Host) onScriptError(err error) {
	h.scriptErrors.Add(1)
}

// Bus exposes lifecycle events.
func (h *Host) Bus() bus.EventBus { return h.bus }

// Memory serves mem: URLs.
func (h *Host) Memory() *loader.MemoryFetcher { return h.memory }

// Ready is closed once the scene has been built.
func (h *Host) Ready() <-chan struct{} { return h.ready }

// Addr is the console listen address, or nil before Run binds it.
func (h *Host) Addr() net.Addr {
	a, _ := h.addr.Load().(net.Addr)
	return a
}

// Handler serves the console.
func (h *Host) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/console", h.console)
	return mux
}

// Run loads the scene as one batch and ticks the system until ctx is done.
func (h *Host) Run(ctx context.Context) error {
	if atomic.LoadInt32(&h.closed) == 1 {
		return ErrHostClosed
	}
	if !atomic.CompareAndSwapInt32(&h.running, 0, 1) {
		return ErrHostAlreadyRunning
	}
	defer h.shutdown()

	if h.config.ConsoleAddr != "" {
		stop, err := h.serveConsole()
		if err != nil {
			return err
		}
		defer stop()
	}

	if err := h.loadScene(ctx); err != nil {
		return err
	}
	close(h.ready)
	h.logger.Info("Host started", log.Duration("tick", h.config.TickInterval()))

	err := h.loop.Run(ctx, h.config.TickInterval(), h.tick)
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return nil
	}
	return err
}

func (h *Host) serveConsole() (func(), error) {
	ln, err := net.Listen("tcp", h.config.ConsoleAddr)
	if err != nil {
		h.logger.Error("Failed to listen for console", log.Error(err))
		return nil, err
	}
	h.addr.Store(ln.Addr())

	srv := &http.Server{Handler: h.Handler(), ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			h.logger.Error("Console server failed", log.Error(err))
		}
	}()
	h.logger.Info("Console listening", log.String("addr", ln.Addr().String()))

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}, nil
}

func (h *Host) loadScene(ctx context.Context) error {
	cfg := &scene.Config{Name: "root"}
	if h.config.Scene != "" {
		var err error
		if cfg, err = scene.LoadFile(h.config.Scene); err != nil {
			return fmt.Errorf("load scene: %w", err)
		}
	}

	buildCtx := ctx
	if h.config.LoadTimeout > 0 {
		var cancel context.CancelFunc
		buildCtx, cancel = context.WithTimeout(ctx, h.config.LoadTimeout)
		defer cancel()
	}
	sc, err := scene.Build(buildCtx, h.system, h.loop, cfg)
	if sc == nil {
		return fmt.Errorf("build scene: %w", err)
	}
	if err != nil {
		h.logger.Warn("Scene built with loads still pending", log.Error(err))
	}
	h.scene = sc
	h.logger.Info("Scene loaded",
		log.String("scene", sc.Root.Name()),
		log.Int("components", len(sc.Components)))
	return nil
}

func (h *Host) tick(dt time.Duration) {
	step := h.config.TickInterval()
	h.system.Update(dt.Seconds())

	h.fixedAcc += dt
	for n := 0; h.fixedAcc >= step; n++ {
		if n == maxFixedSteps {
			h.fixedAcc = 0
			break
		}
		h.system.FixedUpdate(step.Seconds())
		h.fixedAcc -= step
	}

	h.system.PostUpdate(dt.Seconds())
	h.ticks.Add(1)
}

func (h *Host) shutdown() {
	h.console.Close()
	h.system.Close()
	h.loop.Close()
	h.loop.Drain()
	atomic.StoreInt32(&h.closed, 1)
	atomic.StoreInt32(&h.running, 0)
	h.logger.Info("Host stopped",
		log.Uint64("ticks", h.ticks.Load()),
		log.Uint64("script_errors", h.scriptErrors.Load()))
}

// Do runs fn on the loop goroutine and waits for it.
func (h *Host) Do(ctx context.Context, fn func() error) error {
	done := make(chan error, 1)
	if !h.loop.Post(func() { done <- fn() }) {
		return ErrHostClosed
	}
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stats contains host statistics
type Stats struct {
	Ticks        uint64
	ScriptErrors uint64
	Sessions     int
	Running      bool
}

func (h *Host) GetStats() Stats {
	return Stats{
		Ticks:        h.ticks.Load(),
		ScriptErrors: h.scriptErrors.Load(),
		Sessions:     h.console.Sessions(),
		Running:      atomic.LoadInt32(&h.running) == 1,
	}
}

// The methods below run on the loop goroutine.

func (h *Host) entity(name string) (*models.Entity, error) {
	if h.scene == nil {
		return nil, ErrNotReady
	}
	e, ok := h.scene.Find(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrEntityNotFound, name)
	}
	return e, nil
}

// EntityInfo describes one entity for the console.
type EntityInfo struct {
	Name    string       `json:"name"`
	Parent  string       `json:"parent,omitempty"`
	Enabled bool         `json:"enabled"`
	Loaded  bool         `json:"loaded"`
	Scripts []ScriptInfo `json:"scripts,omitempty"`
}

type ScriptInfo struct {
	Name    string `json:"name"`
	URL     string `json:"url"`
	State   string `json:"state"`
	Enabled bool   `json:"enabled"`
}

func (h *Host) listEntities() ([]EntityInfo, error) {
	if h.scene == nil {
		return nil, ErrNotReady
	}
	var out []EntityInfo
	h.scene.Root.Walk(func(e *models.Entity) bool {
		if e == h.scene.Root {
			return true
		}
		info := EntityInfo{Name: e.Name(), Enabled: e.EnabledInHierarchy()}
		if p := e.Parent(); p != nil && p != h.scene.Root {
			info.Parent = p.Name()
		}
		if c, ok := h.system.Component(e); ok {
			info.Loaded = c.Loaded()
			for _, rec := range c.Registry().Records() {
				info.Scripts = append(info.Scripts, ScriptInfo{
					Name:    rec.Name,
					URL:     rec.URL,
					State:   rec.State().String(),
					Enabled: rec.Enabled(),
				})
			}
		}
		out = append(out, info)
		return true
	})
	return out, nil
}

func (h *Host) send(entity, script, method string, args []any) (any, error) {
	e, err := h.entity(entity)
	if err != nil {
		return nil, err
	}
	if _, ok := h.system.Component(e); !ok {
		return nil, ErrNoScriptComponent
	}
	return h.system.Send(e, script, method, args...)
}

// setScripts replaces the reference list of an entity, attaching a script
// component first if it has none. It returns the component's list version.
func (h *Host) setScripts(entity string, refs []scripts.Reference) (uint64, error) {
	e, err := h.entity(entity)
	if err != nil {
		return 0, err
	}
	c, ok := h.system.Component(e)
	if !ok {
		if c, err = h.system.AddComponent(e, refs, true); err != nil {
			return 0, err
		}
		h.scene.Components = append(h.scene.Components, c)
		return c.Version(), nil
	}
	if err = c.SetReferences(refs); err != nil {
		return 0, err
	}
	return c.Version(), nil
}

func (h *Host) setEnabled(entity string, enabled bool) error {
	e, err := h.entity(entity)
	if err != nil {
		return err
	}
	e.SetEnabled(enabled)
	return nil
}
