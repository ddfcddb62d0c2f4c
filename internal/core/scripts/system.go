package scripts

import (
	"context"
	"errors"
	"time"

	"github.com/zeusync/zeuscript/internal/core/events/bus"
	"github.com/zeusync/zeuscript/internal/core/loop"
	"github.com/zeusync/zeuscript/internal/core/models"
	"github.com/zeusync/zeuscript/internal/core/observability/log"
)

// Loader fetches and resolves modules for a batch of URLs. Results are
// positional; a nil entry marks a URL that resolved to a non-module resource.
// Load is called on its own goroutine.
type Loader interface {
	Load(ctx context.Context, urls []string) ([]Module, error)
}

// LoaderFunc adapts a function to Loader.
type LoaderFunc func(ctx context.Context, urls []string) ([]Module, error)

func (f LoaderFunc) Load(ctx context.Context, urls []string) ([]Module, error) {
	return f(ctx, urls)
}

// System drives every script component: it issues loads, runs per-tick hooks,
// and acts as the batch driver that defers initialization while preloading.
type System struct {
	loader      Loader
	loop        *loop.Loop
	sink        ErrorSink
	bus         bus.EventBus
	logger      log.Log
	loadTimeout time.Duration

	ctx    context.Context
	cancel context.CancelFunc

	components []*Component
	preloading int
	inFlight   int
}

// Option configures a System.
type Option func(*System)

// WithErrorSink sets the host error channel for load and hook failures.
func WithErrorSink(sink ErrorSink) Option {
	return func(s *System) { s.sink = sink }
}

// WithBus publishes lifecycle events to b.
func WithBus(b bus.EventBus) Option {
	return func(s *System) { s.bus = b }
}

func WithLogger(l log.Log) Option {
	return func(s *System) { s.logger = l }
}

// WithLoadTimeout bounds each load request. Zero means no timeout.
func WithLoadTimeout(d time.Duration) Option {
	return func(s *System) { s.loadTimeout = d }
}

// NewSystem creates a System whose load continuations re-enter through lp.
func NewSystem(loader Loader, lp *loop.Loop, opts ...Option) *System {
	s := &System{
		loader: loader,
		loop:   lp,
		logger: log.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With(log.String("component", "scripts"))
	s.ctx, s.cancel = context.WithCancel(context.Background())
	return s
}

// AddComponent attaches a script component to e and reconciles refs into it.
func (s *System) AddComponent(e *models.Entity, refs []Reference, enabled bool) (*Component, error) {
	if e.HasComponent(TypeName) {
		return nil, ErrComponentExists
	}
	if err := ReferenceList(refs).Validate(); err != nil {
		return nil, err
	}
	c := newComponent(s, e, enabled)
	if err := e.AddComponent(c); err != nil {
		return nil, err
	}
	s.components = append(s.components, c)
	if err := c.SetReferences(refs); err != nil {
		s.RemoveComponent(e)
		return nil, err
	}
	return c, nil
}

// RemoveComponent destroys the script component of e. Loads still in flight
// for it are dropped on completion.
func (s *System) RemoveComponent(e *models.Entity) bool {
	raw, ok := e.RemoveComponent(TypeName)
	if !ok {
		return false
	}
	c, ok := raw.(*Component)
	if !ok {
		return false
	}
	c.destroy()
	for i, other := range s.components {
		if other == c {
			s.components = append(s.components[:i], s.components[i+1:]...)
			break
		}
	}
	return true
}

// Component returns the script component attached to e.
func (s *System) Component(e *models.Entity) (*Component, bool) {
	raw, ok := e.Component(TypeName)
	if !ok {
		return nil, false
	}
	c, ok := raw.(*Component)
	return c, ok
}

// Components returns live components in registration order.
func (s *System) Components() []*Component {
	out := make([]*Component, len(s.components))
	copy(out, s.components)
	return out
}

// Send resolves the script component of e and forwards to Component.Send.
func (s *System) Send(e *models.Entity, script, method string, args ...any) (any, error) {
	c, ok := s.Component(e)
	if !ok {
		return nil, nil
	}
	return c.Send(script, method, args...)
}

// InFlight is the number of load requests not yet completed.
func (s *System) InFlight() int { return s.inFlight }

// Preloading reports whether a batch is open.
func (s *System) Preloading() bool { return s.preloading > 0 }

// BeginPreload opens a batch: completed loads register their instances but
// leave Initialize/PostInitialize to EndPreload. Batches nest.
func (s *System) BeginPreload() { s.preloading++ }

// EndPreload closes a batch. When the outermost batch closes, every loaded
// component under roots (or every component when roots is empty) is
// initialized, and only then post-initialized.
func (s *System) EndPreload(roots ...*models.Entity) {
	if s.preloading == 0 {
		return
	}
	s.preloading--
	if s.preloading > 0 {
		return
	}
	if len(roots) == 0 {
		for _, c := range s.Components() {
			c.initialize()
		}
		for _, c := range s.Components() {
			c.postInitialize()
		}
		return
	}
	for _, root := range roots {
		s.Initialize(root)
	}
	for _, root := range roots {
		s.PostInitialize(root)
	}
}

// Initialize runs Initialize for every loaded component in the subtree,
// parent before children.
func (s *System) Initialize(root *models.Entity) {
	root.Walk(func(e *models.Entity) bool {
		if c, ok := s.Component(e); ok {
			c.initialize()
		}
		return true
	})
}

// PostInitialize runs PostInitialize for every initialized component in the subtree.
func (s *System) PostInitialize(root *models.Entity) {
	root.Walk(func(e *models.Entity) bool {
		if c, ok := s.Component(e); ok {
			c.postInitialize()
		}
		return true
	})
}

func (s *System) Update(dt float64)      { s.tick("update", dt) }
func (s *System) FixedUpdate(dt float64) { s.tick("fixedUpdate", dt) }
func (s *System) PostUpdate(dt float64)  { s.tick("postUpdate", dt) }

func (s *System) tick(hook string, dt float64) {
	for _, c := range s.Components() {
		c.tick(hook, dt)
	}
}

// Close cancels outstanding loads and destroys every component.
func (s *System) Close() {
	s.cancel()
	for _, c := range s.Components() {
		s.RemoveComponent(c.Entity())
	}
}

// request issues the asynchronous load for one component version. The
// continuation is posted to the loop, never run on the loader goroutine.
func (s *System) request(c *Component, version uint64, urls []string) {
	s.inFlight++
	if len(urls) == 0 {
		s.loop.Post(func() {
			s.inFlight--
			c.onLoaded(version, urls, nil, nil)
		})
		return
	}
	if s.loader == nil {
		s.loop.Post(func() {
			s.inFlight--
			c.onLoaded(version, urls, nil, ErrNoLoader)
		})
		return
	}

	ctx, cancel := s.ctx, context.CancelFunc(func() {})
	if s.loadTimeout > 0 {
		ctx, cancel = context.WithTimeout(s.ctx, s.loadTimeout)
	}
	go func() {
		defer cancel()
		modules, err := s.loader.Load(ctx, urls)
		s.loop.Post(func() {
			s.inFlight--
			c.onLoaded(version, urls, modules, err)
		})
	}()
}

// report delivers err to the log, the bus, and the host sink, in that order.
func (s *System) report(err error) {
	if err == nil {
		return
	}
	s.logger.Error("Script error", log.Error(err))
	if s.bus != nil {
		_ = s.bus.Publish(bus.NewEvent(bus.EventScriptError, "scripts", err, nil))
	}
	if s.sink != nil {
		s.sink(err)
	}
}

// reportAsync surfaces err on a later loop turn, outside the caller's chain.
func (s *System) reportAsync(err error) {
	if !s.loop.Post(func() { s.report(err) }) {
		s.report(err)
	}
}

func (s *System) publish(eventType string, c *Component, data map[string]any) {
	if s.bus == nil {
		return
	}
	e := c.Entity()
	meta := map[string]any{"entity": e.Name(), "entity_id": uint64(e.ID())}
	if err := s.bus.Publish(bus.NewEvent(eventType, "scripts", data, meta)); err != nil {
		s.logger.Warn("Event handler failed",
			log.String("event", eventType),
			log.Error(err))
	}
}

// IsLoadError reports whether err came from a failed load request.
func IsLoadError(err error) bool {
	var le *LoadError
	return errors.As(err, &le)
}
