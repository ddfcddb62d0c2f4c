package loader

import (
	"context"
	"fmt"
	"strings"

	"github.com/dop251/goja"

	"github.com/zeusync/zeuscript/internal/core/models"
	"github.com/zeusync/zeuscript/internal/core/observability/log"
	"github.com/zeusync/zeuscript/internal/core/scripts"
)

// jsModule is a script type defined by a JavaScript source. Every module owns
// its runtime; instances built from it share that runtime.
type jsModule struct {
	name   string
	url    string
	rt     *goja.Runtime
	ctor   goja.Value
	logger log.Log
}

// evaluate runs program in a fresh runtime and returns the module it
// registered, or nil when the source did not call script.create.
func evaluate(ctx context.Context, rawURL string, program *goja.Program, logger log.Log) (*jsModule, error) {
	rt := goja.New()
	rt.SetFieldNameMapper(goja.UncapFieldNameMapper())

	m := &jsModule{url: rawURL, rt: rt, logger: logger.With(log.String("url", rawURL))}

	registry := rt.NewObject()
	_ = registry.Set("create", func(call goja.FunctionCall) goja.Value {
		name := call.Argument(0).String()
		ctor := call.Argument(1)
		if _, ok := goja.AssertFunction(ctor); !ok || name == "" {
			panic(rt.NewTypeError("script.create(name, constructor): constructor must be a function"))
		}
		if m.ctor != nil {
			panic(rt.NewTypeError("script.create: %s already defines %q", rawURL, m.name))
		}
		m.name, m.ctor = name, ctor
		return ctor
	})
	_ = rt.Set("script", registry)
	_ = rt.Set("console", consoleObject(rt, m.logger))

	interrupted := make(chan struct{})
	stop := context.AfterFunc(ctx, func() {
		rt.Interrupt(ctx.Err())
		close(interrupted)
	})

	_, err := rt.RunProgram(program)
	// The runtime outlives this call; a late interrupt must land before
	// the clear, never after it.
	if !stop() {
		<-interrupted
	}
	rt.ClearInterrupt()
	if err != nil {
		return nil, err
	}
	if m.ctor == nil {
		return nil, nil
	}
	return m, nil
}

func (m *jsModule) Name() string { return m.name }

func (m *jsModule) New(e *models.Entity) (any, error) {
	obj, err := m.rt.New(m.ctor, entityObject(m.rt, e, m.logger))
	if err != nil {
		return nil, err
	}
	return &jsScript{name: m.name, rt: m.rt, obj: obj}, nil
}

// jsScript adapts a JavaScript object to the lifecycle hooks. Hooks the
// object does not define are no-ops.
type jsScript struct {
	name string
	rt   *goja.Runtime
	obj  *goja.Object
}

func (s *jsScript) Object() *goja.Object { return s.obj }

func (s *jsScript) call(method string, args ...any) (goja.Value, bool, error) {
	fn, ok := goja.AssertFunction(s.obj.Get(method))
	if !ok {
		return nil, false, nil
	}
	vals := make([]goja.Value, len(args))
	for i, a := range args {
		vals[i] = s.rt.ToValue(a)
	}
	v, err := fn(s.obj, vals...)
	return v, true, err
}

func (s *jsScript) hook(method string, args ...any) error {
	_, _, err := s.call(method, args...)
	return err
}

func (s *jsScript) Initialize() error            { return s.hook("initialize") }
func (s *jsScript) PostInitialize() error        { return s.hook("postInitialize") }
func (s *jsScript) OnEnable() error              { return s.hook("onEnable") }
func (s *jsScript) OnDisable() error             { return s.hook("onDisable") }
func (s *jsScript) Destroy() error               { return s.hook("destroy") }
func (s *jsScript) Update(dt float64) error      { return s.hook("update", dt) }
func (s *jsScript) FixedUpdate(dt float64) error { return s.hook("fixedUpdate", dt) }
func (s *jsScript) PostUpdate(dt float64) error  { return s.hook("postUpdate", dt) }

func (s *jsScript) SetAttribute(name string, value any) error {
	return s.obj.Set(name, value)
}

func (s *jsScript) OnAttributeChanged(name string, value, old any) error {
	return s.hook("onAttributeChanged", name, value, old)
}

func (s *jsScript) Call(method string, args ...any) (any, bool, error) {
	v, found, err := s.call(method, args...)
	if err != nil || !found {
		return nil, found, err
	}
	return export(v), true, nil
}

func export(v goja.Value) any {
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return nil
	}
	return v.Export()
}

// entityObject is the handle passed to script constructors.
func entityObject(rt *goja.Runtime, e *models.Entity, logger log.Log) *goja.Object {
	o := rt.NewObject()
	_ = o.Set("id", uint64(e.ID()))
	_ = o.Set("name", e.Name())
	_ = o.Set("enabled", func() bool { return e.EnabledInHierarchy() })
	_ = o.Set("hasTag", func(tag string) bool { return e.HasTag(tag) })
	_ = o.Set("send", func(call goja.FunctionCall) goja.Value {
		script := call.Argument(0).String()
		method := call.Argument(1).String()
		args := make([]any, 0, len(call.Arguments))
		for _, a := range call.Arguments[min(2, len(call.Arguments)):] {
			args = append(args, export(a))
		}

		c, ok := e.Component(scripts.TypeName)
		if !ok {
			return goja.Undefined()
		}
		sc, ok := c.(*scripts.Component)
		if !ok {
			return goja.Undefined()
		}
		res, err := sc.Send(script, method, args...)
		if err != nil {
			panic(rt.NewGoError(err))
		}
		return rt.ToValue(res)
	})
	_ = o.Set("log", logFunc(logger.With(log.String("entity", e.Name())).Info))
	return o
}

func joinArgs(call goja.FunctionCall) string {
	parts := make([]string, len(call.Arguments))
	for i, a := range call.Arguments {
		parts[i] = fmt.Sprint(export(a))
	}
	return strings.Join(parts, " ")
}

func logFunc(fn func(msg string, fields ...log.Field)) func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		fn(joinArgs(call))
		return goja.Undefined()
	}
}

func consoleObject(rt *goja.Runtime, logger log.Log) *goja.Object {
	o := rt.NewObject()
	_ = o.Set("log", logFunc(logger.Info))
	_ = o.Set("debug", logFunc(logger.Debug))
	_ = o.Set("warn", logFunc(logger.Warn))
	_ = o.Set("error", logFunc(logger.Error))
	return o
}
