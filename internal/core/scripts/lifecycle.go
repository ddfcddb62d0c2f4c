package scripts

import (
	"github.com/zeusync/zeuscript/internal/core/events/bus"
	"github.com/zeusync/zeuscript/internal/core/observability/log"
)

// initialize runs Initialize once per record, then enables them. It is a
// no-op while the component is inactive.
func (c *Component) initialize() {
	if c.destroyed || !c.loaded || !c.Active() {
		return
	}
	for _, rec := range c.registry.Records() {
		if rec.initialized || rec.destroyed {
			continue
		}
		if h, ok := rec.Instance.(Initializer); ok {
			c.invoke(rec, "initialize", h.Initialize)
		}
		rec.initialized = true
	}
	c.initialized = true
	c.enableAll()
}

// postInitialize runs PostInitialize once per record. It requires every
// record of the component to be initialized first.
func (c *Component) postInitialize() {
	if c.destroyed || !c.initialized || !c.Active() {
		return
	}
	for _, rec := range c.registry.Records() {
		if rec.postInitialized || !rec.initialized || rec.destroyed {
			continue
		}
		if h, ok := rec.Instance.(PostInitializer); ok {
			c.invoke(rec, "postInitialize", h.PostInitialize)
		}
		rec.postInitialized = true
	}
	c.postInitialized = true
}

func (c *Component) enableAll() {
	if c.destroyed || !c.Active() {
		return
	}
	for _, rec := range c.registry.Records() {
		c.enableRecord(rec)
	}
}

func (c *Component) enableRecord(rec *Record) {
	if rec.enabled || !rec.initialized || rec.destroyed {
		return
	}
	rec.enabled = true
	if h, ok := rec.Instance.(Enabler); ok {
		c.invoke(rec, "onEnable", h.OnEnable)
	}
}

func (c *Component) disableAll() {
	for _, rec := range c.registry.Records() {
		c.disableRecord(rec)
	}
}

// disableRecord is idempotent: an already disabled record is left alone.
func (c *Component) disableRecord(rec *Record) {
	if !rec.enabled {
		return
	}
	rec.enabled = false
	if h, ok := rec.Instance.(Disabler); ok {
		c.invoke(rec, "onDisable", h.OnDisable)
	}
}

func (c *Component) destroyAll() {
	for _, rec := range c.registry.Records() {
		c.destroyRecord(rec)
	}
}

// destroyRecord always disables an enabled record before destroying it.
func (c *Component) destroyRecord(rec *Record) {
	if rec.destroyed {
		return
	}
	c.disableRecord(rec)
	if h, ok := rec.Instance.(Destroyer); ok {
		c.invoke(rec, "destroy", h.Destroy)
	}
	rec.destroyed = true
	c.registry.remove(rec.Name)
	c.system.publish(bus.EventScriptDestroyed, c, map[string]any{"script": rec.Name, "url": rec.URL})
}

// tick runs one per-frame hook over enabled records.
func (c *Component) tick(hook string, dt float64) {
	if c.destroyed || !c.initialized || !c.Active() {
		return
	}
	for _, rec := range c.registry.Records() {
		if !rec.enabled || rec.destroyed {
			continue
		}
		switch hook {
		case "update":
			if h, ok := rec.Instance.(Updater); ok {
				c.invoke(rec, hook, func() error { return h.Update(dt) })
			}
		case "fixedUpdate":
			if h, ok := rec.Instance.(FixedUpdater); ok {
				c.invoke(rec, hook, func() error { return h.FixedUpdate(dt) })
			}
		case "postUpdate":
			if h, ok := rec.Instance.(PostUpdater); ok {
				c.invoke(rec, hook, func() error { return h.PostUpdate(dt) })
			}
		}
		// A hook may have disabled or destroyed the component.
		if c.destroyed || !c.Active() {
			return
		}
	}
}

// invoke calls a script hook, converting errors and panics into HookErrors
// reported to the host. A failing hook never stops the pass over siblings.
func (c *Component) invoke(rec *Record, hook string, fn func() error) {
	err := func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = recovered(r)
			}
		}()
		return fn()
	}()
	if err == nil {
		return
	}
	c.logger.Warn("Script hook failed",
		log.String("script", rec.Name),
		log.String("hook", hook),
		log.Error(err))
	c.system.report(&HookError{Entity: c.Entity().Name(), Script: rec.Name, Hook: hook, Err: err})
}
