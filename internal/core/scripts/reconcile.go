package scripts

import (
	"fmt"

	"github.com/zeusync/zeuscript/internal/core/events/bus"
	"github.com/zeusync/zeuscript/internal/core/models"
	"github.com/zeusync/zeuscript/internal/core/observability/log"
)

// SetReferences replaces the reference list and reconciles the registry
// against it. A malformed list is rejected before anything changes.
//
// When the new list has the same URLs in the same order, only attribute
// values are refreshed on the live instances. Any other change destroys
// every instance and issues one batched load for the new list.
func (c *Component) SetReferences(refs []Reference) error {
	if c.destroyed {
		return ErrComponentDestroyed
	}
	next := ReferenceList(refs)
	if err := next.Validate(); err != nil {
		return err
	}
	prev := c.refs
	c.refs = next.Clone()
	c.reconcile(prev, c.refs)
	return nil
}

func (c *Component) reconcile(prev, next ReferenceList) {
	// A component that never issued a load treats any list as structural.
	if c.version > 0 && prev.SameURLs(next) {
		c.refreshAttributes(prev, next)
		return
	}

	if c.Active() {
		c.disableAll()
	}
	c.destroyAll()
	c.loaded = false
	c.initialized = false
	c.postInitialized = false
	c.version++

	c.logger.Debug("Script list changed, reloading",
		log.Uint64("version", c.version),
		log.Strings("urls", next.URLs()))

	c.system.request(c, c.version, next.URLs())
}

// refreshAttributes pushes new attribute values onto live instances in
// registry order. prev and next hold the same URLs at the same positions.
func (c *Component) refreshAttributes(prev, next ReferenceList) {
	claimed := make([]bool, len(next))
	for _, rec := range c.registry.Records() {
		idx := -1
		for i, ref := range next {
			if !claimed[i] && ref.URL == rec.URL {
				idx = i
				break
			}
		}
		if idx < 0 {
			continue
		}
		claimed[idx] = true

		old := map[string]any{}
		if idx < len(prev) && prev[idx].Attributes != nil {
			old = prev[idx].Attributes
		}
		changed := c.applyAttributes(rec, old, next[idx].Attributes)
		if len(changed) > 0 {
			c.system.publish(bus.EventScriptAttributes, c, map[string]any{
				"script":     rec.Name,
				"attributes": changed,
			})
		}
	}
}

// onLoaded is the load continuation. It runs on the loop goroutine and must
// re-validate the version before touching any state.
func (c *Component) onLoaded(version uint64, urls []string, modules []Module, err error) {
	if c.destroyed || version != c.version {
		c.logger.Debug("Dropping stale script load",
			log.Uint64("version", version),
			log.Uint64("current", c.version),
			log.Bool("destroyed", c.destroyed))
		if err != nil {
			c.system.reportAsync(&LoadError{Entity: c.Entity().Name(), URLs: urls, Err: err})
		}
		return
	}
	if err != nil {
		c.system.reportAsync(&LoadError{Entity: c.Entity().Name(), URLs: urls, Err: err})
		return
	}
	if len(modules) != len(urls) {
		c.system.reportAsync(&LoadError{
			Entity: c.Entity().Name(),
			URLs:   urls,
			Err:    fmt.Errorf("%w: want %d, got %d", ErrLoadResultMismatch, len(urls), len(modules)),
		})
		return
	}

	for i, m := range modules {
		if m == nil {
			// Non-module resource.
			continue
		}
		name := m.Name()
		if c.registry.Has(name) {
			c.logger.Debug("Script already instantiated, skipping",
				log.String("script", name),
				log.String("url", urls[i]))
			continue
		}
		inst, err := construct(m, c.Entity())
		if err != nil {
			c.system.reportAsync(&HookError{Entity: c.Entity().Name(), Script: name, Hook: "construct", Err: err})
			return
		}
		rec := &Record{Name: name, URL: urls[i], Instance: inst}
		if err := c.registry.add(rec); err != nil {
			c.system.reportAsync(err)
			return
		}
		c.applyAttributes(rec, nil, c.refs[i].Attributes)
		c.system.publish(bus.EventScriptCreated, c, map[string]any{"script": name, "url": urls[i]})
	}

	c.loaded = true
	c.logger.Debug("Scripts loaded",
		log.Uint64("version", version),
		log.Int("instances", c.registry.Len()))
	c.system.publish(bus.EventScriptLoaded, c, map[string]any{"scripts": c.registry.Names()})

	if !c.system.Preloading() {
		c.initialize()
		c.postInitialize()
	}
}

func construct(m Module, e *models.Entity) (inst any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = recovered(r)
		}
	}()
	return m.New(e)
}
