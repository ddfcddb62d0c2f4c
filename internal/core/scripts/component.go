package scripts

import (
	"github.com/zeusync/zeuscript/internal/core/models"
	"github.com/zeusync/zeuscript/internal/core/observability/log"
)

// TypeName is the component slot the script component occupies on an entity.
const TypeName = "script"

var (
	_ models.Component         = (*Component)(nil)
	_ models.HierarchyListener = (*Component)(nil)
)

// Component is the per-entity script state: the reference list, the instance
// registry, and the flags that gate lifecycle calls.
type Component struct {
	models.ComponentBase

	system   *System
	refs     ReferenceList
	registry *Registry
	logger   log.Log

	// version increments on every structural change; load completions
	// carrying an older version are dropped.
	version uint64

	loaded          bool
	initialized     bool
	postInitialized bool
	destroyed       bool
}

func newComponent(s *System, e *models.Entity, enabled bool) *Component {
	return &Component{
		ComponentBase: models.NewComponentBase(e, enabled),
		system:        s,
		registry:      newRegistry(),
		logger: s.logger.With(
			log.String("entity", e.Name()),
			log.Uint64("entity_id", uint64(e.ID())),
		),
	}
}

func (c *Component) TypeName() string { return TypeName }

// References returns a copy of the current reference list.
func (c *Component) References() ReferenceList { return c.refs.Clone() }

// Registry exposes the instance registry for inspection.
func (c *Component) Registry() *Registry { return c.registry }

// Instance returns the live instance registered under name.
func (c *Component) Instance(name string) (any, bool) {
	rec, ok := c.registry.Get(name)
	if !ok {
		return nil, false
	}
	return rec.Instance, true
}

func (c *Component) Version() uint64       { return c.version }
func (c *Component) Loaded() bool          { return c.loaded }
func (c *Component) Initialized() bool     { return c.initialized }
func (c *Component) PostInitialized() bool { return c.postInitialized }
func (c *Component) Destroyed() bool       { return c.destroyed }

// SetEnabled runs the base transition, then the script transition when the
// effective state changed.
func (c *Component) SetEnabled(enabled bool) {
	if c.destroyed {
		return
	}
	if !c.ComponentBase.SetEnabled(enabled) {
		return
	}
	if c.Active() {
		c.OnEnable()
	} else {
		c.OnDisable()
	}
}

// OnHierarchyEnabled follows the entity's effective enabled state.
func (c *Component) OnHierarchyEnabled(enabled bool) {
	if c.destroyed || !c.Enabled() {
		return
	}
	if enabled {
		c.OnEnable()
	} else {
		c.OnDisable()
	}
}

// OnEnable is the script half of the enable transition.
func (c *Component) OnEnable() {
	if c.destroyed || !c.loaded {
		return
	}
	// The batch driver owns first initialization; already initialized
	// records resume immediately.
	if c.system.Preloading() {
		if c.initialized {
			c.enableAll()
		}
		return
	}
	c.initialize()
	if !c.postInitialized {
		c.postInitialize()
	}
}

// OnDisable is the script half of the disable transition.
func (c *Component) OnDisable() {
	c.disableAll()
}

// destroy tears down every record and makes the component reject further
// work, including in-flight load completions.
func (c *Component) destroy() {
	if c.destroyed {
		return
	}
	c.destroyAll()
	c.destroyed = true
	c.version++
	c.loaded = false
	c.logger.Debug("Script component destroyed")
}
