package models

import (
	"errors"
	"sync/atomic"
)

var (
	ErrComponentExists = errors.New("component already attached")
	ErrSelfParent      = errors.New("entity cannot parent itself")
	ErrCycle           = errors.New("entity hierarchy cycle")
)

// EntityID represents a unique identifier for entities
type EntityID uint64

var lastEntityID atomic.Uint64

// Component is anything attachable to an entity under a type name.
// At most one component per type name may be attached.
type Component interface {
	TypeName() string
}

// HierarchyListener is implemented by components that react when the
// effective enabled state of their entity changes.
type HierarchyListener interface {
	OnHierarchyEnabled(enabled bool)
}

// Entity is a node in the scene graph that holds components.
// Entities are not safe for concurrent use; they are owned by the host loop.
type Entity struct {
	id         EntityID
	name       string
	enabled    bool
	parent     *Entity
	children   []*Entity
	components map[string]Component
	order      []string
	tags       map[string]struct{}
}

// NewEntity creates an enabled, detached entity with a fresh ID.
func NewEntity(name string) *Entity {
	return &Entity{
		id:         EntityID(lastEntityID.Add(1)),
		name:       name,
		enabled:    true,
		components: make(map[string]Component),
		tags:       make(map[string]struct{}),
	}
}

func (e *Entity) ID() EntityID        { return e.id }
func (e *Entity) Name() string        { return e.name }
func (e *Entity) SetName(name string) { e.name = name }
func (e *Entity) Parent() *Entity     { return e.parent }

// Children returns a snapshot of the direct children.
func (e *Entity) Children() []*Entity {
	out := make([]*Entity, len(e.children))
	copy(out, e.children)
	return out
}

// Enabled reports the entity's own flag, ignoring ancestors.
func (e *Entity) Enabled() bool { return e.enabled }

// EnabledInHierarchy is true when the entity and all its ancestors are enabled.
func (e *Entity) EnabledInHierarchy() bool {
	for n := e; n != nil; n = n.parent {
		if !n.enabled {
			return false
		}
	}
	return true
}

// SetEnabled toggles the entity and notifies components of every entity in
// the subtree whose effective state changed.
func (e *Entity) SetEnabled(enabled bool) {
	if e.enabled == enabled {
		return
	}
	parentOn := e.parent == nil || e.parent.EnabledInHierarchy()
	e.enabled = enabled
	if !parentOn {
		return
	}
	e.notifyHierarchy(enabled)
}

func (e *Entity) notifyHierarchy(enabled bool) {
	for _, name := range e.order {
		if l, ok := e.components[name].(HierarchyListener); ok {
			l.OnHierarchyEnabled(enabled)
		}
	}
	for _, child := range e.children {
		if child.enabled {
			child.notifyHierarchy(enabled)
		}
	}
}

// AddChild reparents child under e. Components in the child's subtree are
// notified when the move changes its effective enabled state.
func (e *Entity) AddChild(child *Entity) error {
	if child == e {
		return ErrSelfParent
	}
	for n := e; n != nil; n = n.parent {
		if n == child {
			return ErrCycle
		}
	}
	before := child.EnabledInHierarchy()
	if child.parent != nil {
		child.parent.detach(child.id)
	}
	child.parent = e
	e.children = append(e.children, child)
	child.settleHierarchy(before)
	return nil
}

// RemoveChild detaches the child with the given ID. It reports whether it was found.
func (e *Entity) RemoveChild(id EntityID) bool {
	c := e.detach(id)
	if c == nil {
		return false
	}
	c.settleHierarchy(e.EnabledInHierarchy() && c.enabled)
	return true
}

func (e *Entity) detach(id EntityID) *Entity {
	for i, c := range e.children {
		if c.id == id {
			e.children = append(e.children[:i], e.children[i+1:]...)
			c.parent = nil
			return c
		}
	}
	return nil
}

func (e *Entity) settleHierarchy(before bool) {
	if after := e.EnabledInHierarchy(); after != before && e.enabled {
		e.notifyHierarchy(after)
	}
}

// Walk visits e and its descendants depth-first, parent before children.
// Returning false from fn skips the subtree.
func (e *Entity) Walk(fn func(*Entity) bool) {
	if !fn(e) {
		return
	}
	for _, c := range e.children {
		c.Walk(fn)
	}
}

// FindByName returns the first entity in the subtree with the given name.
func (e *Entity) FindByName(name string) (*Entity, bool) {
	var found *Entity
	e.Walk(func(n *Entity) bool {
		if found != nil {
			return false
		}
		if n.name == name {
			found = n
			return false
		}
		return true
	})
	return found, found != nil
}

func (e *Entity) AddComponent(c Component) error {
	name := c.TypeName()
	if _, exists := e.components[name]; exists {
		return ErrComponentExists
	}
	e.components[name] = c
	e.order = append(e.order, name)
	return nil
}

func (e *Entity) RemoveComponent(typeName string) (Component, bool) {
	c, ok := e.components[typeName]
	if !ok {
		return nil, false
	}
	delete(e.components, typeName)
	for i, n := range e.order {
		if n == typeName {
			e.order = append(e.order[:i], e.order[i+1:]...)
			break
		}
	}
	return c, true
}

func (e *Entity) Component(typeName string) (Component, bool) {
	c, ok := e.components[typeName]
	return c, ok
}

func (e *Entity) HasComponent(typeName string) bool {
	_, ok := e.components[typeName]
	return ok
}

// ListComponents returns attached component type names in attach order.
func (e *Entity) ListComponents() []string {
	out := make([]string, len(e.order))
	copy(out, e.order)
	return out
}

func (e *Entity) AddTag(tag string)    { e.tags[tag] = struct{}{} }
func (e *Entity) RemoveTag(tag string) { delete(e.tags, tag) }

func (e *Entity) HasTag(tag string) bool {
	_, ok := e.tags[tag]
	return ok
}
