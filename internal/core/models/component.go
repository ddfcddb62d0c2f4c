package models

// ComponentBase carries the enabled flag shared by every component type.
// Embedders run this base transition first and their own transition after,
// only when SetEnabled reports a change.
type ComponentBase struct {
	entity  *Entity
	enabled bool
}

func NewComponentBase(entity *Entity, enabled bool) ComponentBase {
	return ComponentBase{entity: entity, enabled: enabled}
}

func (b *ComponentBase) Entity() *Entity { return b.entity }

// Enabled reports the component's own flag.
func (b *ComponentBase) Enabled() bool { return b.enabled }

// Active is true when the component and its entity hierarchy are enabled.
func (b *ComponentBase) Active() bool {
	return b.enabled && (b.entity == nil || b.entity.EnabledInHierarchy())
}

// SetEnabled updates the flag and reports whether the effective (Active)
// state changed as a result.
func (b *ComponentBase) SetEnabled(enabled bool) bool {
	if b.enabled == enabled {
		return false
	}
	before := b.Active()
	b.enabled = enabled
	return before != b.Active()
}
