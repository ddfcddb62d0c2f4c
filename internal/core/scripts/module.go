package scripts

import (
	"github.com/zeusync/zeuscript/internal/core/models"
)

// Module is a loaded script type. Name is the stable symbolic name used as
// the registry key; New constructs one instance bound to an entity.
type Module interface {
	Name() string
	New(entity *models.Entity) (any, error)
}

// Instances opt into lifecycle stages by implementing any of the interfaces below.
type (
	Initializer interface {
		Initialize() error
	}
	PostInitializer interface {
		PostInitialize() error
	}
	Enabler interface {
		OnEnable() error
	}
	Disabler interface {
		OnDisable() error
	}
	Destroyer interface {
		Destroy() error
	}
	Updater interface {
		Update(dt float64) error
	}
	FixedUpdater interface {
		FixedUpdate(dt float64) error
	}
	PostUpdater interface {
		PostUpdate(dt float64) error
	}
)

// AttributeSetter receives attribute values from the reference list. Instances
// without it get exported struct fields set by reflection.
type AttributeSetter interface {
	SetAttribute(name string, value any) error
}

// AttributeListener is notified after an attribute-only list change altered a value.
type AttributeListener interface {
	OnAttributeChanged(name string, value, old any) error
}

// Caller dispatches a named method. found is false when the method does not exist.
type Caller interface {
	Call(method string, args ...any) (result any, found bool, err error)
}

type moduleFunc struct {
	name string
	ctor func(*models.Entity) (any, error)
}

func (m moduleFunc) Name() string { return m.name }

func (m moduleFunc) New(e *models.Entity) (any, error) { return m.ctor(e) }

// NewModule builds a Module from a name and constructor.
func NewModule(name string, ctor func(*models.Entity) (any, error)) Module {
	return moduleFunc{name: name, ctor: ctor}
}
