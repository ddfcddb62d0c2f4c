// Package scene builds entity hierarchies with script components from
// declarative YAML or JSON descriptions.
package scene

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/zeusync/zeuscript/internal/core/loop"
	"github.com/zeusync/zeuscript/internal/core/models"
	"github.com/zeusync/zeuscript/internal/core/scripts"
)

var ErrUnnamedEntity = errors.New("entity without a name")

// Config describes a scene. Entities listed at the top level become children
// of a root entity named after the scene.
type Config struct {
	Name     string         `json:"name" yaml:"name"`
	Entities []EntityConfig `json:"entities" yaml:"entities"`
}

type EntityConfig struct {
	Name     string         `json:"name" yaml:"name"`
	Enabled  *bool          `json:"enabled,omitempty" yaml:"enabled,omitempty"`
	Tags     []string       `json:"tags,omitempty" yaml:"tags,omitempty"`
	Script   *ScriptConfig  `json:"script,omitempty" yaml:"script,omitempty"`
	Children []EntityConfig `json:"children,omitempty" yaml:"children,omitempty"`
}

// ScriptConfig attaches a script component with the given reference list.
type ScriptConfig struct {
	Enabled *bool               `json:"enabled,omitempty" yaml:"enabled,omitempty"`
	Scripts []scripts.Reference `json:"scripts" yaml:"scripts"`
}

// LoadJSON loads config from JSON reader.
func LoadJSON(r io.Reader) (*Config, error) {
	var c Config
	dec := json.NewDecoder(r)
	dec.UseNumber()
	if err := dec.Decode(&c); err != nil {
		return nil, err
	}
	normalizeNumbers(&c)
	return &c, nil
}

// LoadYAML loads config from YAML reader.
func LoadYAML(r io.Reader) (*Config, error) {
	var c Config
	dec := yaml.NewDecoder(r)
	if err := dec.Decode(&c); err != nil {
		return nil, err
	}
	return &c, nil
}

// LoadFile picks the decoder by file extension; anything but .json is YAML.
func LoadFile(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	if strings.EqualFold(filepath.Ext(path), ".json") {
		return LoadJSON(f)
	}
	return LoadYAML(f)
}

// Validate checks that every entity is named.
func (c *Config) Validate() error {
	var check func(path string, list []EntityConfig) error
	check = func(path string, list []EntityConfig) error {
		for i, ec := range list {
			if ec.Name == "" {
				return fmt.Errorf("%s[%d]: %w", path, i, ErrUnnamedEntity)
			}
			if ec.Script != nil {
				if err := scripts.ReferenceList(ec.Script.Scripts).Validate(); err != nil {
					return fmt.Errorf("%s: %w", ec.Name, err)
				}
			}
			if err := check(path+"/"+ec.Name, ec.Children); err != nil {
				return err
			}
		}
		return nil
	}
	return check(c.Name, c.Entities)
}

// Scene is a built hierarchy.
type Scene struct {
	Root       *models.Entity
	Components []*scripts.Component
}

// Find returns the first entity with the given name.
func (s *Scene) Find(name string) (*models.Entity, bool) {
	return s.Root.FindByName(name)
}

// Destroy removes every script component of the scene from sys.
func (s *Scene) Destroy(sys *scripts.System) {
	s.Root.Walk(func(e *models.Entity) bool {
		sys.RemoveComponent(e)
		return true
	})
	s.Components = nil
}

// Build instantiates cfg inside a preload batch. It drains lp until every
// load has settled, then closes the batch so the whole hierarchy initializes
// before any post-initialize hook runs. If ctx ends first, the batch is
// closed anyway and loads still pending finish on their own.
func Build(ctx context.Context, sys *scripts.System, lp *loop.Loop, cfg *Config) (*Scene, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	name := cfg.Name
	if name == "" {
		name = "root"
	}
	sc := &Scene{Root: models.NewEntity(name)}

	sys.BeginPreload()
	for _, ec := range cfg.Entities {
		if err := sc.build(sys, sc.Root, ec); err != nil {
			sys.EndPreload()
			sc.Destroy(sys)
			return nil, err
		}
	}

	err := lp.RunUntil(ctx, func() bool { return sys.InFlight() == 0 })
	sys.EndPreload(sc.Root)
	if err != nil {
		return sc, fmt.Errorf("waiting for script loads: %w", err)
	}
	return sc, nil
}

func (s *Scene) build(sys *scripts.System, parent *models.Entity, ec EntityConfig) error {
	e := models.NewEntity(ec.Name)
	for _, tag := range ec.Tags {
		e.AddTag(tag)
	}
	if err := parent.AddChild(e); err != nil {
		return err
	}
	if ec.Enabled != nil && !*ec.Enabled {
		e.SetEnabled(false)
	}

	if ec.Script != nil {
		enabled := ec.Script.Enabled == nil || *ec.Script.Enabled
		c, err := sys.AddComponent(e, ec.Script.Scripts, enabled)
		if err != nil {
			return fmt.Errorf("entity %s: %w", ec.Name, err)
		}
		s.Components = append(s.Components, c)
	}

	for _, child := range ec.Children {
		if err := s.build(sys, e, child); err != nil {
			return err
		}
	}
	return nil
}

// normalizeNumbers turns json.Number attribute values into int64 or float64.
func normalizeNumbers(c *Config) {
	var walk func(list []EntityConfig)
	walk = func(list []EntityConfig) {
		for _, ec := range list {
			if ec.Script != nil {
				for _, ref := range ec.Script.Scripts {
					for k, v := range ref.Attributes {
						ref.Attributes[k] = normalize(v)
					}
				}
			}
			walk(ec.Children)
		}
	}
	walk(c.Entities)
}

func normalize(v any) any {
	switch t := v.(type) {
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return i
		}
		f, _ := t.Float64()
		return f
	case map[string]any:
		for k, x := range t {
			t[k] = normalize(x)
		}
	case []any:
		for i, x := range t {
			t[i] = normalize(x)
		}
	}
	return v
}
