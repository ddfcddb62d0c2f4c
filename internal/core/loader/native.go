package loader

import (
	"sort"
	"strings"
	"sync"

	"github.com/zeusync/zeuscript/internal/core/scripts"
)

const nativeScheme = "native:"

// Natives is a registry of Go-implemented modules addressed as "native:<name>".
type Natives struct {
	mu      sync.RWMutex
	modules map[string]scripts.Module
}

func NewNatives() *Natives {
	return &Natives{modules: make(map[string]scripts.Module)}
}

// Register adds m under its own name, replacing any previous registration.
func (n *Natives) Register(m scripts.Module) {
	n.mu.Lock()
	n.modules[m.Name()] = m
	n.mu.Unlock()
}

func (n *Natives) Lookup(name string) (scripts.Module, bool) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	m, ok := n.modules[name]
	return m, ok
}

func (n *Natives) Names() []string {
	n.mu.RLock()
	out := make([]string, 0, len(n.modules))
	for name := range n.modules {
		out = append(out, name)
	}
	n.mu.RUnlock()
	sort.Strings(out)
	return out
}

func isNative(rawURL string) (string, bool) {
	if !strings.HasPrefix(rawURL, nativeScheme) {
		return "", false
	}
	return strings.TrimPrefix(rawURL, nativeScheme), true
}
