package scripts

import "fmt"

// State is the lifecycle position of one instance record.
type State uint8

const (
	StateConstructed State = iota
	StateInitialized
	StatePostInitialized
	StateDestroyed
)

func (s State) String() string {
	switch s {
	case StateConstructed:
		return "constructed"
	case StateInitialized:
		return "initialized"
	case StatePostInitialized:
		return "post-initialized"
	case StateDestroyed:
		return "destroyed"
	default:
		return fmt.Sprintf("state(%d)", uint8(s))
	}
}

// Record is one live instance bound to an entity plus its lifecycle flags.
type Record struct {
	Name     string
	URL      string
	Instance any

	initialized     bool
	postInitialized bool
	enabled         bool
	destroyed       bool
}

func (r *Record) Initialized() bool     { return r.initialized }
func (r *Record) PostInitialized() bool { return r.postInitialized }
func (r *Record) Enabled() bool         { return r.enabled }

func (r *Record) State() State {
	switch {
	case r.destroyed:
		return StateDestroyed
	case r.postInitialized:
		return StatePostInitialized
	case r.initialized:
		return StateInitialized
	default:
		return StateConstructed
	}
}

// Registry maps script names to records, preserving insertion order.
// It holds at most one record per name.
type Registry struct {
	names   []string
	records map[string]*Record
}

func newRegistry() *Registry {
	return &Registry{records: make(map[string]*Record)}
}

func (r *Registry) Get(name string) (*Record, bool) {
	rec, ok := r.records[name]
	return rec, ok
}

func (r *Registry) Has(name string) bool {
	_, ok := r.records[name]
	return ok
}

func (r *Registry) Len() int { return len(r.names) }

// Names returns registered names in insertion order.
func (r *Registry) Names() []string {
	out := make([]string, len(r.names))
	copy(out, r.names)
	return out
}

// Records returns a snapshot of records in insertion order. Callers may
// mutate the registry while iterating the snapshot.
func (r *Registry) Records() []*Record {
	out := make([]*Record, len(r.names))
	for i, n := range r.names {
		out[i] = r.records[n]
	}
	return out
}

func (r *Registry) add(rec *Record) error {
	if _, exists := r.records[rec.Name]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateScript, rec.Name)
	}
	r.records[rec.Name] = rec
	r.names = append(r.names, rec.Name)
	return nil
}

func (r *Registry) remove(name string) (*Record, bool) {
	rec, ok := r.records[name]
	if !ok {
		return nil, false
	}
	delete(r.records, name)
	for i, n := range r.names {
		if n == name {
			r.names = append(r.names[:i], r.names[i+1:]...)
			break
		}
	}
	return rec, true
}
