package scripts

import (
	"fmt"
	"maps"
)

// Reference names a module URL and the initial attribute values for it.
// References are treated as immutable once handed to a Component.
type Reference struct {
	URL        string         `json:"url" yaml:"url"`
	Name       string         `json:"name,omitempty" yaml:"name,omitempty"`
	Attributes map[string]any `json:"attributes,omitempty" yaml:"attributes,omitempty"`
}

// ReferenceList is an ordered sequence of references. Order matters for the
// load request and for matching load results back to attribute maps.
type ReferenceList []Reference

// URLs returns the module URLs in list order.
func (l ReferenceList) URLs() []string {
	urls := make([]string, len(l))
	for i, r := range l {
		urls[i] = r.URL
	}
	return urls
}

// Clone deep-copies the list and the top level of each attribute map.
func (l ReferenceList) Clone() ReferenceList {
	if l == nil {
		return nil
	}
	out := make(ReferenceList, len(l))
	for i, r := range l {
		out[i] = Reference{URL: r.URL, Name: r.Name, Attributes: maps.Clone(r.Attributes)}
	}
	return out
}

// SameURLs reports whether both lists hold the same URLs in the same order.
// A list replacement for which this holds is an attribute-only change.
func (l ReferenceList) SameURLs(other ReferenceList) bool {
	if len(l) != len(other) {
		return false
	}
	for i := range l {
		if l[i].URL != other[i].URL {
			return false
		}
	}
	return true
}

// Validate checks every entry and reports the first malformed one.
func (l ReferenceList) Validate() error {
	for i, r := range l {
		if r.URL == "" {
			return fmt.Errorf("%w: entry %d has no url", ErrMalformedReference, i)
		}
	}
	return nil
}
