// Package scripts attaches dynamically configured behaviour modules to
// entities and drives them through their lifecycle.
//
// A Component owns the ordered list of script references of one entity, the
// registry of constructed instances, and the version counter used to drop
// stale load completions. The System is the per-tick and batch driver across
// all components, and the only place that talks to the Loader.
//
// Everything in this package runs on the owner goroutine of the loop.Loop
// passed to NewSystem. Loads run on loader goroutines and re-enter through
// the loop.
package scripts
