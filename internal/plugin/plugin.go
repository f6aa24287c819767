// Package plugin hosts externally provided record filters. A filter
// registers itself by name, typically from an init function in its own
// package, and is activated from the command line. Filters run inside the
// checker chain after the built-ins and the tuple matcher.
package plugin

import (
	"fmt"
	"sort"
	"sync"

	"FlowSieve/internal/model"
)

// Filter is one external predicate. Initialize runs once before any file
// is opened and Finalize once after the last record; Check is called per
// record. A filter that keeps mutable state across Check calls must report
// ThreadSafe false, which forces the dispatcher to a single worker.
type Filter interface {
	Name() string
	Initialize() error
	Check(r *model.FlowRec) model.Verdict
	Finalize()
	ThreadSafe() bool
}

var (
	mu       sync.Mutex
	registry = make(map[string]func() Filter)
)

// Register makes a filter constructor available under name. It panics on a
// duplicate name: that is a programming error in the filter package.
func Register(name string, create func() Filter) {
	mu.Lock()
	defer mu.Unlock()
	if _, dup := registry[name]; dup {
		panic(fmt.Sprintf("plugin: filter %q registered twice", name))
	}
	registry[name] = create
}

// New instantiates the named filter.
func New(name string) (Filter, error) {
	mu.Lock()
	create, ok := registry[name]
	mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("unknown filter plugin %q (known: %v)", name, Names())
	}
	return create(), nil
}

// Names lists the registered filter names, sorted.
func Names() []string {
	mu.Lock()
	defer mu.Unlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
