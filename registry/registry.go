// Package registry holds the capability registry: the authoritative set of
// tools with their metadata, lookup indexes and the default invocation path.
package registry

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/hupe1980/toolmesh/core"
	"github.com/hupe1980/toolmesh/logging"
	"github.com/hupe1980/toolmesh/tool"
)

// Options configure a Registry.
type Options struct {
	// InvokeTimeout bounds a single capability invocation. Zero disables
	// the registry-level timeout.
	InvokeTimeout time.Duration

	// Logger receives registration and invocation events.
	Logger logging.Logger
}

// Registry is a thread-safe set of capabilities keyed by unique name.
//
// The category, trigger and priority indexes are rebuilt on every mutation
// so reads never observe a partially updated index.
type Registry struct {
	mu         sync.RWMutex
	tools      map[string]tool.Capability
	meta       map[string]core.ToolMetadata
	byCategory map[core.Category][]string
	byTrigger  map[string][]string
	byPriority []string
	version    uint64

	validate *validator.Validate
	opts     Options
	logger   logging.Logger
}

// New creates an empty Registry.
func New(optFns ...func(o *Options)) *Registry {
	opts := Options{
		InvokeTimeout: 30 * time.Second,
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	return &Registry{
		tools:    make(map[string]tool.Capability),
		meta:     make(map[string]core.ToolMetadata),
		validate: validator.New(validator.WithRequiredStructEnabled()),
		opts:     opts,
		logger:   logging.OrNoOp(opts.Logger),
	}
}

// Register adds a capability. It fails with core.ErrDuplicateName when the
// name is taken and with core.ErrInvalidInput when the metadata is invalid.
func (r *Registry) Register(c tool.Capability) error {
	meta, err := r.check(c)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tools[meta.Name]; exists {
		return &core.Error{Kind: core.KindDuplicateName, Op: "registry.register", ID: meta.Name}
	}
	r.tools[meta.Name] = c
	r.meta[meta.Name] = meta
	r.reindexLocked()

	r.logger.Debug("registry.tool.registered", "tool", meta.Name, "kind", c.Kind(), "category", meta.Category)

	return nil
}

// Replace swaps the capability registered under the same name. Embeddings
// keyed on the old metadata are regenerated on the next index sync.
func (r *Registry) Replace(c tool.Capability) error {
	meta, err := r.check(c)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tools[meta.Name]; !exists {
		return fmt.Errorf("registry.replace: %w: %s", core.ErrToolNotFound, meta.Name)
	}
	r.tools[meta.Name] = c
	r.meta[meta.Name] = meta
	r.reindexLocked()

	r.logger.Debug("registry.tool.replaced", "tool", meta.Name)

	return nil
}

// Unregister removes a capability, reporting whether it existed.
func (r *Registry) Unregister(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tools[name]; !exists {
		return false
	}
	delete(r.tools, name)
	delete(r.meta, name)
	r.reindexLocked()

	return true
}

// Get returns the capability registered under name.
func (r *Registry) Get(name string) (tool.Capability, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.tools[name]
	return c, ok
}

// Metadata returns the metadata captured at registration.
func (r *Registry) Metadata(name string) (core.ToolMetadata, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.meta[name]
	return m, ok
}

// ByCategory returns the tools of cat ordered by name.
func (r *Registry) ByCategory(cat core.Category) []core.ToolMetadata {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.collectLocked(r.byCategory[cat])
}

// ByTrigger returns the tools declaring keyword as a trigger (case-insensitive).
func (r *Registry) ByTrigger(keyword string) []core.ToolMetadata {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.collectLocked(r.byTrigger[normalizeTrigger(keyword)])
}

// ByPriority returns every tool by descending priority, ties by name.
func (r *Registry) ByPriority() []core.ToolMetadata {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.collectLocked(r.byPriority)
}

// All returns every tool ordered by name.
func (r *Registry) All() []core.ToolMetadata {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.collectLocked(r.sortedNamesLocked())
}

// Names returns the registered names in order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sortedNamesLocked()
}

// Len returns the number of registered tools.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tools)
}

// Version increases on every mutation.
func (r *Registry) Version() uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.version
}

func (r *Registry) check(c tool.Capability) (core.ToolMetadata, error) {
	if c == nil {
		return core.ToolMetadata{}, core.NewError(core.KindInvalidInput, "registry.register", fmt.Errorf("nil capability"))
	}
	meta := c.Metadata()
	meta.Name = strings.TrimSpace(meta.Name)
	if err := r.validate.Struct(meta); err != nil {
		return core.ToolMetadata{}, &core.Error{Kind: core.KindInvalidInput, Op: "registry.register", ID: meta.Name, Err: err}
	}
	return meta, nil
}

func (r *Registry) reindexLocked() {
	r.byCategory = make(map[core.Category][]string)
	r.byTrigger = make(map[string][]string)

	names := r.sortedNamesLocked()
	for _, name := range names {
		m := r.meta[name]
		r.byCategory[m.Category] = append(r.byCategory[m.Category], name)
		seen := make(map[string]struct{}, len(m.Triggers))
		for _, t := range m.Triggers {
			key := normalizeTrigger(t)
			if _, dup := seen[key]; dup || key == "" {
				continue
			}
			seen[key] = struct{}{}
			r.byTrigger[key] = append(r.byTrigger[key], name)
		}
	}

	r.byPriority = append([]string(nil), names...)
	sort.SliceStable(r.byPriority, func(i, j int) bool {
		return r.meta[r.byPriority[i]].Priority > r.meta[r.byPriority[j]].Priority
	})

	r.version++
}

func (r *Registry) sortedNamesLocked() []string {
	names := make([]string, 0, len(r.tools))
	for n := range r.tools {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func (r *Registry) collectLocked(names []string) []core.ToolMetadata {
	out := make([]core.ToolMetadata, 0, len(names))
	for _, n := range names {
		out = append(out, r.meta[n])
	}
	return out
}

func normalizeTrigger(t string) string {
	return strings.ToLower(strings.TrimSpace(t))
}
