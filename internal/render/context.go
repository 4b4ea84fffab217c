package render

import (
	"github.com/conneroisu/shadowstream/internal/element"
	"github.com/conneroisu/shadowstream/internal/errors"
)

// DefaultMaxDepth bounds template nesting within one render.
const DefaultMaxDepth = 64

// Context is the state of one top-level render call. It is created per
// call and never shared.
type Context struct {
	Registry *element.Registry

	// DeferHydration adds defer-hydration to every top-level custom
	// element, not only nested ones.
	DeferHydration bool

	// MaxDepth bounds template nesting; exceeding it fails the render.
	MaxDepth int

	// Diagnostics receives non-fatal degradations such as fallback
	// renders. May be nil.
	Diagnostics *errors.Collector

	// OnElementRendered is called with the tag of every custom element
	// instance created.
	OnElementRendered func(tag string)

	instances []element.Renderer
	hosts     []element.Renderer
	depth     int
}

// Option configures a render call.
type Option func(*Context)

// WithDeferHydration sets Context.DeferHydration.
func WithDeferHydration(deferHydration bool) Option {
	return func(c *Context) { c.DeferHydration = deferHydration }
}

// WithMaxDepth sets Context.MaxDepth. Non-positive values keep the default.
func WithMaxDepth(depth int) Option {
	return func(c *Context) {
		if depth > 0 {
			c.MaxDepth = depth
		}
	}
}

// WithDiagnostics records degradations into collector.
func WithDiagnostics(collector *errors.Collector) Option {
	return func(c *Context) { c.Diagnostics = collector }
}

// WithElementRendered sets Context.OnElementRendered.
func WithElementRendered(fn func(tag string)) Option {
	return func(c *Context) { c.OnElementRendered = fn }
}

// WithRegistry renders with registry instead of the renderer's own.
func WithRegistry(registry *element.Registry) Option {
	return func(c *Context) {
		if registry != nil {
			c.Registry = registry
		}
	}
}

// Instance returns the innermost open custom element, or nil.
func (c *Context) Instance() element.Renderer {
	if len(c.instances) == 0 {
		return nil
	}
	return c.instances[len(c.instances)-1]
}

// Hosts returns how many custom elements are rendering shadow content
// around the current position.
func (c *Context) Hosts() int { return len(c.hosts) }

func (c *Context) pushInstance(r element.Renderer) { c.instances = append(c.instances, r) }

func (c *Context) popInstance() {
	if len(c.instances) > 0 {
		c.instances = c.instances[:len(c.instances)-1]
	}
}

func (c *Context) pushHost(r element.Renderer) { c.hosts = append(c.hosts, r) }

func (c *Context) popHost() {
	if len(c.hosts) > 0 {
		c.hosts = c.hosts[:len(c.hosts)-1]
	}
}
