// Package shadowstream renders declarative HTML templates on the server as
// a stream of fragments, annotated with the comment markers a client-side
// runtime needs to hydrate the page without re-rendering it.
//
// A template is a shape (the static parts, created once per call site)
// plus the values for one render:
//
//	var greeting = shadowstream.Template("<p>Hello, ", "!</p>")
//
//	e := shadowstream.New()
//	html, err := e.String(ctx, shadowstream.HTML(greeting, name))
//
// Custom elements defined with Engine.Define render their shadow roots
// inline as declarative <template shadowroot> elements.
package shadowstream

import (
	"context"

	"github.com/a-h/templ"

	"github.com/conneroisu/shadowstream/internal/compiler"
	"github.com/conneroisu/shadowstream/internal/element"
	"github.com/conneroisu/shadowstream/internal/logging"
	"github.com/conneroisu/shadowstream/internal/render"
	"github.com/conneroisu/shadowstream/internal/tpl"
)

type (
	// Statics is a template shape.
	Statics = tpl.Statics
	// Result is a template shape bound to values.
	Result = tpl.Result
	// Promise is a value that suspends the render until it settles.
	Promise = tpl.Promise
	// Stream is a pull iterator over rendered fragments.
	Stream = render.Stream
	// RenderOption configures one render call.
	RenderOption = render.Option
	// Program is a compiled template shape.
	Program = compiler.Program
	// Logger is the structured logger used throughout.
	Logger = logging.Logger
)

// Hydration markers.
const (
	PartOpen  = render.PartOpen
	PartClose = render.PartClose
)

var (
	// Nothing renders nothing and removes an attribute.
	Nothing = tpl.Nothing
	// NoChange renders nothing and leaves an attribute untouched.
	NoChange = tpl.NoChange

	WithDeferHydration = render.WithDeferHydration
	WithMaxDepth       = render.WithMaxDepth
	WithDiagnostics    = render.WithDiagnostics
)

// Template creates a template shape. Call it once per call site and keep
// the result.
func Template(parts ...string) *Statics { return tpl.New(parts...) }

// HTML binds values to a shape.
func HTML(s *Statics, values ...any) Result { return tpl.HTML(s, values...) }

// Unsafe marks html as trusted markup that is written without escaping.
func Unsafe(html string) tpl.Raw { return tpl.Unsafe(html) }

// Go runs fn in a goroutine and returns a promise for its result.
func Go(ctx context.Context, fn func(ctx context.Context) (any, error)) *Promise {
	return tpl.Go(ctx, fn)
}

// Engine holds custom element definitions, the compiled program cache and
// a renderer. It is safe for concurrent use.
type Engine struct {
	definitions *element.Definitions
	compiler    *compiler.Compiler
	renderer    *render.Renderer
}

type engineOptions struct {
	logger       Logger
	cacheEntries int
	defaults     []render.Option
}

// Option configures an Engine.
type Option func(*engineOptions)

// WithLogger sets the engine's logger.
func WithLogger(l Logger) Option {
	return func(o *engineOptions) { o.logger = l }
}

// WithCacheEntries bounds the compiled program cache. Zero means unbounded.
func WithCacheEntries(n int) Option {
	return func(o *engineOptions) { o.cacheEntries = n }
}

// WithDefaults sets render options applied to every render.
func WithDefaults(opts ...RenderOption) Option {
	return func(o *engineOptions) { o.defaults = append(o.defaults, opts...) }
}

// New creates an engine.
func New(opts ...Option) *Engine {
	o := &engineOptions{logger: logging.Nop()}
	for _, opt := range opts {
		opt(o)
	}

	defs := element.NewDefinitions()
	comp := compiler.New(defs, compiler.NewCache(o.cacheEntries), o.logger)
	return &Engine{
		definitions: defs,
		compiler:    comp,
		renderer:    render.New(comp, element.DefaultRegistry(o.logger), o.logger, o.defaults...),
	}
}

// Define registers a custom element. ctor returns a fresh component value
// for every occurrence of the tag.
func (e *Engine) Define(tag string, ctor func() any) error {
	_, err := e.definitions.Define(tag, ctor)
	return err
}

// Compile returns the cached program for s.
func (e *Engine) Compile(s *Statics) (*Program, error) {
	return e.compiler.Compile(s)
}

// Render starts streaming value.
func (e *Engine) Render(ctx context.Context, value any, opts ...RenderOption) *Stream {
	return e.renderer.Render(ctx, value, opts...)
}

// String renders value to a single string.
func (e *Engine) String(ctx context.Context, value any, opts ...RenderOption) (string, error) {
	return e.renderer.String(ctx, value, opts...)
}

// Component adapts value into a templ component.
func (e *Engine) Component(value any, opts ...RenderOption) templ.Component {
	return render.Component(e.renderer, value, opts...)
}
