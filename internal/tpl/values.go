package tpl

import (
	"context"
	"sync"
)

type sentinel struct{ name string }

func (s *sentinel) String() string { return s.name }

var (
	// Nothing renders no output. In an attribute binding it removes the
	// attribute.
	Nothing any = &sentinel{"nothing"}
	// NoChange renders no output and leaves a binding untouched.
	NoChange any = &sentinel{"noChange"}
)

// IsEmpty reports whether v renders nothing in a child position.
func IsEmpty(v any) bool {
	return v == nil || v == Nothing || v == NoChange
}

// Raw is trusted markup written to the output without escaping.
type Raw string

// Unsafe marks markup as trusted. The caller is responsible for its safety.
func Unsafe(html string) Raw { return Raw(html) }

// Directive is a value that renders to another value. Directives are
// resolved to their rendered result on the server, never kept as live
// bindings.
type Directive interface {
	Render() any
}

// DirectiveFunc adapts a function to the Directive interface.
type DirectiveFunc func() any

// Render calls f.
func (f DirectiveFunc) Render() any { return f() }

// Resolve unwraps directives until a plain value remains.
func Resolve(v any) any {
	for {
		d, ok := v.(Directive)
		if !ok {
			return v
		}
		v = d.Render()
	}
}

type renderLight struct{}

// RenderLight returns a child value that renders the enclosing custom
// element's light content in its place.
func RenderLight() any { return renderLight{} }

// IsRenderLight reports whether v is the RenderLight directive.
func IsRenderLight(v any) bool {
	_, ok := v.(renderLight)
	return ok
}

// Awaitable is a value that settles later. Rendering suspends at an
// awaitable slot until it settles.
type Awaitable interface {
	Await(ctx context.Context) (any, error)
}

// Promise is an Awaitable settled exactly once.
type Promise struct {
	done  chan struct{}
	once  sync.Once
	value any
	err   error
}

// NewPromise returns an unsettled promise and its settle function.
func NewPromise() (*Promise, func(any, error)) {
	p := &Promise{done: make(chan struct{})}
	return p, p.settle
}

func (p *Promise) settle(v any, err error) {
	p.once.Do(func() {
		p.value, p.err = v, err
		close(p.done)
	})
}

// Go starts fn in its own goroutine and returns a promise for its result.
func Go(ctx context.Context, fn func(ctx context.Context) (any, error)) *Promise {
	p, settle := NewPromise()
	go func() {
		settle(fn(ctx))
	}()
	return p
}

// Resolved returns a promise already settled with v.
func Resolved(v any) *Promise {
	p, settle := NewPromise()
	settle(v, nil)
	return p
}

// Rejected returns a promise already settled with err.
func Rejected(err error) *Promise {
	p, settle := NewPromise()
	settle(nil, err)
	return p
}

// Await blocks until the promise settles or ctx is done.
func (p *Promise) Await(ctx context.Context) (any, error) {
	select {
	case <-p.done:
		return p.value, p.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Settled reports whether the promise has settled.
func (p *Promise) Settled() bool {
	select {
	case <-p.done:
		return true
	default:
		return false
	}
}
