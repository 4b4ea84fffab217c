// Package render streams template values as HTML fragments with hydration
// markers.
//
// Rendering is pull-based: a Stream produces the next fragment only when
// asked. The only point where a render waits is an awaitable value in a
// child position; everything after it waits too, so fragments always
// arrive in document order.
package render

import (
	"bytes"
	"context"
	stderrors "errors"
	"io"
	"iter"

	"github.com/conneroisu/shadowstream/internal/compiler"
	"github.com/conneroisu/shadowstream/internal/element"
	"github.com/conneroisu/shadowstream/internal/logging"
)

// Hydration markers.
const (
	PartOpen       = "<!--tpl-part-->"
	PartClose      = "<!--/tpl-part-->"
	DeferHydration = " defer-hydration"
)

// PartOpenFor returns the opening marker of a template part with digest.
func PartOpenFor(digest string) string {
	return "<!--tpl-part:" + digest + "-->"
}

// errStopped unwinds a render whose consumer stopped pulling.
var errStopped = stderrors.New("render: consumer stopped")

// Renderer renders values using a shared compiler and element registry.
// It is safe for concurrent use; each render call gets its own Context.
type Renderer struct {
	compiler *compiler.Compiler
	registry *element.Registry
	logger   logging.Logger
	defaults []Option
}

// New creates a renderer. defaults apply to every call before per-call
// options.
func New(c *compiler.Compiler, registry *element.Registry, logger logging.Logger, defaults ...Option) *Renderer {
	if logger == nil {
		logger = logging.Nop()
	}
	if c == nil {
		c = compiler.New(nil, nil, logger)
	}
	if registry == nil {
		registry = element.DefaultRegistry(logger)
	}
	return &Renderer{
		compiler: c,
		registry: registry,
		logger:   logger.WithComponent("render"),
		defaults: defaults,
	}
}

// Compiler returns the renderer's compiler.
func (r *Renderer) Compiler() *compiler.Compiler { return r.compiler }

// Registry returns the renderer's element registry.
func (r *Renderer) Registry() *element.Registry { return r.registry }

func (r *Renderer) newContext(opts []Option) *Context {
	c := &Context{
		Registry: r.registry,
		MaxDepth: DefaultMaxDepth,
	}
	for _, opt := range r.defaults {
		opt(c)
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Seq returns the fragments of value as a sequence. A failed render yields
// one final ("", err) pair. Each iteration renders afresh.
func (r *Renderer) Seq(ctx context.Context, value any, opts ...Option) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		e := &emitter{
			ctx:      ctx,
			rc:       r.newContext(opts),
			compiler: r.compiler,
			logger:   r.logger,
			yield:    func(s string) bool { return yield(s, nil) },
		}
		err := e.renderValue(value)
		if err == nil || stderrors.Is(err, errStopped) {
			return
		}
		r.logger.Debug(ctx, "Render failed", "error", err.Error())
		yield("", err)
	}
}

// Render starts a pull stream over the fragments of value.
func (r *Renderer) Render(ctx context.Context, value any, opts ...Option) *Stream {
	next, stop := iter.Pull2(r.Seq(ctx, value, opts...))
	return &Stream{next: next, stop: stop}
}

// String renders value to a single string.
func (r *Renderer) String(ctx context.Context, value any, opts ...Option) (string, error) {
	return Collect(r.Render(ctx, value, opts...))
}

// Stream is a pull iterator over rendered fragments.
type Stream struct {
	next func() (string, error, bool)
	stop func()
	err  error
	done bool
}

// Next returns the next fragment. It returns io.EOF after the last
// fragment, or the render error if the render failed.
func (s *Stream) Next() (string, error) {
	if s.done {
		if s.err != nil {
			return "", s.err
		}
		return "", io.EOF
	}
	fragment, err, ok := s.next()
	switch {
	case !ok:
		s.finish(nil)
		return "", io.EOF
	case err != nil:
		s.finish(err)
		return "", err
	}
	return fragment, nil
}

func (s *Stream) finish(err error) {
	s.done = true
	s.err = err
	s.stop()
}

// Close discards the rest of the stream. It may be called more than once.
func (s *Stream) Close() {
	if !s.done {
		s.finish(nil)
	}
}

// WriteTo writes every remaining fragment to w.
func (s *Stream) WriteTo(w io.Writer) (int64, error) {
	var total int64
	for {
		fragment, err := s.Next()
		if err == io.EOF {
			return total, nil
		}
		if err != nil {
			return total, err
		}
		n, err := io.WriteString(w, fragment)
		total += int64(n)
		if err != nil {
			s.Close()
			return total, err
		}
	}
}

// Collect drains s into a string.
func Collect(s *Stream) (string, error) {
	var buf bytes.Buffer
	_, err := s.WriteTo(&buf)
	return buf.String(), err
}
