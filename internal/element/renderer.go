// Package element renders custom elements on the server. A Registry of
// renderer classes decides which Renderer handles each custom element tag;
// renderers serialize host attributes and produce shadow and light content
// for the render package to stream.
package element

import "context"

// ShadowRootOptions configures the declarative shadow root container.
type ShadowRootOptions struct {
	Mode           string
	DelegatesFocus bool
}

// DefaultShadowRootOptions is an open shadow root without focus delegation.
var DefaultShadowRootOptions = ShadowRootOptions{Mode: "open"}

// Renderer renders one custom element instance. Content returned by
// RenderShadow and RenderLight is a list of child values (strings, template
// results, tpl.Raw and so on) that the caller renders in order.
type Renderer interface {
	TagName() string
	ShadowRootOptions() ShadowRootOptions

	// ConnectedCallback runs once all attribute and property bindings
	// have been applied.
	ConnectedCallback(ctx context.Context) error

	SetAttribute(name, value string)
	SetProperty(name string, value any)

	// RenderAttributes returns serialized host attributes, each with a
	// leading space.
	RenderAttributes() []string

	// RenderShadow returns the shadow content. ok is false when the
	// element has no shadow root.
	RenderShadow(ctx context.Context) (content []any, ok bool)

	// RenderLight returns content rendered where a template places the
	// RenderLight directive.
	RenderLight(ctx context.Context) []any
}

// BindingReporter is implemented by renderers that skip bindings they cannot
// apply instead of failing the render.
type BindingReporter interface {
	SkippedBindings() []error
}

// BaseRenderer implements Renderer with no attributes, no shadow root and
// no light content. Concrete renderers embed it and override what they need.
type BaseRenderer struct {
	Tag string
}

// TagName returns the element's tag.
func (b *BaseRenderer) TagName() string { return b.Tag }

// ShadowRootOptions returns DefaultShadowRootOptions.
func (b *BaseRenderer) ShadowRootOptions() ShadowRootOptions { return DefaultShadowRootOptions }

func (b *BaseRenderer) ConnectedCallback(context.Context) error { return nil }

func (b *BaseRenderer) SetAttribute(string, string) {}

func (b *BaseRenderer) SetProperty(string, any) {}

func (b *BaseRenderer) RenderAttributes() []string { return nil }

func (b *BaseRenderer) RenderShadow(context.Context) ([]any, bool) { return nil, false }

func (b *BaseRenderer) RenderLight(context.Context) []any { return nil }

// FallbackRenderer is used for custom elements no registered class matches.
// It keeps and re-serializes attributes, ignores properties and renders no
// shadow root.
type FallbackRenderer struct {
	BaseRenderer
	attributes *Attributes
}

// NewFallbackRenderer creates a fallback renderer for tag.
func NewFallbackRenderer(tag string) *FallbackRenderer {
	return &FallbackRenderer{
		BaseRenderer: BaseRenderer{Tag: tag},
		attributes:   NewAttributes(),
	}
}

// SetAttribute records the attribute for serialization.
func (f *FallbackRenderer) SetAttribute(name, value string) {
	f.attributes.Set(name, value)
}

// RenderAttributes serializes the recorded attributes.
func (f *FallbackRenderer) RenderAttributes() []string {
	return f.attributes.Render()
}

// Attributes returns the recorded attributes.
func (f *FallbackRenderer) Attributes() *Attributes {
	return f.attributes
}
