package element

// ClientOnlyAttribute opts an element out of server rendering.
const ClientOnlyAttribute = "client-only"

// ClientOnly is the renderer class for elements carrying the client-only
// attribute. They keep their attributes and render no shadow root; the
// client renders them after upgrade.
type ClientOnly struct{}

// Name returns "client-only".
func (ClientOnly) Name() string { return "client-only" }

// Matches reports whether attrs carries the client-only attribute.
func (ClientOnly) Matches(_ *Definition, _ string, attrs *Attributes) bool {
	return attrs.Has(ClientOnlyAttribute)
}

// Create returns an attribute-only renderer.
func (ClientOnly) Create(tag string, _ *Definition) (Renderer, error) {
	return NewFallbackRenderer(tag), nil
}
