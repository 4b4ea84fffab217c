package element

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-viper/mapstructure/v2"

	"github.com/conneroisu/shadowstream/internal/tpl"
)

// Component is a custom element implemented in Go. Render returns the
// element's shadow content, usually a tpl.Result.
//
// Components are plain structs behind a pointer. Exported fields are the
// element's properties: attribute and property bindings are decoded into
// them by name, or by the name in a `prop` struct tag. Fields tagged
// `reflect:"true"` are written back to host attributes when the element
// connects.
type Component interface {
	Render(ctx context.Context) any
}

// Styler supplies style sheets rendered at the top of the shadow root.
type Styler interface {
	Styles() []string
}

// LightRenderer supplies content for the RenderLight directive.
type LightRenderer interface {
	RenderLight(ctx context.Context) any
}

// ShadowRootOptioner overrides the shadow root options.
type ShadowRootOptioner interface {
	ShadowRootOptions() ShadowRootOptions
}

// AttributeObserver receives attribute changes in place of the default
// attribute-to-property decoding.
type AttributeObserver interface {
	AttributeChanged(name, old, value string)
}

// PropertySetter handles property bindings itself. It returns false to fall
// back to field decoding.
type PropertySetter interface {
	SetProperty(name string, value any) bool
}

// WillUpdater is called on connect with the properties set since
// construction, keyed by property name.
type WillUpdater interface {
	WillUpdate(changed map[string]any)
}

// Connector runs component connect-time work after bindings are applied.
type Connector interface {
	Connected(ctx context.Context) error
}

// InternalsProvider exposes element internals ARIA state, keyed by ARIA
// reflection property (ariaLabel, role).
type InternalsProvider interface {
	Internals() map[string]string
}

// Components is the renderer class for definitions backed by a Component.
type Components struct{}

// Name returns "components".
func (Components) Name() string { return "components" }

// Matches reports whether def constructs a Component.
func (Components) Matches(def *Definition, _ string, _ *Attributes) bool {
	return def.Implements((*Component)(nil))
}

// Create constructs the backing component and its renderer.
func (Components) Create(tag string, def *Definition) (Renderer, error) {
	instance := def.New()
	if _, ok := instance.(Component); !ok {
		return nil, fmt.Errorf("constructor for <%s> returned %T, not a Component", tag, instance)
	}
	return NewComponentRenderer(tag, instance), nil
}

// ComponentRenderer renders a Go Component.
type ComponentRenderer struct {
	BaseRenderer
	element    any
	attributes *Attributes
	changed    map[string]any
	skipped    []error
}

// NewComponentRenderer wraps element, which should implement Component.
// ARIA state from element internals is mirrored onto host attributes, each
// with a hydrate-internals- copy.
func NewComponentRenderer(tag string, element any) *ComponentRenderer {
	c := &ComponentRenderer{
		BaseRenderer: BaseRenderer{Tag: tag},
		element:      element,
		attributes:   NewAttributes(),
		changed:      make(map[string]any),
	}
	if p, ok := element.(InternalsProvider); ok {
		internals := p.Internals()
		for _, a := range ariaAttributes {
			value := internals[a.Property]
			if value == "" {
				continue
			}
			c.attributes.Set(a.Attribute, value)
			c.attributes.Set(HydrateInternalsPrefix+a.Attribute, value)
		}
	}
	return c
}

// Element returns the backing component.
func (c *ComponentRenderer) Element() any { return c.element }

// Attributes returns the host attributes.
func (c *ComponentRenderer) Attributes() *Attributes { return c.attributes }

// ShadowRootOptions returns the component's options or the default.
func (c *ComponentRenderer) ShadowRootOptions() ShadowRootOptions {
	if o, ok := c.element.(ShadowRootOptioner); ok {
		return o.ShadowRootOptions()
	}
	return DefaultShadowRootOptions
}

// SetAttribute records the host attribute and decodes it into the matching
// property.
func (c *ComponentRenderer) SetAttribute(name, value string) {
	old, _ := c.attributes.Set(name, value)
	if observer, ok := c.element.(AttributeObserver); ok {
		observer.AttributeChanged(strings.ToLower(name), old, value)
		return
	}
	field, prop, ok := propertyField(c.element, name)
	if !ok {
		return
	}
	if err := decodeField(field, value, true); err != nil {
		c.skipped = append(c.skipped, fmt.Errorf("attribute %s: %w", name, err))
		return
	}
	c.changed[prop] = field.Interface()
}

// SetProperty assigns value to the matching property.
func (c *ComponentRenderer) SetProperty(name string, value any) {
	if setter, ok := c.element.(PropertySetter); ok && setter.SetProperty(name, value) {
		c.changed[name] = value
		return
	}
	field, prop, ok := propertyField(c.element, name)
	if !ok {
		return
	}
	if err := decodeField(field, value, false); err != nil {
		c.skipped = append(c.skipped, fmt.Errorf("property %s: %w", name, err))
		return
	}
	c.changed[prop] = field.Interface()
}

// ConnectedCallback runs update hooks and reflects properties to host
// attributes. Only the component's own Connected error is returned.
func (c *ComponentRenderer) ConnectedCallback(ctx context.Context) error {
	if w, ok := c.element.(WillUpdater); ok {
		w.WillUpdate(c.changed)
	}
	c.reflectProperties()
	if conn, ok := c.element.(Connector); ok {
		return conn.Connected(ctx)
	}
	return nil
}

// SkippedBindings returns and clears the bindings that could not be decoded
// or reflected. The affected properties keep their previous values.
func (c *ComponentRenderer) SkippedBindings() []error {
	skipped := c.skipped
	c.skipped = nil
	return skipped
}

// RenderAttributes serializes the host attributes.
func (c *ComponentRenderer) RenderAttributes() []string {
	return c.attributes.Render()
}

// RenderShadow returns the component's styles followed by its rendered
// template.
func (c *ComponentRenderer) RenderShadow(ctx context.Context) ([]any, bool) {
	comp, ok := c.element.(Component)
	if !ok {
		return nil, false
	}
	var content []any
	if s, ok := c.element.(Styler); ok {
		if styles := s.Styles(); len(styles) > 0 {
			content = append(content, tpl.Raw("<style>"+strings.Join(styles, "")+"</style>"))
		}
	}
	content = append(content, comp.Render(ctx))
	return content, true
}

// RenderLight returns the component's light content, if it has any.
func (c *ComponentRenderer) RenderLight(ctx context.Context) []any {
	l, ok := c.element.(LightRenderer)
	if !ok {
		return nil
	}
	if v := l.RenderLight(ctx); !tpl.IsEmpty(v) && v != "" {
		return []any{v}
	}
	return nil
}

func (c *ComponentRenderer) reflectProperties() {
	v := structValue(c.element)
	if !v.IsValid() {
		return
	}
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		sf := t.Field(i)
		if !sf.IsExported() || sf.Tag.Get("reflect") != "true" {
			continue
		}
		name := sf.Tag.Get("attr")
		if name == "" {
			name = strings.ToLower(propName(sf))
		}
		fv := v.Field(i)
		if fv.Kind() == reflect.Bool {
			if fv.Bool() {
				c.attributes.Set(name, "")
			} else {
				c.attributes.Delete(name)
			}
			continue
		}
		if fv.IsZero() {
			continue
		}
		value, err := attributeValue(fv)
		if err != nil {
			c.skipped = append(c.skipped, fmt.Errorf("reflect %s: %w", sf.Name, err))
			continue
		}
		c.attributes.Set(name, value)
	}
}

func attributeValue(fv reflect.Value) (string, error) {
	switch fv.Kind() {
	case reflect.Slice, reflect.Array, reflect.Map, reflect.Struct, reflect.Pointer, reflect.Interface:
		b, err := json.Marshal(fv.Interface())
		if err != nil {
			return "", err
		}
		return string(b), nil
	default:
		return fmt.Sprint(fv.Interface()), nil
	}
}

func structValue(element any) reflect.Value {
	v := reflect.ValueOf(element)
	if v.Kind() != reflect.Pointer || v.IsNil() {
		return reflect.Value{}
	}
	v = v.Elem()
	if v.Kind() != reflect.Struct {
		return reflect.Value{}
	}
	return v
}

func propName(sf reflect.StructField) string {
	if tag := sf.Tag.Get("prop"); tag != "" && tag != "-" {
		return strings.Split(tag, ",")[0]
	}
	return sf.Name
}

// propertyField finds the settable field for a property or attribute name.
// Names match the prop tag or the field name, ignoring case.
func propertyField(element any, name string) (reflect.Value, string, bool) {
	v := structValue(element)
	if !v.IsValid() {
		return reflect.Value{}, "", false
	}
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		sf := t.Field(i)
		if !sf.IsExported() || sf.Tag.Get("prop") == "-" {
			continue
		}
		prop := propName(sf)
		if strings.EqualFold(prop, name) {
			return v.Field(i), prop, true
		}
	}
	return reflect.Value{}, "", false
}

func decodeField(field reflect.Value, value any, fromAttribute bool) error {
	if value == nil {
		field.Set(reflect.Zero(field.Type()))
		return nil
	}
	if rv := reflect.ValueOf(value); rv.Type().AssignableTo(field.Type()) {
		field.Set(rv)
		return nil
	}
	out := reflect.New(field.Type())
	config := &mapstructure.DecoderConfig{
		Result:           out.Interface(),
		TagName:          "prop",
		WeaklyTypedInput: fromAttribute,
	}
	if fromAttribute {
		config.DecodeHook = attributeHook
	}
	decoder, err := mapstructure.NewDecoder(config)
	if err != nil {
		return err
	}
	if err := decoder.Decode(value); err != nil {
		return err
	}
	field.Set(out.Elem())
	return nil
}

// attributeHook converts attribute strings the way custom element
// attribute converters do: presence means true for booleans, and complex
// properties are parsed as JSON.
func attributeHook(from, to reflect.Type, data any) (any, error) {
	if from.Kind() != reflect.String {
		return data, nil
	}
	s, _ := data.(string)
	switch to.Kind() {
	case reflect.Bool:
		return true, nil
	case reflect.Slice, reflect.Map, reflect.Struct:
		if s == "" {
			return reflect.Zero(to).Interface(), nil
		}
		out := reflect.New(to)
		if err := json.Unmarshal([]byte(s), out.Interface()); err != nil {
			return nil, err
		}
		return out.Elem().Interface(), nil
	}
	return data, nil
}
