package compiler

import (
	"fmt"

	"github.com/conneroisu/shadowstream/internal/element"
	"github.com/conneroisu/shadowstream/internal/tpl"
)

// Kind identifies an opcode.
type Kind uint8

const (
	Text Kind = iota
	ChildPart
	AttributePart
	ElementPart
	ComponentOpen
	ComponentAttributes
	PossibleNodeMarker
	ComponentShadow
	ComponentClose
)

var kindNames = [...]string{
	Text:                "TEXT",
	ChildPart:           "CHILD_PART",
	AttributePart:       "ATTRIBUTE_PART",
	ElementPart:         "ELEMENT_PART",
	ComponentOpen:       "COMPONENT_OPEN",
	ComponentAttributes: "COMPONENT_ATTRIBUTES",
	PossibleNodeMarker:  "POSSIBLE_NODE_MARKER",
	ComponentShadow:     "COMPONENT_SHADOW",
	ComponentClose:      "COMPONENT_CLOSE",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("KIND(%d)", uint8(k))
}

// MarshalText encodes the kind by name.
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// Binding is how an attribute part applies its value.
type Binding uint8

const (
	// BindAttribute serializes the value as an attribute.
	BindAttribute Binding = iota
	// BindProperty (".name") sets a property on the component instance.
	BindProperty
	// BindBoolean ("?name") toggles a valueless attribute.
	BindBoolean
	// BindEvent ("@name") never renders on the server.
	BindEvent
)

var bindingNames = [...]string{
	BindAttribute: "attribute",
	BindProperty:  "property",
	BindBoolean:   "boolean",
	BindEvent:     "event",
}

func (b Binding) String() string {
	if int(b) < len(bindingNames) {
		return bindingNames[b]
	}
	return fmt.Sprintf("binding(%d)", uint8(b))
}

// MarshalText encodes the binding by name.
func (b Binding) MarshalText() ([]byte, error) {
	return []byte(b.String()), nil
}

func bindingFor(name string) (Binding, string) {
	if name == "" {
		return BindAttribute, name
	}
	switch name[0] {
	case '.':
		return BindProperty, name[1:]
	case '?':
		return BindBoolean, name[1:]
	case '@':
		return BindEvent, name[1:]
	}
	return BindAttribute, name
}

// Op is one instruction of a compiled template. Fields beyond Kind are set
// only for the kinds that use them.
type Op struct {
	Kind Kind `json:"kind" yaml:"kind"`

	// Text is the static markup of a Text op.
	Text string `json:"text,omitempty" yaml:"text,omitempty"`

	// Index is the node index of a part or node marker.
	Index int `json:"index" yaml:"index"`

	// Name is the case-preserved attribute name, prefix removed.
	Name    string   `json:"name,omitempty" yaml:"name,omitempty"`
	Binding Binding  `json:"binding" yaml:"binding"`
	Strings []string `json:"strings,omitempty" yaml:"strings,omitempty"`

	// TagName is the lowercased tag of the element an op belongs to.
	TagName     string `json:"tag,omitempty" yaml:"tag,omitempty"`
	UseInstance bool   `json:"useInstance,omitempty" yaml:"useInstance,omitempty"`

	Definition       *element.Definition `json:"-" yaml:"-"`
	StaticAttributes []element.Attribute `json:"staticAttributes,omitempty" yaml:"staticAttributes,omitempty"`

	BoundAttributes int `json:"boundAttributes,omitempty" yaml:"boundAttributes,omitempty"`
}

// Values returns how many dynamic values the op consumes.
func (o Op) Values() int {
	switch o.Kind {
	case ChildPart, ElementPart:
		return 1
	case AttributePart:
		return len(o.Strings) - 1
	}
	return 0
}

func (o Op) String() string {
	switch o.Kind {
	case Text:
		return fmt.Sprintf("%s %q", o.Kind, o.Text)
	case ChildPart, ElementPart:
		return fmt.Sprintf("%s index=%d", o.Kind, o.Index)
	case AttributePart:
		return fmt.Sprintf("%s index=%d %s=%s on <%s> values=%d", o.Kind, o.Index, o.Binding, o.Name, o.TagName, o.Values())
	case ComponentOpen:
		return fmt.Sprintf("%s <%s> static=%d", o.Kind, o.TagName, len(o.StaticAttributes))
	case PossibleNodeMarker:
		return fmt.Sprintf("%s index=%d bound=%d", o.Kind, o.Index, o.BoundAttributes)
	}
	return o.Kind.String()
}

// Program is the compiled form of one template shape.
type Program struct {
	Statics *tpl.Statics `json:"-" yaml:"-"`
	Ops     []Op         `json:"ops" yaml:"ops"`

	// Markup is the assembled static markup the ops were sliced from.
	Markup string `json:"-" yaml:"-"`

	// Digest is the shape digest.
	Digest string `json:"digest" yaml:"digest"`

	// Slots is the number of dynamic values a render must supply.
	Slots int `json:"slots" yaml:"slots"`
}
