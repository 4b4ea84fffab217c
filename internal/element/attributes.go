package element

import (
	"strings"

	"golang.org/x/net/html"
)

// Attribute is one name/value pair on an element.
type Attribute struct {
	Name  string
	Value string
}

// Attributes is an ordered attribute list. Names are lowercased on write,
// matching how browsers normalize HTML attribute names.
type Attributes struct {
	list []Attribute
}

// NewAttributes builds an attribute list from pairs, later duplicates
// overwriting earlier ones in place.
func NewAttributes(pairs ...Attribute) *Attributes {
	a := &Attributes{list: make([]Attribute, 0, len(pairs))}
	for _, p := range pairs {
		a.Set(p.Name, p.Value)
	}
	return a
}

// Get returns the value for name.
func (a *Attributes) Get(name string) (string, bool) {
	if a == nil {
		return "", false
	}
	name = strings.ToLower(name)
	for _, attr := range a.list {
		if attr.Name == name {
			return attr.Value, true
		}
	}
	return "", false
}

// Has reports whether name is present.
func (a *Attributes) Has(name string) bool {
	_, ok := a.Get(name)
	return ok
}

// Set writes name and returns the previous value, if any.
func (a *Attributes) Set(name, value string) (old string, existed bool) {
	name = strings.ToLower(name)
	for i := range a.list {
		if a.list[i].Name == name {
			old = a.list[i].Value
			a.list[i].Value = value
			return old, true
		}
	}
	a.list = append(a.list, Attribute{Name: name, Value: value})
	return "", false
}

// Delete removes name.
func (a *Attributes) Delete(name string) {
	name = strings.ToLower(name)
	for i := range a.list {
		if a.list[i].Name == name {
			a.list = append(a.list[:i], a.list[i+1:]...)
			return
		}
	}
}

// Len returns the number of attributes.
func (a *Attributes) Len() int {
	if a == nil {
		return 0
	}
	return len(a.list)
}

// All returns a copy of the attributes in insertion order.
func (a *Attributes) All() []Attribute {
	if a == nil {
		return nil
	}
	out := make([]Attribute, len(a.list))
	copy(out, a.list)
	return out
}

// Clone returns an independent copy.
func (a *Attributes) Clone() *Attributes {
	return &Attributes{list: a.All()}
}

// Render serializes the attributes, each with a leading space. Empty values
// serialize as bare attribute names.
func (a *Attributes) Render() []string {
	if a == nil {
		return nil
	}
	out := make([]string, 0, len(a.list))
	for _, attr := range a.list {
		out = append(out, RenderAttribute(attr.Name, attr.Value))
	}
	return out
}

// RenderAttribute serializes one attribute with a leading space.
func RenderAttribute(name, value string) string {
	if value == "" {
		return " " + name
	}
	return " " + name + `="` + html.EscapeString(value) + `"`
}
