package element

import (
	"fmt"
	"reflect"
	"sort"
	"sync"

	"github.com/conneroisu/shadowstream/internal/errors"
)

// Definition is a custom element class: the tag it is defined for and a
// constructor for its backing object.
type Definition struct {
	Tag  string
	New  func() any
	Type reflect.Type
}

// Implements reports whether the definition's backing type implements the
// interface pointed to by iface, e.g. (*Component)(nil).
func (d *Definition) Implements(iface any) bool {
	if d == nil || d.Type == nil {
		return false
	}
	t := reflect.TypeOf(iface).Elem()
	return d.Type.Implements(t)
}

// Definitions maps tag names to custom element classes. Templates must be
// compiled after the elements they contain are defined.
type Definitions struct {
	defs  map[string]*Definition
	mutex sync.RWMutex
}

// NewDefinitions creates an empty definition registry.
func NewDefinitions() *Definitions {
	return &Definitions{defs: make(map[string]*Definition)}
}

// Define registers ctor for tag. The constructor is called once to learn
// the backing type.
func (d *Definitions) Define(tag string, ctor func() any) (*Definition, error) {
	if err := ValidateTagName(tag); err != nil {
		return nil, err
	}
	if ctor == nil {
		return nil, errors.NewElementError(errors.ErrCodeDefine, "nil constructor", nil).WithTag(tag)
	}

	probe := ctor()
	if probe == nil {
		return nil, errors.NewElementError(errors.ErrCodeDefine, "constructor returned nil", nil).WithTag(tag)
	}

	d.mutex.Lock()
	defer d.mutex.Unlock()

	if _, exists := d.defs[tag]; exists {
		return nil, errors.NewElementError(errors.ErrCodeDefine, "element already defined", nil).WithTag(tag)
	}

	def := &Definition{Tag: tag, New: ctor, Type: reflect.TypeOf(probe)}
	d.defs[tag] = def
	return def, nil
}

// MustDefine is Define that panics on error, for package-level setup.
func (d *Definitions) MustDefine(tag string, ctor func() any) *Definition {
	def, err := d.Define(tag, ctor)
	if err != nil {
		panic(err)
	}
	return def
}

// Get looks up the definition for tag.
func (d *Definitions) Get(tag string) (*Definition, bool) {
	d.mutex.RLock()
	defer d.mutex.RUnlock()

	def, ok := d.defs[tag]
	return def, ok
}

// Undefine removes the definition for tag. Programs compiled earlier keep
// the definition they captured.
func (d *Definitions) Undefine(tag string) {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	delete(d.defs, tag)
}

// Tags returns the defined tag names, sorted.
func (d *Definitions) Tags() []string {
	d.mutex.RLock()
	defer d.mutex.RUnlock()

	tags := make([]string, 0, len(d.defs))
	for tag := range d.defs {
		tags = append(tags, tag)
	}
	sort.Strings(tags)
	return tags
}

// ValidateTagName checks tag against the custom element naming rules the
// server relies on: lowercase ASCII start, at least one hyphen.
func ValidateTagName(tag string) error {
	if tag == "" {
		return errors.NewElementError(errors.ErrCodeDefine, "empty tag name", nil)
	}
	if tag[0] < 'a' || tag[0] > 'z' {
		return errors.NewElementError(errors.ErrCodeDefine,
			fmt.Sprintf("tag %q must start with a lowercase letter", tag), nil).WithTag(tag)
	}
	hyphen := false
	for i := 0; i < len(tag); i++ {
		c := tag[i]
		switch {
		case c == '-':
			hyphen = true
		case c >= 'A' && c <= 'Z':
			return errors.NewElementError(errors.ErrCodeDefine,
				fmt.Sprintf("tag %q must be lowercase", tag), nil).WithTag(tag)
		case c == ' ' || c == '>' || c == '/' || c == '\t' || c == '\n':
			return errors.NewElementError(errors.ErrCodeDefine,
				fmt.Sprintf("tag %q contains invalid characters", tag), nil).WithTag(tag)
		}
	}
	if !hyphen {
		return errors.NewElementError(errors.ErrCodeDefine,
			fmt.Sprintf("tag %q must contain a hyphen", tag), nil).WithTag(tag)
	}
	return nil
}
