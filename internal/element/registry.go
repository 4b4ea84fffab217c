package element

import (
	"context"
	"fmt"
	"sync"

	"github.com/conneroisu/shadowstream/internal/errors"
	"github.com/conneroisu/shadowstream/internal/logging"
)

// Class is a renderer class: a capability check plus a constructor.
type Class interface {
	// Name identifies the class in logs and CLI output.
	Name() string

	// Matches reports whether the class can render tag. def is nil when
	// the tag has no definition. attrs holds the element's static
	// attributes.
	Matches(def *Definition, tag string, attrs *Attributes) bool

	// Create constructs a renderer for one element instance.
	Create(tag string, def *Definition) (Renderer, error)
}

// Registry is an ordered list of renderer classes. The first class that
// matches an element renders it.
type Registry struct {
	classes []Class
	logger  logging.Logger
	mutex   sync.RWMutex
}

// NewRegistry creates a registry with classes in priority order.
func NewRegistry(logger logging.Logger, classes ...Class) *Registry {
	if logger == nil {
		logger = logging.Nop()
	}
	r := &Registry{logger: logger.WithComponent("element")}
	r.classes = append(r.classes, classes...)
	return r
}

// DefaultRegistry holds the built-in classes: client-only elements first,
// then Go components.
func DefaultRegistry(logger logging.Logger) *Registry {
	return NewRegistry(logger, ClientOnly{}, Components{})
}

// Register appends a class at the lowest priority.
func (r *Registry) Register(c Class) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.classes = append(r.classes, c)
}

// Classes returns the registered classes in priority order.
func (r *Registry) Classes() []Class {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	out := make([]Class, len(r.classes))
	copy(out, r.classes)
	return out
}

// Resolve returns a renderer for tag from the first matching class. When
// nothing matches, it returns a FallbackRenderer and matched is false; the
// render continues. Errors are reserved for a matching class that fails to
// construct its renderer.
func (r *Registry) Resolve(ctx context.Context, tag string, def *Definition, attrs *Attributes) (renderer Renderer, matched bool, err error) {
	for _, c := range r.Classes() {
		if !c.Matches(def, tag, attrs) {
			continue
		}
		renderer, err = c.Create(tag, def)
		if err != nil {
			return nil, false, errors.NewElementError(errors.ErrCodeRendererCreate,
				fmt.Sprintf("renderer class %s failed", c.Name()), err).WithTag(tag)
		}
		return renderer, true, nil
	}

	r.logger.Warn(ctx, nil, "No renderer class matched custom element, using fallback",
		"tag", tag,
		"defined", def != nil)
	return NewFallbackRenderer(tag), false, nil
}
