package render

import (
	"context"
	"io"

	"github.com/a-h/templ"
)

// Component adapts a render to templ, so template values can be embedded in
// templ layouts and served by templ's handlers. Fragments are written to the
// writer as they are produced.
func Component(r *Renderer, value any, opts ...Option) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		stream := r.Render(ctx, value, opts...)
		defer stream.Close()
		_, err := stream.WriteTo(w)
		return err
	})
}
