package render

import (
	"bytes"
	"context"
	stderrors "errors"
	"fmt"
	"iter"
	"reflect"

	"github.com/a-h/templ"
	"golang.org/x/net/html"

	"github.com/conneroisu/shadowstream/internal/compiler"
	"github.com/conneroisu/shadowstream/internal/errors"
	"github.com/conneroisu/shadowstream/internal/logging"
	"github.com/conneroisu/shadowstream/internal/tpl"
)

// emitter walks one render, pushing fragments to yield.
type emitter struct {
	ctx      context.Context
	rc       *Context
	compiler *compiler.Compiler
	logger   logging.Logger
	yield    func(string) bool
}

func (e *emitter) write(s string) error {
	if s == "" {
		return nil
	}
	if !e.yield(s) {
		return errStopped
	}
	return nil
}

// renderValue renders a value in child position, bracketed by part
// markers.
func (e *emitter) renderValue(value any) error {
	value = tpl.Resolve(value)

	if tpl.IsRenderLight(value) {
		if instance := e.rc.Instance(); instance != nil {
			for _, content := range instance.RenderLight(e.ctx) {
				if err := e.renderValue(content); err != nil {
					return err
				}
			}
		}
		value = nil
	}

	if result, ok := tpl.IsTemplate(value); ok {
		return e.renderTemplate(result)
	}
	if nilShape(value) {
		return errors.NewInternalError(errors.ErrCodeNilTemplate, "template result has no statics", nil)
	}

	if err := e.write(PartOpen); err != nil {
		return err
	}
	if err := e.renderContent(value); err != nil {
		return err
	}
	return e.write(PartClose)
}

func nilShape(value any) bool {
	switch r := value.(type) {
	case tpl.Result:
		return r.Statics == nil
	case *tpl.Result:
		return r != nil && r.Statics == nil
	}
	return false
}

// renderContent renders what goes between a plain value's part markers.
func (e *emitter) renderContent(value any) error {
	if value == nil || value == tpl.Nothing || value == tpl.NoChange {
		return nil
	}

	switch v := value.(type) {
	case tpl.Raw:
		return e.write(string(v))
	case string:
		return e.write(html.EscapeString(v))
	case []byte:
		return e.write(html.EscapeString(string(v)))
	case templ.Component:
		var buf bytes.Buffer
		if err := v.Render(e.ctx, &buf); err != nil {
			return errors.NewInternalError(errors.ErrCodeComponentRender, "templ component failed", err)
		}
		return e.write(buf.String())
	case tpl.Awaitable:
		return e.await(v)
	case iter.Seq[any]:
		var err error
		for item := range v {
			if err = e.renderValue(item); err != nil {
				break
			}
		}
		return err
	}

	rv := reflect.ValueOf(value)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		for i := 0; i < rv.Len(); i++ {
			if err := e.renderValue(rv.Index(i).Interface()); err != nil {
				return err
			}
		}
		return nil
	case reflect.Pointer, reflect.Map, reflect.Interface, reflect.Func, reflect.Chan:
		if rv.IsNil() {
			return nil
		}
	}
	return e.write(html.EscapeString(fmt.Sprint(value)))
}

// await blocks the whole render until a settles, then renders its value
// in place.
func (e *emitter) await(a tpl.Awaitable) error {
	value, err := a.Await(e.ctx)
	if err != nil {
		if ctxErr := e.ctx.Err(); ctxErr != nil && stderrors.Is(err, ctxErr) {
			return ctxErr
		}
		return errors.NewPromiseError(err)
	}
	return e.renderValue(value)
}
