package render

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strings"

	"golang.org/x/net/html"

	"github.com/conneroisu/shadowstream/internal/compiler"
	"github.com/conneroisu/shadowstream/internal/element"
	"github.com/conneroisu/shadowstream/internal/errors"
	"github.com/conneroisu/shadowstream/internal/tpl"
)

// renderTemplate runs the program for result's shape against its values,
// bracketed by the shape's part markers.
func (e *emitter) renderTemplate(result tpl.Result) error {
	e.rc.depth++
	defer func() { e.rc.depth-- }()
	if e.rc.depth > e.rc.MaxDepth {
		return errors.NewInternalError(errors.ErrCodeDepthExceeded,
			fmt.Sprintf("template nesting exceeds %d", e.rc.MaxDepth), nil)
	}

	program, err := e.compiler.Compile(result.Statics)
	if err != nil {
		return err
	}
	// Checked before the part opens so a mismatch leaves no output behind.
	values := result.Values
	if len(values) != program.Slots {
		return valueCountError(program, len(values))
	}
	if err := e.write(PartOpenFor(program.Digest)); err != nil {
		return err
	}

	// Compile guarantees the ops consume exactly program.Slots values.
	partIndex := 0
	take := func(op compiler.Op) []any {
		taken := values[partIndex : partIndex+op.Values()]
		partIndex += op.Values()
		return taken
	}

	for _, op := range program.Ops {
		switch op.Kind {
		case compiler.Text:
			err = e.write(op.Text)

		case compiler.ChildPart:
			err = e.renderValue(take(op)[0])

		case compiler.AttributePart:
			err = e.renderAttributePart(op, take(op))

		case compiler.ElementPart:
			// element directives have no server output
			take(op)

		case compiler.ComponentOpen:
			err = e.openComponent(op)

		case compiler.ComponentAttributes:
			err = e.componentAttributes(op)

		case compiler.PossibleNodeMarker:
			if op.BoundAttributes > 0 || e.rc.Hosts() > 0 {
				err = e.write(fmt.Sprintf("<!--tpl-node:%d-->", op.Index))
			}

		case compiler.ComponentShadow:
			err = e.componentShadow(op)

		case compiler.ComponentClose:
			e.rc.popInstance()

		default:
			err = errors.NewInternalError(errors.ErrCodeUnknownOpcode,
				fmt.Sprintf("unknown opcode %s", op.Kind), nil)
		}
		if err != nil {
			return err
		}
	}

	return e.write(PartClose)
}

func valueCountError(program *compiler.Program, got int) error {
	return errors.NewInternalError(errors.ErrCodeValueCount,
		fmt.Sprintf("template %s has %d slots but was given %d values", program.Digest, program.Slots, got), nil).
		WithContext("digest", program.Digest).
		WithContext("slots", program.Slots).
		WithContext("values", got)
}

func (e *emitter) renderAttributePart(op compiler.Op, values []any) error {
	if op.Binding == compiler.BindEvent {
		return nil
	}

	value := committedValue(op.Strings, values)
	if value == tpl.NoChange {
		return nil
	}

	var instance element.Renderer
	if op.UseInstance {
		instance = e.rc.Instance()
	}

	switch op.Binding {
	case compiler.BindProperty:
		if value == tpl.Nothing {
			value = nil
		}
		if instance != nil {
			instance.SetProperty(op.Name, value)
		}
		if name, ok := element.ReflectedAttributeName(op.TagName, op.Name); ok {
			return e.write(name + `="` + html.EscapeString(stringify(value)) + `"`)
		}
		return nil

	case compiler.BindBoolean:
		if value == tpl.Nothing || !truthy(value) {
			return nil
		}
		if instance != nil {
			instance.SetAttribute(op.Name, "")
			return nil
		}
		return e.write(op.Name)

	default:
		if value == tpl.Nothing {
			return nil
		}
		s := stringify(value)
		if instance != nil {
			instance.SetAttribute(op.Name, s)
			return nil
		}
		return e.write(op.Name + `="` + html.EscapeString(s) + `"`)
	}
}

// committedValue resolves an attribute part's values against its static
// strings. A single binding commits its value as is; an interpolation
// commits a string, or Nothing if any value is Nothing.
func committedValue(strs []string, values []any) any {
	if len(strs) == 2 && strs[0] == "" && strs[1] == "" {
		return tpl.Resolve(values[0])
	}

	var b strings.Builder
	for i, s := range strs {
		b.WriteString(s)
		if i >= len(values) {
			continue
		}
		v := tpl.Resolve(values[i])
		switch v {
		case tpl.Nothing:
			return tpl.Nothing
		case nil, tpl.NoChange:
			continue
		}
		b.WriteString(stringify(v))
	}
	return b.String()
}

func (e *emitter) openComponent(op compiler.Op) error {
	attrs := element.NewAttributes(op.StaticAttributes...)
	instance, matched, err := e.rc.Registry.Resolve(e.ctx, op.TagName, op.Definition, attrs)
	switch {
	case err != nil && !errors.IsRecoverable(err):
		return err
	case err != nil:
		e.logger.Warn(e.ctx, err, "Renderer construction failed, using fallback", "tag", op.TagName)
		e.diagnose(op.TagName, errors.ErrCodeRendererCreate, err.Error())
		instance = element.NewFallbackRenderer(op.TagName)
	case !matched:
		e.diagnose(op.TagName, errors.ErrCodeFallback, "no renderer matched; rendered as an opaque element")
	}

	for _, attr := range op.StaticAttributes {
		instance.SetAttribute(attr.Name, attr.Value)
	}
	e.rc.pushInstance(instance)
	if e.rc.OnElementRendered != nil {
		e.rc.OnElementRendered(op.TagName)
	}
	return nil
}

func (e *emitter) diagnose(tag, code, message string) {
	if e.rc.Diagnostics == nil {
		return
	}
	e.rc.Diagnostics.Add(errors.Diagnostic{
		Tag:      tag,
		Code:     code,
		Message:  message,
		Severity: errors.ErrorSeverityWarning,
	})
}

func (e *emitter) currentInstance(op compiler.Op) (element.Renderer, error) {
	instance := e.rc.Instance()
	if instance == nil {
		return nil, errors.NewInternalError(errors.ErrCodeNoInstance,
			fmt.Sprintf("%s outside a custom element", op.Kind), nil).WithTag(op.TagName)
	}
	return instance, nil
}

func (e *emitter) componentAttributes(op compiler.Op) error {
	instance, err := e.currentInstance(op)
	if err != nil {
		return err
	}
	if err := instance.ConnectedCallback(e.ctx); err != nil {
		return errors.NewInternalError(errors.ErrCodeConnect, "connected callback failed", err).
			WithTag(op.TagName)
	}
	if reporter, ok := instance.(element.BindingReporter); ok {
		for _, skipped := range reporter.SkippedBindings() {
			e.logger.Warn(e.ctx, skipped, "Binding skipped", "tag", op.TagName)
			e.diagnose(op.TagName, errors.ErrCodeBindingDecode, skipped.Error())
		}
	}
	for _, attr := range instance.RenderAttributes() {
		if err := e.write(attr); err != nil {
			return err
		}
	}
	if e.rc.DeferHydration || e.rc.Hosts() > 0 {
		return e.write(DeferHydration)
	}
	return nil
}

func (e *emitter) componentShadow(op compiler.Op) error {
	instance, err := e.currentInstance(op)
	if err != nil {
		return err
	}

	e.rc.pushHost(instance)
	defer e.rc.popHost()

	content, ok := instance.RenderShadow(e.ctx)
	if !ok {
		return nil
	}

	opts := instance.ShadowRootOptions()
	mode := opts.Mode
	if mode == "" {
		mode = element.DefaultShadowRootOptions.Mode
	}
	open := `<template shadowroot="` + mode + `" shadowrootmode="` + mode + `"`
	if opts.DelegatesFocus {
		open += " shadowrootdelegatesfocus"
	}
	if err := e.write(open + ">"); err != nil {
		return err
	}
	for _, item := range content {
		if raw, isRaw := item.(tpl.Raw); isRaw {
			err = e.write(string(raw))
		} else {
			err = e.renderValue(item)
		}
		if err != nil {
			return err
		}
	}
	return e.write("</template>")
}

// truthy follows the loose truthiness boolean bindings use.
func truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case string:
		return t != ""
	case int:
		return t != 0
	case int64:
		return t != 0
	case float64:
		return t != 0
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Interface, reflect.Func, reflect.Chan:
		return !rv.IsNil()
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int() != 0
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return rv.Uint() != 0
	case reflect.Float32, reflect.Float64:
		return rv.Float() != 0
	case reflect.String:
		return rv.Len() > 0
	}
	return true
}

// stringify converts an attribute value to its attribute text.
func stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case tpl.Raw:
		return string(t)
	case []byte:
		return string(t)
	case fmt.Stringer:
		return t.String()
	case error:
		return t.Error()
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Map, reflect.Struct:
		if data, err := json.Marshal(v); err == nil {
			return string(data)
		}
	case reflect.Slice, reflect.Array:
		parts := make([]string, rv.Len())
		for i := range parts {
			parts[i] = stringify(rv.Index(i).Interface())
		}
		return strings.Join(parts, ",")
	case reflect.Pointer:
		if rv.IsNil() {
			return ""
		}
		return stringify(rv.Elem().Interface())
	}
	return fmt.Sprint(v)
}
