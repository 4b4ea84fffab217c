package render

import (
	"context"
	stderrors "errors"
	"io"
	"iter"
	"os"
	"strings"
	"sync"
	"testing"

	"github.com/a-h/templ"
	"github.com/gkampitakis/go-snaps/snaps"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conneroisu/shadowstream/internal/compiler"
	"github.com/conneroisu/shadowstream/internal/element"
	"github.com/conneroisu/shadowstream/internal/errors"
	"github.com/conneroisu/shadowstream/internal/logging"
	"github.com/conneroisu/shadowstream/internal/tpl"
)

func TestMain(m *testing.M) {
	v := m.Run()
	snaps.Clean(m)
	os.Exit(v)
}

var greetingShape = tpl.New("<b>", "</b>")

type greeting struct {
	Name string `prop:"name"`
}

func (g *greeting) Render(context.Context) any { return tpl.HTML(greetingShape, g.Name) }

type styledCard struct {
	Title string `prop:"title"`
}

var cardShape = tpl.New("<div>", "", "</div>")

func (c *styledCard) Render(context.Context) any {
	return tpl.HTML(cardShape, c.Title, tpl.RenderLight())
}

func (c *styledCard) Styles() []string { return []string{":host{display:block}"} }

func (c *styledCard) RenderLight(context.Context) any { return "light" }

func (c *styledCard) ShadowRootOptions() element.ShadowRootOptions {
	return element.ShadowRootOptions{Mode: "closed", DelegatesFocus: true}
}

var nestedShape = tpl.New("<x-greet></x-greet>")

type outer struct{}

func (outer) Render(context.Context) any { return tpl.HTML(nestedShape) }

type failing struct{}

func (failing) Render(context.Context) any { return nil }

func (failing) Connected(context.Context) error { return stderrors.New("no backend") }

var counterShape = tpl.New("<i>", "</i>")

type counter struct {
	Count int `prop:"count"`
}

func (c *counter) Render(context.Context) any { return tpl.HTML(counterShape, c.Count) }

var slotShape = tpl.New("<span>", "</span>")

type emptyLight struct{}

func (emptyLight) Render(context.Context) any { return tpl.HTML(slotShape, tpl.RenderLight()) }

func (emptyLight) RenderLight(context.Context) any { return nil }

func newTestRenderer(t *testing.T) *Renderer {
	t.Helper()
	defs := element.NewDefinitions()
	defs.MustDefine("x-greet", func() any { return &greeting{} })
	defs.MustDefine("x-card", func() any { return &styledCard{} })
	defs.MustDefine("x-outer", func() any { return outer{} })
	defs.MustDefine("x-failing", func() any { return failing{} })
	defs.MustDefine("x-count", func() any { return &counter{Count: 7} })
	defs.MustDefine("x-empty-light", func() any { return emptyLight{} })
	return New(compiler.New(defs, nil, logging.Nop()), nil, logging.Nop())
}

func part(s *tpl.Statics, body string) string {
	return PartOpenFor(s.Digest()) + body + PartClose
}

func child(body string) string {
	return PartOpen + body + PartClose
}

func TestRenderChildValue(t *testing.T) {
	r := newTestRenderer(t)
	s := tpl.New("<p>", "</p>")

	out, err := r.String(context.Background(), tpl.HTML(s, "hi"))
	require.NoError(t, err)
	assert.Equal(t, part(s, "<p>"+child("hi")+"</p>"), out)
}

func TestRenderValues(t *testing.T) {
	r := newTestRenderer(t)
	var nilPtr *greeting

	seq := iter.Seq[any](func(yield func(any) bool) {
		for _, v := range []any{"x", "y"} {
			if !yield(v) {
				return
			}
		}
	})

	tests := []struct {
		name  string
		value any
		want  string
	}{
		{"string is escaped", "a<b & 'c'", child("a&lt;b &amp; &#39;c&#39;")},
		{"nil", nil, child("")},
		{"nothing", tpl.Nothing, child("")},
		{"no change", tpl.NoChange, child("")},
		{"raw", tpl.Unsafe("<i>ok</i>"), child("<i>ok</i>")},
		{"bytes", []byte("<b>"), child("&lt;b&gt;")},
		{"number", 42, child("42")},
		{"bool", true, child("true")},
		{"nil pointer", nilPtr, child("")},
		{"slice", []any{"a", 1}, child(child("a") + child("1"))},
		{"typed slice", []string{"a", "b"}, child(child("a") + child("b"))},
		{"sequence", seq, child(child("x") + child("y"))},
		{"directive", tpl.DirectiveFunc(func() any { return "d" }), child("d")},
		{"templ component", templ.Raw("<em>t</em>"), child("<em>t</em>")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := r.String(context.Background(), tt.value)
			require.NoError(t, err)
			assert.Equal(t, tt.want, out)
		})
	}
}

func TestRenderNestedTemplate(t *testing.T) {
	r := newTestRenderer(t)
	inner := tpl.New("<i>", "</i>")
	outerShape := tpl.New("<div>", "</div>")

	out, err := r.String(context.Background(), tpl.HTML(outerShape, tpl.HTML(inner, "x")))
	require.NoError(t, err)
	assert.Equal(t, part(outerShape, "<div>"+part(inner, "<i>"+child("x")+"</i>")+"</div>"), out)
}

func TestRenderAttributeBindings(t *testing.T) {
	r := newTestRenderer(t)

	tests := []struct {
		name   string
		parts  []string
		values []any
		want   string
	}{
		{
			name:   "single value is escaped",
			parts:  []string{`<a href="`, `">x</a>`},
			values: []any{`/a&b"`},
			want:   `<a href="/a&amp;b&#34;">x</a>`,
		},
		{
			name:   "interpolation",
			parts:  []string{`<div class="a `, ` b `, `"></div>`},
			values: []any{"x", 1},
			want:   `<div class="a x b 1"></div>`,
		},
		{
			name:   "nothing in interpolation removes the attribute",
			parts:  []string{`<div class="a `, ` b `, `"></div>`},
			values: []any{tpl.Nothing, 1},
			want:   `<div ></div>`,
		},
		{
			name:   "nil in interpolation is empty",
			parts:  []string{`<div class="a `, ` b `, `"></div>`},
			values: []any{nil, 1},
			want:   `<div class="a  b 1"></div>`,
		},
		{
			name:   "nil single value",
			parts:  []string{`<div title="`, `"></div>`},
			values: []any{nil},
			want:   `<div title=""></div>`,
		},
		{
			name:   "no change",
			parts:  []string{`<div title="`, `"></div>`},
			values: []any{tpl.NoChange},
			want:   `<div ></div>`,
		},
		{
			name:   "boolean true",
			parts:  []string{`<input ?disabled="`, `">`},
			values: []any{true},
			want:   `<input disabled>`,
		},
		{
			name:   "boolean false",
			parts:  []string{`<input ?disabled="`, `">`},
			values: []any{false},
			want:   `<input >`,
		},
		{
			name:   "event never renders",
			parts:  []string{`<button @click="`, `">go</button>`},
			values: []any{func() {}},
			want:   `<button >go</button>`,
		},
		{
			name:   "reflected property",
			parts:  []string{`<div .className="`, `"></div>`},
			values: []any{"big"},
			want:   `<div class="big"></div>`,
		},
		{
			name:   "unreflected property",
			parts:  []string{`<div .foo="`, `"></div>`},
			values: []any{1},
			want:   `<div ></div>`,
		},
		{
			name:   "directive is resolved",
			parts:  []string{`<div title="`, `"></div>`},
			values: []any{tpl.DirectiveFunc(func() any { return "t" })},
			want:   `<div title="t"></div>`,
		},
		{
			name:   "element binding",
			parts:  []string{`<div `, `></div>`},
			values: []any{"ref"},
			want:   `<div ></div>`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := tpl.New(tt.parts...)
			out, err := r.String(context.Background(), tpl.HTML(s, tt.values...))
			require.NoError(t, err)
			assert.Equal(t, part(s, "<!--tpl-node:0-->"+tt.want), out)
		})
	}
}

func TestRenderComponent(t *testing.T) {
	r := newTestRenderer(t)
	s := tpl.New(`<x-greet name="`, `"></x-greet>`)

	var tags []string
	out, err := r.String(context.Background(), tpl.HTML(s, "Ada"),
		WithElementRendered(func(tag string) { tags = append(tags, tag) }))
	require.NoError(t, err)

	shadow := `<template shadowroot="open" shadowrootmode="open">` +
		part(greetingShape, "<b>"+child("Ada")+"</b>") +
		`</template>`
	assert.Equal(t, part(s, `<!--tpl-node:0--><x-greet  name="Ada">`+shadow+`</x-greet>`), out)
	assert.Equal(t, []string{"x-greet"}, tags)
}

func TestRenderComponentStaticAttributes(t *testing.T) {
	r := newTestRenderer(t)
	s := tpl.New(`<x-greet title="hi" name="Bo"></x-greet>`)

	out, err := r.String(context.Background(), tpl.HTML(s))
	require.NoError(t, err)
	assert.Contains(t, out, `title="hi"`)
	assert.Contains(t, out, `name="Bo"`)
	assert.Contains(t, out, child("Bo"))
	assert.NotContains(t, out, "<!--tpl-node")
}

func TestRenderComponentProperty(t *testing.T) {
	r := newTestRenderer(t)
	s := tpl.New(`<x-greet .name="`, `"></x-greet>`)

	out, err := r.String(context.Background(), tpl.HTML(s, "Cy"))
	require.NoError(t, err)
	assert.Contains(t, out, child("Cy"))
	assert.NotContains(t, out, `name="Cy"`)
}

func TestRenderShadowOptionsStylesAndLight(t *testing.T) {
	r := newTestRenderer(t)
	s := tpl.New(`<x-card title="T"></x-card>`)

	out, err := r.String(context.Background(), tpl.HTML(s))
	require.NoError(t, err)
	assert.Contains(t, out,
		`<template shadowroot="closed" shadowrootmode="closed" shadowrootdelegatesfocus><style>:host{display:block}</style>`)
	assert.Contains(t, out, "<div>"+child("T")+child("light")+child("")+"</div>")
}

func TestRenderNestedComponentDefersHydration(t *testing.T) {
	r := newTestRenderer(t)
	s := tpl.New(`<x-outer></x-outer>`)

	out, err := r.String(context.Background(), tpl.HTML(s))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, PartOpenFor(s.Digest())+"<x-outer>"), out)
	assert.Contains(t, out, PartOpenFor(nestedShape.Digest())+`<!--tpl-node:0--><x-greet defer-hydration>`)
}

func TestRenderDeferHydrationOption(t *testing.T) {
	r := newTestRenderer(t)
	s := tpl.New(`<x-greet></x-greet>`)

	out, err := r.String(context.Background(), tpl.HTML(s))
	require.NoError(t, err)
	assert.Contains(t, out, "<x-greet><template")

	out, err = r.String(context.Background(), tpl.HTML(s), WithDeferHydration(true))
	require.NoError(t, err)
	assert.Contains(t, out, "<x-greet defer-hydration><template")
	assert.NotContains(t, out, "<!--tpl-node")
}

func TestRenderUndefinedElementIsOpaque(t *testing.T) {
	r := newTestRenderer(t)
	s := tpl.New(`<x-unknown attr="1"></x-unknown>`)
	diags := errors.NewCollector()

	out, err := r.String(context.Background(), tpl.HTML(s), WithDiagnostics(diags))
	require.NoError(t, err)
	assert.Equal(t, part(s, `<x-unknown attr="1"></x-unknown>`), out)
	assert.False(t, diags.HasDiagnostics())
}

func TestRenderUnmatchedElementFallsBack(t *testing.T) {
	r := newTestRenderer(t)
	s := tpl.New(`<x-greet attr="1"></x-greet>`)
	diags := errors.NewCollector()

	out, err := r.String(context.Background(), tpl.HTML(s),
		WithRegistry(element.NewRegistry(logging.Nop())),
		WithDiagnostics(diags))
	require.NoError(t, err)
	assert.Contains(t, out, `attr="1"`)
	assert.NotContains(t, out, "<template")

	got := diags.ByTag("x-greet")
	require.Len(t, got, 1)
	assert.Equal(t, errors.ErrCodeFallback, got[0].Code)
	assert.Equal(t, errors.ErrorSeverityWarning, got[0].Severity)
}

func TestRenderClientOnlySkipsShadow(t *testing.T) {
	r := newTestRenderer(t)
	s := tpl.New(`<x-greet client-only name="`, `"></x-greet>`)
	diags := errors.NewCollector()

	out, err := r.String(context.Background(), tpl.HTML(s, "Ada"), WithDiagnostics(diags))
	require.NoError(t, err)
	assert.Contains(t, out, "client-only")
	assert.Contains(t, out, `name="Ada"`)
	assert.NotContains(t, out, "<template")
	assert.False(t, diags.HasDiagnostics())
}

func TestRenderConnectErrorIsFatal(t *testing.T) {
	r := newTestRenderer(t)

	_, err := r.String(context.Background(), tpl.HTML(tpl.New(`<x-failing></x-failing>`)))
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrCodeConnect))
	assert.Contains(t, err.Error(), "no backend")
}

func TestRenderUndecodableAttributeIsDiagnosed(t *testing.T) {
	r := newTestRenderer(t)
	s := tpl.New(`<x-count count="abc"></x-count>`)
	diags := errors.NewCollector()

	out, err := r.String(context.Background(), tpl.HTML(s), WithDiagnostics(diags))
	require.NoError(t, err)
	assert.Contains(t, out, `count="abc"`)
	assert.Contains(t, out, "<i>"+child("7")+"</i>")
	assert.True(t, strings.HasSuffix(out, "</x-count>"+PartClose))

	got := diags.ByTag("x-count")
	require.Len(t, got, 1)
	assert.Equal(t, errors.ErrCodeBindingDecode, got[0].Code)
	assert.Equal(t, errors.ErrorSeverityWarning, got[0].Severity)
	assert.Contains(t, got[0].Message, "attribute count")
}

func TestRenderUndecodablePropertyKeepsField(t *testing.T) {
	r := newTestRenderer(t)
	s := tpl.New(`<x-count .count="`, `"></x-count>`)
	diags := errors.NewCollector()

	out, err := r.String(context.Background(), tpl.HTML(s, []string{"x"}), WithDiagnostics(diags))
	require.NoError(t, err)
	assert.Contains(t, out, "<i>"+child("7")+"</i>")
	require.Len(t, diags.ByTag("x-count"), 1)
	assert.Contains(t, diags.ByTag("x-count")[0].Message, "property count")
}

func TestRenderEmptyLightContent(t *testing.T) {
	r := newTestRenderer(t)

	out, err := r.String(context.Background(), tpl.HTML(tpl.New(`<x-empty-light></x-empty-light>`)))
	require.NoError(t, err)
	assert.Contains(t, out, "<span>"+child("")+"</span>")
	assert.NotContains(t, out, PartOpen+PartClose+PartOpen+PartClose)
}

func TestRenderValueCountMismatch(t *testing.T) {
	r := newTestRenderer(t)
	s := tpl.New("<p>", "</p>")

	_, err := r.String(context.Background(), tpl.HTML(s))
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrValueCount)
	assert.True(t, errors.IsInternal(err))

	_, err = r.String(context.Background(), tpl.HTML(s, "a", "b"))
	assert.ErrorIs(t, err, errors.ErrValueCount)
}

func TestRenderValueCountMismatchEmitsNothing(t *testing.T) {
	r := newTestRenderer(t)
	s := tpl.New("<p>", "</p>")

	collect := func(value any) ([]string, error) {
		var fragments []string
		for fragment, err := range r.Seq(context.Background(), value) {
			if err != nil {
				return fragments, err
			}
			fragments = append(fragments, fragment)
		}
		return fragments, nil
	}

	fragments, err := collect(tpl.HTML(s, "a", "extra"))
	assert.ErrorIs(t, err, errors.ErrValueCount)
	assert.Empty(t, fragments)

	// A nested mismatch stops before the inner shape's part opens.
	outer := tpl.New("<div>", "</div>")
	fragments, err = collect(tpl.HTML(outer, tpl.HTML(s)))
	assert.ErrorIs(t, err, errors.ErrValueCount)
	assert.NotContains(t, strings.Join(fragments, ""), PartOpenFor(s.Digest()))
	assert.NotContains(t, strings.Join(fragments, ""), "<p>")
}

func TestRenderNilShapeResult(t *testing.T) {
	r := newTestRenderer(t)

	_, err := r.String(context.Background(), tpl.Result{Values: []any{"x"}})
	assert.True(t, errors.HasCode(err, errors.ErrCodeNilTemplate))

	_, err = r.String(context.Background(), &tpl.Result{})
	assert.True(t, errors.HasCode(err, errors.ErrCodeNilTemplate))
}

func TestRenderCompileError(t *testing.T) {
	r := newTestRenderer(t)

	_, err := r.String(context.Background(), tpl.HTML(tpl.New("<", "></x>"), "div"))
	require.Error(t, err)
	assert.True(t, errors.IsCompile(err))
	assert.True(t, errors.HasCode(err, errors.ErrCodeDynamicTag))
}

func TestRenderDepthLimit(t *testing.T) {
	r := newTestRenderer(t)
	s := tpl.New("<i>", "</i>")

	var loop tpl.DirectiveFunc
	loop = func() any { return tpl.HTML(s, loop) }

	_, err := r.String(context.Background(), loop, WithMaxDepth(3))
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrCodeDepthExceeded))
}

func TestRenderSuspendsOnPromise(t *testing.T) {
	r := newTestRenderer(t)
	p, settle := tpl.NewPromise()

	stream := r.Render(context.Background(), []any{"a", p, "b"})
	defer stream.Close()

	var fragments []string
	for {
		fragment, err := stream.Next()
		require.NoError(t, err)
		fragments = append(fragments, fragment)
		if fragment == "a" {
			break
		}
	}
	assert.False(t, p.Settled())

	settle("later", nil)
	rest, err := Collect(stream)
	require.NoError(t, err)

	out := strings.Join(fragments, "") + rest
	assert.Equal(t, child(child("a")+child(child("later"))+child("b")), out)
}

func TestRenderPromiseRejected(t *testing.T) {
	r := newTestRenderer(t)

	out, err := r.String(context.Background(), []any{"a", tpl.Rejected(stderrors.New("boom"))})
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrPromiseRejected)
	assert.Contains(t, err.Error(), "boom")
	assert.Contains(t, out, "a")
}

func TestRenderPromiseCanceled(t *testing.T) {
	r := newTestRenderer(t)
	p, _ := tpl.NewPromise()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := r.String(ctx, p)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestStreamLifecycle(t *testing.T) {
	r := newTestRenderer(t)

	stream := r.Render(context.Background(), []any{"a", "b"})
	fragment, err := stream.Next()
	require.NoError(t, err)
	assert.Equal(t, PartOpen, fragment)

	stream.Close()
	stream.Close()
	_, err = stream.Next()
	assert.Equal(t, io.EOF, err)

	failed := r.Render(context.Background(), tpl.HTML(tpl.New("<p>", "</p>")))
	_, err = Collect(failed)
	require.Error(t, err)
	_, again := failed.Next()
	assert.Equal(t, err, again)
}

func TestRendererConcurrentUse(t *testing.T) {
	r := newTestRenderer(t)
	s := tpl.New(`<x-greet name="`, `"></x-greet>`)

	want, err := r.String(context.Background(), tpl.HTML(s, "Ada"))
	require.NoError(t, err)

	var wg sync.WaitGroup
	results := make([]string, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], _ = r.String(context.Background(), tpl.HTML(s, "Ada"))
		}(i)
	}
	wg.Wait()

	for _, got := range results {
		assert.Equal(t, want, got)
	}
	// the page shape and the greeting's shadow shape
	assert.Equal(t, 2, r.Compiler().Cache().Len())
}

func TestTemplComponent(t *testing.T) {
	r := newTestRenderer(t)
	s := tpl.New("<p>", "</p>")

	var buf strings.Builder
	err := Component(r, tpl.HTML(s, "hi")).Render(context.Background(), &buf)
	require.NoError(t, err)

	want, err := r.String(context.Background(), tpl.HTML(s, "hi"))
	require.NoError(t, err)
	assert.Equal(t, want, buf.String())
}

func TestRenderSnapshot(t *testing.T) {
	r := newTestRenderer(t)
	item := tpl.New(`<li class="`, `">`, `</li>`)
	page := tpl.New(`<main><h1>`, `</h1><ul>`, `</ul>`, `</main>`)

	items := []any{
		tpl.HTML(item, "first", "one"),
		tpl.HTML(item, tpl.Nothing, "two"),
	}
	out, err := r.String(context.Background(), tpl.HTML(page,
		"Title & more", items, tpl.HTML(tpl.New(`<x-card title="`, `"></x-card>`), "card")))
	require.NoError(t, err)

	snaps.MatchSnapshot(t, out)
}
