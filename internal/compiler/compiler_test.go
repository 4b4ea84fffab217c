package compiler

import (
	"context"
	"slices"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/conneroisu/shadowstream/internal/element"
	"github.com/conneroisu/shadowstream/internal/errors"
	"github.com/conneroisu/shadowstream/internal/tpl"
)

type fooElement struct {
	Prop string `prop:"prop"`
}

func (f *fooElement) Render(context.Context) any { return f.Prop }

func kinds(p *Program) []Kind {
	out := make([]Kind, len(p.Ops))
	for i, op := range p.Ops {
		out[i] = op.Kind
	}
	return out
}

// parsedIndexes parses markup as template content, the way the client does,
// and returns the depth-first node index of each child marker and of each
// element carrying a bound attribute.
func parsedIndexes(t *testing.T, markup string) (children, elements []int) {
	t.Helper()
	tmpl := &html.Node{Type: html.ElementNode, Data: "template", DataAtom: atom.Template}
	nodes, err := html.ParseFragment(strings.NewReader(markup), tmpl)
	require.NoError(t, err)

	index := 0
	bound := func(a html.Attribute) bool {
		return strings.HasSuffix(a.Key, boundAttributeSuffix) || strings.HasPrefix(a.Key, marker)
	}
	var visit func(n *html.Node)
	visit = func(n *html.Node) {
		switch n.Type {
		case html.CommentNode:
			if n.Data == markerMatch {
				children = append(children, index)
			}
			index++
		case html.ElementNode:
			if slices.ContainsFunc(n.Attr, bound) {
				elements = append(elements, index)
			}
			index++
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			visit(c)
		}
	}
	for _, n := range nodes {
		visit(n)
	}
	return children, elements
}

// opIndexes returns the node indexes the program assigns to child parts and
// to elements with bound attributes.
func opIndexes(p *Program) (children, elements []int) {
	for _, op := range p.Ops {
		switch {
		case op.Kind == ChildPart:
			children = append(children, op.Index)
		case op.Kind == PossibleNodeMarker && op.BoundAttributes > 0:
			elements = append(elements, op.Index)
		}
	}
	return children, elements
}

func TestCompileChildPart(t *testing.T) {
	p, err := Compile(tpl.New("<p>", "</p>"), nil)
	require.NoError(t, err)

	assert.Equal(t, []Op{
		{Kind: Text, Text: "<p>"},
		{Kind: ChildPart, Index: 1},
		{Kind: Text, Text: "</p>"},
	}, p.Ops)
	assert.Equal(t, 1, p.Slots)
	assert.NotEmpty(t, p.Digest)
}

func TestCompileStaticOnly(t *testing.T) {
	p, err := Compile(tpl.New(`<div class="a">static &amp; text</div>`), nil)
	require.NoError(t, err)

	require.Len(t, p.Ops, 1)
	assert.Equal(t, `<div class="a">static &amp; text</div>`, p.Ops[0].Text)
	assert.Equal(t, 0, p.Slots)
}

func TestCompileAdjacentChildParts(t *testing.T) {
	p, err := Compile(tpl.New("<p>", "", "</p>"), nil)
	require.NoError(t, err)

	assert.Equal(t, []Op{
		{Kind: Text, Text: "<p>"},
		{Kind: ChildPart, Index: 1},
		{Kind: ChildPart, Index: 2},
		{Kind: Text, Text: "</p>"},
	}, p.Ops)
}

func TestCompileCommentsAdvanceNodeIndex(t *testing.T) {
	p, err := Compile(tpl.New("<!-- note --><ul><li>", "</li></ul>"), nil)
	require.NoError(t, err)

	require.Equal(t, []Kind{Text, ChildPart, Text}, kinds(p))
	assert.Equal(t, 3, p.Ops[1].Index, "comment, ul and li precede the marker")
}

func TestCompileAttributeBindings(t *testing.T) {
	s := tpl.New(`<div class="a `, ` b" ?hidden=`, ` .className=`, ` @click=`, `></div>`)
	p, err := Compile(s, nil)
	require.NoError(t, err)

	require.Equal(t, []Kind{
		PossibleNodeMarker,
		Text, AttributePart,
		Text, AttributePart,
		Text, AttributePart,
		Text, AttributePart,
		Text,
	}, kinds(p))

	assert.Equal(t, 4, p.Ops[0].BoundAttributes)
	assert.Equal(t, "<div ", p.Ops[1].Text)

	class := p.Ops[2]
	assert.Equal(t, "class", class.Name)
	assert.Equal(t, BindAttribute, class.Binding)
	assert.Equal(t, []string{"a ", " b"}, class.Strings)
	assert.Equal(t, "div", class.TagName)
	assert.False(t, class.UseInstance)

	assert.Equal(t, BindBoolean, p.Ops[4].Binding)
	assert.Equal(t, "hidden", p.Ops[4].Name)
	assert.Equal(t, BindProperty, p.Ops[6].Binding)
	assert.Equal(t, "className", p.Ops[6].Name, "property names keep their case")
	assert.Equal(t, BindEvent, p.Ops[8].Binding)
	assert.Equal(t, "></div>", p.Ops[9].Text)

	for _, op := range p.Ops {
		if op.Kind == AttributePart {
			assert.Equal(t, 0, op.Index)
		}
	}
}

func TestCompileInterpolatedAttribute(t *testing.T) {
	p, err := Compile(tpl.New(`<a href="/`, `/`, `">x</a>`), nil)
	require.NoError(t, err)

	var part Op
	for _, op := range p.Ops {
		if op.Kind == AttributePart {
			part = op
		}
	}
	assert.Equal(t, []string{"/", "/", ""}, part.Strings)
	assert.Equal(t, 2, part.Values())
	assert.Equal(t, 2, p.Slots)
}

func TestCompileElementPart(t *testing.T) {
	p, err := Compile(tpl.New("<div ", "></div>"), nil)
	require.NoError(t, err)

	assert.Equal(t, []Op{
		{Kind: PossibleNodeMarker, Index: 0, BoundAttributes: 1},
		{Kind: Text, Text: "<div "},
		{Kind: ElementPart, Index: 0},
		{Kind: Text, Text: "></div>"},
	}, p.Ops)
}

func TestCompileVoidElements(t *testing.T) {
	p, err := Compile(tpl.New(`<input value=`, `><br><p>`, `</p>`), nil)
	require.NoError(t, err)

	var child Op
	for _, op := range p.Ops {
		if op.Kind == ChildPart {
			child = op
		}
	}
	// input=0, br=1, p=2, marker=3
	assert.Equal(t, 3, child.Index)
}

func TestCompileComponent(t *testing.T) {
	defs := element.NewDefinitions()
	def := defs.MustDefine("x-foo", func() any { return &fooElement{} })

	s := tpl.New(`<x-foo static="1" .prop=`, `><span>`, `</span></x-foo>`)
	p, err := Compile(s, defs)
	require.NoError(t, err)

	require.Equal(t, []Kind{
		PossibleNodeMarker,
		ComponentOpen,
		Text,
		AttributePart,
		ComponentAttributes,
		Text,
		ComponentShadow,
		Text,
		ChildPart,
		ComponentClose,
		Text,
	}, kinds(p))

	assert.Equal(t, 1, p.Ops[0].BoundAttributes)

	open := p.Ops[1]
	assert.Equal(t, "x-foo", open.TagName)
	assert.Same(t, def, open.Definition)
	assert.Equal(t, []element.Attribute{{Name: "static", Value: "1"}}, open.StaticAttributes)

	assert.Equal(t, "<x-foo  ", p.Ops[2].Text, "static attributes are cut from the text")
	assert.True(t, p.Ops[3].UseInstance)
	assert.Equal(t, ">", p.Ops[5].Text)
	assert.Equal(t, "<span>", p.Ops[7].Text)
	assert.Equal(t, 2, p.Ops[8].Index)
	assert.False(t, p.Ops[8].UseInstance, "the marker's parent is the span")
	assert.Equal(t, "</span></x-foo>", p.Ops[10].Text)
}

func TestCompileComponentChildUsesInstance(t *testing.T) {
	defs := element.NewDefinitions()
	defs.MustDefine("x-foo", func() any { return &fooElement{} })

	p, err := Compile(tpl.New("<x-foo>", "</x-foo>"), defs)
	require.NoError(t, err)

	for _, op := range p.Ops {
		if op.Kind == ChildPart {
			assert.True(t, op.UseInstance)
		}
	}
}

func TestCompileUndefinedCustomElementIsText(t *testing.T) {
	p, err := Compile(tpl.New(`<x-unknown attr="1"></x-unknown>`), element.NewDefinitions())
	require.NoError(t, err)

	require.Len(t, p.Ops, 1)
	assert.Equal(t, `<x-unknown attr="1"></x-unknown>`, p.Ops[0].Text)
}

func TestCompileUnclosedComponentClosesAtEOF(t *testing.T) {
	defs := element.NewDefinitions()
	defs.MustDefine("x-foo", func() any { return &fooElement{} })

	p, err := Compile(tpl.New(`<div><x-foo>`), defs)
	require.NoError(t, err)
	assert.Equal(t, ComponentClose, p.Ops[len(p.Ops)-1].Kind)
}

func TestCompileMismatchedEndTagClosesComponent(t *testing.T) {
	defs := element.NewDefinitions()
	defs.MustDefine("x-foo", func() any { return &fooElement{} })

	p, err := Compile(tpl.New(`<p><x-foo></p>after`), defs)
	require.NoError(t, err)

	closeAt := -1
	for i, op := range p.Ops {
		if op.Kind == ComponentClose {
			closeAt = i
		}
	}
	require.NotEqual(t, -1, closeAt)
	assert.Equal(t, "</p>after", p.Ops[len(p.Ops)-1].Text)
}

func TestCompileErrors(t *testing.T) {
	tests := []struct {
		name  string
		parts []string
		code  string
	}{
		{"dynamic tag name", []string{"<", "></div>"}, errors.ErrCodeDynamicTag},
		{"dynamic closing tag", []string{"<p></", ">"}, errors.ErrCodeDynamicTag},
		{"binding in script", []string{"<script>", "</script>"}, errors.ErrCodeRawTextBinding},
		{"binding in textarea", []string{"<textarea>", "</textarea>"}, errors.ErrCodeRawTextBinding},
		{"binding in title", []string{"<title>", "</title>"}, errors.ErrCodeRawTextBinding},
		{"element moved out of table", []string{"<table><div>", "</div></table>"}, errors.ErrCodeTemplateSyntax},
		{"binding on body", []string{`<body class="`, `"></body>`}, errors.ErrCodeTemplateSyntax},
		{"binding in comment", []string{"<!-- ", " -->"}, errors.ErrCodeTemplateSyntax},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Compile(tpl.New(tt.parts...), nil)
			require.Error(t, err)
			assert.True(t, errors.IsCompile(err))
			assert.True(t, errors.HasCode(err, tt.code), err.Error())
		})
	}
}

func TestCompileBindingAfterRawTextElement(t *testing.T) {
	p, err := Compile(tpl.New("<style>p{}</style><p>", "</p>"), nil)
	require.NoError(t, err)
	assert.Equal(t, []Kind{Text, ChildPart, Text}, kinds(p))
	assert.Equal(t, 2, p.Ops[1].Index)
}

func TestCompileImpliedElementsMatchParser(t *testing.T) {
	tests := []struct {
		name  string
		parts []string
		want  []int
	}{
		{"tbody implied by tr", []string{"<table><tr><td>", "</td></tr></table>"}, []int{4}},
		{"tbody and tr implied by td", []string{"<table><td>", "</td></table>"}, []int{4}},
		{"explicit tbody", []string{"<table><tbody><tr><td>", "</td></tr></tbody></table>"}, []int{4}},
		{"colgroup implied by col", []string{"<table><col><tr><td>", "</td></tr></table>"}, []int{6}},
		{"after table", []string{"<table><tr></tr></table><p>", "</p>"}, []int{4}},
		{"second body after explicit tbody", []string{"<table><tbody></tbody><tr><td>", "</td></tr></table>"}, []int{5}},
		{"rows across cells", []string{"<table><tr><td>a<td>", "<tr><td>", "</table>"}, []int{5, 8}},
		{"row outside a table", []string{"<tr><td>", "</td></tr>"}, []int{2}},
		{"document tags are dropped", []string{"<html><body><p>", "</p></body></html>"}, []int{1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := Compile(tpl.New(tt.parts...), nil)
			require.NoError(t, err)

			children, _ := opIndexes(p)
			assert.Equal(t, tt.want, children)

			parsed, _ := parsedIndexes(t, p.Markup)
			assert.Equal(t, parsed, children)
		})
	}
}

func TestCompileBoundElementsMatchParser(t *testing.T) {
	p, err := Compile(tpl.New(`<table><tr class="`, `"><td `, `>`, `</td></tr></table><a href="`, `">x</a>`), nil)
	require.NoError(t, err)

	children, elements := opIndexes(p)
	parsedChildren, parsedElements := parsedIndexes(t, p.Markup)
	assert.Equal(t, []int{2, 3, 5}, elements)
	assert.Equal(t, parsedElements, elements)
	assert.Equal(t, parsedChildren, children)
}

func TestCompileNilStatics(t *testing.T) {
	_, err := Compile(nil, nil)
	assert.True(t, errors.HasCode(err, errors.ErrCodeNilTemplate))

	_, err = New(nil, nil, nil).Compile(nil)
	assert.True(t, errors.HasCode(err, errors.ErrCodeNilTemplate))
}

func TestScanAttributes(t *testing.T) {
	raw := `<a href=/x/y title='it&#39;s' data-x = "1" disabled/>`
	attrs := scanAttributes(raw)
	require.Len(t, attrs, 4)

	assert.Equal(t, "href", attrs[0].Name)
	assert.Equal(t, "/x/y", attrs[0].Value)
	assert.Equal(t, "href=/x/y", raw[attrs[0].Start:attrs[0].End])

	assert.Equal(t, "it's", attrs[1].Value)
	assert.Equal(t, `data-x = "1"`, raw[attrs[2].Start:attrs[2].End])
	assert.Equal(t, "disabled", attrs[3].Name)
	assert.Equal(t, "", attrs[3].Value)
}

func TestCompilerCachesByIdentity(t *testing.T) {
	c := New(nil, nil, nil)
	a := tpl.New("<p>", "</p>")
	b := tpl.New("<p>", "</p>")

	p1, err := c.Compile(a)
	require.NoError(t, err)
	p2, err := c.Compile(a)
	require.NoError(t, err)
	assert.Same(t, p1, p2)

	p3, err := c.Compile(b)
	require.NoError(t, err)
	assert.NotSame(t, p1, p3, "equal text, different shape")
	assert.Equal(t, p1.Ops, p3.Ops)

	stats := c.Cache().Stats()
	assert.Equal(t, 2, stats.Entries)
	assert.Equal(t, int64(1), stats.Hits)
	assert.Equal(t, int64(2), stats.Misses)
}

func TestCompilerConcurrentFirstCompile(t *testing.T) {
	c := New(nil, nil, nil)
	s := tpl.New("<p>", "</p>")

	var wg sync.WaitGroup
	programs := make([]*Program, 16)
	for i := range programs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			p, err := c.Compile(s)
			assert.NoError(t, err)
			programs[i] = p
		}(i)
	}
	wg.Wait()

	for _, p := range programs {
		assert.Same(t, programs[0], p)
	}
}

func TestCacheLoadOrStoreFirstWins(t *testing.T) {
	cache := NewCache(0)
	s := tpl.New("x")
	first, second := &Program{}, &Program{}

	got, loaded := cache.LoadOrStore(s, first)
	assert.False(t, loaded)
	assert.Same(t, first, got)

	got, loaded = cache.LoadOrStore(s, second)
	assert.True(t, loaded)
	assert.Same(t, first, got)
}

func TestCacheLRUEviction(t *testing.T) {
	cache := NewCache(2)
	a, b, c := tpl.New("a"), tpl.New("b"), tpl.New("c")

	cache.LoadOrStore(a, &Program{})
	cache.LoadOrStore(b, &Program{})
	_, _ = cache.Get(a) // a is now most recent
	cache.LoadOrStore(c, &Program{})

	_, ok := cache.Get(b)
	assert.False(t, ok, "least recently used entry is evicted")
	_, ok = cache.Get(a)
	assert.True(t, ok)
	assert.Equal(t, int64(1), cache.Stats().Evictions)
	assert.Equal(t, 2, cache.Len())
}

func TestCacheForget(t *testing.T) {
	cache := NewCache(0)
	s := tpl.New("a")
	cache.LoadOrStore(s, &Program{})
	cache.Forget(s)

	_, ok := cache.Get(s)
	assert.False(t, ok)
	assert.Equal(t, 0, cache.Len())
}

func TestOpString(t *testing.T) {
	assert.Equal(t, `TEXT "<p>"`, Op{Kind: Text, Text: "<p>"}.String())
	assert.Equal(t, "CHILD_PART index=1", Op{Kind: ChildPart, Index: 1}.String())
	assert.Equal(t, "KIND(42)", Kind(42).String())
	assert.True(t, strings.HasPrefix(Op{Kind: AttributePart, Strings: []string{"", ""}}.String(), "ATTRIBUTE_PART"))
}
