// Package compiler turns a template shape into a Program: a flat list of
// ops that emit static markup verbatim and mark where dynamic values,
// bound attributes and custom elements go.
//
// The static parts are joined into one markup string with placeholders in
// binding positions, tokenized, and walked in document order. Static text is
// always sliced from that string by offset, never re-serialized, so the
// server writes exactly the bytes the template author wrote.
package compiler

import (
	"context"
	"fmt"
	"io"
	"slices"
	"strings"

	"golang.org/x/net/html"

	"github.com/conneroisu/shadowstream/internal/element"
	"github.com/conneroisu/shadowstream/internal/errors"
	"github.com/conneroisu/shadowstream/internal/logging"
	"github.com/conneroisu/shadowstream/internal/tpl"
)

// Compiler compiles template shapes through a Cache. Custom elements must
// be defined before the first template that contains them is compiled.
type Compiler struct {
	definitions *element.Definitions
	cache       *Cache
	logger      logging.Logger
}

// New creates a compiler. A nil cache gets an unbounded one.
func New(definitions *element.Definitions, cache *Cache, logger logging.Logger) *Compiler {
	if cache == nil {
		cache = NewCache(0)
	}
	if definitions == nil {
		definitions = element.NewDefinitions()
	}
	if logger == nil {
		logger = logging.Nop()
	}
	return &Compiler{
		definitions: definitions,
		cache:       cache,
		logger:      logger.WithComponent("compiler"),
	}
}

// Definitions returns the custom element definitions the compiler consults.
func (c *Compiler) Definitions() *element.Definitions { return c.definitions }

// Cache returns the program cache.
func (c *Compiler) Cache() *Cache { return c.cache }

// Compile returns the program for s, compiling it on first use. Later calls
// with the same *tpl.Statics return the same *Program.
func (c *Compiler) Compile(s *tpl.Statics) (*Program, error) {
	if s == nil {
		return nil, errors.NewCompileError(errors.ErrCodeNilTemplate, "nil template statics")
	}
	if p, ok := c.cache.Get(s); ok {
		return p, nil
	}

	p, err := Compile(s, c.definitions)
	if err != nil {
		c.logger.Error(context.Background(), err, "Template compilation failed", "parts", s.Len())
		return nil, err
	}

	actual, loaded := c.cache.LoadOrStore(s, p)
	if !loaded {
		c.logger.Debug(context.Background(), "Compiled template",
			"digest", p.Digest,
			"ops", len(p.Ops),
			"slots", p.Slots)
	}
	return actual, nil
}

// Compile compiles s without caching.
func Compile(s *tpl.Statics, definitions *element.Definitions) (*Program, error) {
	if s == nil {
		return nil, errors.NewCompileError(errors.ErrCodeNilTemplate, "nil template statics")
	}
	asm, err := assemble(s)
	if err != nil {
		return nil, err
	}

	w := &walker{
		markup:      asm.markup,
		attrNames:   asm.attrNames,
		definitions: definitions,
	}
	if err := w.walk(); err != nil {
		return nil, err
	}

	consumed := 0
	for _, op := range w.ops {
		consumed += op.Values()
	}
	if consumed != s.Slots() {
		return nil, errors.NewCompileError(errors.ErrCodeTemplateSyntax,
			fmt.Sprintf("template has %d bindings but only %d are in supported positions", s.Slots(), consumed))
	}

	return &Program{
		Statics: s,
		Ops:     w.ops,
		Markup:  asm.markup,
		Digest:  s.Digest(),
		Slots:   s.Slots(),
	}, nil
}

type frame struct {
	tag       string
	component bool
}

type walker struct {
	markup      string
	attrNames   []string
	attrIndex   int
	definitions *element.Definitions

	ops        []Op
	lastOffset int
	nodeIndex  int
	stack      []frame
}

func (w *walker) walk() error {
	z := html.NewTokenizer(strings.NewReader(w.markup))
	offset := 0

	for {
		tt := z.Next()
		// Raw is only valid until the tokenizer is touched again.
		raw := string(z.Raw())
		start := offset
		offset += len(raw)

		switch tt {
		case html.ErrorToken:
			if err := z.Err(); err != io.EOF {
				return errors.NewCompileError(errors.ErrCodeTemplateSyntax, err.Error()).WithOffset(start)
			}
			w.closeFrames(0)
			w.flushTo(len(w.markup))
			return nil

		case html.CommentToken:
			if raw == "</>" {
				continue
			}
			if raw == nodeMarker {
				w.flushTo(start)
				if err := w.skipTo(offset); err != nil {
					return err
				}
				w.ops = append(w.ops, Op{
					Kind:        ChildPart,
					Index:       w.nodeIndex,
					UseInstance: w.inComponent(),
				})
			}
			w.nodeIndex++

		case html.StartTagToken, html.SelfClosingTagToken:
			name, _ := z.TagName()
			if err := w.startTag(string(name), raw, start, offset); err != nil {
				return err
			}

		case html.EndTagToken:
			name, _ := z.TagName()
			w.endTag(string(name))
		}
	}
}

func (w *walker) startTag(tag, raw string, start, end int) error {
	attrs := scanAttributes(raw)

	if documentElements[tag] {
		// Template content drops these; they produce no node to index.
		for _, a := range attrs {
			if a.bound() {
				return errors.NewCompileError(errors.ErrCodeTemplateSyntax,
					fmt.Sprintf("bindings on <%s> are not supported", tag)).WithOffset(start)
			}
		}
		return nil
	}
	if err := w.fixTableStructure(tag, start); err != nil {
		return err
	}

	var def *element.Definition
	if strings.Contains(tag, "-") && w.definitions != nil {
		def, _ = w.definitions.Get(tag)
	}
	component := def != nil

	bound := 0
	var static []element.Attribute
	for _, a := range attrs {
		if a.bound() {
			bound++
		} else {
			static = append(static, element.Attribute{Name: strings.ToLower(a.Name), Value: a.Value})
		}
	}

	if bound > 0 || component {
		w.flushTo(start)
		w.ops = append(w.ops, Op{
			Kind:            PossibleNodeMarker,
			Index:           w.nodeIndex,
			BoundAttributes: bound,
		})
	}
	if component {
		w.ops = append(w.ops, Op{
			Kind:             ComponentOpen,
			TagName:          tag,
			Definition:       def,
			StaticAttributes: static,
		})
	}

	for _, a := range attrs {
		switch {
		case a.bound():
			if w.attrIndex >= len(w.attrNames) {
				return errors.NewInternalError(errors.ErrCodeTemplateSyntax,
					fmt.Sprintf("bound attribute %q has no recorded name", a.Name), nil)
			}
			name := w.attrNames[w.attrIndex]
			w.attrIndex++

			w.flushTo(start + a.Start)
			if a.attributeBinding() {
				binding, caseName := bindingFor(name)
				w.ops = append(w.ops, Op{
					Kind:        AttributePart,
					Index:       w.nodeIndex,
					Name:        caseName,
					Binding:     binding,
					Strings:     strings.Split(a.Value, marker),
					TagName:     tag,
					UseInstance: component,
				})
			} else {
				w.ops = append(w.ops, Op{Kind: ElementPart, Index: w.nodeIndex})
			}
			if err := w.skipTo(start + a.End); err != nil {
				return err
			}
		case component:
			// static attributes are rendered back out by the element renderer
			w.flushTo(start + a.Start)
			if err := w.skipTo(start + a.End); err != nil {
				return err
			}
		}
	}

	if component {
		w.flushTo(end - 1)
		w.ops = append(w.ops, Op{Kind: ComponentAttributes, TagName: tag})
		w.flush(">")
		if err := w.skipTo(end); err != nil {
			return err
		}
		w.ops = append(w.ops, Op{Kind: ComponentShadow, TagName: tag})
	}

	w.nodeIndex++
	if !voidElements[tag] {
		w.stack = append(w.stack, frame{tag: tag, component: component})
	}
	return nil
}

func (w *walker) endTag(tag string) {
	if documentElements[tag] {
		return
	}
	for i := len(w.stack) - 1; i >= 0; i-- {
		if w.stack[i].tag == tag {
			w.closeFrames(i)
			return
		}
	}
}

// closeFrames pops every frame from depth on, closing components innermost
// first.
func (w *walker) closeFrames(depth int) {
	for i := len(w.stack) - 1; i >= depth; i-- {
		if w.stack[i].component {
			w.ops = append(w.ops, Op{Kind: ComponentClose, TagName: w.stack[i].tag})
		}
	}
	w.stack = w.stack[:depth]
}

func (w *walker) top() string {
	if len(w.stack) == 0 {
		return ""
	}
	return w.stack[len(w.stack)-1].tag
}

func (w *walker) imply(tag string) {
	w.stack = append(w.stack, frame{tag: tag})
	w.nodeIndex++
}

// fixTableStructure mirrors the tree builder's table handling before tag
// opens: it closes table sections the tag ends implicitly and counts the
// tbody, tr and colgroup elements the parser inserts, so node indexes
// match the client's parse of the same markup.
func (w *walker) fixTableStructure(tag string, start int) error {
	if w.top() == "colgroup" && tag != "col" && tag != "template" {
		w.closeFrames(len(w.stack) - 1)
	}

	switch tag {
	case "caption", "colgroup", "tbody", "thead", "tfoot":
		w.closeTableFrames("table")
	case "tr":
		w.closeTableFrames("table", "tbody", "thead", "tfoot")
	case "td", "th":
		w.closeTableFrames("table", "tbody", "thead", "tfoot", "tr")
	case "col":
		w.closeTableFrames("table", "colgroup")
	}

	switch top := w.top(); {
	case top == "table" && tag == "col":
		w.imply("colgroup")
	case top == "table" && (tag == "tr" || tag == "td" || tag == "th"):
		w.imply("tbody")
	}
	if sections[w.top()] && (tag == "td" || tag == "th") {
		w.imply("tr")
	}

	if w.inTable() && !tableContent[tag] {
		return errors.NewCompileError(errors.ErrCodeTemplateSyntax,
			fmt.Sprintf("<%s> directly inside <%s> is moved out of the table by the HTML parser", tag, w.top())).
			WithOffset(start)
	}
	return nil
}

// closeTableFrames closes open table sections, rows and cells down to the
// nearest frame named in stops. Anything else on the way leaves the stack
// untouched.
func (w *walker) closeTableFrames(stops ...string) {
	for i := len(w.stack) - 1; i >= 0; i-- {
		tag := w.stack[i].tag
		switch {
		case slices.Contains(stops, tag):
			w.closeFrames(i + 1)
			return
		case !tableInternal[tag]:
			return
		}
	}
}

// inTable reports whether the current insertion point is a table, section
// or row of an enclosing table, where the parser foster-parents content.
func (w *walker) inTable() bool {
	if top := w.top(); top != "table" && !sections[top] && top != "tr" {
		return false
	}
	return slices.ContainsFunc(w.stack, func(f frame) bool { return f.tag == "table" })
}

func (w *walker) inComponent() bool {
	return len(w.stack) > 0 && w.stack[len(w.stack)-1].component
}

func (w *walker) flush(text string) {
	if text == "" {
		return
	}
	if n := len(w.ops); n > 0 && w.ops[n-1].Kind == Text {
		w.ops[n-1].Text += text
		return
	}
	w.ops = append(w.ops, Op{Kind: Text, Text: text})
}

func (w *walker) flushTo(offset int) {
	text := w.markup[w.lastOffset:offset]
	w.lastOffset = offset
	w.flush(text)
}

func (w *walker) skipTo(offset int) error {
	if offset < w.lastOffset {
		return errors.NewInternalError(errors.ErrCodeTemplateSyntax,
			fmt.Sprintf("offset %d is before last offset %d", offset, w.lastOffset), nil)
	}
	w.lastOffset = offset
	return nil
}

var (
	documentElements = map[string]bool{"html": true, "head": true, "body": true}
	sections         = map[string]bool{"tbody": true, "thead": true, "tfoot": true}
	tableInternal    = map[string]bool{
		"caption": true, "colgroup": true, "tbody": true, "thead": true,
		"tfoot": true, "tr": true, "td": true, "th": true,
	}
	tableContent = map[string]bool{
		"caption": true, "colgroup": true, "col": true, "tbody": true, "thead": true,
		"tfoot": true, "tr": true, "td": true, "th": true,
		"script": true, "style": true, "template": true,
	}
)

var voidElements = map[string]bool{
	"area": true, "base": true, "br": true, "col": true, "embed": true,
	"hr": true, "img": true, "input": true, "keygen": true, "link": true,
	"meta": true, "param": true, "source": true, "track": true, "wbr": true,
}
