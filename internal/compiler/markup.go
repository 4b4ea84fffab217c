package compiler

import (
	"math/rand/v2"
	"regexp"
	"strconv"
	"strings"

	"github.com/conneroisu/shadowstream/internal/errors"
	"github.com/conneroisu/shadowstream/internal/tpl"
)

// Placeholders written into the assembled markup. The marker is random per
// process so template text cannot collide with it by accident.
var (
	marker               = "tpl$" + strconv.FormatUint(rand.Uint64(), 10) + "$"
	markerMatch          = "?" + marker
	nodeMarker           = "<" + markerMatch + ">"
	boundAttributeSuffix = "$tpl$"
)

// Scanner states. Each state is the regexp that finds the next transition.
var (
	textEndRegex     = regexp.MustCompile(`<(?:(!--|/[^a-zA-Z])|(/?[a-zA-Z][^>\s]*)|(/?$))`)
	commentEndRegex  = regexp.MustCompile(`-->`)
	comment2EndRegex = regexp.MustCompile(`>`)
	tagEndRegex      = regexp.MustCompile(
		">|[ \\t\\n\\f\\r](?:([^\\s\"'>=/]+)([ \\t\\n\\f\\r]*=[ \\t\\n\\f\\r]*(?:[^ \\t\\n\\f\\r\"'`<>=]|(\"|')|))|$)")
	doubleQuoteAttrEndRegex = regexp.MustCompile(`"`)
	singleQuoteAttrEndRegex = regexp.MustCompile(`'`)
	rawTextElement          = regexp.MustCompile(`(?i)^(?:script|style|textarea|title)$`)
)

// textEndRegex submatch groups
const (
	commentStart   = 1
	tagName        = 2
	dynamicTagName = 3
)

// tagEndRegex submatch groups
const (
	attributeName   = 1
	spacesAndEquals = 2
	quoteChar       = 3
)

// assembly is the static markup of a template with every binding replaced
// by a placeholder, plus the case-preserved names of bound attributes in
// source order.
type assembly struct {
	markup    string
	attrNames []string
}

// assemble joins the static parts, inserting a child marker comment for
// bindings in text position, a suffixed attribute for bindings in attribute
// value position, and a marker attribute for element bindings.
func assemble(s *tpl.Statics) (*assembly, error) {
	parts := s.Parts()
	last := len(parts) - 1

	var (
		b          strings.Builder
		attrNames  []string
		regex      = textEndRegex
		rawTextEnd *regexp.Regexp
		offset     int
	)

	for i := 0; i < last; i++ {
		part := parts[i]
		attrNameEnd := -1
		var attrName string
		lastIndex := 0

		for lastIndex < len(part) {
			loc := regex.FindStringSubmatchIndex(part[lastIndex:])
			if loc == nil {
				break
			}
			base := lastIndex
			group := func(n int) (string, bool) {
				if loc[2*n] < 0 {
					return "", false
				}
				return part[base+loc[2*n] : base+loc[2*n+1]], true
			}
			whole, _ := group(0)
			lastIndex += loc[1]

			switch regex {
			case textEndRegex:
				if start, ok := group(commentStart); ok {
					if start == "!--" {
						regex = commentEndRegex
					} else {
						regex = comment2EndRegex
					}
				} else if name, ok := group(tagName); ok {
					if rawTextElement.MatchString(name) {
						rawTextEnd = regexp.MustCompile(`</` + regexp.QuoteMeta(name))
					}
					regex = tagEndRegex
				} else if _, ok := group(dynamicTagName); ok {
					return nil, errors.NewCompileError(errors.ErrCodeDynamicTag,
						"bindings in tag names are not supported").WithOffset(offset + lastIndex)
				}
			case tagEndRegex:
				if whole == ">" {
					if rawTextEnd != nil {
						regex = rawTextEnd
					} else {
						regex = textEndRegex
					}
					attrNameEnd = -1
				} else if name, ok := group(attributeName); !ok {
					attrNameEnd = -2
				} else {
					equals, _ := group(spacesAndEquals)
					attrNameEnd = lastIndex - len(equals)
					attrName = name
					switch quote, _ := group(quoteChar); quote {
					case `"`:
						regex = doubleQuoteAttrEndRegex
					case "'":
						regex = singleQuoteAttrEndRegex
					default:
						regex = tagEndRegex
					}
				}
			case doubleQuoteAttrEndRegex, singleQuoteAttrEndRegex:
				regex = tagEndRegex
			case commentEndRegex, comment2EndRegex:
				regex = textEndRegex
			default:
				// closing tag of a raw text element
				regex = tagEndRegex
				rawTextEnd = nil
			}
		}

		switch {
		case regex == textEndRegex:
			b.WriteString(part)
			b.WriteString(nodeMarker)
		case regex == commentEndRegex || regex == comment2EndRegex:
			return nil, errors.NewCompileError(errors.ErrCodeTemplateSyntax,
				"bindings inside comments are not supported").WithOffset(offset + len(part))
		case rawTextEnd != nil && regex == rawTextEnd:
			return nil, errors.NewCompileError(errors.ErrCodeRawTextBinding,
				"bindings inside raw text elements are not supported").WithOffset(offset + len(part))
		case attrNameEnd >= 0:
			attrNames = append(attrNames, attrName)
			b.WriteString(part[:attrNameEnd])
			b.WriteString(boundAttributeSuffix)
			b.WriteString(part[attrNameEnd:])
			b.WriteString(marker)
			b.WriteString(selfCloseGap(regex, parts[i+1]))
		default:
			b.WriteString(part)
			b.WriteString(marker)
			if attrNameEnd == -2 {
				attrNames = append(attrNames, "")
				b.WriteString(strconv.Itoa(i))
			} else {
				b.WriteString(selfCloseGap(regex, parts[i+1]))
			}
		}
		offset += len(part)
	}

	b.WriteString(parts[last])
	return &assembly{markup: b.String(), attrNames: attrNames}, nil
}

// selfCloseGap keeps a marker from merging with a following "/>".
func selfCloseGap(regex *regexp.Regexp, next string) string {
	if regex == tagEndRegex && strings.HasPrefix(next, "/>") {
		return " "
	}
	return ""
}
