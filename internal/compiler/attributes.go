package compiler

import (
	"strings"

	"golang.org/x/net/html"
)

// rawAttr is an attribute scanned from raw start tag text. Start and End
// are byte offsets into the tag; End is just past the value's closing quote.
type rawAttr struct {
	Name  string
	Value string
	Start int
	End   int
}

func (a rawAttr) attributeBinding() bool {
	return strings.HasSuffix(strings.ToLower(a.Name), boundAttributeSuffix)
}

func (a rawAttr) elementBinding() bool {
	return strings.HasPrefix(strings.ToLower(a.Name), marker)
}

func (a rawAttr) bound() bool {
	return a.attributeBinding() || a.elementBinding()
}

// scanAttributes splits a raw start tag into attributes with their source
// spans, following the HTML tokenizer's attribute states. The tokenizer
// itself does not expose spans.
func scanAttributes(raw string) []rawAttr {
	i := 1
	for i < len(raw) && !isSpace(raw[i]) && raw[i] != '/' && raw[i] != '>' {
		i++
	}

	var attrs []rawAttr
	for i < len(raw) {
		for i < len(raw) && (isSpace(raw[i]) || raw[i] == '/') {
			i++
		}
		if i >= len(raw) || raw[i] == '>' {
			break
		}

		nameStart := i
		// a leading '=' belongs to the name
		i++
		for i < len(raw) && !isSpace(raw[i]) && raw[i] != '/' && raw[i] != '>' && raw[i] != '=' {
			i++
		}
		attr := rawAttr{Name: raw[nameStart:i], Start: nameStart, End: i}

		j := i
		for j < len(raw) && isSpace(raw[j]) {
			j++
		}
		if j < len(raw) && raw[j] == '=' {
			j++
			for j < len(raw) && isSpace(raw[j]) {
				j++
			}
			var value string
			if j < len(raw) && (raw[j] == '"' || raw[j] == '\'') {
				quote := raw[j]
				valueStart := j + 1
				if k := strings.IndexByte(raw[valueStart:], quote); k >= 0 {
					value = raw[valueStart : valueStart+k]
					j = valueStart + k + 1
				} else {
					value = raw[valueStart:]
					j = len(raw)
				}
			} else {
				valueStart := j
				for j < len(raw) && !isSpace(raw[j]) && raw[j] != '>' {
					j++
				}
				value = raw[valueStart:j]
			}
			attr.Value = html.UnescapeString(value)
			attr.End = j
			i = j
		}
		attrs = append(attrs, attr)
	}
	return attrs
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\f' || c == '\r'
}
