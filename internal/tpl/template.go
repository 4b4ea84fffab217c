// Package tpl defines the values a template render consumes: template
// shapes, template results, sentinels, directives and awaitable values.
//
// A template is a list of static string parts interleaved with dynamic
// values. The static parts of a call site are captured once in a *Statics;
// the pointer is the template's shape and keys every compile cache.
//
//	var greeting = tpl.New("<p>Hello ", "!</p>")
//
//	func Greeting(name string) tpl.Result {
//		return tpl.HTML(greeting, name)
//	}
package tpl

import (
	"encoding/base64"
	"encoding/binary"
	"sync"
	"unicode/utf16"
)

// Statics holds the static string parts of one template call site.
// Compare shapes by pointer, never by content.
type Statics struct {
	parts []string

	digestOnce sync.Once
	digest     string
}

// New captures static parts. Callers keep the returned pointer for the
// lifetime of the call site so every render shares one compiled program.
func New(parts ...string) *Statics {
	cp := make([]string, len(parts))
	copy(cp, parts)
	if len(cp) == 0 {
		cp = []string{""}
	}
	return &Statics{parts: cp}
}

// Parts returns a copy of the static parts.
func (s *Statics) Parts() []string {
	cp := make([]string, len(s.parts))
	copy(cp, s.parts)
	return cp
}

// Len returns the number of static parts.
func (s *Statics) Len() int { return len(s.parts) }

// Part returns the i-th static part.
func (s *Statics) Part(i int) string { return s.parts[i] }

// Slots returns the number of dynamic values the shape declares.
func (s *Statics) Slots() int { return len(s.parts) - 1 }

// Digest returns the shape digest written into template part markers.
// It is two djb2-xor lanes over the UTF-16 code units of every part, the
// lane chosen by the code unit's index within its part, serialized little
// endian and base64 encoded. Hydration runtimes compute the same value from
// their own copy of the statics.
func (s *Statics) Digest() string {
	s.digestOnce.Do(func() {
		s.digest = digestParts(s.parts)
	})
	return s.digest
}

func digestParts(parts []string) string {
	lanes := [2]uint32{5381, 5381}
	for _, p := range parts {
		units := utf16.Encode([]rune(p))
		for i, u := range units {
			lanes[i%2] = (lanes[i%2] * 33) ^ uint32(u)
		}
	}
	var buf [8]byte
	binary.LittleEndian.PutUint32(buf[0:4], lanes[0])
	binary.LittleEndian.PutUint32(buf[4:8], lanes[1])
	return base64.StdEncoding.EncodeToString(buf[:])
}

// Result is a template value: a shape plus the dynamic values for one
// invocation.
type Result struct {
	Statics *Statics
	Values  []any
}

// HTML builds a template value. The number of values should equal
// s.Slots(); a mismatch is reported when the value is rendered.
func HTML(s *Statics, values ...any) Result {
	return Result{Statics: s, Values: values}
}

// IsTemplate reports whether v is a template value.
func IsTemplate(v any) (Result, bool) {
	switch r := v.(type) {
	case Result:
		return r, r.Statics != nil
	case *Result:
		if r == nil || r.Statics == nil {
			return Result{}, false
		}
		return *r, true
	}
	return Result{}, false
}
