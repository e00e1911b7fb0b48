// Package styledtext implements the formatted text values used for tag
// prefixes and suffixes. Input uses legacy ampersand codes: &0-&9 and &a-&f
// select a color, &k-&o add a decoration and &r resets. A color code clears
// any active decorations, matching how chat clients render them.
package styledtext

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

// MaxPlainLength is the longest visible text a value may carry.
const MaxPlainLength = 64

var (
	// ErrEmpty is returned when the input has no visible characters.
	ErrEmpty = errors.New("styled text is empty")

	// ErrTooLong is returned when the visible text exceeds MaxPlainLength.
	ErrTooLong = errors.New("styled text is too long")
)

// Decoration is a bit set of text decorations.
type Decoration uint8

const (
	Obfuscated Decoration = 1 << iota
	Bold
	Strikethrough
	Underlined
	Italic
)

// decorationCodes lists decorations in emission order.
var decorationCodes = []struct {
	code byte
	dec  Decoration
}{
	{'k', Obfuscated},
	{'l', Bold},
	{'m', Strikethrough},
	{'n', Underlined},
	{'o', Italic},
}

// Segment is a run of text sharing one style.
type Segment struct {
	Content string
	// Color is the legacy color code ('0'-'9', 'a'-'f') or 0 for none.
	Color       byte
	Decorations Decoration
}

func (s Segment) sameStyle(o Segment) bool {
	return s.Color == o.Color && s.Decorations == o.Decorations
}

// Has reports whether d is set on the segment.
func (s Segment) Has(d Decoration) bool {
	return s.Decorations&d != 0
}

// Text is an immutable styled text value. The zero value is empty and is
// only produced by the zero Text{}; Parse never returns it.
type Text struct {
	segments []Segment
}

// IsColorCode reports whether c is a legacy color code.
func IsColorCode(c byte) bool {
	return (c >= '0' && c <= '9') || (c >= 'a' && c <= 'f')
}

func decorationFor(c byte) (Decoration, bool) {
	for _, d := range decorationCodes {
		if d.code == c {
			return d.dec, true
		}
	}
	return 0, false
}

// Parse deserializes legacy-coded input into a Text.
// An ampersand that does not start a known code is kept literally.
func Parse(input string) (Text, error) {
	var (
		segments []Segment
		current  Segment
		buf      strings.Builder
	)

	flush := func() {
		if buf.Len() == 0 {
			return
		}
		current.Content = buf.String()
		buf.Reset()
		if n := len(segments); n > 0 && segments[n-1].sameStyle(current) && !ambiguousJoin(segments[n-1], current) {
			segments[n-1].Content += current.Content
			return
		}
		segments = append(segments, current)
	}

	for i := 0; i < len(input); i++ {
		c := input[i]
		if (c == '&') && i+1 < len(input) {
			code := lower(input[i+1])
			switch {
			case IsColorCode(code):
				flush()
				current = Segment{Color: code}
				i++
				continue
			case code == 'r':
				flush()
				current = Segment{}
				i++
				continue
			default:
				if dec, ok := decorationFor(code); ok {
					flush()
					current.Decorations |= dec
					i++
					continue
				}
			}
		}
		buf.WriteByte(c)
	}
	flush()

	t := Text{segments: segments}
	plain := t.Plain()
	if strings.TrimSpace(plain) == "" {
		return Text{}, ErrEmpty
	}
	if utf8.RuneCountInString(plain) > MaxPlainLength {
		return Text{}, fmt.Errorf("%w: %d characters, max %d", ErrTooLong, utf8.RuneCountInString(plain), MaxPlainLength)
	}
	return t, nil
}

// MustParse is like Parse but panics on error. Intended for tests and
// constant values.
func MustParse(input string) Text {
	t, err := Parse(input)
	if err != nil {
		panic(err)
	}
	return t
}

// ambiguousJoin reports whether concatenating the two contents would turn a
// literal ampersand into a code.
func ambiguousJoin(prev, next Segment) bool {
	if !strings.HasSuffix(prev.Content, "&") || next.Content == "" {
		return false
	}
	c := lower(next.Content[0])
	if IsColorCode(c) || c == 'r' {
		return true
	}
	_, ok := decorationFor(c)
	return ok
}

func lower(c byte) byte {
	if c >= 'A' && c <= 'Z' {
		return c + ('a' - 'A')
	}
	return c
}

// Segments returns a copy of the styled runs.
func (t Text) Segments() []Segment {
	out := make([]Segment, len(t.segments))
	copy(out, t.segments)
	return out
}

// IsZero reports whether t holds no segments.
func (t Text) IsZero() bool {
	return len(t.segments) == 0
}

// Plain returns the visible characters without styling.
func (t Text) Plain() string {
	var b strings.Builder
	for _, s := range t.segments {
		b.WriteString(s.Content)
	}
	return b.String()
}

// String returns the canonical legacy-coded serialization.
// Parse(t.String()) is always Equal to t.
func (t Text) String() string {
	var (
		b    strings.Builder
		prev Segment
	)
	for i, s := range t.segments {
		if i == 0 || !s.sameStyle(prev) || ambiguousJoin(prev, s) {
			switch {
			case s.Color != 0:
				b.WriteByte('&')
				b.WriteByte(s.Color)
			case i > 0:
				b.WriteString("&r")
			}
			for _, d := range decorationCodes {
				if s.Has(d.dec) {
					b.WriteByte('&')
					b.WriteByte(d.code)
				}
			}
		}
		b.WriteString(s.Content)
		prev = s
	}
	return b.String()
}

// Equal reports whether both values render identically.
func (t Text) Equal(o Text) bool {
	if len(t.segments) != len(o.segments) {
		return false
	}
	for i := range t.segments {
		if t.segments[i] != o.segments[i] {
			return false
		}
	}
	return true
}

// EqualPtr compares two optional values; two nils are equal.
func EqualPtr(a, b *Text) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Equal(*b)
}

// MarshalText implements encoding.TextMarshaler.
func (t Text) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (t *Text) UnmarshalText(data []byte) error {
	parsed, err := Parse(string(data))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}
