package domain

import (
	"errors"
	"fmt"
	"regexp"

	"github.com/zjrosen/nametags/internal/styledtext"
)

// ErrInvalidTagName is returned for names outside the allowed charset.
var ErrInvalidTagName = errors.New("invalid tag name")

var tagNamePattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,32}$`)

// ValidateTagName checks that a caller-chosen tag id is usable as a key in
// every backend (file names, redis keys, SQL text).
func ValidateTagName(name string) error {
	if !tagNamePattern.MatchString(name) {
		return fmt.Errorf("%w: %q must be 1-32 letters, digits, '_' or '-'", ErrInvalidTagName, name)
	}
	return nil
}

// Properties is the payload of a tag aggregate.
// Color is never absent: its zero value is ColorWhite.
type Properties struct {
	Prefix *styledtext.Text `json:"prefix,omitempty" yaml:"prefix,omitempty"`
	Suffix *styledtext.Text `json:"suffix,omitempty" yaml:"suffix,omitempty"`
	Color  Color            `json:"color" yaml:"color"`
}

// WithPrefix returns a copy with the prefix replaced; nil clears it.
func (p Properties) WithPrefix(t *styledtext.Text) Properties {
	p.Prefix = t
	return p
}

// WithSuffix returns a copy with the suffix replaced; nil clears it.
func (p Properties) WithSuffix(t *styledtext.Text) Properties {
	p.Suffix = t
	return p
}

// WithColor returns a copy with the color replaced.
func (p Properties) WithColor(c Color) Properties {
	p.Color = c
	return p
}

// Equal compares two property sets by rendered value.
func (p Properties) Equal(o Properties) bool {
	return p.Color == o.Color &&
		styledtext.EqualPtr(p.Prefix, o.Prefix) &&
		styledtext.EqualPtr(p.Suffix, o.Suffix)
}

// Tag is the per-name style record. Its id is the tag name.
type Tag = Aggregate[Properties]

// NewTag creates a tag with default properties.
func NewTag(name string) *Tag {
	return NewAggregate(name, Properties{Color: ColorWhite})
}
