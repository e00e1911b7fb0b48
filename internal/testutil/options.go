package testutil

import (
	"github.com/zjrosen/nametags/internal/domain"
	"github.com/zjrosen/nametags/internal/styledtext"
)

// TagOption configures a tag built by the Builder.
type TagOption func(*domain.Properties)

// Prefix sets the tag prefix from legacy-coded input.
func Prefix(input string) TagOption {
	return func(p *domain.Properties) {
		t := styledtext.MustParse(input)
		p.Prefix = &t
	}
}

// Suffix sets the tag suffix from legacy-coded input.
func Suffix(input string) TagOption {
	return func(p *domain.Properties) {
		t := styledtext.MustParse(input)
		p.Suffix = &t
	}
}

// Color sets the tag color.
func Color(c domain.Color) TagOption {
	return func(p *domain.Properties) {
		p.Color = c
	}
}
