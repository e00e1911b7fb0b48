package domain

import (
	"fmt"
	"strings"
)

// Color is one of the sixteen named chat colors. The zero value is
// ColorWhite so a tag's color is never absent.
type Color int

const (
	ColorWhite Color = iota
	ColorBlack
	ColorDarkBlue
	ColorDarkGreen
	ColorDarkAqua
	ColorDarkRed
	ColorDarkPurple
	ColorGold
	ColorGray
	ColorDarkGray
	ColorBlue
	ColorGreen
	ColorAqua
	ColorRed
	ColorLightPurple
	ColorYellow
)

type colorInfo struct {
	name string
	code byte
}

var colors = map[Color]colorInfo{
	ColorBlack:       {"black", '0'},
	ColorDarkBlue:    {"dark_blue", '1'},
	ColorDarkGreen:   {"dark_green", '2'},
	ColorDarkAqua:    {"dark_aqua", '3'},
	ColorDarkRed:     {"dark_red", '4'},
	ColorDarkPurple:  {"dark_purple", '5'},
	ColorGold:        {"gold", '6'},
	ColorGray:        {"gray", '7'},
	ColorDarkGray:    {"dark_gray", '8'},
	ColorBlue:        {"blue", '9'},
	ColorGreen:       {"green", 'a'},
	ColorAqua:        {"aqua", 'b'},
	ColorRed:         {"red", 'c'},
	ColorLightPurple: {"light_purple", 'd'},
	ColorYellow:      {"yellow", 'e'},
	ColorWhite:       {"white", 'f'},
}

var colorsByName = func() map[string]Color {
	m := make(map[string]Color, len(colors))
	for c, info := range colors {
		m[info.name] = c
	}
	return m
}()

// AllColors returns every color in legacy code order.
func AllColors() []Color {
	return []Color{
		ColorBlack, ColorDarkBlue, ColorDarkGreen, ColorDarkAqua,
		ColorDarkRed, ColorDarkPurple, ColorGold, ColorGray,
		ColorDarkGray, ColorBlue, ColorGreen, ColorAqua,
		ColorRed, ColorLightPurple, ColorYellow, ColorWhite,
	}
}

// ParseColor matches a color name case-insensitively.
// Spaces and dashes are accepted in place of underscores.
func ParseColor(name string) (Color, bool) {
	key := strings.ToLower(strings.TrimSpace(name))
	key = strings.NewReplacer(" ", "_", "-", "_").Replace(key)
	c, ok := colorsByName[key]
	return c, ok
}

// IsValid reports whether c is a known color.
func (c Color) IsValid() bool {
	_, ok := colors[c]
	return ok
}

// String returns the lowercase name.
func (c Color) String() string {
	if info, ok := colors[c]; ok {
		return info.name
	}
	return fmt.Sprintf("color(%d)", int(c))
}

// Code returns the legacy color code.
func (c Color) Code() byte {
	if info, ok := colors[c]; ok {
		return info.code
	}
	return colors[ColorWhite].code
}

// MarshalText implements encoding.TextMarshaler.
func (c Color) MarshalText() ([]byte, error) {
	if !c.IsValid() {
		c = ColorWhite
	}
	return []byte(c.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler. Unknown names decode
// to ColorWhite rather than failing the whole record.
func (c *Color) UnmarshalText(data []byte) error {
	parsed, ok := ParseColor(string(data))
	if !ok {
		parsed = ColorWhite
	}
	*c = parsed
	return nil
}
