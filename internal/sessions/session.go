// Package sessions holds pending property edits. A session maps an actor
// to the tag it is editing and the property it chose; it lives for a short
// sliding window and is never persisted.
package sessions

import (
	"fmt"
	"strings"
)

// Context is the property a session is armed to modify.
type Context int

const (
	// ContextNone means the actor has not chosen a property yet.
	ContextNone Context = iota
	ContextPrefix
	ContextSuffix
	ContextColor
)

var contextNames = map[Context]string{
	ContextNone:   "none",
	ContextPrefix: "prefix",
	ContextSuffix: "suffix",
	ContextColor:  "color",
}

func (c Context) String() string {
	if name, ok := contextNames[c]; ok {
		return name
	}
	return fmt.Sprintf("context(%d)", int(c))
}

// Armed reports whether c selects a property.
func (c Context) Armed() bool {
	return c == ContextPrefix || c == ContextSuffix || c == ContextColor
}

// ParseContext matches an armed context by name, case-insensitively.
// ContextNone is not accepted.
func ParseContext(name string) (Context, bool) {
	key := strings.ToLower(strings.TrimSpace(name))
	for c, n := range contextNames {
		if n == key && c.Armed() {
			return c, true
		}
	}
	return ContextNone, false
}

// Session is a pending edit. ActorID is its key.
type Session struct {
	ActorID   string
	TargetTag string
	Context   Context
}
