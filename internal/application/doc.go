// Package application implements the tag and player lifecycles on top of
// the registries, and the edit flow that feeds the modification processor.
//
// Services never touch a store driver directly. Tag creation writes the
// cache first and persists asynchronously; player state is persisted when
// the player disconnects.
package application
