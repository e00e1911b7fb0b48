package application

import "errors"

var (
	// ErrTagExists is returned when creating a tag whose name is taken.
	ErrTagExists = errors.New("tag already exists")

	// ErrTagNotFound is returned when a tag is neither cached nor stored.
	ErrTagNotFound = errors.New("tag not found")

	// ErrPlayerOffline is returned for actors that are not connected.
	ErrPlayerOffline = errors.New("player is not connected")

	// ErrSessionActive is returned when an actor already has a pending edit.
	ErrSessionActive = errors.New("an edit is already in progress")

	// ErrNotPersisted is returned when the store refused a save or delete.
	ErrNotPersisted = errors.New("change was not persisted")
)
