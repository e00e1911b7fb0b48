// Package testutil provides fakes and fixtures shared by package tests.
package testutil

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/zjrosen/nametags/internal/domain"
	"github.com/zjrosen/nametags/internal/store"
)

// Builder accumulates fixture aggregates and saves them through a driver.
type Builder struct {
	t       *testing.T
	tags    []*domain.Tag
	players []*domain.Player
}

// NewBuilder creates an empty builder.
func NewBuilder(t *testing.T) *Builder {
	t.Helper()
	return &Builder{t: t}
}

// WithTag adds a tag with optional properties.
func (b *Builder) WithTag(name string, opts ...TagOption) *Builder {
	props := domain.Properties{Color: domain.ColorWhite}
	for _, opt := range opts {
		opt(&props)
	}
	b.tags = append(b.tags, domain.NewAggregate(name, props))
	return b
}

// WithPlayer adds a player, optionally with a selected tag.
func (b *Builder) WithPlayer(actorID, selectedTag string) *Builder {
	b.players = append(b.players, domain.NewAggregate(actorID, domain.PlayerState{SelectedTag: selectedTag}))
	return b
}

// Tags returns the accumulated tags.
func (b *Builder) Tags() []*domain.Tag {
	return b.tags
}

// Players returns the accumulated players.
func (b *Builder) Players() []*domain.Player {
	return b.players
}

// BuildTags starts the driver and saves every accumulated tag.
func (b *Builder) BuildTags(d store.Driver[domain.Properties]) {
	b.t.Helper()
	ctx := context.Background()
	require.NoError(b.t, d.Start(ctx))
	for _, tag := range b.tags {
		require.NoError(b.t, d.Save(ctx, tag), "save tag %s", tag.ID())
	}
}

// BuildPlayers starts the driver and saves every accumulated player.
func (b *Builder) BuildPlayers(d store.Driver[domain.PlayerState]) {
	b.t.Helper()
	ctx := context.Background()
	require.NoError(b.t, d.Start(ctx))
	for _, player := range b.players {
		require.NoError(b.t, d.Save(ctx, player), "save player %s", player.ID())
	}
}
