package application

import (
	"context"
	"errors"
	"fmt"

	"github.com/zjrosen/nametags/internal/domain"
	"github.com/zjrosen/nametags/internal/log"
	"github.com/zjrosen/nametags/internal/pool"
	"github.com/zjrosen/nametags/internal/registry"
	"github.com/zjrosen/nametags/internal/sessions"
)

// PlayerRegistry is the player registry type.
type PlayerRegistry = registry.Registry[domain.PlayerState]

// Players manages connected players and their tag selection. A player is
// cached for exactly as long as it is connected.
type Players struct {
	reg      *PlayerRegistry
	tags     *Tags
	sessions *sessions.Store
}

// NewPlayers creates the player service.
func NewPlayers(reg *PlayerRegistry, tags *Tags, store *sessions.Store) *Players {
	return &Players{reg: reg, tags: tags, sessions: store}
}

// Registry returns the underlying registry.
func (s *Players) Registry() *PlayerRegistry {
	return s.reg
}

// Connect loads the player, or synthesizes an empty one, and caches it.
// Connecting an already connected player returns the cached copy.
func (s *Players) Connect(ctx context.Context, actorID string) *domain.Player {
	if player := s.reg.FindInCache(actorID); player != nil {
		return player
	}

	player := s.reg.FindInBoth(ctx, actorID)
	if player == nil {
		player = domain.NewPlayer(actorID)
		s.reg.Register(player)
		log.Debug(log.CatRegistry, "New player", "actor", actorID)
	}
	log.Info(log.CatRegistry, "Player connected", "actor", actorID, "tag", player.Payload().SelectedTag)
	return player
}

// Online reports whether the actor is connected.
func (s *Players) Online(actorID string) bool {
	return s.reg.ExistsInCache(actorID)
}

// Find returns the connected player or nil.
func (s *Players) Find(actorID string) *domain.Player {
	return s.reg.FindInCache(actorID)
}

// List returns connected players ordered by actor id.
func (s *Players) List() []*domain.Player {
	return s.reg.FindAllInCache()
}

// Disconnect drops the actor's edit session, evicts the player and waits
// for its state to be saved. Disconnecting an offline actor is a no-op.
func (s *Players) Disconnect(ctx context.Context, actorID string) error {
	s.sessions.Delete(actorID)
	player := s.reg.Unregister(actorID)
	if player == nil {
		return nil
	}

	ok, err := s.reg.Save(ctx, player).Await(ctx)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("save player %s: %w", actorID, ErrNotPersisted)
	}
	log.Info(log.CatRegistry, "Player disconnected", "actor", actorID)
	return nil
}

// DisconnectAll disconnects every player, saving them concurrently. Used on
// shutdown before the pool is closed.
func (s *Players) DisconnectAll(ctx context.Context) error {
	players := s.reg.FindAllInCache()
	if len(players) == 0 {
		return nil
	}

	futures := make([]*pool.Future[bool], 0, len(players))
	for _, player := range players {
		s.sessions.Delete(player.ID())
		s.reg.Unregister(player.ID())
		futures = append(futures, s.reg.Save(ctx, player))
	}

	results, err := pool.All(futures...).Await(ctx)
	if err != nil {
		return fmt.Errorf("disconnect players: %w", err)
	}

	var errs []error
	for i, ok := range results {
		if !ok {
			errs = append(errs, fmt.Errorf("save player %s: %w", players[i].ID(), ErrNotPersisted))
		}
	}
	log.Info(log.CatRegistry, "Players disconnected", "count", len(players), "failed", len(errs))
	return errors.Join(errs...)
}

// Select makes the player display tagID.
func (s *Players) Select(ctx context.Context, actorID, tagID string) error {
	player := s.reg.FindInCache(actorID)
	if player == nil {
		return fmt.Errorf("%w: %s", ErrPlayerOffline, actorID)
	}
	if !s.tags.Exists(ctx, tagID) {
		return fmt.Errorf("%w: %s", ErrTagNotFound, tagID)
	}
	player.Update(func(st domain.PlayerState) domain.PlayerState {
		st.SelectedTag = tagID
		return st
	})
	return nil
}

// Unselect clears the player's tag. It reports whether a tag was selected.
func (s *Players) Unselect(actorID string) (bool, error) {
	player := s.reg.FindInCache(actorID)
	if player == nil {
		return false, fmt.Errorf("%w: %s", ErrPlayerOffline, actorID)
	}
	var had bool
	player.Update(func(st domain.PlayerState) domain.PlayerState {
		had = st.HasSelection()
		st.SelectedTag = ""
		return st
	})
	return had, nil
}

// Nameplate is what a player's chat line is decorated with.
type Nameplate struct {
	ActorID string
	TagID   string
	// Properties is the zero value when no tag is displayed.
	Properties domain.Properties
}

// HasTag reports whether a tag is displayed.
func (n Nameplate) HasTag() bool {
	return n.TagID != ""
}

// Nameplate resolves the player's selected tag. A selection whose tag no
// longer exists is shown as no tag.
func (s *Players) Nameplate(ctx context.Context, actorID string) (Nameplate, error) {
	player := s.reg.FindInCache(actorID)
	if player == nil {
		return Nameplate{}, fmt.Errorf("%w: %s", ErrPlayerOffline, actorID)
	}
	plate := Nameplate{ActorID: actorID}
	selected := player.Payload().SelectedTag
	if selected == "" {
		return plate, nil
	}
	tag := s.tags.Find(ctx, selected)
	if tag == nil {
		log.Debug(log.CatRegistry, "Selected tag is gone", "actor", actorID, "tag", selected)
		return plate, nil
	}
	plate.TagID = tag.ID()
	plate.Properties = tag.Payload()
	return plate, nil
}
