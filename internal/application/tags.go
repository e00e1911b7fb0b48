package application

import (
	"context"
	"fmt"

	"github.com/zjrosen/nametags/internal/domain"
	"github.com/zjrosen/nametags/internal/log"
	"github.com/zjrosen/nametags/internal/pool"
	"github.com/zjrosen/nametags/internal/registry"
)

// TagRegistry is the tag registry type.
type TagRegistry = registry.Registry[domain.Properties]

// Tags manages tag lifecycle.
type Tags struct {
	reg *TagRegistry
}

// NewTags creates the tag service.
func NewTags(reg *TagRegistry) *Tags {
	return &Tags{reg: reg}
}

// Registry returns the underlying registry.
func (s *Tags) Registry() *TagRegistry {
	return s.reg
}

// Create registers a new tag with default properties and persists it in
// the background. The returned future reports whether the save succeeded.
func (s *Tags) Create(ctx context.Context, name string) (*domain.Tag, *pool.Future[bool], error) {
	if err := domain.ValidateTagName(name); err != nil {
		return nil, nil, err
	}
	if s.reg.ExistsGlobally(ctx, name) {
		return nil, nil, fmt.Errorf("%w: %s", ErrTagExists, name)
	}

	tag := domain.NewTag(name)
	s.reg.Register(tag)
	saved := s.reg.Save(ctx, tag)
	saved.Then(func(ok bool, err error) {
		if !ok {
			log.Error(log.CatRegistry, "New tag not persisted, will retry on expiry", "tag", name, "error", err)
		}
	})

	log.Info(log.CatRegistry, "Tag created", "tag", name)
	return tag, saved, nil
}

// Find returns the tag from cache or store, or nil.
func (s *Tags) Find(ctx context.Context, name string) *domain.Tag {
	return s.reg.FindInBoth(ctx, name)
}

// Exists reports whether the tag is cached or stored.
func (s *Tags) Exists(ctx context.Context, name string) bool {
	return s.reg.ExistsGlobally(ctx, name)
}

// Save persists the cached tag.
func (s *Tags) Save(ctx context.Context, name string) error {
	tag := s.reg.FindInCache(name)
	if tag == nil {
		return fmt.Errorf("%w: %s", ErrTagNotFound, name)
	}
	ok, err := s.reg.Save(ctx, tag).Await(ctx)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("save tag %s: %w", name, ErrNotPersisted)
	}
	return nil
}

// Delete removes the tag from cache and store.
func (s *Tags) Delete(ctx context.Context, name string) error {
	cached := s.reg.Unregister(name)
	ok, err := s.reg.Delete(ctx, name).Await(ctx)
	if err != nil {
		return err
	}
	if !ok {
		if s.reg.ExistsInInfrastructure(ctx, name) {
			if cached != nil {
				s.reg.Register(cached)
			}
			return fmt.Errorf("delete tag %s: %w", name, ErrNotPersisted)
		}
		if cached == nil {
			return fmt.Errorf("%w: %s", ErrTagNotFound, name)
		}
		// Registered but never persisted: dropping it from the cache is the
		// whole delete.
	}

	log.Info(log.CatRegistry, "Tag deleted", "tag", name)
	return nil
}

// List returns the cached tags ordered by name.
func (s *Tags) List() []*domain.Tag {
	return s.reg.FindAllInCache()
}
