package sessions

import (
	"context"
	"sync"
	"time"

	"github.com/zjrosen/nametags/internal/cachemanager"
	"github.com/zjrosen/nametags/internal/log"
	"github.com/zjrosen/nametags/internal/pubsub"
)

// DefaultTTL is the inactivity window after which a session is dropped.
const DefaultTTL = 15 * time.Second

// DefaultCleanupInterval is how often expired sessions are swept.
const DefaultCleanupInterval = time.Second

// Expired is published when a session times out.
type Expired struct {
	Session Session
	At      time.Time
}

// Store is the sliding-TTL session cache keyed by actor id. Every Find,
// Save and Update restarts the session's window.
type Store struct {
	ttl     time.Duration
	cache   *cachemanager.InMemoryCacheManager[string, Session]
	expired *pubsub.Broker[Expired]

	// mu serializes Update against Delete so an update never resurrects a
	// session that was just removed.
	mu sync.Mutex
}

// Option configures a Store.
type Option func(*options)

type options struct {
	ttl     time.Duration
	cleanup time.Duration
}

// WithTTL overrides DefaultTTL.
func WithTTL(ttl time.Duration) Option {
	return func(o *options) {
		if ttl > 0 {
			o.ttl = ttl
		}
	}
}

// WithCleanupInterval overrides DefaultCleanupInterval.
func WithCleanupInterval(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.cleanup = d
		}
	}
}

// NewStore creates an empty session store.
func NewStore(opts ...Option) *Store {
	o := options{ttl: DefaultTTL, cleanup: DefaultCleanupInterval}
	for _, opt := range opts {
		opt(&o)
	}

	s := &Store{
		ttl:     o.ttl,
		cache:   cachemanager.NewInMemoryCacheManager[string, Session]("sessions", o.ttl, o.cleanup),
		expired: pubsub.NewBroker[Expired](),
	}
	s.cache.OnExpire(func(actorID string, session Session) {
		log.Debug(log.CatSession, "Session expired", "actor", actorID, "tag", session.TargetTag,
			"context", session.Context)
		s.expired.Publish(pubsub.ExpiredEvent, Expired{Session: session, At: time.Now()})
	})
	return s
}

// TTL returns the inactivity window.
func (s *Store) TTL() time.Duration {
	return s.ttl
}

// Find returns the actor's session and refreshes its window.
func (s *Store) Find(actorID string) (Session, bool) {
	return s.cache.GetWithRefresh(context.Background(), actorID, s.ttl)
}

// Exists reports whether the actor has a session. It does not refresh.
func (s *Store) Exists(actorID string) bool {
	_, ok := s.cache.Get(context.Background(), actorID)
	return ok
}

// Save creates the session. It returns false, leaving the existing one in
// place, when the actor already has a session.
func (s *Store) Save(session Session) bool {
	ok := s.cache.Add(context.Background(), session.ActorID, session, s.ttl)
	if ok {
		log.Debug(log.CatSession, "Session started", "actor", session.ActorID, "tag", session.TargetTag)
	}
	return ok
}

// Update assigns the context of an existing session. A missing session is
// ignored: it may have expired between the caller's check and this call.
func (s *Store) Update(actorID string, c Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ctx := context.Background()
	session, ok := s.cache.Get(ctx, actorID)
	if !ok {
		log.Debug(log.CatSession, "Update on missing session ignored", "actor", actorID)
		return
	}
	session.Context = c
	s.cache.Replace(ctx, actorID, session, s.ttl)
}

// Take removes and returns the actor's session. Of concurrent callers only
// one gets it. The expiry notification is not published.
func (s *Store) Take(actorID string) (Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.cache.Take(context.Background(), actorID)
}

// Delete removes the actor's session and reports whether one existed.
// The expiry notification is not published.
func (s *Store) Delete(actorID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.cache.Take(context.Background(), actorID)
	return ok
}

// Clear drops every session without notifying.
func (s *Store) Clear() {
	_ = s.cache.Flush(context.Background())
}

// Count returns the number of sessions, including expired ones not yet
// swept.
func (s *Store) Count() int {
	return s.cache.Count()
}

// Expirations returns a channel of expiry notices closed when ctx is done.
// Delivery is best-effort.
func (s *Store) Expirations(ctx context.Context) <-chan pubsub.Event[Expired] {
	return s.expired.Subscribe(ctx)
}

// Close clears the store and closes the expiry broker.
func (s *Store) Close() {
	s.Clear()
	s.expired.Close()
}
