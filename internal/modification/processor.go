// Package modification resolves pending tag edits. A session armed with a
// property consumes exactly one input line; the Processor turns that line
// into a committed change, a no-op, or a terminal failure, and always
// destroys the session.
package modification

import (
	"context"
	"fmt"
	"strings"

	"github.com/zjrosen/nametags/internal/domain"
	"github.com/zjrosen/nametags/internal/log"
	"github.com/zjrosen/nametags/internal/pool"
	"github.com/zjrosen/nametags/internal/pubsub"
	"github.com/zjrosen/nametags/internal/sessions"
	"github.com/zjrosen/nametags/internal/styledtext"
)

// Tags is the registry surface the processor needs.
type Tags interface {
	FindInBoth(ctx context.Context, id string) *domain.Tag
	Save(ctx context.Context, tag *domain.Tag) *pool.Future[bool]
}

// Presence reports whether an actor can still receive the result.
type Presence interface {
	Online(actorID string) bool
}

// Change is what an Observer is asked to approve.
type Change struct {
	ActorID string
	TagID   string
	Context Context
	Input   string
}

// Observer may veto a change before it is applied.
type Observer interface {
	BeforeChange(ctx context.Context, change Change) bool
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(ctx context.Context, change Change) bool

func (f ObserverFunc) BeforeChange(ctx context.Context, change Change) bool {
	return f(ctx, change)
}

// Processor resolves sessions against the tag registry.
type Processor struct {
	sessions *sessions.Store
	tags     Tags
	presence Presence
	observer Observer
	outcomes *pubsub.Broker[Result]
}

// Option configures a Processor.
type Option func(*Processor)

// WithPresence sets the actor presence check. Without it every actor is
// considered online.
func WithPresence(p Presence) Option {
	return func(proc *Processor) { proc.presence = p }
}

// WithObserver sets the change observer. Without it every change is
// approved.
func WithObserver(o Observer) Option {
	return func(proc *Processor) { proc.observer = o }
}

// NewProcessor creates a processor over the given session store and tags.
func NewProcessor(store *sessions.Store, tags Tags, opts ...Option) *Processor {
	p := &Processor{
		sessions: store,
		tags:     tags,
		outcomes: pubsub.NewBroker[Result](),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Outcomes returns a channel of resolutions, closed when ctx is done.
// Committed changes are published as pubsub.UpdatedEvent and every other
// resolution as pubsub.ResolvedEvent; pass types to receive only those.
func (p *Processor) Outcomes(ctx context.Context, types ...pubsub.EventType) <-chan pubsub.Event[Result] {
	return p.outcomes.Subscribe(ctx, types...)
}

// Close closes the outcome broker.
func (p *Processor) Close() {
	p.outcomes.Close()
}

// HasSession reports whether actorID has a pending edit.
func (p *Processor) HasSession(actorID string) bool {
	return p.sessions.Exists(actorID)
}

// Process consumes one input line for actorID's session. It returns
// ErrNoSession when there is none and ErrUnsupportedContext when the session
// was never armed; every other resolution is reported through Result. The
// session is claimed before anything else, so of two lines racing for it
// the second gets ErrNoSession.
func (p *Processor) Process(ctx context.Context, actorID, input string) (Result, error) {
	session, ok := p.sessions.Take(actorID)
	if !ok {
		return Result{}, ErrNoSession
	}

	res := Result{ActorID: actorID, TagID: session.TargetTag, Context: session.Context}
	keyword := strings.TrimSpace(input)

	if strings.EqualFold(keyword, KeywordCancel) {
		res.Outcome = OutcomeCancelled
		return p.resolve(res), nil
	}

	if p.presence != nil && !p.presence.Online(actorID) {
		res.Outcome = OutcomeFailed
		res.Err = ErrActorOffline
		return p.resolve(res), nil
	}

	tag := p.tags.FindInBoth(ctx, session.TargetTag)
	if tag == nil {
		res.Outcome = OutcomeInvalidTarget
		return p.resolve(res), nil
	}

	change := Change{ActorID: actorID, TagID: tag.ID(), Context: session.Context, Input: input}
	if p.observer != nil && !p.observer.BeforeChange(ctx, change) {
		res.Outcome = OutcomeProcessCancelled
		res.Before = tag.Payload()
		res.After = res.Before
		return p.resolve(res), nil
	}

	var handleErr error
	tag.Update(func(current domain.Properties) domain.Properties {
		res.Before = current
		res.After, res.Outcome, handleErr = handle(session.Context, current, input)
		if !res.Outcome.Mutates() {
			res.After = current
		}
		return res.After
	})
	if handleErr != nil {
		if res.Outcome != OutcomeFailed {
			log.ErrorErr(log.CatEdit, "Session reached dispatch unarmed", handleErr,
				"actor", actorID, "tag", tag.ID(), "context", session.Context)
			return res, handleErr
		}
		res.Err = handleErr
	}

	if res.Outcome.Mutates() {
		saved, err := p.tags.Save(ctx, tag).Await(ctx)
		if !saved {
			tag.SetPayload(res.Before)
			res.Outcome = OutcomeFailed
			res.Err = fmt.Errorf("%w: %s", ErrSaveFailed, tag.ID())
			if err != nil {
				res.Err = fmt.Errorf("%w: %s: %w", ErrSaveFailed, tag.ID(), err)
			}
		}
	}
	return p.resolve(res), nil
}

func (p *Processor) resolve(res Result) Result {
	log.Info(log.CatEdit, "Modification resolved",
		"actor", res.ActorID, "tag", res.TagID, "context", res.Context, "outcome", res.Outcome)
	eventType := pubsub.ResolvedEvent
	if res.Outcome.Mutates() {
		eventType = pubsub.UpdatedEvent
	}
	p.outcomes.Publish(eventType, res)
	return res
}

// handle dispatches on the armed context. It returns ErrUnsupportedContext
// with a non-Failed outcome for an unarmed session so the caller can tell a
// bug from bad input.
func handle(c Context, current domain.Properties, input string) (domain.Properties, Outcome, error) {
	switch c {
	case ContextColor:
		return handleColor(current, input)
	case ContextPrefix:
		return handleText(current, input, current.Prefix, current.WithPrefix)
	case ContextSuffix:
		return handleText(current, input, current.Suffix, current.WithSuffix)
	default:
		return current, OutcomeUnchanged, fmt.Errorf("%w: %s", ErrUnsupportedContext, c)
	}
}

func handleColor(current domain.Properties, input string) (domain.Properties, Outcome, error) {
	color, ok := domain.ParseColor(input)
	if !ok {
		return current, OutcomeFailed, fmt.Errorf("%w: %q", ErrUnknownColor, strings.TrimSpace(input))
	}
	if color == current.Color {
		return current, OutcomeUnchanged, nil
	}
	return current.WithColor(color), OutcomeModified, nil
}

func handleText(current domain.Properties, input string, field *styledtext.Text,
	with func(*styledtext.Text) domain.Properties) (domain.Properties, Outcome, error) {
	if strings.EqualFold(strings.TrimSpace(input), KeywordClear) {
		if field == nil {
			return current, OutcomeUnchanged, nil
		}
		return with(nil), OutcomeCleared, nil
	}

	parsed, err := styledtext.Parse(input)
	if err != nil {
		return current, OutcomeFailed, err
	}
	if styledtext.EqualPtr(field, &parsed) {
		return current, OutcomeUnchanged, nil
	}
	return with(&parsed), OutcomeModified, nil
}
