package application

import (
	"context"
	"errors"
	"fmt"

	"github.com/zjrosen/nametags/internal/log"
	"github.com/zjrosen/nametags/internal/modification"
	"github.com/zjrosen/nametags/internal/sessions"
)

// Editor starts and arms edit sessions and routes input to the processor.
type Editor struct {
	sessions  *sessions.Store
	tags      *Tags
	players   *Players
	processor *modification.Processor
}

// NewEditor creates the edit flow.
func NewEditor(store *sessions.Store, tags *Tags, players *Players, processor *modification.Processor) *Editor {
	return &Editor{sessions: store, tags: tags, players: players, processor: processor}
}

// Begin opens an edit of tagID for actorID. It fails if the actor already
// has a session or the tag does not exist.
func (e *Editor) Begin(ctx context.Context, actorID, tagID string) error {
	if !e.players.Online(actorID) {
		return fmt.Errorf("%w: %s", ErrPlayerOffline, actorID)
	}
	if e.sessions.Exists(actorID) {
		return ErrSessionActive
	}
	if !e.tags.Exists(ctx, tagID) {
		return fmt.Errorf("%w: %s", ErrTagNotFound, tagID)
	}
	if !e.sessions.Save(sessions.Session{ActorID: actorID, TargetTag: tagID}) {
		return ErrSessionActive
	}
	return nil
}

// Arm chooses the property the pending edit modifies. A session that
// expired in the meantime is ignored.
func (e *Editor) Arm(actorID string, c modification.Context) error {
	if !c.Armed() {
		return fmt.Errorf("%w: %s", modification.ErrUnsupportedContext, c)
	}
	if !e.sessions.Exists(actorID) {
		return modification.ErrNoSession
	}
	e.sessions.Update(actorID, c)
	log.Debug(log.CatEdit, "Session armed", "actor", actorID, "context", c)
	return nil
}

// Pending returns the actor's session, if any.
func (e *Editor) Pending(actorID string) (sessions.Session, bool) {
	return e.sessions.Find(actorID)
}

// Submit feeds one input line to the actor's armed session. handled is
// false when the actor has no armed session, in which case the line is
// ordinary chat.
func (e *Editor) Submit(ctx context.Context, actorID, line string) (res modification.Result, handled bool, err error) {
	session, ok := e.sessions.Find(actorID)
	if !ok || !session.Context.Armed() {
		return modification.Result{}, false, nil
	}
	res, err = e.processor.Process(ctx, actorID, line)
	if errors.Is(err, modification.ErrNoSession) {
		// Expired between the check and the call.
		return modification.Result{}, false, nil
	}
	return res, true, err
}
