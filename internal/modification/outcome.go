package modification

import (
	"errors"
	"fmt"

	"github.com/zjrosen/nametags/internal/domain"
	"github.com/zjrosen/nametags/internal/sessions"
)

// Context is the property a session is armed to modify.
type Context = sessions.Context

const (
	ContextNone   = sessions.ContextNone
	ContextPrefix = sessions.ContextPrefix
	ContextSuffix = sessions.ContextSuffix
	ContextColor  = sessions.ContextColor
)

// Reserved input keywords, matched case-insensitively.
const (
	KeywordCancel = "cancel"
	KeywordClear  = "clear"
)

var (
	// ErrNoSession is returned when the actor has no pending edit.
	ErrNoSession = errors.New("no modification session")

	// ErrUnsupportedContext is returned when a session reaches dispatch
	// without an armed context. It indicates a caller bug.
	ErrUnsupportedContext = errors.New("unsupported modification context")

	// ErrUnknownColor is the cause of a Failed color edit.
	ErrUnknownColor = errors.New("unknown color")

	// ErrActorOffline is the cause of a Failed edit whose actor left.
	ErrActorOffline = errors.New("actor is no longer reachable")

	// ErrSaveFailed is the cause of a Failed edit whose save was refused.
	ErrSaveFailed = errors.New("tag could not be saved")
)

// Outcome is the terminal resolution of a session.
type Outcome int

const (
	OutcomeModified Outcome = iota
	OutcomeCleared
	OutcomeUnchanged
	OutcomeCancelled
	OutcomeInvalidTarget
	OutcomeProcessCancelled
	OutcomeFailed
)

var outcomeNames = [...]string{
	OutcomeModified:         "modified",
	OutcomeCleared:          "cleared",
	OutcomeUnchanged:        "unchanged",
	OutcomeCancelled:        "cancelled",
	OutcomeInvalidTarget:    "invalid_target",
	OutcomeProcessCancelled: "process_cancelled",
	OutcomeFailed:           "failed",
}

func (o Outcome) String() string {
	if o >= 0 && int(o) < len(outcomeNames) {
		return outcomeNames[o]
	}
	return fmt.Sprintf("outcome(%d)", int(o))
}

// Mutates reports whether the outcome changed the tag.
func (o Outcome) Mutates() bool {
	return o == OutcomeModified || o == OutcomeCleared
}

// Result describes how one input line resolved a session.
type Result struct {
	ActorID string
	TagID   string
	Context Context
	Outcome Outcome

	// Before and After are the tag properties around the edit. They are
	// equal unless Outcome.Mutates().
	Before domain.Properties
	After  domain.Properties

	// Err is the cause of OutcomeFailed.
	Err error
}
