package domain

// PlayerState is the payload of a player aggregate.
type PlayerState struct {
	// SelectedTag is the id of the tag the player displays, empty for none.
	SelectedTag string `json:"selected_tag,omitempty" yaml:"selected_tag,omitempty"`
}

// HasSelection reports whether a tag is selected.
func (s PlayerState) HasSelection() bool {
	return s.SelectedTag != ""
}

// Player is the per-actor selection record. Its id is the actor id.
type Player = Aggregate[PlayerState]

// NewPlayer synthesizes an empty player for an actor seen for the first time.
func NewPlayer(actorID string) *Player {
	return NewAggregate(actorID, PlayerState{})
}
