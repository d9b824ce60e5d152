package model

import "time"

// GameType is a competition category within an event. TeamSize is nil for
// individual categories; team categories carry the fixed roster cap.
type GameType struct {
	Name     string `json:"name" validate:"required"`
	TeamSize *int   `json:"team_size,omitempty"`
}

func (g *GameType) IsTeam() bool {
	return g.TeamSize != nil
}

type Event struct {
	ID               string      `json:"event_id"`
	Name             string      `json:"event_name"`
	GameTypes        []*GameType `json:"game_types,omitempty"`
	Groups           []string    `json:"groups,omitempty"`
	OpenRegistration bool        `json:"open_registration"`
	StartDate        time.Time   `json:"start_date"`
	EndDate          time.Time   `json:"end_date"`
}

// RegistrationOpen reports whether the event accepts mutations at the given
// instant: the window flag is up and the end date has not passed.
func (e *Event) RegistrationOpen(now time.Time) bool {
	return e.OpenRegistration && !now.After(e.EndDate)
}
