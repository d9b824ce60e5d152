package model

import "time"

type RegistrationStatus string

const (
	StatusPending   RegistrationStatus = "pending"
	StatusConfirmed RegistrationStatus = "confirmed"
	StatusCancelled RegistrationStatus = "cancelled"
)

// TeamRef is the student's own slice of a team roster, stored on the entry.
type TeamRef struct {
	TeamName   string `json:"team_name"`
	InviteCode string `json:"invite_code"`
	RunOrder   int    `json:"run_order"`
	Captain    bool   `json:"captain"`
}

type GameTypeEntry struct {
	GameType   string   `json:"game_type"`
	Group      string   `json:"group,omitempty"`
	Difficulty *string  `json:"difficulty,omitempty"`
	Team       *TeamRef `json:"team,omitempty"`
}

// Registration is one student's ledger row for one event. Entries are mutated
// in place as the student joins, leaves or switches game types; the row itself
// is only ever created once per (event, student).
type Registration struct {
	ID        string             `json:"registration_id"`
	EventID   string             `json:"event_id"`
	StudentID string             `json:"student_id"`
	Status    RegistrationStatus `json:"status"`
	Entries   []*GameTypeEntry   `json:"entries"`
	CreatedAt *time.Time         `json:"created_at,omitempty"`
}
