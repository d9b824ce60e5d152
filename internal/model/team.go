package model

type Member struct {
	StudentID string `json:"student_id"`
	RunOrder  int    `json:"run_order"`
	Captain   bool   `json:"captain"`
}

// CallerStatus tells the student resolving an invite where they stand with
// respect to the roster before they commit to anything.
type CallerStatus string

const (
	CallerCanJoin  CallerStatus = "can_join"
	CallerMember   CallerStatus = "member"
	CallerConflict CallerStatus = "conflict" // active entry for the game type elsewhere; switch required
	CallerTeamFull CallerStatus = "team_full"
)

// TeamRoster is one team game type's roster inside a registration view.
type TeamRoster struct {
	GameType        string    `json:"game_type"`
	TeamName        string    `json:"team_name"`
	InviteCode      string    `json:"invite_code"`
	Capacity        int       `json:"capacity"`
	Members         []*Member `json:"members"`
	CallerIsCaptain bool      `json:"caller_is_captain"`
}

// RegistrationView is the per-(student, event) read composition: the ledger
// row plus the full roster of every team the student is on.
type RegistrationView struct {
	Registration *Registration `json:"registration"`
	Teams        []*TeamRoster `json:"teams"`
}

// TeamView is the resolved state of one invite code: the roster plus enough
// event context for the caller to decide whether to join.
type TeamView struct {
	EventID          string       `json:"event_id"`
	EventName        string       `json:"event_name"`
	GameType         string       `json:"game_type"`
	TeamName         string       `json:"team_name"`
	InviteCode       string       `json:"invite_code"`
	Capacity         int          `json:"capacity"`
	CreatorStudentID string       `json:"creator_student_id"`
	Members          []*Member    `json:"members"`
	CallerStatus     CallerStatus `json:"caller_status,omitempty"`
}
