package model

// ImportRow is one line of a bulk registration upload. Students are keyed by
// directory name, events by exact name; game types are attached without team
// refs (teams are always formed interactively).
type ImportRow struct {
	EventName   string   `json:"event_name" validate:"required"`
	StudentName string   `json:"student_name" validate:"required"`
	Group       string   `json:"group"`
	GameTypes   []string `json:"game_types" validate:"required,min=1"`
}

type ImportRowError struct {
	Row         int    `json:"row"`
	StudentName string `json:"student_name"`
	Error       string `json:"error"`
}

// ImportResult always describes the whole batch; bad rows are reported here,
// never escalated to a failure of the call.
type ImportResult struct {
	InsertedCount int               `json:"inserted_count"`
	UpdatedCount  int               `json:"updated_count"`
	Errors        []*ImportRowError `json:"errors"`
}

// ExportRow is one flattened (student, game type) line of the event report.
type ExportRow struct {
	StudentID  string             `json:"student_id"`
	Group      string             `json:"group"`
	GameType   string             `json:"game_type"`
	TeamName   string             `json:"team_name,omitempty"`
	RunOrder   int                `json:"run_order,omitempty"`
	Captain    bool               `json:"captain"`
	InviteCode string             `json:"invite_code,omitempty"`
	Status     RegistrationStatus `json:"status"`
}
