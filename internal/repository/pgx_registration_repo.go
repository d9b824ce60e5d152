package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"
	"github.com/stephenafamo/bob"
	"github.com/stephenafamo/bob/dialect/psql"
	"github.com/stephenafamo/bob/dialect/psql/dialect"
	"github.com/stephenafamo/bob/dialect/psql/dm"
	"github.com/stephenafamo/bob/dialect/psql/im"
	"github.com/stephenafamo/bob/dialect/psql/sm"
	"github.com/stephenafamo/bob/dialect/psql/um"

	"github.com/mzheng-dev/sportsmeet/internal/db"
	"github.com/mzheng-dev/sportsmeet/internal/model"
)

type Registration struct {
	ID        string                   `db:"id"`
	EventID   string                   `db:"event_id"`
	StudentID string                   `db:"student_id"`
	Status    model.RegistrationStatus `db:"status"`
	CreatedAt *time.Time               `db:"created_at"`
}

// Entry is one (student, game type) line of the ledger. TeamID, RunOrder and
// Captain are set only for team game types.
type Entry struct {
	ID             string  `db:"id"`
	RegistrationID string  `db:"registration_id"`
	GameType       string  `db:"game_type"`
	Group          string  `db:"grp"`
	Difficulty     *string `db:"difficulty"`
	TeamID         *string `db:"team_id"`
	RunOrder       *int    `db:"run_order"`
	Captain        bool    `db:"captain"`
}

type EntryPatch struct {
	ID         string  `db:"id"`
	Group      *string `db:"grp"`
	Difficulty *string `db:"difficulty"`
	TeamID     *string `db:"team_id"`
	RunOrder   *int    `db:"run_order"`
	Captain    *bool   `db:"captain"`
}

// ExportRow is the flattened (student, game type) report line.
type ExportRow struct {
	StudentID  string                   `db:"student_id"`
	Group      string                   `db:"grp"`
	GameType   string                   `db:"game_type"`
	TeamName   *string                  `db:"team_name"`
	RunOrder   *int                     `db:"run_order"`
	Captain    bool                     `db:"captain"`
	InviteCode *string                  `db:"invite_code"`
	Status     model.RegistrationStatus `db:"status"`
}

type RegistrationRepository interface {
	Get(ctx context.Context, eventID, studentID string) (*Registration, error)
	Create(ctx context.Context, reg *Registration) error
	PatchStatus(ctx context.Context, registrationID string, status model.RegistrationStatus) error

	GetEntry(ctx context.Context, registrationID, gameType string) (*Entry, error)
	GetActiveEntry(ctx context.Context, eventID, studentID, gameType string) (*Entry, error)
	CreateEntry(ctx context.Context, entry *Entry) error
	PatchEntry(ctx context.Context, patch *EntryPatch) error
	// ClearTeamRef detaches an entry from its team: team_id and run_order
	// go NULL, captain drops. Used when a revived registration must not
	// re-occupy slots freed by its cancellation.
	ClearTeamRef(ctx context.Context, entryID string) error
	DeleteEntry(ctx context.Context, entryID string) error
	SetCaptain(ctx context.Context, entryID string, captain bool) error
	MaxRunOrder(ctx context.Context, teamID string) (int, error)
	EntriesFor(ctx context.Context, registrationID string) ([]*Entry, error)

	ExportRows(ctx context.Context, eventID string) ([]*ExportRow, error)
}

type pgxRegistrationRepository struct {
	pool *pgxpool.Pool
}

func NewPgxRegistrationRepository(pool *pgxpool.Pool) RegistrationRepository {
	return &pgxRegistrationRepository{pool: pool}
}

func (p *pgxRegistrationRepository) Get(ctx context.Context, eventID, studentID string) (*Registration, error) {
	e := db.GetPgxExecutorFromContext(ctx, p.pool)

	q := psql.Select(
		sm.Columns("id", "event_id", "student_id", "status", "created_at"),
		sm.From("registration"),
		sm.Where(psql.Quote("event_id").EQ(psql.Arg(eventID))),
		sm.Where(psql.Quote("student_id").EQ(psql.Arg(studentID))),
	)

	sql, args, err := q.Build(ctx)
	if err != nil {
		return nil, err
	}

	reg := &Registration{}
	if err = e.QueryRow(ctx, sql, args...).Scan(
		&reg.ID,
		&reg.EventID,
		&reg.StudentID,
		&reg.Status,
		&reg.CreatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return reg, nil
}

func (p *pgxRegistrationRepository) Create(ctx context.Context, reg *Registration) error {
	e := db.GetPgxExecutorFromContext(ctx, p.pool)

	q := psql.Insert(
		im.Into("registration", "id", "event_id", "student_id", "status"),
		im.Values(psql.Arg(reg.ID), psql.Arg(reg.EventID), psql.Arg(reg.StudentID), psql.Arg(reg.Status)),
		im.Returning("id", "event_id", "student_id", "status", "created_at"),
	)

	sql, args, err := q.Build(ctx)
	if err != nil {
		return err
	}

	err = e.QueryRow(ctx, sql, args...).Scan(
		&reg.ID,
		&reg.EventID,
		&reg.StudentID,
		&reg.Status,
		&reg.CreatedAt,
	)

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505":
			return ErrAlreadyExists
		case "23503": // event does not exist
			return ErrNotFound
		}
	}
	return err
}

func (p *pgxRegistrationRepository) PatchStatus(ctx context.Context, registrationID string, status model.RegistrationStatus) error {
	e := db.GetPgxExecutorFromContext(ctx, p.pool)

	q := psql.Update(
		um.Table("registration"),
		um.SetCol("status").ToArg(status),
		um.Where(psql.Quote("id").EQ(psql.Arg(registrationID))),
	)

	sql, args, err := q.Build(ctx)
	if err != nil {
		return err
	}

	tag, err := e.Exec(ctx, sql, args...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *pgxRegistrationRepository) GetEntry(ctx context.Context, registrationID, gameType string) (*Entry, error) {
	e := db.GetPgxExecutorFromContext(ctx, p.pool)

	q := psql.Select(
		sm.Columns("id", "registration_id", "game_type", "grp", "difficulty", "team_id", "run_order", "captain"),
		sm.From("registration_entry"),
		sm.Where(psql.Quote("registration_id").EQ(psql.Arg(registrationID))),
		sm.Where(psql.Quote("game_type").EQ(psql.Arg(gameType))),
	)

	sql, args, err := q.Build(ctx)
	if err != nil {
		return nil, err
	}

	return scanEntry(e.QueryRow(ctx, sql, args...))
}

// GetActiveEntry finds the student's live entry for one (event, game type):
// the uniqueness scope of the ledger. Entries under a cancelled registration
// do not count.
func (p *pgxRegistrationRepository) GetActiveEntry(ctx context.Context, eventID, studentID, gameType string) (*Entry, error) {
	e := db.GetPgxExecutorFromContext(ctx, p.pool)

	q := psql.Select(
		sm.Columns("e.id", "e.registration_id", "e.game_type", "e.grp", "e.difficulty", "e.team_id", "e.run_order", "e.captain"),
		sm.From("registration_entry").As("e"),
		sm.InnerJoin("registration").As("r").On(psql.Quote("r", "id").EQ(psql.Quote("e", "registration_id"))),
		sm.Where(psql.Quote("r", "event_id").EQ(psql.Arg(eventID))),
		sm.Where(psql.Quote("r", "student_id").EQ(psql.Arg(studentID))),
		sm.Where(psql.Quote("e", "game_type").EQ(psql.Arg(gameType))),
		sm.Where(psql.Quote("r", "status").NE(psql.Arg(string(model.StatusCancelled)))),
	)

	sql, args, err := q.Build(ctx)
	if err != nil {
		return nil, err
	}

	return scanEntry(e.QueryRow(ctx, sql, args...))
}

func scanEntry(row pgx.Row) (*Entry, error) {
	entry := &Entry{}
	if err := row.Scan(
		&entry.ID,
		&entry.RegistrationID,
		&entry.GameType,
		&entry.Group,
		&entry.Difficulty,
		&entry.TeamID,
		&entry.RunOrder,
		&entry.Captain,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return entry, nil
}

func (p *pgxRegistrationRepository) CreateEntry(ctx context.Context, entry *Entry) error {
	e := db.GetPgxExecutorFromContext(ctx, p.pool)

	q := psql.Insert(
		im.Into("registration_entry", "id", "registration_id", "game_type", "grp", "difficulty", "team_id", "run_order", "captain"),
		im.Values(
			psql.Arg(entry.ID),
			psql.Arg(entry.RegistrationID),
			psql.Arg(entry.GameType),
			psql.Arg(entry.Group),
			psql.Arg(entry.Difficulty),
			psql.Arg(entry.TeamID),
			psql.Arg(entry.RunOrder),
			psql.Arg(entry.Captain),
		),
	)

	sql, args, err := q.Build(ctx)
	if err != nil {
		return err
	}

	_, err = e.Exec(ctx, sql, args...)

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		// Duplicate (registration, game type) or a taken relay leg; either
		// way a concurrent writer got there first.
		return ErrAlreadyExists
	}

	return err
}

func (p *pgxRegistrationRepository) PatchEntry(ctx context.Context, patch *EntryPatch) error {
	e := db.GetPgxExecutorFromContext(ctx, p.pool)

	sets := make([]bob.Mod[*dialect.UpdateQuery], 0, 5)
	if patch.Group != nil {
		sets = append(sets, um.SetCol("grp").ToArg(*patch.Group))
	}
	if patch.Difficulty != nil {
		sets = append(sets, um.SetCol("difficulty").ToArg(*patch.Difficulty))
	}
	if patch.TeamID != nil {
		sets = append(sets, um.SetCol("team_id").ToArg(*patch.TeamID))
	}
	if patch.RunOrder != nil {
		sets = append(sets, um.SetCol("run_order").ToArg(*patch.RunOrder))
	}
	if patch.Captain != nil {
		sets = append(sets, um.SetCol("captain").ToArg(*patch.Captain))
	}

	q := psql.Update(
		um.Table("registration_entry"),
		um.Where(psql.Quote("id").EQ(psql.Arg(patch.ID))),
	)

	q.Apply(sets...)

	sql, args, err := q.Build(ctx)
	if err != nil {
		return err
	}

	tag, err := e.Exec(ctx, sql, args...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *pgxRegistrationRepository) ClearTeamRef(ctx context.Context, entryID string) error {
	e := db.GetPgxExecutorFromContext(ctx, p.pool)

	q := psql.Update(
		um.Table("registration_entry"),
		um.SetCol("team_id").To(psql.Raw("NULL")),
		um.SetCol("run_order").To(psql.Raw("NULL")),
		um.SetCol("captain").ToArg(false),
		um.Where(psql.Quote("id").EQ(psql.Arg(entryID))),
	)

	sql, args, err := q.Build(ctx)
	if err != nil {
		return err
	}

	tag, err := e.Exec(ctx, sql, args...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *pgxRegistrationRepository) DeleteEntry(ctx context.Context, entryID string) error {
	e := db.GetPgxExecutorFromContext(ctx, p.pool)

	q := psql.Delete(
		dm.From("registration_entry"),
		dm.Where(psql.Quote("id").EQ(psql.Arg(entryID))),
	)

	sql, args, err := q.Build(ctx)
	if err != nil {
		return err
	}

	tag, err := e.Exec(ctx, sql, args...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *pgxRegistrationRepository) SetCaptain(ctx context.Context, entryID string, captain bool) error {
	c := captain
	return p.PatchEntry(ctx, &EntryPatch{ID: entryID, Captain: &c})
}

// MaxRunOrder covers every member ever attached to the team, cancelled ones
// included, so a relay leg number is never reissued after churn.
func (p *pgxRegistrationRepository) MaxRunOrder(ctx context.Context, teamID string) (int, error) {
	e := db.GetPgxExecutorFromContext(ctx, p.pool)

	q := psql.Select(
		sm.Columns(psql.Raw("COALESCE(MAX(run_order), 0)")),
		sm.From("registration_entry"),
		sm.Where(psql.Quote("team_id").EQ(psql.Arg(teamID))),
	)

	sql, args, err := q.Build(ctx)
	if err != nil {
		return 0, err
	}

	var max int
	if err = e.QueryRow(ctx, sql, args...).Scan(&max); err != nil {
		return 0, err
	}
	return max, nil
}

func (p *pgxRegistrationRepository) EntriesFor(ctx context.Context, registrationID string) ([]*Entry, error) {
	e := db.GetPgxExecutorFromContext(ctx, p.pool)

	q := psql.Select(
		sm.Columns("id", "registration_id", "game_type", "grp", "difficulty", "team_id", "run_order", "captain"),
		sm.From("registration_entry"),
		sm.Where(psql.Quote("registration_id").EQ(psql.Arg(registrationID))),
		sm.OrderBy("game_type"),
	)

	sql, args, err := q.Build(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := e.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*Entry, error) {
		entry := &Entry{}
		if err = row.Scan(
			&entry.ID,
			&entry.RegistrationID,
			&entry.GameType,
			&entry.Group,
			&entry.Difficulty,
			&entry.TeamID,
			&entry.RunOrder,
			&entry.Captain,
		); err != nil {
			return nil, err
		}
		return entry, nil
	})
	if err != nil {
		return nil, err
	}

	return entries, nil
}

func (p *pgxRegistrationRepository) ExportRows(ctx context.Context, eventID string) ([]*ExportRow, error) {
	e := db.GetPgxExecutorFromContext(ctx, p.pool)

	q := psql.Select(
		sm.Columns("r.student_id", "e.grp", "e.game_type", "t.name", "e.run_order", "e.captain", "t.invite_code", "r.status"),
		sm.From("registration_entry").As("e"),
		sm.InnerJoin("registration").As("r").On(psql.Quote("r", "id").EQ(psql.Quote("e", "registration_id"))),
		sm.LeftJoin("team").As("t").On(psql.Quote("t", "id").EQ(psql.Quote("e", "team_id"))),
		sm.Where(psql.Quote("r", "event_id").EQ(psql.Arg(eventID))),
		sm.OrderBy("e.game_type"),
		sm.OrderBy("t.name"),
		sm.OrderBy("e.run_order"),
	)

	sql, args, err := q.Build(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := e.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*ExportRow, error) {
		r := &ExportRow{}
		if err = row.Scan(
			&r.StudentID,
			&r.Group,
			&r.GameType,
			&r.TeamName,
			&r.RunOrder,
			&r.Captain,
			&r.InviteCode,
			&r.Status,
		); err != nil {
			return nil, err
		}
		return r, nil
	})
	if err != nil {
		return nil, err
	}

	return out, nil
}
