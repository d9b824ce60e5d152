package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"
	"github.com/stephenafamo/bob"
	"github.com/stephenafamo/bob/dialect/psql"
	"github.com/stephenafamo/bob/dialect/psql/dialect"
	"github.com/stephenafamo/bob/dialect/psql/im"
	"github.com/stephenafamo/bob/dialect/psql/sm"
	"github.com/stephenafamo/bob/dialect/psql/um"

	"github.com/mzheng-dev/sportsmeet/internal/db"
	"github.com/mzheng-dev/sportsmeet/internal/model"
)

// Team is the roster aggregate. Membership lives on registration entries; the
// row here carries identity, capacity and the version column every member
// mutation has to move through.
type Team struct {
	ID         string     `db:"id"`
	EventID    string     `db:"event_id"`
	GameType   string     `db:"game_type"`
	Name       string     `db:"name"`
	InviteCode string     `db:"invite_code"`
	Capacity   int        `db:"capacity"`
	Version    int        `db:"version"`
	Retired    bool       `db:"retired"`
	CreatedBy  string     `db:"created_by"`
	CreatedAt  *time.Time `db:"created_at"`
}

type TeamMember struct {
	EntryID        string                   `db:"entry_id"`
	RegistrationID string                   `db:"registration_id"`
	StudentID      string                   `db:"student_id"`
	RunOrder       int                      `db:"run_order"`
	Captain        bool                     `db:"captain"`
	Status         model.RegistrationStatus `db:"status"`
}

type TeamRepository interface {
	Create(ctx context.Context, team *Team) error
	Get(ctx context.Context, teamID string) (*Team, error)
	GetByCode(ctx context.Context, inviteCode string) (*Team, error)
	// ReserveSlot is the capacity gate for one join. It locks the team
	// row, counts active members on a fresh snapshot and bumps the
	// version only while the count is below capacity; ErrConflict when
	// the team is full, ErrNotFound when it is gone or retired. Must run
	// inside the caller's transaction so the row lock covers the member
	// insert that follows.
	ReserveSlot(ctx context.Context, teamID string) error
	ActiveMembers(ctx context.Context, teamID string) ([]*TeamMember, error)
	Rename(ctx context.Context, teamID, name string) error
	Retire(ctx context.Context, teamID string) error
}

type pgxTeamRepository struct {
	pool *pgxpool.Pool
}

func NewPgxTeamRepository(pool *pgxpool.Pool) TeamRepository {
	return &pgxTeamRepository{pool: pool}
}

func (p *pgxTeamRepository) Create(ctx context.Context, team *Team) error {
	e := db.GetPgxExecutorFromContext(ctx, p.pool)

	// DO NOTHING instead of raising: a raised unique violation would abort
	// the surrounding transaction, and the caller retries collided codes
	// inside it.
	q := psql.Insert(
		im.Into("team", "id", "event_id", "game_type", "name", "invite_code", "capacity", "created_by"),
		im.Values(
			psql.Arg(team.ID),
			psql.Arg(team.EventID),
			psql.Arg(team.GameType),
			psql.Arg(team.Name),
			psql.Arg(team.InviteCode),
			psql.Arg(team.Capacity),
			psql.Arg(team.CreatedBy),
		),
		im.OnConflict(psql.Quote("invite_code")).DoNothing(),
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
		// Invite code collision; the caller mints a new code and retries.
		return ErrAlreadyExists
	}

	return nil
}

func (p *pgxTeamRepository) Get(ctx context.Context, teamID string) (*Team, error) {
	return p.getWhere(ctx, psql.Quote("id").EQ(psql.Arg(teamID)))
}

// GetByCode resolves an invite code to its live team. Retired codes are never
// resolved again, so the retired filter is part of the lookup.
func (p *pgxTeamRepository) GetByCode(ctx context.Context, inviteCode string) (*Team, error) {
	return p.getWhere(ctx,
		psql.Quote("invite_code").EQ(psql.Arg(inviteCode)),
		psql.Quote("retired").EQ(psql.Arg(false)),
	)
}

func (p *pgxTeamRepository) getWhere(ctx context.Context, conds ...dialect.Expression) (*Team, error) {
	e := db.GetPgxExecutorFromContext(ctx, p.pool)

	q := psql.Select(
		sm.Columns("id", "event_id", "game_type", "name", "invite_code",
			"capacity", "version", "retired", "created_by", "created_at"),
		sm.From("team"),
	)
	for _, cond := range conds {
		q.Apply(sm.Where(cond))
	}

	sql, args, err := q.Build(ctx)
	if err != nil {
		return nil, err
	}

	team := &Team{}
	if err = e.QueryRow(ctx, sql, args...).Scan(
		&team.ID,
		&team.EventID,
		&team.GameType,
		&team.Name,
		&team.InviteCode,
		&team.Capacity,
		&team.Version,
		&team.Retired,
		&team.CreatedBy,
		&team.CreatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return team, nil
}

// ReserveSlot locks the team row before counting. A single guarded UPDATE
// with a count subquery is not safe at read committed: a blocked updater is
// re-evaluated against the winner's team row but the subquery keeps the old
// statement snapshot, so the loser would miss the member the winner just
// inserted. Taking the row lock first means the count below runs as a fresh
// statement, on a snapshot that includes everything committed while we
// waited.
func (p *pgxTeamRepository) ReserveSlot(ctx context.Context, teamID string) error {
	e := db.GetPgxExecutorFromContext(ctx, p.pool)

	lock := psql.Select(
		sm.Columns("capacity"),
		sm.From("team"),
		sm.Where(psql.Quote("id").EQ(psql.Arg(teamID))),
		sm.Where(psql.Quote("retired").EQ(psql.Arg(false))),
		sm.ForUpdate(),
	)

	sql, args, err := lock.Build(ctx)
	if err != nil {
		return err
	}

	var capacity int
	if err = e.QueryRow(ctx, sql, args...).Scan(&capacity); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		return err
	}

	count := psql.Select(
		sm.Columns(psql.Raw("COUNT(*)")),
		sm.From("registration_entry").As("e"),
		sm.InnerJoin("registration").As("r").On(psql.Quote("r", "id").EQ(psql.Quote("e", "registration_id"))),
		sm.Where(psql.Quote("e", "team_id").EQ(psql.Arg(teamID))),
		sm.Where(psql.Quote("r", "status").NE(psql.Arg(string(model.StatusCancelled)))),
	)

	sql, args, err = count.Build(ctx)
	if err != nil {
		return err
	}

	var active int
	if err = e.QueryRow(ctx, sql, args...).Scan(&active); err != nil {
		return err
	}
	if active >= capacity {
		return ErrConflict
	}

	bump := psql.Update(
		um.Table("team"),
		um.SetCol("version").To(psql.Raw("version + 1")),
		um.Where(psql.Quote("id").EQ(psql.Arg(teamID))),
	)

	sql, args, err = bump.Build(ctx)
	if err != nil {
		return err
	}

	_, err = e.Exec(ctx, sql, args...)
	return err
}

func (p *pgxTeamRepository) ActiveMembers(ctx context.Context, teamID string) ([]*TeamMember, error) {
	e := db.GetPgxExecutorFromContext(ctx, p.pool)

	q := psql.Select(
		sm.Columns("e.id", "e.registration_id", "r.student_id", "e.run_order", "e.captain", "r.status"),
		sm.From("registration_entry").As("e"),
		sm.InnerJoin("registration").As("r").On(psql.Quote("r", "id").EQ(psql.Quote("e", "registration_id"))),
		sm.Where(psql.Quote("e", "team_id").EQ(psql.Arg(teamID))),
		sm.Where(psql.Quote("r", "status").NE(psql.Arg(string(model.StatusCancelled)))),
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

	members, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*TeamMember, error) {
		m := &TeamMember{}
		if err = row.Scan(&m.EntryID, &m.RegistrationID, &m.StudentID, &m.RunOrder, &m.Captain, &m.Status); err != nil {
			return nil, err
		}
		return m, nil
	})
	if err != nil {
		return nil, err
	}

	return members, nil
}

func (p *pgxTeamRepository) Rename(ctx context.Context, teamID, name string) error {
	return p.patch(ctx, teamID, um.SetCol("name").ToArg(name))
}

func (p *pgxTeamRepository) Retire(ctx context.Context, teamID string) error {
	return p.patch(ctx, teamID, um.SetCol("retired").ToArg(true))
}

func (p *pgxTeamRepository) patch(ctx context.Context, teamID string, set bob.Mod[*dialect.UpdateQuery]) error {
	e := db.GetPgxExecutorFromContext(ctx, p.pool)

	q := psql.Update(
		um.Table("team"),
		um.Where(psql.Quote("id").EQ(psql.Arg(teamID))),
	)
	q.Apply(set)

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
