package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"
	"github.com/stephenafamo/bob/dialect/psql"
	"github.com/stephenafamo/bob/dialect/psql/sm"

	"github.com/mzheng-dev/sportsmeet/internal/db"
)

type Event struct {
	ID               string    `db:"id"`
	Name             string    `db:"name"`
	OpenRegistration bool      `db:"open_registration"`
	StartDate        time.Time `db:"start_date"`
	EndDate          time.Time `db:"end_date"`
}

type GameType struct {
	EventID  string `db:"event_id"`
	Name     string `db:"name"`
	TeamSize *int   `db:"team_size"`
}

// EventRepository is the read side of the external event catalog: game types,
// team caps and the registration window.
type EventRepository interface {
	Get(ctx context.Context, eventID string) (*Event, error)
	GetByName(ctx context.Context, name string) (*Event, error)
	GetGameType(ctx context.Context, eventID, name string) (*GameType, error)
	ListGameTypes(ctx context.Context, eventID string) ([]*GameType, error)
	ListGroups(ctx context.Context, eventID string) ([]string, error)
}

type pgxEventRepository struct {
	pool *pgxpool.Pool
}

func NewPgxEventRepository(pool *pgxpool.Pool) EventRepository {
	return &pgxEventRepository{pool: pool}
}

func (p *pgxEventRepository) Get(ctx context.Context, eventID string) (*Event, error) {
	return p.getBy(ctx, "id", eventID)
}

func (p *pgxEventRepository) GetByName(ctx context.Context, name string) (*Event, error) {
	return p.getBy(ctx, "name", name)
}

func (p *pgxEventRepository) getBy(ctx context.Context, column, value string) (*Event, error) {
	e := db.GetPgxExecutorFromContext(ctx, p.pool)

	q := psql.Select(
		sm.Columns("id", "name", "open_registration", "start_date", "end_date"),
		sm.From("event"),
		sm.Where(psql.Quote(column).EQ(psql.Arg(value))),
	)

	sql, args, err := q.Build(ctx)
	if err != nil {
		return nil, err
	}

	event := &Event{}
	if err = e.QueryRow(ctx, sql, args...).Scan(
		&event.ID,
		&event.Name,
		&event.OpenRegistration,
		&event.StartDate,
		&event.EndDate,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return event, nil
}

func (p *pgxEventRepository) GetGameType(ctx context.Context, eventID, name string) (*GameType, error) {
	e := db.GetPgxExecutorFromContext(ctx, p.pool)

	q := psql.Select(
		sm.Columns("event_id", "name", "team_size"),
		sm.From("game_type"),
		sm.Where(psql.Quote("event_id").EQ(psql.Arg(eventID))),
		sm.Where(psql.Quote("name").EQ(psql.Arg(name))),
	)

	sql, args, err := q.Build(ctx)
	if err != nil {
		return nil, err
	}

	gt := &GameType{}
	if err = e.QueryRow(ctx, sql, args...).Scan(&gt.EventID, &gt.Name, &gt.TeamSize); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return gt, nil
}

func (p *pgxEventRepository) ListGameTypes(ctx context.Context, eventID string) ([]*GameType, error) {
	e := db.GetPgxExecutorFromContext(ctx, p.pool)

	q := psql.Select(
		sm.Columns("event_id", "name", "team_size"),
		sm.From("game_type"),
		sm.Where(psql.Quote("event_id").EQ(psql.Arg(eventID))),
		sm.OrderBy("name"),
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

	gts, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*GameType, error) {
		gt := &GameType{}
		if err = row.Scan(&gt.EventID, &gt.Name, &gt.TeamSize); err != nil {
			return nil, err
		}
		return gt, nil
	})
	if err != nil {
		return nil, err
	}

	return gts, nil
}

func (p *pgxEventRepository) ListGroups(ctx context.Context, eventID string) ([]string, error) {
	e := db.GetPgxExecutorFromContext(ctx, p.pool)

	q := psql.Select(
		sm.Columns("name"),
		sm.From("event_group"),
		sm.Where(psql.Quote("event_id").EQ(psql.Arg(eventID))),
		sm.OrderBy("name"),
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

	groups, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (string, error) {
		var name string
		if err = row.Scan(&name); err != nil {
			return "", err
		}
		return name, nil
	})
	if err != nil {
		return nil, err
	}

	return groups, nil
}
