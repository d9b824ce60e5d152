//go:build integration

package service

import (
	"context"
	"fmt"
	"os"
	"sync"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"

	"github.com/mzheng-dev/sportsmeet/internal/db"
	"github.com/mzheng-dev/sportsmeet/internal/repository"
)

// Needs a real Postgres: go test -tags integration with TEST_DATABASE_URL set.
// The mock tables can't exercise the capacity gate itself, so this is the one
// place the full lock-count-insert sequence runs against the engine it was
// written for.
func TestJoinTeam_ConcurrentJoinsNeverOverfill(t *testing.T) {
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	ctx := context.Background()

	pool, err := pgxpool.New(ctx, dsn)
	require.NoError(t, err)
	defer pool.Close()

	require.NoError(t, db.Migrate(ctx, pool))

	_, err = pool.Exec(ctx,
		`TRUNCATE registration_entry, registration, team, event_group, game_type, event CASCADE`)
	require.NoError(t, err)

	_, err = pool.Exec(ctx,
		`INSERT INTO event (id, name, open_registration, start_date, end_date)
		 VALUES ('evt-1', 'Spring Sports Meet', TRUE, now() - interval '1 day', now() + interval '1 day')`)
	require.NoError(t, err)

	_, err = pool.Exec(ctx,
		`INSERT INTO game_type (event_id, name, team_size) VALUES ('evt-1', '接力赛', 2)`)
	require.NoError(t, err)

	engine := NewTeamService(db.NewPgxTransactor(pool)).
		WithEventRepo(repository.NewPgxEventRepository(pool)).
		WithTeamRepo(repository.NewPgxTeamRepository(pool)).
		WithRegistrationRepo(repository.NewPgxRegistrationRepository(pool))

	reg, sErr := engine.CreateTeam(ctx, "stu-captain", "evt-1", "接力赛", "flying fish")
	require.Nil(t, sErr)
	require.Len(t, reg.Entries, 1)
	code := reg.Entries[0].Team.InviteCode

	// One slot left, five racers.
	const joiners = 5
	errs := make([]*Error, joiners)

	var wg sync.WaitGroup
	for i := 0; i < joiners; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = engine.JoinTeam(ctx, fmt.Sprintf("stu-%d", i), code)
		}(i)
	}
	wg.Wait()

	succeeded, full := 0, 0
	for _, e := range errs {
		switch {
		case e == nil:
			succeeded++
		case e.Code == ErrorCodeTeamFull:
			full++
		default:
			t.Fatalf("unexpected join error: %+v", e)
		}
	}
	require.Equal(t, 1, succeeded)
	require.Equal(t, joiners-1, full)

	var active int
	require.NoError(t, pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM registration_entry e
		 JOIN registration r ON r.id = e.registration_id
		 WHERE e.team_id IS NOT NULL AND r.status <> 'cancelled'`).Scan(&active))
	require.Equal(t, 2, active)

	var legs int
	require.NoError(t, pool.QueryRow(ctx,
		`SELECT COUNT(DISTINCT run_order) FROM registration_entry WHERE team_id IS NOT NULL`).Scan(&legs))
	require.Equal(t, 2, legs)
}
