package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/mzheng-dev/sportsmeet/internal/db"
	"github.com/mzheng-dev/sportsmeet/internal/invite"
	"github.com/mzheng-dev/sportsmeet/internal/model"
	"github.com/mzheng-dev/sportsmeet/internal/repository"
	"github.com/mzheng-dev/sportsmeet/pkg/logger"
)

// inviteCodeAttempts bounds retries when a freshly minted code collides.
const inviteCodeAttempts = 5

// TeamService is the team formation engine. Every mutation runs inside one
// transaction and passes the team aggregate's capacity gate, so a failed
// call leaves every record exactly as it was.
type TeamService struct {
	tx db.Transactor

	events repository.EventRepository
	teams  repository.TeamRepository
	regs   repository.RegistrationRepository

	now func() time.Time
}

func NewTeamService(tx db.Transactor) *TeamService {
	return &TeamService{
		tx:  tx,
		now: time.Now,
	}
}

// CreateTeam opens a fresh roster for a team game type with the caller as
// captain on the first relay leg.
func (t *TeamService) CreateTeam(ctx context.Context, studentID, eventID, gameType, teamName string) (*model.Registration, *Error) {
	l := logger.FromContext(ctx)
	l.Info("creating team",
		zap.String("student_id", studentID),
		zap.String("event_id", eventID),
		zap.String("game_type", gameType),
		zap.String("team_name", teamName))

	err := t.tx.WithinTransaction(ctx, func(txCtx context.Context) error {
		gt, err := t.events.GetGameType(txCtx, eventID, gameType)
		if errors.Is(err, repository.ErrNotFound) {
			return NewError(ErrorCodeInvalidGameType, "unknown game type")
		}
		if err != nil {
			l.Error("failed to get game type", zap.String("game_type", gameType), zap.Error(err))
			return NewError(ErrorCodeUnspecified, "failed to get game type")
		}
		if gt.TeamSize == nil {
			return NewError(ErrorCodeInvalidGameType, "not a team game type")
		}
		if *gt.TeamSize < 2 {
			return NewError(ErrorCodeInvalidGameType, "team size must be at least 2")
		}

		if _, sErr := t.checkWindow(txCtx, eventID); sErr != nil {
			return sErr
		}

		if sErr := t.checkNoActiveEntry(txCtx, eventID, studentID, gameType); sErr != nil {
			return sErr
		}

		reg, err := t.ensureRegistration(txCtx, eventID, studentID)
		if err != nil {
			l.Error("failed to ensure registration", zap.Error(err))
			return NewError(ErrorCodeUnspecified, "failed to create registration")
		}

		team, err := t.createWithFreshCode(txCtx, &repository.Team{
			EventID:   eventID,
			GameType:  gameType,
			Name:      teamName,
			Capacity:  *gt.TeamSize,
			CreatedBy: studentID,
		})
		if err != nil {
			l.Error("failed to create team", zap.Error(err))
			return NewError(ErrorCodeUnspecified, "failed to create team")
		}

		return t.attachEntry(txCtx, reg, gameType, team.ID, 1, true)
	})

	if sErr := asServiceError(err); sErr != nil {
		return nil, sErr
	}

	return t.registrationView(ctx, eventID, studentID)
}

// JoinTeam adds the caller to the roster behind an invite code, taking the
// next relay leg. The capacity gate locks the team row before counting, so
// a losing concurrent joiner gets TEAM_FULL, never an overfull team.
func (t *TeamService) JoinTeam(ctx context.Context, studentID, inviteCode string) (*model.Registration, *Error) {
	l := logger.FromContext(ctx)
	l.Info("joining team",
		zap.String("student_id", studentID),
		zap.String("invite_code", inviteCode))

	var eventID string

	err := t.tx.WithinTransaction(ctx, func(txCtx context.Context) error {
		team, sErr := t.resolveTeam(txCtx, inviteCode)
		if sErr != nil {
			return sErr
		}
		eventID = team.EventID

		if _, sErr = t.checkWindow(txCtx, team.EventID); sErr != nil {
			return sErr
		}

		existing, err := t.regs.GetActiveEntry(txCtx, team.EventID, studentID, team.GameType)
		if err == nil {
			if existing.TeamID != nil && *existing.TeamID == team.ID {
				return NewError(ErrorCodeDuplicateEntry, "already a member of this team")
			}
			return NewError(ErrorCodeDuplicateEntry, "already registered for this game type, switch teams instead")
		}
		if !errors.Is(err, repository.ErrNotFound) {
			l.Error("failed to check existing entry", zap.Error(err))
			return NewError(ErrorCodeUnspecified, "failed to check existing registration")
		}

		if err = t.teams.ReserveSlot(txCtx, team.ID); err != nil {
			if errors.Is(err, repository.ErrConflict) {
				l.Warn("team full", zap.String("invite_code", inviteCode))
				return NewError(ErrorCodeTeamFull, "team full")
			}
			if errors.Is(err, repository.ErrNotFound) {
				// Retired between resolve and lock.
				return NewError(ErrorCodeNotFound, "invite code not found")
			}
			l.Error("failed to reserve slot", zap.Error(err))
			return NewError(ErrorCodeUnspecified, "failed to reserve team slot")
		}

		reg, err := t.ensureRegistration(txCtx, team.EventID, studentID)
		if err != nil {
			l.Error("failed to ensure registration", zap.Error(err))
			return NewError(ErrorCodeUnspecified, "failed to create registration")
		}

		order, err := t.regs.MaxRunOrder(txCtx, team.ID)
		if err != nil {
			l.Error("failed to get max run order", zap.Error(err))
			return NewError(ErrorCodeUnspecified, "failed to assign run order")
		}

		return t.attachEntry(txCtx, reg, team.GameType, team.ID, order+1, false)
	})

	if sErr := asServiceError(err); sErr != nil {
		return nil, sErr
	}

	return t.registrationView(ctx, eventID, studentID)
}

// SwitchTeam atomically moves the caller's membership for one game type to
// the team behind the given invite code. The new team's capacity gate comes
// first; if it loses, the transaction rolls back and the old membership is
// untouched.
func (t *TeamService) SwitchTeam(ctx context.Context, studentID, inviteCode string) (*model.Registration, *Error) {
	l := logger.FromContext(ctx)
	l.Info("switching team",
		zap.String("student_id", studentID),
		zap.String("invite_code", inviteCode))

	var eventID string

	err := t.tx.WithinTransaction(ctx, func(txCtx context.Context) error {
		newTeam, sErr := t.resolveTeam(txCtx, inviteCode)
		if sErr != nil {
			return sErr
		}
		eventID = newTeam.EventID

		if _, sErr = t.checkWindow(txCtx, newTeam.EventID); sErr != nil {
			return sErr
		}

		entry, err := t.regs.GetActiveEntry(txCtx, newTeam.EventID, studentID, newTeam.GameType)
		if errors.Is(err, repository.ErrNotFound) {
			return NewError(ErrorCodeNotFound, "no registration for this game type, join instead")
		}
		if err != nil {
			l.Error("failed to get current entry", zap.Error(err))
			return NewError(ErrorCodeUnspecified, "failed to get current registration")
		}
		if entry.TeamID != nil && *entry.TeamID == newTeam.ID {
			return NewError(ErrorCodeDuplicateEntry, "already a member of this team")
		}

		if err = t.teams.ReserveSlot(txCtx, newTeam.ID); err != nil {
			if errors.Is(err, repository.ErrConflict) {
				l.Warn("target team full", zap.String("invite_code", inviteCode))
				return NewError(ErrorCodeTeamFull, "team full")
			}
			if errors.Is(err, repository.ErrNotFound) {
				return NewError(ErrorCodeNotFound, "invite code not found")
			}
			l.Error("failed to reserve slot", zap.Error(err))
			return NewError(ErrorCodeUnspecified, "failed to reserve team slot")
		}

		order, err := t.regs.MaxRunOrder(txCtx, newTeam.ID)
		if err != nil {
			l.Error("failed to get max run order", zap.Error(err))
			return NewError(ErrorCodeUnspecified, "failed to assign run order")
		}

		newOrder := order + 1
		notCaptain := false
		if err = t.regs.PatchEntry(txCtx, &repository.EntryPatch{
			ID:       entry.ID,
			TeamID:   &newTeam.ID,
			RunOrder: &newOrder,
			Captain:  &notCaptain,
		}); err != nil {
			l.Error("failed to repoint entry", zap.Error(err))
			return NewError(ErrorCodeUnspecified, "failed to move membership")
		}

		if entry.TeamID != nil {
			if sErr = t.repairAfterDeparture(txCtx, *entry.TeamID, entry.Captain); sErr != nil {
				return sErr
			}
		}

		return nil
	})

	if sErr := asServiceError(err); sErr != nil {
		return nil, sErr
	}

	return t.registrationView(ctx, eventID, studentID)
}

// LeaveTeam removes the caller from the roster. A departing captain hands the
// role to the earliest joiner left; the last member out retires the team and
// its invite code for good.
func (t *TeamService) LeaveTeam(ctx context.Context, studentID, inviteCode string) *Error {
	l := logger.FromContext(ctx)
	l.Info("leaving team",
		zap.String("student_id", studentID),
		zap.String("invite_code", inviteCode))

	err := t.tx.WithinTransaction(ctx, func(txCtx context.Context) error {
		team, sErr := t.resolveTeam(txCtx, inviteCode)
		if sErr != nil {
			return sErr
		}

		entry, sErr := t.memberEntry(txCtx, team, studentID)
		if sErr != nil {
			return sErr
		}

		if err := t.regs.DeleteEntry(txCtx, entry.ID); err != nil {
			l.Error("failed to delete entry", zap.Error(err))
			return NewError(ErrorCodeUnspecified, "failed to leave team")
		}

		return t.repairAfterDeparture(txCtx, team.ID, entry.Captain)
	})

	return asServiceError(err)
}

// RenameTeam is the captain's administrative action.
func (t *TeamService) RenameTeam(ctx context.Context, studentID, inviteCode, name string) *Error {
	l := logger.FromContext(ctx)
	l.Info("renaming team",
		zap.String("student_id", studentID),
		zap.String("invite_code", inviteCode),
		zap.String("team_name", name))

	err := t.tx.WithinTransaction(ctx, func(txCtx context.Context) error {
		team, sErr := t.resolveTeam(txCtx, inviteCode)
		if sErr != nil {
			return sErr
		}

		entry, sErr := t.memberEntry(txCtx, team, studentID)
		if sErr != nil {
			return sErr
		}
		if !entry.Captain {
			return NewError(ErrorCodeNotCaptain, "only the captain can rename the team")
		}

		if err := t.teams.Rename(txCtx, team.ID, name); err != nil {
			l.Error("failed to rename team", zap.Error(err))
			return NewError(ErrorCodeUnspecified, "failed to rename team")
		}
		return nil
	})

	return asServiceError(err)
}

// TransferCaptain hands the captain role to another active member.
func (t *TeamService) TransferCaptain(ctx context.Context, studentID, inviteCode, toStudentID string) *Error {
	l := logger.FromContext(ctx)
	l.Info("transferring captain",
		zap.String("student_id", studentID),
		zap.String("invite_code", inviteCode),
		zap.String("to_student_id", toStudentID))

	err := t.tx.WithinTransaction(ctx, func(txCtx context.Context) error {
		team, sErr := t.resolveTeam(txCtx, inviteCode)
		if sErr != nil {
			return sErr
		}

		entry, sErr := t.memberEntry(txCtx, team, studentID)
		if sErr != nil {
			return sErr
		}
		if !entry.Captain {
			return NewError(ErrorCodeNotCaptain, "only the captain can transfer the role")
		}

		members, err := t.teams.ActiveMembers(txCtx, team.ID)
		if err != nil {
			l.Error("failed to get members", zap.Error(err))
			return NewError(ErrorCodeUnspecified, "failed to get team members")
		}

		var target *repository.TeamMember
		for _, m := range members {
			if m.StudentID == toStudentID {
				target = m
				break
			}
		}
		if target == nil {
			return NewError(ErrorCodeNotFound, "student is not a member of this team")
		}
		if target.StudentID == studentID {
			return nil
		}

		if err = t.regs.SetCaptain(txCtx, entry.ID, false); err != nil {
			return NewError(ErrorCodeUnspecified, "failed to transfer captain")
		}
		if err = t.regs.SetCaptain(txCtx, target.EntryID, true); err != nil {
			return NewError(ErrorCodeUnspecified, "failed to transfer captain")
		}
		return nil
	})

	return asServiceError(err)
}

func (t *TeamService) resolveTeam(ctx context.Context, inviteCode string) (*repository.Team, *Error) {
	team, err := t.teams.GetByCode(ctx, inviteCode)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, NewError(ErrorCodeNotFound, "invite code not found")
	}
	if err != nil {
		logger.FromContext(ctx).Error("failed to resolve invite code", zap.Error(err))
		return nil, NewError(ErrorCodeUnspecified, "failed to resolve invite code")
	}
	return team, nil
}

// memberEntry returns the student's entry on this team, or NotFound when the
// student is not an active member.
func (t *TeamService) memberEntry(ctx context.Context, team *repository.Team, studentID string) (*repository.Entry, *Error) {
	entry, err := t.regs.GetActiveEntry(ctx, team.EventID, studentID, team.GameType)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, NewError(ErrorCodeNotFound, "not a member of this team")
	}
	if err != nil {
		logger.FromContext(ctx).Error("failed to get membership", zap.Error(err))
		return nil, NewError(ErrorCodeUnspecified, "failed to get membership")
	}
	if entry.TeamID == nil || *entry.TeamID != team.ID {
		return nil, NewError(ErrorCodeNotFound, "not a member of this team")
	}
	return entry, nil
}

func (t *TeamService) checkWindow(ctx context.Context, eventID string) (*repository.Event, *Error) {
	ev, err := t.events.Get(ctx, eventID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, NewError(ErrorCodeNotFound, "event not found")
	}
	if err != nil {
		logger.FromContext(ctx).Error("failed to get event", zap.String("event_id", eventID), zap.Error(err))
		return nil, NewError(ErrorCodeUnspecified, "failed to get event")
	}
	if !ev.OpenRegistration || t.now().After(ev.EndDate) {
		return nil, NewError(ErrorCodeRegistrationClosed, "registration closed")
	}
	return ev, nil
}

func (t *TeamService) checkNoActiveEntry(ctx context.Context, eventID, studentID, gameType string) *Error {
	_, err := t.regs.GetActiveEntry(ctx, eventID, studentID, gameType)
	if err == nil {
		return NewError(ErrorCodeDuplicateEntry, "already registered for this game type")
	}
	if !errors.Is(err, repository.ErrNotFound) {
		logger.FromContext(ctx).Error("failed to check existing entry", zap.Error(err))
		return NewError(ErrorCodeUnspecified, "failed to check existing registration")
	}
	return nil
}

// ensureRegistration returns the student's ledger row for the event, creating
// it on first contact and reviving it after a cancellation.
func (t *TeamService) ensureRegistration(ctx context.Context, eventID, studentID string) (*repository.Registration, error) {
	reg, err := t.regs.Get(ctx, eventID, studentID)
	if errors.Is(err, repository.ErrNotFound) {
		reg = &repository.Registration{
			ID:        uuid.NewString(),
			EventID:   eventID,
			StudentID: studentID,
			Status:    model.StatusPending,
		}
		if err = t.regs.Create(ctx, reg); err != nil {
			return nil, err
		}
		return reg, nil
	}
	if err != nil {
		return nil, err
	}

	if reg.Status == model.StatusCancelled {
		if err = t.regs.PatchStatus(ctx, reg.ID, model.StatusPending); err != nil {
			return nil, err
		}
		reg.Status = model.StatusPending

		// A revived registration comes back with no team refs. The slots
		// it held were released on cancellation and may be taken; stale
		// memberships must rejoin through the capacity gate, not resurface.
		entries, err := t.regs.EntriesFor(ctx, reg.ID)
		if err != nil {
			return nil, err
		}
		for _, e := range entries {
			if e.TeamID == nil {
				continue
			}
			if err = t.regs.ClearTeamRef(ctx, e.ID); err != nil {
				return nil, err
			}
		}
	}
	return reg, nil
}

// attachEntry merges the team membership into the student's ledger row: a new
// entry for first contact with the game type, an in-place repoint when a
// cancelled entry is revived.
func (t *TeamService) attachEntry(ctx context.Context, reg *repository.Registration, gameType, teamID string, runOrder int, captain bool) error {
	existing, err := t.regs.GetEntry(ctx, reg.ID, gameType)
	if err == nil {
		return t.regs.PatchEntry(ctx, &repository.EntryPatch{
			ID:       existing.ID,
			TeamID:   &teamID,
			RunOrder: &runOrder,
			Captain:  &captain,
		})
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return err
	}

	err = t.regs.CreateEntry(ctx, &repository.Entry{
		ID:             uuid.NewString(),
		RegistrationID: reg.ID,
		GameType:       gameType,
		TeamID:         &teamID,
		RunOrder:       &runOrder,
		Captain:        captain,
	})
	if errors.Is(err, repository.ErrAlreadyExists) {
		// A concurrent writer beat the lookup; the unique index is the
		// backstop for the one-entry-per-game-type rule.
		return NewError(ErrorCodeDuplicateEntry, "already registered for this game type")
	}
	return err
}

func (t *TeamService) createWithFreshCode(ctx context.Context, team *repository.Team) (*repository.Team, error) {
	var err error
	for attempt := 0; attempt < inviteCodeAttempts; attempt++ {
		team.ID = uuid.NewString()
		team.InviteCode = invite.NewCode()

		err = t.teams.Create(ctx, team)
		if !errors.Is(err, repository.ErrAlreadyExists) {
			break
		}
	}
	if errors.Is(err, repository.ErrAlreadyExists) {
		return nil, errors.New("could not allocate a fresh invite code")
	}
	if err != nil {
		return nil, err
	}
	return team, nil
}

// repairAfterDeparture keeps the single-captain invariant and retires an
// emptied team so its invite code never resolves again.
func (t *TeamService) repairAfterDeparture(ctx context.Context, teamID string, wasCaptain bool) *Error {
	l := logger.FromContext(ctx)

	members, err := t.teams.ActiveMembers(ctx, teamID)
	if err != nil {
		l.Error("failed to get members", zap.String("team_id", teamID), zap.Error(err))
		return NewError(ErrorCodeUnspecified, "failed to get team members")
	}

	if len(members) == 0 {
		if err = t.teams.Retire(ctx, teamID); err != nil {
			l.Error("failed to retire team", zap.String("team_id", teamID), zap.Error(err))
			return NewError(ErrorCodeUnspecified, "failed to retire team")
		}
		return nil
	}

	if wasCaptain {
		// ActiveMembers is ordered by run order, so the first member is
		// the earliest joiner still on the roster.
		if err = t.regs.SetCaptain(ctx, members[0].EntryID, true); err != nil {
			l.Error("failed to transfer captain", zap.String("team_id", teamID), zap.Error(err))
			return NewError(ErrorCodeUnspecified, "failed to transfer captain")
		}
	}
	return nil
}

func (t *TeamService) registrationView(ctx context.Context, eventID, studentID string) (*model.Registration, *Error) {
	reg, err := t.regs.Get(ctx, eventID, studentID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, NewError(ErrorCodeNotFound, "registration not found")
	}
	if err != nil {
		return nil, NewError(ErrorCodeUnspecified, "failed to get registration")
	}

	repoEntries, err := t.regs.EntriesFor(ctx, reg.ID)
	if err != nil {
		return nil, NewError(ErrorCodeUnspecified, "failed to get registration entries")
	}

	entries := make([]*model.GameTypeEntry, 0, len(repoEntries))
	for _, e := range repoEntries {
		entry := &model.GameTypeEntry{
			GameType:   e.GameType,
			Group:      e.Group,
			Difficulty: e.Difficulty,
		}
		if e.TeamID != nil {
			team, err := t.teams.Get(ctx, *e.TeamID)
			if err != nil {
				return nil, NewError(ErrorCodeUnspecified, "failed to get team")
			}
			runOrder := 0
			if e.RunOrder != nil {
				runOrder = *e.RunOrder
			}
			entry.Team = &model.TeamRef{
				TeamName:   team.Name,
				InviteCode: team.InviteCode,
				RunOrder:   runOrder,
				Captain:    e.Captain,
			}
		}
		entries = append(entries, entry)
	}

	return &model.Registration{
		ID:        reg.ID,
		EventID:   reg.EventID,
		StudentID: reg.StudentID,
		Status:    reg.Status,
		Entries:   entries,
		CreatedAt: reg.CreatedAt,
	}, nil
}

func asServiceError(err error) *Error {
	if err == nil {
		return nil
	}
	sErr := &Error{}
	if errors.As(err, &sErr) {
		return sErr
	}
	return NewError(ErrorCodeUnspecified, "operation failed")
}

func (t *TeamService) WithEventRepo(r repository.EventRepository) *TeamService {
	t.events = r
	return t
}

func (t *TeamService) WithTeamRepo(r repository.TeamRepository) *TeamService {
	t.teams = r
	return t
}

func (t *TeamService) WithRegistrationRepo(r repository.RegistrationRepository) *TeamService {
	t.regs = r
	return t
}

// WithNow overrides the clock, for tests.
func (t *TeamService) WithNow(now func() time.Time) *TeamService {
	t.now = now
	return t
}
