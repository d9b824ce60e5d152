package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/mzheng-dev/sportsmeet/internal/db"
	"github.com/mzheng-dev/sportsmeet/internal/directory"
	"github.com/mzheng-dev/sportsmeet/internal/model"
	"github.com/mzheng-dev/sportsmeet/internal/repository"
	"github.com/mzheng-dev/sportsmeet/pkg/logger"
)

// RegistrationService is the gateway in front of the team formation engine.
// It re-validates the registration window on every mutating call, independent
// of the engine's own check, and owns the read compositions, bulk import and
// the export report.
type RegistrationService struct {
	tx db.Transactor

	events repository.EventRepository
	teams  repository.TeamRepository
	regs   repository.RegistrationRepository

	directory directory.Resolver
	engine    *TeamService

	now func() time.Time
}

func NewRegistrationService(tx db.Transactor) *RegistrationService {
	return &RegistrationService{
		tx:  tx,
		now: time.Now,
	}
}

// CreateOrJoinTeam dispatches one registration intent: an invite code joins
// an existing team, a team name opens a new one, and neither registers the
// student individually for the game type.
func (s *RegistrationService) CreateOrJoinTeam(ctx context.Context, studentID, eventID, gameType, inviteCode, teamName string) (*model.Registration, *Error) {
	if inviteCode != "" {
		team, sErr := s.lookupTeam(ctx, inviteCode)
		if sErr != nil {
			return nil, sErr
		}
		if sErr = s.guardWindow(ctx, team.EventID); sErr != nil {
			return nil, sErr
		}
		return s.engine.JoinTeam(ctx, studentID, inviteCode)
	}

	if sErr := s.guardWindow(ctx, eventID); sErr != nil {
		return nil, sErr
	}

	if teamName != "" {
		return s.engine.CreateTeam(ctx, studentID, eventID, gameType, teamName)
	}

	return s.registerIndividual(ctx, studentID, eventID, gameType)
}

// SwitchTeam moves the caller's membership to the team behind the invite
// code; the engine guarantees the old membership survives a full target.
func (s *RegistrationService) SwitchTeam(ctx context.Context, studentID, inviteCode string) (*model.Registration, *Error) {
	team, sErr := s.lookupTeam(ctx, inviteCode)
	if sErr != nil {
		return nil, sErr
	}
	if sErr = s.guardWindow(ctx, team.EventID); sErr != nil {
		return nil, sErr
	}
	return s.engine.SwitchTeam(ctx, studentID, inviteCode)
}

func (s *RegistrationService) LeaveTeam(ctx context.Context, studentID, inviteCode string) *Error {
	team, sErr := s.lookupTeam(ctx, inviteCode)
	if sErr != nil {
		return sErr
	}
	if sErr = s.guardWindow(ctx, team.EventID); sErr != nil {
		return sErr
	}
	return s.engine.LeaveTeam(ctx, studentID, inviteCode)
}

func (s *RegistrationService) RenameTeam(ctx context.Context, studentID, inviteCode, name string) *Error {
	team, sErr := s.lookupTeam(ctx, inviteCode)
	if sErr != nil {
		return sErr
	}
	if sErr = s.guardWindow(ctx, team.EventID); sErr != nil {
		return sErr
	}
	return s.engine.RenameTeam(ctx, studentID, inviteCode, name)
}

func (s *RegistrationService) TransferCaptain(ctx context.Context, studentID, inviteCode, toStudentID string) *Error {
	team, sErr := s.lookupTeam(ctx, inviteCode)
	if sErr != nil {
		return sErr
	}
	if sErr = s.guardWindow(ctx, team.EventID); sErr != nil {
		return sErr
	}
	return s.engine.TransferCaptain(ctx, studentID, inviteCode, toStudentID)
}

// registerIndividual writes a plain (no team ref) entry for an individual
// game type.
func (s *RegistrationService) registerIndividual(ctx context.Context, studentID, eventID, gameType string) (*model.Registration, *Error) {
	l := logger.FromContext(ctx)
	l.Info("registering individually",
		zap.String("student_id", studentID),
		zap.String("event_id", eventID),
		zap.String("game_type", gameType))

	err := s.tx.WithinTransaction(ctx, func(txCtx context.Context) error {
		gt, err := s.events.GetGameType(txCtx, eventID, gameType)
		if errors.Is(err, repository.ErrNotFound) {
			return NewError(ErrorCodeInvalidGameType, "unknown game type")
		}
		if err != nil {
			return NewError(ErrorCodeUnspecified, "failed to get game type")
		}
		if gt.TeamSize != nil {
			return NewError(ErrorCodeInvalidGameType, "team game type, create or join a team")
		}

		if sErr := s.engine.checkNoActiveEntry(txCtx, eventID, studentID, gameType); sErr != nil {
			return sErr
		}

		reg, err := s.engine.ensureRegistration(txCtx, eventID, studentID)
		if err != nil {
			l.Error("failed to ensure registration", zap.Error(err))
			return NewError(ErrorCodeUnspecified, "failed to create registration")
		}

		if _, err = s.regs.GetEntry(txCtx, reg.ID, gameType); err == nil {
			// Entry survives from a cancelled registration; reviving the
			// registration is all there is to do.
			return nil
		} else if !errors.Is(err, repository.ErrNotFound) {
			return NewError(ErrorCodeUnspecified, "failed to check existing entry")
		}

		err = s.regs.CreateEntry(txCtx, &repository.Entry{
			ID:             uuid.NewString(),
			RegistrationID: reg.ID,
			GameType:       gameType,
		})
		if errors.Is(err, repository.ErrAlreadyExists) {
			return NewError(ErrorCodeDuplicateEntry, "already registered for this game type")
		}
		if err != nil {
			l.Error("failed to create entry", zap.Error(err))
			return NewError(ErrorCodeUnspecified, "failed to create entry")
		}
		return nil
	})

	if sErr := asServiceError(err); sErr != nil {
		return nil, sErr
	}

	return s.engine.registrationView(ctx, eventID, studentID)
}

// EventInfo returns the catalog entry students register against: game types
// with their team caps, the event's groups and whether the window is open
// right now.
func (s *RegistrationService) EventInfo(ctx context.Context, eventID string) (*model.Event, *Error) {
	ev, err := s.events.Get(ctx, eventID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, NewError(ErrorCodeNotFound, "event not found")
	}
	if err != nil {
		return nil, NewError(ErrorCodeUnspecified, "failed to get event")
	}

	gts, err := s.events.ListGameTypes(ctx, eventID)
	if err != nil {
		return nil, NewError(ErrorCodeUnspecified, "failed to get game types")
	}

	groups, err := s.events.ListGroups(ctx, eventID)
	if err != nil {
		return nil, NewError(ErrorCodeUnspecified, "failed to get groups")
	}

	out := &model.Event{
		ID:               ev.ID,
		Name:             ev.Name,
		Groups:           groups,
		OpenRegistration: ev.OpenRegistration,
		StartDate:        ev.StartDate,
		EndDate:          ev.EndDate,
	}
	for _, gt := range gts {
		out.GameTypes = append(out.GameTypes, &model.GameType{Name: gt.Name, TeamSize: gt.TeamSize})
	}
	// The raw flag alone would mislead once the end date has passed.
	out.OpenRegistration = out.RegistrationOpen(s.now())

	return out, nil
}

// ResolveInvite returns the roster behind a code plus where the caller
// stands: member already, blocked by a conflicting entry, or free to join.
func (s *RegistrationService) ResolveInvite(ctx context.Context, callerID, inviteCode string) (*model.TeamView, *Error) {
	team, sErr := s.lookupTeam(ctx, inviteCode)
	if sErr != nil {
		return nil, sErr
	}

	ev, err := s.events.Get(ctx, team.EventID)
	if err != nil {
		return nil, NewError(ErrorCodeUnspecified, "failed to get event")
	}

	repoMembers, err := s.teams.ActiveMembers(ctx, team.ID)
	if err != nil {
		return nil, NewError(ErrorCodeUnspecified, "failed to get team members")
	}

	members := make([]*model.Member, 0, len(repoMembers))
	callerIsMember := false
	for _, m := range repoMembers {
		if m.StudentID == callerID {
			callerIsMember = true
		}
		members = append(members, &model.Member{
			StudentID: m.StudentID,
			RunOrder:  m.RunOrder,
			Captain:   m.Captain,
		})
	}

	view := &model.TeamView{
		EventID:          team.EventID,
		EventName:        ev.Name,
		GameType:         team.GameType,
		TeamName:         team.Name,
		InviteCode:       team.InviteCode,
		Capacity:         team.Capacity,
		CreatorStudentID: team.CreatedBy,
		Members:          members,
	}

	switch {
	case callerIsMember:
		view.CallerStatus = model.CallerMember
	default:
		_, err = s.regs.GetActiveEntry(ctx, team.EventID, callerID, team.GameType)
		switch {
		case err == nil:
			view.CallerStatus = model.CallerConflict
		case !errors.Is(err, repository.ErrNotFound):
			return nil, NewError(ErrorCodeUnspecified, "failed to check existing registration")
		case len(members) >= team.Capacity:
			view.CallerStatus = model.CallerTeamFull
		default:
			view.CallerStatus = model.CallerCanJoin
		}
	}

	return view, nil
}

// View composes the student's standing for one event: ledger status plus the
// full roster of every team they are on.
func (s *RegistrationService) View(ctx context.Context, studentID, eventID string) (*model.RegistrationView, *Error) {
	reg, sErr := s.engine.registrationView(ctx, eventID, studentID)
	if sErr != nil {
		return nil, sErr
	}

	rosters := make([]*model.TeamRoster, 0)
	for _, entry := range reg.Entries {
		if entry.Team == nil {
			continue
		}

		team, err := s.teams.GetByCode(ctx, entry.Team.InviteCode)
		if err != nil {
			return nil, NewError(ErrorCodeUnspecified, "failed to get team")
		}
		repoMembers, err := s.teams.ActiveMembers(ctx, team.ID)
		if err != nil {
			return nil, NewError(ErrorCodeUnspecified, "failed to get team members")
		}

		roster := &model.TeamRoster{
			GameType:        team.GameType,
			TeamName:        team.Name,
			InviteCode:      team.InviteCode,
			Capacity:        team.Capacity,
			Members:         make([]*model.Member, 0, len(repoMembers)),
			CallerIsCaptain: entry.Team.Captain,
		}
		for _, m := range repoMembers {
			roster.Members = append(roster.Members, &model.Member{
				StudentID: m.StudentID,
				RunOrder:  m.RunOrder,
				Captain:   m.Captain,
			})
		}
		rosters = append(rosters, roster)
	}

	return &model.RegistrationView{
		Registration: reg,
		Teams:        rosters,
	}, nil
}

// Cancel withdraws the student's whole registration for an event. Cancelled
// members stop counting against team capacity immediately, so every team the
// student was on gets the same repair a departure gets: captain handoff to
// the earliest remaining joiner, retirement when nobody is left.
func (s *RegistrationService) Cancel(ctx context.Context, studentID, eventID string) *Error {
	l := logger.FromContext(ctx)
	l.Info("cancelling registration",
		zap.String("student_id", studentID),
		zap.String("event_id", eventID))

	err := s.tx.WithinTransaction(ctx, func(txCtx context.Context) error {
		reg, err := s.regs.Get(txCtx, eventID, studentID)
		if errors.Is(err, repository.ErrNotFound) {
			return NewError(ErrorCodeNotFound, "registration not found")
		}
		if err != nil {
			return NewError(ErrorCodeUnspecified, "failed to get registration")
		}
		if reg.Status == model.StatusCancelled {
			return nil
		}

		entries, err := s.regs.EntriesFor(txCtx, reg.ID)
		if err != nil {
			return NewError(ErrorCodeUnspecified, "failed to get registration entries")
		}

		if err = s.regs.PatchStatus(txCtx, reg.ID, model.StatusCancelled); err != nil {
			l.Error("failed to cancel registration", zap.Error(err))
			return NewError(ErrorCodeUnspecified, "failed to cancel registration")
		}

		for _, entry := range entries {
			if entry.TeamID == nil {
				continue
			}
			if entry.Captain {
				if err = s.regs.SetCaptain(txCtx, entry.ID, false); err != nil {
					return NewError(ErrorCodeUnspecified, "failed to cancel registration")
				}
			}
			if sErr := s.engine.repairAfterDeparture(txCtx, *entry.TeamID, entry.Captain); sErr != nil {
				return sErr
			}
		}
		return nil
	})

	return asServiceError(err)
}

// Confirm marks the student's registration as accepted. Organiser action; a
// cancelled registration has to be revived by the student first.
func (s *RegistrationService) Confirm(ctx context.Context, studentID, eventID string) *Error {
	l := logger.FromContext(ctx)
	l.Info("confirming registration",
		zap.String("student_id", studentID),
		zap.String("event_id", eventID))

	reg, err := s.regs.Get(ctx, eventID, studentID)
	if errors.Is(err, repository.ErrNotFound) {
		return NewError(ErrorCodeNotFound, "registration not found")
	}
	if err != nil {
		return NewError(ErrorCodeUnspecified, "failed to get registration")
	}
	if reg.Status == model.StatusCancelled {
		return NewError(ErrorCodeNotFound, "registration is cancelled")
	}

	if err = s.regs.PatchStatus(ctx, reg.ID, model.StatusConfirmed); err != nil {
		l.Error("failed to confirm registration", zap.Error(err))
		return NewError(ErrorCodeUnspecified, "failed to confirm registration")
	}
	return nil
}

// Export flattens the event's ledger into one row per (student, game type).
// Pure read side; no invariants of its own.
func (s *RegistrationService) Export(ctx context.Context, eventID string) ([]*model.ExportRow, *Error) {
	if _, err := s.events.Get(ctx, eventID); errors.Is(err, repository.ErrNotFound) {
		return nil, NewError(ErrorCodeNotFound, "event not found")
	} else if err != nil {
		return nil, NewError(ErrorCodeUnspecified, "failed to get event")
	}

	repoRows, err := s.regs.ExportRows(ctx, eventID)
	if err != nil {
		return nil, NewError(ErrorCodeUnspecified, "failed to export registrations")
	}

	rows := make([]*model.ExportRow, 0, len(repoRows))
	for _, r := range repoRows {
		row := &model.ExportRow{
			StudentID: r.StudentID,
			Group:     r.Group,
			GameType:  r.GameType,
			Captain:   r.Captain,
			Status:    r.Status,
		}
		if r.TeamName != nil {
			row.TeamName = *r.TeamName
		}
		if r.InviteCode != nil {
			row.InviteCode = *r.InviteCode
		}
		if r.RunOrder != nil {
			row.RunOrder = *r.RunOrder
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// Import upserts a batch of registrations keyed by (event name, student
// name). Bad rows are reported and excluded, never fatal to the batch, and a
// retried batch merges instead of duplicating.
func (s *RegistrationService) Import(ctx context.Context, rows []*model.ImportRow) (*model.ImportResult, *Error) {
	l := logger.FromContext(ctx)
	l.Info("importing registrations", zap.Int("rows", len(rows)))

	result := &model.ImportResult{Errors: make([]*model.ImportRowError, 0)}

	for i, row := range rows {
		if err := s.importRow(ctx, row, result); err != nil {
			l.Warn("import row failed",
				zap.Int("row", i),
				zap.String("student_name", row.StudentName),
				zap.String("error", err.Error()))
			result.Errors = append(result.Errors, &model.ImportRowError{
				Row:         i,
				StudentName: row.StudentName,
				Error:       err.Error(),
			})
		}
	}

	l.Info("import finished",
		zap.Int("inserted", result.InsertedCount),
		zap.Int("updated", result.UpdatedCount),
		zap.Int("errors", len(result.Errors)))

	return result, nil
}

func (s *RegistrationService) importRow(ctx context.Context, row *model.ImportRow, result *model.ImportResult) error {
	ev, err := s.events.GetByName(ctx, row.EventName)
	if errors.Is(err, repository.ErrNotFound) {
		return fmt.Errorf("unknown event %q", row.EventName)
	}
	if err != nil {
		return fmt.Errorf("failed to look up event: %v", err)
	}

	student, err := s.directory.ResolveName(ctx, row.StudentName)
	if errors.Is(err, directory.ErrStudentNotFound) {
		return fmt.Errorf("unknown student %q", row.StudentName)
	}
	if err != nil {
		// Timeouts and outages included: the row is excluded, the batch
		// goes on.
		return fmt.Errorf("directory lookup failed: %v", err)
	}

	for _, gameType := range row.GameTypes {
		if _, err = s.events.GetGameType(ctx, ev.ID, gameType); errors.Is(err, repository.ErrNotFound) {
			return fmt.Errorf("unknown game type %q", gameType)
		} else if err != nil {
			return fmt.Errorf("failed to look up game type: %v", err)
		}
	}

	group := row.Group
	if group == "" {
		group = student.Group
	}

	return s.tx.WithinTransaction(ctx, func(txCtx context.Context) error {
		reg, err := s.regs.Get(txCtx, ev.ID, student.ID)
		created := false
		switch {
		case errors.Is(err, repository.ErrNotFound):
			reg = &repository.Registration{
				ID:        uuid.NewString(),
				EventID:   ev.ID,
				StudentID: student.ID,
				Status:    model.StatusPending,
			}
			if err = s.regs.Create(txCtx, reg); err != nil {
				return fmt.Errorf("failed to create registration: %v", err)
			}
			created = true
		case err != nil:
			return fmt.Errorf("failed to get registration: %v", err)
		default:
			if reg.Status == model.StatusCancelled {
				if err = s.regs.PatchStatus(txCtx, reg.ID, model.StatusPending); err != nil {
					return fmt.Errorf("failed to revive registration: %v", err)
				}
			}
		}

		for _, gameType := range row.GameTypes {
			_, err = s.regs.GetEntry(txCtx, reg.ID, gameType)
			if err == nil {
				continue // merge: the entry is already there
			}
			if !errors.Is(err, repository.ErrNotFound) {
				return fmt.Errorf("failed to check entry: %v", err)
			}

			if err = s.regs.CreateEntry(txCtx, &repository.Entry{
				ID:             uuid.NewString(),
				RegistrationID: reg.ID,
				GameType:       gameType,
				Group:          group,
			}); err != nil && !errors.Is(err, repository.ErrAlreadyExists) {
				return fmt.Errorf("failed to create entry: %v", err)
			}
		}

		if created {
			result.InsertedCount++
		} else {
			result.UpdatedCount++
		}
		return nil
	})
}

func (s *RegistrationService) lookupTeam(ctx context.Context, inviteCode string) (*repository.Team, *Error) {
	team, err := s.teams.GetByCode(ctx, inviteCode)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, NewError(ErrorCodeNotFound, "invite code not found")
	}
	if err != nil {
		return nil, NewError(ErrorCodeUnspecified, "failed to resolve invite code")
	}
	return team, nil
}

// guardWindow is the gateway's own registration-window check, kept separate
// from the engine's so a bypassed or future engine path still cannot mutate a
// closed event.
func (s *RegistrationService) guardWindow(ctx context.Context, eventID string) *Error {
	ev, err := s.events.Get(ctx, eventID)
	if errors.Is(err, repository.ErrNotFound) {
		return NewError(ErrorCodeNotFound, "event not found")
	}
	if err != nil {
		return NewError(ErrorCodeUnspecified, "failed to get event")
	}
	if !ev.OpenRegistration || s.now().After(ev.EndDate) {
		return NewError(ErrorCodeRegistrationClosed, "registration closed")
	}
	return nil
}

func (s *RegistrationService) WithEventRepo(r repository.EventRepository) *RegistrationService {
	s.events = r
	return s
}

func (s *RegistrationService) WithTeamRepo(r repository.TeamRepository) *RegistrationService {
	s.teams = r
	return s
}

func (s *RegistrationService) WithRegistrationRepo(r repository.RegistrationRepository) *RegistrationService {
	s.regs = r
	return s
}

func (s *RegistrationService) WithDirectory(r directory.Resolver) *RegistrationService {
	s.directory = r
	return s
}

func (s *RegistrationService) WithEngine(engine *TeamService) *RegistrationService {
	s.engine = engine
	return s
}

// WithNow overrides the clock, for tests.
func (s *RegistrationService) WithNow(now func() time.Time) *RegistrationService {
	s.now = now
	return s
}
