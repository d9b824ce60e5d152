package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/mzheng-dev/sportsmeet/internal/directory"
	"github.com/mzheng-dev/sportsmeet/internal/model"
	"github.com/mzheng-dev/sportsmeet/internal/repository"
)

func newGateway(er *MockEventRepository, tr *MockTeamRepository, rr *MockRegistrationRepository, dir *MockDirectoryResolver) *RegistrationService {
	return NewRegistrationService(new(MockTransactor)).
		WithEventRepo(er).
		WithTeamRepo(tr).
		WithRegistrationRepo(rr).
		WithDirectory(dir).
		WithEngine(newEngine(er, tr, rr))
}

func TestRegistrationService_CreateOrJoinTeam(t *testing.T) {
	t.Run("success: no code and no name registers individually", func(t *testing.T) {
		er := new(MockEventRepository)
		tr := new(MockTeamRepository)
		rr := new(MockRegistrationRepository)

		er.On("Get", mock.Anything, "evt-1").Return(openEvent(), nil)
		er.On("GetGameType", mock.Anything, "evt-1", "百米").Return(
			&repository.GameType{EventID: "evt-1", Name: "百米"}, nil)
		rr.On("GetActiveEntry", mock.Anything, "evt-1", "stu-a", "百米").Return(nil, repository.ErrNotFound)
		rr.On("Get", mock.Anything, "evt-1", "stu-a").Return(nil, repository.ErrNotFound).Once()
		rr.On("Create", mock.Anything, mock.Anything).Return(nil)
		rr.On("GetEntry", mock.Anything, mock.Anything, "百米").Return(nil, repository.ErrNotFound)
		rr.On("CreateEntry", mock.Anything, mock.MatchedBy(func(e *repository.Entry) bool {
			return e.GameType == "百米" && e.TeamID == nil && e.RunOrder == nil && !e.Captain
		})).Return(nil)

		reg := &repository.Registration{ID: "reg-a", EventID: "evt-1", StudentID: "stu-a", Status: model.StatusPending}
		rr.On("Get", mock.Anything, "evt-1", "stu-a").Return(reg, nil)
		rr.On("EntriesFor", mock.Anything, "reg-a").Return([]*repository.Entry{
			{ID: "ent-a", RegistrationID: "reg-a", GameType: "百米"},
		}, nil)

		got, err := newGateway(er, tr, rr, new(MockDirectoryResolver)).
			CreateOrJoinTeam(context.Background(), "stu-a", "evt-1", "百米", "", "")

		assert.Nil(t, err)
		assert.Len(t, got.Entries, 1)
		assert.Nil(t, got.Entries[0].Team)

		er.AssertExpectations(t)
		rr.AssertExpectations(t)
	})

	t.Run("failure: team game type cannot be registered individually", func(t *testing.T) {
		er := new(MockEventRepository)
		rr := new(MockRegistrationRepository)

		er.On("Get", mock.Anything, "evt-1").Return(openEvent(), nil)
		er.On("GetGameType", mock.Anything, "evt-1", "接力赛").Return(
			&repository.GameType{EventID: "evt-1", Name: "接力赛", TeamSize: ptr(4)}, nil)

		_, err := newGateway(er, new(MockTeamRepository), rr, new(MockDirectoryResolver)).
			CreateOrJoinTeam(context.Background(), "stu-a", "evt-1", "接力赛", "", "")

		assert.Error(t, err)
		assert.Equal(t, ErrorCodeInvalidGameType, err.Code)
		rr.AssertNotCalled(t, "CreateEntry", mock.Anything, mock.Anything)
	})

	t.Run("failure: closed window is rejected before the engine runs", func(t *testing.T) {
		er := new(MockEventRepository)
		tr := new(MockTeamRepository)

		tr.On("GetByCode", mock.Anything, "CODE1").Return(relayTeam(), nil).Once()
		er.On("Get", mock.Anything, "evt-1").Return(closedEvent(), nil)

		_, err := newGateway(er, tr, new(MockRegistrationRepository), new(MockDirectoryResolver)).
			CreateOrJoinTeam(context.Background(), "stu-b", "", "", "CODE1", "")

		assert.Error(t, err)
		assert.Equal(t, ErrorCodeRegistrationClosed, err.Code)
		tr.AssertNotCalled(t, "ReserveSlot", mock.Anything, mock.Anything)
	})

	t.Run("failure: unknown invite code", func(t *testing.T) {
		tr := new(MockTeamRepository)
		tr.On("GetByCode", mock.Anything, "NOPE").Return(nil, repository.ErrNotFound)

		_, err := newGateway(new(MockEventRepository), tr, new(MockRegistrationRepository), new(MockDirectoryResolver)).
			CreateOrJoinTeam(context.Background(), "stu-b", "", "", "NOPE", "")

		assert.Error(t, err)
		assert.Equal(t, ErrorCodeNotFound, err.Code)
	})
}

func TestRegistrationService_EventInfo(t *testing.T) {
	t.Run("success: catalog with game types and groups", func(t *testing.T) {
		er := new(MockEventRepository)

		er.On("Get", mock.Anything, "evt-1").Return(openEvent(), nil)
		er.On("ListGameTypes", mock.Anything, "evt-1").Return([]*repository.GameType{
			{EventID: "evt-1", Name: "百米"},
			{EventID: "evt-1", Name: "接力赛", TeamSize: ptr(4)},
		}, nil)
		er.On("ListGroups", mock.Anything, "evt-1").Return([]string{"三年一班", "三年二班"}, nil)

		ev, err := newGateway(er, new(MockTeamRepository), new(MockRegistrationRepository), new(MockDirectoryResolver)).
			EventInfo(context.Background(), "evt-1")

		assert.Nil(t, err)
		assert.Equal(t, "Spring Sports Meet", ev.Name)
		assert.True(t, ev.OpenRegistration)
		assert.Len(t, ev.GameTypes, 2)
		assert.False(t, ev.GameTypes[0].IsTeam())
		assert.True(t, ev.GameTypes[1].IsTeam())
		assert.Equal(t, []string{"三年一班", "三年二班"}, ev.Groups)

		er.AssertExpectations(t)
	})

	t.Run("success: past end date reports the window closed", func(t *testing.T) {
		er := new(MockEventRepository)

		past := openEvent()
		past.EndDate = time.Now().Add(-time.Hour)
		er.On("Get", mock.Anything, "evt-1").Return(past, nil)
		er.On("ListGameTypes", mock.Anything, "evt-1").Return([]*repository.GameType{}, nil)
		er.On("ListGroups", mock.Anything, "evt-1").Return([]string{}, nil)

		ev, err := newGateway(er, new(MockTeamRepository), new(MockRegistrationRepository), new(MockDirectoryResolver)).
			EventInfo(context.Background(), "evt-1")

		assert.Nil(t, err)
		assert.False(t, ev.OpenRegistration)
	})

	t.Run("failure: unknown event", func(t *testing.T) {
		er := new(MockEventRepository)
		er.On("Get", mock.Anything, "evt-9").Return(nil, repository.ErrNotFound)

		_, err := newGateway(er, new(MockTeamRepository), new(MockRegistrationRepository), new(MockDirectoryResolver)).
			EventInfo(context.Background(), "evt-9")

		assert.Error(t, err)
		assert.Equal(t, ErrorCodeNotFound, err.Code)
	})
}

func TestRegistrationService_ResolveInvite(t *testing.T) {
	roster := []*repository.TeamMember{
		{EntryID: "ent-a", StudentID: "stu-a", RunOrder: 1, Captain: true},
	}
	fullRoster := []*repository.TeamMember{
		{EntryID: "ent-a", StudentID: "stu-a", RunOrder: 1, Captain: true},
		{EntryID: "ent-b", StudentID: "stu-b", RunOrder: 2},
	}

	tests := []struct {
		name           string
		callerID       string
		members        []*repository.TeamMember
		setupMocks     func(*MockRegistrationRepository)
		expectedStatus model.CallerStatus
	}{
		{
			name:           "caller is already on the roster",
			callerID:       "stu-a",
			members:        roster,
			setupMocks:     func(rr *MockRegistrationRepository) {},
			expectedStatus: model.CallerMember,
		},
		{
			name:     "caller has a conflicting entry elsewhere",
			callerID: "stu-x",
			members:  roster,
			setupMocks: func(rr *MockRegistrationRepository) {
				rr.On("GetActiveEntry", mock.Anything, "evt-1", "stu-x", "接力赛").Return(
					&repository.Entry{ID: "ent-x", GameType: "接力赛", TeamID: ptr("team-9")}, nil)
			},
			expectedStatus: model.CallerConflict,
		},
		{
			name:     "roster is at capacity",
			callerID: "stu-x",
			members:  fullRoster,
			setupMocks: func(rr *MockRegistrationRepository) {
				rr.On("GetActiveEntry", mock.Anything, "evt-1", "stu-x", "接力赛").Return(nil, repository.ErrNotFound)
			},
			expectedStatus: model.CallerTeamFull,
		},
		{
			name:     "caller is free to join",
			callerID: "stu-x",
			members:  roster,
			setupMocks: func(rr *MockRegistrationRepository) {
				rr.On("GetActiveEntry", mock.Anything, "evt-1", "stu-x", "接力赛").Return(nil, repository.ErrNotFound)
			},
			expectedStatus: model.CallerCanJoin,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			er := new(MockEventRepository)
			tr := new(MockTeamRepository)
			rr := new(MockRegistrationRepository)

			tr.On("GetByCode", mock.Anything, "CODE1").Return(relayTeam(), nil)
			er.On("Get", mock.Anything, "evt-1").Return(openEvent(), nil)
			tr.On("ActiveMembers", mock.Anything, "team-1").Return(tt.members, nil)
			tt.setupMocks(rr)

			view, err := newGateway(er, tr, rr, new(MockDirectoryResolver)).
				ResolveInvite(context.Background(), tt.callerID, "CODE1")

			assert.Nil(t, err)
			assert.Equal(t, tt.expectedStatus, view.CallerStatus)
			assert.Equal(t, "Spring Sports Meet", view.EventName)
			assert.Len(t, view.Members, len(tt.members))

			rr.AssertExpectations(t)
		})
	}
}

func TestRegistrationService_View(t *testing.T) {
	er := new(MockEventRepository)
	tr := new(MockTeamRepository)
	rr := new(MockRegistrationRepository)

	reg := &repository.Registration{ID: "reg-a", EventID: "evt-1", StudentID: "stu-a", Status: model.StatusConfirmed}
	rr.On("Get", mock.Anything, "evt-1", "stu-a").Return(reg, nil)
	rr.On("EntriesFor", mock.Anything, "reg-a").Return([]*repository.Entry{
		{ID: "ent-1", RegistrationID: "reg-a", GameType: "百米"},
		{ID: "ent-2", RegistrationID: "reg-a", GameType: "接力赛", TeamID: ptr("team-1"), RunOrder: ptr(1), Captain: true},
	}, nil)
	tr.On("Get", mock.Anything, "team-1").Return(relayTeam(), nil)
	tr.On("GetByCode", mock.Anything, "CODE1").Return(relayTeam(), nil)
	tr.On("ActiveMembers", mock.Anything, "team-1").Return([]*repository.TeamMember{
		{EntryID: "ent-2", StudentID: "stu-a", RunOrder: 1, Captain: true},
		{EntryID: "ent-b", StudentID: "stu-b", RunOrder: 2},
	}, nil)

	view, err := newGateway(er, tr, rr, new(MockDirectoryResolver)).View(context.Background(), "stu-a", "evt-1")

	assert.Nil(t, err)
	assert.Equal(t, model.StatusConfirmed, view.Registration.Status)
	assert.Len(t, view.Registration.Entries, 2)
	assert.Len(t, view.Teams, 1)
	assert.True(t, view.Teams[0].CallerIsCaptain)
	assert.Len(t, view.Teams[0].Members, 2)
	assert.Equal(t, "CODE1", view.Teams[0].InviteCode)

	tr.AssertExpectations(t)
	rr.AssertExpectations(t)
}

func TestRegistrationService_Cancel(t *testing.T) {
	t.Run("success: no team entries, status patch only", func(t *testing.T) {
		rr := new(MockRegistrationRepository)
		reg := &repository.Registration{ID: "reg-a", EventID: "evt-1", StudentID: "stu-a", Status: model.StatusPending}
		rr.On("Get", mock.Anything, "evt-1", "stu-a").Return(reg, nil)
		rr.On("EntriesFor", mock.Anything, "reg-a").Return([]*repository.Entry{
			{ID: "ent-1", RegistrationID: "reg-a", GameType: "百米"},
		}, nil)
		rr.On("PatchStatus", mock.Anything, "reg-a", model.StatusCancelled).Return(nil)

		err := newGateway(new(MockEventRepository), new(MockTeamRepository), rr, new(MockDirectoryResolver)).
			Cancel(context.Background(), "stu-a", "evt-1")

		assert.Nil(t, err)
		rr.AssertExpectations(t)
	})

	t.Run("success: cancelling captain hands the team over", func(t *testing.T) {
		tr := new(MockTeamRepository)
		rr := new(MockRegistrationRepository)

		reg := &repository.Registration{ID: "reg-a", EventID: "evt-1", StudentID: "stu-a", Status: model.StatusPending}
		rr.On("Get", mock.Anything, "evt-1", "stu-a").Return(reg, nil)
		rr.On("EntriesFor", mock.Anything, "reg-a").Return([]*repository.Entry{
			{ID: "ent-a", RegistrationID: "reg-a", GameType: "接力赛", TeamID: ptr("team-1"), RunOrder: ptr(1), Captain: true},
		}, nil)
		rr.On("PatchStatus", mock.Anything, "reg-a", model.StatusCancelled).Return(nil)
		rr.On("SetCaptain", mock.Anything, "ent-a", false).Return(nil)
		tr.On("ActiveMembers", mock.Anything, "team-1").Return([]*repository.TeamMember{
			{EntryID: "ent-b", StudentID: "stu-b", RunOrder: 2},
		}, nil)
		rr.On("SetCaptain", mock.Anything, "ent-b", true).Return(nil)

		err := newGateway(new(MockEventRepository), tr, rr, new(MockDirectoryResolver)).
			Cancel(context.Background(), "stu-a", "evt-1")

		assert.Nil(t, err)
		tr.AssertExpectations(t)
		rr.AssertExpectations(t)
	})

	t.Run("success: last active member cancelling retires the team", func(t *testing.T) {
		tr := new(MockTeamRepository)
		rr := new(MockRegistrationRepository)

		reg := &repository.Registration{ID: "reg-a", EventID: "evt-1", StudentID: "stu-a", Status: model.StatusPending}
		rr.On("Get", mock.Anything, "evt-1", "stu-a").Return(reg, nil)
		rr.On("EntriesFor", mock.Anything, "reg-a").Return([]*repository.Entry{
			{ID: "ent-a", RegistrationID: "reg-a", GameType: "接力赛", TeamID: ptr("team-1"), RunOrder: ptr(1), Captain: true},
		}, nil)
		rr.On("PatchStatus", mock.Anything, "reg-a", model.StatusCancelled).Return(nil)
		rr.On("SetCaptain", mock.Anything, "ent-a", false).Return(nil)
		tr.On("ActiveMembers", mock.Anything, "team-1").Return([]*repository.TeamMember{}, nil)
		tr.On("Retire", mock.Anything, "team-1").Return(nil)

		err := newGateway(new(MockEventRepository), tr, rr, new(MockDirectoryResolver)).
			Cancel(context.Background(), "stu-a", "evt-1")

		assert.Nil(t, err)
		tr.AssertExpectations(t)
		rr.AssertExpectations(t)
	})

	t.Run("success: already cancelled is a no-op", func(t *testing.T) {
		rr := new(MockRegistrationRepository)
		reg := &repository.Registration{ID: "reg-a", EventID: "evt-1", StudentID: "stu-a", Status: model.StatusCancelled}
		rr.On("Get", mock.Anything, "evt-1", "stu-a").Return(reg, nil)

		err := newGateway(new(MockEventRepository), new(MockTeamRepository), rr, new(MockDirectoryResolver)).
			Cancel(context.Background(), "stu-a", "evt-1")

		assert.Nil(t, err)
		rr.AssertNotCalled(t, "PatchStatus", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("failure: nothing to cancel", func(t *testing.T) {
		rr := new(MockRegistrationRepository)
		rr.On("Get", mock.Anything, "evt-1", "stu-a").Return(nil, repository.ErrNotFound)

		err := newGateway(new(MockEventRepository), new(MockTeamRepository), rr, new(MockDirectoryResolver)).
			Cancel(context.Background(), "stu-a", "evt-1")

		assert.Error(t, err)
		assert.Equal(t, ErrorCodeNotFound, err.Code)
		rr.AssertNotCalled(t, "PatchStatus", mock.Anything, mock.Anything, mock.Anything)
	})
}

func TestRegistrationService_ReviveDropsStaleTeamRefs(t *testing.T) {
	// An individual registration that revives a cancelled one must not bring
	// old team memberships back to life: the slots were released on
	// cancellation and may already be taken.
	er := new(MockEventRepository)
	tr := new(MockTeamRepository)
	rr := new(MockRegistrationRepository)

	er.On("Get", mock.Anything, "evt-1").Return(openEvent(), nil)
	er.On("GetGameType", mock.Anything, "evt-1", "百米").Return(
		&repository.GameType{EventID: "evt-1", Name: "百米"}, nil)
	rr.On("GetActiveEntry", mock.Anything, "evt-1", "stu-a", "百米").Return(nil, repository.ErrNotFound)

	reg := &repository.Registration{ID: "reg-a", EventID: "evt-1", StudentID: "stu-a", Status: model.StatusCancelled}
	rr.On("Get", mock.Anything, "evt-1", "stu-a").Return(reg, nil)
	rr.On("PatchStatus", mock.Anything, "reg-a", model.StatusPending).Return(nil)
	rr.On("EntriesFor", mock.Anything, "reg-a").Return([]*repository.Entry{
		{ID: "ent-relay", RegistrationID: "reg-a", GameType: "接力赛", TeamID: ptr("team-1"), RunOrder: ptr(1), Captain: true},
	}, nil).Once()
	rr.On("ClearTeamRef", mock.Anything, "ent-relay").Return(nil)
	rr.On("GetEntry", mock.Anything, "reg-a", "百米").Return(nil, repository.ErrNotFound)
	rr.On("CreateEntry", mock.Anything, mock.Anything).Return(nil)

	rr.On("EntriesFor", mock.Anything, "reg-a").Return([]*repository.Entry{
		{ID: "ent-relay", RegistrationID: "reg-a", GameType: "接力赛"},
		{ID: "ent-run", RegistrationID: "reg-a", GameType: "百米"},
	}, nil).Once()

	got, err := newGateway(er, tr, rr, new(MockDirectoryResolver)).
		CreateOrJoinTeam(context.Background(), "stu-a", "evt-1", "百米", "", "")

	assert.Nil(t, err)
	assert.Len(t, got.Entries, 2)
	for _, entry := range got.Entries {
		assert.Nil(t, entry.Team)
	}
	tr.AssertNotCalled(t, "ReserveSlot", mock.Anything, mock.Anything)

	rr.AssertExpectations(t)
}

func TestRegistrationService_Confirm(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		rr := new(MockRegistrationRepository)
		reg := &repository.Registration{ID: "reg-a", EventID: "evt-1", StudentID: "stu-a", Status: model.StatusPending}
		rr.On("Get", mock.Anything, "evt-1", "stu-a").Return(reg, nil)
		rr.On("PatchStatus", mock.Anything, "reg-a", model.StatusConfirmed).Return(nil)

		err := newGateway(new(MockEventRepository), new(MockTeamRepository), rr, new(MockDirectoryResolver)).
			Confirm(context.Background(), "stu-a", "evt-1")

		assert.Nil(t, err)
		rr.AssertExpectations(t)
	})

	t.Run("failure: cancelled registration cannot be confirmed", func(t *testing.T) {
		rr := new(MockRegistrationRepository)
		reg := &repository.Registration{ID: "reg-a", EventID: "evt-1", StudentID: "stu-a", Status: model.StatusCancelled}
		rr.On("Get", mock.Anything, "evt-1", "stu-a").Return(reg, nil)

		err := newGateway(new(MockEventRepository), new(MockTeamRepository), rr, new(MockDirectoryResolver)).
			Confirm(context.Background(), "stu-a", "evt-1")

		assert.Error(t, err)
		assert.Equal(t, ErrorCodeNotFound, err.Code)
		rr.AssertNotCalled(t, "PatchStatus", mock.Anything, mock.Anything, mock.Anything)
	})
}

func TestRegistrationService_Export(t *testing.T) {
	t.Run("success: nullable team fields flatten to zero values", func(t *testing.T) {
		er := new(MockEventRepository)
		rr := new(MockRegistrationRepository)

		er.On("Get", mock.Anything, "evt-1").Return(openEvent(), nil)
		rr.On("ExportRows", mock.Anything, "evt-1").Return([]*repository.ExportRow{
			{StudentID: "stu-a", Group: "三年二班", GameType: "接力赛",
				TeamName: ptr("flying fish"), RunOrder: ptr(1), Captain: true,
				InviteCode: ptr("CODE1"), Status: model.StatusConfirmed},
			{StudentID: "stu-b", Group: "三年二班", GameType: "百米", Status: model.StatusPending},
		}, nil)

		rows, err := newGateway(er, new(MockTeamRepository), rr, new(MockDirectoryResolver)).
			Export(context.Background(), "evt-1")

		assert.Nil(t, err)
		assert.Len(t, rows, 2)
		assert.Equal(t, "flying fish", rows[0].TeamName)
		assert.Equal(t, 1, rows[0].RunOrder)
		assert.True(t, rows[0].Captain)
		assert.Equal(t, "", rows[1].TeamName)
		assert.Equal(t, 0, rows[1].RunOrder)
		assert.Equal(t, "", rows[1].InviteCode)
	})

	t.Run("failure: unknown event", func(t *testing.T) {
		er := new(MockEventRepository)
		er.On("Get", mock.Anything, "evt-9").Return(nil, repository.ErrNotFound)

		_, err := newGateway(er, new(MockTeamRepository), new(MockRegistrationRepository), new(MockDirectoryResolver)).
			Export(context.Background(), "evt-9")

		assert.Error(t, err)
		assert.Equal(t, ErrorCodeNotFound, err.Code)
	})
}

func TestRegistrationService_Import(t *testing.T) {
	student := &directory.Student{ID: "stu-a", Name: "张伟", Group: "三年二班"}

	t.Run("success: new student inserted, existing one merged", func(t *testing.T) {
		er := new(MockEventRepository)
		rr := new(MockRegistrationRepository)
		dir := new(MockDirectoryResolver)

		er.On("GetByName", mock.Anything, "Spring Sports Meet").Return(openEvent(), nil)
		er.On("GetGameType", mock.Anything, "evt-1", "百米").Return(
			&repository.GameType{EventID: "evt-1", Name: "百米"}, nil)
		dir.On("ResolveName", mock.Anything, "张伟").Return(student, nil)
		dir.On("ResolveName", mock.Anything, "李娜").Return(
			&directory.Student{ID: "stu-b", Name: "李娜", Group: "三年一班"}, nil)

		// first row: fresh registration
		rr.On("Get", mock.Anything, "evt-1", "stu-a").Return(nil, repository.ErrNotFound)
		rr.On("Create", mock.Anything, mock.MatchedBy(func(r *repository.Registration) bool {
			return r.StudentID == "stu-a" && r.Status == model.StatusPending
		})).Return(nil)
		rr.On("GetEntry", mock.Anything, mock.Anything, "百米").Return(nil, repository.ErrNotFound).Once()
		rr.On("CreateEntry", mock.Anything, mock.MatchedBy(func(e *repository.Entry) bool {
			return e.GameType == "百米" && e.Group == "三年二班"
		})).Return(nil)

		// second row: existing registration already holds the entry
		existing := &repository.Registration{ID: "reg-b", EventID: "evt-1", StudentID: "stu-b", Status: model.StatusPending}
		rr.On("Get", mock.Anything, "evt-1", "stu-b").Return(existing, nil)
		rr.On("GetEntry", mock.Anything, "reg-b", "百米").Return(
			&repository.Entry{ID: "ent-b", RegistrationID: "reg-b", GameType: "百米"}, nil)

		result, err := newGateway(er, new(MockTeamRepository), rr, dir).Import(context.Background(), []*model.ImportRow{
			{EventName: "Spring Sports Meet", StudentName: "张伟", GameTypes: []string{"百米"}},
			{EventName: "Spring Sports Meet", StudentName: "李娜", GameTypes: []string{"百米"}},
		})

		assert.Nil(t, err)
		assert.Equal(t, 1, result.InsertedCount)
		assert.Equal(t, 1, result.UpdatedCount)
		assert.Empty(t, result.Errors)

		rr.AssertExpectations(t)
		dir.AssertExpectations(t)
	})

	t.Run("bad rows are reported and the batch goes on", func(t *testing.T) {
		er := new(MockEventRepository)
		rr := new(MockRegistrationRepository)
		dir := new(MockDirectoryResolver)

		er.On("GetByName", mock.Anything, "No Such Meet").Return(nil, repository.ErrNotFound)
		er.On("GetByName", mock.Anything, "Spring Sports Meet").Return(openEvent(), nil)
		dir.On("ResolveName", mock.Anything, "王五").Return(nil, directory.ErrStudentNotFound)
		dir.On("ResolveName", mock.Anything, "张伟").Return(student, nil)
		er.On("GetGameType", mock.Anything, "evt-1", "跳远").Return(nil, repository.ErrNotFound)
		er.On("GetGameType", mock.Anything, "evt-1", "百米").Return(
			&repository.GameType{EventID: "evt-1", Name: "百米"}, nil)

		rr.On("Get", mock.Anything, "evt-1", "stu-a").Return(nil, repository.ErrNotFound)
		rr.On("Create", mock.Anything, mock.Anything).Return(nil)
		rr.On("GetEntry", mock.Anything, mock.Anything, "百米").Return(nil, repository.ErrNotFound)
		rr.On("CreateEntry", mock.Anything, mock.Anything).Return(nil)

		result, err := newGateway(er, new(MockTeamRepository), rr, dir).Import(context.Background(), []*model.ImportRow{
			{EventName: "No Such Meet", StudentName: "张伟", GameTypes: []string{"百米"}},
			{EventName: "Spring Sports Meet", StudentName: "王五", GameTypes: []string{"百米"}},
			{EventName: "Spring Sports Meet", StudentName: "张伟", GameTypes: []string{"跳远"}},
			{EventName: "Spring Sports Meet", StudentName: "张伟", GameTypes: []string{"百米"}},
		})

		assert.Nil(t, err)
		assert.Equal(t, 1, result.InsertedCount)
		assert.Equal(t, 0, result.UpdatedCount)
		assert.Len(t, result.Errors, 3)
		assert.Equal(t, 0, result.Errors[0].Row)
		assert.Contains(t, result.Errors[0].Error, "unknown event")
		assert.Contains(t, result.Errors[1].Error, "unknown student")
		assert.Contains(t, result.Errors[2].Error, "unknown game type")
	})

	t.Run("missing group falls back to the directory record", func(t *testing.T) {
		er := new(MockEventRepository)
		rr := new(MockRegistrationRepository)
		dir := new(MockDirectoryResolver)

		er.On("GetByName", mock.Anything, "Spring Sports Meet").Return(openEvent(), nil)
		er.On("GetGameType", mock.Anything, "evt-1", "百米").Return(
			&repository.GameType{EventID: "evt-1", Name: "百米"}, nil)
		dir.On("ResolveName", mock.Anything, "张伟").Return(student, nil)

		rr.On("Get", mock.Anything, "evt-1", "stu-a").Return(nil, repository.ErrNotFound)
		rr.On("Create", mock.Anything, mock.Anything).Return(nil)
		rr.On("GetEntry", mock.Anything, mock.Anything, "百米").Return(nil, repository.ErrNotFound)
		rr.On("CreateEntry", mock.Anything, mock.MatchedBy(func(e *repository.Entry) bool {
			return e.Group == "三年二班"
		})).Return(nil)

		result, err := newGateway(er, new(MockTeamRepository), rr, dir).Import(context.Background(), []*model.ImportRow{
			{EventName: "Spring Sports Meet", StudentName: "张伟", GameTypes: []string{"百米"}},
		})

		assert.Nil(t, err)
		assert.Equal(t, 1, result.InsertedCount)
		assert.Empty(t, result.Errors)

		rr.AssertExpectations(t)
	})
}
