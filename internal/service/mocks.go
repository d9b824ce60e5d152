package service

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/mzheng-dev/sportsmeet/internal/directory"
	"github.com/mzheng-dev/sportsmeet/internal/model"
	"github.com/mzheng-dev/sportsmeet/internal/repository"
)

type MockTransactor struct {
	mock.Mock
}

func (m *MockTransactor) WithinTransaction(ctx context.Context, fn func(context.Context) error) error {
	return fn(ctx)
}

type MockEventRepository struct {
	mock.Mock
}

func (m *MockEventRepository) Get(ctx context.Context, eventID string) (*repository.Event, error) {
	args := m.Called(ctx, eventID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*repository.Event), args.Error(1)
}

func (m *MockEventRepository) GetByName(ctx context.Context, name string) (*repository.Event, error) {
	args := m.Called(ctx, name)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*repository.Event), args.Error(1)
}

func (m *MockEventRepository) GetGameType(ctx context.Context, eventID, name string) (*repository.GameType, error) {
	args := m.Called(ctx, eventID, name)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*repository.GameType), args.Error(1)
}

func (m *MockEventRepository) ListGameTypes(ctx context.Context, eventID string) ([]*repository.GameType, error) {
	args := m.Called(ctx, eventID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*repository.GameType), args.Error(1)
}

func (m *MockEventRepository) ListGroups(ctx context.Context, eventID string) ([]string, error) {
	args := m.Called(ctx, eventID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

type MockTeamRepository struct {
	mock.Mock
}

func (m *MockTeamRepository) Create(ctx context.Context, team *repository.Team) error {
	args := m.Called(ctx, team)
	return args.Error(0)
}

func (m *MockTeamRepository) Get(ctx context.Context, teamID string) (*repository.Team, error) {
	args := m.Called(ctx, teamID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*repository.Team), args.Error(1)
}

func (m *MockTeamRepository) GetByCode(ctx context.Context, inviteCode string) (*repository.Team, error) {
	args := m.Called(ctx, inviteCode)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*repository.Team), args.Error(1)
}

func (m *MockTeamRepository) ReserveSlot(ctx context.Context, teamID string) error {
	args := m.Called(ctx, teamID)
	return args.Error(0)
}

func (m *MockTeamRepository) ActiveMembers(ctx context.Context, teamID string) ([]*repository.TeamMember, error) {
	args := m.Called(ctx, teamID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*repository.TeamMember), args.Error(1)
}

func (m *MockTeamRepository) Rename(ctx context.Context, teamID, name string) error {
	args := m.Called(ctx, teamID, name)
	return args.Error(0)
}

func (m *MockTeamRepository) Retire(ctx context.Context, teamID string) error {
	args := m.Called(ctx, teamID)
	return args.Error(0)
}

type MockRegistrationRepository struct {
	mock.Mock
}

func (m *MockRegistrationRepository) Get(ctx context.Context, eventID, studentID string) (*repository.Registration, error) {
	args := m.Called(ctx, eventID, studentID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*repository.Registration), args.Error(1)
}

func (m *MockRegistrationRepository) Create(ctx context.Context, reg *repository.Registration) error {
	args := m.Called(ctx, reg)
	return args.Error(0)
}

func (m *MockRegistrationRepository) PatchStatus(ctx context.Context, registrationID string, status model.RegistrationStatus) error {
	args := m.Called(ctx, registrationID, status)
	return args.Error(0)
}

func (m *MockRegistrationRepository) GetEntry(ctx context.Context, registrationID, gameType string) (*repository.Entry, error) {
	args := m.Called(ctx, registrationID, gameType)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*repository.Entry), args.Error(1)
}

func (m *MockRegistrationRepository) GetActiveEntry(ctx context.Context, eventID, studentID, gameType string) (*repository.Entry, error) {
	args := m.Called(ctx, eventID, studentID, gameType)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*repository.Entry), args.Error(1)
}

func (m *MockRegistrationRepository) CreateEntry(ctx context.Context, entry *repository.Entry) error {
	args := m.Called(ctx, entry)
	return args.Error(0)
}

func (m *MockRegistrationRepository) PatchEntry(ctx context.Context, patch *repository.EntryPatch) error {
	args := m.Called(ctx, patch)
	return args.Error(0)
}

func (m *MockRegistrationRepository) ClearTeamRef(ctx context.Context, entryID string) error {
	args := m.Called(ctx, entryID)
	return args.Error(0)
}

func (m *MockRegistrationRepository) DeleteEntry(ctx context.Context, entryID string) error {
	args := m.Called(ctx, entryID)
	return args.Error(0)
}

func (m *MockRegistrationRepository) SetCaptain(ctx context.Context, entryID string, captain bool) error {
	args := m.Called(ctx, entryID, captain)
	return args.Error(0)
}

func (m *MockRegistrationRepository) MaxRunOrder(ctx context.Context, teamID string) (int, error) {
	args := m.Called(ctx, teamID)
	return args.Int(0), args.Error(1)
}

func (m *MockRegistrationRepository) EntriesFor(ctx context.Context, registrationID string) ([]*repository.Entry, error) {
	args := m.Called(ctx, registrationID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*repository.Entry), args.Error(1)
}

func (m *MockRegistrationRepository) ExportRows(ctx context.Context, eventID string) ([]*repository.ExportRow, error) {
	args := m.Called(ctx, eventID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*repository.ExportRow), args.Error(1)
}

type MockDirectoryResolver struct {
	mock.Mock
}

func (m *MockDirectoryResolver) ResolveName(ctx context.Context, name string) (*directory.Student, error) {
	args := m.Called(ctx, name)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*directory.Student), args.Error(1)
}
