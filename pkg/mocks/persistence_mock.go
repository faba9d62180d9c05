// Package mocks holds testify mocks of the persistence and event bus
// interfaces.
package mocks

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/dukex/ruleflow/pkg/models"
	"github.com/dukex/ruleflow/pkg/persistence"
)

// MockRuleRepository is a mock implementation of persistence.RuleRepository interface.
type MockRuleRepository struct {
	mock.Mock
}

func (m *MockRuleRepository) Save(ctx context.Context, rule *models.AutomationRule) error {
	args := m.Called(ctx, rule)

	return args.Error(0)
}

func (m *MockRuleRepository) GetByID(ctx context.Context, id string) (*models.AutomationRule, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*models.AutomationRule), args.Error(1)
}

func (m *MockRuleRepository) GetByCode(ctx context.Context, code string) (*models.AutomationRule, error) {
	args := m.Called(ctx, code)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*models.AutomationRule), args.Error(1)
}

func (m *MockRuleRepository) List(ctx context.Context, filter persistence.RuleFilter) ([]*models.AutomationRule, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]*models.AutomationRule), args.Error(1)
}

func (m *MockRuleRepository) UpdateLastRun(ctx context.Context, id string, lastRun time.Time) error {
	args := m.Called(ctx, id, lastRun)

	return args.Error(0)
}

func (m *MockRuleRepository) Delete(ctx context.Context, id string) error {
	args := m.Called(ctx, id)

	return args.Error(0)
}

// MockActionRepository is a mock implementation of persistence.ActionRepository interface.
type MockActionRepository struct {
	mock.Mock
}

func (m *MockActionRepository) Save(ctx context.Context, action *models.ServerAction) error {
	args := m.Called(ctx, action)

	return args.Error(0)
}

func (m *MockActionRepository) GetByID(ctx context.Context, id string) (*models.ServerAction, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*models.ServerAction), args.Error(1)
}

func (m *MockActionRepository) GetByCode(ctx context.Context, code string) (*models.ServerAction, error) {
	args := m.Called(ctx, code)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*models.ServerAction), args.Error(1)
}

func (m *MockActionRepository) List(ctx context.Context) ([]*models.ServerAction, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]*models.ServerAction), args.Error(1)
}

func (m *MockActionRepository) Delete(ctx context.Context, id string) error {
	args := m.Called(ctx, id)

	return args.Error(0)
}

// MockStateRepository is a mock implementation of persistence.StateRepository interface.
type MockStateRepository struct {
	mock.Mock
}

func (m *MockStateRepository) Get(ctx context.Context, workflowID, modelName, recordID string) (*models.StateRecord, error) {
	args := m.Called(ctx, workflowID, modelName, recordID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*models.StateRecord), args.Error(1)
}

func (m *MockStateRepository) FindByRecord(ctx context.Context, modelName, recordID string) (*models.StateRecord, error) {
	args := m.Called(ctx, modelName, recordID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*models.StateRecord), args.Error(1)
}

func (m *MockStateRepository) Create(ctx context.Context, state *models.StateRecord) (*models.StateRecord, error) {
	args := m.Called(ctx, state)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*models.StateRecord), args.Error(1)
}

func (m *MockStateRepository) Save(ctx context.Context, state *models.StateRecord, expectedVersion int64) error {
	args := m.Called(ctx, state, expectedVersion)

	return args.Error(0)
}

func (m *MockStateRepository) ListInState(ctx context.Context, workflowID, state string) ([]*models.StateRecord, error) {
	args := m.Called(ctx, workflowID, state)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]*models.StateRecord), args.Error(1)
}

func (m *MockStateRepository) DeleteByWorkflow(ctx context.Context, workflowID string) error {
	args := m.Called(ctx, workflowID)

	return args.Error(0)
}

// MockActivityRepository is a mock implementation of persistence.ActivityRepository interface.
type MockActivityRepository struct {
	mock.Mock
}

func (m *MockActivityRepository) Append(ctx context.Context, entry *models.ActivityLogEntry) error {
	args := m.Called(ctx, entry)

	return args.Error(0)
}

func (m *MockActivityRepository) List(ctx context.Context, filter persistence.ActivityFilter) ([]*models.ActivityLogEntry, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]*models.ActivityLogEntry), args.Error(1)
}

func (m *MockActivityRepository) DetachWorkflow(ctx context.Context, workflowID string) error {
	args := m.Called(ctx, workflowID)

	return args.Error(0)
}

func (m *MockActivityRepository) DetachTransition(ctx context.Context, transitionID string) error {
	args := m.Called(ctx, transitionID)

	return args.Error(0)
}
