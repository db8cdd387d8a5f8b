package testutil

import (
	"context"
	"time"

	"github.com/poyrazK/keypanel/internal/core/domain"
	"github.com/poyrazK/keypanel/internal/core/ports"
	"github.com/stretchr/testify/mock"
)

// MockRepo implements ports.PanelRepository with testify expectations.
type MockRepo struct {
	mock.Mock
}

func (m *MockRepo) GetAccount(ctx context.Context, username string) (*domain.Account, error) {
	args := m.Called(username)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Account), args.Error(1)
}

func (m *MockRepo) CreateAccount(ctx context.Context, account *domain.Account) error {
	args := m.Called(account)
	return args.Error(0)
}

func (m *MockRepo) SetServerStatus(ctx context.Context, username string, on bool) error {
	args := m.Called(username, on)
	return args.Error(0)
}

func (m *MockRepo) GetKey(ctx context.Context, key string) (*domain.LicenseKey, error) {
	args := m.Called(key)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.LicenseKey), args.Error(1)
}

func (m *MockRepo) CreateKeys(ctx context.Context, keys []domain.LicenseKey) error {
	args := m.Called(keys)
	return args.Error(0)
}

func (m *MockRepo) CreateKeysCharged(ctx context.Context, payer string, cost int, keys []domain.LicenseKey) (bool, error) {
	args := m.Called(payer, cost, keys)
	return args.Bool(0), args.Error(1)
}

func (m *MockRepo) ActivateKey(ctx context.Context, key string, activatedAt, expiry time.Time) (bool, error) {
	args := m.Called(key, activatedAt, expiry)
	return args.Bool(0), args.Error(1)
}

func (m *MockRepo) GetDeviceBinding(ctx context.Context, keyID, uuid string) (*domain.DeviceBinding, error) {
	args := m.Called(keyID, uuid)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.DeviceBinding), args.Error(1)
}

func (m *MockRepo) TouchDeviceBinding(ctx context.Context, keyID, uuid, ip string, at time.Time) error {
	args := m.Called(keyID, uuid, ip, at)
	return args.Error(0)
}

func (m *MockRepo) BindDevice(ctx context.Context, binding *domain.DeviceBinding, conditional bool) (domain.BindOutcome, error) {
	args := m.Called(binding, conditional)
	return args.Get(0).(domain.BindOutcome), args.Error(1)
}

func (m *MockRepo) GetDelegationRule(ctx context.Context, username string) (*domain.DelegationRule, error) {
	args := m.Called(username)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.DelegationRule), args.Error(1)
}

func (m *MockRepo) UpsertDelegationRule(ctx context.Context, rule *domain.DelegationRule) error {
	args := m.Called(rule)
	return args.Error(0)
}

func (m *MockRepo) GetCredentials(ctx context.Context) (*domain.CredentialPair, error) {
	args := m.Called()
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.CredentialPair), args.Error(1)
}

func (m *MockRepo) SaveCredentials(ctx context.Context, pair *domain.CredentialPair) error {
	args := m.Called(pair)
	return args.Error(0)
}

func (m *MockRepo) GetPanelSettings(ctx context.Context) (*domain.PanelSettings, error) {
	args := m.Called()
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.PanelSettings), args.Error(1)
}

func (m *MockRepo) SetMaintenance(ctx context.Context, on bool, message string) error {
	args := m.Called(on, message)
	return args.Error(0)
}

func (m *MockRepo) GetLatestResource(ctx context.Context, owner string) (*domain.Resource, error) {
	args := m.Called(owner)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Resource), args.Error(1)
}

func (m *MockRepo) SaveActivityLog(ctx context.Context, log *domain.ActivityLog) error {
	args := m.Called(log)
	return args.Error(0)
}

func (m *MockRepo) Ping(ctx context.Context) error {
	args := m.Called()
	return args.Error(0)
}

// MockRedemptionService implements ports.RedemptionService.
type MockRedemptionService struct {
	mock.Mock
}

func (m *MockRedemptionService) Redeem(ctx context.Context, req ports.RedeemRequest) (*ports.RedeemResult, error) {
	args := m.Called(req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ports.RedeemResult), args.Error(1)
}

func (m *MockRedemptionService) HealthCheck(ctx context.Context) map[string]error {
	args := m.Called()
	return args.Get(0).(map[string]error)
}
