package ports

import (
	"context"
	"time"

	"github.com/poyrazK/keypanel/internal/core/domain"
)

// AccountRepository reads reseller accounts. Lookups return (nil, nil) when absent.
type AccountRepository interface {
	GetAccount(ctx context.Context, username string) (*domain.Account, error)
	CreateAccount(ctx context.Context, account *domain.Account) error
	SetServerStatus(ctx context.Context, username string, on bool) error
}

// KeyRepository stores license keys and their activation state.
type KeyRepository interface {
	GetKey(ctx context.Context, key string) (*domain.LicenseKey, error)
	CreateKeys(ctx context.Context, keys []domain.LicenseKey) error
	// CreateKeysCharged deducts cost from payer's balance and stores keys as one
	// unit. It returns false, storing nothing, when the balance is short.
	CreateKeysCharged(ctx context.Context, payer string, cost int, keys []domain.LicenseKey) (bool, error)
	// ActivateKey sets the activation fields only if the key is still pending.
	ActivateKey(ctx context.Context, key string, activatedAt, expiry time.Time) (bool, error)
}

// DeviceRepository stores device bindings and the per-key device counter.
type DeviceRepository interface {
	GetDeviceBinding(ctx context.Context, keyID, uuid string) (*domain.DeviceBinding, error)
	TouchDeviceBinding(ctx context.Context, keyID, uuid, ip string, at time.Time) error
	// BindDevice inserts a binding and increments current_devices in one step.
	// With conditional set, the increment only happens while
	// current_devices < max_devices. An already bound uuid changes nothing.
	BindDevice(ctx context.Context, binding *domain.DeviceBinding, conditional bool) (domain.BindOutcome, error)
}

// DelegationRepository stores per-endpoint delegation rules.
type DelegationRepository interface {
	GetDelegationRule(ctx context.Context, username string) (*domain.DelegationRule, error)
	UpsertDelegationRule(ctx context.Context, rule *domain.DelegationRule) error
}

// SettingsRepository stores the credential pair and panel-wide settings.
type SettingsRepository interface {
	GetCredentials(ctx context.Context) (*domain.CredentialPair, error)
	SaveCredentials(ctx context.Context, pair *domain.CredentialPair) error
	GetPanelSettings(ctx context.Context) (*domain.PanelSettings, error)
	SetMaintenance(ctx context.Context, on bool, message string) error
}

// ResourceRepository resolves the downloadable resource offered to clients.
type ResourceRepository interface {
	GetLatestResource(ctx context.Context, owner string) (*domain.Resource, error)
}

// ActivityRepository persists activity records.
type ActivityRepository interface {
	SaveActivityLog(ctx context.Context, log *domain.ActivityLog) error
}

// PanelRepository is the full backing store.
type PanelRepository interface {
	AccountRepository
	KeyRepository
	DeviceRepository
	DelegationRepository
	SettingsRepository
	ResourceRepository
	ActivityRepository
	Ping(ctx context.Context) error
}

// Cache is a byte cache with TTL, shared by settings lookups.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool)
	Set(ctx context.Context, key string, data []byte, ttl time.Duration)
	Delete(ctx context.Context, key string) error
}

// AuditSink records activity without affecting the caller.
type AuditSink interface {
	Record(ctx context.Context, log *domain.ActivityLog)
}

// RedeemRequest is one decoded call to the connect endpoint.
type RedeemRequest struct {
	Endpoint      string
	APIKey        string
	EncryptedData string
	ClientIP      string
}

// RedeemResult is the successful outcome of a redemption.
type RedeemResult struct {
	EncryptedData string
}

// RedemptionService performs key redemption.
type RedemptionService interface {
	Redeem(ctx context.Context, req RedeemRequest) (*RedeemResult, error)
	HealthCheck(ctx context.Context) map[string]error
}
