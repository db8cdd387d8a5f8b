package testutil

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/poyrazK/keypanel/internal/core/domain"
)

// MemoryStore is an in-memory ports.PanelRepository. Every method returns
// copies, so callers see the same isolation a database gives them.
type MemoryStore struct {
	mu        sync.Mutex
	accounts  map[string]domain.Account
	keys      map[string]domain.LicenseKey
	bindings  map[string]domain.DeviceBinding
	rules     map[string]domain.DelegationRule
	creds     *domain.CredentialPair
	settings  *domain.PanelSettings
	resources []domain.Resource
	logs      []domain.ActivityLog

	// PingErr is returned by Ping.
	PingErr error
	// ActivityErr is returned by SaveActivityLog.
	ActivityErr error
	// KeysErr is returned by key creation before anything is written.
	KeysErr error
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		accounts: make(map[string]domain.Account),
		keys:     make(map[string]domain.LicenseKey),
		bindings: make(map[string]domain.DeviceBinding),
		rules:    make(map[string]domain.DelegationRule),
	}
}

func bindingID(keyID, uuid string) string {
	return keyID + "|" + uuid
}

// AddAccount stores or replaces an account.
func (s *MemoryStore) AddAccount(a domain.Account) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accounts[a.Username] = a
}

// AddKey stores or replaces a key.
func (s *MemoryStore) AddKey(k domain.LicenseKey) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.keys[k.Key] = k
}

// AddResource appends a downloadable resource.
func (s *MemoryStore) AddResource(r domain.Resource) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resources = append(s.resources, r)
}

// Key returns the stored key without going through the repository interface.
func (s *MemoryStore) Key(key string) (domain.LicenseKey, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	k, ok := s.keys[key]
	return k, ok
}

// Binding returns a stored device binding.
func (s *MemoryStore) Binding(keyID, uuid string) (domain.DeviceBinding, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.bindings[bindingID(keyID, uuid)]
	return b, ok
}

// BindingCount returns the number of devices bound to keyID.
func (s *MemoryStore) BindingCount(keyID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, b := range s.bindings {
		if b.KeyID == keyID {
			n++
		}
	}
	return n
}

// ActivityLogs returns a copy of the saved activity records.
func (s *MemoryStore) ActivityLogs() []domain.ActivityLog {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.ActivityLog(nil), s.logs...)
}

func (s *MemoryStore) GetAccount(_ context.Context, username string) (*domain.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[username]
	if !ok {
		return nil, nil
	}
	return &a, nil
}

func (s *MemoryStore) CreateAccount(_ context.Context, account *domain.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.accounts[account.Username]; exists {
		return fmt.Errorf("account %s already exists", account.Username)
	}
	s.accounts[account.Username] = *account
	return nil
}

func (s *MemoryStore) SetServerStatus(_ context.Context, username string, on bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[username]
	if !ok {
		return fmt.Errorf("account %s not found", username)
	}
	a.ServerStatus = on
	s.accounts[username] = a
	return nil
}

func (s *MemoryStore) GetKey(_ context.Context, key string) (*domain.LicenseKey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	k, ok := s.keys[key]
	if !ok {
		return nil, nil
	}
	return &k, nil
}

func (s *MemoryStore) CreateKeys(ctx context.Context, keys []domain.LicenseKey) error {
	_, err := s.CreateKeysCharged(ctx, "", 0, keys)
	return err
}

func (s *MemoryStore) CreateKeysCharged(_ context.Context, payer string, cost int, keys []domain.LicenseKey) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.KeysErr != nil {
		return false, s.KeysErr
	}
	a, ok := s.accounts[payer]
	if cost > 0 && (!ok || a.Balance < cost) {
		return false, nil
	}
	for _, k := range keys {
		if _, exists := s.keys[k.Key]; exists {
			return false, fmt.Errorf("duplicate key %s", k.Key)
		}
	}
	if cost > 0 {
		a.Balance -= cost
		s.accounts[payer] = a
	}
	for _, k := range keys {
		s.keys[k.Key] = k
	}
	return true, nil
}

func (s *MemoryStore) ActivateKey(_ context.Context, key string, activatedAt, expiry time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	k, ok := s.keys[key]
	if !ok || k.ActivatedAt != nil {
		return false, nil
	}
	k.ActivatedAt = &activatedAt
	k.ExpiryDate = expiry
	s.keys[key] = k
	return true, nil
}

func (s *MemoryStore) GetDeviceBinding(_ context.Context, keyID, uuid string) (*domain.DeviceBinding, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.bindings[bindingID(keyID, uuid)]
	if !ok {
		return nil, nil
	}
	return &b, nil
}

func (s *MemoryStore) TouchDeviceBinding(_ context.Context, keyID, uuid, ip string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := bindingID(keyID, uuid)
	b, ok := s.bindings[id]
	if !ok {
		return nil
	}
	b.IPAddress = ip
	b.LastLogin = at
	s.bindings[id] = b
	return nil
}

func (s *MemoryStore) BindDevice(_ context.Context, binding *domain.DeviceBinding, conditional bool) (domain.BindOutcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	k, ok := s.keys[binding.KeyID]
	if !ok {
		return "", fmt.Errorf("key %s not found", binding.KeyID)
	}
	id := bindingID(binding.KeyID, binding.UUID)
	if _, exists := s.bindings[id]; exists {
		return domain.BindExisting, nil
	}
	if conditional && k.CurrentDevices >= k.MaxDevices {
		return domain.BindFull, nil
	}
	k.CurrentDevices++
	s.keys[binding.KeyID] = k
	s.bindings[id] = *binding
	return domain.BindAdded, nil
}

func (s *MemoryStore) GetDelegationRule(_ context.Context, username string) (*domain.DelegationRule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rules[username]
	if !ok {
		return nil, nil
	}
	r.AllowedUsers = append([]string(nil), r.AllowedUsers...)
	return &r, nil
}

func (s *MemoryStore) UpsertDelegationRule(_ context.Context, rule *domain.DelegationRule) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := *rule
	r.AllowedUsers = append([]string(nil), rule.AllowedUsers...)
	s.rules[rule.Username] = r
	return nil
}

func (s *MemoryStore) GetCredentials(_ context.Context) (*domain.CredentialPair, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.creds == nil {
		return nil, nil
	}
	c := *s.creds
	return &c, nil
}

func (s *MemoryStore) SaveCredentials(_ context.Context, pair *domain.CredentialPair) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := *pair
	s.creds = &c
	return nil
}

func (s *MemoryStore) GetPanelSettings(_ context.Context) (*domain.PanelSettings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.settings == nil {
		return nil, nil
	}
	p := *s.settings
	return &p, nil
}

// SetPanelSettings replaces the panel-wide settings.
func (s *MemoryStore) SetPanelSettings(p domain.PanelSettings) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settings = &p
}

func (s *MemoryStore) SetMaintenance(_ context.Context, on bool, message string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.settings == nil {
		s.settings = &domain.PanelSettings{}
	}
	s.settings.MaintenanceMode = on
	s.settings.MaintenanceMessage = message
	return nil
}

func (s *MemoryStore) GetLatestResource(_ context.Context, owner string) (*domain.Resource, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var owned, global *domain.Resource
	for i := range s.resources {
		r := s.resources[i]
		switch r.Owner {
		case owner:
			if owned == nil || r.CreatedAt.After(owned.CreatedAt) {
				owned = &r
			}
		case "":
			if global == nil || r.CreatedAt.After(global.CreatedAt) {
				global = &r
			}
		}
	}
	if owned != nil {
		return owned, nil
	}
	return global, nil
}

func (s *MemoryStore) SaveActivityLog(_ context.Context, log *domain.ActivityLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ActivityErr != nil {
		return s.ActivityErr
	}
	s.logs = append(s.logs, *log)
	return nil
}

func (s *MemoryStore) Ping(_ context.Context) error {
	return s.PingErr
}
