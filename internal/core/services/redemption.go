package services

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/poyrazK/keypanel/internal/core/domain"
	"github.com/poyrazK/keypanel/internal/core/ports"
	"github.com/poyrazK/keypanel/internal/infrastructure/metrics"
	"github.com/poyrazK/keypanel/internal/protocol"
)

// ExpiryLayout is the client-facing expiry format.
const ExpiryLayout = "2006-01-02 15:04:05"

// RedemptionConfig tunes the redemption service.
type RedemptionConfig struct {
	Location    *time.Location
	CounterMode CounterMode
	Now         func() time.Time
}

// redemptionPayload is the signed data returned to the client.
type redemptionPayload struct {
	Announcement   string `json:"announcement"`
	Credit         string `json:"credit"`
	CurrentDevices int    `json:"currentDevices"`
	DevicesLeft    int    `json:"devicesLeft"`
	DownloadURL    string `json:"downloadUrl"`
	Expiry         string `json:"expiry"`
	Key            string `json:"key"`
	MaxDevices     int    `json:"maxDevices"`
	ModName        string `json:"modName"`
}

type redemptionService struct {
	repo     ports.PanelRepository
	settings *SettingsProvider
	gate     *CredentialGate
	cascade  *StatusCascade
	authz    *OwnershipAuthorizer
	ledger   *DeviceLedger
	audit    ports.AuditSink
	loc      *time.Location
	now      func() time.Time
	logger   *slog.Logger
}

// NewRedemptionService wires the redemption pipeline over repo.
func NewRedemptionService(repo ports.PanelRepository, settings *SettingsProvider, audit ports.AuditSink, cfg RedemptionConfig, logger *slog.Logger) ports.RedemptionService {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &redemptionService{
		repo:     repo,
		settings: settings,
		gate:     NewCredentialGate(repo, settings),
		cascade:  NewStatusCascade(repo, logger),
		authz:    NewOwnershipAuthorizer(repo, repo),
		ledger:   NewDeviceLedger(repo, cfg.CounterMode),
		audit:    audit,
		loc:      cfg.Location,
		now:      cfg.Now,
		logger:   logger,
	}
}

// Redeem runs gate, decode, cascade, ownership, activation and device checks
// in order and stops at the first failure. Only a fully admitted request writes.
func (s *redemptionService) Redeem(ctx context.Context, req ports.RedeemRequest) (*ports.RedeemResult, error) {
	gate, err := s.gate.Check(ctx, req.Endpoint, req.APIKey)
	if err != nil {
		return nil, err
	}
	secret := gate.Credentials.SecretKey

	keyID, deviceID, err := protocol.DecodeRedemption(req.EncryptedData, secret)
	if err != nil {
		return nil, domain.NewError(domain.KindValidation, domain.ReasonInvalidPayload)
	}

	entry := &domain.ActivityLog{Endpoint: req.Endpoint, Key: keyID, UUID: deviceID, IPAddress: req.ClientIP}
	result, err := s.redeemKey(ctx, gate, keyID, deviceID, req.ClientIP, entry)
	if err != nil {
		entry.Action = domain.ActionRedeemDenied
		entry.Details = domain.AsError(err).Reason
		s.audit.Record(ctx, entry)
		return nil, err
	}
	entry.Action = domain.ActionKeyRedeemed
	s.audit.Record(ctx, entry)
	return result, nil
}

func (s *redemptionService) redeemKey(ctx context.Context, gate *GateResult, keyID, deviceID, ip string, entry *domain.ActivityLog) (*ports.RedeemResult, error) {
	key, err := s.repo.GetKey(ctx, keyID)
	if err != nil {
		return nil, domain.Internal(err)
	}
	if key == nil {
		return nil, errKeyNotRegistered()
	}
	entry.Owner = key.CreatedBy

	if res := s.cascade.Check(ctx, key.CreatedBy); res.Blocked {
		return nil, domain.NewError(domain.KindAuthorization, res.Message)
	}
	if err := s.authz.Authorize(ctx, key.CreatedBy, gate.Endpoint.Username); err != nil {
		return nil, err
	}
	if !key.IsActive {
		return nil, domain.NewError(domain.KindState, domain.ReasonKeyDisabled)
	}

	now := s.now()
	var activatedAt, expiry time.Time
	switch key.State(now) {
	case domain.KeyExpired:
		return nil, domain.NewError(domain.KindState, domain.ReasonKeyExpired)
	case domain.KeyPending:
		activatedAt, expiry, err = key.Activation(now)
		if err != nil {
			return nil, domain.Internal(err)
		}
	}

	adm, err := s.ledger.Admit(ctx, key, deviceID)
	if err != nil {
		return nil, err
	}
	adm, err = s.ledger.Commit(ctx, key, deviceID, ip, adm, now)
	if err != nil {
		return nil, err
	}
	if !adm.Returning {
		s.audit.Record(ctx, s.sideEntry(domain.ActionDeviceBound, entry, key))
	}

	if key.ActivatedAt == nil {
		won, err := s.activate(ctx, key, activatedAt, expiry)
		if err != nil {
			return nil, err
		}
		if won {
			s.audit.Record(ctx, s.sideEntry(domain.ActionKeyActivated, entry, key))
		}
	}

	frame, err := protocol.Seal(s.payload(ctx, gate, key), gate.Credentials.SecretKey, s.now())
	if err != nil {
		return nil, domain.Internal(err)
	}
	return &ports.RedeemResult{EncryptedData: frame}, nil
}

// activate persists the pending -> active transition and reports whether this
// request performed it. When a concurrent request won, its stored values are adopted.
func (s *redemptionService) activate(ctx context.Context, key *domain.LicenseKey, activatedAt, expiry time.Time) (bool, error) {
	won, err := s.repo.ActivateKey(ctx, key.Key, activatedAt, expiry)
	if err != nil {
		return false, domain.Internal(err)
	}
	if won {
		key.ActivatedAt = &activatedAt
		key.ExpiryDate = expiry
		metrics.Activations.Inc()
		return true, nil
	}

	current, err := s.repo.GetKey(ctx, key.Key)
	if err != nil {
		return false, domain.Internal(err)
	}
	if current == nil || current.ActivatedAt == nil {
		return false, domain.Internal(errors.New("activation lost for key " + key.Key))
	}
	key.ActivatedAt = current.ActivatedAt
	key.ExpiryDate = current.ExpiryDate
	return false, nil
}

func (s *redemptionService) sideEntry(action string, entry *domain.ActivityLog, key *domain.LicenseKey) *domain.ActivityLog {
	return &domain.ActivityLog{
		Action: action, Endpoint: entry.Endpoint, Owner: key.CreatedBy,
		Key: key.Key, UUID: entry.UUID, IPAddress: entry.IPAddress,
	}
}

func (s *redemptionService) payload(ctx context.Context, gate *GateResult, key *domain.LicenseKey) redemptionPayload {
	announcement := key.Announcement
	if announcement == "" {
		announcement = gate.Settings.Announcement
	}

	modName := gate.Settings.DefaultModName
	if gate.Endpoint.ModName != nil && *gate.Endpoint.ModName != "" {
		modName = *gate.Endpoint.ModName
	}

	var downloadURL string
	res, err := s.repo.GetLatestResource(ctx, gate.Endpoint.Username)
	if err != nil {
		s.logger.Warn("failed to resolve download resource", "endpoint", gate.Endpoint.Username, "error", err)
	} else if res != nil {
		downloadURL = res.URL
	}

	return redemptionPayload{
		Announcement:   announcement,
		Credit:         key.Credit,
		CurrentDevices: key.CurrentDevices,
		DevicesLeft:    key.DevicesLeft(),
		DownloadURL:    downloadURL,
		Expiry:         key.ExpiryDate.In(s.loc).Format(ExpiryLayout),
		Key:            key.Key,
		MaxDevices:     key.MaxDevices,
		ModName:        modName,
	}
}

// HealthCheck reports the status of the store and the settings cache.
func (s *redemptionService) HealthCheck(ctx context.Context) map[string]error {
	return map[string]error{
		"database": s.repo.Ping(ctx),
		"cache":    s.settings.Ping(ctx),
	}
}
