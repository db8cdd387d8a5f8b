package services

import (
	"context"
	"encoding/hex"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/poyrazK/keypanel/internal/core/domain"
	"github.com/poyrazK/keypanel/internal/core/ports"
)

// GeneratorConfig holds the generation rules shared by every key producer.
type GeneratorConfig struct {
	KeyCost  int
	MaxBatch int
}

// GenerateRequest describes a batch of keys to create under Creator.
type GenerateRequest struct {
	Creator      string
	Count        int
	Duration     int
	DurationType domain.DurationType
	MaxDevices   int
	Credit       string
	Announcement string
}

// KeyGenerator creates keys after checking the creator's standing,
// server-status cascade and balance.
type KeyGenerator struct {
	repo    ports.PanelRepository
	cascade *StatusCascade
	audit   ports.AuditSink
	cfg     GeneratorConfig
	logger  *slog.Logger
}

func NewKeyGenerator(repo ports.PanelRepository, audit ports.AuditSink, cfg GeneratorConfig, logger *slog.Logger) *KeyGenerator {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.MaxBatch <= 0 {
		cfg.MaxBatch = 100
	}
	return &KeyGenerator{
		repo:    repo,
		cascade: NewStatusCascade(repo, logger),
		audit:   audit,
		cfg:     cfg,
		logger:  logger,
	}
}

// Generate validates req, charges the creator and stores the new pending keys.
func (g *KeyGenerator) Generate(ctx context.Context, req GenerateRequest) ([]domain.LicenseKey, error) {
	if err := g.validate(req); err != nil {
		return nil, err
	}

	creator, err := g.repo.GetAccount(ctx, req.Creator)
	if err != nil {
		return nil, domain.Internal(err)
	}
	if creator == nil || !creator.IsActive {
		return nil, domain.NewError(domain.KindNotFound, domain.ReasonUserNotFound)
	}
	if res := g.cascade.Check(ctx, creator.Username); res.Blocked {
		return nil, domain.NewError(domain.KindAuthorization, res.Message)
	}

	cost := 0
	if !creator.Role.IsPrivileged() {
		cost = req.Count * g.cfg.KeyCost
	}

	now := time.Now()
	keys := make([]domain.LicenseKey, 0, req.Count)
	for i := 0; i < req.Count; i++ {
		keys = append(keys, domain.LicenseKey{
			Key:          NewKeyString(),
			CreatedBy:    creator.Username,
			MaxDevices:   req.MaxDevices,
			Duration:     req.Duration,
			DurationType: req.DurationType,
			IsActive:     true,
			ExpiryDate:   domain.PendingExpiry,
			Credit:       req.Credit,
			Announcement: req.Announcement,
			CreatedAt:    now,
		})
	}

	charged, err := g.repo.CreateKeysCharged(ctx, creator.Username, cost, keys)
	if err != nil {
		return nil, domain.Internal(fmt.Errorf("store keys: %w", err))
	}
	if !charged {
		return nil, domain.NewError(domain.KindState, domain.ReasonBalance)
	}

	g.audit.Record(ctx, &domain.ActivityLog{
		Action:  domain.ActionKeyGenerated,
		Owner:   creator.Username,
		Details: fmt.Sprintf("%d keys, %d %s, %d devices", req.Count, req.Duration, req.DurationType, req.MaxDevices),
	})
	g.logger.Info("generated keys", "creator", creator.Username, "count", req.Count)
	return keys, nil
}

func (g *KeyGenerator) validate(req GenerateRequest) error {
	switch {
	case req.Duration <= 0:
		return domain.NewError(domain.KindValidation, "Duration must be positive")
	case req.DurationType != domain.DurationHours && req.DurationType != domain.DurationDays:
		return domain.NewError(domain.KindValidation, "Duration type must be hours or days")
	case !validityInRange(req.Duration, req.DurationType):
		return domain.NewError(domain.KindValidation, "Duration exceeds 100 years")
	case req.MaxDevices < 1:
		return domain.NewError(domain.KindValidation, "Max devices must be at least 1")
	case req.Count < 1 || req.Count > g.cfg.MaxBatch:
		return domain.NewError(domain.KindValidation, fmt.Sprintf("Count must be between 1 and %d", g.cfg.MaxBatch))
	}
	return nil
}

func validityInRange(duration int, unit domain.DurationType) bool {
	k := domain.LicenseKey{Duration: duration, DurationType: unit}
	_, err := k.Validity()
	return err == nil
}

// NewKeyString returns 16 uppercase hex characters. Keys never contain an
// underscore, which separates key and device id on the wire.
func NewKeyString() string {
	id := uuid.New()
	return strings.ToUpper(hex.EncodeToString(id[:8]))
}
