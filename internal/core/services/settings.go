package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/poyrazK/keypanel/internal/core/domain"
	"github.com/poyrazK/keypanel/internal/core/ports"
)

const (
	credentialsCacheKey = "settings:credentials"
	panelCacheKey       = "settings:panel"
)

// ErrNoCredentials is returned when no credential pair is stored and no fallback is configured.
var ErrNoCredentials = errors.New("no credential pair configured")

// SettingsProvider is a cached accessor over the credential pair and panel settings.
// Invalidate must be called after either is changed.
type SettingsProvider struct {
	repo     ports.SettingsRepository
	cache    ports.Cache
	ttl      time.Duration
	fallback domain.CredentialPair
	logger   *slog.Logger
}

// NewSettingsProvider creates a provider. cache may be nil to disable caching.
func NewSettingsProvider(repo ports.SettingsRepository, cache ports.Cache, ttl time.Duration, fallback domain.CredentialPair, logger *slog.Logger) *SettingsProvider {
	if logger == nil {
		logger = slog.Default()
	}
	return &SettingsProvider{repo: repo, cache: cache, ttl: ttl, fallback: fallback, logger: logger}
}

// Credentials returns the active credential pair. When none is stored yet the
// fallback pair is persisted first, so the first caller pays the seeding cost.
func (p *SettingsProvider) Credentials(ctx context.Context) (*domain.CredentialPair, error) {
	var pair domain.CredentialPair
	if p.load(ctx, credentialsCacheKey, &pair) {
		return &pair, nil
	}

	stored, err := p.repo.GetCredentials(ctx)
	if err != nil {
		return nil, fmt.Errorf("load credentials: %w", err)
	}
	if stored == nil {
		if p.fallback.APIKey == "" || p.fallback.SecretKey == "" {
			return nil, ErrNoCredentials
		}
		seed := p.fallback
		seed.UpdatedAt = time.Now()
		if err := p.repo.SaveCredentials(ctx, &seed); err != nil {
			return nil, fmt.Errorf("seed credentials: %w", err)
		}
		p.logger.Info("seeded fallback credential pair")
		stored = &seed
	}

	p.store(ctx, credentialsCacheKey, stored)
	return stored, nil
}

// Panel returns the panel-wide settings. Missing settings read as zero values.
func (p *SettingsProvider) Panel(ctx context.Context) (*domain.PanelSettings, error) {
	var settings domain.PanelSettings
	if p.load(ctx, panelCacheKey, &settings) {
		return &settings, nil
	}

	stored, err := p.repo.GetPanelSettings(ctx)
	if err != nil {
		return nil, fmt.Errorf("load panel settings: %w", err)
	}
	if stored == nil {
		stored = &domain.PanelSettings{}
	}
	p.store(ctx, panelCacheKey, stored)
	return stored, nil
}

// Invalidate drops the cached credential pair and settings.
func (p *SettingsProvider) Invalidate(ctx context.Context) error {
	if p.cache == nil {
		return nil
	}
	return errors.Join(
		p.cache.Delete(ctx, credentialsCacheKey),
		p.cache.Delete(ctx, panelCacheKey),
	)
}

// Ping checks the cache backend when it supports it.
func (p *SettingsProvider) Ping(ctx context.Context) error {
	if pinger, ok := p.cache.(interface{ Ping(context.Context) error }); ok {
		return pinger.Ping(ctx)
	}
	return nil
}

func (p *SettingsProvider) load(ctx context.Context, key string, dst any) bool {
	if p.cache == nil {
		return false
	}
	data, ok := p.cache.Get(ctx, key)
	if !ok {
		return false
	}
	if err := json.Unmarshal(data, dst); err != nil {
		p.logger.Warn("dropping corrupt settings cache entry", "key", key, "error", err)
		return false
	}
	return true
}

func (p *SettingsProvider) store(ctx context.Context, key string, v any) {
	if p.cache == nil || p.ttl <= 0 {
		return
	}
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	p.cache.Set(ctx, key, data, p.ttl)
}
