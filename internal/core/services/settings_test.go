package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/poyrazK/keypanel/internal/adapters/cache"
	"github.com/poyrazK/keypanel/internal/core/domain"
	"github.com/poyrazK/keypanel/internal/testutil"
)

func TestSettingsProvider_SeedsFallback(t *testing.T) {
	store := testutil.NewMemoryStore()
	p := NewSettingsProvider(store, nil, 0, domain.CredentialPair{APIKey: "fallback-api", SecretKey: "fallback-secret"}, nil)
	ctx := context.Background()

	pair, err := p.Credentials(ctx)
	if err != nil {
		t.Fatalf("Credentials failed: %v", err)
	}
	if pair.APIKey != "fallback-api" {
		t.Errorf("expected fallback pair, got %+v", pair)
	}
	stored, _ := store.GetCredentials(ctx)
	if stored == nil || stored.SecretKey != "fallback-secret" {
		t.Errorf("fallback pair should be persisted, got %+v", stored)
	}

	// A persisted pair wins over the fallback.
	_ = store.SaveCredentials(ctx, &domain.CredentialPair{APIKey: "rotated", SecretKey: "rotated-secret"})
	pair, _ = p.Credentials(ctx)
	if pair.APIKey != "rotated" {
		t.Errorf("expected stored pair, got %+v", pair)
	}
}

func TestSettingsProvider_NoCredentials(t *testing.T) {
	p := NewSettingsProvider(testutil.NewMemoryStore(), nil, 0, domain.CredentialPair{}, nil)
	if _, err := p.Credentials(context.Background()); !errors.Is(err, ErrNoCredentials) {
		t.Errorf("expected ErrNoCredentials, got %v", err)
	}
}

func TestSettingsProvider_CacheAndInvalidate(t *testing.T) {
	store := testutil.NewMemoryStore()
	_ = store.SaveCredentials(context.Background(), &domain.CredentialPair{APIKey: "v1", SecretKey: "s1"})
	store.SetPanelSettings(domain.PanelSettings{DefaultModName: "ModA"})

	mc := cache.NewMemoryCache(0)
	defer mc.Close()
	p := NewSettingsProvider(store, mc, time.Minute, domain.CredentialPair{}, nil)
	ctx := context.Background()

	if pair, _ := p.Credentials(ctx); pair.APIKey != "v1" {
		t.Fatalf("unexpected pair %+v", pair)
	}
	if panel, _ := p.Panel(ctx); panel.DefaultModName != "ModA" {
		t.Fatalf("unexpected panel %+v", panel)
	}

	_ = store.SaveCredentials(ctx, &domain.CredentialPair{APIKey: "v2", SecretKey: "s2"})
	_ = store.SetMaintenance(ctx, true, "")
	if pair, _ := p.Credentials(ctx); pair.APIKey != "v1" {
		t.Errorf("expected cached pair before invalidation, got %+v", pair)
	}
	if panel, _ := p.Panel(ctx); panel.MaintenanceMode {
		t.Errorf("expected cached settings before invalidation")
	}

	if err := p.Invalidate(ctx); err != nil {
		t.Fatalf("Invalidate failed: %v", err)
	}
	if pair, _ := p.Credentials(ctx); pair.APIKey != "v2" {
		t.Errorf("expected rotated pair after invalidation, got %+v", pair)
	}
	if panel, _ := p.Panel(ctx); !panel.MaintenanceMode {
		t.Errorf("expected maintenance after invalidation")
	}
}

func TestSettingsProvider_MissingPanelSettings(t *testing.T) {
	p := NewSettingsProvider(testutil.NewMemoryStore(), nil, 0, domain.CredentialPair{}, nil)
	panel, err := p.Panel(context.Background())
	if err != nil || panel == nil || panel.MaintenanceMode {
		t.Errorf("expected zero settings, got %+v %v", panel, err)
	}
}
