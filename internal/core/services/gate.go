package services

import (
	"context"
	"crypto/subtle"

	"github.com/poyrazK/keypanel/internal/core/domain"
	"github.com/poyrazK/keypanel/internal/core/ports"
)

// GateResult carries what the credential gate loaded, for reuse downstream.
type GateResult struct {
	Endpoint    *domain.Account
	Credentials *domain.CredentialPair
	Settings    *domain.PanelSettings
}

// CredentialGate authenticates a call to a reseller endpoint and enforces maintenance mode.
type CredentialGate struct {
	accounts ports.AccountRepository
	settings *SettingsProvider
}

func NewCredentialGate(accounts ports.AccountRepository, settings *SettingsProvider) *CredentialGate {
	return &CredentialGate{accounts: accounts, settings: settings}
}

// Check validates the endpoint and the presented API key, in that order, then
// the maintenance flag. Nothing beyond these lookups happens before it passes.
func (g *CredentialGate) Check(ctx context.Context, endpoint, presentedKey string) (*GateResult, error) {
	acc, err := g.accounts.GetAccount(ctx, endpoint)
	if err != nil {
		return nil, domain.Internal(err)
	}
	if acc == nil || !acc.IsActive {
		return nil, domain.NewError(domain.KindNotFound, domain.ReasonUserNotFound)
	}

	creds, err := g.settings.Credentials(ctx)
	if err != nil {
		return nil, domain.Internal(err)
	}
	if presentedKey == "" || subtle.ConstantTimeCompare([]byte(presentedKey), []byte(creds.APIKey)) != 1 {
		return nil, domain.NewError(domain.KindAuthentication, domain.ReasonInvalidAPIKey)
	}

	panel, err := g.settings.Panel(ctx)
	if err != nil {
		return nil, domain.Internal(err)
	}
	if panel.MaintenanceMode {
		msg := panel.MaintenanceMessage
		if msg == "" {
			msg = domain.DefaultMaintenanceText
		}
		return nil, domain.NewError(domain.KindMaintenance, msg)
	}

	return &GateResult{Endpoint: acc, Credentials: creds, Settings: panel}, nil
}
