package services

import (
	"context"

	"github.com/poyrazK/keypanel/internal/core/domain"
	"github.com/poyrazK/keypanel/internal/core/ports"
)

// OwnershipAuthorizer decides whether a key owned by one reseller may be
// redeemed through another reseller's endpoint.
type OwnershipAuthorizer struct {
	accounts    ports.AccountRepository
	delegations ports.DelegationRepository
}

func NewOwnershipAuthorizer(accounts ports.AccountRepository, delegations ports.DelegationRepository) *OwnershipAuthorizer {
	return &OwnershipAuthorizer{accounts: accounts, delegations: delegations}
}

// Authorize returns nil when allowed. Every denial carries the same reason so
// callers cannot learn which endpoints have delegation configured.
func (a *OwnershipAuthorizer) Authorize(ctx context.Context, owner, endpoint string) error {
	ownerAcc, err := a.accounts.GetAccount(ctx, owner)
	if err != nil {
		return domain.Internal(err)
	}
	if ownerAcc == nil {
		return errKeyNotRegistered()
	}
	if ownerAcc.Role.IsPrivileged() {
		return nil
	}
	if owner == endpoint {
		return nil
	}

	rule, err := a.delegations.GetDelegationRule(ctx, endpoint)
	if err != nil {
		return domain.Internal(err)
	}
	if rule == nil || !rule.Allows(owner, ownerAcc.Parent()) {
		return errKeyNotRegistered()
	}
	return nil
}

func errKeyNotRegistered() error {
	return domain.NewError(domain.KindAuthorization, domain.ReasonKeyNotRegistered)
}
