package services

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/poyrazK/keypanel/internal/core/domain"
	"github.com/poyrazK/keypanel/internal/core/ports"
)

// maxCascadeDepth bounds the parent walk independently of the cycle guard.
const maxCascadeDepth = 64

// CascadeResult is the outcome of a server-status walk.
type CascadeResult struct {
	Blocked bool
	Message string
}

// trail is an immutable visited list threaded through the walk.
type trail struct {
	username string
	prev     *trail
}

func (t *trail) contains(username string) bool {
	for n := t; n != nil; n = n.prev {
		if n.username == username {
			return true
		}
	}
	return false
}

// StatusCascade walks the createdBy chain to find a disabled server status.
// It fails open: missing accounts and lookup errors do not block.
type StatusCascade struct {
	accounts ports.AccountRepository
	logger   *slog.Logger
}

func NewStatusCascade(accounts ports.AccountRepository, logger *slog.Logger) *StatusCascade {
	if logger == nil {
		logger = slog.Default()
	}
	return &StatusCascade{accounts: accounts, logger: logger}
}

// Check walks upward from username, which should be the key's owning reseller.
func (c *StatusCascade) Check(ctx context.Context, username string) CascadeResult {
	return c.walk(ctx, username, nil, 0)
}

func (c *StatusCascade) walk(ctx context.Context, username string, visited *trail, depth int) CascadeResult {
	if visited.contains(username) || depth >= maxCascadeDepth {
		return CascadeResult{}
	}
	visited = &trail{username: username, prev: visited}

	acc, err := c.accounts.GetAccount(ctx, username)
	if err != nil {
		c.logger.Warn("server status lookup failed, allowing", "username", username, "error", err)
		return CascadeResult{}
	}
	if acc == nil {
		return CascadeResult{}
	}
	if !acc.ServerStatus {
		if depth == 0 {
			return CascadeResult{Blocked: true, Message: domain.ReasonServerOff}
		}
		return CascadeResult{Blocked: true, Message: fmt.Sprintf("Server is off by %s", acc.Username)}
	}

	parent := acc.Parent()
	if parent == "" {
		return CascadeResult{}
	}
	return c.walk(ctx, parent, visited, depth+1)
}
