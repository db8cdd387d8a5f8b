package services

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/poyrazK/keypanel/internal/core/domain"
	"github.com/poyrazK/keypanel/internal/core/ports"
)

const auditWriteTimeout = 5 * time.Second

// AsyncAudit writes activity logs in the background. Failures are logged and dropped.
type AsyncAudit struct {
	repo   ports.ActivityRepository
	logger *slog.Logger
	wg     sync.WaitGroup
}

func NewAsyncAudit(repo ports.ActivityRepository, logger *slog.Logger) *AsyncAudit {
	if logger == nil {
		logger = slog.Default()
	}
	return &AsyncAudit{repo: repo, logger: logger}
}

// Record schedules the write and returns immediately.
func (a *AsyncAudit) Record(ctx context.Context, entry *domain.ActivityLog) {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), auditWriteTimeout)
		defer cancel()
		if err := a.repo.SaveActivityLog(writeCtx, entry); err != nil {
			a.logger.Warn("failed to save activity log", "action", entry.Action, "key", entry.Key, "error", err)
		}
	}()
}

// Wait blocks until pending writes finish.
func (a *AsyncAudit) Wait() {
	a.wg.Wait()
}
