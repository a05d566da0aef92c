// Package auditlog records and queries moderation decisions.
package auditlog

import (
	"context"

	"github.com/aimd54/lorekeeper/internal/metrics"
	"github.com/aimd54/lorekeeper/internal/models"
	"github.com/aimd54/lorekeeper/internal/repository"
	"github.com/aimd54/lorekeeper/pkg/logger"
)

// Repository is the audit log store.
type Repository interface {
	Create(ctx context.Context, entry *models.ModerationLog) error
	List(ctx context.Context, filter repository.ModerationLogFilter) ([]models.ModerationLog, error)
	Count(ctx context.Context, filter repository.ModerationLogFilter) (int64, error)
	CountByAction(ctx context.Context) ([]models.ActionCount, error)
}

// Service writes audit entries on a best-effort basis and serves admin queries.
type Service struct {
	repo Repository
	log  *logger.Logger
}

// NewService creates an audit log service with the concrete repository.
func NewService(repo *repository.ModerationLogRepository, log *logger.Logger) *Service {
	return &Service{repo: repo, log: log}
}

// NewServiceWithInterfaces creates an audit log service with interface dependencies (useful for testing).
func NewServiceWithInterfaces(repo Repository, log *logger.Logger) *Service {
	return &Service{repo: repo, log: log}
}

// Record appends an entry. A failed write is logged and counted, then
// returned only so callers can report it; it must never fail their operation.
func (s *Service) Record(ctx context.Context, entry *models.ModerationLog) error {
	if err := s.repo.Create(ctx, entry); err != nil {
		metrics.RecordAuditLogFailure()
		s.log.Error().
			Err(err).
			Str("action", string(entry.Action)).
			Str("user_id", entry.UserID).
			Str("target_id", entry.TargetID).
			Msg("Failed to record moderation log")
		return err
	}

	s.log.Debug().
		Str("action", string(entry.Action)).
		Str("user_id", entry.UserID).
		Str("target_type", entry.TargetType).
		Str("target_id", entry.TargetID).
		Msg("Recorded moderation log")
	return nil
}

// List returns entries matching filter, newest first.
func (s *Service) List(ctx context.Context, filter repository.ModerationLogFilter) ([]models.ModerationLog, error) {
	entries, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, err
	}
	if entries == nil {
		entries = []models.ModerationLog{}
	}
	return entries, nil
}

// ListByUser returns the actions taken by a moderator.
func (s *Service) ListByUser(ctx context.Context, userID string) ([]models.ModerationLog, error) {
	return s.List(ctx, repository.ModerationLogFilter{UserID: userID})
}

// ListByTarget returns the history of one target.
func (s *Service) ListByTarget(ctx context.Context, targetID string) ([]models.ModerationLog, error) {
	return s.List(ctx, repository.ModerationLogFilter{TargetID: targetID})
}

// Count returns the number of entries matching filter.
func (s *Service) Count(ctx context.Context, filter repository.ModerationLogFilter) (int64, error) {
	return s.repo.Count(ctx, filter)
}

// Stats returns entry counts grouped by action, most frequent first.
func (s *Service) Stats(ctx context.Context) ([]models.ActionCount, error) {
	counts, err := s.repo.CountByAction(ctx)
	if err != nil {
		return nil, err
	}
	if counts == nil {
		counts = []models.ActionCount{}
	}
	return counts, nil
}
