package inapp

import (
	"context"

	"trialops_backend/platform/apperr"
	"trialops_backend/platform/logger"

	"github.com/google/uuid"
)

type Service struct {
	repo *Repository
	log  *logger.Logger
}

func NewService(repo *Repository, log *logger.Logger) *Service {
	return &Service{
		repo: repo,
		log:  log,
	}
}

type SendParams struct {
	Title             string
	Description       string
	Type              string
	Priority          string
	RelatedEntityType string
	RelatedEntityID   uuid.UUID
	TargetRole        string
	TargetUserID      *uuid.UUID
	ActionRequired    bool
	ActionURL         string
}

// Send persists one notification addressed to a role or a user.
func (s *Service) Send(ctx context.Context, p SendParams) error {
	if s == nil || s.repo == nil {
		return apperr.Internal("in-app notification service not configured")
	}

	if p.Type == "" {
		p.Type = "info"
	}

	var targetRole *string
	if p.TargetRole != "" {
		targetRole = &p.TargetRole
	}

	_, err := s.repo.Create(ctx, CreateParams{
		Title:             p.Title,
		Description:       p.Description,
		Type:              p.Type,
		Priority:          p.Priority,
		RelatedEntityType: p.RelatedEntityType,
		RelatedEntityID:   p.RelatedEntityID,
		TargetRole:        targetRole,
		TargetUserID:      p.TargetUserID,
		ActionRequired:    p.ActionRequired,
		ActionURL:         p.ActionURL,
	})
	if err != nil {
		if s.log != nil {
			s.log.Error("failed to persist in-app notification", "error", err, "targetRole", p.TargetRole)
		}
		return err
	}
	return nil
}

func (s *Service) List(ctx context.Context, audience Audience, page, pageSize int) ([]Notification, int, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 20
	}
	if pageSize > 100 {
		pageSize = 100
	}

	offset := (page - 1) * pageSize
	return s.repo.List(ctx, audience, pageSize, offset)
}

func (s *Service) CountUnread(ctx context.Context, audience Audience) (int, error) {
	return s.repo.CountUnread(ctx, audience)
}

func (s *Service) MarkRead(ctx context.Context, id uuid.UUID, audience Audience) error {
	return s.repo.MarkRead(ctx, id, audience)
}

func (s *Service) MarkAllRead(ctx context.Context, audience Audience) (int, error) {
	return s.repo.MarkAllRead(ctx, audience)
}
