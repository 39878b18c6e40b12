// Package inapp stores notifications surfaced in the portal's inbox.
// Notifications target either a role (everyone holding it) or one user.
package inapp

import (
	"context"
	"fmt"
	"time"

	"trialops_backend/platform/apperr"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	opCreate      = "notification.inapp.repository.create"
	opList        = "notification.inapp.repository.list"
	opCountUnread = "notification.inapp.repository.count_unread"
	opMarkRead    = "notification.inapp.repository.mark_read"
	opMarkAllRead = "notification.inapp.repository.mark_all_read"

	errRepoNotConfigured = "in-app notification repository not configured"
)

type Notification struct {
	ID                uuid.UUID  `json:"id"`
	Title             string     `json:"title"`
	Description       string     `json:"description"`
	Type              string     `json:"type"`
	Priority          string     `json:"priority"`
	RelatedEntityType string     `json:"relatedEntityType"`
	RelatedEntityID   uuid.UUID  `json:"relatedEntityId"`
	TargetRole        *string    `json:"targetRole,omitempty"`
	TargetUserID      *uuid.UUID `json:"targetUserId,omitempty"`
	ActionRequired    bool       `json:"actionRequired"`
	ActionURL         string     `json:"actionUrl"`
	IsRead            bool       `json:"isRead"`
	ReadAt            *time.Time `json:"readAt,omitempty"`
	CreatedAt         time.Time  `json:"createdAt"`
}

type CreateParams struct {
	Title             string
	Description       string
	Type              string
	Priority          string
	RelatedEntityType string
	RelatedEntityID   uuid.UUID
	TargetRole        *string
	TargetUserID      *uuid.UUID
	ActionRequired    bool
	ActionURL         string
}

// Audience scopes reads to what one authenticated identity should see:
// notifications addressed to them directly or to any of their roles.
type Audience struct {
	UserID uuid.UUID
	Roles  []string
}

const notificationColumns = `id, title, description, type, priority,
	related_entity_type, related_entity_id, target_role, target_user_id,
	action_required, action_url, is_read, read_at, created_at`

const audienceFilter = `(target_user_id = $1 OR target_role = ANY($2))`

type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) Create(ctx context.Context, p CreateParams) (Notification, error) {
	if r == nil || r.pool == nil {
		return Notification{}, apperr.Internal(errRepoNotConfigured).WithOp(opCreate)
	}
	if p.TargetRole == nil && p.TargetUserID == nil {
		return Notification{}, apperr.Validation("targetRole or targetUserId is required").WithOp(opCreate)
	}
	if p.Title == "" {
		return Notification{}, apperr.Validation("title is required").WithOp(opCreate)
	}

	var n Notification
	err := r.pool.QueryRow(ctx, `
		INSERT INTO notifications
			(title, description, type, priority, related_entity_type, related_entity_id,
			 target_role, target_user_id, action_required, action_url)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING `+notificationColumns+`
	`, p.Title, p.Description, p.Type, p.Priority, p.RelatedEntityType, p.RelatedEntityID,
		p.TargetRole, p.TargetUserID, p.ActionRequired, p.ActionURL).Scan(
		&n.ID, &n.Title, &n.Description, &n.Type, &n.Priority,
		&n.RelatedEntityType, &n.RelatedEntityID, &n.TargetRole, &n.TargetUserID,
		&n.ActionRequired, &n.ActionURL, &n.IsRead, &n.ReadAt, &n.CreatedAt,
	)
	if err != nil {
		return Notification{}, apperr.Internal(fmt.Sprintf("create notification failed: %v", err)).WithOp(opCreate)
	}
	return n, nil
}

func (r *Repository) List(ctx context.Context, audience Audience, limit, offset int) ([]Notification, int, error) {
	if r == nil || r.pool == nil {
		return nil, 0, apperr.Internal(errRepoNotConfigured).WithOp(opList)
	}

	var total int
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM notifications WHERE `+audienceFilter,
		audience.UserID, audience.Roles,
	).Scan(&total)
	if err != nil {
		return nil, 0, apperr.Internal(fmt.Sprintf("count notifications failed: %v", err)).WithOp(opList)
	}

	rows, err := r.pool.Query(ctx, `
		SELECT `+notificationColumns+`
		FROM notifications
		WHERE `+audienceFilter+`
		ORDER BY created_at DESC
		LIMIT $3 OFFSET $4
	`, audience.UserID, audience.Roles, limit, offset)
	if err != nil {
		return nil, 0, apperr.Internal(fmt.Sprintf("list notifications query failed: %v", err)).WithOp(opList)
	}
	defer rows.Close()

	items := make([]Notification, 0, limit)
	for rows.Next() {
		var n Notification
		if scanErr := rows.Scan(
			&n.ID, &n.Title, &n.Description, &n.Type, &n.Priority,
			&n.RelatedEntityType, &n.RelatedEntityID, &n.TargetRole, &n.TargetUserID,
			&n.ActionRequired, &n.ActionURL, &n.IsRead, &n.ReadAt, &n.CreatedAt,
		); scanErr != nil {
			return nil, 0, apperr.Internal(fmt.Sprintf("scan notifications failed: %v", scanErr)).WithOp(opList)
		}
		items = append(items, n)
	}
	if rowsErr := rows.Err(); rowsErr != nil {
		return nil, 0, apperr.Internal(fmt.Sprintf("iterate notifications failed: %v", rowsErr)).WithOp(opList)
	}

	return items, total, nil
}

func (r *Repository) CountUnread(ctx context.Context, audience Audience) (int, error) {
	if r == nil || r.pool == nil {
		return 0, apperr.Internal(errRepoNotConfigured).WithOp(opCountUnread)
	}

	var count int
	err := r.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM notifications
		WHERE `+audienceFilter+` AND is_read = FALSE
	`, audience.UserID, audience.Roles).Scan(&count)
	if err != nil {
		return 0, apperr.Internal(fmt.Sprintf("count unread notifications failed: %v", err)).WithOp(opCountUnread)
	}
	return count, nil
}

// MarkRead marks one notification read, provided it is addressed to the
// audience. Read state is shared for role-targeted notifications.
func (r *Repository) MarkRead(ctx context.Context, id uuid.UUID, audience Audience) error {
	if r == nil || r.pool == nil {
		return apperr.Internal(errRepoNotConfigured).WithOp(opMarkRead)
	}

	tag, err := r.pool.Exec(ctx, `
		UPDATE notifications
		SET is_read = TRUE, read_at = COALESCE(read_at, now())
		WHERE id = $3 AND `+audienceFilter+`
	`, audience.UserID, audience.Roles, id)
	if err != nil {
		return apperr.Internal(fmt.Sprintf("mark notification read failed: %v", err)).WithOp(opMarkRead)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("notification not found").WithOp(opMarkRead)
	}
	return nil
}

// MarkAllRead marks everything the audience can see as read and returns the
// number of notifications affected.
func (r *Repository) MarkAllRead(ctx context.Context, audience Audience) (int, error) {
	if r == nil || r.pool == nil {
		return 0, apperr.Internal(errRepoNotConfigured).WithOp(opMarkAllRead)
	}

	tag, err := r.pool.Exec(ctx, `
		UPDATE notifications
		SET is_read = TRUE, read_at = COALESCE(read_at, now())
		WHERE `+audienceFilter+` AND is_read = FALSE
	`, audience.UserID, audience.Roles)
	if err != nil {
		return 0, apperr.Internal(fmt.Sprintf("mark all notifications read failed: %v", err)).WithOp(opMarkAllRead)
	}
	return int(tag.RowsAffected()), nil
}
