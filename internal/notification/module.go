// Package notification fans task lifecycle events out to the people who
// act on them: in-app inbox entries immediately, email via a durable outbox.
package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"trialops_backend/internal/email"
	"trialops_backend/internal/events"
	apphttp "trialops_backend/internal/http"
	"trialops_backend/internal/notification/handler"
	"trialops_backend/internal/notification/inapp"
	"trialops_backend/internal/notification/outbox"
	"trialops_backend/platform/logger"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// TaskEmailPayload is the outbox payload for task lifecycle emails.
type TaskEmailPayload struct {
	To    string          `json:"to"`
	Event string          `json:"event"` // "created" or "resolved"
	Task  email.TaskEmail `json:"task"`
}

// Options configures the notification module.
type Options struct {
	// RoleEmails maps workflow roles to distribution-list addresses.
	RoleEmails map[string]string
	// AppBaseURL builds task deep links in notifications and emails.
	AppBaseURL string
	// MaxAttempts bounds email delivery retries before a row is dropped.
	MaxAttempts int
}

// inboxSender persists in-app notifications; implemented by inapp.Service.
type inboxSender interface {
	Send(ctx context.Context, p inapp.SendParams) error
}

// Module subscribes to detection events and owns the notification surfaces.
type Module struct {
	inappSvc inboxSender
	outbox   *outbox.Repository
	sender   email.Sender
	handler  *handler.Handler
	bus      events.Bus
	log      *logger.Logger
	opts     Options
}

// New constructs the notification module and subscribes it to the bus.
func New(pool *pgxpool.Pool, sender email.Sender, bus events.Bus, log *logger.Logger, opts Options) *Module {
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 5
	}

	inappSvc := inapp.NewService(inapp.NewRepository(pool), log)

	m := &Module{
		inappSvc: inappSvc,
		outbox:   outbox.New(pool),
		sender:   sender,
		handler:  handler.New(inappSvc),
		bus:      bus,
		log:      log,
		opts:     opts,
	}

	bus.Subscribe(events.TaskCreated{}.EventName(), events.HandlerFunc(m.onTaskCreated))
	bus.Subscribe(events.TaskAutoResolved{}.EventName(), events.HandlerFunc(m.onTaskAutoResolved))

	return m
}

// Name implements http.Module.
func (m *Module) Name() string { return "notification" }

// RegisterRoutes implements http.Module.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	m.handler.RegisterRoutes(ctx.V1)
}

func (m *Module) onTaskCreated(ctx context.Context, event events.Event) error {
	created, ok := event.(events.TaskCreated)
	if !ok {
		return fmt.Errorf("notification: unexpected event type %T", event)
	}

	taskURL := m.taskURL(created.TaskID)
	roles := audienceRoles(created.AssignedRole, created.AlsoNotify)

	for _, role := range roles {
		// Creation notifications are actionable for every recipient;
		// only auto-resolutions are informational.
		if err := m.inappSvc.Send(ctx, inapp.SendParams{
			Title:             created.Title,
			Description:       created.Description,
			Type:              "task_created",
			Priority:          created.Priority,
			RelatedEntityType: "task",
			RelatedEntityID:   created.TaskID,
			TargetRole:        role,
			ActionRequired:    true,
			ActionURL:         taskURL,
		}); err != nil {
			return err
		}

		m.queueEmail(ctx, role, TaskEmailPayload{
			Event: "created",
			Task: email.TaskEmail{
				TaskID:       created.TaskID.String(),
				Title:        created.Title,
				Description:  created.Description,
				Priority:     created.Priority,
				AssignedRole: created.AssignedRole,
				TrialID:      created.TrialID,
				Domain:       created.Domain,
				RecordID:     created.RecordID,
				Source:       created.Source,
				DueDate:      created.DueDate.Format("2006-01-02"),
				TaskURL:      taskURL,
			},
		})
	}

	return nil
}

func (m *Module) onTaskAutoResolved(ctx context.Context, event events.Event) error {
	resolved, ok := event.(events.TaskAutoResolved)
	if !ok {
		return fmt.Errorf("notification: unexpected event type %T", event)
	}

	taskURL := m.taskURL(resolved.TaskID)
	description := "The underlying discrepancy is no longer present in the source data."
	if !resolved.Completed {
		description += " The task is in review and keeps its current status."
	}

	for _, role := range audienceRoles(resolved.AssignedRole, resolved.AlsoNotify) {
		if err := m.inappSvc.Send(ctx, inapp.SendParams{
			Title:             "Resolved: " + resolved.Title,
			Description:       description,
			Type:              "task_resolved",
			Priority:          resolved.Priority,
			RelatedEntityType: "task",
			RelatedEntityID:   resolved.TaskID,
			TargetRole:        role,
			ActionRequired:    false,
			ActionURL:         taskURL,
		}); err != nil {
			return err
		}

		m.queueEmail(ctx, role, TaskEmailPayload{
			Event: "resolved",
			Task: email.TaskEmail{
				TaskID:         resolved.TaskID.String(),
				Title:          resolved.Title,
				Priority:       resolved.Priority,
				AssignedRole:   resolved.AssignedRole,
				TrialID:        resolved.TrialID,
				Domain:         resolved.Domain,
				RecordID:       resolved.RecordID,
				Source:         resolved.Source,
				TaskURL:        taskURL,
				ResolutionNote: description,
				AutoCompleted:  resolved.Completed,
			},
		})
	}

	return nil
}

// queueEmail writes one outbox row for the role's distribution address.
// Roles without a configured address get in-app notifications only.
func (m *Module) queueEmail(ctx context.Context, role string, payload TaskEmailPayload) {
	address, ok := m.opts.RoleEmails[role]
	if !ok || address == "" {
		return
	}
	payload.To = address

	id, err := m.outbox.Insert(ctx, outbox.InsertParams{
		Kind:    outbox.KindTaskEmail,
		Payload: payload,
	})
	if err != nil {
		m.log.Error("failed to queue notification email", "error", err, "role", role)
		return
	}

	m.bus.Publish(ctx, events.NotificationOutboxDue{
		BaseEvent: events.NewBaseEvent(),
		OutboxID:  id,
	})
}

// ProcessOutbox claims due email deliveries and sends them, retrying with
// quadratic backoff and dropping rows after the configured attempt budget.
// It returns how many emails were delivered.
func (m *Module) ProcessOutbox(ctx context.Context, limit int) (int, error) {
	records, err := m.outbox.ClaimDue(ctx, limit)
	if err != nil {
		return 0, fmt.Errorf("claim outbox rows: %w", err)
	}

	sent := 0
	for _, record := range records {
		if err := m.deliver(ctx, record); err != nil {
			m.handleDeliveryFailure(ctx, record, err)
			continue
		}
		if err := m.outbox.MarkSucceeded(ctx, record.ID); err != nil {
			m.log.Error("failed to mark outbox row succeeded", "error", err, "outboxId", record.ID)
		}
		sent++
	}
	return sent, nil
}

func (m *Module) deliver(ctx context.Context, record outbox.Record) error {
	if record.Kind != outbox.KindTaskEmail {
		return fmt.Errorf("unknown outbox kind %q", record.Kind)
	}

	var payload TaskEmailPayload
	if err := json.Unmarshal(record.Payload, &payload); err != nil {
		return fmt.Errorf("decode payload: %w", err)
	}

	switch payload.Event {
	case "resolved":
		return m.sender.SendTaskResolved(ctx, payload.To, payload.Task)
	default:
		return m.sender.SendTaskCreated(ctx, payload.To, payload.Task)
	}
}

func (m *Module) handleDeliveryFailure(ctx context.Context, record outbox.Record, cause error) {
	m.log.DispatchFailure("email", record.ID.String(), cause)

	if record.Attempts >= m.opts.MaxAttempts {
		if err := m.outbox.MarkFailed(ctx, record.ID, cause.Error()); err != nil {
			m.log.Error("failed to mark outbox row failed", "error", err, "outboxId", record.ID)
		}
		return
	}

	backoff := time.Duration(record.Attempts*record.Attempts) * time.Minute
	if err := m.outbox.Retry(ctx, record.ID, cause.Error(), time.Now().UTC().Add(backoff)); err != nil {
		m.log.Error("failed to requeue outbox row", "error", err, "outboxId", record.ID)
	}
}

func (m *Module) taskURL(taskID uuid.UUID) string {
	return m.opts.AppBaseURL + "/tasks/" + taskID.String()
}

// audienceRoles returns the owning role first, then distinct extra roles.
func audienceRoles(assigned string, alsoNotify []string) []string {
	roles := []string{assigned}
	seen := map[string]bool{assigned: true}
	for _, role := range alsoNotify {
		if role == "" || seen[role] {
			continue
		}
		seen[role] = true
		roles = append(roles, role)
	}
	return roles
}
