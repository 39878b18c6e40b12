package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"testing"

	"trialops_backend/internal/email"
	"trialops_backend/internal/events"
	"trialops_backend/internal/notification/inapp"
	"trialops_backend/internal/notification/outbox"
	"trialops_backend/platform/logger"

	"github.com/google/uuid"
)

type recordingInbox struct {
	sent []inapp.SendParams
}

func (r *recordingInbox) Send(_ context.Context, p inapp.SendParams) error {
	r.sent = append(r.sent, p)
	return nil
}

func TestTaskCreatedNotificationsAreActionableForAllRecipients(t *testing.T) {
	inbox := &recordingInbox{}
	m := &Module{inappSvc: inbox, log: logger.New("development")}

	err := m.onTaskCreated(context.Background(), events.TaskCreated{
		BaseEvent:    events.NewBaseEvent(),
		TaskID:       uuid.New(),
		Title:        "Review out-of-range lab result",
		Priority:     "high",
		AssignedRole: "Data Manager",
		AlsoNotify:   []string{"Medical Monitor"},
	})
	if err != nil {
		t.Fatalf("onTaskCreated: %v", err)
	}

	if len(inbox.sent) != 2 {
		t.Fatalf("expected 2 notifications, got %d", len(inbox.sent))
	}
	for _, p := range inbox.sent {
		if p.Type != "task_created" {
			t.Fatalf("type = %q for role %s", p.Type, p.TargetRole)
		}
		if !p.ActionRequired {
			t.Fatalf("creation notification for role %s must be actionable", p.TargetRole)
		}
	}
	if inbox.sent[0].TargetRole != "Data Manager" || inbox.sent[1].TargetRole != "Medical Monitor" {
		t.Fatalf("unexpected recipients: %s, %s", inbox.sent[0].TargetRole, inbox.sent[1].TargetRole)
	}
}

func TestTaskAutoResolvedNotificationsAreInformational(t *testing.T) {
	inbox := &recordingInbox{}
	m := &Module{inappSvc: inbox, log: logger.New("development")}

	err := m.onTaskAutoResolved(context.Background(), events.TaskAutoResolved{
		BaseEvent:    events.NewBaseEvent(),
		TaskID:       uuid.New(),
		Title:        "Review out-of-range lab result",
		Priority:     "high",
		AssignedRole: "Data Manager",
		AlsoNotify:   []string{"Medical Monitor"},
		Completed:    true,
	})
	if err != nil {
		t.Fatalf("onTaskAutoResolved: %v", err)
	}

	if len(inbox.sent) != 2 {
		t.Fatalf("expected 2 notifications, got %d", len(inbox.sent))
	}
	for _, p := range inbox.sent {
		if p.Type != "task_resolved" {
			t.Fatalf("type = %q for role %s", p.Type, p.TargetRole)
		}
		if p.ActionRequired {
			t.Fatalf("resolution notification for role %s must not be actionable", p.TargetRole)
		}
	}
}

func TestAudienceRoles(t *testing.T) {
	tests := []struct {
		name       string
		assigned   string
		alsoNotify []string
		want       []string
	}{
		{"owner only", "Data Manager", nil, []string{"Data Manager"}},
		{"extra role appended", "Data Manager", []string{"Medical Monitor"}, []string{"Data Manager", "Medical Monitor"}},
		{"owner deduplicated", "Medical Monitor", []string{"Medical Monitor", "Principal Investigator"}, []string{"Medical Monitor", "Principal Investigator"}},
		{"empty extras skipped", "Data Manager", []string{"", "Medical Monitor", "Medical Monitor"}, []string{"Data Manager", "Medical Monitor"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := audienceRoles(tt.assigned, tt.alsoNotify)
			if len(got) != len(tt.want) {
				t.Fatalf("roles = %v, want %v", got, tt.want)
			}
			for i := range tt.want {
				if got[i] != tt.want[i] {
					t.Fatalf("roles = %v, want %v", got, tt.want)
				}
			}
		})
	}
}

type recordingSender struct {
	created  []string
	resolved []string
	fail     bool
}

func (s *recordingSender) SendTaskCreated(_ context.Context, to string, _ email.TaskEmail) error {
	if s.fail {
		return fmt.Errorf("smtp unavailable")
	}
	s.created = append(s.created, to)
	return nil
}

func (s *recordingSender) SendTaskResolved(_ context.Context, to string, _ email.TaskEmail) error {
	if s.fail {
		return fmt.Errorf("smtp unavailable")
	}
	s.resolved = append(s.resolved, to)
	return nil
}

func outboxRecord(t *testing.T, event, to string) outbox.Record {
	t.Helper()
	payload, err := json.Marshal(TaskEmailPayload{
		To:    to,
		Event: event,
		Task:  email.TaskEmail{TaskID: uuid.NewString(), Title: "Out-of-range lab result"},
	})
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	return outbox.Record{
		ID:       uuid.New(),
		Kind:     outbox.KindTaskEmail,
		Payload:  payload,
		Attempts: 1,
	}
}

func TestDeliverRoutesByEvent(t *testing.T) {
	sender := &recordingSender{}
	m := &Module{sender: sender, log: logger.New("development")}

	if err := m.deliver(context.Background(), outboxRecord(t, "created", "dm@example.com")); err != nil {
		t.Fatalf("deliver created: %v", err)
	}
	if err := m.deliver(context.Background(), outboxRecord(t, "resolved", "mm@example.com")); err != nil {
		t.Fatalf("deliver resolved: %v", err)
	}

	if len(sender.created) != 1 || sender.created[0] != "dm@example.com" {
		t.Fatalf("created sends = %v", sender.created)
	}
	if len(sender.resolved) != 1 || sender.resolved[0] != "mm@example.com" {
		t.Fatalf("resolved sends = %v", sender.resolved)
	}
}

func TestDeliverRejectsUnknownKind(t *testing.T) {
	m := &Module{sender: &recordingSender{}, log: logger.New("development")}
	record := outboxRecord(t, "created", "dm@example.com")
	record.Kind = "bulk_export"

	err := m.deliver(context.Background(), record)
	if err == nil || !strings.Contains(err.Error(), "unknown outbox kind") {
		t.Fatalf("expected unknown kind error, got %v", err)
	}
}

func TestDeliverRejectsMalformedPayload(t *testing.T) {
	m := &Module{sender: &recordingSender{}, log: logger.New("development")}
	record := outbox.Record{
		ID:      uuid.New(),
		Kind:    outbox.KindTaskEmail,
		Payload: json.RawMessage(`{"to":`),
	}

	if err := m.deliver(context.Background(), record); err == nil {
		t.Fatalf("expected decode error")
	}
}

func TestTaskURL(t *testing.T) {
	m := &Module{opts: Options{AppBaseURL: "https://trialops.example.com"}}
	id := uuid.New()
	want := "https://trialops.example.com/tasks/" + id.String()
	if got := m.taskURL(id); got != want {
		t.Fatalf("taskURL = %q, want %q", got, want)
	}
}
