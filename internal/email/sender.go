// Package email delivers task notification emails over SMTP.
package email

import "context"

// TaskEmail carries everything the task templates render.
type TaskEmail struct {
	TaskID         string
	Title          string
	Description    string
	Priority       string
	AssignedRole   string
	TrialID        string
	Domain         string
	RecordID       string
	Source         string
	DueDate        string
	TaskURL        string
	ResolutionNote string
	AutoCompleted  bool
}

// Sender delivers task lifecycle emails. Delivery is best effort: the
// outbox retries transient failures and drops after bounded attempts.
type Sender interface {
	SendTaskCreated(ctx context.Context, toEmail string, data TaskEmail) error
	SendTaskResolved(ctx context.Context, toEmail string, data TaskEmail) error
}

// NoopSender is used when SMTP is not configured; sends succeed silently.
type NoopSender struct{}

func (NoopSender) SendTaskCreated(context.Context, string, TaskEmail) error  { return nil }
func (NoopSender) SendTaskResolved(context.Context, string, TaskEmail) error { return nil }
