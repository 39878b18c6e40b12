// Package transport defines the request and response shapes of the
// detection HTTP API.
package transport

import (
	"trialops_backend/internal/detection/repository"
)

// AnalyzeRequest triggers an evaluation run for one batch. RecordIDs limits
// the run to a subset of records; empty means the whole batch.
type AnalyzeRequest struct {
	TrialID   string   `json:"trialId" binding:"required,max=64"`
	Domain    string   `json:"domain" binding:"required,max=16"`
	Source    string   `json:"source" binding:"required,max=64"`
	RecordIDs []string `json:"recordIds" binding:"omitempty,max=500,dive,required,max=128"`
}

// ListSignalsQuery filters GET /signals.
type ListSignalsQuery struct {
	TrialID  string `form:"trialId" binding:"omitempty,max=64"`
	Domain   string `form:"domain" binding:"omitempty,max=16"`
	Source   string `form:"source" binding:"omitempty,max=64"`
	Status   string `form:"status" binding:"omitempty,oneof=open in_progress resolved closed"`
	Priority string `form:"priority" binding:"omitempty,oneof=critical high medium low"`
	Limit    int    `form:"limit" binding:"omitempty,min=1,max=200"`
	Offset   int    `form:"offset" binding:"omitempty,min=0"`
}

// Filter converts the query to a repository filter.
func (q ListSignalsQuery) Filter() repository.SignalFilter {
	return repository.SignalFilter{
		TrialID:  q.TrialID,
		Domain:   q.Domain,
		Source:   q.Source,
		Status:   q.Status,
		Priority: q.Priority,
		Limit:    q.Limit,
		Offset:   q.Offset,
	}
}

// ListTasksQuery filters GET /tasks.
type ListTasksQuery struct {
	TrialID      string `form:"trialId" binding:"omitempty,max=64"`
	Domain       string `form:"domain" binding:"omitempty,max=16"`
	Status       string `form:"status" binding:"omitempty,oneof=not_started in_progress pending_review completed"`
	Priority     string `form:"priority" binding:"omitempty,oneof=critical high medium low"`
	AssignedRole string `form:"assignedRole" binding:"omitempty,max=64"`
	Limit        int    `form:"limit" binding:"omitempty,min=1,max=200"`
	Offset       int    `form:"offset" binding:"omitempty,min=0"`
}

// Filter converts the query to a repository filter.
func (q ListTasksQuery) Filter() repository.TaskFilter {
	return repository.TaskFilter{
		TrialID:      q.TrialID,
		Domain:       q.Domain,
		Status:       q.Status,
		Priority:     q.Priority,
		AssignedRole: q.AssignedRole,
		Limit:        q.Limit,
		Offset:       q.Offset,
	}
}

// UpdateSignalStatusRequest moves a signal through its lifecycle.
type UpdateSignalStatusRequest struct {
	Status string `json:"status" binding:"required,oneof=in_progress closed"`
}

// UpdateTaskStatusRequest moves a task through its lifecycle. Note is
// appended to the task's review note when present.
type UpdateTaskStatusRequest struct {
	Status string  `json:"status" binding:"required,oneof=in_progress pending_review completed"`
	Note   *string `json:"note" binding:"omitempty,max=2000"`
}

// ListResponse wraps list payloads with their count.
type ListResponse[T any] struct {
	Items []T `json:"items"`
	Count int `json:"count"`
}

// NewListResponse builds a ListResponse, normalizing nil slices to empty.
func NewListResponse[T any](items []T) ListResponse[T] {
	if items == nil {
		items = []T{}
	}
	return ListResponse[T]{Items: items, Count: len(items)}
}
