// Package scheduler runs background work over asynq: batch analysis jobs,
// the periodic sweep, and outbox email dispatch.
package scheduler

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const TaskAnalyzeBatch = "detection.analyze_batch"

const TaskSweepOpenBatches = "detection.sweep"

const TaskOutboxDispatch = "notification.outbox.dispatch"

type AnalyzeBatchPayload struct {
	TrialID   string   `json:"trialId" validate:"required,max=64"`
	Domain    string   `json:"domain" validate:"required,max=16"`
	Source    string   `json:"source" validate:"required,max=64"`
	RecordIDs []string `json:"recordIds,omitempty" validate:"max=500,dive,required"`
}

type OutboxDispatchPayload struct {
	Limit int `json:"limit"`
}

func NewAnalyzeBatchTask(payload AnalyzeBatchPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskAnalyzeBatch, data), nil
}

func ParseAnalyzeBatchPayload(task *asynq.Task) (AnalyzeBatchPayload, error) {
	var payload AnalyzeBatchPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return AnalyzeBatchPayload{}, err
	}
	return payload, nil
}

func NewSweepOpenBatchesTask() *asynq.Task {
	return asynq.NewTask(TaskSweepOpenBatches, nil)
}

func NewOutboxDispatchTask(payload OutboxDispatchPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskOutboxDispatch, data), nil
}

func ParseOutboxDispatchPayload(task *asynq.Task) (OutboxDispatchPayload, error) {
	var payload OutboxDispatchPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return OutboxDispatchPayload{}, err
	}
	return payload, nil
}
