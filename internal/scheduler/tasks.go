// Package scheduler moves due nurture messages from the database outbox
// into asynq and runs the background jobs that keep leads fresh.
package scheduler

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const TaskNurtureMessageDue = "nurture.message.due"

const TaskStaleScoreSweep = "leads.score.sweep"

type NurtureMessageDuePayload struct {
	MessageID string `json:"messageId"`
	LeadID    string `json:"leadId"`
}

type StaleScoreSweepPayload struct {
	Limit int `json:"limit"`
}

func NewNurtureMessageDueTask(payload NurtureMessageDuePayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskNurtureMessageDue, data), nil
}

func ParseNurtureMessageDuePayload(task *asynq.Task) (NurtureMessageDuePayload, error) {
	var payload NurtureMessageDuePayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return NurtureMessageDuePayload{}, err
	}
	return payload, nil
}

func NewStaleScoreSweepTask(payload StaleScoreSweepPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskStaleScoreSweep, data), nil
}

func ParseStaleScoreSweepPayload(task *asynq.Task) (StaleScoreSweepPayload, error) {
	var payload StaleScoreSweepPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return StaleScoreSweepPayload{}, err
	}
	return payload, nil
}
