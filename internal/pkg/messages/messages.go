package messages

import (
	amessages "github.com/airenas/async-api/pkg/messages"
)

const (
	st = "RECSCRIBE/"
	// StatusChange queue name
	StatusChange = st + "StatusChange"
)

// JobEvent is pushed to subscribers on every job status change
type JobEvent struct {
	JobID          string `json:"jobId"`
	RecordingID    string `json:"recordingId"`
	Status         string `json:"status"`
	PreviousStatus string `json:"previousStatus,omitempty"`
}

// StatusChangeMessage carries a job event through the queue, ID is the job ID
type StatusChangeMessage struct {
	amessages.QueueMessage
	JobEvent
}

// NewStatusChangeMessage wraps the event for the queue
func NewStatusChangeMessage(ev *JobEvent) *StatusChangeMessage {
	return &StatusChangeMessage{QueueMessage: amessages.QueueMessage{ID: ev.JobID}, JobEvent: *ev}
}
