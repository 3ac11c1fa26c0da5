package events

import (
	"context"
	"fmt"

	amessages "github.com/airenas/async-api/pkg/messages"
	"github.com/airenas/recscribe/internal/pkg/messages"
)

// MsgSender provides send msg functionality
type MsgSender interface {
	SendMessage(context.Context, amessages.Message, string) error
}

// QueueNotifier passes job events to the status change queue
type QueueNotifier struct {
	sender MsgSender
}

// NewQueueNotifier creates notifier
func NewQueueNotifier(sender MsgSender) (*QueueNotifier, error) {
	if sender == nil {
		return nil, fmt.Errorf("no sender")
	}
	return &QueueNotifier{sender: sender}, nil
}

// Notify sends the event
func (n *QueueNotifier) Notify(ctx context.Context, ev *messages.JobEvent) error {
	return n.sender.SendMessage(ctx, messages.NewStatusChangeMessage(ev), messages.StatusChange)
}
