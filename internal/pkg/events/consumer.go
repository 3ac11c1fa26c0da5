package events

import (
	"context"
	"fmt"
	"time"

	"github.com/airenas/go-app/pkg/goapp"
	"github.com/airenas/recscribe/internal/pkg/messages"
	"github.com/airenas/recscribe/internal/pkg/utils/handler"
	"github.com/vgarvardt/gue/v5"
)

// Publisher delivers the event to subscribers
type Publisher interface {
	Publish(ev *messages.JobEvent) int
}

// HandlerData keeps data required for the status change listener
type HandlerData struct {
	GueClient   *gue.Client
	WorkerCount int
	Publisher   Publisher
}

// StartStatusHandler starts the queue listener for status events
// returns channel for tracking if all workers are finished
func StartStatusHandler(ctx context.Context, data *HandlerData) (chan struct{}, error) {
	if err := validateHandler(data); err != nil {
		return nil, err
	}
	goapp.Log.Info().Msg("Starting listen for status messages")

	wm := gue.WorkMap{
		messages.StatusChange: handler.Create(data, handleStatus,
			handler.DefaultOpts().WithRetries(0).WithTimeout(10*time.Second)),
	}

	pool, err := gue.NewWorkerPool(
		data.GueClient, wm, data.WorkerCount,
		gue.WithPoolQueue(messages.StatusChange),
		gue.WithPoolLogger(handler.NewGueLogger()),
		gue.WithPoolPollInterval(200*time.Millisecond),
		gue.WithPoolPollStrategy(gue.RunAtPollStrategy),
		gue.WithPoolID("status-events"),
	)
	if err != nil {
		return nil, fmt.Errorf("could not build gue workers pool: %w", err)
	}
	res := make(chan struct{}, 1)
	go func() {
		goapp.Log.Info().Msg("Starting workers")
		if err := pool.Run(ctx); err != nil {
			goapp.Log.Error().Err(err).Msg("pool error")
		}
		goapp.Log.Info().Msg("Pool workers finished")
		res <- struct{}{}
	}()
	return res, nil
}

func handleStatus(ctx context.Context, m *messages.StatusChangeMessage, data *HandlerData) error {
	if m.JobID == "" {
		return fmt.Errorf("no job ID")
	}
	n := data.Publisher.Publish(&m.JobEvent)
	goapp.Log.Debug().Str("jobID", m.JobID).Str("status", m.Status).Int("subscribers", n).Msg("published")
	return nil
}

func validateHandler(data *HandlerData) error {
	if data.GueClient == nil {
		return fmt.Errorf("no gue client")
	}
	if data.WorkerCount < 1 {
		return fmt.Errorf("no worker count provided")
	}
	if data.Publisher == nil {
		return fmt.Errorf("no publisher")
	}
	return nil
}
