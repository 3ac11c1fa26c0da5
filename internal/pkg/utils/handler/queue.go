package handler

import (
	"context"
	"encoding/json"
	"math/rand"
	"time"

	"github.com/airenas/go-app/pkg/goapp"
	"github.com/vgarvardt/gue/v5"
)

// Opts configures a queue work func
type Opts struct {
	backoff gue.Backoff
	timeout time.Duration
	retries int32
}

// Create wraps a typed message handler into gue work func.
// A message that can't be decoded is dropped, a failed one is rescheduled until retries are exhausted
func Create[TM any, SD any](data *SD, hf func(context.Context, *TM, *SD) error, opts *Opts) gue.WorkFunc {
	if opts == nil {
		goapp.Log.Panic().Msg("no opts provided")
	}
	return func(ctx context.Context, j *gue.Job) error {
		goapp.Log.Debug().Str("queue", j.Queue).Str("type", j.Type).Int32("errCount", j.ErrorCount).Msg("got msg")

		var m TM
		if err := json.Unmarshal(j.Args, &m); err != nil {
			goapp.Log.Error().Err(err).Str("queue", j.Queue).Msg("can't unmarshal message, drop")
			return nil
		}
		wrkCtx, cf := context.WithTimeout(ctx, opts.timeout)
		defer cf()
		err := hf(wrkCtx, &m, data)
		if err == nil {
			return nil
		}
		if j.ErrorCount >= opts.retries {
			goapp.Log.Error().Err(err).Str("queue", j.Queue).Int32("errCount", j.ErrorCount).Msg("msg failed, will not retry")
			return nil
		}
		delay := opts.backoff(int(j.ErrorCount + 1))
		goapp.Log.Warn().Err(err).Str("queue", j.Queue).Dur("after", delay).Msg("retry after")
		return gue.ErrRescheduleJobIn(delay, err.Error())
	}
}

// DefaultOpts returns opts with 3 retries
func DefaultOpts() *Opts {
	return &Opts{timeout: time.Minute, retries: 3, backoff: DefaultBackoff()}
}

// WithTimeout sets max time for one message
func (o *Opts) WithTimeout(timeout time.Duration) *Opts {
	o.timeout = timeout
	return o
}

// WithBackoff sets retry delay func
func (o *Opts) WithBackoff(b gue.Backoff) *Opts {
	o.backoff = b
	return o
}

// WithRetries sets how many times a failed message is rescheduled
func (o *Opts) WithRetries(retries int32) *Opts {
	o.retries = retries
	return o
}

// DefaultBackoff grows by a second on each retry
func DefaultBackoff() gue.Backoff {
	return func(retries int) time.Duration {
		return fullJitter(time.Duration(retries) * time.Second)
	}
}

// NoBackoff retries immediately
func NoBackoff() gue.Backoff {
	return func(retries int) time.Duration {
		return 0
	}
}

// fullJitter return randomized duration in interval [0, t)
// as suggested by https://aws.amazon.com/blogs/architecture/exponential-backoff-and-jitter/
func fullJitter(t time.Duration) time.Duration {
	return time.Duration(float64(t) * rand.Float64())
}
