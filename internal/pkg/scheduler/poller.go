package scheduler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/airenas/go-app/pkg/goapp"
	"github.com/airenas/recscribe/internal/pkg/persistence"
	"github.com/airenas/recscribe/internal/pkg/tracker"
)

// Refresher moves a job one step forward
type Refresher interface {
	RefreshJob(ctx context.Context, jobID string) (*persistence.Job, error)
}

// Poller refreshes one job until it is final.
// It polls immediately on activation and then every interval.
// While suspended there is no timer and no polling
type Poller struct {
	jobID     string
	refresher Refresher
	interval  time.Duration
	onFinish  func(*persistence.Job)

	visible atomic.Bool
	// resumes counts hidden to visible switches
	resumes atomic.Int64
	wake    chan struct{}

	cancelOnce sync.Once
	cf         context.CancelFunc
	done       chan struct{}
}

// NewPoller creates a poller, call Start to run it.
// onFinish is invoked once from the poller goroutine when the job reaches a final status
func NewPoller(jobID string, refresher Refresher, interval time.Duration, onFinish func(*persistence.Job)) *Poller {
	return &Poller{jobID: jobID, refresher: refresher, interval: interval, onFinish: onFinish,
		wake: make(chan struct{}, 1), done: make(chan struct{})}
}

// Start runs the poll loop
func (p *Poller) Start(ctx context.Context, visible bool) {
	ctx, p.cf = context.WithCancel(ctx)
	p.visible.Store(visible)
	go p.loop(ctx)
}

// SetVisible switches between ACTIVE and SUSPENDED, never blocks
func (p *Poller) SetVisible(visible bool) {
	if was := p.visible.Swap(visible); visible && !was {
		p.resumes.Add(1)
	}
	select {
	case p.wake <- struct{}{}:
	default:
	}
}

// Cancel stops the poller and waits for the loop to exit, no poll is issued afterwards.
// Safe to call many times, must not be called from onFinish
func (p *Poller) Cancel() {
	p.cancelOnce.Do(func() {
		if p.cf != nil {
			p.cf()
		}
	})
	if p.cf != nil {
		<-p.done
	}
}

// Done is closed when the loop exits
func (p *Poller) Done() <-chan struct{} {
	return p.done
}

func (p *Poller) loop(ctx context.Context) {
	defer close(p.done)
	defer goapp.Log.Debug().Str("jobID", p.jobID).Msg("poller stopped")

	var timer *time.Timer
	var timerC <-chan time.Time
	stopTimer := func() {
		if timer != nil {
			timer.Stop()
		}
		timer, timerC = nil, nil
	}
	defer stopTimer()
	next := func() {
		timer = time.NewTimer(p.interval)
		timerC = timer.C
	}

	active := p.visible.Load()
	seen := p.resumes.Load()
	if active {
		if p.poll(ctx) {
			return
		}
		next()
	}
	for {
		select {
		case <-ctx.Done():
			return
		case <-p.wake:
			v, r := p.visible.Load(), p.resumes.Load()
			if v == active && r == seen {
				continue
			}
			active, seen = v, r
			if !active {
				goapp.Log.Debug().Str("jobID", p.jobID).Msg("suspended")
				stopTimer()
				continue
			}
			// also a hide and show collapsed while the previous poll was running
			goapp.Log.Debug().Str("jobID", p.jobID).Msg("resumed")
			stopTimer()
			if p.poll(ctx) {
				return
			}
			next()
		case <-timerC:
			timer, timerC = nil, nil
			if p.poll(ctx) {
				return
			}
			next()
		}
	}
}

// poll returns true if the loop must stop
func (p *Poller) poll(ctx context.Context) bool {
	if ctx.Err() != nil {
		return true
	}
	job, err := p.refresher.RefreshJob(ctx, p.jobID)
	if ctx.Err() != nil {
		return true
	}
	if err != nil {
		if errors.Is(err, tracker.ErrJobNotFound) {
			goapp.Log.Warn().Str("jobID", p.jobID).Msg("no job, stop polling")
			return true
		}
		goapp.Log.Warn().Err(err).Str("jobID", p.jobID).Msg("refresh failed, will retry")
		return false
	}
	if job != nil && job.Status.IsFinal() {
		goapp.Log.Info().Str("jobID", p.jobID).Str("status", job.Status.String()).Msg("job finished")
		if p.onFinish != nil {
			p.onFinish(job)
		}
		return true
	}
	return false
}
