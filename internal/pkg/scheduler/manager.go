package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/airenas/go-app/pkg/goapp"
	"github.com/airenas/recscribe/internal/pkg/persistence"
)

// JobLoader returns jobs that still need polling after restart
type JobLoader interface {
	LoadUnfinishedJobs(ctx context.Context) ([]*persistence.Job, error)
}

// Data keeps manager dependencies
type Data struct {
	Refresher Refresher
	Interval  time.Duration
	// OnFinish is optional, called once per finished job
	OnFinish func(*persistence.Job)
}

// Manager keeps one poller per in-flight job
type Manager struct {
	refresher Refresher
	interval  time.Duration
	onFinish  func(*persistence.Job)

	ctx     context.Context
	cf      context.CancelFunc
	lock    sync.Mutex
	pollers map[string]*Poller
	visible bool
	stopped bool
}

// NewManager creates manager, pollers live until ctx is canceled or Stop is called
func NewManager(ctx context.Context, data *Data) (*Manager, error) {
	if data == nil || data.Refresher == nil {
		return nil, fmt.Errorf("no refresher")
	}
	if data.Interval <= 0 {
		return nil, fmt.Errorf("wrong interval %s", data.Interval.String())
	}
	res := &Manager{refresher: data.Refresher, interval: data.Interval, onFinish: data.OnFinish,
		pollers: map[string]*Poller{}, visible: true}
	res.ctx, res.cf = context.WithCancel(ctx)
	goapp.Log.Info().Dur("interval", res.interval).Msg("poll manager")
	return res, nil
}

// Track starts polling the job, a tracked job is not added twice
func (m *Manager) Track(jobID string) {
	m.lock.Lock()
	defer m.lock.Unlock()
	if m.stopped {
		return
	}
	if _, ok := m.pollers[jobID]; ok {
		return
	}
	var p *Poller
	p = NewPoller(jobID, m.refresher, m.interval, func(job *persistence.Job) {
		m.remove(jobID, p)
		if m.onFinish != nil {
			m.onFinish(job)
		}
	})
	m.pollers[jobID] = p
	p.Start(m.ctx, m.visible)
	goapp.Log.Info().Str("jobID", jobID).Int("active", len(m.pollers)).Msg("tracking")
}

// Cancel stops polling the job
func (m *Manager) Cancel(jobID string) {
	m.lock.Lock()
	p, ok := m.pollers[jobID]
	delete(m.pollers, jobID)
	m.lock.Unlock()
	if ok {
		p.Cancel()
	}
}

// SetVisible suspends or resumes all pollers
func (m *Manager) SetVisible(visible bool) {
	m.lock.Lock()
	defer m.lock.Unlock()
	if m.visible == visible {
		return
	}
	m.visible = visible
	goapp.Log.Info().Bool("visible", visible).Int("active", len(m.pollers)).Msg("visibility changed")
	for _, p := range m.pollers {
		p.SetVisible(visible)
	}
}

// Resume reattaches pollers to the jobs left from the previous run
func (m *Manager) Resume(ctx context.Context, loader JobLoader) error {
	jobs, err := loader.LoadUnfinishedJobs(ctx)
	if err != nil {
		return fmt.Errorf("can't load unfinished jobs: %w", err)
	}
	goapp.Log.Info().Int("count", len(jobs)).Msg("resuming jobs")
	for _, j := range jobs {
		m.Track(j.ID)
	}
	return nil
}

// Active returns count of tracked jobs
func (m *Manager) Active() int {
	m.lock.Lock()
	defer m.lock.Unlock()
	return len(m.pollers)
}

// Stop cancels all pollers and waits for them
func (m *Manager) Stop() {
	m.lock.Lock()
	m.stopped = true
	ps := make([]*Poller, 0, len(m.pollers))
	for _, p := range m.pollers {
		ps = append(ps, p)
	}
	m.pollers = map[string]*Poller{}
	m.lock.Unlock()

	m.cf()
	for _, p := range ps {
		p.Cancel()
	}
	goapp.Log.Info().Int("stopped", len(ps)).Msg("poll manager stopped")
}

func (m *Manager) remove(jobID string, p *Poller) {
	m.lock.Lock()
	defer m.lock.Unlock()
	if m.pollers[jobID] == p {
		delete(m.pollers, jobID)
	}
}
