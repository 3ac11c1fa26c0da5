package tracker

import (
	"context"
	"fmt"
	"time"

	"github.com/airenas/go-app/pkg/goapp"
	"github.com/airenas/recscribe/internal/pkg/asr"
	"github.com/airenas/recscribe/internal/pkg/messages"
	"github.com/airenas/recscribe/internal/pkg/parser"
	"github.com/airenas/recscribe/internal/pkg/persistence"
	"github.com/airenas/recscribe/internal/pkg/status"
	"github.com/airenas/recscribe/internal/pkg/utils"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// DB is the persistence collaborator.
// Load* methods return nil, nil if the row is not found
type DB interface {
	LoadRecording(ctx context.Context, id string) (*persistence.Recording, error)
	UpdateRecordingStatus(ctx context.Context, id string, st status.Recording) error
	InsertJob(ctx context.Context, job *persistence.Job) error
	// UpdateJob saves the job if version matches, increases job.Version
	UpdateJob(ctx context.Context, job *persistence.Job) error
	LoadJob(ctx context.Context, id string) (*persistence.Job, error)
	LoadLatestJob(ctx context.Context, recordingID string) (*persistence.Job, error)
	InsertTranscription(ctx context.Context, tr *persistence.Transcription) error
	LoadTranscriptionByJob(ctx context.Context, jobID string) (*persistence.Transcription, error)
}

// AudioLocator returns an URL the provider can download the audio from
type AudioLocator interface {
	AudioURL(ctx context.Context, rec *persistence.Recording) (string, error)
}

// Notifier is informed about every job status change
type Notifier interface {
	Notify(ctx context.Context, ev *messages.JobEvent) error
}

// Data keeps tracker dependencies
type Data struct {
	DB       DB
	Provider asr.Provider
	Audio    AudioLocator
	Notifier Notifier
	// Timeout is a ceiling for a non terminal job, 0 - no limit
	Timeout time.Duration
}

// Tracker owns the job state machine
type Tracker struct {
	db       DB
	provider asr.Provider
	audio    AudioLocator
	notifier Notifier
	timeout  time.Duration

	locks *keyLocker
	now   func() time.Time
}

// New creates tracker
func New(data *Data) (*Tracker, error) {
	if err := validate(data); err != nil {
		return nil, err
	}
	res := &Tracker{db: data.DB, provider: data.Provider, audio: data.Audio, notifier: data.Notifier,
		timeout: data.Timeout, locks: newKeyLocker(), now: time.Now}
	goapp.Log.Info().Dur("timeout", res.timeout).Msg("tracker")
	return res, nil
}

// SubmitJob hands the recording to the provider and saves a PENDING job.
// A recording with a non terminal job is rejected with ErrJobInProgress.
// Nothing is saved if the provider rejects the submission
func (t *Tracker) SubmitJob(ctx context.Context, recordingID string) (*persistence.Job, error) {
	unlock := t.locks.acquire(recordingID)
	defer unlock()

	rec, err := t.db.LoadRecording(ctx, recordingID)
	if err != nil {
		return nil, fmt.Errorf("can't load recording: %w", err)
	}
	if rec == nil {
		return nil, ErrRecordingNotFound
	}
	if rec.AudioURL == "" && rec.ObjectKey == "" {
		return nil, ErrNoAudio
	}
	latest, err := t.db.LoadLatestJob(ctx, recordingID)
	if err != nil {
		return nil, fmt.Errorf("can't load latest job: %w", err)
	}
	if latest != nil && !latest.Status.IsFinal() {
		goapp.Log.Info().Str("recordingID", recordingID).Str("jobID", latest.ID).Msg("job in progress")
		return nil, ErrJobInProgress
	}
	audioURL, err := t.audio.AudioURL(ctx, rec)
	if err != nil {
		return nil, fmt.Errorf("can't get audio URL: %w", err)
	}
	sr, err := t.provider.Submit(ctx, audioURL)
	if err != nil {
		return nil, fmt.Errorf("can't submit: %w", err)
	}
	now := t.now()
	job := &persistence.Job{ID: uuid.New().String(), RecordingID: recordingID, ProviderTaskID: sr.TaskID,
		Status: status.Pending, RequestID: sr.RequestID, Created: now, Updated: now}
	// recording first, a saved job must always reach the caller for tracking
	if err := t.db.UpdateRecordingStatus(ctx, recordingID, status.Transcribing); err != nil {
		return nil, fmt.Errorf("can't update recording: %w", err)
	}
	if err := t.db.InsertJob(ctx, job); err != nil {
		return nil, fmt.Errorf("can't save job: %w", err)
	}
	goapp.Log.Info().Str("recordingID", recordingID).Str("jobID", job.ID).Str("taskID", job.ProviderTaskID).Msg("submitted")
	t.notify(ctx, job, 0)
	return job, nil
}

// RefreshJob polls the provider and saves the progress.
// On terminal status the result is fetched, parsed, saved and the recording status is updated.
// On error the job keeps the last known status, the call can be repeated
func (t *Tracker) RefreshJob(ctx context.Context, jobID string) (*persistence.Job, error) {
	job, err := t.db.LoadJob(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("can't load job: %w", err)
	}
	if job == nil {
		return nil, ErrJobNotFound
	}
	if job.Status.IsFinal() {
		return job, t.finalize(ctx, job)
	}
	if t.expired(job) {
		goapp.Log.Warn().Str("jobID", job.ID).Time("created", job.Created).Msg("job timed out")
		return t.failLocally(ctx, job, fmt.Sprintf("%s after %s", ErrTimedOut.Error(), t.timeout.String()))
	}
	pr, err := t.provider.Poll(ctx, job.ProviderTaskID)
	if err != nil {
		if asr.IsUnknownTask(err) {
			goapp.Log.Warn().Err(err).Str("jobID", job.ID).Msg("provider lost the task")
			return t.failLocally(ctx, job, err.Error())
		}
		return job, fmt.Errorf("can't poll: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return job, err
	}
	prev := job.Status
	if merge(job, pr) {
		job.Updated = t.now()
		if err := t.db.UpdateJob(ctx, job); err != nil {
			return job, fmt.Errorf("can't save job: %w", err)
		}
	}
	if prev != job.Status {
		goapp.Log.Info().Str("jobID", job.ID).Str("from", prev.String()).Str("status", job.Status.String()).Msg("status changed")
		t.notify(ctx, job, prev)
	}
	if job.Status.IsFinal() {
		return job, t.finalize(ctx, job)
	}
	return job, nil
}

// merge copies newly known values, returns true if anything changed
func merge(job *persistence.Job, pr *asr.PollResult) bool {
	old := *job
	if job.Status.Precedes(pr.Status) {
		job.Status = pr.Status
	}
	job.SubmitTime = utils.KeepTime(job.SubmitTime, pr.SubmitTime)
	job.ScheduledTime = utils.KeepTime(job.ScheduledTime, pr.ScheduledTime)
	job.EndTime = utils.KeepTime(job.EndTime, pr.EndTime)
	switch job.Status {
	case status.Succeeded:
		if pr.UsageSeconds != nil {
			job.UsageSeconds = utils.KeepInt32(job.UsageSeconds, utils.ToSQLInt32(*pr.UsageSeconds))
		}
		job.ResultURL = utils.KeepStr(job.ResultURL, utils.ToSQLStr(pr.ResultURL))
	case status.Failed:
		job.ErrorMessage = utils.KeepStr(job.ErrorMessage, utils.ToSQLStr(pr.ErrorMessage))
	}
	return old.Status != job.Status || old.SubmitTime != job.SubmitTime ||
		old.ScheduledTime != job.ScheduledTime || old.EndTime != job.EndTime ||
		old.UsageSeconds != job.UsageSeconds || old.ResultURL != job.ResultURL ||
		old.ErrorMessage != job.ErrorMessage
}

func (t *Tracker) expired(job *persistence.Job) bool {
	return t.timeout > 0 && t.now().Sub(job.Created) > t.timeout
}

func (t *Tracker) failLocally(ctx context.Context, job *persistence.Job, msg string) (*persistence.Job, error) {
	if err := ctx.Err(); err != nil {
		return job, err
	}
	prev := job.Status
	now := t.now()
	job.Status = status.Failed
	job.ErrorMessage = utils.ToSQLStr(msg)
	job.EndTime = utils.KeepTime(job.EndTime, &now)
	job.Updated = now
	if err := t.db.UpdateJob(ctx, job); err != nil {
		return job, fmt.Errorf("can't save job: %w", err)
	}
	t.notify(ctx, job, prev)
	return job, t.finalize(ctx, job)
}

// finalize is safe to repeat, a missing transcription of a succeeded job is fetched again
func (t *Tracker) finalize(ctx context.Context, job *persistence.Job) error {
	var recStatus status.Recording
	switch job.Status {
	case status.Succeeded:
		if err := t.saveTranscription(ctx, job); err != nil {
			if asr.IsUnknownTask(err) || errors.Is(err, ErrNoResult) {
				goapp.Log.Warn().Err(err).Str("jobID", job.ID).Msg("result unavailable")
				_, err = t.failLocally(ctx, job, err.Error())
			}
			return err
		}
		recStatus = status.Completed
	case status.Failed:
		recStatus = status.RecFailed
	default:
		return fmt.Errorf("job %s is not final", job.ID)
	}
	latest, err := t.db.LoadLatestJob(ctx, job.RecordingID)
	if err != nil {
		return fmt.Errorf("can't load latest job: %w", err)
	}
	if latest != nil && latest.ID != job.ID {
		goapp.Log.Info().Str("jobID", job.ID).Str("latest", latest.ID).Msg("superseded, skip recording update")
		return nil
	}
	if err := t.db.UpdateRecordingStatus(ctx, job.RecordingID, recStatus); err != nil {
		return fmt.Errorf("can't update recording: %w", err)
	}
	return nil
}

func (t *Tracker) saveTranscription(ctx context.Context, job *persistence.Job) error {
	tr, err := t.db.LoadTranscriptionByJob(ctx, job.ID)
	if err != nil {
		return fmt.Errorf("can't load transcription: %w", err)
	}
	if tr != nil {
		return nil
	}
	if !job.ResultURL.Valid {
		return fmt.Errorf("%w for job %s", ErrNoResult, job.ID)
	}
	raw, err := t.provider.FetchResult(ctx, job.ResultURL.String)
	if err != nil {
		return fmt.Errorf("can't fetch result: %w", err)
	}
	res := parser.Parse(raw)
	if err := ctx.Err(); err != nil {
		return err
	}
	tr = &persistence.Transcription{ID: uuid.New().String(), RecordingID: job.RecordingID, JobID: job.ID,
		FullText: res.FullText, Sentences: res.Sentences, Language: utils.ToSQLStr(res.Language),
		AudioFormat: res.AudioFormat, AudioSampleRate: res.AudioSampleRate, Created: t.now()}
	if err := t.db.InsertTranscription(ctx, tr); err != nil {
		return fmt.Errorf("can't save transcription: %w", err)
	}
	goapp.Log.Info().Str("jobID", job.ID).Int("sentences", len(tr.Sentences)).Str("lang", res.Language).Msg("transcription saved")
	return nil
}

func (t *Tracker) notify(ctx context.Context, job *persistence.Job, prev status.Job) {
	if t.notifier == nil {
		return
	}
	ev := &messages.JobEvent{JobID: job.ID, RecordingID: job.RecordingID, Status: job.Status.String(), PreviousStatus: prev.String()}
	if err := t.notifier.Notify(ctx, ev); err != nil {
		goapp.Log.Error().Err(err).Str("jobID", job.ID).Msg("can't notify")
	}
}

func validate(data *Data) error {
	if data == nil {
		return fmt.Errorf("no data")
	}
	if data.DB == nil {
		return fmt.Errorf("no DB")
	}
	if data.Provider == nil {
		return fmt.Errorf("no provider")
	}
	if data.Audio == nil {
		return fmt.Errorf("no audio locator")
	}
	if data.Timeout < 0 {
		return fmt.Errorf("wrong timeout %s", data.Timeout.String())
	}
	return nil
}
