package mocks

import (
	"context"

	"github.com/airenas/async-api/pkg/messages"
	"github.com/airenas/recscribe/internal/pkg/asr"
	rmessages "github.com/airenas/recscribe/internal/pkg/messages"
	"github.com/airenas/recscribe/internal/pkg/persistence"
	"github.com/airenas/recscribe/internal/pkg/status"
	"github.com/stretchr/testify/mock"
)

// DB is postgress DB mock
type DB struct{ mock.Mock }

func (m *DB) LoadRecording(ctx context.Context, id string) (*persistence.Recording, error) {
	args := m.Called(ctx, id)
	return to[*persistence.Recording](args.Get(0)), args.Error(1)
}

func (m *DB) UpdateRecordingStatus(ctx context.Context, id string, st status.Recording) error {
	args := m.Called(ctx, id, st)
	return args.Error(0)
}

func (m *DB) InsertJob(ctx context.Context, job *persistence.Job) error {
	args := m.Called(ctx, job)
	return args.Error(0)
}

func (m *DB) UpdateJob(ctx context.Context, job *persistence.Job) error {
	args := m.Called(ctx, job)
	return args.Error(0)
}

func (m *DB) LoadJob(ctx context.Context, id string) (*persistence.Job, error) {
	args := m.Called(ctx, id)
	return to[*persistence.Job](args.Get(0)), args.Error(1)
}

func (m *DB) LoadLatestJob(ctx context.Context, recordingID string) (*persistence.Job, error) {
	args := m.Called(ctx, recordingID)
	return to[*persistence.Job](args.Get(0)), args.Error(1)
}

func (m *DB) LoadUnfinishedJobs(ctx context.Context) ([]*persistence.Job, error) {
	args := m.Called(ctx)
	return to[[]*persistence.Job](args.Get(0)), args.Error(1)
}

func (m *DB) InsertTranscription(ctx context.Context, tr *persistence.Transcription) error {
	args := m.Called(ctx, tr)
	return args.Error(0)
}

func (m *DB) LoadTranscriptionByJob(ctx context.Context, jobID string) (*persistence.Transcription, error) {
	args := m.Called(ctx, jobID)
	return to[*persistence.Transcription](args.Get(0)), args.Error(1)
}

// Sender is postgres queue mock
type Sender struct{ mock.Mock }

func (m *Sender) SendMessage(ctx context.Context, msg messages.Message, queue string) error {
	args := m.Called(ctx, msg, queue)
	return args.Error(0)
}

// Provider is asr provider mock
type Provider struct{ mock.Mock }

func (m *Provider) Submit(ctx context.Context, fileURL string) (*asr.SubmitResult, error) {
	args := m.Called(ctx, fileURL)
	return to[*asr.SubmitResult](args.Get(0)), args.Error(1)
}

func (m *Provider) Poll(ctx context.Context, taskID string) (*asr.PollResult, error) {
	args := m.Called(ctx, taskID)
	return to[*asr.PollResult](args.Get(0)), args.Error(1)
}

func (m *Provider) FetchResult(ctx context.Context, resultURL string) (*asr.RawPayload, error) {
	args := m.Called(ctx, resultURL)
	return to[*asr.RawPayload](args.Get(0)), args.Error(1)
}

// AudioLocator mock
type AudioLocator struct{ mock.Mock }

func (m *AudioLocator) AudioURL(ctx context.Context, rec *persistence.Recording) (string, error) {
	args := m.Called(ctx, rec)
	return args.String(0), args.Error(1)
}

// Notifier mock
type Notifier struct{ mock.Mock }

func (m *Notifier) Notify(ctx context.Context, ev *rmessages.JobEvent) error {
	args := m.Called(ctx, ev)
	return args.Error(0)
}

// Tracker is job tracker mock
type Tracker struct{ mock.Mock }

func (m *Tracker) SubmitJob(ctx context.Context, recordingID string) (*persistence.Job, error) {
	args := m.Called(ctx, recordingID)
	return to[*persistence.Job](args.Get(0)), args.Error(1)
}

func (m *Tracker) RefreshJob(ctx context.Context, jobID string) (*persistence.Job, error) {
	args := m.Called(ctx, jobID)
	return to[*persistence.Job](args.Get(0)), args.Error(1)
}

func to[T interface{}](val interface{}) T {
	if val == nil {
		var res T
		return res
	}
	return val.(T)
}
