package tracker

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	asrmock "github.com/airenas/recscribe/internal/pkg/asr/mock"
	"github.com/airenas/recscribe/internal/pkg/persistence"
	"github.com/airenas/recscribe/internal/pkg/status"
	"github.com/airenas/recscribe/internal/pkg/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memDB struct {
	lock       sync.Mutex
	recordings map[string]persistence.Recording
	jobs       map[string]persistence.Job
	order      []string
	trs        map[string]persistence.Transcription
}

func newMemDB(recs ...persistence.Recording) *memDB {
	res := &memDB{recordings: map[string]persistence.Recording{}, jobs: map[string]persistence.Job{},
		trs: map[string]persistence.Transcription{}}
	for _, r := range recs {
		res.recordings[r.ID] = r
	}
	return res
}

func (db *memDB) LoadRecording(ctx context.Context, id string) (*persistence.Recording, error) {
	db.lock.Lock()
	defer db.lock.Unlock()
	r, ok := db.recordings[id]
	if !ok {
		return nil, nil
	}
	return &r, nil
}

func (db *memDB) UpdateRecordingStatus(ctx context.Context, id string, st status.Recording) error {
	db.lock.Lock()
	defer db.lock.Unlock()
	r := db.recordings[id]
	r.Status = st
	db.recordings[id] = r
	return nil
}

func (db *memDB) InsertJob(ctx context.Context, job *persistence.Job) error {
	db.lock.Lock()
	defer db.lock.Unlock()
	db.jobs[job.ID] = *job
	db.order = append(db.order, job.ID)
	return nil
}

func (db *memDB) UpdateJob(ctx context.Context, job *persistence.Job) error {
	db.lock.Lock()
	defer db.lock.Unlock()
	old, ok := db.jobs[job.ID]
	if !ok || old.Version != job.Version {
		return fmt.Errorf("can't update job, no records found")
	}
	job.Version++
	db.jobs[job.ID] = *job
	return nil
}

func (db *memDB) LoadJob(ctx context.Context, id string) (*persistence.Job, error) {
	db.lock.Lock()
	defer db.lock.Unlock()
	j, ok := db.jobs[id]
	if !ok {
		return nil, nil
	}
	return &j, nil
}

func (db *memDB) LoadLatestJob(ctx context.Context, recordingID string) (*persistence.Job, error) {
	db.lock.Lock()
	defer db.lock.Unlock()
	for i := len(db.order) - 1; i >= 0; i-- {
		if j := db.jobs[db.order[i]]; j.RecordingID == recordingID {
			return &j, nil
		}
	}
	return nil, nil
}

func (db *memDB) InsertTranscription(ctx context.Context, tr *persistence.Transcription) error {
	db.lock.Lock()
	defer db.lock.Unlock()
	db.trs[tr.JobID] = *tr
	return nil
}

func (db *memDB) LoadTranscriptionByJob(ctx context.Context, jobID string) (*persistence.Transcription, error) {
	db.lock.Lock()
	defer db.lock.Unlock()
	tr, ok := db.trs[jobID]
	if !ok {
		return nil, nil
	}
	return &tr, nil
}

type directAudio struct{}

func (directAudio) AudioURL(ctx context.Context, rec *persistence.Recording) (string, error) {
	return rec.AudioURL, nil
}

func initFlow(t *testing.T, opts asrmock.Options) (*Tracker, *memDB) {
	t.Helper()
	db := newMemDB(persistence.Recording{ID: "r1", AudioURL: "http://audio/1.wav", Status: status.Uploaded})
	pr, err := asrmock.NewProvider(opts)
	require.Nil(t, err)
	res, err := New(&Data{DB: db, Provider: pr, Audio: directAudio{}})
	require.Nil(t, err)
	return res, db
}

func TestFlow_Succeeded(t *testing.T) {
	tr, db := initFlow(t, asrmock.Options{PollsUntilRunning: 1, PollsUntilDone: 2})
	ctx := test.Ctx(t)

	job, err := tr.SubmitJob(ctx, "r1")
	require.Nil(t, err)
	rec, _ := db.LoadRecording(ctx, "r1")
	assert.Equal(t, status.Transcribing, rec.Status)

	var got []status.Job
	for i := 0; i < 3; i++ {
		j, err := tr.RefreshJob(ctx, job.ID)
		require.Nil(t, err)
		got = append(got, j.Status)
	}

	assert.Equal(t, []status.Job{status.Pending, status.Running, status.Succeeded}, got)
	j, _ := db.LoadJob(ctx, job.ID)
	assert.True(t, j.ResultURL.Valid)
	assert.Contains(t, j.ResultURL.String, j.ProviderTaskID)
	trn, _ := db.LoadTranscriptionByJob(ctx, job.ID)
	require.NotNil(t, trn)
	assert.Equal(t, 2, len(trn.Sentences))
	assert.Equal(t, "en", trn.Language.String)
	rec, _ = db.LoadRecording(ctx, "r1")
	assert.Equal(t, status.Completed, rec.Status)
}

func TestFlow_Failed(t *testing.T) {
	tr, db := initFlow(t, asrmock.Options{PollsUntilRunning: 1, PollsUntilDone: 2, SimulateFailure: true})
	ctx := test.Ctx(t)

	job, err := tr.SubmitJob(ctx, "r1")
	require.Nil(t, err)
	var j *persistence.Job
	for i := 0; i < 3; i++ {
		j, err = tr.RefreshJob(ctx, job.ID)
		require.Nil(t, err)
	}

	assert.Equal(t, status.Failed, j.Status)
	assert.Equal(t, asrmock.DefaultFailureMessage, j.ErrorMessage.String)
	trn, _ := db.LoadTranscriptionByJob(ctx, job.ID)
	assert.Nil(t, trn)
	rec, _ := db.LoadRecording(ctx, "r1")
	assert.Equal(t, status.RecFailed, rec.Status)

	_, err = tr.SubmitJob(ctx, "r1")
	assert.Nil(t, err)
}

func TestFlow_ResubmitRejected(t *testing.T) {
	tr, db := initFlow(t, asrmock.Options{})
	ctx := test.Ctx(t)

	job, err := tr.SubmitJob(ctx, "r1")
	require.Nil(t, err)
	_, err = tr.SubmitJob(ctx, "r1")

	assert.ErrorIs(t, err, ErrJobInProgress)
	latest, _ := db.LoadLatestJob(ctx, "r1")
	assert.Equal(t, job.ID, latest.ID)
}

func TestFlow_ConcurrentSubmit_OneJob(t *testing.T) {
	tr, db := initFlow(t, asrmock.Options{})
	ctx := test.Ctx(t)

	var wg sync.WaitGroup
	errs := make(chan error, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := tr.SubmitJob(ctx, "r1")
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	ok := 0
	for err := range errs {
		if err == nil {
			ok++
		} else {
			assert.ErrorIs(t, err, ErrJobInProgress)
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, 1, len(db.order))
}

func TestFlow_RecoveryAfterRestart(t *testing.T) {
	tr, db := initFlow(t, asrmock.Options{PollsUntilRunning: 1, PollsUntilDone: 2})
	ctx := test.Ctx(t)
	job, err := tr.SubmitJob(ctx, "r1")
	require.Nil(t, err)
	j, _ := db.LoadJob(ctx, job.ID)
	j.Status = status.Succeeded
	j.ResultURL.String, j.ResultURL.Valid = asrmock.ResultURL(j.ProviderTaskID), true
	require.Nil(t, db.UpdateJob(ctx, j))

	// fresh tracker and provider, nothing in memory
	pr, err := asrmock.NewProvider(asrmock.Options{})
	require.Nil(t, err)
	tr2, err := New(&Data{DB: db, Provider: pr, Audio: directAudio{}})
	require.Nil(t, err)
	res, err := tr2.RefreshJob(ctx, job.ID)

	require.Nil(t, err)
	assert.Equal(t, status.Succeeded, res.Status)
	trn, _ := db.LoadTranscriptionByJob(ctx, job.ID)
	require.NotNil(t, trn)
	rec, _ := db.LoadRecording(ctx, "r1")
	assert.Equal(t, status.Completed, rec.Status)
}

func TestFlow_Timeout(t *testing.T) {
	tr, db := initFlow(t, asrmock.Options{PollsUntilRunning: 5, PollsUntilDone: 10})
	ctx := test.Ctx(t)
	job, err := tr.SubmitJob(ctx, "r1")
	require.Nil(t, err)
	tr.timeout = time.Minute
	now := time.Now().Add(time.Hour)
	tr.now = func() time.Time { return now }

	res, err := tr.RefreshJob(ctx, job.ID)

	require.Nil(t, err)
	assert.Equal(t, status.Failed, res.Status)
	assert.Contains(t, res.ErrorMessage.String, "timed out")
	rec, _ := db.LoadRecording(ctx, "r1")
	assert.Equal(t, status.RecFailed, rec.Status)
}
