//go:build integration
// +build integration

package integration

import (
	"context"
	"log"
	"net/http"
	"net/url"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/airenas/recscribe/internal/pkg/messages"
	"github.com/airenas/recscribe/internal/pkg/test"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// expects the transcriber service started with the mock asr provider
type config struct {
	serviceURL string
	dbURL      string
	httpclient *http.Client
	dbPool     *pgxpool.Pool
}

var cfg config

func TestMain(m *testing.M) {
	cfg.serviceURL = GetEnvOrFail("TRANSCRIBER_URL")
	cfg.dbURL = GetEnvOrFail("DB_URL")
	cfg.httpclient = &http.Client{Timeout: time.Second * 30}

	tCtx, cf := context.WithTimeout(context.Background(), time.Second*20)
	defer cf()
	WaitForOpenOrFail(tCtx, cfg.dbURL)
	WaitForOpenOrFail(tCtx, cfg.serviceURL)
	var err error
	cfg.dbPool, err = pgxpool.New(tCtx, cfg.dbURL)
	if err != nil {
		log.Fatalf("FAIL: can't init db pool")
	}
	waitForDB(tCtx, cfg.dbPool)

	res := m.Run()
	cfg.dbPool.Close()
	os.Exit(res)
}

func TestLive(t *testing.T) {
	t.Parallel()
	test.CheckCode(t, test.Invoke(t, cfg.httpclient, NewRequest(t, http.MethodGet, cfg.serviceURL, "/live", nil)), http.StatusOK)
}

func TestJob_None(t *testing.T) {
	t.Parallel()
	test.CheckCode(t, test.Invoke(t, cfg.httpclient, NewRequest(t, http.MethodGet, cfg.serviceURL, "/jobs/none", nil)),
		http.StatusNotFound)
}

func TestTranscribe_NoRecording(t *testing.T) {
	t.Parallel()
	test.CheckCode(t, transcribe(t, uuid.NewString()), http.StatusNotFound)
}

func TestTranscribe_NoAudio(t *testing.T) {
	t.Parallel()
	id := uuid.NewString()
	addRecording(t, id, "")
	test.CheckCode(t, transcribe(t, id), http.StatusBadRequest)
}

type jobResponse struct {
	ID            string `json:"id"`
	RecordingID   string `json:"recordingId"`
	Status        string `json:"status"`
	Error         string `json:"error"`
	Transcription *struct {
		FullText  string `json:"fullText"`
		Language  string `json:"language"`
		Sentences []struct {
			Text string `json:"text"`
		} `json:"sentences"`
	} `json:"transcription"`
}

func TestTranscribe(t *testing.T) {
	t.Parallel()
	id := uuid.NewString()
	addRecording(t, id, "http://audio.example/"+id+".wav")

	resp := test.CheckCode(t, transcribe(t, id), http.StatusOK)
	job := test.Decode[jobResponse](t, resp)
	assert.NotEmpty(t, job.ID)
	assert.Equal(t, "PENDING", job.Status)
	assert.Equal(t, "transcribing", recordingStatus(t, id))

	test.CheckCode(t, transcribe(t, id), http.StatusConflict)

	job = waitJob(t, job.ID, time.Second*20)
	assert.Equal(t, "SUCCEEDED", job.Status)
	require.NotNil(t, job.Transcription)
	assert.Equal(t, "en", job.Transcription.Language)
	assert.Equal(t, 2, len(job.Transcription.Sentences))
	assert.NotEmpty(t, job.Transcription.FullText)
	assert.Equal(t, "completed", recordingStatus(t, id))

	resp = test.CheckCode(t, transcribe(t, id), http.StatusOK)
	assert.NotEqual(t, job.ID, test.Decode[jobResponse](t, resp).ID)
}

func TestSubscribe(t *testing.T) {
	t.Parallel()
	id := uuid.NewString()
	addRecording(t, id, "http://audio.example/"+id+".wav")

	u, err := url.Parse(cfg.serviceURL)
	require.Nil(t, err)
	u.Scheme = strings.Replace(u.Scheme, "http", "ws", 1)
	u = u.JoinPath("/subscribe")
	conn, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	require.Nil(t, err)
	defer conn.Close()
	require.Nil(t, conn.WriteMessage(websocket.TextMessage, []byte(id)))
	time.Sleep(time.Millisecond * 300)

	test.CheckCode(t, transcribe(t, id), http.StatusOK)

	var got []string
	require.Nil(t, conn.SetReadDeadline(time.Now().Add(time.Second*20)))
	for len(got) == 0 || got[len(got)-1] != "SUCCEEDED" {
		var ev messages.JobEvent
		require.Nil(t, conn.ReadJSON(&ev))
		assert.Equal(t, id, ev.RecordingID)
		got = append(got, ev.Status)
	}
	assert.Equal(t, []string{"PENDING", "RUNNING", "SUCCEEDED"}, got)
}

func transcribe(t *testing.T, id string) *http.Response {
	t.Helper()
	return test.Invoke(t, cfg.httpclient, NewRequest(t, http.MethodPost, cfg.serviceURL, "/recordings/"+id+"/transcribe", nil))
}

func waitJob(t *testing.T, id string, dur time.Duration) jobResponse {
	t.Helper()
	tm := time.After(dur)
	for {
		resp := test.CheckCode(t, test.Invoke(t, cfg.httpclient,
			NewRequest(t, http.MethodGet, cfg.serviceURL, "/jobs/"+id, nil)), http.StatusOK)
		job := test.Decode[jobResponse](t, resp)
		if job.Status == "SUCCEEDED" || job.Status == "FAILED" {
			return job
		}
		select {
		case <-tm:
			require.Failf(t, "Fail", "Not finished in %v", dur)
		case <-time.After(time.Millisecond * 500):
		}
	}
}
