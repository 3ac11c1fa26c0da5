package persistence

import (
	"database/sql"
	"time"

	"github.com/airenas/recscribe/internal/pkg/status"
)

type (

	//Recording table, owned by the app, only status is written here
	Recording struct {
		ID string
		// AudioURL is a direct fetchable location, if empty ObjectKey is presigned
		AudioURL  string
		ObjectKey string
		Status    status.Recording
		Updated   time.Time
	}

	//Job - one transcription attempt for a recording
	Job struct {
		ID             string
		RecordingID    string
		ProviderTaskID string
		Status         status.Job
		RequestID      string
		SubmitTime     *time.Time
		ScheduledTime  *time.Time
		EndTime        *time.Time
		UsageSeconds   sql.NullInt32
		ErrorMessage   sql.NullString
		ResultURL      sql.NullString
		Created        time.Time
		Updated        time.Time
		Version        int32
	}

	//Transcription - parsed result of a succeeded job
	Transcription struct {
		ID              string
		RecordingID     string
		JobID           string
		FullText        string
		Sentences       []Sentence
		Language        sql.NullString
		AudioFormat     string
		AudioSampleRate int
		Created         time.Time
	}

	//Sentence of a transcription
	Sentence struct {
		SentenceID  int    `json:"sentenceId"`
		BeginTimeMs int64  `json:"beginTimeMs"`
		EndTimeMs   int64  `json:"endTimeMs"`
		Text        string `json:"text"`
		Language    string `json:"language,omitempty"`
		Emotion     string `json:"emotion,omitempty"`
	}
)
