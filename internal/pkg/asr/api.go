package asr

import (
	"context"
	"time"

	"github.com/airenas/recscribe/internal/pkg/status"
)

// Provider is an async speech recognition backend
type Provider interface {
	// Submit hands the audio location to the provider, it does not wait for the transcription
	Submit(ctx context.Context, fileURL string) (*SubmitResult, error)
	// Poll returns the current task state, it must not change anything on provider side
	Poll(ctx context.Context, taskID string) (*PollResult, error)
	// FetchResult loads raw transcription from a presigned location, no credentials are attached
	FetchResult(ctx context.Context, resultURL string) (*RawPayload, error)
}

// SubmitResult keeps structure for submit method
type SubmitResult struct {
	RequestID string
	TaskID    string
	Status    status.Job
}

// PollResult keeps structure for poll method, unknown values are left nil/empty
type PollResult struct {
	Status        status.Job
	SubmitTime    *time.Time
	ScheduledTime *time.Time
	EndTime       *time.Time
	UsageSeconds  *int32
	ErrorMessage  string
	ResultURL     string
}

type (
	// RawPayload is a provider transcription document
	RawPayload struct {
		FileURL     string          `json:"file_url,omitempty"`
		AudioInfo   *AudioInfo      `json:"audio_info,omitempty"`
		Properties  *Properties     `json:"properties,omitempty"`
		Transcripts []RawTranscript `json:"transcripts"`
	}

	// AudioInfo describes the submitted file
	AudioInfo struct {
		Format     string `json:"format"`
		SampleRate int    `json:"sample_rate"`
	}

	// Properties is an alternative audio description returned by some models
	Properties struct {
		AudioFormat          string `json:"audio_format"`
		OriginalSamplingRate int    `json:"original_sampling_rate"`
	}

	// RawTranscript is one channel transcription
	RawTranscript struct {
		ChannelID *int          `json:"channel_id,omitempty"`
		Text      string        `json:"text"`
		Sentences []RawSentence `json:"sentences"`
	}

	// RawSentence in provider format, times are in ms
	RawSentence struct {
		SentenceID int       `json:"sentence_id"`
		BeginTime  int64     `json:"begin_time"`
		EndTime    int64     `json:"end_time"`
		Text       string    `json:"text"`
		Language   string    `json:"language,omitempty"`
		Emotion    string    `json:"emotion,omitempty"`
		Words      []RawWord `json:"words,omitempty"`
	}

	// RawWord is a word level detail, not used in canonical model
	RawWord struct {
		BeginTime   int64  `json:"begin_time"`
		EndTime     int64  `json:"end_time"`
		Text        string `json:"text"`
		Punctuation string `json:"punctuation,omitempty"`
	}
)
