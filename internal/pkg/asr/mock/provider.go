package mock

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/airenas/go-app/pkg/goapp"
	"github.com/airenas/recscribe/internal/pkg/asr"
	"github.com/airenas/recscribe/internal/pkg/status"
	"github.com/google/uuid"
)

// DefaultFailureMessage is returned for failed tasks if no message is configured
const DefaultFailureMessage = "mock transcription failed"

const resultPrefix = "mock://results/"

// Options configures mock behavior
type Options struct {
	PollsUntilRunning int
	PollsUntilDone    int
	SimulateFailure   bool
	FailureMessage    string
	// Payload is returned by FetchResult, DefaultPayload is used if nil
	Payload *asr.RawPayload
}

// Provider is a deterministic asr.Provider without network
type Provider struct {
	opts  Options
	lock  sync.Mutex
	polls map[string]int
	now   func() time.Time
}

var _ asr.Provider = (*Provider)(nil)

// NewProvider creates mock provider
func NewProvider(opts Options) (*Provider, error) {
	if opts.PollsUntilRunning == 0 {
		opts.PollsUntilRunning = 1
	}
	if opts.PollsUntilDone == 0 {
		opts.PollsUntilDone = opts.PollsUntilRunning + 2
	}
	if opts.PollsUntilRunning < 0 {
		return nil, fmt.Errorf("wrong pollsUntilRunning %d", opts.PollsUntilRunning)
	}
	if opts.PollsUntilDone <= opts.PollsUntilRunning {
		return nil, fmt.Errorf("pollsUntilDone (%d) must be > pollsUntilRunning (%d)", opts.PollsUntilDone, opts.PollsUntilRunning)
	}
	if opts.FailureMessage == "" {
		opts.FailureMessage = DefaultFailureMessage
	}
	goapp.Log.Warn().Int("running", opts.PollsUntilRunning).Int("done", opts.PollsUntilDone).
		Bool("fail", opts.SimulateFailure).Msg("mock asr provider")
	return &Provider{opts: opts, polls: map[string]int{}, now: time.Now}, nil
}

// Submit registers new task
func (p *Provider) Submit(ctx context.Context, fileURL string) (*asr.SubmitResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if fileURL == "" {
		return nil, asr.NewProviderError("submit", http.StatusBadRequest, "no file url")
	}
	res := &asr.SubmitResult{RequestID: uuid.NewString(), TaskID: "mock-" + uuid.NewString(), Status: status.Pending}
	p.lock.Lock()
	p.polls[res.TaskID] = 0
	p.lock.Unlock()
	return res, nil
}

// Poll returns status by the count of previous polls.
// Unknown tasks are treated as already polled once
func (p *Provider) Poll(ctx context.Context, taskID string) (*asr.PollResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p.lock.Lock()
	n, ok := p.polls[taskID]
	if !ok {
		n = 1
	}
	p.polls[taskID] = n + 1
	p.lock.Unlock()

	now := p.now()
	res := &asr.PollResult{SubmitTime: &now}
	switch {
	case n < p.opts.PollsUntilRunning:
		res.Status = status.Pending
	case n < p.opts.PollsUntilDone:
		res.Status = status.Running
		res.ScheduledTime = &now
	default:
		res.ScheduledTime, res.EndTime = &now, &now
		if p.opts.SimulateFailure {
			res.Status = status.Failed
			res.ErrorMessage = p.opts.FailureMessage
		} else {
			res.Status = status.Succeeded
			res.ResultURL = ResultURL(taskID)
			usage := int32(10)
			res.UsageSeconds = &usage
		}
	}
	return res, nil
}

// FetchResult returns configured payload
func (p *Provider) FetchResult(ctx context.Context, resultURL string) (*asr.RawPayload, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !strings.HasPrefix(resultURL, resultPrefix) || len(resultURL) == len(resultPrefix) {
		return nil, asr.NewUnknownTaskError("fetch", http.StatusNotFound, "no result "+resultURL)
	}
	if p.opts.Payload != nil {
		return p.opts.Payload, nil
	}
	return DefaultPayload(), nil
}

// ResultURL returns deterministic result location for the task
func ResultURL(taskID string) string {
	return resultPrefix + taskID
}

// DefaultPayload returns two sentences english transcription
func DefaultPayload() *asr.RawPayload {
	ch := 0
	return &asr.RawPayload{
		FileURL:   "mock://audio.wav",
		AudioInfo: &asr.AudioInfo{Format: "wav", SampleRate: 16000},
		Transcripts: []asr.RawTranscript{{
			ChannelID: &ch,
			Text:      "Hello, this is a mock transcription. It has two sentences.",
			Sentences: []asr.RawSentence{
				{SentenceID: 1, BeginTime: 0, EndTime: 2400, Text: "Hello, this is a mock transcription.",
					Language: "en", Emotion: "neutral",
					Words: []asr.RawWord{{BeginTime: 0, EndTime: 500, Text: "Hello", Punctuation: ","}}},
				{SentenceID: 2, BeginTime: 2400, EndTime: 4100, Text: "It has two sentences.",
					Language: "en", Emotion: "neutral"},
			},
		}},
	}
}
