package dashscope

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/airenas/go-app/pkg/goapp"
	"github.com/airenas/recscribe/internal/pkg/asr"
	"github.com/airenas/recscribe/internal/pkg/parser"
	"github.com/airenas/recscribe/internal/pkg/status"
	"github.com/cenkalti/backoff/v4"
	"github.com/spf13/viper"
)

const (
	defaultURL   = "https://dashscope.aliyuncs.com/api/v1"
	defaultModel = "paraformer-v2"
	timeLayout   = "2006-01-02 15:04:05.000"
)

// Options for the client
type Options struct {
	URL           string
	Key           string
	Model         string
	LanguageHints []string
	EnableWords   bool
	Timeout       time.Duration
}

// Client comunicates with async transcription service
type Client struct {
	httpclient  *http.Client
	submitURL   string
	taskURL     string
	key         string
	model       string
	langHints   []string
	enableWords bool
	timeout     time.Duration
	backoff     func() backoff.BackOff
}

var _ asr.Provider = (*Client)(nil)

// NewClient creates a transcription client
func NewClient(opts Options) (*Client, error) {
	if opts.Key == "" {
		return nil, fmt.Errorf("no key")
	}
	if opts.URL == "" {
		opts.URL = defaultURL
	}
	if !strings.HasPrefix(opts.URL, "http") {
		return nil, fmt.Errorf("no http in URL")
	}
	if opts.Model == "" {
		opts.Model = defaultModel
	}
	if opts.Timeout <= 0 {
		opts.Timeout = time.Second * 30
	}
	res := Client{}
	base := strings.TrimSuffix(opts.URL, "/")
	res.submitURL = base + "/services/audio/asr/transcription"
	res.taskURL = base + "/tasks"
	res.key = opts.Key
	res.model = opts.Model
	res.langHints = opts.LanguageHints
	res.enableWords = opts.EnableWords
	res.timeout = opts.Timeout
	res.httpclient = asrHTTPClient()
	res.backoff = newSimpleBackoff
	goapp.Log.Info().Str("url", base).Str("model", res.model).Strs("languages", res.langHints).Msg("asr client")
	return &res, nil
}

// NewClientFromConfig creates a client from config sub tree
func NewClientFromConfig(cfg *viper.Viper) (*Client, error) {
	if cfg == nil {
		return nil, fmt.Errorf("no dashscope config")
	}
	return NewClient(Options{URL: cfg.GetString("url"), Key: cfg.GetString("key"), Model: cfg.GetString("model"),
		LanguageHints: cfg.GetStringSlice("languageHints"), EnableWords: cfg.GetBool("enableWords"),
		Timeout: cfg.GetDuration("timeout")})
}

type submitRequest struct {
	Model      string      `json:"model"`
	Input      submitInput `json:"input"`
	Parameters submitPrms  `json:"parameters"`
}

type submitInput struct {
	FileURL string `json:"file_url"`
}

type submitPrms struct {
	LanguageHints []string `json:"language_hints,omitempty"`
	EnableWords   bool     `json:"enable_words"`
}

type taskOutput struct {
	TaskID        string `json:"task_id"`
	TaskStatus    string `json:"task_status"`
	SubmitTime    string `json:"submit_time,omitempty"`
	ScheduledTime string `json:"scheduled_time,omitempty"`
	EndTime       string `json:"end_time,omitempty"`
	Code          string `json:"code,omitempty"`
	Message       string `json:"message,omitempty"`
	Result        *struct {
		TranscriptionURL string `json:"transcription_url"`
	} `json:"result,omitempty"`
	Results []struct {
		TranscriptionURL string `json:"transcription_url"`
		SubtaskStatus    string `json:"subtask_status"`
		Code             string `json:"code,omitempty"`
		Message          string `json:"message,omitempty"`
	} `json:"results,omitempty"`
}

type taskResponse struct {
	RequestID string      `json:"request_id"`
	Output    *taskOutput `json:"output"`
	Usage     *struct {
		Duration *int32 `json:"duration"`
	} `json:"usage,omitempty"`
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Submit sends the audio URL for async transcription, the call is not retried
func (sp *Client) Submit(ctx context.Context, fileURL string) (*asr.SubmitResult, error) {
	body, err := json.Marshal(submitRequest{Model: sp.model, Input: submitInput{FileURL: fileURL},
		Parameters: submitPrms{LanguageHints: sp.langHints, EnableWords: sp.enableWords}})
	if err != nil {
		return nil, fmt.Errorf("can't marshal request: %w", err)
	}
	ctx, cancelF := context.WithTimeout(ctx, sp.timeout)
	defer cancelF()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, sp.submitURL, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-DashScope-Async", "enable")
	sp.auth(req)
	goapp.Log.Info().Str("url", req.URL.String()).Str("method", req.Method).Msg("call")
	resp, err := sp.httpclient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("can't call: %w", err)
	}
	defer drain(resp)
	if err := validateResp(resp, "submit", false); err != nil {
		return nil, err
	}
	var respData taskResponse
	if err := json.NewDecoder(resp.Body).Decode(&respData); err != nil {
		return nil, fmt.Errorf("can't decode response: %w", err)
	}
	if respData.Output == nil || respData.Output.TaskID == "" {
		return nil, fmt.Errorf("can't get task_id from response")
	}
	st := status.From(respData.Output.TaskStatus)
	if st == 0 {
		st = status.Pending
	}
	return &asr.SubmitResult{RequestID: respData.RequestID, TaskID: respData.Output.TaskID, Status: st}, nil
}

// Poll returns task status
func (sp *Client) Poll(ctx context.Context, taskID string) (*asr.PollResult, error) {
	if taskID == "" {
		return nil, fmt.Errorf("no task ID")
	}
	respData, err := goapp.InvokeWithBackoff(ctx, func() (*taskResponse, bool, error) {
		ctx, cancelF := context.WithTimeout(ctx, sp.timeout)
		defer cancelF()
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, sp.taskURL+"/"+taskID, nil)
		if err != nil {
			return nil, false, err
		}
		sp.auth(req)
		resp, err := sp.httpclient.Do(req)
		if err != nil {
			return nil, goapp.IsRetryableErr(err), fmt.Errorf("can't call: %w", err)
		}
		defer drain(resp)
		if err := validateResp(resp, "poll", true); err != nil {
			return nil, false, err
		}
		res := &taskResponse{}
		if err := json.NewDecoder(resp.Body).Decode(res); err != nil {
			return nil, false, fmt.Errorf("can't unmarshal: %w", err)
		}
		return res, false, nil
	}, sp.backoff())
	if err != nil {
		return nil, err
	}
	return mapTask(respData)
}

// FetchResult downloads the transcription, presigned URL carries own authorization
func (sp *Client) FetchResult(ctx context.Context, resultURL string) (*asr.RawPayload, error) {
	if resultURL == "" {
		return nil, asr.NewMalformedResultError(fmt.Errorf("no result URL"))
	}
	goapp.Log.Info().Msg("get result")
	data, err := goapp.InvokeWithBackoff(ctx, func() ([]byte, bool, error) {
		ctx, cancelF := context.WithTimeout(ctx, sp.timeout)
		defer cancelF()
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, resultURL, nil)
		if err != nil {
			return nil, false, asr.NewMalformedResultError(fmt.Errorf("wrong result URL: %w", err))
		}
		resp, err := sp.httpclient.Do(req)
		if err != nil {
			return nil, goapp.IsRetryableErr(err), fmt.Errorf("can't call: %w", err)
		}
		defer drain(resp)
		if err := validateResp(resp, "fetch", true); err != nil {
			return nil, false, err
		}
		br, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, goapp.IsRetryableErr(err), fmt.Errorf("can't read body: %w", err)
		}
		return br, false, nil
	}, sp.backoff())
	if err != nil {
		return nil, err
	}
	return parser.Decode(data)
}

func (sp *Client) auth(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+sp.key)
}

func mapTask(resp *taskResponse) (*asr.PollResult, error) {
	if resp.Output == nil {
		return nil, fmt.Errorf("no output in response")
	}
	out := resp.Output
	if out.TaskStatus == "UNKNOWN" {
		return nil, asr.NewUnknownTaskError("poll", http.StatusOK, "task status UNKNOWN")
	}
	st := status.From(out.TaskStatus)
	canceled := out.TaskStatus == "CANCELED"
	if canceled {
		st = status.Failed
	}
	if st == 0 {
		return nil, fmt.Errorf("unexpected task status '%s'", out.TaskStatus)
	}
	res := &asr.PollResult{Status: st}
	res.SubmitTime = parseTime(out.SubmitTime)
	res.ScheduledTime = parseTime(out.ScheduledTime)
	res.EndTime = parseTime(out.EndTime)
	switch st {
	case status.Succeeded:
		res.ResultURL = resultURL(out)
		if res.ResultURL == "" {
			// all subtasks failed, nothing to fetch
			res.Status = status.Failed
			res.ErrorMessage = failureMsg(out, "no transcription result")
			break
		}
		if resp.Usage != nil {
			res.UsageSeconds = resp.Usage.Duration
		}
	case status.Failed:
		if canceled {
			res.ErrorMessage = failureMsg(out, "task canceled")
		} else {
			res.ErrorMessage = failureMsg(out, "transcription failed")
		}
	}
	return res, nil
}

func resultURL(out *taskOutput) string {
	if out.Result != nil && out.Result.TranscriptionURL != "" {
		return out.Result.TranscriptionURL
	}
	for _, r := range out.Results {
		if r.TranscriptionURL != "" && (r.SubtaskStatus == "" || r.SubtaskStatus == "SUCCEEDED") {
			return r.TranscriptionURL
		}
	}
	return ""
}

func failureMsg(out *taskOutput, def string) string {
	if res := joinCode(out.Code, out.Message); res != "" {
		return res
	}
	for _, r := range out.Results {
		if res := joinCode(r.Code, r.Message); res != "" {
			return res
		}
	}
	return def
}

func joinCode(code, msg string) string {
	if code != "" && msg != "" {
		return code + ": " + msg
	}
	return code + msg
}

func parseTime(s string) *time.Time {
	if s == "" {
		return nil
	}
	res, err := time.Parse(timeLayout, s)
	if err != nil {
		goapp.Log.Warn().Str("value", s).Msg("can't parse time")
		return nil
	}
	return &res
}

func validateResp(resp *http.Response, op string, taskOp bool) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	b, _ := io.ReadAll(io.LimitReader(resp.Body, 2000))
	msg := errMsg(b)
	goapp.Log.Warn().Str("op", op).Int("code", resp.StatusCode).Str("body", goapp.Sanitize(msg)).Msg("provider rejected")
	if taskOp && resp.StatusCode == http.StatusNotFound {
		return asr.NewUnknownTaskError(op, resp.StatusCode, msg)
	}
	return asr.NewProviderError(op, resp.StatusCode, msg)
}

func errMsg(b []byte) string {
	var e errorResponse
	if err := json.Unmarshal(b, &e); err == nil {
		if res := joinCode(e.Code, e.Message); res != "" {
			return res
		}
	}
	res := strings.TrimSpace(string(b))
	if len(res) > 200 {
		return res[:200]
	}
	return res
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 10000))
	_ = resp.Body.Close()
}

func asrHTTPClient() *http.Client {
	return &http.Client{Transport: newTransport()}
}

func newTransport() http.RoundTripper {
	res := http.DefaultTransport.(*http.Transport).Clone()
	res.MaxConnsPerHost = 100
	res.MaxIdleConns = 50
	res.MaxIdleConnsPerHost = 50
	res.IdleConnTimeout = 90 * time.Second
	return res
}

func newSimpleBackoff() backoff.BackOff {
	res := backoff.NewExponentialBackOff()
	return backoff.WithMaxRetries(res, 3)
}
