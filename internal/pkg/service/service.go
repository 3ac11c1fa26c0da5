package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/airenas/go-app/pkg/goapp"
	"github.com/airenas/recscribe/internal/pkg/asr"
	"github.com/airenas/recscribe/internal/pkg/events"
	"github.com/airenas/recscribe/internal/pkg/persistence"
	"github.com/airenas/recscribe/internal/pkg/status"
	"github.com/airenas/recscribe/internal/pkg/tracker"
	"github.com/airenas/recscribe/internal/pkg/utils"
	"github.com/facebookgo/grace/gracehttp"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo-contrib/prometheus"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

type (
	// Submitter starts a transcription job
	Submitter interface {
		SubmitJob(ctx context.Context, recordingID string) (*persistence.Job, error)
	}

	// DB loads jobs for the read side
	DB interface {
		LoadJob(ctx context.Context, id string) (*persistence.Job, error)
		LoadTranscriptionByJob(ctx context.Context, jobID string) (*persistence.Transcription, error)
	}

	// Scheduler starts polling of the submitted job
	Scheduler interface {
		Track(jobID string)
	}

	// Hub keeps event subscribers
	Hub interface {
		HandleConnection(events.WsConn) error
		Subscribe(key string, s events.Subscriber)
		Unsubscribe(s events.Subscriber)
	}

	// Checker reports health of a dependency
	Checker interface {
		Live(ctx context.Context) error
	}
)

// Data keeps data required for service work
type Data struct {
	Port      int
	Submitter Submitter
	DB        DB
	Scheduler Scheduler
	Hub       Hub
	// Checker is optional
	Checker Checker
	// KeepAlive is the interval of SSE comments keeping the connection open
	KeepAlive time.Duration
}

// StartWebServer starts echo web service
func StartWebServer(data *Data) error {
	goapp.Log.Info().Msgf("Starting HTTP transcriber service at %d", data.Port)
	if err := validate(data); err != nil {
		return err
	}

	portStr := strconv.Itoa(data.Port)

	e := initRoutes(data)

	e.Server.Addr = ":" + portStr
	e.Server.ReadHeaderTimeout = 5 * time.Second
	e.Server.ReadTimeout = 10 * time.Second

	gracehttp.SetLogger(log.New(goapp.Log, "", 0))

	return gracehttp.Serve(e.Server)
}

var promMdlw *prometheus.Prometheus

func init() {
	promMdlw = prometheus.NewPrometheus("recscribe", nil)
}

func initRoutes(data *Data) *echo.Echo {
	e := echo.New()
	e.Use(middleware.Logger())
	promMdlw.Use(e)

	e.POST("/recordings/:id/transcribe", transcribeHandler(data))
	e.GET("/jobs/:id", jobHandler(data))
	e.GET("/events", eventsHandler(data))
	e.GET("/subscribe", subscribeHandler(data))
	e.GET("/live", live(data))

	goapp.Log.Info().Msg("Routes:")
	for _, r := range e.Routes() {
		goapp.Log.Info().Msgf("  %s %s", r.Method, r.Path)
	}
	return e
}

func live(data *Data) func(echo.Context) error {
	return func(c echo.Context) error {
		if data.Checker != nil {
			if err := data.Checker.Live(c.Request().Context()); err != nil {
				goapp.Log.Error().Err(err).Msg("not live")
				return c.JSONBlob(http.StatusServiceUnavailable, []byte(`{"service":"OK","db":"FAIL"}`))
			}
		}
		return c.JSONBlob(http.StatusOK, []byte(`{"service":"OK"}`))
	}
}

type sentence struct {
	ID          int    `json:"id"`
	BeginTimeMs int64  `json:"beginTimeMs"`
	EndTimeMs   int64  `json:"endTimeMs"`
	Text        string `json:"text"`
	Language    string `json:"language,omitempty"`
	Emotion     string `json:"emotion,omitempty"`
}

type transcription struct {
	FullText  string     `json:"fullText"`
	Language  string     `json:"language,omitempty"`
	Sentences []sentence `json:"sentences"`
}

type jobResult struct {
	ID             string         `json:"id"`
	RecordingID    string         `json:"recordingId"`
	ProviderTaskID string         `json:"providerTaskId"`
	Status         string         `json:"status"`
	SubmitTime     *time.Time     `json:"submitTime,omitempty"`
	EndTime        *time.Time     `json:"endTime,omitempty"`
	UsageSeconds   int32          `json:"usageSeconds,omitempty"`
	Error          string         `json:"error,omitempty"`
	Created        time.Time      `json:"created"`
	Transcription  *transcription `json:"transcription,omitempty"`
}

func transcribeHandler(data *Data) func(echo.Context) error {
	return func(c echo.Context) error {
		defer goapp.Estimate("transcribe method")()

		id := c.Param("id")
		if id == "" {
			return echo.NewHTTPError(http.StatusBadRequest, "No ID")
		}
		job, err := data.Submitter.SubmitJob(c.Request().Context(), id)
		if err != nil {
			return mapSubmitErr(id, err)
		}
		data.Scheduler.Track(job.ID)
		return c.JSON(http.StatusOK, mapJob(job, nil))
	}
}

func mapSubmitErr(id string, err error) error {
	switch {
	case errors.Is(err, tracker.ErrRecordingNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "Recording not found: "+id)
	case errors.Is(err, tracker.ErrJobInProgress):
		return echo.NewHTTPError(http.StatusConflict, "Job in progress")
	case errors.Is(err, tracker.ErrNoAudio):
		return echo.NewHTTPError(http.StatusBadRequest, "No audio")
	case asr.IsProviderError(err):
		goapp.Log.Error().Err(err).Str("recordingID", id).Msg("provider rejected")
		return echo.NewHTTPError(http.StatusBadGateway, "Provider error")
	}
	goapp.Log.Error().Err(err).Str("recordingID", id).Send()
	return echo.NewHTTPError(http.StatusInternalServerError, "Service error")
}

func jobHandler(data *Data) func(echo.Context) error {
	return func(c echo.Context) error {
		defer goapp.Estimate("job method")()

		id := c.Param("id")
		if id == "" {
			return echo.NewHTTPError(http.StatusBadRequest, "No ID")
		}
		ctx := c.Request().Context()
		job, err := data.DB.LoadJob(ctx, id)
		if err != nil {
			goapp.Log.Error().Err(err).Send()
			return echo.NewHTTPError(http.StatusInternalServerError, "Service error")
		}
		if job == nil {
			return echo.NewHTTPError(http.StatusNotFound, "Job not found: "+id)
		}
		var tr *persistence.Transcription
		if job.Status == status.Succeeded {
			if tr, err = data.DB.LoadTranscriptionByJob(ctx, id); err != nil {
				goapp.Log.Error().Err(err).Send()
				return echo.NewHTTPError(http.StatusInternalServerError, "Service error")
			}
		}
		return c.JSON(http.StatusOK, mapJob(job, tr))
	}
}

func mapJob(job *persistence.Job, tr *persistence.Transcription) *jobResult {
	res := &jobResult{ID: job.ID, RecordingID: job.RecordingID, ProviderTaskID: job.ProviderTaskID,
		Status: job.Status.String(), SubmitTime: job.SubmitTime, EndTime: job.EndTime,
		UsageSeconds: utils.FromSQLInt32OrZero(job.UsageSeconds), Error: utils.FromSQLStr(job.ErrorMessage),
		Created: job.Created}
	if tr != nil {
		res.Transcription = &transcription{FullText: tr.FullText, Language: utils.FromSQLStr(tr.Language),
			Sentences: make([]sentence, 0, len(tr.Sentences))}
		for _, s := range tr.Sentences {
			res.Transcription.Sentences = append(res.Transcription.Sentences, sentence{ID: s.SentenceID,
				BeginTimeMs: s.BeginTimeMs, EndTimeMs: s.EndTimeMs, Text: s.Text, Language: s.Language,
				Emotion: s.Emotion})
		}
	}
	return res
}

func validate(data *Data) error {
	if data.Submitter == nil {
		return fmt.Errorf("no submitter")
	}
	if data.DB == nil {
		return fmt.Errorf("no DB")
	}
	if data.Scheduler == nil {
		return fmt.Errorf("no scheduler")
	}
	if data.Hub == nil {
		return fmt.Errorf("no hub")
	}
	return nil
}

var wsUpgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	}}

func subscribeHandler(data *Data) func(echo.Context) error {
	return func(c echo.Context) error {
		ws, err := wsUpgrader.Upgrade(c.Response(), c.Request(), nil)
		if err != nil {
			goapp.Log.Error().Err(err).Send()
			return err
		}
		defer ws.Close()

		return data.Hub.HandleConnection(ws)
	}
}
