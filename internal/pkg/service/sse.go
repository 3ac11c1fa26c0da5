package service

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/airenas/go-app/pkg/goapp"
	"github.com/airenas/recscribe/internal/pkg/events"
	"github.com/labstack/echo/v4"
)

const defaultKeepAlive = 15 * time.Second

// sseWriter writes events to a text/event-stream response
type sseWriter struct {
	lock sync.Mutex
	resp *echo.Response
}

func (w *sseWriter) WriteJSON(v interface{}) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("can't marshal event: %w", err)
	}
	return w.write("data: " + string(b) + "\n\n")
}

func (w *sseWriter) ping() error {
	return w.write(": ping\n\n")
}

func (w *sseWriter) write(s string) error {
	w.lock.Lock()
	defer w.lock.Unlock()
	if _, err := w.resp.Write([]byte(s)); err != nil {
		return err
	}
	w.resp.Flush()
	return nil
}

func eventsHandler(data *Data) func(echo.Context) error {
	return func(c echo.Context) error {
		key := c.QueryParam("recordingId")
		if key == "" {
			key = events.AllRecordings
		}
		resp := c.Response()
		resp.Header().Set(echo.HeaderContentType, "text/event-stream")
		resp.Header().Set("Cache-Control", "no-cache")
		resp.Header().Set("Connection", "keep-alive")
		resp.WriteHeader(http.StatusOK)
		resp.Flush()

		w := &sseWriter{resp: resp}
		data.Hub.Subscribe(key, w)
		defer data.Hub.Unsubscribe(w)

		ka := data.KeepAlive
		if ka <= 0 {
			ka = defaultKeepAlive
		}
		ticker := time.NewTicker(ka)
		defer ticker.Stop()
		ctx := c.Request().Context()
		for {
			select {
			case <-ctx.Done():
				goapp.Log.Debug().Str("ID", key).Msg("sse closed")
				return nil
			case <-ticker.C:
				if err := w.ping(); err != nil {
					goapp.Log.Debug().Err(err).Str("ID", key).Msg("sse ping")
					return nil
				}
			}
		}
	}
}
