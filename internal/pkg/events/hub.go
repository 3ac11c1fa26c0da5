package events

import (
	"strings"
	"sync"
	"time"

	"github.com/airenas/go-app/pkg/goapp"
	"github.com/airenas/recscribe/internal/pkg/messages"
)

// AllRecordings is a subscription key for events of every recording
const AllRecordings = "*"

// Subscriber receives job events
type Subscriber interface {
	WriteJSON(v interface{}) error
}

// WsConn is interface for websocket handling in the hub
type WsConn interface {
	ReadMessage() (messageType int, p []byte, err error)
	Close() error
	WriteJSON(v interface{}) error
}

// Hub keeps subscribers by recording ID
type Hub struct {
	subs     map[string]map[Subscriber]struct{}
	keys     map[Subscriber]string
	lock     *sync.Mutex
	timeOut  time.Duration
	observed func(bool)
}

// NewHub creates hub
func NewHub() *Hub {
	res := &Hub{}
	res.subs = make(map[string]map[Subscriber]struct{})
	res.keys = make(map[Subscriber]string)
	res.lock = &sync.Mutex{}
	res.timeOut = time.Minute * 30 // max idle time for a websocket without new messages
	return res
}

// OnObserved sets a func called with true on the first subscriber and with false when the last one leaves
func (h *Hub) OnObserved(f func(bool)) {
	h.lock.Lock()
	defer h.lock.Unlock()
	h.observed = f
}

// HandleConnection loops until the websocket is active,
// every text frame is a recording ID (or *) the connection subscribes to
func (h *Hub) HandleConnection(conn WsConn) error {
	defer h.Unsubscribe(conn)
	defer conn.Close()
	readCh := make(chan string)
	go func() {
		defer close(readCh)
		defer goapp.Log.Debug().Msg("read routine ended")
		for {
			_, message, err := conn.ReadMessage()
			if err != nil {
				goapp.Log.Debug().Err(err).Msg("ws read")
				return
			}
			msg := strings.TrimSpace(string(message))
			goapp.Log.Debug().Str("msg", goapp.Sanitize(msg)).Msg("got msg")
			if msg != "" {
				readCh <- msg
			}
		}
	}()

	ta := time.After(h.timeOut)
loop:
	for {
		select {
		case <-ta:
			goapp.Log.Debug().Msg("conn timeouted")
			break loop
		case msg, ok := <-readCh:
			if !ok {
				goapp.Log.Debug().Msg("conn read closed")
				break loop
			}
			h.Subscribe(msg, conn)
			ta = time.After(h.timeOut)
		}
	}
	return nil
}

// Subscribe adds subscriber for the key, old subscription of the same subscriber is dropped
func (h *Hub) Subscribe(key string, s Subscriber) {
	goapp.Log.Info().Str("ID", key).Msg("subscribe")
	h.lock.Lock()
	defer h.lock.Unlock()
	before := len(h.keys)
	h.deleteNoSync(s)
	h.keys[s] = key
	subs, found := h.subs[key]
	if !found {
		subs = map[Subscriber]struct{}{}
		h.subs[key] = subs
	}
	subs[s] = struct{}{}
	h.changed(before)
}

// Unsubscribe drops the subscriber
func (h *Hub) Unsubscribe(s Subscriber) {
	h.lock.Lock()
	defer h.lock.Unlock()
	before := len(h.keys)
	h.deleteNoSync(s)
	h.changed(before)
}

func (h *Hub) deleteNoSync(s Subscriber) {
	key, found := h.keys[s]
	if !found {
		return
	}
	if subs, found := h.subs[key]; found {
		delete(subs, s)
		if len(subs) == 0 {
			delete(h.subs, key)
		}
	}
	delete(h.keys, s)
}

func (h *Hub) changed(before int) {
	now := len(h.keys)
	if before != now {
		goapp.Log.Info().Int("active", now).Msg("subscribers")
	}
	if h.observed == nil {
		return
	}
	if before == 0 && now > 0 {
		h.observed(true)
	} else if before > 0 && now == 0 {
		h.observed(false)
	}
}

// Publish writes the event to subscribers of the recording and of all recordings,
// returns count of successful writes
func (h *Hub) Publish(ev *messages.JobEvent) int {
	h.lock.Lock()
	defer h.lock.Unlock()
	res := 0
	for _, key := range []string{ev.RecordingID, AllRecordings} {
		for s := range h.subs[key] {
			if err := s.WriteJSON(ev); err != nil {
				goapp.Log.Warn().Err(err).Str("jobID", ev.JobID).Msg("can't write event")
				continue
			}
			res++
		}
	}
	return res
}

// Count returns count of subscribers
func (h *Hub) Count() int {
	h.lock.Lock()
	defer h.lock.Unlock()
	return len(h.keys)
}
