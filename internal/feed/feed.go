// Package feed exposes a live view of the running interview over HTTP.
//
// A Hub fans interview events (meter levels, state changes, banners,
// transcripts) out to any number of WebSocket subscribers on /ws. The same
// server mounts the health endpoints and the Prometheus /metrics scrape
// endpoint, so one listener carries everything an operator or a thin UI needs
// to watch a session.
package feed

import (
	"net/http"
	"sync"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
)

// Event kinds.
const (
	KindLevel      = "level"
	KindState      = "state"
	KindBanner     = "banner"
	KindTranscript = "transcript"
	KindQuestion   = "question"
)

// Event is one feed message. Kind selects which of the remaining fields are
// meaningful.
type Event struct {
	Kind string `json:"kind"`

	// Level fields.
	RMS      float64 `json:"rms,omitempty"`
	Level    float64 `json:"level,omitempty"`
	Speaking bool    `json:"speaking,omitempty"`

	// State and question fields.
	State    string `json:"state,omitempty"`
	Question int    `json:"question,omitempty"`

	// Banner and transcript fields.
	Text     string `json:"text,omitempty"`
	Severity string `json:"severity,omitempty"`
}

// subscriber buffer size. Level events arrive every meter buffer, so slow
// readers overflow quickly; overflowing events are dropped rather than
// blocking the publisher.
const subBuffer = 64

// Hub fans events out to WebSocket subscribers. The zero value is not usable;
// use NewHub.
type Hub struct {
	mu   sync.Mutex
	subs map[chan Event]struct{}
	last map[string]Event
}

// NewHub returns an empty hub.
func NewHub() *Hub {
	return &Hub{
		subs: make(map[chan Event]struct{}),
		last: make(map[string]Event),
	}
}

// Publish delivers ev to every subscriber. Subscribers that cannot keep up
// lose events; the publisher never blocks. The latest event of each kind is
// kept and replayed to new subscribers so they start with a current snapshot.
func (h *Hub) Publish(ev Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.last[ev.Kind] = ev
	for ch := range h.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

func (h *Hub) subscribe() chan Event {
	ch := make(chan Event, subBuffer)
	h.mu.Lock()
	defer h.mu.Unlock()
	// Snapshot replay keeps the channel from overflowing only if subBuffer
	// exceeds the number of event kinds, which it comfortably does.
	for _, ev := range h.last {
		ch <- ev
	}
	h.subs[ch] = struct{}{}
	return ch
}

func (h *Hub) unsubscribe(ch chan Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.subs, ch)
}

// Subscribers reports the current subscriber count.
func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// ServeWS upgrades the request to a WebSocket and streams events until the
// client disconnects or the request context ends.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		// The feed carries no credentials and local tooling connects from
		// arbitrary origins.
		InsecureSkipVerify: true,
	})
	if err != nil {
		return
	}
	defer conn.Close(websocket.StatusInternalError, "feed closed")

	ch := h.subscribe()
	defer h.unsubscribe(ch)

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			conn.Close(websocket.StatusNormalClosure, "server shutting down")
			return
		case ev := <-ch:
			if err := wsjson.Write(ctx, conn, ev); err != nil {
				return
			}
		}
	}
}

// LevelEvent builds a level event from meter output.
func LevelEvent(rms, level float64, speaking bool) Event {
	return Event{Kind: KindLevel, RMS: rms, Level: level, Speaking: speaking}
}

// StateEvent builds a state-change event.
func StateEvent(state string, question int) Event {
	return Event{Kind: KindState, State: state, Question: question}
}

// BannerEvent builds a banner event.
func BannerEvent(text, severity string) Event {
	return Event{Kind: KindBanner, Text: text, Severity: severity}
}

// TranscriptEvent builds a pending-transcript event.
func TranscriptEvent(text string, question int) Event {
	return Event{Kind: KindTranscript, Text: text, Question: question}
}

// QuestionEvent builds a current-question event.
func QuestionEvent(text string, question int) Event {
	return Event{Kind: KindQuestion, Text: text, Question: question}
}

// Close disconnects all subscribers. Pending events are discarded.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs {
		delete(h.subs, ch)
	}
}
