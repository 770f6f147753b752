package feed

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
)

func dialFeed(t *testing.T, hub *Hub) *websocket.Conn {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", hub.ServeWS)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.Dial(context.Background(), wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close(websocket.StatusNormalClosure, "test done") })
	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn) Event {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	var ev Event
	if err := wsjson.Read(ctx, conn, &ev); err != nil {
		t.Fatalf("read event: %v", err)
	}
	return ev
}

func TestPublishReachesSubscriber(t *testing.T) {
	hub := NewHub()
	conn := dialFeed(t, hub)

	// Wait for the subscription to register before publishing.
	deadline := time.After(2 * time.Second)
	for hub.Subscribers() == 0 {
		select {
		case <-deadline:
			t.Fatal("subscriber never registered")
		case <-time.After(5 * time.Millisecond):
		}
	}

	hub.Publish(LevelEvent(0.04, 0.1, true))

	ev := readEvent(t, conn)
	if ev.Kind != KindLevel {
		t.Fatalf("kind = %q, want level", ev.Kind)
	}
	if ev.RMS != 0.04 || ev.Level != 0.1 || !ev.Speaking {
		t.Errorf("event = %+v", ev)
	}
}

func TestNewSubscriberGetsSnapshot(t *testing.T) {
	hub := NewHub()
	hub.Publish(StateEvent("recording", 2))
	hub.Publish(QuestionEvent("Tell me about yourself", 2))

	conn := dialFeed(t, hub)

	seen := map[string]Event{}
	for len(seen) < 2 {
		ev := readEvent(t, conn)
		seen[ev.Kind] = ev
	}
	if st := seen[KindState]; st.State != "recording" || st.Question != 2 {
		t.Errorf("state snapshot = %+v", st)
	}
	if q := seen[KindQuestion]; q.Text != "Tell me about yourself" {
		t.Errorf("question snapshot = %+v", q)
	}
}

func TestLatestEventPerKindWins(t *testing.T) {
	hub := NewHub()
	hub.Publish(StateEvent("playing_question", 0))
	hub.Publish(StateEvent("recording", 0))

	conn := dialFeed(t, hub)
	ev := readEvent(t, conn)
	if ev.State != "recording" {
		t.Errorf("snapshot state = %q, want the latest", ev.State)
	}
}

func TestPublishNeverBlocksWithoutReaders(t *testing.T) {
	hub := NewHub()
	ch := hub.subscribe()
	defer hub.unsubscribe(ch)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < subBuffer*4; i++ {
			hub.Publish(LevelEvent(0.01, 0.02, false))
		}
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Publish blocked on a full subscriber")
	}
}

func TestBannerAndTranscriptEvents(t *testing.T) {
	b := BannerEvent("Interview complete. Thank you!", "info")
	if b.Kind != KindBanner || b.Severity != "info" {
		t.Errorf("banner = %+v", b)
	}
	tr := TranscriptEvent("Hello world", 1)
	if tr.Kind != KindTranscript || tr.Text != "Hello world" || tr.Question != 1 {
		t.Errorf("transcript = %+v", tr)
	}
}
