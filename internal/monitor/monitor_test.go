package monitor

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/1ureka/simlink/internal/protocol"
	"github.com/1ureka/simlink/internal/session"
	"github.com/1ureka/simlink/internal/transport"
	"github.com/1ureka/simlink/internal/util"
)

func newTestServer(t *testing.T) (*Server, *httptest.Server) {
	t.Helper()
	s := New("host", func() session.State { return session.Authenticated })
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(func() {
		ts.Close()
		s.Close()
	})
	return s, ts
}

func get(t *testing.T, url string) string {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("GET %s: status %d", url, resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatal(err)
	}
	return string(body)
}

func TestHealthz(t *testing.T) {
	_, ts := newTestServer(t)
	if body := get(t, ts.URL+"/healthz"); strings.TrimSpace(body) != "ok" {
		t.Errorf("/healthz = %q", body)
	}
}

func TestMetricsExposeStats(t *testing.T) {
	_, ts := newTestServer(t)
	util.Stats.AddAuthFailure()

	body := get(t, ts.URL+"/metrics")
	for _, want := range []string{
		`simlink_auth_failures_total{role="host"}`,
		`simlink_stream_frames_sent_total{role="host"}`,
		`simlink_queue_overflows_total{role="host"}`,
		`simlink_session_state{role="host"} 3`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("/metrics missing %s", want)
		}
	}
}

func dialEvents(t *testing.T, ts *httptest.Server) (*websocket.Conn, error) {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/events"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	return conn, err
}

func waitViewer(t *testing.T, s *Server) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for !s.HasViewer() {
		if time.Now().After(deadline) {
			t.Fatal("viewer never attached")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestEventsStream(t *testing.T) {
	s, ts := newTestServer(t)

	conn, err := dialEvents(t, ts)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	waitViewer(t, s)

	s.Publish(session.Event{Kind: session.EventWelcome, Welcome: protocol.Welcome{SessionID: 4}})
	s.Publish(session.Event{Kind: session.EventDisconnected, Err: transport.ErrPeerClosed})

	conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	var first, second EventJSON
	if err := conn.ReadJSON(&first); err != nil {
		t.Fatal(err)
	}
	if err := conn.ReadJSON(&second); err != nil {
		t.Fatal(err)
	}
	if first.Kind != "welcome" || first.SessionID != 4 {
		t.Errorf("first event = %+v", first)
	}
	if second.Kind != "disconnected" || second.Error != transport.ErrPeerClosed.Error() {
		t.Errorf("second event = %+v", second)
	}
}

// TestEventsSingleViewer expects a second viewer to be closed with a policy
// violation while the first stays attached.
func TestEventsSingleViewer(t *testing.T) {
	s, ts := newTestServer(t)

	first, err := dialEvents(t, ts)
	if err != nil {
		t.Fatal(err)
	}
	defer first.Close()
	waitViewer(t, s)

	second, err := dialEvents(t, ts)
	if err != nil {
		t.Fatal(err)
	}
	defer second.Close()

	second.SetReadDeadline(time.Now().Add(3 * time.Second))
	_, _, err = second.ReadMessage()
	var ce *websocket.CloseError
	if !errors.As(err, &ce) || ce.Code != websocket.ClosePolicyViolation {
		t.Errorf("second viewer read = %v, want policy violation close", err)
	}
	if !s.HasViewer() {
		t.Error("first viewer detached")
	}
}

func TestPublishWithoutViewerDoesNotBlock(t *testing.T) {
	s, _ := newTestServer(t)
	done := make(chan struct{})
	go func() {
		for i := 0; i < eventBuffer*4; i++ {
			s.Publish(session.Event{Kind: session.EventNotice})
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("Publish blocked")
	}
}
