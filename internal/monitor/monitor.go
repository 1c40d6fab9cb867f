// Package monitor serves link diagnostics over HTTP: a health probe,
// prometheus metrics built from the util.Stats counters and a websocket feed
// of session events for a single viewer.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/1ureka/simlink/internal/session"
	"github.com/1ureka/simlink/internal/util"
)

const (
	eventBuffer  = 64
	writeTimeout = 5 * time.Second
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// EventJSON is the wire form of a session event on /events.
type EventJSON struct {
	Kind       string `json:"kind"`
	Time       string `json:"time"`
	SessionID  uint32 `json:"sessionId,omitempty"`
	Name       string `json:"name,omitempty"`
	Remote     string `json:"remote,omitempty"`
	NoticeCode uint8  `json:"noticeCode,omitempty"`
	NoticeText string `json:"noticeText,omitempty"`
	Error      string `json:"error,omitempty"`
}

func toJSON(e session.Event, now time.Time) EventJSON {
	out := EventJSON{Kind: e.Kind.String(), Time: now.UTC().Format(time.RFC3339Nano)}
	switch {
	case e.Welcome.SessionID != 0:
		out.SessionID = e.Welcome.SessionID
	case e.Session.ID != 0:
		out.SessionID = e.Session.ID
		out.Name = e.Session.DisplayName
	}
	if e.Remote.IsValid() {
		out.Remote = e.Remote.String()
	}
	if e.Kind == session.EventNotice {
		out.NoticeCode = e.Notice.Code
		out.NoticeText = e.Notice.Text
	}
	if e.Err != nil {
		out.Error = e.Err.Error()
	}
	return out
}

// Server is the diagnostics endpoint. Publish may be subscribed directly as a
// session observer.
type Server struct {
	reg    *prometheus.Registry
	mux    *http.ServeMux
	events chan EventJSON

	mu     sync.Mutex
	viewer *websocket.Conn
	srv    *http.Server

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New builds the handlers. state reports the current handshake state for
// the session gauge.
func New(role string, state func() session.State) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		reg:    prometheus.NewRegistry(),
		mux:    http.NewServeMux(),
		events: make(chan EventJSON, eventBuffer),
		ctx:    ctx,
		cancel: cancel,
	}
	s.register(role, state)

	s.mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		_, _ = fmt.Fprintln(w, "ok")
	})
	s.mux.Handle("/metrics", promhttp.HandlerFor(s.reg, promhttp.HandlerOpts{}))
	s.mux.HandleFunc("/events", s.handleEvents)

	s.wg.Add(1)
	go s.pump()
	return s
}

// register exposes every util.Stats counter as a CounterFunc so the hot paths
// keep a single atomic increment.
func (s *Server) register(role string, state func() session.State) {
	counters := []struct {
		name, help string
		load       func() int64
	}{
		{"stream_frames_sent_total", "Frames written to the reliable channel.", util.Stats.StreamFramesSent.Load},
		{"stream_frames_received_total", "Frames read from the reliable channel.", util.Stats.StreamFramesRecv.Load},
		{"stream_bytes_sent_total", "Bytes written to the reliable channel.", util.Stats.StreamBytesSent.Load},
		{"stream_bytes_received_total", "Bytes read from the reliable channel.", util.Stats.StreamBytesRecv.Load},
		{"datagrams_sent_total", "Datagrams sent.", util.Stats.DatagramsSent.Load},
		{"datagrams_received_total", "Datagrams accepted into the inbound queue.", util.Stats.DatagramsRecv.Load},
		{"datagram_bytes_total", "Datagram bytes sent and received.", util.Stats.DatagramBytes.Load},
		{"datagrams_malformed_total", "Datagrams discarded as short, unknown, filtered or undecodable.", util.Stats.DatagramsBad.Load},
		{"datagrams_loss_injected_total", "Datagrams dropped by synthetic loss injection.", util.Stats.DatagramsLossed.Load},
		{"queue_overflows_total", "Items dropped because a bounded queue was full.", util.Stats.QueueOverflows.Load},
		{"stale_rejected_total", "Unordered updates rejected by the freshness rule.", util.Stats.StaleRejected.Load},
		{"sessions_opened_total", "Sessions authenticated.", util.Stats.SessionsOpened.Load},
		{"sessions_closed_total", "Authenticated sessions that ended.", util.Stats.SessionsClosed.Load},
		{"auth_failures_total", "Hello messages rejected for a bad token.", util.Stats.AuthFailures.Load},
	}

	labels := prometheus.Labels{"role": role}
	for _, c := range counters {
		load := c.load
		s.reg.MustRegister(prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace:   "simlink",
			Name:        c.name,
			Help:        c.help,
			ConstLabels: labels,
		}, func() float64 { return float64(load()) }))
	}

	s.reg.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace:   "simlink",
		Name:        "session_state",
		Help:        "Handshake state: 0 disconnected, 1 connecting, 2 awaiting welcome, 3 authenticated.",
		ConstLabels: labels,
	}, func() float64 { return float64(state()) }))
}

// Handler returns the HTTP handler with all endpoints.
func (s *Server) Handler() http.Handler { return s.mux }

// Start serves on addr in the background and returns the bound address.
func (s *Server) Start(addr string) (net.Addr, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to start monitor: %w", err)
	}

	srv := &http.Server{Handler: s.mux, ReadHeaderTimeout: 5 * time.Second}
	s.mu.Lock()
	s.srv = srv
	s.mu.Unlock()

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			util.LogError("monitor stopped: %v", err)
		}
	}()
	util.LogInfo("monitor listening on http://%s (/healthz, /metrics, /events)", ln.Addr())
	return ln.Addr(), nil
}

// Publish queues e for the viewer. It never blocks; events are dropped when
// no viewer keeps up.
func (s *Server) Publish(e session.Event) {
	select {
	case s.events <- toJSON(e, time.Now()):
	default:
	}
}

// HasViewer reports whether an /events client is attached.
func (s *Server) HasViewer() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.viewer != nil
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	// Only one viewer at a time.
	s.mu.Lock()
	if s.viewer != nil {
		s.mu.Unlock()
		conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "already connected"))
		conn.Close()
		return
	}
	s.viewer = conn
	s.mu.Unlock()
	util.LogDebug("monitor viewer attached from %s", r.RemoteAddr)

	// The viewer never sends anything useful; reading detects its close.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}

	s.mu.Lock()
	if s.viewer == conn {
		s.viewer = nil
	}
	s.mu.Unlock()
	conn.Close()
	util.LogDebug("monitor viewer detached")
}

// pump is the single writer of the viewer connection.
func (s *Server) pump() {
	defer s.wg.Done()

	for {
		select {
		case e := <-s.events:
			s.mu.Lock()
			conn := s.viewer
			s.mu.Unlock()
			if conn == nil {
				continue
			}
			conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.WriteJSON(e); err != nil {
				util.LogDebug("monitor write: %v", err)
				conn.Close()
			}
		case <-s.ctx.Done():
			return
		}
	}
}

// Close stops the server and disconnects the viewer.
func (s *Server) Close() error {
	s.cancel()
	s.wg.Wait()

	s.mu.Lock()
	srv, viewer := s.srv, s.viewer
	s.mu.Unlock()

	if viewer != nil {
		viewer.Close()
	}
	if srv != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		return srv.Shutdown(ctx)
	}
	return nil
}
