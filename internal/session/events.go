// Package session runs the Hello/Welcome handshake on both ends of a link and
// routes decoded messages between the channels and the application.
//
// Client and Host are driven by a single consumer goroutine calling Tick.
// Network goroutines only ever hand data over through bounded queues, and
// events are delivered synchronously from Tick.
package session

import (
	"errors"
	"net/netip"
	"sync"
	"sync/atomic"

	"github.com/1ureka/simlink/internal/protocol"
)

var (
	// ErrAuth reports a Hello whose token did not match the host secret.
	ErrAuth = errors.New("authentication failed")

	// ErrNotConnected is returned by outbound calls without a usable link.
	ErrNotConnected = errors.New("not connected")

	// ErrBusy is returned by Connect outside the Disconnected state.
	ErrBusy = errors.New("connect already in progress")
)

// State is the handshake state of one end.
type State int32

const (
	Disconnected State = iota
	Connecting
	AwaitingWelcome
	Authenticated
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case AwaitingWelcome:
		return "awaiting-welcome"
	case Authenticated:
		return "authenticated"
	}
	return "unknown"
}

// stateVar is the atomically published state; only the tick goroutine
// writes it.
type stateVar struct{ v atomic.Int32 }

func (s *stateVar) load() State    { return State(s.v.Load()) }
func (s *stateVar) store(st State) { s.v.Store(int32(st)) }

// EventKind identifies a lifecycle notification.
type EventKind uint8

const (
	EventWelcome          EventKind = iota // client: handshake accepted
	EventNotice                            // client: host sent a Notice
	EventConnectionFailed                  // client: connect failed
	EventDisconnected                      // either: link torn down
	EventSessionOpened                     // host: controller authenticated
	EventAuthFailed                        // host: Hello rejected
)

func (k EventKind) String() string {
	switch k {
	case EventWelcome:
		return "welcome"
	case EventNotice:
		return "notice"
	case EventConnectionFailed:
		return "connection-failed"
	case EventDisconnected:
		return "disconnected"
	case EventSessionOpened:
		return "session-opened"
	case EventAuthFailed:
		return "auth-failed"
	}
	return "unknown"
}

// Event is one notification. Only the fields relevant to Kind are set.
type Event struct {
	Kind    EventKind
	Welcome protocol.Welcome
	Notice  protocol.Notice
	Session Info
	Remote  netip.AddrPort
	Err     error
}

// Observers is an ordered list of event callbacks. Every callback sees every
// event once, in production order, on the goroutine that emitted it.
type Observers struct {
	mu   sync.Mutex
	list []func(Event)
}

// Subscribe appends fn to the list.
func (o *Observers) Subscribe(fn func(Event)) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.list = append(o.list, fn)
}

func (o *Observers) emit(e Event) {
	o.mu.Lock()
	list := o.list
	o.mu.Unlock()

	for _, fn := range list {
		fn(e)
	}
}
