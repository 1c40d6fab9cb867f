package transport

import (
	"context"
	"errors"
	"net"
	"sync"
	"time"

	"github.com/1ureka/simlink/internal/queue"
	"github.com/1ureka/simlink/internal/util"
)

// acceptQueueCapacity bounds connections accepted but not yet adopted by the
// consumer.
const acceptQueueCapacity = 4

// Listener accepts reliable connections and keeps at most one of them
// active: a newly accepted connection replaces (and closes) the previous one.
type Listener struct {
	ln   net.Listener
	opts Options

	accepted *queue.Ring[*Conn]

	mu     sync.Mutex
	active *Conn

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Listen binds addr and starts the accept loop.
func Listen(addr string, opts Options) (*Listener, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, &TransportError{Op: "listen", Addr: addr, Kind: KindBind, Err: err}
	}

	ctx, cancel := context.WithCancel(context.Background())
	l := &Listener{
		ln:       ln,
		opts:     opts.withDefaults(),
		accepted: queue.New[*Conn](acceptQueueCapacity),
		ctx:      ctx,
		cancel:   cancel,
	}

	l.wg.Add(1)
	go l.acceptLoop()

	util.LogInfo("listening for controllers on tcp %s", ln.Addr())
	return l, nil
}

// Addr returns the bound address.
func (l *Listener) Addr() net.Addr { return l.ln.Addr() }

// TryAccept pops the next accepted connection, if any.
func (l *Listener) TryAccept() (*Conn, bool) {
	return l.accepted.TryDequeue()
}

// Active returns the current connection, or nil.
func (l *Listener) Active() *Conn {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.active
}

func (l *Listener) acceptLoop() {
	defer l.wg.Done()

	for {
		nc, err := l.ln.Accept()
		if err != nil {
			if l.ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return
			}
			util.LogWarning("accept failed: %v", err)
			select {
			case <-time.After(retryDelay):
			case <-l.ctx.Done():
				return
			}
			continue
		}

		c := newConn(nc, l.opts)

		l.mu.Lock()
		prev := l.active
		l.active = c
		l.mu.Unlock()

		if prev != nil {
			util.LogInfo("controller %s replaces %s", c.RemoteEndpoint(), prev.RemoteEndpoint())
			prev.shutdown(ErrReplaced)
		}

		if !l.accepted.TryEnqueue(c) {
			util.Stats.AddOverflow()
			util.LogWarning("accept %v, closing %s", ErrQueueOverflow, c.RemoteEndpoint())
			c.shutdown(ErrQueueOverflow)
		}
	}
}

// Close stops accepting and closes the active connection.
func (l *Listener) Close() error {
	l.cancel()
	err := l.ln.Close()

	l.mu.Lock()
	active := l.active
	l.active = nil
	l.mu.Unlock()
	if active != nil {
		active.Close()
	}

	l.wg.Wait()
	for {
		c, ok := l.accepted.TryDequeue()
		if !ok {
			break
		}
		c.Close()
	}
	return err
}
