package transport

import (
	"context"
	"errors"
	"net"
	"time"
)

// Dial connects to addr within opts.ConnectTimeout. There is no retry; a
// timeout yields a *TransportError of KindConnectTimeout, any other failure
// KindSocket.
func Dial(ctx context.Context, addr string, opts Options) (*Conn, error) {
	opts = opts.withDefaults()

	d := net.Dialer{Timeout: opts.ConnectTimeout, KeepAlive: 15 * time.Second}
	nc, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		kind := KindSocket
		var ne net.Error
		if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &ne) && ne.Timeout()) {
			kind = KindConnectTimeout
		}
		return nil, &TransportError{Op: "dial", Addr: addr, Kind: kind, Err: err}
	}

	if tc, ok := nc.(*net.TCPConn); ok {
		tc.SetNoDelay(true)
		tc.SetKeepAlive(true)
	}
	return newConn(nc, opts), nil
}
