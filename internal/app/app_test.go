package app

import (
	"context"
	"errors"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/1ureka/simlink/internal/config"
	"github.com/1ureka/simlink/internal/protocol"
	"github.com/1ureka/simlink/internal/transport"
)

func TestRunClientConnectionFailed(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	port := uint16(ln.Addr().(*net.TCPAddr).Port)
	ln.Close()

	cfg := config.Default()
	cfg.ServerHost = "127.0.0.1"
	cfg.TCPPort = port
	cfg.ConnectTimeout = time.Second

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err = RunClient(ctx, cfg, protocol.Input{}, nil)
	var te *transport.TransportError
	if !errors.As(err, &te) {
		t.Fatalf("RunClient = %v, want *TransportError", err)
	}
}

func TestRunClientRejectsBadInput(t *testing.T) {
	err := RunClient(context.Background(), config.Default(), protocol.Input{Throttle: 2}, nil)
	if err == nil || !strings.Contains(err.Error(), "initial input") {
		t.Errorf("RunClient = %v, want initial input error", err)
	}
}
