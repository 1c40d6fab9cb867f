// Package util provides logging and traffic counters shared by every layer.
package util

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/pterm/pterm"
)

// ──────────────────────────────────────────────────────────────────────────────
// Global stats singleton
// ──────────────────────────────────────────────────────────────────────────────

// Stats is the process-wide traffic and diagnostic counter set. Counters are
// cumulative since process start.
var Stats = &stats{}

type stats struct {
	StreamFramesSent atomic.Int64 // frames written to the reliable channel
	StreamFramesRecv atomic.Int64 // frames read from the reliable channel
	StreamBytesSent  atomic.Int64
	StreamBytesRecv  atomic.Int64

	DatagramsSent   atomic.Int64
	DatagramsRecv   atomic.Int64 // accepted into the inbound queue
	DatagramBytes   atomic.Int64 // sent + received
	DatagramsBad    atomic.Int64 // short, unknown type, or undecodable
	DatagramsLossed atomic.Int64 // dropped by synthetic loss injection

	QueueOverflows atomic.Int64 // items dropped because a bounded queue was full
	StaleRejected  atomic.Int64 // unordered updates rejected by the freshness rule

	SessionsOpened atomic.Int64
	SessionsClosed atomic.Int64
	AuthFailures   atomic.Int64
}

func (s *stats) AddStreamSent(n int) {
	s.StreamFramesSent.Add(1)
	s.StreamBytesSent.Add(int64(n))
}

func (s *stats) AddStreamRecv(n int) {
	s.StreamFramesRecv.Add(1)
	s.StreamBytesRecv.Add(int64(n))
}

func (s *stats) AddDatagramSent(n int) {
	s.DatagramsSent.Add(1)
	s.DatagramBytes.Add(int64(n))
}

func (s *stats) AddDatagramRecv(n int) {
	s.DatagramsRecv.Add(1)
	s.DatagramBytes.Add(int64(n))
}

func (s *stats) AddBadDatagram()  { s.DatagramsBad.Add(1) }
func (s *stats) AddLossInjected() { s.DatagramsLossed.Add(1) }
func (s *stats) AddOverflow()     { s.QueueOverflows.Add(1) }
func (s *stats) AddStale()        { s.StaleRejected.Add(1) }
func (s *stats) AddSession()      { s.SessionsOpened.Add(1) }
func (s *stats) RemoveSession()   { s.SessionsClosed.Add(1) }
func (s *stats) AddAuthFailure()  { s.AuthFailures.Add(1) }

// ──────────────────────────────────────────────────────────────────────────────
// Periodic reporter
// ──────────────────────────────────────────────────────────────────────────────

// StartStatsReporter launches a goroutine that logs channel statistics every
// interval. Quiet intervals are skipped. It stops when ctx is cancelled.
func StartStatsReporter(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		secs := interval.Seconds()
		var prev snapshot
		for {
			select {
			case <-ticker.C:
				cur := takeSnapshot()
				if cur != prev {
					pterm.DefaultLogger.Info(formatStats(cur.delta(prev), secs))
				}
				prev = cur

			case <-ctx.Done():
				return
			}
		}
	}()
}

type snapshot struct {
	streamBytes, datagrams, datagramBytes, overflows, stale, lossed int64
}

func takeSnapshot() snapshot {
	return snapshot{
		streamBytes:   Stats.StreamBytesSent.Load() + Stats.StreamBytesRecv.Load(),
		datagrams:     Stats.DatagramsSent.Load() + Stats.DatagramsRecv.Load(),
		datagramBytes: Stats.DatagramBytes.Load(),
		overflows:     Stats.QueueOverflows.Load(),
		stale:         Stats.StaleRejected.Load(),
		lossed:        Stats.DatagramsLossed.Load(),
	}
}

func (s snapshot) delta(prev snapshot) snapshot {
	return snapshot{
		streamBytes:   s.streamBytes - prev.streamBytes,
		datagrams:     s.datagrams - prev.datagrams,
		datagramBytes: s.datagramBytes - prev.datagramBytes,
		overflows:     s.overflows - prev.overflows,
		stale:         s.stale - prev.stale,
		lossed:        s.lossed - prev.lossed,
	}
}

// byteUnits defines the units for formatting byte counts in a human-readable way.
var byteUnits = []string{"B", "KiB", "MiB", "GiB", "TiB", "PiB"}

// formatBytes formats a byte count into a human-readable string with fixed width (exactly 8 chars)
// for example: "99.0   B", " 1.5 KiB", " 0.1 MiB", "98.9 GiB", etc.
func formatBytes(b float64) string {
	unitIdx := 0

	// to prevent "100.0 KiB", which is 9 chars
	for b > 99 && unitIdx < 5 {
		b /= 1024
		unitIdx++
	}

	return fmt.Sprintf("%4.1f %3s", b, byteUnits[unitIdx])
}

// formatStats renders one reporter line from the per-interval deltas.
func formatStats(d snapshot, secs float64) string {
	return fmt.Sprintf("TCP: %s/s | UDP: %s/s (%5.1f pkt/s) | stale %d | lost %d | overflow %d",
		formatBytes(float64(d.streamBytes)/secs),
		formatBytes(float64(d.datagramBytes)/secs),
		float64(d.datagrams)/secs,
		d.stale,
		d.lossed,
		d.overflows,
	)
}
