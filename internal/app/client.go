package app

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"time"

	"github.com/1ureka/simlink/internal/config"
	"github.com/1ureka/simlink/internal/protocol"
	"github.com/1ureka/simlink/internal/session"
	"github.com/1ureka/simlink/internal/util"
)

// RunClient orchestrates the full controller lifecycle:
//  1. Connect and authenticate in the background
//  2. Send the current driving input at the input rate once authenticated
//  3. Apply commands read line by line from commands
//  4. Return on quit, on disconnect, on a rejected token or when ctx is done
func RunClient(ctx context.Context, cfg *config.Config, input protocol.Input, commands io.Reader) error {
	if err := input.Validate(); err != nil {
		return fmt.Errorf("initial input: %w", err)
	}

	client := session.NewClient(cfg, protocol.NewStopwatch())
	defer client.Close()

	// Events arrive synchronously from client.Tick on this goroutine.
	var exitErr error
	done := false
	client.Subscribe(func(e session.Event) {
		switch e.Kind {
		case session.EventConnectionFailed:
			exitErr, done = e.Err, true
		case session.EventNotice:
			if e.Notice.Code == protocol.NoticeAuthFailure {
				exitErr, done = fmt.Errorf("%w: %s", session.ErrAuth, e.Notice.Text), true
			}
		case session.EventDisconnected:
			if !done {
				exitErr, done = e.Err, true
			}
		}
	})
	stopMonitor, err := startMonitor(cfg, "client", client.State, &client.Observers)
	if err != nil {
		return err
	}
	defer stopMonitor()

	if err := client.Connect(); err != nil {
		return err
	}
	util.StartStatsReporter(ctx, cfg.StatsInterval)

	ctl := &controller{client: client, input: input}
	cmds := readCommands(ctx, commands)

	inputTicker := time.NewTicker(config.TickInterval(cfg.InputRate))
	defer inputTicker.Stop()
	statusTicker := time.NewTicker(statusInterval)
	defer statusTicker.Stop()

	for !done && !ctl.quit {
		select {
		case <-inputTicker.C:
			client.Tick()
			if client.State() == session.Authenticated {
				if err := client.SendInput(ctl.input); err != nil {
					util.LogWarning("send input: %v", err)
				}
			}

		case cmd, ok := <-cmds:
			if !ok {
				cmds = nil
				continue
			}
			if err := cmd(ctl); err != nil {
				util.LogWarning("%v", err)
			}

		case <-statusTicker.C:
			if st, ok := client.LatestState(); ok {
				util.LogInfo("%5.1f km/h | %4.0f rpm | gear %d | indicator %s | acked input %d",
					st.SpeedKmh, st.RPM, st.Gear, st.Indicator, st.LastProcessedInputSeq)
			}

		case <-ctx.Done():
			return nil
		}
	}
	return exitErr
}

// readCommands parses lines from r on its own goroutine and hands the
// resulting commands to the loop. Parse errors are logged and skipped.
func readCommands(ctx context.Context, r io.Reader) <-chan command {
	out := make(chan command, 16)
	if r == nil {
		return out
	}
	go func() {
		defer close(out)
		sc := bufio.NewScanner(r)
		for sc.Scan() {
			cmd, err := parseCommand(sc.Text())
			if err != nil {
				util.LogWarning("%v", err)
				continue
			}
			if cmd == nil {
				continue
			}
			select {
			case out <- cmd:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}
