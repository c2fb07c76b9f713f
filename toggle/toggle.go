package toggle

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"syscall"
	"time"

	"linuxst/log"
	"linuxst/marker"
	"linuxst/session"

	"golang.org/x/sys/unix"
)

const (
	DefaultPollInterval = 100 * time.Millisecond
	DefaultReadyTimeout = 15 * time.Second
	killGrace           = 2 * time.Second
)

type Config struct {
	Marker   *marker.Marker
	StateDir string

	StopTimeout  time.Duration
	PollInterval time.Duration
	ReadyTimeout time.Duration

	// Command builds the detached recorder invocation.
	Command func() *exec.Cmd
}

func (c *Config) defaults() {
	if c.PollInterval <= 0 {
		c.PollInterval = DefaultPollInterval
	}
	if c.ReadyTimeout <= 0 {
		c.ReadyTimeout = DefaultReadyTimeout
	}
	if c.StopTimeout <= 0 {
		c.StopTimeout = 30 * time.Second
	}
}

type Action int

const (
	Started Action = iota + 1
	Stopped
)

func (a Action) String() string {
	if a == Started {
		return "started"
	}
	return "stopped"
}

type Result struct {
	Action Action
	PID    int
	// Outcome is the stopped session's record, nil if it left none.
	Outcome *session.Outcome
}

// ExitCode maps a successful toggle to the process exit status.
func (r *Result) ExitCode() int {
	if r.Outcome == nil {
		return session.ExitOK
	}
	return r.Outcome.ExitCode()
}

var errStopTimeout = errors.New("stop timeout")

type StartError struct {
	Err error
}

func (e *StartError) Error() string { return "start recorder: " + e.Err.Error() }
func (e *StartError) Unwrap() error { return e.Err }

type StopError struct {
	PID int
	Err error
}

func (e *StopError) Error() string { return fmt.Sprintf("stop pid %d: %v", e.PID, e.Err) }
func (e *StopError) Unwrap() error { return e.Err }

// ForcedTerminationTimeout reports a recorder that ignored SIGTERM and
// was killed.
type ForcedTerminationTimeout struct {
	PID     int
	Timeout time.Duration
}

func (e *ForcedTerminationTimeout) Error() string {
	return fmt.Sprintf("pid %d did not stop within %s; killed", e.PID, e.Timeout)
}

// ExitCode maps a toggle failure to the process exit status.
func ExitCode(err error) int {
	var (
		stop   *StopError
		forced *ForcedTerminationTimeout
	)
	switch {
	case err == nil:
		return session.ExitOK
	case errors.As(err, &forced):
		return session.ExitForcedKill
	case errors.As(err, &stop):
		return session.ExitStopFailed
	}
	return session.ExitFailed
}

// Toggle stops the live session if there is one and starts a detached
// recorder otherwise.
func Toggle(ctx context.Context, cfg Config) (*Result, error) {
	cfg.defaults()
	if rec := cfg.Marker.Live(); rec != nil {
		return Stop(ctx, cfg, rec)
	}
	return start(ctx, cfg)
}

func start(ctx context.Context, cfg Config) (*Result, error) {
	r, w, err := os.Pipe()
	if err != nil {
		return nil, &StartError{Err: err}
	}
	defer r.Close()

	cmd := cfg.Command()
	cmd.ExtraFiles = []*os.File{w}
	if cmd.Env == nil {
		cmd.Env = os.Environ()
	}
	cmd.Env = append(cmd.Env, ReadyFDEnv+"=3")
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
	if err := cmd.Start(); err != nil {
		w.Close()
		return nil, &StartError{Err: err}
	}
	w.Close()
	exited := make(chan struct{})
	go func() {
		cmd.Wait()
		close(exited)
	}()
	pid := cmd.Process.Pid
	log.Infof("spawned recorder pid %d", pid)

	msg := make(chan string, 1)
	go func() {
		line, _ := bufio.NewReader(r).ReadString('\n')
		msg <- strings.TrimSpace(line)
	}()

	select {
	case m := <-msg:
		switch m {
		case msgReady:
			return &Result{Action: Started, PID: pid}, nil
		case msgBusy:
			<-exited
			return stopRacer(ctx, cfg)
		}
		<-exited
		return nil, &StartError{Err: fmt.Errorf("recorder exited with status %d", cmd.ProcessState.ExitCode())}
	case <-time.After(cfg.ReadyTimeout):
		cmd.Process.Kill()
		return nil, &StartError{Err: fmt.Errorf("recorder not ready after %s", cfg.ReadyTimeout)}
	case <-ctx.Done():
		cmd.Process.Kill()
		return nil, &StartError{Err: ctx.Err()}
	}
}

// stopRacer handles a session that appeared between the liveness check
// and the recorder taking the marker: this invocation becomes a stop.
func stopRacer(ctx context.Context, cfg Config) (*Result, error) {
	rec := cfg.Marker.Live()
	if rec == nil {
		return nil, &StopError{Err: errors.New("session ended before it could be stopped")}
	}
	log.Infof("session %s started concurrently; stopping it", rec.SessionID)
	return Stop(ctx, cfg, rec)
}

// Stop sends SIGTERM to the marker holder and waits for it to exit,
// escalating to SIGKILL after cfg.StopTimeout.
func Stop(ctx context.Context, cfg Config, rec *marker.Record) (*Result, error) {
	cfg.defaults()
	pid := rec.PID
	if err := unix.Kill(pid, unix.SIGTERM); err != nil {
		if marker.Alive(pid, rec.Exe) {
			return nil, &StopError{PID: pid, Err: err}
		}
		log.Infof("pid %d already gone", pid)
		return stopped(cfg, rec), nil
	}
	log.Infof("sent SIGTERM to pid %d", pid)

	if err := waitExit(ctx, pid, rec.Exe, cfg.StopTimeout, cfg.PollInterval); err == nil {
		return stopped(cfg, rec), nil
	} else if !errors.Is(err, errStopTimeout) {
		return nil, &StopError{PID: pid, Err: err}
	}

	log.Warnf("pid %d ignored SIGTERM for %s, sending SIGKILL", pid, cfg.StopTimeout)
	if err := unix.Kill(pid, unix.SIGKILL); err != nil && marker.Alive(pid, rec.Exe) {
		return nil, &StopError{PID: pid, Err: err}
	}
	if err := waitExit(ctx, pid, rec.Exe, killGrace, cfg.PollInterval); err != nil {
		return nil, &StopError{PID: pid, Err: fmt.Errorf("still alive after SIGKILL: %w", err)}
	}
	if err := cfg.Marker.ClearDead(pid); err != nil {
		log.Errorf("clear marker after kill: %v", err)
	}
	return nil, &ForcedTerminationTimeout{PID: pid, Timeout: cfg.StopTimeout}
}

// waitExit polls until pid is gone. It returns errStopTimeout when
// timeout passes first.
func waitExit(ctx context.Context, pid int, exe string, timeout, every time.Duration) error {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	tick := time.NewTicker(every)
	defer tick.Stop()
	for {
		if !marker.Alive(pid, exe) {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-deadline.C:
			if !marker.Alive(pid, exe) {
				return nil
			}
			return errStopTimeout
		case <-tick.C:
		}
	}
}

func stopped(cfg Config, rec *marker.Record) *Result {
	res := &Result{Action: Stopped, PID: rec.PID}
	o, err := session.ReadOutcome(cfg.StateDir)
	switch {
	case err != nil:
		log.Warnf("no outcome for session %s: %v", rec.SessionID, err)
	case o.SessionID != rec.SessionID:
		log.Warnf("outcome is for session %s, expected %s", o.SessionID, rec.SessionID)
	default:
		res.Outcome = o
	}
	return res
}
