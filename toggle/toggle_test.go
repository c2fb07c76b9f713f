package toggle

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"syscall"
	"testing"
	"time"

	"linuxst/marker"
	"linuxst/session"
)

const helperEnv = "LINUXST_TOGGLE_HELPER"

// TestHelperProcess stands in for a detached recorder. It is a no-op
// unless run as a subprocess by the tests below.
func TestHelperProcess(t *testing.T) {
	mode := os.Getenv(helperEnv)
	if mode == "" {
		return
	}
	os.Exit(runHelper(mode, os.Getenv("LINUXST_STATE_DIR")))
}

func runHelper(mode, dir string) int {
	ready := ReadinessFromEnv()
	switch mode {
	case "crash":
		return 1
	case "busy":
		ready.Busy()
		return session.ExitAlreadyRunning
	}

	m := marker.New(dir)
	rec := marker.Record{PID: os.Getpid(), SessionID: fmt.Sprintf("helper-%d", os.Getpid()), StartedAt: time.Now()}
	if _, err := m.Acquire(rec); err != nil {
		ready.Busy()
		return session.ExitAlreadyRunning
	}

	sigs := make(chan os.Signal, 4)
	signal.Notify(sigs, syscall.SIGTERM)
	ready.Ready()

	if mode == "stubborn" {
		for range sigs {
		}
	}
	<-sigs
	session.WriteOutcome(dir, session.Outcome{
		SessionID: rec.SessionID,
		PID:       rec.PID,
		State:     "failed",
		Kind:      session.KindEmpty,
	})
	m.Release(rec)
	return 0
}

func testConfig(t *testing.T, mode string) Config {
	t.Helper()
	dir := t.TempDir()
	return Config{
		Marker:       marker.New(dir),
		StateDir:     dir,
		StopTimeout:  2 * time.Second,
		PollInterval: 20 * time.Millisecond,
		ReadyTimeout: 5 * time.Second,
		Command: func() *exec.Cmd {
			cmd := exec.Command(os.Args[0], "-test.run=^TestHelperProcess$")
			cmd.Env = append(os.Environ(), helperEnv+"="+mode, "LINUXST_STATE_DIR="+dir)
			return cmd
		},
	}
}

// spawnHolder starts a recorder through Toggle and kills it at cleanup.
func spawnHolder(t *testing.T, cfg Config) {
	t.Helper()
	res, err := Toggle(context.Background(), cfg)
	if err != nil {
		t.Fatal(err)
	}
	if res.Action != Started {
		t.Fatalf("action = %v, want started", res.Action)
	}
	p, _ := os.FindProcess(res.PID)
	t.Cleanup(func() { p.Kill() })
}

func TestToggleStartThenStop(t *testing.T) {
	cfg := testConfig(t, "normal")
	spawnHolder(t, cfg)

	rec := cfg.Marker.Live()
	if rec == nil {
		t.Fatal("no live marker after start")
	}

	res, err := Toggle(context.Background(), cfg)
	if err != nil {
		t.Fatal(err)
	}
	if res.Action != Stopped || res.PID != rec.PID {
		t.Errorf("result = %+v", res)
	}
	if res.Outcome == nil || res.Outcome.SessionID != rec.SessionID {
		t.Fatalf("outcome = %+v", res.Outcome)
	}
	if res.ExitCode() != session.ExitEmpty {
		t.Errorf("exit = %d, want %d", res.ExitCode(), session.ExitEmpty)
	}
	if cfg.Marker.Live() != nil {
		t.Error("marker still live after stop")
	}
}

func TestToggleForcedKill(t *testing.T) {
	cfg := testConfig(t, "stubborn")
	cfg.StopTimeout = 300 * time.Millisecond
	spawnHolder(t, cfg)
	rec := cfg.Marker.Live()
	if rec == nil {
		t.Fatal("no live marker after start")
	}

	start := time.Now()
	_, err := Toggle(context.Background(), cfg)
	var forced *ForcedTerminationTimeout
	if !errors.As(err, &forced) {
		t.Fatalf("err = %v, want ForcedTerminationTimeout", err)
	}
	if forced.PID != rec.PID {
		t.Errorf("PID = %d, want %d", forced.PID, rec.PID)
	}
	if time.Since(start) < cfg.StopTimeout {
		t.Error("killed before the stop timeout")
	}
	if ExitCode(err) != session.ExitForcedKill {
		t.Errorf("exit = %d", ExitCode(err))
	}
	if _, err := cfg.Marker.Read(); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("marker not cleared after kill: %v", err)
	}
}

func TestToggleStartFailure(t *testing.T) {
	cfg := testConfig(t, "crash")
	_, err := Toggle(context.Background(), cfg)
	var se *StartError
	if !errors.As(err, &se) {
		t.Fatalf("err = %v, want StartError", err)
	}
	if ExitCode(err) != session.ExitFailed {
		t.Errorf("exit = %d", ExitCode(err))
	}
}

func TestToggleBusyBecomesStop(t *testing.T) {
	cfg := testConfig(t, "normal")
	spawnHolder(t, cfg)
	holder := cfg.Marker.Live()
	if holder == nil {
		t.Fatal("no holder")
	}

	// A recorder that lost the race reports busy; the toggle stops the winner.
	busy := testConfig(t, "busy")
	busy.Marker = cfg.Marker
	busy.StateDir = cfg.StateDir
	busy.defaults()
	res, err := start(context.Background(), busy)
	if err != nil {
		t.Fatal(err)
	}
	if res.Action != Stopped || res.PID != holder.PID {
		t.Errorf("result = %+v", res)
	}
}

func TestStopDeadHolder(t *testing.T) {
	cfg := testConfig(t, "normal")
	cmd := exec.Command("true")
	if err := cmd.Run(); err != nil {
		t.Skip(err)
	}
	res, err := Stop(context.Background(), cfg, &marker.Record{PID: cmd.Process.Pid, SessionID: "gone"})
	if err != nil {
		t.Fatal(err)
	}
	if res.Action != Stopped || res.Outcome != nil {
		t.Errorf("result = %+v", res)
	}
}

func TestExitCodes(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{nil, 0},
		{&StopError{PID: 1, Err: errors.New("x")}, 4},
		{&ForcedTerminationTimeout{PID: 1}, 5},
		{&StartError{Err: errors.New("x")}, 1},
	}
	for _, tt := range tests {
		if got := ExitCode(tt.err); got != tt.want {
			t.Errorf("ExitCode(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}

func TestReadinessNil(t *testing.T) {
	var r *Readiness
	r.Ready()
	r.Busy()
	r.Close()
}

func TestReadinessFromEnvIgnoresStdio(t *testing.T) {
	t.Setenv(ReadyFDEnv, "1")
	if r := ReadinessFromEnv(); r != nil {
		t.Error("stdout accepted as readiness pipe")
	}
}
