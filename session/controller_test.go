package session

import (
	"context"
	"encoding/binary"
	"errors"
	"math"
	"os"
	"os/exec"
	"sync"
	"testing"
	"time"

	"linuxst/audio"
	"linuxst/backup"
	"linuxst/delivery"
	"linuxst/marker"
	"linuxst/transcriber"
)

func genTone(ms int) []byte {
	n := audio.SampleRate * ms / 1000
	buf := make([]byte, n*2)
	for i := 0; i < n; i++ {
		s := int16(12000 * math.Sin(2*math.Pi*220*float64(i)/audio.SampleRate))
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(s))
	}
	return buf
}

type fakeStrategy struct {
	name string
	err  error

	mu  sync.Mutex
	got []string
}

func (f *fakeStrategy) Name() string { return f.name }

func (f *fakeStrategy) Deliver(_ context.Context, text string) error {
	f.mu.Lock()
	f.got = append(f.got, text)
	f.mu.Unlock()
	return f.err
}

type recorder struct {
	mu     sync.Mutex
	states []State
	// onRecording runs when Recording is entered.
	onRecording func()
	violations  []string
}

func (r *recorder) Transition(s *Session, from, to State, err error) {
	r.mu.Lock()
	r.states = append(r.states, to)
	if s.HasTranscript && (to == Recording || to == Stopping || to == Transcribing) {
		r.violations = append(r.violations, "transcript set in "+to.String())
	}
	r.mu.Unlock()
	if to == Recording && r.onRecording != nil {
		r.onRecording()
	}
}

func (r *recorder) seq() []State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]State(nil), r.states...)
}

type harness struct {
	dir      string
	fake     *audio.FakeContext
	engine   *transcriber.Fake
	strategy *fakeStrategy
	rec      *recorder
	cfg      Config
	ctx      context.Context
	cancel   context.CancelFunc
}

func newHarness(t *testing.T, pcm []byte) *harness {
	t.Helper()
	dir := t.TempDir()
	h := &harness{
		dir:      dir,
		fake:     audio.NewFakeContext(pcm, false),
		engine:   transcriber.NewFake("hello world", nil),
		strategy: &fakeStrategy{name: "clipboard"},
		rec:      &recorder{},
	}
	h.ctx, h.cancel = context.WithCancel(context.Background())
	t.Cleanup(h.cancel)
	h.rec.onRecording = h.cancel
	h.cfg = Config{
		Marker:         marker.New(dir),
		Adapter:        audio.NewAdapter(h.fake),
		Detector:       audio.EnergyDetector{},
		Engine:         h.engine,
		Backup:         backup.New(dir),
		SelectDelivery: func() (delivery.Strategy, error) { return h.strategy, nil },
		StateDir:       dir,
		Observer:       h.rec,
	}
	return h
}

func (h *harness) run() (*Session, error) {
	return NewController(h.cfg).Run(h.ctx)
}

func assertStates(t *testing.T, got []State, want ...State) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("states = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("states = %v, want %v", got, want)
		}
	}
}

func assertMarkerGone(t *testing.T, h *harness) {
	t.Helper()
	if _, err := os.Stat(h.cfg.Marker.Path()); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("marker still present: %v", err)
	}
}

func TestRunDelivers(t *testing.T) {
	h := newHarness(t, genTone(600))
	s, err := h.run()
	if err != nil {
		t.Fatal(err)
	}
	assertStates(t, h.rec.seq(), Starting, Recording, Stopping, Transcribing, Delivering, Done)
	if !s.HasTranscript || s.Transcript != "hello world" {
		t.Errorf("transcript = %q (%v)", s.Transcript, s.HasTranscript)
	}
	if len(h.strategy.got) != 1 || h.strategy.got[0] != "hello world" {
		t.Errorf("delivered %v", h.strategy.got)
	}
	if calls := h.engine.Calls(); len(calls) != 1 || calls[0].Len() != len(genTone(600)) {
		t.Errorf("engine got %d calls", len(calls))
	}
	if len(h.rec.violations) > 0 {
		t.Error(h.rec.violations)
	}

	e, err := backup.New(h.dir).Load()
	if err != nil || e.Text != "hello world" || e.SessionID != s.ID {
		t.Errorf("backup = %+v, %v", e, err)
	}
	o, err := ReadOutcome(h.dir)
	if err != nil {
		t.Fatal(err)
	}
	if o.State != "done" || o.Kind != KindNone || o.ExitCode() != ExitOK || !o.TranscriptSaved {
		t.Errorf("outcome = %+v", o)
	}
	assertMarkerGone(t, h)
}

func TestRunAlreadyRunning(t *testing.T) {
	h := newHarness(t, genTone(600))
	holder := marker.Record{PID: os.Getpid(), SessionID: "holder", StartedAt: time.Now()}
	if _, err := h.cfg.Marker.Acquire(holder); err != nil {
		t.Fatal(err)
	}

	s, err := h.run()
	var running *AlreadyRunningError
	if !errors.As(err, &running) {
		t.Fatalf("err = %v, want AlreadyRunningError", err)
	}
	if running.Holder.SessionID != "holder" || s.State != Failed {
		t.Errorf("holder=%+v state=%v", running.Holder, s.State)
	}
	if ExitCode(err) != ExitAlreadyRunning {
		t.Errorf("exit = %d", ExitCode(err))
	}
	rec, _ := h.cfg.Marker.Read()
	if rec == nil || rec.SessionID != "holder" {
		t.Errorf("marker = %+v, want untouched holder", rec)
	}
	if _, err := ReadOutcome(h.dir); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("outcome written for rejected session: %v", err)
	}
	if len(h.engine.Calls()) != 0 {
		t.Error("engine called")
	}
	assertStates(t, h.rec.seq(), Starting, Failed)
}

func TestRunRecoversStaleMarker(t *testing.T) {
	h := newHarness(t, genTone(600))
	cmd := exec.Command("true")
	if err := cmd.Run(); err != nil {
		t.Skip(err)
	}
	if _, err := h.cfg.Marker.Acquire(marker.Record{PID: cmd.Process.Pid, SessionID: "dead"}); err != nil {
		t.Fatal(err)
	}
	if _, err := h.run(); err != nil {
		t.Fatalf("run after stale marker: %v", err)
	}
	assertMarkerGone(t, h)
}

func TestRunEmptyRecordings(t *testing.T) {
	tests := []struct {
		name   string
		pcm    []byte
		reason EmptyReason
	}{
		{"too short", genTone(100), TooShort},
		{"nothing captured", nil, TooShort},
		{"silence", make([]byte, audio.SampleRate), NoSpeech},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, tt.pcm)
			s, err := h.run()
			var empty *EmptyRecordingError
			if !errors.As(err, &empty) || empty.Reason != tt.reason {
				t.Fatalf("err = %v, want empty recording (%s)", err, tt.reason)
			}
			assertStates(t, h.rec.seq(), Starting, Recording, Stopping, Failed)
			if len(h.engine.Calls()) != 0 {
				t.Error("engine called for empty recording")
			}
			if s.HasTranscript {
				t.Error("transcript set")
			}
			if ExitCode(err) != ExitEmpty {
				t.Errorf("exit = %d", ExitCode(err))
			}
			assertMarkerGone(t, h)
		})
	}
}

func TestRunMinimumDurationBoundary(t *testing.T) {
	h := newHarness(t, genTone(320))
	if _, err := h.run(); err != nil {
		t.Fatalf("320ms recording rejected: %v", err)
	}
}

func TestRunBlankTranscript(t *testing.T) {
	h := newHarness(t, genTone(600))
	h.engine.Text = "[BLANK_AUDIO]"
	s, err := h.run()
	var empty *EmptyRecordingError
	if !errors.As(err, &empty) || empty.Reason != BlankResult {
		t.Fatalf("err = %v", err)
	}
	if s.HasTranscript {
		t.Error("transcript set for blank result")
	}
	if _, err := backup.New(h.dir).Load(); !errors.Is(err, backup.ErrNoBackup) {
		t.Errorf("backup written for blank result: %v", err)
	}
	if len(h.strategy.got) != 0 {
		t.Error("blank result delivered")
	}
}

func TestRunTranscriptionError(t *testing.T) {
	h := newHarness(t, genTone(600))
	h.engine.Err = errors.New("model missing")
	s, err := h.run()
	var te *TranscriptionError
	if !errors.As(err, &te) {
		t.Fatalf("err = %v", err)
	}
	calls := h.engine.Calls()
	if len(calls) != 1 {
		t.Fatalf("engine called %d times, want 1", len(calls))
	}
	if calls[0].Len() != 0 || s.Buffer.Len() != 0 {
		t.Errorf("audio kept after transcription error: %d bytes", s.Buffer.Len())
	}
	if s.HasTranscript || ExitCode(err) != ExitTranscription {
		t.Errorf("HasTranscript=%v exit=%d", s.HasTranscript, ExitCode(err))
	}
	o, _ := ReadOutcome(h.dir)
	if o == nil || o.Kind != KindTranscription || o.Message == "" || o.AudioSeconds < 0.5 {
		t.Errorf("outcome = %+v", o)
	}
	assertMarkerGone(t, h)
}

func TestRunDeliveryFailureIsSoft(t *testing.T) {
	h := newHarness(t, genTone(600))
	h.strategy.name = "keystroke"
	h.strategy.err = errors.New("no focused window")
	s, err := h.run()
	var de *DeliveryError
	if !errors.As(err, &de) || de.Strategy != "keystroke" {
		t.Fatalf("err = %v", err)
	}
	if !s.HasTranscript || !s.Saved {
		t.Error("transcript lost on delivery failure")
	}
	if ExitCode(err) != ExitOK {
		t.Errorf("exit = %d, want 0", ExitCode(err))
	}
	if len(h.strategy.got) != 1 {
		t.Errorf("delivery attempted %d times, want 1", len(h.strategy.got))
	}
	if e, err := backup.New(h.dir).Load(); err != nil || e.Text != "hello world" {
		t.Errorf("backup = %+v, %v", e, err)
	}
}

func TestRunDeliverySelectionError(t *testing.T) {
	h := newHarness(t, genTone(600))
	h.cfg.SelectDelivery = func() (delivery.Strategy, error) { return nil, delivery.ErrNotX11 }
	_, err := h.run()
	if !errors.Is(err, delivery.ErrNotX11) || KindOf(err) != KindDelivery {
		t.Fatalf("err = %v", err)
	}
}

func TestRunDeviceNotFound(t *testing.T) {
	h := newHarness(t, genTone(600))
	h.fake.DeviceList = []audio.DeviceInfo{{ID: "a", Name: "Mic A"}}
	h.cfg.Device = audio.ParseSelector("Mic Z")
	_, err := h.run()
	var nf *audio.DeviceNotFoundError
	if !errors.As(err, &nf) {
		t.Fatalf("err = %v", err)
	}
	assertStates(t, h.rec.seq(), Starting, Failed)
	if ExitCode(err) != ExitDevice {
		t.Errorf("exit = %d", ExitCode(err))
	}
	assertMarkerGone(t, h)
}

func TestRunCaptureFailure(t *testing.T) {
	h := newHarness(t, genTone(600))
	h.fake.FailWith = errors.New("stream died")
	h.rec.onRecording = nil
	_, err := h.run()
	var ce *CaptureError
	if !errors.As(err, &ce) {
		t.Fatalf("err = %v", err)
	}
	assertStates(t, h.rec.seq(), Starting, Recording, Failed)
	assertMarkerGone(t, h)
}

func TestRunCaptureStartFailure(t *testing.T) {
	h := newHarness(t, genTone(600))
	h.fake.StartErr = errors.New("pulse unavailable")
	_, err := h.run()
	if KindOf(err) != KindCapture {
		t.Fatalf("err = %v", err)
	}
}

func TestRunMaxDuration(t *testing.T) {
	h := newHarness(t, genTone(600))
	h.rec.onRecording = nil
	h.cfg.MaxDuration = 50 * time.Millisecond
	if _, err := h.run(); err != nil {
		t.Fatal(err)
	}
	assertStates(t, h.rec.seq(), Starting, Recording, Stopping, Transcribing, Delivering, Done)
}

func TestRunStopDuringTranscriptionIgnored(t *testing.T) {
	h := newHarness(t, genTone(600))
	h.engine.Block = make(chan struct{})

	done := make(chan error, 1)
	go func() {
		_, err := h.run()
		done <- err
	}()

	waitFor(t, func() bool { return len(h.engine.Calls()) == 1 })
	h.cancel()
	close(h.engine.Block)
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("run did not finish")
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestKindExitCodes(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{nil, ExitOK},
		{&DeliveryError{Err: errors.New("x")}, ExitOK},
		{&AlreadyRunningError{}, ExitAlreadyRunning},
		{&audio.DeviceNotFoundError{Selector: "x"}, ExitDevice},
		{&CaptureError{Err: errors.New("x")}, ExitDevice},
		{&EmptyRecordingError{Reason: NoSpeech}, ExitEmpty},
		{&TranscriptionError{Engine: "e", Err: errors.New("x")}, ExitTranscription},
		{errors.New("other"), ExitFailed},
	}
	for _, tt := range tests {
		if got := ExitCode(tt.err); got != tt.want {
			t.Errorf("ExitCode(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}
