package session

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"linuxst/audio"
	"linuxst/backup"
	"linuxst/delivery"
	"linuxst/log"
	"linuxst/marker"
	"linuxst/transcriber"

	"github.com/google/uuid"
)

// DefaultMinDuration is five 1024-frame chunks at 16 kHz.
const DefaultMinDuration = 5 * audio.ChunkFrames * time.Second / audio.SampleRate

type Config struct {
	Marker   *marker.Marker
	Adapter  *audio.Adapter
	Device   audio.DeviceSelector
	Capture  audio.CaptureConfig
	Detector audio.SpeechDetector
	Engine   transcriber.Engine
	Backup   *backup.Store

	// SelectDelivery is called once the transcript exists.
	SelectDelivery func() (delivery.Strategy, error)

	// StateDir receives the outcome record. Empty disables it.
	StateDir string

	MinDuration       time.Duration
	MaxDuration       time.Duration // 0 records until stopped
	TranscribeTimeout time.Duration // 0 waits for the engine

	Observer Observer
	// Ready is called once capture is running.
	Ready func()
}

type Controller struct {
	cfg Config
	now func() time.Time
}

func NewController(cfg Config) *Controller {
	if cfg.MinDuration <= 0 {
		cfg.MinDuration = DefaultMinDuration
	}
	if cfg.Capture == (audio.CaptureConfig{}) {
		cfg.Capture = audio.DefaultCaptureConfig()
	}
	return &Controller{cfg: cfg, now: time.Now}
}

func (c *Controller) transition(s *Session, to State, err error) {
	from := s.State
	s.State = to
	if err != nil {
		s.Err = err
	}
	log.Transition(from.String(), to.String(), err)
	if c.cfg.Observer != nil {
		c.cfg.Observer.Transition(s, from, to, err)
	}
}

func (c *Controller) fail(s *Session, err error) (*Session, error) {
	c.transition(s, Failed, err)
	return s, err
}

// Run drives one session from Starting to Done or Failed. Cancelling ctx
// is the stop request: it ends Recording and is ignored afterwards.
func (c *Controller) Run(ctx context.Context) (*Session, error) {
	s := &Session{
		ID:        uuid.NewString(),
		State:     Starting,
		PID:       os.Getpid(),
		StartedAt: c.now(),
	}
	log.SetSession(s.ID)
	if c.cfg.Observer != nil {
		c.cfg.Observer.Transition(s, Starting, Starting, nil)
	}

	exe, _ := os.Executable()
	rec := marker.Record{PID: s.PID, SessionID: s.ID, StartedAt: s.StartedAt, Exe: exe}
	stale, err := c.cfg.Marker.Acquire(rec)
	if stale != nil {
		log.Warnf("recovered: %v", &StaleMarkerError{Stale: stale})
	}
	if err != nil {
		var held *marker.HeldError
		if errors.As(err, &held) {
			return c.fail(s, &AlreadyRunningError{Holder: held.Holder})
		}
		return c.fail(s, fmt.Errorf("acquire marker: %w", err))
	}
	defer func() {
		c.finish(s)
		if err := c.cfg.Marker.Release(rec); err != nil {
			log.Errorf("release marker: %v", err)
		}
	}()

	return c.record(ctx, s)
}

func (c *Controller) finish(s *Session) {
	log.SessionEnd(s.State.String(), c.now().Sub(s.StartedAt))
	if c.cfg.StateDir == "" {
		return
	}
	if err := WriteOutcome(c.cfg.StateDir, OutcomeOf(s, c.now())); err != nil {
		log.Errorf("write outcome: %v", err)
	}
}

func (c *Controller) record(ctx context.Context, s *Session) (*Session, error) {
	h, err := c.cfg.Adapter.Start(c.cfg.Device, c.cfg.Capture)
	if err != nil {
		var nf *audio.DeviceNotFoundError
		if errors.As(err, &nf) {
			return c.fail(s, err)
		}
		return c.fail(s, &CaptureError{Err: err})
	}
	s.Device = h.DeviceName()
	log.SessionStart(c.cfg.Engine.Name(), s.Device, "")
	c.transition(s, Recording, nil)
	if c.cfg.Ready != nil {
		c.cfg.Ready()
	}

	var limit <-chan time.Time
	if c.cfg.MaxDuration > 0 {
		t := time.NewTimer(c.cfg.MaxDuration)
		defer t.Stop()
		limit = t.C
	}

loop:
	for {
		select {
		case <-ctx.Done():
			break loop
		case <-limit:
			log.Infof("max duration %s reached", c.cfg.MaxDuration)
			break loop
		case err := <-h.Err():
			buf, _ := h.Stop()
			s.Buffer = buf
			if buf != nil {
				s.Audio = buf.Duration()
			}
			return c.fail(s, &CaptureError{Err: err})
		case <-h.Frames():
		}
	}

	c.transition(s, Stopping, nil)
	buf, err := h.Stop()
	if err != nil {
		return c.fail(s, &CaptureError{Err: err})
	}
	s.Buffer = buf
	s.Audio = buf.Duration()
	return c.stop(ctx, s)
}

func (c *Controller) stop(ctx context.Context, s *Session) (*Session, error) {
	dur := s.Audio
	if dur < c.cfg.MinDuration {
		return c.fail(s, &EmptyRecordingError{Duration: dur, Reason: TooShort})
	}
	if c.cfg.Detector != nil && !c.cfg.Detector.HasSpeech(s.Buffer) {
		return c.fail(s, &EmptyRecordingError{Duration: dur, Reason: NoSpeech})
	}

	buf, err := s.Buffer.Take()
	if err != nil {
		return c.fail(s, &CaptureError{Err: err})
	}

	c.transition(s, Transcribing, nil)
	tctx := context.WithoutCancel(ctx)
	if c.cfg.TranscribeTimeout > 0 {
		var cancel context.CancelFunc
		tctx, cancel = context.WithTimeout(tctx, c.cfg.TranscribeTimeout)
		defer cancel()
	}
	start := c.now()
	text, err := c.cfg.Engine.Transcribe(tctx, buf)
	if err != nil {
		buf.Discard()
		return c.fail(s, &TranscriptionError{Engine: c.cfg.Engine.Name(), Err: err})
	}
	log.Transcription(c.cfg.Engine.Name(), dur, c.now().Sub(start), len(text))
	if text == "" {
		return c.fail(s, &EmptyRecordingError{Duration: dur, Reason: BlankResult})
	}

	if c.cfg.Backup != nil {
		if err := c.cfg.Backup.Save(s.ID, text); err != nil {
			log.Errorf("backup transcript: %v", err)
		} else {
			s.Saved = true
		}
	}
	s.Transcript = text
	s.HasTranscript = true
	log.TranscriptionText(text)

	return c.deliver(ctx, s)
}

func (c *Controller) deliver(ctx context.Context, s *Session) (*Session, error) {
	c.transition(s, Delivering, nil)
	if c.cfg.SelectDelivery == nil {
		return c.fail(s, &DeliveryError{Err: errors.New("no delivery strategy configured")})
	}
	strategy, err := c.cfg.SelectDelivery()
	if err != nil {
		return c.fail(s, &DeliveryError{Err: err})
	}
	s.Delivery = strategy.Name()
	if err := strategy.Deliver(context.WithoutCancel(ctx), s.Transcript); err != nil {
		return c.fail(s, &DeliveryError{Strategy: strategy.Name(), Err: err})
	}
	c.transition(s, Done, nil)
	return s, nil
}
