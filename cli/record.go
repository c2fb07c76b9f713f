package cli

import (
	"context"
	"errors"
	"os"
	"time"

	"linuxst/audio"
	"linuxst/backup"
	"linuxst/beep"
	"linuxst/delivery"
	"linuxst/notify"
	"linuxst/output"
	"linuxst/session"
	"linuxst/shutdown"
	"linuxst/toggle"
	"linuxst/transcriber"

	"github.com/spf13/cobra"
)

func NewRecordCmd(deps *Dependencies) *cobra.Command {
	var wavPath string
	var detached bool

	cmd := &cobra.Command{
		Use:   "record",
		Short: "Record one session in the foreground (Ctrl+C to stop)",
		Long: "Record until interrupted, then transcribe and deliver the text.\n" +
			"Use --wav to replay a 16 kHz mono WAV file instead of the microphone.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRecord(deps, wavPath, detached)
		},
	}

	cmd.Flags().StringVar(&wavPath, "wav", "", "replay a 16-bit WAV file instead of the microphone")
	cmd.Flags().BoolVar(&detached, "detached", false, "run as the background recorder started by toggle")
	cmd.Flags().MarkHidden("detached")

	return cmd
}

func runRecord(d *Dependencies, wavPath string, detached bool) error {
	ready := toggle.ReadinessFromEnv()
	defer ready.Close()
	d.initLog()
	cfg := d.Config
	f := d.formatter()

	if !cfg.Beep {
		beep.Disable()
	}
	beep.Init()
	defer beep.Wait(time.Second)

	var (
		actx audio.Context
		err  error
	)
	if wavPath != "" {
		actx, err = audio.NewFakeContextFromWAV(wavPath, true)
	} else {
		actx, err = d.NewAudio()
	}
	if err != nil {
		return withCode(session.ExitDevice, &session.CaptureError{Err: err})
	}
	defer actx.Close()

	engine, err := transcriber.New(cfg.Transcriber())
	if err != nil {
		return err
	}
	if r, ok := engine.(*transcriber.Remote); ok {
		r.Warm()
	}
	detector, err := newDetector(cfg.Detector)
	if err != nil {
		return err
	}

	display := delivery.DetectDisplay(os.Getenv)
	mode, err := delivery.ParseMode(cfg.Delivery)
	if err != nil {
		return err
	}
	kb := &delivery.Keyboard{}
	if mode != delivery.ModeClipboard && display.Server == delivery.X11 {
		// The virtual keyboard settles while we record.
		go kb.Init()
	}

	observers := session.Observers{session.ObserverFunc(cues)}
	if cfg.Notify {
		n := notify.New()
		if d.Notify != nil {
			n = notify.NewWithSender(d.Notify)
		}
		observers = append(observers, n)
	}
	if !detached {
		observers = append(observers, progress(f))
	}

	ctx, release := shutdown.Context(context.Background())
	defer release()

	ctrl := session.NewController(session.Config{
		Marker:   d.Marker(),
		Adapter:  audio.NewAdapter(actx),
		Device:   audio.ParseSelector(cfg.Device),
		Detector: detector,
		Engine:   engine,
		Backup:   backup.New(cfg.BackupDir),
		SelectDelivery: func() (delivery.Strategy, error) {
			return delivery.Select(display, delivery.KeyboardProbe{Keyboard: kb}, mode, d.Clipboard, kb)
		},
		StateDir:          cfg.StateDir,
		MinDuration:       cfg.MinDuration,
		MaxDuration:       cfg.MaxDuration,
		TranscribeTimeout: cfg.TranscribeTimeout,
		Observer:          observers,
		Ready:             ready.Ready,
	})

	s, err := ctrl.Run(ctx)
	var running *session.AlreadyRunningError
	if errors.As(err, &running) {
		ready.Busy()
	}

	o := session.OutcomeOf(s, time.Now())
	f.Stopped(s.PID, &o)
	if err == nil && !detached {
		f.Transcript(s.Transcript, time.Time{})
	}
	if code := session.ExitCode(err); code != 0 {
		return silent{code: code}
	}
	return nil
}

func newDetector(name string) (audio.SpeechDetector, error) {
	switch name {
	case "vad":
		d, err := audio.NewVADDetector()
		if err != nil {
			return nil, err
		}
		return d, nil
	case "energy":
		return audio.EnergyDetector{Threshold: audio.DefaultRMSThreshold}, nil
	}
	return nil, nil
}

type cue int

const (
	noCue cue = iota
	startCue
	endCue
	errorCue
)

// cueFor picks the sound for entering state to. A soft delivery failure
// and a lost start race stay quiet.
func cueFor(to session.State, err error) cue {
	switch to {
	case session.Recording:
		return startCue
	case session.Stopping:
		return endCue
	case session.Failed:
		switch session.KindOf(err) {
		case session.KindDelivery, session.KindAlreadyRunning:
			return noCue
		}
		return errorCue
	}
	return noCue
}

func cues(_ *session.Session, _, to session.State, err error) {
	switch cueFor(to, err) {
	case startCue:
		beep.PlayStart()
	case endCue:
		beep.PlayEnd()
	case errorCue:
		beep.PlayError()
	}
}

func progress(f *output.Formatter) session.Observer {
	return session.ObserverFunc(func(s *session.Session, _, to session.State, _ error) {
		switch to {
		case session.Recording:
			f.Info("recording on " + s.Device + ", press Ctrl+C to stop")
		case session.Transcribing:
			f.Info("transcribing " + output.FormatDuration(s.Audio) + " of audio")
		}
	})
}
