package doctor

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"time"

	"linuxst/audio"
	"linuxst/config"
	"linuxst/delivery"
	"linuxst/output"
	"linuxst/transcriber"
)

// Env holds the system hooks the checks use.
type Env struct {
	Config     *config.Config
	NewAudio   func() (audio.Context, error)
	Getenv     func(string) string
	LookPath   func(string) (string, error)
	Keystrokes delivery.Probe
	Clipboard  func() bool
}

func DefaultEnv(cfg *config.Config) Env {
	return Env{
		Config:     cfg,
		NewAudio:   audio.NewContext,
		Getenv:     os.Getenv,
		LookPath:   exec.LookPath,
		Keystrokes: delivery.KeyboardProbe{Keyboard: &delivery.Keyboard{}},
		Clipboard:  delivery.ClipboardAvailable,
	}
}

type check struct {
	name string
	run  func(Env) (bool, string)
}

var checks = []check{
	{"microphone", checkMicrophone},
	{"engine", checkEngine},
	{"display", checkDisplay},
	{"delivery", checkDelivery},
	{"state dir", func(e Env) (bool, string) { return checkWritable(e.Config.StateDir) }},
	{"backup dir", func(e Env) (bool, string) { return checkWritable(e.Config.BackupDir) }},
}

// Run executes the diagnostic checks and returns an exit code (0=all pass, 1=any fail).
func Run(env Env, out io.Writer) int {
	f := output.NewFormatter(out)
	fmt.Fprintln(out, "linuxst doctor")

	allPass := true
	for _, c := range checks {
		ok, detail := c.run(env)
		f.SetupCheck(c.name, ok, detail)
		if !ok {
			allPass = false
		}
	}

	fmt.Fprintln(out)
	if allPass {
		f.Success("All checks passed!")
		return 0
	}
	f.Error("Some checks failed. See details above.")
	return 1
}

func checkMicrophone(e Env) (bool, string) {
	ctx, err := e.NewAudio()
	if err != nil {
		return false, fmt.Sprintf("cannot connect to audio: %v", err)
	}
	defer ctx.Close()

	devices, err := ctx.Devices()
	if err != nil {
		return false, fmt.Sprintf("cannot list devices: %v", err)
	}
	if len(devices) == 0 {
		return false, "no capture devices found"
	}
	sel := audio.ParseSelector(e.Config.Device)
	dev, err := sel.Resolve(devices)
	if err != nil {
		return false, err.Error()
	}
	if dev == nil {
		return true, fmt.Sprintf("system default (%d devices)", len(devices))
	}
	if audio.IsBluetooth(dev.Name) {
		return true, dev.Name + " (bluetooth, expect lower quality)"
	}
	return true, dev.Name
}

func checkEngine(e Env) (bool, string) {
	eng, err := transcriber.New(e.Config.Transcriber())
	if err != nil {
		return false, err.Error()
	}
	w, ok := eng.(*transcriber.Whisper)
	if !ok {
		return true, eng.Name()
	}
	bin, err := e.LookPath(e.Config.WhisperBin)
	if err != nil {
		return false, fmt.Sprintf("%s not found on PATH", e.Config.WhisperBin)
	}
	model, err := w.ModelPath()
	if err != nil {
		return false, err.Error()
	}
	return true, fmt.Sprintf("whisper (%s, %s)", bin, model)
}

func checkDisplay(e Env) (bool, string) {
	d := delivery.DetectDisplay(e.Getenv)
	if d.Server == delivery.Unknown {
		return false, "no display server (DISPLAY and WAYLAND_DISPLAY unset)"
	}
	return true, d.Server.String()
}

func checkDelivery(e Env) (bool, string) {
	if !e.Clipboard() {
		return false, "no clipboard helper found, install wl-clipboard, xclip or xsel"
	}
	mode, err := delivery.ParseMode(e.Config.Delivery)
	if err != nil {
		return false, err.Error()
	}
	if mode == delivery.ModeClipboard {
		return true, "clipboard"
	}
	d := delivery.DetectDisplay(e.Getenv)
	err = e.Keystrokes.KeystrokeAllowed(d)
	switch {
	case err == nil:
		return true, "keystroke"
	case mode == delivery.ModeKeystroke && err == delivery.ErrNoKeystrokes:
		return false, "cannot create virtual keyboard, fix with: sudo chmod 660 /dev/uinput && sudo chgrp input /dev/uinput"
	case mode == delivery.ModeKeystroke:
		return false, err.Error()
	}
	return true, fmt.Sprintf("clipboard (%v)", err)
}

func checkWritable(dir string) (bool, string) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return false, err.Error()
	}
	f, err := os.CreateTemp(dir, ".doctor-*")
	if err != nil {
		return false, err.Error()
	}
	f.Close()
	os.Remove(f.Name())
	return true, dir
}

// Live records for the given duration and prints the transcription.
func Live(ctx context.Context, env Env, d time.Duration, out io.Writer) error {
	actx, err := env.NewAudio()
	if err != nil {
		return fmt.Errorf("cannot connect to audio: %w", err)
	}
	defer actx.Close()

	eng, err := transcriber.New(env.Config.Transcriber())
	if err != nil {
		return err
	}

	h, err := audio.NewAdapter(actx).Start(audio.ParseSelector(env.Config.Device), audio.DefaultCaptureConfig())
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "Speak now (%s), recording on %s", output.FormatDuration(d), h.DeviceName())
	ticker := time.NewTicker(500 * time.Millisecond)
	timer := time.NewTimer(d)
	defer timer.Stop()
loop:
	for {
		select {
		case <-ticker.C:
			fmt.Fprint(out, ".")
		case <-timer.C:
			break loop
		case <-ctx.Done():
			break loop
		case err := <-h.Err():
			ticker.Stop()
			h.Stop()
			fmt.Fprintln(out)
			return err
		}
	}
	ticker.Stop()
	buf, err := h.Stop()
	fmt.Fprintln(out, " done")
	if err != nil {
		return err
	}
	if buf.Len() == 0 {
		return fmt.Errorf("no audio captured")
	}

	fmt.Fprintf(out, "Recorded %.1f KB, transcribing with %s...\n", float64(buf.Len())/1024, eng.Name())
	text, err := eng.Transcribe(ctx, buf)
	if err != nil {
		return err
	}
	text = strings.TrimSpace(text)
	if text == "" {
		text = "(no speech detected)"
	}
	fmt.Fprintf(out, "\nTranscribed text: %s\n", text)
	return nil
}
