package delivery

import (
	"context"
	"errors"
	"fmt"
)

type Mode string

const (
	ModeAuto      Mode = "auto"
	ModeKeystroke Mode = "keystroke"
	ModeClipboard Mode = "clipboard"
)

func ParseMode(s string) (Mode, error) {
	switch m := Mode(s); m {
	case "", ModeAuto:
		return ModeAuto, nil
	case ModeKeystroke, ModeClipboard:
		return m, nil
	}
	return "", fmt.Errorf("unknown delivery mode %q (want auto, keystroke or clipboard)", s)
}

// Strategy hands a transcript to the user.
type Strategy interface {
	Name() string
	Deliver(ctx context.Context, text string) error
}

// Probe reports whether synthetic keystrokes can reach the focused window.
type Probe interface {
	KeystrokeAllowed(d Display) error
}

var (
	ErrNotX11       = errors.New("keystroke injection requires an X11 session")
	ErrNoKeystrokes = errors.New("keystroke injection unavailable")
)

// Select picks the strategy for this session. Keystroke delivery is used
// only when the probe allows it; otherwise the transcript goes to the
// clipboard. Forcing keystroke mode where it is not allowed is an error.
func Select(d Display, probe Probe, mode Mode, clip ClipboardWriter, keys KeySender) (Strategy, error) {
	clipboard := &Clipboard{Write: clip}
	if mode == ModeClipboard {
		return clipboard, nil
	}
	err := probe.KeystrokeAllowed(d)
	if err == nil {
		return &Keystroke{Write: clip, Keys: keys}, nil
	}
	if mode == ModeKeystroke {
		return nil, fmt.Errorf("keystroke delivery on %s: %w", d.Server, err)
	}
	return clipboard, nil
}
