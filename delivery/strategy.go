package delivery

import (
	"context"
	"fmt"
	"time"

	cb "github.com/atotto/clipboard"
)

// ClipboardWriter places text on the system clipboard.
type ClipboardWriter func(text string) error

// SystemClipboard uses wl-copy on Wayland and xclip or xsel on X11.
func SystemClipboard(text string) error { return cb.WriteAll(text) }

// ClipboardAvailable reports whether a clipboard helper was found on PATH.
func ClipboardAvailable() bool { return !cb.Unsupported }

// ReadClipboard returns the current clipboard text.
func ReadClipboard() (string, error) { return cb.ReadAll() }

// KeySender emits the paste chord into the focused window.
type KeySender interface {
	Paste() error
}

// Clipboard leaves the transcript on the clipboard for a manual paste.
type Clipboard struct {
	Write ClipboardWriter
}

func (c *Clipboard) Name() string { return string(ModeClipboard) }

func (c *Clipboard) Deliver(_ context.Context, text string) error {
	if err := c.Write(text); err != nil {
		return fmt.Errorf("clipboard: %w", err)
	}
	return nil
}

// pasteSettle gives the clipboard owner time to serve the new selection
// before the paste chord arrives.
const pasteSettle = 50 * time.Millisecond

// Keystroke types the transcript into the focused window by loading the
// clipboard and sending Ctrl+V.
type Keystroke struct {
	Write ClipboardWriter
	Keys  KeySender
}

func (k *Keystroke) Name() string { return string(ModeKeystroke) }

func (k *Keystroke) Deliver(ctx context.Context, text string) error {
	if err := k.Write(text); err != nil {
		return fmt.Errorf("clipboard: %w", err)
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(pasteSettle):
	}
	if err := k.Keys.Paste(); err != nil {
		return fmt.Errorf("paste keystroke: %w", err)
	}
	return nil
}
