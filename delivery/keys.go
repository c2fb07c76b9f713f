package delivery

import (
	"runtime"
	"sync"
	"time"

	"github.com/micmonay/keybd_event"
)

// Virtual keyboards created through uinput are ignored by the X server
// for a short while after creation.
const keyboardSettle = 2 * time.Second

// Keyboard sends Ctrl+V through a virtual keyboard device.
type Keyboard struct {
	once    sync.Once
	kb      keybd_event.KeyBonding
	err     error
	created time.Time
}

// Init creates the virtual keyboard. It is safe to call repeatedly and
// early, so the settle delay overlaps with recording.
func (k *Keyboard) Init() error {
	k.once.Do(func() {
		k.kb, k.err = keybd_event.NewKeyBonding()
		k.created = time.Now()
	})
	return k.err
}

func (k *Keyboard) Paste() error {
	if err := k.Init(); err != nil {
		return err
	}
	if runtime.GOOS == "linux" {
		if wait := keyboardSettle - time.Since(k.created); wait > 0 {
			time.Sleep(wait)
		}
	}
	k.kb.SetKeys(keybd_event.VK_V)
	k.kb.HasCTRL(true)
	return k.kb.Launching()
}

// KeyboardProbe allows keystrokes on X11 when the virtual keyboard can
// be created.
type KeyboardProbe struct {
	Keyboard *Keyboard
}

func (p KeyboardProbe) KeystrokeAllowed(d Display) error {
	if d.Server != X11 {
		return ErrNotX11
	}
	if err := p.Keyboard.Init(); err != nil {
		return ErrNoKeystrokes
	}
	return nil
}
