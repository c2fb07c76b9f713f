package audio

import (
	"fmt"
	"sync"
)

const frameQueue = 256

// Adapter opens capture handles on a Context.
type Adapter struct {
	Context Context
}

func NewAdapter(ctx Context) *Adapter {
	return &Adapter{Context: ctx}
}

// Handle is one open recording. Every chunk the backend delivers is
// appended to the handle's Buffer; Frames carries a best-effort copy for
// callers that want to observe progress.
type Handle struct {
	dev    CaptureDevice
	buf    *Buffer
	frames chan Chunk
	errs   chan error

	mu      sync.Mutex
	read    int
	stopped bool
}

// Start resolves sel, opens the device and begins capturing. An unknown
// selector fails with *DeviceNotFoundError before any audio flows.
func (a *Adapter) Start(sel DeviceSelector, cfg CaptureConfig) (*Handle, error) {
	var info *DeviceInfo
	if !sel.IsDefault() {
		devices, err := a.Context.Devices()
		if err != nil {
			return nil, fmt.Errorf("list devices: %w", err)
		}
		info, err = sel.Resolve(devices)
		if err != nil {
			return nil, err
		}
	}

	dev, err := a.Context.NewCapture(info, cfg)
	if err != nil {
		return nil, err
	}

	h := &Handle{
		dev:    dev,
		buf:    NewBuffer(cfg.Format()),
		frames: make(chan Chunk, frameQueue),
		errs:   make(chan error, 1),
	}
	dev.SetCallback(h.onData)
	dev.SetErrorCallback(h.onError)
	if err := dev.Start(); err != nil {
		dev.ClearCallback()
		dev.Close()
		return nil, err
	}
	return h, nil
}

func (h *Handle) onData(data []byte, _ uint32) {
	c := make(Chunk, len(data))
	copy(c, data)
	if err := h.buf.Append(c); err != nil {
		return
	}
	select {
	case h.frames <- c:
	default:
	}
}

func (h *Handle) onError(err error) {
	select {
	case h.errs <- err:
	default:
	}
}

func (h *Handle) DeviceName() string { return h.dev.DeviceName() }

// Frames delivers chunks as they are captured. Chunks are dropped from
// this channel, never from the buffer, when the reader falls behind.
func (h *Handle) Frames() <-chan Chunk { return h.frames }

// Err reports the first backend failure.
func (h *Handle) Err() <-chan error { return h.errs }

// ReadAvailable returns the chunks captured since the previous call
// without blocking.
func (h *Handle) ReadAvailable() []Chunk {
	h.mu.Lock()
	defer h.mu.Unlock()
	all := h.buf.Chunks()
	if h.read >= len(all) {
		return nil
	}
	out := all[h.read:]
	h.read = len(all)
	return out
}

// Buffer is the live recording buffer.
func (h *Handle) Buffer() *Buffer { return h.buf }

// Stop halts the device and returns the finalized buffer holding every
// chunk delivered before the device stopped.
func (h *Handle) Stop() (*Buffer, error) {
	h.mu.Lock()
	if h.stopped {
		h.mu.Unlock()
		return h.buf, nil
	}
	h.stopped = true
	h.mu.Unlock()

	h.dev.Stop()
	h.dev.ClearCallback()
	h.dev.Close()
	h.buf.Finalize()
	for {
		select {
		case <-h.frames:
		default:
			return h.buf, nil
		}
	}
}
