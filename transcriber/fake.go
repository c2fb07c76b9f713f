package transcriber

import (
	"context"
	"sync"

	"linuxst/audio"
)

// Fake returns a fixed result and records every buffer it is given.
type Fake struct {
	Text string
	Err  error
	// Block, when non-nil, holds Transcribe until it is closed.
	Block chan struct{}

	mu    sync.Mutex
	calls []*audio.Buffer
}

func NewFake(text string, err error) *Fake {
	return &Fake{Text: text, Err: err}
}

func (f *Fake) Name() string { return "fake" }

func (f *Fake) Transcribe(ctx context.Context, buf *audio.Buffer) (string, error) {
	f.mu.Lock()
	f.calls = append(f.calls, buf)
	f.mu.Unlock()
	if f.Block != nil {
		select {
		case <-f.Block:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if f.Err != nil {
		return "", f.Err
	}
	return normalize(f.Text), nil
}

func (f *Fake) Calls() []*audio.Buffer {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*audio.Buffer(nil), f.calls...)
}
