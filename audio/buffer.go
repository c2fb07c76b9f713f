package audio

import (
	"errors"
	"sync"
	"time"
)

var (
	ErrBufferFinalized = errors.New("audio buffer is finalized")
	ErrBufferConsumed  = errors.New("audio buffer already consumed")
)

// Format describes the PCM layout of a Buffer.
type Format struct {
	SampleRate int
	Channels   int
	BitDepth   int
}

func (f Format) BytesPerFrame() int {
	return f.Channels * f.BitDepth / 8
}

// Chunk is one block of interleaved little-endian PCM as delivered by the backend.
type Chunk []byte

// Buffer accumulates chunks while recording. It is append-only until
// Finalize and is handed to exactly one consumer through Take.
type Buffer struct {
	format Format

	mu        sync.Mutex
	chunks    []Chunk
	bytes     int
	finalized bool
	consumed  bool
}

func NewBuffer(format Format) *Buffer {
	return &Buffer{format: format}
}

func (b *Buffer) Format() Format { return b.format }

func (b *Buffer) Append(c Chunk) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.finalized {
		return ErrBufferFinalized
	}
	if len(c) == 0 {
		return nil
	}
	b.chunks = append(b.chunks, c)
	b.bytes += len(c)
	return nil
}

func (b *Buffer) Finalize() {
	b.mu.Lock()
	b.finalized = true
	b.mu.Unlock()
}

func (b *Buffer) Finalized() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.finalized
}

// Chunks returns the recorded chunks in capture order.
func (b *Buffer) Chunks() []Chunk {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Chunk, len(b.chunks))
	copy(out, b.chunks)
	return out
}

func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.bytes
}

func (b *Buffer) Frames() int {
	if bpf := b.format.BytesPerFrame(); bpf > 0 {
		return b.Len() / bpf
	}
	return 0
}

func (b *Buffer) Duration() time.Duration {
	if b.format.SampleRate == 0 {
		return 0
	}
	return time.Duration(b.Frames()) * time.Second / time.Duration(b.format.SampleRate)
}

// PCM returns the concatenated sample bytes.
func (b *Buffer) PCM() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]byte, 0, b.bytes)
	for _, c := range b.chunks {
		out = append(out, c...)
	}
	return out
}

// Samples decodes the buffer as signed 16-bit samples.
func (b *Buffer) Samples() []int16 {
	pcm := b.PCM()
	out := make([]int16, len(pcm)/2)
	for i := range out {
		out[i] = int16(uint16(pcm[2*i]) | uint16(pcm[2*i+1])<<8)
	}
	return out
}

// Take finalizes the buffer and marks it consumed. A second Take fails.
func (b *Buffer) Take() (*Buffer, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.consumed {
		return nil, ErrBufferConsumed
	}
	b.finalized = true
	b.consumed = true
	return b, nil
}

// Discard drops the recorded audio.
func (b *Buffer) Discard() {
	b.mu.Lock()
	b.chunks = nil
	b.bytes = 0
	b.finalized = true
	b.mu.Unlock()
}
