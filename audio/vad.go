package audio

import (
	"sync"

	webrtcvad "github.com/maxhawkins/go-webrtcvad"
)

const (
	vadMode       = 3
	vadFrameMs    = 20
	vadFrameBytes = SampleRate * vadFrameMs / 1000 * 2 // 640 bytes
	vadDebounce   = 3                                  // consecutive speech frames to confirm voice
)

// VADDetector runs WebRTC voice activity detection over a recording.
type VADDetector struct {
	mu  sync.Mutex
	vad *webrtcvad.VAD
}

func NewVADDetector() (*VADDetector, error) {
	v, err := webrtcvad.New()
	if err != nil {
		return nil, err
	}
	if err := v.SetMode(vadMode); err != nil {
		return nil, err
	}
	return &VADDetector{vad: v}, nil
}

func (d *VADDetector) HasSpeech(buf *Buffer) bool {
	_, _, voiced := d.Scan(buf.PCM())
	return voiced
}

// Scan classifies pcm in 20ms frames. Trailing bytes shorter than a frame
// are ignored. voiced is true once vadDebounce consecutive frames are active.
func (d *VADDetector) Scan(pcm []byte) (total, speech int, voiced bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	run := 0
	for len(pcm) >= vadFrameBytes {
		frame := pcm[:vadFrameBytes]
		pcm = pcm[vadFrameBytes:]

		active, err := d.vad.Process(SampleRate, frame)
		if err != nil {
			continue
		}
		total++
		if active {
			speech++
			run++
			if run >= vadDebounce {
				voiced = true
			}
		} else {
			run = 0
		}
	}
	return total, speech, voiced
}
