package audio

import "math"

// SpeechDetector decides whether a finished recording contains speech.
type SpeechDetector interface {
	HasSpeech(buf *Buffer) bool
}

// DefaultRMSThreshold is roughly -50 dBFS for 16-bit audio.
const DefaultRMSThreshold = 100.0

// EnergyDetector flags speech when any chunk's RMS level reaches Threshold.
type EnergyDetector struct {
	Threshold float64
}

func (d EnergyDetector) HasSpeech(buf *Buffer) bool {
	threshold := d.Threshold
	if threshold <= 0 {
		threshold = DefaultRMSThreshold
	}
	for _, c := range buf.Chunks() {
		if RMS(c) >= threshold {
			return true
		}
	}
	return false
}

// RMS returns the root-mean-square level of a PCM16LE chunk.
func RMS(c Chunk) float64 {
	n := len(c) / 2
	if n == 0 {
		return 0
	}
	var sum float64
	for i := 0; i < n; i++ {
		s := float64(int16(uint16(c[2*i]) | uint16(c[2*i+1])<<8))
		sum += s * s
	}
	return math.Sqrt(sum / float64(n))
}
