package encoder

import (
	"bytes"
	"fmt"
	"time"

	"linuxst/audio"

	"github.com/mewkiz/flac"
	"github.com/mewkiz/flac/frame"
	"github.com/mewkiz/flac/meta"
)

// FLAC encodes a mono 16-bit recording. Frames carry verbatim subframes and
// the encoder's prediction analysis picks a tighter coding per frame.
func FLAC(buf *audio.Buffer) (*Upload, error) {
	f := buf.Format()
	if f.Channels != 1 || f.BitDepth != 16 || f.SampleRate <= 0 {
		return nil, fmt.Errorf("flac: unsupported format %d Hz, %d ch, %d bit", f.SampleRate, f.Channels, f.BitDepth)
	}
	start := time.Now()
	samples := buf.Samples()

	var out bytes.Buffer
	info := &meta.StreamInfo{
		BlockSizeMin:  BlockSize,
		BlockSizeMax:  BlockSize,
		SampleRate:    uint32(f.SampleRate),
		NChannels:     1,
		BitsPerSample: 16,
		NSamples:      uint64(len(samples)),
	}
	enc, err := flac.NewEncoder(&out, info)
	if err != nil {
		return nil, fmt.Errorf("flac: %w", err)
	}
	enc.EnablePredictionAnalysis(true)

	for i := 0; i < len(samples); i += BlockSize {
		block := samples[i:min(i+BlockSize, len(samples))]
		if err := enc.WriteFrame(monoFrame(block, info.SampleRate)); err != nil {
			return nil, fmt.Errorf("flac: frame at sample %d: %w", i, err)
		}
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("flac: close: %w", err)
	}
	return &Upload{
		Data:   out.Bytes(),
		Format: "flac",
		Frames: uint64(len(samples)),
		Took:   time.Since(start),
	}, nil
}

func monoFrame(block []int16, rate uint32) *frame.Frame {
	wide := make([]int32, len(block))
	for i, s := range block {
		wide[i] = int32(s)
	}
	return &frame.Frame{
		Header: frame.Header{
			BlockSize:     uint16(len(block)),
			SampleRate:    rate,
			Channels:      frame.ChannelsMono,
			BitsPerSample: 16,
		},
		Subframes: []*frame.Subframe{{
			SubHeader: frame.SubHeader{Pred: frame.PredVerbatim},
			Samples:   wide,
			NSamples:  len(block),
		}},
	}
}
