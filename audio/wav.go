package audio

import (
	"fmt"
	"io"
	"os"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

const wavFormatPCM = 1

// WriteWAV encodes buf as a PCM WAV stream.
func WriteWAV(w io.WriteSeeker, buf *Buffer) error {
	f := buf.Format()
	enc := wav.NewEncoder(w, f.SampleRate, f.BitDepth, f.Channels, wavFormatPCM)

	samples := buf.Samples()
	data := make([]int, len(samples))
	for i, s := range samples {
		data[i] = int(s)
	}
	ib := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: f.Channels, SampleRate: f.SampleRate},
		Data:           data,
		SourceBitDepth: f.BitDepth,
	}
	if err := enc.Write(ib); err != nil {
		return fmt.Errorf("write wav: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("close wav: %w", err)
	}
	return nil
}

// WriteWAVFile writes buf to path, replacing any existing file.
func WriteWAVFile(path string, buf *Buffer) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := WriteWAV(f, buf); err != nil {
		f.Close()
		os.Remove(path)
		return err
	}
	return f.Close()
}

// ReadWAVFile decodes a 16-bit PCM WAV file into a finalized buffer in
// the file's own format.
func ReadWAVFile(path string) (*Buffer, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		return nil, fmt.Errorf("%s: not a valid WAV file", path)
	}
	if dec.BitDepth != BitsPerSample {
		return nil, fmt.Errorf("%s: %d-bit audio, want %d-bit", path, dec.BitDepth, BitsPerSample)
	}
	ib, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	pcm := make([]byte, len(ib.Data)*2)
	for i, s := range ib.Data {
		v := uint16(int16(s))
		pcm[2*i] = byte(v)
		pcm[2*i+1] = byte(v >> 8)
	}
	buf := NewBuffer(Format{SampleRate: int(dec.SampleRate), Channels: int(dec.NumChans), BitDepth: BitsPerSample})
	if len(pcm) > 0 {
		buf.Append(pcm)
	}
	buf.Finalize()
	return buf, nil
}
