// Package encoder compresses a finished recording for upload.
package encoder

import "time"

// BlockSize is the number of samples per FLAC frame.
const BlockSize = 4096

// Upload is an encoded recording.
type Upload struct {
	Data   []byte
	Format string // file extension and multipart hint
	Frames uint64
	Took   time.Duration
}

func (u *Upload) Filename() string { return "audio." + u.Format }
