package session

import (
	"errors"
	"fmt"
	"time"

	"linuxst/audio"
	"linuxst/marker"
)

type AlreadyRunningError struct {
	Holder marker.Record
}

func (e *AlreadyRunningError) Error() string {
	return fmt.Sprintf("already recording (pid %d, since %s)", e.Holder.PID, e.Holder.StartedAt.Format(time.TimeOnly))
}

// StaleMarkerError describes a marker left by a dead session. It is
// recovered from, not returned.
type StaleMarkerError struct {
	Stale *marker.Stale
}

func (e *StaleMarkerError) Error() string { return e.Stale.String() }

type CaptureError struct {
	Err error
}

func (e *CaptureError) Error() string { return "capture: " + e.Err.Error() }
func (e *CaptureError) Unwrap() error { return e.Err }

type EmptyReason string

const (
	TooShort    EmptyReason = "too short"
	NoSpeech    EmptyReason = "no speech detected"
	BlankResult EmptyReason = "transcription was blank"
)

type EmptyRecordingError struct {
	Duration time.Duration
	Reason   EmptyReason
}

func (e *EmptyRecordingError) Error() string {
	return fmt.Sprintf("empty recording (%s, %.2fs)", e.Reason, e.Duration.Seconds())
}

type TranscriptionError struct {
	Engine string
	Err    error
}

func (e *TranscriptionError) Error() string { return e.Engine + " transcription: " + e.Err.Error() }
func (e *TranscriptionError) Unwrap() error { return e.Err }

// DeliveryError is soft: the transcript is already backed up.
type DeliveryError struct {
	Strategy string
	Err      error
}

func (e *DeliveryError) Error() string {
	if e.Strategy == "" {
		return "delivery: " + e.Err.Error()
	}
	return e.Strategy + " delivery: " + e.Err.Error()
}
func (e *DeliveryError) Unwrap() error { return e.Err }

type Kind string

const (
	KindNone           Kind = ""
	KindAlreadyRunning Kind = "already_running"
	KindDevice         Kind = "device_not_found"
	KindCapture        Kind = "capture"
	KindEmpty          Kind = "empty_recording"
	KindTranscription  Kind = "transcription"
	KindDelivery       Kind = "delivery"
	KindOther          Kind = "error"
)

// KindOf classifies err for the outcome record.
func KindOf(err error) Kind {
	var (
		running *AlreadyRunningError
		device  *audio.DeviceNotFoundError
		capture *CaptureError
		empty   *EmptyRecordingError
		trans   *TranscriptionError
		deliver *DeliveryError
	)
	switch {
	case err == nil:
		return KindNone
	case errors.As(err, &running):
		return KindAlreadyRunning
	case errors.As(err, &device):
		return KindDevice
	case errors.As(err, &capture):
		return KindCapture
	case errors.As(err, &empty):
		return KindEmpty
	case errors.As(err, &trans):
		return KindTranscription
	case errors.As(err, &deliver):
		return KindDelivery
	}
	return KindOther
}

// Process exit codes.
const (
	ExitOK             = 0
	ExitFailed         = 1
	ExitAlreadyRunning = 3
	ExitStopFailed     = 4
	ExitForcedKill     = 5
	ExitEmpty          = 6
	ExitDevice         = 7
	ExitTranscription  = 8
)

func (k Kind) ExitCode() int {
	switch k {
	case KindNone, KindDelivery:
		return ExitOK
	case KindAlreadyRunning:
		return ExitAlreadyRunning
	case KindDevice, KindCapture:
		return ExitDevice
	case KindEmpty:
		return ExitEmpty
	case KindTranscription:
		return ExitTranscription
	}
	return ExitFailed
}

func ExitCode(err error) int { return KindOf(err).ExitCode() }
