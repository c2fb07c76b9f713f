package notify

import (
	"errors"
	"testing"

	"linuxst/audio"
	"linuxst/session"
)

func TestMessage(t *testing.T) {
	tests := []struct {
		name string
		sess session.Session
		to   session.State
		err  error
		want string
	}{
		{"recording", session.Session{}, session.Recording, nil, "Recording"},
		{"stopping silent", session.Session{}, session.Stopping, nil, ""},
		{"transcribing", session.Session{}, session.Transcribing, nil, "Transcribing"},
		{"pasted", session.Session{Delivery: "keystroke"}, session.Done, nil, "Pasted"},
		{"clipboard", session.Session{Delivery: "clipboard"}, session.Done, nil, "Ready to paste (Ctrl+V)"},
		{"empty", session.Session{}, session.Failed, &session.EmptyRecordingError{Reason: session.NoSpeech}, "No speech"},
		{"device", session.Session{}, session.Failed, &audio.DeviceNotFoundError{Selector: "x"}, "Microphone not found"},
		{"capture", session.Session{}, session.Failed, &session.CaptureError{Err: errors.New("x")}, "Recording failed"},
		{"transcription", session.Session{}, session.Failed, &session.TranscriptionError{Engine: "e", Err: errors.New("x")}, "Transcription failed"},
		{"delivery saved", session.Session{Saved: true}, session.Failed, &session.DeliveryError{Err: errors.New("x")}, "Saved to file"},
		{"delivery lost", session.Session{}, session.Failed, &session.DeliveryError{Err: errors.New("x")}, "Delivery failed"},
		{"lost start race", session.Session{}, session.Failed, &session.AlreadyRunningError{}, ""},
		{"other", session.Session{}, session.Failed, errors.New("disk full"), "Error: disk full"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Message(&tt.sess, tt.to, tt.err); got != tt.want {
				t.Errorf("Message = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestTransitionSends(t *testing.T) {
	var got []string
	n := NewWithSender(func(title, msg string, _ any) error {
		if title != Title {
			t.Errorf("title = %q", title)
		}
		got = append(got, msg)
		return nil
	})
	s := &session.Session{}
	n.Transition(s, session.Starting, session.Recording, nil)
	n.Transition(s, session.Recording, session.Stopping, nil)
	n.Transition(s, session.Stopping, session.Transcribing, nil)
	if len(got) != 2 || got[0] != "Recording" || got[1] != "Transcribing" {
		t.Errorf("sent %v", got)
	}
}

func TestTransitionLostRaceSilent(t *testing.T) {
	var got []string
	n := NewWithSender(func(_, msg string, _ any) error {
		got = append(got, msg)
		return nil
	})
	s := &session.Session{}
	n.Transition(s, session.Starting, session.Starting, nil)
	n.Transition(s, session.Starting, session.Failed, &session.AlreadyRunningError{})
	if len(got) != 0 {
		t.Errorf("lost start race sent %v", got)
	}
}
