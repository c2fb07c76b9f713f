package notify

import (
	"linuxst/delivery"
	"linuxst/log"
	"linuxst/session"

	"github.com/gen2brain/beeep"
)

const Title = "LinuxST"

func init() {
	beeep.AppName = Title
}

// Sender shows one desktop notification.
type Sender func(title, message string, icon any) error

// Notifier turns session transitions into desktop notifications.
type Notifier struct {
	send Sender
}

func New() *Notifier { return &Notifier{send: beeep.Notify} }

func NewWithSender(send Sender) *Notifier { return &Notifier{send: send} }

func (n *Notifier) Send(message string) {
	if err := n.send(Title, message, ""); err != nil {
		log.Warnf("notify %q: %v", message, err)
	}
}

func (n *Notifier) Transition(s *session.Session, _, to session.State, err error) {
	if msg := Message(s, to, err); msg != "" {
		n.Send(msg)
	}
}

// Message is the notification text for entering state to, or "" when the
// transition is silent.
func Message(s *session.Session, to session.State, err error) string {
	switch to {
	case session.Recording:
		return "Recording"
	case session.Transcribing:
		return "Transcribing"
	case session.Done:
		if s.Delivery == string(delivery.ModeKeystroke) {
			return "Pasted"
		}
		return "Ready to paste (Ctrl+V)"
	case session.Failed:
		return failureMessage(s, err)
	}
	return ""
}

func failureMessage(s *session.Session, err error) string {
	switch session.KindOf(err) {
	case session.KindAlreadyRunning:
		// The invocation becomes a stop of the running session.
		return ""
	case session.KindDevice:
		return "Microphone not found"
	case session.KindCapture:
		return "Recording failed"
	case session.KindEmpty:
		return "No speech"
	case session.KindTranscription:
		return "Transcription failed"
	case session.KindDelivery:
		if s.Saved {
			return "Saved to file"
		}
		return "Delivery failed"
	}
	return "Error: " + err.Error()
}
