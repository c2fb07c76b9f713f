package session

import (
	"time"

	"linuxst/audio"
)

type State int

const (
	Starting State = iota
	Recording
	Stopping
	Transcribing
	Delivering
	Done
	Failed
)

var stateNames = [...]string{
	Starting:     "starting",
	Recording:    "recording",
	Stopping:     "stopping",
	Transcribing: "transcribing",
	Delivering:   "delivering",
	Done:         "done",
	Failed:       "failed",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "invalid"
	}
	return stateNames[s]
}

func (s State) Terminal() bool { return s == Done || s == Failed }

// Session is the single dictation lifecycle owned by a Controller.
type Session struct {
	ID        string
	State     State
	PID       int
	StartedAt time.Time
	Device    string

	Buffer *audio.Buffer
	Audio  time.Duration

	// Transcript is set only once transcription succeeded.
	Transcript    string
	HasTranscript bool
	Saved         bool

	Delivery string
	Err      error
}

// Observer is told about every state change. The first call reports Starting
// with from == to. err is set on entry to Failed.
type Observer interface {
	Transition(s *Session, from, to State, err error)
}

type ObserverFunc func(s *Session, from, to State, err error)

func (f ObserverFunc) Transition(s *Session, from, to State, err error) { f(s, from, to, err) }

// Observers fans a transition out in order.
type Observers []Observer

func (o Observers) Transition(s *Session, from, to State, err error) {
	for _, obs := range o {
		obs.Transition(s, from, to, err)
	}
}
