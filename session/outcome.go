package session

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

const OutcomeFile = "last_session.json"

// Outcome is the persisted result of a finished session. The process that
// stopped a session reads it since it cannot observe the exit status of a
// process it did not start.
type Outcome struct {
	SessionID       string    `json:"session_id"`
	PID             int       `json:"pid"`
	State           string    `json:"state"`
	Kind            Kind      `json:"error,omitempty"`
	Message         string    `json:"message,omitempty"`
	TranscriptSaved bool      `json:"transcript_saved"`
	Delivery        string    `json:"delivery,omitempty"`
	AudioSeconds    float64   `json:"audio_s"`
	Chars           int       `json:"chars"`
	FinishedAt      time.Time `json:"finished_at"`
}

func (o *Outcome) ExitCode() int { return o.Kind.ExitCode() }

func OutcomeOf(s *Session, finished time.Time) Outcome {
	o := Outcome{
		SessionID:       s.ID,
		PID:             s.PID,
		State:           s.State.String(),
		Kind:            KindOf(s.Err),
		TranscriptSaved: s.Saved,
		Delivery:        s.Delivery,
		Chars:           len(s.Transcript),
		FinishedAt:      finished,
	}
	if s.Err != nil {
		o.Message = s.Err.Error()
	}
	if s.Audio > 0 {
		o.AudioSeconds = s.Audio.Seconds()
	}
	return o
}

func WriteOutcome(dir string, o Outcome) error {
	data, err := json.MarshalIndent(o, "", "  ")
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, OutcomeFile+".tmp-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), filepath.Join(dir, OutcomeFile))
}

func ReadOutcome(dir string) (*Outcome, error) {
	data, err := os.ReadFile(filepath.Join(dir, OutcomeFile))
	if err != nil {
		return nil, err
	}
	var o Outcome
	if err := json.Unmarshal(data, &o); err != nil {
		return nil, fmt.Errorf("parse %s: %w", OutcomeFile, err)
	}
	return &o, nil
}
