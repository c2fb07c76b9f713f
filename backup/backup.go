package backup

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

const (
	TextFile = "last_transcription.txt"
	OKFile   = "last_transcription.ok"
)

var (
	ErrNoBackup   = errors.New("no transcript backup")
	ErrIncomplete = errors.New("transcript backup incomplete")
)

type completion struct {
	Length    int       `json:"length"`
	SHA256    string    `json:"sha256"`
	SessionID string    `json:"session_id"`
	SavedAt   time.Time `json:"saved_at"`
}

// Store keeps the most recent transcript next to a completion marker
// describing it. A backup is valid only when both agree.
type Store struct {
	dir string
}

func New(dir string) *Store { return &Store{dir: dir} }

func (s *Store) TextPath() string { return filepath.Join(s.dir, TextFile) }
func (s *Store) OKPath() string   { return filepath.Join(s.dir, OKFile) }

// Save replaces the backup with text. The completion marker is removed
// first and rewritten last, so a crash in between leaves no valid backup
// rather than a mismatched one.
func (s *Store) Save(sessionID, text string) error {
	if err := os.MkdirAll(s.dir, 0o700); err != nil {
		return fmt.Errorf("create backup dir: %w", err)
	}
	if err := os.Remove(s.OKPath()); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove completion marker: %w", err)
	}
	if err := writeAtomic(s.TextPath(), []byte(text)); err != nil {
		return fmt.Errorf("write transcript: %w", err)
	}
	sum := sha256.Sum256([]byte(text))
	data, err := json.Marshal(completion{
		Length:    len(text),
		SHA256:    hex.EncodeToString(sum[:]),
		SessionID: sessionID,
		SavedAt:   time.Now().UTC(),
	})
	if err != nil {
		return err
	}
	if err := writeAtomic(s.OKPath(), data); err != nil {
		return fmt.Errorf("write completion marker: %w", err)
	}
	return nil
}

// Entry is a validated backup.
type Entry struct {
	Text      string
	SessionID string
	SavedAt   time.Time
}

// Load returns the backup if its completion marker matches the text.
func (s *Store) Load() (*Entry, error) {
	okData, err := os.ReadFile(s.OKPath())
	if errors.Is(err, os.ErrNotExist) {
		if _, terr := os.Stat(s.TextPath()); terr == nil {
			return nil, ErrIncomplete
		}
		return nil, ErrNoBackup
	}
	if err != nil {
		return nil, err
	}
	var c completion
	if err := json.Unmarshal(okData, &c); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrIncomplete, err)
	}
	text, err := os.ReadFile(s.TextPath())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrIncomplete, err)
	}
	sum := sha256.Sum256(text)
	if len(text) != c.Length || hex.EncodeToString(sum[:]) != c.SHA256 {
		return nil, ErrIncomplete
	}
	return &Entry{Text: string(text), SessionID: c.SessionID, SavedAt: c.SavedAt}, nil
}

func writeAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
