package marker

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"golang.org/x/sys/unix"
)

const (
	FileName = "linuxst.pid"
	lockName = "linuxst.lock"
)

// Record is the content of the marker file.
type Record struct {
	PID       int       `json:"pid"`
	SessionID string    `json:"session_id"`
	StartedAt time.Time `json:"started_at"`
	Exe       string    `json:"exe,omitempty"`
}

// HeldError reports a live process holding the marker.
type HeldError struct {
	Holder Record
}

func (e *HeldError) Error() string {
	return fmt.Sprintf("session %s already running (pid %d)", e.Holder.SessionID, e.Holder.PID)
}

// Stale describes a marker that was left behind and cleared.
type Stale struct {
	Holder *Record // nil when the file could not be parsed
	Reason string
}

func (s *Stale) String() string {
	if s.Holder == nil {
		return "unreadable marker: " + s.Reason
	}
	return fmt.Sprintf("stale marker for pid %d: %s", s.Holder.PID, s.Reason)
}

var ErrContended = errors.New("marker recreated by another process")

// Marker is the single-instance PID file in a state directory.
type Marker struct {
	dir  string
	path string
}

func New(stateDir string) *Marker {
	return &Marker{dir: stateDir, path: filepath.Join(stateDir, FileName)}
}

func (m *Marker) Path() string { return m.path }

// Acquire writes rec as the marker. A live holder yields *HeldError. A
// stale or unreadable marker is removed, the write is retried once and
// the cleared marker is returned as stale.
func (m *Marker) Acquire(rec Record) (stale *Stale, err error) {
	if err := os.MkdirAll(m.dir, 0o700); err != nil {
		return nil, fmt.Errorf("create state dir: %w", err)
	}
	unlock, err := m.lock()
	if err != nil {
		return nil, err
	}
	defer unlock()

	for attempt := 0; attempt < 2; attempt++ {
		err := m.create(rec)
		if err == nil {
			return stale, nil
		}
		if !errors.Is(err, os.ErrExist) {
			return stale, err
		}

		holder, readErr := m.Read()
		switch {
		case errors.Is(readErr, os.ErrNotExist):
			continue
		case readErr != nil:
			stale = &Stale{Reason: readErr.Error()}
		case Alive(holder.PID, holder.Exe):
			return stale, &HeldError{Holder: *holder}
		default:
			stale = &Stale{Holder: holder, Reason: "process not running"}
		}
		if attempt > 0 {
			break
		}
		if err := os.Remove(m.path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return stale, fmt.Errorf("remove stale marker: %w", err)
		}
	}
	return stale, ErrContended
}

// create links a fully written temp file into place so readers never
// see a partial record.
func (m *Marker) create(rec Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(m.dir, FileName+".tmp-*")
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
	if err := os.Link(tmp.Name(), m.path); err != nil {
		var le *os.LinkError
		if errors.As(err, &le) && errors.Is(le.Err, unix.EEXIST) {
			return os.ErrExist
		}
		return err
	}
	return nil
}

// Read parses the current marker. A missing file wraps os.ErrNotExist.
func (m *Marker) Read() (*Record, error) {
	data, err := os.ReadFile(m.path)
	if err != nil {
		return nil, err
	}
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("parse %s: %w", m.path, err)
	}
	if rec.PID <= 0 {
		return nil, fmt.Errorf("parse %s: invalid pid %d", m.path, rec.PID)
	}
	return &rec, nil
}

// Live returns the holder when the marker names a running process.
// Stale and unreadable markers report nil.
func (m *Marker) Live() *Record {
	rec, err := m.Read()
	if err != nil || !Alive(rec.PID, rec.Exe) {
		return nil
	}
	return rec
}

// Release removes the marker if it still belongs to rec.
func (m *Marker) Release(rec Record) error {
	return m.clearIf(func(cur *Record) bool {
		return cur.PID == rec.PID && cur.SessionID == rec.SessionID
	})
}

// ClearDead removes the marker if its holder is pid and that process is
// gone.
func (m *Marker) ClearDead(pid int) error {
	return m.clearIf(func(cur *Record) bool {
		return cur.PID == pid && !Alive(cur.PID, cur.Exe)
	})
}

func (m *Marker) clearIf(match func(*Record) bool) error {
	unlock, err := m.lock()
	if err != nil {
		return err
	}
	defer unlock()

	cur, err := m.Read()
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err == nil && !match(cur) {
		return nil
	}
	if err := os.Remove(m.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// lock serializes marker mutation between processes.
func (m *Marker) lock() (func(), error) {
	if err := os.MkdirAll(m.dir, 0o700); err != nil {
		return nil, fmt.Errorf("create state dir: %w", err)
	}
	f, err := os.OpenFile(filepath.Join(m.dir, lockName), os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return nil, fmt.Errorf("open lock: %w", err)
	}
	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX); err != nil {
		f.Close()
		return nil, fmt.Errorf("lock %s: %w", f.Name(), err)
	}
	return func() {
		unix.Flock(int(f.Fd()), unix.LOCK_UN)
		f.Close()
	}, nil
}

// Alive reports whether pid names a running, non-zombie process. When exe
// is set and the process executable can be read, it must match.
func Alive(pid int, exe string) bool {
	if pid <= 0 {
		return false
	}
	if err := unix.Kill(pid, 0); err != nil && !errors.Is(err, unix.EPERM) {
		return false
	}
	if zombie(pid) {
		return false
	}
	if exe != "" {
		if cur, ok := executable(pid); ok && cur != exe {
			return false
		}
	}
	return true
}

func pidString(pid int) string { return strconv.Itoa(pid) }
