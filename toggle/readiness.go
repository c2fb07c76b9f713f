package toggle

import (
	"os"
	"strconv"
	"sync"
)

const (
	ReadyFDEnv = "LINUXST_READY_FD"

	msgReady = "ready"
	msgBusy  = "busy"
)

// Readiness is the child end of the pipe a toggle waits on after spawning
// a recorder. A nil *Readiness ignores every call.
type Readiness struct {
	f    *os.File
	once sync.Once
}

// ReadinessFromEnv opens the inherited readiness pipe, if any.
func ReadinessFromEnv() *Readiness {
	v := os.Getenv(ReadyFDEnv)
	if v == "" {
		return nil
	}
	os.Unsetenv(ReadyFDEnv)
	fd, err := strconv.Atoi(v)
	if err != nil || fd < 3 {
		return nil
	}
	return &Readiness{f: os.NewFile(uintptr(fd), "readiness")}
}

// Ready tells the parent that recording has started.
func (r *Readiness) Ready() { r.send(msgReady) }

// Busy tells the parent that another session holds the marker.
func (r *Readiness) Busy() { r.send(msgBusy) }

// Close releases the pipe without a message.
func (r *Readiness) Close() { r.send("") }

func (r *Readiness) send(msg string) {
	if r == nil {
		return
	}
	r.once.Do(func() {
		if msg != "" {
			r.f.WriteString(msg + "\n")
		}
		r.f.Close()
	})
}
