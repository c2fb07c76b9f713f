package shutdown

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"linuxst/log"
)

var Signals = []os.Signal{os.Interrupt, syscall.SIGTERM}

func Notify(ch chan os.Signal) {
	signal.Notify(ch, Signals...)
}

// Context is cancelled by the first stop signal. The handler stays
// installed until release is called, so later signals are logged and
// dropped instead of terminating the process.
func Context(parent context.Context) (ctx context.Context, release func()) {
	ctx, cancel := context.WithCancel(parent)
	ch := make(chan os.Signal, 4)
	Notify(ch)
	done := make(chan struct{})
	go func() {
		stopped := false
		for {
			select {
			case sig := <-ch:
				if stopped {
					log.Infof("ignoring %s: stop already in progress", sig)
					continue
				}
				stopped = true
				log.Infof("stop signal received (%s)", sig)
				cancel()
			case <-done:
				return
			}
		}
	}()
	return ctx, func() {
		signal.Stop(ch)
		close(done)
		cancel()
	}
}
