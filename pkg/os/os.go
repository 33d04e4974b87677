package os

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"
)

// Termination waits for the first interrupt or SIGTERM of the process.
// Only the first one is caught, a second signal ends the process as usual.
type Termination struct {
	signals chan os.Signal
	done    chan struct{}
	quit    chan struct{}
	once    sync.Once
	sig     os.Signal
}

func ExpectTermination() *Termination {
	t := &Termination{
		signals: make(chan os.Signal, 1),
		done:    make(chan struct{}),
		quit:    make(chan struct{}),
	}
	signal.Notify(t.signals, os.Interrupt, syscall.SIGTERM)
	go t.wait()
	return t
}

func (t *Termination) wait() {
	defer signal.Stop(t.signals)
	select {
	case sig := <-t.signals:
		t.sig = sig
		close(t.done)
	case <-t.quit:
	}
}

// Done is closed when a signal is caught.
func (t *Termination) Done() <-chan struct{} { return t.done }

// Signal returns the caught signal or nil.
func (t *Termination) Signal() os.Signal {
	select {
	case <-t.done:
		return t.sig
	default:
		return nil
	}
}

// Context returns a copy of parent that is cancelled on termination.
func (t *Termination) Context(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)
	go func() {
		select {
		case <-t.done:
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}

// Stop gives the signals back to the default handling, Done stays open.
func (t *Termination) Stop() { t.once.Do(func() { close(t.quit) }) }
