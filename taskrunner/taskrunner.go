// Package taskrunner runs one cancellable background task at a time.
// Starting a task replaces the running one: it is cancelled and waited for
// before the new one begins.
package taskrunner

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Moonlight-Companies/gologger/coloransi"
	"github.com/Moonlight-Companies/gologger/logger"
)

// DefaultPollInterval is the pause between RunRetry attempts
const DefaultPollInterval = 50 * time.Millisecond

// Action is the body of a task. It must return once ctx is done.
type Action func(ctx context.Context) error

type Runner struct {
	PollInterval time.Duration

	log *logger.Logger

	// runMu serializes Run and RunRetry so replacing a task is atomic
	runMu sync.Mutex

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
	err    error
}

// New returns an idle runner logging under name
func New(name string) *Runner {
	return &Runner{
		PollInterval: DefaultPollInterval,
		log:          logger.NewLogger(coloransi.Color(coloransi.ColorPurple, coloransi.ColorOrange, name)),
	}
}

// Run starts action in the background
func (r *Runner) Run(action Action) {
	r.runMu.Lock()
	defer r.runMu.Unlock()

	r.Cancel()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	r.mu.Lock()
	r.cancel = cancel
	r.done = done
	r.err = nil
	r.mu.Unlock()

	go func() {
		defer close(done)
		defer cancel()

		err := r.invoke(ctx, action)

		r.mu.Lock()
		r.err = err
		r.mu.Unlock()
	}()
}

// RunRetry runs action until done reports true, sleeping PollInterval
// between attempts. An error from action ends the task.
func (r *Runner) RunRetry(action Action, done func() bool) {
	r.Run(func(ctx context.Context) error {
		for {
			if err := ctx.Err(); err != nil {
				return err
			}

			if err := action(ctx); err != nil {
				return err
			}

			if done() {
				return nil
			}

			if err := Sleep(ctx, r.PollInterval); err != nil {
				return err
			}
		}
	})
}

func (r *Runner) invoke(ctx context.Context, action Action) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("task panicked: %v", p)
		}

		switch {
		case err == nil:
		case errors.Is(err, context.Canceled):
			r.log.Infoln("Task cancelled")
		default:
			r.log.Warn("Task aborted due to error: ", err)
		}
	}()

	return action(ctx)
}

// Cancel stops the running task and waits for it to return
func (r *Runner) Cancel() {
	r.mu.Lock()
	cancel, done := r.cancel, r.done
	r.mu.Unlock()

	if cancel == nil {
		return
	}

	cancel()
	<-done
}

// Wait blocks until the current task returns and reports its error
func (r *Runner) Wait() error {
	r.mu.Lock()
	done := r.done
	r.mu.Unlock()

	if done == nil {
		return nil
	}

	<-done

	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

// WaitForCompletion is Wait bounded by ctx
func (r *Runner) WaitForCompletion(ctx context.Context) error {
	r.mu.Lock()
	done := r.done
	r.mu.Unlock()

	if done == nil {
		return nil
	}

	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

// IsCompleted reports whether no task is running
func (r *Runner) IsCompleted() bool {
	r.mu.Lock()
	done := r.done
	r.mu.Unlock()

	if done == nil {
		return true
	}

	select {
	case <-done:
		return true
	default:
		return false
	}
}

// Err returns the error of the last finished task
func (r *Runner) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

// Sleep pauses for d or until ctx is done
func Sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
