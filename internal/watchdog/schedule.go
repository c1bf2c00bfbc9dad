package watchdog

import (
	"sync"
	"time"
)

// Task is a cancellable scheduled action.
type Task interface {
	// Cancel stops future runs. It does not wait for a run in progress.
	Cancel()
}

// Scheduler creates the poll and debounce tasks of a Controller.
type Scheduler interface {
	// Every runs fn every d until cancelled. The first run is after d.
	Every(d time.Duration, fn func()) Task

	// After runs fn once after d unless cancelled first.
	After(d time.Duration, fn func()) Task
}

// TimeScheduler is the Scheduler backed by the runtime timers.
type TimeScheduler struct{}

type tickerTask struct {
	done chan struct{}
	once sync.Once
}

func (t *tickerTask) Cancel() {
	t.once.Do(func() { close(t.done) })
}

func (TimeScheduler) Every(d time.Duration, fn func()) Task {
	t := &tickerTask{done: make(chan struct{})}
	tk := time.NewTicker(d)
	go func() {
		defer tk.Stop()
		for {
			select {
			case <-t.done:
				return
			case <-tk.C:
				// Cancel may race with a tick that was already pending.
				select {
				case <-t.done:
					return
				default:
				}
				fn()
			}
		}
	}()
	return t
}

type timerTask struct {
	t *time.Timer
}

func (t timerTask) Cancel() { t.t.Stop() }

func (TimeScheduler) After(d time.Duration, fn func()) Task {
	return timerTask{t: time.AfterFunc(d, fn)}
}
