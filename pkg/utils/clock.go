package utils

import (
	"sync"
	"time"
)

// Clock abstracts wall time and periodic callbacks so timers can be
// inspected in tests.
type Clock interface {
	Now() time.Time
	// Every runs fn every d until stop is called. stop never blocks on a
	// running fn, so it may be called while holding locks fn also takes.
	Every(d time.Duration, fn func()) (stop func())
}

// SystemClock returns the Clock backed by package time.
func SystemClock() Clock {
	return systemClock{}
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

func (systemClock) Every(d time.Duration, fn func()) func() {
	ticker := time.NewTicker(d)
	done := make(chan struct{})
	var once sync.Once

	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				select {
				case <-done:
					return
				default:
				}
				fn()
			}
		}
	}()

	return func() {
		once.Do(func() { close(done) })
	}
}
