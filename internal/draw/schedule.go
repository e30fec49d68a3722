package draw

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// schedule is a cancellable periodic task backed by a clockwork ticker.
type schedule struct {
	ticker clockwork.Ticker
	done   chan struct{}
	once   sync.Once
}

func every(clock clockwork.Clock, interval time.Duration, fn func(*schedule)) *schedule {
	s := &schedule{
		ticker: clock.NewTicker(interval),
		done:   make(chan struct{}),
	}
	go func() {
		for {
			select {
			case <-s.done:
				return
			case <-s.ticker.Chan():
				select {
				case <-s.done:
					return
				default:
				}
				fn(s)
			}
		}
	}()
	return s
}

// Stop cancels the task. It does not wait for an in-flight callback; callers
// rely on the engine state check inside the callback instead.
func (s *schedule) Stop() {
	s.once.Do(func() {
		s.ticker.Stop()
		close(s.done)
	})
}
