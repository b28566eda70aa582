package utils

import (
	"time"
)

type IntervalTimer interface {
	Stop()
}

type timeInterval struct {
	quit chan<- struct{}
}

func (t *timeInterval) Stop() {
	t.quit <- struct{}{}
}

// SetIntervalTimer invokes function every duration until Stop is called.
// Stop blocks until the loop has observed it, so function never fires after
// Stop returns.
func SetIntervalTimer(duration time.Duration, function func()) IntervalTimer {
	ticker := time.NewTicker(duration)
	quit := make(chan struct{})
	go func() {
		for {
			select {
			case <-ticker.C:
				function()
			case <-quit:
				ticker.Stop()
				return
			}
		}
	}()
	return &timeInterval{quit: quit}
}
