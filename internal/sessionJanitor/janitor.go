package sessionJanitor

import (
	"context"
	"errors"
	"time"

	"github.com/japersik/weather-map/logger"
)

const defaultSweepInterval = time.Minute

type Sweeper interface {
	RemoveIdle(cutoff time.Time) []string
}

// Janitor periodically closes sessions nobody has touched for a while.
type Janitor struct {
	sweeper  Sweeper
	idle     time.Duration
	interval time.Duration
	now      func() time.Time
}

//NewJanitor closes sessions idle for longer than idle, checking every interval (one minute when unset).
func NewJanitor(sweeper Sweeper, idle, interval time.Duration) *Janitor {
	if interval <= 0 {
		interval = defaultSweepInterval
	}
	return &Janitor{sweeper: sweeper, idle: idle, interval: interval, now: time.Now}
}

//Start sweeps every interval until ctx is done. A zero idle timeout disables sweeping.
func (j *Janitor) Start(ctx context.Context) error {
	if j.sweeper == nil {
		return errors.New("sweeper not defined")
	}
	if j.idle <= 0 {
		<-ctx.Done()
		return nil
	}
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			j.Sweep()
		case <-ctx.Done():
			return nil
		}
	}
}

//Sweep removes the sessions idle for longer than the timeout.
func (j *Janitor) Sweep() []string {
	removed := j.sweeper.RemoveIdle(j.now().Add(-j.idle))
	if len(removed) > 0 {
		logger.InfoF("closed %d idle session(s): %v", len(removed), removed)
	}
	return removed
}
