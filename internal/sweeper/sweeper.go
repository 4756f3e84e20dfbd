// Package sweeper implements §4.7: a periodic tick that expires orders
// older than the configured horizon and, optionally, purges stale cache
// files by retention age.
package sweeper

import (
	"context"
	"time"

	"github.com/healthbridge/ormworklist/internal/cache"
	"github.com/sirupsen/logrus"
)

// tickGrace bounds how long one tick waits for its sweep, counted from the
// start of the tick; cancelling the parent context ends the wait at once.
// A sweep that outlasts the wait is not interrupted: it keeps running in
// its goroutine until it finishes.
const tickGrace = 5 * time.Second

// Sweeper fires SweepExpired (and, when AutoCleanup is set, SweepOld)
// against Cache every Interval.
type Sweeper struct {
	Cache       *cache.Cache
	Interval    time.Duration
	ExpiryHours int

	AutoCleanup   bool
	RetentionDays int

	Log *logrus.Entry
}

// New returns a Sweeper ready to Run.
func New(c *cache.Cache, interval time.Duration, expiryHours int, autoCleanup bool, retentionDays int, log *logrus.Entry) *Sweeper {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Sweeper{
		Cache: c, Interval: interval, ExpiryHours: expiryHours,
		AutoCleanup: autoCleanup, RetentionDays: retentionDays,
		Log: log.WithField("component", "sweeper"),
	}
}

// Run ticks until ctx is cancelled. Ticks run one after another on this
// goroutine; time.Ticker drops ticks that fire while a tick is running,
// keeping at most one to run as soon as the current tick returns. A sweep
// abandoned after tickGrace may still be running when the next one starts.
func (s *Sweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

func (s *Sweeper) tick(parent context.Context) {
	ctx, cancel := context.WithTimeout(parent, tickGrace)
	defer cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		s.sweepOnce()
	}()

	select {
	case <-done:
	case <-ctx.Done():
		s.Log.Warn("sweep tick did not complete within grace period")
	}
}

func (s *Sweeper) sweepOnce() {
	expired, err := s.Cache.SweepExpired(s.ExpiryHours)
	if err != nil {
		s.Log.WithError(err).Error("expiry sweep failed")
	} else if expired > 0 {
		s.Log.WithField("removed", expired).Info("expired orders removed")
	}

	if !s.AutoCleanup {
		return
	}
	old, err := s.Cache.SweepOld(s.RetentionDays)
	if err != nil {
		s.Log.WithError(err).Error("retention sweep failed")
	} else if old > 0 {
		s.Log.WithField("removed", old).Info("stale cache files removed")
	}
}
