// Package lifecycle orchestrates the bridge's components — order cache,
// HL7 listener, worklist SCP, sweeper — through a single start/stop
// sequence (§4.8), so cmd/ormbridge only needs to construct a Bridge from
// config and drive it from a signal handler.
package lifecycle

import (
	"context"
	"sync"
	"time"

	"github.com/healthbridge/ormworklist/internal/cache"
	"github.com/healthbridge/ormworklist/internal/config"
	"github.com/healthbridge/ormworklist/internal/hl7listener"
	"github.com/healthbridge/ormworklist/internal/sweeper"
	"github.com/healthbridge/ormworklist/internal/worklist"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// stopGrace bounds how long Stop waits for the component tree to drain
// after its context is cancelled, per §4.8/§5.
const stopGrace = 5 * time.Second

// Bridge wires the order cache to the HL7 listener, the worklist SCP, and
// the sweeper, and runs them as one supervised goroutine tree.
type Bridge struct {
	Cache    *cache.Cache
	HL7      *hl7listener.Listener
	Worklist *worklist.SCP
	Sweeper  *sweeper.Sweeper
	Log      *logrus.Entry

	startOnce sync.Once
	stopOnce  sync.Once
	cancel    context.CancelFunc
	done      chan error
}

// New builds a Bridge from cfg, creating the order cache at
// cfg.Cache.Folder. Component construction order mirrors §4.8: cache
// first (everything else depends on it), then HL7 listener, worklist SCP,
// and sweeper.
func New(cfg *config.Config, log *logrus.Entry) (*Bridge, error) {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}

	c, err := cache.New(cfg.Cache.Folder, cfg.HL7.MaxORMsPerPatient, log)
	if err != nil {
		return nil, err
	}

	hl7 := hl7listener.New(cfg.HL7.ListenIP, cfg.HL7.ListenPort, c, log)
	scp := worklist.New(cfg.HL7.ListenIP, cfg.Dicom.ListenPort, cfg.Dicom.AETitle, cfg.Dicom.MaxConnections, c, log)
	sw := sweeper.New(c, time.Duration(cfg.Cache.CleanupIntervalMinutes)*time.Minute,
		cfg.Order.ExpiryHours, cfg.Cache.AutoCleanup, cfg.Cache.RetentionDays, log)

	return &Bridge{
		Cache:    c,
		HL7:      hl7,
		Worklist: scp,
		Sweeper:  sw,
		Log:      log.WithField("component", "lifecycle"),
		done:     make(chan error, 1),
	}, nil
}

// Start launches every component under a single cancellable context and
// returns immediately; each component's accept loop binds asynchronously,
// logging a warning if a bind fails. A second Start call is a no-op.
func (b *Bridge) Start(ctx context.Context) error {
	var startErr error
	b.startOnce.Do(func() {
		runCtx, cancel := context.WithCancel(ctx)
		b.cancel = cancel

		group, gctx := errgroup.WithContext(runCtx)
		group.Go(func() error { return b.HL7.Run(gctx) })
		group.Go(func() error { return b.Worklist.Run(gctx) })
		group.Go(func() error { return b.Sweeper.Run(gctx) })

		go func() {
			b.done <- group.Wait()
		}()

		b.Log.Info("bridge started")
	})
	return startErr
}

// Stop cancels the running component tree and waits up to stopGrace for
// it to exit, returning whatever error (if any) the tree surfaced. A
// second Stop call is a no-op.
func (b *Bridge) Stop(ctx context.Context) error {
	var stopErr error
	b.stopOnce.Do(func() {
		if b.cancel == nil {
			return
		}
		b.cancel()

		select {
		case err := <-b.done:
			stopErr = err
		case <-time.After(stopGrace):
			b.Log.Warn("component tree did not stop within grace period")
		case <-ctx.Done():
			stopErr = ctx.Err()
		}
		b.Log.Info("bridge stopped")
	})
	return stopErr
}
