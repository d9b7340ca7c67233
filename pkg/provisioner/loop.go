package provisioner

import (
	"context"
	"os"
	"sync"
	"time"

	"github.com/cuemby/fleet-provisioner/pkg/metrics"
	"github.com/cuemby/fleet-provisioner/pkg/watchdog"
	"github.com/rs/zerolog"
)

// Sweeper runs one full reconciliation sweep
type Sweeper interface {
	RunAllProvisionersOnce(ctx context.Context) error
}

// LoopConfig controls the outer control loop
type LoopConfig struct {
	Interval               time.Duration // pause between sweeps
	WatchdogTimeout        time.Duration // longest a sweep may go without a touch
	MaxConsecutiveFailures int           // fatal once failures exceed this
	FatalGrace             time.Duration // delay before the hard exit
	Once                   bool          // run a single sweep and return
}

// Stats are the loop's in-memory iteration counters
type Stats struct {
	Runs                int
	ConsecutiveFailures int
	LastErr             error
	LastSweep           time.Time
}

// Loop repeats sweeps until stopped. A sweep that hangs past the watchdog
// window or a run of failed sweeps is fatal: Run schedules a hard process
// exit and returns a *FatalError.
type Loop struct {
	cfg     LoopConfig
	sweeper Sweeper
	logger  zerolog.Logger
	exit    func(code int)

	mu          sync.Mutex
	active      bool
	keepRunning bool
	stats       Stats
	wd          *watchdog.Watchdog
	wake        chan struct{}
}

// NewLoop creates a stopped loop around sweeper
func NewLoop(cfg LoopConfig, sweeper Sweeper, logger zerolog.Logger) *Loop {
	return &Loop{
		cfg:     cfg,
		sweeper: sweeper,
		logger:  logger,
		exit:    os.Exit,
	}
}

// Run drives sweeps until Stop, ctx ends, or a fatal condition. It returns
// nil after Stop or a single sweep in run-once mode.
func (l *Loop) Run(ctx context.Context) error {
	expired := make(chan struct{}, 1)
	wd := watchdog.New(l.cfg.WatchdogTimeout, func() {
		select {
		case expired <- struct{}{}:
		default:
		}
	})

	l.mu.Lock()
	if l.active {
		l.mu.Unlock()
		return ErrAlreadyRunning
	}
	l.active = true
	l.keepRunning = true
	l.wd = wd
	l.wake = make(chan struct{})
	wake := l.wake
	l.mu.Unlock()

	defer func() {
		wd.Stop()
		l.mu.Lock()
		l.active = false
		l.keepRunning = false
		l.mu.Unlock()
	}()

	l.logger.Info().
		Dur("interval", l.cfg.Interval).
		Dur("watchdog_timeout", l.cfg.WatchdogTimeout).
		Bool("once", l.cfg.Once).
		Msg("provisioning loop started")

	wd.Start()
	for {
		wd.Touch()

		if stats := l.Stats(); stats.ConsecutiveFailures > l.cfg.MaxConsecutiveFailures {
			return l.fatal(ErrTooManyFailures, stats)
		}

		done := make(chan error, 1)
		timer := metrics.NewTimer()
		go func() {
			done <- l.sweeper.RunAllProvisionersOnce(ctx)
		}()

		select {
		case err := <-done:
			timer.ObserveDuration(metrics.SweepDuration)
			l.record(err, timer.Duration())
		case <-expired:
			return l.fatal(ErrWatchdogExpired, l.Stats())
		}

		if l.cfg.Once || !l.running() {
			return nil
		}

		// The pause gets its own watchdog window
		wd.Touch()
		pause := time.NewTimer(l.cfg.Interval)
		select {
		case <-pause.C:
		case <-wake:
			pause.Stop()
			return nil
		case <-ctx.Done():
			pause.Stop()
			return ctx.Err()
		case <-expired:
			pause.Stop()
			return l.fatal(ErrWatchdogExpired, l.Stats())
		}
	}
}

// Stop clears the keep-running flag, stops the watchdog and resets stats.
// A sweep already in flight is not aborted.
func (l *Loop) Stop() {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.keepRunning {
		l.keepRunning = false
		close(l.wake)
	}
	if l.wd != nil {
		l.wd.Stop()
	}
	l.stats = Stats{}
	metrics.ConsecutiveFailures.Set(0)
}

// Stats returns a copy of the iteration counters
func (l *Loop) Stats() Stats {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.stats
}

func (l *Loop) running() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.keepRunning
}

func (l *Loop) record(err error, took time.Duration) {
	metrics.SweepsTotal.Inc()

	l.mu.Lock()
	// A sweep that finishes after Stop must not repopulate the reset stats
	if !l.keepRunning {
		l.mu.Unlock()
		return
	}
	l.stats.Runs++
	l.stats.LastSweep = time.Now()
	if err == nil {
		l.stats.ConsecutiveFailures = 0
		l.stats.LastErr = nil
	} else {
		l.stats.ConsecutiveFailures++
		l.stats.LastErr = err
	}
	stats := l.stats
	l.mu.Unlock()

	metrics.ConsecutiveFailures.Set(float64(stats.ConsecutiveFailures))

	if err != nil {
		metrics.SweepsFailed.Inc()
		metrics.UpdateComponent(metrics.ComponentProvisioner, false, err.Error())
		l.logger.Error().
			Err(err).
			Int("run", stats.Runs).
			Int("consecutive_failures", stats.ConsecutiveFailures).
			Dur("took", took).
			Msg("sweep failed")
		return
	}

	metrics.UpdateComponent(metrics.ComponentProvisioner, true, "")
	l.logger.Info().Int("run", stats.Runs).Dur("took", took).Msg("sweep completed")
}

// fatal schedules the hard exit and builds the error Run returns
func (l *Loop) fatal(reason error, stats Stats) error {
	ferr := &FatalError{
		Reason:              reason,
		ConsecutiveFailures: stats.ConsecutiveFailures,
		LastErr:             stats.LastErr,
	}

	metrics.UpdateComponent(metrics.ComponentProvisioner, false, ferr.Error())
	l.logger.Error().
		Err(ferr).
		Dur("grace", l.cfg.FatalGrace).
		Int("exit_code", ExitCodeFatal).
		Msg("fatal condition, exiting after grace period")

	exit := l.exit
	time.AfterFunc(l.cfg.FatalGrace, func() { exit(ExitCodeFatal) })
	return ferr
}
