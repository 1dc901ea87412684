package fulfillment

import (
	"context"
	"errors"
	"time"

	"github.com/chanmarket/autoseller/credential"
	"github.com/chanmarket/autoseller/marketplace"
	"github.com/lightningnetwork/lnd/ticker"
)

const (
	// MinPollInterval is the shortest interval between two cycles.
	MinPollInterval = 10 * time.Second

	// DefaultPollInterval is the interval between two cycles if none is
	// configured.
	DefaultPollInterval = time.Minute
)

// ClampPollInterval returns the interval raised to MinPollInterval.
func ClampPollInterval(interval time.Duration) time.Duration {
	if interval < MinPollInterval {
		return MinPollInterval
	}

	return interval
}

// Cycler runs a single poll cycle.
type Cycler interface {
	// RunCycle processes the open orders once.
	RunCycle(ctx context.Context) (*CycleReport, error)
}

// CredentialRenewer is the part of the credential manager the scheduler
// uses to recover from a rejected credential.
type CredentialRenewer interface {
	// MarkRejected invalidates the current credential.
	MarkRejected()

	// Renew obtains a new credential.
	Renew(ctx context.Context) (*credential.Credential, error)
}

// SchedulerConfig holds the dependencies of the scheduler.
type SchedulerConfig struct {
	// Cycler is invoked on every tick.
	Cycler Cycler

	// Credentials is renewed when the marketplace rejects the current
	// credential.
	Credentials CredentialRenewer

	// Ticker triggers the cycles. If nil a ticker with Interval is
	// created.
	Ticker ticker.Ticker

	// Interval is the poll interval. It is raised to MinPollInterval.
	Interval time.Duration
}

// Scheduler drives the poll cycles.
type Scheduler struct {
	cfg *SchedulerConfig
}

// NewScheduler creates a new scheduler.
func NewScheduler(cfg *SchedulerConfig) *Scheduler {
	if cfg.Interval == 0 {
		cfg.Interval = DefaultPollInterval
	}
	cfg.Interval = ClampPollInterval(cfg.Interval)

	if cfg.Ticker == nil {
		cfg.Ticker = ticker.New(cfg.Interval)
	}

	return &Scheduler{
		cfg: cfg,
	}
}

// Run runs a cycle right away and then one per tick until the context is
// canceled. Cycle errors are logged and never end the loop.
func (s *Scheduler) Run(ctx context.Context) error {
	log.Infof("Polling orders every %v", s.cfg.Interval)

	s.cfg.Ticker.Resume()
	defer s.cfg.Ticker.Stop()

	s.runCycle(ctx)

	for {
		select {
		case <-s.cfg.Ticker.Ticks():
			s.runCycle(ctx)

		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// runCycle runs a single cycle. If the marketplace rejected the credential,
// the credential is renewed and the cycle repeated once. A credential that
// is rejected on the repeated cycle is marked rejected and never used again.
func (s *Scheduler) runCycle(ctx context.Context) {
	_, err := s.cfg.Cycler.RunCycle(ctx)
	switch {
	case err == nil:
		return

	case ctx.Err() != nil:
		log.Debugf("Cycle interrupted: %v", err)
		return

	case !errors.Is(err, marketplace.ErrAuthRejected):
		log.Errorf("Cycle failed: %v", err)
		return
	}

	log.Warnf("Marketplace rejected credential, renewing: %v", err)
	s.cfg.Credentials.MarkRejected()

	if _, err := s.cfg.Credentials.Renew(ctx); err != nil {
		log.Errorf("Unable to renew credential, retrying next cycle: "+
			"%v", err)

		return
	}

	_, err = s.cfg.Cycler.RunCycle(ctx)
	switch {
	case err == nil || ctx.Err() != nil:
		return

	// The renewed credential was rejected as well. It must not be sent
	// again, the next cycle renews it first.
	case errors.Is(err, marketplace.ErrAuthRejected):
		log.Errorf("Renewed credential rejected, renewing next "+
			"cycle: %v", err)
		s.cfg.Credentials.MarkRejected()

	default:
		log.Errorf("Cycle failed after credential renewal: %v", err)
	}
}
