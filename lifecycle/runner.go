package lifecycle

import (
	"time"

	"github.com/hashicorp/go-multierror"

	"github.com/coastlinevibe/tide"
	"github.com/coastlinevibe/tide/events"
)

type RunnerConfig struct {
	// InactivityWindow for the activity monitor. Defaults to DefaultInactivityWindow.
	InactivityWindow time.Duration

	// SweepInterval for the sweeper. Defaults to DefaultSweepInterval.
	SweepInterval time.Duration

	Logger tide.LoggerAdapter
}

func (c *RunnerConfig) setDefaults() {
	if c.Logger == nil {
		c.Logger = tide.NopLogger{}
	}
}

// Runner owns the three lifecycle monitors and guarantees their teardown.
//
// Timers and the sweep goroutine are acquired on construction and released
// by a single Close; repeated construct/close cycles leak nothing.
type Runner struct {
	connectivity *Connectivity
	activity     *Activity
	sweeper      *Sweeper

	logger tide.LoggerAdapter
}

// NewRunner creates and starts the monitors. The publisher is optional.
func NewRunner(config RunnerConfig, store Store, publisher events.Publisher) *Runner {
	config.setDefaults()

	return &Runner{
		connectivity: NewConnectivity(store, publisher, config.Logger),
		activity: NewActivity(ActivityConfig{
			Window: config.InactivityWindow,
			Logger: config.Logger,
		}, store),
		sweeper: NewSweeper(SweeperConfig{
			Interval: config.SweepInterval,
			Logger:   config.Logger,
		}, store),
		logger: config.Logger,
	}
}

// Connectivity returns the connectivity monitor.
func (r *Runner) Connectivity() *Connectivity {
	return r.connectivity
}

// Touch forwards a user-activity signal to the inactivity monitor.
func (r *Runner) Touch() {
	r.activity.Touch()
}

// Close stops all monitors. Safe to call more than once.
func (r *Runner) Close() error {
	var result *multierror.Error

	if err := r.activity.Close(); err != nil {
		result = multierror.Append(result, err)
	}
	if err := r.sweeper.Close(); err != nil {
		result = multierror.Append(result, err)
	}

	if err := result.ErrorOrNil(); err != nil {
		return err
	}

	r.logger.Debug("Lifecycle monitors stopped", nil)

	return nil
}
