package lifecycle

import (
	"sync"
	"time"

	"github.com/coastlinevibe/tide"
)

// DefaultSweepInterval is how often expired records are physically removed.
const DefaultSweepInterval = time.Minute

type SweeperConfig struct {
	// Interval between sweeps. Defaults to DefaultSweepInterval.
	Interval time.Duration

	Logger tide.LoggerAdapter
}

func (c *SweeperConfig) setDefaults() {
	if c.Interval == 0 {
		c.Interval = DefaultSweepInterval
	}
	if c.Logger == nil {
		c.Logger = tide.NopLogger{}
	}
}

// Sweeper periodically removes expired records from the store.
type Sweeper struct {
	config SweeperConfig
	store  Store

	closing   chan struct{}
	closed    bool
	closeLock sync.Mutex
	done      sync.WaitGroup
}

// NewSweeper creates and starts the sweeper.
func NewSweeper(config SweeperConfig, store Store) *Sweeper {
	config.setDefaults()

	s := &Sweeper{
		config:  config,
		store:   store,
		closing: make(chan struct{}),
	}

	s.done.Add(1)
	go s.run()

	return s
}

func (s *Sweeper) run() {
	defer s.done.Done()

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if removed := s.store.Sweep(); removed > 0 {
				s.config.Logger.Trace("Sweep removed records", tide.LogFields{
					"count": removed,
				})
			}
		case <-s.closing:
			return
		}
	}
}

// Close stops the sweeper and waits for a running sweep to finish.
func (s *Sweeper) Close() error {
	s.closeLock.Lock()
	defer s.closeLock.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	close(s.closing)

	s.done.Wait()

	return nil
}
