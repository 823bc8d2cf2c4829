package coordinator

import (
	"fmt"
	"sync"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Sweeper removes stale games and reports how many it removed.
type Sweeper interface {
	Sweep() int
}

// Reaper runs a Sweeper on a cron schedule so idle games are collected even
// when no new game is requested.
type Reaper struct {
	cron   *cron.Cron
	logger *zap.Logger
	stop   chan struct{}
	once   sync.Once
}

// NewReaper schedules s.
//
// Precondition: schedule must be a standard cron spec or descriptor such as "@every 10m".
// Postcondition: Returns a Reaper that is idle until Start, or an error for a bad schedule.
func NewReaper(schedule string, s Sweeper, logger *zap.Logger) (*Reaper, error) {
	c := cron.New()
	_, err := c.AddFunc(schedule, func() {
		if n := s.Sweep(); n > 0 {
			logger.Info("reaper removed stale games", zap.Int("removed", n))
		}
	})
	if err != nil {
		return nil, fmt.Errorf("scheduling reaper %q: %w", schedule, err)
	}
	return &Reaper{cron: c, logger: logger, stop: make(chan struct{})}, nil
}

// Start runs the schedule until Stop.
func (r *Reaper) Start() error {
	r.cron.Start()
	<-r.stop
	return nil
}

// Stop halts the schedule and waits for a running sweep to finish.
func (r *Reaper) Stop() {
	r.once.Do(func() {
		<-r.cron.Stop().Done()
		close(r.stop)
	})
}
