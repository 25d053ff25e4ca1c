package flow

import (
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// Sweeper runs the Store's background expiry sweep on a fixed interval.
type Sweeper struct {
	store *Store
	cron  *cron.Cron
}

// NewSweeper schedules store.Sweep to run every interval.
func NewSweeper(store *Store, interval time.Duration) *Sweeper {
	c := cron.New(cron.WithSeconds())
	spec := "@every " + interval.String()
	_, err := c.AddFunc(spec, func() {
		if n := store.Sweep(); n > 0 {
			slog.Debug("flow sweep cleared inactive sessions", "count", n)
		}
	})
	if err != nil {
		slog.Error("flow sweeper: invalid interval", "error", err, "interval", interval)
	}
	return &Sweeper{store: store, cron: c}
}

// Start begins the sweep schedule in the background.
func (s *Sweeper) Start() {
	s.cron.Start()
}

// Stop halts the sweep schedule.
func (s *Sweeper) Stop() {
	s.cron.Stop()
}
