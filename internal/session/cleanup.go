package session

import (
	"log/slog"
	"time"

	"devserver/internal/monitor"
)

// CleanupConfig controls how long closed sessions stay discoverable.
type CleanupConfig struct {
	Interval  time.Duration // sweep interval
	Retention time.Duration // closed sessions older than this are purged; 0 keeps them forever
}

// Cleaner periodically purges sessions that have been closed for longer than the retention.
type Cleaner struct {
	purger Purger
	logger *slog.Logger
	config CleanupConfig
	now    func() time.Time
	stopCh chan struct{}
}

func NewCleaner(purger Purger, config CleanupConfig, logger *slog.Logger) *Cleaner {
	if config.Interval <= 0 {
		config.Interval = time.Minute
	}
	return &Cleaner{
		purger: purger,
		logger: logger.With("component", "session-cleaner"),
		config: config,
		now:    time.Now,
		stopCh: make(chan struct{}),
	}
}

// Start runs the sweep loop until Stop is called. It blocks.
func (c *Cleaner) Start() {
	if c.config.Retention <= 0 {
		c.logger.Debug("Session cleaner disabled, closed sessions are retained")
		<-c.stopCh
		return
	}

	ticker := time.NewTicker(c.config.Interval)
	defer ticker.Stop()

	c.logger.Info("Session cleaner started",
		"interval", c.config.Interval,
		"retention", c.config.Retention,
	)

	for {
		select {
		case <-c.stopCh:
			c.logger.Info("Session cleaner stopped")
			return
		case <-ticker.C:
			c.Sweep()
		}
	}
}

func (c *Cleaner) Stop() {
	select {
	case <-c.stopCh:
	default:
		close(c.stopCh)
	}
}

// Sweep purges expired closed sessions once and returns how many were removed.
func (c *Cleaner) Sweep() int {
	if c.config.Retention <= 0 {
		return 0
	}

	purged := c.purger.PurgeClosed(c.now().Add(-c.config.Retention))
	for _, id := range purged {
		c.logger.Debug("Purged closed session", "session_id", id)
	}
	if len(purged) > 0 {
		monitor.SessionPurgedTotal.Add(float64(len(purged)))
		c.logger.Info("Session cleanup completed", "purged", len(purged))
	}
	return len(purged)
}
