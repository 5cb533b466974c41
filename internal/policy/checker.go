package policy

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"assent/internal/ledger/models"
)

const defaultCheckInterval = time.Hour

// ConsentSource is the slice of the ledger the renewal checker reads.
type ConsentSource interface {
	ActiveUserIDs() []string
	Snapshot(ctx context.Context, userID string) (*models.State, error)
}

// Notifier receives expiring-consent notifications.
type Notifier interface {
	ConsentExpiring(ctx context.Context, userID string, category models.Category, expiry time.Time, daysRemaining int)
}

// Checker periodically sweeps active users for consents inside the renewal
// window and notifies once per grant. A renewed grant moves the expiry and
// re-arms the notification.
type Checker struct {
	gate     *Gate
	source   ConsentSource
	notifier Notifier
	logger   *slog.Logger
	interval time.Duration
	now      func() time.Time

	// expiry last notified for, keyed by userID + category.
	mu       sync.Mutex
	notified map[string]time.Time

	stop chan struct{}
	done chan struct{}
}

// CheckerOption configures a Checker.
type CheckerOption func(*Checker)

// WithCheckInterval sets the sweep interval.
func WithCheckInterval(d time.Duration) CheckerOption {
	return func(c *Checker) {
		if d > 0 {
			c.interval = d
		}
	}
}

// WithCheckerLogger sets the logger.
func WithCheckerLogger(logger *slog.Logger) CheckerOption {
	return func(c *Checker) {
		c.logger = logger
	}
}

// WithCheckerClock overrides the time source for tests.
func WithCheckerClock(now func() time.Time) CheckerOption {
	return func(c *Checker) {
		if now != nil {
			c.now = now
		}
	}
}

// NewChecker creates a renewal checker. Call Start to begin sweeping.
func NewChecker(gate *Gate, source ConsentSource, notifier Notifier, opts ...CheckerOption) *Checker {
	c := &Checker{
		gate:     gate,
		source:   source,
		notifier: notifier,
		logger:   slog.Default(),
		interval: defaultCheckInterval,
		now:      time.Now,
		notified: make(map[string]time.Time),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Start launches the background sweep loop.
func (c *Checker) Start(ctx context.Context) {
	go c.run(ctx)
}

func (c *Checker) run(ctx context.Context) {
	defer close(c.done)
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.stop:
			return
		case <-ticker.C:
			c.Sweep(ctx)
		}
	}
}

// Close stops the sweep loop and waits for it to exit.
func (c *Checker) Close() {
	close(c.stop)
	<-c.done
}

// Sweep runs one renewal pass over all active users.
func (c *Checker) Sweep(ctx context.Context) {
	now := c.now()
	for _, userID := range c.source.ActiveUserIDs() {
		state, err := c.source.Snapshot(ctx, userID)
		if err != nil {
			c.logger.WarnContext(ctx, "renewal sweep skipping user",
				slog.String("user_id", userID),
				slog.String("error", err.Error()))
			continue
		}
		report := c.gate.CheckRenewal(state, now)
		for _, exp := range report.Expiring {
			key := userID + "|" + string(exp.Category)
			c.mu.Lock()
			last, seen := c.notified[key]
			if seen && last.Equal(exp.Expiry) {
				c.mu.Unlock()
				continue
			}
			c.notified[key] = exp.Expiry
			c.mu.Unlock()
			c.notifier.ConsentExpiring(ctx, userID, exp.Category, exp.Expiry, exp.DaysRemaining)
		}
	}
}
