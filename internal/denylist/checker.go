package denylist

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/swpuclaylee/APIFlask/internal/autherr"
	"github.com/swpuclaylee/APIFlask/internal/logging"
	"github.com/swpuclaylee/APIFlask/internal/metrics"
)

const (
	// FailClosed treats a token as revoked when the store cannot answer.
	FailClosed = "closed"
	// FailOpen treats a token as not revoked when the store cannot answer.
	FailOpen = "open"

	defaultTimeout = 200 * time.Millisecond
)

// CheckerConfig configures a Checker. Zero values select a 200ms timeout and fail-closed.
type CheckerConfig struct {
	Timeout  time.Duration
	FailMode string
	Logger   *logrus.Logger
	Metrics  *metrics.Metrics
}

// Checker answers revocation probes against a Store with a bounded wait and an explicit
// policy for outages. It never returns a store error from IsRevoked.
type Checker struct {
	store    Store
	timeout  time.Duration
	failOpen bool
	logger   *logrus.Logger
	metrics  *metrics.Metrics
}

// NewChecker returns a Checker over store.
func NewChecker(store Store, cfg CheckerConfig) *Checker {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Checker{
		store:    store,
		timeout:  timeout,
		failOpen: cfg.FailMode == FailOpen,
		logger:   logging.OrDiscard(cfg.Logger),
		metrics:  cfg.Metrics,
	}
}

// FailMode returns the configured outage policy.
func (c *Checker) FailMode() string {
	if c.failOpen {
		return FailOpen
	}
	return FailClosed
}

// IsRevoked reports whether jti is on the denylist. When the store errors or does not answer
// within the timeout, the result is decided by the fail mode.
func (c *Checker) IsRevoked(ctx context.Context, jti string) bool {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	found, err := c.store.Exists(ctx, Key(jti))
	c.metrics.ObserveDenylist("check", time.Since(start).Seconds())
	if err == nil {
		return found
	}

	mode := c.FailMode()
	c.metrics.DenylistError("check", mode)
	c.logger.WithFields(logrus.Fields{
		"jti":       jti,
		"fail_mode": mode,
		"timeout":   errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded),
	}).WithError(err).Warn("denylist unavailable, applying fail mode")
	return !c.failOpen
}

// Revoke adds jti to the denylist for ttl (at least one second). Upserting an existing entry
// is not an error. A store failure is returned as autherr.ErrStoreUnavailable.
func (c *Checker) Revoke(ctx context.Context, jti string, ttl time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	err := c.store.SetWithTTL(ctx, Key(jti), revokedValue, ttl)
	c.metrics.ObserveDenylist("revoke", time.Since(start).Seconds())
	if err != nil {
		c.metrics.DenylistError("revoke", c.FailMode())
		c.logger.WithField("jti", jti).WithError(err).Error("denylist revoke failed")
		return autherr.Unavailable("denylist revoke", err)
	}
	c.metrics.TokenRevoked()
	return nil
}

// Ping checks the store within the checker's timeout.
func (c *Checker) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	return c.store.Ping(ctx)
}
