package location

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// ErrSettingsRejected is returned when a request cannot be satisfied.
var ErrSettingsRejected = errors.New("location settings rejected")

// Client polls a Provider on the cadence described by a Request and hands
// each fix to a callback.
type Client struct {
	provider Provider
	logger   zerolog.Logger
}

// NewClient creates a Client around the given provider.
func NewClient(provider Provider, logger zerolog.Logger) *Client {
	return &Client{
		provider: provider,
		logger:   logger,
	}
}

// CheckSettings reports whether the current settings satisfy req.
func (c *Client) CheckSettings(ctx context.Context, req Request) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if req.Interval <= 0 {
		return fmt.Errorf("%w: interval must be positive", ErrSettingsRejected)
	}
	if req.FastestInterval < 0 || req.FastestInterval > req.Interval {
		return fmt.Errorf("%w: fastest interval must be within (0, interval]", ErrSettingsRejected)
	}
	if checker, ok := c.provider.(SettingsChecker); ok {
		if err := checker.CheckSettings(req); err != nil {
			return fmt.Errorf("%w: %v", ErrSettingsRejected, err)
		}
	}
	return nil
}

// Subscription is a live stream of location updates.
type Subscription interface {
	Remove()
}

// Updates is the Subscription returned by Client.
type Updates struct {
	cancel context.CancelFunc
	wg     sync.WaitGroup
	once   sync.Once
}

// Remove stops the subscription and waits for the polling goroutine to exit.
func (u *Updates) Remove() {
	u.once.Do(func() {
		u.cancel()
		u.wg.Wait()
	})
}

// RequestUpdates starts delivering fixes to callback until ctx is cancelled
// or the returned subscription is removed. The first sample is taken
// immediately; later samples follow every req.Interval and never closer
// together than req.FastestInterval.
func (c *Client) RequestUpdates(ctx context.Context, req Request, callback func(Location)) (Subscription, error) {
	if req.Interval <= 0 {
		return nil, fmt.Errorf("%w: interval must be positive", ErrSettingsRejected)
	}
	if callback == nil {
		return nil, errors.New("location callback is required")
	}

	ctx, cancel := context.WithCancel(ctx)
	u := &Updates{cancel: cancel}

	u.wg.Add(1)
	go func() {
		defer u.wg.Done()
		c.poll(ctx, req, callback)
	}()

	c.logger.Info().
		Str("provider", c.provider.Name()).
		Dur("interval", req.Interval).
		Dur("fastest_interval", req.FastestInterval).
		Str("priority", req.Priority.String()).
		Msg("Location updates requested")
	return u, nil
}

func (c *Client) poll(ctx context.Context, req Request, callback func(Location)) {
	ticker := time.NewTicker(req.Interval)
	defer ticker.Stop()

	// Ticks may arrive slightly early relative to the previous sample.
	minGap := req.FastestInterval - req.FastestInterval/10

	var lastSample time.Time
	sample := func() {
		if !lastSample.IsZero() && time.Since(lastSample) < minGap {
			return
		}
		lastSample = time.Now()
		loc, err := c.provider.GetLocation(ctx)
		if err != nil {
			if ctx.Err() == nil {
				c.logger.Error().Err(err).Str("provider", c.provider.Name()).Msg("Failed to get location from provider")
			}
			return
		}
		callback(loc)
	}

	sample()
	for {
		select {
		case <-ticker.C:
			sample()
		case <-ctx.Done():
			c.logger.Debug().Msg("Location updates stopped")
			return
		}
	}
}

// Close releases the underlying provider.
func (c *Client) Close() error {
	return c.provider.Close()
}
