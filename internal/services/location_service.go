package services

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/benmeehan/whereis-agent/internal/constants"
	"github.com/benmeehan/whereis-agent/internal/models"
	"github.com/benmeehan/whereis-agent/internal/utils"
	"github.com/benmeehan/whereis-agent/pkg/location"
	"github.com/benmeehan/whereis-agent/pkg/notify"
	"github.com/benmeehan/whereis-agent/pkg/store"
	"github.com/rs/zerolog"
)

var (
	// ErrAlreadyRunning is returned when starting a running service.
	ErrAlreadyRunning = errors.New("location service is already running")
	// ErrNotRunning is returned when stopping a service that is not running.
	ErrNotRunning = errors.New("location service is not running")
)

// Positioning is the device positioning subsystem.
type Positioning interface {
	CheckSettings(ctx context.Context, req location.Request) error
	RequestUpdates(ctx context.Context, req location.Request, callback func(location.Location)) (location.Subscription, error)
}

// LocationServiceOptions configures a LocationService.
type LocationServiceOptions struct {
	Channel        notify.Channel
	TimeFormat     string
	TimeZone       *time.Location
	PublishWorkers int
	PublishQueue   int
}

// Events posted by platform callbacks onto the service's queue.
type (
	settingsResult struct{ err error }
	locationFix    struct{ loc location.Location }
	statusChanged  struct{ snap store.Snapshot }
	statusFailed   struct{ err error }
)

// LocationService publishes device fixes to the remote store and mirrors
// the remote status record into the persistent indicator. All callbacks are
// funnelled through one event queue, so the indicator is only touched by the
// event loop goroutine.
type LocationService struct {
	// Configuration fields
	request location.Request
	opts    LocationServiceOptions

	// Dependencies
	positioning Positioning
	store       store.Store
	notifier    notify.Notifier
	logger      zerolog.Logger

	// Internal state management
	lifecycle sync.Mutex // Serializes Start and Stop
	mu        sync.Mutex
	state     constants.PublisherState
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	events    chan any
	pool      *utils.WorkerPool
	updates   location.Subscription
	statusSub store.Subscription
	indicator notify.Notification
}

// NewLocationService creates a new LocationService instance. The service
// starts out stopped.
func NewLocationService(opts LocationServiceOptions, positioning Positioning, st store.Store,
	notifier notify.Notifier, logger zerolog.Logger) *LocationService {
	if opts.TimeFormat == "" {
		opts.TimeFormat = constants.DefaultTimeFormat
	}
	if opts.TimeZone == nil {
		opts.TimeZone = time.Local
	}
	if opts.PublishWorkers < 1 {
		opts.PublishWorkers = 1
	}
	if opts.PublishQueue < 1 {
		opts.PublishQueue = 1
	}
	if opts.Channel.ID == "" {
		opts.Channel.ID = constants.NotificationChannelID
	}

	return &LocationService{
		request: location.Request{
			Interval:        constants.LocationInterval,
			FastestInterval: constants.FastestLocationInterval,
			Priority:        location.PriorityBalancedPowerAccuracy,
		},
		opts:        opts,
		positioning: positioning,
		store:       st,
		notifier:    notifier,
		logger:      logger,
		state:       constants.StateStopped,
	}
}

// State returns the current lifecycle state.
func (l *LocationService) State() constants.PublisherState {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

func (l *LocationService) setState(s constants.PublisherState) {
	l.mu.Lock()
	prev := l.state
	l.state = s
	l.mu.Unlock()
	l.logger.Debug().Str("from", string(prev)).Str("to", string(s)).Msg("LocationService state changed")
}

// Start posts the persistent indicator, enters the foreground, checks the
// location settings and attaches the status listener.
func (l *LocationService) Start() error {
	l.lifecycle.Lock()
	defer l.lifecycle.Unlock()

	l.mu.Lock()
	if l.state != constants.StateStopped {
		l.mu.Unlock()
		l.logger.Warn().Msg("LocationService is already running")
		return ErrAlreadyRunning
	}
	l.state = constants.StateCreated
	l.mu.Unlock()

	// The indicator must be posted before entering the foreground
	if err := l.notifier.CreateChannel(l.opts.Channel); err != nil {
		l.setState(constants.StateStopped)
		return err
	}
	l.indicator = notify.Notification{
		ChannelID: l.opts.Channel.ID,
		Title:     constants.PlaceholderTitle,
		Target:    constants.HomeURL,
		Ongoing:   true,
	}
	if err := l.notifier.Notify(constants.NotificationID, l.indicator); err != nil {
		l.setState(constants.StateStopped)
		return err
	}
	if err := l.notifier.StartForeground(constants.NotificationID); err != nil {
		l.setState(constants.StateStopped)
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	events := make(chan any, 64)
	l.mu.Lock()
	l.ctx, l.cancel, l.events = ctx, cancel, events
	l.mu.Unlock()
	l.pool = utils.NewWorkerPool(l.opts.PublishWorkers, l.opts.PublishQueue)
	l.updates = nil

	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		l.run(ctx, events)
	}()

	l.setState(constants.StateSettingsChecking)
	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		err := l.positioning.CheckSettings(ctx, l.request)
		l.post(settingsResult{err: err})
	}()

	sub, err := l.store.Subscribe(constants.StatusKey,
		func(snap store.Snapshot) { l.post(statusChanged{snap: snap}) },
		func(err error) { l.post(statusFailed{err: err}) })
	if err != nil {
		l.logger.Error().Err(err).Str("key", constants.StatusKey).Msg("Failed to subscribe to status record")
	}
	l.statusSub = sub

	l.logger.Info().
		Dur("interval", l.request.Interval).
		Str("priority", l.request.Priority.String()).
		Int("notification_id", constants.NotificationID).
		Msg("LocationService started")
	return nil
}

// Stop releases the positioning subscription and the status listener and
// removes the indicator. Publishes still in flight are abandoned.
func (l *LocationService) Stop() error {
	l.lifecycle.Lock()
	defer l.lifecycle.Unlock()

	if l.State() == constants.StateStopped {
		l.logger.Warn().Msg("LocationService is not running")
		return ErrNotRunning
	}

	l.cancel()
	if l.statusSub != nil {
		if err := l.statusSub.Close(); err != nil {
			l.logger.Warn().Err(err).Msg("Failed to release status listener")
		}
		l.statusSub = nil
	}
	l.wg.Wait()

	if l.updates != nil {
		l.updates.Remove()
		l.updates = nil
	}
	l.pool.Shutdown()

	if err := l.notifier.Cancel(constants.NotificationID); err != nil {
		l.logger.Warn().Err(err).Msg("Failed to cancel indicator")
	}

	l.setState(constants.StateStopped)
	l.logger.Info().Msg("LocationService stopped")
	return nil
}

// OnLocationFix hands a new fix to the service. It is the positioning
// callback and may be called from any goroutine.
func (l *LocationService) OnLocationFix(loc location.Location) {
	l.post(locationFix{loc: loc})
}

// post queues an event. Events arriving before the first Start or after
// Stop are dropped.
func (l *LocationService) post(ev any) {
	l.mu.Lock()
	ctx, events := l.ctx, l.events
	l.mu.Unlock()

	if ctx == nil {
		l.logger.Debug().Msgf("LocationService not started, dropping %T", ev)
		return
	}
	select {
	case events <- ev:
	case <-ctx.Done():
	}
}

func (l *LocationService) run(ctx context.Context, events <-chan any) {
	for {
		select {
		case ev := <-events:
			l.handle(ev)
		case <-ctx.Done():
			l.logger.Info().Msg("LocationService is stopping")
			return
		}
	}
}

func (l *LocationService) handle(ev any) {
	switch e := ev.(type) {
	case settingsResult:
		l.onSettingsResult(e.err)
	case locationFix:
		l.publish(e.loc)
	case statusChanged:
		l.mirrorStatus(e.snap)
	case statusFailed:
		l.logger.Warn().Err(e.err).Str("key", constants.StatusKey).Msg("Status listener error")
	}
}

// onSettingsResult starts location updates once the settings check passed.
// A failed check leaves the service waiting in SettingsChecking.
func (l *LocationService) onSettingsResult(err error) {
	if err != nil {
		l.logger.Warn().Err(err).Msg("Location settings not satisfied, location updates not started")
		return
	}
	if l.State() != constants.StateSettingsChecking {
		return
	}

	updates, err := l.positioning.RequestUpdates(l.ctx, l.request, l.OnLocationFix)
	if err != nil {
		l.logger.Error().Err(err).Msg("Failed to request location updates")
		return
	}
	l.updates = updates
	l.setState(constants.StateRunning)
}

// publish overwrites the remote location record with the fix. Failures are
// logged and the fix is dropped.
func (l *LocationService) publish(loc location.Location) {
	fix := models.NewLocationFix(loc)
	ctx := l.ctx

	accepted := l.pool.Submit(func() {
		if err := l.store.Set(ctx, constants.LocationKey, fix); err != nil {
			l.logger.Error().Err(err).Str("key", constants.LocationKey).Msg("Location update failed")
			return
		}
		l.logger.Info().Interface("fix", fix).Str("key", constants.LocationKey).Msg("Location updated")
	})
	if !accepted {
		l.logger.Error().Str("key", constants.LocationKey).Msg("Location update dropped, publish queue full")
	}
}

// mirrorStatus renders the status record into the indicator.
func (l *LocationService) mirrorStatus(snap store.Snapshot) {
	record := models.ParseStatusRecord(snap)
	l.indicator.Title, l.indicator.Body = RenderStatus(record, l.opts.TimeFormat, l.opts.TimeZone)

	if err := l.notifier.Notify(constants.NotificationID, l.indicator); err != nil {
		l.logger.Error().Err(err).Msg("Failed to update indicator")
	}
}

// RenderStatus returns the indicator title and body for a status record.
func RenderStatus(record models.StatusRecord, layout string, zone *time.Location) (string, string) {
	body := "Updated "
	if record.UpdatedAt != nil {
		body += time.UnixMilli(*record.UpdatedAt).In(zone).Format(layout)
	}
	return record.Name, body
}
