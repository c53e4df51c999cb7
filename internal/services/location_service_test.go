package services

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/benmeehan/whereis-agent/internal/constants"
	"github.com/benmeehan/whereis-agent/internal/models"
	"github.com/benmeehan/whereis-agent/pkg/location"
	"github.com/benmeehan/whereis-agent/pkg/notify"
	"github.com/benmeehan/whereis-agent/pkg/store"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var fixedRequest = location.Request{
	Interval:        300 * time.Second,
	FastestInterval: 300 * time.Second,
	Priority:        location.PriorityBalancedPowerAccuracy,
}

type locationServiceFixture struct {
	svc         *LocationService
	positioning *MockPositioning
	updates     *MockLocationSubscription
	store       *fakeStore
	notifier    *notify.LogNotifier
	callback    chan func(location.Location)
	checked     chan struct{}
}

func newLocationServiceFixture(t *testing.T, settingsErr error) *locationServiceFixture {
	t.Helper()

	f := &locationServiceFixture{
		positioning: new(MockPositioning),
		updates:     new(MockLocationSubscription),
		store:       &fakeStore{},
		notifier:    notify.NewLogNotifier(zerolog.Nop()),
		callback:    make(chan func(location.Location), 1),
		checked:     make(chan struct{}, 1),
	}
	f.positioning.On("CheckSettings", mock.Anything, fixedRequest).
		Run(func(mock.Arguments) {
			select {
			case f.checked <- struct{}{}:
			default:
			}
		}).
		Return(settingsErr)
	f.positioning.On("RequestUpdates", mock.Anything, fixedRequest, mock.Anything).
		Run(func(args mock.Arguments) {
			f.callback <- args.Get(2).(func(location.Location))
		}).
		Return(f.updates, nil)
	f.updates.On("Remove").Return()

	f.svc = NewLocationService(LocationServiceOptions{
		Channel:        notify.Channel{ID: constants.NotificationChannelID, Name: "Location sharing"},
		TimeZone:       time.UTC,
		PublishWorkers: 1,
		PublishQueue:   16,
	}, f.positioning, f.store, f.notifier, zerolog.Nop())
	return f
}

func (f *locationServiceFixture) indicator(t *testing.T) notify.Entry {
	t.Helper()
	entries := f.notifier.Entries()
	require.Len(t, entries, 1)
	return entries[0]
}

func (f *locationServiceFixture) awaitCallback(t *testing.T) func(location.Location) {
	t.Helper()
	select {
	case cb := <-f.callback:
		return cb
	case <-time.After(2 * time.Second):
		t.Fatal("location updates were never requested")
		return nil
	}
}

func TestLocationService_StartPostsIndicatorBeforeForeground(t *testing.T) {
	f := newLocationServiceFixture(t, nil)
	require.NoError(t, f.svc.Start())
	defer f.svc.Stop()

	entry := f.indicator(t)
	assert.Equal(t, constants.NotificationID, entry.ID)
	assert.True(t, entry.Foreground)
	assert.True(t, entry.Ongoing)
	assert.Equal(t, constants.PlaceholderTitle, entry.Title)
	assert.Equal(t, constants.HomeURL, entry.Target)
}

func TestLocationService_RunsAfterSettingsSucceed(t *testing.T) {
	f := newLocationServiceFixture(t, nil)
	require.NoError(t, f.svc.Start())
	defer f.svc.Stop()

	f.awaitCallback(t)
	assert.Eventually(t, func() bool {
		return f.svc.State() == constants.StateRunning
	}, time.Second, 10*time.Millisecond)
	f.positioning.AssertNumberOfCalls(t, "RequestUpdates", 1)
}

func TestLocationService_StallsWhenSettingsRejected(t *testing.T) {
	f := newLocationServiceFixture(t, location.ErrSettingsRejected)
	require.NoError(t, f.svc.Start())
	defer f.svc.Stop()

	select {
	case <-f.checked:
	case <-time.After(2 * time.Second):
		t.Fatal("settings were never checked")
	}
	assert.Never(t, func() bool {
		return f.svc.State() == constants.StateRunning
	}, 200*time.Millisecond, 10*time.Millisecond)
	assert.Equal(t, constants.StateSettingsChecking, f.svc.State())
	f.positioning.AssertNotCalled(t, "RequestUpdates", mock.Anything, mock.Anything, mock.Anything)
}

func TestLocationService_EveryFixIsWritten(t *testing.T) {
	f := newLocationServiceFixture(t, nil)
	require.NoError(t, f.svc.Start())
	defer f.svc.Stop()
	onFix := f.awaitCallback(t)

	loc := location.Location{
		Latitude:  51.5,
		Longitude: -0.12,
		Accuracy:  12,
		Time:      time.UnixMilli(1700000000000),
		Provider:  "gps",
	}
	// Identical fixes are not deduplicated
	onFix(loc)
	onFix(loc)
	onFix(loc)

	require.Eventually(t, func() bool {
		return len(f.store.recorded()) == 3
	}, time.Second, 10*time.Millisecond)

	for _, write := range f.store.recorded() {
		assert.Equal(t, constants.LocationKey, write.Key)
		var fix models.LocationFix
		require.NoError(t, json.Unmarshal(write.Value, &fix))
		assert.Equal(t, models.NewLocationFix(loc), fix)
	}
}

func TestLocationService_WriteFailureDoesNotBlockNextFix(t *testing.T) {
	f := newLocationServiceFixture(t, nil)
	f.store.setErrs = []error{errors.New("permission denied")}
	require.NoError(t, f.svc.Start())
	defer f.svc.Stop()
	onFix := f.awaitCallback(t)

	onFix(location.Location{Latitude: 1, Time: time.UnixMilli(1000)})
	onFix(location.Location{Latitude: 2, Time: time.UnixMilli(2000)})

	require.Eventually(t, func() bool {
		return len(f.store.recorded()) == 2
	}, time.Second, 10*time.Millisecond)

	var second models.LocationFix
	require.NoError(t, json.Unmarshal(f.store.recorded()[1].Value, &second))
	assert.Equal(t, 2.0, second.Latitude)
}

func TestLocationService_MirrorsStatusRecord(t *testing.T) {
	f := newLocationServiceFixture(t, nil)
	require.NoError(t, f.svc.Start())
	defer f.svc.Stop()

	onChange, onError := f.store.listener()
	require.NotNil(t, onChange)

	updatedAt := time.Date(2024, 3, 1, 14, 5, 0, 0, time.UTC).UnixMilli()
	onChange(store.Snapshot{
		Key:    constants.StatusKey,
		Value:  []byte(`{"name":"Alice","updatedAt":` + jsonInt(updatedAt) + `}`),
		Exists: true,
	})
	require.Eventually(t, func() bool {
		return f.indicator(t).Title == "Alice"
	}, time.Second, 10*time.Millisecond)
	assert.Equal(t, "Updated 14:05", f.indicator(t).Body)

	// Listener errors leave the indicator alone
	onError(errors.New("permission denied"))

	onChange(store.Snapshot{Key: constants.StatusKey, Value: []byte(`{"updatedAt":"soon"}`), Exists: true})
	require.Eventually(t, func() bool {
		return f.indicator(t).Title == "null"
	}, time.Second, 10*time.Millisecond)
	assert.Equal(t, "Updated ", f.indicator(t).Body)
	assert.True(t, f.indicator(t).Foreground)
}

func TestLocationService_StopReleasesResources(t *testing.T) {
	f := newLocationServiceFixture(t, nil)
	require.NoError(t, f.svc.Start())
	f.awaitCallback(t)
	require.Eventually(t, func() bool {
		return f.svc.State() == constants.StateRunning
	}, time.Second, 10*time.Millisecond)

	require.NoError(t, f.svc.Stop())

	assert.Equal(t, constants.StateStopped, f.svc.State())
	assert.Empty(t, f.notifier.Entries())
	assert.True(t, f.store.isClosed())
	f.updates.AssertCalled(t, "Remove")
	assert.ErrorIs(t, f.svc.Stop(), ErrNotRunning)
}

func TestLocationService_StartTwice(t *testing.T) {
	f := newLocationServiceFixture(t, nil)
	require.NoError(t, f.svc.Start())
	defer f.svc.Stop()

	assert.ErrorIs(t, f.svc.Start(), ErrAlreadyRunning)
}

func TestLocationService_StartFailsWithoutChannel(t *testing.T) {
	f := newLocationServiceFixture(t, nil)
	f.svc.opts.Channel.ID = ""

	require.Error(t, f.svc.Start())
	assert.Equal(t, constants.StateStopped, f.svc.State())
	f.positioning.AssertNotCalled(t, "CheckSettings", mock.Anything, mock.Anything)
}

func TestRenderStatus(t *testing.T) {
	at := time.Date(2024, 3, 1, 9, 7, 0, 0, time.UTC).UnixMilli()

	tests := []struct {
		name      string
		record    models.StatusRecord
		wantTitle string
		wantBody  string
	}{
		{"with timestamp", models.StatusRecord{Name: "Bob", UpdatedAt: &at}, "Bob", "Updated 09:07"},
		{"without timestamp", models.StatusRecord{Name: "Bob"}, "Bob", "Updated "},
		{"absent name", models.StatusRecord{Name: "null"}, "null", "Updated "},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			title, body := RenderStatus(tt.record, constants.DefaultTimeFormat, time.UTC)
			assert.Equal(t, tt.wantTitle, title)
			assert.Equal(t, tt.wantBody, body)
		})
	}
}

func jsonInt(v int64) string {
	data, _ := json.Marshal(v)
	return string(data)
}

func TestLocationService_FixBeforeStartIsDropped(t *testing.T) {
	f := newLocationServiceFixture(t, nil)

	assert.NotPanics(t, func() {
		f.svc.OnLocationFix(location.Location{Latitude: 1})
	})
	assert.Empty(t, f.store.recorded())
	assert.Equal(t, constants.StateStopped, f.svc.State())
}

func TestLocationService_FixAfterStopIsDropped(t *testing.T) {
	f := newLocationServiceFixture(t, nil)
	require.NoError(t, f.svc.Start())
	require.NoError(t, f.svc.Stop())

	assert.NotPanics(t, func() {
		f.svc.OnLocationFix(location.Location{Latitude: 1})
	})
	assert.Empty(t, f.store.recorded())
}

func TestLocationService_ConcurrentStop(t *testing.T) {
	f := newLocationServiceFixture(t, nil)
	require.NoError(t, f.svc.Start())
	f.awaitCallback(t)

	var wg sync.WaitGroup
	errs := make(chan error, 4)
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- f.svc.Stop()
		}()
	}
	wg.Wait()
	close(errs)

	stopped := 0
	for err := range errs {
		if err == nil {
			stopped++
			continue
		}
		assert.ErrorIs(t, err, ErrNotRunning)
	}
	assert.Equal(t, 1, stopped)
	assert.Equal(t, constants.StateStopped, f.svc.State())
	f.updates.AssertNumberOfCalls(t, "Remove", 1)
}

func TestLocationService_RestartAfterStop(t *testing.T) {
	f := newLocationServiceFixture(t, nil)
	require.NoError(t, f.svc.Start())
	f.awaitCallback(t)
	require.NoError(t, f.svc.Stop())

	require.NoError(t, f.svc.Start())
	cb := f.awaitCallback(t)
	cb(location.Location{Latitude: 2, Provider: "gps"})
	require.Eventually(t, func() bool {
		return len(f.store.recorded()) == 1
	}, 2*time.Second, 10*time.Millisecond)
	require.NoError(t, f.svc.Stop())
}
