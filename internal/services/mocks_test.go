package services

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/benmeehan/whereis-agent/pkg/identity"
	"github.com/benmeehan/whereis-agent/pkg/location"
	"github.com/benmeehan/whereis-agent/pkg/store"
	"github.com/stretchr/testify/mock"
)

// MockPositioning is a mock implementation of Positioning
type MockPositioning struct {
	mock.Mock
}

func (m *MockPositioning) CheckSettings(ctx context.Context, req location.Request) error {
	args := m.Called(ctx, req)
	return args.Error(0)
}

func (m *MockPositioning) RequestUpdates(ctx context.Context, req location.Request, callback func(location.Location)) (location.Subscription, error) {
	args := m.Called(ctx, req, callback)
	sub, _ := args.Get(0).(location.Subscription)
	return sub, args.Error(1)
}

// MockLocationSubscription is a mock implementation of location.Subscription
type MockLocationSubscription struct {
	mock.Mock
}

func (m *MockLocationSubscription) Remove() {
	m.Called()
}

// fakeStore records writes and hands out the registered listener.
type fakeStore struct {
	mu       sync.Mutex
	writes   []store.Snapshot
	setErrs  []error
	onChange func(store.Snapshot)
	onError  func(error)
	closed   bool
}

func (f *fakeStore) Set(ctx context.Context, key string, value any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	f.writes = append(f.writes, store.Snapshot{Key: key, Value: data, Exists: true})
	if len(f.setErrs) > 0 {
		err, f.setErrs = f.setErrs[0], f.setErrs[1:]
		return err
	}
	return nil
}

func (f *fakeStore) Subscribe(key string, onChange func(store.Snapshot), onError func(error)) (store.Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.onChange = onChange
	f.onError = onError
	return f, nil
}

func (f *fakeStore) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeStore) listener() (func(store.Snapshot), func(error)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.onChange, f.onError
}

func (f *fakeStore) recorded() []store.Snapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]store.Snapshot(nil), f.writes...)
}

func (f *fakeStore) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

// MockPage is a mock implementation of Page
type MockPage struct {
	mock.Mock
}

func (m *MockPage) Load(url string) error {
	args := m.Called(url)
	return args.Error(0)
}

func (m *MockPage) EvaluateScript(script string) error {
	args := m.Called(script)
	return args.Error(0)
}

// MockURLOpener is a mock implementation of URLOpener
type MockURLOpener struct {
	mock.Mock
}

func (m *MockURLOpener) Open(ctx context.Context, url string) error {
	args := m.Called(ctx, url)
	return args.Error(0)
}

// MockPermission is a mock implementation of PermissionRequester
type MockPermission struct {
	mock.Mock
}

func (m *MockPermission) Request(capability string) bool {
	args := m.Called(capability)
	return args.Bool(0)
}

// MockService is a mock implementation of registry.Service
type MockService struct {
	mock.Mock
}

func (m *MockService) Start() error {
	args := m.Called()
	return args.Error(0)
}

func (m *MockService) Stop() error {
	args := m.Called()
	return args.Error(0)
}

// MockToaster is a mock implementation of notify.Toaster
type MockToaster struct {
	mock.Mock
}

func (m *MockToaster) Show(text string, duration time.Duration) {
	m.Called(text, duration)
}

// MockIdentityProvider is a mock implementation of identity.Provider
type MockIdentityProvider struct {
	mock.Mock
}

func (m *MockIdentityProvider) Name() string {
	return "test"
}

func (m *MockIdentityProvider) SignIn(ctx context.Context) (identity.SignInResult, error) {
	args := m.Called(ctx)
	return args.Get(0).(identity.SignInResult), args.Error(1)
}
