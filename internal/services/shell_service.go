package services

import (
	"context"
	"encoding/json"
	"errors"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/benmeehan/whereis-agent/internal/constants"
	"github.com/benmeehan/whereis-agent/internal/registry"
	"github.com/benmeehan/whereis-agent/pkg/identity"
	"github.com/benmeehan/whereis-agent/pkg/location"
	"github.com/benmeehan/whereis-agent/pkg/notify"
	"github.com/rs/zerolog"
)

// NavigationDecision says where a navigation request is handled.
type NavigationDecision int

const (
	// Delegate hands the URL to the external handler.
	Delegate NavigationDecision = iota
	// Intercept keeps the URL inside the embedded view.
	Intercept
)

func (d NavigationDecision) String() string {
	if d == Intercept {
		return "intercept"
	}
	return "delegate"
}

// Page is the embedded web view hosting the first-party page.
type Page interface {
	Load(url string) error
	EvaluateScript(script string) error
}

// URLOpener hands URLs to the system's external handler.
type URLOpener interface {
	Open(ctx context.Context, url string) error
}

// PermissionRequester asks the user for a runtime capability.
type PermissionRequester interface {
	Request(capability string) bool
}

// ShellService hosts the first-party page, exposes the bridge to it and
// keeps the background publisher alive.
type ShellService struct {
	homeURL         string
	firstPartyHost  string
	messageDuration time.Duration

	page       Page
	opener     URLOpener
	permission PermissionRequester
	publisher  registry.Service
	toaster    notify.Toaster
	identity   identity.Provider
	logger     zerolog.Logger

	mu      sync.Mutex
	running bool
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewShellService creates a new ShellService instance.
func NewShellService(page Page, opener URLOpener, permission PermissionRequester, publisher registry.Service,
	toaster notify.Toaster, idp identity.Provider, messageDuration time.Duration, logger zerolog.Logger) *ShellService {
	if messageDuration <= 0 {
		messageDuration = 2 * time.Second
	}
	return &ShellService{
		homeURL:         constants.HomeURL,
		firstPartyHost:  constants.FirstPartyHost,
		messageDuration: messageDuration,
		page:            page,
		opener:          opener,
		permission:      permission,
		publisher:       publisher,
		toaster:         toaster,
		identity:        idp,
		logger:          logger,
	}
}

// Start requests the location permission, binds the publisher and loads the
// home page.
func (s *ShellService) Start() error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return errors.New("shell service is already running")
	}
	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.running = true
	s.mu.Unlock()

	if !s.permission.Request(location.FineLocation) {
		s.logger.Warn().Str("capability", location.FineLocation).Msg("Location permission denied")
	}

	if err := s.publisher.Start(); err != nil && !errors.Is(err, ErrAlreadyRunning) {
		s.logger.Error().Err(err).Msg("Failed to start background publisher")
	}

	if err := s.page.Load(s.homeURL); err != nil {
		s.logger.Error().Err(err).Str("url", s.homeURL).Msg("Failed to load home page")
	}

	s.logger.Info().Str("url", s.homeURL).Msg("ShellService started")
	return nil
}

// Stop detaches the shell. The background publisher keeps running.
func (s *ShellService) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return errors.New("shell service is not running")
	}
	s.running = false
	s.cancel()
	s.mu.Unlock()

	s.wg.Wait()
	s.logger.Info().Msg("ShellService stopped")
	return nil
}

// DecideNavigation keeps first-party URLs in the embedded view.
func (s *ShellService) DecideNavigation(rawURL string) NavigationDecision {
	return DecideNavigation(rawURL, s.firstPartyHost)
}

// DecideNavigation reports Intercept iff rawURL's host is host.
// Unparseable URLs are delegated.
func DecideNavigation(rawURL, host string) NavigationDecision {
	u, err := url.Parse(rawURL)
	if err != nil {
		return Delegate
	}
	if u.Hostname() != "" && strings.EqualFold(u.Hostname(), host) {
		return Intercept
	}
	return Delegate
}

// HandleNavigation applies the navigation decision and reports whether the
// URL was taken away from the embedded view.
func (s *ShellService) HandleNavigation(rawURL string) bool {
	if s.DecideNavigation(rawURL) == Intercept {
		return false
	}

	ctx := s.context()
	if err := s.opener.Open(ctx, rawURL); err != nil {
		s.logger.Error().Err(err).Str("url", rawURL).Msg("Failed to open external URL")
	}
	return true
}

// ShowMessage shows text as a transient message.
func (s *ShellService) ShowMessage(text string) {
	s.toaster.Show(text, s.messageDuration)
}

// RequestSignIn launches the identity provider. The result is delivered
// asynchronously to OnSignInResult.
func (s *ShellService) RequestSignIn() {
	ctx := s.context()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		result, err := s.identity.SignIn(ctx)
		if err != nil {
			s.logger.Warn().Err(err).Str("provider", s.identity.Name()).Msg("Sign-in failed")
			return
		}
		s.OnSignInResult(result)
	}()
}

// OnSignInResult injects the ID token into the page on success.
func (s *ShellService) OnSignInResult(result identity.SignInResult) {
	if result.Code != identity.ResultOK || result.IDToken == "" {
		s.logger.Info().Str("result", result.Code.String()).Msg("Sign-in not completed")
		return
	}

	if err := s.page.EvaluateScript(credentialScript(result.IDToken)); err != nil {
		s.logger.Error().Err(err).Msg("Failed to pass credential to page")
		return
	}
	s.logger.Info().Str("provider", s.identity.Name()).Msg("Credential passed to page")
}

func (s *ShellService) context() context.Context {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ctx == nil {
		return context.Background()
	}
	return s.ctx
}

// credentialScript builds the script handing token to the page.
func credentialScript(token string) string {
	quoted, _ := json.Marshal(token)
	return "window.setCredential && window.setCredential({ idToken: " + string(quoted) + " });"
}
