// Package identity launches sign-in against the configured identity provider.
package identity

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/benmeehan/whereis-agent/pkg/file"
	"github.com/golang-jwt/jwt/v4"
)

// ResultCode is the outcome of a sign-in flow.
type ResultCode int

const (
	ResultCanceled ResultCode = iota
	ResultOK
)

func (r ResultCode) String() string {
	if r == ResultOK {
		return "ok"
	}
	return "canceled"
}

var (
	// ErrTokenExpired is returned for an ID token whose exp claim has passed.
	ErrTokenExpired = errors.New("id token expired")
	// ErrTokenMalformed is returned when the token cannot be parsed as a JWT.
	ErrTokenMalformed = errors.New("id token malformed")
)

// SignInResult is delivered when a sign-in flow finishes.
type SignInResult struct {
	Code    ResultCode
	IDToken string
}

// Provider runs a sign-in flow with one configured identity provider.
type Provider interface {
	Name() string
	SignIn(ctx context.Context) (SignInResult, error)
}

// TokenFileProvider completes sign-in with an ID token that an external
// login helper left in a file. A missing file means the user has not signed
// in and yields a cancelled result.
type TokenFileProvider struct {
	name     string
	path     string
	fileOps  file.FileOperations
	audience string
	now      func() time.Time
}

// NewTokenFileProvider creates a TokenFileProvider. An empty audience skips
// the aud check.
func NewTokenFileProvider(name, path, audience string, fileOps file.FileOperations) *TokenFileProvider {
	return &TokenFileProvider{
		name:     name,
		path:     path,
		fileOps:  fileOps,
		audience: audience,
		now:      time.Now,
	}
}

// Name returns the configured provider name.
func (p *TokenFileProvider) Name() string {
	return p.name
}

// SignIn reads and checks the ID token.
func (p *TokenFileProvider) SignIn(ctx context.Context) (SignInResult, error) {
	if err := ctx.Err(); err != nil {
		return SignInResult{Code: ResultCanceled}, err
	}

	raw, err := p.fileOps.ReadFile(p.path)
	if err != nil {
		if os.IsNotExist(err) {
			return SignInResult{Code: ResultCanceled}, nil
		}
		return SignInResult{Code: ResultCanceled}, fmt.Errorf("failed to read id token: %w", err)
	}

	token := strings.TrimSpace(raw)
	if token == "" {
		return SignInResult{Code: ResultCanceled}, nil
	}
	if err := p.validate(token); err != nil {
		return SignInResult{Code: ResultCanceled}, err
	}

	return SignInResult{Code: ResultOK, IDToken: token}, nil
}

// validate checks the token shape and its time and audience claims. The
// signature is verified by the web backend that consumes the token.
func (p *TokenFileProvider) validate(token string) error {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return fmt.Errorf("%w: %v", ErrTokenMalformed, err)
	}

	now := p.now().Unix()
	if !claims.VerifyExpiresAt(now, false) {
		return ErrTokenExpired
	}
	if p.audience != "" && !claims.VerifyAudience(p.audience, true) {
		return fmt.Errorf("%w: unexpected audience", ErrTokenMalformed)
	}
	return nil
}
