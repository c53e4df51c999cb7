package identity

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/benmeehan/whereis-agent/pkg/file"
	"github.com/golang-jwt/jwt/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func signedToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return token
}

func newProvider(t *testing.T, contents *string, audience string) *TokenFileProvider {
	t.Helper()
	path := filepath.Join(t.TempDir(), "id_token")
	if contents != nil {
		require.NoError(t, os.WriteFile(path, []byte(*contents), 0o600))
	}
	p := NewTokenFileProvider("google", path, audience, file.NewFileService())
	p.now = func() time.Time { return time.Unix(1_700_000_000, 0) }
	return p
}

func TestTokenFileProvider_SignInOK(t *testing.T) {
	token := signedToken(t, jwt.MapClaims{"sub": "user", "aud": "whereis", "exp": 1_700_000_600})
	contents := token + "\n"
	p := newProvider(t, &contents, "whereis")

	res, err := p.SignIn(context.Background())
	require.NoError(t, err)
	assert.Equal(t, ResultOK, res.Code)
	assert.Equal(t, token, res.IDToken)
	assert.Equal(t, "google", p.Name())
}

func TestTokenFileProvider_MissingFileIsCancelled(t *testing.T) {
	p := newProvider(t, nil, "")

	res, err := p.SignIn(context.Background())
	require.NoError(t, err)
	assert.Equal(t, ResultCanceled, res.Code)
	assert.Empty(t, res.IDToken)
}

func TestTokenFileProvider_ExpiredToken(t *testing.T) {
	token := signedToken(t, jwt.MapClaims{"sub": "user", "exp": 1_600_000_000})
	p := newProvider(t, &token, "")

	res, err := p.SignIn(context.Background())
	assert.ErrorIs(t, err, ErrTokenExpired)
	assert.Equal(t, ResultCanceled, res.Code)
}

func TestTokenFileProvider_MalformedAndAudience(t *testing.T) {
	garbage := "not-a-jwt"
	p := newProvider(t, &garbage, "")
	_, err := p.SignIn(context.Background())
	assert.ErrorIs(t, err, ErrTokenMalformed)

	token := signedToken(t, jwt.MapClaims{"sub": "user", "aud": "someone-else"})
	p = newProvider(t, &token, "whereis")
	_, err = p.SignIn(context.Background())
	assert.ErrorIs(t, err, ErrTokenMalformed)
}
