package security_test

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatcore/internal/domain"
	"chatcore/internal/security"
)

func TestTokenRoundTrip(t *testing.T) {
	svc := security.NewTokenService("test-secret", time.Hour)

	tok, err := svc.Issue("alice")
	require.NoError(t, err)
	require.NotEmpty(t, tok)

	sub, err := svc.Verify(tok)
	require.NoError(t, err)
	assert.Equal(t, "alice", sub)
}

func TestTokenExpired(t *testing.T) {
	svc := security.NewTokenService("test-secret", time.Hour)

	tok, err := svc.IssueWithTTL("alice", -time.Minute)
	require.NoError(t, err)

	_, err = svc.Verify(tok)
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
}

func TestTokenWrongSecret(t *testing.T) {
	issuer := security.NewTokenService("issuer-secret", time.Hour)
	verifier := security.NewTokenService("other-secret", time.Hour)

	tok, err := issuer.Issue("alice")
	require.NoError(t, err)

	_, err = verifier.Verify(tok)
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
}

func TestTokenGarbage(t *testing.T) {
	svc := security.NewTokenService("test-secret", time.Hour)
	_, err := svc.Verify("not-a-token")
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
}

func TestTokenMissingSubject(t *testing.T) {
	secret := []byte("test-secret")
	claims := jwt.MapClaims{
		"iat": time.Now().Unix(),
		"exp": time.Now().Add(time.Hour).Unix(),
	}
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	require.NoError(t, err)

	svc := security.NewTokenService("test-secret", time.Hour)
	_, err = svc.Verify(tok)
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
}

func TestTokenRejectsUnexpectedAlgorithm(t *testing.T) {
	// alg=none with the signature stripped must never verify.
	tok, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{"sub": "alice"}).
		SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	svc := security.NewTokenService("test-secret", time.Hour)
	_, err = svc.Verify(tok)
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
}

func TestEncryptorRoundTrip(t *testing.T) {
	enc, err := security.NewEncryptor([]byte("key-material"))
	require.NoError(t, err)

	ct, err := enc.Encrypt("hello")
	require.NoError(t, err)
	assert.NotEqual(t, "hello", ct)

	pt, err := enc.Decrypt(ct)
	require.NoError(t, err)
	assert.Equal(t, "hello", pt)
}

func TestEncryptorWrongKey(t *testing.T) {
	a, err := security.NewEncryptor([]byte("key-a"))
	require.NoError(t, err)
	b, err := security.NewEncryptor([]byte("key-b"))
	require.NoError(t, err)

	ct, err := a.Encrypt("hello")
	require.NoError(t, err)

	_, err = b.Decrypt(ct)
	assert.Error(t, err)
}
