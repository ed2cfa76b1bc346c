package security

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"chatcore/internal/domain"
)

// TokenService verifies the bearer credentials presented at connection time.
// Token minting is owned by the identity service; Issue exists for tests and
// local tooling.
type TokenService struct {
	secret    []byte
	expiresIn time.Duration
}

func NewTokenService(secret string, expiresIn time.Duration) *TokenService {
	return &TokenService{
		secret:    []byte(secret),
		expiresIn: expiresIn,
	}
}

// Issue creates a signed token for the given user id using the default TTL.
func (t *TokenService) Issue(userID string) (string, error) {
	return t.IssueWithTTL(userID, t.expiresIn)
}

// IssueWithTTL creates a signed token for the given user id with an explicit TTL.
func (t *TokenService) IssueWithTTL(userID string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"sub": userID,
		"iat": now.Unix(),
		"exp": now.Add(ttl).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(t.secret)
}

// Verify validates a token and returns the user identity it carries. Any
// signature, expiry, or shape failure maps to domain.ErrUnauthorized.
func (t *TokenService) Verify(tokenStr string) (string, error) {
	token, err := jwt.Parse(tokenStr, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return t.secret, nil
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrUnauthorized, err)
	}
	if !token.Valid {
		return "", domain.ErrUnauthorized
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", domain.ErrUnauthorized
	}
	sub, _ := claims["sub"].(string)
	if sub == "" {
		return "", fmt.Errorf("%w: empty subject", domain.ErrUnauthorized)
	}
	return sub, nil
}
