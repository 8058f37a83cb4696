// Package token implements the stateless session token service: HS256
// signing, strict verification and best-effort decoding of the compact
// three-part tokens carried in Authorization headers.
package token

import (
	"errors"
	"time"

	"github.com/dmitrijs2005/medcert/internal/common"
	"github.com/dmitrijs2005/medcert/internal/server/models"
	"github.com/golang-jwt/jwt/v5"
)

// Claims carries the subject identity inside a signed token. The session
// identifier ("jti") lives in RegisteredClaims.ID and is what the access
// guard checks against the session store.
type Claims struct {
	jwt.RegisteredClaims
	Email string   `json:"email"`
	Roles []string `json:"roles"`
}

// Generate signs a token for the given user with a fresh iat. A ttl of zero
// produces a token without exp (the session TTL still bounds its usefulness).
func Generate(user *models.User, jti string, secretKey []byte, ttl time.Duration) (string, error) {
	now := time.Now()
	registered := jwt.RegisteredClaims{
		Subject:  user.ID,
		ID:       jti,
		IssuedAt: jwt.NewNumericDate(now),
	}
	if ttl > 0 {
		registered.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: registered,
		Email:            user.Email,
		Roles:            user.Roles,
	})

	tokenString, err := token.SignedString(secretKey)
	if err != nil {
		return "", err
	}

	return tokenString, nil
}

// Verify checks the signature and expiry and returns the claims. Failures
// map onto the common sentinel errors so callers can respond uniformly
// without inspecting jwt internals.
func Verify(tokenString string, secretKey []byte) (*Claims, error) {
	claims := &Claims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return secretKey, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			return nil, common.ErrorTokenExpired
		case errors.Is(err, jwt.ErrTokenSignatureInvalid):
			return nil, common.ErrorTokenInvalidSignature
		default:
			return nil, common.ErrorTokenMalformed
		}
	}

	if !token.Valid {
		return nil, common.ErrorTokenInvalidSignature
	}

	return claims, nil
}

// Decode extracts claims without any signature or expiry check. Returns nil
// if the token does not even parse. Only the logout path uses this: the goal
// there is state removal, not validation.
func Decode(tokenString string) *Claims {
	claims := &Claims{}
	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(tokenString, claims); err != nil {
		return nil
	}
	return claims
}
