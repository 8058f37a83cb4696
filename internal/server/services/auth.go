// Package services contains server-side business logic. This file implements
// AuthService: credential verification, token issuance and the
// single-session-per-subject protocol over the session store.
package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/medcert/internal/common"
	"github.com/dmitrijs2005/medcert/internal/logging"
	"github.com/dmitrijs2005/medcert/internal/server/config"
	"github.com/dmitrijs2005/medcert/internal/server/models"
	"github.com/dmitrijs2005/medcert/internal/server/sessions"
	"github.com/dmitrijs2005/medcert/internal/server/token"
	"github.com/google/uuid"
)

// UserFinder is the slice of the user-management subsystem this service
// depends on.
type UserFinder interface {
	GetByEmail(ctx context.Context, email string) (*models.User, error)
}

type AuthService struct {
	users      UserFinder
	sessions   sessions.Store
	logger     logging.Logger
	secretKey  []byte
	tokenTTL   time.Duration
	sessionTTL time.Duration
}

func NewAuthService(users UserFinder, store sessions.Store, cfg *config.Config, logger logging.Logger) *AuthService {
	return &AuthService{
		users:      users,
		sessions:   store,
		logger:     logger,
		secretKey:  []byte(cfg.SecretKey),
		tokenTTL:   cfg.TokenTTL,
		sessionTTL: cfg.SessionTTL,
	}
}

// Login verifies credentials and returns a signed access token. Unknown
// email, wrong password and disabled account all map to ErrorUnauthorized:
// the caller must not be able to enumerate users. A successful login evicts
// the subject's previous session, so at most one session per subject is
// live at a time.
func (s *AuthService) Login(ctx context.Context, email string, password string) (string, error) {
	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			s.logger.Debug(ctx, "login rejected: unknown email", "email", email)
			return "", common.ErrorUnauthorized
		}
		return "", fmt.Errorf("user lookup: %w", err)
	}
	if !token.CheckPassword(password, user.PasswordHash) {
		s.logger.Debug(ctx, "login rejected: bad password", "email", email)
		return "", common.ErrorUnauthorized
	}
	if user.Status == models.StatusDisabled {
		s.logger.Debug(ctx, "login rejected: disabled account", "email", email)
		return "", common.ErrorUnauthorized
	}

	jti := uuid.NewString()
	accessToken, err := token.Generate(user, jti, s.secretKey, s.tokenTTL)
	if err != nil {
		return "", common.ErrorInternal
	}

	// Evict the previous session before recording the new one. Failures here
	// are non-fatal: worst case the old session lives out its TTL.
	lastKey := sessions.UserSessionKey(user.Email)
	if prev, err := s.sessions.Get(ctx, lastKey); err == nil && prev != "" {
		if err := s.sessions.Del(ctx, sessions.SessionKey(prev)); err != nil {
			s.logger.Warn(ctx, "failed to evict previous session", "error", err)
		}
	} else if err != nil && !errors.Is(err, common.ErrorNotFound) {
		s.logger.Warn(ctx, "failed to look up previous session", "error", err)
	}

	if err := s.sessions.Set(ctx, sessions.SessionKey(jti), user.ID, s.sessionTTL); err != nil {
		return "", fmt.Errorf("session write: %w", err)
	}
	if err := s.sessions.Set(ctx, lastKey, jti, s.sessionTTL); err != nil {
		return "", fmt.Errorf("session pointer write: %w", err)
	}

	return accessToken, nil
}

// Logout deletes the session referenced by the token, if any. It never
// fails: the token is decoded without verification and every error is
// swallowed — the goal is state removal, and an invalid token has no state
// worth keeping anyway.
func (s *AuthService) Logout(ctx context.Context, tokenString string) {
	claims := token.Decode(tokenString)
	if claims == nil || claims.ID == "" {
		return
	}
	if err := s.sessions.Del(ctx, sessions.SessionKey(claims.ID)); err != nil {
		s.logger.Warn(ctx, "logout: session delete failed", "error", err)
	}
}
