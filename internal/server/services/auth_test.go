package services

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/dmitrijs2005/medcert/internal/common"
	"github.com/dmitrijs2005/medcert/internal/logging"
	"github.com/dmitrijs2005/medcert/internal/server/config"
	"github.com/dmitrijs2005/medcert/internal/server/models"
	"github.com/dmitrijs2005/medcert/internal/server/sessions"
	"github.com/dmitrijs2005/medcert/internal/server/token"
)

// --- helpers ---

type fakeUserFinder struct {
	user *models.User
	err  error
}

func (f *fakeUserFinder) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.user, nil
}

func newAuthService(t *testing.T, users UserFinder, store sessions.Store) *AuthService {
	t.Helper()
	cfg := &config.Config{
		SecretKey:  "k",
		TokenTTL:   time.Hour,
		SessionTTL: 4 * time.Hour,
	}
	logger := logging.NewSlogLogger(slog.New(slog.NewTextHandler(os.Stderr, nil)))
	return NewAuthService(users, store, cfg, logger)
}

func activeUser(t *testing.T) *models.User {
	t.Helper()
	hash, err := token.HashPassword("correct-horse")
	if err != nil {
		t.Fatalf("HashPassword error: %v", err)
	}
	return &models.User{
		ID:           "u-1",
		Email:        "rh@example.com",
		PasswordHash: hash,
		Status:       models.StatusActive,
		Roles:        []string{"rh"},
	}
}

// --- tests ---

func TestLogin_Success_CreatesLiveSession(t *testing.T) {
	store := sessions.NewMemoryStore()
	svc := newAuthService(t, &fakeUserFinder{user: activeUser(t)}, store)
	ctx := context.Background()

	tok, err := svc.Login(ctx, "rh@example.com", "correct-horse")
	if err != nil {
		t.Fatalf("Login error: %v", err)
	}

	claims, err := token.Verify(tok, []byte("k"))
	if err != nil {
		t.Fatalf("issued token does not verify: %v", err)
	}
	if claims.ID == "" {
		t.Fatalf("expected jti in claims")
	}

	subject, err := store.Get(ctx, sessions.SessionKey(claims.ID))
	if err != nil {
		t.Fatalf("expected live session for jti: %v", err)
	}
	if subject != "u-1" {
		t.Fatalf("session holds %q, want subject id", subject)
	}
}

func TestLogin_SecondLoginEvictsFirstSession(t *testing.T) {
	store := sessions.NewMemoryStore()
	svc := newAuthService(t, &fakeUserFinder{user: activeUser(t)}, store)
	ctx := context.Background()

	tok1, err := svc.Login(ctx, "rh@example.com", "correct-horse")
	if err != nil {
		t.Fatalf("first Login error: %v", err)
	}
	tok2, err := svc.Login(ctx, "rh@example.com", "correct-horse")
	if err != nil {
		t.Fatalf("second Login error: %v", err)
	}

	jti1 := token.Decode(tok1).ID
	jti2 := token.Decode(tok2).ID

	if _, err := store.Get(ctx, sessions.SessionKey(jti1)); !errors.Is(err, common.ErrorNotFound) {
		t.Fatalf("expected first session to be evicted, got %v", err)
	}
	if _, err := store.Get(ctx, sessions.SessionKey(jti2)); err != nil {
		t.Fatalf("expected second session to be live, got %v", err)
	}
}

func TestLogin_Unauthorized_IndistinguishableCauses(t *testing.T) {
	store := sessions.NewMemoryStore()
	ctx := context.Background()

	disabled := activeUser(t)
	disabled.Status = models.StatusDisabled

	cases := []struct {
		name     string
		users    UserFinder
		password string
	}{
		{"unknown email", &fakeUserFinder{err: common.ErrorNotFound}, "correct-horse"},
		{"bad password", &fakeUserFinder{user: activeUser(t)}, "wrong"},
		{"disabled account", &fakeUserFinder{user: disabled}, "correct-horse"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc := newAuthService(t, tc.users, store)
			_, err := svc.Login(ctx, "rh@example.com", tc.password)
			if !errors.Is(err, common.ErrorUnauthorized) {
				t.Fatalf("expected ErrorUnauthorized, got %v", err)
			}
		})
	}
}

func TestLogin_RepositoryFailurePropagates(t *testing.T) {
	store := sessions.NewMemoryStore()
	svc := newAuthService(t, &fakeUserFinder{err: errors.New("db down")}, store)

	_, err := svc.Login(context.Background(), "rh@example.com", "x")
	if err == nil || errors.Is(err, common.ErrorUnauthorized) {
		t.Fatalf("expected infrastructure error, got %v", err)
	}
}

func TestLogout_AlwaysSucceeds(t *testing.T) {
	store := sessions.NewMemoryStore()
	svc := newAuthService(t, &fakeUserFinder{user: activeUser(t)}, store)
	ctx := context.Background()

	// valid token: session removed
	tok, err := svc.Login(ctx, "rh@example.com", "correct-horse")
	if err != nil {
		t.Fatalf("Login error: %v", err)
	}
	jti := token.Decode(tok).ID

	svc.Logout(ctx, tok)
	if _, err := store.Get(ctx, sessions.SessionKey(jti)); !errors.Is(err, common.ErrorNotFound) {
		t.Fatalf("expected session removed after logout, got %v", err)
	}

	// malformed and empty tokens must not panic or fail
	svc.Logout(ctx, "garbage")
	svc.Logout(ctx, "")
}
