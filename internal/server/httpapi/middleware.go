package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/dmitrijs2005/medcert/internal/common"
	"github.com/dmitrijs2005/medcert/internal/logging"
	"github.com/dmitrijs2005/medcert/internal/server/ratelimit"
	"github.com/dmitrijs2005/medcert/internal/server/sessions"
	"github.com/dmitrijs2005/medcert/internal/server/token"
)

type contextKey int

const claimsContextKey contextKey = iota

// ClaimsFromContext returns the verified claims the guard attached to the
// request, nil on unguarded routes.
func ClaimsFromContext(ctx context.Context) *token.Claims {
	claims, _ := ctx.Value(claimsContextKey).(*token.Claims)
	return claims
}

// Guard is the per-request authorization pipeline: bearer token, signature
// verification, session liveness, then role check. Routes registered
// without going through Wrap are public.
type Guard struct {
	sessions  sessions.Store
	secretKey []byte
	logger    logging.Logger
}

func NewGuard(store sessions.Store, secretKey []byte, logger logging.Logger) *Guard {
	return &Guard{sessions: store, secretKey: secretKey, logger: logger}
}

// Wrap protects a handler. When roles is non-empty the subject's role set
// must intersect it. Verification failures are deliberately collapsed into
// a single 401 message; the cause is only logged.
func (g *Guard) Wrap(next http.HandlerFunc, roles ...string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tokenString := bearerToken(r)
		if tokenString == "" {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}

		claims, err := token.Verify(tokenString, g.secretKey)
		if err != nil {
			g.logger.Debug(r.Context(), "token rejected", "error", err)
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		if claims.ID == "" {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}

		// the session record is what makes logout and eviction effective
		// while the token itself is still cryptographically valid
		if _, err := g.sessions.Get(r.Context(), sessions.SessionKey(claims.ID)); err != nil {
			if !errors.Is(err, common.ErrorNotFound) {
				g.logger.Error(r.Context(), "session lookup failed", "error", err)
			}
			writeError(w, http.StatusUnauthorized, "session expired")
			return
		}

		if len(roles) > 0 && !rolesIntersect(claims.Roles, roles) {
			writeError(w, http.StatusForbidden, "forbidden")
			return
		}

		ctx := context.WithValue(r.Context(), claimsContextKey, claims)
		next(w, r.WithContext(ctx))
	}
}

func rolesIntersect(have []string, required []string) bool {
	for _, h := range have {
		for _, req := range required {
			if h == req {
				return true
			}
		}
	}
	return false
}

// rateLimit throttles by caller IP within the named scope. Separate scopes
// keep auth and icd budgets independent for the same caller.
func rateLimit(limiter *ratelimit.Limiter, scope string, limit int, window time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := scope + ":" + clientIP(r)
			if err := limiter.Consume(key, limit, window); err != nil {
				writeError(w, http.StatusTooManyRequests, "too many requests")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
