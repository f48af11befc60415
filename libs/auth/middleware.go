package auth

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/zapagenda/zapagenda/libs/httpx"
)

type ctxKey int

const ctxKeyOwner ctxKey = iota

// OwnerHeader carries the tenant id when a trusted gateway has already
// authenticated the caller.
const OwnerHeader = "X-Business-Id"

func WithOwner(ctx context.Context, ownerID string) context.Context {
	return context.WithValue(ctx, ctxKeyOwner, ownerID)
}

func OwnerFromContext(ctx context.Context) string {
	v, _ := ctx.Value(ctxKeyOwner).(string)
	return v
}

// RequireOwner resolves the owner from a bearer token, or from OwnerHeader
// when trustHeader is set, and rejects the request with 401 otherwise.
// A nil verifier disables bearer tokens.
func RequireOwner(v *Verifier, trustHeader bool, logger *slog.Logger) httpx.Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			owner := ""
			if raw, ok := bearerToken(r); ok && v != nil {
				claims, err := v.Verify(raw)
				if err != nil {
					logger.Debug("rejected bearer token",
						"request_id", httpx.RequestIDFromContext(r.Context()),
						"err", err,
					)
					httpx.WriteError(w, http.StatusUnauthorized, "invalid token", nil)
					return
				}
				owner = claims.BusinessID
			} else if trustHeader {
				owner = strings.TrimSpace(r.Header.Get(OwnerHeader))
			}
			if owner == "" {
				httpx.WriteError(w, http.StatusUnauthorized, "missing credentials", nil)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithOwner(r.Context(), owner)))
		})
	}
}

func bearerToken(r *http.Request) (string, bool) {
	h := r.Header.Get("Authorization")
	const prefix = "bearer "
	if len(h) <= len(prefix) || !strings.EqualFold(h[:len(prefix)], prefix) {
		return "", false
	}
	return strings.TrimSpace(h[len(prefix):]), true
}
