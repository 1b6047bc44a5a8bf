package middleware

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/kiranshivaraju/podcastgate/internal/api/response"
	"github.com/kiranshivaraju/podcastgate/internal/credentials"
	"github.com/kiranshivaraju/podcastgate/pkg/models"
)

// Auth authenticates bearer API keys.
type Auth struct {
	resolver credentials.Resolver
}

// NewAuth creates a new Auth middleware.
func NewAuth(r credentials.Resolver) *Auth {
	return &Auth{resolver: r}
}

// Authenticate validates the Bearer token, resolves its credential, and stores the
// credential in the request context.
func (a *Auth) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rawKey := extractBearerToken(r)
		if rawKey == "" {
			w.Header().Set("WWW-Authenticate", `Bearer realm="podcastgate"`)
			response.Error(w, http.StatusUnauthorized,
				"UNAUTHENTICATED", "Missing or invalid Authorization header", nil)
			return
		}

		cred, err := a.resolver.Resolve(r.Context(), rawKey)
		if err != nil {
			if errors.Is(err, models.ErrUnauthenticated) {
				slog.Info("rejected api key", "key_prefix", credentials.Prefix(rawKey), "path", r.URL.Path)
				w.Header().Set("WWW-Authenticate", `Bearer realm="podcastgate"`)
				response.Error(w, http.StatusUnauthorized,
					"UNAUTHENTICATED", "Invalid API key", nil)
				return
			}
			slog.Error("api key lookup failed", "error", err)
			response.Error(w, http.StatusInternalServerError,
				"INTERNAL_ERROR", "Failed to validate API key", nil)
			return
		}
		if !cred.Active {
			response.Error(w, http.StatusUnauthorized,
				"UNAUTHENTICATED", "API key is disabled", nil)
			return
		}

		next.ServeHTTP(w, r.WithContext(SetCredential(r.Context(), cred)))
	})
}

func extractBearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if auth == "" {
		return ""
	}
	parts := strings.SplitN(auth, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
