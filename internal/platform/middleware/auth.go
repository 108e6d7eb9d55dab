// Package middleware attaches request-scoped values for an outer HTTP layer.
package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"projectdesk/pkg/requestcontext"
)

const headerRequestID = "X-Request-ID"

// TokenAttacher resolves a bearer token into a context carrying the actor.
type TokenAttacher interface {
	Attach(ctx context.Context, token string) (context.Context, error)
}

// RequestID reuses an inbound X-Request-ID or mints one.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get(headerRequestID)
		if requestID == "" {
			requestID = uuid.NewString()
		}
		w.Header().Set(headerRequestID, requestID)
		ctx := requestcontext.WithRequestID(r.Context(), requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireIdentity rejects requests without a bearer token that resolves to an
// active account.
func RequireIdentity(attacher TokenAttacher, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || token == "" {
				unauthorized(ctx, w, logger, "missing token", nil)
				return
			}
			authed, err := attacher.Attach(ctx, token)
			if err != nil {
				unauthorized(ctx, w, logger, "invalid token", err)
				return
			}
			next.ServeHTTP(w, r.WithContext(authed))
		})
	}
}

func unauthorized(ctx context.Context, w http.ResponseWriter, logger *slog.Logger, reason string, err error) {
	if logger != nil {
		logger.WarnContext(ctx, "unauthorized access - "+reason,
			"error", err,
			"request_id", requestcontext.RequestID(ctx),
		)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	if _, werr := w.Write([]byte(`{"detail":"Authentication credentials were not provided or are invalid."}`)); werr != nil && logger != nil {
		logger.ErrorContext(ctx, "failed to write unauthorized response", "error", werr)
	}
}
