package http

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/jupiterclapton/cenackle/services/social-service/internal/core/domain"
	"github.com/jupiterclapton/cenackle/services/social-service/internal/core/ports"
)

// Clé privée pour le contexte (évite les collisions)
type contextKey struct{ name string }

var accountCtxKey = &contextKey{"account"}

// RequireAuth valide le header Authorization et injecte le compte dans le contexte.
// Aucun handler protégé n'est atteint sans compte résolu.
func RequireAuth(auth ports.Authenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			account, err := auth.Authenticate(r.Context(), r.Header.Get("Authorization"))
			if err != nil {
				writeError(w, r, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithAccount(r.Context(), account)))
		})
	}
}

// RequireHandshakeAuth : les navigateurs ne peuvent pas poser de header sur un
// upgrade WebSocket, on accepte aussi ?access_token=.
func RequireHandshakeAuth(auth ports.Authenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var (
				account *domain.Account
				err     error
			)
			if header := r.Header.Get("Authorization"); header != "" {
				account, err = auth.Authenticate(r.Context(), header)
			} else {
				account, err = auth.AuthenticateToken(r.Context(), r.URL.Query().Get("access_token"))
			}
			if err != nil {
				writeError(w, r, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithAccount(r.Context(), account)))
		})
	}
}

func WithAccount(ctx context.Context, account *domain.Account) context.Context {
	return context.WithValue(ctx, accountCtxKey, account)
}

// AccountFromContext renvoie le compte authentifié, nil sur une route publique.
func AccountFromContext(ctx context.Context) *domain.Account {
	account, _ := ctx.Value(accountCtxKey).(*domain.Account)
	return account
}

// requestLogger journalise chaque requête avec slog.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		level := slog.LevelDebug
		if ww.Status() >= http.StatusInternalServerError {
			level = slog.LevelWarn
		}
		slog.Log(r.Context(), level, "http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}
