package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"runtime/debug"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/matthewbaird/propmaint/internal/auth"
	"github.com/matthewbaird/propmaint/internal/logger"
)

// Authenticator resolves the caller of each request. A bearer token is
// verified when a Verifier is configured; with dev headers enabled,
// X-Actor and X-Role are trusted as-is.
type Authenticator struct {
	verifier   *auth.Verifier
	devHeaders bool
}

func NewAuthenticator(v *auth.Verifier, devHeaders bool) *Authenticator {
	return &Authenticator{verifier: v, devHeaders: devHeaders}
}

func (a *Authenticator) identify(r *http.Request) (auth.Caller, error) {
	token := r.Header.Get("Authorization")
	if token == "" {
		// Browsers cannot set headers on websocket upgrades.
		token = r.URL.Query().Get("access_token")
	}
	if token != "" && a.verifier != nil {
		return a.verifier.Verify(token)
	}
	if a.devHeaders {
		id := strings.TrimSpace(r.Header.Get("X-Actor"))
		role, ok := auth.ParseRole(r.Header.Get("X-Role"))
		if id == "" || !ok || role == auth.RoleSystem {
			return auth.Caller{}, errors.New("X-Actor and X-Role (tenant or admin) are required")
		}
		return auth.Caller{ID: id, Role: role}, nil
	}
	return auth.Caller{}, auth.ErrMissingToken
}

// Middleware rejects unauthenticated requests with 401.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := a.identify(r)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "UNAUTHENTICATED", err.Error())
			return
		}
		next.ServeHTTP(w, r.WithContext(auth.WithCaller(r.Context(), c)))
	})
}

// RequireAdmin rejects non-admin callers with 403.
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := requireAdmin(w, r, "http", "access "+r.URL.Path); !ok {
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Logging logs each request once it completes.
func Logging(log *slog.Logger) func(http.Handler) http.Handler {
	if log == nil {
		log = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			level := slog.LevelInfo
			switch {
			case status >= 500:
				level = slog.LevelError
			case status >= 400:
				level = slog.LevelWarn
			}
			logger.FromContext(r.Context(), log).Log(r.Context(), level, "request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", status,
				"bytes", ww.BytesWritten(),
				"duration", time.Since(start).String(),
			)
		})
	}
}

// Recovery turns a panic into a 500 and logs the stack.
func Recovery(log *slog.Logger) func(http.Handler) http.Handler {
	if log == nil {
		log = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					if rec == http.ErrAbortHandler {
						panic(rec)
					}
					logger.FromContext(r.Context(), log).Error("panic recovered",
						"panic", rec,
						"path", r.URL.Path,
						"stack", string(debug.Stack()),
					)
					writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}
