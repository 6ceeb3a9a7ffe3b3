package http

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/gofrs/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"
	"github.com/vasiliy-maslov/sugar-marketplace/internal/auth"
	"github.com/vasiliy-maslov/sugar-marketplace/internal/catalog"
	"github.com/vasiliy-maslov/sugar-marketplace/internal/order"
	"github.com/vasiliy-maslov/sugar-marketplace/internal/user"
)

type TokenParser interface {
	Parse(raw string) (auth.Identity, error)
}

type TokenIssuer interface {
	Issue(userID uuid.UUID, role user.Role) (string, time.Time, error)
}

// RequireAuth rejects requests without a valid bearer token and stores the
// caller's identity in the request context.
func RequireAuth(tokens TokenParser) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			raw, found := strings.CutPrefix(header, "Bearer ")
			if !found || strings.TrimSpace(raw) == "" {
				respondWithError(w, http.StatusUnauthorized, CodeUnauthenticated, "Missing bearer token")
				return
			}

			identity, err := tokens.Parse(strings.TrimSpace(raw))
			if err != nil {
				status, body := mapError(err)
				respondWithJSON(w, status, body)
				return
			}

			hlog.FromRequest(r).UpdateContext(func(c zerolog.Context) zerolog.Context {
				return c.Stringer("user_id", identity.UserID)
			})
			next.ServeHTTP(w, r.WithContext(auth.WithIdentity(r.Context(), identity)))
		})
	}
}

// AccessLog installs a request-scoped zerolog logger and writes one line per
// request once it completes.
func AccessLog(logger zerolog.Logger) []func(http.Handler) http.Handler {
	return []func(http.Handler) http.Handler{
		hlog.NewHandler(logger),
		func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if id := middleware.GetReqID(r.Context()); id != "" {
					hlog.FromRequest(r).UpdateContext(func(c zerolog.Context) zerolog.Context {
						return c.Str("request_id", id)
					})
				}
				next.ServeHTTP(w, r)
			})
		},
		hlog.AccessHandler(func(r *http.Request, status, size int, duration time.Duration) {
			hlog.FromRequest(r).Info().
				Str("method", r.Method).
				Stringer("url", r.URL).
				Int("status", status).
				Int("size", size).
				Dur("duration", duration).
				Msg("HTTP request")
		}),
	}
}

// identity returns the authenticated caller. Routes using it sit behind
// RequireAuth, so a missing identity is a wiring error.
func identity(r *http.Request) auth.Identity {
	id, _ := auth.FromContext(r.Context())
	return id
}

func actorOf(id auth.Identity) order.Actor {
	return order.Actor{UserID: id.UserID, Admin: id.IsAdmin()}
}

func editorOf(id auth.Identity) catalog.Editor {
	return catalog.Editor{UserID: id.UserID, Admin: id.IsAdmin()}
}
