package middleware

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
)

// CookieName is the cookie carrying the browser session id.
const CookieName = "session"

const cookieMaxAge = 7 * 24 * time.Hour

type contextKey struct{}

// SessionMiddleware makes sure every request carries a session id. A
// missing or malformed cookie is replaced with a fresh UUID.
func SessionMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := ""
		if cookie, err := r.Cookie(CookieName); err == nil {
			if parsed, err := uuid.Parse(cookie.Value); err == nil {
				id = parsed.String()
			}
		}

		if id == "" {
			id = uuid.NewString()
			http.SetCookie(w, &http.Cookie{
				Name:     CookieName,
				Value:    id,
				Path:     "/",
				MaxAge:   int(cookieMaxAge.Seconds()),
				HttpOnly: true,
				SameSite: http.SameSiteLaxMode,
			})
		}

		next.ServeHTTP(w, r.WithContext(WithSessionID(r.Context(), id)))
	})
}

// WithSessionID stores id in ctx.
func WithSessionID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, contextKey{}, id)
}

// SessionID returns the session id set by SessionMiddleware.
func SessionID(ctx context.Context) string {
	id, _ := ctx.Value(contextKey{}).(string)
	return id
}
