package middleware

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
)

// SessionIDKey is the context key for the shopper session ID.
const SessionIDKey contextKey = "session_id"

// Session transport names.
const (
	SessionIDHeader   = "X-Session-ID"
	SessionCookieName = "session_id"
)

const (
	maxSessionIDLength = 128
	sessionCookieTTL   = 365 * 24 * time.Hour
)

// Session returns a middleware that identifies the shopper. The ID is taken
// from the X-Session-ID header, then the session_id cookie, and generated
// when neither holds a valid ID. It is echoed in the response header and
// cookie and stored in the request context.
func Session(secureCookie bool) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sessionID, fromCookie := incomingSessionID(r)
			if sessionID == "" {
				sessionID = uuid.New().String()
			}

			w.Header().Set(SessionIDHeader, sessionID)
			r.Header.Set(SessionIDHeader, sessionID)
			if !fromCookie {
				http.SetCookie(w, &http.Cookie{
					Name:     SessionCookieName,
					Value:    sessionID,
					Path:     "/",
					MaxAge:   int(sessionCookieTTL.Seconds()),
					HttpOnly: true,
					Secure:   secureCookie,
					SameSite: http.SameSiteLaxMode,
				})
			}

			ctx := context.WithValue(r.Context(), SessionIDKey, sessionID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetSessionID returns the session ID stored in ctx, or "".
func GetSessionID(ctx context.Context) string {
	id, _ := ctx.Value(SessionIDKey).(string)
	return id
}

// WithSessionID returns a copy of ctx carrying sessionID.
func WithSessionID(ctx context.Context, sessionID string) context.Context {
	return context.WithValue(ctx, SessionIDKey, sessionID)
}

// incomingSessionID returns the client's session ID and whether it already
// matches the cookie.
func incomingSessionID(r *http.Request) (string, bool) {
	var cookieID string
	if c, err := r.Cookie(SessionCookieName); err == nil && validSessionID(c.Value) {
		cookieID = c.Value
	}

	if header := r.Header.Get(SessionIDHeader); validSessionID(header) {
		return header, header == cookieID
	}
	return cookieID, cookieID != ""
}

// validSessionID accepts IDs made of letters, digits, '-' and '_'. Session
// IDs become storage keys, so anything else is rejected.
func validSessionID(id string) bool {
	if id == "" || len(id) > maxSessionIDLength {
		return false
	}
	for _, c := range id {
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '-', c == '_':
		default:
			return false
		}
	}
	return true
}
