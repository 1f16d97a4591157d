package middleware

import (
	"context"
	"net/http"

	"github.com/erikmillergalow/impermachat/internal/contextkey"
	"github.com/google/uuid"
)

// ConnectionCookieName is the browser cookie that identifies a participant
// across every request they make, including the event stream.
const ConnectionCookieName = "impermachat_id"

// ConnectionIDMiddleware ensures every request carries a connection ID cookie.
// New visitors are minted a UUID before the handler runs, so the very first
// page load already has an identity. The cookie is deliberately long-lived:
// rooms are ephemeral, identities are not.
func ConnectionIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		cookie, err := req.Cookie(ConnectionCookieName)
		if err != nil {
			id := uuid.New().String()
			// Headers must be written before the handler starts the response.
			http.SetCookie(w, &http.Cookie{
				Name:     ConnectionCookieName,
				Value:    id,
				Path:     "/",
				HttpOnly: true,
			})
			next.ServeHTTP(w, req)
			return
		}

		ctx := context.WithValue(req.Context(), contextkey.ContextKeyConnectionID, cookie.Value)
		next.ServeHTTP(w, req.WithContext(ctx))
	})
}

// ConnectionID extracts the caller's connection ID from the request cookie.
// Handlers that require an identity use the ok result to produce their own
// recovery response rather than failing generically.
func ConnectionID(req *http.Request) (string, bool) {
	cookie, err := req.Cookie(ConnectionCookieName)
	if err != nil || cookie.Value == "" {
		return "", false
	}
	return cookie.Value, true
}
