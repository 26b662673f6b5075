package auth

import (
	"log/slog"
	"net/http"

	"github.com/edierwan/getouch-sub000/internal/apierror"
)

// AdminAuthenticator accepts any operator-configured combination of: a
// static bearer token, a trusted reverse-proxy header, or a session cookie
// asserting an already-authenticated operator. It deliberately does not
// parse the cookie or header value — an upstream system owns that check;
// this authenticator only verifies presence/match and attaches an admin
// Principal.
type AdminAuthenticator struct {
	logger *slog.Logger

	token string

	trustHeader   bool
	trustedHeader string
	sessionCookie string
}

func NewAdminAuthenticator(logger *slog.Logger, token string, trustHeader bool, trustedHeader, sessionCookie string) *AdminAuthenticator {
	return &AdminAuthenticator{
		logger:        logger,
		token:         token,
		trustHeader:   trustHeader,
		trustedHeader: trustedHeader,
		sessionCookie: sessionCookie,
	}
}

// Require rejects any request that doesn't satisfy at least one configured
// admin authentication method.
func (a *AdminAuthenticator) Require(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		actor, method, ok := a.authenticate(r)
		if !ok {
			apierror.Respond(w, a.logger, apierror.New(apierror.KindAuthMissing, "admin authentication required"))
			return
		}
		principal := &Principal{Actor: actor, Method: method}
		ctx := NewContext(r.Context(), principal)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (a *AdminAuthenticator) authenticate(r *http.Request) (actor, method string, ok bool) {
	if a.token != "" {
		if bearer := bearerToken(r); bearer != "" && bearer == a.token {
			return "admin:token", MethodAdminToken, true
		}
	}
	if a.trustHeader && a.trustedHeader != "" {
		if v := r.Header.Get(a.trustedHeader); v != "" {
			return "admin:" + v, MethodAdminHeader, true
		}
	}
	if a.sessionCookie != "" {
		if c, err := r.Cookie(a.sessionCookie); err == nil && c.Value != "" {
			return "admin:session", MethodAdminHeader, true
		}
	}
	return "", "", false
}
