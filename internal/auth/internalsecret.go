package auth

import (
	"crypto/hmac"
	"log/slog"
	"net/http"

	"github.com/edierwan/getouch-sub000/internal/apierror"
)

// InternalSecretAuthenticator guards the server-side adapter's delivery
// callback (/internal/adapter/delivery) with a static shared secret header
// rather than a per-tenant or per-device credential.
type InternalSecretAuthenticator struct {
	secret string
	logger *slog.Logger
}

func NewInternalSecretAuthenticator(secret string, logger *slog.Logger) *InternalSecretAuthenticator {
	return &InternalSecretAuthenticator{secret: secret, logger: logger}
}

// Require returns middleware rejecting any request whose X-Sms-Internal-Secret
// header doesn't match the configured secret. If no secret is configured the
// plane is disabled and every request is rejected (fail closed).
func (a *InternalSecretAuthenticator) Require(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if a.secret == "" {
			apierror.Respond(w, a.logger, apierror.New(apierror.KindAuthMissing, "internal secret plane disabled"))
			return
		}
		presented := r.Header.Get("X-Sms-Internal-Secret")
		if presented == "" || !hmac.Equal([]byte(presented), []byte(a.secret)) {
			apierror.Respond(w, a.logger, apierror.New(apierror.KindAuthInvalid, "invalid internal secret"))
			return
		}
		next.ServeHTTP(w, r)
	})
}
