package auth

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/edierwan/getouch-sub000/internal/apierror"
	"github.com/edierwan/getouch-sub000/internal/store"
	"github.com/edierwan/getouch-sub000/internal/taskqueue"
	"github.com/edierwan/getouch-sub000/internal/telemetry"
)

// TenantAuthenticator resolves and rate-limits the tenant bearer credential
// on the public API (Authorization: Bearer sms_<hex>). A matched key is
// attached to the request context as a Principal.
type TenantAuthenticator struct {
	store      *store.Store
	logger     *slog.Logger
	limiter    *RateLimiter
	touchQueue *taskqueue.Queue
}

func NewTenantAuthenticator(st *store.Store, logger *slog.Logger, limiter *RateLimiter, touchQueue *taskqueue.Queue) *TenantAuthenticator {
	return &TenantAuthenticator{store: st, logger: logger, limiter: limiter, touchQueue: touchQueue}
}

// RequireScope returns middleware that authenticates the bearer key and
// rejects requests lacking the given scope.
func (a *TenantAuthenticator) RequireScope(scope string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal, apiErr := a.authenticate(r)
			if apiErr != nil {
				apierror.Respond(w, a.logger, apiErr)
				return
			}
			if scope != "" && !principal.HasScope(scope) {
				apierror.Respond(w, a.logger, apierror.New(apierror.KindAuthScope, "api key lacks required scope: "+scope))
				return
			}
			ctx := NewContext(r.Context(), principal)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func (a *TenantAuthenticator) authenticate(r *http.Request) (*Principal, *apierror.Error) {
	raw := bearerToken(r)
	if raw == "" {
		return nil, apierror.New(apierror.KindAuthMissing, "missing Authorization: Bearer header")
	}
	if !strings.HasPrefix(raw, "sms_") || len(raw) != 68 {
		return nil, apierror.New(apierror.KindAuthInvalid, "malformed api key")
	}

	hash := HashKey(raw)
	key, err := a.store.GetAPIKeyByHash(r.Context(), hash)
	if err != nil {
		return nil, apierror.Wrap(apierror.KindAuthInvalid, "invalid api key", err)
	}
	if !key.IsActive {
		return nil, apierror.New(apierror.KindAuthInvalid, "api key revoked")
	}
	if key.ExpiresAt != nil && key.ExpiresAt.Before(time.Now()) {
		return nil, apierror.New(apierror.KindAuthInvalid, "api key expired")
	}

	tenant, err := a.store.GetTenantByID(r.Context(), key.TenantID)
	if err != nil {
		return nil, apierror.Wrap(apierror.KindAuthInvalid, "tenant lookup failed", err)
	}
	if tenant.Status != store.TenantActive {
		return nil, apierror.New(apierror.KindAuthInvalid, "tenant suspended")
	}

	result, err := a.limiter.Allow(r.Context(), key.ID, key.RateLimitRPM)
	if err != nil {
		return nil, apierror.Wrap(apierror.KindInternal, "rate limit check failed", err)
	}
	if !result.Allowed {
		telemetry.RateLimitRejectedTotal.WithLabelValues(key.ID.String()).Inc()
		rateErr := apierror.New(apierror.KindRateLimited, "rate limit exceeded")
		rateErr.RetryAfter = int(result.RetryAfter.Seconds()) + 1
		return nil, rateErr
	}

	keyID := key.ID
	a.touchQueue.Submit(func(ctx context.Context) {
		_ = a.store.TouchAPIKeyLastUsed(ctx, keyID)
	})

	return &Principal{
		TenantID: tenant.ID,
		Actor:    "apikey:" + key.ID.String(),
		Method:   MethodAPIKey,
		APIKeyID: &key.ID,
		Scopes:   key.Scopes,
	}, nil
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if !strings.HasPrefix(h, prefix) {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(h, prefix))
}
