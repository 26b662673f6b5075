package apierror

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/edierwan/getouch-sub000/internal/httpserver"
)

// Respond writes err to w using the shared JSON error envelope, logging
// internal errors that shouldn't leak their underlying cause to the client.
func Respond(w http.ResponseWriter, logger *slog.Logger, err error) {
	var apiErr *Error
	if !errors.As(err, &apiErr) {
		logger.Error("unclassified error", "error", err)
		httpserver.RespondError(w, http.StatusInternalServerError, string(KindInternal), "internal error")
		return
	}

	if apiErr.Kind == KindInternal {
		logger.Error("internal error", "error", apiErr.Err, "message", apiErr.Message)
	}

	if apiErr.Kind == KindRateLimited && apiErr.RetryAfter > 0 {
		w.Header().Set("Retry-After", strconv.Itoa(apiErr.RetryAfter))
	}

	httpserver.RespondError(w, apiErr.Status(), string(apiErr.Kind), apiErr.Message)
}
