package provider

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/psu6810110402/gemini-foundry/internal/apierr"
)

var safetyMarkers = []string{"safety", "blocked", "content_filter", "harm_category", "prohibited_content"}

// classifyStatus maps an upstream HTTP status and message to an apierr kind.
func classifyStatus(status int, msg string, err error) error {
	lower := strings.ToLower(msg)
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden || strings.Contains(lower, "api_key") || strings.Contains(lower, "api key"):
		return apierr.Wrap(apierr.AuthenticationFailure, err, "model provider rejected credentials")
	case status == http.StatusTooManyRequests || strings.Contains(lower, "quota"):
		return apierr.Wrap(apierr.RateLimited, err, "model provider rate limit")
	case containsAny(lower, safetyMarkers):
		return apierr.Wrap(apierr.SafetyRejection, err, "blocked by safety filter")
	case status == http.StatusBadRequest || status == http.StatusNotFound || status == http.StatusUnprocessableEntity:
		return apierr.Wrap(apierr.BadRequest, err, "model provider rejected request")
	case status >= 500:
		return apierr.Wrap(apierr.TransientGenerationFailure, err, "model provider unavailable")
	default:
		return apierr.Wrap(apierr.Internal, err, "model provider error")
	}
}

// classifyTransport handles errors that never reached an HTTP status.
func classifyTransport(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var ae *apierr.Error
	if errors.As(err, &ae) {
		return err
	}
	return apierr.Wrap(apierr.TransientGenerationFailure, err, "model provider unreachable")
}

func safetyError(reason string) error {
	return apierr.New(apierr.SafetyRejection, "blocked by safety filter: "+reason)
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
