package genai

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/api/googleapi"

	"github.com/oukeidos/kotoba/internal/apperrors"
)

// contentSafetyFinishReasons are candidate finish reasons the SDK reports
// when the model itself refused to answer, as opposed to a transport error.
var contentSafetyFinishReasons = map[string]bool{
	"SAFETY":             true,
	"RECITATION":         true,
	"BLOCKLIST":          true,
	"PROHIBITED_CONTENT": true,
	"SPII":               true,
}

func isContentSafetyFinishReason(reason string) bool {
	return contentSafetyFinishReasons[strings.ToUpper(reason)]
}

// classifyGenaiError maps an error from the SDK (or a context deadline) to
// the shared apperrors taxonomy, so the retry core can dispatch on Kind
// without knowing anything about the transport.
func classifyGenaiError(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, context.Canceled) {
		return apperrors.Cancellation(err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return apperrors.Transient(err)
	}

	wrapped := fmt.Errorf("generative API call failed: %w", err)

	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		msg := strings.ToLower(gerr.Message)
		switch {
		case gerr.Code == 429 && (strings.Contains(msg, "quota") || strings.Contains(msg, "resource_exhausted")):
			return apperrors.QuotaExhausted(wrapped)
		case gerr.Code == 429 || gerr.Code == 503:
			return apperrors.RateLimit(wrapped)
		case gerr.Code == 400 || gerr.Code == 404:
			return apperrors.BadRequest(wrapped)
		case gerr.Code == 401 || gerr.Code == 403:
			return apperrors.Auth(wrapped)
		case gerr.Code >= 500:
			return apperrors.Transient(wrapped)
		default:
			return apperrors.BadRequest(wrapped)
		}
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "resource_exhausted") || strings.Contains(msg, "quota_exceeded") || strings.Contains(msg, "quota exceeded"):
		return apperrors.QuotaExhausted(wrapped)
	case strings.Contains(msg, "too many requests") || strings.Contains(msg, "429") || strings.Contains(msg, "503"):
		return apperrors.RateLimit(wrapped)
	case strings.Contains(msg, "invalid_argument") || strings.Contains(msg, "not_found") || strings.Contains(msg, "permission_denied") || strings.Contains(msg, "unauthenticated"):
		return apperrors.BadRequest(wrapped)
	default:
		return apperrors.Transient(wrapped)
	}
}
