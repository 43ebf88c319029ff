package genai

import (
	"context"
	"errors"
	"testing"

	"google.golang.org/api/googleapi"

	"github.com/oukeidos/kotoba/internal/apperrors"
)

func TestClassifyGenaiError_Quota(t *testing.T) {
	err := classifyGenaiError(&googleapi.Error{Code: 429, Message: "Quota exceeded for quota metric"})
	if kind, _ := apperrors.KindOf(err); kind != apperrors.KindQuotaExhausted {
		t.Fatalf("expected KindQuotaExhausted, got %v", kind)
	}
}

func TestClassifyGenaiError_RateLimit(t *testing.T) {
	err := classifyGenaiError(&googleapi.Error{Code: 503, Message: "service unavailable"})
	if kind, _ := apperrors.KindOf(err); kind != apperrors.KindRateLimit {
		t.Fatalf("expected KindRateLimit, got %v", kind)
	}
}

func TestClassifyGenaiError_BadRequest(t *testing.T) {
	err := classifyGenaiError(&googleapi.Error{Code: 400, Message: "invalid argument"})
	if kind, _ := apperrors.KindOf(err); kind != apperrors.KindBadRequest {
		t.Fatalf("expected KindBadRequest, got %v", kind)
	}
}

func TestClassifyGenaiError_Auth(t *testing.T) {
	err := classifyGenaiError(&googleapi.Error{Code: 401, Message: "unauthenticated"})
	if kind, _ := apperrors.KindOf(err); kind != apperrors.KindAuth {
		t.Fatalf("expected KindAuth, got %v", kind)
	}
}

func TestClassifyGenaiError_Transient(t *testing.T) {
	err := classifyGenaiError(&googleapi.Error{Code: 500, Message: "internal error"})
	if kind, _ := apperrors.KindOf(err); kind != apperrors.KindTransient {
		t.Fatalf("expected KindTransient, got %v", kind)
	}
}

func TestClassifyGenaiError_Cancellation(t *testing.T) {
	err := classifyGenaiError(context.Canceled)
	if kind, _ := apperrors.KindOf(err); kind != apperrors.KindCancellation {
		t.Fatalf("expected KindCancellation, got %v", kind)
	}
}

func TestClassifyGenaiError_DeadlineIsTransient(t *testing.T) {
	err := classifyGenaiError(context.DeadlineExceeded)
	if kind, _ := apperrors.KindOf(err); kind != apperrors.KindTransient {
		t.Fatalf("expected KindTransient for deadline exceeded, got %v", kind)
	}
}

func TestClassifyGenaiError_NonHTTPFailureIsTransient(t *testing.T) {
	err := classifyGenaiError(errors.New("dial tcp: connection refused"))
	if kind, _ := apperrors.KindOf(err); kind != apperrors.KindTransient {
		t.Fatalf("expected KindTransient for a raw network error, got %v", kind)
	}
}

func TestClassifyGenaiError_Nil(t *testing.T) {
	if err := classifyGenaiError(nil); err != nil {
		t.Fatalf("expected nil, got %v", err)
	}
}

func TestIsContentSafetyFinishReason(t *testing.T) {
	for _, r := range []string{"SAFETY", "RECITATION", "BLOCKLIST", "PROHIBITED_CONTENT", "SPII"} {
		if !isContentSafetyFinishReason(r) {
			t.Errorf("expected %q to be classified as content safety", r)
		}
	}
	if isContentSafetyFinishReason("STOP") {
		t.Error("expected STOP to not be classified as content safety")
	}
}
