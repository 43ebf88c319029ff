package genai

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/oukeidos/kotoba/internal/apperrors"
	"github.com/oukeidos/kotoba/internal/httpclient"
)

// generativeLanguageBaseURL is the public REST surface used for model
// listing in API-key mode, mirroring the key-as-query-param shape the
// Generative Language REST API expects. A var, not a const, so tests can
// point it at an httptest server.
var generativeLanguageBaseURL = "https://generativelanguage.googleapis.com/v1beta"

// ListModels enumerates models visible to the current credential, rotating
// to the next key on an auth/rate-limit failure the same way Generate does.
// In API-key mode this calls the public REST endpoint directly, per key, so
// rotation on 401/429 is driven by a plain HTTP response rather than an
// SDK-internal call; in Vertex/service-account mode it uses the SDK's list.
func (c *Client) ListModels(ctx context.Context) ([]ModelInfo, error) {
	keysAttempted := 0
	totalKeys := c.poolSize()

	for keysAttempted < totalKeys {
		idx, pc, err := c.selectEligible()
		if err != nil {
			return nil, err
		}

		var models []ModelInfo
		var listErr error
		if c.multiKey {
			models, listErr = listOnceREST(ctx, pc.key)
		} else {
			models, listErr = listOnce(ctx, pc)
		}
		if listErr == nil {
			return models, nil
		}

		kind, _ := apperrors.KindOf(listErr)
		keysAttempted++
		if kind != apperrors.KindAuth && kind != apperrors.KindRateLimit {
			return nil, listErr
		}
		if !c.multiKey {
			return nil, listErr
		}
		c.advance(idx)
	}

	return nil, apperrors.AllKeysExhausted(fmt.Errorf("no eligible credential remaining while listing models"))
}

// restModelsResponse mirrors the Generative Language REST API's
// models.list response shape.
type restModelsResponse struct {
	Models []struct {
		Name                       string   `json:"name"`
		DisplayName                string   `json:"displayName"`
		Description                string   `json:"description"`
		InputTokenLimit            int32    `json:"inputTokenLimit"`
		OutputTokenLimit           int32    `json:"outputTokenLimit"`
		SupportedGenerationMethods []string `json:"supportedGenerationMethods"`
	} `json:"models"`
	NextPageToken string `json:"nextPageToken"`
}

// listOnceREST pages through models.list on the public REST endpoint for a
// single API key, bypassing the SDK entirely.
func listOnceREST(ctx context.Context, apiKey string) ([]ModelInfo, error) {
	client := httpclient.GetDefaultClient()

	var out []ModelInfo
	pageToken := ""
	for {
		reqURL := generativeLanguageBaseURL + "/models?key=" + url.QueryEscape(apiKey) + "&pageSize=1000"
		if pageToken != "" {
			reqURL += "&pageToken=" + url.QueryEscape(pageToken)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
		if err != nil {
			return out, apperrors.BadRequest(fmt.Errorf("building model-list request: %w", err))
		}

		body, resp, err := httpclient.DoAndRead(client, req)
		if err != nil {
			return out, classifyGenaiError(err)
		}
		if resp.StatusCode != http.StatusOK {
			return out, classifyRESTStatusError(resp.StatusCode, body)
		}

		var parsed restModelsResponse
		if err := json.Unmarshal(body, &parsed); err != nil {
			return out, apperrors.Transient(fmt.Errorf("parsing model-list response: %w", err))
		}
		for _, m := range parsed.Models {
			out = append(out, ModelInfo{
				Name:             m.Name,
				ShortName:        shortModelName(m.Name),
				DisplayName:      m.DisplayName,
				Description:      m.Description,
				InputTokenLimit:  m.InputTokenLimit,
				OutputTokenLimit: m.OutputTokenLimit,
				SupportedActions: m.SupportedGenerationMethods,
			})
		}

		if parsed.NextPageToken == "" {
			return out, nil
		}
		pageToken = parsed.NextPageToken
	}
}

// classifyRESTStatusError maps a non-200 REST status to the shared
// apperrors taxonomy, the REST-path counterpart to classifyGenaiError's
// googleapi.Error branch.
func classifyRESTStatusError(statusCode int, body []byte) error {
	wrapped := fmt.Errorf("model-list REST call failed (status %d): %s", statusCode, strings.TrimSpace(string(body)))
	msg := strings.ToLower(string(body))
	switch {
	case statusCode == http.StatusTooManyRequests && (strings.Contains(msg, "quota") || strings.Contains(msg, "resource_exhausted")):
		return apperrors.QuotaExhausted(wrapped)
	case statusCode == http.StatusTooManyRequests || statusCode == http.StatusServiceUnavailable:
		return apperrors.RateLimit(wrapped)
	case statusCode == http.StatusBadRequest || statusCode == http.StatusNotFound:
		return apperrors.BadRequest(wrapped)
	case statusCode == http.StatusUnauthorized || statusCode == http.StatusForbidden:
		return apperrors.Auth(wrapped)
	case statusCode >= http.StatusInternalServerError:
		return apperrors.Transient(wrapped)
	default:
		return apperrors.BadRequest(wrapped)
	}
}

func listOnce(ctx context.Context, pc *pooledClient) ([]ModelInfo, error) {
	var out []ModelInfo
	for m, err := range pc.sdk.Models.All(ctx) {
		if err != nil {
			return out, classifyGenaiError(err)
		}
		out = append(out, ModelInfo{
			Name:             m.Name,
			ShortName:        shortModelName(m.Name),
			DisplayName:      m.DisplayName,
			Description:      m.Description,
			InputTokenLimit:  m.InputTokenLimit,
			OutputTokenLimit: m.OutputTokenLimit,
			SupportedActions: m.SupportedActions,
		})
	}
	return out, nil
}

func shortModelName(name string) string {
	for i := len(name) - 1; i >= 0; i-- {
		if name[i] == '/' {
			return name[i+1:]
		}
	}
	return name
}
