// Package httputil holds the response and request helpers shared by all
// HTTP handlers: JSON writing, the uniform error body, rate-limit
// headers, and body parsing.
package httputil

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/vberkoz/kvgate/pkg/apierr"
	"github.com/vberkoz/kvgate/pkg/contextkeys"
	"github.com/vberkoz/kvgate/pkg/observability"
	"github.com/vberkoz/kvgate/pkg/ratelimit"
)

// MaxBodyBytes caps request bodies slightly above the value limit so the
// JSON envelope around a maximum-size value still parses.
const MaxBodyBytes = 512 * 1024

// errorBody is the uniform error response shape.
type errorBody struct {
	Error         string `json:"error"`
	StatusCode    int    `json:"statusCode"`
	Code          string `json:"code"`
	CorrelationID string `json:"correlationId,omitempty"`
}

// WriteJSON serializes v with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

// WriteError maps any error to the uniform error body. Unexpected errors
// are logged with full context and surfaced as a bare internal error;
// raw store or driver detail never reaches the client. Rate-limit
// headers accumulated earlier in the pipeline are attached so a
// short-circuited 429 still carries them.
func WriteError(w http.ResponseWriter, r *http.Request, err error) {
	apiErr := apierr.From(err)
	if apiErr.StatusCode >= http.StatusInternalServerError {
		observability.FromContext(r.Context()).WithError(err).Error("request failed")
	}

	for name, value := range contextkeys.GetRateLimitHeaders(r.Context()) {
		w.Header().Set(name, value)
	}
	if apiErr.RetryAfter > 0 {
		w.Header().Set("Retry-After", strconv.Itoa(apiErr.RetryAfter))
	}

	WriteJSON(w, apiErr.StatusCode, errorBody{
		Error:         apiErr.Message,
		StatusCode:    apiErr.StatusCode,
		Code:          apiErr.Code,
		CorrelationID: contextkeys.GetCorrelationID(r.Context()),
	})
}

// RateLimitHeaders renders a limiter decision as the standard headers.
func RateLimitHeaders(d ratelimit.Decision) map[string]string {
	return map[string]string{
		"X-RateLimit-Limit":     strconv.Itoa(d.Limit),
		"X-RateLimit-Remaining": strconv.Itoa(d.Remaining),
		"X-RateLimit-Reset":     strconv.FormatInt(d.ResetEpoch, 10),
	}
}

// SetRateLimitHeaders writes a limiter decision onto the response.
func SetRateLimitHeaders(w http.ResponseWriter, d ratelimit.Decision) {
	for name, value := range RateLimitHeaders(d) {
		w.Header().Set(name, value)
	}
}

// ParseJSON decodes a request body into dst, enforcing the body cap and
// returning a validation error the pipeline can map to 400.
func ParseJSON(r *http.Request, dst any) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, MaxBodyBytes+1))
	if err != nil {
		return apierr.Validation("unable to read request body")
	}
	if len(body) > MaxBodyBytes {
		return apierr.Validation(fmt.Sprintf("request body exceeds %d bytes", MaxBodyBytes))
	}
	if len(body) == 0 {
		return apierr.Validation("request body is required")
	}
	if err := json.Unmarshal(body, dst); err != nil {
		return apierr.Validation("request body must be valid JSON")
	}
	return nil
}
