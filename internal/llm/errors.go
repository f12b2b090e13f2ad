package llm

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/google/generative-ai-go/genai"
	"github.com/sashabaranov/go-openai"

	"github.com/socratic-ai/tutor-platform/internal/apperr"
)

func classifyOpenAI(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		if apiErr.HTTPStatusCode == http.StatusTooManyRequests {
			if apiErr.Type == "insufficient_quota" || fmt.Sprint(apiErr.Code) == "insufficient_quota" {
				return apperr.QuotaExceeded(err)
			}
			return apperr.RateLimited(err)
		}
		return apperr.Unavailable(err)
	}

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) && reqErr.HTTPStatusCode == http.StatusTooManyRequests {
		return apperr.RateLimited(err)
	}

	return apperr.Unavailable(err)
}

func classifyAnthropic(err error) error {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.StatusCode == http.StatusTooManyRequests:
			return apperr.RateLimited(err)
		case strings.Contains(strings.ToLower(apiErr.Error()), "credit balance"):
			return apperr.QuotaExceeded(err)
		}
	}
	return apperr.Unavailable(err)
}

// httpCoder is implemented by the Google API error types.
type httpCoder interface {
	HTTPCode() int
}

func classifyGemini(err error) error {
	var blocked *genai.BlockedError
	if errors.As(err, &blocked) {
		return apperr.Malformed(err)
	}

	var coded httpCoder
	if errors.As(err, &coded) && coded.HTTPCode() == http.StatusTooManyRequests {
		return classifyExhausted(err)
	}

	msg := err.Error()
	if strings.Contains(msg, "RESOURCE_EXHAUSTED") || strings.Contains(msg, "429") {
		return classifyExhausted(err)
	}
	return apperr.Unavailable(err)
}

// classifyExhausted separates billing exhaustion from per-minute throttling.
func classifyExhausted(err error) error {
	if strings.Contains(strings.ToLower(err.Error()), "billing") {
		return apperr.QuotaExceeded(err)
	}
	return apperr.RateLimited(err)
}
