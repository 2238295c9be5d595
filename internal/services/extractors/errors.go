package extractors

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/RBarbieri13/decant/internal/common"
	"github.com/RBarbieri13/decant/internal/models"
	"github.com/RBarbieri13/decant/internal/resilience"
)

// httpErrorFrom drains up to 2KB of the body into a retryable HTTPError so
// the retry loop can honor Retry-After and match rate-limit indicators.
func httpErrorFrom(resp *http.Response) *resilience.HTTPError {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
	return &resilience.HTTPError{
		StatusCode: resp.StatusCode,
		Status:     resp.Status,
		RetryAfter: resp.Header.Get("Retry-After"),
		Body:       strings.TrimSpace(string(body)),
	}
}

// codeForStatus maps an API failure to the extraction error taxonomy.
// 401 means a bad key, 404 missing content, 403 is a rate limit when the
// body says so, otherwise forbidden.
func codeForStatus(statusCode int, body string) (common.ErrorCode, bool) {
	switch statusCode {
	case http.StatusUnauthorized:
		return common.ErrInvalidAPIKey, false
	case http.StatusNotFound:
		return common.ErrContentNotFound, false
	case http.StatusForbidden:
		lower := strings.ToLower(body)
		if strings.Contains(lower, "rate") || strings.Contains(lower, "quota") || strings.Contains(lower, "limit") {
			return common.ErrRateLimitExceeded, true
		}
		return common.ErrForbidden, false
	case http.StatusTooManyRequests:
		return common.ErrRateLimitExceeded, true
	case http.StatusRequestTimeout, http.StatusGatewayTimeout:
		return common.ErrNetworkTimeout, true
	default:
		if statusCode >= 500 {
			return common.ErrFetchFailed, true
		}
		return common.ErrExtractionFailed, false
	}
}

// extractionErrorFrom converts any outbound failure into the coded
// extraction error carried on a failed result.
func extractionErrorFrom(err error) *models.ExtractionError {
	var httpErr *resilience.HTTPError
	if errors.As(err, &httpErr) {
		code, recoverable := codeForStatus(httpErr.StatusCode, httpErr.Body)
		return &models.ExtractionError{
			Code:        string(code),
			Message:     httpErr.Error(),
			Recoverable: recoverable,
			Cause:       err,
		}
	}

	if code := common.CodeOf(err); code != common.ErrInternal {
		return &models.ExtractionError{
			Code:        string(code),
			Message:     err.Error(),
			Recoverable: common.IsRecoverable(err),
			Cause:       err,
		}
	}

	message := err.Error()
	code := common.ErrFetchFailed
	recoverable := true
	if strings.Contains(message, "timeout") || strings.Contains(message, "deadline exceeded") {
		code = common.ErrNetworkTimeout
	}
	return &models.ExtractionError{
		Code:        string(code),
		Message:     message,
		Recoverable: recoverable,
		Cause:       err,
	}
}
