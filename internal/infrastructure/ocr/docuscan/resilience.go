package docuscan

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/docuflow/capture/internal/core/domain"
)

// HTTPStatusError preserves the backend's HTTP response for classification.
type HTTPStatusError struct {
	Operation  string
	StatusCode int
	Status     string
	Body       string
}

func (e *HTTPStatusError) Error() string {
	if e == nil {
		return "docuscan status error"
	}
	if strings.TrimSpace(e.Body) == "" {
		return fmt.Sprintf("docuscan %s status: %s", e.Operation, e.Status)
	}
	return fmt.Sprintf("docuscan %s status: %s: %s", e.Operation, e.Status, strings.TrimSpace(e.Body))
}

// mapTransportError converts low-level transport failures into the pipeline
// taxonomy. Context cancellation passes through untouched so the engine can
// tell cancellation from connectivity.
func mapTransportError(operation string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return domain.NetworkError("docuscan "+operation, err)
}

// mapStatusError converts a non-2xx backend response: transient statuses are
// retryable NETWORK failures, everything else is a non-retryable processing
// failure.
func mapStatusError(operation string, resp *http.Response) error {
	statusErr := &HTTPStatusError{
		Operation:  operation,
		StatusCode: resp.StatusCode,
		Status:     resp.Status,
		Body:       readErrorBody(resp),
	}
	if isRetryableHTTPStatus(resp.StatusCode) {
		return domain.NetworkError("docuscan "+operation, statusErr)
	}
	perr := domain.ProcessingFailedError("docuscan "+operation+" rejected", statusErr)
	perr.Retryable = false
	return perr
}

func isRetryableHTTPStatus(statusCode int) bool {
	switch statusCode {
	case http.StatusRequestTimeout,
		http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}
