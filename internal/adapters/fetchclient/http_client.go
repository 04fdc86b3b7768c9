package fetchclient

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// NewHTTPClient builds the client used to talk to upstream image hosts
//
// retryMax is the number of retries after the first attempt. Once retries are
// exhausted the last response is returned as-is so status codes are preserved.
func NewHTTPClient(timeout time.Duration, retryMax int, logger *slog.Logger) *http.Client {
	baseClient := &http.Client{
		Timeout:   timeout,
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	}

	retryClient := &retryablehttp.Client{
		HTTPClient:   baseClient,
		Logger:       logger,
		RetryWaitMin: 100 * time.Millisecond,
		RetryWaitMax: 2 * time.Second,
		RetryMax:     retryMax,
		CheckRetry:   retryablehttp.DefaultRetryPolicy,
		Backoff:      retryablehttp.DefaultBackoff,
		ErrorHandler: retryablehttp.PassthroughErrorHandler,
	}

	return retryClient.StandardClient()
}
