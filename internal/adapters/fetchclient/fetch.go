package fetchclient

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"github.com/openmarket/imageloader/internal/app"
	"github.com/openmarket/imageloader/internal/config"
	"github.com/openmarket/imageloader/internal/constants"
	"github.com/openmarket/imageloader/internal/domain"
	"github.com/openmarket/imageloader/internal/logging"
	"github.com/openmarket/imageloader/internal/reporting"
)

// Upstream responses larger than this are rejected
const MaxBodyBytes = 20 * 1024 * 1024

var errBodyTooLarge = errors.New("response body too large")

type HttpClient interface {
	Do(req *http.Request) (*http.Response, error)
}

type FetchClient struct {
	httpClient   HttpClient
	maxBodyBytes int64
}

func NewFetchClient(httpClient HttpClient) *FetchClient {
	return &FetchClient{
		httpClient:   httpClient,
		maxBodyBytes: MaxBodyBytes,
	}
}

func NewFetchClientOrMock(config config.Config, httpClient HttpClient) (app.Fetcher, error) {
	if len(config.AllowedUpstreamHosts()) > 0 {
		return NewFetchClient(httpClient), nil
	}
	if config.IsDevelopment() {
		return NewMockFetchClient(), nil
	}
	return nil, errors.New("Missing allowed upstream hosts in non-development environment")
}

func ParseLocator(locator string) (*url.URL, error) {
	parsed, err := url.Parse(locator)
	if err != nil {
		return nil, fmt.Errorf("%w: could not parse locator: %w", domain.ErrInvalidRequest, err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return nil, fmt.Errorf("%w: unsupported scheme '%s'", domain.ErrInvalidRequest, parsed.Scheme)
	}
	if parsed.Host == "" {
		return nil, fmt.Errorf("%w: missing host", domain.ErrInvalidRequest)
	}
	return parsed, nil
}

func (c *FetchClient) Fetch(ctx context.Context, locator string) ([]byte, error) {
	logger := logging.FromContext(ctx)

	parsed, err := ParseLocator(locator)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, parsed.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create request: %w", domain.ErrInvalidRequest, err)
	}

	req.Header.Set("User-Agent", constants.USER_AGENT)
	req.Header.Set("Accept", "image/*")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		err := fmt.Errorf("%w: failed to send request: %w", domain.ErrNetwork, err)
		reporting.Report(ctx, err, map[string]string{"locator": locator})
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		// Drain so the connection can be reused
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64*1024))
		logger.InfoContext(ctx, "upstream returned bad status", "locator", locator, "status", resp.StatusCode)
		return nil, fmt.Errorf("%w: upstream returned status code %d", domain.ErrBadStatus, resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBodyBytes+1))
	if err != nil {
		err := fmt.Errorf("%w: failed to read response body: %w", domain.ErrNetwork, err)
		reporting.Report(ctx, err, map[string]string{"locator": locator})
		return nil, err
	}

	if int64(len(data)) > c.maxBodyBytes {
		err := fmt.Errorf("%w: %w (limit %d bytes)", domain.ErrNetwork, errBodyTooLarge, c.maxBodyBytes)
		reporting.Report(ctx, err, map[string]string{
			"locator":       locator,
			"contentLength": strconv.FormatInt(resp.ContentLength, 10),
		})
		return nil, err
	}

	if len(data) == 0 {
		return nil, fmt.Errorf("%w: upstream returned status code %d with no body", domain.ErrEmptyData, resp.StatusCode)
	}

	logger.InfoContext(ctx, "upstream request completed", "locator", locator, "status", resp.StatusCode, "contentLength", len(data))

	return data, nil
}
