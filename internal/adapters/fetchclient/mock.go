package fetchclient

import (
	"bytes"
	"context"
	"fmt"
	"hash/fnv"
	"image"
	"image/color"
	"image/png"
	"time"

	"github.com/openmarket/imageloader/internal/domain"
)

type mockFetchClient struct {
	delay time.Duration
}

// NewMockFetchClient returns a fetcher that generates a small placeholder png for any valid locator
func NewMockFetchClient() *mockFetchClient {
	return &mockFetchClient{delay: 50 * time.Millisecond}
}

func (m *mockFetchClient) Fetch(ctx context.Context, locator string) ([]byte, error) {
	if _, err := ParseLocator(locator); err != nil {
		return nil, err
	}

	// Simulated network latency
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %w", domain.ErrNetwork, ctx.Err())
	case <-time.After(m.delay):
	}

	// Color derived from the locator so different locators give different images
	h := fnv.New32a()
	_, _ = h.Write([]byte(locator))
	sum := h.Sum32()
	fill := color.NRGBA{R: uint8(sum), G: uint8(sum >> 8), B: uint8(sum >> 16), A: 255}

	img := image.NewNRGBA(image.Rect(0, 0, 64, 64))
	for x := range 64 {
		for y := range 64 {
			img.Set(x, y, fill)
		}
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
