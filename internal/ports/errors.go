package ports

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/openmarket/imageloader/internal/domain"
	"github.com/openmarket/imageloader/internal/logging"
	"github.com/openmarket/imageloader/internal/reporting"
)

type errorResponse struct {
	Success bool   `json:"success"`
	Cause   string `json:"cause"`
}

// statusForError maps a load error to the response status and a cause safe to show the client
func statusForError(err error) (int, string) {
	switch {
	case errors.Is(err, domain.ErrInvalidRequest):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, domain.ErrBadStatus):
		return http.StatusBadGateway, "upstream returned an error"
	case errors.Is(err, domain.ErrEmptyData):
		return http.StatusBadGateway, "upstream returned no data"
	case errors.Is(err, domain.ErrDecode):
		return http.StatusBadGateway, "upstream returned an invalid image"
	case errors.Is(err, domain.ErrNetwork):
		return http.StatusGatewayTimeout, "upstream unavailable"
	case errors.Is(err, domain.ErrRateLimited):
		return http.StatusServiceUnavailable, "upstream busy"
	default:
		return http.StatusInternalServerError, "internal server error"
	}
}

func writeErrorResponse(ctx context.Context, w http.ResponseWriter, statusCode int, cause string) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")

	data, err := json.Marshal(errorResponse{Success: false, Cause: cause})
	if err != nil {
		reporting.Report(ctx, fmt.Errorf("failed to marshal error response: %w", err))
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"success":false,"cause":"internal server error"}`))
		return
	}

	logging.FromContext(ctx).InfoContext(ctx, "Returning error response", "statusCode", statusCode, "cause", cause)

	w.WriteHeader(statusCode)
	w.Write(data)
}

func writeLoadErrorResponse(ctx context.Context, w http.ResponseWriter, err error) {
	statusCode, cause := statusForError(err)
	if statusCode == http.StatusServiceUnavailable {
		w.Header().Set("Retry-After", retryAfterSeconds)
	}
	if statusCode == http.StatusInternalServerError {
		reporting.Report(ctx, fmt.Errorf("unexpected error loading image: %w", err))
	}
	writeErrorResponse(ctx, w, statusCode, cause)
}
