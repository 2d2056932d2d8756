package validation

// responses.go provides the helpers handlers and middleware use to send HTTP
// responses, including the problem-details mapping of classified errors.

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/eu-digital-green-certificates/dgca-validation-service-sub000/internal/logger"
)

// ProblemDetails is the error response body. detail carries only the
// client-safe message; internals stay in the server log.
type ProblemDetails struct {
	Type   string `json:"type"`
	Title  string `json:"title"`
	Status int    `json:"status"`
	Detail string `json:"detail"`
}

// MapErrorToProblem converts any error to a problem-details body.
// Unclassified errors are reported as opaque internal failures.
func MapErrorToProblem(err error) ProblemDetails {
	var verr *Error
	if errors.As(err, &verr) {
		return ProblemDetails{
			Type:   "about:blank",
			Title:  string(verr.Code()),
			Status: verr.HTTPStatus(),
			Detail: verr.Message(),
		}
	}
	return ProblemDetails{
		Type:   "about:blank",
		Title:  string(ErrCodeInternal),
		Status: http.StatusInternalServerError,
		Detail: "internal server error",
	}
}

// RespondWithErrorResponse sends a problem-details response.
//
// It logs the full error server-side and sends only the sanitized detail to
// the client.
func RespondWithErrorResponse(w http.ResponseWriter, r *http.Request, err error) {
	problem := MapErrorToProblem(err)

	reqLogger := logger.ContextRequestLogger(r.Context())
	reqLogger.Warn("request failed",
		slog.String("error", err.Error()),
		slog.Int("status_code", problem.Status),
		slog.String("error_code", problem.Title))

	RespondWithJSONPayload(w, problem.Status, problem)
}

// RespondWithJSONPayload sends a JSON response with the given status code.
func RespondWithJSONPayload(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if payload != nil {
		if err := json.NewEncoder(w).Encode(payload); err != nil {
			// headers are already written; log and move on
			slog.Error("failed to encode JSON response",
				slog.String("error", err.Error()))
		}
	}
}

// RespondWithSignedContent sends a compact signed token as the raw body.
func RespondWithSignedContent(w http.ResponseWriter, statusCode int, serialized string) {
	w.Header().Set("Content-Type", "application/jwt")
	w.WriteHeader(statusCode)

	if _, err := w.Write([]byte(serialized)); err != nil {
		slog.Error("failed to write signed response",
			slog.String("error", err.Error()))
	}
}
