package shared

import (
	"encoding/json"
	"log/slog"
	"net/http"

	dErrors "assent/pkg/domain-errors"
)

// Validatable is implemented by request types that support validation.
type Validatable interface {
	Validate() error
}

// Normalizable is implemented by request types that support normalization.
type Normalizable interface {
	Normalize()
}

// DecodeAndPrepare decodes a JSON request body into the target type, then
// normalizes and validates it. On failure it writes the error response and
// returns nil, false.
func DecodeAndPrepare[T any](w http.ResponseWriter, r *http.Request, logger *slog.Logger) (*T, bool) {
	var req T
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.WarnContext(r.Context(), "failed to decode request body",
			"error", err,
			"path", r.URL.Path,
		)
		WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return nil, false
	}

	if n, ok := any(&req).(Normalizable); ok {
		n.Normalize()
	}
	if v, ok := any(&req).(Validatable); ok {
		if err := v.Validate(); err != nil {
			logger.WarnContext(r.Context(), "invalid request",
				"error", err,
				"path", r.URL.Path,
			)
			WriteError(w, err)
			return nil, false
		}
	}
	return &req, true
}
