package http

import (
	"encoding/json"
	"errors"
	"net/http"

	dErrors "villageops/pkg/domain-errors"
)

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Hint    string `json:"hint,omitempty"`
}

type errorResponse struct {
	Error errorBody `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if body != nil {
		_ = json.NewEncoder(w).Encode(body)
	}
}

// writeError maps domain error codes onto HTTP statuses. The wrapped cause
// never leaves the server; callers see the code, the user-safe message, and
// the remediation hint when one exists.
func writeError(w http.ResponseWriter, err error) {
	code := dErrors.CodeOf(err)

	message := err.Error()
	var de *dErrors.Error
	if errors.As(err, &de) {
		message = de.Message
	}

	writeJSON(w, statusFor(code), errorResponse{Error: errorBody{
		Code:    string(code),
		Message: message,
		Hint:    dErrors.HintOf(err),
	}})
}

func statusFor(code dErrors.Code) int {
	switch code {
	case dErrors.CodeValidation, dErrors.CodeBadRequest, dErrors.CodeInvariantViolation:
		return http.StatusBadRequest
	case dErrors.CodeUnauthorized:
		return http.StatusUnauthorized
	case dErrors.CodeForbidden:
		return http.StatusForbidden
	case dErrors.CodeNotFound:
		return http.StatusNotFound
	case dErrors.CodeInvalidTransition, dErrors.CodeConflict:
		return http.StatusConflict
	case dErrors.CodeRemoteFailed:
		return http.StatusBadGateway
	case dErrors.CodeTimeout:
		return http.StatusGatewayTimeout
	case dErrors.CodeAuditUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
