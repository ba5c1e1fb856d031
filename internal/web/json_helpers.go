package web

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"autoheal/internal/approvals"
)

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("write json response", "error", err)
	}
}

// WriteJSON is writeJSON for other HTTP channels.
func WriteJSON(w http.ResponseWriter, status int, data any) {
	writeJSON(w, status, data)
}

// ErrorResponse is the body of every non-2xx approval response.
type ErrorResponse struct {
	Error  string `json:"error"`
	Code   string `json:"code"`
	Status string `json:"status,omitempty"`
}

const (
	CodeNotFound          = "not_found"
	CodeExpired           = "expired"
	CodeAlreadyResolved   = "already_resolved"
	CodeInvalidAction     = "invalid_action"
	CodeInconsistentState = "inconsistent_state"
	CodeStoreUnavailable  = "store_unavailable"
	CodeUnauthorized      = "unauthorized"
	CodeBadRequest        = "bad_request"
)

// ApprovalError maps a resolver error to its HTTP status and body so that
// both channels answer a late or duplicate click the same way.
func ApprovalError(err error) (int, ErrorResponse) {
	var already *approvals.AlreadyResolvedError
	switch {
	case errors.As(err, &already):
		return http.StatusConflict, ErrorResponse{
			Error:  "Request already processed",
			Code:   CodeAlreadyResolved,
			Status: string(already.Status),
		}
	case errors.Is(err, approvals.ErrAlreadyResolved):
		return http.StatusConflict, ErrorResponse{Error: "Request already processed", Code: CodeAlreadyResolved}
	case errors.Is(err, approvals.ErrNotFound):
		return http.StatusNotFound, ErrorResponse{Error: "Approval request not found", Code: CodeNotFound}
	case errors.Is(err, approvals.ErrExpired):
		return http.StatusGone, ErrorResponse{Error: "Approval request expired", Code: CodeExpired}
	case errors.Is(err, approvals.ErrInvalidDecision):
		return http.StatusBadRequest, ErrorResponse{Error: "Invalid action", Code: CodeInvalidAction}
	case errors.Is(err, approvals.ErrInconsistentState):
		var inconsistent *approvals.InconsistentStateError
		status := ""
		if errors.As(err, &inconsistent) {
			status = string(inconsistent.Status)
		}
		return http.StatusInternalServerError, ErrorResponse{
			Error:  "Approval recorded but the workflow could not be resumed; operators have been alerted",
			Code:   CodeInconsistentState,
			Status: status,
		}
	default:
		return http.StatusInternalServerError, ErrorResponse{Error: "Approval store unavailable", Code: CodeStoreUnavailable}
	}
}

func writeApprovalError(w http.ResponseWriter, err error) {
	status, body := ApprovalError(err)
	writeJSON(w, status, body)
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, ErrorResponse{Error: msg, Code: code})
}
