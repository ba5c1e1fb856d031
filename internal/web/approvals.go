package web

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"autoheal/internal/approvals"
)

// ApprovalResolver is the part of approvals.Resolver the HTTP channel uses.
type ApprovalResolver interface {
	Get(ctx context.Context, approvalID string) (approvals.View, error)
	Resolve(ctx context.Context, req approvals.ResolveRequest) (approvals.Approval, error)
}

type resolveBody struct {
	Action  string `json:"action"`
	Comment string `json:"comment"`
}

type resolveResponse struct {
	Message  string             `json:"message"`
	Approval approvals.Approval `json:"approval"`
}

func (s *Server) handleGetApproval(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(r.PathValue("id"))
	if id == "" {
		writeApprovalError(w, approvals.ErrNotFound)
		return
	}
	view, err := s.Resolver.Get(r.Context(), id)
	if err != nil {
		writeApprovalError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleResolveApproval(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(r.PathValue("id"))
	if id == "" {
		writeApprovalError(w, approvals.ErrNotFound)
		return
	}
	var body resolveBody
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody))
	if err := dec.Decode(&body); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "invalid json")
		return
	}
	decision, err := approvals.ParseDecision(body.Action)
	if err != nil {
		writeApprovalError(w, err)
		return
	}
	actor, _ := ActorFromContext(r.Context())
	a, err := s.Resolver.Resolve(r.Context(), approvals.ResolveRequest{
		ApprovalID: id,
		Decision:   decision,
		Actor:      actor.Name(),
		Comment:    body.Comment,
		Source:     approvals.SourceWeb,
	})
	if err != nil {
		writeApprovalError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resolveResponse{
		Message:  "Action " + strings.ToLower(string(a.Status)),
		Approval: a,
	})
}
