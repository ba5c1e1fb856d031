package chatops

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"autoheal/internal/approvals"
	"autoheal/internal/web"
)

const (
	ActionApprove = "approve_action"
	ActionReject  = "reject_action"

	// DefaultUser is recorded when the callback carries no username.
	DefaultUser = "slack_user"

	maxSkew = 5 * time.Minute
	maxBody = 1 << 20
)

var ErrInvalidSignature = errors.New("invalid slack signature")

type ApprovalResolver interface {
	Resolve(ctx context.Context, req approvals.ResolveRequest) (approvals.Approval, error)
}

// InteractionHandler serves the Slack block_actions callback for the
// Approve and Reject buttons.
type InteractionHandler struct {
	SigningSecret string
	Resolver      ApprovalResolver
	Clock         func() time.Time
	Logger        *slog.Logger
}

func NewInteractionHandler(secret string, resolver ApprovalResolver, logger *slog.Logger) *InteractionHandler {
	return &InteractionHandler{SigningSecret: secret, Resolver: resolver, Clock: time.Now, Logger: logger}
}

type interactionPayload struct {
	Type    string        `json:"type"`
	User    payloadUser   `json:"user"`
	Actions []blockAction `json:"actions"`
}

type payloadUser struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}

type blockAction struct {
	ActionID string `json:"action_id"`
	Value    string `json:"value"`
}

type interactionResponse struct {
	Text            string `json:"text"`
	ReplaceOriginal bool   `json:"replace_original"`
}

func (h *InteractionHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBody))
	if err != nil {
		web.WriteJSON(w, http.StatusBadRequest, web.ErrorResponse{Error: "read error", Code: web.CodeBadRequest})
		return
	}
	if err := h.VerifySignature(r.Header, body); err != nil {
		h.logger().Warn("slack signature rejected", "error", err)
		web.WriteJSON(w, http.StatusUnauthorized, web.ErrorResponse{Error: "Invalid signature", Code: web.CodeUnauthorized})
		return
	}
	values, err := url.ParseQuery(string(body))
	if err != nil || values.Get("payload") == "" {
		web.WriteJSON(w, http.StatusBadRequest, web.ErrorResponse{Error: "Missing payload", Code: web.CodeBadRequest})
		return
	}
	var payload interactionPayload
	if err := json.Unmarshal([]byte(values.Get("payload")), &payload); err != nil {
		web.WriteJSON(w, http.StatusBadRequest, web.ErrorResponse{Error: "Invalid payload", Code: web.CodeBadRequest})
		return
	}
	if len(payload.Actions) == 0 {
		w.WriteHeader(http.StatusOK)
		return
	}
	action := payload.Actions[0]
	var decision approvals.Decision
	switch action.ActionID {
	case ActionApprove:
		decision = approvals.DecisionApprove
	case ActionReject:
		decision = approvals.DecisionReject
	default:
		status, resp := web.ApprovalError(fmt.Errorf("%w: %q", approvals.ErrInvalidDecision, action.ActionID))
		web.WriteJSON(w, status, resp)
		return
	}
	approvalID := strings.TrimSpace(action.Value)
	if approvalID == "" {
		status, resp := web.ApprovalError(approvals.ErrNotFound)
		web.WriteJSON(w, status, resp)
		return
	}
	user := strings.TrimSpace(payload.User.Username)
	if user == "" {
		user = DefaultUser
	}
	if h.Resolver == nil {
		status, resp := web.ApprovalError(approvals.ErrStoreUnavailable)
		web.WriteJSON(w, status, resp)
		return
	}
	a, err := h.Resolver.Resolve(r.Context(), approvals.ResolveRequest{
		ApprovalID: approvalID,
		Decision:   decision,
		Actor:      user,
		Source:     approvals.SourceChat,
	})
	if err != nil {
		status, resp := web.ApprovalError(err)
		web.WriteJSON(w, status, resp)
		return
	}
	web.WriteJSON(w, http.StatusOK, interactionResponse{
		Text: "Action " + strings.ToLower(string(a.Status)) + ".",
	})
}

// VerifySignature checks the v0 HMAC Slack signs every request with. An
// empty signing secret rejects everything.
func (h *InteractionHandler) VerifySignature(header http.Header, body []byte) error {
	if h.SigningSecret == "" {
		return fmt.Errorf("%w: signing secret not configured", ErrInvalidSignature)
	}
	ts := header.Get("X-Slack-Request-Timestamp")
	sig := header.Get("X-Slack-Signature")
	if ts == "" || sig == "" {
		return fmt.Errorf("%w: missing headers", ErrInvalidSignature)
	}
	parsed, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return fmt.Errorf("%w: bad timestamp", ErrInvalidSignature)
	}
	skew := h.now().Sub(time.Unix(parsed, 0))
	if skew > maxSkew || skew < -maxSkew {
		return fmt.Errorf("%w: stale timestamp", ErrInvalidSignature)
	}
	if !hmac.Equal([]byte(Sign(h.SigningSecret, ts, body)), []byte(sig)) {
		return ErrInvalidSignature
	}
	return nil
}

// Sign returns the X-Slack-Signature value for body sent at ts.
func Sign(secret, ts string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write([]byte("v0:" + ts + ":"))
	_, _ = mac.Write(body)
	return "v0=" + hex.EncodeToString(mac.Sum(nil))
}

func (h *InteractionHandler) now() time.Time {
	if h.Clock != nil {
		return h.Clock()
	}
	return time.Now()
}

func (h *InteractionHandler) logger() *slog.Logger {
	if h.Logger != nil {
		return h.Logger
	}
	return slog.Default()
}
