package chatops

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"autoheal/internal/analysis"
	"autoheal/internal/approvals"
	"autoheal/internal/risk"
)

// Notification states posted to the incident channel.
const (
	StateHealed           = "HEALED"
	StateRequiresApproval = "REQUIRES_APPROVAL"
	StateFailed           = "FAILED"
)

type Notification struct {
	IncidentID string          `json:"incident_id"`
	State      string          `json:"status"`
	Message    string          `json:"message,omitempty"`
	Analysis   json.RawMessage `json:"analysis,omitempty"`
}

// SlackNotifier posts to an incoming webhook. With no WebhookURL every
// notification is dropped.
type SlackNotifier struct {
	WebhookURL      string
	ApprovalBaseURL string
	Client          *http.Client
	Logger          *slog.Logger
}

func NewSlackNotifier(webhookURL, approvalBaseURL string, logger *slog.Logger) *SlackNotifier {
	return &SlackNotifier{
		WebhookURL:      webhookURL,
		ApprovalBaseURL: approvalBaseURL,
		Client:          &http.Client{Timeout: 5 * time.Second},
		Logger:          logger,
	}
}

type block map[string]any

func plainText(text string) block {
	return block{"type": "plain_text", "text": text, "emoji": true}
}

func mrkdwn(text string) block {
	return block{"type": "mrkdwn", "text": text}
}

func header(text string) block {
	return block{"type": "header", "text": plainText(text)}
}

func button(text, style, actionID, value string) block {
	return block{
		"type":      "button",
		"text":      plainText(text),
		"style":     style,
		"action_id": actionID,
		"value":     value,
	}
}

func orNA(s string) string {
	if strings.TrimSpace(s) == "" {
		return "N/A"
	}
	return s
}

// NotifyApprovalRequest posts the Approve/Reject buttons for a PENDING
// approval. Both buttons carry the approval id as their value.
func (n *SlackNotifier) NotifyApprovalRequest(ctx context.Context, a approvals.Approval) error {
	var rca analysis.RootCause
	_ = json.Unmarshal(a.Analysis, &rca)
	var assessment risk.Assessment
	_ = json.Unmarshal(a.RiskAssessment, &assessment)
	level := string(assessment.RiskLevel)
	if level == "" {
		level = string(risk.LevelHigh)
	}

	text := fmt.Sprintf("*Recommended Action:*\n%s\n\n*Detailed Problem:*\n%s\n\n*Why take this action?*\n%s\n\n*Risk Level:* %s\n*Cost Estimate:* $%.2f",
		orNA(rca.RecommendedAction), orNA(rca.RootCause), orNA(rca.Reasoning), level, assessment.EstimatedCost)
	if link := n.approvalLink(a.ID); link != "" {
		text += fmt.Sprintf("\n\n<%s|Review in browser>", link)
	}
	blocks := []block{
		header("High Risk Incident: " + a.IncidentID),
		{"type": "section", "text": mrkdwn(text)},
		{"type": "actions", "elements": []block{
			button("Approve", "primary", ActionApprove, a.ID),
			button("Reject", "danger", ActionReject, a.ID),
		}},
	}
	return n.post(ctx, map[string]any{"blocks": blocks})
}

// AlertInconsistentApproval tells operators that a decision was recorded
// but the suspended workflow step was not released.
func (n *SlackNotifier) AlertInconsistentApproval(ctx context.Context, a approvals.Approval, cause error) error {
	text := fmt.Sprintf("*Approval:* %s\n*Incident:* %s\n*Recorded status:* %s\n*Error:* %v\nThe workflow step must be completed manually.",
		a.ID, a.IncidentID, a.Status, cause)
	blocks := []block{
		header("Approval recorded, workflow not resumed"),
		{"type": "section", "text": mrkdwn(text)},
	}
	return n.post(ctx, map[string]any{"blocks": blocks})
}

var notificationStyle = map[string]struct{ color, title string }{
	StateHealed:           {"#36a64f", "Incident Resolved"},
	StateRequiresApproval: {"#ffcc00", "Incident Requires Approval"},
	StateFailed:           {"#ff0000", "Healing Failed"},
}

func (n *SlackNotifier) NotifyIncident(ctx context.Context, note Notification) error {
	style, ok := notificationStyle[note.State]
	if !ok {
		style = notificationStyle[StateFailed]
	}
	var rca analysis.RootCause
	_ = json.Unmarshal(note.Analysis, &rca)

	blocks := []block{
		header(style.title + ": " + note.IncidentID),
		{"type": "section", "fields": []block{
			mrkdwn("*Status:*\n" + note.State),
			mrkdwn("*Root Cause:*\n" + orNA(rca.RootCause)),
		}},
	}
	switch note.State {
	case StateHealed:
		blocks = append(blocks, block{"type": "section", "text": mrkdwn("*Action Taken:*\n" + orNA(note.Message))})
	case StateRequiresApproval:
		blocks = append(blocks, block{"type": "section", "text": mrkdwn(fmt.Sprintf("*Recommended Action:*\n%s (Confidence: %.2f)", orNA(rca.RecommendedAction), rca.Confidence))})
	case StateFailed:
		blocks = append(blocks, block{"type": "section", "text": mrkdwn("*Details:*\n" + orNA(note.Message))})
	}
	return n.post(ctx, map[string]any{
		"blocks":      blocks,
		"attachments": []block{{"color": style.color, "blocks": []block{}}},
	})
}

func (n *SlackNotifier) approvalLink(approvalID string) string {
	if n.ApprovalBaseURL == "" || approvalID == "" {
		return ""
	}
	return strings.TrimSuffix(n.ApprovalBaseURL, "/") + "/approvals/" + approvalID
}

func (n *SlackNotifier) post(ctx context.Context, msg any) error {
	if n.WebhookURL == "" {
		n.logger().Debug("slack webhook not configured, notification dropped")
		return nil
	}
	if n.Client == nil {
		n.Client = &http.Client{Timeout: 5 * time.Second}
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.WebhookURL, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := n.Client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("slack status %d: %s", resp.StatusCode, strings.TrimSpace(string(payload)))
	}
	return nil
}

func (n *SlackNotifier) logger() *slog.Logger {
	if n.Logger != nil {
		return n.Logger
	}
	return slog.Default()
}
