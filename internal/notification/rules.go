package notification

import (
	"errors"
	"fmt"
	"strings"

	"github.com/insurai/compliance-engine/internal/compliance"
)

// Action is the follow-up a notification asks of its reader
type Action string

// Actions. The zero value means no explicit action was requested.
const (
	ActionSubmitToHR      Action = "submit-to-hr"
	ActionReviewRequired  Action = "review-required"
	ActionImmediateAction Action = "immediate-action"
	ActionInformational   Action = "informational"
)

// Icon is the dashboard icon shown next to a notification
type Icon string

// Icons
const (
	IconInfo    Icon = "info"
	IconWarning Icon = "warning"
	IconError   Icon = "error"
	IconAlert   Icon = "alert"
)

var ErrInvalidAction = errors.New("invalid action")

// ParseAction converts raw input into an Action. An empty string yields the
// zero Action, meaning the action is derived from severity and issue type.
func ParseAction(raw string) (Action, error) {
	switch a := Action(raw); a {
	case "", ActionSubmitToHR, ActionReviewRequired, ActionImmediateAction, ActionInformational:
		return a, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidAction, raw)
}

// Issue is a classified compliance finding to be turned into notifications
type Issue struct {
	Type           compliance.IssueType `json:"issue_type"`
	Severity       compliance.Severity  `json:"severity"`
	Title          string               `json:"issue_title"`
	Description    string               `json:"issue_description,omitempty"`
	Location       string               `json:"location,omitempty"`
	ActionRequired Action               `json:"action_required,omitempty"`
}

// Notification is the structured, human-readable form of an Issue
type Notification struct {
	Title   string              `json:"title"`
	Message string              `json:"message"`
	Action  string              `json:"action"`
	Urgency compliance.Severity `json:"urgency"`
	Icon    Icon                `json:"icon"`
}

// Summary aggregates a batch of notifications for the dashboard header
type Summary struct {
	Total    int    `json:"total"`
	Critical int    `json:"critical"`
	High     int    `json:"high"`
	Medium   int    `json:"medium"`
	Low      int    `json:"low"`
	Message  string `json:"message"`
}

// IssueFromRecord builds the Issue describing a stored compliance record
func IssueFromRecord(r compliance.ComplianceRecord) Issue {
	return Issue{
		Type:        r.IssueType,
		Severity:    r.Severity,
		Title:       r.IssueTitle,
		Description: r.IssueDescription,
	}
}

// Classify derives the notification for an issue. It panics if the issue's
// type, severity or explicit action is outside the known sets.
func Classify(issue Issue) Notification {
	action := issue.ActionRequired
	if action == "" {
		action = deriveAction(issue.Severity, issue.Type)
	}

	return Notification{
		Title:   fmt.Sprintf("%s %s Detected", SeverityLabel(issue.Severity), IssueTypeLabel(issue.Type)),
		Message: composeMessage(issue),
		Action:  ActionMessage(action),
		Urgency: issue.Severity,
		Icon:    IconFor(issue.Severity),
	}
}

// IconFor maps a severity to its dashboard icon
func IconFor(severity compliance.Severity) Icon {
	switch severity {
	case compliance.SeverityCritical:
		return IconError
	case compliance.SeverityHigh:
		return IconAlert
	case compliance.SeverityMedium:
		return IconWarning
	case compliance.SeverityLow:
		return IconInfo
	}
	panic(fmt.Sprintf("notification: unknown severity %q", severity))
}

// SeverityLabel is the display label for a severity
func SeverityLabel(severity compliance.Severity) string {
	switch severity {
	case compliance.SeverityCritical:
		return "Critical"
	case compliance.SeverityHigh:
		return "High Priority"
	case compliance.SeverityMedium:
		return "Medium Priority"
	case compliance.SeverityLow:
		return "Low Priority"
	}
	panic(fmt.Sprintf("notification: unknown severity %q", severity))
}

// IssueTypeLabel is the display label for an issue type
func IssueTypeLabel(issueType compliance.IssueType) string {
	switch issueType {
	case compliance.IssueTypeMissingClause:
		return "Missing Clause"
	case compliance.IssueTypeHighRisk:
		return "High-Risk Condition"
	case compliance.IssueTypeGeneralConcern:
		return "Policy Concern"
	case compliance.IssueTypeRecommendation:
		return "Improvement Opportunity"
	}
	panic(fmt.Sprintf("notification: unknown issue type %q", issueType))
}

// ActionMessage is the sentence shown for an action
func ActionMessage(action Action) string {
	switch action {
	case ActionImmediateAction:
		return "Immediate action required. Submit this issue to HR for urgent review and resolution."
	case ActionSubmitToHR:
		return "Submit this issue to HR for review and necessary policy updates."
	case ActionReviewRequired:
		return "Review this item and consult with your HR team if modifications are needed."
	case ActionInformational:
		return "Review this suggestion at your convenience to improve policy quality."
	}
	panic(fmt.Sprintf("notification: unknown action %q", action))
}

func deriveAction(severity compliance.Severity, issueType compliance.IssueType) Action {
	switch {
	case severity == compliance.SeverityCritical:
		return ActionImmediateAction
	case severity == compliance.SeverityHigh && issueType != compliance.IssueTypeRecommendation:
		return ActionSubmitToHR
	case severity == compliance.SeverityMedium:
		return ActionReviewRequired
	default:
		return ActionInformational
	}
}

func composeMessage(issue Issue) string {
	var b strings.Builder

	switch issue.Type {
	case compliance.IssueTypeMissingClause:
		fmt.Fprintf(&b, "Your policy document is missing \"%s\". ", issue.Title)
		writeDescription(&b, issue.Description)
		b.WriteString("This gap may expose your organization to compliance risks and should be addressed promptly.")
	case compliance.IssueTypeHighRisk:
		fmt.Fprintf(&b, "A potentially risky condition has been identified: \"%s\". ", issue.Title)
		writeDescription(&b, issue.Description)
		if issue.Location != "" {
			fmt.Fprintf(&b, "Found in %s. ", issue.Location)
		}
		b.WriteString("Review and mitigation are recommended to protect your organization.")
	case compliance.IssueTypeGeneralConcern:
		fmt.Fprintf(&b, "%s. ", issue.Title)
		writeDescription(&b, issue.Description)
		b.WriteString("Please review this concern to ensure policy compliance.")
	case compliance.IssueTypeRecommendation:
		fmt.Fprintf(&b, "Recommendation: %s. ", issue.Title)
		writeDescription(&b, issue.Description)
		b.WriteString("Consider implementing this improvement to strengthen your policy framework.")
	default:
		panic(fmt.Sprintf("notification: unknown issue type %q", issue.Type))
	}

	return b.String()
}

func writeDescription(b *strings.Builder, description string) {
	if description != "" {
		b.WriteString(description)
		b.WriteString(" ")
	}
}
