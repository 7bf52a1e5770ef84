package notification

import (
	"errors"
	"fmt"
	"strings"

	"github.com/insurai/compliance-engine/internal/compliance"
)

var ErrEmptyTitle = errors.New("issue title is required")

// Validate checks an issue received from outside the process before it is
// handed to Classify.
func (i Issue) Validate() error {
	if !i.Type.Valid() {
		return fmt.Errorf("%w: %q", compliance.ErrInvalidIssueType, i.Type)
	}
	if !i.Severity.Valid() {
		return fmt.Errorf("%w: %q", compliance.ErrInvalidSeverity, i.Severity)
	}
	if strings.TrimSpace(i.Title) == "" {
		return ErrEmptyTitle
	}
	if _, err := ParseAction(string(i.ActionRequired)); err != nil {
		return err
	}
	return nil
}

// Email renders the notification for an issue as a plain-text email body
func Email(issue Issue, recipientName string) string {
	n := Classify(issue)

	location := ""
	if issue.Location != "" {
		location = "- Location: " + issue.Location
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Dear %s,\n\n", recipientName)
	fmt.Fprintf(&b, "%s\n\n", n.Title)
	fmt.Fprintf(&b, "%s\n\n", n.Message)
	fmt.Fprintf(&b, "%s\n\n", n.Action)
	b.WriteString("Issue Details:\n")
	fmt.Fprintf(&b, "- Type: %s\n", IssueTypeLabel(issue.Type))
	fmt.Fprintf(&b, "- Severity: %s\n", SeverityLabel(issue.Severity))
	fmt.Fprintf(&b, "- Item: %s\n", issue.Title)
	fmt.Fprintf(&b, "%s\n\n", location)
	b.WriteString("Please log in to your InsurAI dashboard to review this compliance alert and take appropriate action.\n\n")
	b.WriteString("Best regards,\n")
	b.WriteString("InsurAI Compliance System\n")
	b.WriteString("Corporate Policy Automation Team")

	return strings.TrimSpace(b.String())
}

// Toast renders the short in-app message for an issue
func Toast(issue Issue) string {
	switch issue.Severity {
	case compliance.SeverityCritical:
		return fmt.Sprintf("Critical issue detected: %s. Immediate HR submission recommended.", issue.Title)
	case compliance.SeverityHigh:
		return fmt.Sprintf("High-priority issue found: %s. Please submit to HR.", issue.Title)
	case compliance.SeverityMedium:
		return fmt.Sprintf("%s requires review. Consider submitting to HR.", issue.Title)
	case compliance.SeverityLow:
		return fmt.Sprintf("Suggestion: %s. Review when convenient.", issue.Title)
	}
	panic(fmt.Sprintf("notification: unknown severity %q", issue.Severity))
}

// Summarize counts notifications per urgency and phrases a dashboard headline
func Summarize(notifications []Notification) Summary {
	s := Summary{Total: len(notifications)}
	for _, n := range notifications {
		switch n.Urgency {
		case compliance.SeverityCritical:
			s.Critical++
		case compliance.SeverityHigh:
			s.High++
		case compliance.SeverityMedium:
			s.Medium++
		case compliance.SeverityLow:
			s.Low++
		}
	}

	var b strings.Builder
	if s.Critical > 0 {
		fmt.Fprintf(&b, "%d critical issue%s require immediate attention. ", s.Critical, plural(s.Critical))
	}
	if s.High > 0 {
		fmt.Fprintf(&b, "%d high-priority item%s should be submitted to HR. ", s.High, plural(s.High))
	}
	if s.Medium > 0 {
		verb := "need"
		if s.Medium == 1 {
			verb = "needs"
		}
		fmt.Fprintf(&b, "%d medium-priority item%s %s review. ", s.Medium, plural(s.Medium), verb)
	}

	message := b.String()
	switch {
	case s.Total == 0:
		message = "No compliance issues detected. Your policy is in good standing."
	case message == "":
		message = fmt.Sprintf("%d informational item%s available for review.", s.Total, plural(s.Total))
	}
	s.Message = strings.TrimSpace(message)

	return s
}

func plural(n int) string {
	if n > 1 {
		return "s"
	}
	return ""
}

// Digest renders the periodic HR email listing records still awaiting review
func Digest(recipientName string, summary Summary, pending []compliance.ComplianceRecord) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Dear %s,\n\n", recipientName)
	fmt.Fprintf(&b, "%s\n\n", summary.Message)
	b.WriteString("Pending Records:\n")
	for _, r := range pending {
		fmt.Fprintf(&b, "- %s [%s] %s (%s, submitted %s)\n",
			r.ID, SeverityLabel(r.Severity), r.IssueTitle, r.EmployeeName, r.SubmittedDate)
	}
	b.WriteString("\nPlease log in to your InsurAI dashboard to review these records.\n\n")
	b.WriteString("Best regards,\n")
	b.WriteString("InsurAI Compliance System")
	return b.String()
}
