package compliance

import (
	"errors"
	"fmt"
)

// IssueType classifies a compliance finding
type IssueType string

// Issue types
const (
	IssueTypeMissingClause  IssueType = "missing-clause"
	IssueTypeHighRisk       IssueType = "high-risk"
	IssueTypeGeneralConcern IssueType = "general-concern"
	IssueTypeRecommendation IssueType = "recommendation"
)

// Severity is the severity of a compliance finding
type Severity string

// Severities
const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Status is the review status of a compliance record
type Status string

// Record statuses
const (
	StatusPending  Status = "pending"
	StatusInReview Status = "in-review"
	StatusResolved Status = "resolved"
	StatusRejected Status = "rejected"
)

var (
	ErrInvalidIssueType = errors.New("invalid issue type")
	ErrInvalidSeverity  = errors.New("invalid severity")
	ErrInvalidStatus    = errors.New("invalid status")
)

// IssueTypes lists every issue type in display order
var IssueTypes = []IssueType{
	IssueTypeMissingClause,
	IssueTypeHighRisk,
	IssueTypeGeneralConcern,
	IssueTypeRecommendation,
}

// Severities lists every severity from most to least urgent
var Severities = []Severity{
	SeverityCritical,
	SeverityHigh,
	SeverityMedium,
	SeverityLow,
}

// Statuses lists every record status
var Statuses = []Status{
	StatusPending,
	StatusInReview,
	StatusResolved,
	StatusRejected,
}

// Valid reports whether t is one of the known issue types
func (t IssueType) Valid() bool {
	switch t {
	case IssueTypeMissingClause, IssueTypeHighRisk, IssueTypeGeneralConcern, IssueTypeRecommendation:
		return true
	}
	return false
}

// Valid reports whether s is one of the known severities
func (s Severity) Valid() bool {
	switch s {
	case SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical:
		return true
	}
	return false
}

// Valid reports whether s is one of the known statuses
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusInReview, StatusResolved, StatusRejected:
		return true
	}
	return false
}

// ParseIssueType converts raw input into an IssueType
func ParseIssueType(raw string) (IssueType, error) {
	t := IssueType(raw)
	if !t.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidIssueType, raw)
	}
	return t, nil
}

// ParseSeverity converts raw input into a Severity
func ParseSeverity(raw string) (Severity, error) {
	s := Severity(raw)
	if !s.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidSeverity, raw)
	}
	return s, nil
}

// ParseStatus converts raw input into a Status
func ParseStatus(raw string) (Status, error) {
	s := Status(raw)
	if !s.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidStatus, raw)
	}
	return s, nil
}

// ComplianceRecord is an issue submitted by an employee for HR review
type ComplianceRecord struct {
	ID               string    `json:"id" yaml:"id"`
	EmployeeName     string    `json:"employee_name" yaml:"employee_name"`
	EmployeeEmail    string    `json:"employee_email" yaml:"employee_email"`
	PolicyName       string    `json:"policy_name" yaml:"policy_name"`
	IssueType        IssueType `json:"issue_type" yaml:"issue_type"`
	IssueTitle       string    `json:"issue_title" yaml:"issue_title"`
	IssueDescription string    `json:"issue_description" yaml:"issue_description"`
	Severity         Severity  `json:"severity" yaml:"severity"`
	SubmittedDate    string    `json:"submitted_date" yaml:"submitted_date"`
	Status           Status    `json:"status" yaml:"status"`
	AssignedTo       string    `json:"assigned_to,omitempty" yaml:"assigned_to,omitempty"`
	Notes            string    `json:"notes,omitempty" yaml:"notes,omitempty"`
	ComplianceScore  int       `json:"compliance_score" yaml:"compliance_score"`
	DocumentName     string    `json:"document_name,omitempty" yaml:"document_name,omitempty"`
}

// NewRecord carries the caller-supplied fields of a submission.
// ID, submission date and status are assigned by the store.
type NewRecord struct {
	EmployeeName     string    `json:"employee_name" validate:"required"`
	EmployeeEmail    string    `json:"employee_email" validate:"required,email"`
	PolicyName       string    `json:"policy_name" validate:"required"`
	IssueType        IssueType `json:"issue_type" validate:"required,oneof=missing-clause high-risk general-concern recommendation"`
	IssueTitle       string    `json:"issue_title" validate:"required"`
	IssueDescription string    `json:"issue_description"`
	Severity         Severity  `json:"severity" validate:"required,oneof=low medium high critical"`
	ComplianceScore  int       `json:"compliance_score" validate:"min=0,max=100"`
	DocumentName     string    `json:"document_name"`
}

// Statistics aggregates record counts for the HR dashboard.
// ActionRequired is Pending + Critical; a pending critical record counts twice.
type Statistics struct {
	Total          int `json:"total"`
	Pending        int `json:"pending"`
	InReview       int `json:"in_review"`
	Resolved       int `json:"resolved"`
	Critical       int `json:"critical"`
	High           int `json:"high"`
	ActionRequired int `json:"action_required"`
}

// RecordFilter narrows a record listing. Zero values match everything.
type RecordFilter struct {
	Status Status
	Query  string
}
