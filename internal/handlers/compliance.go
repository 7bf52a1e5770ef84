package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/insurai/compliance-engine/internal/audit"
	"github.com/insurai/compliance-engine/internal/auth"
	"github.com/insurai/compliance-engine/internal/compliance"
	"github.com/insurai/compliance-engine/internal/metrics"
	"github.com/insurai/compliance-engine/internal/notification"
	"github.com/insurai/compliance-engine/internal/policy"
	"github.com/insurai/compliance-engine/internal/realtime"
	"github.com/insurai/compliance-engine/internal/reporting"
	"github.com/insurai/compliance-engine/internal/scheduler"
)

// Dependencies wires the handler to the service components.
// Hub, Scheduler and Metrics are optional.
type Dependencies struct {
	Records       *compliance.RecordStore
	Policies      *policy.Store
	Dispatcher    *notification.Dispatcher
	Hub           *realtime.Hub
	Scheduler     *scheduler.Scheduler
	Reports       *reporting.Engine
	Audit         *audit.Logger
	Auth          *auth.Service
	Metrics       *metrics.Collector
	Logger        *zap.Logger
	SendOnSubmit  bool
	DefaultFormat reporting.Format
}

// ComplianceHandler handles compliance-related HTTP requests
type ComplianceHandler struct {
	Dependencies
	started time.Time
}

// NewComplianceHandler creates a new compliance handler
func NewComplianceHandler(deps Dependencies) *ComplianceHandler {
	if deps.DefaultFormat == "" {
		deps.DefaultFormat = reporting.FormatXLSX
	}
	return &ComplianceHandler{Dependencies: deps, started: time.Now()}
}

// RegisterRoutes registers all compliance-related routes
func (h *ComplianceHandler) RegisterRoutes(router *gin.Engine) {
	api := router.Group("/api/v1")

	// Public endpoints
	api.GET("/health", h.HealthCheck)
	api.POST("/auth/login", h.Login)

	secured := api.Group("", auth.RequireAuth(h.Auth))
	hrOnly := auth.RequireRole(auth.RoleHR)

	// Record endpoints
	secured.GET("/records", h.ListRecords)
	secured.POST("/records", h.SubmitRecord)
	secured.GET("/records/:id", h.GetRecord)
	secured.GET("/records/:id/notification", h.GetRecordNotification)
	secured.PUT("/records/:id/status", hrOnly, h.UpdateRecordStatus)
	secured.GET("/statistics", hrOnly, h.GetStatistics)

	// Notification endpoints
	secured.POST("/notifications/preview", h.PreviewNotification)
	secured.POST("/notifications/summary", h.SummarizeNotifications)

	// Policy endpoints
	secured.GET("/policies", h.ListPolicies)
	secured.GET("/policies/pending", h.GetPendingPolicies)
	secured.GET("/policies/:id", h.GetPolicy)

	// Report and audit endpoints
	secured.GET("/reports/export", hrOnly, h.ExportReport)
	secured.GET("/audit/logs", hrOnly, h.GetAuditLogs)
	secured.GET("/audit/verify", hrOnly, h.VerifyAuditTrail)

	// Scheduled task endpoints
	if h.Scheduler != nil {
		secured.GET("/scheduler/tasks", hrOnly, h.ListTasks)
		secured.POST("/scheduler/tasks/:name/run", hrOnly, h.RunTask)
	}

	// Live dashboard feed
	if h.Hub != nil {
		secured.GET("/ws", h.Hub.HandleWebSocket)
	}
}

// HealthCheck reports service liveness
func (h *ComplianceHandler) HealthCheck(c *gin.Context) {
	stats := h.Records.Statistics()
	body := gin.H{
		"status":               "healthy",
		"time":                 time.Now().UTC(),
		"uptime":               time.Since(h.started).String(),
		"records":              stats.Total,
		"queued_notifications": h.Dispatcher.QueueLength(),
	}
	if h.Hub != nil {
		body["realtime_clients"] = h.Hub.ClientCount()
	}
	c.JSON(http.StatusOK, body)
}

// Login issues a token for the given identity
func (h *ComplianceHandler) Login(c *gin.Context) {
	var user auth.User
	if err := c.ShouldBindJSON(&user); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	token, claims, err := h.Auth.GenerateToken(user)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidRole) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		h.Logger.Error("Failed to issue token", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to issue token"})
		return
	}

	h.Audit.LogEvent(audit.EventLogin, claims.Email, "", "login", map[string]string{"role": string(claims.Role)})

	c.JSON(http.StatusOK, gin.H{
		"token":      token,
		"expires_at": claims.ExpiresAt.Time,
		"user": gin.H{
			"email": claims.Email,
			"name":  claims.Name,
			"role":  claims.Role,
		},
	})
}

// Record endpoints

func (h *ComplianceHandler) ListRecords(c *gin.Context) {
	claims := mustClaims(c)

	if !claims.IsHR() {
		records := h.Records.ListByEmployee(claims.Email)
		c.JSON(http.StatusOK, gin.H{"records": records, "total": len(records)})
		return
	}

	filter := compliance.RecordFilter{Query: c.Query("q")}
	if raw := c.Query("status"); raw != "" && raw != "all" {
		status, err := compliance.ParseStatus(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		filter.Status = status
	}

	records := h.Records.Search(filter)
	c.JSON(http.StatusOK, gin.H{"records": records, "total": len(records)})
}

type submitRecordRequest struct {
	PolicyName       string `json:"policy_name"`
	IssueType        string `json:"issue_type" binding:"required"`
	IssueTitle       string `json:"issue_title" binding:"required"`
	IssueDescription string `json:"issue_description"`
	Severity         string `json:"severity" binding:"required"`
	ComplianceScore  int    `json:"compliance_score"`
	DocumentName     string `json:"document_name"`
}

// SubmitRecord stores an issue raised by the caller and notifies HR
func (h *ComplianceHandler) SubmitRecord(c *gin.Context) {
	claims := mustClaims(c)

	var request submitRecordRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	issueType, err := compliance.ParseIssueType(request.IssueType)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	severity, err := compliance.ParseSeverity(request.Severity)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	policyName := request.PolicyName
	if policyName == "" {
		policyName = "Pasted Policy Text"
	}
	documentName := request.DocumentName
	if documentName == "" {
		documentName = "Pasted Text"
	}

	record, err := h.Records.Add(compliance.NewRecord{
		EmployeeName:     claims.Name,
		EmployeeEmail:    claims.Email,
		PolicyName:       policyName,
		IssueType:        issueType,
		IssueTitle:       request.IssueTitle,
		IssueDescription: request.IssueDescription,
		Severity:         severity,
		ComplianceScore:  request.ComplianceScore,
		DocumentName:     documentName,
	})
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if h.Metrics != nil {
		h.Metrics.RecordSubmission(record)
	}
	h.Audit.LogEvent(audit.EventRecordCreated, claims.Email, record.ID, "create", map[string]string{
		"severity":   string(record.Severity),
		"issue_type": string(record.IssueType),
	})

	n := h.Dispatcher.Announce(record)
	if h.SendOnSubmit && !h.Dispatcher.Enqueue(record) {
		h.Logger.Warn("HR notification not queued", zap.String("record_id", record.ID))
	}

	c.JSON(http.StatusCreated, gin.H{
		"record":       record,
		"notification": n,
		"toast":        notification.Toast(notification.IssueFromRecord(record)),
		"message":      fmt.Sprintf("Compliance issue \"%s\" submitted to HR successfully!", record.IssueTitle),
	})
}

func (h *ComplianceHandler) GetRecord(c *gin.Context) {
	record, ok := h.visibleRecord(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, record)
}

// GetRecordNotification renders the notification texts for a stored record
func (h *ComplianceHandler) GetRecordNotification(c *gin.Context) {
	record, ok := h.visibleRecord(c)
	if !ok {
		return
	}

	issue := notification.IssueFromRecord(record)
	c.JSON(http.StatusOK, gin.H{
		"record_id":    record.ID,
		"notification": notification.Classify(issue),
		"toast":        notification.Toast(issue),
		"email":        notification.Email(issue, mustClaims(c).Name),
	})
}

type updateStatusRequest struct {
	Status     string `json:"status" binding:"required"`
	AssignedTo string `json:"assigned_to"`
	Notes      string `json:"notes"`
}

func (h *ComplianceHandler) UpdateRecordStatus(c *gin.Context) {
	claims := mustClaims(c)

	var request updateStatusRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	status, err := compliance.ParseStatus(request.Status)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	record, previous, ok := h.Records.UpdateStatus(c.Param("id"), status, request.AssignedTo, request.Notes)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "Record not found"})
		return
	}

	if h.Metrics != nil {
		h.Metrics.RecordStatusUpdate(status)
	}
	h.Audit.LogEvent(audit.EventStatusUpdated, claims.Email, record.ID, "update_status", map[string]string{
		"old_status":  string(previous.Status),
		"new_status":  string(record.Status),
		"assigned_to": record.AssignedTo,
	})
	if h.Hub != nil {
		h.Hub.SendToUser(record.EmployeeEmail, notification.EventStatusChanged, record)
	}

	c.JSON(http.StatusOK, record)
}

func (h *ComplianceHandler) GetStatistics(c *gin.Context) {
	c.JSON(http.StatusOK, h.Records.Statistics())
}

// Notification endpoints

type previewRequest struct {
	notification.Issue
	RecipientName string `json:"recipient_name"`
}

// PreviewNotification renders every notification form for an ad hoc issue
func (h *ComplianceHandler) PreviewNotification(c *gin.Context) {
	var request previewRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := request.Issue.Validate(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	recipient := request.RecipientName
	if recipient == "" {
		recipient = mustClaims(c).Name
	}

	n := notification.Classify(request.Issue)
	if h.Metrics != nil {
		h.Metrics.RecordNotification(n.Urgency)
	}

	c.JSON(http.StatusOK, gin.H{
		"notification": n,
		"toast":        notification.Toast(request.Issue),
		"email":        notification.Email(request.Issue, recipient),
	})
}

type summaryRequest struct {
	Issues []notification.Issue `json:"issues"`
}

// SummarizeNotifications classifies a batch of issues and phrases a headline
func (h *ComplianceHandler) SummarizeNotifications(c *gin.Context) {
	var request summaryRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	notifications := make([]notification.Notification, 0, len(request.Issues))
	for i, issue := range request.Issues {
		if err := issue.Validate(); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("issue %d: %v", i, err)})
			return
		}
		notifications = append(notifications, notification.Classify(issue))
	}

	c.JSON(http.StatusOK, gin.H{
		"summary":       notification.Summarize(notifications),
		"notifications": notifications,
	})
}

// Policy endpoints

func (h *ComplianceHandler) ListPolicies(c *gin.Context) {
	claims := mustClaims(c)

	policies := h.Policies.ListForUser(claims.Email)
	if claims.IsHR() {
		policies = h.Policies.List()
	}

	c.JSON(http.StatusOK, gin.H{
		"policies":                policies,
		"total":                   len(policies),
		"pending_acknowledgments": h.Policies.PendingCount(claims.Email),
	})
}

func (h *ComplianceHandler) GetPendingPolicies(c *gin.Context) {
	claims := mustClaims(c)
	c.JSON(http.StatusOK, gin.H{
		"email":   claims.Email,
		"pending": h.Policies.PendingCount(claims.Email),
	})
}

// GetPolicy returns one policy. Employees only see policies assigned to them.
func (h *ComplianceHandler) GetPolicy(c *gin.Context) {
	claims := mustClaims(c)

	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "policy id must be an integer"})
		return
	}

	p, ok := h.Policies.Get(id)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "Policy not found"})
		return
	}
	if !claims.IsHR() && !assignedTo(p, claims.Email) {
		c.JSON(http.StatusForbidden, gin.H{"error": "Access denied"})
		return
	}
	c.JSON(http.StatusOK, p)
}

func assignedTo(p policy.Policy, email string) bool {
	for _, assignee := range p.AssignedTo {
		if strings.EqualFold(assignee, email) {
			return true
		}
	}
	return false
}

// Report and audit endpoints

// ExportReport streams every record and the statistics as a download
func (h *ComplianceHandler) ExportReport(c *gin.Context) {
	claims := mustClaims(c)

	format := h.DefaultFormat
	if raw := c.Query("format"); raw != "" {
		parsed, err := reporting.ParseFormat(strings.ToLower(raw))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		format = parsed
	}

	report, err := h.Reports.Generate(format, h.Records.ListAll(), h.Records.Statistics())
	if err != nil {
		h.Logger.Error("Failed to generate report", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to generate report"})
		return
	}

	if h.Metrics != nil {
		h.Metrics.RecordReport(string(format))
	}
	h.Audit.LogEvent(audit.EventReportExported, claims.Email, "", "export", map[string]string{
		"format":   string(format),
		"filename": report.Filename,
	})

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", report.Filename))
	c.Data(http.StatusOK, report.ContentType, report.Data)
}

func (h *ComplianceHandler) GetAuditLogs(c *gin.Context) {
	filter := audit.Filter{
		EventType: c.Query("event_type"),
		Actor:     c.Query("actor"),
	}
	if raw := c.Query("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a non-negative integer"})
			return
		}
		filter.Limit = limit
	}

	entries := h.Audit.List(filter)
	c.JSON(http.StatusOK, gin.H{"logs": entries, "total": len(entries)})
}

// VerifyAuditTrail recomputes the audit checksum chain
func (h *ComplianceHandler) VerifyAuditTrail(c *gin.Context) {
	if err := h.Audit.Verify(); err != nil {
		h.Logger.Error("Audit trail verification failed", zap.Error(err))
		c.JSON(http.StatusConflict, gin.H{"valid": false, "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"valid": true, "entries": h.Audit.Len()})
}

// Scheduled task endpoints

func (h *ComplianceHandler) ListTasks(c *gin.Context) {
	tasks := h.Scheduler.Tasks()
	c.JSON(http.StatusOK, gin.H{"tasks": tasks, "total": len(tasks)})
}

// RunTask executes a scheduled task immediately
func (h *ComplianceHandler) RunTask(c *gin.Context) {
	claims := mustClaims(c)
	name := c.Param("name")

	err := h.Scheduler.RunNow(c.Request.Context(), name)
	switch {
	case errors.Is(err, scheduler.ErrTaskNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	case err != nil:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	h.Logger.Info("Task run on demand", zap.String("task", name), zap.String("actor", claims.Email))
	c.JSON(http.StatusOK, gin.H{"task": name, "status": "completed"})
}

// visibleRecord loads the :id record, writing 404 or 403 when the caller
// cannot see it
func (h *ComplianceHandler) visibleRecord(c *gin.Context) (compliance.ComplianceRecord, bool) {
	claims := mustClaims(c)

	record, ok := h.Records.Get(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "Record not found"})
		return compliance.ComplianceRecord{}, false
	}
	if !claims.IsHR() && !strings.EqualFold(record.EmployeeEmail, claims.Email) {
		c.JSON(http.StatusForbidden, gin.H{"error": "Access denied"})
		return compliance.ComplianceRecord{}, false
	}
	return record, true
}

func mustClaims(c *gin.Context) *auth.Claims {
	claims, ok := auth.ClaimsFrom(c)
	if !ok {
		panic("handlers: route registered without auth.RequireAuth")
	}
	return claims
}
