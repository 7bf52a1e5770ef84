package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/insurai/compliance-engine/internal/audit"
	"github.com/insurai/compliance-engine/internal/auth"
	"github.com/insurai/compliance-engine/internal/compliance"
	"github.com/insurai/compliance-engine/internal/config"
	"github.com/insurai/compliance-engine/internal/metrics"
	"github.com/insurai/compliance-engine/internal/notification"
	"github.com/insurai/compliance-engine/internal/policy"
	"github.com/insurai/compliance-engine/internal/reporting"
	"github.com/insurai/compliance-engine/internal/scheduler"
)

type captureMailer struct {
	mu   sync.Mutex
	sent []notification.Message
}

func (m *captureMailer) Send(_ context.Context, msg notification.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, msg)
	return nil
}

func (m *captureMailer) messages() []notification.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]notification.Message, len(m.sent))
	copy(out, m.sent)
	return out
}

type captureBroadcaster struct {
	mu     sync.Mutex
	events []string
}

func (b *captureBroadcaster) Broadcast(event string, _ interface{}) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, event)
}

func (b *captureBroadcaster) received() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.events...)
}

type testEnv struct {
	router      *gin.Engine
	handler     *ComplianceHandler
	mailer      *captureMailer
	broadcaster *captureBroadcaster
	auth        *auth.Service
}

type envOption func(*Dependencies)

func withoutSubmitEmail() envOption {
	return func(d *Dependencies) { d.SendOnSubmit = false }
}

func newTestEnv(t *testing.T, opts ...envOption) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)
	logger := zap.NewNop()

	records := compliance.NewRecordStore(logger, compliance.WithClock(func() time.Time {
		return time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)
	}))
	seed, err := compliance.DefaultSeed()
	require.NoError(t, err)
	require.NoError(t, records.Seed(seed))

	policies, err := policy.NewDefaultStore()
	require.NoError(t, err)

	mailer := &captureMailer{}
	broadcaster := &captureBroadcaster{}
	collector := metrics.NewCollector(records)
	dispatcher := notification.NewDispatcher(config.NotificationsConfig{
		QueueSize:    10,
		WorkerCount:  1,
		HRRecipients: []config.Recipient{{Name: "HR Team", Email: "hr@company.com"}},
		Email:        config.EmailConfig{RateLimitPerMin: 6000, Burst: 10},
	}, mailer, logger, notification.WithRecorder(collector), notification.WithBroadcaster(broadcaster))
	dispatcher.Start(context.Background())
	t.Cleanup(func() { _ = dispatcher.Stop(context.Background()) })

	auditLogger := audit.NewLogger(config.AuditConfig{MaxEntries: 100}, logger)
	sched, err := scheduler.NewScheduler(config.SchedulerConfig{Timezone: "UTC"}, logger, collector)
	require.NoError(t, err)
	require.NoError(t, sched.AddTask("0 0 9 * * MON-FRI", scheduler.NewPendingDigestTask(records, dispatcher, auditLogger)))

	authSvc := auth.NewService(config.AuthConfig{
		JWTSecret: "handler-test-secret-with-enough-length",
		Issuer:    "insurai-test",
		TokenTTL:  time.Hour,
	})

	deps := Dependencies{
		Records:      records,
		Policies:     policies,
		Dispatcher:   dispatcher,
		Scheduler:    sched,
		Reports:      reporting.NewEngine(config.ReportingConfig{}, logger),
		Audit:        auditLogger,
		Auth:         authSvc,
		Metrics:      collector,
		Logger:       logger,
		SendOnSubmit: true,
	}
	for _, opt := range opts {
		opt(&deps)
	}
	h := NewComplianceHandler(deps)

	router := NewRouter(logger, collector.Middleware())
	h.RegisterRoutes(router)

	return &testEnv{router: router, handler: h, mailer: mailer, broadcaster: broadcaster, auth: authSvc}
}

func (e *testEnv) token(t *testing.T, email, name, role string) string {
	t.Helper()
	token, _, err := e.auth.GenerateToken(auth.User{Email: email, Name: name, Role: role})
	require.NoError(t, err)
	return token
}

func (e *testEnv) hrToken(t *testing.T) string {
	return e.token(t, "hr@company.com", "Sarah Mitchell", "hr")
}

func (e *testEnv) do(t *testing.T, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), v))
}

func TestHealthAndLogin(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodGet, "/api/v1/health", "", nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = env.do(t, http.MethodPost, "/api/v1/auth/login", "", map[string]string{
		"email": "Lisa.Anderson@company.com", "name": "Lisa Anderson", "role": "user",
	})
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Token string `json:"token"`
		User  struct {
			Email string `json:"email"`
			Role  string `json:"role"`
		} `json:"user"`
	}
	decode(t, w, &resp)
	assert.NotEmpty(t, resp.Token)
	assert.Equal(t, "lisa.anderson@company.com", resp.User.Email)
	assert.Equal(t, "employee", resp.User.Role)

	w = env.do(t, http.MethodPost, "/api/v1/auth/login", "", map[string]string{
		"email": "x@company.com", "name": "X", "role": "superuser",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(t, http.MethodPost, "/api/v1/auth/login", "", map[string]string{"name": "X", "role": "hr"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(t, http.MethodGet, "/api/v1/records", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestSubmitRecord(t *testing.T) {
	env := newTestEnv(t)
	token := env.token(t, "lisa.anderson@company.com", "Lisa Anderson", "employee")

	w := env.do(t, http.MethodPost, "/api/v1/records", token, map[string]interface{}{
		"policy_name":       "Remote Work Policy",
		"issue_type":        "high-risk",
		"issue_title":       "Unlimited liability clause",
		"issue_description": "May expose company to significant financial risk",
		"severity":          "critical",
		"compliance_score":  62,
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var resp struct {
		Record       compliance.ComplianceRecord `json:"record"`
		Notification notification.Notification   `json:"notification"`
		Toast        string                      `json:"toast"`
		Message      string                      `json:"message"`
	}
	decode(t, w, &resp)

	assert.Equal(t, "CR-006", resp.Record.ID)
	assert.Equal(t, "Lisa Anderson", resp.Record.EmployeeName)
	assert.Equal(t, "lisa.anderson@company.com", resp.Record.EmployeeEmail)
	assert.Equal(t, "2026-03-14", resp.Record.SubmittedDate)
	assert.Equal(t, compliance.StatusPending, resp.Record.Status)
	assert.Equal(t, "Pasted Text", resp.Record.DocumentName)
	assert.Equal(t, notification.IconError, resp.Notification.Icon)
	assert.Equal(t, `Compliance issue "Unlimited liability clause" submitted to HR successfully!`, resp.Message)

	require.Eventually(t, func() bool { return len(env.mailer.messages()) == 1 }, 2*time.Second, 10*time.Millisecond)
	sent := env.mailer.messages()
	assert.Equal(t, "hr@company.com", sent[0].ToAddress)
	assert.Contains(t, sent[0].Body, "Dear HR Team,")
	assert.Equal(t, []string{notification.EventRecordSubmitted}, env.broadcaster.received())

	logs := env.handler.Audit.List(audit.Filter{EventType: audit.EventRecordCreated})
	require.Len(t, logs, 1)
	assert.Equal(t, "CR-006", logs[0].EntityID)
}

func submitBody() map[string]interface{} {
	return map[string]interface{}{
		"issue_type":  "missing-clause",
		"issue_title": "Data Protection Clause",
		"severity":    "high",
	}
}

func TestSubmitRecordEmailsHRAfterClientDisconnects(t *testing.T) {
	env := newTestEnv(t)
	token := env.token(t, "lisa.anderson@company.com", "Lisa Anderson", "employee")

	data, err := json.Marshal(submitBody())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/records", bytes.NewReader(data)).WithContext(ctx)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	require.Eventually(t, func() bool { return len(env.mailer.messages()) == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.Contains(t, env.mailer.messages()[0].Subject, "Data Protection Clause")
}

func TestSubmitRecordWithoutEmailStillBroadcasts(t *testing.T) {
	env := newTestEnv(t, withoutSubmitEmail())
	token := env.token(t, "lisa.anderson@company.com", "Lisa Anderson", "employee")

	w := env.do(t, http.MethodPost, "/api/v1/records", token, submitBody())
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	assert.Equal(t, []string{notification.EventRecordSubmitted}, env.broadcaster.received())
	require.NoError(t, env.handler.Dispatcher.Stop(context.Background()))
	assert.Empty(t, env.mailer.messages())
}

func TestSubmitRecordValidation(t *testing.T) {
	env := newTestEnv(t)
	token := env.token(t, "lisa.anderson@company.com", "Lisa Anderson", "employee")

	tests := []struct {
		name string
		body map[string]interface{}
	}{
		{"missing title", map[string]interface{}{"issue_type": "high-risk", "severity": "high"}},
		{"bad type", map[string]interface{}{"issue_type": "risky", "issue_title": "x", "severity": "high"}},
		{"bad severity", map[string]interface{}{"issue_type": "high-risk", "issue_title": "x", "severity": "urgent"}},
		{"score out of range", map[string]interface{}{"issue_type": "high-risk", "issue_title": "x", "severity": "high", "compliance_score": 140}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(t, http.MethodPost, "/api/v1/records", token, tt.body)
			assert.Equal(t, http.StatusBadRequest, w.Code)
		})
	}
	assert.Empty(t, env.mailer.messages())
	assert.Empty(t, env.broadcaster.received())
}

func TestListRecords(t *testing.T) {
	env := newTestEnv(t)

	var resp struct {
		Records []compliance.ComplianceRecord `json:"records"`
		Total   int                           `json:"total"`
	}

	w := env.do(t, http.MethodGet, "/api/v1/records", env.hrToken(t), nil)
	require.Equal(t, http.StatusOK, w.Code)
	decode(t, w, &resp)
	assert.Equal(t, 5, resp.Total)

	w = env.do(t, http.MethodGet, "/api/v1/records?status=pending", env.hrToken(t), nil)
	require.Equal(t, http.StatusOK, w.Code)
	decode(t, w, &resp)
	for _, r := range resp.Records {
		assert.Equal(t, compliance.StatusPending, r.Status)
	}

	w = env.do(t, http.MethodGet, "/api/v1/records?status=closed", env.hrToken(t), nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	john := env.token(t, "John.Anderson@company.com", "John Anderson", "employee")
	w = env.do(t, http.MethodGet, "/api/v1/records", john, nil)
	require.Equal(t, http.StatusOK, w.Code)
	decode(t, w, &resp)
	require.Equal(t, 1, resp.Total)
	assert.Equal(t, "CR-001", resp.Records[0].ID)
}

func TestGetRecordAccess(t *testing.T) {
	env := newTestEnv(t)
	john := env.token(t, "john.anderson@company.com", "John Anderson", "employee")

	assert.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/api/v1/records/CR-001", john, nil).Code)
	assert.Equal(t, http.StatusForbidden, env.do(t, http.MethodGet, "/api/v1/records/CR-002", john, nil).Code)
	assert.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/api/v1/records/CR-002", env.hrToken(t), nil).Code)
	assert.Equal(t, http.StatusNotFound, env.do(t, http.MethodGet, "/api/v1/records/CR-999", env.hrToken(t), nil).Code)

	w := env.do(t, http.MethodGet, "/api/v1/records/CR-001/notification", john, nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Notification notification.Notification `json:"notification"`
		Email        string                    `json:"email"`
	}
	decode(t, w, &resp)
	assert.Equal(t, compliance.SeverityHigh, resp.Notification.Urgency)
	assert.Contains(t, resp.Email, "Dear John Anderson,")
}

func TestUpdateRecordStatus(t *testing.T) {
	env := newTestEnv(t)
	john := env.token(t, "john.anderson@company.com", "John Anderson", "employee")

	body := map[string]string{"status": "resolved", "assigned_to": "Sarah Mitchell", "notes": "Clause added"}

	w := env.do(t, http.MethodPut, "/api/v1/records/CR-002/status", john, body)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = env.do(t, http.MethodPut, "/api/v1/records/CR-002/status", env.hrToken(t), map[string]string{"status": "done"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(t, http.MethodPut, "/api/v1/records/CR-999/status", env.hrToken(t), body)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = env.do(t, http.MethodPut, "/api/v1/records/CR-002/status", env.hrToken(t), body)
	require.Equal(t, http.StatusOK, w.Code)

	var record compliance.ComplianceRecord
	decode(t, w, &record)
	assert.Equal(t, compliance.StatusResolved, record.Status)
	assert.Equal(t, "Sarah Mitchell", record.AssignedTo)
	assert.Equal(t, "Clause added", record.Notes)

	logs := env.handler.Audit.List(audit.Filter{EventType: audit.EventStatusUpdated})
	require.Len(t, logs, 1)
	assert.Equal(t, "pending", logs[0].Details["old_status"])
	assert.Equal(t, "resolved", logs[0].Details["new_status"])
}

func TestStatistics(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodGet, "/api/v1/statistics", env.hrToken(t), nil)
	require.Equal(t, http.StatusOK, w.Code)

	var stats compliance.Statistics
	decode(t, w, &stats)
	assert.Equal(t, env.handler.Records.Statistics(), stats)
	assert.Equal(t, stats.Pending+stats.Critical, stats.ActionRequired)

	john := env.token(t, "john.anderson@company.com", "John Anderson", "employee")
	assert.Equal(t, http.StatusForbidden, env.do(t, http.MethodGet, "/api/v1/statistics", john, nil).Code)
}

func TestNotificationPreviewAndSummary(t *testing.T) {
	env := newTestEnv(t)
	token := env.token(t, "lisa.anderson@company.com", "Lisa Anderson", "employee")

	w := env.do(t, http.MethodPost, "/api/v1/notifications/preview", token, map[string]string{
		"issue_type":  "missing-clause",
		"severity":    "high",
		"issue_title": "Grievance Redressal Mechanism",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var preview struct {
		Notification notification.Notification `json:"notification"`
		Toast        string                    `json:"toast"`
		Email        string                    `json:"email"`
	}
	decode(t, w, &preview)
	assert.Equal(t, "High Priority Missing Clause Detected", preview.Notification.Title)
	assert.Equal(t, "High-priority issue found: Grievance Redressal Mechanism. Please submit to HR.", preview.Toast)
	assert.Contains(t, preview.Email, "Dear Lisa Anderson,")

	w = env.do(t, http.MethodPost, "/api/v1/notifications/preview", token, map[string]string{
		"issue_type": "missing-clause", "severity": "urgent", "issue_title": "x",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(t, http.MethodPost, "/api/v1/notifications/summary", token, map[string]interface{}{
		"issues": []map[string]string{
			{"issue_type": "high-risk", "severity": "critical", "issue_title": "a"},
			{"issue_type": "recommendation", "severity": "low", "issue_title": "b"},
		},
	})
	require.Equal(t, http.StatusOK, w.Code)

	var summary struct {
		Summary notification.Summary `json:"summary"`
	}
	decode(t, w, &summary)
	assert.Equal(t, 2, summary.Summary.Total)
	assert.Equal(t, "1 critical issue require immediate attention.", summary.Summary.Message)

	w = env.do(t, http.MethodPost, "/api/v1/notifications/summary", token, map[string]interface{}{"issues": []interface{}{}})
	require.Equal(t, http.StatusOK, w.Code)
	decode(t, w, &summary)
	assert.Equal(t, "No compliance issues detected. Your policy is in good standing.", summary.Summary.Message)
}

func TestPolicies(t *testing.T) {
	env := newTestEnv(t)
	token := env.token(t, "john.anderson@company.com", "John Anderson", "employee")

	w := env.do(t, http.MethodGet, "/api/v1/policies", token, nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Policies []policy.Policy `json:"policies"`
		Pending  int             `json:"pending_acknowledgments"`
	}
	decode(t, w, &resp)
	assert.Len(t, resp.Policies, len(env.handler.Policies.ListForUser("john.anderson@company.com")))
	assert.Equal(t, 2, resp.Pending)

	w = env.do(t, http.MethodGet, "/api/v1/policies/pending", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var pending struct {
		Pending int `json:"pending"`
	}
	decode(t, w, &pending)
	assert.Equal(t, 2, pending.Pending)

	w = env.do(t, http.MethodGet, "/api/v1/policies/1", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var p policy.Policy
	decode(t, w, &p)
	assert.Equal(t, 1, p.ID)

	assert.Equal(t, http.StatusForbidden, env.do(t, http.MethodGet, "/api/v1/policies/6", token, nil).Code)
	assert.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/api/v1/policies/6", env.hrToken(t), nil).Code)
	assert.Equal(t, http.StatusNotFound, env.do(t, http.MethodGet, "/api/v1/policies/99", token, nil).Code)
	assert.Equal(t, http.StatusBadRequest, env.do(t, http.MethodGet, "/api/v1/policies/abc", token, nil).Code)
}

func TestAuditVerify(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodPut, "/api/v1/records/CR-002/status", env.hrToken(t), map[string]string{"status": "in-review"})
	require.Equal(t, http.StatusOK, w.Code)

	w = env.do(t, http.MethodGet, "/api/v1/audit/verify", env.hrToken(t), nil)
	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Valid   bool `json:"valid"`
		Entries int  `json:"entries"`
	}
	decode(t, w, &resp)
	assert.True(t, resp.Valid)
	assert.Equal(t, 1, resp.Entries)

	john := env.token(t, "john.anderson@company.com", "John Anderson", "employee")
	assert.Equal(t, http.StatusForbidden, env.do(t, http.MethodGet, "/api/v1/audit/verify", john, nil).Code)
}

func TestSchedulerTasks(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodGet, "/api/v1/scheduler/tasks", env.hrToken(t), nil)
	require.Equal(t, http.StatusOK, w.Code)
	var list struct {
		Tasks []scheduler.ScheduledTask `json:"tasks"`
	}
	decode(t, w, &list)
	require.Len(t, list.Tasks, 1)
	assert.Equal(t, scheduler.PendingDigestTaskName, list.Tasks[0].Name)

	w = env.do(t, http.MethodPost, "/api/v1/scheduler/tasks/"+scheduler.PendingDigestTaskName+"/run", env.hrToken(t), nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	sent := env.mailer.messages()
	require.Len(t, sent, 1)
	assert.Contains(t, sent[0].Subject, "Pending compliance digest")
	assert.Len(t, env.handler.Audit.List(audit.Filter{EventType: audit.EventDigestSent}), 1)

	w = env.do(t, http.MethodPost, "/api/v1/scheduler/tasks/unknown/run", env.hrToken(t), nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	john := env.token(t, "john.anderson@company.com", "John Anderson", "employee")
	assert.Equal(t, http.StatusForbidden, env.do(t, http.MethodGet, "/api/v1/scheduler/tasks", john, nil).Code)
}

func TestExportReport(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodGet, "/api/v1/reports/export?format=csv", env.hrToken(t), nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/csv", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), "Compliance_Report_")
	assert.Contains(t, w.Body.String(), "CR-001")

	w = env.do(t, http.MethodGet, "/api/v1/reports/export", env.hrToken(t), nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Disposition"), ".xlsx")

	w = env.do(t, http.MethodGet, "/api/v1/reports/export?format=docx", env.hrToken(t), nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(t, http.MethodGet, "/api/v1/audit/logs?event_type="+audit.EventReportExported, env.hrToken(t), nil)
	require.Equal(t, http.StatusOK, w.Code)
	var logs struct {
		Total int `json:"total"`
	}
	decode(t, w, &logs)
	assert.Equal(t, 2, logs.Total)

	w = env.do(t, http.MethodGet, "/api/v1/audit/logs?limit=-1", env.hrToken(t), nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
