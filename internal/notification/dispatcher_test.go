package notification

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/insurai/compliance-engine/internal/compliance"
	"github.com/insurai/compliance-engine/internal/config"
)

type fakeMailer struct {
	mu   sync.Mutex
	sent []Message
	fail map[string]error
}

func (m *fakeMailer) Send(_ context.Context, msg Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail[msg.ToAddress]; err != nil {
		return err
	}
	m.sent = append(m.sent, msg)
	return nil
}

type fakeBroadcaster struct {
	events   []string
	payloads []interface{}
}

func (b *fakeBroadcaster) Broadcast(event string, payload interface{}) {
	b.events = append(b.events, event)
	b.payloads = append(b.payloads, payload)
}

type fakeRecorder struct {
	urgencies []compliance.Severity
	results   []string
}

func (r *fakeRecorder) RecordNotification(urgency compliance.Severity) {
	r.urgencies = append(r.urgencies, urgency)
}

func (r *fakeRecorder) RecordEmail(result string) {
	r.results = append(r.results, result)
}

func testNotificationsConfig() config.NotificationsConfig {
	return config.NotificationsConfig{
		SendOnSubmit: true,
		HRRecipients: []config.Recipient{
			{Name: "Sarah Mitchell", Email: "sarah.mitchell@company.com"},
			{Name: "John Davis", Email: "john.davis@company.com"},
		},
		Email: config.EmailConfig{
			Provider:        "log",
			Timeout:         time.Second,
			RateLimitPerMin: 6000,
			Burst:           10,
		},
	}
}

func submittedRecord() compliance.ComplianceRecord {
	return compliance.ComplianceRecord{
		ID:               "CR-006",
		EmployeeName:     "Lisa Anderson",
		EmployeeEmail:    "lisa.anderson@company.com",
		PolicyName:       "Remote Work Policy",
		IssueType:        compliance.IssueTypeHighRisk,
		IssueTitle:       "Unlimited liability clause",
		IssueDescription: "May expose company to significant financial risk",
		Severity:         compliance.SeverityCritical,
		SubmittedDate:    "2026-03-14",
		Status:           compliance.StatusPending,
		ComplianceScore:  40,
	}
}

func TestDispatcher_Announce(t *testing.T) {
	mailer := &fakeMailer{}
	broadcaster := &fakeBroadcaster{}
	recorder := &fakeRecorder{}
	d := NewDispatcher(testNotificationsConfig(), mailer, zap.NewNop(),
		WithBroadcaster(broadcaster), WithRecorder(recorder))

	n := d.Announce(submittedRecord())
	assert.Equal(t, compliance.SeverityCritical, n.Urgency)
	assert.Equal(t, IconError, n.Icon)

	require.Equal(t, []string{EventRecordSubmitted}, broadcaster.events)
	event, ok := broadcaster.payloads[0].(SubmissionEvent)
	require.True(t, ok)
	assert.Equal(t, "CR-006", event.Record.ID)
	assert.Equal(t, "Critical issue detected: Unlimited liability clause. Immediate HR submission recommended.", event.Toast)

	assert.Equal(t, []compliance.Severity{compliance.SeverityCritical}, recorder.urgencies)
	assert.Empty(t, mailer.sent)
	assert.Empty(t, recorder.results)
}

func TestDispatcher_NotifySubmission(t *testing.T) {
	mailer := &fakeMailer{}
	broadcaster := &fakeBroadcaster{}
	recorder := &fakeRecorder{}
	d := NewDispatcher(testNotificationsConfig(), mailer, zap.NewNop(),
		WithBroadcaster(broadcaster), WithRecorder(recorder))

	require.NoError(t, d.NotifySubmission(context.Background(), submittedRecord()))

	require.Len(t, mailer.sent, 2)
	assert.Equal(t, "sarah.mitchell@company.com", mailer.sent[0].ToAddress)
	assert.Contains(t, mailer.sent[0].Body, "Dear Sarah Mitchell,")
	assert.Contains(t, mailer.sent[1].Body, "Dear John Davis,")
	assert.Contains(t, mailer.sent[0].Subject, "Critical High-Risk Condition Detected")

	assert.Empty(t, broadcaster.events)
	assert.Empty(t, recorder.urgencies)
	assert.Equal(t, []string{"success", "success"}, recorder.results)
}

func TestDispatcher_NotifySubmissionAttemptsAllRecipients(t *testing.T) {
	boom := errors.New("mailbox unavailable")
	mailer := &fakeMailer{fail: map[string]error{"sarah.mitchell@company.com": boom}}
	recorder := &fakeRecorder{}
	d := NewDispatcher(testNotificationsConfig(), mailer, zap.NewNop(), WithRecorder(recorder))

	err := d.NotifySubmission(context.Background(), submittedRecord())
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)

	require.Len(t, mailer.sent, 1)
	assert.Equal(t, "john.davis@company.com", mailer.sent[0].ToAddress)
	assert.Equal(t, []string{"failure", "success"}, recorder.results)
}

func TestDispatcher_CancelledContext(t *testing.T) {
	cfg := testNotificationsConfig()
	cfg.Email.RateLimitPerMin = 1
	cfg.Email.Burst = 1
	mailer := &fakeMailer{}
	recorder := &fakeRecorder{}
	d := NewDispatcher(cfg, mailer, zap.NewNop(), WithRecorder(recorder))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := d.NotifySubmission(ctx, submittedRecord())
	assert.Error(t, err)
	assert.Empty(t, mailer.sent)
	assert.Equal(t, []string{"rate_limited", "rate_limited"}, recorder.results)
}

func (m *fakeMailer) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sent)
}

func TestDispatcher_QueuedDeliveryOutlivesCallerContext(t *testing.T) {
	mailer := &fakeMailer{}
	d := NewDispatcher(testNotificationsConfig(), mailer, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	d.Start(ctx)
	cancel()

	require.True(t, d.Enqueue(submittedRecord()))
	require.Eventually(t, func() bool { return mailer.count() == 2 }, 2*time.Second, 10*time.Millisecond)
	require.NoError(t, d.Stop(context.Background()))
}

func TestDispatcher_StopDrainsQueue(t *testing.T) {
	mailer := &fakeMailer{}
	d := NewDispatcher(testNotificationsConfig(), mailer, zap.NewNop())

	for i := 0; i < 3; i++ {
		require.True(t, d.Enqueue(submittedRecord()))
	}
	assert.Equal(t, 3, d.QueueLength())

	d.Start(context.Background())
	require.NoError(t, d.Stop(context.Background()))
	assert.Equal(t, 6, mailer.count())
	assert.Equal(t, 0, d.QueueLength())
}

func TestDispatcher_EnqueueRejects(t *testing.T) {
	cfg := testNotificationsConfig()
	cfg.QueueSize = 1
	recorder := &fakeRecorder{}
	d := NewDispatcher(cfg, &fakeMailer{}, zap.NewNop(), WithRecorder(recorder))

	require.True(t, d.Enqueue(submittedRecord()))
	assert.False(t, d.Enqueue(submittedRecord()), "queue full")

	require.NoError(t, d.Stop(context.Background()))
	assert.False(t, d.Enqueue(submittedRecord()), "stopped")
	assert.Equal(t, []string{"dropped", "dropped"}, recorder.results)
}

func TestDispatcher_SendDigest(t *testing.T) {
	mailer := &fakeMailer{}
	broadcaster := &fakeBroadcaster{}
	d := NewDispatcher(testNotificationsConfig(), mailer, zap.NewNop(), WithBroadcaster(broadcaster))

	second := submittedRecord()
	second.ID = "CR-007"
	second.Severity = compliance.SeverityMedium
	second.IssueTitle = "Ambiguous reimbursement window"

	summary, err := d.SendDigest(context.Background(), []compliance.ComplianceRecord{submittedRecord(), second})
	require.NoError(t, err)

	assert.Equal(t, 2, summary.Total)
	assert.Equal(t, 1, summary.Critical)
	assert.Equal(t, 1, summary.Medium)

	require.Len(t, mailer.sent, 2)
	assert.Equal(t, "[InsurAI] Pending compliance digest (2)", mailer.sent[0].Subject)
	assert.Contains(t, mailer.sent[0].Body, "- CR-006 [Critical] Unlimited liability clause (Lisa Anderson, submitted 2026-03-14)")
	assert.Contains(t, mailer.sent[0].Body, "- CR-007 [Medium] Ambiguous reimbursement window")
	assert.Equal(t, []string{EventDigest}, broadcaster.events)
}

func TestDispatcher_SendDigestSkipsEmptyInbox(t *testing.T) {
	mailer := &fakeMailer{}
	d := NewDispatcher(testNotificationsConfig(), mailer, zap.NewNop())

	summary, err := d.SendDigest(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, 0, summary.Total)
	assert.Empty(t, mailer.sent)
}

func TestLogMailer(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	m := NewLogMailer(zap.New(core))

	err := m.Send(context.Background(), Message{ToAddress: "hr@company.com", Subject: "Hello", Body: "Body"})
	require.NoError(t, err)

	entries := logs.FilterMessage("Email notification").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "hr@company.com", entries[0].ContextMap()["to"])
}

func TestNewMailer(t *testing.T) {
	m, err := NewMailer(config.EmailConfig{Provider: "log"}, zap.NewNop())
	require.NoError(t, err)
	assert.IsType(t, &LogMailer{}, m)

	m, err = NewMailer(config.EmailConfig{Provider: "sendgrid", SendGridAPIKey: "SG.test"}, zap.NewNop())
	require.NoError(t, err)
	assert.IsType(t, &SendGridMailer{}, m)

	_, err = NewMailer(config.EmailConfig{Provider: "fax"}, zap.NewNop())
	assert.Error(t, err)
}
