package notification

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/insurai/compliance-engine/internal/compliance"
	"github.com/insurai/compliance-engine/internal/config"
)

// Event names published to realtime subscribers
const (
	EventRecordSubmitted = "record.submitted"
	EventStatusChanged   = "record.status_changed"
	EventDigest          = "digest"
)

// Broadcaster pushes events to connected dashboard clients
type Broadcaster interface {
	Broadcast(event string, payload interface{})
}

// Recorder receives delivery counters
type Recorder interface {
	RecordNotification(urgency compliance.Severity)
	RecordEmail(result string)
}

// SubmissionEvent is broadcast when an employee submits an issue to HR
type SubmissionEvent struct {
	Record       compliance.ComplianceRecord `json:"record"`
	Notification Notification                `json:"notification"`
	Toast        string                      `json:"toast"`
}

// Dispatcher fans notifications out to HR by email and to live dashboards.
// Submission emails are queued and delivered by background workers so they
// outlive the request that raised them.
type Dispatcher struct {
	mailer      Mailer
	recipients  []config.Recipient
	limiter     *rate.Limiter
	timeout     time.Duration
	broadcaster Broadcaster
	recorder    Recorder
	logger      *zap.Logger

	queue       chan compliance.ComplianceRecord
	workerCount int
	wg          sync.WaitGroup
	mu          sync.RWMutex
	started     bool
	stopped     bool
}

// DispatcherOption configures optional collaborators
type DispatcherOption func(*Dispatcher)

// WithBroadcaster publishes submission events to realtime clients
func WithBroadcaster(b Broadcaster) DispatcherOption {
	return func(d *Dispatcher) { d.broadcaster = b }
}

// WithRecorder reports delivery counters
func WithRecorder(r Recorder) DispatcherOption {
	return func(d *Dispatcher) { d.recorder = r }
}

// NewDispatcher creates a dispatcher for the configured HR recipients
func NewDispatcher(cfg config.NotificationsConfig, mailer Mailer, logger *zap.Logger, opts ...DispatcherOption) *Dispatcher {
	perMin := cfg.Email.RateLimitPerMin
	if perMin <= 0 {
		perMin = 60
	}
	burst := cfg.Email.Burst
	if burst <= 0 {
		burst = 1
	}
	queueSize := cfg.QueueSize
	if queueSize <= 0 {
		queueSize = 100
	}
	workers := cfg.WorkerCount
	if workers <= 0 {
		workers = 1
	}

	d := &Dispatcher{
		mailer:      mailer,
		recipients:  cfg.HRRecipients,
		limiter:     rate.NewLimiter(rate.Limit(float64(perMin)/60.0), burst),
		timeout:     cfg.Email.Timeout,
		logger:      logger,
		queue:       make(chan compliance.ComplianceRecord, queueSize),
		workerCount: workers,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Start launches the email workers. Workers detach from ctx cancellation so
// queued submissions are still delivered while Stop drains the queue.
func (d *Dispatcher) Start(ctx context.Context) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.started || d.stopped {
		return
	}
	d.started = true

	d.logger.Info("Starting notification workers", zap.Int("workers", d.workerCount))
	workerCtx := context.WithoutCancel(ctx)
	for i := 0; i < d.workerCount; i++ {
		d.wg.Add(1)
		go d.worker(workerCtx, i)
	}
}

// Stop closes the queue and waits for the workers to deliver what is left.
// It returns ctx.Err() if ctx ends first.
func (d *Dispatcher) Stop(ctx context.Context) error {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return nil
	}
	d.stopped = true
	pending := len(d.queue)
	close(d.queue)
	d.mu.Unlock()

	d.logger.Info("Stopping notification workers", zap.Int("queued", pending))

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		d.logger.Info("Notification workers stopped")
		return nil
	case <-ctx.Done():
		d.logger.Warn("Notification workers did not drain before shutdown", zap.Int("queued", len(d.queue)))
		return ctx.Err()
	}
}

func (d *Dispatcher) worker(ctx context.Context, id int) {
	defer d.wg.Done()

	for record := range d.queue {
		if err := d.NotifySubmission(ctx, record); err != nil {
			d.logger.Warn("HR notification incomplete",
				zap.Int("worker", id),
				zap.String("record_id", record.ID),
				zap.Error(err),
			)
		}
	}
}

// Announce classifies a newly submitted record, counts it and publishes it
// to live dashboards.
func (d *Dispatcher) Announce(record compliance.ComplianceRecord) Notification {
	issue := IssueFromRecord(record)
	n := Classify(issue)

	if d.recorder != nil {
		d.recorder.RecordNotification(n.Urgency)
	}
	if d.broadcaster != nil {
		d.broadcaster.Broadcast(EventRecordSubmitted, SubmissionEvent{
			Record:       record,
			Notification: n,
			Toast:        Toast(issue),
		})
	}
	return n
}

// Enqueue hands a submitted record to the email workers. It reports false
// when the queue is full or the dispatcher has been stopped.
func (d *Dispatcher) Enqueue(record compliance.ComplianceRecord) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.stopped {
		d.record("dropped")
		return false
	}
	select {
	case d.queue <- record:
		return true
	default:
		d.record("dropped")
		d.logger.Error("Notification queue full, submission email dropped",
			zap.String("record_id", record.ID),
		)
		return false
	}
}

// QueueLength reports how many submissions are waiting for delivery
func (d *Dispatcher) QueueLength() int {
	return len(d.queue)
}

// NotifySubmission emails every HR recipient about a submitted record.
// Delivery failures are joined and returned after all recipients have been
// attempted.
func (d *Dispatcher) NotifySubmission(ctx context.Context, record compliance.ComplianceRecord) error {
	issue := IssueFromRecord(record)
	n := Classify(issue)

	var errs []error
	for _, r := range d.recipients {
		msg := Message{
			ToName:    r.Name,
			ToAddress: r.Email,
			Subject:   fmt.Sprintf("[InsurAI] %s: %s", n.Title, record.IssueTitle),
			Body:      Email(issue, r.Name),
		}
		if err := d.send(ctx, msg); err != nil {
			errs = append(errs, fmt.Errorf("notify %s: %w", r.Email, err))
		}
	}

	d.logger.Info("Submission notification dispatched",
		zap.String("record_id", record.ID),
		zap.String("urgency", string(n.Urgency)),
		zap.Int("recipients", len(d.recipients)),
		zap.Int("failures", len(errs)),
	)

	return errors.Join(errs...)
}

// SendDigest emails HR a summary of the given pending records
func (d *Dispatcher) SendDigest(ctx context.Context, pending []compliance.ComplianceRecord) (Summary, error) {
	notifications := make([]Notification, 0, len(pending))
	for _, r := range pending {
		notifications = append(notifications, Classify(IssueFromRecord(r)))
	}
	summary := Summarize(notifications)

	if d.broadcaster != nil {
		d.broadcaster.Broadcast(EventDigest, summary)
	}

	if summary.Total == 0 {
		d.logger.Debug("No pending records, digest email skipped")
		return summary, nil
	}

	var errs []error
	for _, r := range d.recipients {
		msg := Message{
			ToName:    r.Name,
			ToAddress: r.Email,
			Subject:   fmt.Sprintf("[InsurAI] Pending compliance digest (%d)", summary.Total),
			Body:      Digest(r.Name, summary, pending),
		}
		if err := d.send(ctx, msg); err != nil {
			errs = append(errs, fmt.Errorf("digest %s: %w", r.Email, err))
		}
	}

	return summary, errors.Join(errs...)
}

func (d *Dispatcher) send(ctx context.Context, msg Message) error {
	if err := d.limiter.Wait(ctx); err != nil {
		d.record("rate_limited")
		return fmt.Errorf("email rate limit: %w", err)
	}

	sendCtx := ctx
	if d.timeout > 0 {
		var cancel context.CancelFunc
		sendCtx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}

	if err := d.mailer.Send(sendCtx, msg); err != nil {
		d.record("failure")
		d.logger.Error("Failed to send email",
			zap.String("to", msg.ToAddress),
			zap.Error(err),
		)
		return err
	}

	d.record("success")
	return nil
}

func (d *Dispatcher) record(result string) {
	if d.recorder != nil {
		d.recorder.RecordEmail(result)
	}
}
