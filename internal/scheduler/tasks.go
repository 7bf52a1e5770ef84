package scheduler

import (
	"context"
	"strconv"

	"github.com/insurai/compliance-engine/internal/audit"
	"github.com/insurai/compliance-engine/internal/compliance"
	"github.com/insurai/compliance-engine/internal/notification"
)

// PendingDigestTaskName identifies the pending-record digest
const PendingDigestTaskName = "pending_digest"

// PendingDigestTask emails HR a summary of records still awaiting review
type PendingDigestTask struct {
	store      *compliance.RecordStore
	dispatcher *notification.Dispatcher
	audit      *audit.Logger
}

func NewPendingDigestTask(store *compliance.RecordStore, dispatcher *notification.Dispatcher, auditLogger *audit.Logger) *PendingDigestTask {
	return &PendingDigestTask{
		store:      store,
		dispatcher: dispatcher,
		audit:      auditLogger,
	}
}

func (t *PendingDigestTask) Name() string {
	return PendingDigestTaskName
}

func (t *PendingDigestTask) Execute(ctx context.Context) error {
	pending := t.store.ListByStatus(compliance.StatusPending)

	summary, err := t.dispatcher.SendDigest(ctx, pending)
	if summary.Total > 0 && t.audit != nil {
		t.audit.LogEvent(audit.EventDigestSent, "system", "", "send_digest", map[string]string{
			"pending": strconv.Itoa(summary.Total),
			"message": summary.Message,
		})
	}
	return err
}
