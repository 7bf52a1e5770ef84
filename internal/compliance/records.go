package compliance

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

// RecordStore is the in-memory registry of compliance records
type RecordStore struct {
	logger   *zap.Logger
	validate *validator.Validate
	now      func() time.Time
	records  []ComplianceRecord
	seq      int
	mu       sync.RWMutex
}

// StoreOption configures a RecordStore
type StoreOption func(*RecordStore)

// WithClock overrides the clock used to stamp submission dates
func WithClock(now func() time.Time) StoreOption {
	return func(s *RecordStore) {
		s.now = now
	}
}

// NewRecordStore creates an empty record store
func NewRecordStore(logger *zap.Logger, opts ...StoreOption) *RecordStore {
	s := &RecordStore{
		logger:   logger,
		validate: validator.New(),
		now:      time.Now,
		records:  make([]ComplianceRecord, 0),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Seed appends pre-existing records as-is and advances the id counter past
// the highest seeded id. Malformed or duplicate ids reject the whole batch.
func (s *RecordStore) Seed(records []ComplianceRecord) error {
	for _, r := range records {
		if !r.IssueType.Valid() || !r.Severity.Valid() || !r.Status.Valid() {
			return fmt.Errorf("seed record %s has invalid classification", r.ID)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	seen := make(map[string]struct{}, len(s.records)+len(records))
	for _, r := range s.records {
		seen[r.ID] = struct{}{}
	}

	highest := s.seq
	for _, r := range records {
		n, err := parseRecordID(r.ID)
		if err != nil {
			return err
		}
		if _, dup := seen[r.ID]; dup {
			return fmt.Errorf("duplicate seed record id %s", r.ID)
		}
		seen[r.ID] = struct{}{}
		if n > highest {
			highest = n
		}
	}

	s.records = append(s.records, records...)
	s.seq = highest

	s.logger.Info("Compliance records seeded", zap.Int("count", len(records)))
	return nil
}

// Add stores a new submission with a fresh id, today's date and pending status
func (s *RecordStore) Add(in NewRecord) (ComplianceRecord, error) {
	if err := s.validate.Struct(in); err != nil {
		return ComplianceRecord{}, fmt.Errorf("invalid compliance record: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.seq++
	record := ComplianceRecord{
		ID:               formatRecordID(s.seq),
		EmployeeName:     in.EmployeeName,
		EmployeeEmail:    in.EmployeeEmail,
		PolicyName:       in.PolicyName,
		IssueType:        in.IssueType,
		IssueTitle:       in.IssueTitle,
		IssueDescription: in.IssueDescription,
		Severity:         in.Severity,
		SubmittedDate:    s.now().UTC().Format(time.DateOnly),
		Status:           StatusPending,
		ComplianceScore:  in.ComplianceScore,
		DocumentName:     in.DocumentName,
	}
	s.records = append(s.records, record)

	s.logger.Info("Compliance record added",
		zap.String("record_id", record.ID),
		zap.String("employee_email", record.EmployeeEmail),
		zap.String("severity", string(record.Severity)),
	)

	return record, nil
}

// ListAll returns a copy of every record in insertion order
func (s *RecordStore) ListAll() []ComplianceRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]ComplianceRecord, len(s.records))
	copy(out, s.records)
	return out
}

// ListByStatus returns the records currently in the given status
func (s *RecordStore) ListByStatus(status Status) []ComplianceRecord {
	return s.filter(func(r ComplianceRecord) bool {
		return r.Status == status
	})
}

// ListByEmployee returns the records submitted by email, ignoring case
func (s *RecordStore) ListByEmployee(email string) []ComplianceRecord {
	return s.filter(func(r ComplianceRecord) bool {
		return strings.EqualFold(r.EmployeeEmail, email)
	})
}

// Search applies a status filter and a case-insensitive text query over
// employee name, issue title and policy name.
func (s *RecordStore) Search(f RecordFilter) []ComplianceRecord {
	query := strings.ToLower(strings.TrimSpace(f.Query))
	return s.filter(func(r ComplianceRecord) bool {
		if f.Status != "" && r.Status != f.Status {
			return false
		}
		if query == "" {
			return true
		}
		return strings.Contains(strings.ToLower(r.EmployeeName), query) ||
			strings.Contains(strings.ToLower(r.IssueTitle), query) ||
			strings.Contains(strings.ToLower(r.PolicyName), query)
	})
}

// Get returns the record with the given id
func (s *RecordStore) Get(id string) (ComplianceRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if i := s.indexOf(id); i >= 0 {
		return s.records[i], true
	}
	return ComplianceRecord{}, false
}

// UpdateStatus sets the status of a record and, when non-empty, its assignee
// and notes. It returns the updated record and the record as it was before
// the change, and reports false leaving the store untouched if id is unknown.
func (s *RecordStore) UpdateStatus(id string, status Status, assignedTo, notes string) (updated, previous ComplianceRecord, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexOf(id)
	if i < 0 {
		return ComplianceRecord{}, ComplianceRecord{}, false
	}

	previous = s.records[i]
	record := previous
	record.Status = status
	if assignedTo != "" {
		record.AssignedTo = assignedTo
	}
	if notes != "" {
		record.Notes = notes
	}
	s.records[i] = record

	s.logger.Info("Compliance record status updated",
		zap.String("record_id", id),
		zap.String("status", string(status)),
	)

	return record, previous, true
}

// Statistics computes dashboard counts over the current records
func (s *RecordStore) Statistics() Statistics {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := Statistics{Total: len(s.records)}
	for _, r := range s.records {
		switch r.Status {
		case StatusPending:
			stats.Pending++
		case StatusInReview:
			stats.InReview++
		case StatusResolved:
			stats.Resolved++
		}
		switch r.Severity {
		case SeverityCritical:
			stats.Critical++
		case SeverityHigh:
			stats.High++
		}
	}
	stats.ActionRequired = stats.Pending + stats.Critical

	return stats
}

func (s *RecordStore) filter(keep func(ComplianceRecord) bool) []ComplianceRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]ComplianceRecord, 0)
	for _, r := range s.records {
		if keep(r) {
			out = append(out, r)
		}
	}
	return out
}

// indexOf must be called with the lock held
func (s *RecordStore) indexOf(id string) int {
	for i, r := range s.records {
		if r.ID == id {
			return i
		}
	}
	return -1
}

const recordIDPrefix = "CR-"

func formatRecordID(seq int) string {
	return fmt.Sprintf("%s%03d", recordIDPrefix, seq)
}

func parseRecordID(id string) (int, error) {
	digits, ok := strings.CutPrefix(id, recordIDPrefix)
	if !ok || digits == "" {
		return 0, fmt.Errorf("invalid record id %q", id)
	}
	n, err := strconv.Atoi(digits)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid record id %q", id)
	}
	return n, nil
}
