package audit

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"assent/internal/audit/metrics"
	"assent/internal/ledger/models"
)

const defaultDedupWindow = 5 * time.Second

// Emitter converts ledger mutations and externally-reported events into
// audit entries and hands them to the outbox. Emission is fire-and-forget:
// nothing here can fail into the caller or block on the network.
type Emitter struct {
	outbox  *Outbox
	logger  *slog.Logger
	metrics *metrics.Metrics
	now     func() time.Time

	// Consent-action dedup. One emission per underlying ledger record;
	// records older than the window are assumed already emitted. This is a
	// wall-clock heuristic, not an exactly-once contract: clock skew can
	// double-emit or under-emit.
	dedupWindow time.Duration
	mu          sync.Mutex
	seen        map[string]time.Time
}

// EmitterOption configures the Emitter.
type EmitterOption func(*Emitter)

// WithEmitterLogger sets the logger.
func WithEmitterLogger(logger *slog.Logger) EmitterOption {
	return func(e *Emitter) {
		e.logger = logger
	}
}

// WithEmitterMetrics sets the metrics collector.
func WithEmitterMetrics(m *metrics.Metrics) EmitterOption {
	return func(e *Emitter) {
		e.metrics = m
	}
}

// WithClock overrides the time source for tests.
func WithClock(now func() time.Time) EmitterOption {
	return func(e *Emitter) {
		if now != nil {
			e.now = now
		}
	}
}

// WithDedupWindow overrides the consent-action suppression window.
func WithDedupWindow(window time.Duration) EmitterOption {
	return func(e *Emitter) {
		if window > 0 {
			e.dedupWindow = window
		}
	}
}

// NewEmitter creates an emitter writing to the given outbox.
func NewEmitter(outbox *Outbox, opts ...EmitterOption) *Emitter {
	e := &Emitter{
		outbox:      outbox,
		now:         time.Now,
		dedupWindow: defaultDedupWindow,
		seen:        make(map[string]time.Time),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Emit stamps and enqueues an entry. Timestamp defaults to now; the
// retention period is always recomputed from the category, overriding
// whatever the caller set.
func (e *Emitter) Emit(_ context.Context, entry Entry) {
	if entry.Timestamp.IsZero() {
		entry.Timestamp = e.now()
	}
	entry.RetentionPeriod = RetentionFor(entry.Category)
	if entry.Severity == "" {
		entry.Severity = SeverityLow
	}
	e.outbox.Push(entry)
	if e.metrics != nil {
		e.metrics.IncEmitted(string(entry.Category))
	}
}

// ConsentGranted emits a privacy entry for a new grant record. Suppressed
// when the record was already emitted or is older than the dedup window,
// so multiple observers reacting to the same state change do not produce
// duplicate audit noise.
func (e *Emitter) ConsentGranted(ctx context.Context, userID string, rec models.Record) {
	if !e.shouldEmitConsentAction(rec) {
		return
	}
	e.Emit(ctx, Entry{
		EventType:   EventConsentGranted,
		Category:    CategoryPrivacy,
		Severity:    SeverityMedium,
		Description: "consent granted for " + string(rec.Category),
		ActorID:     userID,
		Timestamp:   rec.Timestamp,
		Details: map[string]any{
			"record_id":      rec.ID,
			"category":       string(rec.Category),
			"source":         string(rec.Source),
			"policy_version": rec.PolicyVersion,
		},
		DataCategories: []string{string(rec.Category)},
		LegalBasis:     "consent",
	})
}

// ConsentRevoked emits a privacy entry for a revocation record, with the
// same per-record suppression as ConsentGranted.
func (e *Emitter) ConsentRevoked(ctx context.Context, userID string, rec models.Record) {
	if !e.shouldEmitConsentAction(rec) {
		return
	}
	e.Emit(ctx, Entry{
		EventType:   EventConsentRevoked,
		Category:    CategoryPrivacy,
		Severity:    SeverityMedium,
		Description: "consent revoked for " + string(rec.Category),
		ActorID:     userID,
		Timestamp:   rec.Timestamp,
		Details: map[string]any{
			"record_id":      rec.ID,
			"category":       string(rec.Category),
			"source":         string(rec.Source),
			"policy_version": rec.PolicyVersion,
		},
		DataCategories: []string{string(rec.Category)},
		LegalBasis:     "consent",
	})
}

// PolicyViewed records that a user opened a policy document.
func (e *Emitter) PolicyViewed(ctx context.Context, userID, document, version string) {
	e.Emit(ctx, Entry{
		EventType:   EventPolicyViewed,
		Category:    CategoryCompliance,
		Severity:    SeverityLow,
		Description: "policy document viewed",
		ActorID:     userID,
		Details: map[string]any{
			"document": document,
			"version":  version,
		},
		LegalBasis: "legal_obligation",
	})
}

// ConsentExpiring records that a granted consent is approaching its expiry.
func (e *Emitter) ConsentExpiring(ctx context.Context, userID string, category models.Category, expiry time.Time, daysRemaining int) {
	e.Emit(ctx, Entry{
		EventType:   EventConsentExpiring,
		Category:    CategoryOperational,
		Severity:    SeverityLow,
		Description: "consent nearing expiry for " + string(category),
		ActorID:     userID,
		Details: map[string]any{
			"category":       string(category),
			"expires_at":     expiry.Format(time.RFC3339),
			"days_remaining": daysRemaining,
		},
		DataCategories: []string{string(category)},
		LegalBasis:     "consent",
	})
}

// DataExported records a full consent data export.
func (e *Emitter) DataExported(ctx context.Context, userID string) {
	e.Emit(ctx, Entry{
		EventType:   EventConsentDataExport,
		Category:    CategoryPrivacy,
		Severity:    SeverityMedium,
		Description: "consent data exported",
		ActorID:     userID,
		LegalBasis:  "consent",
	})
}

func (e *Emitter) shouldEmitConsentAction(rec models.Record) bool {
	now := e.now()

	e.mu.Lock()
	defer e.mu.Unlock()

	// Stale record: another observer already emitted for it.
	if now.Sub(rec.Timestamp) > e.dedupWindow {
		if e.metrics != nil {
			e.metrics.IncDropped("stale_record")
		}
		return false
	}
	if _, done := e.seen[rec.ID]; done {
		if e.metrics != nil {
			e.metrics.IncDropped("duplicate")
		}
		return false
	}
	e.seen[rec.ID] = now

	// Prune entries outside the window; the set stays small.
	for id, at := range e.seen {
		if now.Sub(at) > e.dedupWindow {
			delete(e.seen, id)
		}
	}
	return true
}
