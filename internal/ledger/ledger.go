// Package ledger implements the consent & compliance ledger: the append-only
// record trail of a user's data-processing consents, the derived preference
// view, and the expiry logic that decides when consent must be re-solicited.
package ledger

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"assent/internal/identity"
	"assent/internal/ledger/metrics"
	"assent/internal/ledger/models"
	"assent/internal/ledger/store"
	"assent/internal/platform/tracer"
	dErrors "assent/pkg/domain-errors"
)

// Auditor receives ledger mutations for audit emission. Implementations must
// be fire-and-forget: nothing here may fail into or block the ledger.
// Satisfied by audit.Emitter.
type Auditor interface {
	ConsentGranted(ctx context.Context, userID string, rec models.Record)
	ConsentRevoked(ctx context.Context, userID string, rec models.Record)
	DataExported(ctx context.Context, userID string)
}

const defaultTTLMonths = 12

// Option configures the Ledger.
type Option func(*Ledger)

// Ledger owns per-user consent state. In-memory state is authoritative;
// the repository is a best-effort durability layer whose failures degrade to
// memory-only operation, never to a blocked consent decision.
type Ledger struct {
	repo          store.Repository
	auditor       Auditor
	logger        *slog.Logger
	metrics       *metrics.Metrics
	tracer        tracer.Tracer
	now           func() time.Time
	policyVersion string
	ttlMonths     int

	mu     sync.Mutex
	states map[string]*models.State
}

// New constructs a Ledger. policyVersion is the currently published policy
// the ledger stamps onto new records.
func New(repo store.Repository, policyVersion string, opts ...Option) *Ledger {
	l := &Ledger{
		repo:          repo,
		policyVersion: policyVersion,
		now:           time.Now,
		ttlMonths:     defaultTTLMonths,
		tracer:        tracer.NewNoop(),
		states:        make(map[string]*models.State),
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.ttlMonths <= 0 {
		l.ttlMonths = defaultTTLMonths
	}
	return l
}

// WithAuditor sets the audit emitter.
func WithAuditor(a Auditor) Option {
	return func(l *Ledger) {
		l.auditor = a
	}
}

// WithLogger sets the logger instance.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Ledger) {
		l.logger = logger
	}
}

// WithMetrics sets the metrics instance.
func WithMetrics(m *metrics.Metrics) Option {
	return func(l *Ledger) {
		l.metrics = m
	}
}

// WithTracer sets the tracer.
func WithTracer(t tracer.Tracer) Option {
	return func(l *Ledger) {
		if t != nil {
			l.tracer = t
		}
	}
}

// WithClock overrides the time source for tests.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) {
		if now != nil {
			l.now = now
		}
	}
}

// WithConsentTTLMonths configures how many calendar months a grant stays
// valid. Calendar-month arithmetic is deliberate: "12 months" follows
// time.AddDate semantics rather than a fixed duration.
func WithConsentTTLMonths(months int) Option {
	return func(l *Ledger) {
		if months > 0 {
			l.ttlMonths = months
		}
	}
}

// Grant records consent for one category. Granting essential is a no-op:
// it is already and always granted.
func (l *Ledger) Grant(ctx context.Context, id identity.Identity, category models.Category, source models.Source) (*models.Record, error) {
	ctx, span := l.tracer.Start(ctx, tracer.SpanLedgerGrant,
		tracer.String(tracer.AttrCategory, string(category)),
		tracer.String(tracer.AttrSource, string(source)),
	)
	var err error
	defer func() { span.End(err) }()

	if err = l.validate(id, category, source); err != nil {
		return nil, err
	}
	if category.IsEssential() {
		return nil, nil
	}

	l.mu.Lock()
	st := l.state(ctx, id.UserID)
	now := l.now()
	expiry := now.AddDate(0, l.ttlMonths, 0)
	rec := l.newRecord(id, category, true, now, source, &expiry)
	st.Records = append(st.Records, rec)
	st.Preferences[category] = true
	st.LastUpdated = &now
	st.PolicyVersion = l.policyVersion
	l.persist(ctx, id.UserID, st)
	// Emitted under the lock so outbox order matches commit order.
	if l.auditor != nil {
		l.auditor.ConsentGranted(ctx, id.UserID, rec)
	}
	l.mu.Unlock()

	if l.metrics != nil {
		l.metrics.IncGranted(string(category))
	}
	return &rec, nil
}

// Revoke records withdrawal of consent for one category. Revoking essential
// is rejected silently with a warning: the path is reachable from normal UI
// interactions and must not break the session.
func (l *Ledger) Revoke(ctx context.Context, id identity.Identity, category models.Category, source models.Source) (*models.Record, error) {
	ctx, span := l.tracer.Start(ctx, tracer.SpanLedgerRevoke,
		tracer.String(tracer.AttrCategory, string(category)),
	)
	var err error
	defer func() { span.End(err) }()

	if err = l.validate(id, category, source); err != nil {
		return nil, err
	}
	if category.IsEssential() {
		if l.logger != nil {
			l.logger.WarnContext(ctx, "attempt to revoke essential consent ignored",
				"user_id", id.UserID,
				"source", source,
			)
		}
		return nil, nil
	}

	l.mu.Lock()
	st := l.state(ctx, id.UserID)
	now := l.now()
	rec := l.newRecord(id, category, false, now, source, nil)
	st.Records = append(st.Records, rec)
	st.Preferences[category] = false
	st.LastUpdated = &now
	st.PolicyVersion = l.policyVersion
	l.persist(ctx, id.UserID, st)
	if l.auditor != nil {
		l.auditor.ConsentRevoked(ctx, id.UserID, rec)
	}
	l.mu.Unlock()

	if l.metrics != nil {
		l.metrics.IncRevoked(string(category))
	}
	return &rec, nil
}

// UpdatePreferences applies a partial preference set, synthesizing exactly
// one record per changed category. Unchanged categories produce no record;
// the essential flag in the input is ignored. All records from one call
// share the same timestamp and source. This is the single gateway the bulk
// helpers funnel through.
func (l *Ledger) UpdatePreferences(ctx context.Context, id identity.Identity, partial map[models.Category]bool, source models.Source) ([]models.Record, error) {
	ctx, span := l.tracer.Start(ctx, tracer.SpanLedgerUpdate,
		tracer.String(tracer.AttrSource, string(source)),
	)
	var err error
	defer func() { span.End(err) }()

	if id.UserID == "" {
		err = dErrors.New(dErrors.CodeUnauthorized, "missing user context")
		return nil, err
	}
	if !source.IsValid() {
		err = dErrors.New(dErrors.CodeBadRequest, "invalid consent source")
		return nil, err
	}
	for c := range partial {
		if !c.IsValid() {
			err = dErrors.New(dErrors.CodeBadRequest, "unknown consent category: "+string(c))
			return nil, err
		}
	}

	l.mu.Lock()
	st := l.state(ctx, id.UserID)
	st.Preferences.ForceEssential()

	now := l.now()
	var changed []models.Record
	// Stable iteration order so colliding timestamps stay deterministic.
	for _, c := range models.AllCategories {
		want, present := partial[c]
		if !present || c.IsEssential() {
			continue
		}
		// Diff against the effective state, not the raw preference flag: a
		// lapsed grant leaves Preferences[c] true but is no longer consent,
		// so re-accepting after expiry must synthesize a fresh record.
		have := st.Preferences[c]
		if have {
			latest := st.LatestRecord(c)
			have = latest != nil && latest.IsValidGrant(now)
		}
		if have == want {
			// No record, but keep the flag honest when a lapsed grant is
			// being switched off.
			st.Preferences[c] = want
			continue
		}
		var expiry *time.Time
		if want {
			e := now.AddDate(0, l.ttlMonths, 0)
			expiry = &e
		}
		rec := l.newRecord(id, c, want, now, source, expiry)
		st.Records = append(st.Records, rec)
		st.Preferences[c] = want
		changed = append(changed, rec)
	}

	if len(changed) > 0 {
		st.LastUpdated = &now
		st.PolicyVersion = l.policyVersion
	}
	st.HasPrompted = true
	st.Preferences.ForceEssential()
	l.persist(ctx, id.UserID, st)
	if l.auditor != nil {
		for _, rec := range changed {
			if rec.Granted {
				l.auditor.ConsentGranted(ctx, id.UserID, rec)
			} else {
				l.auditor.ConsentRevoked(ctx, id.UserID, rec)
			}
		}
	}
	l.mu.Unlock()

	for _, rec := range changed {
		if l.metrics != nil {
			if rec.Granted {
				l.metrics.IncGranted(string(rec.Category))
			} else {
				l.metrics.IncRevoked(string(rec.Category))
			}
		}
	}
	span.SetAttributes(tracer.Int64(tracer.AttrRecordCount, int64(len(changed))))
	return changed, nil
}

// AcceptAll grants every category and closes any open prompt.
func (l *Ledger) AcceptAll(ctx context.Context, id identity.Identity, source models.Source) ([]models.Record, error) {
	partial := make(map[models.Category]bool, len(models.AllCategories))
	for _, c := range models.AllCategories {
		partial[c] = true
	}
	return l.UpdatePreferences(ctx, id, partial, source)
}

// RejectNonEssential revokes every category except essential.
func (l *Ledger) RejectNonEssential(ctx context.Context, id identity.Identity, source models.Source) ([]models.Record, error) {
	partial := make(map[models.Category]bool, len(models.AllCategories))
	for _, c := range models.AllCategories {
		partial[c] = c.IsEssential()
	}
	return l.UpdatePreferences(ctx, id, partial, source)
}

// RevokeAll withdraws every non-essential category that carries any state,
// as one atomic transition: one revocation record per category with a shared
// timestamp, then a preference reset. Records are never wiped; the trail is
// the legal proof the revocation happened.
func (l *Ledger) RevokeAll(ctx context.Context, id identity.Identity, source models.Source) ([]models.Record, error) {
	ctx, span := l.tracer.Start(ctx, tracer.SpanLedgerRevokeAll)
	var err error
	defer func() { span.End(err) }()

	if id.UserID == "" {
		err = dErrors.New(dErrors.CodeUnauthorized, "missing user context")
		return nil, err
	}
	if !source.IsValid() {
		err = dErrors.New(dErrors.CodeBadRequest, "invalid consent source")
		return nil, err
	}

	l.mu.Lock()
	st := l.state(ctx, id.UserID)
	now := l.now()
	var revoked []models.Record
	for _, c := range models.AllCategories {
		if c.IsEssential() || !st.HasHistory(c) {
			continue
		}
		rec := l.newRecord(id, c, false, now, source, nil)
		st.Records = append(st.Records, rec)
		revoked = append(revoked, rec)
	}
	st.Preferences = models.DefaultPreferences()
	if len(revoked) > 0 {
		st.LastUpdated = &now
		st.PolicyVersion = l.policyVersion
	}
	l.persist(ctx, id.UserID, st)
	if l.auditor != nil {
		for _, rec := range revoked {
			l.auditor.ConsentRevoked(ctx, id.UserID, rec)
		}
	}
	l.mu.Unlock()

	for _, rec := range revoked {
		if l.metrics != nil {
			l.metrics.IncRevoked(string(rec.Category))
		}
	}
	if l.metrics != nil {
		l.metrics.IncRevokeAll()
	}
	return revoked, nil
}

// HasValidConsent reports whether the category is currently consented:
// essential always is; otherwise the most recent record must be a
// non-expired grant. Insertion order breaks timestamp ties.
func (l *Ledger) HasValidConsent(ctx context.Context, userID string, category models.Category) bool {
	if category.IsEssential() {
		return true
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	st := l.state(ctx, userID)
	latest := st.LatestRecord(category)
	return latest != nil && latest.IsValidGrant(l.now())
}

// IsConsentExpired reports whether the most recent granted record has lapsed.
// A category with no granted record at all is "not granted", not "expired";
// renewal prompts depend on the distinction.
func (l *Ledger) IsConsentExpired(ctx context.Context, userID string, category models.Category) bool {
	if category.IsEssential() {
		return false
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	st := l.state(ctx, userID)
	grant := st.LatestGrant(category)
	return grant != nil && grant.IsExpired(l.now())
}

// CategoryStatus composes the UI-facing view for one category.
func (l *Ledger) CategoryStatus(ctx context.Context, userID string, category models.Category) (models.CategoryStatus, error) {
	if !category.IsValid() {
		return models.CategoryStatus{}, dErrors.New(dErrors.CodeBadRequest, "unknown consent category: "+string(category))
	}
	l.mu.Lock()
	st := l.state(ctx, userID)
	granted := st.Preferences[category]
	l.mu.Unlock()

	return models.CategoryStatus{
		Category: category,
		Granted:  granted,
		Valid:    l.HasValidConsent(ctx, userID, category),
		Expired:  l.IsConsentExpired(ctx, userID, category),
	}, nil
}

// History returns the record trail in original insertion order, optionally
// filtered. Callers may re-sort their copy.
func (l *Ledger) History(ctx context.Context, userID string, filter *models.HistoryFilter) ([]models.Record, error) {
	if userID == "" {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "missing user context")
	}
	if filter != nil && filter.Category != nil && !filter.Category.IsValid() {
		return nil, dErrors.New(dErrors.CodeBadRequest, "unknown consent category: "+string(*filter.Category))
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	st := l.state(ctx, userID)
	var out []models.Record
	for _, rec := range st.Records {
		if filter.Matches(rec) {
			out = append(out, rec)
		}
	}
	return out, nil
}

// Snapshot returns an independent copy of the user's full ledger state for
// read models (policy gate, visibility controller, export).
func (l *Ledger) Snapshot(ctx context.Context, userID string) (*models.State, error) {
	if userID == "" {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "missing user context")
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state(ctx, userID).Clone(), nil
}

// MarkPrompted records that the consent banner has been shown to the user.
func (l *Ledger) MarkPrompted(ctx context.Context, userID string) error {
	if userID == "" {
		return dErrors.New(dErrors.CodeUnauthorized, "missing user context")
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	st := l.state(ctx, userID)
	if st.HasPrompted {
		return nil
	}
	st.HasPrompted = true
	l.persist(ctx, userID, st)
	return nil
}

// ActiveUserIDs lists users with hydrated in-memory state. The renewal
// checker iterates this set; it re-reads state per user rather than caching
// it across intervals.
func (l *Ledger) ActiveUserIDs() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	ids := make([]string, 0, len(l.states))
	for id := range l.states {
		ids = append(ids, id)
	}
	return ids
}

// PolicyVersion returns the currently published policy version.
func (l *Ledger) PolicyVersion() string {
	return l.policyVersion
}

// state returns the cached state for a user, hydrating from the repository
// on first access. Callers must hold l.mu. Load failures other than
// not-found degrade to a defaulted in-memory state with a warning.
func (l *Ledger) state(ctx context.Context, userID string) *models.State {
	if st, ok := l.states[userID]; ok {
		return st
	}

	st, err := l.repo.Load(ctx, userID)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) && l.logger != nil {
			l.logger.WarnContext(ctx, "loading consent state failed, starting from defaults",
				"user_id", userID,
				"error", err,
			)
		}
		st = models.NewState(l.policyVersion)
	}
	l.states[userID] = st
	return st
}

// persist writes state through to the repository. Failures are logged and
// swallowed: consent decisions must never be blocked by storage errors, so
// the in-memory state stays authoritative.
func (l *Ledger) persist(ctx context.Context, userID string, st *models.State) {
	if err := l.repo.Save(ctx, userID, st); err != nil {
		if l.logger != nil {
			l.logger.WarnContext(ctx, "persisting consent state failed, continuing in memory",
				"user_id", userID,
				"error", err,
			)
		}
		if l.metrics != nil {
			l.metrics.IncPersistFailures()
		}
		return
	}
	if l.metrics != nil {
		l.metrics.ObserveRecordsPerUser(len(st.Records))
	}
}

func (l *Ledger) newRecord(id identity.Identity, category models.Category, granted bool, ts time.Time, source models.Source, expiry *time.Time) models.Record {
	return models.Record{
		ID:            uuid.New().String(),
		Category:      category,
		Granted:       granted,
		Timestamp:     ts,
		PolicyVersion: l.policyVersion,
		Source:        source,
		Expiry:        expiry,
		IPAddress:     id.IPAddress,
		UserAgent:     id.UserAgent,
	}
}

func (l *Ledger) validate(id identity.Identity, category models.Category, source models.Source) error {
	if id.UserID == "" {
		return dErrors.New(dErrors.CodeUnauthorized, "missing user context")
	}
	if !category.IsValid() {
		return dErrors.New(dErrors.CodeBadRequest, "unknown consent category: "+string(category))
	}
	if !source.IsValid() {
		return dErrors.New(dErrors.CodeBadRequest, "invalid consent source")
	}
	return nil
}
