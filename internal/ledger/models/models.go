package models

import (
	"time"

	dErrors "assent/pkg/domain-errors"
)

// Preferences maps every category to its currently-granted flag. The zero
// value is not usable; construct with DefaultPreferences so the essential
// invariant holds from the start.
type Preferences map[Category]bool

// DefaultPreferences returns the initial preference set: essential on,
// everything else off.
func DefaultPreferences() Preferences {
	p := make(Preferences, len(AllCategories))
	for _, c := range AllCategories {
		p[c] = c.IsEssential()
	}
	return p
}

// ForceEssential restores the essential invariant. Any attempt to clear the
// essential flag is silently undone; callers apply this before and after
// every preference diff.
func (p Preferences) ForceEssential() {
	p[CategoryEssential] = true
}

// Clone returns an independent copy so callers cannot mutate ledger state
// through a returned map.
func (p Preferences) Clone() Preferences {
	out := make(Preferences, len(p))
	for c, granted := range p {
		out[c] = granted
	}
	return out
}

// Record captures one granted/revoked decision. Records are immutable once
// created and form an append-only trail: normal operation never mutates or
// deletes them, and insertion order is the authoritative chronology even when
// timestamps collide within a single bulk mutation.
type Record struct {
	ID            string     `json:"id"`
	Category      Category   `json:"category"`
	Granted       bool       `json:"granted"`
	Timestamp     time.Time  `json:"timestamp"`
	PolicyVersion string     `json:"policyVersion"`
	Source        Source     `json:"source"`
	Expiry        *time.Time `json:"expiry,omitempty"`
	IPAddress     string     `json:"ipAddress,omitempty"`
	UserAgent     string     `json:"userAgent,omitempty"`
}

// NewRecord creates a Record with domain invariant checks. Expiry is only
// legal on grants; revocation records never carry one.
func NewRecord(id string, category Category, granted bool, ts time.Time, policyVersion string, source Source, expiry *time.Time) (*Record, error) {
	if id == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "record ID required")
	}
	if !category.IsValid() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "invalid consent category")
	}
	if !source.IsValid() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "invalid consent source")
	}
	if ts.IsZero() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "record timestamp required")
	}
	if !granted && expiry != nil {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "revocation records must not carry an expiry")
	}
	if expiry != nil && expiry.Before(ts) {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "expiry must be after record timestamp")
	}
	return &Record{
		ID:            id,
		Category:      category,
		Granted:       granted,
		Timestamp:     ts,
		PolicyVersion: policyVersion,
		Source:        source,
		Expiry:        expiry,
	}, nil
}

// IsExpired reports whether the record carries an expiry in the past.
func (r Record) IsExpired(now time.Time) bool {
	return r.Expiry != nil && r.Expiry.Before(now)
}

// IsValidGrant reports whether the record represents a currently valid grant.
func (r Record) IsValidGrant(now time.Time) bool {
	return r.Granted && !r.IsExpired(now)
}

// State is the full per-user ledger state. Records accumulate monotonically;
// Preferences is the derived current view.
type State struct {
	Preferences   Preferences `json:"preferences"`
	Records       []Record    `json:"records"`
	PolicyVersion string      `json:"policyVersion"`
	LastUpdated   *time.Time  `json:"lastUpdated,omitempty"`
	HasPrompted   bool        `json:"hasShownBanner"`
}

// NewState returns a defaulted ledger state for a user who has never
// interacted with the consent surface.
func NewState(policyVersion string) *State {
	return &State{
		Preferences:   DefaultPreferences(),
		PolicyVersion: policyVersion,
	}
}

// Normalize repairs a state loaded from storage: fills missing preference
// keys, drops unknown ones, and restores the essential invariant. Unknown
// record categories are preserved untouched since records are an audit trail.
func (s *State) Normalize() {
	repaired := DefaultPreferences()
	for c, granted := range s.Preferences {
		if c.IsValid() {
			repaired[c] = granted
		}
	}
	repaired.ForceEssential()
	s.Preferences = repaired
}

// LatestRecord returns the most recent record for a category, walking the
// trail from the end so insertion order wins over colliding timestamps.
// Returns nil when the category has no history.
func (s *State) LatestRecord(category Category) *Record {
	for i := len(s.Records) - 1; i >= 0; i-- {
		if s.Records[i].Category == category {
			return &s.Records[i]
		}
	}
	return nil
}

// LatestGrant returns the most recent granted record for a category, or nil.
func (s *State) LatestGrant(category Category) *Record {
	for i := len(s.Records) - 1; i >= 0; i-- {
		if s.Records[i].Category == category && s.Records[i].Granted {
			return &s.Records[i]
		}
	}
	return nil
}

// HasHistory reports whether the category carries any state at all: either a
// granted preference or at least one record.
func (s *State) HasHistory(category Category) bool {
	if s.Preferences[category] && !category.IsEssential() {
		return true
	}
	return s.LatestRecord(category) != nil
}

// Clone deep-copies the state so readers never share mutable structures with
// the ledger.
func (s *State) Clone() *State {
	out := &State{
		Preferences:   s.Preferences.Clone(),
		Records:       make([]Record, len(s.Records)),
		PolicyVersion: s.PolicyVersion,
		HasPrompted:   s.HasPrompted,
	}
	copy(out.Records, s.Records)
	if s.LastUpdated != nil {
		t := *s.LastUpdated
		out.LastUpdated = &t
	}
	return out
}

// CategoryStatus is the per-category view the UI queries: the raw preference
// flag plus validity and expiry derived from the record trail.
type CategoryStatus struct {
	Category Category `json:"category"`
	Granted  bool     `json:"granted"`
	Valid    bool     `json:"valid"`
	Expired  bool     `json:"expired"`
}

// HistoryFilter narrows a history query. Zero values mean "no constraint".
type HistoryFilter struct {
	Category *Category
	From     *time.Time
	To       *time.Time
}

// Matches reports whether a record passes the filter.
func (f *HistoryFilter) Matches(r Record) bool {
	if f == nil {
		return true
	}
	if f.Category != nil && r.Category != *f.Category {
		return false
	}
	if f.From != nil && r.Timestamp.Before(*f.From) {
		return false
	}
	if f.To != nil && r.Timestamp.After(*f.To) {
		return false
	}
	return true
}
