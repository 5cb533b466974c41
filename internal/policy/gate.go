// Package policy decides when users must be re-prompted for consent:
// on first contact, after a policy version change, and when granted
// consents approach or pass their expiry.
package policy

import (
	"time"

	"assent/internal/ledger/models"
)

// DefaultLookaheadDays is how far ahead of expiry a consent counts as
// expiring and becomes eligible for renewal reminders.
const DefaultLookaheadDays = 30

// PromptReason explains why the consent prompt must be shown again.
type PromptReason string

const (
	PromptReasonNone          PromptReason = ""
	PromptReasonNeverPrompted PromptReason = "never_prompted"
	PromptReasonPolicyChanged PromptReason = "policy_changed"
	PromptReasonNoDecision    PromptReason = "no_decision"
	PromptReasonForced        PromptReason = "forced"
)

// ExpiringConsent describes one granted category inside the renewal window.
type ExpiringConsent struct {
	Category      models.Category `json:"category"`
	Expiry        time.Time       `json:"expiry"`
	DaysRemaining int             `json:"daysRemaining"`
}

// RenewalReport summarizes expiry exposure across a user's granted consents.
type RenewalReport struct {
	Expired  []models.Category `json:"expired"`
	Expiring []ExpiringConsent `json:"expiring"`
}

// NeedsRenewal reports whether any category is expired or expiring.
func (r RenewalReport) NeedsRenewal() bool {
	return len(r.Expired) > 0 || len(r.Expiring) > 0
}

// Gate evaluates prompt and renewal rules against the active policy
// version. It holds no mutable state and is safe for concurrent use.
type Gate struct {
	policyVersion string
	lookahead     time.Duration
}

// GateOption configures a Gate.
type GateOption func(*Gate)

// WithLookaheadDays sets the renewal lookahead window.
func WithLookaheadDays(days int) GateOption {
	return func(g *Gate) {
		if days > 0 {
			g.lookahead = time.Duration(days) * 24 * time.Hour
		}
	}
}

// NewGate creates a gate for the given policy version.
func NewGate(policyVersion string, opts ...GateOption) *Gate {
	g := &Gate{
		policyVersion: policyVersion,
		lookahead:     DefaultLookaheadDays * 24 * time.Hour,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// PolicyVersion returns the version the gate enforces.
func (g *Gate) PolicyVersion() string {
	return g.policyVersion
}

// ShouldPrompt decides whether the consent prompt must be shown. A stored
// acceptance of an older policy version does not carry forward; the user
// decides again under the new version.
func (g *Gate) ShouldPrompt(state *models.State, force bool) (bool, PromptReason) {
	if force {
		return true, PromptReasonForced
	}
	if state == nil || !state.HasPrompted {
		return true, PromptReasonNeverPrompted
	}
	if state.PolicyVersion != g.policyVersion {
		return true, PromptReasonPolicyChanged
	}
	if state.LastUpdated == nil {
		return true, PromptReasonNoDecision
	}
	return false, PromptReasonNone
}

// CheckRenewal inspects the latest grant per category and buckets each one
// as expired or expiring. Categories without a standing grant are skipped;
// absence of consent is not an expiry condition.
func (g *Gate) CheckRenewal(state *models.State, now time.Time) RenewalReport {
	var report RenewalReport
	if state == nil {
		return report
	}
	for _, c := range models.AllCategories {
		if c.IsEssential() {
			continue
		}
		grant := state.LatestGrant(c)
		if grant == nil || grant.Expiry == nil {
			continue
		}
		latest := state.LatestRecord(c)
		if latest == nil || !latest.Granted {
			continue
		}
		switch {
		case !now.Before(*grant.Expiry):
			report.Expired = append(report.Expired, c)
		case grant.Expiry.Sub(now) <= g.lookahead:
			report.Expiring = append(report.Expiring, ExpiringConsent{
				Category:      c,
				Expiry:        *grant.Expiry,
				DaysRemaining: int(grant.Expiry.Sub(now) / (24 * time.Hour)),
			})
		}
	}
	return report
}
