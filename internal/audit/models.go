package audit

import (
	"fmt"
	"time"
)

// Category classifies an audit entry and alone determines how long it must
// be retained. Retention is never supplied per-entry.
type Category string

const (
	CategoryPrivacy     Category = "privacy"
	CategoryCompliance  Category = "compliance"
	CategoryLegal       Category = "legal"
	CategorySecurity    Category = "security"
	CategoryOperational Category = "operational"
)

// Severity grades how urgent an audit entry is for reviewers.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Event types emitted by the ledger and by externally-reported signals.
const (
	EventConsentGranted     = "consent_granted"
	EventConsentRevoked     = "consent_revoked"
	EventConsentExpiring    = "consent_expiring"
	EventPolicyViewed       = "policy_document_viewed"
	EventFormAccessed       = "form_field_accessed"
	EventSensitivePageView  = "sensitive_page_viewed"
	EventAnomalousInput     = "anomalous_input_detected"
	EventLoginAttempt       = "login_attempt"
	EventConsentDataExport  = "consent_data_exported"
	EventConsentDataCleared = "consent_data_cleared"
)

// retentionYears is the fixed category-to-retention table mandated by the
// compliance policy. Unrecognized categories fall back to the operational
// period.
var retentionYears = map[Category]int{
	CategorySecurity:    7,
	CategoryLegal:       10,
	CategoryPrivacy:     5,
	CategoryCompliance:  5,
	CategoryOperational: 2,
}

const defaultRetentionYears = 2

// RetentionFor returns the mandated retention period for a category,
// formatted as "<n>y".
func RetentionFor(c Category) string {
	years, ok := retentionYears[c]
	if !ok {
		years = defaultRetentionYears
	}
	return fmt.Sprintf("%dy", years)
}

// Entry is a structured record of a privacy/security/compliance-relevant
// event. Keep it transport-agnostic so sinks can fan out.
type Entry struct {
	EventType       string         `json:"eventType"`
	Category        Category       `json:"category"`
	Severity        Severity       `json:"severity"`
	Description     string         `json:"description"`
	Details         map[string]any `json:"details,omitempty"`
	ActorID         string         `json:"actorId,omitempty"`
	Timestamp       time.Time      `json:"timestamp"`
	RetentionPeriod string         `json:"retentionPeriod"`
	DataCategories  []string       `json:"dataCategories,omitempty"`
	LegalBasis      string         `json:"legalBasis,omitempty"`
}
