package httptransport

import (
	"time"

	"assent/internal/ledger/models"
	"assent/internal/signals"
	dErrors "assent/pkg/domain-errors"
)

// ConsentActionRequest toggles a single category.
type ConsentActionRequest struct {
	Category models.Category `json:"category"`
	Granted  bool            `json:"granted"`
	Source   models.Source   `json:"source"`
}

// Normalize defaults the source for clients that omit it.
func (r *ConsentActionRequest) Normalize() {
	if r.Source == "" {
		r.Source = models.SourceSettings
	}
}

// Validate rejects unknown categories and sources at the boundary.
func (r *ConsentActionRequest) Validate() error {
	if !r.Category.IsValid() {
		return dErrors.New(dErrors.CodeBadRequest, "unknown consent category: "+string(r.Category))
	}
	if !r.Source.IsValid() {
		return dErrors.New(dErrors.CodeBadRequest, "invalid consent source")
	}
	return nil
}

// PreferencesRequest replaces the full preference set.
type PreferencesRequest struct {
	Preferences map[models.Category]bool `json:"preferences"`
	Source      models.Source            `json:"source"`
}

func (r *PreferencesRequest) Normalize() {
	if r.Source == "" {
		r.Source = models.SourceForm
	}
}

func (r *PreferencesRequest) Validate() error {
	if len(r.Preferences) == 0 {
		return dErrors.New(dErrors.CodeBadRequest, "preferences cannot be empty")
	}
	if !r.Source.IsValid() {
		return dErrors.New(dErrors.CodeBadRequest, "invalid consent source")
	}
	return nil
}

// BulkActionRequest covers accept-all, reject-non-essential, and revoke-all.
type BulkActionRequest struct {
	Source models.Source `json:"source"`
}

func (r *BulkActionRequest) Normalize() {
	if r.Source == "" {
		r.Source = models.SourceBanner
	}
}

func (r *BulkActionRequest) Validate() error {
	if !r.Source.IsValid() {
		return dErrors.New(dErrors.CodeBadRequest, "invalid consent source")
	}
	return nil
}

// PolicyViewRequest records that the user opened a policy document.
type PolicyViewRequest struct {
	Document string `json:"document"`
	Version  string `json:"version"`
}

func (r *PolicyViewRequest) Validate() error {
	if r.Document == "" {
		return dErrors.New(dErrors.CodeBadRequest, "document cannot be empty")
	}
	return nil
}

// SignalRequest is the host-reported security signal intake body.
type SignalRequest struct {
	Kind    signals.Kind   `json:"kind"`
	Route   string         `json:"route,omitempty"`
	Details map[string]any `json:"details,omitempty"`
}

func (r *SignalRequest) Validate() error {
	if !r.Kind.IsValid() {
		return dErrors.New(dErrors.CodeBadRequest, "unknown signal kind: "+string(r.Kind))
	}
	return nil
}

// RecordResponse is the JSON projection of a single change.
type RecordResponse struct {
	Record *models.Record `json:"record,omitempty"`
}

// RecordsResponse is the projection of a bulk change.
type RecordsResponse struct {
	Records []models.Record `json:"records"`
}

// HistoryResponse is a page of the consent trail.
type HistoryResponse struct {
	Records  []models.Record `json:"records"`
	Page     int             `json:"page"`
	PageSize int             `json:"pageSize"`
	Total    int             `json:"total"`
}

// StatusResponse reports per-category standing plus prompt metadata.
type StatusResponse struct {
	PolicyVersion string                   `json:"policyVersion"`
	HasPrompted   bool                     `json:"hasShownBanner"`
	LastUpdated   *time.Time               `json:"lastUpdated,omitempty"`
	Statuses      []models.CategoryStatus  `json:"statuses"`
	Preferences   map[models.Category]bool `json:"preferences"`
}

// ExportHandleResponse carries the single-use download reference.
type ExportHandleResponse struct {
	ID        string    `json:"id"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// CookiesResponse is the cookie-inspector projection.
type CookiesResponse struct {
	ActiveCategories []models.Category `json:"activeCategories"`
	Allowed          []string          `json:"allowed,omitempty"`
}
