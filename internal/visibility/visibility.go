// Package visibility answers client-facing presentation questions: whether
// to show the consent banner, what each category's standing is, and which
// stored browser artifacts the current preferences permit. Its answers are
// advisory; enforcement stays with the ledger.
package visibility

import (
	"context"
	"strings"

	"assent/internal/ledger/models"
	"assent/internal/policy"
)

// StatusSource is the slice of the ledger the controller reads.
type StatusSource interface {
	Snapshot(ctx context.Context, userID string) (*models.State, error)
	CategoryStatus(ctx context.Context, userID string, category models.Category) (models.CategoryStatus, error)
}

// BannerDecision tells the client whether to render the consent banner.
type BannerDecision struct {
	Show          bool                `json:"show"`
	Reason        policy.PromptReason `json:"reason,omitempty"`
	PolicyVersion string              `json:"policyVersion"`
}

// Controller combines the policy gate with ledger state to drive the
// consent UI.
type Controller struct {
	gate   *policy.Gate
	source StatusSource
}

// NewController creates a visibility controller.
func NewController(gate *policy.Gate, source StatusSource) *Controller {
	return &Controller{gate: gate, source: source}
}

// Banner decides whether the consent banner should be rendered for this
// user. A dismissal in the current session suppresses the banner without
// recording a consent decision, so it returns on the next session.
func (c *Controller) Banner(ctx context.Context, userID string, sessionDismissed, force bool) (BannerDecision, error) {
	state, err := c.source.Snapshot(ctx, userID)
	if err != nil {
		return BannerDecision{}, err
	}
	show, reason := c.gate.ShouldPrompt(state, force)
	if show && sessionDismissed && !force {
		show = false
		reason = policy.PromptReasonNone
	}
	return BannerDecision{
		Show:          show,
		Reason:        reason,
		PolicyVersion: c.gate.PolicyVersion(),
	}, nil
}

// Statuses reports the full per-category standing for a user, in the
// canonical category order.
func (c *Controller) Statuses(ctx context.Context, userID string) ([]models.CategoryStatus, error) {
	statuses := make([]models.CategoryStatus, 0, len(models.AllCategories))
	for _, cat := range models.AllCategories {
		st, err := c.source.CategoryStatus(ctx, userID, cat)
		if err != nil {
			return nil, err
		}
		statuses = append(statuses, st)
	}
	return statuses, nil
}

// cookiePatterns maps artifact-name substrings to the category that
// governs them. Matching is a heuristic over naming conventions; unknown
// names fall through to essential so nothing silently gains a pass under
// a permissive category.
var cookiePatterns = []struct {
	substr   string
	category models.Category
}{
	{"_ga", models.CategoryAnalytics},
	{"_gid", models.CategoryAnalytics},
	{"analytics", models.CategoryAnalytics},
	{"stat", models.CategoryAnalytics},
	{"_fbp", models.CategoryMarketing},
	{"ads", models.CategoryMarketing},
	{"marketing", models.CategoryMarketing},
	{"campaign", models.CategoryMarketing},
	{"utm", models.CategoryMarketing},
	{"share", models.CategorySocialMedia},
	{"social", models.CategorySocialMedia},
	{"twitter", models.CategorySocialMedia},
	{"facebook", models.CategorySocialMedia},
	{"pref", models.CategoryFunctional},
	{"lang", models.CategoryFunctional},
	{"theme", models.CategoryFunctional},
	{"currency", models.CategoryFunctional},
}

// ClassifyArtifact maps a cookie or storage-key name to its governing
// consent category.
func ClassifyArtifact(name string) models.Category {
	lower := strings.ToLower(name)
	for _, p := range cookiePatterns {
		if strings.Contains(lower, p.substr) {
			return p.category
		}
	}
	return models.CategoryEssential
}

// AllowedArtifacts filters artifact names down to those whose governing
// category currently holds valid consent.
func (c *Controller) AllowedArtifacts(ctx context.Context, userID string, names []string) ([]string, error) {
	state, err := c.source.Snapshot(ctx, userID)
	if err != nil {
		return nil, err
	}
	allowed := make([]string, 0, len(names))
	for _, name := range names {
		cat := ClassifyArtifact(name)
		if cat.IsEssential() || state.Preferences[cat] {
			allowed = append(allowed, name)
		}
	}
	return allowed, nil
}

// ActiveCategories lists the categories the user currently permits,
// in canonical order.
func (c *Controller) ActiveCategories(ctx context.Context, userID string) ([]models.Category, error) {
	state, err := c.source.Snapshot(ctx, userID)
	if err != nil {
		return nil, err
	}
	active := make([]models.Category, 0, len(models.AllCategories))
	for _, cat := range models.AllCategories {
		if state.Preferences[cat] {
			active = append(active, cat)
		}
	}
	return active, nil
}
