package models

// Category labels a purpose for which personal data is processed. The set is
// closed: unknown categories are rejected at the boundary rather than carried
// as free-form strings.
type Category string

const (
	CategoryEssential         Category = "essential"
	CategoryFunctional        Category = "functional"
	CategoryAnalytics         Category = "analytics"
	CategoryMarketing         Category = "marketing"
	CategorySocialMedia       Category = "social_media"
	CategoryDataProcessing    Category = "data_processing"
	CategoryThirdPartySharing Category = "third_party_sharing"
)

// ValidCategories is the single source of truth for all valid consent categories.
var ValidCategories = map[Category]bool{
	CategoryEssential:         true,
	CategoryFunctional:        true,
	CategoryAnalytics:         true,
	CategoryMarketing:         true,
	CategorySocialMedia:       true,
	CategoryDataProcessing:    true,
	CategoryThirdPartySharing: true,
}

// AllCategories lists every category in a stable order. Used when a mutation
// must touch the full preference set (accept-all, reject-non-essential).
var AllCategories = []Category{
	CategoryEssential,
	CategoryFunctional,
	CategoryAnalytics,
	CategoryMarketing,
	CategorySocialMedia,
	CategoryDataProcessing,
	CategoryThirdPartySharing,
}

// IsValid checks if the category is one of the supported enum values.
func (c Category) IsValid() bool {
	return ValidCategories[c]
}

// IsEssential reports whether this is the always-on category that can never
// be revoked and never expires.
func (c Category) IsEssential() bool {
	return c == CategoryEssential
}

// Source identifies the UI surface a consent decision came from.
type Source string

const (
	SourceBanner       Source = "banner"
	SourceForm         Source = "form"
	SourceSettings     Source = "settings"
	SourceRegistration Source = "registration"
)

// ValidSources is the single source of truth for all valid consent sources.
var ValidSources = map[Source]bool{
	SourceBanner:       true,
	SourceForm:         true,
	SourceSettings:     true,
	SourceRegistration: true,
}

// IsValid checks if the source is one of the supported enum values.
func (s Source) IsValid() bool {
	return ValidSources[s]
}
