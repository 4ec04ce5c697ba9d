package domain

import (
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"
)

// Course status constants. Only published courses are index-visible and
// cache-eligible.
const (
	StatusDraft     = "draft"
	StatusPublished = "published"
	StatusArchived  = "archived"
)

// Course level constants.
const (
	LevelBeginner     = "beginner"
	LevelIntermediate = "intermediate"
	LevelAdvanced     = "advanced"
)

// Course category constants. The set is closed; unrecognized input is
// coerced to CategoryOther rather than rejected.
const (
	CategoryProgramming         = "programming"
	CategoryDesign              = "design"
	CategoryBusiness            = "business"
	CategoryMarketing           = "marketing"
	CategoryDataScience         = "data-science"
	CategoryPersonalDevelopment = "personal-development"
	CategoryOther               = "other"
)

// Course represents a course record in the catalog.
type Course struct {
	ID              string    `json:"id"`
	Title           string    `json:"title"`
	Description     string    `json:"description"`
	Category        string    `json:"category"`
	Instructor      string    `json:"instructor"`
	DurationHours   int       `json:"duration_hours"`
	Level           string    `json:"level"`
	Price           int64     `json:"price"`
	EnrollmentCount int64     `json:"enrollment_count"`
	Rating          float64   `json:"rating"`
	Tags            []string  `json:"tags"`
	Prerequisites   []string  `json:"prerequisites"`
	Outcomes        []string  `json:"outcomes"`
	Status          string    `json:"status"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// ValidCategories returns the closed set of course categories.
func ValidCategories() []string {
	return []string{
		CategoryProgramming, CategoryDesign, CategoryBusiness, CategoryMarketing,
		CategoryDataScience, CategoryPersonalDevelopment, CategoryOther,
	}
}

// ValidLevels returns the set of valid course levels.
func ValidLevels() []string {
	return []string{LevelBeginner, LevelIntermediate, LevelAdvanced}
}

// ValidStatuses returns the set of valid course statuses.
func ValidStatuses() []string {
	return []string{StatusDraft, StatusPublished, StatusArchived}
}

// IsValidStatus checks whether the given status string is a valid course status.
func IsValidStatus(status string) bool {
	for _, s := range ValidStatuses() {
		if s == status {
			return true
		}
	}
	return false
}

// NormalizeCategory coerces arbitrary input into the closed category set.
// Unrecognized values become CategoryOther; this silent default is the
// documented ingestion policy, not a validation failure.
func NormalizeCategory(raw string) string {
	c := strings.ToLower(strings.TrimSpace(raw))
	c = strings.ReplaceAll(c, " ", "-")
	c = strings.ReplaceAll(c, "_", "-")
	for _, valid := range ValidCategories() {
		if c == valid {
			return valid
		}
	}
	return CategoryOther
}

// NormalizeLevel coerces arbitrary input into the level set, defaulting to
// LevelBeginner.
func NormalizeLevel(raw string) string {
	l := strings.ToLower(strings.TrimSpace(raw))
	for _, valid := range ValidLevels() {
		if l == valid {
			return valid
		}
	}
	return LevelBeginner
}

// NormalizeStatus coerces arbitrary input into the status set, defaulting to
// the given fallback.
func NormalizeStatus(raw, fallback string) string {
	s := strings.ToLower(strings.TrimSpace(raw))
	if IsValidStatus(s) {
		return s
	}
	return fallback
}

// NormalizeID lowercases and trims a course identifier so that lookups and
// uniqueness checks are case-insensitive.
func NormalizeID(raw string) string {
	return strings.ToLower(strings.TrimSpace(raw))
}

// slugRegexp matches characters not allowed in a derived identifier.
var slugRegexp = regexp.MustCompile(`[^a-z0-9]+`)

// DeriveID builds a course identifier from the title and a timestamp, used
// when the caller supplies no identifier of its own.
func DeriveID(title string, at time.Time) string {
	slug := strings.ToLower(strings.TrimSpace(title))
	slug = slugRegexp.ReplaceAllString(slug, "-")
	slug = strings.Trim(slug, "-")
	return fmt.Sprintf("%s-%d", slug, at.Unix())
}

// Validate checks the field-range invariants of a course record. Length
// bounds count characters, not bytes.
func (c *Course) Validate() error {
	if l := utf8.RuneCountInString(strings.TrimSpace(c.Title)); l < 3 || l > 200 {
		return fmt.Errorf("title must be between 3 and 200 characters")
	}
	if l := utf8.RuneCountInString(strings.TrimSpace(c.Description)); l < 10 || l > 2000 {
		return fmt.Errorf("description must be between 10 and 2000 characters")
	}
	if l := utf8.RuneCountInString(strings.TrimSpace(c.Instructor)); l < 2 || l > 100 {
		return fmt.Errorf("instructor must be between 2 and 100 characters")
	}
	if c.DurationHours < 1 || c.DurationHours > 1000 {
		return fmt.Errorf("duration_hours must be between 1 and 1000")
	}
	if c.Price < 0 {
		return fmt.Errorf("price must not be negative")
	}
	if c.EnrollmentCount < 0 {
		return fmt.Errorf("enrollment_count must not be negative")
	}
	if c.Rating < 0 || c.Rating > 5 {
		return fmt.Errorf("rating must be between 0 and 5")
	}
	if !IsValidStatus(c.Status) {
		return fmt.Errorf("status must be one of: %s", strings.Join(ValidStatuses(), ", "))
	}
	return nil
}

// SplitList splits a delimiter-joined list field ("go|testing| web ") into a
// normalized sequence, dropping empty entries and preserving order.
func SplitList(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return []string{}
	}

	parts := strings.Split(raw, "|")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
