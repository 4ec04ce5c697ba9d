package domain

// StatsOverview holds catalog-wide aggregate numbers.
type StatsOverview struct {
	Count            int64   `json:"count"`
	TotalEnrollments int64   `json:"total_enrollments"`
	AvgRating        float64 `json:"avg_rating"`
	AvgDurationHours float64 `json:"avg_duration_hours"`
	AvgPrice         float64 `json:"avg_price"`
}

// CategoryStats holds aggregate numbers for a single category.
type CategoryStats struct {
	Category         string  `json:"category"`
	Count            int64   `json:"count"`
	TotalEnrollments int64   `json:"total_enrollments"`
	AvgRating        float64 `json:"avg_rating"`
}

// CatalogStats is the full aggregate-statistics payload.
type CatalogStats struct {
	Overview    StatsOverview   `json:"overview"`
	PerCategory []CategoryStats `json:"per_category"`
}
