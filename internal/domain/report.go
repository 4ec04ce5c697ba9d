package domain

// IngestionReport summarizes a single bulk upload. It is returned once to
// the caller and never persisted. RowErrors holds one human-readable entry
// per rejected row, in row order ("Row 3: ...").
type IngestionReport struct {
	TotalRows    int      `json:"total_rows"`
	ValidRows    int      `json:"valid_rows"`
	SavedRows    int      `json:"saved_rows"`
	SavedCourses []Course `json:"saved_courses"`
	RowErrors    []string `json:"row_errors"`
}

// NewIngestionReport returns a report with initialized slices so JSON
// output never contains nulls.
func NewIngestionReport() *IngestionReport {
	return &IngestionReport{
		SavedCourses: []Course{},
		RowErrors:    []string{},
	}
}
