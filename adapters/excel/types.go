package excel

// RawRowData represents a row of raw sheet data keyed by lower-cased header
type RawRowData map[string]string

// SheetData represents one sheet (or CSV file) of a workbook
type SheetData struct {
	Name    string       // sheet name
	Headers []string     // column headers, trimmed and lower-cased
	Rows    []RawRowData // data rows, blank rows skipped
	Lines   []int        // 1-based source line of each row, for error messages
}

// HasColumn reports whether the sheet has the given (lower-case) header
func (s *SheetData) HasColumn(name string) bool {
	for _, h := range s.Headers {
		if h == name {
			return true
		}
	}
	return false
}

// Sheet names of an observation workbook
const (
	SheetInfection    = "infection"
	SheetMeasurements = "measurements"
	SheetSurvival     = "survival"
)
