package excel

import (
	"encoding/csv"
	stderrors "errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"labstats/internal"
	"labstats/internal/errors"
)

// ErrSheetNotFound is wrapped by ReadSheet when the workbook exists but lacks the sheet
var ErrSheetNotFound = stderrors.New("sheet not found")

// DataReader reads named sheets from an .xlsx workbook, or from a directory of
// CSV files where each sheet is <dir>/<sheet>.csv
type DataReader struct {
	filePath string
	fileType string // "xlsx" or "csv"
	logger   *internal.Logger
}

// NewDataReader creates a new data reader that handles both Excel and CSV sources
func NewDataReader(filePath string, logger *internal.Logger) *DataReader {
	fileType := "xlsx"
	if info, err := os.Stat(filePath); err == nil && info.IsDir() {
		fileType = "csv"
	} else if strings.ToLower(filepath.Ext(filePath)) == ".csv" {
		// a single CSV stands for the directory it lives in
		filePath = filepath.Dir(filePath)
		fileType = "csv"
	}
	if logger == nil {
		logger = internal.DefaultLogger
	}
	return &DataReader{filePath: filePath, fileType: fileType, logger: logger}
}

// ReadSheet reads one sheet into structured format
func (r *DataReader) ReadSheet(sheet string) (*SheetData, error) {
	if _, err := os.Stat(r.filePath); os.IsNotExist(err) {
		return nil, errors.WorkbookError(r.filePath, fmt.Errorf("%s source not found", strings.ToUpper(r.fileType)))
	}

	switch r.fileType {
	case "csv":
		return r.readCSVSheet(sheet)
	default:
		return r.readExcelSheet(sheet)
	}
}

func (r *DataReader) readExcelSheet(sheet string) (*SheetData, error) {
	startTime := time.Now()
	f, err := excelize.OpenFile(r.filePath)
	if err != nil {
		return nil, errors.WorkbookError(r.filePath, err)
	}
	defer f.Close()

	name, ok := findSheet(f.GetSheetList(), sheet)
	if !ok {
		return nil, errors.WorkbookError(r.filePath, fmt.Errorf("%w: %q (have %s)", ErrSheetNotFound, sheet, strings.Join(f.GetSheetList(), ", ")))
	}
	rows, err := f.GetRows(name)
	if err != nil {
		return nil, errors.WorkbookError(r.filePath, fmt.Errorf("failed to read sheet %s: %w", name, err))
	}
	r.logger.Debug("[DataReader] sheet %s read in %.2fms (%d rows)", name, float64(time.Since(startTime).Nanoseconds())/1e6, len(rows))

	return r.processRows(sheet, rows)
}

func (r *DataReader) readCSVSheet(sheet string) (*SheetData, error) {
	path := filepath.Join(r.filePath, sheet+".csv")
	file, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil, errors.WorkbookError(path, fmt.Errorf("%w: %q", ErrSheetNotFound, sheet))
	}
	if err != nil {
		return nil, errors.WorkbookError(path, err)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true
	rows, err := reader.ReadAll()
	if err != nil {
		return nil, errors.WorkbookError(path, fmt.Errorf("failed to read CSV file: %w", err))
	}
	r.logger.Debug("[DataReader] CSV file %s read (%d rows)", path, len(rows))

	return r.processRows(sheet, rows)
}

// processRows converts raw string rows into SheetData, skipping blank rows
func (r *DataReader) processRows(sheet string, rows [][]string) (*SheetData, error) {
	if len(rows) < 1 {
		return nil, errors.WorkbookError(r.filePath, fmt.Errorf("sheet %s has no header row", sheet))
	}

	headerRow := rows[0]
	headers := make([]string, len(headerRow))
	for i, header := range headerRow {
		headers[i] = strings.ToLower(strings.TrimSpace(header))
	}

	data := &SheetData{Name: sheet, Headers: headers}
	for i := 1; i < len(rows); i++ {
		row := rows[i]
		rowData := make(RawRowData)
		blank := true
		for j, cell := range row {
			if j < len(headers) && headers[j] != "" {
				v := strings.TrimSpace(cell)
				rowData[headers[j]] = v
				if v != "" {
					blank = false
				}
			}
		}
		if blank {
			continue
		}
		data.Rows = append(data.Rows, rowData)
		data.Lines = append(data.Lines, i+1)
	}

	r.logger.Debug("[DataReader] %s sheet %s processed (%d columns, %d rows)",
		strings.ToUpper(r.fileType), sheet, len(headers), len(data.Rows))
	return data, nil
}

// findSheet matches a sheet name case-insensitively
func findSheet(sheets []string, want string) (string, bool) {
	for _, s := range sheets {
		if strings.EqualFold(strings.TrimSpace(s), want) {
			return s, true
		}
	}
	return "", false
}
