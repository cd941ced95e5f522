package spreadsheet

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/nemaec/nemaec-engine/pkg/apperrors"
)

// DefaultMaxFileBytes is the upload size limit when none is configured.
const DefaultMaxFileBytes int64 = 10 << 20

var supportedExtensions = map[string]bool{
	".xlsx": true,
	".xlsm": true,
	".xltx": true,
	".csv":  true,
}

// SupportedExtensions lists the accepted file extensions.
func SupportedExtensions() []string {
	return []string{".xlsx", ".xlsm", ".xltx", ".csv"}
}

// CheckFile rejects files by name and size before any parsing happens.
// A maxBytes of zero or less applies DefaultMaxFileBytes.
func CheckFile(fileName string, size, maxBytes int64) error {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxFileBytes
	}
	ext := strings.ToLower(filepath.Ext(fileName))
	if !supportedExtensions[ext] {
		return fmt.Errorf("%w: extension %q is not one of %s",
			apperrors.ErrUnsupportedFile, ext, strings.Join(SupportedExtensions(), ", "))
	}
	if size == 0 {
		return fmt.Errorf("%w: file is empty", apperrors.ErrUnsupportedFile)
	}
	if size > maxBytes {
		return fmt.Errorf("%w: file is %d bytes, limit is %d", apperrors.ErrFileTooLarge, size, maxBytes)
	}
	return nil
}

// ReadRows returns the raw cell grid of one worksheet. Workbook cells are read
// unformatted, so numbers and dates arrive as their stored values (dates as
// Excel serials). An empty sheet name selects the first worksheet.
func ReadRows(fileName string, data []byte, sheet string) ([][]string, error) {
	if strings.EqualFold(filepath.Ext(fileName), ".csv") {
		return readCSV(data)
	}
	return readWorkbook(data, sheet)
}

func readWorkbook(data []byte, sheet string) ([][]string, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, &apperrors.MalformedInputError{Reason: "not a readable workbook", Err: err}
	}
	defer f.Close()

	if sheet == "" {
		sheets := f.GetSheetList()
		if len(sheets) == 0 {
			return nil, &apperrors.MalformedInputError{Reason: "workbook has no sheets"}
		}
		sheet = sheets[0]
	}

	rows, err := f.GetRows(sheet, excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, &apperrors.MalformedInputError{Reason: fmt.Sprintf("cannot read sheet %q", sheet), Err: err}
	}
	return rows, nil
}

func readCSV(data []byte) ([][]string, error) {
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))
	r := csv.NewReader(bytes.NewReader(data))
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	rows, err := r.ReadAll()
	if err != nil {
		return nil, &apperrors.MalformedInputError{Reason: "not a readable CSV file", Err: err}
	}
	return rows, nil
}
