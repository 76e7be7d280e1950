package excel

import (
	"bufio"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/example/flashbot/pkg/models"
	"github.com/xuri/excelize/v2"
)

// CardSaver stores imported cards
type CardSaver interface {
	Upsert(ctx context.Context, card *models.Card) (models.SaveResult, error)
}

// ImportConfig defines the import configuration
type ImportConfig struct {
	CodeColumn string // Column with the product code
	NameColumn string // Column with the product name
	SheetName  string // Sheet to import, the first sheet when empty
	StartRow   int    // The row to start importing from (1-based index)
}

// DefaultImportConfig returns the default import configuration
func DefaultImportConfig() ImportConfig {
	return ImportConfig{
		CodeColumn: "A",
		NameColumn: "B",
		StartRow:   2, // skip header
	}
}

// ImportResult holds the result of an import operation
type ImportResult struct {
	TotalProcessed int
	Created        int
	Updated        int
	Unchanged      int
	Skipped        int
	Errors         []string
}

// Summary renders the result for a chat reply
func (r *ImportResult) Summary() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Processed: %d\nCreated: %d\nUpdated: %d\nUnchanged: %d\nSkipped: %d",
		r.TotalProcessed, r.Created, r.Updated, r.Unchanged, r.Skipped)
	if len(r.Errors) > 0 {
		sb.WriteString("\n\nErrors:")
		for i, e := range r.Errors {
			if i == 10 {
				fmt.Fprintf(&sb, "\n... and %d more", len(r.Errors)-i)
				break
			}
			sb.WriteString("\n" + e)
		}
	}
	return sb.String()
}

// ImportFile imports cards from an Excel, CSV or text file on disk
func ImportFile(ctx context.Context, path string, config ImportConfig, saver CardSaver) (*ImportResult, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer f.Close()
	return Import(ctx, f, filepath.Base(path), config, saver)
}

// Import reads cards from r. The format is chosen by the file name extension:
// .xlsx, .csv, anything else is read as "code - name" lines.
func Import(ctx context.Context, r io.Reader, filename string, config ImportConfig, saver CardSaver) (*ImportResult, error) {
	codeCol, err := columnIndex(config.CodeColumn)
	if err != nil {
		return nil, err
	}
	nameCol, err := columnIndex(config.NameColumn)
	if err != nil {
		return nil, err
	}

	var rows [][]string
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".xlsx", ".xlsm":
		rows, err = readExcel(r, config.SheetName)
	case ".csv":
		rows, err = readCSV(r)
	default:
		return importLines(ctx, r, saver)
	}
	if err != nil {
		return nil, err
	}

	result := &ImportResult{Errors: make([]string, 0)}
	for i, row := range rows {
		// Skip header rows
		if i < config.StartRow-1 {
			continue
		}
		if err := ctx.Err(); err != nil {
			return result, err
		}

		code, name := cell(row, codeCol), cell(row, nameCol)
		if code == "" && name == "" {
			continue
		}
		result.TotalProcessed++
		if err := processRow(ctx, code, name, saver, result); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("Row %d: %v", i+1, err))
		}
	}
	return result, nil
}

// ParseLine splits a "code - name" or "code name" line. The code is the
// first word; a dash right after it is dropped, dashes inside the name are kept.
func ParseLine(line string) (code, name string, err error) {
	code, name, ok := strings.Cut(strings.TrimSpace(line), " ")
	if !ok {
		return "", "", errors.New("expected \"code - name\"")
	}

	name = strings.TrimSpace(name)
	if rest, dashed := strings.CutPrefix(name, "-"); dashed {
		name = strings.TrimSpace(rest)
	}
	code = strings.TrimSpace(code)
	if code == "" || name == "" {
		return "", "", errors.New("expected \"code - name\"")
	}
	return code, name, nil
}

func importLines(ctx context.Context, r io.Reader, saver CardSaver) (*ImportResult, error) {
	result := &ImportResult{Errors: make([]string, 0)}

	scanner := bufio.NewScanner(r)
	for n := 1; scanner.Scan(); n++ {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		result.TotalProcessed++
		code, name, err := ParseLine(line)
		if err == nil {
			err = processRow(ctx, code, name, saver, result)
		} else {
			result.Skipped++
		}
		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("Line %d: %v", n, err))
		}
	}
	if err := scanner.Err(); err != nil {
		return result, fmt.Errorf("failed to read lines: %w", err)
	}
	return result, nil
}

func readExcel(r io.Reader, sheet string) ([][]string, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to open Excel file: %w", err)
	}
	defer f.Close()

	if sheet == "" {
		sheet = f.GetSheetName(0)
	}
	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("failed to get rows: %w", err)
	}
	return rows, nil
}

func readCSV(r io.Reader) ([][]string, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1 // Allow variable number of fields
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true

	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV file: %w", err)
	}
	return rows, nil
}

func processRow(ctx context.Context, code, name string, saver CardSaver, result *ImportResult) error {
	if code == "" || name == "" {
		result.Skipped++
		return errors.New("code and name are required")
	}

	saved, err := saver.Upsert(ctx, &models.Card{Front: name, Back: code})
	if err != nil {
		result.Skipped++
		return err
	}
	switch saved {
	case models.SaveCreated:
		result.Created++
	case models.SaveUpdated:
		result.Updated++
	default:
		result.Unchanged++
	}
	return nil
}

func columnIndex(name string) (int, error) {
	n, err := excelize.ColumnNameToNumber(name)
	if err != nil {
		return 0, fmt.Errorf("invalid column %q: %w", name, err)
	}
	return n - 1, nil
}

func cell(row []string, i int) string {
	if i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}
