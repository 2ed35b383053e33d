package loader

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"
)

// DefaultMaxRows caps how many data rows a rendered table carries.
const DefaultMaxRows = 200

// ErrLegacyWorkbook is returned for .xls files, which need the ingestion
// service to convert them.
var ErrLegacyWorkbook = errors.New("legacy .xls workbooks cannot be rendered")

// TableRenderer renders the first sheet of a workbook or a CSV file as a
// markdown table whose first row is the header.
type TableRenderer struct {
	maxRows int
}

func NewTableRenderer(maxRows int) *TableRenderer {
	if maxRows <= 0 {
		maxRows = DefaultMaxRows
	}
	return &TableRenderer{maxRows: maxRows}
}

func (r *TableRenderer) RenderTable(ctx context.Context, path string) (string, error) {
	var rows [][]string
	var err error
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx":
		rows, err = r.readWorkbook(path)
	case ".csv":
		rows, err = r.readCSV(path)
	case ".xls":
		return "", ErrLegacyWorkbook
	default:
		return "", fmt.Errorf("unsupported table file %s", filepath.Base(path))
	}
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", filepath.Base(path), err)
	}
	return r.markdown(filepath.Base(path), rows), nil
}

func (r *TableRenderer) readWorkbook(path string) ([][]string, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, nil
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, err
	}
	if len(rows) > r.maxRows+1 {
		rows = rows[:r.maxRows+1]
	}
	return rows, nil
}

func (r *TableRenderer) readCSV(path string) ([][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1
	var rows [][]string
	for len(rows) <= r.maxRows {
		rec, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		rows = append(rows, rec)
	}
	return rows, nil
}

func (r *TableRenderer) markdown(title string, rows [][]string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", title)
	if len(rows) == 0 {
		return b.String()
	}

	width := 0
	for _, row := range rows {
		width = max(width, len(row))
	}
	writeRow := func(row []string) {
		b.WriteString("|")
		for i := 0; i < width; i++ {
			cell := ""
			if i < len(row) {
				cell = escapeCell(row[i])
			}
			b.WriteString(" " + cell + " |")
		}
		b.WriteString("\n")
	}

	writeRow(rows[0])
	b.WriteString("|" + strings.Repeat(" --- |", width) + "\n")
	for _, row := range rows[1:] {
		writeRow(row)
	}
	return b.String()
}

func escapeCell(s string) string {
	s = strings.ReplaceAll(s, "|", `\|`)
	s = strings.ReplaceAll(s, "\r\n", " ")
	return strings.ReplaceAll(s, "\n", " ")
}
