package ingest

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/xuri/excelize/v2"
)

// ExtractTable renders a CSV or XLSX artifact as a whitespace-aligned table.
func ExtractTable(name string, data []byte) (string, error) {
	var (
		rows [][]string
		err  error
	)
	switch Ext(name) {
	case "csv":
		rows, err = readCSV(data)
	case "xlsx":
		rows, err = readXLSX(data)
	default:
		return "", fmt.Errorf("%w: %s is not tabular", ErrUnsupportedFormat, name)
	}
	if err != nil {
		return "", err
	}
	return renderTable(rows), nil
}

func readCSV(data []byte) ([][]string, error) {
	text, err := DecodeText(data)
	if err != nil {
		return nil, err
	}
	r := csv.NewReader(strings.NewReader(text))
	r.FieldsPerRecord = -1
	rows, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("%w: csv: %v", ErrDecodeFailure, err)
	}
	return rows, nil
}

func readXLSX(data []byte) ([][]string, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: xlsx: %v", ErrDecodeFailure, err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, nil
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("%w: xlsx: %v", ErrDecodeFailure, err)
	}
	return rows, nil
}

// renderTable treats the first row as the header and prefixes every data row
// with its zero-based index. Short rows are padded with empty cells.
func renderTable(rows [][]string) string {
	if len(rows) == 0 {
		return ""
	}

	width := 0
	for _, row := range rows {
		width = max(width, len(row))
	}

	var buf bytes.Buffer
	tw := tabwriter.NewWriter(&buf, 0, 0, 2, ' ', tabwriter.AlignRight)
	for i, row := range rows {
		label := ""
		if i > 0 {
			label = strconv.Itoa(i - 1)
		}
		cells := make([]string, width)
		copy(cells, row)
		fmt.Fprintf(tw, "%s\t%s\t\n", label, strings.Join(cells, "\t"))
	}
	_ = tw.Flush()

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRight(line, " ")
	}
	return strings.Join(lines, "\n")
}
