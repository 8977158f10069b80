package ingest

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"villageops/internal/lifecycle"
	dErrors "villageops/pkg/domain-errors"
)

// Required and optional CSV columns, by header name.
var (
	requiredColumns = []string{
		lifecycle.FieldUnitNumber,
		lifecycle.FieldUnitType,
		lifecycle.FieldMaxOccupancy,
		lifecycle.FieldFloorArea,
	}
	optionalColumns = []string{lifecycle.FieldLotArea}
)

// ParseCSV reads the batch file. A malformed header fails the whole parse; a
// malformed data row becomes a RowError and parsing continues, so one bad row
// never hides the rest of the file.
func ParseCSV(r io.Reader) ([]Row, []RowError, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err == io.EOF {
		return nil, nil, dErrors.New(dErrors.CodeValidation, "the batch file is empty")
	}
	if err != nil {
		return nil, nil, dErrors.Wrap(err, dErrors.CodeValidation, "failed to read the header row")
	}

	index := make(map[string]int, len(header))
	for i, name := range header {
		index[strings.ToLower(strings.TrimSpace(name))] = i
	}
	for _, col := range requiredColumns {
		if _, ok := index[col]; !ok {
			return nil, nil, dErrors.New(dErrors.CodeValidation,
				fmt.Sprintf("the header row is missing the %q column", col))
		}
	}

	var (
		rows     []Row
		rowErrs  []RowError
		line     int
		expected = len(header)
	)
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			rowErrs = append(rowErrs, RowError{Line: line, Message: "malformed CSV row"})
			continue
		}
		if len(record) != expected {
			rowErrs = append(rowErrs, RowError{Line: line,
				Message: fmt.Sprintf("expected %d columns, got %d", expected, len(record))})
			continue
		}

		fields := make(map[string]any, expected)
		for _, col := range requiredColumns {
			fields[col] = strings.TrimSpace(record[index[col]])
		}
		for _, col := range optionalColumns {
			if i, ok := index[col]; ok {
				if v := strings.TrimSpace(record[i]); v != "" {
					fields[col] = v
				}
			}
		}

		key, _ := fields[lifecycle.FieldUnitNumber].(string)
		rows = append(rows, Row{Line: line, Key: key, Fields: fields})
	}

	return rows, rowErrs, nil
}
