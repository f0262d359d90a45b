package ingestion

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/rpattn/eligibility/internal/domain"
)

var byteOrderMark = []byte{0xEF, 0xBB, 0xBF}

// RawRow is one data line split into header-keyed values.
type RawRow struct {
	Number     int
	Values     map[string]string
	FieldCount int
}

// ParsedCSV is the header and data rows of an uploaded file.
type ParsedCSV struct {
	Header []string
	Rows   []RawRow
}

// ParseCSV splits the payload into a normalised header and data rows.
// Fields are separated on every comma; quoting is not interpreted.
func ParseCSV(data []byte) (ParsedCSV, error) {
	data = bytes.TrimPrefix(data, byteOrderMark)

	lines := make([]string, 0, bytes.Count(data, []byte{'\n'})+1)
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSuffix(line, "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		lines = append(lines, line)
	}

	if len(lines) < 2 {
		return ParsedCSV{}, malformed("CSV must have header and at least one data row")
	}

	header := splitFields(lines[0])
	for i := range header {
		header[i] = strings.ToLower(header[i])
	}

	if missing := missingColumns(header); len(missing) > 0 {
		return ParsedCSV{}, malformed(fmt.Sprintf("missing required columns: %s", strings.Join(missing, ", ")))
	}

	rows := make([]RawRow, 0, len(lines)-1)
	for i, line := range lines[1:] {
		fields := splitFields(line)
		values := make(map[string]string, len(header))
		for col, name := range header {
			if col < len(fields) {
				values[name] = fields[col]
			}
		}
		rows = append(rows, RawRow{
			Number:     i + 1,
			Values:     values,
			FieldCount: len(fields),
		})
	}

	return ParsedCSV{Header: header, Rows: rows}, nil
}

func splitFields(line string) []string {
	fields := strings.Split(line, ",")
	for i := range fields {
		fields[i] = strings.TrimSpace(fields[i])
	}
	return fields
}

func missingColumns(header []string) []string {
	present := make(map[string]struct{}, len(header))
	for _, name := range header {
		present[name] = struct{}{}
	}
	var missing []string
	for _, required := range domain.RequiredColumns {
		if _, ok := present[required]; !ok {
			missing = append(missing, required)
		}
	}
	return missing
}
