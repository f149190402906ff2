package ingest

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"
)

// ParseCSV reads an export CSV and extracts one Post per data row. Rows that
// cannot be read, or whose timestamps cannot be parsed, are counted as
// skipped with a short reason; one bad row never fails the file.
func ParseCSV(reader io.Reader) ([]Post, []string, error) {
	csvReader := csv.NewReader(reader)
	csvReader.FieldsPerRecord = -1
	csvReader.LazyQuotes = true

	header, err := csvReader.Read()
	if err == io.EOF {
		return nil, nil, fmt.Errorf("csv is empty")
	}
	if err != nil {
		return nil, nil, fmt.Errorf("read csv header: %w", err)
	}

	columns := make([]string, len(header))
	for i, name := range header {
		columns[i] = strings.TrimSpace(strings.TrimPrefix(name, "\ufeff"))
	}

	posts := make([]Post, 0, 64)
	skipped := []string{}

	for idx := 0; ; idx++ {
		record, err := csvReader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			skipped = append(skipped, fmt.Sprintf("row %d: %v", idx, err))
			continue
		}

		row := make(Row, len(columns))
		for i, value := range record {
			if i < len(columns) {
				row[columns[i]] = value
			}
		}

		post, err := ExtractPost(row, idx)
		if err != nil {
			skipped = append(skipped, fmt.Sprintf("row %d: %v", idx, err))
			continue
		}
		posts = append(posts, post)
	}

	return posts, skipped, nil
}
