// Package parser converts raw Orange Book flat files into typed records.
// Parsing is pure and deterministic: the same bytes always yield the same
// records and rejections.
package parser

import (
	"bufio"
	"bytes"
	"fmt"
	"strings"

	"github.com/datacove/orangebook-etl/internal/core/domain"
)

// Parse splits the document into delimited rows and coerces each into the
// dataset's typed record. Rows that fail coercion, lack a key field, or
// collide with an earlier row's natural key become rejections; they never
// abort the batch. A header missing required columns is a dataset-level
// schema-drift error, because every row would misalign the same way.
func Parse(spec domain.DatasetSpec, doc *domain.SourceDocument) ([]domain.Record, []domain.Rejection, error) {
	build, ok := builders[spec.Dataset]
	if !ok {
		return nil, nil, fmt.Errorf("%w: no row builder for dataset %q", domain.ErrInvalidConfig, spec.Dataset)
	}

	scanner := bufio.NewScanner(bytes.NewReader(doc.Content))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	if !scanner.Scan() {
		return nil, nil, fmt.Errorf("%w: %s file has no header row", domain.ErrSchemaDrift, spec.Dataset)
	}

	header, err := parseHeader(spec, scanner.Text())
	if err != nil {
		return nil, nil, err
	}

	var (
		records    []domain.Record
		rejections []domain.Rejection
		seen       = make(map[string]int) // natural key -> first line
		lineNo     = 1
	)

	reject := func(line int, raw, reason string) {
		rejections = append(rejections, domain.Rejection{
			Dataset: spec.Dataset,
			Line:    line,
			Reason:  reason,
			Raw:     raw,
		})
	}

	for scanner.Scan() {
		lineNo++
		raw := strings.TrimRight(scanner.Text(), "\r")
		if strings.TrimSpace(raw) == "" {
			continue
		}

		fields := strings.Split(raw, spec.Delimiter)
		if len(fields) > header.width {
			reject(lineNo, raw, fmt.Sprintf("row has %d fields, header has %d", len(fields), header.width))
			continue
		}

		rec, err := build(header.row(fields))
		if err != nil {
			reject(lineNo, raw, err.Error())
			continue
		}

		key := rec.NaturalKey()
		if first, dup := seen[key]; dup {
			reject(lineNo, raw, fmt.Sprintf("duplicate natural key %q (first seen on line %d)", key, first))
			continue
		}
		seen[key] = lineNo
		records = append(records, rec)
	}

	if err := scanner.Err(); err != nil {
		return nil, nil, fmt.Errorf("scan %s content: %w", spec.Dataset, err)
	}

	return records, rejections, nil
}

// header maps column names (case-insensitive, trimmed) to field positions.
type headerIndex struct {
	index map[string]int
	width int
}

func parseHeader(spec domain.DatasetSpec, line string) (*headerIndex, error) {
	names := strings.Split(strings.TrimRight(line, "\r"), spec.Delimiter)
	h := &headerIndex{index: make(map[string]int, len(names)), width: len(names)}
	for i, name := range names {
		h.index[strings.ToLower(strings.TrimSpace(name))] = i
	}

	var missing []string
	for _, col := range spec.RequiredColumns {
		if _, ok := h.index[strings.ToLower(col)]; !ok {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: %s header missing columns %v", domain.ErrSchemaDrift, spec.Dataset, missing)
	}
	return h, nil
}

// row gives named access to one line's fields. Short rows read as empty
// trailing fields; the builders decide which fields are actually required.
func (h *headerIndex) row(fields []string) rowReader {
	return rowReader{index: h.index, fields: fields}
}

type rowReader struct {
	index  map[string]int
	fields []string
}

func (r rowReader) get(column string) string {
	i, ok := r.index[strings.ToLower(column)]
	if !ok || i >= len(r.fields) {
		return ""
	}
	return strings.TrimSpace(r.fields[i])
}
