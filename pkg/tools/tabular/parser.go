// Package tabular parses CSV uploads into typed tables.
package tabular

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"synapse/pkg/tools"
)

const op = "tabular.parse"

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Parser implements tools.TabularParser for comma separated input with a
// header row.
type Parser struct {
	// MaxRows caps the parsed rows; 0 means no limit.
	MaxRows int
}

func New() *Parser { return &Parser{} }

func (p *Parser) Parse(ctx context.Context, data []byte) (*tools.Table, error) {
	data = bytes.TrimPrefix(data, utf8BOM)
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, tools.Errorf(tools.KindParseFailed, op, "the CSV file is empty")
	}

	r := csv.NewReader(bytes.NewReader(data))
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true
	r.LazyQuotes = true

	header, err := r.Read()
	if err != nil {
		return nil, &tools.Error{Kind: tools.KindParseFailed, Op: op, Msg: "could not read the CSV header", Err: err}
	}
	fields, err := normaliseHeader(header)
	if err != nil {
		return nil, &tools.Error{Kind: tools.KindParseFailed, Op: op, Msg: err.Error(), Err: err}
	}

	var raw [][]string
	for {
		if err := ctx.Err(); err != nil {
			return nil, tools.Wrap(tools.KindParseFailed, op, err)
		}
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, &tools.Error{Kind: tools.KindParseFailed, Op: op, Msg: fmt.Sprintf("malformed CSV: %v", err), Err: err}
		}
		if blank(rec) {
			continue
		}
		raw = append(raw, pad(rec, len(fields)))
		if p.MaxRows > 0 && len(raw) >= p.MaxRows {
			break
		}
	}
	if len(raw) == 0 {
		return nil, tools.Errorf(tools.KindParseFailed, op, "the CSV file has a header but no data rows")
	}

	schema := inferSchema(fields, raw)
	rows := make([]tools.Row, 0, len(raw))
	for _, rec := range raw {
		row := make(tools.Row, len(fields))
		for i, f := range fields {
			v := strings.TrimSpace(rec[i])
			if schema[f] == tools.FieldNumber {
				if v == "" {
					row[f] = nil
					continue
				}
				n, _ := parseNumber(v)
				row[f] = n
				continue
			}
			row[f] = v
		}
		rows = append(rows, row)
	}

	return &tools.Table{Fields: fields, Rows: rows, Schema: schema}, nil
}

// normaliseHeader trims names, names empty columns and de-duplicates.
func normaliseHeader(header []string) ([]string, error) {
	if blank(header) {
		return nil, errors.New("the CSV header row is empty")
	}
	seen := make(map[string]int, len(header))
	fields := make([]string, len(header))
	for i, h := range header {
		name := strings.TrimSpace(h)
		if name == "" {
			name = fmt.Sprintf("column_%d", i+1)
		}
		if n := seen[name]; n > 0 {
			seen[name] = n + 1
			name = fmt.Sprintf("%s_%d", name, n+1)
		} else {
			seen[name] = 1
		}
		fields[i] = name
	}
	return fields, nil
}

// inferSchema marks a field numeric when it has at least one value and
// every non-empty value parses as a number.
func inferSchema(fields []string, raw [][]string) tools.Schema {
	schema := make(tools.Schema, len(fields))
	for i, f := range fields {
		numeric, seen := true, false
		for _, rec := range raw {
			v := strings.TrimSpace(rec[i])
			if v == "" {
				continue
			}
			seen = true
			if _, ok := parseNumber(v); !ok {
				numeric = false
				break
			}
		}
		if numeric && seen {
			schema[f] = tools.FieldNumber
		} else {
			schema[f] = tools.FieldString
		}
	}
	return schema
}

// parseNumber accepts finite floats plus thousands separators, a leading
// currency sign and a trailing percent. NaN and Inf spellings are text.
func parseNumber(v string) (float64, bool) {
	v = strings.TrimSpace(v)
	v = strings.TrimPrefix(v, "$")
	v = strings.TrimSuffix(v, "%")
	v = strings.ReplaceAll(v, ",", "")
	if v == "" {
		return 0, false
	}
	n, err := strconv.ParseFloat(v, 64)
	if err != nil || math.IsNaN(n) || math.IsInf(n, 0) {
		return 0, false
	}
	return n, true
}

func blank(rec []string) bool {
	for _, v := range rec {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

func pad(rec []string, n int) []string {
	if len(rec) >= n {
		return rec[:n]
	}
	out := make([]string, n)
	copy(out, rec)
	return out
}
