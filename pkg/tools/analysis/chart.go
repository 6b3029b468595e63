package analysis

import (
	"regexp"
	"strings"
	"time"

	"synapse/pkg/tools"
)

const (
	maxValueFields = 4
	maxChartRows   = 50
	lineChartRows  = 30
	indexField     = "index"
)

var temporalName = regexp.MustCompile(`(?i)(date|time|day|week|month|year|quarter|period)`)

var dateLayouts = []string{
	"2006-01-02",
	"2006/01/02",
	"01/02/2006",
	"2006-01",
	"Jan 2006",
	"January 2006",
	time.RFC3339,
}

// BuildChart derives a chart descriptor from the table schema. Value fields
// are numeric fields only.
func BuildChart(t *tools.Table) tools.ChartSpec {
	values := t.NumericFields()
	if len(values) > maxValueFields {
		values = values[:maxValueFields]
	}

	category := indexField
	if strs := t.StringFields(); len(strs) > 0 {
		category = strs[0]
	}

	chartType := tools.BarChart
	if len(t.Rows) > lineChartRows || (category != indexField && isTemporal(t, category)) {
		chartType = tools.LineChart
	}

	n := len(t.Rows)
	if n > maxChartRows {
		n = maxChartRows
	}
	rows := make([]map[string]any, 0, n)
	for i := 0; i < n; i++ {
		src := t.Rows[i]
		row := make(map[string]any, len(values)+1)
		if category == indexField {
			row[indexField] = i
		} else {
			row[category] = src[category]
		}
		for _, f := range values {
			row[f] = src[f]
		}
		rows = append(rows, row)
	}

	return tools.ChartSpec{
		ChartType:     chartType,
		CategoryField: category,
		ValueFields:   values,
		Rows:          rows,
	}
}

// isTemporal reports whether the field name or most sampled values look
// like dates.
func isTemporal(t *tools.Table, field string) bool {
	if temporalName.MatchString(field) {
		return true
	}
	sample, hits := 0, 0
	for _, r := range t.Rows {
		v, _ := r[field].(string)
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		sample++
		if parsesAsDate(v) {
			hits++
		}
		if sample == 10 {
			break
		}
	}
	return sample > 0 && hits*2 > sample
}

func parsesAsDate(v string) bool {
	for _, layout := range dateLayouts {
		if _, err := time.Parse(layout, v); err == nil {
			return true
		}
	}
	return false
}
