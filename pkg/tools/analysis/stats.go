package analysis

import (
	"fmt"
	"math"
	"strings"

	"synapse/pkg/tools"
)

// FieldStats summarises one numeric column.
type FieldStats struct {
	Field string
	Count int
	Min   float64
	Max   float64
	Sum   float64
}

func (s FieldStats) Mean() float64 {
	if s.Count == 0 {
		return 0
	}
	return s.Sum / float64(s.Count)
}

// ComputeStats returns stats for every numeric field in header order.
// Missing values are skipped.
func ComputeStats(t *tools.Table) []FieldStats {
	var out []FieldStats
	for _, f := range t.NumericFields() {
		st := FieldStats{Field: f, Min: math.Inf(1), Max: math.Inf(-1)}
		for _, r := range t.Rows {
			v, ok := r[f].(float64)
			if !ok {
				continue
			}
			st.Count++
			st.Sum += v
			st.Min = math.Min(st.Min, v)
			st.Max = math.Max(st.Max, v)
		}
		if st.Count == 0 {
			st.Min, st.Max = 0, 0
		}
		out = append(out, st)
	}
	return out
}

// Describe renders stats as a compact plain-text block for prompts and as
// the narrative fallback.
func Describe(t *tools.Table, stats []FieldStats) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Found %d rows and %d columns (%s).\n", len(t.Rows), len(t.Fields), strings.Join(t.Fields, ", "))
	for _, s := range stats {
		fmt.Fprintf(&sb, "- %s: count %d, min %s, max %s, avg %s, total %s\n",
			s.Field, s.Count, num(s.Min), num(s.Max), num(s.Mean()), num(s.Sum))
	}
	return sb.String()
}

func num(v float64) string {
	if v == math.Trunc(v) && math.Abs(v) < 1e15 {
		return fmt.Sprintf("%.0f", v)
	}
	return fmt.Sprintf("%.2f", v)
}
