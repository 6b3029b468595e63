package tools

import (
	"path/filepath"
	"strings"
)

// Document is an uploaded artifact.
type Document struct {
	Data      []byte
	MediaType string
	Name      string
}

// IsCSV reports whether the declared media type or file name marks a CSV.
func (d *Document) IsCSV() bool {
	if d == nil {
		return false
	}
	mt := baseMediaType(d.MediaType)
	switch mt {
	case "text/csv", "application/csv", "text/comma-separated-values":
		return true
	}
	return strings.EqualFold(filepath.Ext(d.Name), ".csv")
}

// IsPDF reports whether the document is a PDF.
func (d *Document) IsPDF() bool {
	if d == nil {
		return false
	}
	return baseMediaType(d.MediaType) == "application/pdf" || strings.EqualFold(filepath.Ext(d.Name), ".pdf")
}

// IsImage reports whether the document is an image, which always goes
// through OCR.
func (d *Document) IsImage() bool {
	if d == nil {
		return false
	}
	return strings.HasPrefix(baseMediaType(d.MediaType), "image/")
}

func baseMediaType(mt string) string {
	mt = strings.ToLower(strings.TrimSpace(mt))
	if i := strings.IndexByte(mt, ';'); i >= 0 {
		mt = strings.TrimSpace(mt[:i])
	}
	return mt
}

// FieldType is the inferred type of a table column.
type FieldType string

const (
	FieldString FieldType = "string"
	FieldNumber FieldType = "number"
)

// Schema maps each field to its inferred type.
type Schema map[string]FieldType

// Row is one parsed record. Number fields hold float64, the rest string.
type Row map[string]any

// Table is parsed tabular data. Fields keeps header order.
type Table struct {
	Fields []string `json:"fields"`
	Rows   []Row    `json:"rows"`
	Schema Schema   `json:"schema"`
}

// NumericFields returns number-typed fields in header order.
func (t *Table) NumericFields() []string {
	return t.fieldsOf(FieldNumber)
}

// StringFields returns string-typed fields in header order.
func (t *Table) StringFields() []string {
	return t.fieldsOf(FieldString)
}

func (t *Table) fieldsOf(ft FieldType) []string {
	if t == nil {
		return nil
	}
	var out []string
	for _, f := range t.Fields {
		if t.Schema[f] == ft {
			out = append(out, f)
		}
	}
	return out
}

// Chart types
const (
	BarChart  = "BarChart"
	LineChart = "LineChart"
)

// ChartSpec describes a chart the presentation layer can draw.
type ChartSpec struct {
	ChartType     string           `json:"chartType"`
	CategoryField string           `json:"categoryField"`
	ValueFields   []string         `json:"valueFields"`
	Rows          []map[string]any `json:"rows"`
}

// Analysis is the DataAnalyzer result.
type Analysis struct {
	Summary string
	Chart   ChartSpec
}

// Candidate holds what the offer generator extracted from a resume.
type Candidate struct {
	Name   string `json:"name"`
	Email  string `json:"email"`
	Title  string `json:"title"`
	Salary string `json:"salary"`
}

// OfferLetter is a drafted, unsent offer.
type OfferLetter struct {
	Candidate Candidate
	Subject   string
	HTML      string
}

// ClaimResult is one row of a verification report.
type ClaimResult struct {
	Claim           string
	ExternalResult  string
	SourceURL       string
	ConfidenceScore int
	Summary         string
}

// SearchResult is the best single web match.
type SearchResult struct {
	Snippet string
	URL     string
	Title   string
}

// Email is a message ready for delivery.
type Email struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	HTML    string `json:"html"`
}

// Delivery confirms a sent email.
type Delivery struct {
	MessageID string
	Message   string
}
