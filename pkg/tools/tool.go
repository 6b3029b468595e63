// Package tools defines the closed set of agent tools, the adapter
// contracts each tool is built on, and the error kinds adapters report.
package tools

import (
	"strings"
)

// ToolName identifies one dispatchable tool. The set is closed: values
// outside Vocabulary() are never produced by ParseToolName.
type ToolName string

const (
	ExtractPDFText      ToolName = "extract_pdf_text"
	RunOCR              ToolName = "run_ocr"
	ExtractCSVData      ToolName = "extract_csv_data"
	AnalyzeData         ToolName = "analyze_data"
	GenerateOfferLetter ToolName = "generate_offer_letter"
	VerifyClaims        ToolName = "verify_claims"
	WebSearch           ToolName = "web_search"
	GeneralQuery        ToolName = "general_query"
)

var vocabulary = []ToolName{
	ExtractPDFText,
	RunOCR,
	ExtractCSVData,
	AnalyzeData,
	GenerateOfferLetter,
	VerifyClaims,
	WebSearch,
	GeneralQuery,
}

var descriptions = map[ToolName]string{
	ExtractPDFText:      "extract and summarize text from an uploaded PDF or text document",
	RunOCR:              "read text from an uploaded image or scanned document",
	ExtractCSVData:      "parse an uploaded CSV file and analyze it",
	AnalyzeData:         "analyze the dataset loaded earlier in this conversation",
	GenerateOfferLetter: "draft an offer letter from the resume loaded earlier",
	VerifyClaims:        "fact-check claims in the document loaded earlier",
	WebSearch:           "search the web for current information",
	GeneralQuery:        "anything else, answered conversationally",
}

// Vocabulary returns every tool in classifier order.
func Vocabulary() []ToolName {
	out := make([]ToolName, len(vocabulary))
	copy(out, vocabulary)
	return out
}

// Description returns a one-line description used in the routing prompt.
func (t ToolName) Description() string {
	return descriptions[t]
}

func (t ToolName) String() string {
	return string(t)
}

// Valid reports whether t is a member of the closed set.
func (t ToolName) Valid() bool {
	_, ok := descriptions[t]
	return ok
}

// ParseToolName normalises s (case, surrounding space, '-' or ' ' for '_')
// and returns the matching tool.
func ParseToolName(s string) (ToolName, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.NewReplacer("-", "_", " ", "_").Replace(s)
	t := ToolName(s)
	if !t.Valid() {
		return "", false
	}
	return t, true
}

// Names returns the vocabulary as plain strings (for JSON schema enums).
func Names() []string {
	out := make([]string, len(vocabulary))
	for i, t := range vocabulary {
		out[i] = string(t)
	}
	return out
}
