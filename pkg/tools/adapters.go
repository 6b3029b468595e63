package tools

import (
	"context"
	"strings"
)

// TokenSink receives incremental text in generation order. Adapters
// guarantee the concatenation of every call equals their returned text.
type TokenSink func(token string)

// Emit calls s when it is non-nil.
func (s TokenSink) Emit(token string) {
	if s != nil && token != "" {
		s(token)
	}
}

// Accumulate returns a sink that forwards to s and records every token in sb.
func Accumulate(s TokenSink, sb *strings.Builder) TokenSink {
	return func(token string) {
		sb.WriteString(token)
		s.Emit(token)
	}
}

// DocumentTextExtractor turns a document into plain text.
// Failures carry KindExtractionFailed.
type DocumentTextExtractor interface {
	Extract(ctx context.Context, doc Document) (string, error)
}

// OCRExtractor reads text from image or PDF bytes. Every provider shares
// this contract and is chosen by configuration. Failures carry KindOCRFailed.
type OCRExtractor interface {
	Recognize(ctx context.Context, data []byte, mediaType string) (string, error)
}

// TabularParser parses CSV bytes. Failures carry KindParseFailed.
type TabularParser interface {
	Parse(ctx context.Context, data []byte) (*Table, error)
}

// Summarizer streams a summary of text. Failures carry KindSummarizationFailed.
type Summarizer interface {
	Summarize(ctx context.Context, text string, sink TokenSink) (string, error)
}

// DataAnalyzer streams a narrative over a table and returns a chart.
// Failures carry KindAnalysisFailed.
type DataAnalyzer interface {
	Analyze(ctx context.Context, table *Table, instruction string, sink TokenSink) (*Analysis, error)
}

// OfferLetterGenerator drafts an offer from a resume. Failures, including a
// resume without a name or email, carry KindGenerationFailed.
type OfferLetterGenerator interface {
	Generate(ctx context.Context, resume, instruction string) (*OfferLetter, error)
}

// ClaimVerifier checks the claims of a document against the web.
// Failures carry KindVerificationFailed.
type ClaimVerifier interface {
	Verify(ctx context.Context, document, instruction string, sink TokenSink) ([]ClaimResult, error)
}

// WebSearcher returns the best single match for query. It returns a
// placeholder result rather than an error when no provider can answer.
type WebSearcher interface {
	Search(ctx context.Context, query string, count int) (SearchResult, error)
}

// EmailSender delivers an email. Failures carry KindDeliveryFailed.
type EmailSender interface {
	Send(ctx context.Context, email Email) (*Delivery, error)
}

// Toolbox bundles the adapters the orchestrator dispatches to. Email is not
// one of them: sending is a confirmed action outside the orchestrator.
type Toolbox struct {
	Extractor  DocumentTextExtractor
	OCR        OCRExtractor
	Tabular    TabularParser
	Summarizer Summarizer
	Analyzer   DataAnalyzer
	Offer      OfferLetterGenerator
	Verifier   ClaimVerifier
	Search     WebSearcher
}
