package tools

import (
	"errors"
	"fmt"
)

// Kind classifies an adapter or precondition failure.
type Kind string

const (
	KindMissingInput        Kind = "missing_input"
	KindWrongMediaType      Kind = "wrong_media_type"
	KindNoDatasetLoaded     Kind = "no_dataset_loaded"
	KindNoResumeLoaded      Kind = "no_resume_loaded"
	KindNoDocumentLoaded    Kind = "no_document_loaded"
	KindExtractionFailed    Kind = "extraction_failed"
	KindOCRFailed           Kind = "ocr_failed"
	KindParseFailed         Kind = "parse_failed"
	KindSummarizationFailed Kind = "summarization_failed"
	KindAnalysisFailed      Kind = "analysis_failed"
	KindGenerationFailed    Kind = "generation_failed"
	KindVerificationFailed  Kind = "verification_failed"
	KindDeliveryFailed      Kind = "delivery_failed"
	// KindRoutingAmbiguous is absorbed by the router fallback and never
	// reaches an event stream.
	KindRoutingAmbiguous Kind = "routing_ambiguous"
	KindInternal         Kind = "internal"
)

// Sentinels for errors.Is checks against a Kind.
var (
	ErrMissingInput        = &Error{Kind: KindMissingInput}
	ErrWrongMediaType      = &Error{Kind: KindWrongMediaType}
	ErrNoDatasetLoaded     = &Error{Kind: KindNoDatasetLoaded}
	ErrNoResumeLoaded      = &Error{Kind: KindNoResumeLoaded}
	ErrNoDocumentLoaded    = &Error{Kind: KindNoDocumentLoaded}
	ErrExtractionFailed    = &Error{Kind: KindExtractionFailed}
	ErrOCRFailed           = &Error{Kind: KindOCRFailed}
	ErrParseFailed         = &Error{Kind: KindParseFailed}
	ErrSummarizationFailed = &Error{Kind: KindSummarizationFailed}
	ErrAnalysisFailed      = &Error{Kind: KindAnalysisFailed}
	ErrGenerationFailed    = &Error{Kind: KindGenerationFailed}
	ErrVerificationFailed  = &Error{Kind: KindVerificationFailed}
	ErrDeliveryFailed      = &Error{Kind: KindDeliveryFailed}
)

// Error is the typed failure every adapter returns.
type Error struct {
	Kind Kind
	Op   string // adapter operation, e.g. "ocr.azure"
	Msg  string // human readable, shown to the user
	Err  error  // underlying cause, may be nil
}

func (e *Error) Error() string {
	msg := e.Msg
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if msg == "" {
		msg = string(e.Kind)
	}
	if e.Op == "" {
		return msg
	}
	return e.Op + ": " + msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error with the same Kind, so errors.Is(err, ErrParseFailed)
// holds for every parse failure regardless of Op or cause.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

// Errorf builds an *Error with a formatted user message.
func Errorf(kind Kind, op, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Msg: fmt.Sprintf(format, args...)}
}

// Wrap attaches kind and op to err. A nil err yields nil; an err that is
// already an *Error keeps its original kind.
func Wrap(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	var te *Error
	if errors.As(err, &te) {
		return err
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// KindOf returns the kind carried by err, or KindInternal.
func KindOf(err error) Kind {
	var te *Error
	if errors.As(err, &te) {
		return te.Kind
	}
	return KindInternal
}

// Message returns the user-facing text of err without the op prefix.
func Message(err error) string {
	var te *Error
	if errors.As(err, &te) {
		switch {
		case te.Msg != "":
			return te.Msg
		case te.Err != nil:
			return te.Err.Error()
		default:
			return string(te.Kind)
		}
	}
	if err == nil {
		return ""
	}
	return err.Error()
}
