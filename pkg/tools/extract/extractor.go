// Package extract turns uploaded documents into plain text, falling back to
// OCR for images and for PDFs without a usable text layer.
package extract

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"synapse/pkg/config"
	"synapse/pkg/tools"
)

const op = "extract"

// Extractor implements tools.DocumentTextExtractor.
type Extractor struct {
	PDF PDFEngine
	// OCR is optional; nil disables the fallback.
	OCR tools.OCRExtractor
	// MinTextChars is the shortest PDF text layer accepted before OCR is
	// tried instead.
	MinTextChars int
}

// New builds an Extractor from the pdf engine setting.
func New(cfg config.PDFConfig, ocr tools.OCRExtractor, sys *config.SystemConfig, runner tools.CommandRunner) (*Extractor, error) {
	if sys == nil {
		sys = config.DefaultSystemConfig()
	}
	e := &Extractor{OCR: ocr, MinTextChars: sys.PDFMinTextChars}
	switch cfg.Engine {
	case "", "native":
		e.PDF = NativePDF{}
	case "pdftotext":
		if runner == nil {
			runner = tools.ExecRunner{}
		}
		e.PDF = &Poppler{Binary: cfg.Binary, Runner: runner}
	default:
		return nil, fmt.Errorf("extract: unknown pdf engine %q", cfg.Engine)
	}
	return e, nil
}

func (e *Extractor) Extract(ctx context.Context, doc tools.Document) (string, error) {
	if len(doc.Data) == 0 {
		return "", tools.Errorf(tools.KindMissingInput, op, "the uploaded file is empty")
	}

	var (
		text string
		err  error
	)
	switch {
	case doc.IsImage():
		text, err = e.ocr(ctx, doc)
	case doc.IsPDF():
		text, err = e.pdf(ctx, doc)
	case isPlainText(doc):
		text = string(bytes.TrimPrefix(doc.Data, []byte{0xEF, 0xBB, 0xBF}))
	default:
		return "", tools.Errorf(tools.KindExtractionFailed, op, "cannot extract text from %s files", orUnknown(doc.MediaType))
	}
	if err != nil {
		return "", err
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return "", tools.Errorf(tools.KindExtractionFailed, op, "could not extract any meaningful text from %s", orUnknown(doc.Name))
	}
	return text, nil
}

func (e *Extractor) ocr(ctx context.Context, doc tools.Document) (string, error) {
	if e.OCR == nil {
		return "", tools.Errorf(tools.KindOCRFailed, op, "no OCR provider is configured")
	}
	text, err := e.OCR.Recognize(ctx, doc.Data, doc.MediaType)
	return text, tools.Wrap(tools.KindOCRFailed, op, err)
}

func (e *Extractor) pdf(ctx context.Context, doc tools.Document) (string, error) {
	text, err := e.PDF.Text(ctx, doc.Data)
	short := len(strings.TrimSpace(text)) < e.MinTextChars

	if err == nil && !short {
		return text, nil
	}
	if err != nil {
		slog.WarnContext(ctx, "PDF text extraction failed", "file", doc.Name, "error", err)
	} else {
		slog.InfoContext(ctx, "PDF text layer too short", "file", doc.Name, "chars", len(strings.TrimSpace(text)))
	}

	if e.OCR != nil {
		ocrText, ocrErr := e.OCR.Recognize(ctx, doc.Data, "application/pdf")
		if ocrErr == nil {
			return ocrText, nil
		}
		slog.WarnContext(ctx, "OCR fallback failed", "file", doc.Name, "error", ocrErr)
		if err == nil && strings.TrimSpace(text) != "" {
			return text, nil
		}
		return "", &tools.Error{Kind: tools.KindExtractionFailed, Op: op, Msg: "could not extract text from the PDF with text extraction or OCR", Err: ocrErr}
	}

	if err != nil {
		return "", &tools.Error{Kind: tools.KindExtractionFailed, Op: op, Msg: "could not read the PDF", Err: err}
	}
	return text, nil
}

func isPlainText(doc tools.Document) bool {
	mt := strings.ToLower(doc.MediaType)
	switch {
	case strings.HasPrefix(mt, "text/"),
		strings.Contains(mt, "json"),
		strings.Contains(mt, "markdown"),
		strings.Contains(mt, "xml"):
		return utf8.Valid(doc.Data)
	}
	lower := strings.ToLower(doc.Name)
	for _, ext := range []string{".txt", ".md", ".markdown", ".json"} {
		if strings.HasSuffix(lower, ext) {
			return utf8.Valid(doc.Data)
		}
	}
	return false
}

func orUnknown(s string) string {
	if s == "" {
		return "unknown"
	}
	return s
}
