package extract

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"testing"

	"synapse/pkg/config"
	"synapse/pkg/tools"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// buildPDF writes a one page PDF showing text in Helvetica.
func buildPDF(text string) []byte {
	content := fmt.Sprintf("BT /F1 12 Tf 72 712 Td (%s) Tj ET", text)
	objects := []string{
		"<< /Type /Catalog /Pages 2 0 R >>",
		"<< /Type /Pages /Kids [3 0 R] /Count 1 >>",
		"<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] /Contents 4 0 R /Resources << /Font << /F1 5 0 R >> >> >>",
		fmt.Sprintf("<< /Length %d >>\nstream\n%s\nendstream", len(content), content),
		"<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica /Encoding /WinAnsiEncoding >>",
	}

	var buf bytes.Buffer
	buf.WriteString("%PDF-1.4\n")
	offsets := make([]int, len(objects))
	for i, obj := range objects {
		offsets[i] = buf.Len()
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", i+1, obj)
	}
	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n", len(objects)+1)
	buf.WriteString("0000000000 65535 f \n")
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(objects)+1, xref)
	return buf.Bytes()
}

type fakeOCR struct {
	text  string
	err   error
	calls int
	media string
}

func (f *fakeOCR) Recognize(_ context.Context, _ []byte, mediaType string) (string, error) {
	f.calls++
	f.media = mediaType
	return f.text, f.err
}

func TestNativePDF(t *testing.T) {
	text, err := NativePDF{}.Text(context.Background(), buildPDF("Quarterly revenue grew"))
	require.NoError(t, err)
	assert.Contains(t, text, "Quarterly revenue grew")

	_, err = NativePDF{}.Text(context.Background(), []byte("not a pdf"))
	assert.Error(t, err)
}

func TestExtract_PDFWithTextLayer(t *testing.T) {
	ocr := &fakeOCR{text: "ocr text"}
	e := &Extractor{PDF: NativePDF{}, OCR: ocr, MinTextChars: 10}

	text, err := e.Extract(context.Background(), tools.Document{Data: buildPDF("Jane Doe, senior engineer"), MediaType: "application/pdf"})
	require.NoError(t, err)
	assert.Contains(t, text, "Jane Doe")
	assert.Zero(t, ocr.calls)
}

func TestExtract_ShortPDFFallsBackToOCR(t *testing.T) {
	ocr := &fakeOCR{text: "scanned page text"}
	e := &Extractor{PDF: NativePDF{}, OCR: ocr, MinTextChars: 50}

	text, err := e.Extract(context.Background(), tools.Document{Data: buildPDF("tiny"), MediaType: "application/pdf", Name: "scan.pdf"})
	require.NoError(t, err)
	assert.Equal(t, "scanned page text", text)
	assert.Equal(t, 1, ocr.calls)
	assert.Equal(t, "application/pdf", ocr.media)
}

func TestExtract_Failures(t *testing.T) {
	ctx := context.Background()

	t.Run("broken pdf without ocr", func(t *testing.T) {
		e := &Extractor{PDF: NativePDF{}}
		_, err := e.Extract(ctx, tools.Document{Data: []byte("garbage"), MediaType: "application/pdf"})
		assert.ErrorIs(t, err, tools.ErrExtractionFailed)
	})

	t.Run("broken pdf and ocr fails", func(t *testing.T) {
		e := &Extractor{PDF: NativePDF{}, OCR: &fakeOCR{err: errors.New("quota")}}
		_, err := e.Extract(ctx, tools.Document{Data: []byte("garbage"), MediaType: "application/pdf"})
		assert.ErrorIs(t, err, tools.ErrExtractionFailed)
	})

	t.Run("short text kept when ocr fails", func(t *testing.T) {
		e := &Extractor{PDF: NativePDF{}, OCR: &fakeOCR{err: errors.New("quota")}, MinTextChars: 100}
		text, err := e.Extract(ctx, tools.Document{Data: buildPDF("short"), MediaType: "application/pdf"})
		require.NoError(t, err)
		assert.Contains(t, text, "short")
	})

	t.Run("image without ocr", func(t *testing.T) {
		_, err := (&Extractor{}).Extract(ctx, tools.Document{Data: []byte("img"), MediaType: "image/png"})
		assert.ErrorIs(t, err, tools.ErrOCRFailed)
	})

	t.Run("ocr returns blank", func(t *testing.T) {
		e := &Extractor{OCR: &fakeOCR{text: "   "}}
		_, err := e.Extract(ctx, tools.Document{Data: []byte("img"), MediaType: "image/png"})
		assert.ErrorIs(t, err, tools.ErrExtractionFailed)
	})

	t.Run("unsupported type", func(t *testing.T) {
		_, err := (&Extractor{}).Extract(ctx, tools.Document{Data: []byte{0x50, 0x4b, 0x03}, MediaType: "application/zip"})
		assert.ErrorIs(t, err, tools.ErrExtractionFailed)
	})

	t.Run("empty upload", func(t *testing.T) {
		_, err := (&Extractor{}).Extract(ctx, tools.Document{MediaType: "text/plain"})
		assert.ErrorIs(t, err, tools.ErrMissingInput)
	})
}

func TestExtract_PlainText(t *testing.T) {
	text, err := (&Extractor{}).Extract(context.Background(), tools.Document{Data: []byte("\xEF\xBB\xBF  notes  \n"), Name: "notes.md"})
	require.NoError(t, err)
	assert.Equal(t, "notes", text)
}

type recordingRunner struct {
	args []string
}

func (r *recordingRunner) Run(_ context.Context, name string, args ...string) ([]byte, error) {
	r.args = append([]string{name}, args...)
	return []byte("layout text"), nil
}

func TestPoppler(t *testing.T) {
	runner := &recordingRunner{}
	p := &Poppler{Runner: runner, TempDir: t.TempDir()}
	text, err := p.Text(context.Background(), []byte("%PDF-1.4"))
	require.NoError(t, err)
	assert.Equal(t, "layout text", text)
	require.Len(t, runner.args, 6)
	assert.Equal(t, "pdftotext", runner.args[0])
	assert.True(t, strings.HasSuffix(runner.args[4], "input.pdf"))
	_, err = os.Stat(runner.args[4])
	assert.True(t, os.IsNotExist(err))
}

func TestNew(t *testing.T) {
	e, err := New(config.PDFConfig{}, nil, nil, nil)
	require.NoError(t, err)
	assert.IsType(t, NativePDF{}, e.PDF)
	assert.Equal(t, 50, e.MinTextChars)

	e, err = New(config.PDFConfig{Engine: "pdftotext", Binary: "/usr/bin/pdftotext"}, nil, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "/usr/bin/pdftotext", e.PDF.(*Poppler).Binary)

	_, err = New(config.PDFConfig{Engine: "acrobat"}, nil, nil, nil)
	assert.Error(t, err)
}
