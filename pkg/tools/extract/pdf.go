package extract

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"synapse/pkg/tools"

	"github.com/ledongthuc/pdf"
)

// PDFEngine pulls the embedded text layer out of a PDF.
type PDFEngine interface {
	Text(ctx context.Context, data []byte) (string, error)
}

// NativePDF parses PDFs in process.
type NativePDF struct{}

func (NativePDF) Text(_ context.Context, data []byte) (text string, err error) {
	// the parser panics on some malformed inputs
	defer func() {
		if r := recover(); r != nil {
			text, err = "", fmt.Errorf("pdf parser: %v", r)
		}
	}()

	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("open pdf: %w", err)
	}
	plain, err := r.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("read pdf text: %w", err)
	}
	b, err := io.ReadAll(plain)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Poppler runs pdftotext. The PDF is written to a temporary directory that
// is removed when the call returns.
type Poppler struct {
	Binary  string
	Runner  tools.CommandRunner
	TempDir string
}

func (p *Poppler) Text(ctx context.Context, data []byte) (string, error) {
	dir, err := os.MkdirTemp(p.TempDir, "synapse-pdf-*")
	if err != nil {
		return "", err
	}
	defer os.RemoveAll(dir)

	in := filepath.Join(dir, "input.pdf")
	if err := os.WriteFile(in, data, 0600); err != nil {
		return "", err
	}
	bin := p.Binary
	if bin == "" {
		bin = "pdftotext"
	}
	out, err := p.Runner.Run(ctx, bin, "-layout", "-enc", "UTF-8", in, "-")
	if err != nil {
		return "", err
	}
	return string(out), nil
}
