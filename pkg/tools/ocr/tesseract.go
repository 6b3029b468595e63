package ocr

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"synapse/pkg/config"
	"synapse/pkg/tools"
	"synapse/pkg/utils"
)

// Tesseract shells out to the tesseract CLI. Input bytes are written into
// a temporary directory that is removed on every return path.
type Tesseract struct {
	Binary string
	Lang   string
	Runner tools.CommandRunner
	// TempDir is the parent of the scratch directory; "" uses os.TempDir.
	TempDir string
}

func newTesseractFromConfig(cfg config.OCRConfig, deps Deps) (tools.OCRExtractor, error) {
	runner := deps.Runner
	if runner == nil {
		runner = tools.ExecRunner{}
	}
	return &Tesseract{
		Binary: cfg.Tesseract.Binary,
		Lang:   cfg.Tesseract.Lang,
		Runner: runner,
	}, nil
}

func (t *Tesseract) Recognize(ctx context.Context, data []byte, mediaType string) (string, error) {
	if len(data) == 0 {
		return "", tools.Errorf(tools.KindOCRFailed, "ocr.tesseract", "empty input")
	}
	if strings.Contains(mediaType, "pdf") {
		return "", tools.Errorf(tools.KindOCRFailed, "ocr.tesseract", "tesseract cannot read PDF input, convert it to an image first")
	}

	dir, err := os.MkdirTemp(t.TempDir, "synapse-ocr-*")
	if err != nil {
		return "", tools.Wrap(tools.KindOCRFailed, "ocr.tesseract", err)
	}
	defer os.RemoveAll(dir)

	_, ext := utils.DetectMimeAndExt(data)
	in := filepath.Join(dir, "input"+ext)
	if err := os.WriteFile(in, data, 0600); err != nil {
		return "", tools.Wrap(tools.KindOCRFailed, "ocr.tesseract", err)
	}

	bin := t.Binary
	if bin == "" {
		bin = "tesseract"
	}
	lang := t.Lang
	if lang == "" {
		lang = "eng"
	}

	out, err := t.Runner.Run(ctx, bin, in, "stdout", "-l", lang)
	if err != nil {
		return "", &tools.Error{Kind: tools.KindOCRFailed, Op: "ocr.tesseract", Msg: fmt.Sprintf("tesseract failed: %v", err), Err: err}
	}
	return strings.TrimSpace(string(out)), nil
}
