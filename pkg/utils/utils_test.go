package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGenerateID(t *testing.T) {
	a, b := GenerateID(), GenerateID()
	assert.Len(t, a, 24)
	assert.NotEqual(t, a, b)
}

func TestResolveMediaType(t *testing.T) {
	png := []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")

	tests := []struct {
		name     string
		declared string
		file     string
		data     []byte
		want     string
	}{
		{name: "declared wins", declared: "text/csv", file: "x.pdf", want: "text/csv"},
		{name: "generic declared falls to extension", declared: "application/octet-stream", file: "report.PDF", want: "application/pdf"},
		{name: "extension", file: "data.csv", want: "text/csv"},
		{name: "markdown", file: "notes.md", want: "text/markdown"},
		{name: "sniffed", file: "upload", data: png, want: "image/png"},
		{name: "nothing known", want: "application/octet-stream"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, ResolveMediaType(tc.declared, tc.file, tc.data))
		})
	}
}

func TestDetectMimeAndExt(t *testing.T) {
	mt, ext := DetectMimeAndExt([]byte("%PDF-1.7\n"))
	assert.Equal(t, "application/pdf", mt)
	assert.Equal(t, ".pdf", ext)

	mt, ext = DetectMimeAndExt(nil)
	assert.Equal(t, "application/octet-stream", mt)
	assert.Equal(t, ".bin", ext)
}
