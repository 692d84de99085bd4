package ingest

import (
	"context"
	"strings"
	"unicode/utf8"

	qerr "github.com/docuquery/docuquery/internal/errors"
)

// TextLoader handles plain text and markdown. Markdown is indexed as-is;
// its markup survives chunking without hurting retrieval.
type TextLoader struct{}

var _ Loader = (*TextLoader)(nil)

func (l *TextLoader) Name() string { return "text" }

func (l *TextLoader) Supports(contentType, source string) bool {
	switch contentType {
	case "text/plain", "text/markdown", "text/x-markdown":
		return true
	}
	return hasExt(source, ".txt", ".md", ".markdown", ".text")
}

func (l *TextLoader) Load(ctx context.Context, data []byte, source string) (string, error) {
	if !utf8.Valid(data) {
		return "", qerr.New(qerr.ErrCodeLoadFailed,
			"document is not valid UTF-8 text", nil).WithDetail("source", source)
	}
	return strings.TrimSpace(string(data)), nil
}
