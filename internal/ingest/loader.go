// Package ingest turns raw document bytes into indexed chunks: a loader
// extracts plain text per format, the splitter cuts it into overlapping
// windows, and the Ingestor embeds and stores the result.
package ingest

import (
	"context"
	"fmt"
	"mime"
	"path/filepath"
	"strings"

	qerr "github.com/docuquery/docuquery/internal/errors"
)

// Loader extracts plain text from one document format.
type Loader interface {
	// Name identifies the loader in logs.
	Name() string

	// Supports reports whether this loader handles the content type or
	// source name.
	Supports(contentType, source string) bool

	// Load extracts plain text from raw document bytes.
	Load(ctx context.Context, data []byte, source string) (string, error)
}

// Registry selects a loader for a document.
type Registry struct {
	loaders []Loader
}

// NewRegistry creates a registry with the built-in loaders.
func NewRegistry(pdf *PDFLoader) *Registry {
	return &Registry{
		loaders: []Loader{
			&DocxLoader{},
			&HTMLLoader{},
			pdf,
			&TextLoader{},
		},
	}
}

// Select returns the loader for the given content type and source name.
// Unsupported formats fail the document, never the batch.
func (r *Registry) Select(contentType, source string) (Loader, error) {
	ct := normalizeContentType(contentType)
	for _, l := range r.loaders {
		if l.Supports(ct, source) {
			return l, nil
		}
	}
	return nil, qerr.New(qerr.ErrCodeUnsupportedType,
		fmt.Sprintf("unsupported document type %q for %s", contentType, source), nil)
}

// normalizeContentType strips parameters like charset.
func normalizeContentType(contentType string) string {
	if contentType == "" {
		return ""
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return strings.ToLower(strings.TrimSpace(contentType))
	}
	return mediaType
}

func hasExt(source string, exts ...string) bool {
	ext := strings.ToLower(filepath.Ext(source))
	for _, e := range exts {
		if ext == e {
			return true
		}
	}
	return false
}
