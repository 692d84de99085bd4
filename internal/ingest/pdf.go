package ingest

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	qerr "github.com/docuquery/docuquery/internal/errors"
)

// CommandRunner abstracts external command execution so tests can stub
// pdftotext without the binary installed.
type CommandRunner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

// execRunner runs commands with os/exec.
type execRunner struct{}

func (execRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("%s failed: %w: %s", name, err, strings.TrimSpace(stderr.String()))
	}
	return stdout.Bytes(), nil
}

// PDFLoader extracts text from PDFs by shelling out to pdftotext from
// poppler-utils.
type PDFLoader struct {
	runner CommandRunner
}

var _ Loader = (*PDFLoader)(nil)

// NewPDFLoader creates a PDF loader using the system pdftotext binary.
func NewPDFLoader() *PDFLoader {
	return &PDFLoader{runner: execRunner{}}
}

// NewPDFLoaderWithRunner creates a PDF loader with a custom runner.
func NewPDFLoaderWithRunner(runner CommandRunner) *PDFLoader {
	return &PDFLoader{runner: runner}
}

func (l *PDFLoader) Name() string { return "pdf" }

func (l *PDFLoader) Supports(contentType, source string) bool {
	if contentType == "application/pdf" {
		return true
	}
	return hasExt(source, ".pdf")
}

func (l *PDFLoader) Load(ctx context.Context, data []byte, source string) (string, error) {
	// pdftotext reads from a file, write the bytes to a temp location.
	tmpDir, err := os.MkdirTemp("", "docuquery-pdf-*")
	if err != nil {
		return "", qerr.New(qerr.ErrCodeLoadFailed, "failed to create temp directory", err)
	}
	defer func() { _ = os.RemoveAll(tmpDir) }()

	tmpPath := filepath.Join(tmpDir, "input.pdf")
	if err := os.WriteFile(tmpPath, data, 0o600); err != nil {
		return "", qerr.New(qerr.ErrCodeLoadFailed, "failed to write temp PDF", err)
	}

	out, err := l.runner.Run(ctx, "pdftotext", "-layout", tmpPath, "-")
	if err != nil {
		return "", qerr.New(qerr.ErrCodeLoadFailed,
			"failed to extract PDF text", err).WithDetail("source", source)
	}
	return strings.TrimSpace(string(out)), nil
}
