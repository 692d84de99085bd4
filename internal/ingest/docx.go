package ingest

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/xml"
	"io"
	"strings"

	qerr "github.com/docuquery/docuquery/internal/errors"
)

// DocxLoader extracts text from DOCX files by reading word/document.xml
// out of the ZIP container.
type DocxLoader struct{}

var _ Loader = (*DocxLoader)(nil)

func (l *DocxLoader) Name() string { return "docx" }

func (l *DocxLoader) Supports(contentType, source string) bool {
	if contentType == "application/vnd.openxmlformats-officedocument.wordprocessingml.document" {
		return true
	}
	return hasExt(source, ".docx")
}

func (l *DocxLoader) Load(ctx context.Context, data []byte, source string) (string, error) {
	reader, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", qerr.New(qerr.ErrCodeLoadFailed,
			"document is not a valid DOCX archive", err).WithDetail("source", source)
	}

	for _, file := range reader.File {
		if file.Name != "word/document.xml" {
			continue
		}

		rc, err := file.Open()
		if err != nil {
			return "", qerr.New(qerr.ErrCodeLoadFailed, "failed to open document.xml", err)
		}
		content, err := io.ReadAll(rc)
		_ = rc.Close()
		if err != nil {
			return "", qerr.New(qerr.ErrCodeLoadFailed, "failed to read document.xml", err)
		}

		return parseDocumentXML(content), nil
	}

	return "", nil
}

// documentXML mirrors the structure of word/document.xml.
type documentXML struct {
	Body struct {
		Paragraphs []docxParagraph `xml:"p"`
	} `xml:"body"`
}

type docxParagraph struct {
	Runs []docxRun `xml:"r"`
}

type docxRun struct {
	Text []docxText `xml:"t"`
}

type docxText struct {
	Content string `xml:",chardata"`
}

func parseDocumentXML(content []byte) string {
	var doc documentXML
	if err := xml.Unmarshal(content, &doc); err != nil {
		return ""
	}

	var result strings.Builder
	for i, para := range doc.Body.Paragraphs {
		if i > 0 {
			result.WriteString("\n")
		}
		for _, run := range para.Runs {
			for _, text := range run.Text {
				result.WriteString(text.Content)
			}
		}
	}
	return strings.TrimSpace(result.String())
}
