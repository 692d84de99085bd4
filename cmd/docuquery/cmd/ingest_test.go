package cmd

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSourceLabel(t *testing.T) {
	tests := []struct {
		name string
		src  string
		opts ingestOptions
		want string
	}{
		{
			name: "local path reduces to base name",
			src:  "/home/alex/docs/reports/handbook.pdf",
			opts: ingestOptions{},
			want: "handbook.pdf",
		},
		{
			name: "relative path reduces to base name",
			src:  "docs/faq.md",
			opts: ingestOptions{},
			want: "faq.md",
		},
		{
			name: "bare file name is kept",
			src:  "handbook.pdf",
			opts: ingestOptions{},
			want: "handbook.pdf",
		},
		{
			name: "url keeps its full form",
			src:  "https://example.com/docs/faq.html",
			opts: ingestOptions{fromURL: true},
			want: "https://example.com/docs/faq.html",
		},
		{
			name: "object key reduces to base name",
			src:  "support-kb/2024/handbook.pdf",
			opts: ingestOptions{fromStorage: true},
			want: "handbook.pdf",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, sourceLabel(tt.src, tt.opts))
		})
	}
}
