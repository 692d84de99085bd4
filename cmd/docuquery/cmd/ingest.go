package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/docuquery/docuquery/internal/async"
	"github.com/docuquery/docuquery/internal/ingest"
	"github.com/docuquery/docuquery/internal/rag"
	"github.com/docuquery/docuquery/internal/storage"
)

// ingestOptions holds CLI flags for ingest.
type ingestOptions struct {
	fromURL     bool
	fromStorage bool
	contentType string
}

func newIngestCmd() *cobra.Command {
	var opts ingestOptions

	cmd := &cobra.Command{
		Use:   "ingest <project> <source>...",
		Short: "Register and ingest documents into a project",
		Long: `Ingest one or more documents into a project's index.

Sources are local file paths by default. With --url they are fetched over
HTTP; with --storage they are downloaded from the configured object store
bucket using the source as object key.

Each source becomes its own document and is processed on its own worker,
so one bad document never blocks the others.

Examples:
  docuquery ingest support-kb handbook.pdf policies.docx
  docuquery ingest support-kb --url https://example.com/faq.html
  docuquery ingest support-kb --storage support-kb/handbook.pdf`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runIngest(cmd.Context(), cmd, args[0], args[1:], opts)
		},
	}

	cmd.Flags().BoolVar(&opts.fromURL, "url", false, "Treat sources as HTTP URLs")
	cmd.Flags().BoolVar(&opts.fromStorage, "storage", false, "Treat sources as object store keys")
	cmd.Flags().StringVar(&opts.contentType, "content-type", "", "Override the detected content type")

	return cmd
}

func runIngest(ctx context.Context, cmd *cobra.Command, projectID string, sources []string, opts ingestOptions) error {
	if opts.fromURL && opts.fromStorage {
		return fmt.Errorf("--url and --storage are mutually exclusive")
	}

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	var objects storage.ObjectStore
	if opts.fromStorage {
		objects, err = storage.NewMinIOStore(ctx, storage.Config{
			Endpoint:  a.cfg.Storage.Endpoint,
			AccessKey: a.cfg.Storage.AccessKey,
			SecretKey: a.cfg.Storage.SecretKey,
			Bucket:    a.cfg.Storage.Bucket,
			UseSSL:    a.cfg.Storage.UseSSL,
		})
		if err != nil {
			return err
		}
	}

	out := cmd.OutOrStdout()
	runner := async.NewRunner()
	var registered []*rag.Document

	for _, src := range sources {
		data, contentType, err := loadSource(ctx, objects, src, opts)
		if err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "skipping %s: %v\n", src, err)
			continue
		}

		doc, err := a.svc.RegisterDocument(ctx, projectID, sourceLabel(src, opts))
		if err != nil {
			return err
		}
		registered = append(registered, doc)
		fmt.Fprintf(out, "registered %s as document %s\n", src, doc.ID)

		d := doc
		runner.Submit("ingest "+src, func(taskCtx context.Context) error {
			return a.svc.Ingest(taskCtx, d, data, contentType)
		})
	}

	runner.Wait()

	failures := 0
	for _, d := range registered {
		got, err := a.svc.Document(ctx, d.ID)
		if err != nil {
			continue
		}
		line := fmt.Sprintf("%-10s %s  %s", got.Status, got.ID, got.Source)
		if got.Error != "" {
			line += "  (" + got.Error + ")"
		}
		fmt.Fprintln(out, line)
		if got.Status == rag.StatusFailed {
			failures++
		}
	}
	if failures > 0 {
		fmt.Fprintf(out, "%d of %d documents failed\n", failures, len(registered))
	}
	return nil
}

// sourceLabel is the name a document is registered and cited under. URLs
// keep their full form; file paths and object keys reduce to the base name
// so citations do not leak local directory layouts.
func sourceLabel(src string, opts ingestOptions) string {
	switch {
	case opts.fromURL:
		return src
	case opts.fromStorage:
		return path.Base(src)
	default:
		return filepath.Base(src)
	}
}

// loadSource reads one source's raw bytes from disk, HTTP, or object
// storage.
func loadSource(ctx context.Context, objects storage.ObjectStore, src string, opts ingestOptions) ([]byte, string, error) {
	switch {
	case opts.fromURL:
		data, contentType, err := ingest.NewFetcher(0).Fetch(ctx, src)
		if err != nil {
			return nil, "", err
		}
		if opts.contentType != "" {
			contentType = opts.contentType
		}
		return data, contentType, nil

	case opts.fromStorage:
		rc, contentType, err := objects.Download(ctx, src)
		if err != nil {
			return nil, "", err
		}
		defer func() { _ = rc.Close() }()
		data, err := io.ReadAll(rc)
		if err != nil {
			return nil, "", fmt.Errorf("failed to read object %s: %w", src, err)
		}
		if opts.contentType != "" {
			contentType = opts.contentType
		}
		return data, contentType, nil

	default:
		data, err := os.ReadFile(src)
		if err != nil {
			return nil, "", err
		}
		// Content type left empty falls back to extension matching.
		return data, opts.contentType, nil
	}
}
