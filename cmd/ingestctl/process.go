package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"template-ingest/internal/common/observability"
	"template-ingest/internal/common/storage"
	"template-ingest/internal/template/assets"
	"template-ingest/internal/template/pipeline"
)

type processOptions struct {
	templateID   string
	outDir       string
	baseURL      string
	maxBytes     int64
	maxPreviews  int
	injectEditor bool
}

type processSummary struct {
	RunID          string               `json:"runId"`
	TemplateID     string               `json:"templateId"`
	Output         string               `json:"output"`
	AssetCount     int                  `json:"assetCount"`
	Assets         []assets.AssetRecord `json:"assets"`
	PreviewImages  []string             `json:"previewImages"`
	EditableFields map[string]string    `json:"editableFields"`
	Failures       []assets.Failure     `json:"failures,omitempty"`
}

func newProcessCommand() *cobra.Command {
	opts := &processOptions{}

	cmd := &cobra.Command{
		Use:   "process <archive.zip>",
		Short: "Process a template archive into a local directory",
		Long: `Runs the ingest pipeline against a local ZIP without any database or
remote storage. Assets are written under <out>/<template-id>/ and the rewritten
index.html is written next to them.

Example:
  ingestctl process site.zip --template-id wedding-01 --out ./build`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runProcess(cmd, args[0], opts)
		},
	}

	cmd.Flags().StringVar(&opts.templateID, "template-id", "", "Template id used as the object key prefix (required)")
	cmd.Flags().StringVarP(&opts.outDir, "out", "o", "", "Output directory (required)")
	cmd.Flags().StringVar(&opts.baseURL, "base-url", "", "Public URL prefix for rewritten references (default file:// URL of --out)")
	cmd.Flags().Int64Var(&opts.maxBytes, "max-bytes", 50*1024*1024, "Archive size ceiling in bytes")
	cmd.Flags().IntVar(&opts.maxPreviews, "max-previews", 3, "Number of preview images to collect")
	cmd.Flags().BoolVar(&opts.injectEditor, "inject-editor", false, "Add editor theme variables and outlines to the head")
	_ = cmd.MarkFlagRequired("template-id")
	_ = cmd.MarkFlagRequired("out")

	return cmd
}

func runProcess(cmd *cobra.Command, archivePath string, opts *processOptions) error {
	data, err := os.ReadFile(archivePath)
	if err != nil {
		return fmt.Errorf("read archive: %w", err)
	}
	if int64(len(data)) > opts.maxBytes {
		return fmt.Errorf("archive is %d bytes, limit is %d", len(data), opts.maxBytes)
	}

	outDir, err := filepath.Abs(opts.outDir)
	if err != nil {
		return err
	}
	baseURL := opts.baseURL
	if baseURL == "" {
		baseURL = "file://" + filepath.ToSlash(outDir)
	}

	backend := storage.NewOSBackend(outDir, "")
	objects := storage.NewStore(backend, strings.TrimSuffix(baseURL, "/")+"/")

	p, err := pipeline.New(pipeline.Dependencies{
		Uploader:      objects,
		Observability: observability.NewNoop(),
		Logger:        cliLogger(),
	}, pipeline.Options{
		MaxArchiveBytes:  opts.maxBytes,
		MaxPreviewImages: opts.maxPreviews,
		InjectEditor:     opts.injectEditor,
	})
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	res, err := p.ProcessArchive(ctx, opts.templateID, data)
	if err != nil {
		return err
	}

	indexKey := storage.ObjectKey(opts.templateID, "index.html")
	if err := backend.Put(ctx, indexKey, []byte(res.HTML), storage.ContentTypeFor(indexKey)); err != nil {
		return fmt.Errorf("write index.html: %w", err)
	}

	return writeJSON(cmd.OutOrStdout(), processSummary{
		RunID:          res.RunID,
		TemplateID:     res.TemplateID,
		Output:         filepath.Join(outDir, filepath.FromSlash(indexKey)),
		AssetCount:     res.AssetCount,
		Assets:         res.Assets,
		PreviewImages:  res.PreviewImages,
		EditableFields: res.EditableFields,
		Failures:       res.Failures,
	})
}
