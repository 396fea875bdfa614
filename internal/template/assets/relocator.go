package assets

import (
	"context"

	"template-ingest/internal/common/errors"
	"template-ingest/internal/common/logger"
	"template-ingest/internal/common/metrics"
	"template-ingest/internal/common/storage"
	"template-ingest/internal/template/archive"
	"template-ingest/internal/template/stylesheet"
)

// Uploader writes one object and returns its public URL. *storage.Store
// implements it.
type Uploader interface {
	Upload(ctx context.Context, key string, body []byte, contentType string) (string, error)
}

type Options struct {
	MaxPreviewImages int
	Logger           logger.Logger
}

// Relocator runs one relocation. It must not be reused across runs.
type Relocator struct {
	uploader   Uploader
	logger     logger.Logger
	maxPreview int
}

// Failure is a per-entry problem that was logged and skipped.
type Failure struct {
	Path  string `json:"path"`
	Stage string `json:"stage"`
	Code  string `json:"code"`
}

type Outcome struct {
	HTML          string
	Assets        *AssetMap
	PreviewImages []string
	Failures      []Failure
	Ignored       int
}

func NewRelocator(uploader Uploader, opts Options) *Relocator {
	log := opts.Logger
	if log == nil {
		log = logger.NewNoOpLogger()
	}
	return &Relocator{
		uploader:   uploader,
		logger:     log,
		maxPreview: opts.MaxPreviewImages,
	}
}

type pending struct {
	entry archive.Entry
	rel   string
	text  string
}

// Relocate uploads every binary asset under root, then rewrites and uploads
// every stylesheet against the completed binary map (sheets reached through
// @import go first), and returns the captured
// entry page text. Entry-level failures are recorded and skipped; a missing or
// undecodable entry page aborts before anything is written.
func (r *Relocator) Relocate(ctx context.Context, entries []archive.Entry, root, templateID string) (*Outcome, error) {
	htmlEntry, ok := findEntryPage(entries, root)
	if !ok {
		return nil, errors.NewMissingEntryPointError()
	}
	html, err := htmlEntry.ReadText()
	if err != nil {
		return nil, err
	}

	out := &Outcome{HTML: html, Assets: NewAssetMap()}
	var sheets []pending

	// pass 1: binary assets
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if e.IsDir {
			continue
		}
		rel, inside := archive.Relative(root, e.Path)
		if !inside {
			metrics.IngestAssets.WithLabelValues(string(KindIgnored), "outside_root").Inc()
			continue
		}
		if rel == "" || rel == archive.EntryPoint {
			continue
		}

		switch Classify(rel) {
		case KindStylesheet:
			sheets = append(sheets, pending{entry: e, rel: rel})
		case KindBinary:
			r.relocateBinary(ctx, e, rel, templateID, out)
		default:
			out.Ignored++
			metrics.IngestAssets.WithLabelValues(string(KindIgnored), "skipped").Inc()
		}
	}

	// pass 2: stylesheets, imported sheets before the sheets importing them
	decoded := make([]pending, 0, len(sheets))
	for _, s := range sheets {
		text, err := s.entry.ReadText()
		if err != nil {
			r.skip(out, s.rel, "decode", err, KindStylesheet)
			continue
		}
		s.text = text
		decoded = append(decoded, s)
	}
	for _, s := range orderByImports(decoded) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		r.relocateStylesheet(ctx, s, templateID, out)
	}

	return out, nil
}

func (r *Relocator) relocateBinary(ctx context.Context, e archive.Entry, rel, templateID string, out *Outcome) {
	body, err := e.ReadBinary()
	if err != nil {
		r.skip(out, rel, "read", errors.NewDecodeFailedError(rel, err), KindBinary)
		return
	}

	key := storage.ObjectKey(templateID, rel)
	publicURL, err := r.uploader.Upload(ctx, key, body, storage.ContentTypeFor(rel))
	if err != nil {
		r.skip(out, rel, "upload", errors.NewStorageUploadFailedError(key, err), KindBinary)
		return
	}

	if prev, ok := out.Assets.Get(rel); ok {
		r.logger.Debug("Duplicate archive entry replaces earlier upload", map[string]interface{}{
			"path":     rel,
			"prevSize": prev.Size,
			"size":     len(body),
		})
	}
	out.Assets.Put(AssetRecord{RelativePath: rel, Kind: KindBinary, PublicURL: publicURL, Size: len(body)})
	metrics.IngestAssets.WithLabelValues(string(KindBinary), "uploaded").Inc()

	if IsPreviewImage(rel) && len(out.PreviewImages) < r.maxPreview {
		out.PreviewImages = append(out.PreviewImages, publicURL)
	}
}

func (r *Relocator) relocateStylesheet(ctx context.Context, s pending, templateID string, out *Outcome) {
	res := stylesheet.Rewrite(s.text, s.rel, out.Assets.Lookup)
	if len(res.Unresolved) > 0 {
		r.logger.Debug("Stylesheet has unresolved references", map[string]interface{}{
			"path":       s.rel,
			"unresolved": res.Unresolved,
		})
	}

	key := storage.ObjectKey(templateID, s.rel)
	body := []byte(res.Text)
	publicURL, err := r.uploader.Upload(ctx, key, body, "text/css")
	if err != nil {
		r.skip(out, s.rel, "upload", errors.NewStorageUploadFailedError(key, err), KindStylesheet)
		return
	}

	out.Assets.Put(AssetRecord{RelativePath: s.rel, Kind: KindStylesheet, PublicURL: publicURL, Size: len(body)})
	metrics.IngestAssets.WithLabelValues(string(KindStylesheet), "uploaded").Inc()
}

func (r *Relocator) skip(out *Outcome, rel, stage string, err error, kind Kind) {
	stdErr := errors.AsStandardError(err)
	out.Failures = append(out.Failures, Failure{Path: rel, Stage: stage, Code: string(stdErr.Code)})
	metrics.IngestAssets.WithLabelValues(string(kind), "failed").Inc()

	r.logger.Warn("Skipping archive entry", map[string]interface{}{
		"path":  rel,
		"stage": stage,
		"code":  stdErr.Code,
		"error": err,
	})
}

// findEntryPage returns the first entry whose root-relative path is index.html.
func findEntryPage(entries []archive.Entry, root string) (archive.Entry, bool) {
	for _, e := range entries {
		if e.IsDir {
			continue
		}
		if rel, ok := archive.Relative(root, e.Path); ok && rel == archive.EntryPoint {
			return e, true
		}
	}
	return archive.Entry{}, false
}
