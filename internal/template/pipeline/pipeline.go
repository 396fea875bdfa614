// Package pipeline turns a template ZIP into a self-contained, editable page:
// validate the request, fetch the archive under a size ceiling, relocate its
// assets, rewrite references and persist the result to the template record.
package pipeline

import (
	"context"
	stderrors "errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"template-ingest/internal/common/auth"
	"template-ingest/internal/common/config"
	"template-ingest/internal/common/errors"
	commonhttp "template-ingest/internal/common/http"
	"template-ingest/internal/common/logger"
	"template-ingest/internal/common/metrics"
	"template-ingest/internal/common/observability"
	"template-ingest/internal/template/archive"
	"template-ingest/internal/template/assets"
	"template-ingest/internal/template/editable"
	"template-ingest/internal/template/markup"
	"template-ingest/internal/template/notify"
	"template-ingest/internal/template/store"
)

type RoleChecker interface {
	HasRole(ctx context.Context, userID, role string) (bool, error)
}

type TemplateRepository interface {
	Exists(ctx context.Context, templateID string) (bool, error)
	SaveProcessed(ctx context.Context, p store.ProcessedTemplate) error
}

type RunRecorder interface {
	Start(ctx context.Context, runID, templateID, state string) error
	Transition(ctx context.Context, runID, state string) error
	Finish(ctx context.Context, runID string, assetCount int, errMsg string) error
}

type CatalogIndexer interface {
	IndexTemplate(ctx context.Context, doc store.CatalogDocument) error
}

type EventNotifier interface {
	TemplateProcessed(ctx context.Context, ev notify.Event) error
}

// Downloader fetches at most limit bytes. *commonhttp.Client implements it.
type Downloader interface {
	GetLimited(ctx context.Context, url string, limit int64) ([]byte, error)
}

type Options struct {
	MaxArchiveBytes  int64
	SourceURLPrefix  string
	MaxPreviewImages int
	AdminRole        string
	DownloadTimeout  time.Duration
	InjectEditor     bool
}

func OptionsFromConfig(cfg config.IngestConfig) Options {
	return Options{
		MaxArchiveBytes:  cfg.MaxArchiveBytes,
		SourceURLPrefix:  cfg.SourceURLPrefix,
		MaxPreviewImages: cfg.MaxPreviewImages,
		AdminRole:        cfg.AdminRole,
		DownloadTimeout:  config.GetDuration(cfg.DownloadTimeout),
		InjectEditor:     cfg.InjectEditor,
	}
}

// Dependencies wires the pipeline's collaborators. Only Uploader is required
// for ProcessArchive; Run additionally needs Roles, Templates and Downloader.
// Runs, Catalog and Notifier are optional.
type Dependencies struct {
	Uploader      assets.Uploader
	Roles         RoleChecker
	Templates     TemplateRepository
	Downloader    Downloader
	Runs          RunRecorder
	Catalog       CatalogIndexer
	Notifier      EventNotifier
	Observability *observability.Observability
	Logger        logger.Logger
}

type Pipeline struct {
	deps    Dependencies
	options Options
	obs     *observability.Observability
	logger  logger.Logger
	now     func() time.Time
}

type Request struct {
	Identity   *auth.Identity
	TemplateID string
	ZipURL     string
}

// Result describes a run. It is returned alongside the error on failure so
// callers can still report the run id and the states it went through.
type Result struct {
	RunID          string                  `json:"runId"`
	TemplateID     string                  `json:"templateId"`
	HTML           string                  `json:"-"`
	AssetURLs      map[string]string       `json:"assetUrls"`
	PreviewImages  []string                `json:"previewImages"`
	EditableFields map[string]string       `json:"editableFields,omitempty"`
	AssetCount     int                     `json:"assetCount"`
	Assets         []assets.AssetRecord    `json:"assets,omitempty"`
	Failures       []assets.Failure        `json:"failures,omitempty"`
	State          State                   `json:"state"`
	Transitions    []State                 `json:"transitions"`
	Timings        map[State]time.Duration `json:"timings"`
}

func New(deps Dependencies, opts Options) (*Pipeline, error) {
	if deps.Uploader == nil {
		return nil, stderrors.New("pipeline: uploader is required")
	}
	if opts.MaxArchiveBytes <= 0 {
		return nil, stderrors.New("pipeline: max archive bytes must be positive")
	}

	log := deps.Logger
	if log == nil {
		log = logger.NewNoOpLogger()
	}
	obs := deps.Observability
	if obs == nil {
		obs = observability.NewNoop()
	}

	return &Pipeline{
		deps:    deps,
		options: opts,
		obs:     obs,
		logger:  log,
		now:     time.Now,
	}, nil
}

// Run executes the full state machine for one upload.
func (p *Pipeline) Run(ctx context.Context, req Request) (*Result, error) {
	if p.deps.Roles == nil || p.deps.Templates == nil || p.deps.Downloader == nil {
		return nil, errors.NewInternalError(stderrors.New("pipeline is not configured for remote runs"))
	}

	ctx, span := p.obs.StartSpan(ctx, "template.ingest", attribute.String("template.id", req.TemplateID))
	defer span.End()

	r := p.begin(ctx, req.TemplateID)
	span.SetAttributes(attribute.String("run.id", r.id))

	err := p.execute(ctx, r, req)
	r.end(ctx, err)
	if err != nil {
		span.RecordError(err)
		return r.result, err
	}
	return r.result, nil
}

func (p *Pipeline) execute(ctx context.Context, r *run, req Request) error {
	r.enter(ctx, StateValidating)
	if err := p.validate(ctx, req); err != nil {
		return err
	}

	r.enter(ctx, StateDownloading)
	data, err := p.download(ctx, req.ZipURL)
	if err != nil {
		return err
	}

	if err := p.process(ctx, r, req.TemplateID, data); err != nil {
		return err
	}

	r.enter(ctx, StatePersisting)
	if err := p.persist(ctx, r.result); err != nil {
		return err
	}

	r.enter(ctx, StateDone)
	p.announce(ctx, r, req.Identity)
	return nil
}

// ProcessArchive runs parsing, relocation and rewriting on an archive that is
// already in memory. Nothing is validated or persisted.
func (p *Pipeline) ProcessArchive(ctx context.Context, templateID string, data []byte) (*Result, error) {
	r := p.begin(ctx, templateID)
	err := p.process(ctx, r, templateID, data)
	if err == nil {
		r.enter(ctx, StateDone)
	}
	r.end(ctx, err)
	if err != nil {
		return r.result, err
	}
	return r.result, nil
}

func (p *Pipeline) validate(ctx context.Context, req Request) error {
	ctx, span := p.obs.StartSpan(ctx, "ingest.validate")
	defer span.End()

	if req.Identity == nil || req.Identity.UserID == "" {
		return errors.NewUnauthorizedError("no caller identity")
	}

	ok, err := p.deps.Roles.HasRole(ctx, req.Identity.UserID, p.options.AdminRole)
	if err != nil {
		return err
	}
	if !ok {
		return errors.NewForbiddenError("userId: " + req.Identity.UserID)
	}

	if req.TemplateID == "" || req.ZipURL == "" {
		return errors.NewInvalidInputError("Missing required fields", "templateId and zipUrl are required")
	}

	exists, err := p.deps.Templates.Exists(ctx, req.TemplateID)
	if err != nil {
		return err
	}
	if !exists {
		return errors.NewTemplateNotFoundError(req.TemplateID)
	}

	if !strings.HasPrefix(req.ZipURL, p.options.SourceURLPrefix) {
		return errors.NewInvalidSourceURLError(req.ZipURL)
	}
	return nil
}

func (p *Pipeline) download(ctx context.Context, url string) ([]byte, error) {
	ctx, span := p.obs.StartSpan(ctx, "ingest.download")
	defer span.End()

	if p.options.DownloadTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.options.DownloadTimeout)
		defer cancel()
	}

	data, err := p.deps.Downloader.GetLimited(ctx, url, p.options.MaxArchiveBytes)
	if err != nil {
		var tooLarge *commonhttp.TooLargeError
		if stderrors.As(err, &tooLarge) {
			return nil, errors.NewPayloadTooLargeError(p.options.MaxArchiveBytes)
		}
		return nil, errors.NewDownloadFailedError(err)
	}

	metrics.IngestArchiveBytes.Observe(float64(len(data)))
	span.SetAttributes(attribute.Int("archive.bytes", len(data)))
	return data, nil
}

func (p *Pipeline) process(ctx context.Context, r *run, templateID string, data []byte) error {
	r.enter(ctx, StateParsing)
	arc, err := archive.Load(data)
	if err != nil {
		return err
	}
	entries := arc.Entries()
	root, err := archive.ResolveRoot(entries)
	if err != nil {
		return err
	}
	r.log.Debug("Resolved archive root", map[string]interface{}{
		"root":    root,
		"entries": len(entries),
	})

	r.enter(ctx, StateRelocating)
	relocCtx, span := p.obs.StartSpan(ctx, "ingest.relocate", attribute.String("archive.root", root))
	relocator := assets.NewRelocator(p.deps.Uploader, assets.Options{
		MaxPreviewImages: p.options.MaxPreviewImages,
		Logger:           r.log,
	})
	outcome, err := relocator.Relocate(relocCtx, entries, root, templateID)
	span.End()
	if err != nil {
		return contextError(err)
	}
	r.log.Info("Archive assets relocated", map[string]interface{}{
		"binaries":    outcome.Assets.Count(assets.KindBinary),
		"stylesheets": outcome.Assets.Count(assets.KindStylesheet),
		"ignored":     outcome.Ignored,
		"skipped":     len(outcome.Failures),
	})

	r.enter(ctx, StateRewriting)
	rewritten := markup.Rewrite(outcome.HTML, outcome.Assets.URLs())
	if len(rewritten.Unresolved) > 0 {
		r.log.Info("Entry page has unresolved references", map[string]interface{}{
			"count":      len(rewritten.Unresolved),
			"unresolved": rewritten.Unresolved,
		})
	}

	page := rewritten.HTML
	if p.options.InjectEditor {
		page = editable.InjectEditorStyles(page, editable.DefaultPrimaryColor, editable.DefaultSecondaryColor)
	}
	fields, err := editable.ExtractFields(page)
	if err != nil {
		r.log.Warn("Could not extract editable fields", map[string]interface{}{"error": err})
	}

	res := r.result
	res.HTML = page
	res.AssetURLs = outcome.Assets.URLs()
	res.PreviewImages = outcome.PreviewImages
	res.EditableFields = fields
	res.AssetCount = outcome.Assets.Len()
	res.Assets = outcome.Assets.Records()
	res.Failures = outcome.Failures
	return nil
}

func (p *Pipeline) persist(ctx context.Context, res *Result) error {
	ctx, span := p.obs.StartSpan(ctx, "ingest.persist")
	defer span.End()

	return p.deps.Templates.SaveProcessed(ctx, store.ProcessedTemplate{
		TemplateID:     res.TemplateID,
		HTML:           res.HTML,
		AssetURLs:      res.AssetURLs,
		PreviewImages:  res.PreviewImages,
		EditableFields: res.EditableFields,
	})
}

// announce indexes and notifies after a successful persist. Neither can fail the run.
func (p *Pipeline) announce(ctx context.Context, r *run, who *auth.Identity) {
	ctx = context.WithoutCancel(ctx)
	res := r.result
	processedAt := p.now().UTC()

	if p.deps.Catalog != nil {
		err := p.deps.Catalog.IndexTemplate(ctx, store.CatalogDocument{
			TemplateID:     res.TemplateID,
			AssetCount:     res.AssetCount,
			PreviewImages:  res.PreviewImages,
			EditableFields: res.EditableFields,
			ProcessedAt:    processedAt,
		})
		if err != nil {
			r.log.Warn("Catalog indexing failed", map[string]interface{}{"error": err})
		}
	}

	if p.deps.Notifier != nil {
		ev := notify.Event{
			RunID:         res.RunID,
			TemplateID:    res.TemplateID,
			AssetCount:    res.AssetCount,
			PreviewImages: res.PreviewImages,
			ProcessedAt:   processedAt,
		}
		if who != nil {
			ev.ProcessedBy = who.UserID
		}
		if err := p.deps.Notifier.TemplateProcessed(ctx, ev); err != nil {
			r.log.Warn("Processed notification failed", map[string]interface{}{"error": err})
		}
	}
}

func contextError(err error) error {
	if stderrors.Is(err, context.DeadlineExceeded) {
		return errors.NewTimeoutError("pipeline", err)
	}
	return err
}

func newRunID() string {
	return uuid.NewString()
}
