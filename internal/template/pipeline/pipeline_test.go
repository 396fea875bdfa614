package pipeline

import (
	"archive/zip"
	"bytes"
	"context"
	stderrors "errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"template-ingest/internal/common/auth"
	"template-ingest/internal/common/errors"
	commonhttp "template-ingest/internal/common/http"
	"template-ingest/internal/common/logger"
	"template-ingest/internal/common/storage"
	"template-ingest/internal/template/notify"
	"template-ingest/internal/template/store"
)

const (
	bucketPath = "/storage/v1/object/public/templates/"
	publicBase = "https://project.example.co" + bucketPath
	templateID = "t-1"
	adminID    = "admin-1"
)

// ==========================
// Fakes
// ==========================

type fakeRoles struct {
	admins map[string]bool
	err    error
}

func (f *fakeRoles) HasRole(_ context.Context, userID, role string) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	return role == "admin" && f.admins[userID], nil
}

type fakeTemplates struct {
	known   map[string]bool
	saved   []store.ProcessedTemplate
	saveErr error
}

func (f *fakeTemplates) Exists(_ context.Context, id string) (bool, error) {
	return f.known[id], nil
}

func (f *fakeTemplates) SaveProcessed(_ context.Context, p store.ProcessedTemplate) error {
	if f.saveErr != nil {
		return f.saveErr
	}
	f.saved = append(f.saved, p)
	return nil
}

type mockCatalog struct{ mock.Mock }

func (m *mockCatalog) IndexTemplate(ctx context.Context, doc store.CatalogDocument) error {
	return m.Called(ctx, doc).Error(0)
}

type mockNotifier struct{ mock.Mock }

func (m *mockNotifier) TemplateProcessed(ctx context.Context, ev notify.Event) error {
	return m.Called(ctx, ev).Error(0)
}

func buildZip(t *testing.T, files ...string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for i := 0; i < len(files); i += 2 {
		w, err := zw.Create(files[i])
		require.NoError(t, err)
		_, err = w.Write([]byte(files[i+1]))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func siteZip(t *testing.T) []byte {
	return buildZip(t,
		"site/index.html", `<html><head><link rel="stylesheet" href="css/style.css"></head>`+
			`<body><img src="img/logo.png"><h1 data-editable="title"> Ana &amp; Ion </h1></body></html>`,
		"site/css/style.css", `body { background: url('../img/bg.jpg') no-repeat; }`,
		"site/img/bg.jpg", "JPEGDATA",
		"site/img/logo.png", "PNGDATA",
		"__MACOSX/site/._index.html", "junk",
	)
}

// archiveServer serves body under the bucket path and counts requests.
func archiveServer(t *testing.T, body []byte) (*httptest.Server, *int32) {
	t.Helper()
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		if !strings.HasPrefix(r.URL.Path, bucketPath) {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/zip")
		w.Write(body)
	}))
	t.Cleanup(srv.Close)
	return srv, &hits
}

type harness struct {
	pipeline  *Pipeline
	backend   *storage.FSBackend
	templates *fakeTemplates
	catalog   *mockCatalog
	notifier  *mockNotifier
	zipURL    string
	hits      *int32
	sourceURL string
}

func newHarness(t *testing.T, body []byte, tweak func(*Options, *Dependencies)) *harness {
	t.Helper()
	srv, hits := archiveServer(t, body)

	backend := storage.NewMemBackend("templates")
	h := &harness{
		backend:   backend,
		templates: &fakeTemplates{known: map[string]bool{templateID: true}},
		catalog:   &mockCatalog{},
		notifier:  &mockNotifier{},
		zipURL:    srv.URL + bucketPath + "uploads/site.zip",
		sourceURL: srv.URL + bucketPath,
		hits:      hits,
	}

	opts := Options{
		MaxArchiveBytes:  50 * 1024 * 1024,
		SourceURLPrefix:  h.sourceURL,
		MaxPreviewImages: 3,
		AdminRole:        "admin",
		DownloadTimeout:  5 * time.Second,
	}
	deps := Dependencies{
		Uploader:   storage.NewStore(backend, publicBase),
		Roles:      &fakeRoles{admins: map[string]bool{adminID: true}},
		Templates:  h.templates,
		Downloader: commonhttp.NewClient(5 * time.Second),
		Catalog:    h.catalog,
		Notifier:   h.notifier,
		Logger:     logger.NewTestLogger(t),
	}
	if tweak != nil {
		tweak(&opts, &deps)
	}

	p, err := New(deps, opts)
	require.NoError(t, err)
	h.pipeline = p
	return h
}

func (h *harness) request() Request {
	return Request{
		Identity:   &auth.Identity{UserID: adminID, Source: "jwt"},
		TemplateID: templateID,
		ZipURL:     h.zipURL,
	}
}

// ==========================
// Happy path
// ==========================

func TestRun_EndToEnd(t *testing.T) {
	h := newHarness(t, siteZip(t), nil)
	h.catalog.On("IndexTemplate", mock.Anything, mock.MatchedBy(func(doc store.CatalogDocument) bool {
		return doc.TemplateID == templateID && doc.AssetCount == 3
	})).Return(nil)
	h.notifier.On("TemplateProcessed", mock.Anything, mock.MatchedBy(func(ev notify.Event) bool {
		return ev.TemplateID == templateID && ev.ProcessedBy == adminID && ev.AssetCount == 3
	})).Return(nil)

	res, err := h.pipeline.Run(context.Background(), h.request())
	require.NoError(t, err)

	assert.Equal(t, []State{
		StateIdle, StateValidating, StateDownloading, StateParsing,
		StateRelocating, StateRewriting, StatePersisting, StateDone,
	}, res.Transitions)
	assert.Equal(t, StateDone, res.State)
	assert.NotEmpty(t, res.RunID)

	cssURL := publicBase + "t-1/css/style.css"
	logoURL := publicBase + "t-1/img/logo.png"
	bgURL := publicBase + "t-1/img/bg.jpg"

	assert.Contains(t, res.HTML, `href="`+cssURL+`"`)
	assert.Contains(t, res.HTML, `src="`+logoURL+`"`)
	assert.NotContains(t, res.HTML, `"css/style.css"`)

	sheet, err := h.backend.Get(context.Background(), "t-1/css/style.css")
	require.NoError(t, err)
	assert.Contains(t, string(sheet), `url("`+bgURL+`")`)
	assert.NotContains(t, string(sheet), "../img/bg.jpg")

	assert.ElementsMatch(t, []string{bgURL, logoURL}, res.PreviewImages)
	assert.Equal(t, 3, res.AssetCount)
	assert.Equal(t, map[string]string{"title": "Ana & Ion"}, res.EditableFields)
	require.Len(t, res.Assets, 3)
	assert.Equal(t, "css/style.css", res.Assets[2].RelativePath)
	assert.Equal(t, len("JPEGDATA"), res.Assets[0].Size)

	require.Len(t, h.templates.saved, 1)
	saved := h.templates.saved[0]
	assert.Equal(t, res.HTML, saved.HTML)
	assert.Equal(t, res.AssetURLs, saved.AssetURLs)
	assert.Equal(t, cssURL, saved.AssetURLs["css/style.css"])

	keys, err := h.backend.Keys()
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"t-1/css/style.css", "t-1/img/bg.jpg", "t-1/img/logo.png"}, keys)

	h.catalog.AssertExpectations(t)
	h.notifier.AssertExpectations(t)
}

func TestRun_SideEffectFailuresAreNotFatal(t *testing.T) {
	h := newHarness(t, siteZip(t), nil)
	h.catalog.On("IndexTemplate", mock.Anything, mock.Anything).Return(stderrors.New("es down"))
	h.notifier.On("TemplateProcessed", mock.Anything, mock.Anything).Return(stderrors.New("sns down"))

	res, err := h.pipeline.Run(context.Background(), h.request())
	require.NoError(t, err)
	assert.Equal(t, StateDone, res.State)
	assert.Len(t, h.templates.saved, 1)
}

// ==========================
// Validation
// ==========================

func TestRun_ValidationOrder(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(h *harness, req *Request)
		code   errors.ErrorCode
		msg    string
	}{
		{
			name:   "no identity",
			mutate: func(_ *harness, req *Request) { req.Identity = nil },
			code:   errors.ErrCodeUnauthorized,
			msg:    "Unauthorized",
		},
		{
			name: "not an admin, even with missing fields",
			mutate: func(_ *harness, req *Request) {
				req.Identity = &auth.Identity{UserID: "guest"}
				req.TemplateID = ""
			},
			code: errors.ErrCodeForbidden,
			msg:  "Forbidden: Admin access required",
		},
		{
			name:   "missing zip url",
			mutate: func(_ *harness, req *Request) { req.ZipURL = "" },
			code:   errors.ErrCodeInvalidInput,
			msg:    "Missing required fields",
		},
		{
			name:   "unknown template",
			mutate: func(_ *harness, req *Request) { req.TemplateID = "t-404" },
			code:   errors.ErrCodeTemplateNotFound,
			msg:    "Template not found",
		},
		{
			name:   "foreign bucket",
			mutate: func(h *harness, req *Request) { req.ZipURL = "https://evil.example.com/site.zip" },
			code:   errors.ErrCodeInvalidSourceURL,
			msg:    "Invalid ZIP URL - must be from templates bucket",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, siteZip(t), nil)
			req := h.request()
			tt.mutate(h, &req)

			res, err := h.pipeline.Run(context.Background(), req)
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.code), err.Error())
			assert.Equal(t, tt.msg, errors.AsStandardError(err).Message)

			assert.Equal(t, []State{StateIdle, StateValidating, StateFailed}, res.Transitions)
			assert.Zero(t, atomic.LoadInt32(h.hits), "nothing may be downloaded")
			assert.Empty(t, h.templates.saved)
		})
	}
}

func TestRun_RoleLookupError(t *testing.T) {
	h := newHarness(t, siteZip(t), func(_ *Options, deps *Dependencies) {
		deps.Roles = &fakeRoles{err: errors.NewQueryExecutionFailedError("has_role", stderrors.New("conn reset"))}
	})

	_, err := h.pipeline.Run(context.Background(), h.request())
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrCodeQueryExecutionFailed))
}

// ==========================
// Download
// ==========================

func TestRun_SizeBoundary(t *testing.T) {
	body := siteZip(t)

	t.Run("exactly at the ceiling", func(t *testing.T) {
		h := newHarness(t, body, func(opts *Options, _ *Dependencies) {
			opts.MaxArchiveBytes = int64(len(body))
		})
		h.catalog.On("IndexTemplate", mock.Anything, mock.Anything).Return(nil)
		h.notifier.On("TemplateProcessed", mock.Anything, mock.Anything).Return(nil)

		res, err := h.pipeline.Run(context.Background(), h.request())
		require.NoError(t, err)
		assert.Equal(t, StateDone, res.State)
	})

	t.Run("one byte over", func(t *testing.T) {
		h := newHarness(t, body, func(opts *Options, _ *Dependencies) {
			opts.MaxArchiveBytes = int64(len(body)) - 1
		})

		res, err := h.pipeline.Run(context.Background(), h.request())
		require.Error(t, err)
		assert.True(t, errors.Is(err, errors.ErrCodePayloadTooLarge))
		assert.Equal(t, []State{StateIdle, StateValidating, StateDownloading, StateFailed}, res.Transitions)

		keys, err := h.backend.Keys()
		require.NoError(t, err)
		assert.Empty(t, keys)
		assert.Empty(t, h.templates.saved)
	})
}

func TestRun_DownloadFailure(t *testing.T) {
	h := newHarness(t, siteZip(t), nil)
	// the test server only answers under the bucket path
	root := strings.TrimSuffix(h.sourceURL, bucketPath) + "/"
	h.pipeline.options.SourceURLPrefix = root
	req := h.request()
	req.ZipURL = root + "missing.zip"

	_, err := h.pipeline.Run(context.Background(), req)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrCodeDownloadFailed))
	assert.True(t, errors.AsStandardError(err).Retryable)
}

// ==========================
// Archive-level failures
// ==========================

func TestRun_MissingEntryPointWritesNothing(t *testing.T) {
	body := buildZip(t,
		"readme.txt", "hello",
		"img/a.png", "PNG",
		"img/b.jpg", "JPG",
	)
	h := newHarness(t, body, nil)

	res, err := h.pipeline.Run(context.Background(), h.request())
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrCodeMissingEntryPoint))
	assert.Equal(t, "No index.html file found in ZIP", errors.AsStandardError(err).Message)
	assert.Equal(t, StateFailed, res.State)

	keys, err := h.backend.Keys()
	require.NoError(t, err)
	assert.Empty(t, keys)
	assert.Empty(t, h.templates.saved)
}

func TestRun_CorruptArchive(t *testing.T) {
	h := newHarness(t, []byte("this is not a zip"), nil)

	res, err := h.pipeline.Run(context.Background(), h.request())
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrCodeCorruptArchive))
	assert.Equal(t, []State{
		StateIdle, StateValidating, StateDownloading, StateParsing, StateFailed,
	}, res.Transitions)
}

func TestRun_PersistenceFailure(t *testing.T) {
	h := newHarness(t, siteZip(t), nil)
	h.templates.saveErr = errors.NewPersistenceFailedError(stderrors.New("connection closed"))

	res, err := h.pipeline.Run(context.Background(), h.request())
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrCodePersistenceFailed))
	assert.Equal(t, StatePersisting, res.Transitions[len(res.Transitions)-2])
	h.notifier.AssertNotCalled(t, "TemplateProcessed", mock.Anything, mock.Anything)
	h.catalog.AssertNotCalled(t, "IndexTemplate", mock.Anything, mock.Anything)
}

// ==========================
// Run tracking
// ==========================

func TestRun_TracksStatusInRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	tracker := store.NewRunTracker(rdb, time.Hour)

	h := newHarness(t, []byte("broken"), func(_ *Options, deps *Dependencies) {
		deps.Runs = tracker
	})

	res, err := h.pipeline.Run(context.Background(), h.request())
	require.Error(t, err)

	status, err := tracker.Get(context.Background(), res.RunID)
	require.NoError(t, err)
	assert.Equal(t, "failed", status.State)
	assert.Equal(t, "Invalid or corrupt ZIP archive", status.Error)
	assert.Equal(t, []string{"idle", "validating", "downloading", "parsing", "failed"}, status.Transitions)
}

// ==========================
// ProcessArchive
// ==========================

func TestProcessArchive_InjectsEditor(t *testing.T) {
	backend := storage.NewMemBackend("templates")
	p, err := New(Dependencies{Uploader: storage.NewStore(backend, publicBase)}, Options{
		MaxArchiveBytes:  1 << 20,
		MaxPreviewImages: 1,
		InjectEditor:     true,
	})
	require.NoError(t, err)

	res, err := p.ProcessArchive(context.Background(), templateID, siteZip(t))
	require.NoError(t, err)

	assert.Equal(t, []State{StateIdle, StateParsing, StateRelocating, StateRewriting, StateDone}, res.Transitions)
	assert.Contains(t, res.HTML, "[data-editable]")
	assert.Len(t, res.PreviewImages, 1)
	for _, s := range []State{StateParsing, StateRelocating, StateRewriting} {
		_, ok := res.Timings[s]
		assert.True(t, ok, "missing timing for %s", s)
	}
}

func TestRun_RequiresRemoteCollaborators(t *testing.T) {
	p, err := New(Dependencies{Uploader: storage.NewStore(storage.NewMemBackend("b"), publicBase)}, Options{MaxArchiveBytes: 1})
	require.NoError(t, err)

	_, err = p.Run(context.Background(), Request{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrCodeInternal))
}

func TestNew_RequiresUploader(t *testing.T) {
	_, err := New(Dependencies{}, Options{MaxArchiveBytes: 1})
	assert.Error(t, err)
}
