package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"mime/multipart"
	"net/http"
	"path"
	"strconv"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/Lllllllleong/pdftools/internal/export"
	"github.com/Lllllllleong/pdftools/internal/filereader"
	"github.com/Lllllllleong/pdftools/internal/gcp"
	"github.com/Lllllllleong/pdftools/internal/history"
	"github.com/Lllllllleong/pdftools/internal/models"
	"github.com/Lllllllleong/pdftools/internal/preview"
	"github.com/Lllllllleong/pdftools/internal/transform"
	"github.com/Lllllllleong/pdftools/internal/validate"
	"github.com/Lllllllleong/pdftools/internal/workflow"
)

const (
	defaultMaxRequestBytes = 200 * validate.MB
	multipartMemory        = 32 * validate.MB
)

// Response modes of the conversion routes.
const (
	ResponseFile  = "file"
	ResponseJSON  = "json"
	ResponsePrint = "print"
)

// ConverterConfig holds configuration for the HTTP converter.
type ConverterConfig struct {
	ProjectID       string
	ShareBucket     string
	ShareExpiry     time.Duration
	VertexRegion    string
	VertexModel     string
	MaxRequestBytes int64
	History         HistoryConfig
}

// ConverterDeps are the collaborators of a ConverterFunction. Nil fields get defaults.
type ConverterDeps struct {
	Engine          *transform.Engine
	Previews        *preview.Generator
	History         history.Store
	Sharer          *export.Sharer
	MaxRequestBytes int64
	Now             func() time.Time
}

// ConverterFunction serves the five conversion tools over HTTP. Every request runs its
// own workflow, so requests never share state.
type ConverterFunction struct {
	engine          *transform.Engine
	previews        *preview.Generator
	history         history.Store
	sharer          *export.Sharer
	maxRequestBytes int64
	now             func() time.Time
	router          chi.Router
	closers         []func() error
}

// NewConverter creates a ConverterFunction configured from the environment.
func NewConverter(ctx context.Context) (*ConverterFunction, error) {
	config := ConverterConfig{
		ProjectID:    gcp.GetEnv("PROJECT_ID", ""),
		ShareBucket:  gcp.GetEnv("SHARE_BUCKET", ""),
		VertexRegion: gcp.GetEnv("VERTEX_REGION", ""),
		VertexModel:  gcp.GetEnv("VERTEX_MODEL", "gemini-1.5-pro"),
		History:      HistoryConfigFromEnv(),
	}
	expiry, err := time.ParseDuration(gcp.GetEnv("SHARE_LINK_EXPIRY", "1h"))
	if err != nil {
		return nil, fmt.Errorf("invalid SHARE_LINK_EXPIRY: %w", err)
	}
	config.ShareExpiry = expiry
	if v := gcp.GetEnv("MAX_REQUEST_BYTES", ""); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid MAX_REQUEST_BYTES: %w", err)
		}
		config.MaxRequestBytes = n
	}
	return NewConverterFromConfig(ctx, config)
}

// NewConverterFromConfig builds the clients named by config.
func NewConverterFromConfig(ctx context.Context, config ConverterConfig) (*ConverterFunction, error) {
	var (
		opts    []transform.Option
		closers []func() error
	)
	fail := func(err error) (*ConverterFunction, error) {
		for _, c := range closers {
			_ = c()
		}
		return nil, err
	}

	if config.VertexRegion != "" {
		vx, err := gcp.NewVertexExtractor(ctx, config.ProjectID, config.VertexRegion, config.VertexModel)
		if err != nil {
			return fail(fmt.Errorf("failed to create vertex extractor: %w", err))
		}
		opts = append(opts, transform.WithFallbackExtractor(vx))
		closers = append(closers, vx.Close)
	}

	store, closeHistory, err := OpenHistory(ctx, config.History)
	if err != nil {
		return fail(err)
	}
	closers = append(closers, closeHistory)

	var strategies []export.Strategy
	if config.ShareBucket != "" {
		storageClient, err := storage.NewClient(ctx)
		if err != nil {
			return fail(fmt.Errorf("failed to create Storage client: %w", err))
		}
		closers = append(closers, storageClient.Close)
		strategies = append(strategies, export.LinkStrategy{
			Publisher: gcp.NewGCSPublisher(storageClient, config.ShareBucket, config.ShareExpiry),
		})
	}
	strategies = append(strategies, export.MessageStrategy{}, export.DownloadStrategy{})

	f := NewConverterWith(ConverterDeps{
		Engine:          transform.NewEngine(opts...),
		History:         store,
		Sharer:          export.NewSharer(strategies...),
		MaxRequestBytes: config.MaxRequestBytes,
	})
	f.closers = closers
	slog.Info("Converter logic initialized.", "historyBackend", config.History.Backend, "shareBucket", config.ShareBucket)
	return f, nil
}

// NewConverterWith wires a ConverterFunction from ready-made collaborators.
func NewConverterWith(deps ConverterDeps) *ConverterFunction {
	f := &ConverterFunction{
		engine:          deps.Engine,
		previews:        deps.Previews,
		history:         deps.History,
		sharer:          deps.Sharer,
		maxRequestBytes: deps.MaxRequestBytes,
		now:             deps.Now,
	}
	if f.engine == nil {
		f.engine = transform.NewEngine()
	}
	if f.previews == nil {
		f.previews = preview.NewGenerator(f.engine.Rasterizer())
	}
	if f.history == nil {
		f.history = history.NewMemoryStore()
	}
	if f.sharer == nil {
		f.sharer = export.NewSharer(export.MessageStrategy{}, export.DownloadStrategy{})
	}
	if f.maxRequestBytes <= 0 {
		f.maxRequestBytes = defaultMaxRequestBytes
	}
	if f.now == nil {
		f.now = time.Now
	}
	f.router = f.routes()
	return f
}

func (f *ConverterFunction) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/presets", f.handlePresets)
	r.Get("/history", f.handleHistory)
	r.Post("/preview", f.handlePreview)
	for _, tool := range validate.Tools {
		r.Post(tool.Route(), f.handleConvert(tool))
	}
	return r
}

// ServeHTTP dispatches to the router.
func (f *ConverterFunction) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.router.ServeHTTP(w, r)
}

// Close releases the clients created by NewConverter.
func (f *ConverterFunction) Close() error {
	var errs []error
	for _, c := range f.closers {
		if err := c(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		slog.Info("Request served.",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start).String(),
			"requestId", middleware.GetReqID(r.Context()),
		)
	})
}

func (f *ConverterFunction) handlePresets(w http.ResponseWriter, r *http.Request) {
	out := make([]models.PresetResponse, 0, len(models.Presets))
	for _, p := range models.Presets {
		out = append(out, models.PresetResponse{Key: p.Key, Name: p.Name, Desc: p.Desc, Settings: p.Settings})
	}
	writeJSON(w, http.StatusOK, out)
}

func (f *ConverterFunction) handleHistory(w http.ResponseWriter, r *http.Request) {
	entries, err := f.history.List(r.Context())
	if err != nil {
		slog.Error("Failed to list compression history", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to read history", nil)
		return
	}
	if entries == nil {
		entries = []models.HistoryRecord{}
	}
	writeJSON(w, http.StatusOK, models.HistoryResponse{Status: "ok", Entries: entries})
}

// handlePreview renders preview artifacts for each uploaded file. The artifacts are
// released once encoded into the response.
func (f *ConverterFunction) handlePreview(w http.ResponseWriter, r *http.Request) {
	files, ok := f.parseUpload(w, r)
	if !ok {
		return
	}
	defer r.MultipartForm.RemoveAll()

	tool, err := validate.ParseTool(r.FormValue("tool"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), nil)
		return
	}

	ctx := r.Context()
	rule := validate.RuleFor(tool)
	out := make([]models.PreviewResponse, 0, len(files))
	for _, fh := range files {
		resp := models.PreviewResponse{Status: "ready", FileName: fh.Filename}
		artifacts, err := f.previewOne(ctx, tool, rule, fh)
		if err != nil {
			slog.Warn("Preview failed", "tool", string(tool), "fileName", fh.Filename, "error", err)
			resp.Status = "failed"
			resp.Message = err.Error()
			out = append(out, resp)
			continue
		}
		for _, a := range artifacts {
			resp.Pages = append(resp.Pages, models.PreviewPage{Page: a.Page, DataURL: a.DataURL()})
			a.Release()
		}
		resp.PageCount = len(artifacts)
		out = append(out, resp)
	}
	writeJSON(w, http.StatusOK, out)
}

func (f *ConverterFunction) previewOne(ctx context.Context, tool validate.Tool, rule validate.Rule, fh *multipart.FileHeader) ([]*models.PreviewArtifact, error) {
	src, err := filereader.ReadMultipart(ctx, fh, rule.MaxSize)
	if err != nil {
		return nil, err
	}
	head := src.Data
	if len(head) > 8 {
		head = head[:8]
	}
	candidate := validate.Candidate{Name: src.Name, MIMEType: src.MIMEType, Size: src.Size, Head: head}
	if err := validate.Validate(tool, candidate); err != nil {
		return nil, err
	}
	return f.previews.Generate(ctx, src, nil)
}

// handleConvert runs one tool over the uploaded files.
//
// Form fields: files (repeatable), response (file|json|print), share, preset,
// imageQuality, imageScale, compressionMethod, pages (pdf-to-jpg, e.g. "1,3-5") and
// rotations (jpg-to-pdf, degrees per accepted image).
func (f *ConverterFunction) handleConvert(tool validate.Tool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		logCtx := slog.With("tool", string(tool), "requestId", middleware.GetReqID(r.Context()))

		files, ok := f.parseUpload(w, r)
		if !ok {
			return
		}
		defer r.MultipartForm.RemoveAll()

		settings, err := settingsFromForm(r)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error(), nil)
			return
		}

		o, err := workflow.New(workflow.Config{
			Tool:        tool,
			Transformer: f.engine,
			History:     f.history,
			Settings:    settings,
			Now:         f.now,
		})
		if err != nil {
			logCtx.Error("Failed to create workflow", "error", err)
			writeError(w, http.StatusInternalServerError, "failed to start conversion", nil)
			return
		}
		defer o.StartOver()

		ctx := r.Context()
		addNotices, err := addUploads(ctx, o, files)
		if err != nil {
			logCtx.Error("Failed to load files", "error", err)
			writeError(w, http.StatusInternalServerError, "failed to load files", nil)
			return
		}
		notices := toNotices(addNotices)
		if o.State().Phase() == workflow.PhaseUpload {
			writeError(w, http.StatusUnprocessableEntity, "no acceptable files", notices)
			return
		}

		if err := applyEdits(o, tool, r); err != nil {
			writeError(w, http.StatusBadRequest, err.Error(), notices)
			return
		}

		state, err := o.Convert(ctx)
		if err != nil {
			var serr *workflow.StageError
			if !errors.As(err, &serr) {
				status := http.StatusInternalServerError
				if errors.Is(err, transform.ErrNoPagesSelected) {
					status = http.StatusBadRequest
				}
				writeError(w, status, err.Error(), notices)
				return
			}
			notices = append(notices, toNotices(o.Notices())...)
			resp := models.ConvertResponse{Status: "failed", Tool: string(tool), Notices: notices}
			if up, ok := state.(workflow.Upload); ok {
				resp.Results = describeResults(up.Kept)
			}
			writeJSON(w, http.StatusUnprocessableEntity, resp)
			return
		}

		complete, ok := state.(workflow.Complete)
		if !ok {
			writeError(w, http.StatusInternalServerError, "conversion did not complete", notices)
			return
		}
		results := complete.Results()

		switch responseMode(r) {
		case ResponseJSON:
			resp := models.ConvertResponse{Status: "completed", Tool: string(tool), Results: describeResults(results), Notices: notices}
			if formBool(r, "share") {
				for i, res := range results {
					out, err := o.Share(ctx, f.sharer, res.ID)
					if err != nil {
						var serr *workflow.StageError
						if errors.As(err, &serr) {
							resp.Notices = append(resp.Notices, serr.Notice())
						}
						continue
					}
					resp.Results[i].Share = &models.ShareResponse{Method: string(out.Method), URL: out.URL, Message: out.Message}
				}
			}
			writeJSON(w, http.StatusOK, resp)
		case ResponsePrint:
			w.Header().Set("Content-Type", "text/html; charset=utf-8")
			if err := o.Print(w, results[0].ID, export.PrintOptions{}); err != nil {
				logCtx.Error("Failed to render print page", "error", err)
			}
		default:
			if len(results) == 1 {
				if err := o.Download(w, results[0].ID); err != nil {
					logCtx.Error("Failed to write download", "error", err)
				}
				return
			}
			bundle, err := bundleResults(results, f.now())
			if err != nil {
				logCtx.Error("Failed to bundle results", "error", err)
				writeError(w, http.StatusInternalServerError, "failed to bundle results", nil)
				return
			}
			if err := export.Download(w, bundle); err != nil {
				logCtx.Error("Failed to write download", "error", err)
			}
		}
	}
}

// parseUpload reads the multipart form and returns its files. On failure the error
// response has been written.
func (f *ConverterFunction) parseUpload(w http.ResponseWriter, r *http.Request) ([]*multipart.FileHeader, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, f.maxRequestBytes)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		writeError(w, http.StatusBadRequest, "could not parse multipart form", nil)
		return nil, false
	}
	files := append(r.MultipartForm.File["files"], r.MultipartForm.File["file"]...)
	if len(files) == 0 {
		_ = r.MultipartForm.RemoveAll()
		writeError(w, http.StatusBadRequest, "no files uploaded", nil)
		return nil, false
	}
	return files, true
}

func addUploads(ctx context.Context, o *workflow.Orchestrator, files []*multipart.FileHeader) ([]*workflow.StageError, error) {
	inputs := make([]workflow.Input, 0, len(files))
	var opened []multipart.File
	defer func() {
		for _, file := range opened {
			_ = file.Close()
		}
	}()
	for _, fh := range files {
		in := workflow.Input{Name: fh.Filename, MIMEType: fh.Header.Get("Content-Type"), Size: fh.Size}
		// A file that cannot be opened is left without a body and reported as a read error.
		if file, err := fh.Open(); err == nil {
			opened = append(opened, file)
			in.Body = file
		}
		inputs = append(inputs, in)
	}
	return o.Add(ctx, inputs)
}

// applyEdits applies the page selection and rotations given in the form.
func applyEdits(o *workflow.Orchestrator, tool validate.Tool, r *http.Request) error {
	switch tool {
	case validate.PDFToJPG:
		raw := strings.TrimSpace(r.FormValue("pages"))
		if raw == "" {
			return nil
		}
		pages, err := ParsePageList(raw)
		if err != nil {
			return err
		}
		return o.SelectPages(pages)
	case validate.JPGToPDF:
		raw := strings.TrimSpace(r.FormValue("rotations"))
		if raw == "" {
			return nil
		}
		for i, field := range strings.Split(raw, ",") {
			deg, err := strconv.Atoi(strings.TrimSpace(field))
			if err != nil {
				return fmt.Errorf("invalid rotation %q", field)
			}
			for turns := transform.NormalizeRotation(deg) / 90; turns > 0; turns-- {
				if err := o.RotateRight(i); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

// ParsePageList parses a 1-based page list such as "1,3-5". Duplicates are kept; the
// transform de-duplicates them.
func ParsePageList(s string) ([]int, error) {
	var pages []int
	for _, field := range strings.Split(s, ",") {
		field = strings.TrimSpace(field)
		if field == "" {
			continue
		}
		lo, hi, isRange := strings.Cut(field, "-")
		first, err := strconv.Atoi(strings.TrimSpace(lo))
		if err != nil {
			return nil, fmt.Errorf("invalid page %q", field)
		}
		last := first
		if isRange {
			if last, err = strconv.Atoi(strings.TrimSpace(hi)); err != nil {
				return nil, fmt.Errorf("invalid page range %q", field)
			}
		}
		if first < 1 || last < first {
			return nil, fmt.Errorf("invalid page range %q", field)
		}
		for p := first; p <= last; p++ {
			pages = append(pages, p)
		}
	}
	if len(pages) == 0 {
		return nil, transform.ErrNoPagesSelected
	}
	return pages, nil
}

// settingsFromForm starts from the named preset, or the default one, and applies any
// explicit overrides.
func settingsFromForm(r *http.Request) (models.CompressionSettings, error) {
	preset := models.DefaultPreset
	if key := r.FormValue("preset"); key != "" {
		p, ok := models.PresetByKey(key)
		if !ok {
			return models.CompressionSettings{}, fmt.Errorf("unknown preset %q", key)
		}
		preset = p
	}
	settings := preset.Settings
	if v := r.FormValue("imageQuality"); v != "" {
		q, err := strconv.Atoi(v)
		if err != nil {
			return settings, fmt.Errorf("invalid imageQuality %q", v)
		}
		settings.ImageQuality = q
	}
	if v := r.FormValue("imageScale"); v != "" {
		scale, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return settings, fmt.Errorf("invalid imageScale %q", v)
		}
		settings.ImageScale = scale
	}
	if v := r.FormValue("compressionMethod"); v != "" {
		settings.Method = models.CompressionMethod(v)
	}
	return settings, settings.Validate()
}

func responseMode(r *http.Request) string {
	switch mode := r.FormValue("response"); mode {
	case ResponseJSON, ResponsePrint, ResponseFile:
		return mode
	}
	if strings.Contains(r.Header.Get("Accept"), "application/json") {
		return ResponseJSON
	}
	return ResponseFile
}

func formBool(r *http.Request, key string) bool {
	b, _ := strconv.ParseBool(r.FormValue(key))
	return b
}

func describeResults(results []*models.TransformResult) []models.ConversionResponse {
	out := make([]models.ConversionResponse, 0, len(results))
	for _, res := range results {
		out = append(out, describeResult(res))
	}
	return out
}

func describeResult(res *models.TransformResult) models.ConversionResponse {
	out := models.ConversionResponse{
		ResultID:      res.ID,
		Name:          res.Name,
		MIMEType:      res.MIMEType,
		Size:          res.Size(),
		FormattedSize: res.FormattedSize(),
		PageCount:     res.PageCount,
	}
	if res.Settings != nil {
		out.Compression = &models.CompressionStats{
			OriginalSize:     res.OriginalSize,
			CompressedSize:   res.Size(),
			CompressionRatio: models.CompressionRatio(res.OriginalSize, res.Size()),
			Settings:         *res.Settings,
		}
	}
	return out
}

// bundleResults zips several results into one download.
func bundleResults(results []*models.TransformResult, now time.Time) (*models.TransformResult, error) {
	entries := make([]models.PageImage, 0, len(results))
	seen := make(map[string]bool, len(results))
	for i, res := range results {
		name := uniqueName(res.Name, seen)
		entries = append(entries, models.PageImage{Page: i + 1, Name: name, MIMEType: res.MIMEType, Data: res.Data})
	}
	archive, err := transform.BuildArchive(entries)
	if err != nil {
		return nil, err
	}
	return &models.TransformResult{
		Name:        transform.ExportName("converted", "zip", now),
		MIMEType:    "application/zip",
		Data:        archive,
		PageCount:   len(results),
		ConvertedAt: now,
	}, nil
}

// uniqueName suffixes _2, _3, ... before the extension until name is unused in seen.
func uniqueName(name string, seen map[string]bool) string {
	candidate := name
	ext := path.Ext(name)
	base := strings.TrimSuffix(name, ext)
	for n := 2; seen[candidate]; n++ {
		candidate = fmt.Sprintf("%s_%d%s", base, n, ext)
	}
	seen[candidate] = true
	return candidate
}

func toNotices(errs []*workflow.StageError) []models.FileNotice {
	out := make([]models.FileNotice, 0, len(errs))
	for _, e := range errs {
		out = append(out, e.Notice())
	}
	return out
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to encode JSON response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string, notices []models.FileNotice) {
	writeJSON(w, status, models.ErrorResponse{Status: "error", Message: message, Notices: notices})
}
