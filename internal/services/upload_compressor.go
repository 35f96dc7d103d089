package services

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"path"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"cloud.google.com/go/storage"
	"golang.org/x/sync/errgroup"

	"github.com/Lllllllleong/pdftools/internal/filereader"
	"github.com/Lllllllleong/pdftools/internal/gcp"
	"github.com/Lllllllleong/pdftools/internal/history"
	"github.com/Lllllllleong/pdftools/internal/models"
	"github.com/Lllllllleong/pdftools/internal/transform"
	"github.com/Lllllllleong/pdftools/internal/validate"
)

// Job statuses written to the upload collection.
const (
	StatusCompressing = "COMPRESSING"
	StatusUploading   = "UPLOADING"
	StatusCompleted   = "COMPLETED"
	StatusFailed      = "FAILED"
)

type UploadCompressorConfig struct {
	ProjectID       string
	OutputBucket    string
	ThumbnailBucket string
	CollectionName  string
	Preset          models.Preset
}

// UploadCompressorFunction compresses every PDF dropped into the watched bucket.
type UploadCompressorFunction struct {
	storageClient   *storage.Client
	firestoreClient *firestore.Client
	engine          *transform.Engine
	history         history.Store
	closeHistory    func() error
	config          UploadCompressorConfig
}

type GCSEvent struct {
	Bucket      string `json:"bucket"`
	Name        string `json:"name"`
	ContentType string `json:"contentType"`
}

func NewUploadCompressor(ctx context.Context) (*UploadCompressorFunction, error) {
	projectID := gcp.GetEnv("PROJECT_ID", "")
	if projectID == "" {
		return nil, fmt.Errorf("PROJECT_ID environment variable must be set")
	}

	preset, ok := models.PresetByKey(gcp.GetEnv("COMPRESSION_PRESET", models.DefaultPreset.Key))
	if !ok {
		return nil, fmt.Errorf("COMPRESSION_PRESET must be one of high-quality, balanced, small-size")
	}
	config := UploadCompressorConfig{
		ProjectID:       projectID,
		OutputBucket:    gcp.GetEnv("COMPRESSED_BUCKET", ""),
		ThumbnailBucket: gcp.GetEnv("THUMBNAIL_BUCKET", ""),
		CollectionName:  gcp.GetEnv("FIRESTORE_COLLECTION", "uploads"),
		Preset:          preset,
	}
	if config.OutputBucket == "" {
		return nil, fmt.Errorf("COMPRESSED_BUCKET environment variable must be set")
	}

	historyConfig := HistoryConfigFromEnv()
	if historyConfig.ProjectID == "" {
		historyConfig.ProjectID = projectID
	}
	store, closeHistory, err := OpenHistory(ctx, historyConfig)
	if err != nil {
		return nil, err
	}
	firestoreClient, err := gcp.NewFirestoreClient(ctx, config.ProjectID)
	if err != nil {
		_ = closeHistory()
		return nil, fmt.Errorf("failed to create firestore client: %w", err)
	}
	storageClient, err := storage.NewClient(ctx)
	if err != nil {
		_ = closeHistory()
		_ = firestoreClient.Close()
		return nil, fmt.Errorf("failed to create Storage client: %w", err)
	}

	f := &UploadCompressorFunction{
		storageClient:   storageClient,
		firestoreClient: firestoreClient,
		engine:          transform.NewEngine(),
		history:         store,
		closeHistory:    closeHistory,
		config:          config,
	}
	slog.Info("Upload compressor logic initialized.", "preset", preset.Key, "outputBucket", config.OutputBucket)
	return f, nil
}

func (f *UploadCompressorFunction) Process(ctx context.Context, e GCSEvent) error {
	logCtx := slog.With("gcsBucket", e.Bucket, "gcsObject", e.Name)
	logCtx.Info("Processing new GCS object.")

	if skip, reason := shouldSkip(e, f.config.OutputBucket); skip {
		logCtx.Info("Skipping object.", "reason", reason)
		return nil
	}

	src, err := f.readGCSObject(ctx, e)
	if err != nil {
		logCtx.Error("Failed to download source PDF", "error", err)
		return err
	}
	if !validate.LooksLikePDF(src.Data) {
		logCtx.Warn("Object is not a PDF. Skipping.")
		return nil
	}

	fileHash := calculateHash(src.Data)
	logCtx = logCtx.With("fileHash", fileHash)

	isDuplicate, docID, err := f.isDuplicate(ctx, fileHash)
	if err != nil {
		logCtx.Error("Failed to check for duplicate", "error", err)
		return err
	}
	if isDuplicate {
		logCtx.Info("Duplicate file detected. Skipping.", "existingDocId", docID)
		return nil
	}

	docRef, err := f.createInitialDocument(ctx, fileHash, src)
	if err != nil {
		logCtx.Error("Failed to create initial Firestore document", "error", err)
		return err
	}
	logCtx = logCtx.With("documentId", docRef.ID)
	logCtx.Info("Created upload job in Firestore.")

	res, err := f.engine.Compress(ctx, src, f.config.Preset.Settings, nil)
	if err != nil {
		return f.handleError(ctx, logCtx, docRef, "failed to compress PDF", err)
	}
	logCtx.Info("PDF compressed.", "originalSize", res.OriginalSize, "compressedSize", res.Size(), "pageCount", res.PageCount)

	if err := f.updateStatus(ctx, docRef, StatusUploading, ""); err != nil {
		return f.handleError(ctx, logCtx, docRef, "failed to update status to UPLOADING", err)
	}

	outputObject := outputObjectName(docRef.ID, res.Name)
	if err := f.uploadFile(ctx, f.config.OutputBucket, outputObject, res.MIMEType, res.Data); err != nil {
		return f.handleError(ctx, logCtx, docRef, "failed to upload compressed PDF", err)
	}

	if f.config.ThumbnailBucket != "" {
		if err := f.uploadThumbnails(ctx, logCtx, docRef.ID, res); err != nil {
			return f.handleError(ctx, logCtx, docRef, "one or more thumbnails failed to upload", err)
		}
	}

	updates := []firestore.Update{
		{Path: "status", Value: StatusCompleted},
		{Path: "pageCount", Value: res.PageCount},
		{Path: "outputObject", Value: outputObject},
		{Path: "compressedSize", Value: res.Size()},
		{Path: "compressionRatio", Value: models.CompressionRatio(res.OriginalSize, res.Size())},
	}
	if _, err := docRef.Update(ctx, updates); err != nil {
		return f.handleError(ctx, logCtx, docRef, "failed to update status to COMPLETED", err)
	}

	if err := f.history.Append(ctx, historyRecord(src, res, time.Now())); err != nil {
		logCtx.Warn("Failed to record compression history", "error", err)
	}

	logCtx.Info("Compression complete.", "outputObject", outputObject)
	return nil
}

// Close releases the clients.
func (f *UploadCompressorFunction) Close() error {
	err := f.closeHistory()
	if cerr := f.firestoreClient.Close(); err == nil {
		err = cerr
	}
	if cerr := f.storageClient.Close(); err == nil {
		err = cerr
	}
	return err
}

// shouldSkip filters out events the function must not compress, including its own output
// when the output bucket is the watched one.
func shouldSkip(e GCSEvent, outputBucket string) (bool, string) {
	if e.Name == "" || strings.HasSuffix(e.Name, "/") {
		return true, "not a file"
	}
	if !strings.EqualFold(path.Ext(e.Name), ".pdf") && e.ContentType != "application/pdf" {
		return true, "not a PDF"
	}
	if e.Bucket == outputBucket && strings.Contains(path.Base(e.Name), "_processed_") {
		return true, "already compressed"
	}
	return false, ""
}

// historyRecord is keyed by the uploaded file name, not the compressed object's.
func historyRecord(src *models.SourceFile, res *models.TransformResult, now time.Time) models.HistoryRecord {
	return history.NewRecord(src.Name, res.OriginalSize, res.Size(), now)
}

func outputObjectName(docID, resultName string) string {
	return fmt.Sprintf("%s/%s", docID, resultName)
}

func thumbnailObjectName(docID string, page int) string {
	return fmt.Sprintf("%s/thumbnails/%05d.jpg", docID, page)
}

func (f *UploadCompressorFunction) isDuplicate(ctx context.Context, fileHash string) (bool, string, error) {
	docs, err := f.firestoreClient.Collection(f.config.CollectionName).Where("fileHash", "==", fileHash).Limit(1).Documents(ctx).GetAll()
	if err != nil {
		return false, "", fmt.Errorf("failed to query for duplicates: %w", err)
	}
	if len(docs) > 0 {
		return true, docs[0].Ref.ID, nil
	}
	return false, "", nil
}

func (f *UploadCompressorFunction) createInitialDocument(ctx context.Context, fileHash string, src *models.SourceFile) (*firestore.DocumentRef, error) {
	newDoc := models.UploadJob{
		FileHash:         fileHash,
		OriginalFilename: src.Name,
		Status:           StatusCompressing,
		OriginalSize:     src.Size,
		Preset:           f.config.Preset.Key,
		CreatedAt:        time.Now(),
	}
	docRef, _, err := f.firestoreClient.Collection(f.config.CollectionName).Add(ctx, newDoc)
	if err != nil {
		return nil, fmt.Errorf("failed to create upload document: %w", err)
	}
	return docRef, nil
}

// uploadThumbnails renders every page of the compressed PDF at preview scale and uploads
// the images concurrently.
func (f *UploadCompressorFunction) uploadThumbnails(ctx context.Context, logCtx *slog.Logger, docID string, res *models.TransformResult) error {
	src := &models.SourceFile{ID: res.ID, Name: res.Name, Size: res.Size(), MIMEType: res.MIMEType, Data: res.Data}
	pages, err := f.engine.PDFToImages(ctx, src, transform.PageOptions{Scale: transform.PreviewScale, Format: transform.FormatJPEG}, nil)
	if err != nil {
		return fmt.Errorf("failed to render thumbnails: %w", err)
	}

	logCtx.Info("Starting concurrent upload of thumbnails.", "pageCount", len(pages.Images))
	eg, gctx := errgroup.WithContext(ctx)
	eg.SetLimit(10)
	for _, img := range pages.Images {
		img := img
		eg.Go(func() error {
			if err := f.uploadFile(gctx, f.config.ThumbnailBucket, thumbnailObjectName(docID, img.Page), img.MIMEType, img.Data); err != nil {
				return fmt.Errorf("page %d: %w", img.Page, err)
			}
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return err
	}
	logCtx.Info("All thumbnails uploaded successfully.")
	return nil
}

func (f *UploadCompressorFunction) handleError(ctx context.Context, logCtx *slog.Logger, docRef *firestore.DocumentRef, message string, originalErr error) error {
	fullError := fmt.Sprintf("%s: %v", message, originalErr)
	logCtx.Error(message, "error", originalErr)
	if err := f.updateStatus(ctx, docRef, StatusFailed, fullError); err != nil {
		logCtx.Error("CRITICAL: Failed to update Firestore status to FAILED after a processing error.", "updateError", err)
	}
	return fmt.Errorf("%s", fullError)
}

func (f *UploadCompressorFunction) updateStatus(ctx context.Context, docRef *firestore.DocumentRef, status, errDetails string) error {
	updates := []firestore.Update{
		{Path: "status", Value: status},
	}
	if errDetails != "" {
		updates = append(updates, firestore.Update{Path: "errorDetails", Value: errDetails})
	}
	_, err := docRef.Update(ctx, updates)
	return err
}

func (f *UploadCompressorFunction) readGCSObject(ctx context.Context, e GCSEvent) (*models.SourceFile, error) {
	gcsReader, err := f.storageClient.Bucket(e.Bucket).Object(e.Name).NewReader(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get GCS object reader for gs://%s/%s: %w", e.Bucket, e.Name, err)
	}
	defer gcsReader.Close()
	src, err := filereader.ReadAll(ctx, path.Base(e.Name), e.ContentType, gcsReader, validate.MaxDocumentSize)
	if err != nil {
		return nil, fmt.Errorf("failed to read GCS object: %w", err)
	}
	return src, nil
}

// uploadFile writes data to bucket/destObject, retrying with doubling backoff.
func (f *UploadCompressorFunction) uploadFile(ctx context.Context, bucket, destObject, contentType string, data []byte) error {
	return retryUpload(ctx, destObject, func(ctx context.Context) error {
		writeCtx, cancel := context.WithTimeout(ctx, time.Second*50)
		defer cancel()

		gcsWriter := f.storageClient.Bucket(bucket).Object(destObject).NewWriter(writeCtx)
		gcsWriter.ContentType = contentType

		if _, err := io.Copy(gcsWriter, bytes.NewReader(data)); err != nil {
			_ = gcsWriter.Close()
			return fmt.Errorf("io.Copy to GCS failed: %w", err)
		}
		if err := gcsWriter.Close(); err != nil {
			return fmt.Errorf("failed to close GCS writer (finalize upload): %w", err)
		}
		return nil
	})
}

const maxUploadRetries = 4

var initialUploadBackoff = 1 * time.Second

// retryUpload runs attempt up to maxUploadRetries times, doubling the wait between tries.
func retryUpload(ctx context.Context, destObject string, attempt func(context.Context) error) error {
	backoff := initialUploadBackoff
	var lastErr error

	for i := 0; i < maxUploadRetries; i++ {
		err := attempt(ctx)
		if err == nil {
			return nil
		}

		lastErr = err
		slog.Warn(
			"Upload failed, will retry.",
			"gcsObject", destObject,
			"attempt", i+1,
			"maxRetries", maxUploadRetries,
			"backoff", backoff.String(),
			"error", err,
		)

		select {
		case <-time.After(backoff):
			backoff *= 2
		case <-ctx.Done():
			slog.Error("Context cancelled during backoff. Aborting retries.", "gcsObject", destObject, "error", ctx.Err())
			return ctx.Err()
		}
	}
	slog.Error("Upload failed after all retries.", "gcsObject", destObject, "error", lastErr)
	return fmt.Errorf("upload for %s failed after all retries: %w", destObject, lastErr)
}

func calculateHash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
