package gcp

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/googleapi"
)

// GetEnv is a helper to read an environment variable or return a default value.
func GetEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

// SaveToGCSAtomically writes data to a GCS object only if it doesn't already exist.
// An existing object is not an error.
func SaveToGCSAtomically(ctx context.Context, bucket *storage.BucketHandle, objectName, contentType string, data []byte) error {
	writer := bucket.Object(objectName).If(storage.Conditions{DoesNotExist: true}).NewWriter(ctx)
	writer.ContentType = contentType

	if _, err := io.Copy(writer, bytes.NewReader(data)); err != nil {
		_ = writer.Close()
		return fmt.Errorf("failed to write to GCS: %w", err)
	}

	if err := writer.Close(); err != nil {
		if isPreconditionFailed(err) {
			slog.Info("Object already exists, skipping write.", "gcsObject", objectName)
			return nil
		}
		slog.Error("Failed to close GCS writer", "gcsObject", objectName, "error", err)
		return fmt.Errorf("failed to finalize GCS write: %w", err)
	}
	return nil
}

func isPreconditionFailed(err error) bool {
	var gerr *googleapi.Error
	return errors.As(err, &gerr) && gerr.Code == http.StatusPreconditionFailed
}

// GCSPublisher stores shared results in a bucket and hands out V4 signed URLs.
type GCSPublisher struct {
	bucket *storage.BucketHandle
	expiry time.Duration
}

// NewGCSPublisher publishes into bucketName. Links expire after expiry, one hour when zero.
func NewGCSPublisher(client *storage.Client, bucketName string, expiry time.Duration) *GCSPublisher {
	if expiry <= 0 {
		expiry = time.Hour
	}
	return &GCSPublisher{bucket: client.Bucket(bucketName), expiry: expiry}
}

// Publish uploads data under name and returns a signed GET URL for it.
func (p *GCSPublisher) Publish(ctx context.Context, name, contentType string, data []byte) (string, error) {
	if err := SaveToGCSAtomically(ctx, p.bucket, name, contentType, data); err != nil {
		return "", err
	}
	url, err := p.bucket.SignedURL(name, &storage.SignedURLOptions{
		Scheme:  storage.SigningSchemeV4,
		Method:  http.MethodGet,
		Expires: time.Now().Add(p.expiry),
	})
	if err != nil {
		return "", fmt.Errorf("failed to sign URL for %s: %w", name, err)
	}
	return url, nil
}
