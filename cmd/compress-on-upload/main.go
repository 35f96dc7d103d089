package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/GoogleCloudPlatform/functions-framework-go/functions"
	cloudevents "github.com/cloudevents/sdk-go/v2"

	"github.com/Lllllllleong/pdftools/internal/services"
)

var (
	compressorInstance *services.UploadCompressorFunction
	once               sync.Once
	initErr            error
)

func init() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// Register the CloudEvent function. The framework routes storage finalize events here.
	functions.CloudEvent("CompressOnUpload", compressOnUpload)
}

// main is required by the Go Functions Framework.
func main() {}

func compressOnUpload(ctx context.Context, e cloudevents.Event) error {
	once.Do(func() {
		compressorInstance, initErr = services.NewUploadCompressor(context.Background())
	})
	if initErr != nil {
		slog.Error("Critical error during function initialization", "error", initErr)
		return initErr
	}

	var gcsEvent services.GCSEvent
	if err := json.Unmarshal(e.Data(), &gcsEvent); err != nil {
		slog.Error("Failed to unmarshal event data", "error", err, "data", string(e.Data()))
		return fmt.Errorf("json.Unmarshal: %w", err)
	}

	// Errors are logged with context inside Process; returning one marks the invocation failed.
	return compressorInstance.Process(ctx, gcsEvent)
}
