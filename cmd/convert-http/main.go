package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"sync"

	"github.com/GoogleCloudPlatform/functions-framework-go/functions"

	"github.com/Lllllllleong/pdftools/internal/services"
)

var (
	converterInstance *services.ConverterFunction
	once              sync.Once
	initErr           error
)

func init() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// "HandleConvert" is the entry point name configured in GCP.
	functions.HTTP("HandleConvert", handleConvert)
}

// main is required by the Go Functions Framework.
func main() {}

// handleConvert routes every request through the converter's router.
func handleConvert(w http.ResponseWriter, r *http.Request) {
	once.Do(func() {
		converterInstance, initErr = services.NewConverter(context.Background())
	})
	if initErr != nil {
		slog.Error("Critical error during function initialization", "error", initErr)
		http.Error(w, "Internal Server Error: failed to initialize service", http.StatusInternalServerError)
		return
	}
	converterInstance.ServeHTTP(w, r)
}
