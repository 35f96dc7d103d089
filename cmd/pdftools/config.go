package main

import (
	"context"
	"fmt"

	"github.com/spf13/viper"

	"github.com/Lllllllleong/pdftools/internal/gcp"
	"github.com/Lllllllleong/pdftools/internal/history"
	"github.com/Lllllllleong/pdftools/internal/models"
	"github.com/Lllllllleong/pdftools/internal/services"
	"github.com/Lllllllleong/pdftools/internal/transform"
)

func historyConfig() services.HistoryConfig {
	return services.HistoryConfig{
		Backend:       viper.GetString("history.backend"),
		ProjectID:     viper.GetString("project"),
		Collection:    viper.GetString("history.collection"),
		Document:      viper.GetString("history.document"),
		RedisAddr:     viper.GetString("history.redis.addr"),
		RedisPassword: viper.GetString("history.redis.password"),
		RedisDB:       viper.GetInt("history.redis.db"),
		RedisPrefix:   viper.GetString("history.redis.prefix"),
		FilePath:      viper.GetString("history.file"),
	}
}

func openHistory(ctx context.Context) (history.Store, func() error, error) {
	return services.OpenHistory(ctx, historyConfig())
}

// newEngine builds the transform engine. A configured Vertex region enables model-based
// text extraction for pages without a text layer.
func newEngine(ctx context.Context) (*transform.Engine, func() error, error) {
	region := viper.GetString("vertex.region")
	if region == "" {
		return transform.NewEngine(), func() error { return nil }, nil
	}
	vx, err := gcp.NewVertexExtractor(ctx, viper.GetString("project"), region, viper.GetString("vertex.model"))
	if err != nil {
		return nil, nil, err
	}
	return transform.NewEngine(transform.WithFallbackExtractor(vx)), vx.Close, nil
}

// compressionSettings resolves the preset and explicit overrides. Zero overrides are
// ignored.
func compressionSettings(presetKey string, quality int, scale float64, method string) (models.CompressionSettings, error) {
	preset, ok := models.PresetByKey(presetKey)
	if !ok {
		return models.CompressionSettings{}, fmt.Errorf("unknown preset %q", presetKey)
	}
	settings := preset.Settings
	if quality != 0 {
		settings.ImageQuality = quality
	}
	if scale != 0 {
		settings.ImageScale = scale
	}
	if method != "" {
		settings.Method = models.CompressionMethod(method)
	}
	return settings, settings.Validate()
}
