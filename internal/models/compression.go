package models

import (
	"fmt"
	"math"
	"strconv"
	"time"
)

// CompressionMethod names how aggressively a PDF is repacked.
type CompressionMethod string

const (
	MethodLossless   CompressionMethod = "lossless"
	MethodBalanced   CompressionMethod = "balanced"
	MethodAggressive CompressionMethod = "aggressive"
)

// CompressionSettings are the user-facing compression controls.
type CompressionSettings struct {
	ImageQuality int               `json:"imageQuality"`
	ImageScale   float64           `json:"imageScale"`
	Method       CompressionMethod `json:"compressionMethod"`
}

// Validate checks that the settings are within range.
func (s CompressionSettings) Validate() error {
	if s.ImageQuality < 1 || s.ImageQuality > 100 {
		return fmt.Errorf("image quality must be between 1 and 100, got %d", s.ImageQuality)
	}
	if s.ImageScale <= 0 || s.ImageScale > 1 {
		return fmt.Errorf("image scale must be in (0, 1], got %v", s.ImageScale)
	}
	switch s.Method {
	case MethodLossless, MethodBalanced, MethodAggressive:
	default:
		return fmt.Errorf("unknown compression method %q", s.Method)
	}
	return nil
}

// Preset is a named set of compression settings.
type Preset struct {
	Key      string
	Name     string
	Desc     string
	Settings CompressionSettings
}

var (
	PresetHighQuality = Preset{
		Key:      "high-quality",
		Name:     "High Quality",
		Desc:     "Best quality, larger file size",
		Settings: CompressionSettings{ImageQuality: 90, ImageScale: 1, Method: MethodLossless},
	}
	PresetBalanced = Preset{
		Key:      "balanced",
		Name:     "Balanced",
		Desc:     "Good quality, medium size",
		Settings: CompressionSettings{ImageQuality: 70, ImageScale: 0.75, Method: MethodBalanced},
	}
	PresetSmallSize = Preset{
		Key:      "small-size",
		Name:     "Small Size",
		Desc:     "Maximum compression",
		Settings: CompressionSettings{ImageQuality: 50, ImageScale: 0.5, Method: MethodAggressive},
	}
)

// Presets lists the presets in display order.
var Presets = []Preset{PresetHighQuality, PresetBalanced, PresetSmallSize}

// DefaultPreset is selected when the caller does not choose one.
var DefaultPreset = PresetBalanced

// PresetByKey looks a preset up by key or display name.
func PresetByKey(key string) (Preset, bool) {
	for _, p := range Presets {
		if p.Key == key || p.Name == key {
			return p, true
		}
	}
	return Preset{}, false
}

// HistoryRecord is one entry of the compression history list.
// The JSON shape matches the records the web client kept in local storage.
type HistoryRecord struct {
	FileName         string `json:"fileName" firestore:"fileName"`
	OriginalSize     int64  `json:"originalSize" firestore:"originalSize"`
	CompressedSize   int64  `json:"compressedSize" firestore:"compressedSize"`
	Date             string `json:"date" firestore:"date"`
	CompressionRatio string `json:"compressionRatio" firestore:"compressionRatio"`
}

// NewHistoryRecord derives a record from actual sizes.
func NewHistoryRecord(fileName string, originalSize, compressedSize int64, now time.Time) HistoryRecord {
	return HistoryRecord{
		FileName:         fileName,
		OriginalSize:     originalSize,
		CompressedSize:   compressedSize,
		Date:             now.UTC().Format(time.RFC3339Nano),
		CompressionRatio: CompressionRatio(originalSize, compressedSize),
	}
}

// CompressionRatio is (1 - compressed/original) * 100, one decimal.
func CompressionRatio(originalSize, compressedSize int64) string {
	if originalSize <= 0 {
		return "0.0"
	}
	ratio := (1 - float64(compressedSize)/float64(originalSize)) * 100
	ratio = math.Round(ratio*10) / 10
	if ratio == 0 {
		ratio = 0 // normalise -0
	}
	return strconv.FormatFloat(ratio, 'f', 1, 64)
}
