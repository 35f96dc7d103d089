package models

import "time"

// These structs define the JSON payloads exchanged with the HTTP converter function.

// FileNotice reports a per-file problem that did not abort the batch.
type FileNotice struct {
	FileName string `json:"fileName"`
	Stage    string `json:"stage"`
	Message  string `json:"message"`
}

// ConversionResponse describes one finished result.
type ConversionResponse struct {
	ResultID      string            `json:"resultId"`
	Name          string            `json:"name"`
	MIMEType      string            `json:"mimeType"`
	Size          int64             `json:"size"`
	FormattedSize string            `json:"formattedSize"`
	PageCount     int               `json:"pageCount,omitempty"`
	Compression   *CompressionStats `json:"compression,omitempty"`
	Share         *ShareResponse    `json:"share,omitempty"`
}

// CompressionStats reports size accounting for a compressed PDF.
type CompressionStats struct {
	OriginalSize     int64               `json:"originalSize"`
	CompressedSize   int64               `json:"compressedSize"`
	CompressionRatio string              `json:"compressionRatio"`
	Settings         CompressionSettings `json:"settings"`
}

// ConvertResponse is returned by the converter routes in JSON mode.
// Results kept after a failed batch are listed alongside the notices.
type ConvertResponse struct {
	Status  string               `json:"status"`
	Tool    string               `json:"tool"`
	Results []ConversionResponse `json:"results"`
	Notices []FileNotice         `json:"notices,omitempty"`
}

// ErrorResponse is the body of every non-2xx JSON reply.
type ErrorResponse struct {
	Status  string       `json:"status"`
	Message string       `json:"message"`
	Notices []FileNotice `json:"notices,omitempty"`
}

// PreviewPage is one page preview returned to the client.
type PreviewPage struct {
	Page    int    `json:"page"`
	DataURL string `json:"dataUrl"`
}

// PreviewResponse lists preview artifacts for one uploaded file.
type PreviewResponse struct {
	Status    string        `json:"status"`
	FileName  string        `json:"fileName"`
	PageCount int           `json:"pageCount"`
	Pages     []PreviewPage `json:"pages,omitempty"`
	Message   string        `json:"message,omitempty"`
}

// ShareResponse reports how a result was shared.
type ShareResponse struct {
	Method  string `json:"method"`
	URL     string `json:"url,omitempty"`
	Message string `json:"message,omitempty"`
}

// PresetResponse lists the compression presets.
type PresetResponse struct {
	Key      string              `json:"key"`
	Name     string              `json:"name"`
	Desc     string              `json:"description"`
	Settings CompressionSettings `json:"settings"`
}

// HistoryResponse returns the compression history, newest first.
type HistoryResponse struct {
	Status  string          `json:"status"`
	Entries []HistoryRecord `json:"entries"`
}

// UploadJob is the Firestore record tracking an upload-triggered compression.
type UploadJob struct {
	FileHash         string    `firestore:"fileHash,omitempty"`
	OriginalFilename string    `firestore:"originalFilename,omitempty"`
	Status           string    `firestore:"status,omitempty"`
	ErrorDetails     string    `firestore:"errorDetails,omitempty"`
	PageCount        int       `firestore:"pageCount,omitempty"`
	OutputObject     string    `firestore:"outputObject,omitempty"`
	OriginalSize     int64     `firestore:"originalSize,omitempty"`
	CompressedSize   int64     `firestore:"compressedSize,omitempty"`
	CompressionRatio string    `firestore:"compressionRatio,omitempty"`
	Preset           string    `firestore:"preset,omitempty"`
	CreatedAt        time.Time `firestore:"createdAt,omitempty"`
}
