// Package filereader decodes uploaded files into memory.
package filereader

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/google/uuid"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/Lllllllleong/pdftools/internal/models"
)

var (
	// ErrAborted is returned when the read is cancelled before completion.
	ErrAborted = errors.New("file reading aborted")
	// ErrTooLarge is returned when the stream exceeds the caller's limit.
	ErrTooLarge = errors.New("file exceeds read limit")
)

const chunkSize = 64 * 1024

// ReadAll drains r into a SourceFile, checking ctx between chunks.
// A non-positive limit disables the size check.
func ReadAll(ctx context.Context, name, mimeType string, r io.Reader, limit int64) (*models.SourceFile, error) {
	var buf bytes.Buffer
	chunk := make([]byte, chunkSize)
	for {
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %s: %v", ErrAborted, name, ctx.Err())
		default:
		}

		n, err := r.Read(chunk)
		if n > 0 {
			buf.Write(chunk[:n])
			if limit > 0 && int64(buf.Len()) > limit {
				return nil, fmt.Errorf("%w: %s", ErrTooLarge, name)
			}
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", name, err)
		}
	}

	data := buf.Bytes()
	if mimeType == "" || mimeType == "application/octet-stream" {
		mimeType = http.DetectContentType(data)
		if i := strings.IndexByte(mimeType, ';'); i >= 0 {
			mimeType = mimeType[:i]
		}
	}
	return &models.SourceFile{
		ID:       uuid.NewString(),
		Name:     name,
		Size:     int64(len(data)),
		MIMEType: mimeType,
		Data:     data,
	}, nil
}

// ReadMultipart opens and reads one uploaded form file.
func ReadMultipart(ctx context.Context, fh *multipart.FileHeader, limit int64) (*models.SourceFile, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, fmt.Errorf("failed to open upload %s: %w", fh.Filename, err)
	}
	defer f.Close()
	return ReadAll(ctx, fh.Filename, fh.Header.Get("Content-Type"), f, limit)
}

// DataURL encodes data as a base64 data URL.
func DataURL(mimeType string, data []byte) string {
	return "data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(data)
}

// DecodeDataURL is the inverse of DataURL. Only base64 payloads are supported.
func DecodeDataURL(s string) (mimeType string, data []byte, err error) {
	rest, ok := strings.CutPrefix(s, "data:")
	if !ok {
		return "", nil, fmt.Errorf("not a data URL")
	}
	header, payload, ok := strings.Cut(rest, ",")
	if !ok {
		return "", nil, fmt.Errorf("malformed data URL")
	}
	mimeType, ok = strings.CutSuffix(header, ";base64")
	if !ok {
		return "", nil, fmt.Errorf("data URL is not base64 encoded")
	}
	data, err = base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return "", nil, fmt.Errorf("failed to decode data URL: %w", err)
	}
	return mimeType, data, nil
}

// DecodeImage decodes any of the supported raster formats.
func DecodeImage(data []byte) (image.Image, string, error) {
	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, "", fmt.Errorf("failed to decode image: %w", err)
	}
	return img, format, nil
}
