package filereader

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("disk on fire") }

func TestReadAll(t *testing.T) {
	src, err := ReadAll(context.Background(), "a.pdf", "", strings.NewReader("%PDF-1.4 body"), 0)
	require.NoError(t, err)
	assert.Equal(t, "a.pdf", src.Name)
	assert.Equal(t, int64(13), src.Size)
	assert.Equal(t, "application/pdf", src.MIMEType)
	assert.NotEmpty(t, src.ID)
}

func TestReadAllErrors(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := ReadAll(ctx, "a.pdf", "application/pdf", strings.NewReader("x"), 0)
	assert.ErrorIs(t, err, ErrAborted)

	_, err = ReadAll(context.Background(), "a.pdf", "application/pdf", strings.NewReader("0123456789"), 5)
	assert.ErrorIs(t, err, ErrTooLarge)

	_, err = ReadAll(context.Background(), "a.pdf", "application/pdf", failingReader{}, 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk on fire")
}

func TestDataURLRoundTrip(t *testing.T) {
	url := DataURL("image/png", []byte{1, 2, 3})
	assert.True(t, strings.HasPrefix(url, "data:image/png;base64,"))

	mime, data, err := DecodeDataURL(url)
	require.NoError(t, err)
	assert.Equal(t, "image/png", mime)
	assert.Equal(t, []byte{1, 2, 3}, data)

	_, _, err = DecodeDataURL("http://example.com/x.png")
	assert.Error(t, err)
}

func TestDecodeImage(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 4, 2))
	img.Set(0, 0, color.RGBA{R: 255, A: 255})
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))

	decoded, format, err := DecodeImage(buf.Bytes())
	require.NoError(t, err)
	assert.Equal(t, "png", format)
	assert.Equal(t, 4, decoded.Bounds().Dx())

	_, _, err = DecodeImage([]byte("not an image"))
	assert.Error(t, err)
}
