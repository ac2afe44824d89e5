package decode

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	img.Set(0, 0, color.RGBA{R: 255, A: 255})
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestDecode_PNG(t *testing.T) {
	data := pngBytes(t, 4, 3)

	res, err := Decode(context.Background(), data)

	require.NoError(t, err)
	assert.Equal(t, "png", res.Format)
	assert.Equal(t, 4, res.Image.Bounds().Dx())
	assert.Equal(t, 3, res.Image.Bounds().Dy())
	assert.Equal(t, data, res.Data)
}

func TestDecode_Errors(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{"empty", nil},
		{"garbage", []byte("definitely not an image")},
		{"svg is not rasterised", []byte(`<svg xmlns="http://www.w3.org/2000/svg"></svg>`)},
		{"truncated png", pngBytes(t, 8, 8)[:20]},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(context.Background(), tt.data)
			assert.Error(t, err)
		})
	}
}

func TestDecode_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Decode(ctx, pngBytes(t, 1, 1))
	assert.ErrorIs(t, err, context.Canceled)
}
