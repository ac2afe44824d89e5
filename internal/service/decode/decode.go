package decode

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

var ErrEmpty = errors.New("image payload is empty")

// Result is a decoded upload. Data keeps the original bytes for backends
// that decode on their own.
type Result struct {
	Image  image.Image
	Format string
	Data   []byte
}

// Decode decodes an uploaded payload. The context is checked before the
// work starts so a torn-down session does not pay for a decode.
func Decode(ctx context.Context, data []byte) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, ErrEmpty
	}

	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}

	b := img.Bounds()
	if b.Dx() == 0 || b.Dy() == 0 {
		return nil, fmt.Errorf("decoded image is empty (%dx%d)", b.Dx(), b.Dy())
	}

	return &Result{Image: img, Format: format, Data: data}, nil
}
