package codereader

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"strings"

	"github.com/makiuchi-d/gozxing"
	"github.com/makiuchi-d/gozxing/qrcode"
)

// ErrImageDecode means the content could not be turned into pixels.
var ErrImageDecode = errors.New("image could not be decoded")

// DecodeError reports a corrupt or unsupported image.
type DecodeError struct {
	Format string
	Err    error
}

func (e *DecodeError) Error() string {
	if e.Format != "" {
		return fmt.Sprintf("decode %s image: %v", e.Format, e.Err)
	}
	return fmt.Sprintf("decode image: %v", e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// Reader looks for a QR code in raster images.
type Reader struct {
	hints map[gozxing.DecodeHintType]interface{}
}

// New returns a Reader that tries hard on low-quality scans.
func New() *Reader {
	return &Reader{
		hints: map[gozxing.DecodeHintType]interface{}{
			gozxing.DecodeHintType_TRY_HARDER: true,
		},
	}
}

// Decode returns the QR payload of content. A missing code is reported as
// found=false with a nil error; only undecodable images produce an error.
func (r *Reader) Decode(content []byte) (string, bool, error) {
	img, format, err := image.Decode(bytes.NewReader(content))
	if err != nil {
		return "", false, &DecodeError{Format: format, Err: fmt.Errorf("%w: %v", ErrImageDecode, err)}
	}

	bmp, err := gozxing.NewBinaryBitmapFromImage(img)
	if err != nil {
		return "", false, &DecodeError{Format: format, Err: fmt.Errorf("%w: %v", ErrImageDecode, err)}
	}

	result, err := qrcode.NewQRCodeReader().Decode(bmp, r.hints)
	if err != nil {
		// NotFound, Checksum and Format exceptions all mean "no readable code".
		return "", false, nil
	}

	text := strings.TrimSpace(result.GetText())
	if text == "" {
		return "", false, nil
	}
	return text, true, nil
}
