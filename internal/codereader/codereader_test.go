package codereader

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/makiuchi-d/gozxing"
	"github.com/makiuchi-d/gozxing/qrcode"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func encodeQR(t *testing.T, payload string) []byte {
	t.Helper()

	matrix, err := qrcode.NewQRCodeWriter().Encode(payload, gozxing.BarcodeFormat_QR_CODE, 256, 256, nil)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, matrix))
	return buf.Bytes()
}

func blankPNG(t *testing.T) []byte {
	t.Helper()

	img := image.NewGray(image.Rect(0, 0, 64, 64))
	for x := 0; x < 64; x++ {
		for y := 0; y < 64; y++ {
			img.SetGray(x, y, color.Gray{Y: 255})
		}
	}

	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestDecodeFindsQRCode(t *testing.T) {
	content := encodeQR(t, "JH-NU-2019-000123")

	code, found, err := New().Decode(content)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "JH-NU-2019-000123", code)
}

func TestDecodeWithoutCodeIsNotAnError(t *testing.T) {
	code, found, err := New().Decode(blankPNG(t))
	require.NoError(t, err)
	assert.False(t, found)
	assert.Empty(t, code)
}

func TestDecodeCorruptImage(t *testing.T) {
	_, found, err := New().Decode([]byte("definitely not an image"))
	require.Error(t, err)
	assert.False(t, found)

	var decodeErr *DecodeError
	require.True(t, errors.As(err, &decodeErr))
	assert.True(t, errors.Is(err, ErrImageDecode))
}
