package ingest

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func encodePNG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestDecodeImage_DropsAlpha(t *testing.T) {
	src := image.NewNRGBA(image.Rect(0, 0, 4, 3))
	for y := 0; y < 3; y++ {
		for x := 0; x < 4; x++ {
			src.SetNRGBA(x, y, color.NRGBA{R: 200, G: 100, B: 50, A: 128})
		}
	}

	bmp, err := DecodeImage(encodePNG(t, src))
	require.NoError(t, err)
	assert.Equal(t, 4, bmp.Width)
	assert.Equal(t, 3, bmp.Height)
	assert.Equal(t, 3, bmp.Channels())
	assert.Len(t, bmp.Pix, 4*3*3)

	r, g, b := bmp.RGB(2, 1)
	assert.Equal(t, uint8(200), r)
	assert.Equal(t, uint8(100), g)
	assert.Equal(t, uint8(50), b)
}

func TestDecodeImage_Paletted(t *testing.T) {
	pal := color.Palette{color.RGBA{255, 0, 0, 255}, color.RGBA{0, 0, 255, 255}}
	src := image.NewPaletted(image.Rect(0, 0, 2, 2), pal)
	src.SetColorIndex(1, 1, 1)

	bmp, err := DecodeImage(encodePNG(t, src))
	require.NoError(t, err)

	r, _, b := bmp.RGB(0, 0)
	assert.Equal(t, uint8(255), r)
	assert.Equal(t, uint8(0), b)
	r, _, b = bmp.RGB(1, 1)
	assert.Equal(t, uint8(0), r)
	assert.Equal(t, uint8(255), b)
}

func TestDecodeImage_Invalid(t *testing.T) {
	_, err := DecodeImage([]byte("definitely not an image"))
	assert.ErrorIs(t, err, ErrDecodeFailure)
}

func TestBitmap_JPEGRoundTrip(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 17, 9))
	for i := range src.Pix {
		src.Pix[i] = uint8(i)
	}
	bmp, err := DecodeImage(encodePNG(t, src))
	require.NoError(t, err)

	encoded, err := bmp.EncodeJPEG()
	require.NoError(t, err)

	again, err := DecodeImage(encoded)
	require.NoError(t, err)
	assert.Equal(t, bmp.Width, again.Width)
	assert.Equal(t, bmp.Height, again.Height)
	assert.Equal(t, 3, again.Channels())
	assert.Len(t, again.Pix, len(bmp.Pix))
}
