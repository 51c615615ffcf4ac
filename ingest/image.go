package ingest

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	_ "image/png"
)

const jpegQuality = 90

// Bitmap is a decoded image with three 8-bit channels per pixel (RGB),
// stored row-major. Alpha and palette information is discarded on decode.
type Bitmap struct {
	Width  int
	Height int
	Pix    []uint8
}

// Channels is always 3.
func (b *Bitmap) Channels() int { return 3 }

// RGB returns the color at (x, y).
func (b *Bitmap) RGB(x, y int) (r, g, bl uint8) {
	i := (y*b.Width + x) * 3
	return b.Pix[i], b.Pix[i+1], b.Pix[i+2]
}

func (b *Bitmap) String() string {
	return fmt.Sprintf("image %dx%d RGB", b.Width, b.Height)
}

// DecodeImage decodes JPEG or PNG bytes into an RGB bitmap.
func DecodeImage(data []byte) (*Bitmap, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecodeFailure, err)
	}
	return toBitmap(img), nil
}

func toBitmap(img image.Image) *Bitmap {
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	b := &Bitmap{Width: w, Height: h, Pix: make([]uint8, w*h*3)}

	i := 0
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			// NRGBA keeps the stored color values; the alpha channel is dropped.
			c := color.NRGBAModel.Convert(img.At(x, y)).(color.NRGBA)
			b.Pix[i], b.Pix[i+1], b.Pix[i+2] = c.R, c.G, c.B
			i += 3
		}
	}
	return b
}

// Image returns b as an opaque image.RGBA.
func (b *Bitmap) Image() *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, b.Width, b.Height))
	for p, q := 0, 0; p < len(b.Pix); p, q = p+3, q+4 {
		img.Pix[q] = b.Pix[p]
		img.Pix[q+1] = b.Pix[p+1]
		img.Pix[q+2] = b.Pix[p+2]
		img.Pix[q+3] = 0xff
	}
	return img
}

// EncodeJPEG renders b as the inline binary sent with a prompt.
func (b *Bitmap) EncodeJPEG() ([]byte, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, b.Image(), &jpeg.Options{Quality: jpegQuality}); err != nil {
		return nil, fmt.Errorf("encode jpeg: %w", err)
	}
	return buf.Bytes(), nil
}
