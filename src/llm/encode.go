package llm

import (
	"bytes"
	"errors"
	"image"

	"github.com/disintegration/imaging"
)

// DefaultJPEGQuality matches a 0.8 compression factor.
const DefaultJPEGQuality = 80

// EncodeJPEG encodes img as JPEG. A quality outside 1..100 falls back to
// DefaultJPEGQuality. When maxDimension is positive, larger images are
// scaled down to fit a maxDimension square first.
func EncodeJPEG(img image.Image, quality, maxDimension int) ([]byte, error) {
	if img == nil || img.Bounds().Empty() {
		return nil, errors.New("empty image")
	}
	if quality < 1 || quality > 100 {
		quality = DefaultJPEGQuality
	}
	if b := img.Bounds(); maxDimension > 0 && (b.Dx() > maxDimension || b.Dy() > maxDimension) {
		img = imaging.Fit(img, maxDimension, maxDimension, imaging.Lanczos)
	}
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(quality)); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
