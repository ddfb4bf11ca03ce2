package capture

import (
	"fmt"
	"image"
)

// PixelFormat is the byte layout of a Surface.
type PixelFormat int

const (
	// PixelFormatBGRA is 32-bit B,G,R,A, the native layout of most
	// hardware capture paths.
	PixelFormatBGRA PixelFormat = iota
	PixelFormatRGBA
)

func (f PixelFormat) String() string {
	switch f {
	case PixelFormatBGRA:
		return "BGRA"
	case PixelFormatRGBA:
		return "RGBA"
	default:
		return fmt.Sprintf("PixelFormat(%d)", int(f))
	}
}

// Surface is the pixel buffer backing one captured frame. It is only valid
// for the duration of the capture that produced it.
type Surface struct {
	Pix    []byte
	Width  int
	Height int
	Stride int
	Format PixelFormat
}

// Image copies the surface into a new RGBA image. It fails with
// ErrImageCreation when the surface cannot describe a valid bitmap.
func (s *Surface) Image() (*image.RGBA, error) {
	if s == nil || s.Width <= 0 || s.Height <= 0 {
		return nil, ErrImageCreation
	}
	if s.Stride < s.Width*4 || len(s.Pix) < s.Stride*(s.Height-1)+s.Width*4 {
		return nil, fmt.Errorf("%w: %dx%d surface with stride %d has %d bytes", ErrImageCreation, s.Width, s.Height, s.Stride, len(s.Pix))
	}

	img := image.NewRGBA(image.Rect(0, 0, s.Width, s.Height))
	switch s.Format {
	case PixelFormatRGBA:
		for row := 0; row < s.Height; row++ {
			src := s.Pix[row*s.Stride : row*s.Stride+s.Width*4]
			copy(img.Pix[row*img.Stride:], src)
		}
	case PixelFormatBGRA:
		for row := 0; row < s.Height; row++ {
			srcRow := s.Pix[row*s.Stride:]
			dstRow := img.Pix[row*img.Stride:]
			for col := 0; col < s.Width; col++ {
				i := col * 4
				dstRow[i+0] = srcRow[i+2]
				dstRow[i+1] = srcRow[i+1]
				dstRow[i+2] = srcRow[i+0]
				dstRow[i+3] = srcRow[i+3]
			}
		}
	default:
		return nil, fmt.Errorf("%w: unsupported pixel format %s", ErrImageCreation, s.Format)
	}
	return img, nil
}

// SurfaceFromRGBA wraps an RGBA image as a surface without copying.
func SurfaceFromRGBA(img *image.RGBA) *Surface {
	if img == nil {
		return nil
	}
	b := img.Bounds()
	return &Surface{
		Pix:    img.Pix,
		Width:  b.Dx(),
		Height: b.Dy(),
		Stride: img.Stride,
		Format: PixelFormatRGBA,
	}
}
