package tray

import (
	"bytes"
	"encoding/binary"
	"image"
	"image/color"
	"runtime"

	"github.com/disintegration/imaging"
)

const iconSize = 32

// drawIcon renders a viewfinder: four corner brackets around a filled
// circle, the shape of a screenshot being looked at.
func drawIcon(size int, fg color.NRGBA) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, size, size))
	arm := size / 3
	thick := size / 10
	if thick < 1 {
		thick = 1
	}
	set := func(x, y int) { img.SetNRGBA(x, y, fg) }

	for i := 0; i < arm; i++ {
		for t := 0; t < thick; t++ {
			// top-left
			set(i, t)
			set(t, i)
			// top-right
			set(size-1-i, t)
			set(size-1-t, i)
			// bottom-left
			set(i, size-1-t)
			set(t, size-1-i)
			// bottom-right
			set(size-1-i, size-1-t)
			set(size-1-t, size-1-i)
		}
	}

	c := float64(size-1) / 2
	r := float64(size) / 6
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			dx, dy := float64(x)-c, float64(y)-c
			if dx*dx+dy*dy <= r*r {
				set(x, y)
			}
		}
	}
	return img
}

// IconPNG is the tray icon as PNG bytes. Template icons on macOS should
// be black on transparent.
func IconPNG() []byte {
	var buf bytes.Buffer
	img := drawIcon(iconSize, color.NRGBA{A: 255})
	if err := imaging.Encode(&buf, img, imaging.PNG); err != nil {
		return nil
	}
	return buf.Bytes()
}

// wrapICO embeds a PNG in a single-image ICO container, which is what the
// Windows tray expects.
func wrapICO(png []byte, size int) []byte {
	var buf bytes.Buffer
	// ICONDIR
	_ = binary.Write(&buf, binary.LittleEndian, [3]uint16{0, 1, 1})
	dim := uint8(size)
	if size >= 256 {
		dim = 0
	}
	// ICONDIRENTRY
	buf.Write([]byte{dim, dim, 0, 0})
	_ = binary.Write(&buf, binary.LittleEndian, uint16(1))  // planes
	_ = binary.Write(&buf, binary.LittleEndian, uint16(32)) // bpp
	_ = binary.Write(&buf, binary.LittleEndian, uint32(len(png)))
	_ = binary.Write(&buf, binary.LittleEndian, uint32(6+16))
	buf.Write(png)
	return buf.Bytes()
}

// Icon returns the tray icon in the format the current platform expects.
func Icon() []byte {
	png := IconPNG()
	if runtime.GOOS == "windows" {
		return wrapICO(png, iconSize)
	}
	return png
}
