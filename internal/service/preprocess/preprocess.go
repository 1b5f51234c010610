// Package preprocess turns camera frames into the fixed-size pixel buffer the detector consumes.
package preprocess

import (
	"image"

	"github.com/disintegration/imaging"
)

// Channels is the number of bytes per pixel in the model input (R, G, B).
const Channels = 3

// RGB resizes img to size x size and packs it as interleaved uint8 RGB, row-major.
// The returned buffer is always size*size*3 bytes long.
func RGB(img image.Image, size int) []byte {
	return RGBInto(nil, img, size)
}

// RGBInto is RGB writing into dst when it is large enough, avoiding an allocation per frame.
func RGBInto(dst []byte, img image.Image, size int) []byte {
	n := size * size * Channels
	if cap(dst) < n {
		dst = make([]byte, n)
	}
	dst = dst[:n]

	if img == nil || img.Bounds().Empty() {
		clear(dst)
		return dst
	}

	resized := imaging.Resize(img, size, size, imaging.Linear)
	pix := resized.Pix
	for i, j := 0, 0; j < n; i, j = i+4, j+Channels {
		dst[j] = pix[i]
		dst[j+1] = pix[i+1]
		dst[j+2] = pix[i+2]
	}
	return dst
}

// Float32Into converts packed RGB bytes to the [-1, 1] range used by float SSD graphs.
func Float32Into(dst []float32, pixels []byte) []float32 {
	if cap(dst) < len(pixels) {
		dst = make([]float32, len(pixels))
	}
	dst = dst[:len(pixels)]
	for i, p := range pixels {
		dst[i] = (float32(p) - 127.5) / 127.5
	}
	return dst
}
