package frame

import "image"

// Gray is a downsampled grayscale working grid. Both the motion filter and
// the duplicate filter compare frames on this reduced representation instead
// of full-resolution pixels.
type Gray struct {
	Width  int
	Height int
	Pix    []uint8
}

// Grayscale samples img down to a grid no wider than maxWidth, converting to
// 8-bit luminance with nearest-neighbor sampling. Aspect ratio is preserved.
func Grayscale(img image.Image, maxWidth int) *Gray {
	bounds := img.Bounds()
	srcW := bounds.Dx()
	srcH := bounds.Dy()

	dstW := srcW
	dstH := srcH
	if maxWidth > 0 && srcW > maxWidth {
		dstW = maxWidth
		dstH = (srcH * maxWidth) / srcW
		if dstH < 1 {
			dstH = 1
		}
	}

	g := &Gray{
		Width:  dstW,
		Height: dstH,
		Pix:    make([]uint8, dstW*dstH),
	}

	for y := 0; y < dstH; y++ {
		srcY := bounds.Min.Y + (y*srcH)/dstH
		for x := 0; x < dstW; x++ {
			srcX := bounds.Min.X + (x*srcW)/dstW
			r, gr, b, _ := img.At(srcX, srcY).RGBA()
			// ITU-R BT.601 luma from 16-bit channels
			luma := (299*r + 587*gr + 114*b) / 1000
			g.Pix[y*dstW+x] = uint8(luma >> 8)
		}
	}

	return g
}

// GrayscaleSquare samples img into a fixed size-by-size grayscale grid,
// ignoring aspect ratio. Used for fingerprinting where a fixed-length
// representation matters more than geometry.
func GrayscaleSquare(img image.Image, size int) *Gray {
	bounds := img.Bounds()
	srcW := bounds.Dx()
	srcH := bounds.Dy()

	g := &Gray{
		Width:  size,
		Height: size,
		Pix:    make([]uint8, size*size),
	}

	for y := 0; y < size; y++ {
		srcY := bounds.Min.Y + (y*srcH)/size
		for x := 0; x < size; x++ {
			srcX := bounds.Min.X + (x*srcW)/size
			r, gr, b, _ := img.At(srcX, srcY).RGBA()
			luma := (299*r + 587*gr + 114*b) / 1000
			g.Pix[y*size+x] = uint8(luma >> 8)
		}
	}

	return g
}
