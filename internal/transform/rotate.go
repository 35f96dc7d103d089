package transform

import (
	"image"
	"image/color"
	"image/draw"
)

// NormalizeRotation maps any angle onto [0, 360).
func NormalizeRotation(degrees int) int {
	return ((degrees % 360) + 360) % 360
}

// RotateLeft turns a rotation a quarter counter-clockwise.
func RotateLeft(degrees int) int { return NormalizeRotation(degrees - 90) }

// RotateRight turns a rotation a quarter clockwise.
func RotateRight(degrees int) int { return NormalizeRotation(degrees + 90) }

// Rotate returns img turned clockwise by degrees. Only multiples of 90 are supported;
// other angles are snapped down to the previous quarter turn.
func Rotate(img image.Image, degrees int) image.Image {
	quarter := NormalizeRotation(degrees) / 90
	if quarter == 0 {
		return img
	}

	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	var dst *image.RGBA
	if quarter%2 == 1 {
		dst = image.NewRGBA(image.Rect(0, 0, h, w))
	} else {
		dst = image.NewRGBA(image.Rect(0, 0, w, h))
	}

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			c := img.At(b.Min.X+x, b.Min.Y+y)
			switch quarter {
			case 1:
				dst.Set(h-1-y, x, c)
			case 2:
				dst.Set(w-1-x, h-1-y, c)
			case 3:
				dst.Set(y, w-1-x, c)
			}
		}
	}
	return dst
}

// flatten draws img onto an opaque white canvas so it can be stored as JPEG.
func flatten(img image.Image) *image.RGBA {
	b := img.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)
	draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Over)
	return dst
}
