package framediff

import (
	"image"

	"golang.org/x/image/draw"
)

// Thumbnail scales img down to fit within maxW x maxH, keeping the aspect
// ratio. Images already within bounds are returned unchanged.
func Thumbnail(img image.Image, maxW, maxH int) image.Image {
	r := img.Bounds()
	w, h := r.Dx(), r.Dy()
	if w <= maxW && h <= maxH {
		return img
	}
	scale := min(float64(maxW)/float64(w), float64(maxH)/float64(h))
	tw := max(1, int(float64(w)*scale))
	th := max(1, int(float64(h)*scale))

	dst := image.NewRGBA(image.Rect(0, 0, tw, th))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, r, draw.Src, nil)
	return dst
}
