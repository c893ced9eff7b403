package framediff

import "image"

// Stabilising constants for an 8-bit dynamic range: (0.01*255)² and (0.03*255)².
const (
	c1 = (0.01 * 255) * (0.01 * 255)
	c2 = (0.03 * 255) * (0.03 * 255)
)

// MSSIM computes the single-window structural similarity index of the
// luminance of a and b, in [-1, 1]. ok is false when the images differ in
// size, in which case no comparison is made.
func MSSIM(a, b image.Image) (score float64, ok bool) {
	ra, rb := a.Bounds(), b.Bounds()
	if ra.Dx() != rb.Dx() || ra.Dy() != rb.Dy() {
		return 0, false
	}
	n := float64(ra.Dx() * ra.Dy())
	if n == 0 {
		return 1, true
	}

	var s1, s2, s11, s22, s12 float64
	eachLuma(a, b, func(x, y float64) {
		s1 += x
		s2 += y
		s11 += x * x
		s22 += y * y
		s12 += x * y
	})

	mu1, mu2 := s1/n, s2/n
	var1 := s11/n - mu1*mu1
	var2 := s22/n - mu2*mu2
	cov := s12/n - mu1*mu2

	num := (2*mu1*mu2 + c1) * (2*cov + c2)
	den := (mu1*mu1 + mu2*mu2 + c1) * (var1 + var2 + c2)
	if den == 0 {
		if num == 0 {
			return 1, true
		}
		return 0, true
	}
	return max(-1, min(1, num/den)), true
}

// eachLuma calls fn with the luminance of each pair of co-located pixels.
// *image.RGBA, the type screen grabbers return, is read straight from Pix.
func eachLuma(a, b image.Image, fn func(x, y float64)) {
	ra, rb := a.Bounds(), b.Bounds()
	pa, okA := a.(*image.RGBA)
	pb, okB := b.(*image.RGBA)
	if okA && okB {
		for y := 0; y < ra.Dy(); y++ {
			ia := pa.PixOffset(ra.Min.X, ra.Min.Y+y)
			ib := pb.PixOffset(rb.Min.X, rb.Min.Y+y)
			for x := 0; x < ra.Dx(); x++ {
				fn(luma8(pa.Pix[ia:ia+3]), luma8(pb.Pix[ib:ib+3]))
				ia += 4
				ib += 4
			}
		}
		return
	}
	for y := 0; y < ra.Dy(); y++ {
		for x := 0; x < ra.Dx(); x++ {
			fn(luma(a, ra.Min.X+x, ra.Min.Y+y), luma(b, rb.Min.X+x, rb.Min.Y+y))
		}
	}
}

func luma8(p []uint8) float64 {
	return 0.2989*float64(p[0]) + 0.5870*float64(p[1]) + 0.1140*float64(p[2])
}

func luma(img image.Image, x, y int) float64 {
	r, g, b, _ := img.At(x, y).RGBA()
	return 0.2989*float64(r>>8) + 0.5870*float64(g>>8) + 0.1140*float64(b>>8)
}
