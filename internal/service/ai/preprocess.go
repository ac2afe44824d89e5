package ai

import (
	"image"

	"github.com/nfnt/resize"
)

// ToCHW resizes img to the network input and lays it out planar,
// normalised as (v - mean) * scale with v in [0,255]. Channel order is RGB
// when SwapRB is set (matching OpenCV's blob semantics), BGR otherwise.
func ToCHW(img image.Image, pre Preprocess) []float32 {
	size := uint(pre.InputSize)
	resized := resize.Resize(size, size, img, resize.Bilinear)

	b := resized.Bounds()
	w, h := b.Dx(), b.Dy()
	plane := w * h
	out := make([]float32, 3*plane)

	order := [3]int{2, 1, 0}
	if pre.SwapRB {
		order = [3]int{0, 1, 2}
	}

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			r, g, bl, _ := resized.At(b.Min.X+x, b.Min.Y+y).RGBA()
			px := [3]float64{float64(r >> 8), float64(g >> 8), float64(bl >> 8)}
			i := y*w + x
			for c := 0; c < 3; c++ {
				src := order[c]
				out[c*plane+i] = float32((px[src] - pre.Mean[c]) * pre.Scale)
			}
		}
	}
	return out
}
