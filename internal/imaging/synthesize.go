package imaging

import (
	"image"
	"math"
)

// Synthesize produces a local stand-in for a generated image: the fabric is
// cover-fitted over base and multiply-blended at the given strength, then
// brightness and saturation are lifted slightly. It never fails; on any error
// it returns base unchanged.
func Synthesize(base, fabric []byte, strength float64) (out []byte) {
	defer func() {
		if r := recover(); r != nil {
			out = base
		}
	}()

	baseImg, err := Decode(base)
	if err != nil {
		return base
	}
	fabricImg, err := Decode(fabric)
	if err != nil {
		return base
	}

	encoded, err := EncodePNG(synthesize(baseImg, fabricImg, strength))
	if err != nil {
		return base
	}
	return encoded
}

func synthesize(baseImg, fabricImg image.Image, strength float64) *image.NRGBA {
	s := clamp01(strength)
	dst := toNRGBA(baseImg)
	w, h := dst.Rect.Dx(), dst.Rect.Dy()
	if w == 0 || h == 0 {
		return dst
	}
	fab := coverFit(fabricImg, w, h)

	brightness := 1 + 0.1*s
	saturation := 1 + 0.2*s

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			i := dst.PixOffset(x, y)
			var rgb [3]float64
			for c := 0; c < 3; c++ {
				b := float64(dst.Pix[i+c])
				f := float64(fab.Pix[i+c])
				mul := b * f / 255
				rgb[c] = (b*(1-s) + mul*s) * brightness
			}
			gray := 0.299*rgb[0] + 0.587*rgb[1] + 0.114*rgb[2]
			for c := 0; c < 3; c++ {
				dst.Pix[i+c] = clampByte(gray + (rgb[c]-gray)*saturation)
			}
		}
	}
	return dst
}

func clamp01(v float64) float64 {
	switch {
	case math.IsNaN(v), v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}

func clampByte(v float64) uint8 {
	switch {
	case math.IsNaN(v), v <= 0:
		return 0
	case v >= 255:
		return 255
	}
	return uint8(math.Round(v))
}
