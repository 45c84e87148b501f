package imaging

import (
	"fmt"

	"golang.org/x/image/draw"
)

// MaxUpscaleSide caps the longer side of a locally upscaled image.
const MaxUpscaleSide = 4096

// Upscale enlarges an encoded image by factor with Catmull-Rom resampling.
// The longer side is capped at MaxUpscaleSide and the image never shrinks.
func Upscale(data []byte, factor int) ([]byte, error) {
	if factor < 1 {
		return nil, fmt.Errorf("invalid upscale factor %d", factor)
	}
	img, err := Decode(data)
	if err != nil {
		return nil, err
	}

	b := img.Bounds()
	w, h := b.Dx()*factor, b.Dy()*factor
	if longer := max(w, h); longer > MaxUpscaleSide {
		w = w * MaxUpscaleSide / longer
		h = h * MaxUpscaleSide / longer
	}
	w = max(w, b.Dx())
	h = max(h, b.Dy())

	return EncodePNG(resize(img, w, h, draw.CatmullRom))
}
