package imaging

import (
	"image"
	"image/color"
	"math"

	"golang.org/x/image/draw"
)

// DefaultFeather is the width in pixels of the blend band inside a mask edge.
const DefaultFeather = 6

// Blend composites overlay onto base inside mask. Mask pixels with luminance
// below 128 (or transparent) are off; the result there is byte-identical to
// base. Inside the mask, pixels at least feather+1 steps from the nearest off
// pixel take the overlay fully and the band in between ramps linearly.
// Overlay and mask are scaled to the base size.
func Blend(base, overlay, mask image.Image, feather int) *image.NRGBA {
	if feather < 0 {
		feather = 0
	}

	out := toNRGBA(base)
	w, h := out.Rect.Dx(), out.Rect.Dy()
	if w == 0 || h == 0 {
		return out
	}
	ov := resize(overlay, w, h, draw.CatmullRom)
	m := resize(mask, w, h, draw.NearestNeighbor)

	dist := distanceToOff(m, w, h)
	ramp := float64(feather + 1)

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			d := dist[y*w+x]
			if d == 0 {
				continue
			}
			a := 1.0
			if float64(d) < ramp {
				a = float64(d) / ramp
			}
			i := out.PixOffset(x, y)
			for c := 0; c < 4; c++ {
				bv := float64(out.Pix[i+c])
				ovv := float64(ov.Pix[i+c])
				out.Pix[i+c] = uint8(math.Round(bv*(1-a) + ovv*a))
			}
		}
	}
	return out
}

// BlendBytes is Blend over encoded images; the result is PNG.
func BlendBytes(base, overlay, mask []byte, feather int) ([]byte, error) {
	b, err := Decode(base)
	if err != nil {
		return nil, err
	}
	o, err := Decode(overlay)
	if err != nil {
		return nil, err
	}
	m, err := Decode(mask)
	if err != nil {
		return nil, err
	}
	return EncodePNG(Blend(b, o, m, feather))
}

func maskOn(c color.Color) bool {
	_, _, _, a := c.RGBA()
	if a < 0x8000 {
		return false
	}
	return color.GrayModel.Convert(c).(color.Gray).Y >= 128
}

// distanceToOff is a two pass city-block distance transform. Off pixels are
// 0. On pixels get the step count to the nearest off pixel; a mask with no
// off pixels saturates.
func distanceToOff(m *image.NRGBA, w, h int) []int32 {
	const inf = math.MaxInt32 / 2
	d := make([]int32, w*h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if maskOn(m.NRGBAAt(x, y)) {
				d[y*w+x] = inf
			}
		}
	}

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			i := y*w + x
			if d[i] == 0 {
				continue
			}
			if x > 0 && d[i-1]+1 < d[i] {
				d[i] = d[i-1] + 1
			}
			if y > 0 && d[i-w]+1 < d[i] {
				d[i] = d[i-w] + 1
			}
		}
	}
	for y := h - 1; y >= 0; y-- {
		for x := w - 1; x >= 0; x-- {
			i := y*w + x
			if d[i] == 0 {
				continue
			}
			if x < w-1 && d[i+1]+1 < d[i] {
				d[i] = d[i+1] + 1
			}
			if y < h-1 && d[i+w]+1 < d[i] {
				d[i] = d[i+w] + 1
			}
		}
	}
	return d
}
