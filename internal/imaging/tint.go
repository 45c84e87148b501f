package imaging

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/fogleman/gg"
)

type Region string

const (
	RegionTop    Region = "top"
	RegionBottom Region = "bottom"
)

// topShare is the fraction of the frame height treated as the upper garment.
const topShare = 0.4

// TintRegion washes a translucent band of hex colour over the top or bottom
// garment region of base. The band opacity scales with strength.
func TintRegion(base []byte, hex string, region Region, strength float64) ([]byte, error) {
	img, err := Decode(base)
	if err != nil {
		return nil, err
	}
	r, g, b, err := ParseHex(hex)
	if err != nil {
		return nil, err
	}

	bounds := img.Bounds()
	w, h := float64(bounds.Dx()), float64(bounds.Dy())

	dc := gg.NewContextForImage(img)
	alpha := 0.15 + 0.45*clamp01(strength)
	dc.SetRGBA(float64(r)/255, float64(g)/255, float64(b)/255, alpha)

	switch region {
	case RegionTop:
		dc.DrawRectangle(0, 0, w, h*topShare)
	case RegionBottom:
		dc.DrawRectangle(0, h*topShare, w, h*(1-topShare))
	default:
		return nil, fmt.Errorf("unknown region %q", region)
	}
	dc.Fill()

	return EncodePNG(dc.Image())
}

// ParseHex reads #rgb or #rrggbb.
func ParseHex(hex string) (uint8, uint8, uint8, error) {
	s := strings.TrimPrefix(strings.TrimSpace(hex), "#")
	if len(s) == 3 {
		s = string([]byte{s[0], s[0], s[1], s[1], s[2], s[2]})
	}
	if len(s) != 6 {
		return 0, 0, 0, fmt.Errorf("invalid hex colour %q", hex)
	}
	v, err := strconv.ParseUint(s, 16, 32)
	if err != nil {
		return 0, 0, 0, fmt.Errorf("invalid hex colour %q: %w", hex, err)
	}
	return uint8(v >> 16), uint8(v >> 8), uint8(v), nil
}
