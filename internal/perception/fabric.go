package perception

import (
	"context"
	"fmt"
	"image"
	"math"
	"sort"

	"fabric-fusion-backend/internal/imaging"
	"fabric-fusion-backend/internal/inference"
	"fabric-fusion-backend/internal/models"
)

const (
	paletteSize   = 6
	analysisSide  = 96
	bucketBits    = 3
	minAlpha      = 128
	smoothCutoff  = 6.0
	patternCutoff = 18.0
)

// Texture labels.
const (
	TextureSmooth    = "smooth"
	TextureWoven     = "woven"
	TexturePatterned = "patterned"
)

// FabricExtractor derives a palette and texture label from a fabric photo.
// It runs locally on the downloaded image.
type FabricExtractor struct {
	fetcher inference.Fetcher
}

func NewFabricExtractor(fetcher inference.Fetcher) *FabricExtractor {
	return &FabricExtractor{fetcher: fetcher}
}

func (e *FabricExtractor) Extract(ctx context.Context, fabricURL string) (*models.FabricFeatures, error) {
	data, err := e.fetcher.Fetch(ctx, fabricURL)
	if err != nil {
		return nil, fmt.Errorf("fabric features: %w", err)
	}
	img, err := imaging.Decode(data)
	if err != nil {
		return nil, fmt.Errorf("fabric features: %w", err)
	}
	return Analyze(img), nil
}

// Analyze is deterministic for a given image.
func Analyze(img image.Image) *models.FabricFeatures {
	thumb := imaging.Thumbnail(img, analysisSide)
	colors := palette(thumb)
	features := &models.FabricFeatures{
		Colors:  colors,
		Texture: texture(thumb),
	}
	if len(colors) > 0 {
		features.DominantColor = colors[0]
	}
	return features
}

type bucket struct {
	key     int
	count   int
	r, g, b int
}

// palette quantizes each channel to bucketBits and returns the mean colour of
// the most populated buckets. Ties go to the lower bucket key.
func palette(img *image.NRGBA) []string {
	shift := 8 - bucketBits
	buckets := map[int]*bucket{}

	b := img.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			c := img.NRGBAAt(x, y)
			if c.A < minAlpha {
				continue
			}
			key := int(c.R>>shift)<<(2*bucketBits) | int(c.G>>shift)<<bucketBits | int(c.B>>shift)
			bk, ok := buckets[key]
			if !ok {
				bk = &bucket{key: key}
				buckets[key] = bk
			}
			bk.count++
			bk.r += int(c.R)
			bk.g += int(c.G)
			bk.b += int(c.B)
		}
	}

	sorted := make([]*bucket, 0, len(buckets))
	for _, bk := range buckets {
		sorted = append(sorted, bk)
	}
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].count != sorted[j].count {
			return sorted[i].count > sorted[j].count
		}
		return sorted[i].key < sorted[j].key
	})

	colors := make([]string, 0, paletteSize)
	for _, bk := range sorted {
		if len(colors) == paletteSize {
			break
		}
		colors = append(colors, fmt.Sprintf("#%02x%02x%02x", bk.r/bk.count, bk.g/bk.count, bk.b/bk.count))
	}
	return colors
}

// texture labels the fabric by mean absolute luminance gradient.
func texture(img *image.NRGBA) string {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w < 2 || h < 2 {
		return TextureSmooth
	}

	lum := func(x, y int) float64 {
		c := img.NRGBAAt(b.Min.X+x, b.Min.Y+y)
		return 0.299*float64(c.R) + 0.587*float64(c.G) + 0.114*float64(c.B)
	}

	var sum float64
	var n int
	for y := 0; y < h-1; y++ {
		for x := 0; x < w-1; x++ {
			l := lum(x, y)
			sum += math.Abs(l-lum(x+1, y)) + math.Abs(l-lum(x, y+1))
			n += 2
		}
	}
	mean := sum / float64(n)

	switch {
	case mean < smoothCutoff:
		return TextureSmooth
	case mean < patternCutoff:
		return TextureWoven
	default:
		return TexturePatterned
	}
}
