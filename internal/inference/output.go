package inference

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"fabric-fusion-backend/internal/assets"
)

var ErrUnusableOutput = errors.New("model output contains no image")

type ImageKind string

const (
	ImageBase64 ImageKind = "base64"
	ImageURL    ImageKind = "url"
)

// GeneratedImage is a provider image output reduced to one of two shapes.
type GeneratedImage struct {
	Kind  ImageKind
	Value string
}

// imageKeys are checked in order when the output is an object.
var imageKeys = []string{"url", "image", "images", "output", "edge_map", "mask", "data", "result"}

// NormalizeImage reduces a string, array or object output to a single image.
// Arrays yield their first usable element.
func NormalizeImage(raw json.RawMessage) (GeneratedImage, error) {
	return normalize(raw, 0)
}

func normalize(raw json.RawMessage, depth int) (GeneratedImage, error) {
	if depth > 4 {
		return GeneratedImage{}, ErrUnusableOutput
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return fromString(s)
	}

	var arr []json.RawMessage
	if err := json.Unmarshal(raw, &arr); err == nil {
		for _, item := range arr {
			if img, err := normalize(item, depth+1); err == nil {
				return img, nil
			}
		}
		return GeneratedImage{}, ErrUnusableOutput
	}

	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err == nil {
		for _, key := range imageKeys {
			if v, ok := obj[key]; ok {
				if img, err := normalize(v, depth+1); err == nil {
					return img, nil
				}
			}
		}
		return GeneratedImage{}, ErrUnusableOutput
	}

	return GeneratedImage{}, fmt.Errorf("%w: unrecognized shape", ErrUnusableOutput)
}

func fromString(s string) (GeneratedImage, error) {
	s = strings.TrimSpace(s)
	switch {
	case s == "":
		return GeneratedImage{}, ErrUnusableOutput
	case strings.HasPrefix(s, "http://"), strings.HasPrefix(s, "https://"):
		return GeneratedImage{Kind: ImageURL, Value: s}, nil
	default:
		return GeneratedImage{Kind: ImageBase64, Value: s}, nil
	}
}

// Fetcher downloads a referenced image.
type Fetcher interface {
	Fetch(ctx context.Context, ref string) ([]byte, error)
}

// Bytes resolves the image to raw bytes, downloading URLs with f.
func (g GeneratedImage) Bytes(ctx context.Context, f Fetcher) ([]byte, error) {
	switch g.Kind {
	case ImageBase64:
		return assets.DecodeBase64(g.Value)
	case ImageURL:
		return f.Fetch(ctx, g.Value)
	default:
		return nil, ErrUnusableOutput
	}
}
