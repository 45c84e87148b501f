package perception

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"fabric-fusion-backend/internal/inference"
)

// Masks holds garment region masks as encoded images. Any field may be nil.
type Masks struct {
	Top        []byte
	Bottom     []byte
	Silhouette []byte
}

func (m Masks) Empty() bool {
	return m.Top == nil && m.Bottom == nil && m.Silhouette == nil
}

// Point prompts in the model's 1024x1536 portrait frame.
var (
	topPoint        = [2]int{512, 460}
	bottomPoint     = [2]int{512, 920}
	silhouettePoint = [2]int{512, 768}
)

type Segmenter struct {
	runner   Runner
	fetcher  inference.Fetcher
	modelID  string
	attempts int
}

func NewSegmenter(runner Runner, fetcher inference.Fetcher, modelID string, attempts int) *Segmenter {
	return &Segmenter{runner: runner, fetcher: fetcher, modelID: modelID, attempts: attemptsOrDefault(attempts)}
}

// Segment asks for one mask per region. A region that fails is left nil; the
// call only errors when every region failed.
func (s *Segmenter) Segment(ctx context.Context, imageURL string) (Masks, error) {
	var (
		masks Masks
		errs  []error
	)
	for _, r := range []struct {
		name  string
		point [2]int
		dst   *[]byte
	}{
		{"top", topPoint, &masks.Top},
		{"bottom", bottomPoint, &masks.Bottom},
		{"silhouette", silhouettePoint, &masks.Silhouette},
	} {
		mask, err := s.segmentPoint(ctx, imageURL, r.point)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", r.name, err))
			continue
		}
		*r.dst = mask
	}

	if len(errs) == 3 {
		return Masks{}, fmt.Errorf("segmentation: %w", errors.Join(errs...))
	}
	return masks, nil
}

func (s *Segmenter) segmentPoint(ctx context.Context, imageURL string, point [2]int) ([]byte, error) {
	payload := map[string]interface{}{
		"image": imageURL,
		"prompts": []map[string]interface{}{
			{"type": "point", "coordinates": point},
		},
	}
	raw, err := s.runner.Run(ctx, s.modelID, payload, s.attempts)
	if err != nil {
		return nil, err
	}

	var out struct {
		Masks []json.RawMessage `json:"masks"`
	}
	if err := json.Unmarshal(raw, &out); err != nil || len(out.Masks) == 0 {
		return nil, inference.ErrUnusableOutput
	}
	return resolveImage(ctx, out.Masks[0], s.fetcher)
}
