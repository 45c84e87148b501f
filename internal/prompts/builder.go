// Package prompts builds the text prompts for each generation mode.
package prompts

import (
	"fmt"
	"strings"

	"fabric-fusion-backend/internal/models"
)

// Negative is shared by every generation call.
const Negative = "no faces, no face changes, no identity changes, no logos, no text, no watermarks, " +
	"no surreal distortions, avoid unnatural stretching"

type Prompts struct {
	Silhouette string `json:"silhouettePrompt"`
	Texture    string `json:"texturePrompt"`
	Hybrid     string `json:"hybridPrompt"`
	Negative   string `json:"negativePrompt"`
}

// AsMetadata is the shape recorded on the job.
func (p Prompts) AsMetadata() map[string]interface{} {
	return map[string]interface{}{
		"silhouettePrompt": p.Silhouette,
		"texturePrompt":    p.Texture,
		"hybridPrompt":     p.Hybrid,
		"negativePrompt":   p.Negative,
	}
}

// Build is pure: the same inputs always give the same prompts. Either
// feature set may be nil.
func Build(category models.Category, top, bottom *models.FabricFeatures) Prompts {
	garment := garmentPhrase(category)
	topDesc := describe(top, "fabric top sample")
	bottomDesc := describe(bottom, "fabric bottom sample")

	silhouette := fmt.Sprintf(
		"Photorealistic inpainting of a %s. Preserve the model's exact pose, silhouette, and body shape. "+
			"Apply the exact fabric texture and pattern from the reference fabric image to the upper garment region. "+
			"Use the fabric colors: %s. Keep the same garment silhouette, seams, and folds. "+
			"Do not change the model's pose, face, skin, hands, or background. "+
			"The fabric should drape naturally on the existing garment shape.",
		garment, topDesc)

	texture := fmt.Sprintf(
		"Photorealistic inpainting of a %s. Apply the exact fabric pattern and texture from the reference fabric image "+
			"to the lower garment region. Use the fabric colors: %s. Match motifs and texture details precisely. "+
			"Preserve the model's pose, silhouette, and body shape. Keep face and skin unmodified. "+
			"The pattern should scale naturally and follow the garment's folds and seams.",
		garment, bottomDesc)

	hybrid := fmt.Sprintf(
		"Balanced fusion for a %s: apply the exact fabric texture from the reference image to the garment "+
			"while preserving the model's pose and silhouette. Match fabric colors (%s) and patterns precisely. "+
			"Keep natural garment drape, seams, and folds. Do not modify face, skin, or background.",
		garment, joinDesc(top, bottom, topDesc, bottomDesc))

	return Prompts{
		Silhouette: silhouette,
		Texture:    texture,
		Hybrid:     hybrid,
		Negative:   Negative,
	}
}

func describe(f *models.FabricFeatures, fallback string) string {
	if f == nil || (len(f.Colors) == 0 && f.Texture == "") {
		return fallback
	}
	colors := f.Colors
	if len(colors) > 3 {
		colors = colors[:3]
	}
	texture := f.Texture
	if texture == "" {
		texture = "fabric"
	}
	if len(colors) == 0 {
		return "texture: " + texture
	}
	return strings.Join(colors, ", ") + "; texture: " + texture
}

func joinDesc(top, bottom *models.FabricFeatures, topDesc, bottomDesc string) string {
	switch {
	case top != nil && bottom != nil:
		return topDesc + " over " + bottomDesc
	case bottom != nil:
		return bottomDesc
	default:
		return topDesc
	}
}

var garmentPhrases = map[models.Category]string{
	models.CategoryLehenga: "lehenga with fitted blouse and flared skirt",
	models.CategoryBlouse:  "fitted blouse",
	models.CategoryGown:    "full-length gown",
	models.CategorySaree:   "draped saree with blouse",
	models.CategorySalwar:  "salwar kameez",
	models.CategoryDress:   "dress",
	models.CategoryTop:     "top",
	models.CategorySkirt:   "skirt",
}

func garmentPhrase(c models.Category) string {
	if p, ok := garmentPhrases[c]; ok {
		return p
	}
	return "garment"
}
