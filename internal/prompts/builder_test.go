package prompts_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"fabric-fusion-backend/internal/models"
	"fabric-fusion-backend/internal/prompts"
)

func TestBuild_UsesFirstThreeColours(t *testing.T) {
	top := &models.FabricFeatures{
		Colors:  []string{"#ff0000", "#00ff00", "#0000ff", "#ffffff"},
		Texture: "woven",
	}

	p := prompts.Build(models.CategorySaree, top, nil)

	assert.Contains(t, p.Silhouette, "#ff0000, #00ff00, #0000ff; texture: woven")
	assert.NotContains(t, p.Silhouette, "#ffffff")
	assert.Contains(t, p.Silhouette, "saree")
	assert.Contains(t, p.Texture, "fabric bottom sample")
	assert.Contains(t, p.Hybrid, "#ff0000")
}

func TestBuild_NoFeatures(t *testing.T) {
	p := prompts.Build(models.CategoryOther, nil, nil)

	assert.Contains(t, p.Silhouette, "fabric top sample")
	assert.Contains(t, p.Texture, "fabric bottom sample")
	assert.Contains(t, p.Silhouette, "garment")
	assert.Equal(t, prompts.Negative, p.Negative)
}

func TestBuild_IsPure(t *testing.T) {
	top := &models.FabricFeatures{Colors: []string{"#123456"}, Texture: "smooth"}
	bottom := &models.FabricFeatures{Colors: []string{"#abcdef"}, Texture: "patterned"}

	assert.Equal(t,
		prompts.Build(models.CategoryLehenga, top, bottom),
		prompts.Build(models.CategoryLehenga, top, bottom))
}

func TestNegativeForbidsIdentityChanges(t *testing.T) {
	for _, phrase := range []string{"no faces", "no identity changes", "no text", "no logos"} {
		assert.Contains(t, prompts.Negative, phrase)
	}
}

func TestAsMetadata(t *testing.T) {
	md := prompts.Build(models.CategoryGown, nil, nil).AsMetadata()
	assert.Len(t, md, 4)
	assert.Contains(t, md, "hybridPrompt")
}
