package models

type CreateFusionJobRequest struct {
	// Category is one of lehenga, blouse, gown, saree, salwar, dress, top, skirt, other.
	Category          string `json:"category" example:"saree"`
	ModelImageURL     string `json:"modelImageUrl,omitempty"`
	ReferenceModelURL string `json:"referenceModelUrl,omitempty"`
	FabricTopURL      string `json:"fabricTopUrl,omitempty"`
	FabricBottomURL   string `json:"fabricBottomUrl,omitempty"`
	// Strength in (0,1]. When omitted each generation stage uses its own default.
	Strength    *float64 `json:"strength,omitempty" example:"0.5"`
	UserConsent bool     `json:"userConsent"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}
