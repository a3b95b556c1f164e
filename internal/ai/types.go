package ai

// CandidateOutfit is one AI-proposed clothing combination before image and
// shopping enrichment. Immutable once produced; later stages only attach the
// image URL and match score alongside it. Identity is positional within one
// response.
type CandidateOutfit struct {
	Title        string   `json:"title"`
	Description  string   `json:"description"`
	ColorPalette []string `json:"colorPalette" jsonschema_description:"Hex colors in #RRGGBB form"`
	StyleType    string   `json:"styleType"`
	Occasion     string   `json:"occasion"`
	Items        []string `json:"items"`
	ImagePrompt  string   `json:"imagePrompt"`
}

// StyleSuggestions is the structured result expected from a text provider.
type StyleSuggestions struct {
	OutfitRecommendations []CandidateOutfit `json:"outfitRecommendations"`
}

// StyleContext carries the client-extracted photo features and user context
// fed into prompt construction.
type StyleContext struct {
	Colors   []string
	SkinTone string
	Occasion string
	Weather  string
	Gender   string
	Genre    string
	Count    int
}
