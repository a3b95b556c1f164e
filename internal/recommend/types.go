package recommend

import (
	"context"
	"time"

	"github.com/vestiapp/vesti/internal/ai"
)

// MatchCategory buckets a scored outfit for the diversification pass.
type MatchCategory string

const (
	// CategorySafe outfits align closely with the user's learned preferences.
	CategorySafe MatchCategory = "safe"
	// CategoryStretch outfits sit near the edge of the user's comfort zone.
	CategoryStretch MatchCategory = "stretch"
	// CategoryExplore outfits are deliberate novelty picks.
	CategoryExplore MatchCategory = "explore"
)

// PreferenceProfile is the per-user aggregate read from the external
// preference store. Read-only to this pipeline. OverallConfidence gates how
// aggressively the scorer trusts preference-derived terms.
type PreferenceProfile struct {
	FavoriteColors    []string           `json:"favoriteColors"`
	DislikedColors    []string           `json:"dislikedColors"`
	PreferredStyles   []string           `json:"preferredStyles"`
	AvoidedStyles     []string           `json:"avoidedStyles"`
	ColorWeights      map[string]float64 `json:"colorWeights"`
	TotalInteractions int                `json:"totalInteractions"`
	OverallConfidence float64            `json:"overallConfidence"`
}

// BlocklistEntry is a temporary exclusion with an expiry.
type BlocklistEntry struct {
	Target    string    `json:"target"`
	ExpiresAt time.Time `json:"expiresAt"`
	Reason    string    `json:"reason"`
}

// BlocklistSet holds the targets of one blocklist tier.
type BlocklistSet struct {
	Colors []string `json:"colors"`
	Styles []string `json:"styles"`
	Items  []string `json:"items"`
}

// Blocklist is the user's exclusion configuration. Hard entries never appear
// in output; soft entries are penalized, not excluded; temporary entries are
// excluded only while unexpired.
type Blocklist struct {
	Hard      BlocklistSet     `json:"hard"`
	Soft      BlocklistSet     `json:"soft"`
	Temporary []BlocklistEntry `json:"temporary"`
}

// MatchResult pairs an outfit with its score, category and explanation.
// Ephemeral, produced and consumed within one request.
type MatchResult struct {
	Outfit      *ai.CandidateOutfit
	ImageURL    string
	Score       float64
	Category    MatchCategory
	Explanation string
}

// ShoppingLinks carries the fixed-key shopping link object attached to every
// enriched outfit. Each key is present in JSON output, nullable.
type ShoppingLinks struct {
	Tops        *string `json:"tops"`
	Bottoms     *string `json:"bottoms"`
	Shoes       *string `json:"shoes"`
	Accessories *string `json:"accessories"`
}

// EnrichedOutfit is one outfit as returned to the caller.
type EnrichedOutfit struct {
	Title         string        `json:"title"`
	Description   string        `json:"description"`
	ColorPalette  []string      `json:"colorPalette"`
	StyleType     string        `json:"styleType"`
	Occasion      string        `json:"occasion"`
	Items         []string      `json:"items"`
	ImageURL      string        `json:"imageUrl"`
	ShoppingLinks ShoppingLinks `json:"shoppingLinks"`
	// MatchScore and MatchCategory are present only when the request carried
	// a user identity.
	MatchScore    *float64       `json:"matchScore,omitempty"`
	MatchCategory *MatchCategory `json:"matchCategory,omitempty"`
	Explanation   string         `json:"explanation,omitempty"`
}

// Request is the validated input to the recommendation pipeline.
type Request struct {
	// Identity is the user id or anonymous client identifier used for rate
	// limiting and dedup. Required.
	Identity string
	// UserID enables personalization when present.
	UserID string
	// Photo is the raw uploaded photo payload.
	Photo []byte
	// Colors are the client-extracted photo colors.
	Colors   []string
	SkinTone string
	Occasion string
	Weather  string
	Gender   string
	Genre    string
	// Count is the number of outfits requested.
	Count int
}

// Response is the pipeline output.
type Response struct {
	Success          bool             `json:"success"`
	Outfits          []EnrichedOutfit `json:"outfits"`
	Cached           bool             `json:"cached"`
	PerformanceMs    int64            `json:"performanceMs"`
	RecommendationID string           `json:"recommendationId,omitempty"`
	Provider         string           `json:"provider,omitempty"`
}

// PreferenceStore supplies per-user preference profiles and blocklists. It is
// owned externally; implementations must return a neutral profile for unknown
// users rather than failing.
type PreferenceStore interface {
	GetPreferenceProfile(ctx context.Context, userID string) (*PreferenceProfile, error)
	GetBlocklists(ctx context.Context, userID string) (*Blocklist, error)
}

// InteractionTracker accepts fire-and-forget session writes. Failures never
// propagate to the caller.
type InteractionTracker interface {
	TrackShown(ctx context.Context, sessionID string, req *Request, outfits []EnrichedOutfit) error
}

// ShoppingSearcher derives shopping links for an outfit. External
// collaborator; errors degrade to empty links.
type ShoppingSearcher interface {
	DeriveLinks(ctx context.Context, outfit *ai.CandidateOutfit, gender string) (ShoppingLinks, error)
}

// NeutralProfile is the zero-confidence profile used when the preference
// store is unavailable or the user is unknown.
func NeutralProfile() *PreferenceProfile {
	return &PreferenceProfile{
		ColorWeights: make(map[string]float64),
	}
}
