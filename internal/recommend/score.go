package recommend

import (
	"strings"
	"time"

	"github.com/vestiapp/vesti/internal/ai"
	"github.com/vestiapp/vesti/internal/cache"
	"github.com/vestiapp/vesti/internal/recommend/repetition"
	"github.com/vestiapp/vesti/pkg/utils"
)

// Scoring weight constants. The arithmetic is deliberately simple weighted
// counting; there is no learned model behind these values.
const (
	// scoreBase is the neutral starting score before any adjustment.
	scoreBase = 0.5

	// weightFavoriteColor is added per palette color in the user's favorites.
	weightFavoriteColor = 0.12
	// weightColorWeight scales the learned per-color weights.
	weightColorWeight = 0.2
	// weightDislikedColor is subtracted per palette color the user dislikes.
	weightDislikedColor = 0.15
	// weightPreferredStyle is added when the style matches a preferred style.
	weightPreferredStyle = 0.18
	// weightAvoidedStyle is subtracted when the style matches an avoided style.
	weightAvoidedStyle = 0.22

	// softBlockPenalty is subtracted per soft-blocklist overlap. Soft entries
	// are explicit user choices, so they are not scaled by profile confidence.
	softBlockPenalty = 0.12

	// maxRepetitionPenalty is the penalty for an outfit shown moments ago;
	// it decays linearly to zero over the rolling window.
	maxRepetitionPenalty = 0.35
)

// Scorer evaluates candidate outfits against a preference profile,
// blocklists and recent history. Safe for concurrent use.
type Scorer struct {
	window time.Duration
}

// NewScorer creates a scorer with the given repetition window.
func NewScorer(window time.Duration) *Scorer {
	return &Scorer{window: window}
}

// Excluded reports whether an outfit matches a hard blocklist entry or an
// unexpired temporary entry. Excluded outfits never appear in output.
func (s *Scorer) Excluded(outfit *ai.CandidateOutfit, blocklist *Blocklist, now time.Time) bool {
	if blocklist == nil {
		return false
	}

	if matchesSet(outfit, &blocklist.Hard) {
		return true
	}

	for _, entry := range blocklist.Temporary {
		if !now.Before(entry.ExpiresAt) {
			continue
		}
		if outfitMatchesTarget(outfit, entry.Target) {
			return true
		}
	}

	return false
}

// Score computes the match score in [0,1] with a short explanation. Profile
// terms are scaled by OverallConfidence so a new user's scores are dominated
// by the repetition penalty alone.
func (s *Scorer) Score(
	outfit *ai.CandidateOutfit, profile *PreferenceProfile,
	blocklist *Blocklist, recent []repetition.Entry,
) (float64, string) {
	if profile == nil {
		profile = NeutralProfile()
	}

	var (
		preference float64
		reasons    []string
	)

	favorites := toColorSet(profile.FavoriteColors)
	disliked := toColorSet(profile.DislikedColors)

	favoriteHits := 0
	dislikedHits := 0
	for _, color := range outfit.ColorPalette {
		if _, ok := favorites[color]; ok {
			favoriteHits++
		}
		if _, ok := disliked[color]; ok {
			dislikedHits++
		}
		if weight, ok := profile.ColorWeights[color]; ok {
			preference += weightColorWeight * weight
		}
	}

	preference += weightFavoriteColor * float64(favoriteHits)
	preference -= weightDislikedColor * float64(dislikedHits)

	if favoriteHits > 0 {
		reasons = append(reasons, "uses colors you love")
	}
	if dislikedHits > 0 {
		reasons = append(reasons, "includes a color you tend to avoid")
	}

	if containsLabel(profile.PreferredStyles, outfit.StyleType) {
		preference += weightPreferredStyle
		reasons = append(reasons, "matches your go-to style")
	}
	if containsLabel(profile.AvoidedStyles, outfit.StyleType) {
		preference -= weightAvoidedStyle
		reasons = append(reasons, "steps outside styles you usually skip")
	}

	confidence := clamp(profile.OverallConfidence, 0, 1)
	score := scoreBase + confidence*preference

	// Soft blocklist overlap rides the same pass, unscaled by confidence
	if blocklist != nil {
		overlaps := softOverlaps(outfit, &blocklist.Soft)
		if overlaps > 0 {
			score -= softBlockPenalty * float64(overlaps)
			reasons = append(reasons, "close to something you muted")
		}
	}

	if penalty := s.repetitionPenalty(outfit, recent); penalty > 0 {
		score -= penalty
		reasons = append(reasons, "similar to a recent look")
	}

	score = clamp(score, 0, 1)

	explanation := "a fresh take for you"
	if len(reasons) > 0 {
		explanation = strings.Join(reasons, "; ")
	}

	return score, explanation
}

// repetitionPenalty scales with how recently the same fingerprint was shown.
func (s *Scorer) repetitionPenalty(outfit *ai.CandidateOutfit, recent []repetition.Entry) float64 {
	if len(recent) == 0 || s.window <= 0 {
		return 0
	}

	fingerprint := cache.FingerprintOutfit(outfit.Title, outfit.ColorPalette, outfit.Items)
	now := time.Now()

	var penalty float64
	for _, entry := range recent {
		if entry.Fingerprint != fingerprint {
			continue
		}

		age := now.Sub(entry.ShownAt)
		if age < 0 {
			age = 0
		}
		if age > s.window {
			continue
		}

		p := maxRepetitionPenalty * (1 - float64(age)/float64(s.window))
		if p > penalty {
			penalty = p
		}
	}

	return penalty
}

// matchesSet reports any overlap between an outfit and one blocklist tier.
func matchesSet(outfit *ai.CandidateOutfit, set *BlocklistSet) bool {
	colors := toColorSet(set.Colors)
	for _, color := range outfit.ColorPalette {
		if _, ok := colors[color]; ok {
			return true
		}
	}

	if containsLabel(set.Styles, outfit.StyleType) {
		return true
	}

	for _, item := range outfit.Items {
		for _, blocked := range set.Items {
			if labelEqual(item, blocked) || labelContains(item, blocked) {
				return true
			}
		}
	}

	return false
}

// softOverlaps counts soft-blocklist overlaps for penalty scaling.
func softOverlaps(outfit *ai.CandidateOutfit, set *BlocklistSet) int {
	overlaps := 0

	colors := toColorSet(set.Colors)
	for _, color := range outfit.ColorPalette {
		if _, ok := colors[color]; ok {
			overlaps++
		}
	}

	if containsLabel(set.Styles, outfit.StyleType) {
		overlaps++
	}

	for _, item := range outfit.Items {
		for _, blocked := range set.Items {
			if labelEqual(item, blocked) || labelContains(item, blocked) {
				overlaps++
				break
			}
		}
	}

	return overlaps
}

// outfitMatchesTarget checks a temporary-blocklist target against colors,
// style and items.
func outfitMatchesTarget(outfit *ai.CandidateOutfit, target string) bool {
	if hex, ok := utils.NormalizeHexColor(target); ok {
		for _, color := range outfit.ColorPalette {
			if color == hex {
				return true
			}
		}
		return false
	}

	if labelEqual(outfit.StyleType, target) {
		return true
	}

	for _, item := range outfit.Items {
		if labelEqual(item, target) || labelContains(item, target) {
			return true
		}
	}

	return false
}

func toColorSet(colors []string) map[string]struct{} {
	set := make(map[string]struct{}, len(colors))
	for _, color := range colors {
		if hex, ok := utils.NormalizeHexColor(color); ok {
			set[hex] = struct{}{}
		}
	}
	return set
}

func containsLabel(labels []string, label string) bool {
	for _, candidate := range labels {
		if labelEqual(candidate, label) {
			return true
		}
	}
	return false
}

func labelEqual(a, b string) bool {
	return utils.NewTextNormalizer().Equal(a, b)
}

func labelContains(s, substr string) bool {
	n := utils.NewTextNormalizer()
	ns := n.Normalize(s)
	nsub := n.Normalize(substr)
	if ns == "" || nsub == "" {
		return false
	}
	return strings.Contains(ns, nsub)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
