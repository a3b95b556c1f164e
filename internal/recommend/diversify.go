package recommend

import (
	"sort"

	"github.com/vestiapp/vesti/internal/recommend/repetition"
	"go.uber.org/zap"
)

// patternLockMinHistory is the minimum number of recent entries required
// before pattern lock can trigger; below this the signal is too noisy.
const patternLockMinHistory = 5

// patternLockSample bounds how much history the detector inspects.
const patternLockSample = 10

// Diversifier reorders scored outfits to respect preference while
// guaranteeing variety. Thresholds and the target distribution are tuned
// constants supplied through configuration.
type Diversifier struct {
	safeThreshold        float64
	stretchThreshold     float64
	patternLockThreshold float64
	logger               *zap.Logger
}

// NewDiversifier creates a diversifier with the given category thresholds.
func NewDiversifier(safeThreshold, stretchThreshold, patternLockThreshold float64, logger *zap.Logger) *Diversifier {
	return &Diversifier{
		safeThreshold:        safeThreshold,
		stretchThreshold:     stretchThreshold,
		patternLockThreshold: patternLockThreshold,
		logger:               logger.Named("diversifier"),
	}
}

// Categorize buckets a score into Safe, Stretch or Explore.
func (d *Diversifier) Categorize(score float64) MatchCategory {
	switch {
	case score >= d.safeThreshold:
		return CategorySafe
	case score >= d.stretchThreshold:
		return CategoryStretch
	default:
		return CategoryExplore
	}
}

// PatternLocked reports whether the user's recent history has collapsed onto
// a narrow set of colors or styles.
func (d *Diversifier) PatternLocked(recent []repetition.Entry) bool {
	if len(recent) < patternLockMinHistory {
		return false
	}

	sample := recent
	if len(sample) > patternLockSample {
		sample = sample[len(sample)-patternLockSample:]
	}

	colorCounts := make(map[string]int)
	styleCounts := make(map[string]int)

	colorEntries := 0
	styleEntries := 0
	for _, entry := range sample {
		seen := make(map[string]struct{})
		for _, color := range entry.Colors {
			if _, dup := seen[color]; dup {
				continue
			}
			seen[color] = struct{}{}
			colorCounts[color]++
		}
		if len(entry.Colors) > 0 {
			colorEntries++
		}
		if entry.Style != "" {
			styleCounts[entry.Style]++
			styleEntries++
		}
	}

	if colorEntries >= patternLockMinHistory {
		for color, count := range colorCounts {
			if float64(count)/float64(colorEntries) >= d.patternLockThreshold {
				d.logger.Debug("Pattern lock detected on color", zap.String("color", color))
				return true
			}
		}
	}

	if styleEntries >= patternLockMinHistory {
		for style, count := range styleCounts {
			if float64(count)/float64(styleEntries) >= d.patternLockThreshold {
				d.logger.Debug("Pattern lock detected on style", zap.String("style", style))
				return true
			}
		}
	}

	return false
}

// Select orders n outfits honoring an approximate 70/20/10 distribution:
// position 1 is biased toward Safe, one slot toward Stretch and one toward
// Explore. Empty buckets fall back to best-available score order. When
// patternLocked is set, at least one Explore pick is forced even if its raw
// score would not otherwise earn a slot.
func (d *Diversifier) Select(results []*MatchResult, n int, patternLocked bool) []*MatchResult {
	if n <= 0 || len(results) == 0 {
		return nil
	}
	if n > len(results) {
		n = len(results)
	}

	// Work on a copy sorted by score descending
	sorted := make([]*MatchResult, len(results))
	copy(sorted, results)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Score > sorted[j].Score
	})

	buckets := map[MatchCategory][]*MatchResult{}
	for _, result := range sorted {
		buckets[result.Category] = append(buckets[result.Category], result)
	}

	used := make(map[*MatchResult]bool, n)
	selected := make([]*MatchResult, 0, n)

	takeFrom := func(category MatchCategory) *MatchResult {
		for _, result := range buckets[category] {
			if !used[result] {
				used[result] = true
				return result
			}
		}
		return nil
	}
	takeBest := func() *MatchResult {
		for _, result := range sorted {
			if !used[result] {
				used[result] = true
				return result
			}
		}
		return nil
	}

	for _, category := range desiredCategories(n) {
		pick := takeFrom(category)
		if pick == nil {
			pick = takeBest()
		}
		if pick == nil {
			break
		}
		selected = append(selected, pick)
	}

	if patternLocked && !containsCategory(selected, CategoryExplore) {
		if substitute := takeFrom(CategoryExplore); substitute != nil {
			replaced := selected[len(selected)-1]
			used[replaced] = false
			selected[len(selected)-1] = substitute

			d.logger.Debug("Forced explore substitution to break pattern lock",
				zap.String("outfit", substitute.Outfit.Title))
		}
	}

	return selected
}

// desiredCategories expands the 70/20/10 distribution into a per-position
// category sequence of exactly n entries. For the standard 3-outfit response
// this is [Safe, Stretch, Explore].
func desiredCategories(n int) []MatchCategory {
	safeCount := (n*70 + 99) / 100
	stretchCount := (n * 20) / 100
	if n >= 2 && stretchCount == 0 {
		stretchCount = 1
	}

	if safeCount+stretchCount > n {
		safeCount = n - stretchCount
	}
	// Reserve the last slot for Explore once there is room for all three
	if n >= 3 && safeCount+stretchCount == n {
		safeCount--
	}

	categories := make([]MatchCategory, 0, n)
	for range safeCount {
		categories = append(categories, CategorySafe)
	}
	for range stretchCount {
		categories = append(categories, CategoryStretch)
	}
	for len(categories) < n {
		categories = append(categories, CategoryExplore)
	}

	return categories
}

func containsCategory(results []*MatchResult, category MatchCategory) bool {
	for _, result := range results {
		if result.Category == category {
			return true
		}
	}
	return false
}
