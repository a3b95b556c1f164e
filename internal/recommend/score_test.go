package recommend_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/vestiapp/vesti/internal/ai"
	"github.com/vestiapp/vesti/internal/cache"
	"github.com/vestiapp/vesti/internal/recommend"
	"github.com/vestiapp/vesti/internal/recommend/repetition"
)

func testOutfit() *ai.CandidateOutfit {
	return &ai.CandidateOutfit{
		Title:        "Navy Layers",
		Description:  "d",
		ColorPalette: []string{"#112244", "#FFFFFF"},
		StyleType:    "casual",
		Occasion:     "daily",
		Items:        []string{"navy overshirt", "white tee", "jeans"},
	}
}

func TestExcludedHardBlocklist(t *testing.T) {
	t.Parallel()
	scorer := recommend.NewScorer(30 * 24 * time.Hour)

	blocklist := &recommend.Blocklist{
		Hard: recommend.BlocklistSet{Colors: []string{"#112244"}},
	}

	assert.True(t, scorer.Excluded(testOutfit(), blocklist, time.Now()))
	assert.False(t, scorer.Excluded(testOutfit(), &recommend.Blocklist{}, time.Now()))
	assert.False(t, scorer.Excluded(testOutfit(), nil, time.Now()))
}

func TestExcludedTemporaryRespectsExpiry(t *testing.T) {
	t.Parallel()
	scorer := recommend.NewScorer(30 * 24 * time.Hour)
	now := time.Now()

	unexpired := &recommend.Blocklist{Temporary: []recommend.BlocklistEntry{
		{Target: "casual", ExpiresAt: now.Add(time.Hour)},
	}}
	expired := &recommend.Blocklist{Temporary: []recommend.BlocklistEntry{
		{Target: "casual", ExpiresAt: now.Add(-time.Hour)},
	}}

	assert.True(t, scorer.Excluded(testOutfit(), unexpired, now))
	assert.False(t, scorer.Excluded(testOutfit(), expired, now))
}

func TestExcludedHardItemSubstring(t *testing.T) {
	t.Parallel()
	scorer := recommend.NewScorer(30 * 24 * time.Hour)

	blocklist := &recommend.Blocklist{
		Hard: recommend.BlocklistSet{Items: []string{"overshirt"}},
	}

	assert.True(t, scorer.Excluded(testOutfit(), blocklist, time.Now()))
}

func TestScoreNeutralProfileIsBase(t *testing.T) {
	t.Parallel()
	scorer := recommend.NewScorer(30 * 24 * time.Hour)

	score, _ := scorer.Score(testOutfit(), recommend.NeutralProfile(), nil, nil)
	assert.InDelta(t, 0.5, score, 0.0001)
}

func TestScoreZeroConfidenceIgnoresPreferences(t *testing.T) {
	t.Parallel()
	scorer := recommend.NewScorer(30 * 24 * time.Hour)

	profile := &recommend.PreferenceProfile{
		FavoriteColors:    []string{"#112244"},
		PreferredStyles:   []string{"casual"},
		OverallConfidence: 0,
	}

	score, _ := scorer.Score(testOutfit(), profile, nil, nil)
	assert.InDelta(t, 0.5, score, 0.0001)
}

func TestScorePreferencesMoveScore(t *testing.T) {
	t.Parallel()
	scorer := recommend.NewScorer(30 * 24 * time.Hour)

	liked := &recommend.PreferenceProfile{
		FavoriteColors:    []string{"#112244"},
		PreferredStyles:   []string{"Casual"},
		OverallConfidence: 1,
	}
	disliked := &recommend.PreferenceProfile{
		DislikedColors:    []string{"#112244"},
		AvoidedStyles:     []string{"casual"},
		OverallConfidence: 1,
	}

	likedScore, likedWhy := scorer.Score(testOutfit(), liked, nil, nil)
	dislikedScore, _ := scorer.Score(testOutfit(), disliked, nil, nil)

	assert.Greater(t, likedScore, 0.5)
	assert.Less(t, dislikedScore, 0.5)
	assert.Contains(t, likedWhy, "colors you love")
}

func TestScoreSoftBlocklistUnscaledByConfidence(t *testing.T) {
	t.Parallel()
	scorer := recommend.NewScorer(30 * 24 * time.Hour)

	blocklist := &recommend.Blocklist{
		Soft: recommend.BlocklistSet{Styles: []string{"casual"}},
	}

	score, _ := scorer.Score(testOutfit(), recommend.NeutralProfile(), blocklist, nil)
	assert.Less(t, score, 0.5)
}

func TestScoreRepetitionPenaltyDecays(t *testing.T) {
	t.Parallel()
	window := 30 * 24 * time.Hour
	scorer := recommend.NewScorer(window)

	outfit := testOutfit()
	fingerprint := cache.FingerprintOutfit(outfit.Title, outfit.ColorPalette, outfit.Items)

	fresh := []repetition.Entry{{Fingerprint: fingerprint, ShownAt: time.Now()}}
	stale := []repetition.Entry{{Fingerprint: fingerprint, ShownAt: time.Now().Add(-window * 9 / 10)}}
	other := []repetition.Entry{{Fingerprint: "different", ShownAt: time.Now()}}

	freshScore, freshWhy := scorer.Score(outfit, recommend.NeutralProfile(), nil, fresh)
	staleScore, _ := scorer.Score(outfit, recommend.NeutralProfile(), nil, stale)
	otherScore, _ := scorer.Score(outfit, recommend.NeutralProfile(), nil, other)

	assert.InDelta(t, 0.5, otherScore, 0.0001)
	assert.Less(t, freshScore, staleScore)
	assert.Less(t, staleScore, otherScore)
	assert.Contains(t, freshWhy, "recent look")
}

func TestScoreClampedToUnitInterval(t *testing.T) {
	t.Parallel()
	scorer := recommend.NewScorer(30 * 24 * time.Hour)

	profile := &recommend.PreferenceProfile{
		FavoriteColors:    []string{"#112244", "#FFFFFF"},
		PreferredStyles:   []string{"casual"},
		ColorWeights:      map[string]float64{"#112244": 1, "#FFFFFF": 1},
		OverallConfidence: 1,
	}

	score, _ := scorer.Score(testOutfit(), profile, nil, nil)
	assert.LessOrEqual(t, score, 1.0)
	assert.GreaterOrEqual(t, score, 0.0)
}
