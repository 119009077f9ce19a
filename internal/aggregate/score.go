package aggregate

import "github.com/communitas-hq/partner-research/internal/model"

// lowConfidenceSources are the sources whose data is suggestive rather than
// authoritative; a profile built only on these gets discounted.
var lowConfidenceSources = map[model.SourceName]bool{
	model.SourceAnswerSecondary: true,
	model.SourceSocialSearch:    true,
}

// Score computes the profile quality score in [0,1].
//
// The base is the fraction of applicable sources that succeeded. Resolving a
// canonical name adds 0.15 and an organization 0.10, since those are what the
// onboarding flow actually consumes. Profiles drawing only on low-confidence
// sources are discounted by 15%. Adding a successful source never lowers the
// score.
func Score(profile *model.AggregatedProfile, applicable int) float64 {
	if applicable <= 0 || profile == nil {
		return 0
	}

	score := float64(len(profile.SourcesUsed)) / float64(applicable)

	if profile.CanonicalName != "" {
		score += 0.15
	}
	if profile.CanonicalOrganization != "" {
		score += 0.10
	}

	if len(profile.SourcesUsed) > 0 && onlyLowConfidence(profile.SourcesUsed) {
		score *= 0.85
	}

	if score > 1 {
		score = 1
	}
	if score < 0 {
		score = 0
	}
	return score
}

func onlyLowConfidence(used []model.SourceName) bool {
	for _, s := range used {
		if !lowConfidenceSources[s] {
			return false
		}
	}
	return true
}
