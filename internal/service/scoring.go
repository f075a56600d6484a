package service

import (
	"fmt"
	"math"
	"sort"

	"match-service/internal/catalog"
	"match-service/internal/constants"
	"match-service/internal/models"
)

const maxReasonsPerProgram = 3

// ScoreQuiz ranks the catalog's programs against a set of quiz responses.
// It is a pure function of (responses, config): identical inputs produce an
// identical ranking and identical bands, so results stay reproducible for
// support. All accumulation walks the catalog in declaration order rather
// than map order to keep float sums bit-stable across runs.
func ScoreQuiz(cfg *catalog.QuizConfig, responses map[string]models.Answer) ([]models.RankedProgram, float64, error) {
	if cfg == nil {
		return nil, 0, fmt.Errorf("quiz config is missing")
	}
	if err := cfg.Validate(); err != nil {
		return nil, 0, fmt.Errorf("quiz config is malformed: %w", err)
	}

	candidate := candidateVector(cfg, responses)

	ranked := make([]models.RankedProgram, len(cfg.Programs))
	for i, program := range cfg.Programs {
		score := fitScore(candidate, program.Weights)
		ranked[i] = models.RankedProgram{
			ProgramID:      program.ID,
			Score:          score,
			ConfidenceBand: confidenceBand(score, cfg.Bands),
			Reasons:        topReasons(candidate, program.Weights, cfg.ReasonPhrases),
		}
	}

	// Stable sort so catalog order breaks ties.
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Score > ranked[j].Score
	})

	global := 0.0
	if len(ranked) > 0 {
		global = ranked[0].Score
	}

	return ranked, global, nil
}

// candidateVector sums per-answer dimension deltas into the lead's trait/skill
// profile. Unmapped questions contribute nothing.
func candidateVector(cfg *catalog.QuizConfig, responses map[string]models.Answer) map[string]float64 {
	candidate := make(map[string]float64)

	for _, q := range cfg.Questions {
		answer, ok := responses[q.ID]
		if !ok || answer.IsEmpty() {
			continue
		}

		mapping, ok := cfg.Mappings[q.ID]
		if !ok {
			continue
		}

		if q.Type == constants.QuestionTypeSlider {
			if answer.Scale == nil {
				continue
			}
			scaled := normalizeSlider(*answer.Scale, q.Slider)
			for _, dim := range sortedKeys(mapping.Slider) {
				candidate[dim] += mapping.Slider[dim] * scaled
			}
			continue
		}

		for _, optionID := range answer.SelectedOptions() {
			deltas, ok := mapping.Options[optionID]
			if !ok {
				continue
			}
			for _, dim := range sortedKeys(deltas) {
				candidate[dim] += deltas[dim]
			}
		}
	}

	return candidate
}

func normalizeSlider(value float64, slider *catalog.Slider) float64 {
	if slider == nil || slider.Max <= slider.Min {
		return 0
	}
	if value < slider.Min {
		value = slider.Min
	}
	if value > slider.Max {
		value = slider.Max
	}
	return (value - slider.Min) / (slider.Max - slider.Min)
}

// fitScore is the cosine similarity between the candidate profile and a
// program's weight vector, in [0, 1] for non-negative vectors.
func fitScore(candidate, weights map[string]float64) float64 {
	var dot, candNorm, weightNorm float64

	for _, dim := range sortedKeys(weights) {
		w := weights[dim]
		weightNorm += w * w
		dot += w * candidate[dim]
	}
	for _, dim := range sortedKeys(candidate) {
		v := candidate[dim]
		candNorm += v * v
	}

	if candNorm == 0 || weightNorm == 0 {
		return 0
	}

	return dot / (math.Sqrt(candNorm) * math.Sqrt(weightNorm))
}

// confidenceBand buckets a fit score. Boundaries are inclusive.
func confidenceBand(score float64, bands catalog.BandThresholds) string {
	switch {
	case score >= bands.Strong:
		return constants.BandStrong
	case score >= bands.Good:
		return constants.BandGood
	default:
		return constants.BandLow
	}
}

// topReasons names the dimensions contributing most to this program's score,
// phrased through the catalog's reason library. Dimensions without a phrase
// are skipped rather than surfaced as raw keys.
func topReasons(candidate, weights map[string]float64, phrases map[string]string) []string {
	type contribution struct {
		dim   string
		value float64
	}

	var contributions []contribution
	for _, dim := range sortedKeys(weights) {
		c := candidate[dim] * weights[dim]
		if c > 0 {
			contributions = append(contributions, contribution{dim: dim, value: c})
		}
	}

	sort.SliceStable(contributions, func(i, j int) bool {
		return contributions[i].value > contributions[j].value
	})

	var reasons []string
	for _, c := range contributions {
		phrase, ok := phrases[c.dim]
		if !ok {
			continue
		}
		reasons = append(reasons, phrase)
		if len(reasons) == maxReasonsPerProgram {
			break
		}
	}

	return reasons
}

func sortedKeys(m map[string]float64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
