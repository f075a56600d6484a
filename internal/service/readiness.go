package service

import (
	"fmt"
	"sort"

	"match-service/internal/catalog"
	"match-service/internal/constants"
	"match-service/internal/models"
)

// ScoreReadiness turns one program's follow-up answers into per-dimension
// scores, a composite band, and ordered prep guidance. Pure and deterministic
// like ScoreQuiz.
func ScoreReadiness(cfg *catalog.ReadinessConfig, responses map[string]models.Answer) (*models.Readiness, error) {
	if cfg == nil {
		return nil, fmt.Errorf("readiness config is missing")
	}

	type accumulator struct {
		weighted float64
		weight   float64
	}
	dims := make(map[string]*accumulator)

	for _, q := range cfg.Questions {
		answer, ok := responses[q.ID]
		if !ok || answer.IsEmpty() {
			continue
		}

		value, ok := answerValue(&q, answer)
		if !ok {
			continue
		}

		acc := dims[q.Dimension]
		if acc == nil {
			acc = &accumulator{}
			dims[q.Dimension] = acc
		}
		acc.weighted += value * q.Weight
		acc.weight += q.Weight
	}

	if len(dims) == 0 {
		return nil, fmt.Errorf("no scoreable readiness answers")
	}

	dimensionScores := make(map[string]float64, len(dims))
	for dim, acc := range dims {
		dimensionScores[dim] = acc.weighted / acc.weight
	}

	composite := compositeScore(cfg, dimensionScores)

	return &models.Readiness{
		Band:            readinessBand(composite, cfg.Thresholds),
		DimensionScores: dimensionScores,
		PrepGuidance:    prepGuidance(cfg, dimensionScores),
	}, nil
}

func answerValue(q *catalog.ReadinessQuestion, answer models.Answer) (float64, bool) {
	if q.Slider != nil {
		if answer.Scale == nil {
			return 0, false
		}
		v := *answer.Scale
		if v < q.Slider.Min {
			v = q.Slider.Min
		}
		if v > q.Slider.Max {
			v = q.Slider.Max
		}
		return v, true
	}

	for _, optionID := range answer.SelectedOptions() {
		for _, opt := range q.Options {
			if opt.ID == optionID {
				return opt.Score, true
			}
		}
	}
	return 0, false
}

// compositeScore averages dimension scores weighted by the configured
// dimension weights; dimensions without an explicit weight count as 1.
func compositeScore(cfg *catalog.ReadinessConfig, dimensionScores map[string]float64) float64 {
	var weighted, total float64
	for _, dim := range sortedKeys(dimensionScores) {
		w, ok := cfg.DimensionWeights[dim]
		if !ok {
			w = 1
		}
		weighted += dimensionScores[dim] * w
		total += w
	}
	if total == 0 {
		return 0
	}
	return weighted / total
}

// readinessBand buckets the composite. Thresholds are inclusive: a composite
// exactly at the ready threshold is ready.
func readinessBand(composite float64, thresholds catalog.ReadinessThresholds) string {
	switch {
	case composite >= thresholds.Ready:
		return constants.ReadinessBandReady
	case composite >= thresholds.NearlyReady:
		return constants.ReadinessBandNearlyReady
	default:
		return constants.ReadinessBandExplorePrep
	}
}

// prepGuidance orders remediation suggestions by how far each dimension fell
// below its target, weakest first. Dimensions at or above target contribute
// nothing.
func prepGuidance(cfg *catalog.ReadinessConfig, dimensionScores map[string]float64) []string {
	type deficit struct {
		dim    string
		amount float64
	}

	var deficits []deficit
	for _, dim := range sortedKeys(dimensionScores) {
		gap := cfg.DimensionTarget(dim) - dimensionScores[dim]
		if gap > 0 {
			deficits = append(deficits, deficit{dim: dim, amount: gap})
		}
	}

	sort.SliceStable(deficits, func(i, j int) bool {
		return deficits[i].amount > deficits[j].amount
	})

	var guidance []string
	for _, d := range deficits {
		guidance = append(guidance, cfg.PrepLibrary[d.dim]...)
	}

	return guidance
}
