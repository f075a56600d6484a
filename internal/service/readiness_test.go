package service

import (
	"testing"

	"match-service/internal/catalog"
	"match-service/internal/constants"
	"match-service/internal/models"
)

func readinessConfig() *catalog.ReadinessConfig {
	return &catalog.ReadinessConfig{
		Questions: []catalog.ReadinessQuestion{
			{ID: "r1", Dimension: "math", Weight: 1, Slider: &catalog.Slider{Min: 0, Max: 3}},
			{ID: "r2", Dimension: "writing", Weight: 1, Slider: &catalog.Slider{Min: 0, Max: 3}},
			{ID: "r3", Dimension: "writing", Weight: 2, Options: []catalog.ScoredOption{
				{ID: "daily", Score: 3},
				{ID: "sometimes", Score: 2},
				{ID: "rarely", Score: 1},
			}},
		},
		DimensionWeights: map[string]float64{"math": 1, "writing": 1},
		Thresholds:       catalog.ReadinessThresholds{Ready: 2.0, NearlyReady: 1.5},
		PrepLibrary: map[string][]string{
			"math":    {"Take a refresher algebra course"},
			"writing": {"Practice structured writing weekly"},
		},
	}
}

func TestReadinessBandBoundaryInclusive(t *testing.T) {
	cfg := readinessConfig()

	// Single-dimension composites make the boundary exact.
	cases := []struct {
		value float64
		want  string
	}{
		{2.0, constants.ReadinessBandReady},
		{1.9999, constants.ReadinessBandNearlyReady},
		{1.5, constants.ReadinessBandNearlyReady},
		{1.4999, constants.ReadinessBandExplorePrep},
	}

	for _, c := range cases {
		result, err := ScoreReadiness(cfg, map[string]models.Answer{
			"r1": models.ScaleAnswer(c.value),
		})
		if err != nil {
			t.Fatalf("ScoreReadiness(%v): %v", c.value, err)
		}
		if result.Band != c.want {
			t.Fatalf("composite %v: band %q, want %q", c.value, result.Band, c.want)
		}
	}
}

func TestReadinessDimensionScoresWeighted(t *testing.T) {
	cfg := readinessConfig()

	result, err := ScoreReadiness(cfg, map[string]models.Answer{
		"r1": models.ScaleAnswer(3),
		"r2": models.ScaleAnswer(3),          // writing, weight 1
		"r3": models.OptionAnswer("rarely"),  // writing score 1, weight 2
	})
	if err != nil {
		t.Fatalf("ScoreReadiness: %v", err)
	}

	if got := result.DimensionScores["math"]; got != 3 {
		t.Fatalf("math score = %v, want 3", got)
	}
	// writing: (3*1 + 1*2) / 3
	want := 5.0 / 3.0
	if got := result.DimensionScores["writing"]; got != want {
		t.Fatalf("writing score = %v, want %v", got, want)
	}
}

func TestReadinessPrepGuidanceWeakestFirst(t *testing.T) {
	cfg := readinessConfig()

	// math well below target, writing slightly below.
	result, err := ScoreReadiness(cfg, map[string]models.Answer{
		"r1": models.ScaleAnswer(0.5),
		"r2": models.ScaleAnswer(1.9),
		"r3": models.OptionAnswer("sometimes"),
	})
	if err != nil {
		t.Fatalf("ScoreReadiness: %v", err)
	}

	if len(result.PrepGuidance) != 2 {
		t.Fatalf("expected guidance for both deficient dimensions, got %v", result.PrepGuidance)
	}
	if result.PrepGuidance[0] != "Take a refresher algebra course" {
		t.Fatalf("weakest dimension should lead guidance, got %v", result.PrepGuidance)
	}
}

func TestReadinessNoGuidanceWhenReady(t *testing.T) {
	cfg := readinessConfig()

	result, err := ScoreReadiness(cfg, map[string]models.Answer{
		"r1": models.ScaleAnswer(3),
		"r2": models.ScaleAnswer(3),
		"r3": models.OptionAnswer("daily"),
	})
	if err != nil {
		t.Fatalf("ScoreReadiness: %v", err)
	}

	if result.Band != constants.ReadinessBandReady {
		t.Fatalf("band = %q, want ready", result.Band)
	}
	if len(result.PrepGuidance) != 0 {
		t.Fatalf("expected no guidance at full marks, got %v", result.PrepGuidance)
	}
}

func TestReadinessErrors(t *testing.T) {
	if _, err := ScoreReadiness(nil, nil); err == nil {
		t.Fatalf("expected error for missing config")
	}

	if _, err := ScoreReadiness(readinessConfig(), map[string]models.Answer{}); err == nil {
		t.Fatalf("expected error for empty answers")
	}

	// Answers naming unknown questions contribute nothing.
	if _, err := ScoreReadiness(readinessConfig(), map[string]models.Answer{
		"ghost": models.ScaleAnswer(3),
	}); err == nil {
		t.Fatalf("expected error when no answer is scoreable")
	}
}
