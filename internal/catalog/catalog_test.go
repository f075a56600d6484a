package catalog

import (
	"strings"
	"testing"

	"match-service/internal/constants"
)

func validConfig() *QuizConfig {
	return &QuizConfig{
		InstitutionName: "Test University",
		LeadCapture: LeadCaptureConfig{
			Fields: map[string]FieldConfig{
				"first_name": {Enabled: true, Required: true},
			},
		},
		Questions: []Question{
			{
				ID:       "q1",
				Text:     "What interests you most?",
				Type:     constants.QuestionTypeSingleSelect,
				Required: true,
				Options:  []Option{{ID: "a", Label: "Analysis"}, {ID: "b", Label: "Building"}},
			},
			{
				ID:     "q2",
				Text:   "How much structure do you want?",
				Type:   constants.QuestionTypeSlider,
				Slider: &Slider{Min: 0, Max: 10},
			},
		},
		Programs: []Program{
			{ID: "p1", Name: "Data Science", Weights: map[string]float64{"analytical": 1}},
		},
		Mappings: map[string]Mapping{
			"q1": {Options: map[string]map[string]float64{
				"a": {"analytical": 1},
				"b": {"hands_on": 1},
			}},
			"q2": {Slider: map[string]float64{"structure": 1}},
		},
		ReasonPhrases: map[string]string{"analytical": "You enjoy working with data"},
		Bands:         BandThresholds{Strong: 0.75, Good: 0.5},
	}
}

func TestValidateAcceptsWellFormedConfig(t *testing.T) {
	if err := validConfig().Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestValidateRejections(t *testing.T) {
	cases := []struct {
		name    string
		mutate  func(*QuizConfig)
		wantErr string
	}{
		{
			name:    "no questions",
			mutate:  func(c *QuizConfig) { c.Questions = nil },
			wantErr: "no questions",
		},
		{
			name:    "no programs",
			mutate:  func(c *QuizConfig) { c.Programs = nil },
			wantErr: "no programs",
		},
		{
			name:    "no mappings",
			mutate:  func(c *QuizConfig) { c.Mappings = nil },
			wantErr: "no answer mappings",
		},
		{
			name:    "bands out of order",
			mutate:  func(c *QuizConfig) { c.Bands = BandThresholds{Strong: 0.4, Good: 0.5} },
			wantErr: "band thresholds out of order",
		},
		{
			name: "mapping references unknown question",
			mutate: func(c *QuizConfig) {
				c.Mappings["ghost"] = Mapping{Options: map[string]map[string]float64{"a": {"x": 1}}}
			},
			wantErr: "unknown question",
		},
		{
			name: "mapping references unknown option",
			mutate: func(c *QuizConfig) {
				c.Mappings["q1"] = Mapping{Options: map[string]map[string]float64{"zzz": {"x": 1}}}
			},
			wantErr: "unknown option",
		},
		{
			name:    "program without weights",
			mutate:  func(c *QuizConfig) { c.Programs[0].Weights = nil },
			wantErr: "no weight vector",
		},
		{
			name: "slider with empty range",
			mutate: func(c *QuizConfig) {
				c.Questions[1].Slider = &Slider{Min: 5, Max: 5}
			},
			wantErr: "invalid slider range",
		},
	}

	for _, tc := range cases {
		cfg := validConfig()
		tc.mutate(cfg)
		err := cfg.Validate()
		if err == nil {
			t.Fatalf("%s: expected error", tc.name)
		}
		if !strings.Contains(err.Error(), tc.wantErr) {
			t.Fatalf("%s: error %q does not contain %q", tc.name, err.Error(), tc.wantErr)
		}
	}
}

func TestParseRejectsMalformedJSON(t *testing.T) {
	if _, err := Parse([]byte("{not json")); err == nil {
		t.Fatalf("expected parse error")
	}
}

func TestActiveQuestionIDs(t *testing.T) {
	cfg := validConfig()
	cfg.Readiness = &ReadinessConfig{
		Questions: []ReadinessQuestion{
			{ID: "r1", Dimension: "math", Weight: 1, Slider: &Slider{Min: 0, Max: 3}},
		},
		Thresholds: ReadinessThresholds{Ready: 2, NearlyReady: 1.5},
	}

	quiz := cfg.ActiveQuestionIDs(constants.StepQuiz)
	if !quiz["q1"] || !quiz["q2"] || quiz["r1"] {
		t.Fatalf("quiz step question set wrong: %v", quiz)
	}

	readiness := cfg.ActiveQuestionIDs(constants.StepReadiness)
	if !readiness["r1"] || readiness["q1"] {
		t.Fatalf("readiness step question set wrong: %v", readiness)
	}

	gate := cfg.ActiveQuestionIDs(constants.StepGate)
	if len(gate) != 0 {
		t.Fatalf("gate step should allow no responses, got %v", gate)
	}
}

func TestPublicViewStripsScoringInternals(t *testing.T) {
	view := validConfig().PublicView()

	if _, ok := view["answer_mappings"]; ok {
		t.Fatalf("public view leaked answer mappings")
	}
	programs, ok := view["programs"].([]map[string]string)
	if !ok || len(programs) != 1 {
		t.Fatalf("public view programs wrong: %v", view["programs"])
	}
	if _, ok := programs[0]["weights"]; ok {
		t.Fatalf("public view leaked program weights")
	}
}
