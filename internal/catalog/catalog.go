package catalog

import (
	"encoding/json"
	"fmt"

	"match-service/internal/constants"
)

// QuizConfig is the published configuration one quiz version is frozen to:
// question set, lead-capture rules, program catalog with weight vectors,
// answer mappings, reason phrasing, and the readiness sub-flow. Funnel
// records only ever score against the version they were created under.
type QuizConfig struct {
	InstitutionName string              `json:"institution_name"`
	LeadCapture     LeadCaptureConfig   `json:"lead_capture"`
	Questions       []Question          `json:"questions"`
	Programs        []Program           `json:"programs"`
	Mappings        map[string]Mapping  `json:"answer_mappings"`
	ReasonPhrases   map[string]string   `json:"reason_phrases"`
	Bands           BandThresholds      `json:"bands"`
	Readiness       *ReadinessConfig    `json:"readiness,omitempty"`
}

type LeadCaptureConfig struct {
	Fields   map[string]FieldConfig `json:"fields"`
	Consents map[string]FieldConfig `json:"consents"`
}

type FieldConfig struct {
	Enabled  bool   `json:"enabled"`
	Required bool   `json:"required"`
	Label    string `json:"label,omitempty"`
}

type Question struct {
	ID       string   `json:"id"`
	Text     string   `json:"text"`
	Type     string   `json:"type"`
	Required bool     `json:"required"`
	Options  []Option `json:"options,omitempty"`
	Slider   *Slider  `json:"slider,omitempty"`
}

type Option struct {
	ID    string `json:"id"`
	Label string `json:"label"`
}

type Slider struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

type Program struct {
	ID      string             `json:"id"`
	Name    string             `json:"name"`
	Weights map[string]float64 `json:"weights"`
}

// Mapping ties one question's answers to trait/skill dimension deltas.
// Option questions carry per-option delta vectors; slider questions carry a
// single vector scaled by the normalized slider value.
type Mapping struct {
	Options map[string]map[string]float64 `json:"options,omitempty"`
	Slider  map[string]float64            `json:"slider,omitempty"`
}

type BandThresholds struct {
	Strong float64 `json:"strong"`
	Good   float64 `json:"good"`
}

type ReadinessConfig struct {
	Questions        []ReadinessQuestion  `json:"questions"`
	DimensionWeights map[string]float64   `json:"dimension_weights"`
	Thresholds       ReadinessThresholds  `json:"thresholds"`
	DimensionTargets map[string]float64   `json:"dimension_targets,omitempty"`
	PrepLibrary      map[string][]string  `json:"prep_library"`
}

type ReadinessQuestion struct {
	ID        string         `json:"id"`
	Text      string         `json:"text"`
	Dimension string         `json:"dimension"`
	Weight    float64        `json:"weight"`
	Options   []ScoredOption `json:"options,omitempty"`
	Slider    *Slider        `json:"slider,omitempty"`
}

type ScoredOption struct {
	ID    string  `json:"id"`
	Label string  `json:"label"`
	Score float64 `json:"score"`
}

type ReadinessThresholds struct {
	Ready       float64 `json:"ready"`
	NearlyReady float64 `json:"nearly_ready"`
}

// Parse decodes and validates a stored quiz configuration. A malformed
// catalog is an error here, never an empty ranking later.
func Parse(data []byte) (*QuizConfig, error) {
	var cfg QuizConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse quiz config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *QuizConfig) Validate() error {
	if len(c.Questions) == 0 {
		return fmt.Errorf("quiz config has no questions")
	}
	if len(c.Programs) == 0 {
		return fmt.Errorf("quiz config has no programs")
	}
	if len(c.Mappings) == 0 {
		return fmt.Errorf("quiz config has no answer mappings")
	}
	if c.Bands.Strong <= c.Bands.Good {
		return fmt.Errorf("band thresholds out of order: strong %.2f must exceed good %.2f", c.Bands.Strong, c.Bands.Good)
	}

	questionIDs := make(map[string]*Question, len(c.Questions))
	for i := range c.Questions {
		q := &c.Questions[i]
		if q.ID == "" {
			return fmt.Errorf("question %d has no id", i)
		}
		switch q.Type {
		case constants.QuestionTypeSingleSelect, constants.QuestionTypeMultiSelect:
			if len(q.Options) == 0 {
				return fmt.Errorf("question %s has no options", q.ID)
			}
		case constants.QuestionTypeSlider:
			if q.Slider == nil || q.Slider.Max <= q.Slider.Min {
				return fmt.Errorf("question %s has an invalid slider range", q.ID)
			}
		default:
			return fmt.Errorf("question %s has unknown type %q", q.ID, q.Type)
		}
		questionIDs[q.ID] = q
	}

	for qid, m := range c.Mappings {
		q, ok := questionIDs[qid]
		if !ok {
			return fmt.Errorf("answer mapping references unknown question %s", qid)
		}
		if q.Type == constants.QuestionTypeSlider {
			if len(m.Slider) == 0 {
				return fmt.Errorf("slider question %s has no slider mapping", qid)
			}
			continue
		}
		if len(m.Options) == 0 {
			return fmt.Errorf("question %s has no option mappings", qid)
		}
		for optID := range m.Options {
			if !q.hasOption(optID) {
				return fmt.Errorf("mapping for question %s references unknown option %s", qid, optID)
			}
		}
	}

	for _, p := range c.Programs {
		if p.ID == "" {
			return fmt.Errorf("program %q has no id", p.Name)
		}
		if len(p.Weights) == 0 {
			return fmt.Errorf("program %s has no weight vector", p.ID)
		}
	}

	if c.Readiness != nil {
		if err := c.Readiness.validate(); err != nil {
			return err
		}
	}

	return nil
}

func (r *ReadinessConfig) validate() error {
	if len(r.Questions) == 0 {
		return fmt.Errorf("readiness config has no questions")
	}
	if r.Thresholds.Ready < r.Thresholds.NearlyReady {
		return fmt.Errorf("readiness thresholds out of order: ready %.2f below nearly_ready %.2f", r.Thresholds.Ready, r.Thresholds.NearlyReady)
	}
	for i, q := range r.Questions {
		if q.ID == "" {
			return fmt.Errorf("readiness question %d has no id", i)
		}
		if q.Dimension == "" {
			return fmt.Errorf("readiness question %s has no dimension", q.ID)
		}
		if q.Weight <= 0 {
			return fmt.Errorf("readiness question %s has non-positive weight", q.ID)
		}
		if len(q.Options) == 0 && q.Slider == nil {
			return fmt.Errorf("readiness question %s has neither options nor a slider", q.ID)
		}
	}
	return nil
}

func (q *Question) hasOption(optionID string) bool {
	for _, o := range q.Options {
		if o.ID == optionID {
			return true
		}
	}
	return false
}

func (c *QuizConfig) QuestionByID(id string) *Question {
	for i := range c.Questions {
		if c.Questions[i].ID == id {
			return &c.Questions[i]
		}
	}
	return nil
}

func (c *QuizConfig) ReadinessQuestionByID(id string) *ReadinessQuestion {
	if c.Readiness == nil {
		return nil
	}
	for i := range c.Readiness.Questions {
		if c.Readiness.Questions[i].ID == id {
			return &c.Readiness.Questions[i]
		}
	}
	return nil
}

// ActiveQuestionIDs returns the question id set a progress snapshot is allowed
// to carry for the given step. Response keys outside this set violate the
// snapshot invariant and are rejected on save.
func (c *QuizConfig) ActiveQuestionIDs(step string) map[string]bool {
	ids := make(map[string]bool)
	switch step {
	case constants.StepQuiz, constants.StepResults:
		for _, q := range c.Questions {
			ids[q.ID] = true
		}
	case constants.StepReadiness:
		if c.Readiness != nil {
			for _, q := range c.Readiness.Questions {
				ids[q.ID] = true
			}
		}
	}
	return ids
}

// DimensionTarget is the per-dimension bar used to rank prep guidance.
// Falls back to the composite ready threshold when no explicit target is set.
func (r *ReadinessConfig) DimensionTarget(dimension string) float64 {
	if t, ok := r.DimensionTargets[dimension]; ok {
		return t
	}
	return r.Thresholds.Ready
}

// PublicView strips scoring internals (program weights, answer mappings,
// reason phrases) for the embed bootstrap payload.
func (c *QuizConfig) PublicView() map[string]any {
	programs := make([]map[string]string, len(c.Programs))
	for i, p := range c.Programs {
		programs[i] = map[string]string{"id": p.ID, "name": p.Name}
	}

	view := map[string]any{
		"institution_name": c.InstitutionName,
		"lead_capture":     c.LeadCapture,
		"questions":        c.Questions,
		"programs":         programs,
	}
	if c.Readiness != nil {
		questions := make([]map[string]any, len(c.Readiness.Questions))
		for i, q := range c.Readiness.Questions {
			questions[i] = map[string]any{
				"id":      q.ID,
				"text":    q.Text,
				"options": q.Options,
				"slider":  q.Slider,
			}
		}
		view["readiness_questions"] = questions
	}
	return view
}
