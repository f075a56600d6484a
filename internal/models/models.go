package models

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

type Lead struct {
	ID          string          `json:"id"`
	QuizID      string          `json:"quiz_id"`
	VersionID   string          `json:"version_id"`
	WorkspaceID string          `json:"workspace_id"`
	Email       string          `json:"email"`
	FirstName   string          `json:"first_name,omitempty"`
	LastName    string          `json:"last_name,omitempty"`
	Phone       string          `json:"phone,omitempty"`
	StartTerm   string          `json:"start_term,omitempty"`
	Modality    string          `json:"modality,omitempty"`
	Consents    map[string]bool `json:"consents,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
}

// Progress is the resumable snapshot of one lead's in-flight quiz or
// readiness assessment. Writes fully replace the stored snapshot.
type Progress struct {
	LeadID        string            `json:"lead_id"`
	QuizID        string            `json:"quiz_id"`
	VersionID     string            `json:"version_id"`
	Responses     map[string]Answer `json:"responses"`
	CurrentStep   string            `json:"current_step"`
	QuestionIndex int               `json:"question_index"`
	ProgramID     sql.NullString    `json:"-"`
	Superseded    bool              `json:"superseded"`
	UpdatedAt     time.Time         `json:"updated_at"`
}

type RankedProgram struct {
	ProgramID      string   `json:"program_id"`
	Score          float64  `json:"score"`
	ConfidenceBand string   `json:"confidence_band"`
	Reasons        []string `json:"reasons"`
}

type Outcome struct {
	ID               string          `json:"id"`
	LeadID           string          `json:"lead_id"`
	QuizID           string          `json:"quiz_id"`
	VersionID        string          `json:"version_id"`
	RankedPrograms   []RankedProgram `json:"ranked_programs"`
	GlobalConfidence float64         `json:"global_confidence"`
	GeneratedBy      string          `json:"generated_by"`
	CreatedAt        time.Time       `json:"created_at"`
}

type Readiness struct {
	ID              string             `json:"id"`
	LeadID          string             `json:"lead_id"`
	ProgramID       string             `json:"program_id"`
	Band            string             `json:"band"`
	DimensionScores map[string]float64 `json:"dimension_scores"`
	PrepGuidance    []string           `json:"prep_guidance"`
	CompletedAt     time.Time          `json:"completed_at"`
}

type FunnelEvent struct {
	Event       string    `json:"event"`
	LeadID      string    `json:"lead_id,omitempty"`
	QuizID      string    `json:"quiz_id,omitempty"`
	VersionID   string    `json:"version_id,omitempty"`
	WorkspaceID string    `json:"workspace_id,omitempty"`
	ProgramID   string    `json:"program_id,omitempty"`
	Detail      string    `json:"detail,omitempty"`
	OccurredAt  time.Time `json:"occurred_at"`
}

type LeadEmailMessage struct {
	Kind            string `json:"kind"` // "resume_link" or "outcome_ready"
	Email           string `json:"email"`
	InstitutionName string `json:"institution_name"`
	ResumeURL       string `json:"resume_url"`
}

// Answer is a single quiz response: one selected option id, a set of option
// ids, or a slider value. On the wire it is a bare string, string array, or
// number, so it carries a custom JSON codec.
type Answer struct {
	Option  string   `json:"-"`
	Options []string `json:"-"`
	Scale   *float64 `json:"-"`
}

func OptionAnswer(optionID string) Answer {
	return Answer{Option: optionID}
}

func OptionsAnswer(optionIDs ...string) Answer {
	return Answer{Options: optionIDs}
}

func ScaleAnswer(value float64) Answer {
	return Answer{Scale: &value}
}

// IsEmpty reports whether the answer fails the required contract: no option
// for single_select, zero options for multi_select, no value for slider.
func (a Answer) IsEmpty() bool {
	return a.Option == "" && len(a.Options) == 0 && a.Scale == nil
}

// SelectedOptions returns every option id the answer names, regardless of
// whether it was a single or multi select.
func (a Answer) SelectedOptions() []string {
	if a.Option != "" {
		return []string{a.Option}
	}
	return a.Options
}

func (a Answer) MarshalJSON() ([]byte, error) {
	switch {
	case a.Scale != nil:
		return json.Marshal(*a.Scale)
	case a.Options != nil:
		return json.Marshal(a.Options)
	default:
		return json.Marshal(a.Option)
	}
}

func (a *Answer) UnmarshalJSON(data []byte) error {
	*a = Answer{}

	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		a.Option = s
		return nil
	}

	var list []string
	if err := json.Unmarshal(data, &list); err == nil {
		a.Options = list
		return nil
	}

	var v float64
	if err := json.Unmarshal(data, &v); err == nil {
		a.Scale = &v
		return nil
	}

	return fmt.Errorf("answer must be a string, string array, or number")
}
