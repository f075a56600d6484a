package stepper

import (
	"context"
	"fmt"

	"match-service/internal/catalog"
	"match-service/internal/constants"
	"match-service/internal/models"
)

// Stepper is the quiz navigation state machine: one state per question index
// plus a terminal complete state. Forward navigation is gated on the current
// question's required contract; backward navigation never clears answers.
type Stepper struct {
	questions []catalog.Question
	answers   map[string]models.Answer
	index     int
	complete  bool
}

func New(questions []catalog.Question) (*Stepper, error) {
	if len(questions) == 0 {
		return nil, fmt.Errorf("stepper needs at least one question")
	}
	return &Stepper{
		questions: questions,
		answers:   make(map[string]models.Answer),
	}, nil
}

func (s *Stepper) Index() int {
	return s.index
}

func (s *Stepper) Completed() bool {
	return s.complete
}

func (s *Stepper) Current() *catalog.Question {
	return &s.questions[s.index]
}

func (s *Stepper) OnLastQuestion() bool {
	return s.index == len(s.questions)-1
}

// SetAnswer records an answer for any question, current or not. Revising an
// earlier answer after moving forward does not invalidate later answers.
func (s *Stepper) SetAnswer(questionID string, answer models.Answer) error {
	for i := range s.questions {
		if s.questions[i].ID == questionID {
			s.answers[questionID] = answer
			return nil
		}
	}
	return fmt.Errorf("unknown question %s", questionID)
}

func (s *Stepper) Answer(questionID string) (models.Answer, bool) {
	a, ok := s.answers[questionID]
	return a, ok
}

// Answers returns a copy of the accumulated responses.
func (s *Stepper) Answers() map[string]models.Answer {
	out := make(map[string]models.Answer, len(s.answers))
	for k, v := range s.answers {
		out[k] = v
	}
	return out
}

// CanAdvance reports whether the current question's required contract is
// satisfied: multi_select needs at least one option, single_select and slider
// need a non-empty value. Optional questions never block.
func (s *Stepper) CanAdvance() bool {
	q := s.Current()
	if !q.Required {
		return true
	}

	answer, ok := s.answers[q.ID]
	if !ok || answer.IsEmpty() {
		return false
	}

	if q.Type == constants.QuestionTypeMultiSelect {
		return len(answer.SelectedOptions()) > 0
	}
	return true
}

// Next advances one question. A blocked transition is a no-op: the index does
// not move. On the last question use Complete instead.
func (s *Stepper) Next() bool {
	if s.complete || !s.CanAdvance() || s.OnLastQuestion() {
		return false
	}
	s.index++
	return true
}

// Previous steps back one question. Always allowed above index 0; answers
// already entered stay put.
func (s *Stepper) Previous() bool {
	if s.complete || s.index == 0 {
		return false
	}
	s.index--
	return true
}

// Complete finishes the quiz from the last question: one final synchronous
// save, then scoring. If either fails the stepper stays on the last question
// so no answers are lost, and the error surfaces to the caller.
func (s *Stepper) Complete(
	ctx context.Context,
	save func(ctx context.Context, responses map[string]models.Answer) error,
	score func(ctx context.Context, responses map[string]models.Answer) error,
) error {
	if s.complete {
		return nil
	}
	if !s.OnLastQuestion() {
		return fmt.Errorf("not on the last question")
	}
	if !s.CanAdvance() {
		return fmt.Errorf("current question is required")
	}

	responses := s.Answers()

	if save != nil {
		if err := save(ctx, responses); err != nil {
			return fmt.Errorf("failed to save before scoring: %w", err)
		}
	}

	if err := score(ctx, responses); err != nil {
		return err
	}

	s.complete = true
	return nil
}
