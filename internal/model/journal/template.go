package journal

import (
	"encoding/json"
	"fmt"
	"strings"
)

// TemplateType scopes templates and categories to one part of the day.
type TemplateType string

const (
	Morning TemplateType = "morning"
	Evening TemplateType = "evening"
)

// ParseTemplateType accepts the canonical names plus the legacy sod/eod spellings.
func ParseTemplateType(raw string) (TemplateType, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "morning", "sod":
		return Morning, nil
	case "evening", "eod":
		return Evening, nil
	default:
		return "", fmt.Errorf("unknown template type %q", raw)
	}
}

func (t *TemplateType) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	parsed, err := ParseTemplateType(raw)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// QuestionType determines how a question is answered.
type QuestionType string

const (
	QuestionText          QuestionType = "text"
	QuestionYesNo         QuestionType = "yesno"
	QuestionSlider        QuestionType = "slider"
	QuestionCheckboxGroup QuestionType = "checkbox-group"
)

// ParseQuestionType normalises a question type; dynamic_checkbox_group is the legacy name.
func ParseQuestionType(raw string) (QuestionType, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "text":
		return QuestionText, nil
	case "yesno", "yes/no", "yes_no":
		return QuestionYesNo, nil
	case "slider":
		return QuestionSlider, nil
	case "checkbox-group", "checkbox_group", "dynamic_checkbox_group":
		return QuestionCheckboxGroup, nil
	default:
		return "", fmt.Errorf("unknown question type %q", raw)
	}
}

func (q *QuestionType) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	parsed, err := ParseQuestionType(raw)
	if err != nil {
		return err
	}
	*q = parsed
	return nil
}

// QuestionOption is one choice of a checkbox-group question.
type QuestionOption struct {
	ID   string `json:"id" yaml:"id"`
	Text string `json:"text" yaml:"text"`
}

// Question is a single prompt within a template.
type Question struct {
	ID      string           `json:"id" yaml:"id"`
	Text    string           `json:"text" yaml:"text" validate:"required"`
	Type    QuestionType     `json:"type" yaml:"type"`
	Order   int              `json:"order" yaml:"order" validate:"gte=0"`
	Options []QuestionOption `json:"options,omitempty" yaml:"options,omitempty"`
}

// Template is a named, ordered set of questions for one journal type.
type Template struct {
	ID        string       `json:"id" yaml:"id"`
	Name      string       `json:"name" yaml:"name" validate:"required"`
	Type      TemplateType `json:"type" yaml:"type" validate:"required"`
	Questions []Question   `json:"questions" yaml:"questions" validate:"dive"`
}

// Question returns the question with the given id.
func (t Template) Question(id string) (Question, bool) {
	for _, q := range t.Questions {
		if q.ID == id {
			return q, true
		}
	}
	return Question{}, false
}

// Renumbered returns a copy of the template whose question orders are 0..N-1 in slice order.
func (t Template) Renumbered() Template {
	questions := make([]Question, len(t.Questions))
	for i, q := range t.Questions {
		q.Order = i
		questions[i] = q
	}
	t.Questions = questions
	return t
}
