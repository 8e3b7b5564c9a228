package journal

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrInvalidAnswer reports an answer whose value does not match its kind.
var ErrInvalidAnswer = errors.New("invalid answer")

// AnswerValue is implemented by the four answer kinds only.
type AnswerValue interface {
	Kind() QuestionType
	isAnswerValue()
}

type (
	TextAnswer          string
	YesNoAnswer         bool
	SliderAnswer        float64
	CheckboxGroupAnswer []string
)

func (TextAnswer) Kind() QuestionType          { return QuestionText }
func (YesNoAnswer) Kind() QuestionType         { return QuestionYesNo }
func (SliderAnswer) Kind() QuestionType        { return QuestionSlider }
func (CheckboxGroupAnswer) Kind() QuestionType { return QuestionCheckboxGroup }

func (TextAnswer) isAnswerValue()          {}
func (YesNoAnswer) isAnswerValue()         {}
func (SliderAnswer) isAnswerValue()        {}
func (CheckboxGroupAnswer) isAnswerValue() {}

// Answer records the question text as asked and the typed response.
type Answer struct {
	Text  string
	Value AnswerValue
}

// Kind reports the answer kind, text when the value is unset.
func (a Answer) Kind() QuestionType {
	if a.Value == nil {
		return QuestionText
	}
	return a.Value.Kind()
}

type answerWire struct {
	Kind  QuestionType    `json:"kind"`
	Text  string          `json:"text"`
	Value json.RawMessage `json:"value"`
}

func (a Answer) MarshalJSON() ([]byte, error) {
	value := a.Value
	if value == nil {
		value = TextAnswer("")
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return nil, err
	}
	return json.Marshal(answerWire{Kind: value.Kind(), Text: a.Text, Value: raw})
}

func (a *Answer) UnmarshalJSON(data []byte) error {
	var wire struct {
		Kind  string          `json:"kind"`
		Text  string          `json:"text"`
		Value json.RawMessage `json:"value"`
	}
	if err := json.Unmarshal(data, &wire); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidAnswer, err)
	}

	// untyped answers are only accepted for plain strings
	kind := QuestionText
	if wire.Kind != "" {
		parsed, err := ParseQuestionType(wire.Kind)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidAnswer, err)
		}
		kind = parsed
	}

	value, err := decodeAnswerValue(kind, wire.Value)
	if err != nil {
		return err
	}

	a.Text = wire.Text
	a.Value = value
	return nil
}

func decodeAnswerValue(kind QuestionType, raw json.RawMessage) (AnswerValue, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return zeroAnswer(kind), nil
	}

	switch kind {
	case QuestionText:
		var v string
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, fmt.Errorf("%w: text answer must be a string", ErrInvalidAnswer)
		}
		return TextAnswer(v), nil
	case QuestionYesNo:
		var v bool
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, fmt.Errorf("%w: yesno answer must be a boolean", ErrInvalidAnswer)
		}
		return YesNoAnswer(v), nil
	case QuestionSlider:
		var v float64
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, fmt.Errorf("%w: slider answer must be a number", ErrInvalidAnswer)
		}
		return SliderAnswer(v), nil
	case QuestionCheckboxGroup:
		var v []string
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, fmt.Errorf("%w: checkbox-group answer must be a list of strings", ErrInvalidAnswer)
		}
		return CheckboxGroupAnswer(v), nil
	default:
		return nil, fmt.Errorf("%w: unknown kind %q", ErrInvalidAnswer, kind)
	}
}

func zeroAnswer(kind QuestionType) AnswerValue {
	switch kind {
	case QuestionYesNo:
		return YesNoAnswer(false)
	case QuestionSlider:
		return SliderAnswer(0)
	case QuestionCheckboxGroup:
		return CheckboxGroupAnswer{}
	default:
		return TextAnswer("")
	}
}

// Answers maps question ids to answers.
type Answers map[string]Answer

// Clone returns a shallow copy; answer values are immutable except checkbox lists, which are copied.
func (a Answers) Clone() Answers {
	if a == nil {
		return Answers{}
	}
	out := make(Answers, len(a))
	for k, v := range a {
		if group, ok := v.Value.(CheckboxGroupAnswer); ok {
			v.Value = append(CheckboxGroupAnswer(nil), group...)
		}
		out[k] = v
	}
	return out
}
