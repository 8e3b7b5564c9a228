package journal

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestAnswerDecodesEachKind(t *testing.T) {
	cases := []struct {
		name string
		raw  string
		want AnswerValue
	}{
		{"text", `{"kind":"text","text":"q","value":"slept well"}`, TextAnswer("slept well")},
		{"yesno", `{"kind":"yesno","text":"q","value":true}`, YesNoAnswer(true)},
		{"slider", `{"kind":"slider","text":"q","value":7.5}`, SliderAnswer(7.5)},
		{"untyped string", `{"text":"q","value":"legacy"}`, TextAnswer("legacy")},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var a Answer
			if err := json.Unmarshal([]byte(tc.raw), &a); err != nil {
				t.Fatalf("unmarshal: %v", err)
			}
			if a.Value != tc.want {
				t.Fatalf("value = %#v, want %#v", a.Value, tc.want)
			}
			if a.Text != "q" {
				t.Fatalf("text = %q", a.Text)
			}
		})
	}
}

func TestAnswerCheckboxGroup(t *testing.T) {
	var a Answer
	if err := json.Unmarshal([]byte(`{"kind":"dynamic_checkbox_group","value":["run","read"]}`), &a); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	group, ok := a.Value.(CheckboxGroupAnswer)
	if !ok || len(group) != 2 || group[1] != "read" {
		t.Fatalf("unexpected value %#v", a.Value)
	}
	if a.Kind() != QuestionCheckboxGroup {
		t.Fatalf("kind = %s", a.Kind())
	}
}

func TestAnswerRejectsMismatchedValue(t *testing.T) {
	inputs := []string{
		`{"kind":"yesno","value":"yes"}`,
		`{"kind":"slider","value":true}`,
		`{"kind":"checkbox-group","value":"a,b"}`,
		`{"value":42}`,
		`{"kind":"essay","value":"x"}`,
	}
	for _, raw := range inputs {
		var a Answer
		err := json.Unmarshal([]byte(raw), &a)
		if !errors.Is(err, ErrInvalidAnswer) {
			t.Fatalf("%s: expected ErrInvalidAnswer, got %v", raw, err)
		}
	}
}

func TestAnswerMarshalIncludesKind(t *testing.T) {
	data, err := json.Marshal(Answer{Text: "Energy?", Value: SliderAnswer(6)})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var wire map[string]any
	if err := json.Unmarshal(data, &wire); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if wire["kind"] != "slider" || wire["value"] != float64(6) || wire["text"] != "Energy?" {
		t.Fatalf("unexpected wire form %s", data)
	}
}
