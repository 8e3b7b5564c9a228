package journal

import (
	"bytes"
	_ "embed"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/zhouzirui/daybook/backend/internal/model/journal"
)

//go:embed fixtures/seed.yaml
var defaultSeed []byte

// Seed is the initial content of a journal.
type Seed struct {
	State   journal.State
	Profile journal.Profile
}

type seedFile struct {
	Profile    journal.Profile `yaml:"profile"`
	Templates  []seedTemplate  `yaml:"templates"`
	Categories []seedCategory  `yaml:"categories"`
	Tags       []journal.Tag   `yaml:"tags"`
	Entries    []seedEntry     `yaml:"entries"`
}

type seedTemplate struct {
	ID        string         `yaml:"id"`
	Name      string         `yaml:"name"`
	Type      string         `yaml:"type"`
	Questions []seedQuestion `yaml:"questions"`
}

type seedQuestion struct {
	ID      string                   `yaml:"id"`
	Text    string                   `yaml:"text"`
	Type    string                   `yaml:"type"`
	Order   int                      `yaml:"order"`
	Options []journal.QuestionOption `yaml:"options"`
}

type seedCategory struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
	Type string `yaml:"type"`
}

type seedEntry struct {
	ID         string                `yaml:"id"`
	TemplateID string                `yaml:"templateId"`
	Timestamp  time.Time             `yaml:"timestamp"`
	Answers    map[string]seedAnswer `yaml:"answers"`
	Ratings    []seedRating          `yaml:"ratings"`
}

type seedAnswer struct {
	Text  string `yaml:"text"`
	Value any    `yaml:"value"`
}

type seedRating struct {
	ID       string `yaml:"id"`
	Category string `yaml:"category"`
	Value    int    `yaml:"value"`
}

// DefaultSeed returns the built-in sample journal.
func DefaultSeed() (Seed, error) {
	return LoadSeed(bytes.NewReader(defaultSeed))
}

// LoadSeedFile reads a seed from path, falling back to the built-in sample
// when path is empty.
func LoadSeedFile(path string) (Seed, error) {
	if path == "" {
		return DefaultSeed()
	}
	f, err := os.Open(path)
	if err != nil {
		return Seed{}, fmt.Errorf("open seed file: %w", err)
	}
	defer f.Close()
	return LoadSeed(f)
}

// LoadSeed decodes a YAML seed document.
func LoadSeed(r io.Reader) (Seed, error) {
	var file seedFile
	if err := yaml.NewDecoder(r).Decode(&file); err != nil {
		return Seed{}, fmt.Errorf("decode seed: %w", err)
	}

	st := journal.State{
		Templates:  make([]journal.Template, 0, len(file.Templates)),
		Entries:    make([]journal.Entry, 0, len(file.Entries)),
		Categories: make([]journal.Category, 0, len(file.Categories)),
		Tags:       file.Tags,
	}
	if st.Tags == nil {
		st.Tags = []journal.Tag{}
	}

	for _, t := range file.Templates {
		typ, err := journal.ParseTemplateType(t.Type)
		if err != nil {
			return Seed{}, fmt.Errorf("template %s: %w", t.ID, err)
		}
		tmpl := journal.Template{ID: t.ID, Name: t.Name, Type: typ, Questions: make([]journal.Question, 0, len(t.Questions))}
		for _, q := range t.Questions {
			qt, err := journal.ParseQuestionType(q.Type)
			if err != nil {
				return Seed{}, fmt.Errorf("question %s: %w", q.ID, err)
			}
			tmpl.Questions = append(tmpl.Questions, journal.Question{ID: q.ID, Text: q.Text, Type: qt, Order: q.Order, Options: q.Options})
		}
		st.Templates = append(st.Templates, tmpl)
	}

	for _, c := range file.Categories {
		typ, err := journal.ParseTemplateType(c.Type)
		if err != nil {
			return Seed{}, fmt.Errorf("category %s: %w", c.ID, err)
		}
		st.Categories = append(st.Categories, journal.Category{ID: c.ID, Name: c.Name, Type: typ})
	}

	for _, e := range file.Entries {
		entry := journal.Entry{
			ID:         e.ID,
			TemplateID: e.TemplateID,
			Timestamp:  e.Timestamp.UTC(),
			Answers:    make(journal.Answers, len(e.Answers)),
			Ratings:    make([]journal.Rating, 0, len(e.Ratings)),
		}
		for qid, a := range e.Answers {
			value, err := seedAnswerValue(a.Value)
			if err != nil {
				return Seed{}, fmt.Errorf("entry %s answer %s: %w", e.ID, qid, err)
			}
			entry.Answers[qid] = journal.Answer{Text: a.Text, Value: value}
		}
		for _, r := range e.Ratings {
			entry.Ratings = append(entry.Ratings, journal.Rating{ID: r.ID, Category: r.Category, Value: r.Value, Timestamp: entry.Timestamp})
		}
		st.Entries = append(st.Entries, entry)
	}

	return Seed{State: st, Profile: file.Profile}, nil
}

func seedAnswerValue(v any) (journal.AnswerValue, error) {
	switch val := v.(type) {
	case nil:
		return journal.TextAnswer(""), nil
	case string:
		return journal.TextAnswer(val), nil
	case bool:
		return journal.YesNoAnswer(val), nil
	case int:
		return journal.SliderAnswer(float64(val)), nil
	case float64:
		return journal.SliderAnswer(val), nil
	case []any:
		group := make(journal.CheckboxGroupAnswer, 0, len(val))
		for _, item := range val {
			s, ok := item.(string)
			if !ok {
				return nil, journal.ErrInvalidAnswer
			}
			group = append(group, s)
		}
		return group, nil
	default:
		return nil, journal.ErrInvalidAnswer
	}
}
