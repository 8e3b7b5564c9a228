package journal

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/zhouzirui/daybook/backend/internal/model/journal"
)

var (
	ErrEntryNotFound    = errors.New("entry not found")
	ErrTemplateNotFound = errors.New("template not found")
	ErrTagNotFound      = errors.New("tag not found")
	ErrUnknownQuestion  = errors.New("question ids do not match template")
)

// Service holds the journal state. Mutators serialise on a mutex and publish a
// new immutable snapshot; readers load the current snapshot without locking.
type Service struct {
	mu      sync.Mutex
	state   atomic.Pointer[journal.State]
	profile journal.Profile

	now   func() time.Time
	newID func() string
}

// Option customises a Service.
type Option func(*Service)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithIDGenerator overrides identity generation.
func WithIDGenerator(newID func() string) Option {
	return func(s *Service) { s.newID = newID }
}

// NewService bootstraps the store from seed data.
func NewService(seed Seed, opts ...Option) *Service {
	s := &Service{
		profile: seed.Profile,
		now:     func() time.Time { return time.Now().UTC() },
		newID:   uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	st := seed.State
	st.DarkMode = seed.Profile.Preferences.DarkMode
	s.state.Store(&st)
	return s
}

// Snapshot returns the current state. Callers must treat it as read-only.
func (s *Service) Snapshot() journal.State {
	return *s.state.Load()
}

// apply runs fn against the current snapshot and publishes its result.
func (s *Service) apply(fn func(journal.State) journal.State) journal.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	next := fn(*s.state.Load())
	s.state.Store(&next)
	return next
}

func (s *Service) stampRatings(inputs []journal.RatingInput) []journal.Rating {
	ratings := make([]journal.Rating, len(inputs))
	for i, r := range inputs {
		ratings[i] = journal.Rating{
			ID:        s.newID(),
			Category:  r.Category,
			Value:     r.Value,
			Timestamp: s.now(),
		}
	}
	return ratings
}

// CreateEntry records a new entry. Every rating gets a fresh identity and
// timestamp. The template id is not checked.
func (s *Service) CreateEntry(_ context.Context, templateID string, answers journal.Answers, ratings []journal.RatingInput) journal.Entry {
	entry := journal.Entry{
		ID:         s.newID(),
		TemplateID: templateID,
		Timestamp:  s.now(),
		Answers:    answers.Clone(),
		Ratings:    s.stampRatings(ratings),
	}
	s.apply(func(st journal.State) journal.State { return st.WithEntry(entry) })
	return entry
}

// UpdateEntry replaces the answers and regenerates every rating of an entry.
// It reports false, leaving the state unchanged, when no such entry exists.
func (s *Service) UpdateEntry(_ context.Context, entryID string, answers journal.Answers, ratings []journal.RatingInput) (journal.Entry, bool) {
	var (
		updated journal.Entry
		found   bool
	)
	s.apply(func(st journal.State) journal.State {
		current, ok := st.Entry(entryID)
		if !ok {
			return st
		}
		current.Answers = answers.Clone()
		current.Ratings = s.stampRatings(ratings)

		next, ok := st.ReplaceEntry(current)
		updated, found = current, ok
		return next
	})
	return updated, found
}

// DeleteEntry removes an entry; unknown ids are ignored.
func (s *Service) DeleteEntry(_ context.Context, entryID string) {
	s.apply(func(st journal.State) journal.State { return st.WithoutEntries(entryID) })
}

// DeleteEntries removes every listed entry, keeping the rest in order.
func (s *Service) DeleteEntries(_ context.Context, entryIDs []string) {
	s.apply(func(st journal.State) journal.State { return st.WithoutEntries(entryIDs...) })
}

// GetEntry returns an entry by id.
func (s *Service) GetEntry(_ context.Context, entryID string) (journal.Entry, error) {
	entry, ok := s.Snapshot().Entry(entryID)
	if !ok {
		return journal.Entry{}, ErrEntryNotFound
	}
	return entry, nil
}

// EntryFilter narrows the timeline.
type EntryFilter struct {
	From  time.Time
	To    time.Time
	Type  journal.TemplateType
	Limit int
}

// ListEntries returns entries newest first. From is inclusive, To exclusive.
// Filtering by type skips entries whose template no longer exists.
func (s *Service) ListEntries(_ context.Context, filter EntryFilter) []journal.Entry {
	st := s.Snapshot()

	out := make([]journal.Entry, 0, len(st.Entries))
	for _, e := range st.Entries {
		if !filter.From.IsZero() && e.Timestamp.Before(filter.From) {
			continue
		}
		if !filter.To.IsZero() && !e.Timestamp.Before(filter.To) {
			continue
		}
		if filter.Type != "" {
			tmpl, ok := st.Template(e.TemplateID)
			if !ok || tmpl.Type != filter.Type {
				continue
			}
		}
		out = append(out, e)
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp.After(out[j].Timestamp)
	})

	if filter.Limit > 0 && filter.Limit < len(out) {
		out = out[:filter.Limit]
	}
	return out
}

// EntriesByDay groups the ids of entries in the month containing month by
// calendar day (YYYY-MM-DD in loc).
func (s *Service) EntriesByDay(ctx context.Context, month time.Time, loc *time.Location) map[string][]string {
	if loc == nil {
		loc = time.UTC
	}
	start := time.Date(month.Year(), month.Month(), 1, 0, 0, 0, 0, loc)
	entries := s.ListEntries(ctx, EntryFilter{From: start, To: start.AddDate(0, 1, 0)})

	days := make(map[string][]string)
	for i := len(entries) - 1; i >= 0; i-- {
		day := entries[i].Timestamp.In(loc).Format(time.DateOnly)
		days[day] = append(days[day], entries[i].ID)
	}
	return days
}

// ValidateAnswers checks that every answer key names a question of the template.
func (s *Service) ValidateAnswers(_ context.Context, templateID string, answers journal.Answers) error {
	tmpl, ok := s.Snapshot().Template(templateID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrTemplateNotFound, templateID)
	}
	for qid := range answers {
		if _, ok := tmpl.Question(qid); !ok {
			return fmt.Errorf("%w: %s", ErrUnknownQuestion, qid)
		}
	}
	return nil
}

// AddTemplate stores a template under a new identity. Question ids become
// {templateId}-{index}; a zero order is replaced by the question's index.
func (s *Service) AddTemplate(_ context.Context, t journal.Template) string {
	id := s.newID()
	t.ID = id

	questions := make([]journal.Question, len(t.Questions))
	for i, q := range t.Questions {
		q.ID = fmt.Sprintf("%s-%d", id, i)
		if q.Order == 0 {
			q.Order = i
		}
		if q.Type == "" {
			q.Type = journal.QuestionText
		}
		questions[i] = q
	}
	t.Questions = questions

	s.apply(func(st journal.State) journal.State { return st.WithTemplate(t) })
	return id
}

// UpdateTemplate replaces a template by id, renumbering its questions in the
// given sequence. Questions without an id get one derived from the template.
func (s *Service) UpdateTemplate(_ context.Context, t journal.Template) error {
	t = t.Renumbered()
	for i := range t.Questions {
		if t.Questions[i].ID == "" {
			t.Questions[i].ID = fmt.Sprintf("%s-%s", t.ID, s.newID())
		}
	}

	var found bool
	s.apply(func(st journal.State) journal.State {
		next, ok := st.ReplaceTemplate(t)
		found = ok
		return next
	})
	if !found {
		return ErrTemplateNotFound
	}
	return nil
}

// ReorderQuestions recomputes every question order from questionIDs. The ids
// must be a permutation of the template's question ids.
func (s *Service) ReorderQuestions(_ context.Context, templateID string, questionIDs []string) (journal.Template, error) {
	var (
		result journal.Template
		err    error
	)
	s.apply(func(st journal.State) journal.State {
		tmpl, ok := st.Template(templateID)
		if !ok {
			err = ErrTemplateNotFound
			return st
		}
		if len(questionIDs) != len(tmpl.Questions) {
			err = ErrUnknownQuestion
			return st
		}

		reordered := make([]journal.Question, 0, len(questionIDs))
		seen := make(map[string]bool, len(questionIDs))
		for _, qid := range questionIDs {
			q, ok := tmpl.Question(qid)
			if !ok || seen[qid] {
				err = ErrUnknownQuestion
				return st
			}
			seen[qid] = true
			reordered = append(reordered, q)
		}
		tmpl.Questions = reordered
		result = tmpl.Renumbered()

		next, _ := st.ReplaceTemplate(result)
		return next
	})
	return result, err
}

// DeleteTemplate removes a template. Entries referencing it are left alone.
func (s *Service) DeleteTemplate(_ context.Context, id string) {
	s.apply(func(st journal.State) journal.State { return st.WithoutTemplate(id) })
}

// AddCategory stores a category under a new identity.
func (s *Service) AddCategory(_ context.Context, c journal.Category) string {
	c.ID = s.newID()
	s.apply(func(st journal.State) journal.State { return st.WithCategory(c) })
	return c.ID
}

// DeleteCategory removes a category; ratings keep their category id.
func (s *Service) DeleteCategory(_ context.Context, id string) {
	s.apply(func(st journal.State) journal.State { return st.WithoutCategory(id) })
}

// AddTag stores a tag under a new identity.
func (s *Service) AddTag(_ context.Context, t journal.Tag) journal.Tag {
	t.ID = s.newID()
	s.apply(func(st journal.State) journal.State { return st.WithTag(t) })
	return t
}

// GetTag returns a tag by id.
func (s *Service) GetTag(_ context.Context, id string) (journal.Tag, error) {
	tag, ok := s.Snapshot().Tag(id)
	if !ok {
		return journal.Tag{}, ErrTagNotFound
	}
	return tag, nil
}

// DeleteTag removes a tag.
func (s *Service) DeleteTag(_ context.Context, id string) {
	s.apply(func(st journal.State) journal.State { return st.WithoutTag(id) })
}

// CategoriesFor returns the categories of one journal type in stored order.
func (s *Service) CategoriesFor(_ context.Context, typ journal.TemplateType) []journal.Category {
	cats := s.Snapshot().Categories
	return slices.DeleteFunc(slices.Clone(cats), func(c journal.Category) bool { return c.Type != typ })
}

// Profile returns the journal owner's profile.
func (s *Service) Profile(_ context.Context) journal.Profile {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.profile
}

// UpdateProfile applies a partial profile change.
func (s *Service) UpdateProfile(_ context.Context, u journal.ProfileUpdate) journal.Profile {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.profile = u.Apply(s.profile)
	return s.profile
}

// UpdatePreferences applies a partial preferences change; a dark mode change
// is mirrored into the state.
func (s *Service) UpdatePreferences(_ context.Context, u journal.PreferencesUpdate) journal.Profile {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.profile.Preferences = u.Apply(s.profile.Preferences)
	if u.DarkMode != nil {
		next := s.state.Load().WithDarkMode(*u.DarkMode)
		s.state.Store(&next)
	}
	return s.profile
}

// ToggleDarkMode flips the dark mode flag and returns the new value.
func (s *Service) ToggleDarkMode(_ context.Context) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	on := !s.state.Load().DarkMode
	next := s.state.Load().WithDarkMode(on)
	s.state.Store(&next)
	s.profile.Preferences.DarkMode = on
	return on
}
