package journal

import "slices"

// State is an immutable snapshot of the journal. Every With*/Without* method
// returns a new snapshot and never writes through to the receiver's slices.
type State struct {
	Templates  []Template `json:"templates"`
	Entries    []Entry    `json:"entries"`
	Categories []Category `json:"categories"`
	Tags       []Tag      `json:"tags"`
	DarkMode   bool       `json:"darkMode"`
}

// Template finds a template by id.
func (s State) Template(id string) (Template, bool) {
	for _, t := range s.Templates {
		if t.ID == id {
			return t, true
		}
	}
	return Template{}, false
}

// Entry finds an entry by id.
func (s State) Entry(id string) (Entry, bool) {
	for _, e := range s.Entries {
		if e.ID == id {
			return e, true
		}
	}
	return Entry{}, false
}

// Tag finds a tag by id.
func (s State) Tag(id string) (Tag, bool) {
	for _, t := range s.Tags {
		if t.ID == id {
			return t, true
		}
	}
	return Tag{}, false
}

func (s State) WithEntry(e Entry) State {
	s.Entries = append(slices.Clip(s.Entries), e)
	return s
}

// ReplaceEntry swaps the entry with the same id. It reports false, leaving s untouched, when absent.
func (s State) ReplaceEntry(e Entry) (State, bool) {
	idx := slices.IndexFunc(s.Entries, func(x Entry) bool { return x.ID == e.ID })
	if idx < 0 {
		return s, false
	}
	entries := slices.Clone(s.Entries)
	entries[idx] = e
	s.Entries = entries
	return s, true
}

// WithoutEntries drops every entry whose id is listed, keeping the others in order.
func (s State) WithoutEntries(ids ...string) State {
	if len(ids) == 0 {
		return s
	}
	drop := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		drop[id] = struct{}{}
	}
	s.Entries = slices.DeleteFunc(slices.Clone(s.Entries), func(e Entry) bool {
		_, ok := drop[e.ID]
		return ok
	})
	return s
}

func (s State) WithTemplate(t Template) State {
	s.Templates = append(slices.Clip(s.Templates), t)
	return s
}

// ReplaceTemplate swaps the template with the same id; false when absent.
func (s State) ReplaceTemplate(t Template) (State, bool) {
	idx := slices.IndexFunc(s.Templates, func(x Template) bool { return x.ID == t.ID })
	if idx < 0 {
		return s, false
	}
	templates := slices.Clone(s.Templates)
	templates[idx] = t
	s.Templates = templates
	return s, true
}

func (s State) WithoutTemplate(id string) State {
	s.Templates = slices.DeleteFunc(slices.Clone(s.Templates), func(t Template) bool { return t.ID == id })
	return s
}

func (s State) WithCategory(c Category) State {
	s.Categories = append(slices.Clip(s.Categories), c)
	return s
}

func (s State) WithoutCategory(id string) State {
	s.Categories = slices.DeleteFunc(slices.Clone(s.Categories), func(c Category) bool { return c.ID == id })
	return s
}

func (s State) WithTag(t Tag) State {
	s.Tags = append(slices.Clip(s.Tags), t)
	return s
}

func (s State) WithoutTag(id string) State {
	s.Tags = slices.DeleteFunc(slices.Clone(s.Tags), func(t Tag) bool { return t.ID == id })
	return s
}

func (s State) WithDarkMode(on bool) State {
	s.DarkMode = on
	return s
}
