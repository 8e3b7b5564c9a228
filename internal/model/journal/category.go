package journal

// Category is a named rating axis scoped to one journal type.
type Category struct {
	ID   string       `json:"id" yaml:"id"`
	Name string       `json:"name" yaml:"name" validate:"required"`
	Type TemplateType `json:"type" yaml:"type" validate:"required"`
}

// Tag is a free-standing label; coach sessions reference tags by id.
type Tag struct {
	ID          string `json:"id" yaml:"id"`
	Name        string `json:"name" yaml:"name" validate:"required"`
	Color       string `json:"color,omitempty" yaml:"color,omitempty"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
}
