package journal

import "time"

// Rating is a 1-10 score on a category, owned by exactly one entry.
type Rating struct {
	ID        string    `json:"id"`
	Category  string    `json:"category"`
	Value     int       `json:"value"`
	Timestamp time.Time `json:"timestamp"`
}

// RatingInput is the caller-supplied part of a rating; identity and timestamp are generated.
type RatingInput struct {
	Category string `json:"category" validate:"required"`
	Value    int    `json:"value" validate:"gte=1,lte=10"`
}

// Entry is one filled-in instance of a template.
type Entry struct {
	ID         string    `json:"id"`
	TemplateID string    `json:"templateId"`
	Timestamp  time.Time `json:"timestamp"`
	Answers    Answers   `json:"answers"`
	Ratings    []Rating  `json:"ratings"`
}

// Rating returns the rating for a category.
func (e Entry) Rating(category string) (Rating, bool) {
	for _, r := range e.Ratings {
		if r.Category == category {
			return r, true
		}
	}
	return Rating{}, false
}
