package validation_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/daybook/backend/internal/model/coach"
	"github.com/zhouzirui/daybook/backend/internal/model/journal"
	"github.com/zhouzirui/daybook/backend/internal/validation"
)

func TestValidator_ValidateSuccess(t *testing.T) {
	v := validation.New()

	color := "#ff8800"
	assert.NoError(t, v.Validate(coach.LifeAreaInput{Name: "Health", Color: &color}))
	assert.NoError(t, v.Validate(journal.RatingInput{Category: "1", Value: 10}))
}

func TestValidator_ReportsJSONFieldNames(t *testing.T) {
	v := validation.New()

	err := v.Validate(journal.Template{
		Type:      journal.Morning,
		Questions: []journal.Question{{Text: "ok"}, {Text: ""}},
	})
	require.Error(t, err)

	var verr *validation.Error
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, "is required", verr.Fields["name"])
	assert.Equal(t, "is required", verr.Fields["questions[1].text"])
	assert.Len(t, verr.Fields, 2)
}

func TestValidator_FriendlyMessages(t *testing.T) {
	v := validation.New()

	tests := []struct {
		name  string
		req   any
		field string
		want  string
	}{
		{"rating too high", journal.RatingInput{Category: "1", Value: 11}, "value", "must be less than or equal to 10"},
		{"rating too low", journal.RatingInput{Category: "1", Value: 0}, "value", "must be greater than or equal to 1"},
		{"bad color", coach.LifeAreaInput{Name: "x", Color: strPtr("orange")}, "color", "must be a hex color such as #aabbcc"},
		{"long title", coach.NewSession{Title: string(make([]byte, 201))}, "title", "must not exceed 200 characters"},
		{"bad avatar", journal.ProfileUpdate{AvatarURL: strPtr("not a url")}, "avatarUrl", "must be a valid URL"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.Validate(tt.req)
			var verr *validation.Error
			require.True(t, errors.As(err, &verr), "got %v", err)
			assert.Equal(t, tt.want, verr.Fields[tt.field])
			assert.Contains(t, verr.Error(), tt.field)
		})
	}
}

func strPtr(s string) *string { return &s }
