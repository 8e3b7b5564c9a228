package ai

import (
	"strings"
	"testing"

	"github.com/zhouzirui/daybook/backend/internal/model/coach"
)

func TestBuildSystemPromptPrefersStoredPrompt(t *testing.T) {
	pm := NewCoachPromptManager()
	stored := &coach.Prompt{SystemPrompt: "custom"}

	if got := pm.BuildSystemPrompt(stored, &coach.LifeArea{Name: "Health"}); got != "custom" {
		t.Fatalf("got %q", got)
	}
}

func TestBuildSystemPromptFallbacks(t *testing.T) {
	pm := NewCoachPromptManager()

	if got := pm.BuildSystemPrompt(nil, nil); got != DefaultCoachPrompt {
		t.Fatalf("expected default prompt, got %q", got)
	}

	got := pm.BuildSystemPrompt(&coach.Prompt{SystemPrompt: "  "}, &coach.LifeArea{Name: "Hobbies"})
	if !strings.HasPrefix(got, "You are an AI coach specializing in Hobbies.") {
		t.Fatalf("unexpected basic prompt %q", got)
	}
	if strings.Contains(got, "Focus on:") {
		t.Fatal("unknown life area should not get template hints")
	}
}

func TestBuildSystemPromptUsesLifeAreaTemplate(t *testing.T) {
	pm := NewCoachPromptManager()
	desc := "running twice a week"

	got := pm.BuildSystemPrompt(nil, &coach.LifeArea{Name: " health ", Description: &desc})
	for _, want := range []string{"specializing in  health ", "Focus on:", "medical diagnosis", desc} {
		if !strings.Contains(got, want) {
			t.Fatalf("prompt missing %q:\n%s", want, got)
		}
	}
}
