package ai

import (
	"fmt"
	"strings"

	"github.com/zhouzirui/daybook/backend/internal/model/coach"
)

// DefaultCoachPrompt is used when a session has no life area and no active
// global prompt exists.
const DefaultCoachPrompt = `You are a supportive journaling coach. Help the user reflect on their day,
notice patterns in their mood and energy, and turn insights into small,
concrete next steps. Ask one thoughtful question at a time.`

// PromptTemplate adds focus areas and conversation rules to a base prompt.
type PromptTemplate struct {
	SystemPrompt string
	FocusHints   []string
	ContextRules []string
}

// CoachPromptManager builds system prompts for life areas.
type CoachPromptManager struct {
	templates map[string]*PromptTemplate
}

// NewCoachPromptManager creates a manager with the built-in life area templates.
func NewCoachPromptManager() *CoachPromptManager {
	manager := &CoachPromptManager{
		templates: make(map[string]*PromptTemplate),
	}
	manager.loadDefaultTemplates()
	return manager
}

// GetPromptTemplate returns the built-in template for a life area name.
func (pm *CoachPromptManager) GetPromptTemplate(areaName string) (*PromptTemplate, error) {
	template, exists := pm.templates[templateKey(areaName)]
	if !exists {
		return nil, fmt.Errorf("prompt template not found for life area: %s", areaName)
	}
	return template, nil
}

// BuildSystemPrompt resolves the system prompt for a conversation. A stored
// prompt wins; otherwise the life area gets a generated coach prompt and
// sessions without one fall back to DefaultCoachPrompt.
func (pm *CoachPromptManager) BuildSystemPrompt(stored *coach.Prompt, area *coach.LifeArea) string {
	if stored != nil && strings.TrimSpace(stored.SystemPrompt) != "" {
		return stored.SystemPrompt
	}
	if area == nil {
		return DefaultCoachPrompt
	}

	template, err := pm.GetPromptTemplate(area.Name)
	if err != nil {
		return pm.buildBasicSystemPrompt(area)
	}

	var b strings.Builder
	b.WriteString(pm.buildBasicSystemPrompt(area))
	b.WriteString("\n\n")
	b.WriteString(template.SystemPrompt)
	if len(template.FocusHints) > 0 {
		b.WriteString("\n\nFocus on:\n- ")
		b.WriteString(strings.Join(template.FocusHints, "\n- "))
	}
	if len(template.ContextRules) > 0 {
		b.WriteString("\n\nConversation rules:\n- ")
		b.WriteString(strings.Join(template.ContextRules, "\n- "))
	}
	if area.Description != nil && *area.Description != "" {
		b.WriteString("\n\nThe user describes this area as: ")
		b.WriteString(*area.Description)
	}
	return b.String()
}

func (pm *CoachPromptManager) buildBasicSystemPrompt(area *coach.LifeArea) string {
	return fmt.Sprintf(`You are an AI coach specializing in %s.
Your goal is to help users improve in this area through thoughtful guidance,
practical advice, and insightful questions. Be supportive, encouraging, and
focused on helping the user make progress.`, area.Name)
}

func (pm *CoachPromptManager) loadDefaultTemplates() {
	pm.templates["health"] = &PromptTemplate{
		SystemPrompt: "Treat sleep, movement, nutrition and stress as connected habits.",
		FocusHints: []string{
			"Link the user's energy ratings to their routines",
			"Suggest changes that fit into an ordinary day",
		},
		ContextRules: []string{
			"Never give a medical diagnosis; suggest seeing a professional for symptoms",
		},
	}

	pm.templates["career"] = &PromptTemplate{
		SystemPrompt: "Help the user connect daily priorities to longer-term professional goals.",
		FocusHints: []string{
			"Ask what a good outcome for this week looks like",
			"Break large goals into the next concrete action",
		},
		ContextRules: []string{
			"Keep advice specific to the situation the user described",
		},
	}

	pm.templates["relationships"] = &PromptTemplate{
		SystemPrompt: "Help the user reflect on how they show up for the people around them.",
		FocusHints: []string{
			"Notice moments of gratitude the user mentions",
			"Encourage small gestures of connection",
		},
		ContextRules: []string{
			"Do not take sides in conflicts the user describes",
		},
	}
}

func templateKey(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
