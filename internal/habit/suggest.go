package habit

import (
	"context"
	"strings"

	"github.com/flowmotion/flowmotion/internal/models"
)

// Suggester produces a category, tools and an estimated duration for a habit.
// *genai.Client implements it.
type Suggester interface {
	SuggestHabit(ctx context.Context, name, description string) (models.Suggestion, error)
}

// SuggesterFunc adapts a function to the Suggester interface.
type SuggesterFunc func(ctx context.Context, name, description string) (models.Suggestion, error)

func (f SuggesterFunc) SuggestHabit(ctx context.Context, name, description string) (models.Suggestion, error) {
	return f(ctx, name, description)
}

// FallbackSuggestion is the suggestion used when no model is available.
func FallbackSuggestion(name string) models.Suggestion {
	lower := strings.ToLower(name)
	if strings.Contains(lower, "ppt") || strings.Contains(lower, "presentation") {
		return models.Suggestion{
			Category: "Presentation",
			Tools: []models.Tool{
				{Name: "Gamma", URL: "https://gamma.app"},
				{Name: "Canva", URL: "https://canva.com"},
				{Name: "Google Slides", URL: "https://slides.google.com"},
			},
			EstimatedTime: "1-2 hours",
		}
	}
	return models.Suggestion{
		Category:      "General",
		Tools:         []models.Tool{},
		EstimatedTime: "30 minutes",
	}
}
