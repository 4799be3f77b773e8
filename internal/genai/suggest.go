package genai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/flowmotion/flowmotion/internal/models"
)

const suggestionSystemPrompt = `You help people plan habits. Given a habit name and description, reply with a JSON object:
{"category": "<one or two words>", "suggested_tools": [{"name": "<tool>", "url": "<https url>"}], "estimated_time": "<e.g. 30 minutes>"}
Suggest at most three well-known tools, or an empty list if none apply.`

// SuggestHabit asks the model for a category, tools and an estimated duration for a habit.
func (c *Client) SuggestHabit(ctx context.Context, name, description string) (models.Suggestion, error) {
	params := c.params(suggestionSystemPrompt, fmt.Sprintf("Habit: %s\nDescription: %s", name, description))
	params.ResponseFormat = jsonResponseFormat()

	text, err := c.complete(ctx, "SuggestHabit", params)
	if err != nil {
		return models.Suggestion{}, err
	}
	return ParseSuggestion(text)
}

// ParseSuggestion decodes a suggestion JSON object, tolerating a surrounding code fence.
func ParseSuggestion(text string) (models.Suggestion, error) {
	var s models.Suggestion
	if err := json.Unmarshal([]byte(stripCodeFence(text)), &s); err != nil {
		return s, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	s.Category = strings.TrimSpace(s.Category)
	if s.Category == "" {
		return s, fmt.Errorf("%w: missing category", ErrMalformedResponse)
	}
	tools := s.Tools[:0]
	for _, t := range s.Tools {
		if strings.TrimSpace(t.Name) != "" {
			tools = append(tools, t)
		}
	}
	s.Tools = tools
	return s, nil
}
