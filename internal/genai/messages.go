package genai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/flowmotion/flowmotion/internal/models"
)

// ErrMalformedResponse is returned when a reply contains none of the expected fields.
var ErrMalformedResponse = errors.New("malformed model response")

const notificationSystemPrompt = `You write short, upbeat reminder notifications for a habit tracker called FlowMotion.
For the habit you are given, write three messages of at most 20 words each:
a reminder five minutes before it starts, a message when it is time to start, and a gentle nudge when it is overdue.
Reply with exactly three lines and nothing else:
PreReminder: <message>
OnTime: <message>
Overdue: <message>`

// GenerateNotificationMessages asks the model for the three reminder messages of a habit.
// Any field the model leaves out is returned empty.
func (c *Client) GenerateNotificationMessages(ctx context.Context, habitName string) (models.NotificationMessages, error) {
	text, err := c.complete(ctx, "GenerateNotificationMessages", c.params(notificationSystemPrompt, "Habit: "+habitName))
	if err != nil {
		return models.NotificationMessages{}, err
	}
	return ParseNotificationMessages(text)
}

// ParseNotificationMessages reads "PreReminder:/OnTime:/Overdue:" lines or a JSON object
// with pre_reminder/on_time/overdue keys.
func ParseNotificationMessages(text string) (models.NotificationMessages, error) {
	var m models.NotificationMessages

	body := stripCodeFence(text)
	if strings.HasPrefix(body, "{") {
		// Values are decoded one by one so a single bad field does not discard the rest.
		var raw map[string]json.RawMessage
		if err := json.Unmarshal([]byte(body), &raw); err == nil {
			for k, v := range raw {
				var s string
				if err := json.Unmarshal(v, &s); err != nil {
					continue
				}
				setField(&m, k, s)
			}
		}
	} else {
		for _, line := range strings.Split(body, "\n") {
			key, value, ok := strings.Cut(line, ":")
			if !ok {
				continue
			}
			setField(&m, key, value)
		}
	}

	if m == (models.NotificationMessages{}) {
		return m, fmt.Errorf("%w: no reminder fields in %q", ErrMalformedResponse, truncate(text, 80))
	}
	return m, nil
}

func setField(m *models.NotificationMessages, key, value string) {
	value = strings.TrimSpace(strings.TrimLeft(strings.TrimSpace(value), "*"))
	value = strings.Trim(value, `"`)
	switch normalizeKey(key) {
	case "prereminder":
		m.PreReminder = value
	case "ontime":
		m.OnTime = value
	case "overdue":
		m.Overdue = value
	}
}

func normalizeKey(key string) string {
	key = strings.ToLower(strings.TrimSpace(key))
	key = strings.TrimLeft(key, "-*# ")
	key = strings.TrimRight(key, "* ")
	return strings.NewReplacer("_", "", "-", "", " ", "").Replace(key)
}

func stripCodeFence(text string) string {
	s := strings.TrimSpace(text)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.Index(s, "\n"); nl >= 0 {
		s = s[nl+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

// truncate shortens s to at most n runes.
func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n]) + "..."
}
