// Package insight turns one participant's gear list into short advisory notes
// produced by a text-generation model.
package insight

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jany-pan/packwise/internal/pack"
)

// MinItems is the smallest gear list worth analysing.
const MinItems = 2

// AutoItems is the list size at which front ends request insights without
// being asked, once per pack.
const AutoItems = 3

var (
	ErrTooFewItems      = errors.New("insight: at least 2 items required")
	ErrGenerationFailed = errors.New("insight: generation failed")
	ErrRateLimited      = errors.New("insight: rate limited")
)

type Priority string

const (
	PriorityHigh   Priority = "High"
	PriorityMedium Priority = "Medium"
	PriorityLow    Priority = "Low"
)

// NormalizePriority maps model output onto the three known priorities,
// anything unrecognised becomes Low.
func NormalizePriority(raw string) Priority {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "high":
		return PriorityHigh
	case "medium":
		return PriorityMedium
	default:
		return PriorityLow
	}
}

type Insight struct {
	Title    string   `json:"title"`
	Advice   string   `json:"advice"`
	Priority Priority `json:"priority"`
}

// CheckItems enforces the caller-side precondition of a generation request.
func CheckItems(items []pack.GearItem) error {
	if len(items) < MinItems {
		return ErrTooFewItems
	}
	return nil
}

// Parse decodes the model's JSON array answer.
func Parse(text string) ([]Insight, error) {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, errors.New("empty response")
	}

	var raw []struct {
		Title    string `json:"title"`
		Advice   string `json:"advice"`
		Priority string `json:"priority"`
	}
	if err := json.Unmarshal([]byte(text), &raw); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	out := make([]Insight, 0, len(raw))
	for _, r := range raw {
		if strings.TrimSpace(r.Title) == "" && strings.TrimSpace(r.Advice) == "" {
			continue
		}
		out = append(out, Insight{
			Title:    strings.TrimSpace(r.Title),
			Advice:   strings.TrimSpace(r.Advice),
			Priority: NormalizePriority(r.Priority),
		})
	}
	return out, nil
}
