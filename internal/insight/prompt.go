package insight

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/jany-pan/packwise/internal/pack"
)

const promptTemplate = `
As an expert group trek organizer and ultralight backpacking consultant, analyze this participant's gear list for a group trip and provide 3-4 concise, actionable insights.

Stats:
Total Carried Weight: %.2f kg
Consumables (Food/Fuel): %.2f kg
Total Cost: €%s

Gear List:
%s

Look for:
1. Redundant items that could be shared (stoves, filters).
2. Distribution of food vs base weight.

IMPORTANT: Response in %s.
Format: JSON array of objects with 'title', 'advice', and 'priority' ('High', 'Medium', 'Low').
`

// BuildPrompt renders the analysis request for one participant.
func BuildPrompt(items []pack.GearItem, stats pack.Stats, lang string) string {
	lines := make([]string, 0, len(items))
	for _, item := range items {
		lines = append(lines, gearLine(item))
	}
	return fmt.Sprintf(promptTemplate,
		stats.BaseWeight/1000,
		stats.ConsumableWeight/1000,
		number(stats.TotalPrice),
		strings.Join(lines, "\n"),
		languageName(lang),
	)
}

func gearLine(item pack.GearItem) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s (Qty: %d, %s): %sg each, €%s", item.Name, item.Quantity, item.Category, number(item.Weight), number(item.Price))
	if item.IsWorn {
		b.WriteString(" [WORN]")
	}
	if item.IsConsumable {
		b.WriteString(" [CONSUMABLE]")
	}
	return b.String()
}

func number(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func languageName(lang string) string {
	if normalizeLang(lang) == "sk" {
		return "Slovak"
	}
	return "English"
}

func normalizeLang(lang string) string {
	if strings.EqualFold(strings.TrimSpace(lang), "sk") {
		return "sk"
	}
	return "en"
}
