package state

import (
	"fmt"
	"html"
	"strings"

	"webclassifier/internal/models"
)

// Separator joins rendered predictions.
const Separator = "<br />"

// Render formats predictions as "label: 0.87" lines joined by Separator.
// The probability is printed as-is with two decimals, it is not scaled to a
// percentage. Labels are HTML-escaped since the result is inserted as markup.
func Render(preds []models.Prediction) string {
	lines := make([]string, 0, len(preds))
	for _, p := range preds {
		lines = append(lines, fmt.Sprintf("%s: %.2f", html.EscapeString(p.Label), p.Probability))
	}
	return strings.Join(lines, Separator)
}
