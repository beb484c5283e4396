package classify

import (
	"context"
	"strings"
)

var keywordTable = []struct {
	category string
	words    []string
}{
	{Maintenance, []string{"broken", "leak", "repair", "fix", "not working", "ac", "air condition", "light", "toilet", "shower", "tv", "heater", "clogged"}},
	{Housekeeping, []string{"towel", "clean", "sheet", "pillow", "blanket", "toilet paper", "soap", "shampoo", "trash", "housekeeping", "bed"}},
	{RoomService, []string{"food", "breakfast", "dinner", "lunch", "coffee", "tea", "menu", "order", "drink", "water", "ice"}},
}

// Keywords classifies by substring match. It needs no provider and is used
// when no classifier API key is configured.
type Keywords struct{}

// Classify implements Classifier.
func (Keywords) Classify(_ context.Context, requestText string) (string, error) {
	text := " " + strings.ToLower(requestText) + " "
	for _, row := range keywordTable {
		for _, w := range row.words {
			if strings.Contains(text, " "+w) {
				return row.category, nil
			}
		}
	}
	return Default, nil
}
