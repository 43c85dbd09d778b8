package command

import (
	"sort"
	"strings"

	"github.com/arbovm/levenshtein"
	"github.com/codycollier/wer"
)

type suggestion struct {
	text     string
	wordRate float64
	distance int
}

// Suggest ranks the example commands by closeness to the message: word error
// rate first, character edit distance as tie breaker. At most n are returned.
func Suggest(message string, n int) []string {
	if n <= 0 {
		return nil
	}

	normalized := Normalize(message)
	candidate := strings.Fields(normalized)

	ranked := make([]suggestion, 0, len(ExampleCommands))
	for _, example := range ExampleCommands {
		reference := Normalize(example)
		rate, _ := wer.WER(strings.Fields(reference), candidate)
		ranked = append(ranked, suggestion{
			text:     example,
			wordRate: rate,
			distance: levenshtein.Distance(reference, normalized),
		})
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].wordRate != ranked[j].wordRate {
			return ranked[i].wordRate < ranked[j].wordRate
		}
		return ranked[i].distance < ranked[j].distance
	})

	if n > len(ranked) {
		n = len(ranked)
	}
	out := make([]string, n)
	for i := 0; i < n; i++ {
		out[i] = ranked[i].text
	}
	return out
}
