// Package command turns free-text chat messages into structured editing
// commands and renders the assistant's confirmation text.
//
// Classification is deterministic pattern matching over an ordered rule table;
// the first matching rule wins and assigns its fixed confidence.
package command

import (
	"strings"

	"github.com/anime-shed/image-editor-go/pkg/models"
)

// Classify parses a chat message. It never fails; unrecognized input yields
// an unknown intent with zero confidence.
func Classify(message string) models.ParsedCommand {
	return ClassifyWith(rules, message)
}

// ClassifyWith evaluates the given rule table in order
func ClassifyWith(table []Rule, message string) models.ParsedCommand {
	normalized := Normalize(message)
	if normalized == "" {
		return Unknown()
	}

	for _, rule := range table {
		groups, ok := rule.Match(normalized)
		if !ok {
			continue
		}
		cmd := rule.Extract(normalized, groups)
		cmd.Intent = rule.Intent
		cmd.Confidence = rule.Confidence
		return cmd
	}

	return Unknown()
}

// Unknown is the result for messages no rule recognizes
func Unknown() models.ParsedCommand {
	return models.ParsedCommand{Intent: models.IntentUnknown, Confidence: 0}
}

// Normalize lower-cases the message, trims it and collapses inner whitespace
func Normalize(message string) string {
	return strings.Join(strings.Fields(strings.ToLower(message)), " ")
}
