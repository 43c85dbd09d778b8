package command

import (
	"regexp"
	"strings"

	"github.com/anime-shed/image-editor-go/pkg/models"
)

// Fixed per-tier confidences. They are not derived from match quality.
const (
	ConfidenceBackground  = 0.95
	ConfidenceRemove      = 0.85
	ConfidenceAdjust      = 0.8
	ConfidenceEnhance     = 0.8
	defaultTarget         = "image"
	defaultAdjustProperty = "intensity"
)

// Matcher is a rule predicate. It returns the trimmed named captures of the
// first pattern that matches the normalized message.
type Matcher func(message string) (map[string]string, bool)

// Extractor builds the command fields of a matched rule.
// Intent and Confidence are filled in from the rule itself.
type Extractor func(message string, groups map[string]string) models.ParsedCommand

// Rule is one row of the ordered classification table
type Rule struct {
	Name       string
	Intent     models.Intent
	Confidence float64
	Match      Matcher
	Extract    Extractor
}

// increaseWords decide the direction of an adjustment by substring presence
var increaseWords = []string{"more", "increase", "boost", "brighter", "lighter"}

var comparativeProperties = map[string]string{
	"brighter": "brightness",
	"darker":   "brightness",
	"lighter":  "brightness",
	"sharper":  "sharpness",
	"softer":   "sharpness",
}

var scaleFactor = regexp.MustCompile(`^(?:x\s*)?\d+(?:\.\d+)?\s*x?$`)

// rules is evaluated top to bottom and the first match wins
var rules = []Rule{
	{
		Name:       "background_removal",
		Intent:     models.IntentRemove,
		Confidence: ConfidenceBackground,
		Match: anyPattern(
			`remove (?:the )?background`,
			`delete (?:the )?background`,
			`transparent background`,
		),
		Extract: func(string, map[string]string) models.ParsedCommand {
			return models.ParsedCommand{Target: "background"}
		},
	},
	{
		Name:       "object_removal",
		Intent:     models.IntentRemove,
		Confidence: ConfidenceRemove,
		Match: requireTarget(anyPattern(
			`(?:remove|delete|erase|get rid of) (?:the )?(?P<target>.+?)(?: (?:from|in|on|at)(?: the)? (?P<location>.+))?$`,
		)),
		Extract: func(_ string, g map[string]string) models.ParsedCommand {
			return models.ParsedCommand{Target: g["target"], Location: g["location"]}
		},
	},
	{
		Name:       "adjustment",
		Intent:     models.IntentAdjust,
		Confidence: ConfidenceAdjust,
		Match: anyPattern(
			`make (?:it |the )?(?:(?P<target>.+?) )?(?P<comparative>more|less|brighter|darker|lighter)(?: (?:by )?(?P<value>.+))?$`,
			`(?:increase|decrease|boost|reduce) (?:the )?(?P<property>.+?)(?: by (?P<value>.+))?$`,
			`(?P<comparative>brighter|darker|lighter|sharper|softer)`,
		),
		Extract: extractAdjustment,
	},
	{
		Name:       "enhancement",
		Intent:     models.IntentEnhance,
		Confidence: ConfidenceEnhance,
		Match: anyPattern(
			`(?:enhance|improve|restore)(?: (?:the )?(?P<target>.+))?$`,
			`upscale(?: by)?(?: (?:the )?(?P<target>.+))?$`,
		),
		Extract: extractEnhancement,
	},
}

// Rules returns a copy of the classification table in evaluation order
func Rules() []Rule {
	return append([]Rule(nil), rules...)
}

func extractAdjustment(message string, g map[string]string) models.ParsedCommand {
	property := g["property"]
	value := g["value"]
	if comparative := g["comparative"]; comparative != "" {
		if p, ok := comparativeProperties[comparative]; ok {
			property = p
		} else {
			// "more"/"less" name the property after them: "more vibrant"
			property, value = value, ""
		}
	}
	if property == "" {
		property = defaultAdjustProperty
	}

	target := g["target"]
	if target == "" {
		target = g["property"]
	}
	if target == "" {
		target = defaultTarget
	}

	direction := models.DirectionDecrease
	if containsAny(message, increaseWords) {
		direction = models.DirectionIncrease
	}

	return models.ParsedCommand{
		Target: target,
		Parameters: &models.Parameters{
			Property:  property,
			Value:     value,
			Direction: direction,
		},
	}
}

func extractEnhancement(_ string, g map[string]string) models.ParsedCommand {
	captured := g["target"]
	cmd := models.ParsedCommand{Target: captured}
	if captured == "" || scaleFactor.MatchString(captured) {
		cmd.Target = defaultTarget
	}
	if captured != "" {
		cmd.Parameters = &models.Parameters{Value: captured}
	}
	return cmd
}

func anyPattern(patterns ...string) Matcher {
	compiled := make([]*regexp.Regexp, len(patterns))
	for i, p := range patterns {
		compiled[i] = regexp.MustCompile(p)
	}

	return func(message string) (map[string]string, bool) {
		for _, re := range compiled {
			m := re.FindStringSubmatch(message)
			if m == nil {
				continue
			}
			groups := make(map[string]string)
			for i, name := range re.SubexpNames() {
				if name != "" && i < len(m) {
					groups[name] = strings.TrimSpace(m[i])
				}
			}
			return groups, true
		}
		return nil, false
	}
}

// requireTarget rejects matches whose target is missing or only an article,
// as in "remove the".
func requireTarget(m Matcher) Matcher {
	return func(message string) (map[string]string, bool) {
		groups, ok := m(message)
		if !ok {
			return nil, false
		}
		if target := groups["target"]; target == "" || target == "the" {
			return nil, false
		}
		return groups, true
	}
}

func containsAny(s string, words []string) bool {
	for _, w := range words {
		if strings.Contains(s, w) {
			return true
		}
	}
	return false
}
