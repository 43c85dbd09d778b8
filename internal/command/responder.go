package command

import (
	"fmt"

	"github.com/anime-shed/image-editor-go/pkg/models"
)

// MinConfidence is the threshold below which the help text is returned
const MinConfidence = 0.5

// ExampleCommands are the quick actions offered to the user
var ExampleCommands = []string{
	"Remove the background",
	"Make it brighter",
	"Remove the person on the left",
	"Upscale 2x",
}

// HelpMessage is returned for commands that were not understood
const HelpMessage = "I'm not sure I understood that. Try commands like:\n" +
	"• Remove the background\n" +
	"• Make it brighter\n" +
	"• Remove the person on the left\n" +
	"• Upscale 2x"

// Respond renders the confirmation sentence for a command
func Respond(cmd models.ParsedCommand) string {
	if cmd.Confidence < MinConfidence {
		return HelpMessage
	}

	switch cmd.Intent {
	case models.IntentRemove:
		if cmd.Target == "background" {
			return "I'll remove the background from your image."
		}
		if cmd.Location != "" {
			return fmt.Sprintf("I'll remove the %s from the %s of your image.", cmd.Target, cmd.Location)
		}
		return fmt.Sprintf("I'll remove the %s from your image.", cmd.Target)

	case models.IntentAdjust:
		params := cmd.Param()
		property := params.Property
		if property == "" {
			property = cmd.Target
		}
		direction := models.DirectionDecrease
		if params.Direction == models.DirectionIncrease {
			direction = models.DirectionIncrease
		}
		return fmt.Sprintf("I'll %s the %s of your image.", direction, property)

	case models.IntentEnhance:
		if cmd.Target == "" || cmd.Target == defaultTarget {
			return "I'll enhance your image quality."
		}
		return fmt.Sprintf("I'll enhance the %s.", cmd.Target)

	case models.IntentTransform:
		return "I'll apply the transformation to your image."

	default:
		return "I'll process your request."
	}
}
