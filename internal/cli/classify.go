package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/anime-shed/image-editor-go/internal/command"
	"github.com/anime-shed/image-editor-go/internal/operation"
	"github.com/anime-shed/image-editor-go/internal/service"
	"github.com/anime-shed/image-editor-go/pkg/models"
)

func newClassifyCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "classify <message>",
		Short: "Interpret a chat message as an edit command",
		Example: `  imgctl classify "remove the dog from the left"
  imgctl classify --json make it brighter`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runClassify(cmd.OutOrStdout(), strings.Join(args, " "), asJSON)
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the result as JSON")
	return cmd
}

func runClassify(w io.Writer, message string, asJSON bool) error {
	cmd := command.Classify(message)
	resp := models.ChatResponse{
		Reply:     command.Respond(cmd),
		Command:   cmd,
		Operation: operation.ToOperation(cmd),
	}
	if cmd.Intent == models.IntentUnknown {
		resp.Suggestions = command.Suggest(message, service.SuggestionCount)
	}

	if asJSON {
		return writeJSON(w, resp)
	}

	fmt.Fprintf(w, "Intent:     %s\n", cmd.Intent)
	fmt.Fprintf(w, "Confidence: %.2f\n", cmd.Confidence)
	if cmd.Target != "" {
		fmt.Fprintf(w, "Target:     %s\n", cmd.Target)
	}
	if cmd.Location != "" {
		fmt.Fprintf(w, "Location:   %s\n", cmd.Location)
	}
	fmt.Fprintf(w, "Operation:  %s %s\n", resp.Operation.Kind, formatParams(resp.Operation.Params))
	fmt.Fprintf(w, "\n%s\n", resp.Reply)
	if len(resp.Suggestions) > 0 {
		fmt.Fprintln(w, "\nDid you mean:")
		for _, s := range resp.Suggestions {
			fmt.Fprintf(w, "  %s\n", s)
		}
	}
	return nil
}

func formatParams(params map[string]any) string {
	if len(params) == 0 {
		return "{}"
	}
	data, err := json.Marshal(params)
	if err != nil {
		return fmt.Sprint(params)
	}
	return string(data)
}
