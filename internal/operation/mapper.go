// Package operation maps parsed chat commands onto concrete backend operations.
package operation

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/anime-shed/image-editor-go/pkg/models"
)

// DefaultUpscale is the scale applied when an enhancement mentions "2"/"2x"
const DefaultUpscale = 2

// batchKinds are the operations that can be requested explicitly for a batch
var batchKinds = map[models.OperationKind]bool{
	models.OpRemoveBackground: true,
	models.OpInpaint:          true,
	models.OpUpscale:          true,
	models.OpAdjust:           true,
	models.OpEnhance:          true,
	models.OpRestore:          true,
}

// ToOperation is a pure function of the command: identical input always
// yields an identical operation.
func ToOperation(cmd models.ParsedCommand) models.Operation {
	params := cmd.Param()

	switch cmd.Intent {
	case models.IntentRemove:
		if cmd.Target == "background" {
			return New(models.OpRemoveBackground, nil)
		}
		op := New(models.OpInpaint, map[string]any{"target": cmd.Target})
		if cmd.Location != "" {
			op.Params["location"] = cmd.Location
		}
		return op

	case models.IntentAdjust:
		op := New(models.OpAdjust, map[string]any{
			"property":  params.Property,
			"direction": string(params.Direction),
		})
		if params.Value != "" {
			op.Params["value"] = numericOrString(params.Value)
		}
		return op

	case models.IntentEnhance:
		if strings.Contains(params.Value, "2x") || strings.Contains(params.Value, "2") {
			return New(models.OpUpscale, map[string]any{"scale": DefaultUpscale})
		}
		return New(models.OpEnhance, nil)

	default:
		return New(models.OpUnknown, nil)
	}
}

// New builds an operation with a private copy of params, never nil
func New(kind models.OperationKind, params map[string]any) models.Operation {
	return models.Operation{Kind: kind, Params: params}.Clone()
}

// ParseKind validates an explicitly requested batch operation kind
func ParseKind(kind string) (models.OperationKind, error) {
	k := models.OperationKind(strings.ToLower(strings.TrimSpace(kind)))
	if !batchKinds[k] {
		return "", fmt.Errorf("unsupported operation %q", kind)
	}
	return k, nil
}

// IsExecutable reports whether the backend can run the operation
func IsExecutable(op models.Operation) bool {
	return batchKinds[op.Kind]
}

func numericOrString(value string) any {
	if f, err := strconv.ParseFloat(value, 64); err == nil {
		return f
	}
	return value
}
