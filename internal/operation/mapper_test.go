package operation

import (
	"reflect"
	"testing"

	"github.com/anime-shed/image-editor-go/internal/command"
	"github.com/anime-shed/image-editor-go/pkg/models"
)

func TestToOperation(t *testing.T) {
	tests := []struct {
		name string
		cmd  models.ParsedCommand
		want models.Operation
	}{
		{
			name: "background removal",
			cmd:  models.ParsedCommand{Intent: models.IntentRemove, Target: "background"},
			want: models.Operation{Kind: models.OpRemoveBackground, Params: map[string]any{}},
		},
		{
			name: "inpaint with location",
			cmd:  models.ParsedCommand{Intent: models.IntentRemove, Target: "dog", Location: "left", Confidence: 0.85},
			want: models.Operation{Kind: models.OpInpaint, Params: map[string]any{"target": "dog", "location": "left"}},
		},
		{
			name: "inpaint without location",
			cmd:  models.ParsedCommand{Intent: models.IntentRemove, Target: "person"},
			want: models.Operation{Kind: models.OpInpaint, Params: map[string]any{"target": "person"}},
		},
		{
			name: "adjust with numeric value",
			cmd: models.ParsedCommand{Intent: models.IntentAdjust, Target: "contrast", Parameters: &models.Parameters{
				Property: "contrast", Value: "20", Direction: models.DirectionIncrease,
			}},
			want: models.Operation{Kind: models.OpAdjust, Params: map[string]any{
				"property": "contrast", "direction": "increase", "value": 20.0,
			}},
		},
		{
			name: "adjust with textual value",
			cmd: models.ParsedCommand{Intent: models.IntentAdjust, Parameters: &models.Parameters{
				Property: "brightness", Value: "20%", Direction: models.DirectionDecrease,
			}},
			want: models.Operation{Kind: models.OpAdjust, Params: map[string]any{
				"property": "brightness", "direction": "decrease", "value": "20%",
			}},
		},
		{
			name: "upscale 2x",
			cmd:  models.ParsedCommand{Intent: models.IntentEnhance, Parameters: &models.Parameters{Value: "2x"}},
			want: models.Operation{Kind: models.OpUpscale, Params: map[string]any{"scale": 2}},
		},
		{
			name: "value containing 2",
			cmd:  models.ParsedCommand{Intent: models.IntentEnhance, Parameters: &models.Parameters{Value: "by 2"}},
			want: models.Operation{Kind: models.OpUpscale, Params: map[string]any{"scale": 2}},
		},
		{
			name: "plain enhance",
			cmd:  models.ParsedCommand{Intent: models.IntentEnhance, Target: "face", Parameters: &models.Parameters{Value: "face"}},
			want: models.Operation{Kind: models.OpEnhance, Params: map[string]any{}},
		},
		{
			name: "enhance without parameters",
			cmd:  models.ParsedCommand{Intent: models.IntentEnhance, Target: "image"},
			want: models.Operation{Kind: models.OpEnhance, Params: map[string]any{}},
		},
		{
			name: "transform",
			cmd:  models.ParsedCommand{Intent: models.IntentTransform, Confidence: 0.9},
			want: models.Operation{Kind: models.OpUnknown, Params: map[string]any{}},
		},
		{
			name: "unknown",
			cmd:  models.ParsedCommand{Intent: models.IntentUnknown},
			want: models.Operation{Kind: models.OpUnknown, Params: map[string]any{}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ToOperation(tt.cmd)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Expected %+v, got %+v", tt.want, got)
			}
		})
	}
}

func TestToOperation_Pure(t *testing.T) {
	cmd := command.Classify("remove the dog from the left")
	first := ToOperation(cmd)

	// Mutating a returned operation must not leak into later results.
	first.Params["target"] = "cat"

	second := ToOperation(cmd)
	third := ToOperation(cmd)
	if !reflect.DeepEqual(second, third) {
		t.Errorf("Expected identical operations, got %+v and %+v", second, third)
	}
	if second.Params["target"] != "dog" {
		t.Errorf("Expected target dog, got %v", second.Params["target"])
	}
}

func TestToOperation_FromChat(t *testing.T) {
	tests := map[string]models.OperationKind{
		"Remove the background":         models.OpRemoveBackground,
		"Make it brighter":              models.OpAdjust,
		"Remove the person on the left": models.OpInpaint,
		"Upscale 2x":                    models.OpUpscale,
		"enhance the colors":            models.OpEnhance,
		"xyzzy plugh":                   models.OpUnknown,
	}

	for message, want := range tests {
		if got := ToOperation(command.Classify(message)).Kind; got != want {
			t.Errorf("%q: expected %s, got %s", message, want, got)
		}
	}
}

func TestParseKind(t *testing.T) {
	valid := []string{"remove_bg", "inpaint", " Upscale ", "restore", "enhance", "adjust"}
	for _, k := range valid {
		if _, err := ParseKind(k); err != nil {
			t.Errorf("Expected %q to be accepted, got %v", k, err)
		}
	}

	invalid := []string{"", "unknown", "rotate"}
	for _, k := range invalid {
		if _, err := ParseKind(k); err == nil {
			t.Errorf("Expected %q to be rejected", k)
		}
	}
}

func TestIsExecutable(t *testing.T) {
	if IsExecutable(New(models.OpUnknown, nil)) {
		t.Error("Expected unknown operation to be non-executable")
	}
	if !IsExecutable(New(models.OpInpaint, map[string]any{"target": "dog"})) {
		t.Error("Expected inpaint to be executable")
	}
}
