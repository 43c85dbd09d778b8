package models

// Intent is the coarse category of an edit requested in a chat message
type Intent string

const (
	IntentRemove    Intent = "remove"
	IntentAdjust    Intent = "adjust"
	IntentEnhance   Intent = "enhance"
	IntentTransform Intent = "transform"
	IntentUnknown   Intent = "unknown"
)

// Direction says whether an adjustment raises or lowers a property
type Direction string

const (
	DirectionIncrease Direction = "increase"
	DirectionDecrease Direction = "decrease"
)

// Parameters holds the optional details extracted for a command.
// Value keeps the raw captured text; numeric values are converted by the
// operation mapper.
type Parameters struct {
	Property  string    `json:"property,omitempty"`
	Value     string    `json:"value,omitempty"`
	Direction Direction `json:"direction,omitempty"`
}

// ParsedCommand is the structured, confidence-scored form of a chat message
type ParsedCommand struct {
	Intent     Intent      `json:"intent"`
	Target     string      `json:"target,omitempty"`
	Location   string      `json:"location,omitempty"`
	Parameters *Parameters `json:"parameters,omitempty"`
	Confidence float64     `json:"confidence"`
}

// Param returns the command parameters, never nil
func (c ParsedCommand) Param() Parameters {
	if c.Parameters == nil {
		return Parameters{}
	}
	return *c.Parameters
}

// OperationKind names a concrete backend action
type OperationKind string

const (
	OpRemoveBackground OperationKind = "remove_bg"
	OpInpaint          OperationKind = "inpaint"
	OpUpscale          OperationKind = "upscale"
	OpAdjust           OperationKind = "adjust"
	OpEnhance          OperationKind = "enhance"
	OpRestore          OperationKind = "restore"
	OpUnknown          OperationKind = "unknown"
)

// Operation is the backend action plus its parameters
type Operation struct {
	Kind   OperationKind  `json:"kind"`
	Params map[string]any `json:"params"`
}

// Clone returns a copy whose params map is not shared with the receiver
func (o Operation) Clone() Operation {
	params := make(map[string]any, len(o.Params))
	for k, v := range o.Params {
		params[k] = v
	}
	return Operation{Kind: o.Kind, Params: params}
}
