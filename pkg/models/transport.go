package models

// ChatRequest is a free-text chat message.
// When Apply is set and the command maps to a known operation, a batch over the
// current selection is started.
type ChatRequest struct {
	Message string `json:"message" binding:"required"`
	Apply   bool   `json:"apply,omitempty"`
}

// ChatResponse is the assistant reply to a chat message
type ChatResponse struct {
	Reply       string        `json:"reply"`
	Command     ParsedCommand `json:"command"`
	Operation   Operation     `json:"operation"`
	Suggestions []string      `json:"suggestions,omitempty"`
	Job         *BatchJob     `json:"job,omitempty"`
}

// BatchRequest starts a batch over the current selection with an explicit operation
type BatchRequest struct {
	Operation string         `json:"operation" binding:"required"`
	Params    map[string]any `json:"params,omitempty"`
}

// URLIngestRequest adds an image to the gallery by fetching it from a URL
type URLIngestRequest struct {
	URL string `json:"url" binding:"required,url"`
}

// RequeueRequest turns terminal items into fresh pending items
type RequeueRequest struct {
	IDs []string `json:"ids" binding:"required"`
}

// SelectionResponse lists the selected gallery item ids in selection order
type SelectionResponse struct {
	IDs []string `json:"ids"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
	Details string `json:"details,omitempty"`
}
