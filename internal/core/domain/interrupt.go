package domain

// ActionRequest names the decision a workflow is waiting on and its parameters.
type ActionRequest struct {
	Action string         `json:"action"`
	Args   map[string]any `json:"args"`
}

// InterruptConfig tells the response UI which response types are valid.
type InterruptConfig struct {
	AllowIgnore  bool `json:"allow_ignore"`
	AllowRespond bool `json:"allow_respond"`
	AllowEdit    bool `json:"allow_edit"`
	AllowAccept  bool `json:"allow_accept"`
}

// Interrupt is the canonical interrupt payload. Every interrupt handed to a
// consumer has this shape, whatever the workflow originally emitted.
type Interrupt struct {
	ActionRequest ActionRequest   `json:"action_request"`
	Config        InterruptConfig `json:"config"`
	Description   string          `json:"description,omitempty"`
}

// ResponseType is the kind of decision a human made.
type ResponseType string

const (
	ResponseAccept   ResponseType = "accept"
	ResponseEdit     ResponseType = "edit"
	ResponseResponse ResponseType = "response"
	ResponseIgnore   ResponseType = "ignore"
)

// Valid reports whether t is a known response type.
func (t ResponseType) Valid() bool {
	switch t {
	case ResponseAccept, ResponseEdit, ResponseResponse, ResponseIgnore:
		return true
	}
	return false
}

// HumanResponse is a single decision for one interrupt.
type HumanResponse struct {
	Type ResponseType `json:"type"`
	Args any          `json:"args,omitempty"`
}
