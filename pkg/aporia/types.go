package aporia

import (
	"bytes"
	"encoding/json"
)

// Action is the decision returned by the policy service
type Action string

const (
	ActionPassthrough Action = "passthrough"
	ActionBlock       Action = "block"
	ActionModify      Action = "modify"
	ActionRephrase    Action = "rephrase"
)

// Valid reports whether a is one of the recognized actions
func (a Action) Valid() bool {
	switch a {
	case ActionPassthrough, ActionBlock, ActionModify, ActionRephrase:
		return true
	}
	return false
}

// ShouldBlock reports whether the original content must be replaced
func (a Action) ShouldBlock() bool {
	return a == ActionBlock || a == ActionModify || a == ActionRephrase
}

// Target selects which side of the conversation is validated
type Target string

const (
	TargetPrompt   Target = "prompt"
	TargetResponse Target = "response"
)

// Message is the wire form of a conversation message
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ValidationRequest is the body POSTed to the validate endpoint
type ValidationRequest struct {
	Messages         []Message `json:"messages"`
	Response         string    `json:"response"`
	ValidationTarget Target    `json:"validation_target"`
}

// ValidationResponse is the decoded reply of the validate endpoint.
// Only Action and RevisedResponse carry meaning; everything else the
// service returns is kept in Extra.
type ValidationResponse struct {
	Action          Action
	RevisedResponse *string
	Extra           map[string]json.RawMessage
}

// ShouldBlock reports whether the validated content must be replaced
func (r *ValidationResponse) ShouldBlock() bool {
	return r != nil && r.Action.ShouldBlock()
}

// Revised returns the revised text, or fallback when the service sent none
func (r *ValidationResponse) Revised(fallback string) string {
	if r == nil || r.RevisedResponse == nil {
		return fallback
	}
	return *r.RevisedResponse
}

// UnmarshalJSON checks the response shape while tolerating unknown fields
func (r *ValidationResponse) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return &SchemaError{Field: "", Reason: "body is not a JSON object", Err: err}
	}

	actionRaw, ok := raw["action"]
	if !ok {
		return &SchemaError{Field: "action", Reason: "missing"}
	}
	var action Action
	if err := json.Unmarshal(actionRaw, &action); err != nil {
		return &SchemaError{Field: "action", Reason: "not a string", Err: err}
	}
	if !action.Valid() {
		return &SchemaError{Field: "action", Reason: "unrecognized value " + string(action)}
	}

	var revised *string
	if revisedRaw, ok := raw["revised_response"]; ok && !bytes.Equal(bytes.TrimSpace(revisedRaw), []byte("null")) {
		var s string
		if err := json.Unmarshal(revisedRaw, &s); err != nil {
			return &SchemaError{Field: "revised_response", Reason: "not a string or null", Err: err}
		}
		revised = &s
	}

	delete(raw, "action")
	delete(raw, "revised_response")

	r.Action = action
	r.RevisedResponse = revised
	r.Extra = raw
	return nil
}
