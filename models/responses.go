package models

import "encoding/json"

// Model_Response is what a provider hands back for one turn. Parts is the
// structured accessor; Raw keeps the provider's serialized payload so the
// extraction tiers can fall back to it when the structured parts are
// incomplete (some provider versions populate one but not the other).
type Model_Response struct {
	Parts []Model_Part    `json:"parts"`
	Raw   json.RawMessage `json:"-"`
}

// TryParts exposes the structured content parts, if any.
func (r Model_Response) TryParts() ([]Model_Part, bool) {
	if len(r.Parts) == 0 {
		return nil, false
	}
	return r.Parts, true
}

// TryRaw exposes the provider's raw payload, if the provider recorded one.
func (r Model_Response) TryRaw() (json.RawMessage, bool) {
	if len(r.Raw) == 0 {
		return nil, false
	}
	return r.Raw, true
}

//may be a string or a function call and it will be parts

type FunctionCall struct {
	Name string                 `json:"name"`
	Args map[string]interface{} `json:"args"`
}

type Model_Part struct {
	Text         *string       `json:"text,omitempty"`
	FunctionCall *FunctionCall `json:"functionCall,omitempty"`
}
