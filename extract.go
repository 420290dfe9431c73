package schedbot

import (
	"encoding/json"
	"strings"

	"schedbot/models"
)

// ExtractCalls pulls every function call out of a model response. Providers
// differ in how faithfully they decode responses, and the API occasionally
// returns shapes the decoded structs miss, so extraction runs in three
// tiers, each engaging only when the previous one produced nothing:
//
//  1. the decoded parts, when the response carries them
//  2. a typed walk of the raw body: candidates > content > parts > functionCall
//  3. a full recursive scan of the first candidate for anything shaped like
//     a function call
//
// Extraction never panics; a malformed response yields an empty slice.
func ExtractCalls(response models.Model_Response) (calls []models.FunctionCall) {
	defer func() {
		if recover() != nil {
			calls = nil
		}
	}()

	if parts, ok := response.TryParts(); ok {
		for _, part := range parts {
			if part.FunctionCall != nil && part.FunctionCall.Name != "" {
				calls = append(calls, *part.FunctionCall)
			}
		}
		if len(calls) > 0 {
			return calls
		}
	}

	raw, ok := response.TryRaw()
	if !ok {
		return nil
	}
	var doc map[string]interface{}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil
	}
	candidates, _ := doc["candidates"].([]interface{})
	if len(candidates) == 0 {
		return nil
	}

	for _, c := range candidates {
		candidate, ok := c.(map[string]interface{})
		if !ok {
			continue
		}
		content, ok := candidate["content"].(map[string]interface{})
		if !ok {
			continue
		}
		parts, ok := content["parts"].([]interface{})
		if !ok {
			continue
		}
		for _, p := range parts {
			part, ok := p.(map[string]interface{})
			if !ok {
				continue
			}
			if call, ok := callFromNode(part); ok {
				calls = append(calls, call)
			}
		}
	}
	if len(calls) > 0 {
		return calls
	}

	scanForCalls(candidates[0], &calls)
	return calls
}

// ExtractText concatenates the text parts of a response, falling back to the
// raw body the same way ExtractCalls does.
func ExtractText(response models.Model_Response) (text string) {
	defer func() {
		if recover() != nil {
			text = ""
		}
	}()

	var b strings.Builder
	if parts, ok := response.TryParts(); ok {
		for _, part := range parts {
			if part.Text != nil {
				b.WriteString(*part.Text)
			}
		}
		if b.Len() > 0 {
			return b.String()
		}
	}

	raw, ok := response.TryRaw()
	if !ok {
		return ""
	}
	var doc map[string]interface{}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return ""
	}
	candidates, _ := doc["candidates"].([]interface{})
	for _, c := range candidates {
		candidate, ok := c.(map[string]interface{})
		if !ok {
			continue
		}
		content, ok := candidate["content"].(map[string]interface{})
		if !ok {
			continue
		}
		parts, ok := content["parts"].([]interface{})
		if !ok {
			continue
		}
		for _, p := range parts {
			part, ok := p.(map[string]interface{})
			if !ok {
				continue
			}
			if s, ok := part["text"].(string); ok {
				b.WriteString(s)
			}
		}
	}
	return b.String()
}

// callFromNode recognizes a part-level node holding a function call under
// either the camelCase or snake_case key.
func callFromNode(node map[string]interface{}) (models.FunctionCall, bool) {
	for _, key := range []string{"functionCall", "function_call"} {
		if fc, ok := node[key].(map[string]interface{}); ok {
			return callFromMap(fc)
		}
	}
	return models.FunctionCall{}, false
}

func callFromMap(fc map[string]interface{}) (models.FunctionCall, bool) {
	name, _ := fc["name"].(string)
	if name == "" {
		return models.FunctionCall{}, false
	}
	args, _ := fc["args"].(map[string]interface{})
	if args == nil {
		args = map[string]interface{}{}
	}
	return models.FunctionCall{Name: name, Args: args}, true
}

// scanForCalls recursively searches a decoded JSON tree for function-call
// shaped nodes. Once a node yields a call its children are not descended
// into, so args holding nested objects are not double-counted.
func scanForCalls(node interface{}, calls *[]models.FunctionCall) {
	switch v := node.(type) {
	case map[string]interface{}:
		if call, ok := callFromNode(v); ok {
			*calls = append(*calls, call)
			return
		}
		for _, child := range v {
			scanForCalls(child, calls)
		}
	case []interface{}:
		for _, child := range v {
			scanForCalls(child, calls)
		}
	}
}
