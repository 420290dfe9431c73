// Package genaisdk is the Gemini provider built on the official Go SDK. It
// serves the same interface as the raw REST provider, so the two are
// interchangeable behind a config switch.
package genaisdk

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"google.golang.org/genai"

	"schedbot/models"
	"schedbot/stores"
)

type Genai_Model struct {
	Model        string
	SystemPrompt string

	client  *genai.Client
	timeout time.Duration
}

// NewGenai_Model creates an SDK-backed provider. An empty apiKey falls back
// to the SDK's own environment lookup.
func NewGenai_Model(ctx context.Context, model, systemPrompt, apiKey string) (*Genai_Model, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}

	return &Genai_Model{
		Model:        model,
		SystemPrompt: systemPrompt,
		client:       client,
		timeout:      60 * time.Second,
	}, nil
}

func (g *Genai_Model) Model_Request(request models.Model_Request, tools []models.FunctionDeclaration, conversationHistory []stores.Message) (models.Model_Response, error) {
	if request.User_Message == nil && request.Tool_Results == nil {
		return models.Model_Response{}, fmt.Errorf("request must contain either user message or tool results")
	}

	modelToUse := g.Model
	if modelToUse == "" {
		modelToUse = "gemini-2.0-flash"
	}

	contents := historyToContents(conversationHistory)

	if request.Tool_Results != nil && len(*request.Tool_Results) > 0 {
		for _, tr := range *request.Tool_Results {
			var respMap map[string]any
			if err := json.Unmarshal([]byte(tr.Tool_Output), &respMap); err != nil {
				respMap = map[string]any{"output": tr.Tool_Output}
			}
			part := genai.NewPartFromFunctionResponse(tr.Tool_Name, respMap)
			contents = append(contents, genai.NewContentFromParts([]*genai.Part{part}, genai.RoleUser))
		}
	} else if request.User_Message != nil {
		var parts []*genai.Part
		for _, p := range request.User_Message.Content.Parts {
			if p.Text != "" {
				parts = append(parts, genai.NewPartFromText(p.Text))
			}
		}
		if len(parts) > 0 {
			contents = append(contents, genai.NewContentFromParts(parts, genai.RoleUser))
		}
	}

	if len(contents) == 0 {
		return models.Model_Response{}, fmt.Errorf("cannot create request with no content (history, tool results, or user message)")
	}

	config := &genai.GenerateContentConfig{}
	if g.SystemPrompt != "" {
		config.SystemInstruction = genai.NewContentFromText(g.SystemPrompt, genai.RoleUser)
	}
	if len(tools) > 0 {
		config.Tools = []*genai.Tool{{FunctionDeclarations: convertDeclarations(tools)}}
	}

	ctx, cancel := context.WithTimeout(context.Background(), g.timeout)
	defer cancel()

	result, err := g.client.Models.GenerateContent(ctx, modelToUse, contents, config)
	if err != nil {
		return models.Model_Response{}, fmt.Errorf("genai request failed: %w", err)
	}

	response := models.Model_Response{}
	for _, candidate := range result.Candidates {
		if candidate.Content == nil {
			continue
		}
		for _, part := range candidate.Content.Parts {
			var modelPart models.Model_Part
			if part.Text != "" {
				text := part.Text
				modelPart.Text = &text
			}
			if part.FunctionCall != nil {
				modelPart.FunctionCall = &models.FunctionCall{
					Name: part.FunctionCall.Name,
					Args: part.FunctionCall.Args,
				}
			}
			response.Parts = append(response.Parts, modelPart)
		}
	}

	if raw, err := json.Marshal(result); err == nil {
		response.Raw = raw
	}

	return response, nil
}

// historyToContents replays persisted history as SDK content blocks.
func historyToContents(history []stores.Message) []*genai.Content {
	var contents []*genai.Content
	for _, histMsg := range history {
		if histMsg.PartsJSON == "" || histMsg.PartsJSON == "{}" || histMsg.PartsJSON == "null" {
			continue
		}

		var parts []*genai.Part
		role := genai.RoleUser

		switch histMsg.Role {
		case "user":
			var userParts []models.User_Part
			if err := json.Unmarshal([]byte(histMsg.PartsJSON), &userParts); err != nil {
				log.Printf("Warning: Failed to unmarshal PartsJSON for user history message %d: %v", histMsg.ID, err)
				continue
			}
			for _, p := range userParts {
				if p.FunctionResponse != nil {
					parts = append(parts, genai.NewPartFromFunctionResponse(p.FunctionResponse.Name, p.FunctionResponse.Response))
				} else if p.Text != "" {
					parts = append(parts, genai.NewPartFromText(p.Text))
				}
			}
		case "model":
			role = genai.RoleModel
			var modelParts []models.Model_Part
			if err := json.Unmarshal([]byte(histMsg.PartsJSON), &modelParts); err != nil {
				log.Printf("Warning: Failed to unmarshal PartsJSON for model history message %d: %v", histMsg.ID, err)
				continue
			}
			for _, p := range modelParts {
				if p.FunctionCall != nil {
					parts = append(parts, genai.NewPartFromFunctionCall(p.FunctionCall.Name, p.FunctionCall.Args))
				} else if p.Text != nil && *p.Text != "" {
					parts = append(parts, genai.NewPartFromText(*p.Text))
				}
			}
		default:
			log.Printf("Warning: Unknown role '%s' for history message %d", histMsg.Role, histMsg.ID)
			continue
		}

		if len(parts) > 0 {
			contents = append(contents, genai.NewContentFromParts(parts, genai.Role(role)))
		}
	}
	return contents
}

func convertDeclarations(decls []models.FunctionDeclaration) []*genai.FunctionDeclaration {
	result := make([]*genai.FunctionDeclaration, len(decls))
	for i, d := range decls {
		result[i] = &genai.FunctionDeclaration{
			Name:        d.Name,
			Description: d.Description,
			Parameters: &genai.Schema{
				Type:       genai.TypeObject,
				Properties: convertProperties(d.Parameters.Properties),
				Required:   d.Parameters.Required,
			},
		}
	}
	return result
}

func convertProperties(props map[string]interface{}) map[string]*genai.Schema {
	result := make(map[string]*genai.Schema, len(props))
	for name, raw := range props {
		result[name] = convertProperty(raw)
	}
	return result
}

// convertProperty maps a loosely typed JSON-schema property onto the SDK's
// schema type. Anything unrecognized becomes a string property rather than an
// error; a weaker schema only loosens validation on the model side.
func convertProperty(raw interface{}) *genai.Schema {
	prop, ok := raw.(map[string]interface{})
	if !ok {
		return &genai.Schema{Type: genai.TypeString}
	}

	schema := &genai.Schema{Type: schemaType(prop["type"])}
	if desc, ok := prop["description"].(string); ok {
		schema.Description = desc
	}
	if schema.Type == genai.TypeArray {
		if items, ok := prop["items"]; ok {
			schema.Items = convertProperty(items)
		} else {
			schema.Items = &genai.Schema{Type: genai.TypeString}
		}
	}
	if schema.Type == genai.TypeObject {
		if nested, ok := prop["properties"].(map[string]interface{}); ok {
			schema.Properties = convertProperties(nested)
		}
	}
	return schema
}

func schemaType(raw interface{}) genai.Type {
	s, _ := raw.(string)
	switch s {
	case "string":
		return genai.TypeString
	case "integer":
		return genai.TypeInteger
	case "number":
		return genai.TypeNumber
	case "boolean":
		return genai.TypeBoolean
	case "array":
		return genai.TypeArray
	case "object":
		return genai.TypeObject
	default:
		return genai.TypeString
	}
}
