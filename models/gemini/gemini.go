// Package gemini talks to the Gemini REST API directly. Responses keep the
// raw body alongside the decoded parts so callers can fall back to their own
// extraction when the decoded shape comes back empty.
package gemini

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	"schedbot/models"
	"schedbot/stores"
)

const defaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"

type Gemini_Model struct {
	Model        string `json:"model"`
	SystemPrompt string `json:"system_prompt,omitempty"`

	BaseURL    string       `json:"-"`
	APIKey     string       `json:"-"`
	HTTPClient *http.Client `json:"-"`
}

func (g *Gemini_Model) Model_Request(request models.Model_Request, tools []models.FunctionDeclaration, conversationHistory []stores.Message) (models.Model_Response, error) {
	// Allow request if either User_Message OR Tool_Results are present
	if request.User_Message == nil && request.Tool_Results == nil {
		return models.Model_Response{}, fmt.Errorf("request must contain either user message or tool results")
	}

	var msg models.User_Message
	if request.User_Message != nil {
		msg = *request.User_Message
	}

	modelToUse := g.Model
	if modelToUse == "" {
		modelToUse = "gemini-2.0-flash"
	}

	request_body, err := create_gemini_request(msg, tools, request.Tool_Results, conversationHistory, g.SystemPrompt)
	if err != nil {
		return models.Model_Response{}, fmt.Errorf("failed to create gemini request: %w", err)
	}

	jsonBytes, err := json.Marshal(request_body)
	if err != nil {
		return models.Model_Response{}, fmt.Errorf("failed to marshal request body: %w", err)
	}

	raw, geminiResponse, err := g.make_request(string(jsonBytes), modelToUse)
	if err != nil {
		return models.Model_Response{}, err
	}

	modelResponse := gemini_response_to_model_response(geminiResponse)
	modelResponse.Raw = raw
	return modelResponse, nil
}

func gemini_response_to_model_response(response Gemini_response) models.Model_Response {
	modelResponse := models.Model_Response{}
	for _, candidate := range response.Candidates {
		for _, part := range candidate.Content.Parts {
			var modelPart models.Model_Part
			if part.Text != nil && *part.Text != "" {
				modelPart.Text = part.Text
			}
			if part.FunctionCall != nil {
				modelPart.FunctionCall = &models.FunctionCall{
					Name: part.FunctionCall.Name,
					Args: part.FunctionCall.Args,
				}
			}
			modelResponse.Parts = append(modelResponse.Parts, modelPart)
		}
	}
	return modelResponse
}

func (g *Gemini_Model) make_request(request_body string, model string) (json.RawMessage, Gemini_response, error) {
	baseURL := g.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	apiKey := g.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("GEMINI_API_KEY")
	}
	client := g.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 60 * time.Second}
	}

	url := fmt.Sprintf("%s/models/%s:generateContent?key=%s", baseURL, model, apiKey)
	resp, err := client.Post(url, "application/json", strings.NewReader(request_body))
	if err != nil {
		return nil, Gemini_response{}, fmt.Errorf("gemini request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, Gemini_response{}, fmt.Errorf("failed to read gemini response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, Gemini_response{}, fmt.Errorf("unexpected status code: %d, body: %s", resp.StatusCode, string(body))
	}

	var response Gemini_response
	if err := json.Unmarshal(body, &response); err != nil {
		// Keep the raw body available; the caller's extraction fallbacks may
		// still be able to pull a function call out of it.
		log.Printf("Warning: failed to unmarshal gemini response: %v", err)
		return body, Gemini_response{}, nil
	}

	return body, response, nil
}

// create_gemini_request turns the current message, pending tool results, and
// sanitized history into the wire request body.
func create_gemini_request(message models.User_Message, tools []models.FunctionDeclaration, toolResults *[]models.Tool_Result, conversationHistory []stores.Message, systemPrompt string) (Gemini_Request_Body, error) {

	allContents := []Gemini_Content{}

	// 1. Replay conversation history
	for _, histMsg := range conversationHistory {
		role := histMsg.Role
		var historyParts []Request_Part

		if histMsg.PartsJSON == "" || histMsg.PartsJSON == "{}" || histMsg.PartsJSON == "null" {
			log.Printf("Warning: History message %d (Role: %s, Type: %s) has empty PartsJSON, skipping.", histMsg.ID, role, histMsg.Type)
			continue
		}

		switch role {
		case "user":
			var userParts []models.User_Part
			if err := json.Unmarshal([]byte(histMsg.PartsJSON), &userParts); err != nil {
				log.Printf("Warning: Failed to unmarshal PartsJSON for user history message %d: %v. Content: %s", histMsg.ID, err, histMsg.PartsJSON)
				continue
			}
			historyParts = make([]Request_Part, len(userParts))
			for i, p := range userParts {
				historyParts[i] = Request_Part{
					Text:             p.Text,
					FunctionResponse: p.FunctionResponse,
				}
			}
		case "model":
			var modelParts []models.Model_Part
			if err := json.Unmarshal([]byte(histMsg.PartsJSON), &modelParts); err != nil {
				log.Printf("Warning: Failed to unmarshal PartsJSON for model history message %d: %v. Content: %s", histMsg.ID, err, histMsg.PartsJSON)
				continue
			}
			historyParts = make([]Request_Part, len(modelParts))
			for i, p := range modelParts {
				var textContent string
				if p.Text != nil {
					textContent = *p.Text
				}
				historyParts[i] = Request_Part{
					Text:         textContent,
					FunctionCall: p.FunctionCall,
				}
			}
		default:
			log.Printf("Warning: Unknown role '%s' for history message %d. Cannot unmarshal parts.", role, histMsg.ID)
			continue
		}

		if len(historyParts) > 0 {
			allContents = append(allContents, Gemini_Content{
				Role:  role,
				Parts: historyParts,
			})
		}
	}

	// 2. Tool results for the current turn
	if toolResults != nil && len(*toolResults) > 0 {
		for _, tr := range *toolResults {
			var respMap map[string]interface{}
			if err := json.Unmarshal([]byte(tr.Tool_Output), &respMap); err != nil {
				// Non-JSON tool output gets wrapped so the API still accepts it.
				respMap = map[string]interface{}{"output": tr.Tool_Output}
			}
			toolResponsePart := Request_Part{FunctionResponse: &models.FunctionResponse{Name: tr.Tool_Name, Response: respMap}}
			allContents = append(allContents, Gemini_Content{
				Role:  "user", // function responses always carry the user role
				Parts: []Request_Part{toolResponsePart},
			})
		}
	} else {
		// 3. The current user message, only when no tool results ride along
		currentUserParts := []Request_Part{}
		for _, part := range message.Content.Parts {
			if part.FunctionResponse != nil {
				log.Printf("Warning: Skipping FunctionResponse found in input User_Message parts; should be handled via toolResults or history.")
				continue
			}
			if part.Text != "" {
				currentUserParts = append(currentUserParts, Request_Part{Text: part.Text})
			}
		}
		if len(currentUserParts) > 0 {
			allContents = append(allContents, Gemini_Content{
				Role:  "user",
				Parts: currentUserParts,
			})
		}
	}

	if len(allContents) == 0 {
		return Gemini_Request_Body{}, fmt.Errorf("cannot create Gemini request with no content (history, tool results, or user message)")
	}

	// 4. Tools
	gemini_tools := []Gemini_Tools{}
	if len(tools) > 0 {
		gemini_tools = append(gemini_tools, Gemini_Tools{FunctionDeclarations: tools})
	}

	// 5. System instruction
	var systemInstruction *SystemInstruction
	if systemPrompt != "" {
		systemInstruction = &SystemInstruction{
			Parts: []SystemPart{{Text: systemPrompt}},
		}
	}

	request_body := Gemini_Request_Body{
		Contents:          &allContents,
		Tools:             &gemini_tools,
		SystemInstruction: systemInstruction,
	}

	return request_body, nil
}
