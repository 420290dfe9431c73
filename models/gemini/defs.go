package gemini

import "schedbot/models"

type Gemini_response struct {
	Candidates    []Candidate   `json:"candidates"`
	UsageMetadata UsageMetadata `json:"usageMetadata"`
	ModelVersion  string        `json:"modelVersion"`
}

type Candidate struct {
	Content      Content `json:"content"`
	FinishReason string  `json:"finishReason,omitempty"`
}

type Content struct {
	Parts []Part `json:"parts"`
	Role  string `json:"role"`
}

type Part struct {
	Text         *string       `json:"text,omitempty"`
	FunctionCall *FunctionCall `json:"functionCall,omitempty"`
}

type FunctionCall struct {
	Name string                 `json:"name"`
	Args map[string]interface{} `json:"args"`
}

type UsageMetadata struct {
	PromptTokenCount     int `json:"promptTokenCount"`
	CandidatesTokenCount int `json:"candidatesTokenCount"`
	TotalTokenCount      int `json:"totalTokenCount"`
}

type Request_Part struct {
	Text             string                   `json:"text,omitempty"`
	FunctionCall     *models.FunctionCall     `json:"functionCall,omitempty"`
	FunctionResponse *models.FunctionResponse `json:"functionResponse,omitempty"`
}

type Gemini_Request_Body struct {
	Contents          *[]Gemini_Content  `json:"contents"`
	Tools             *[]Gemini_Tools    `json:"tools,omitempty"`
	SystemInstruction *SystemInstruction `json:"systemInstruction,omitempty"`
}

type SystemInstruction struct {
	Parts []SystemPart `json:"parts"`
}

type SystemPart struct {
	Text string `json:"text"`
}

type Gemini_Content struct {
	Role  string         `json:"role"`
	Parts []Request_Part `json:"parts"`
}

type Gemini_Tools struct {
	FunctionDeclarations []models.FunctionDeclaration `json:"functionDeclarations"`
}
