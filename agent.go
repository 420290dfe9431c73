package schedbot

import (
	"encoding/json"

	"schedbot/models"
	"schedbot/stores"
	"schedbot/tools"
)

// Model is implemented by every Gemini provider.
type Model interface {
	Model_Request(request models.Model_Request, tools []models.FunctionDeclaration, conversationHistory []stores.Message) (models.Model_Response, error)
}

// Agent pairs a model with the tools it may call.
type Agent struct {
	Model    Model
	Registry *tools.Registry
}

func Create_Agent(model Model, registry *tools.Registry) Agent {
	return Agent{
		Model:    model,
		Registry: registry,
	}
}

func (agent *Agent) Run(request models.Model_Request, conversationHistory []stores.Message) (models.Model_Response, error) {
	return agent.Model.Model_Request(request, agent.Registry.Declarations(), conversationHistory)
}

// ExecuteTool runs a registered tool by name. It returns the structured
// result together with its JSON encoding, which becomes the function
// response fed back to the model. The encoding is part of the tool contract:
// the result message must survive the round trip verbatim.
func (agent *Agent) ExecuteTool(functionName string, functionCallArgs map[string]interface{}) (models.ToolResult, string) {
	result := agent.Registry.Invoke(functionName, functionCallArgs)

	resultBytes, err := json.Marshal(result)
	if err != nil {
		result = models.Failure("Error: failed to encode tool result")
		resultBytes, _ = json.Marshal(result)
	}
	return result, string(resultBytes)
}

// ApproveTool checks if a tool should be auto-approved
func (agent *Agent) ApproveTool(name string, args map[string]interface{}) (bool, error) {
	return Tool_Approver(agent.Registry, name, args)
}
