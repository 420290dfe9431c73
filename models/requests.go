package models

type Chat_Request struct {
	Message string `json:"message"`
	User_ID string `json:"user_id"`
}

type Model_Request struct {
	User_Message *User_Message  `json:"message,omitempty"`
	Tool_Results *[]Tool_Result `json:"tool_results,omitempty"`
}

// Tool_Result carries one executed tool's output back to the model as the
// feedback turn of a function-calling cycle.
type Tool_Result struct {
	Tool_Name   string `json:"tool_name"`
	Tool_Output string `json:"tool_output"`
}
