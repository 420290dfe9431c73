package schedbot

import (
	"log"

	"schedbot/tools"
)

// Tool_Approver checks if a tool call may execute without explicit user
// approval. Calendar tools are safe to auto-approve: every operation is
// scoped to the user's own calendar and destructive ones echo what they did.
// Names the registry does not know are rejected here so they surface as a
// failed result instead of silently executing nothing.
func Tool_Approver(registry *tools.Registry, tool_name string, tool_args map[string]interface{}) (bool, error) {
	if !registry.Has(tool_name) {
		log.Printf("Rejecting unregistered tool: %s", tool_name)
		return false, nil
	}
	log.Printf("Auto-approving tool: %s", tool_name)
	return true, nil
}
