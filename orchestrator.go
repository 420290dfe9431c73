package schedbot

import (
	"fmt"
	"log"
	"os"
	"sort"
	"strings"
	"time"

	"schedbot/intent"
	"schedbot/models"
	"schedbot/sessions"
	"schedbot/stores"
)

// FallbackReply asks the user to rephrase when a turn produced nothing
// usable. Infrastructure failures get an "Error: ..." reply instead so the
// user can tell the two apart.
const FallbackReply = "Sorry, I could not process this request, please rephrase."

const genericSuccessReply = "Operation completed."

// intentPrompt asks the model for a bare JSON intent, used by the direct
// calendar path where no tool declarations are sent.
const intentPrompt = `Convert the following request into a JSON object with fields: ` +
	`"action" (one of "create", "read", "update", "delete"), "title", ` +
	`"date" (YYYY-MM-DD), "time" (HH:MM 24h), "duration" (minutes), "event_id". ` +
	`Today is %s. Reply with only the JSON object. Request: %s`

// Orchestrator drives complete chat turns: it owns the per-user sessions,
// persists history, runs the agentic loop, and falls back to keyword parsing
// when the model is unusable.
type Orchestrator struct {
	Agent       Agent
	Sessions    *sessions.Store
	Store       stores.MessageStore
	Invocations stores.InvocationLog
	Logger      *log.Logger

	MaxIterations int
	HistoryLimit  int

	// Now is the clock used for relative date resolution. Tests override it.
	Now func() time.Time
}

func NewOrchestrator(agent Agent, store stores.MessageStore) *Orchestrator {
	return &Orchestrator{
		Agent:         agent,
		Sessions:      sessions.NewStore(),
		Store:         store,
		Logger:        log.New(os.Stdout, "[Orchestrator] ", log.LstdFlags),
		MaxIterations: 8,
		HistoryLimit:  40,
		Now:           time.Now,
	}
}

// WithInvocationLog enables tool-call auditing.
func (o *Orchestrator) WithInvocationLog(invs stores.InvocationLog) *Orchestrator {
	o.Invocations = invs
	return o
}

// Process handles one user message end to end and always returns a reply.
// Any panic below this point is converted into an error reply; a chat turn
// must never take the surface down with it.
func (o *Orchestrator) Process(userID, message string) (reply string) {
	defer func() {
		if r := recover(); r != nil {
			o.Logger.Printf("panic recovered in Process (user %s): %v", userID, r)
			reply = fmt.Sprintf("Error: %v", r)
		}
	}()

	if strings.TrimSpace(message) == "" {
		return FallbackReply
	}

	session := o.Sessions.GetOrCreate(userID)
	session.Lock()
	defer session.Unlock()
	defer session.BumpTurns()

	userMessage := models.TextMessage(message)
	currentReq := models.Model_Request{User_Message: &userMessage}
	lastResultMessage := ""

	for iteration := 1; iteration <= o.MaxIterations; iteration++ {
		o.Logger.Printf("=== Iteration %d (user %s) ===", iteration, userID)

		if currentReq.User_Message != nil {
			if err := o.Store.SaveMessage(session.ConversationID, userID, "user", "user_message", currentReq.User_Message.Content.Parts, ""); err != nil {
				o.Logger.Printf("Error saving user message: %v", err)
			}
		}

		// History is fetched before the pending tool results are persisted:
		// the results ride along in the request itself this turn, and the
		// sanitizer keeps the trailing function_call legs to match.
		history, err := o.Store.FetchHistory(session.ConversationID, o.HistoryLimit)
		if err != nil {
			o.Logger.Printf("failed to fetch history: %v", err)
			history = nil
		}
		history = stores.SanitizeHistory(history)

		if currentReq.Tool_Results != nil {
			o.saveToolResults(session.ConversationID, userID, *currentReq.Tool_Results)
		}

		response, err := o.Agent.Run(currentReq, history)
		if err != nil {
			o.Logger.Printf("model error: %v", err)
			// Once a tool has run this turn, re-parsing the message would
			// repeat its side effects. Report what already happened instead.
			if lastResultMessage != "" {
				o.saveModelText(session.ConversationID, userID, lastResultMessage)
				return lastResultMessage
			}
			if reply, ok := o.fallbackIntent(session, userID, message); ok {
				return reply
			}
			return fmt.Sprintf("Error: %v", err)
		}

		calls := ExtractCalls(response)
		if len(calls) == 0 {
			if text := ExtractText(response); text != "" {
				o.saveModelText(session.ConversationID, userID, text)
				return text
			}
			// The model went quiet. After tool execution that usually means
			// "done"; before it, the message was never understood.
			if lastResultMessage != "" {
				o.saveModelText(session.ConversationID, userID, lastResultMessage)
				return lastResultMessage
			}
			if reply, ok := o.fallbackIntent(session, userID, message); ok {
				return reply
			}
			return FallbackReply
		}

		callParts := make([]models.Model_Part, len(calls))
		for i := range calls {
			callParts[i] = models.Model_Part{FunctionCall: &calls[i]}
		}
		if err := o.Store.SaveMessage(session.ConversationID, userID, "model", "function_call", callParts, calls[0].Name); err != nil {
			o.Logger.Printf("Error saving function call: %v", err)
		}

		toolResults := make([]models.Tool_Result, 0, len(calls))
		for _, call := range calls {
			result, resultJSON := o.runTool(session, userID, call)
			toolResults = append(toolResults, models.Tool_Result{
				Tool_Name:   call.Name,
				Tool_Output: resultJSON,
			})
			lastResultMessage = result.Message
		}

		currentReq = models.Model_Request{Tool_Results: &toolResults}
	}

	o.Logger.Printf("iteration cap reached for user %s", userID)
	if lastResultMessage != "" {
		return lastResultMessage
	}
	return FallbackReply
}

// ProcessCalendar is the direct calendar path: the model is asked only to
// translate the message into a JSON intent, with the keyword parser as
// backstop, and the resulting operation executes without another model turn.
func (o *Orchestrator) ProcessCalendar(userID, message string) (reply string) {
	defer func() {
		if r := recover(); r != nil {
			o.Logger.Printf("panic recovered in ProcessCalendar (user %s): %v", userID, r)
			reply = FallbackReply
		}
	}()

	if strings.TrimSpace(message) == "" {
		return FallbackReply
	}

	session := o.Sessions.GetOrCreate(userID)
	session.Lock()
	defer session.Unlock()
	defer session.BumpTurns()

	ref := o.Now()
	rec := o.structuredIntent(message, ref)
	if rec == nil {
		rec = intent.Parse(message, ref)
	}
	if rec == nil {
		return FallbackReply
	}

	result := o.executeIntent(session, userID, rec)
	if result.Message == "" {
		return genericSuccessReply
	}
	return result.Message
}

// structuredIntent asks the model for a JSON intent and parses it. Returns
// nil when the model is unreachable or its output is unusable.
func (o *Orchestrator) structuredIntent(message string, ref time.Time) *intent.Record {
	prompt := fmt.Sprintf(intentPrompt, ref.Format("2006-01-02"), message)
	userMessage := models.TextMessage(prompt)
	response, err := o.Agent.Model.Model_Request(models.Model_Request{User_Message: &userMessage}, nil, nil)
	if err != nil {
		o.Logger.Printf("intent model error: %v", err)
		return nil
	}
	text := ExtractText(response)
	if text == "" {
		return nil
	}
	rec, err := intent.ParseStructured(text)
	if err != nil {
		o.Logger.Printf("structured intent unusable: %v", err)
		return nil
	}
	return rec
}

// ClearHistory drops the user's session and its persisted conversation.
func (o *Orchestrator) ClearHistory(userID string) string {
	session := o.Sessions.Get(userID)
	if session == nil {
		return "No conversation history to clear."
	}

	conversationID := session.ConversationID
	o.Sessions.Clear(userID)

	if err := o.Store.DeleteConversation(conversationID); err != nil {
		o.Logger.Printf("Error deleting conversation %s: %v", conversationID, err)
	}
	if o.Invocations != nil {
		if err := o.Invocations.DeleteByConversation(conversationID); err != nil {
			o.Logger.Printf("Error deleting invocations for %s: %v", conversationID, err)
		}
	}
	return "Conversation history cleared."
}

// Help lists what the bot understands.
func (o *Orchestrator) Help() string {
	return strings.Join([]string{
		"I can manage your calendar. Talk to me naturally, for example:",
		"- schedule a meeting tomorrow at 2pm",
		"- what's on my calendar this week?",
		"- move event <id> to 15:00",
		"- cancel event <id>",
		"",
		"Commands: !chat <message>, !cal <request>, !clear, !stats, !digest on|off, !help",
	}, "\n")
}

// Stats summarizes live sessions, stored messages, and tool usage.
func (o *Orchestrator) Stats() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Active sessions: %d\n", o.Sessions.Count())

	if total, err := o.Store.CountMessages(); err == nil {
		fmt.Fprintf(&b, "Stored messages: %d\n", total)
	} else {
		o.Logger.Printf("Error counting messages: %v", err)
	}

	if o.Invocations != nil {
		counts, err := o.Invocations.CountByFunction()
		if err != nil {
			o.Logger.Printf("Error counting invocations: %v", err)
		} else if len(counts) > 0 {
			names := make([]string, 0, len(counts))
			for name := range counts {
				names = append(names, name)
			}
			sort.Strings(names)
			b.WriteString("Tool calls:\n")
			for _, name := range names {
				fmt.Fprintf(&b, "  %s: %d\n", name, counts[name])
			}
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

// runTool approves, executes, persists, and audits one tool call.
func (o *Orchestrator) runTool(session *sessions.Session, userID string, call models.FunctionCall) (models.ToolResult, string) {
	approved, err := o.Agent.ApproveTool(call.Name, call.Args)
	if err != nil || !approved {
		result := models.Failure(fmt.Sprintf("Unknown function: %s", call.Name))
		resultJSON := fmt.Sprintf(`{"success":false,"message":"Unknown function: %s"}`, call.Name)
		return result, resultJSON
	}

	started := time.Now()
	result, resultJSON := o.Agent.ExecuteTool(call.Name, call.Args)

	if o.Invocations != nil {
		inv := &stores.ToolInvocation{
			ConversationID: session.ConversationID,
			UserID:         userID,
			Function:       call.Name,
			Success:        result.Success,
			Args:           call.Args,
			DurationMS:     time.Since(started).Milliseconds(),
		}
		if err := o.Invocations.Record(inv); err != nil {
			o.Logger.Printf("Error recording invocation of %s: %v", call.Name, err)
		}
	}

	return result, resultJSON
}

// fallbackIntent parses the original message with the keyword parser and, if
// it yields an action, executes it directly. The second return reports
// whether a reply was produced.
func (o *Orchestrator) fallbackIntent(session *sessions.Session, userID, message string) (string, bool) {
	rec := intent.Parse(message, o.Now())
	if rec == nil {
		return "", false
	}
	o.Logger.Printf("keyword fallback engaged for user %s: action=%s", userID, rec.Action)

	result := o.executeIntent(session, userID, rec)
	reply := result.Message
	if reply == "" {
		reply = genericSuccessReply
	}
	o.saveModelText(session.ConversationID, userID, reply)
	return reply, true
}

// executeIntent maps a parsed intent onto the registered calendar tools.
func (o *Orchestrator) executeIntent(session *sessions.Session, userID string, rec *intent.Record) models.ToolResult {
	var call models.FunctionCall
	switch rec.Action {
	case intent.ActionCreate:
		call = models.FunctionCall{Name: "add_calendar_event", Args: map[string]interface{}{
			"title":    rec.Title,
			"date":     rec.Date,
			"time":     rec.Time,
			"duration": rec.Duration,
		}}
	case intent.ActionRead:
		args := map[string]interface{}{}
		if rec.Date != "" {
			args["date"] = rec.Date
		}
		call = models.FunctionCall{Name: "list_calendar_events", Args: args}
	case intent.ActionUpdate:
		args := map[string]interface{}{"event_id": rec.EventID}
		if rec.Date != "" {
			args["date"] = rec.Date
		}
		if rec.Time != "" {
			args["time"] = rec.Time
		}
		if rec.Title != "" {
			args["title"] = rec.Title
		}
		call = models.FunctionCall{Name: "update_calendar_event", Args: args}
	case intent.ActionDelete:
		call = models.FunctionCall{Name: "delete_calendar_event", Args: map[string]interface{}{
			"event_id": rec.EventID,
		}}
	default:
		return models.Failure(fmt.Sprintf("Unknown function: %s", rec.Action))
	}

	result, _ := o.runTool(session, userID, call)
	return result
}

func (o *Orchestrator) saveModelText(conversationID, userID, text string) {
	part := models.Model_Part{Text: &text}
	if err := o.Store.SaveMessage(conversationID, userID, "model", "model_message", []models.Model_Part{part}, ""); err != nil {
		o.Logger.Printf("Error saving model message: %v", err)
	}
}

func (o *Orchestrator) saveToolResults(conversationID, userID string, toolResults []models.Tool_Result) {
	for _, tr := range toolResults {
		part := models.User_Part{FunctionResponse: &models.FunctionResponse{
			Name:     tr.Tool_Name,
			Response: map[string]interface{}{"output": tr.Tool_Output},
		}}
		if err := o.Store.SaveMessage(conversationID, userID, "user", "function_response", []models.User_Part{part}, tr.Tool_Name); err != nil {
			o.Logger.Printf("Error saving tool result for %s: %v", tr.Tool_Name, err)
		}
	}
}
