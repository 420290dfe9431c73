package stores

import (
	"log"
)

// SanitizeHistory repairs a fetched history so it replays cleanly against the
// model API. Truncation can cut a tool cycle in half, and crashes can leave
// orphaned legs behind; either shape makes the API reject the whole request.
//
// Guarantees after sanitizing:
//   - history starts with a user_message or model_message
//   - every function_call run is followed by at least one function_response,
//     except a trailing run whose responses arrive in the current turn
//   - no function_response appears without a preceding function_call
func SanitizeHistory(msgs []Message) []Message {
	if len(msgs) == 0 {
		return msgs
	}

	start := validStart(msgs)
	if start == -1 {
		// Nothing to anchor on. Salvage the most recent user message so the
		// model keeps at least some context.
		for i := len(msgs) - 1; i >= 0; i-- {
			if msgs[i].Type == "user_message" {
				log.Printf("[HistorySanitizer] no valid start, salvaging user_message at index %d", i)
				return []Message{msgs[i]}
			}
		}
		log.Printf("[HistorySanitizer] no valid starting point, returning empty history")
		return []Message{}
	}
	if start > 0 {
		log.Printf("[HistorySanitizer] dropping %d leading messages (first was %s)", start, msgs[0].Type)
		msgs = msgs[start:]
	}

	out := repairCycles(msgs)
	if len(out) != len(msgs) {
		log.Printf("[HistorySanitizer] removed %d messages with broken tool cycles", len(msgs)-len(out))
	}
	return out
}

// validStart returns the index of the first message a conversation may begin
// with. Leading function_call/function_response entries are truncation debris.
func validStart(msgs []Message) int {
	for i, msg := range msgs {
		switch msg.Type {
		case "function_call", "function_response":
			continue
		default:
			return i
		}
	}
	return -1
}

func repairCycles(msgs []Message) []Message {
	result := make([]Message, 0, len(msgs))
	i := 0
	for i < len(msgs) {
		switch msgs[i].Type {
		case "function_call":
			calls := i
			for i < len(msgs) && msgs[i].Type == "function_call" {
				i++
			}
			responses := i
			for i < len(msgs) && msgs[i].Type == "function_response" {
				i++
			}
			if responses == i && i < len(msgs) {
				// A call run with no responses, mid-history. Drop it.
				log.Printf("[HistorySanitizer] removing unanswered function_call run at index %d", calls)
				continue
			}
			// A trailing unanswered run is kept: its responses ride in as the
			// current turn's tool results.
			result = append(result, msgs[calls:i]...)

		case "function_response":
			log.Printf("[HistorySanitizer] removing orphaned function_response at index %d", i)
			i++

		default:
			result = append(result, msgs[i])
			i++
		}
	}
	return result
}
