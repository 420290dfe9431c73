// Package intent turns loosely structured model output, or as a last resort
// the user's raw message, into a calendar action record. It is only consulted
// when the model's JSON output is unusable; the keyword path is deliberately
// lenient about missing details except where inventing them would be unsafe
// (event identifiers).
package intent

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"
)

const (
	ActionCreate = "create"
	ActionRead   = "read"
	ActionUpdate = "update"
	ActionDelete = "delete"

	defaultDuration = 60
	defaultTime     = "15:00"
)

// Record is one resolved calendar intent.
type Record struct {
	Action   string `json:"action"`
	Title    string `json:"title,omitempty"`
	Date     string `json:"date,omitempty"`
	Time     string `json:"time,omitempty"`
	Duration int    `json:"duration,omitempty"`
	EventID  string `json:"event_id,omitempty"`
}

// ParseStructured parses a model-produced JSON intent. Code-fence markup is
// stripped and the first brace-delimited substring is extracted before
// unmarshalling, since models routinely wrap JSON in markdown fences or
// surround it with prose.
func ParseStructured(raw string) (*Record, error) {
	cleaned := stripCodeFences(raw)

	start := strings.Index(cleaned, "{")
	end := strings.LastIndex(cleaned, "}")
	if start == -1 || end == -1 || end < start {
		return nil, fmt.Errorf("no JSON object found in model output")
	}

	var rec Record
	if err := json.Unmarshal([]byte(cleaned[start:end+1]), &rec); err != nil {
		return nil, fmt.Errorf("failed to parse intent JSON: %w", err)
	}

	rec.Action = strings.ToLower(strings.TrimSpace(rec.Action))
	switch rec.Action {
	case ActionCreate, ActionRead, ActionUpdate, ActionDelete:
	default:
		return nil, fmt.Errorf("unknown intent action: %q", rec.Action)
	}

	if rec.Action == ActionCreate && rec.Duration <= 0 {
		rec.Duration = defaultDuration
	}
	return &rec, nil
}

func stripCodeFences(raw string) string {
	if !strings.Contains(raw, "```") {
		return raw
	}
	lines := strings.Split(raw, "\n")
	kept := make([]string, 0, len(lines))
	for _, line := range lines {
		if strings.HasPrefix(strings.TrimSpace(line), "```") {
			continue
		}
		kept = append(kept, line)
	}
	return strings.Join(kept, "\n")
}

// Keyword classes, checked in a fixed order; the first class with a match
// decides the action. Both English and Indonesian synonyms are recognized,
// matching the locales the bot serves.
var actionClasses = []struct {
	action string
	words  []string
}{
	{ActionUpdate, []string{"update", "change", "move", "reschedule", "ubah", "ganti", "pindahkan"}},
	{ActionDelete, []string{"delete", "cancel", "remove", "hapus", "batalkan", "batal"}},
	{ActionCreate, []string{"schedule", "add", "create", "book", "buat", "tambah", "tambahkan", "jadwalkan"}},
	{ActionRead, []string{"list", "show", "view", "check", "jadwal", "lihat", "tampilkan", "agenda"}},
}

var (
	clockPattern    = regexp.MustCompile(`\b([01]?\d|2[0-3]):([0-5]\d)\b`)
	meridiemPattern = regexp.MustCompile(`\b(\d{1,2})(?::([0-5]\d))?\s*(am|pm)\b`)
	datePattern     = regexp.MustCompile(`\b(\d{4})-(\d{2})-(\d{2})\b`)
	wordPattern     = regexp.MustCompile(`[\p{L}\p{N}:_-]+`)

	// Event ids are lowercase base32hex tokens; requiring a digit keeps
	// ordinary words from matching.
	eventIDPattern = regexp.MustCompile(`\b[a-v0-9]{8,64}\b`)
	hasDigit       = regexp.MustCompile(`\d`)
)

var namedTimes = map[string]string{
	"morning":   "09:00",
	"pagi":      "09:00",
	"noon":      "12:00",
	"siang":     "12:00",
	"afternoon": "15:00",
	"sore":      "15:00",
	"evening":   "19:00",
	"night":     "19:00",
	"malam":     "19:00",
}

var dateWords = map[string]int{
	"today":    0,
	"tonight":  0,
	"tomorrow": 1,
	"besok":    1,
	"hari ini": 0,
}

var stopwords = map[string]bool{
	"a": true, "an": true, "the": true, "at": true, "on": true, "in": true,
	"for": true, "to": true, "my": true, "me": true, "please": true,
	"di": true, "pada": true, "jam": true, "untuk": true, "saya": true,
	"tolong": true, "hari": true, "ini": true,
}

// Parse extracts a calendar intent from a natural-language message using
// keyword matching against the reference date. Returns nil when no action
// keyword is recognized, or when update/delete lack an explicit event id
// (those must never be invented). Any internal failure also yields nil.
func Parse(message string, ref time.Time) (rec *Record) {
	defer func() {
		if recover() != nil {
			rec = nil
		}
	}()

	lower := strings.ToLower(message)
	words := wordPattern.FindAllString(lower, -1)
	wordSet := make(map[string]bool, len(words))
	for _, w := range words {
		wordSet[w] = true
	}

	action := ""
	for _, class := range actionClasses {
		for _, kw := range class.words {
			if wordSet[kw] {
				action = class.action
				break
			}
		}
		if action != "" {
			break
		}
	}
	if action == "" {
		return nil
	}

	switch action {
	case ActionCreate:
		return parseCreate(lower, ref)
	case ActionRead:
		r := &Record{Action: ActionRead}
		if date, ok := resolveDate(lower, ref); ok {
			r.Date = date
		}
		return r
	default: // update, delete
		id, ok := findEventID(lower)
		if !ok {
			return nil
		}
		r := &Record{Action: action, EventID: id}
		if date, ok := resolveDate(lower, ref); ok {
			r.Date = date
		}
		if t, ok := resolveTime(lower); ok {
			r.Time = t
		}
		return r
	}
}

func parseCreate(lower string, ref time.Time) *Record {
	rec := &Record{Action: ActionCreate, Duration: defaultDuration}

	if date, ok := resolveDate(lower, ref); ok {
		rec.Date = date
	} else {
		// Lenient default: next day. This is already the last-resort path.
		rec.Date = ref.AddDate(0, 0, 1).Format("2006-01-02")
	}

	if t, ok := resolveTime(lower); ok {
		rec.Time = t
	} else {
		rec.Time = defaultTime
	}

	rec.Title = extractTitle(lower)
	return rec
}

func resolveDate(lower string, ref time.Time) (string, bool) {
	if m := datePattern.FindString(lower); m != "" {
		return m, true
	}
	for word, offset := range dateWords {
		if containsWord(lower, word) {
			return ref.AddDate(0, 0, offset).Format("2006-01-02"), true
		}
	}
	return "", false
}

func resolveTime(lower string) (string, bool) {
	if m := meridiemPattern.FindStringSubmatch(lower); m != nil {
		hour := atoiSafe(m[1])
		if m[3] == "pm" && hour < 12 {
			hour += 12
		}
		if m[3] == "am" && hour == 12 {
			hour = 0
		}
		minutes := "00"
		if m[2] != "" {
			minutes = m[2]
		}
		if hour >= 0 && hour <= 23 {
			return fmt.Sprintf("%02d:%s", hour, minutes), true
		}
	}
	if m := clockPattern.FindStringSubmatch(lower); m != nil {
		return fmt.Sprintf("%02d:%s", atoiSafe(m[1]), m[2]), true
	}
	for word, clock := range namedTimes {
		if containsWord(lower, word) {
			return clock, true
		}
	}
	return "", false
}

// extractTitle removes every recognized control word from the message and
// keeps whatever remains.
func extractTitle(lower string) string {
	cleaned := meridiemPattern.ReplaceAllString(lower, " ")
	cleaned = clockPattern.ReplaceAllString(cleaned, " ")
	cleaned = datePattern.ReplaceAllString(cleaned, " ")

	control := make(map[string]bool)
	for _, class := range actionClasses {
		for _, kw := range class.words {
			control[kw] = true
		}
	}
	for word := range dateWords {
		control[word] = true
	}
	for word := range namedTimes {
		control[word] = true
	}

	var kept []string
	for _, w := range wordPattern.FindAllString(cleaned, -1) {
		if control[w] || stopwords[w] {
			continue
		}
		kept = append(kept, w)
	}
	title := strings.TrimSpace(strings.Join(kept, " "))
	if title == "" {
		title = "New event"
	}
	return title
}

func findEventID(lower string) (string, bool) {
	for _, candidate := range eventIDPattern.FindAllString(lower, -1) {
		if hasDigit.MatchString(candidate) {
			return candidate, true
		}
	}
	return "", false
}

func containsWord(lower, word string) bool {
	idx := strings.Index(lower, word)
	for idx != -1 {
		before := idx == 0 || !isWordByte(lower[idx-1])
		afterIdx := idx + len(word)
		after := afterIdx >= len(lower) || !isWordByte(lower[afterIdx])
		if before && after {
			return true
		}
		next := strings.Index(lower[idx+1:], word)
		if next == -1 {
			return false
		}
		idx = idx + 1 + next
	}
	return false
}

func isWordByte(b byte) bool {
	return (b >= 'a' && b <= 'z') || (b >= '0' && b <= '9')
}

func atoiSafe(s string) int {
	n := 0
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0
		}
		n = n*10 + int(r-'0')
	}
	return n
}
