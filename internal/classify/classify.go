// Package classify implements the intent classifier (C6): a single LLM
// call that maps a user turn, given conversation history, to one of a
// closed set of intents with a confidence score, extracted entities, and
// a short reasoning string.
package classify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
)

// Intent is one of the closed set of classification outcomes.
type Intent string

const (
	IntentFAQ          Intent = "FAQ"
	IntentEmail        Intent = "EMAIL"
	IntentTicket       Intent = "TICKET"
	IntentTicketStatus Intent = "TICKET_STATUS"
	IntentGreeting     Intent = "GREETING"
	IntentUnknown      Intent = "UNKNOWN"
)

func (i Intent) valid() bool {
	switch i {
	case IntentFAQ, IntentEmail, IntentTicket, IntentTicketStatus, IntentGreeting, IntentUnknown:
		return true
	}
	return false
}

// Entities is the optional extracted-slot map. Missing keys mean
// "not extracted" — callers must not treat an empty string as present.
type Entities struct {
	FacultyName       string `json:"faculty_name,omitempty"`
	EmailAddress      string `json:"email_address,omitempty"`
	Purpose           string `json:"purpose,omitempty"`
	TicketDescription string `json:"ticket_description,omitempty"`
}

// Any reports whether at least one entity slot was filled.
func (e Entities) Any() bool {
	return e.FacultyName != "" || e.EmailAddress != "" || e.Purpose != "" || e.TicketDescription != ""
}

// ToMap renders the entities as a generic map, suitable for the C5
// dedup fingerprint and turn-log metadata.
func (e Entities) ToMap() map[string]any {
	m := make(map[string]any)
	if e.FacultyName != "" {
		m["faculty_name"] = e.FacultyName
	}
	if e.EmailAddress != "" {
		m["email_address"] = e.EmailAddress
	}
	if e.Purpose != "" {
		m["purpose"] = e.Purpose
	}
	if e.TicketDescription != "" {
		m["ticket_description"] = e.TicketDescription
	}
	return m
}

// Result is the classify contract's output: {intent, confidence,
// entities, reasoning}.
type Result struct {
	Intent     Intent
	Confidence float64
	Entities   Entities
	Reasoning  string
}

// Thresholds used by the orchestrator (not the classifier) to decide
// whether a classification is confident enough to act on directly.
var Thresholds = map[Intent]float64{
	IntentFAQ:          0.45,
	IntentEmail:        0.65,
	IntentTicket:       0.65,
	IntentTicketStatus: 0.50,
	IntentGreeting:     0.30,
}

// MeetsThreshold reports whether r clears its intent's confidence
// threshold, with the entity-presence override from spec §4.6: low
// confidence is forgiven for EMAIL/TICKET if any entity was extracted.
func (r Result) MeetsThreshold() bool {
	threshold, ok := Thresholds[r.Intent]
	if !ok {
		return false
	}
	if r.Confidence >= threshold {
		return true
	}
	if (r.Intent == IntentEmail || r.Intent == IntentTicket) && r.Entities.Any() {
		return true
	}
	return false
}

var emailPattern = regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`)

// applyRegexFallback fills EmailAddress from the raw message when the
// LLM left it empty but the message plainly contains one (spec §4.6's
// regex fallback, run by the orchestrator after the LLM call).
func applyRegexFallback(message string, e *Entities) {
	if e.EmailAddress != "" {
		return
	}
	if m := emailPattern.FindString(message); m != "" {
		e.EmailAddress = m
	}
}

// Classifier performs single-call LLM intent classification.
type Classifier struct {
	model model.ToolCallingChatModel
}

// New creates a Classifier backed by chatModel.
func New(chatModel model.ToolCallingChatModel) *Classifier {
	return &Classifier{model: chatModel}
}

// Classify runs the classification prompt against message and history,
// then applies the deterministic regex fallback. Any non-JSON model
// output or error degrades to {UNKNOWN, confidence 0} rather than
// propagating an error — a turn always gets a classification.
func (c *Classifier) Classify(ctx context.Context, message, historyText string) Result {
	prompt := buildPrompt(message, historyText)

	msgs := []*schema.Message{
		{Role: schema.User, Content: prompt},
	}

	resp, err := c.model.Generate(ctx, msgs)
	if err != nil {
		slog.Warn("classify: model generate failed, falling back to UNKNOWN", "error", err)
		return unknownResult(message)
	}

	result := parseResponse(resp.Content)
	applyRegexFallback(message, &result.Entities)
	return result
}

func unknownResult(message string) Result {
	r := Result{Intent: IntentUnknown, Confidence: 0}
	applyRegexFallback(message, &r.Entities)
	return r
}

const promptTemplate = `You are the intent classifier for a college student-support chat service.
Classify the student's latest message into exactly one of these six intents:

- FAQ: a question about college policy, courses, programs, deadlines, or general information.
- EMAIL: the student wants to send an email to a faculty member or office.
- TICKET: the student wants to raise a support ticket for an issue or request.
- TICKET_STATUS: the student wants to check on, list, or close an existing support ticket.
- GREETING: a greeting, small talk, or a question about what this assistant can do (capability
  questions like "can you send emails?" are GREETING, not EMAIL).
- UNKNOWN: none of the above apply, or the message is unintelligible.

Conversation history:
%s

Latest message:
%s

Extract these entities if present (omit keys that are not present):
- faculty_name: the name of a faculty member mentioned.
- email_address: an email address mentioned.
- purpose: if the student states a reason for the email or ticket, copy it back verbatim
  (e.g. "email Dr. Rao about the missed deadline" -> purpose = "the missed deadline").
- ticket_description: the substance of a support request.

Respond with strict JSON only, no markdown fences, no commentary, in exactly this shape:
{"intent": "FAQ", "confidence": 0.0, "entities": {}, "reasoning": "one short sentence"}

confidence MUST be a number between 0 and 1. intent MUST be one of the six names above.`

func buildPrompt(message, historyText string) string {
	if strings.TrimSpace(historyText) == "" {
		historyText = "(no prior turns)"
	}
	return fmt.Sprintf(promptTemplate, historyText, message)
}

type rawResponse struct {
	Intent     string   `json:"intent"`
	Confidence float64  `json:"confidence"`
	Entities   Entities `json:"entities"`
	Reasoning  string   `json:"reasoning"`
}

// parseResponse strips markdown fences (models add them despite
// instruction) and parses the strict-JSON classification payload.
// Any parse failure or unrecognized intent name degrades to UNKNOWN.
func parseResponse(content string) Result {
	content = stripFences(content)

	var raw rawResponse
	if err := json.Unmarshal([]byte(content), &raw); err != nil {
		slog.Warn("classify: non-JSON model output, treating as UNKNOWN", "error", err)
		return Result{Intent: IntentUnknown, Confidence: 0}
	}

	intent := Intent(strings.ToUpper(strings.TrimSpace(raw.Intent)))
	if !intent.valid() {
		return Result{Intent: IntentUnknown, Confidence: 0, Reasoning: raw.Reasoning}
	}

	confidence := raw.Confidence
	if confidence < 0 {
		confidence = 0
	}
	if confidence > 1 {
		confidence = 1
	}

	return Result{
		Intent:     intent,
		Confidence: confidence,
		Entities:   raw.Entities,
		Reasoning:  raw.Reasoning,
	}
}

func stripFences(content string) string {
	content = strings.TrimSpace(content)
	if !strings.HasPrefix(content, "```") {
		return content
	}

	lines := strings.Split(content, "\n")
	var jsonLines []string
	inBlock := false
	for _, line := range lines {
		if strings.HasPrefix(strings.TrimSpace(line), "```") {
			inBlock = !inBlock
			continue
		}
		if inBlock {
			jsonLines = append(jsonLines, line)
		}
	}
	return strings.Join(jsonLines, "\n")
}
