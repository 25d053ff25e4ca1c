package handlers

import (
	"context"
	"strings"
)

// GreetingHandler answers one-shot small talk and capability questions.
// It never persists state (spec §4.7.5).
type GreetingHandler struct{}

var capabilityKeywords = []string{"what can you do", "help", "capabilities", "what do you do"}
var farewellKeywords = []string{"bye", "goodbye", "see you", "farewell", "later"}
var thanksKeywords = []string{"thank", "thanks", "appreciate"}

const capabilityBlurb = "I can help you with:\n" +
	"- Answering questions about college policies, courses, and programs (FAQ)\n" +
	"- Drafting and sending emails to faculty or offices (EMAIL)\n" +
	"- Raising a support ticket for an issue or request (TICKET)\n" +
	"- Checking, listing, or closing your existing tickets (TICKET_STATUS)"

func (h *GreetingHandler) Handle(_ context.Context, in Input) (Output, error) {
	lower := strings.ToLower(strings.TrimSpace(in.Message))

	switch {
	case containsAny(lower, capabilityKeywords):
		return Output{Status: StatusSuccess, Message: capabilityBlurb, Agent: "orchestrator"}, nil
	case containsAny(lower, farewellKeywords):
		return Output{Status: StatusSuccess, Message: "Goodbye! Come back any time you need help.", Agent: "orchestrator"}, nil
	case containsAny(lower, thanksKeywords):
		return Output{Status: StatusSuccess, Message: "You're welcome!", Agent: "orchestrator"}, nil
	default:
		return Output{Status: StatusSuccess, Message: "Hello! How can I help you today?", Agent: "orchestrator"}, nil
	}
}
