// Package ticketflow implements the ticket handler's multi-step state
// machine (C7): start -> collect_description -> preview ->
// (submit|cancel), grounded on spec §4.7.3 and
// original_source/agents/ticket_agent.py's category/priority triage.
package ticketflow

import (
	"context"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/dohr-michael/advisorbot/internal/collaborators"
	"github.com/dohr-michael/advisorbot/internal/flow"
	"github.com/dohr-michael/advisorbot/internal/handlers"
)

// Step is one of the ticket flow's fixed states.
type Step string

const (
	StepStart              Step = "start"
	StepCollectDescription Step = "collect_description"
	StepPreview            Step = "preview"
)

// State is the flow blob persisted to C1 between turns.
type State struct {
	Step        Step   `json:"step"`
	Description string `json:"description,omitempty"`
	Category    string `json:"category,omitempty"`
	SubCategory string `json:"sub_category,omitempty"`
	Priority    string `json:"priority,omitempty"`
	Title       string `json:"title,omitempty"`
	Rewrite     string `json:"rewrite,omitempty"`
	Sensitive   bool   `json:"sensitive,omitempty"`
}

var cancelKeywords = []string{"cancel", "never mind", "nevermind", "stop", "abort", "forget it", "quit"}
var confirmKeywords = []string{"yes", "confirm", "submit", "send it", "go ahead", "ok", "okay", "sure", "looks good", "correct", "do it"}

const minDescriptionLength = 20

func matchesAny(message string, keywords []string) bool {
	lower := strings.ToLower(strings.TrimSpace(message))
	for _, k := range keywords {
		if lower == k {
			return true
		}
	}
	return false
}

func containsAny(message string, keywords []string) bool {
	lower := strings.ToLower(message)
	for _, k := range keywords {
		if strings.Contains(lower, k) {
			return true
		}
	}
	return false
}

// Flow drives the ticket step machine, writing its own state to C1 (the
// orchestrator and executor only ever clear it).
type Flow struct {
	Model  model.ToolCallingChatModel
	FlowDB *flow.Store
}

const flowKey = "ticket"

// FlowKey is the C1 flow_key this flow persists its state under — the
// orchestrator and executor use it to know which flow-pause slot a
// confirmed ticket action belongs to.
const FlowKey = flowKey

// Handle advances the ticket flow by one turn.
func (f *Flow) Handle(ctx context.Context, in handlers.Input) (handlers.Output, error) {
	var st State
	found, err := f.FlowDB.Resume(in.SessionID, flowKey, &st)
	if err != nil || !found {
		st = State{Step: StepStart}
	}

	if st.Step != StepStart && matchesAny(in.Message, cancelKeywords) {
		f.FlowDB.Clear(in.SessionID, flowKey)
		return handlers.Output{Status: handlers.StatusSuccess, Message: "Okay, I've cancelled that ticket.", Agent: "ticket_agent"}, nil
	}

	switch st.Step {
	case StepStart:
		return f.handleStart(ctx, in, st)
	case StepCollectDescription:
		return f.handleCollectDescription(ctx, in, st)
	case StepPreview:
		return f.handlePreview(ctx, in, st)
	default:
		f.FlowDB.Clear(in.SessionID, flowKey)
		return handlers.Output{Status: handlers.StatusError, Message: "Something went wrong with that ticket draft. Let's start over — please describe the issue.", Agent: "ticket_agent"}, nil
	}
}

func (f *Flow) handleStart(ctx context.Context, in handlers.Input, st State) (handlers.Output, error) {
	description := in.Entities.TicketDescription
	if description == "" && len(strings.TrimSpace(in.Message)) >= 5 {
		description = in.Message
	}
	if description == "" {
		st.Step = StepCollectDescription
		f.FlowDB.Pause(in.SessionID, flowKey, st)
		return handlers.Output{
			Status:  handlers.StatusNeedsInput,
			Message: "Could you describe the issue you'd like to raise a ticket for?",
			Agent:   "ticket_agent",
		}, nil
	}
	st.Description = description
	return f.generatePreview(ctx, in, st)
}

func (f *Flow) handleCollectDescription(ctx context.Context, in handlers.Input, st State) (handlers.Output, error) {
	st.Description = in.Message
	return f.generatePreview(ctx, in, st)
}

func (f *Flow) handlePreview(ctx context.Context, in handlers.Input, st State) (handlers.Output, error) {
	switch {
	case containsAny(in.Message, confirmKeywords):
		f.FlowDB.Clear(in.SessionID, flowKey)
		return handlers.Output{
			Status:  handlers.StatusNeedsConfirmation,
			Message: "Submitting your ticket now.",
			Agent:   "ticket_agent",
			ConfirmationData: map[string]any{
				"action":       "ticket_preview",
				"category":     st.Category,
				"sub_category": st.SubCategory,
				"priority":     st.Priority,
				"description":  st.Rewrite,
				"sensitive":    st.Sensitive,
			},
		}, nil
	case containsAny(in.Message, cancelKeywords):
		f.FlowDB.Clear(in.SessionID, flowKey)
		return handlers.Output{Status: handlers.StatusSuccess, Message: "Okay, I've cancelled that ticket.", Agent: "ticket_agent"}, nil
	default:
		f.FlowDB.Pause(in.SessionID, flowKey, st)
		return handlers.Output{
			Status:  handlers.StatusNeedsConfirmation,
			Message: previewText(st),
			Agent:   "ticket_agent",
		}, nil
	}
}

func previewText(st State) string {
	if st.Sensitive {
		return fmt.Sprintf(
			"This sounds urgent, so I'm marking it %s priority.\n\nCategory: %s / %s\nTitle: %s\n\n%s\n\nShall I submit it? (yes/cancel)",
			st.Priority, st.Category, st.SubCategory, st.Title, st.Rewrite,
		)
	}
	return fmt.Sprintf(
		"Here's your ticket draft:\n\nCategory: %s / %s\nPriority: %s\nTitle: %s\n\n%s\n\nShall I submit it? (yes/cancel)",
		st.Category, st.SubCategory, st.Priority, st.Title, st.Rewrite,
	)
}

func (f *Flow) generatePreview(ctx context.Context, in handlers.Input, st State) (handlers.Output, error) {
	description := strings.TrimSpace(st.Description)
	if len(description) < minDescriptionLength {
		st.Step = StepCollectDescription
		f.FlowDB.Pause(in.SessionID, flowKey, st)
		return handlers.Output{
			Status:  handlers.StatusNeedsInput,
			Message: "Could you give me a bit more detail? A sentence or two about the issue would help.",
			Agent:   "ticket_agent",
		}, nil
	}

	sensitive := containsSensitiveKeyword(description)

	category, subCategory, priority, title, rewrite, err := f.triage(ctx, description, sensitive)
	if err != nil {
		category, subCategory, priority, title, rewrite = fallbackTriage(description, sensitive)
	}

	st.Category = category
	st.SubCategory = subCategory
	st.Priority = priority
	st.Title = title
	st.Rewrite = rewrite
	st.Sensitive = sensitive
	st.Step = StepPreview
	f.FlowDB.Pause(in.SessionID, flowKey, st)

	return handlers.Output{
		Status:  handlers.StatusNeedsConfirmation,
		Message: previewText(st),
		Agent:   "ticket_agent",
	}, nil
}

func containsSensitiveKeyword(description string) bool {
	lower := strings.ToLower(description)
	for _, kw := range collaborators.SensitiveKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

const triagePromptTemplate = `Classify this student support request.

Description: %s

Valid categories: %s

Respond in exactly this format, nothing else:
CATEGORY: <one of the valid categories above>
PRIORITY: <Low|Medium|High|Urgent>
TITLE: <5-10 word title>
REWRITE: <2-3 sentence professional rewrite of the description>`

func (f *Flow) triage(ctx context.Context, description string, sensitive bool) (category, subCategory, priority, title, rewrite string, err error) {
	var categoryNames []string
	for c := range collaborators.Categories {
		categoryNames = append(categoryNames, c)
	}
	prompt := fmt.Sprintf(triagePromptTemplate, description, strings.Join(categoryNames, ", "))

	resp, genErr := f.Model.Generate(ctx, []*schema.Message{{Role: schema.User, Content: prompt}})
	if genErr != nil {
		return "", "", "", "", "", genErr
	}

	fields := parseTriageResponse(resp.Content)
	category = fields["CATEGORY"]
	if !collaborators.IsValidCategory(category) {
		category = "Other"
	}
	subCategory = collaborators.Categories[category][0]

	priority = fields["PRIORITY"]
	if !collaborators.IsValidPriority(priority) {
		priority = "Medium"
	}
	if sensitive {
		priority = "Urgent"
	}

	title = strings.TrimSpace(fields["TITLE"])
	if title == "" {
		title = truncateWords(description, 8)
	}

	rewrite = strings.TrimSpace(fields["REWRITE"])
	if rewrite == "" {
		rewrite = description
	}
	return category, subCategory, priority, title, rewrite, nil
}

func fallbackTriage(description string, sensitive bool) (category, subCategory, priority, title, rewrite string) {
	category = "Other"
	subCategory = collaborators.Categories[category][0]
	priority = "Medium"
	if sensitive {
		priority = "Urgent"
	}
	title = truncateWords(description, 8)
	rewrite = description
	return
}

func truncateWords(text string, n int) string {
	words := strings.Fields(text)
	if len(words) > n {
		words = words[:n]
	}
	return strings.Join(words, " ")
}

func parseTriageResponse(content string) map[string]string {
	fields := map[string]string{}
	for _, line := range strings.Split(content, "\n") {
		trimmed := strings.TrimSpace(line)
		for _, key := range []string{"CATEGORY", "PRIORITY", "TITLE", "REWRITE"} {
			prefix := key + ":"
			if strings.HasPrefix(strings.ToUpper(trimmed), prefix) {
				fields[key] = strings.TrimSpace(trimmed[len(prefix):])
			}
		}
	}
	return fields
}

// Submit creates the ticket from the confirmed preview state directly in
// ts, with no quota or dedup gate. The executor (C9) does not use it: it
// calls its TicketCreator itself after its own gates.
func Submit(ts *collaborators.TicketStore, studentEmail string, confirmationData map[string]any) (*collaborators.Ticket, error) {
	category, _ := confirmationData["category"].(string)
	subCategory, _ := confirmationData["sub_category"].(string)
	priority, _ := confirmationData["priority"].(string)
	description, _ := confirmationData["description"].(string)

	return ts.CreateTicket(collaborators.NewTicket{
		StudentEmail: studentEmail,
		Category:     category,
		SubCategory:  subCategory,
		Priority:     priority,
		Description:  description,
	})
}
