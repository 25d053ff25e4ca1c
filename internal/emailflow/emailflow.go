// Package emailflow implements the email handler's multi-step state
// machine (C7): start -> collect_recipient | collect_purpose |
// faculty_select -> preview -> (send|cancel|edit), grounded on spec
// §4.7.2 and original_source/agents/email_agent.py's subject/body
// generation rules.
package emailflow

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/dohr-michael/advisorbot/internal/classify"
	"github.com/dohr-michael/advisorbot/internal/collaborators"
	"github.com/dohr-michael/advisorbot/internal/flow"
	"github.com/dohr-michael/advisorbot/internal/handlers"
)

// Step is one of the email flow's fixed states.
type Step string

const (
	StepStart            Step = "start"
	StepCollectRecipient Step = "collect_recipient"
	StepFacultySelect    Step = "faculty_select"
	StepCollectPurpose   Step = "collect_purpose"
	StepPreview          Step = "preview"
)

// State is the flow blob persisted to C1 between turns.
type State struct {
	Step             Step     `json:"step"`
	RecipientEmail   string   `json:"recipient_email,omitempty"`
	RecipientName    string   `json:"recipient_name,omitempty"`
	Purpose          string   `json:"purpose,omitempty"`
	Subject          string   `json:"subject,omitempty"`
	Body             string   `json:"body,omitempty"`
	CandidateMatches []string `json:"candidate_matches,omitempty"`
	CandidateEmails  []string `json:"candidate_emails,omitempty"`
	Regenerate       bool     `json:"regenerate,omitempty"`
}

var cancelKeywords = []string{"cancel", "never mind", "nevermind", "stop", "abort", "forget it", "quit"}
var confirmKeywords = []string{"yes", "confirm", "send", "send it", "go ahead", "ok", "okay", "sure", "looks good", "correct", "do it"}
var editKeywords = []string{"edit", "change", "modify", "update", "fix", "redo", "regenerate", "try again", "rewrite"}

var escapePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)raise\s+a?\s*ticket`),
	regexp.MustCompile(`(?i)attendance\s+policy`),
	regexp.MustCompile(`(?i)what\s+is\s+the`),
}

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

func isEscape(message string) bool {
	for _, p := range escapePatterns {
		if p.MatchString(message) {
			return true
		}
	}
	return false
}

// Flow drives the email step machine, writing its own state to C1 (the
// orchestrator and executor only ever clear it).
type Flow struct {
	Model   model.ToolCallingChatModel
	Faculty *collaborators.FacultyDirectory
	FlowDB  *flow.Store
}

const flowKey = "email"

// FlowKey is the C1 flow_key this flow persists its state under — the
// orchestrator and executor use it to know which flow-pause slot a
// confirmed email action belongs to.
const FlowKey = flowKey

// Handle advances the email flow by one turn, loading prior state from
// FlowDB under in.SessionID and persisting the next state (or clearing
// on terminal steps).
func (f *Flow) Handle(ctx context.Context, in handlers.Input) (handlers.Output, error) {
	var st State
	found, err := f.FlowDB.Resume(in.SessionID, flowKey, &st)
	if err != nil || !found {
		st = State{Step: StepStart}
	}

	if st.Step != StepStart && matchesAny(in.Message, cancelKeywords) {
		f.FlowDB.Clear(in.SessionID, flowKey)
		return handlers.Output{Status: handlers.StatusSuccess, Message: "Okay, I've cancelled that email.", Agent: "email_agent"}, nil
	}

	switch st.Step {
	case StepStart:
		return f.handleStart(ctx, in, st)
	case StepCollectRecipient:
		return f.handleCollectRecipient(ctx, in, st)
	case StepFacultySelect:
		return f.handleFacultySelect(ctx, in, st)
	case StepCollectPurpose:
		return f.handleCollectPurpose(ctx, in, st)
	case StepPreview:
		return f.handlePreview(ctx, in, st)
	default:
		f.FlowDB.Clear(in.SessionID, flowKey)
		return handlers.Output{Status: handlers.StatusError, Message: "Something went wrong with that email draft. Let's start over — who would you like to email?", Agent: "email_agent"}, nil
	}
}

func (f *Flow) handleStart(ctx context.Context, in handlers.Input, st State) (handlers.Output, error) {
	if in.Entities.EmailAddress != "" {
		st.RecipientEmail = in.Entities.EmailAddress
		if in.Entities.Purpose != "" {
			st.Purpose = in.Entities.Purpose
			return f.generatePreview(ctx, in, st)
		}
		st.Step = StepCollectPurpose
		f.pause(in.SessionID, st)
		return handlers.Output{
			Status:  handlers.StatusNeedsInput,
			Message: fmt.Sprintf("What would you like to say to %s?", st.RecipientEmail),
			Agent:   "email_agent",
		}, nil
	}

	if in.Entities.FacultyName != "" {
		return f.searchFaculty(in, st, in.Entities.FacultyName)
	}

	st.Step = StepCollectRecipient
	f.pause(in.SessionID, st)
	return handlers.Output{
		Status:  handlers.StatusNeedsInput,
		Message: "Who would you like to email? You can give me an email address or a faculty member's name.",
		Agent:   "email_agent",
	}, nil
}

func (f *Flow) handleCollectRecipient(ctx context.Context, in handlers.Input, st State) (handlers.Output, error) {
	if isEscape(in.Message) {
		f.FlowDB.Clear(in.SessionID, flowKey)
		return handlers.Output{Status: handlers.StatusError, Message: "Let's switch topics — one moment.", Agent: "email_agent", Metadata: map[string]any{"reclassify": true}}, nil
	}

	entities := extractFromMessage(in.Message)
	if entities.EmailAddress != "" {
		st.RecipientEmail = entities.EmailAddress
		st.Step = StepCollectPurpose
		f.pause(in.SessionID, st)
		return handlers.Output{
			Status:  handlers.StatusNeedsInput,
			Message: fmt.Sprintf("What would you like to say to %s?", st.RecipientEmail),
			Agent:   "email_agent",
		}, nil
	}

	return f.searchFaculty(in, st, in.Message)
}

func (f *Flow) searchFaculty(in handlers.Input, st State, nameQuery string) (handlers.Output, error) {
	result, err := f.Faculty.Search(nameQuery, "", "")
	if err != nil {
		return handlers.Output{Status: handlers.StatusError, Message: "I couldn't search the faculty directory right now. Please try again.", Agent: "email_agent"}, nil
	}

	switch result.Status {
	case collaborators.FacultyFound:
		st.RecipientEmail = result.Match.Email
		st.RecipientName = result.Match.Name
		st.Step = StepCollectPurpose
		f.pause(in.SessionID, st)
		return handlers.Output{
			Status:  handlers.StatusNeedsInput,
			Message: fmt.Sprintf("What would you like to say to %s?", result.Match.Name),
			Agent:   "email_agent",
		}, nil
	case collaborators.FacultyAmbiguous:
		var names, emails []string
		for _, fac := range result.Matches {
			names = append(names, fmt.Sprintf("%s (%s, %s)", fac.Name, fac.Designation, fac.Department))
			emails = append(emails, fac.Email)
		}
		st.CandidateMatches = names
		st.CandidateEmails = emails
		st.Step = StepFacultySelect
		f.pause(in.SessionID, st)
		return handlers.Output{
			Status:  handlers.StatusNeedsInput,
			Message: "I found multiple matches, please pick one by number:\n" + numberedList(names),
			Agent:   "email_agent",
		}, nil
	default:
		st.Step = StepCollectRecipient
		f.pause(in.SessionID, st)
		return handlers.Output{
			Status:  handlers.StatusNeedsInput,
			Message: "I couldn't find that faculty member. Could you give their email address or try another name?",
			Agent:   "email_agent",
		}, nil
	}
}

func numberedList(items []string) string {
	var b strings.Builder
	for i, item := range items {
		fmt.Fprintf(&b, "%d. %s\n", i+1, item)
	}
	return strings.TrimRight(b.String(), "\n")
}

var selectionPattern = regexp.MustCompile(`^\s*(\d+)\s*$`)

func (f *Flow) handleFacultySelect(ctx context.Context, in handlers.Input, st State) (handlers.Output, error) {
	if isEscape(in.Message) {
		f.FlowDB.Clear(in.SessionID, flowKey)
		return handlers.Output{Status: handlers.StatusError, Message: "Let's switch topics — one moment.", Agent: "email_agent", Metadata: map[string]any{"reclassify": true}}, nil
	}

	if m := selectionPattern.FindStringSubmatch(strings.TrimSpace(in.Message)); m != nil {
		idx := 0
		fmt.Sscanf(m[1], "%d", &idx)
		if idx >= 1 && idx <= len(st.CandidateEmails) {
			st.RecipientEmail = st.CandidateEmails[idx-1]
			st.Step = StepCollectPurpose
			st.CandidateEmails = nil
			st.CandidateMatches = nil
			f.pause(in.SessionID, st)
			return handlers.Output{
				Status:  handlers.StatusNeedsInput,
				Message: fmt.Sprintf("What would you like to say to %s?", st.RecipientEmail),
				Agent:   "email_agent",
			}, nil
		}
	}

	return f.searchFaculty(in, st, in.Message)
}

func (f *Flow) handleCollectPurpose(ctx context.Context, in handlers.Input, st State) (handlers.Output, error) {
	if isEscape(in.Message) {
		f.FlowDB.Clear(in.SessionID, flowKey)
		return handlers.Output{Status: handlers.StatusError, Message: "Let's switch topics — one moment.", Agent: "email_agent", Metadata: map[string]any{"reclassify": true}}, nil
	}
	st.Purpose = in.Message
	return f.generatePreview(ctx, in, st)
}

func (f *Flow) handlePreview(ctx context.Context, in handlers.Input, st State) (handlers.Output, error) {
	switch {
	case containsAny(in.Message, confirmKeywords):
		f.FlowDB.Clear(in.SessionID, flowKey)
		return handlers.Output{
			Status: handlers.StatusNeedsConfirmation,
			Message: "Sending your email now.",
			Agent:  "email_agent",
			ConfirmationData: map[string]any{
				"action":  "send_email",
				"to":      st.RecipientEmail,
				"subject": st.Subject,
				"body":    st.Body,
			},
		}, nil
	case containsAny(in.Message, cancelKeywords):
		f.FlowDB.Clear(in.SessionID, flowKey)
		return handlers.Output{Status: handlers.StatusSuccess, Message: "Okay, I've cancelled that email.", Agent: "email_agent"}, nil
	case containsAny(in.Message, editKeywords):
		st.Regenerate = true
		return f.generatePreview(ctx, in, st)
	default:
		f.pause(in.SessionID, st)
		return handlers.Output{
			Status:  handlers.StatusNeedsConfirmation,
			Message: previewText(st),
			Agent:   "email_agent",
		}, nil
	}
}

func (f *Flow) generatePreview(ctx context.Context, in handlers.Input, st State) (handlers.Output, error) {
	subject, body, err := f.generateDraft(ctx, st)
	if err != nil {
		return handlers.Output{Status: handlers.StatusError, Message: "I couldn't draft that email right now. Please try again.", Agent: "email_agent"}, nil
	}
	st.Subject = subject
	st.Body = body
	st.Step = StepPreview
	st.Regenerate = false
	f.pause(in.SessionID, st)
	return handlers.Output{
		Status:  handlers.StatusNeedsConfirmation,
		Message: previewText(st),
		Agent:   "email_agent",
	}, nil
}

func previewText(st State) string {
	return fmt.Sprintf("Here's your draft:\n\nTo: %s\nSubject: %s\n\n%s\n\nShall I send it? (yes/edit/cancel)", st.RecipientEmail, st.Subject, st.Body)
}

func (f *Flow) pause(sessionID string, st State) {
	f.FlowDB.Pause(sessionID, flowKey, st)
}

var metaTagPattern = regexp.MustCompile(`\[[^\]]*\]|\{[^}]*\}|(?i)note:|(?i)system:`)

func sanitizePurpose(purpose string) string {
	lower := strings.ToLower(purpose)
	for _, prefix := range []string{"send email to", "send an email to", "email about", "write an email about"} {
		if idx := strings.Index(lower, prefix); idx == 0 {
			purpose = strings.TrimSpace(purpose[len(prefix):])
			break
		}
	}
	return purpose
}

// generateDraft calls the model once to produce a subject and body,
// following email_agent.py's strict rules: first-person voice, no
// institutional "we", length bands, a single-line greeting, no meta
// tags. Falls back to a minimal template on model error, mirroring the
// original's fallback path.
func (f *Flow) generateDraft(ctx context.Context, st State) (string, string, error) {
	purpose := sanitizePurpose(st.Purpose)
	recipientLabel := st.RecipientName
	if recipientLabel == "" {
		recipientLabel = "Sir/Madam"
	}

	prompt := buildDraftPrompt(purpose, recipientLabel, st.Regenerate)
	resp, err := f.Model.Generate(ctx, []*schema.Message{{Role: schema.User, Content: prompt}})
	if err != nil {
		return fallbackDraft(purpose, recipientLabel)
	}

	subject, body := splitDraft(resp.Content)
	subject = sanitizeSubject(subject, purpose)
	body = metaTagPattern.ReplaceAllString(body, "")
	if len(strings.TrimSpace(subject)) < 5 || isBareNameOrVerb(subject) {
		s, b, _ := fallbackDraft(purpose, recipientLabel)
		return s, b, nil
	}
	return subject, body, nil
}

func fallbackDraft(purpose, recipientLabel string) (string, string, error) {
	words := strings.Fields(purpose)
	if len(words) > 8 {
		words = words[:8]
	}
	subject := strings.Join(words, " ")
	if subject == "" {
		subject = "Request for assistance"
	}
	body := fmt.Sprintf("Dear %s,\n\nI am writing to you regarding: %s.\n\nBest regards,\nStudent", recipientLabel, purpose)
	return subject, body, nil
}

func isBareNameOrVerb(subject string) bool {
	words := strings.Fields(subject)
	return len(words) <= 1
}

func sanitizeSubject(subject, purpose string) string {
	subject = strings.TrimSpace(subject)
	subject = strings.Trim(subject, `"'`)
	if subject == "" {
		words := strings.Fields(purpose)
		if len(words) > 8 {
			words = words[:8]
		}
		subject = strings.Join(words, " ")
	}
	return subject
}

const draftPromptTemplate = `Generate a professional email subject and body for this EXACT purpose:

Purpose: %s
Recipient: %s

Rules:
1. Preserve the purpose exactly — do not change topics or add unrelated content.
2. Write in first-person singular ("I", "my") — the sender is an individual student, never "we" or "our college".
3. Use a brief single-line greeting: "Dear %s,".
4. Medium length: 5-7 sentences. No bullet points unless the purpose explicitly asks for a list.
5. No meta tags, no "Note:", no "System:", no bracketed placeholders.
6. Do not include a signature line.

Respond in exactly this format, nothing else:
SUBJECT: <subject line, 6-10 words>
BODY:
<email body>`

func buildDraftPrompt(purpose, recipientLabel string, regenerate bool) string {
	prompt := fmt.Sprintf(draftPromptTemplate, purpose, recipientLabel, recipientLabel)
	if regenerate {
		prompt += "\n\nVary the phrasing from any prior attempt while keeping the same purpose."
	}
	return prompt
}

func splitDraft(content string) (subject, body string) {
	lines := strings.Split(content, "\n")
	bodyLines := []string{}
	inBody := false
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(strings.ToUpper(trimmed), "SUBJECT:"):
			subject = strings.TrimSpace(trimmed[len("SUBJECT:"):])
		case strings.HasPrefix(strings.ToUpper(trimmed), "BODY:"):
			inBody = true
			rest := strings.TrimSpace(trimmed[len("BODY:"):])
			if rest != "" {
				bodyLines = append(bodyLines, rest)
			}
		case inBody:
			bodyLines = append(bodyLines, line)
		}
	}
	body = strings.TrimSpace(strings.Join(bodyLines, "\n"))
	return subject, body
}

var extractEmailPattern = regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`)

func extractFromMessage(message string) classify.Entities {
	var e classify.Entities
	if m := extractEmailPattern.FindString(message); m != "" {
		e.EmailAddress = m
	}
	return e
}
