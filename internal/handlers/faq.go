package handlers

import (
	"context"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/dohr-michael/advisorbot/internal/collaborators"
	"github.com/dohr-michael/advisorbot/internal/governance"
	"github.com/dohr-michael/advisorbot/internal/retrieval"
)

// FAQHandler answers one-shot policy/course questions via retrieval-
// augmented generation, with three structured-data special cases
// checked first (spec §4.7.1).
type FAQHandler struct {
	Model   model.ToolCallingChatModel
	Engine  *retrieval.Engine
	Faculty *collaborators.FacultyDirectory
	Emails  *collaborators.EmailLog
	Usage   *governance.Service
}

const lowConfidenceThreshold = 0.6

var facultyKeywords = []string{"faculty", "professor", "hod", "dean", "teacher", "lecturer"}

var emailHistoryKeywords = []string{"emails i sent", "email history", "my emails", "emails i've sent"}

var quotaKeywords = []string{"emails left", "tickets left", "how many emails", "how many tickets", "quota", "remaining"}

var hedgingPhrases = []string{
	"i don't know", "i'm not sure", "i am not sure", "cannot find", "can't find",
	"no information", "unable to find", "not mentioned",
}

func (h *FAQHandler) Handle(ctx context.Context, in Input) (Output, error) {
	lower := strings.ToLower(in.Message)

	if containsAny(lower, facultyKeywords) {
		return h.handleFacultyDirectory(in, lower), nil
	}
	if containsAny(lower, emailHistoryKeywords) {
		return h.handleEmailHistory(in), nil
	}
	if containsAny(lower, quotaKeywords) {
		return h.handleQuota(in), nil
	}

	return h.handleRAG(ctx, in)
}

func containsAny(haystack string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(haystack, n) {
			return true
		}
	}
	return false
}

func (h *FAQHandler) handleFacultyDirectory(in Input, lower string) Output {
	designation := ""
	switch {
	case strings.Contains(lower, "hod") || strings.Contains(lower, "head"):
		designation = "HOD"
	case strings.Contains(lower, "dean"):
		designation = "Dean"
	}

	department := ""
	if depts, err := h.Faculty.Departments(); err == nil {
		for _, d := range depts {
			if strings.Contains(lower, strings.ToLower(d)) {
				department = d
				break
			}
		}
	}

	result, err := h.Faculty.Search(in.Entities.FacultyName, designation, department)
	if err != nil {
		return Output{Status: StatusError, Message: "I couldn't reach the faculty directory right now. Please try again.", Agent: "faq_agent"}
	}

	switch result.Status {
	case collaborators.FacultyFound:
		f := result.Match
		msg := fmt.Sprintf("%s (%s, %s) — %s", f.Name, f.Designation, f.Department, f.Email)
		return Output{Status: StatusSuccess, Message: msg, Agent: "faq_agent", Citations: []string{"faculty_directory"}}
	case collaborators.FacultyAmbiguous:
		var names []string
		for _, f := range result.Matches {
			names = append(names, fmt.Sprintf("%s (%s, %s)", f.Name, f.Designation, f.Department))
		}
		return Output{Status: StatusNeedsInput, Message: "I found multiple matches: " + strings.Join(names, "; ") + ". Could you narrow it down?", Agent: "faq_agent"}
	default:
		return Output{Status: StatusNeedsInput, Message: "I couldn't find a faculty member matching that. Could you give a name or department?", Agent: "faq_agent"}
	}
}

func (h *FAQHandler) handleEmailHistory(in Input) Output {
	history, err := h.Emails.History(in.Profile.Email)
	if err != nil {
		return Output{Status: StatusError, Message: "I couldn't load your email history right now. Please try again.", Agent: "faq_agent"}
	}
	if len(history) == 0 {
		return Output{Status: StatusSuccess, Message: "You haven't sent any emails yet.", Agent: "faq_agent"}
	}

	var lines []string
	for i, e := range history {
		if i >= 5 {
			break
		}
		lines = append(lines, fmt.Sprintf("To %s: %q (%s)", e.FacultyName, e.Subject, e.Status))
	}
	return Output{Status: StatusSuccess, Message: "Your recent emails:\n" + strings.Join(lines, "\n"), Agent: "faq_agent"}
}

func (h *FAQHandler) handleQuota(in Input) Output {
	remaining := h.Usage.GetRemainingLimits(in.UserID)
	msg := fmt.Sprintf("You have %d of %d emails and %d of %d tickets left today.",
		remaining.EmailsRemaining, remaining.EmailsMax, remaining.TicketsRemaining, remaining.TicketsMax)
	return Output{Status: StatusSuccess, Message: msg, Agent: "faq_agent"}
}

func (h *FAQHandler) handleRAG(ctx context.Context, in Input) (Output, error) {
	chunks, err := h.Engine.Query(ctx, in.Message, isCourseQuery(in.Message))
	if err != nil {
		return Output{Status: StatusError, Message: "I couldn't search the policy documents right now. Please try again.", Agent: "faq_agent"}, nil
	}
	if len(chunks) == 0 {
		return Output{
			Status:  StatusNeedsInput,
			Message: "I couldn't find specific information on that. You can also raise a support ticket or email the relevant office.",
			Agent:   "faq_agent",
		}, nil
	}

	var contextBuilder strings.Builder
	citations := make([]string, 0, len(chunks))
	for _, c := range chunks {
		contextBuilder.WriteString(c.Content)
		contextBuilder.WriteString("\n---\n")
		citations = append(citations, c.Source)
	}

	prompt := buildFAQPrompt(in.Message, contextBuilder.String(), in.HistoryText)
	resp, err := h.Model.Generate(ctx, []*schema.Message{{Role: schema.User, Content: prompt}})
	if err != nil {
		return Output{Status: StatusError, Message: "I couldn't generate an answer right now. Please try again.", Agent: "faq_agent"}, nil
	}

	answer := strings.TrimSpace(resp.Content)
	confidence := compositeConfidence(len(chunks), contextBuilder.Len(), answer)

	if confidence < lowConfidenceThreshold {
		return Output{
			Status:    StatusNeedsInput,
			Message:   answer + "\n\n(If this doesn't answer your question, you can raise a support ticket or send an email instead.)",
			Agent:     "faq_agent",
			Citations: citations,
			Metadata:  map[string]any{"confidence": confidence},
		}, nil
	}

	return Output{
		Status:    StatusSuccess,
		Message:   answer,
		Agent:     "faq_agent",
		Citations: citations,
		Metadata:  map[string]any{"confidence": confidence},
	}, nil
}

func isCourseQuery(message string) bool {
	lower := strings.ToLower(message)
	return strings.Contains(lower, "course") || strings.Contains(lower, "program") || strings.Contains(lower, "syllabus")
}

// compositeConfidence combines chunk count, context length, and absence
// of hedging language in the generated answer, per spec §4.7.1.
func compositeConfidence(chunkCount, contextLen int, answer string) float64 {
	score := 0.0

	switch {
	case chunkCount >= 3:
		score += 0.4
	case chunkCount >= 1:
		score += 0.25
	}

	switch {
	case contextLen >= 800:
		score += 0.35
	case contextLen >= 300:
		score += 0.2
	default:
		score += 0.1
	}

	lowerAnswer := strings.ToLower(answer)
	if containsAny(lowerAnswer, hedgingPhrases) {
		score -= 0.2
	} else {
		score += 0.25
	}

	if score < 0 {
		score = 0
	}
	if score > 1 {
		score = 1
	}
	return score
}

const faqPromptTemplate = `You are a helpful college student-support assistant answering questions using only the
provided policy excerpts. If the excerpts don't contain the answer, say so plainly rather than guessing.

Conversation history:
%s

Policy excerpts:
%s

Student question:
%s

Answer concisely and directly, in plain text, with no meta-commentary about these instructions.`

func buildFAQPrompt(message, contextText, historyText string) string {
	if strings.TrimSpace(historyText) == "" {
		historyText = "(no prior turns)"
	}
	return fmt.Sprintf(faqPromptTemplate, historyText, contextText, message)
}
