package orchestrator

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/dohr-michael/advisorbot/internal/actors"
	"github.com/dohr-michael/advisorbot/internal/chatmemory"
	"github.com/dohr-michael/advisorbot/internal/classify"
	"github.com/dohr-michael/advisorbot/internal/dedup"
	"github.com/dohr-michael/advisorbot/internal/emailflow"
	"github.com/dohr-michael/advisorbot/internal/events"
	"github.com/dohr-michael/advisorbot/internal/executor"
	"github.com/dohr-michael/advisorbot/internal/flow"
	"github.com/dohr-michael/advisorbot/internal/gateway"
	"github.com/dohr-michael/advisorbot/internal/handlers"
	"github.com/dohr-michael/advisorbot/internal/ticketflow"
	"github.com/dohr-michael/advisorbot/internal/turnlog"
)

// cancelKeywords short-circuits an in-progress flow the moment the user
// says so, before any flow handler or classifier runs (spec §4.8 step 3).
var cancelKeywords = []string{"cancel", "never mind", "nevermind", "stop", "abort", "forget it", "quit"}

func isCancelKeyword(message string) bool {
	lower := strings.ToLower(strings.TrimSpace(message))
	for _, k := range cancelKeywords {
		if lower == k {
			return true
		}
	}
	return false
}

const defaultHistoryLimit = 10

// ProfileResolver looks up the student profile context a turn needs.
// The HTTP auth/registration/profile surface is out of spec scope
// (spec §1); callers wire whatever collaborator owns that data, or
// leave it nil to fall back to a bare profile keyed on user_id.
type ProfileResolver func(userID string) handlers.StudentProfile

// Orchestrator is the single entry point (C8) driving one turn of the
// dialogue: load flow state, cancel/continue/classify/route, call the
// matching handler, validate its output, gate confirmed side effects,
// and persist the turn.
type Orchestrator struct {
	FlowDB     *flow.Store
	Memory     chatmemory.Store
	Classifier *classify.Classifier
	Dedup      *dedup.Cache
	Executor   *executor.Executor
	TurnLog    *turnlog.Logger
	Actors     *actors.Pool
	Bus        *events.Bus

	FAQ          handlers.Handler
	Greeting     handlers.Handler
	TicketStatus handlers.Handler
	EmailFlow    *emailflow.Flow
	TicketFlow   *ticketflow.Flow

	Profiles     ProfileResolver
	HistoryLimit int

	// sessionUsers remembers the last user_id seen for a session, since
	// ConfirmActionRequest carries no user_id of its own — the UI's
	// confirm-button round trip relies on the chat turn that produced
	// the preview having gone through Handle first.
	sessionUsers sync.Map
}

var _ gateway.Orchestrator = (*Orchestrator)(nil)

// turn carries per-invocation working state through the control flow's
// steps so they can share it without a long parameter list.
type turn struct {
	userID    string
	sessionID string
	message   string
	profile   handlers.StudentProfile

	intent         string
	confidence     float64
	activeFlow     string
	extractedSlots map[string]any
}

// Handle runs the eleven-step control flow for one chat turn (spec §4.8).
func (o *Orchestrator) Handle(ctx context.Context, req gateway.OrchestratorRequest) (any, error) {
	release := o.Actors.Acquire(req.SessionID)
	defer release()

	t := &turn{
		userID:    req.UserID,
		sessionID: req.SessionID,
		message:   req.Message,
	}
	t.profile = o.resolveProfile(t.userID)
	if t.userID != "" {
		o.sessionUsers.Store(t.sessionID, t.userID)
	}

	// Step 1: session-timeout probe, then touch activity for this turn.
	if o.FlowDB.CheckSessionTimeout(t.sessionID) {
		slog.Info("orchestrator: session timed out, any paused flow is already dead", "session_id", t.sessionID)
	}
	o.FlowDB.UpdateActivity(t.sessionID)

	// Step 2: load active flow.
	hasEmail := o.FlowDB.Has(t.sessionID, emailflow.FlowKey)
	hasTicket := o.FlowDB.Has(t.sessionID, ticketflow.FlowKey)

	// Step 3: cancel short-circuit.
	if (hasEmail || hasTicket) && isCancelKeyword(t.message) {
		cancelledKey := emailflow.FlowKey
		if hasTicket {
			cancelledKey = ticketflow.FlowKey
		}
		o.FlowDB.Clear(t.sessionID, emailflow.FlowKey)
		o.FlowDB.Clear(t.sessionID, ticketflow.FlowKey)
		o.Bus.Publish(events.NewTypedEventWithSession(events.SourceOrchestrator, events.FlowClearedPayload{
			FlowPayload: events.FlowPayload{FlowKey: cancelledKey, Reason: "user_cancel"},
		}, t.sessionID))
		out := handlers.Output{Status: handlers.StatusSuccess, Message: "Okay, I've cancelled that.", Agent: "orchestrator"}
		return o.finish(ctx, t, out, nil), nil
	}

	// Step 4: active-flow dispatch (no reclassification, unless the
	// handler itself signals an escape — spec §9's interruption case).
	if hasEmail || hasTicket {
		flowName := "email"
		var h handlers.Handler = o.EmailFlow
		if hasTicket {
			flowName = "ticket"
			h = o.TicketFlow
		}

		in := handlers.Input{
			Message:       t.message,
			UserID:        t.userID,
			SessionID:     t.sessionID,
			Profile:       t.profile,
			HasActiveFlow: true,
		}
		out, err := h.Handle(ctx, in)
		if err != nil || !out.Valid() {
			out = genericErrorOutput()
		}

		if !isReclassifyEscape(out) {
			return o.finishFlowTurn(ctx, t, flowName, out), nil
		}
		// fall through: the handler already cleared its own state and
		// is asking the orchestrator to reclassify this same message.
	}

	return o.classifyAndRoute(ctx, t), nil
}

// ConfirmAction handles the confirm-button round trip: a UI client that
// displayed a preview the orchestrator returned earlier posts back
// {session_id, confirmed, action_data, edited_draft} instead of typing a
// "confirm" chat message. It runs the same executor gate as the chat
// confirm path (maybeExecuteConfirmation) rather than duplicating it.
func (o *Orchestrator) ConfirmAction(ctx context.Context, req gateway.ConfirmActionRequest) (any, error) {
	release := o.Actors.Acquire(req.SessionID)
	defer release()

	userID, _ := o.sessionUsers.Load(req.SessionID)
	uid, _ := userID.(string)

	t := &turn{
		userID:    uid,
		sessionID: req.SessionID,
		message:   "",
	}
	t.profile = o.resolveProfile(t.userID)

	if !req.Confirmed {
		o.FlowDB.Clear(t.sessionID, emailflow.FlowKey)
		o.FlowDB.Clear(t.sessionID, ticketflow.FlowKey)
		out := handlers.Output{Status: handlers.StatusSuccess, Message: "Okay, I've cancelled that.", Agent: "orchestrator"}
		return o.finish(ctx, t, out, nil), nil
	}

	action, _ := req.ActionData["action"].(string)
	flowName := "email"
	if action == string(executor.ActionTicketPreview) {
		flowName = "ticket"
	}
	t.intent = strings.ToUpper(flowName)

	merged := mergeEditedDraft(req.ActionData, req.EditedDraft)
	out := handlers.Output{
		Status:           handlers.StatusNeedsConfirmation,
		Agent:            agentNameFor(flowName),
		ConfirmationData: merged,
	}
	out = o.maybeExecuteConfirmation(t, out, flowName)
	return o.finish(ctx, t, out, nil), nil
}

// mergeEditedDraft overlays edited subject/body fields onto the original
// confirmation data. The recipient address is never taken from the
// edited draft: a student reviewing their own preview can rewrite what
// they're saying, not who an email goes to.
func mergeEditedDraft(actionData, editedDraft map[string]any) map[string]any {
	merged := make(map[string]any, len(actionData))
	for k, v := range actionData {
		merged[k] = v
	}
	for _, k := range []string{"subject", "body", "description"} {
		if v, ok := editedDraft[k]; ok {
			merged[k] = v
		}
	}
	return merged
}

func agentNameFor(flowName string) string {
	if flowName == "ticket" {
		return "ticket_agent"
	}
	return "email_agent"
}

// finishFlowTurn resolves a handler Output produced from an active-flow
// dispatch (step 4) into an envelope, running the confirm/execute gate
// exactly as the fresh-dispatch path does.
func (o *Orchestrator) finishFlowTurn(ctx context.Context, t *turn, flowName string, out handlers.Output) any {
	t.intent = strings.ToUpper(flowName)
	t.activeFlow = o.stillActive(t.sessionID)
	out = o.maybeExecuteConfirmation(t, out, flowName)
	return o.finish(ctx, t, out, nil)
}

// classifyAndRoute implements steps 5-7: compute history, classify,
// threshold-gate, and dispatch to the matching handler.
func (o *Orchestrator) classifyAndRoute(ctx context.Context, t *turn) any {
	historyLimit := o.HistoryLimit
	if historyLimit <= 0 {
		historyLimit = defaultHistoryLimit
	}
	historyText, err := o.Memory.UserContext(t.userID, t.sessionID, historyLimit)
	if err != nil {
		slog.Warn("orchestrator: history lookup failed, proceeding with empty context", "error", err, "session_id", t.sessionID)
		historyText = ""
	}

	result := o.Classifier.Classify(ctx, t.message, historyText)
	t.intent = string(result.Intent)
	t.confidence = result.Confidence
	t.extractedSlots = result.Entities.ToMap()

	o.Bus.Publish(events.NewTypedEventWithSession(events.SourceClassifier, events.IntentClassifiedPayload{
		Intent:     string(result.Intent),
		Confidence: result.Confidence,
	}, t.sessionID))

	if o.Dedup != nil && result.Intent != classify.IntentUnknown {
		if dup, cached := o.Dedup.CheckDuplicate(t.userID, string(result.Intent), t.extractedSlots, t.message); dup {
			o.Bus.Publish(events.NewTypedEventWithSession(events.SourceDedup, events.DuplicateSuppressedPayload{
				Intent:      string(result.Intent),
				Fingerprint: o.Dedup.Fingerprint(t.userID, string(result.Intent), t.extractedSlots),
			}, t.sessionID))
			if out, ok := cached.(handlers.Output); ok {
				return o.finish(ctx, t, out, nil)
			}
		}
	}

	// Step 6: threshold gate.
	if !result.MeetsThreshold() {
		out := handlers.Output{
			Status:  handlers.StatusNeedsInput,
			Message: "I'm not quite sure what you'd like to do. Could you rephrase, or tell me if you want to ask a question, send an email, or raise a support ticket?",
			Agent:   "orchestrator",
		}
		return o.finish(ctx, t, out, nil)
	}

	// Step 7: intent switch.
	out := o.dispatch(ctx, t, result, historyText)
	if o.Dedup != nil {
		o.Dedup.CacheResponse(t.userID, string(result.Intent), t.extractedSlots, out)
	}
	return o.finish(ctx, t, out, nil)
}

func (o *Orchestrator) dispatch(ctx context.Context, t *turn, result classify.Result, historyText string) handlers.Output {
	in := handlers.Input{
		Message:     t.message,
		UserID:      t.userID,
		SessionID:   t.sessionID,
		Profile:     t.profile,
		Entities:    result.Entities,
		HistoryText: historyText,
	}

	var out handlers.Output
	var err error
	flowName := ""

	switch result.Intent {
	case classify.IntentEmail:
		o.FlowDB.Clear(t.sessionID, emailflow.FlowKey)
		o.FlowDB.Clear(t.sessionID, ticketflow.FlowKey)
		out, err = o.EmailFlow.Handle(ctx, in)
		flowName = "email"
	case classify.IntentTicket:
		o.FlowDB.Clear(t.sessionID, emailflow.FlowKey)
		o.FlowDB.Clear(t.sessionID, ticketflow.FlowKey)
		out, err = o.TicketFlow.Handle(ctx, in)
		flowName = "ticket"
	case classify.IntentFAQ:
		out, err = o.FAQ.Handle(ctx, in)
	case classify.IntentTicketStatus:
		out, err = o.TicketStatus.Handle(ctx, in)
	case classify.IntentGreeting:
		out, err = o.Greeting.Handle(ctx, in)
	default:
		out = handlers.Output{
			Status:  handlers.StatusNeedsInput,
			Message: "I didn't quite catch that. I can answer policy questions, send emails, or raise support tickets — what would you like to do?",
			Agent:   "orchestrator",
		}
	}

	// Step 8: validation.
	if err != nil || !out.Valid() {
		out = genericErrorOutput()
	}

	if flowName != "" {
		t.activeFlow = o.stillActive(t.sessionID)
		out = o.maybeExecuteConfirmation(t, out, flowName)
	}
	return out
}

// maybeExecuteConfirmation inspects a flow handler's output for the
// confirm-keyword signal (NeedsConfirmation + non-nil ConfirmationData)
// and, when present, runs it straight through the executor (C9) so a
// plain "send"/"confirm" chat turn completes the side effect in one
// round trip, matching spec scenario S2.
func (o *Orchestrator) maybeExecuteConfirmation(t *turn, out handlers.Output, flowName string) handlers.Output {
	if out.Status != handlers.StatusNeedsConfirmation || out.ConfirmationData == nil {
		return out
	}

	data, ok := confirmationDataFromMap(out.ConfirmationData, flowKeyFor(flowName))
	if !ok {
		return genericErrorOutput()
	}

	result := o.Executor.Execute(t.userID, t.sessionID, data, struct{ Email, FullName string }{t.profile.Email, t.profile.FullName})
	if !result.Success {
		o.Bus.Publish(events.NewTypedEventWithSession(events.SourceExecutor, events.SideEffectBlockedPayload{
			Kind:   flowName,
			Reason: result.Message,
		}, t.sessionID))
		return handlers.Output{Status: handlers.StatusError, Message: result.Message, Agent: out.Agent}
	}

	o.Bus.Publish(events.NewTypedEventWithSession(events.SourceExecutor, events.SideEffectPayload{
		Kind: flowName,
	}, t.sessionID))
	t.activeFlow = ""
	return handlers.Output{
		Status:      handlers.StatusSuccess,
		Message:     result.Message,
		Agent:       out.Agent,
		SideEffects: []string{string(data.Action)},
	}
}

func flowKeyFor(flowName string) string {
	if flowName == "ticket" {
		return ticketflow.FlowKey
	}
	return emailflow.FlowKey
}

func confirmationDataFromMap(m map[string]any, flowKey string) (executor.Data, bool) {
	action, _ := m["action"].(string)
	if action == "" {
		return executor.Data{}, false
	}
	return executor.Data{
		Action:      executor.Action(action),
		To:          str(m["to"]),
		FacultyName: str(m["faculty_name"]),
		Subject:     str(m["subject"]),
		Body:        str(m["body"]),
		Category:    str(m["category"]),
		SubCategory: str(m["sub_category"]),
		Priority:    str(m["priority"]),
		Description: str(m["description"]),
		FlowKey:     flowKey,
		Sensitive:   boolVal(m["sensitive"]),
	}, true
}

func str(v any) string {
	s, _ := v.(string)
	return s
}

func boolVal(v any) bool {
	b, _ := v.(bool)
	return b
}

// isReclassifyEscape reports whether a flow-handler output is asking
// the orchestrator to abandon the flow and reclassify the same message
// (spec §9's stale-flow interruption, e.g. scenario S6).
func isReclassifyEscape(out handlers.Output) bool {
	if out.Metadata == nil {
		return false
	}
	v, _ := out.Metadata["reclassify"].(bool)
	return v
}

// stillActive reports which flow (if any) remains paused for sessionID,
// for the envelope's active_flow metadata field.
func (o *Orchestrator) stillActive(sessionID string) string {
	if o.FlowDB.Has(sessionID, emailflow.FlowKey) {
		return "email"
	}
	if o.FlowDB.Has(sessionID, ticketflow.FlowKey) {
		return "ticket"
	}
	return ""
}

// finish implements steps 9-11: persist the turn to chat memory, write
// the turn log record, and build the returned envelope.
func (o *Orchestrator) finish(ctx context.Context, t *turn, out handlers.Output, agentOutput *AgentOutput) Envelope {
	envType := envelopeType(out)

	if t.userID != "" {
		if err := o.Memory.SaveMessage(t.userID, t.sessionID, chatmemory.RoleStudent, t.message, t.intent, "", nil); err != nil {
			slog.Warn("orchestrator: save user message failed", "error", err, "session_id", t.sessionID)
		}
		botMeta := compactSummary(t)
		if err := o.Memory.SaveMessage(t.userID, t.sessionID, chatmemory.RoleAssistant, out.Message, t.intent, out.Agent, botMeta); err != nil {
			slog.Warn("orchestrator: save bot message failed", "error", err, "session_id", t.sessionID)
		}
	}

	if o.TurnLog != nil {
		o.TurnLog.Log(turnlog.Record{
			Ts:           time.Now(),
			UserID:       t.userID,
			SessionID:    t.sessionID,
			Message:      previewString(t.message, 120),
			Intent:       t.intent,
			Confidence:   t.confidence,
			ActiveFlow:   t.activeFlow,
			Agent:        out.Agent,
			Status:       string(out.Status),
			EnvelopeType: string(envType),
			Metadata: map[string]any{
				"bot_response_prefix": previewString(out.Message, 120),
				"side_effects":        out.SideEffects,
			},
		})
	}

	o.Bus.Publish(events.NewTypedEventWithSession(events.SourceOrchestrator, events.AssistantMessagePayload{
		Status:  string(out.Status),
		Content: previewString(out.Message, 200),
	}, t.sessionID))

	return Envelope{
		Type:    envType,
		Agent:   out.Agent,
		Content: out.Message,
		Metadata: Metadata{
			Intent:         t.intent,
			Confidence:     t.confidence,
			ActiveFlow:     t.activeFlow,
			ExtractedSlots: t.extractedSlots,
		},
		AgentOutput: agentOutput,
	}
}

// compactSummary renders the spec §9 "compact summary only" decision:
// intent, active flow, and the names (not values) of entities extracted
// this turn. The flow-pause store remains the sole holder of full state.
func compactSummary(t *turn) map[string]string {
	m := map[string]string{"intent": t.intent}
	if t.activeFlow != "" {
		m["active_flow"] = t.activeFlow
	}
	if len(t.extractedSlots) > 0 {
		keys := make([]string, 0, len(t.extractedSlots))
		for k := range t.extractedSlots {
			keys = append(keys, k)
		}
		m["filled_slots"] = strings.Join(keys, ",")
	}
	return m
}

func previewString(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

func envelopeType(out handlers.Output) EnvelopeType {
	switch out.Status {
	case handlers.StatusNeedsInput:
		return TypeClarificationReq
	case handlers.StatusNeedsConfirmation:
		switch out.Agent {
		case "ticket_agent":
			return TypeTicketPreview
		case "email_agent":
			return TypeEmailPreview
		default:
			return TypeConfirmationRequest
		}
	default:
		return TypeInformation
	}
}

func genericErrorOutput() handlers.Output {
	return handlers.Output{
		Status:  handlers.StatusError,
		Message: "Something went wrong on my end. Please try again.",
		Agent:   "orchestrator",
	}
}

func (o *Orchestrator) resolveProfile(userID string) handlers.StudentProfile {
	if o.Profiles != nil {
		return o.Profiles(userID)
	}
	return handlers.StudentProfile{Email: userID}
}
