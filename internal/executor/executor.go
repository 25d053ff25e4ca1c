// Package executor implements the side-effect executor (C9): the
// strict gate sequence (dedup -> quota -> perform -> commit) that
// guards every email send and ticket creation, per spec §4.9.
package executor

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dohr-michael/advisorbot/internal/collaborators"
	"github.com/dohr-michael/advisorbot/internal/flow"
	"github.com/dohr-michael/advisorbot/internal/governance"
)

// Action is the closed set of side effects the executor performs.
type Action string

const (
	ActionSendEmail     Action = "send_email"
	ActionEmailPreview  Action = "email_preview"
	ActionTicketPreview Action = "ticket_preview"
)

// normalize maps the accepted synonyms (email_preview/ticket_preview,
// once confirmed) onto their canonical side effect.
func normalize(action Action) Action {
	if action == ActionEmailPreview {
		return ActionSendEmail
	}
	return action
}

// Data carries the confirmed draft fields the executor needs to
// perform a side effect, and to compute its salient fingerprint.
type Data struct {
	Action      Action
	To          string
	FacultyName string
	Subject     string
	Body        string
	Category    string
	SubCategory string
	Priority    string
	Description string

	// FlowKey is the C1 flow_key (emailflow.FlowKey / ticketflow.FlowKey)
	// the orchestrator entered to produce this confirmed action. The
	// flow handler already clears it on the confirming turn; the
	// executor clears it again defensively on success so a retried or
	// out-of-band confirmation never leaves stale state behind.
	FlowKey string

	// Sensitive carries the ticket flow's own sensitive-keyword
	// decision (made against the student's raw complaint, before the
	// LLM's professional rewrite overwrote Description). The executor
	// trusts this instead of re-deriving sensitivity from the rewrite,
	// which can soften or drop the triggering keyword.
	Sensitive bool
}

// Result is the executor's return contract.
type Result struct {
	Success bool
	Message string
	Ticket  *collaborators.Ticket
}

// EmailSender is the narrow collaborator interface the executor sends
// through — satisfied by *collaborators.EmailLog plus whatever actually
// delivers the message (SendGrid in the original; this module logs the
// send and records history, see DESIGN.md for the dropped transport).
type EmailSender interface {
	Record(studentEmail, facultyName, subject, body, status string) error
}

// TicketCreator is the narrow collaborator interface for ticket creation.
type TicketCreator interface {
	CreateTicket(nt collaborators.NewTicket) (*collaborators.Ticket, error)
}

const executedActionTTL = 10 * time.Minute

type executedEntry struct {
	expiresAt time.Time
}

// Executor guards every side effect behind dedup + quota gates.
type Executor struct {
	mu       sync.Mutex
	executed map[string]executedEntry

	Emails  EmailSender
	Tickets TicketCreator
	Usage   *governance.Service
	FlowDB  *flow.Store
}

// New creates an Executor wired to its collaborators.
func New(emails EmailSender, tickets TicketCreator, usage *governance.Service, flowDB *flow.Store) *Executor {
	return &Executor{
		executed: make(map[string]executedEntry),
		Emails:   emails,
		Tickets:  tickets,
		Usage:    usage,
		FlowDB:   flowDB,
	}
}

// Execute runs the gate sequence for one confirmed action.
func (e *Executor) Execute(userID, sessionID string, data Data, profile struct{ Email, FullName string }) Result {
	action := normalize(data.Action)

	fp := e.fingerprint(userID, action, data)
	if e.isExecuted(fp) {
		return Result{Success: false, Message: "This has already been sent — no need to do it again."}
	}

	sensitive := action == ActionTicketPreview && data.Sensitive

	if !sensitive {
		kind := governance.ActionEmail
		if action == ActionTicketPreview {
			kind = governance.ActionTicket
		}
		limits := e.Usage.CheckDailyLimit(userID, kind)
		if !limits.Allowed {
			return Result{Success: false, Message: fmt.Sprintf("You've reached your daily limit of %d. Please try again tomorrow.", limits.Max)}
		}
	}

	switch action {
	case ActionSendEmail:
		return e.executeEmail(userID, sessionID, data, fp)
	case ActionTicketPreview:
		return e.executeTicket(userID, sessionID, data, fp)
	default:
		return Result{Success: false, Message: "I don't recognize that action."}
	}
}

func (e *Executor) executeEmail(userID, sessionID string, data Data, fp string) Result {
	if err := e.Emails.Record(userID, data.FacultyName, data.Subject, data.Body, "Sent"); err != nil {
		slog.Error("executor: email record failed", "error", err, "user_id", userID)
		return Result{Success: false, Message: "I couldn't send that email right now. Please try again."}
	}

	e.markExecuted(fp)
	if err := e.Usage.IncrementUsage(userID, governance.ActionEmail); err != nil {
		slog.Error("executor: increment email usage failed", "error", err, "user_id", userID)
	}
	e.Usage.LogActivity(userID, governance.ActivityEmailSent, fmt.Sprintf("Email sent to %s: %s", data.To, data.Subject))
	if data.FlowKey != "" {
		e.FlowDB.Clear(sessionID, data.FlowKey)
	}

	return Result{Success: true, Message: fmt.Sprintf("Your email to %s has been sent.", data.To)}
}

func (e *Executor) executeTicket(userID, sessionID string, data Data, fp string) Result {
	ticket, err := e.Tickets.CreateTicket(collaborators.NewTicket{
		StudentEmail: userID,
		Category:     data.Category,
		SubCategory:  data.SubCategory,
		Priority:     data.Priority,
		Description:  data.Description,
	})
	if err != nil {
		slog.Error("executor: ticket creation failed", "error", err, "user_id", userID)
		return Result{Success: false, Message: "I couldn't create that ticket right now. Please try again."}
	}

	e.markExecuted(fp)
	if !data.Sensitive {
		if err := e.Usage.IncrementUsage(userID, governance.ActionTicket); err != nil {
			slog.Error("executor: increment ticket usage failed", "error", err, "user_id", userID)
		}
	}
	e.Usage.LogActivity(userID, governance.ActivityTicketCreated, fmt.Sprintf("Ticket %s created: %s", ticket.TicketID, data.Category))
	if data.FlowKey != "" {
		e.FlowDB.Clear(sessionID, data.FlowKey)
	}

	return Result{Success: true, Message: fmt.Sprintf("Your ticket %s has been submitted.", ticket.TicketID), Ticket: ticket}
}

// fingerprint computes the salient-field hash for the executed-actions
// set, per spec §4.9: for email (to, subject[:50]); for ticket
// (description[:50]).
func (e *Executor) fingerprint(userID string, action Action, data Data) string {
	h := sha256.New()
	h.Write([]byte(userID))
	h.Write([]byte{'|'})
	h.Write([]byte(action))
	h.Write([]byte{'|'})
	switch action {
	case ActionSendEmail:
		h.Write([]byte(data.To))
		h.Write([]byte{'|'})
		h.Write([]byte(truncate(data.Subject, 50)))
	case ActionTicketPreview:
		h.Write([]byte(truncate(data.Description, 50)))
	}
	return hex.EncodeToString(h.Sum(nil))
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

func (e *Executor) isExecuted(fp string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cleanExpiredLocked()
	_, ok := e.executed[fp]
	return ok
}

func (e *Executor) markExecuted(fp string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.executed[fp] = executedEntry{expiresAt: time.Now().Add(executedActionTTL)}
}

func (e *Executor) cleanExpiredLocked() {
	now := time.Now()
	for fp, entry := range e.executed {
		if now.After(entry.expiresAt) {
			delete(e.executed, fp)
		}
	}
}
