package handlers

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/dohr-michael/advisorbot/internal/collaborators"
)

// TicketStatusHandler answers one-shot close/close-all/list requests
// against the student's own tickets (spec §4.7.4). Every operation is
// ownership-checked against user_id.
type TicketStatusHandler struct {
	Tickets *collaborators.TicketStore
}

var closeAllPattern = regexp.MustCompile(`(?i)close\s+all\s+tickets?`)
var closeOnePattern = regexp.MustCompile(`(?i)close\s+ticket\s*#?\s*([A-Za-z0-9\-]+)`)

func (h *TicketStatusHandler) Handle(_ context.Context, in Input) (Output, error) {
	message := strings.TrimSpace(in.Message)

	if closeAllPattern.MatchString(message) {
		return h.closeAll(in)
	}
	if m := closeOnePattern.FindStringSubmatch(message); m != nil {
		return h.closeOne(in, m[1])
	}
	return h.list(in)
}

func (h *TicketStatusHandler) closeOne(in Input, ticketID string) (Output, error) {
	if err := h.Tickets.CloseTicket(ticketID, in.Profile.Email); err != nil {
		return Output{Status: StatusError, Message: err.Error(), Agent: "ticket_agent"}, nil
	}
	return Output{
		Status:      StatusSuccess,
		Message:     fmt.Sprintf("Ticket %s has been closed.", ticketID),
		Agent:       "ticket_agent",
		SideEffects: []string{"ticket_closed"},
	}, nil
}

func (h *TicketStatusHandler) closeAll(in Input) (Output, error) {
	count, err := h.Tickets.CloseAllTickets(in.Profile.Email)
	if err != nil {
		return Output{Status: StatusError, Message: "I couldn't close your tickets right now. Please try again.", Agent: "ticket_agent"}, nil
	}
	if count == 0 {
		return Output{Status: StatusSuccess, Message: "You have no open tickets to close.", Agent: "ticket_agent"}, nil
	}
	return Output{
		Status:      StatusSuccess,
		Message:     fmt.Sprintf("Closed %d open ticket(s).", count),
		Agent:       "ticket_agent",
		SideEffects: []string{"tickets_closed"},
	}, nil
}

func (h *TicketStatusHandler) list(in Input) (Output, error) {
	tickets, err := h.Tickets.StudentTickets(in.Profile.Email)
	if err != nil {
		return Output{Status: StatusError, Message: "I couldn't load your tickets right now. Please try again.", Agent: "ticket_agent"}, nil
	}
	if len(tickets) == 0 {
		return Output{Status: StatusSuccess, Message: "You have no tickets.", Agent: "ticket_agent"}, nil
	}

	open := make([]collaborators.Ticket, 0, len(tickets))
	closed := make([]collaborators.Ticket, 0, len(tickets))
	for _, t := range tickets {
		if t.Status == "Closed" || t.Status == "Cancelled" {
			closed = append(closed, t)
		} else {
			open = append(open, t)
		}
	}
	ordered := append(open, closed...)

	var lines []string
	for _, t := range ordered {
		desc := t.Description
		if len(desc) > 60 {
			desc = desc[:60] + "..."
		}
		lines = append(lines, fmt.Sprintf("[%s] %s — %s/%s — %s", t.TicketID, t.Status, t.Category, t.Priority, desc))
	}
	return Output{Status: StatusSuccess, Message: strings.Join(lines, "\n"), Agent: "ticket_agent"}, nil
}
