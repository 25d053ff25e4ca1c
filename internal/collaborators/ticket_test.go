package collaborators

import (
	"path/filepath"
	"testing"
)

func newTestTicketStore(t *testing.T) *TicketStore {
	t.Helper()
	ts, err := NewTicketStore(filepath.Join(t.TempDir(), "tickets.db"))
	if err != nil {
		t.Fatalf("NewTicketStore: %v", err)
	}
	t.Cleanup(func() { ts.Close() })
	return ts
}

func TestCreateTicket_AssignsIDAndSLA(t *testing.T) {
	ts := newTestTicketStore(t)
	ticket, err := ts.CreateTicket(NewTicket{
		StudentEmail: "student@college.edu",
		Category:     "IT Support",
		SubCategory:  "Portal Login Issues",
		Priority:     "High",
		Description:  "Cannot log into the student portal.",
	})
	if err != nil {
		t.Fatalf("CreateTicket: %v", err)
	}
	if ticket.TicketID == "" {
		t.Fatal("expected a generated ticket id")
	}
	if ticket.Department != "IT Department" {
		t.Errorf("expected department IT Department, got %s", ticket.Department)
	}
	if ticket.Status != "Open" {
		t.Errorf("expected status Open, got %s", ticket.Status)
	}
	if !ticket.ExpectedResolution.After(ticket.CreatedAt) {
		t.Error("expected resolution deadline after creation time")
	}
}

func TestCreateTicket_SequentialIDsIncrement(t *testing.T) {
	ts := newTestTicketStore(t)
	t1, err := ts.CreateTicket(NewTicket{StudentEmail: "a@college.edu", Category: "Library", SubCategory: "Fine Clarification", Priority: "Low", Description: "fine question"})
	if err != nil {
		t.Fatalf("CreateTicket 1: %v", err)
	}
	t2, err := ts.CreateTicket(NewTicket{StudentEmail: "b@college.edu", Category: "Examinations", SubCategory: "Hall Ticket Issues", Priority: "Medium", Description: "hall ticket missing"})
	if err != nil {
		t.Fatalf("CreateTicket 2: %v", err)
	}
	if t1.TicketID == t2.TicketID {
		t.Errorf("expected distinct ticket ids, both were %s", t1.TicketID)
	}
}

func TestCreateTicket_DuplicateInSameCategoryRejected(t *testing.T) {
	ts := newTestTicketStore(t)
	nt := NewTicket{StudentEmail: "dup@college.edu", Category: "Fees & Finance", SubCategory: "Fee Payment Issues", Priority: "Medium", Description: "payment failed"}
	if _, err := ts.CreateTicket(nt); err != nil {
		t.Fatalf("first CreateTicket: %v", err)
	}
	if _, err := ts.CreateTicket(nt); err == nil {
		t.Fatal("expected duplicate ticket error, got nil")
	}
}

func TestCreateTicket_DifferentCategoryAllowed(t *testing.T) {
	ts := newTestTicketStore(t)
	email := "multi@college.edu"
	if _, err := ts.CreateTicket(NewTicket{StudentEmail: email, Category: "Fees & Finance", SubCategory: "Fee Payment Issues", Priority: "Medium", Description: "payment failed"}); err != nil {
		t.Fatalf("first CreateTicket: %v", err)
	}
	if _, err := ts.CreateTicket(NewTicket{StudentEmail: email, Category: "IT Support", SubCategory: "Wi-Fi / Internet", Priority: "Low", Description: "wifi down"}); err != nil {
		t.Fatalf("second CreateTicket in different category should succeed: %v", err)
	}
}

func TestGetTicket_UnknownIDReturnsNil(t *testing.T) {
	ts := newTestTicketStore(t)
	ticket, err := ts.GetTicket("ACE-2026-9999")
	if err != nil {
		t.Fatalf("GetTicket: %v", err)
	}
	if ticket != nil {
		t.Fatalf("expected nil for unknown ticket, got %+v", ticket)
	}
}

func TestStudentTickets_OnlyReturnsOwnTickets(t *testing.T) {
	ts := newTestTicketStore(t)
	ts.CreateTicket(NewTicket{StudentEmail: "owner@college.edu", Category: "Library", SubCategory: "Fine Clarification", Priority: "Low", Description: "q1"})
	ts.CreateTicket(NewTicket{StudentEmail: "other@college.edu", Category: "Library", SubCategory: "Fine Clarification", Priority: "Low", Description: "q2"})

	tickets, err := ts.StudentTickets("owner@college.edu")
	if err != nil {
		t.Fatalf("StudentTickets: %v", err)
	}
	if len(tickets) != 1 {
		t.Fatalf("expected 1 ticket for owner, got %d", len(tickets))
	}
	if tickets[0].StudentEmail != "owner@college.edu" {
		t.Errorf("expected owner's ticket, got %s", tickets[0].StudentEmail)
	}
}

func TestCloseTicket_OwnershipEnforced(t *testing.T) {
	ts := newTestTicketStore(t)
	ticket, _ := ts.CreateTicket(NewTicket{StudentEmail: "owner@college.edu", Category: "Library", SubCategory: "Fine Clarification", Priority: "Low", Description: "q1"})

	if err := ts.CloseTicket(ticket.TicketID, "intruder@college.edu"); err == nil {
		t.Fatal("expected ownership error, got nil")
	}

	if err := ts.CloseTicket(ticket.TicketID, "owner@college.edu"); err != nil {
		t.Fatalf("CloseTicket by owner: %v", err)
	}

	got, _ := ts.GetTicket(ticket.TicketID)
	if got.Status != "Closed" {
		t.Errorf("expected status Closed, got %s", got.Status)
	}
}

func TestCloseTicket_AlreadyClosedRejected(t *testing.T) {
	ts := newTestTicketStore(t)
	ticket, _ := ts.CreateTicket(NewTicket{StudentEmail: "owner@college.edu", Category: "Library", SubCategory: "Fine Clarification", Priority: "Low", Description: "q1"})
	if err := ts.CloseTicket(ticket.TicketID, "owner@college.edu"); err != nil {
		t.Fatalf("first close: %v", err)
	}
	if err := ts.CloseTicket(ticket.TicketID, "owner@college.edu"); err == nil {
		t.Fatal("expected already-closed error, got nil")
	}
}

func TestCloseAllTickets_ClosesOnlyOwnOpenTickets(t *testing.T) {
	ts := newTestTicketStore(t)
	email := "owner@college.edu"
	ts.CreateTicket(NewTicket{StudentEmail: email, Category: "Library", SubCategory: "Fine Clarification", Priority: "Low", Description: "q1"})
	ts.CreateTicket(NewTicket{StudentEmail: email, Category: "IT Support", SubCategory: "Wi-Fi / Internet", Priority: "Low", Description: "q2"})
	ts.CreateTicket(NewTicket{StudentEmail: "other@college.edu", Category: "Library", SubCategory: "Fine Clarification", Priority: "Low", Description: "q3"})

	count, err := ts.CloseAllTickets(email)
	if err != nil {
		t.Fatalf("CloseAllTickets: %v", err)
	}
	if count != 2 {
		t.Fatalf("expected 2 tickets closed, got %d", count)
	}

	others, _ := ts.StudentTickets("other@college.edu")
	if others[0].Status == "Closed" {
		t.Error("expected other student's ticket to remain open")
	}
}

func TestCloseAllTickets_NoOpenTicketsReturnsZero(t *testing.T) {
	ts := newTestTicketStore(t)
	count, err := ts.CloseAllTickets("nobody@college.edu")
	if err != nil {
		t.Fatalf("CloseAllTickets: %v", err)
	}
	if count != 0 {
		t.Errorf("expected 0, got %d", count)
	}
}

func TestCheckDuplicateTicket_ReturnsEmptyWhenNoneOpen(t *testing.T) {
	ts := newTestTicketStore(t)
	id, err := ts.CheckDuplicateTicket("fresh@college.edu", "Library")
	if err != nil {
		t.Fatalf("CheckDuplicateTicket: %v", err)
	}
	if id != "" {
		t.Errorf("expected empty, got %s", id)
	}
}

func TestIsValidCategory(t *testing.T) {
	if !IsValidCategory("IT Support") {
		t.Error("expected IT Support to be valid")
	}
	if IsValidCategory("Not A Category") {
		t.Error("expected unknown category to be invalid")
	}
}

func TestIsValidPriority(t *testing.T) {
	if !IsValidPriority("Urgent") {
		t.Error("expected Urgent to be valid")
	}
	if IsValidPriority("Critical") {
		t.Error("expected Critical to be invalid")
	}
}
