package collaborators

import (
	"path/filepath"
	"testing"
)

func newTestEmailLog(t *testing.T) *EmailLog {
	t.Helper()
	el, err := NewEmailLog(filepath.Join(t.TempDir(), "emails.db"))
	if err != nil {
		t.Fatalf("NewEmailLog: %v", err)
	}
	t.Cleanup(func() { el.Close() })
	return el
}

func TestRecordAndHistory_RoundTrip(t *testing.T) {
	el := newTestEmailLog(t)
	err := el.Record("student@college.edu", "Dr. Rajesh Kumar", "Query about assignment deadline", "Dear Dr. Kumar, ...", "Sent")
	if err != nil {
		t.Fatalf("Record: %v", err)
	}

	history, err := el.History("student@college.edu")
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(history) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(history))
	}
	if history[0].FacultyName != "Dr. Rajesh Kumar" {
		t.Errorf("expected Dr. Rajesh Kumar, got %s", history[0].FacultyName)
	}
	if history[0].Status != "Sent" {
		t.Errorf("expected Sent, got %s", history[0].Status)
	}
}

func TestHistory_MostRecentFirst(t *testing.T) {
	el := newTestEmailLog(t)
	el.Record("student@college.edu", "Dr. A", "first subject", "body1", "Sent")
	el.Record("student@college.edu", "Dr. B", "second subject", "body2", "Sent")

	history, err := el.History("student@college.edu")
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(history))
	}
	if history[0].Subject != "second subject" {
		t.Errorf("expected most recent first, got %s", history[0].Subject)
	}
}

func TestHistory_IsolatedPerStudent(t *testing.T) {
	el := newTestEmailLog(t)
	el.Record("a@college.edu", "Dr. A", "subject a", "body a", "Sent")
	el.Record("b@college.edu", "Dr. B", "subject b", "body b", "Sent")

	history, err := el.History("a@college.edu")
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(history) != 1 {
		t.Fatalf("expected 1 entry for a@college.edu, got %d", len(history))
	}
}

func TestHistory_EmptyForUnknownStudent(t *testing.T) {
	el := newTestEmailLog(t)
	history, err := el.History("nobody@college.edu")
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(history) != 0 {
		t.Errorf("expected no history, got %d entries", len(history))
	}
}
