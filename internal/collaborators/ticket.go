package collaborators

import (
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// Ticket is a single support ticket record.
type Ticket struct {
	TicketID           string
	StudentEmail       string
	Category           string
	SubCategory        string
	Priority           string
	Description        string
	Status             string
	Department         string
	ExpectedResolution time.Time
	AttachmentInfo     string
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// NewTicket is the input to CreateTicket.
type NewTicket struct {
	StudentEmail   string
	Category       string
	SubCategory    string
	Priority       string
	Description    string
	AttachmentInfo string
}

// TicketStore is a SQLite-backed ticket database grounded on
// original_source/agents/ticket_db.py's students/tickets schema.
type TicketStore struct {
	db *sql.DB
}

// NewTicketStore opens (creating if needed) a ticket store at dbPath.
func NewTicketStore(dbPath string) (*TicketStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open ticket store: %w", err)
	}
	db.SetMaxOpenConns(1)

	ts := &TicketStore{db: db}
	if err := ts.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return ts, nil
}

func (ts *TicketStore) migrate() error {
	_, err := ts.db.Exec(`
		CREATE TABLE IF NOT EXISTS students (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			email TEXT UNIQUE NOT NULL,
			created_at TEXT NOT NULL
		);

		CREATE TABLE IF NOT EXISTS tickets (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			ticket_id TEXT UNIQUE NOT NULL,
			student_email TEXT NOT NULL,
			category TEXT NOT NULL,
			sub_category TEXT NOT NULL,
			priority TEXT NOT NULL,
			description TEXT NOT NULL,
			status TEXT NOT NULL DEFAULT 'Open',
			department TEXT,
			expected_resolution TEXT,
			attachment_info TEXT,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_ticket_id ON tickets(ticket_id);
		CREATE INDEX IF NOT EXISTS idx_student_email ON tickets(student_email);
		CREATE INDEX IF NOT EXISTS idx_status ON tickets(status);
		CREATE INDEX IF NOT EXISTS idx_created_at ON tickets(created_at DESC);
	`)
	if err != nil {
		return fmt.Errorf("migrate ticket schema: %w", err)
	}
	return nil
}

func (ts *TicketStore) ensureStudentExists(email string) error {
	_, err := ts.db.Exec(
		`INSERT OR IGNORE INTO students (email, created_at) VALUES (?, ?)`,
		email, time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("ensure student exists: %w", err)
	}
	return nil
}

// CheckDuplicateTicket returns the ticket_id of an existing open ticket
// in the same category for this student, or "" if none exists.
func (ts *TicketStore) CheckDuplicateTicket(email, category string) (string, error) {
	placeholders := make([]string, len(OpenStatuses))
	args := make([]any, 0, len(OpenStatuses)+2)
	args = append(args, email, category)
	for i, s := range OpenStatuses {
		placeholders[i] = "?"
		args = append(args, s)
	}

	query := fmt.Sprintf(
		`SELECT ticket_id FROM tickets
		 WHERE student_email = ? AND category = ? AND status IN (%s)
		 ORDER BY created_at DESC LIMIT 1`,
		strings.Join(placeholders, ", "),
	)

	var ticketID string
	err := ts.db.QueryRow(query, args...).Scan(&ticketID)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("check duplicate ticket: %w", err)
	}
	return ticketID, nil
}

func (ts *TicketStore) generateTicketID() (string, error) {
	year := time.Now().UTC().Year()
	var count int
	err := ts.db.QueryRow(
		`SELECT COUNT(*) FROM tickets WHERE ticket_id LIKE ?`,
		fmt.Sprintf("ACE-%d-%%", year),
	).Scan(&count)
	if err != nil {
		return "", fmt.Errorf("count tickets for year: %w", err)
	}
	return fmt.Sprintf("ACE-%d-%04d", year, count+1), nil
}

// CreateTicket creates a new ticket, rejecting it if an open ticket
// already exists for the same student and category (spec §4.7.3's
// duplicate-ticket guard). Priority determines the SLA deadline.
func (ts *TicketStore) CreateTicket(nt NewTicket) (*Ticket, error) {
	if err := ts.ensureStudentExists(nt.StudentEmail); err != nil {
		return nil, err
	}

	duplicate, err := ts.CheckDuplicateTicket(nt.StudentEmail, nt.Category)
	if err != nil {
		return nil, err
	}
	if duplicate != "" {
		return nil, fmt.Errorf("duplicate ticket found: %s", duplicate)
	}

	ticketID, err := ts.generateTicketID()
	if err != nil {
		return nil, err
	}

	department := DepartmentForCategory[nt.Category]
	slaHours, ok := SLAHours[nt.Priority]
	if !ok {
		slaHours = 48
	}
	now := time.Now().UTC()
	expected := now.Add(time.Duration(slaHours) * time.Hour)

	_, err = ts.db.Exec(
		`INSERT INTO tickets (
			ticket_id, student_email, category, sub_category, priority,
			description, status, department, expected_resolution,
			attachment_info, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, 'Open', ?, ?, ?, ?, ?)`,
		ticketID, nt.StudentEmail, nt.Category, nt.SubCategory, nt.Priority,
		nt.Description, department, expected.Format(time.RFC3339),
		nt.AttachmentInfo, now.Format(time.RFC3339), now.Format(time.RFC3339),
	)
	if err != nil {
		return nil, fmt.Errorf("insert ticket: %w", err)
	}

	return ts.GetTicket(ticketID)
}

func scanTicket(row interface {
	Scan(dest ...any) error
}) (*Ticket, error) {
	var t Ticket
	var expected, created, updated string
	err := row.Scan(
		&t.TicketID, &t.StudentEmail, &t.Category, &t.SubCategory, &t.Priority,
		&t.Description, &t.Status, &t.Department, &expected, &t.AttachmentInfo,
		&created, &updated,
	)
	if err != nil {
		return nil, err
	}
	t.ExpectedResolution, _ = time.Parse(time.RFC3339, expected)
	t.CreatedAt, _ = time.Parse(time.RFC3339, created)
	t.UpdatedAt, _ = time.Parse(time.RFC3339, updated)
	return &t, nil
}

const ticketColumns = `ticket_id, student_email, category, sub_category, priority,
	description, status, department, expected_resolution, attachment_info,
	created_at, updated_at`

// GetTicket returns a ticket by its public ticket_id, or nil if absent.
func (ts *TicketStore) GetTicket(ticketID string) (*Ticket, error) {
	row := ts.db.QueryRow(`SELECT `+ticketColumns+` FROM tickets WHERE ticket_id = ?`, ticketID)
	t, err := scanTicket(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get ticket: %w", err)
	}
	return t, nil
}

// StudentTickets returns a student's tickets, most recent first.
func (ts *TicketStore) StudentTickets(email string) ([]Ticket, error) {
	rows, err := ts.db.Query(
		`SELECT `+ticketColumns+` FROM tickets WHERE student_email = ? ORDER BY created_at DESC`,
		email,
	)
	if err != nil {
		return nil, fmt.Errorf("list student tickets: %w", err)
	}
	defer rows.Close()

	var out []Ticket
	for rows.Next() {
		t, err := scanTicket(rows)
		if err != nil {
			return nil, fmt.Errorf("scan ticket row: %w", err)
		}
		out = append(out, *t)
	}
	return out, rows.Err()
}

// CloseTicket closes a single ticket, enforcing that studentEmail owns
// it and that it is not already closed.
func (ts *TicketStore) CloseTicket(ticketID, studentEmail string) error {
	t, err := ts.GetTicket(ticketID)
	if err != nil {
		return err
	}
	if t == nil || t.StudentEmail != studentEmail {
		return fmt.Errorf("ticket %s not found or not owned by this student", ticketID)
	}
	if t.Status == "Closed" {
		return fmt.Errorf("ticket %s is already closed", ticketID)
	}

	_, err = ts.db.Exec(
		`UPDATE tickets SET status = 'Closed', updated_at = ? WHERE ticket_id = ? AND student_email = ?`,
		time.Now().UTC().Format(time.RFC3339), ticketID, studentEmail,
	)
	if err != nil {
		return fmt.Errorf("close ticket: %w", err)
	}
	return nil
}

// CloseAllTickets closes every open ticket owned by studentEmail,
// returning the count closed.
func (ts *TicketStore) CloseAllTickets(studentEmail string) (int, error) {
	placeholders := make([]string, len(OpenStatuses))
	args := make([]any, 0, len(OpenStatuses)+1)
	args = append(args, studentEmail)
	for i, s := range OpenStatuses {
		placeholders[i] = "?"
		args = append(args, s)
	}

	countQuery := fmt.Sprintf(
		`SELECT COUNT(*) FROM tickets WHERE student_email = ? AND status IN (%s)`,
		strings.Join(placeholders, ", "),
	)
	var count int
	if err := ts.db.QueryRow(countQuery, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("count open tickets: %w", err)
	}
	if count == 0 {
		return 0, nil
	}

	updateQuery := fmt.Sprintf(
		`UPDATE tickets SET status = 'Closed', updated_at = ? WHERE student_email = ? AND status IN (%s)`,
		strings.Join(placeholders, ", "),
	)
	updateArgs := append([]any{time.Now().UTC().Format(time.RFC3339)}, args...)
	if _, err := ts.db.Exec(updateQuery, updateArgs...); err != nil {
		return 0, fmt.Errorf("close all tickets: %w", err)
	}
	return count, nil
}

// Close closes the underlying database handle.
func (ts *TicketStore) Close() error { return ts.db.Close() }
