package collaborators

import (
	"database/sql"
	"fmt"
	"time"
)

// EmailLogEntry is one row of the email send log, used both for the
// "emails I sent" FAQ special case and rate limiting.
type EmailLogEntry struct {
	FacultyName string
	Subject     string
	Body        string
	Status      string
	Timestamp   time.Time
}

// EmailLog is a SQLite-backed record of every email send attempt, keyed
// by the sending student.
type EmailLog struct {
	db *sql.DB
}

// NewEmailLog opens (creating if needed) an email log at dbPath.
func NewEmailLog(dbPath string) (*EmailLog, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open email log: %w", err)
	}
	db.SetMaxOpenConns(1)

	el := &EmailLog{db: db}
	if err := el.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return el, nil
}

func (el *EmailLog) migrate() error {
	_, err := el.db.Exec(`
		CREATE TABLE IF NOT EXISTS email_requests (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			student_email TEXT NOT NULL,
			faculty_name TEXT NOT NULL,
			subject TEXT NOT NULL,
			body TEXT NOT NULL,
			status TEXT NOT NULL,
			created_at TEXT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_email_student ON email_requests(student_email, created_at DESC);
	`)
	if err != nil {
		return fmt.Errorf("migrate email log schema: %w", err)
	}
	return nil
}

// Record appends a send attempt (status is "Sent" or "Failed").
func (el *EmailLog) Record(studentEmail, facultyName, subject, body, status string) error {
	_, err := el.db.Exec(
		`INSERT INTO email_requests (student_email, faculty_name, subject, body, status, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		studentEmail, facultyName, subject, body, status, time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("record email: %w", err)
	}
	return nil
}

// History returns studentEmail's send history, most recent first.
func (el *EmailLog) History(studentEmail string) ([]EmailLogEntry, error) {
	rows, err := el.db.Query(
		`SELECT faculty_name, subject, body, status, created_at FROM email_requests
		 WHERE student_email = ? ORDER BY created_at DESC`,
		studentEmail,
	)
	if err != nil {
		return nil, fmt.Errorf("query email history: %w", err)
	}
	defer rows.Close()

	var out []EmailLogEntry
	for rows.Next() {
		var e EmailLogEntry
		var ts string
		if err := rows.Scan(&e.FacultyName, &e.Subject, &e.Body, &e.Status, &ts); err != nil {
			return nil, fmt.Errorf("scan email history row: %w", err)
		}
		if parsed, err := time.Parse(time.RFC3339, ts); err == nil {
			e.Timestamp = parsed
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Close closes the underlying database handle.
func (el *EmailLog) Close() error { return el.db.Close() }
