// Package governance implements the daily usage quota and activity log
// service (C4): per-(user_id, civil_date) counters with atomic increment,
// and a fail-open read path so a storage outage never blocks a turn.
package governance

import (
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "modernc.org/sqlite"
)

// ActionKind is the quota-tracked action type.
type ActionKind string

const (
	ActionEmail  ActionKind = "email"
	ActionTicket ActionKind = "ticket"
)

// Standardized activity event types, mirroring the original ActivityType enum.
const (
	ActivityLogin          = "LOGIN"
	ActivityTicketCreated  = "TICKET_CREATED"
	ActivityTicketClosed   = "TICKET_CLOSED"
	ActivityEmailSent      = "EMAIL_SENT"
	ActivityProfileUpdated = "PROFILE_UPDATED"
)

// Limits is the quota result for check_daily_limit.
type Limits struct {
	Allowed   bool
	Remaining int
	Max       int
}

// RemainingLimits is the get_remaining_limits result.
type RemainingLimits struct {
	EmailsRemaining  int
	TicketsRemaining int
	EmailsMax        int
	TicketsMax       int
}

// ActivityEntry is one row from the activity log.
type ActivityEntry struct {
	Type        string
	Description string
	Timestamp   time.Time
}

// Service is the SQLite-backed governance store.
type Service struct {
	db             *sql.DB
	loc            *time.Location
	emailDailyMax  int
	ticketDailyMax int
}

// New opens (creating if needed) a SQLite database at dbPath and ensures
// its schema exists.
func New(dbPath, timezone string, emailDailyMax, ticketDailyMax int) (*Service, error) {
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", timezone, err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open governance db: %w", err)
	}
	db.SetMaxOpenConns(1) // modernc.org/sqlite: one connection, so writes are serialized

	s := &Service{db: db, loc: loc, emailDailyMax: emailDailyMax, ticketDailyMax: ticketDailyMax}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Service) migrate() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS daily_usage (
			user_id TEXT NOT NULL,
			usage_date TEXT NOT NULL,
			emails_sent INTEGER NOT NULL DEFAULT 0,
			tickets_created INTEGER NOT NULL DEFAULT 0,
			PRIMARY KEY (user_id, usage_date)
		);
		CREATE TABLE IF NOT EXISTS activity_log (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id TEXT NOT NULL,
			action_type TEXT NOT NULL,
			description TEXT NOT NULL,
			created_at TEXT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_activity_user ON activity_log(user_id, created_at DESC);
	`)
	if err != nil {
		return fmt.Errorf("migrate governance schema: %w", err)
	}
	return nil
}

// Close closes the underlying database handle.
func (s *Service) Close() error {
	return s.db.Close()
}

// civilDay returns today's date string in the configured timezone (spec's
// "civil day" — Asia/Kolkata rollover boundary by default).
func (s *Service) civilDay() string {
	return time.Now().In(s.loc).Format("2006-01-02")
}

func (s *Service) column(kind ActionKind) (col string, max int) {
	if kind == ActionEmail {
		return "emails_sent", s.emailDailyMax
	}
	return "tickets_created", s.ticketDailyMax
}

// CheckDailyLimit reports whether userID has remaining quota for kind today.
// On any storage error it fails open: allowed=true, so a read outage never
// blocks a turn (spec §7's storage_unavailable handling).
func (s *Service) CheckDailyLimit(userID string, kind ActionKind) Limits {
	col, max := s.column(kind)
	today := s.civilDay()

	var used int
	query := fmt.Sprintf(`SELECT %s FROM daily_usage WHERE user_id = ? AND usage_date = ?`, col)
	err := s.db.QueryRow(query, userID, today).Scan(&used)
	if err != nil && err != sql.ErrNoRows {
		slog.Error("governance: check daily limit failed, failing open", "error", err, "user_id", userID, "kind", kind)
		return Limits{Allowed: true, Remaining: 1, Max: max}
	}

	remaining := max - used
	if remaining < 0 {
		remaining = 0
	}
	allowed := used < max
	if !allowed {
		slog.Warn("governance: daily limit hit", "user_id", userID, "kind", kind, "used", used, "max", max)
	}
	return Limits{Allowed: allowed, Remaining: remaining, Max: max}
}

// IncrementUsage atomically increments userID's counter for kind on the
// current civil day with a single UPSERT inside a transaction. The pool
// holds one connection, so concurrent increments for the same row run one
// after another and never lose a count (spec §5).
func (s *Service) IncrementUsage(userID string, kind ActionKind) error {
	col, _ := s.column(kind)
	today := s.civilDay()

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin usage increment: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`
		INSERT INTO daily_usage (user_id, usage_date, `+col+`)
		VALUES (?, ?, 1)
		ON CONFLICT(user_id, usage_date) DO UPDATE SET `+col+` = `+col+` + 1
	`, userID, today); err != nil {
		return fmt.Errorf("increment usage: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit usage increment: %w", err)
	}
	return nil
}

// GetRemainingLimits returns both quota columns for userID today. On error
// it fails open with the full configured maxima.
func (s *Service) GetRemainingLimits(userID string) RemainingLimits {
	today := s.civilDay()

	var emailsUsed, ticketsUsed int
	err := s.db.QueryRow(
		`SELECT emails_sent, tickets_created FROM daily_usage WHERE user_id = ? AND usage_date = ?`,
		userID, today,
	).Scan(&emailsUsed, &ticketsUsed)
	if err != nil && err != sql.ErrNoRows {
		slog.Error("governance: get remaining limits failed, failing open", "error", err, "user_id", userID)
		return RemainingLimits{
			EmailsRemaining:  s.emailDailyMax,
			TicketsRemaining: s.ticketDailyMax,
			EmailsMax:        s.emailDailyMax,
			TicketsMax:       s.ticketDailyMax,
		}
	}

	emailsRemaining := s.emailDailyMax - emailsUsed
	if emailsRemaining < 0 {
		emailsRemaining = 0
	}
	ticketsRemaining := s.ticketDailyMax - ticketsUsed
	if ticketsRemaining < 0 {
		ticketsRemaining = 0
	}
	return RemainingLimits{
		EmailsRemaining:  emailsRemaining,
		TicketsRemaining: ticketsRemaining,
		EmailsMax:        s.emailDailyMax,
		TicketsMax:       s.ticketDailyMax,
	}
}

// LogActivity appends an activity event. Failures are logged, never
// propagated — activity logging must not fail a turn.
func (s *Service) LogActivity(userID, actionType, description string) {
	_, err := s.db.Exec(
		`INSERT INTO activity_log (user_id, action_type, description, created_at) VALUES (?, ?, ?, ?)`,
		userID, actionType, description, time.Now().In(s.loc).Format("2006-01-02 15:04:05"),
	)
	if err != nil {
		slog.Error("governance: log activity failed", "error", err, "user_id", userID, "action_type", actionType)
	}
}

// RecentActivity returns the most recent limit activity entries for userID,
// most recent first.
func (s *Service) RecentActivity(userID string, limit int) ([]ActivityEntry, error) {
	rows, err := s.db.Query(
		`SELECT action_type, description, created_at FROM activity_log
		 WHERE user_id = ? ORDER BY created_at DESC LIMIT ?`,
		userID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query activity: %w", err)
	}
	defer rows.Close()

	var out []ActivityEntry
	for rows.Next() {
		var e ActivityEntry
		var ts string
		if err := rows.Scan(&e.Type, &e.Description, &ts); err != nil {
			return nil, fmt.Errorf("scan activity row: %w", err)
		}
		parsed, err := time.ParseInLocation("2006-01-02 15:04:05", ts, s.loc)
		if err == nil {
			e.Timestamp = parsed
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
