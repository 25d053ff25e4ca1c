// Package collaborators implements the structured back-end stores the
// flow handlers delegate to: the faculty directory, the ticket store,
// and the email send log. These are the "black-box collaborators" of
// spec §3, not part of the orchestrator's own state.
package collaborators

import (
	"database/sql"
	"fmt"
	"strings"

	_ "modernc.org/sqlite"
)

// Faculty is a single directory entry.
type Faculty struct {
	ID          string
	Name        string
	Designation string
	Department  string
	Subject     string
	Email       string
}

// FacultySearchStatus is the outcome of a directory search.
type FacultySearchStatus string

const (
	FacultyFound     FacultySearchStatus = "found"
	FacultyAmbiguous FacultySearchStatus = "ambiguous"
	FacultyNotFound  FacultySearchStatus = "not_found"
)

// FacultySearchResult mirrors the found/ambiguous/not_found shape the
// email flow's faculty_select step branches on.
type FacultySearchResult struct {
	Status  FacultySearchStatus
	Match   *Faculty
	Matches []Faculty
}

// FacultyDirectory is a SQLite-backed, seeded faculty directory.
type FacultyDirectory struct {
	db *sql.DB
}

// NewFacultyDirectory opens (creating if needed) a faculty directory at
// dbPath, seeding it with sample data on first run.
func NewFacultyDirectory(dbPath string) (*FacultyDirectory, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open faculty directory: %w", err)
	}
	db.SetMaxOpenConns(1)

	fd := &FacultyDirectory{db: db}
	if err := fd.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	if err := fd.seed(); err != nil {
		db.Close()
		return nil, err
	}
	return fd, nil
}

func (fd *FacultyDirectory) migrate() error {
	_, err := fd.db.Exec(`
		CREATE TABLE IF NOT EXISTS faculty (
			faculty_id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			designation TEXT NOT NULL,
			department TEXT NOT NULL,
			subject_incharge TEXT,
			email TEXT NOT NULL UNIQUE
		)
	`)
	if err != nil {
		return fmt.Errorf("migrate faculty schema: %w", err)
	}
	return nil
}

var sampleFaculty = []Faculty{
	{"FAC001", "Dr. Rajesh Kumar", "Professor & HOD", "Computer Science", "Data Structures, Algorithms", "rajesh.kumar@college.edu"},
	{"FAC002", "Prof. Meera Sharma", "Associate Professor", "Computer Science", "Database Management, Web Technologies", "meera.sharma@college.edu"},
	{"FAC003", "Dr. Anil Verma", "Assistant Professor", "Computer Science", "Machine Learning, AI", "anil.verma@college.edu"},
	{"FAC005", "Dr. Priya Nair", "Professor & HOD", "Electronics", "Digital Electronics, VLSI", "priya.nair@college.edu"},
	{"FAC008", "Dr. Ramesh Gupta", "Professor & HOD", "Mechanical", "Thermodynamics, Heat Transfer", "ramesh.gupta@college.edu"},
	{"FAC010", "Dr. Anjali Desai", "Professor & HOD", "Civil", "Structural Analysis, Design", "anjali.desai@college.edu"},
	{"FAC012", "Mr. Sunil Kumar", "Chief Warden", "Administration", "Hostel Management, Student Welfare", "sunil.kumar@college.edu"},
	{"FAC013", "Ms. Pooja Rao", "Examination Controller", "Administration", "Examinations, Results", "pooja.rao@college.edu"},
	{"FAC016", "Dr. Mahesh Kulkarni", "Dean Academics", "Administration", "Academic Policies, Curriculum", "mahesh.kulkarni@college.edu"},
}

func (fd *FacultyDirectory) seed() error {
	var count int
	if err := fd.db.QueryRow(`SELECT COUNT(*) FROM faculty`).Scan(&count); err != nil {
		return fmt.Errorf("count faculty: %w", err)
	}
	if count > 0 {
		return nil
	}

	for _, f := range sampleFaculty {
		if _, err := fd.db.Exec(
			`INSERT INTO faculty (faculty_id, name, designation, department, subject_incharge, email)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			f.ID, f.Name, f.Designation, f.Department, f.Subject, f.Email,
		); err != nil {
			return fmt.Errorf("seed faculty %s: %w", f.ID, err)
		}
	}
	return nil
}

var honorifics = []string{"ma'am", "maam", "madam", "sir", "prof.", "prof", "dr.", "dr", "professor", "doctor", "mr.", "mr", "mrs.", "mrs", "ms.", "ms"}

func cleanName(name string) string {
	clean := strings.ToLower(name)
	for _, h := range honorifics {
		clean = strings.ReplaceAll(clean, h, "")
	}
	return strings.Trim(strings.TrimSpace(clean), ". ")
}

// Search looks up faculty by name and/or department, mapping common
// designation tokens (HOD, Dean, Professor) to broader matches.
// Returns found/ambiguous/not_found per spec §4.7.1's faculty-directory
// special case.
func (fd *FacultyDirectory) Search(name, designation, department string) (FacultySearchResult, error) {
	query := `SELECT faculty_id, name, designation, department, subject_incharge, email FROM faculty WHERE 1=1`
	var args []any

	clean := cleanName(name)
	if clean != "" {
		query += ` AND LOWER(name) LIKE ?`
		args = append(args, "%"+clean+"%")
	}
	if designation != "" {
		lower := strings.ToLower(designation)
		switch {
		case strings.Contains(lower, "hod") || strings.Contains(lower, "head"):
			query += ` AND (LOWER(designation) LIKE '%hod%' OR LOWER(designation) LIKE '%head%')`
		case strings.Contains(lower, "dean"):
			query += ` AND LOWER(designation) LIKE '%dean%'`
		default:
			query += ` AND LOWER(designation) LIKE ?`
			args = append(args, "%"+lower+"%")
		}
	}
	if department != "" {
		query += ` AND LOWER(department) LIKE ?`
		args = append(args, "%"+strings.ToLower(department)+"%")
	}

	if clean == "" && designation == "" && department == "" {
		return FacultySearchResult{Status: FacultyNotFound}, nil
	}

	query += ` ORDER BY name LIMIT 5`

	rows, err := fd.db.Query(query, args...)
	if err != nil {
		return FacultySearchResult{}, fmt.Errorf("search faculty: %w", err)
	}
	defer rows.Close()

	var matches []Faculty
	for rows.Next() {
		var f Faculty
		if err := rows.Scan(&f.ID, &f.Name, &f.Designation, &f.Department, &f.Subject, &f.Email); err != nil {
			return FacultySearchResult{}, fmt.Errorf("scan faculty row: %w", err)
		}
		matches = append(matches, f)
	}

	switch len(matches) {
	case 0:
		return FacultySearchResult{Status: FacultyNotFound}, nil
	case 1:
		return FacultySearchResult{Status: FacultyFound, Match: &matches[0], Matches: matches}, nil
	default:
		return FacultySearchResult{Status: FacultyAmbiguous, Matches: matches}, nil
	}
}

// ByID returns a single faculty record, or nil if none matches.
func (fd *FacultyDirectory) ByID(id string) (*Faculty, error) {
	var f Faculty
	err := fd.db.QueryRow(
		`SELECT faculty_id, name, designation, department, subject_incharge, email FROM faculty WHERE faculty_id = ?`,
		id,
	).Scan(&f.ID, &f.Name, &f.Designation, &f.Department, &f.Subject, &f.Email)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get faculty by id: %w", err)
	}
	return &f, nil
}

// Departments returns the distinct department list, for the faculty
// capability blurb and directory-query fallback.
func (fd *FacultyDirectory) Departments() ([]string, error) {
	rows, err := fd.db.Query(`SELECT DISTINCT department FROM faculty ORDER BY department`)
	if err != nil {
		return nil, fmt.Errorf("list departments: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var d string
		if err := rows.Scan(&d); err != nil {
			return nil, fmt.Errorf("scan department: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// Close closes the underlying database handle.
func (fd *FacultyDirectory) Close() error { return fd.db.Close() }
