package collaborators

import (
	"path/filepath"
	"testing"
)

func newTestFacultyDirectory(t *testing.T) *FacultyDirectory {
	t.Helper()
	fd, err := NewFacultyDirectory(filepath.Join(t.TempDir(), "faculty.db"))
	if err != nil {
		t.Fatalf("NewFacultyDirectory: %v", err)
	}
	t.Cleanup(func() { fd.Close() })
	return fd
}

func TestNewFacultyDirectory_SeedsOnFirstOpen(t *testing.T) {
	fd := newTestFacultyDirectory(t)
	depts, err := fd.Departments()
	if err != nil {
		t.Fatalf("Departments: %v", err)
	}
	if len(depts) == 0 {
		t.Fatal("expected seeded departments, got none")
	}
}

func TestNewFacultyDirectory_SeedIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "faculty.db")

	fd1, err := NewFacultyDirectory(path)
	if err != nil {
		t.Fatalf("first open: %v", err)
	}
	before, err := fd1.Departments()
	if err != nil {
		t.Fatalf("Departments: %v", err)
	}
	fd1.Close()

	fd2, err := NewFacultyDirectory(path)
	if err != nil {
		t.Fatalf("second open: %v", err)
	}
	defer fd2.Close()
	after, err := fd2.Departments()
	if err != nil {
		t.Fatalf("Departments: %v", err)
	}

	if len(before) != len(after) {
		t.Errorf("expected stable department count across reopen, got %d then %d", len(before), len(after))
	}
}

func TestSearch_ExactNameMatch(t *testing.T) {
	fd := newTestFacultyDirectory(t)
	result, err := fd.Search("Rajesh Kumar", "", "")
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if result.Status != FacultyFound {
		t.Fatalf("expected found, got %s", result.Status)
	}
	if result.Match == nil || result.Match.ID != "FAC001" {
		t.Fatalf("expected FAC001, got %+v", result.Match)
	}
}

func TestSearch_HonorificIsStripped(t *testing.T) {
	fd := newTestFacultyDirectory(t)
	result, err := fd.Search("Dr. Rajesh Kumar", "", "")
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if result.Status != FacultyFound {
		t.Fatalf("expected found, got %s", result.Status)
	}
}

func TestSearch_HODToken_MatchesHeadDesignations(t *testing.T) {
	fd := newTestFacultyDirectory(t)
	result, err := fd.Search("", "HOD", "Computer Science")
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if result.Status != FacultyFound {
		t.Fatalf("expected found, got %s (%d matches)", result.Status, len(result.Matches))
	}
	if result.Match.ID != "FAC001" {
		t.Fatalf("expected FAC001, got %s", result.Match.ID)
	}
}

func TestSearch_DeanToken_MatchesDeanDesignation(t *testing.T) {
	fd := newTestFacultyDirectory(t)
	result, err := fd.Search("", "Dean", "")
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if result.Status != FacultyFound {
		t.Fatalf("expected found, got %s", result.Status)
	}
	if result.Match.ID != "FAC016" {
		t.Fatalf("expected FAC016, got %s", result.Match.ID)
	}
}

func TestSearch_AmbiguousMatch_MultipleHODs(t *testing.T) {
	fd := newTestFacultyDirectory(t)
	result, err := fd.Search("", "HOD", "")
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if result.Status != FacultyAmbiguous {
		t.Fatalf("expected ambiguous, got %s", result.Status)
	}
	if len(result.Matches) < 2 {
		t.Fatalf("expected multiple HOD matches, got %d", len(result.Matches))
	}
}

func TestSearch_NotFound(t *testing.T) {
	fd := newTestFacultyDirectory(t)
	result, err := fd.Search("Nonexistent Person", "", "")
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if result.Status != FacultyNotFound {
		t.Fatalf("expected not_found, got %s", result.Status)
	}
}

func TestSearch_NoCriteriaReturnsNotFound(t *testing.T) {
	fd := newTestFacultyDirectory(t)
	result, err := fd.Search("", "", "")
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if result.Status != FacultyNotFound {
		t.Fatalf("expected not_found for empty criteria, got %s", result.Status)
	}
}

func TestByID_ReturnsMatchingRecord(t *testing.T) {
	fd := newTestFacultyDirectory(t)
	f, err := fd.ByID("FAC002")
	if err != nil {
		t.Fatalf("ByID: %v", err)
	}
	if f == nil || f.Name != "Prof. Meera Sharma" {
		t.Fatalf("expected Prof. Meera Sharma, got %+v", f)
	}
}

func TestByID_UnknownIDReturnsNil(t *testing.T) {
	fd := newTestFacultyDirectory(t)
	f, err := fd.ByID("FAC999")
	if err != nil {
		t.Fatalf("ByID: %v", err)
	}
	if f != nil {
		t.Fatalf("expected nil for unknown id, got %+v", f)
	}
}

func TestDepartments_ReturnsDistinctSortedList(t *testing.T) {
	fd := newTestFacultyDirectory(t)
	depts, err := fd.Departments()
	if err != nil {
		t.Fatalf("Departments: %v", err)
	}
	seen := map[string]bool{}
	for _, d := range depts {
		if seen[d] {
			t.Errorf("expected distinct departments, found duplicate %q", d)
		}
		seen[d] = true
	}
	if !seen["Computer Science"] || !seen["Administration"] {
		t.Errorf("expected seeded departments present, got %v", depts)
	}
}
