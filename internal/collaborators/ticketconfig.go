package collaborators

// Categories is the closed category -> subcategory taxonomy the ticket
// flow's triage step classifies against.
var Categories = map[string][]string{
	"Academic Support": {
		"Assignment Issues",
		"Internal Marks / Grade Queries",
		"Subject / Elective Change",
		"Attendance Clarification",
		"Syllabus / Curriculum Clarification",
		"Faculty / Teaching Issues",
		"Lab / Practical Issues",
		"Timetable Issues",
	},
	"Examinations": {
		"Hall Ticket Issues",
		"Exam Timetable Queries",
		"Re-evaluation / Recounting",
		"Supplementary Exams",
		"Result Discrepancy",
		"Exam Registration Issues",
	},
	"Fees & Finance": {
		"Fee Payment Issues",
		"Fee Receipt Download",
		"Scholarship Issues",
		"Refund Requests",
		"Late Fee Clarification",
	},
	"IT Support": {
		"Portal Login Issues",
		"College Email Issues",
		"Wi-Fi / Internet",
		"LMS / Online Classes",
		"Password Reset",
	},
	"Hostel & Transport": {
		"Room Allocation / Change",
		"Maintenance Issues",
		"Food / Mess Issues",
		"Bus Timings",
		"Route Change",
	},
	"Certificates": {
		"Bonafide Certificate",
		"Transfer Certificate",
		"Character Certificate",
		"Degree / Provisional Certificate",
		"Internship / NOC Letter",
	},
	"Health & Counseling": {
		"Medical Emergency",
		"Counseling Request",
		"Mental Health Support",
		"Medical Leave",
	},
	"Library": {
		"Book Issue / Return",
		"Fine Clarification",
		"Digital Resources",
	},
	"Placements & Internships": {
		"Placement Registration",
		"Eligibility Queries",
		"Internship Approval",
	},
	"Other": {
		"General Query",
		"Complaint",
		"Suggestion",
	},
}

// DepartmentForCategory routes a ticket category to the back-office
// department responsible for resolving it.
var DepartmentForCategory = map[string]string{
	"Academic Support":         "Academic Department",
	"Examinations":             "Examination Cell",
	"Fees & Finance":           "Finance Office",
	"IT Support":               "IT Department",
	"Hostel & Transport":       "Hostel & Transport Office",
	"Certificates":             "Administration Office",
	"Health & Counseling":      "Health & Counseling Center",
	"Library":                  "Library",
	"Placements & Internships": "Training & Placement Office",
	"Other":                    "General Administration",
}

// SLAHours maps a priority level to its resolution SLA, in hours.
var SLAHours = map[string]int{
	"Low":    72,
	"Medium": 48,
	"High":   24,
	"Urgent": 4,
}

// PriorityLevels is the closed priority set, lowest to highest.
var PriorityLevels = []string{"Low", "Medium", "High", "Urgent"}

// TicketStatuses is the closed ticket lifecycle status set.
var TicketStatuses = []string{"Open", "Assigned", "In Progress", "Resolved", "Closed", "Cancelled"}

// OpenStatuses are the statuses that count as "still outstanding" for
// duplicate detection and close-all.
var OpenStatuses = []string{"Open", "Assigned", "In Progress"}

// SensitiveKeywords force Urgent priority and bypass the daily quota
// gate (spec §4.9's sensitive-ticket bypass), grounded on
// Health & Counseling's Medical Emergency subcategory.
var SensitiveKeywords = []string{
	"suicide", "self harm", "self-harm", "emergency", "harassment",
	"assault", "abuse", "ragging", "bullying", "threat", "sexual", "unsafe",
}

// IsValidCategory reports whether category is part of the closed set.
func IsValidCategory(category string) bool {
	_, ok := Categories[category]
	return ok
}

// IsValidPriority reports whether priority is part of the closed set.
func IsValidPriority(priority string) bool {
	for _, p := range PriorityLevels {
		if p == priority {
			return true
		}
	}
	return false
}
