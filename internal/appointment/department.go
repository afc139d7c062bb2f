package appointment

import (
	"fmt"
	"strconv"
	"strings"
)

// Departments is the fixed, ordered list offered at department selection.
var Departments = []string{
	"Cardiology",
	"Neurology",
	"Orthopedics",
	"Dermatology",
	"Gastroenterology",
	"Ophthalmology",
	"Pediatrics",
	"General Medicine",
}

// ResolveDepartment matches text against Departments by 1-based index or by
// case-insensitive exact or substring name.
func ResolveDepartment(text string) (string, bool) {
	input := strings.TrimSpace(text)
	if input == "" {
		return "", false
	}
	if n, err := strconv.Atoi(input); err == nil {
		if n >= 1 && n <= len(Departments) {
			return Departments[n-1], true
		}
		return "", false
	}
	lower := strings.ToLower(input)
	for _, dept := range Departments {
		name := strings.ToLower(dept)
		if lower == name || strings.Contains(lower, name) {
			return dept, true
		}
	}
	return "", false
}

// DepartmentMenu renders the numbered department list.
func DepartmentMenu() string {
	lines := make([]string, 0, len(Departments))
	for i, dept := range Departments {
		lines = append(lines, fmt.Sprintf("%d. %s", i+1, dept))
	}
	return strings.Join(lines, "\n")
}

// CapacityKey normalizes a department name into a ledger key.
func CapacityKey(department string) string {
	return strings.ToLower(strings.TrimSpace(department))
}
