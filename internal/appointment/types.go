package appointment

import "strings"

// Type is the kind of appointment being booked.
type Type string

const (
	TypeDoctor Type = "Doctor Appointment"
	TypeXRay   Type = "X-ray"
	TypeECG    Type = "ECG"
	TypeMRI    Type = "MRI Scan"
)

// Types lists the bookable appointment types.
var Types = []Type{TypeDoctor, TypeXRay, TypeECG, TypeMRI}

// IsDiagnostic reports whether t is an imaging or test appointment rather than a consultation.
func (t Type) IsDiagnostic() bool {
	return t == TypeXRay || t == TypeECG || t == TypeMRI
}

// RecognizeType maps free text to an appointment type by keyword.
// Doctor keywords are checked first, so "MRI appointment" books a doctor consultation.
func RecognizeType(text string) (Type, bool) {
	lower := strings.ToLower(text)
	switch {
	case strings.Contains(lower, "doctor"), strings.Contains(lower, "appointment"):
		return TypeDoctor, true
	case strings.Contains(lower, "x-ray"), strings.Contains(lower, "xray"):
		return TypeXRay, true
	case strings.Contains(lower, "ecg"):
		return TypeECG, true
	case strings.Contains(lower, "mri"):
		return TypeMRI, true
	}
	return "", false
}

// Limits holds the per-department capacity for consultations and diagnostics.
type Limits struct {
	Doctor     int
	Diagnostic int
}

// DefaultLimits returns 50 doctor consultations and 100 of each diagnostic type.
func DefaultLimits() Limits {
	return Limits{Doctor: 50, Diagnostic: 100}
}

// For returns the capacity limit that applies to t.
func (l Limits) For(t Type) int {
	if t == TypeDoctor {
		return l.Doctor
	}
	return l.Diagnostic
}
