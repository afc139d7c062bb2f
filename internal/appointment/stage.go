package appointment

import "fmt"

// Stage is a position in the booking dialogue.
type Stage string

const (
	StageTypeSelection       Stage = "type-selection"
	StageFullName            Stage = "full-name"
	StageAge                 Stage = "age"
	StageDateOfBirth         Stage = "date-of-birth"
	StageBloodGroup          Stage = "blood-group"
	StageSymptoms            Stage = "symptoms"
	StageRecordsUpload       Stage = "records-upload-prompt"
	StageDepartmentSelection Stage = "department-selection"
	StagePaymentConfirmation Stage = "payment-confirmation"
	StageComplete            Stage = "complete"
)

// Stages lists every stage in dialogue order.
var Stages = []Stage{
	StageTypeSelection,
	StageFullName,
	StageAge,
	StageDateOfBirth,
	StageBloodGroup,
	StageSymptoms,
	StageRecordsUpload,
	StageDepartmentSelection,
	StagePaymentConfirmation,
	StageComplete,
}

// Valid reports whether s is one of the known stages.
func (s Stage) Valid() bool {
	for _, known := range Stages {
		if s == known {
			return true
		}
	}
	return false
}

// ParseStage converts a stored stage name back into a Stage.
func ParseStage(raw string) (Stage, error) {
	s := Stage(raw)
	if !s.Valid() {
		return "", fmt.Errorf("appointment: unknown stage %q", raw)
	}
	return s, nil
}
