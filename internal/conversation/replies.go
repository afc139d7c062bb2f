package conversation

import (
	"fmt"

	"github.com/wolfman30/medicare-assistant/internal/appointment"
)

const (
	welcomeMessage       = "Hello! I'm the MediCare Assistant. How can I help you today?"
	securityWarningReply = "I've detected potentially harmful content in your message. Please ensure your queries are related to healthcare services."
	thanksReply          = "Thank you for using MediCare Assistant! Your session has been saved. Have a great day!"
	typePrompt           = "Are you here for a doctor appointment, X-ray, ECG, or MRI scan?"
	typeNotRecognized    = "Sorry, I cannot help with that. Please select one of these appointment types: Doctor Appointment, X-ray, ECG, or MRI scan."
	loginRequiredReply   = "You need to be logged in to book an appointment. I'm redirecting you to the login page."
	cancelLoginReply     = "You need to be logged in to manage appointments. I'm redirecting you to the login page."
	fullNamePrompt       = "Could you please provide your full name?"
	agePrompt            = "Could you please provide your age?"
	ageInvalid           = "Please enter a valid age in years."
	dobPrompt            = "Could you please provide your date of birth (DD/MM/YYYY)?"
	dobInvalid           = "Please enter a valid date of birth in the format DD/MM/YYYY."
	bloodGroupPrompt     = "What is your blood group? (A+, B+, AB+, O+, A-, B-, AB-, O- or Unknown)"
	bloodGroupInvalid    = "Please enter a valid blood group (A+, B+, AB+, O+, A-, B-, AB-, O-) or type 'Unknown' if you don't know."
	symptomsPrompt       = "Could you please describe any symptoms you're experiencing?"
	uploadPrompt         = "Thank you for sharing this information. Do you have any previous medical records? If yes, you can upload them now using the paperclip icon."
	departmentInvalid    = "I couldn't recognize that department. Please select a number between 1-8 or type the department name."
	availabilityError    = "I'm sorry, there was an error checking appointment availability. Please try again."
	paymentPrompt        = "Please reply to confirm your booking."
	saveError            = "Sorry, something went wrong while saving your appointment. Please try again."
	completeReply        = "Is there anything else I can help you with? You can start a new appointment booking or ask about cancelling an existing appointment."
	cancelStartReply     = "I understand you want to cancel an appointment. Please provide your appointment number (starting with AP-)."
	cancelNumberInvalid  = "Please provide a valid appointment number starting with AP-"
	cancelReasonPrompt   = "Thank you. Could you please provide a reason for cancellation? This helps us improve our services."
	cancelNotFound       = "We couldn't find that appointment. Please check the appointment number."
	cancelError          = "Sorry, something went wrong while cancelling your appointment. Please try again."
	attachmentWarning    = "Warning: executable files can be harmful. Please only upload medical records such as PDFs or images."
)

func greetingReply(greeting string) string {
	return greeting + " " + typePrompt
}

func typeAcceptedReply(t appointment.Type) string {
	return fmt.Sprintf("I'll help you book a %s. %s", t, fullNamePrompt)
}

func nameAcceptedReply(name string) string {
	return fmt.Sprintf("Thank you, %s. %s", name, agePrompt)
}

func departmentMenuReply() string {
	return "Please select a department/specialist:\n\n" + appointment.DepartmentMenu()
}

func departmentInvalidReply() string {
	return departmentInvalid + "\n\n" + appointment.DepartmentMenu()
}

func capacityFullReply(department string, limit int) string {
	return fmt.Sprintf("I'm sorry, but %s is currently at full capacity (%d appointments). Please select another department.", department, limit)
}

func departmentAcceptedReply(department, number string) string {
	return fmt.Sprintf("Thank you for selecting the %s department. Your preliminary appointment number is %s. We accept various payment methods including insurance, credit cards, and cash at our facility.", department, number)
}

func bookingSummaryReply(d appointment.Draft) string {
	return fmt.Sprintf("Great! Your appointment has been successfully booked.\n\nAppointment Details:\n- Type: %s\n- Department: %s\n- Patient: %s, Age: %s\n- Blood Group: %s\n- DOB: %s\n- Appointment #: %s\n\nThank you for choosing MediCare. Please arrive 15 minutes before your scheduled time.",
		d.Type, d.Department, d.FullName, d.Age, d.BloodGroup, d.DateOfBirth, d.AppointmentNumber)
}

func cancelSuccessReply(number string) string {
	return fmt.Sprintf("Appointment %s has been successfully cancelled.", number)
}

func cancelAlreadyReply(number string) string {
	return fmt.Sprintf("Appointment %s has already been cancelled.", number)
}

func attachmentReceivedReply(name string) string {
	return fmt.Sprintf("I've received your file %q. It will be attached to your appointment.", name)
}

// stagePrompt is the question asked while waiting at stage.
func stagePrompt(d appointment.Draft) string {
	switch d.Stage {
	case appointment.StageTypeSelection, appointment.StageComplete:
		return "How can I help you today? " + typePrompt
	case appointment.StageFullName:
		return fullNamePrompt
	case appointment.StageAge:
		return agePrompt
	case appointment.StageDateOfBirth:
		return dobPrompt
	case appointment.StageBloodGroup:
		return bloodGroupPrompt
	case appointment.StageSymptoms:
		return symptomsPrompt
	case appointment.StageRecordsUpload:
		return uploadPrompt
	case appointment.StageDepartmentSelection:
		return departmentMenuReply()
	case appointment.StagePaymentConfirmation:
		return departmentAcceptedReply(d.Department, d.AppointmentNumber) + " " + paymentPrompt
	}
	return typePrompt
}
