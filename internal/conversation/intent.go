package conversation

import (
	"regexp"
	"strings"
	"time"
)

var greetingPattern = regexp.MustCompile(`(?i)\b(hello|hi|hey|greetings|good morning|good afternoon|good evening)\b`)

var securityKeywords = []string{"hack", "exploit", "inject"}

// IsGreeting reports whether text contains a greeting word.
func IsGreeting(text string) bool {
	return greetingPattern.MatchString(text)
}

// IsThankYou reports whether text thanks the assistant.
func IsThankYou(text string) bool {
	lower := strings.ToLower(text)
	return strings.Contains(lower, "thank you") || strings.Contains(lower, "thanks")
}

// CheckSecurityThreat returns the warning reply when text contains a blocked keyword.
func CheckSecurityThreat(text string) (string, bool) {
	lower := strings.ToLower(text)
	for _, keyword := range securityKeywords {
		if strings.Contains(lower, keyword) {
			return securityWarningReply, true
		}
	}
	return "", false
}

// IsCancellationIntent reports whether text asks to cancel an appointment.
func IsCancellationIntent(text string) bool {
	lower := strings.ToLower(text)
	return strings.Contains(lower, "cancel") && strings.Contains(lower, "appointment")
}

// TimeOfDayGreeting picks the greeting for the hour of t.
func TimeOfDayGreeting(t time.Time) string {
	switch hour := t.Hour(); {
	case hour < 12:
		return "Good morning!"
	case hour < 18:
		return "Good afternoon!"
	default:
		return "Good evening!"
	}
}
