package appointment

import (
	"fmt"
	"math/rand/v2"
	"regexp"
	"strings"
)

// NumberPrefix starts every appointment number.
const NumberPrefix = "AP-"

var numberPattern = regexp.MustCompile(`^AP-\d{5}$`)

// NumberGenerator produces human-readable appointment numbers.
type NumberGenerator interface {
	Next() string
}

// NumberFunc adapts a function to NumberGenerator.
type NumberFunc func() string

// Next calls f.
func (f NumberFunc) Next() string { return f() }

// RandomNumbers returns AP- followed by a uniform integer in [10000, 99999].
type RandomNumbers struct{}

// Next returns a fresh appointment number.
func (RandomNumbers) Next() string {
	return fmt.Sprintf("%s%d", NumberPrefix, 10000+rand.IntN(90000))
}

// IsNumber reports whether s has the canonical AP-NNNNN form.
func IsNumber(s string) bool {
	return numberPattern.MatchString(s)
}

// HasNumberPrefix reports whether s starts with AP- in any letter case.
func HasNumberPrefix(s string) bool {
	return strings.HasPrefix(strings.ToUpper(strings.TrimSpace(s)), NumberPrefix)
}
