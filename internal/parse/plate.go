package parse

import (
	"fmt"
	"regexp"
	"strings"
)

var (
	separatorRe = regexp.MustCompile(`[\s\-]+`)
	plateRe     = regexp.MustCompile(`^[A-Z0-9]+$`)
)

// MaxPlateLength bounds a normalized plate; it matches the vehicles.vehicle_number column.
const MaxPlateLength = 32

// NormalizePlate strips whitespace and hyphens and upper-cases the result, so
// "kl-01 ab 1234" and "KL01AB1234" name the same vehicle.
func NormalizePlate(raw string) (string, error) {
	s := strings.ToUpper(separatorRe.ReplaceAllString(raw, ""))
	if s == "" {
		return "", fmt.Errorf("vehicle number is required")
	}
	if len(s) > MaxPlateLength {
		return "", fmt.Errorf("vehicle number %q is too long", raw)
	}
	if !plateRe.MatchString(s) {
		return "", fmt.Errorf("vehicle number %q may only contain letters and digits", raw)
	}
	return s, nil
}
