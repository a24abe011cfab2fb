package metadata

import (
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/text/cases"
)

var (
	sessionNumberPattern = regexp.MustCompile(`OPHYS_(\d+)`)
	imageSetPattern      = regexp.MustCompile(`images_(\w)`)
)

// fold case-folds session-type vocabulary. Casers carry state, so each call
// gets its own.
func fold(value string) string {
	return cases.Fold().String(value)
}

// IsOphysSessionType reports whether the session type names an imaging
// session ("OPHYS_4_images_B", "ophys_1_images_A", ...).
func IsOphysSessionType(sessionType *string) bool {
	if sessionType == nil {
		return false
	}
	return strings.HasPrefix(fold(strings.TrimSpace(*sessionType)), fold("OPHYS"))
}

// IsHabituationSessionType reports whether the session type is a habituation session.
func IsHabituationSessionType(sessionType *string) bool {
	if sessionType == nil {
		return false
	}
	return strings.Contains(fold(*sessionType), fold("habituation"))
}

// IsReceptiveFieldSessionType reports whether the session type is a receptive
// field mapping session, which carries no flash omissions.
func IsReceptiveFieldSessionType(sessionType *string) bool {
	if sessionType == nil {
		return false
	}
	return strings.Contains(fold(*sessionType), fold("receptive_field"))
}

// SessionNumber extracts the integer after "OPHYS_" in the session type.
func SessionNumber(sessionType *string) *int {
	if sessionType == nil {
		return nil
	}
	match := sessionNumberPattern.FindStringSubmatch(*sessionType)
	if match == nil {
		return nil
	}
	n, err := strconv.Atoi(match[1])
	if err != nil {
		return nil
	}
	return &n
}

// ImageSet extracts the image set letter after "images_" in the session type.
func ImageSet(sessionType *string) *string {
	if sessionType == nil {
		return nil
	}
	match := imageSetPattern.FindStringSubmatch(*sessionType)
	if match == nil {
		return nil
	}
	set := match[1]
	return &set
}
