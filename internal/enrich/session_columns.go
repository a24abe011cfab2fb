package enrich

import "allenpipe/internal/metadata"

// Experience levels assigned to ophys experiments.
const (
	ExperienceFamiliar  = "Familiar"
	ExperienceNovel1    = "Novel 1"
	ExperienceNovelMore = "Novel >1"
	ExperienceNone      = "None"
)

// ExperienceLevel tags a session by its session number and how often the
// mouse has seen its image set before. Sessions 1-3 are familiar; session 4
// is "Novel 1" on the first exposure to its image set; sessions 4-6 are
// "Novel >1" otherwise, an unknown exposure count included.
func ExperienceLevel(sessionNumber, priorExposuresToImageSet *int) string {
	if sessionNumber == nil {
		return ExperienceNone
	}
	n := *sessionNumber
	switch {
	case n >= 1 && n <= 3:
		return ExperienceFamiliar
	case n == 4 && priorExposuresToImageSet != nil && *priorExposuresToImageSet == 0:
		return ExperienceNovel1
	case n >= 4 && n <= 6 && (priorExposuresToImageSet == nil || *priorExposuresToImageSet != 0):
		return ExperienceNovelMore
	default:
		return ExperienceNone
	}
}

// Passive reports whether an OPHYS session was a passive replay (session
// numbers 2 and 5). Non-OPHYS or missing session types yield nil.
func Passive(sessionType *string) *bool {
	if !metadata.IsOphysSessionType(sessionType) {
		return nil
	}
	n := metadata.SessionNumber(sessionType)
	passive := n != nil && (*n == 2 || *n == 5)
	return &passive
}
