package enrich

import (
	"sort"
	"time"

	"allenpipe/internal/metadata"
)

// Exposure is the slice of a behavior session consulted by the prior-exposure
// counters.
type Exposure struct {
	BehaviorSessionID int64
	MouseID           *string
	DateOfAcquisition *time.Time
	SessionType       *string
	ForagingID        *string
}

// ExposureOf projects a raw behavior session onto its exposure fields.
func ExposureOf(row metadata.BehaviorSession) Exposure {
	return Exposure{
		BehaviorSessionID: row.BehaviorSessionID,
		MouseID:           row.MouseID,
		DateOfAcquisition: row.DateOfAcquisition,
		SessionType:       row.SessionType,
		ForagingID:        row.ForagingID,
	}
}

// PriorExposuresToSessionType returns, aligned with rows, the number of
// earlier sessions of the same mouse with the same session type.
func PriorExposuresToSessionType(rows []Exposure) []*int {
	return priorCounts(rows, func(e Exposure) *string { return e.SessionType })
}

// PriorExposuresToImageSet returns, aligned with rows, the number of earlier
// sessions of the same mouse that showed the same image set. Sessions without
// an image set get nil.
func PriorExposuresToImageSet(rows []Exposure) []*int {
	return priorCounts(rows, func(e Exposure) *string { return imageSetName(e.SessionType) })
}

// PriorExposuresToOmissions returns, aligned with rows, the number of earlier
// sessions of the same mouse that contained omitted flashes. params maps
// foraging ids to behavior stage parameters; it is only consulted for
// habituation sessions.
func PriorExposuresToOmissions(rows []Exposure, params map[string]metadata.StageParameters) []*int {
	out := make([]*int, len(rows))
	perMouse := make(map[string]int)
	for _, idx := range chronological(rows, func(Exposure) *string { return nil }, false) {
		row := rows[idx]
		count := perMouse[*row.MouseID]
		out[idx] = intPtr(count)
		if HasOmissions(row, params) {
			perMouse[*row.MouseID] = count + 1
		}
	}
	return out
}

// HasOmissions reports whether the session presented omitted flashes. OPHYS
// sessions always do except receptive field mapping. Habituation sessions do
// when their stage parameters set a positive flash_omit_probability.
func HasOmissions(row Exposure, params map[string]metadata.StageParameters) bool {
	switch {
	case metadata.IsHabituationSessionType(row.SessionType):
		if row.ForagingID == nil {
			return false
		}
		p, ok := params[*row.ForagingID].FlashOmitProbability()
		return ok && p > 0
	case metadata.IsOphysSessionType(row.SessionType):
		return !metadata.IsReceptiveFieldSessionType(row.SessionType)
	default:
		return false
	}
}

// HabituationForagingIDs lists the distinct foraging ids of habituation
// sessions, the only sessions whose stage parameters matter for omissions.
func HabituationForagingIDs(rows []Exposure) []string {
	seen := make(map[string]struct{})
	var ids []string
	for _, row := range rows {
		if row.ForagingID == nil || !metadata.IsHabituationSessionType(row.SessionType) {
			continue
		}
		if _, ok := seen[*row.ForagingID]; ok {
			continue
		}
		seen[*row.ForagingID] = struct{}{}
		ids = append(ids, *row.ForagingID)
	}
	sort.Strings(ids)
	return ids
}

func priorCounts(rows []Exposure, category func(Exposure) *string) []*int {
	out := make([]*int, len(rows))
	type key struct{ mouse, category string }
	seen := make(map[key]int)
	for _, idx := range chronological(rows, category, true) {
		row := rows[idx]
		k := key{mouse: *row.MouseID, category: *category(row)}
		out[idx] = intPtr(seen[k])
		seen[k]++
	}
	return out
}

// chronological returns the indexes of eligible rows ordered by acquisition
// date, breaking ties by behavior_session_id. A row is eligible when it has a
// mouse, a date, a session type and, when needCategory is set, a category.
func chronological(rows []Exposure, category func(Exposure) *string, needCategory bool) []int {
	idx := make([]int, 0, len(rows))
	for i, row := range rows {
		if row.MouseID == nil || row.DateOfAcquisition == nil || row.SessionType == nil {
			continue
		}
		if needCategory && category(row) == nil {
			continue
		}
		idx = append(idx, i)
	}
	sort.SliceStable(idx, func(a, b int) bool {
		ra, rb := rows[idx[a]], rows[idx[b]]
		if !ra.DateOfAcquisition.Equal(*rb.DateOfAcquisition) {
			return ra.DateOfAcquisition.Before(*rb.DateOfAcquisition)
		}
		return ra.BehaviorSessionID < rb.BehaviorSessionID
	})
	return idx
}

// imageSetName yields the "images_X" vocabulary entry used to group image set
// exposures.
func imageSetName(sessionType *string) *string {
	set := metadata.ImageSet(sessionType)
	if set == nil {
		return nil
	}
	name := "images_" + *set
	return &name
}

func intPtr(v int) *int { return &v }
