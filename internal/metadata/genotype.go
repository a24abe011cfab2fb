package metadata

import "strings"

// indicatorSubstrings maps reporter-line substrings to calcium indicators,
// checked in order.
var indicatorSubstrings = []struct {
	substr    string
	indicator string
}{
	{"GCaMP6f", "GCaMP6f"},
	{"GC6f", "GCaMP6f"},
	{"GCaMP6s", "GCaMP6s"},
}

// ParseCreLine extracts the Cre driver from a full genotype string such as
// "Vip-IRES-Cre/wt;Ai148(TIT2L-GC6f-ICL-tTA2)/wt": the first ";"-separated
// component with "/wt" removed. Returns nil when the genotype has no ";".
func ParseCreLine(fullGenotype *string) *string {
	if fullGenotype == nil {
		return nil
	}
	first, _, found := strings.Cut(*fullGenotype, ";")
	if !found {
		return nil
	}
	cre := strings.ReplaceAll(first, "/wt", "")
	return &cre
}

// ParseReporterLine collapses the reporter line column to a single value. When
// several reporter lines are listed the first one wins.
func ParseReporterLine(lines Lines) *string {
	if len(lines) == 0 {
		return nil
	}
	first := lines[0]
	return &first
}

// ParseIndicator derives the calcium indicator from a reporter line.
func ParseIndicator(reporterLine *string) *string {
	if reporterLine == nil {
		return nil
	}
	for _, entry := range indicatorSubstrings {
		if strings.Contains(*reporterLine, entry.substr) {
			indicator := entry.indicator
			return &indicator
		}
	}
	return nil
}
