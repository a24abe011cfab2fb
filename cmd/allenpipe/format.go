package main

import (
	"strconv"
	"strings"
	"time"
)

const missing = "-"

func fmtString(v *string) string {
	if v == nil || *v == "" {
		return missing
	}
	return *v
}

func fmtInt(v *int) string {
	if v == nil {
		return missing
	}
	return strconv.Itoa(*v)
}

func fmtInt64(v *int64) string {
	if v == nil {
		return missing
	}
	return strconv.FormatInt(*v, 10)
}

func fmtBool(v *bool) string {
	if v == nil {
		return missing
	}
	return yesNo(*v)
}

func fmtDate(v *time.Time) string {
	if v == nil {
		return missing
	}
	return v.UTC().Format("2006-01-02")
}

func fmtIDs(ids []int64) string {
	if len(ids) == 0 {
		return missing
	}
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.FormatInt(id, 10)
	}
	return strings.Join(parts, ",")
}
