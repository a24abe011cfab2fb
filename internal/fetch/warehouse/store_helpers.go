package warehouse

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"allenpipe/internal/metadata"
)

type scanner interface{ Scan(dest ...any) error }

func stringPtr(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	s := v.String
	return &s
}

func int64Ptr(v sql.NullInt64) *int64 {
	if !v.Valid {
		return nil
	}
	n := v.Int64
	return &n
}

func timePtr(column string, v sql.NullString) (*time.Time, error) {
	if !v.Valid || v.String == "" {
		return nil, nil
	}
	parsed, err := time.Parse(time.RFC3339Nano, v.String)
	if err != nil {
		return nil, fmt.Errorf("parse %s %q: %w", column, v.String, err)
	}
	return &parsed, nil
}

func linesFrom(column string, v sql.NullString) (metadata.Lines, error) {
	if !v.Valid || v.String == "" {
		return nil, nil
	}
	var lines metadata.Lines
	if err := json.Unmarshal([]byte(v.String), &lines); err != nil {
		return nil, fmt.Errorf("parse %s: %w", column, err)
	}
	return lines, nil
}

func nullableString(v *string) any {
	if v == nil {
		return nil
	}
	return *v
}

func nullableInt64(v *int64) any {
	if v == nil {
		return nil
	}
	return *v
}

func nullableTime(v *time.Time) any {
	if v == nil {
		return nil
	}
	return v.UTC().Format(time.RFC3339Nano)
}

func nullableLines(v metadata.Lines) (any, error) {
	if v == nil {
		return nil, nil
	}
	data, err := json.Marshal([]string(v))
	if err != nil {
		return nil, err
	}
	return string(data), nil
}
