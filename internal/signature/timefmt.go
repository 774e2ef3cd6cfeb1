package signature

import (
	"regexp"
	"strconv"
	"time"
)

// TimeLayout is the local wall-clock format used by signatures and by
// inline timestamp lines.
const TimeLayout = "2006-01-02 15:04:05"

var timeSpecRe = regexp.MustCompile(`^(\d{4})[-/](\d{1,2})[-/](\d{1,2})\s+(\d{1,2}):(\d{2}):(\d{2})$`)

// FormatTime renders epoch milliseconds in loc.
func FormatTime(ms int64, loc *time.Location) string {
	return time.UnixMilli(ms).In(loc).Format(TimeLayout)
}

// ParseTime reads a wall-clock string in loc. It accepts "/" separators
// and single-digit month, day and hour.
func ParseTime(value string, loc *time.Location) (int64, bool) {
	m := timeSpecRe.FindStringSubmatch(value)
	if m == nil {
		return 0, false
	}
	parts := make([]int, 6)
	for i := range parts {
		n, err := strconv.Atoi(m[i+1])
		if err != nil {
			return 0, false
		}
		parts[i] = n
	}
	year, month, day, hour, minute, second := parts[0], parts[1], parts[2], parts[3], parts[4], parts[5]
	if month < 1 || month > 12 || day < 1 || day > 31 || hour > 23 || minute > 59 || second > 59 {
		return 0, false
	}
	t := time.Date(year, time.Month(month), day, hour, minute, second, 0, loc)
	if t.Day() != day {
		return 0, false
	}
	return t.UnixMilli(), true
}

// Parse extracts provenance from text containing a signature. ok is false
// when no creation line is present.
func (c *Codec) Parse(text string) (Meta, bool) {
	var meta Meta
	created := createdRe.FindStringSubmatch(text)
	if created == nil {
		return meta, false
	}
	ts, ok := ParseTime(created[2], c.loc)
	if !ok {
		return meta, false
	}
	meta.CreatorOrigin = ParseOrigin(created[1])
	meta.CreatedAt = ts
	if modified := modifiedRe.FindStringSubmatch(text); modified != nil {
		if updated, ok := ParseTime(modified[2], c.loc); ok {
			meta.UpdatedAt = updated
		}
		if modified[1] != "" {
			meta.ModifierOrigin = ParseOrigin(modified[1])
		}
	}
	return meta.Normalized(), true
}
