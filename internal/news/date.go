package news

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

var months = map[string]time.Month{
	"jan": time.January, "feb": time.February, "mar": time.March, "apr": time.April,
	"may": time.May, "jun": time.June, "jul": time.July, "aug": time.August,
	"sep": time.September, "oct": time.October, "nov": time.November, "dec": time.December,
}

const monthPattern = `(jan|feb|mar|apr|may|jun|jul|aug|sep|oct|nov|dec)[a-z]*\.?`

// Tried in order; the first match decides.
var (
	dayMonthYear = regexp.MustCompile(`(?i)\b(\d{1,2})\s+` + monthPattern + `,?\s+(\d{4})\b`)
	monthDayYear = regexp.MustCompile(`(?i)\b` + monthPattern + `\s+(\d{1,2}),?\s+(\d{4})\b`)
	isoDate      = regexp.MustCompile(`\b(\d{4})[-/](\d{1,2})[-/](\d{1,2})`)
	numericDate  = regexp.MustCompile(`\b(\d{1,2})[./](\d{1,2})[./](\d{4})\b`)
	todayWord    = regexp.MustCompile(`(?i)\b(today|yesterday)\b`)
	agoForm      = regexp.MustCompile(`(?i)\b\d+\s*(minute|min|hour|hr|day)s?\s+ago\b`)
	compactForm  = regexp.MustCompile(`(?i)\b\d+\s?(h|d|m)\b`)
)

// ParseDate resolves free-text publication dates against today. Relative
// forms ("today", "3 hours ago", "17h", "2d") resolve to today except
// "yesterday". The second result is false when nothing could be parsed.
func ParseDate(text string, today time.Time) (time.Time, bool) {
	text = strings.TrimSpace(text)
	if text == "" {
		return time.Time{}, false
	}
	loc := today.Location()
	day := func(y int, m time.Month, d int) (time.Time, bool) {
		if m < time.January || m > time.December || d < 1 || d > 31 {
			return time.Time{}, false
		}
		t := time.Date(y, m, d, 0, 0, 0, 0, loc)
		// time.Date normalizes 31 Feb into March; reject that.
		if t.Day() != d || t.Month() != m {
			return time.Time{}, false
		}
		return t, true
	}

	if m := dayMonthYear.FindStringSubmatch(text); m != nil {
		if t, ok := day(atoi(m[3]), months[strings.ToLower(m[2])], atoi(m[1])); ok {
			return t, true
		}
	}
	if m := monthDayYear.FindStringSubmatch(text); m != nil {
		if t, ok := day(atoi(m[3]), months[strings.ToLower(m[1])], atoi(m[2])); ok {
			return t, true
		}
	}
	if m := isoDate.FindStringSubmatch(text); m != nil {
		if t, ok := day(atoi(m[1]), time.Month(atoi(m[2])), atoi(m[3])); ok {
			return t, true
		}
	}
	if m := numericDate.FindStringSubmatch(text); m != nil {
		if t, ok := day(atoi(m[3]), time.Month(atoi(m[2])), atoi(m[1])); ok {
			return t, true
		}
	}

	midnight := time.Date(today.Year(), today.Month(), today.Day(), 0, 0, 0, 0, loc)
	if m := todayWord.FindStringSubmatch(text); m != nil {
		if strings.EqualFold(m[1], "yesterday") {
			return midnight.AddDate(0, 0, -1), true
		}
		return midnight, true
	}
	if agoForm.MatchString(text) || compactForm.MatchString(text) {
		return midnight, true
	}
	return time.Time{}, false
}

func atoi(s string) int {
	n, err := strconv.Atoi(s)
	if err != nil {
		return -1
	}
	return n
}
