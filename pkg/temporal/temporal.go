// Package temporal resolves absolute and relative temporal expressions
// found in note text or search queries to [start, end] intervals, and
// scores how well a resolved interval overlaps or orders against a query.
package temporal

import (
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Expression is one temporal mention found in text, alongside its
// resolved interval.
type Expression struct {
	Literal string
	Kind    string // explicit | relative
	Start   time.Time
	End     time.Time
}

var monthMap = map[string]int{
	"january": 1, "february": 2, "march": 3, "april": 4, "may": 5, "june": 6,
	"july": 7, "august": 8, "september": 9, "october": 10, "november": 11, "december": 12,
	"jan": 1, "feb": 2, "mar": 3, "apr": 4, "jun": 6, "jul": 7, "aug": 8,
	"sep": 9, "oct": 10, "nov": 11, "dec": 12,
}

var monthMapRU = []struct {
	stem string
	num  int
}{
	{"январ", 1}, {"феврал", 2}, {"март", 3}, {"апрел", 4}, {"ма", 5}, {"июн", 6},
	{"июл", 7}, {"август", 8}, {"сентябр", 9}, {"октябр", 10}, {"ноябр", 11}, {"декабр", 12},
}

type seasonRange struct{ startMonth, endMonth int }

var seasonRanges = map[string]seasonRange{
	"summer": {6, 8}, "winter": {12, 2}, "spring": {3, 5}, "fall": {9, 11}, "autumn": {9, 11},
	"лет": {6, 8}, "зим": {12, 2}, "весн": {3, 5}, "осен": {9, 11},
}

var (
	reISODate    = regexp.MustCompile(`\b(\d{4})-(\d{1,2})-(\d{1,2})\b`)
	reUSDate     = regexp.MustCompile(`\b(\d{1,2})/(\d{1,2})/(\d{4})\b`)
	reWrittenDate = regexp.MustCompile(`\b(january|february|march|april|may|june|july|august|september|october|november|december)\s+(\d{1,2}),?\s*(\d{4})\b`)
	reWrittenDateEU = regexp.MustCompile(`\b(\d{1,2})\s+(january|february|march|april|may|june|july|august|september|october|november|december)\s+(\d{4})\b`)

	rePastPeriod   = regexp.MustCompile(`\b(?:last|previous)\s+(week|month|year|summer|winter|spring|fall|autumn)\b`)
	reFuturePeriod = regexp.MustCompile(`\b(?:next|coming)\s+(week|month|year|summer|winter|spring|fall|autumn)\b`)
	reAgo          = regexp.MustCompile(`\b(\d+)\s+(days?|weeks?|months?|years?|hours?)\s+ago\b`)
	reRelativeDay  = regexp.MustCompile(`\b(yesterday|today|tomorrow|tonight)\b`)
	reMonthRef     = regexp.MustCompile(`\bin\s+(january|february|march|april|may|june|july|august|september|october|november|december)\s*(\d{4})?\b`)

	reAgoRU         = regexp.MustCompile(`\b(\d+)\s+(дн\w*|недел\w*|месяц\w*|год\w*|час\w*)\s+назад\b`)
	reRelativeDayRU = regexp.MustCompile(`\b(вчера|сегодня|завтра|позавчера)\b`)
	reMonthRefRU    = regexp.MustCompile(`\bв\s+(январ\w*|феврал\w*|март\w*|апрел\w*|ма\w*|июн\w*|июл\w*|август\w*|сентябр\w*|октябр\w*|ноябр\w*|декабр\w*)\s*(\d{4})?\b`)
)

func dayStart(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
func dayEnd(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 23, 59, 59, 0, t.Location())
}

func resolveRelativeDay(expr string, ref time.Time) (time.Time, time.Time) {
	switch strings.ToLower(strings.TrimSpace(expr)) {
	case "yesterday", "вчера":
		d := ref.AddDate(0, 0, -1)
		return dayStart(d), dayEnd(d)
	case "tomorrow", "завтра":
		d := ref.AddDate(0, 0, 1)
		return dayStart(d), dayEnd(d)
	case "позавчера":
		d := ref.AddDate(0, 0, -2)
		return dayStart(d), dayEnd(d)
	default: // today, tonight, сегодня
		return dayStart(ref), dayEnd(ref)
	}
}

func resolveRelativeAgo(amount int, unit string, ref time.Time) (time.Time, time.Time) {
	unit = strings.ToLower(strings.TrimRight(unit, "s"))
	switch {
	case strings.HasPrefix(unit, "day") || strings.HasPrefix(unit, "дн"):
		d := ref.AddDate(0, 0, -amount)
		return dayStart(d), dayEnd(d)
	case strings.HasPrefix(unit, "week") || strings.HasPrefix(unit, "недел"):
		start := ref.AddDate(0, 0, -7*amount)
		end := start.AddDate(0, 0, 6)
		return dayStart(start), dayEnd(end)
	case strings.HasPrefix(unit, "month") || strings.HasPrefix(unit, "месяц"):
		start := time.Date(ref.Year(), ref.Month(), 1, 0, 0, 0, 0, ref.Location()).AddDate(0, -amount, 0)
		end := start.AddDate(0, 1, 0).Add(-time.Second)
		return start, end
	case strings.HasPrefix(unit, "year") || strings.HasPrefix(unit, "год") || strings.HasPrefix(unit, "лет"):
		y := ref.Year() - amount
		return time.Date(y, 1, 1, 0, 0, 0, 0, ref.Location()), time.Date(y, 12, 31, 23, 59, 59, 0, ref.Location())
	case strings.HasPrefix(unit, "hour") || strings.HasPrefix(unit, "час"):
		d := ref.Add(-time.Duration(amount) * time.Hour)
		return d, d.Add(time.Hour)
	}
	return ref, ref
}

func resolveMonthRef(monthStr string, year int, ref time.Time) (time.Time, time.Time) {
	monthLower := strings.ToLower(monthStr)
	num, ok := monthMap[monthLower]
	if !ok {
		for _, m := range monthMapRU {
			if strings.HasPrefix(monthLower, m.stem) {
				num = m.num
				ok = true
				break
			}
		}
	}
	if !ok {
		return ref, ref
	}
	if year == 0 {
		if num > int(ref.Month()) {
			year = ref.Year() - 1
		} else {
			year = ref.Year()
		}
	}
	start := time.Date(year, time.Month(num), 1, 0, 0, 0, 0, ref.Location())
	var end time.Time
	if num == 12 {
		end = time.Date(year+1, 1, 1, 0, 0, 0, 0, ref.Location()).Add(-time.Second)
	} else {
		end = time.Date(year, time.Month(num+1), 1, 0, 0, 0, 0, ref.Location()).Add(-time.Second)
	}
	return start, end
}

func resolveSeason(season, direction string, ref time.Time) (time.Time, time.Time) {
	seasonLower := strings.ToLower(season)
	for key, r := range seasonRanges {
		if !strings.HasPrefix(seasonLower, key) && seasonLower != key {
			continue
		}
		var year int
		switch direction {
		case "past":
			if r.startMonth >= int(ref.Month()) {
				year = ref.Year() - 1
			} else {
				year = ref.Year()
			}
		case "future":
			if r.startMonth <= int(ref.Month()) {
				year = ref.Year() + 1
			} else {
				year = ref.Year()
			}
		default:
			year = ref.Year()
		}
		if r.startMonth > r.endMonth { // winter wraps year boundary
			start := time.Date(year, time.Month(r.startMonth), 1, 0, 0, 0, 0, ref.Location())
			end := time.Date(year+1, time.Month(r.endMonth+1), 1, 0, 0, 0, 0, ref.Location()).Add(-time.Second)
			return start, end
		}
		start := time.Date(year, time.Month(r.startMonth), 1, 0, 0, 0, 0, ref.Location())
		end := time.Date(year, time.Month(r.endMonth+1), 1, 0, 0, 0, 0, ref.Location()).Add(-time.Second)
		return start, end
	}
	return ref, ref
}

func resolveRelativeWeek(direction string, ref time.Time) (time.Time, time.Time) {
	weekday := int(ref.Weekday()) // Sunday=0 in Go; Python weekday() Monday=0
	mondayIndex := (weekday + 6) % 7
	switch direction {
	case "past":
		end := ref.AddDate(0, 0, -(mondayIndex + 1))
		start := end.AddDate(0, 0, -6)
		return dayStart(start), dayEnd(end)
	case "future":
		start := ref.AddDate(0, 0, 7-mondayIndex)
		end := start.AddDate(0, 0, 6)
		return dayStart(start), dayEnd(end)
	default:
		start := ref.AddDate(0, 0, -mondayIndex)
		end := start.AddDate(0, 0, 6)
		return dayStart(start), dayEnd(end)
	}
}

func resolveRelativeMonth(direction string, ref time.Time) (time.Time, time.Time) {
	firstOfThisMonth := time.Date(ref.Year(), ref.Month(), 1, 0, 0, 0, 0, ref.Location())
	switch direction {
	case "past":
		last := firstOfThisMonth.Add(-time.Second)
		start := time.Date(last.Year(), last.Month(), 1, 0, 0, 0, 0, ref.Location())
		return start, dayEnd(last)
	default: // future maps to "this month" in the original's loose season/month union
		end := firstOfThisMonth.AddDate(0, 1, 0).Add(-time.Second)
		return firstOfThisMonth, end
	}
}

type candidate struct {
	literal    string
	start, end time.Time
	kind       string // explicit | relative
}

// Extract resolves temporal expressions in text against reference,
// returning the literal expressions found and, if any resolved, the
// narrowest explicit-preferred interval (nullable by design: most notes
// are not temporally anchored).
func Extract(text string, reference time.Time) (expressions []string, start, end *time.Time) {
	expressions, candidates := extractCandidates(text, reference)
	if len(candidates) == 0 {
		return expressions, nil, nil
	}
	best := candidates[0]
	return expressions, &best.start, &best.end
}

// ExtractExpressions resolves every temporal expression in text against
// reference, returning one Expression per match (explicit dates sorted
// before relative ones, narrowest interval first within a kind) instead
// of collapsing them to a single best interval like Extract does.
func ExtractExpressions(text string, reference time.Time) []Expression {
	_, candidates := extractCandidates(text, reference)
	out := make([]Expression, len(candidates))
	for i, c := range candidates {
		out[i] = Expression{Literal: c.literal, Kind: c.kind, Start: c.start, End: c.end}
	}
	return out
}

func extractCandidates(text string, reference time.Time) (expressions []string, candidates []candidate) {
	lower := strings.ToLower(text)

	addExplicit := func(literal string, y, m, d int) {
		dt, err := safeDate(y, m, d, reference.Location())
		if err != nil {
			return
		}
		expressions = append(expressions, literal)
		candidates = append(candidates, candidate{literal: literal, start: dt, end: dayEnd(dt), kind: "explicit"})
	}

	for _, m := range reISODate.FindAllStringSubmatch(lower, -1) {
		y, _ := strconv.Atoi(m[1])
		mo, _ := strconv.Atoi(m[2])
		d, _ := strconv.Atoi(m[3])
		addExplicit(m[0], y, mo, d)
	}
	for _, m := range reUSDate.FindAllStringSubmatch(lower, -1) {
		mo, _ := strconv.Atoi(m[1])
		d, _ := strconv.Atoi(m[2])
		y, _ := strconv.Atoi(m[3])
		addExplicit(m[0], y, mo, d)
	}
	for _, m := range reWrittenDate.FindAllStringSubmatch(lower, -1) {
		mo := monthMap[m[1]]
		d, _ := strconv.Atoi(m[2])
		y, _ := strconv.Atoi(m[3])
		if mo > 0 {
			addExplicit(m[0], y, mo, d)
		}
	}
	for _, m := range reWrittenDateEU.FindAllStringSubmatch(lower, -1) {
		d, _ := strconv.Atoi(m[1])
		mo := monthMap[m[2]]
		y, _ := strconv.Atoi(m[3])
		if mo > 0 {
			addExplicit(m[0], y, mo, d)
		}
	}

	addRelative := func(literal string, s, e time.Time) {
		expressions = append(expressions, literal)
		candidates = append(candidates, candidate{literal: literal, start: s, end: e, kind: "relative"})
	}

	for _, m := range rePastPeriod.FindAllStringSubmatch(lower, -1) {
		period := m[1]
		if _, ok := seasonRanges[period]; ok {
			s, e := resolveSeason(period, "past", reference)
			addRelative(m[0], s, e)
		} else if period == "week" {
			s, e := resolveRelativeWeek("past", reference)
			addRelative(m[0], s, e)
		} else if period == "month" {
			s, e := resolveRelativeMonth("past", reference)
			addRelative(m[0], s, e)
		} else if period == "year" {
			y := reference.Year() - 1
			addRelative(m[0], time.Date(y, 1, 1, 0, 0, 0, 0, reference.Location()), time.Date(y, 12, 31, 23, 59, 59, 0, reference.Location()))
		}
	}
	for _, m := range reFuturePeriod.FindAllStringSubmatch(lower, -1) {
		period := m[1]
		if _, ok := seasonRanges[period]; ok {
			s, e := resolveSeason(period, "future", reference)
			addRelative(m[0], s, e)
		} else if period == "week" {
			s, e := resolveRelativeWeek("future", reference)
			addRelative(m[0], s, e)
		} else if period == "month" {
			s, e := resolveRelativeMonth("future", reference)
			addRelative(m[0], s, e)
		} else if period == "year" {
			y := reference.Year() + 1
			addRelative(m[0], time.Date(y, 1, 1, 0, 0, 0, 0, reference.Location()), time.Date(y, 12, 31, 23, 59, 59, 0, reference.Location()))
		}
	}
	for _, m := range reAgo.FindAllStringSubmatch(lower, -1) {
		amount, _ := strconv.Atoi(m[1])
		s, e := resolveRelativeAgo(amount, m[2], reference)
		addRelative(m[0], s, e)
	}
	for _, m := range reAgoRU.FindAllStringSubmatch(lower, -1) {
		amount, _ := strconv.Atoi(m[1])
		s, e := resolveRelativeAgo(amount, m[2], reference)
		addRelative(m[0], s, e)
	}
	for _, m := range reRelativeDay.FindAllStringSubmatch(lower, -1) {
		s, e := resolveRelativeDay(m[1], reference)
		addRelative(m[0], s, e)
	}
	for _, m := range reRelativeDayRU.FindAllStringSubmatch(lower, -1) {
		s, e := resolveRelativeDay(m[1], reference)
		addRelative(m[0], s, e)
	}
	for _, m := range reMonthRef.FindAllStringSubmatch(lower, -1) {
		year := 0
		if m[2] != "" {
			year, _ = strconv.Atoi(m[2])
		}
		s, e := resolveMonthRef(m[1], year, reference)
		addRelative(m[0], s, e)
	}
	for _, m := range reMonthRefRU.FindAllStringSubmatch(lower, -1) {
		year := 0
		if m[2] != "" {
			year, _ = strconv.Atoi(m[2])
		}
		s, e := resolveMonthRef(m[1], year, reference)
		addRelative(m[0], s, e)
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		pi, pj := priorityOf(candidates[i].kind), priorityOf(candidates[j].kind)
		if pi != pj {
			return pi < pj
		}
		return candidates[i].end.Sub(candidates[i].start) < candidates[j].end.Sub(candidates[j].start)
	})
	return expressions, candidates
}

func priorityOf(kind string) int {
	if kind == "explicit" {
		return 0
	}
	return 1
}

func safeDate(y, m, d int, loc *time.Location) (time.Time, error) {
	if m < 1 || m > 12 || d < 1 || d > 31 || y < 1 {
		return time.Time{}, errInvalidDate
	}
	return time.Date(y, time.Month(m), d, 0, 0, 0, 0, loc), nil
}

var errInvalidDate = &invalidDateError{}

type invalidDateError struct{}

func (*invalidDateError) Error() string { return "invalid date" }

// Overlap returns the intersection of [qStart,qEnd] and [nStart,nEnd] as a
// fraction of the query's duration, clamped to [0,1].
func Overlap(qStart, qEnd, nStart, nEnd time.Time) float64 {
	overlapStart := qStart
	if nStart.After(overlapStart) {
		overlapStart = nStart
	}
	overlapEnd := qEnd
	if nEnd.Before(overlapEnd) {
		overlapEnd = nEnd
	}
	if !overlapStart.Before(overlapEnd) {
		return 0
	}
	overlapDuration := overlapEnd.Sub(overlapStart).Seconds()
	queryDuration := qEnd.Sub(qStart).Seconds()
	if queryDuration < 1 {
		queryDuration = 1
	}
	score := overlapDuration / queryDuration
	if score > 1 {
		score = 1
	}
	return score
}
