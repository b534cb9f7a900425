package scheduler

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/samber/lo"

	"video-publisher/internal/model"
)

// DefaultTime is used when a concept has neither posting times nor a usable legacy schedule.
const DefaultTime = "08:00"

var timePattern = regexp.MustCompile(`^(\d{1,2}):(\d{2})$`)

// NormalizeTimeString turns "8:05" into "08:05". ok is false for anything that is not a valid
// 24h clock time.
func NormalizeTimeString(value string) (string, bool) {
	m := timePattern.FindStringSubmatch(strings.TrimSpace(value))
	if m == nil {
		return "", false
	}
	hour, _ := strconv.Atoi(m[1])
	minute, _ := strconv.Atoi(m[2])
	if hour > 23 || minute > 59 {
		return "", false
	}
	return fmt.Sprintf("%02d:%02d", hour, minute), true
}

// CronFromTime derives the legacy 5-field schedule from a posting time.
func CronFromTime(t string) string {
	n, ok := NormalizeTimeString(t)
	if !ok {
		return "0 8 * * *"
	}
	hour, _ := strconv.Atoi(n[:2])
	minute, _ := strconv.Atoi(n[3:])
	return fmt.Sprintf("%d %d * * *", minute, hour)
}

// TimesFromSchedule reads the minute and hour fields of a legacy cron schedule.
func TimesFromSchedule(schedule string) []string {
	parts := strings.Fields(schedule)
	if len(parts) < 2 {
		return nil
	}
	minute, err := strconv.Atoi(parts[0])
	if err != nil {
		return nil
	}
	hour, err := strconv.Atoi(parts[1])
	if err != nil {
		return nil
	}
	if n, ok := NormalizeTimeString(fmt.Sprintf("%02d:%02d", hour, minute)); ok {
		return []string{n}
	}
	return []string{DefaultTime}
}

// NormalizePostingTimes drops invalid entries, dedupes and sorts by clock time.
func NormalizePostingTimes(times []string) []string {
	valid := lo.FilterMap(times, func(t string, _ int) (string, bool) {
		return NormalizeTimeString(t)
	})
	out := lo.Uniq(valid)
	// zero-padded HH:MM sorts lexically in clock order
	sort.Strings(out)
	return out
}

// EnsurePostingTimes returns the concept's posting times, falling back to the legacy schedule
// and then to DefaultTime.
func EnsurePostingTimes(cfg model.ConceptConfig) []string {
	if times := NormalizePostingTimes(cfg.PostingTimes); len(times) > 0 {
		return times
	}
	if times := NormalizePostingTimes(TimesFromSchedule(cfg.Schedule)); len(times) > 0 {
		return times
	}
	return []string{DefaultTime}
}

// WithNormalizedPostingTimes makes postingTimes the source of truth and derives the legacy
// schedule field from its first entry.
func WithNormalizedPostingTimes(cfg model.ConceptConfig) model.ConceptConfig {
	cfg.PostingTimes = EnsurePostingTimes(cfg)
	cfg.Schedule = CronFromTime(cfg.PostingTimes[0])
	return cfg
}

// MostRecentOccurrence returns the latest instant not after ref at which the clock in loc showed
// hhmm. hhmm must already be normalized.
func MostRecentOccurrence(hhmm string, ref time.Time, loc *time.Location) time.Time {
	hour, _ := strconv.Atoi(hhmm[:2])
	minute, _ := strconv.Atoi(hhmm[3:])
	local := ref.In(loc)
	candidate := time.Date(local.Year(), local.Month(), local.Day(), hour, minute, 0, 0, loc)
	if candidate.After(ref) {
		candidate = candidate.Add(-24 * time.Hour)
	}
	return candidate
}

// IsDue reports the first posting time whose most recent occurrence falls in [now-window, now].
func IsDue(times []string, now time.Time, loc *time.Location, window time.Duration) (string, time.Time, bool) {
	start := now.Add(-window)
	for _, t := range NormalizePostingTimes(times) {
		occ := MostRecentOccurrence(t, now, loc)
		if !occ.Before(start) && !occ.After(now) {
			return t, occ, true
		}
	}
	return "", time.Time{}, false
}

// Due is a concept whose posting time came up in the current window.
type Due struct {
	ConceptID  string
	Name       string
	Time       string
	Occurrence time.Time
}

// Key identifies one scheduled occurrence so a tick never posts it twice.
func (d Due) Key() string {
	return d.ConceptID + "@" + d.Occurrence.UTC().Format(time.RFC3339)
}

// DueConcepts filters concepts (keyed by id) down to the ones due at now, ordered by id.
func DueConcepts(concepts map[string]model.ConceptConfig, now time.Time, loc *time.Location, window time.Duration) []Due {
	ids := lo.Keys(concepts)
	sort.Strings(ids)
	var out []Due
	for _, id := range ids {
		cfg := concepts[id]
		t, occ, ok := IsDue(EnsurePostingTimes(cfg), now, loc, window)
		if !ok {
			continue
		}
		out = append(out, Due{ConceptID: id, Name: lo.Ternary(cfg.Name != "", cfg.Name, id), Time: t, Occurrence: occ})
	}
	return out
}
