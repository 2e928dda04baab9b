package ticker

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// DefaultSchedule fires at second 0 of every minute.
const DefaultSchedule = "* * * * *"

// Reminders are matched per minute, so every minute of the day needs a tick.
const maxGap = time.Minute

var parser = cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

var reHHMM = regexp.MustCompile(`^\s*(\d{1,3}):(\d{2})\s*$`)

// ParseSchedule accepts:
//   - cron: "* * * * *", "0 * * * * *", "@every 1m", "@hourly"
//   - a Go duration: "60s", "1m"
//   - HH:MM as an interval: "00:01"
//
// "cron:" and "every:" prefixes force one interpretation. Schedules that
// leave a minute without a tick ("@hourly", "every:90s") are rejected.
func ParseSchedule(raw string) (cron.Schedule, error) {
	sched, err := parseSchedule(raw)
	if err != nil {
		return nil, err
	}
	if err := checkGap(sched); err != nil {
		return nil, fmt.Errorf("ticker schedule %q: %w", raw, err)
	}
	return sched, nil
}

func parseSchedule(raw string) (cron.Schedule, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		s = DefaultSchedule
	}

	low := strings.ToLower(s)
	switch {
	case strings.HasPrefix(low, "cron:"):
		return parseCron(strings.TrimSpace(s[len("cron:"):]))
	case strings.HasPrefix(low, "every:"):
		d, err := parseInterval(strings.TrimSpace(s[len("every:"):]))
		if err != nil {
			return nil, err
		}
		return cron.Every(d), nil
	case strings.ContainsAny(s, " \t") || strings.HasPrefix(s, "@"):
		return parseCron(s)
	}

	d, err := parseInterval(s)
	if err != nil {
		return nil, fmt.Errorf("invalid ticker schedule %q (use cron like '* * * * *', HH:MM like '00:01', or a duration like '1m')", raw)
	}
	return cron.Every(d), nil
}

// checkGap walks one day minute by minute and requires a fire in each.
func checkGap(sched cron.Schedule) error {
	if every, ok := sched.(cron.ConstantDelaySchedule); ok {
		if every.Delay > maxGap {
			return fmt.Errorf("interval %s is longer than %s", every.Delay, maxGap)
		}
		return nil
	}
	day := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for m := 0; m < 24*60; m++ {
		start := day.Add(time.Duration(m) * maxGap)
		next := sched.Next(start.Add(-time.Nanosecond))
		if next.IsZero() || !next.Before(start.Add(maxGap)) {
			return fmt.Errorf("no tick in minute %s; the schedule must fire every minute", start.Format("15:04"))
		}
	}
	return nil
}

func parseCron(expr string) (cron.Schedule, error) {
	if expr == "" {
		return nil, fmt.Errorf("cron expression required")
	}
	sched, err := parser.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("parse cron %q: %w", expr, err)
	}
	return sched, nil
}

func parseInterval(v string) (time.Duration, error) {
	if m := reHHMM.FindStringSubmatch(v); m != nil {
		hh, _ := strconv.Atoi(m[1])
		mm, _ := strconv.Atoi(m[2])
		if mm > 59 {
			return 0, fmt.Errorf("invalid minutes in %q", v)
		}
		v = (time.Duration(hh)*time.Hour + time.Duration(mm)*time.Minute).String()
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, err
	}
	if d < time.Second {
		return 0, fmt.Errorf("interval must be at least 1s, got %s", d)
	}
	return d, nil
}
