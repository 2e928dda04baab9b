package schedule

import (
	"math/rand/v2"
	"sort"
	"time"

	"nudge/internal/reminder"
)

// Rand is the randomness source used to place occurrences.
// *math/rand/v2.Rand satisfies it.
type Rand interface {
	// IntN returns a value in [0, n). n must be > 0.
	IntN(n int) int
}

// NewRand returns a time-seeded source. It is not safe for concurrent use;
// the engine only calls it while holding its lock.
func NewRand() *rand.Rand {
	seed := uint64(time.Now().UnixNano())
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}

// Schedule derives today's occurrences for one reminder.
//
// The result has exactly frequency entries, each within [startHour, endHour).
// It is not sorted; use Sorted or Format for presentation.
func Schedule(rng Rand, frequency int, isRandom bool, startHour, endHour int) []reminder.Occurrence {
	if frequency < 1 || startHour >= endHour {
		return nil
	}
	if isRandom {
		return randomTimes(rng, frequency, startHour, endHour)
	}
	return uniformTimes(rng, frequency, startHour, endHour)
}

// ForReminder is Schedule applied to a stored definition.
func ForReminder(rng Rand, r reminder.Reminder) []reminder.Occurrence {
	return Schedule(rng, r.Frequency, r.IsRandom, r.StartHour, r.EndHour)
}

// randomTimes draws independent (hour, minute) pairs. Duplicates are kept.
func randomTimes(rng Rand, frequency, startHour, endHour int) []reminder.Occurrence {
	out := make([]reminder.Occurrence, 0, frequency)
	for range frequency {
		out = append(out, reminder.Occurrence{
			Hour:   between(rng, startHour, endHour-1),
			Minute: between(rng, 0, 59),
		})
	}
	return out
}

// uniformTimes splits the window into frequency equal slices and places one
// occurrence in the first half of each slice.
func uniformTimes(rng Rand, frequency, startHour, endHour int) []reminder.Occurrence {
	total := (endHour - startHour) * 60
	slice := total / frequency

	out := make([]reminder.Occurrence, 0, frequency)
	for i := range frequency {
		m := slice*i + between(rng, 0, slice/2)
		out = append(out, reminder.Occurrence{
			Hour:   startHour + m/60,
			Minute: m % 60,
		})
	}
	return out
}

// between returns a value in [lo, hi].
func between(rng Rand, lo, hi int) int {
	if hi <= lo {
		return lo
	}
	return lo + rng.IntN(hi-lo+1)
}

// Sorted returns a copy of occ ordered by (hour, minute).
func Sorted(occ []reminder.Occurrence) []reminder.Occurrence {
	out := append([]reminder.Occurrence(nil), occ...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Less(out[j]) })
	return out
}

// Format returns occ as sorted "HH:MM" strings.
func Format(occ []reminder.Occurrence) []string {
	sorted := Sorted(occ)
	out := make([]string, 0, len(sorted))
	for _, o := range sorted {
		out = append(out, o.String())
	}
	return out
}

// Count returns how many entries of occ fall on hour:minute.
func Count(occ []reminder.Occurrence, hour, minute int) int {
	n := 0
	for _, o := range occ {
		if o.Hour == hour && o.Minute == minute {
			n++
		}
	}
	return n
}
