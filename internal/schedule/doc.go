// Package schedule turns a reminder's frequency, window and distribution mode
// into concrete minute-of-day firing times for the current day.
//
// Two placement modes exist:
//   - random: every occurrence is drawn independently over the whole window
//     (hour uniform in [start, end), minute uniform in [0, 59]); duplicates
//     are allowed.
//   - uniform: the window is cut into frequency slices of
//     total_minutes/frequency minutes and one occurrence lands in
//     [slice_start, slice_start + slice/2] of each slice.
//
// The functions are pure apart from the injected Rand.
package schedule
