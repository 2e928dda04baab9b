// Package engine owns the reminder collection and each enabled reminder's
// occurrences for the current day.
//
// # Locking
//
// One mutex guards both the reminders and their occurrence sets, so a tick
// always sees a reminder's enabled flag together with its matching set.
// Store writes happen under that lock; deliveries happen after it is
// released.
//
// # Tick
//
// Tick is called about once per minute. For the given wall-clock minute it:
//
//  1. skips entirely if that minute was already processed,
//  2. schedules enabled reminders that have no occurrences yet,
//  3. collects one delivery per matching occurrence (duplicates fire twice),
//  4. at 00:00, recomputes every enabled reminder's occurrences,
//  5. delivers the collected texts, isolating failures per delivery.
//
// Step 3 runs before step 4, so an occurrence at 00:00 from the previous
// day's schedule still fires.
//
// # Errors
//
// Only validation errors and ErrNotFound reach callers. Store and delivery
// failures are logged and counted.
package engine
