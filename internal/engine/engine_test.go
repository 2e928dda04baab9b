package engine

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nudge/internal/dispatch"
	"nudge/internal/eventbus"
	"nudge/internal/reminder"
	"nudge/internal/storage"
	logx "nudge/pkg/logx"
)

// seqRand returns v for every draw; tests change v between calls.
type seqRand struct {
	mu sync.Mutex
	v  int
}

func (r *seqRand) IntN(n int) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.v >= n {
		return n - 1
	}
	return r.v
}

func (r *seqRand) set(v int) {
	r.mu.Lock()
	r.v = v
	r.mu.Unlock()
}

type recorder struct {
	mu    sync.Mutex
	texts []string
	fail  map[string]error
	panic map[string]bool
}

func (r *recorder) Deliver(_ context.Context, text string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.panic[text] {
		panic("dispatcher blew up")
	}
	r.texts = append(r.texts, text)
	return r.fail[text]
}

func (r *recorder) got() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.texts...)
}

type failingStore struct {
	loadErr error
	saveErr error
}

func (s failingStore) Load(context.Context) ([]reminder.Reminder, error) { return nil, s.loadErr }
func (s failingStore) Save(context.Context, []reminder.Reminder) error  { return s.saveErr }
func (s failingStore) Close() error                                     { return nil }

func seqIDs() func() string {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("r%d", n)
	}
}

func at(h, m int) time.Time {
	return time.Date(2024, 5, 17, h, m, 0, 0, time.Local)
}

func newTestEngine(t *testing.T, st storage.Store, d dispatch.Dispatcher, opts ...Option) (*Engine, *seqRand) {
	t.Helper()
	rng := &seqRand{}
	opts = append([]Option{WithRand(rng), WithIDFunc(seqIDs())}, opts...)
	return New(st, d, logx.Nop(), opts...), rng
}

func drinkWater() reminder.Input {
	return reminder.Input{Text: "Drink water", Frequency: 3, IsRandom: false, StartHour: 8, EndHour: 11}
}

func TestAddThenNextTimes(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	e, _ := newTestEngine(t, storage.NewMemory(), &recorder{})

	id, err := e.Add(ctx, drinkWater())
	require.NoError(t, err)
	assert.Equal(t, "r1", id)

	assert.Equal(t, []string{"08:00", "09:00", "10:00"}, e.NextTimes(id))

	r, ok := e.Get(id)
	require.True(t, ok)
	assert.True(t, r.Enabled)
	assert.Equal(t, "Drink water", r.Text)
}

func TestAddUniformStaysInHalfSlice(t *testing.T) {
	t.Parallel()
	e, rng := newTestEngine(t, storage.NewMemory(), &recorder{})
	rng.set(1000) // clamps to the top of each draw range

	id, err := e.Add(context.Background(), drinkWater())
	require.NoError(t, err)
	assert.Equal(t, []string{"08:30", "09:30", "10:30"}, e.NextTimes(id))
}

func TestAddRejectsInvalidInput(t *testing.T) {
	t.Parallel()
	mem := storage.NewMemory()
	e, _ := newTestEngine(t, mem, &recorder{})

	tests := []struct {
		name string
		in   reminder.Input
		want error
	}{
		{name: "empty text", in: reminder.Input{Text: "  ", Frequency: 1, StartHour: 8, EndHour: 9}, want: reminder.ErrEmptyText},
		{name: "zero frequency", in: reminder.Input{Text: "x", Frequency: 0, StartHour: 8, EndHour: 9}, want: reminder.ErrFrequency},
		{name: "frequency above one per minute", in: reminder.Input{Text: "x", Frequency: reminder.MaxFrequency + 1, IsRandom: true, StartHour: 8, EndHour: 22}, want: reminder.ErrFrequency},
		{name: "huge frequency", in: reminder.Input{Text: "x", Frequency: 5_000_000, IsRandom: true, StartHour: 8, EndHour: 22}, want: reminder.ErrFrequency},
		{name: "start equals end", in: reminder.Input{Text: "x", Frequency: 1, StartHour: 9, EndHour: 9}, want: reminder.ErrWindow},
		{name: "start after end", in: reminder.Input{Text: "x", Frequency: 1, StartHour: 10, EndHour: 9}, want: reminder.ErrWindow},
		{name: "hour out of range", in: reminder.Input{Text: "x", Frequency: 1, StartHour: 8, EndHour: 24}, want: reminder.ErrHourRange},
	}
	for _, tt := range tests {
		_, err := e.Add(context.Background(), tt.in)
		require.ErrorIs(t, err, tt.want, tt.name)
		require.ErrorIs(t, err, reminder.ErrInvalid, tt.name)
	}
	assert.Empty(t, e.List())
	assert.Zero(t, mem.Saves())
}

func TestSetEnabled(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	mem := storage.NewMemory()
	e, rng := newTestEngine(t, mem, &recorder{})

	id, err := e.Add(ctx, drinkWater())
	require.NoError(t, err)

	require.NoError(t, e.SetEnabled(ctx, id, false))
	assert.Empty(t, e.NextTimes(id))
	assert.NotNil(t, e.NextTimes(id))

	rng.set(5)
	require.NoError(t, e.SetEnabled(ctx, id, true))
	assert.Equal(t, []string{"08:05", "09:05", "10:05"}, e.NextTimes(id))

	// Enabling an enabled reminder keeps today's set.
	rng.set(0)
	require.NoError(t, e.SetEnabled(ctx, id, true))
	assert.Equal(t, []string{"08:05", "09:05", "10:05"}, e.NextTimes(id))

	assert.Equal(t, 4, mem.Saves())
	require.ErrorIs(t, e.SetEnabled(ctx, "missing", true), ErrNotFound)
}

func TestToggle(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	e, _ := newTestEngine(t, storage.NewMemory(), &recorder{})
	id, err := e.Add(ctx, drinkWater())
	require.NoError(t, err)

	on, err := e.Toggle(ctx, id)
	require.NoError(t, err)
	assert.False(t, on)
	assert.Empty(t, e.NextTimes(id))

	on, err = e.Toggle(ctx, id)
	require.NoError(t, err)
	assert.True(t, on)
	assert.Len(t, e.NextTimes(id), 3)

	_, err = e.Toggle(ctx, "nope")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestRemoveIsIdempotent(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	mem := storage.NewMemory()
	e, _ := newTestEngine(t, mem, &recorder{})

	id, err := e.Add(ctx, drinkWater())
	require.NoError(t, err)
	other, err := e.Add(ctx, reminder.Input{Text: "Stretch", Frequency: 1, StartHour: 9, EndHour: 10})
	require.NoError(t, err)

	e.Remove(ctx, id)
	assert.Empty(t, e.NextTimes(id))
	_, ok := e.Get(id)
	assert.False(t, ok)
	saves := mem.Saves()

	e.Remove(ctx, id)
	assert.Equal(t, saves, mem.Saves())

	list := e.List()
	require.Len(t, list, 1)
	assert.Equal(t, other, list[0].ID)
}

func TestListKeepsInsertionOrder(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	e, _ := newTestEngine(t, storage.NewMemory(), &recorder{})
	for _, text := range []string{"c", "a", "b"} {
		_, err := e.Add(ctx, reminder.Input{Text: text, Frequency: 1, StartHour: 1, EndHour: 2})
		require.NoError(t, err)
	}
	var got []string
	for _, r := range e.List() {
		got = append(got, r.Text)
	}
	assert.Equal(t, []string{"c", "a", "b"}, got)
}

func TestPersistRestoreRoundTrip(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "reminders.json")

	st, err := storage.Open(storage.Config{Path: path}, logx.Nop())
	require.NoError(t, err)
	e, _ := newTestEngine(t, st, &recorder{})

	a, err := e.Add(ctx, drinkWater())
	require.NoError(t, err)
	b, err := e.Add(ctx, reminder.Input{Text: "Stretch", Frequency: 5, IsRandom: true, StartHour: 9, EndHour: 18})
	require.NoError(t, err)
	require.NoError(t, e.SetEnabled(ctx, b, false))
	before := e.List()
	require.NoError(t, st.Close())

	st2, err := storage.Open(storage.Config{Path: path}, logx.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = st2.Close() })
	e2, _ := newTestEngine(t, st2, &recorder{})
	require.NoError(t, e2.Restore(ctx))

	assert.Equal(t, before, e2.List())
	assert.Len(t, e2.NextTimes(a), 3)
	assert.Empty(t, e2.NextTimes(b))
}

func TestRestoreSkipsInvalidAndDuplicateRecords(t *testing.T) {
	t.Parallel()
	mem := storage.NewMemory(
		reminder.Reminder{ID: "ok", Text: "fine", Frequency: 2, StartHour: 8, EndHour: 9, Enabled: true},
		reminder.Reminder{ID: "bad", Text: "window", Frequency: 2, StartHour: 9, EndHour: 9, Enabled: true},
		reminder.Reminder{ID: "", Text: "no id", Frequency: 1, StartHour: 1, EndHour: 2},
		reminder.Reminder{ID: "ok", Text: "dup", Frequency: 1, StartHour: 1, EndHour: 2},
	)
	e, _ := newTestEngine(t, mem, &recorder{})
	require.NoError(t, e.Restore(context.Background()))

	list := e.List()
	require.Len(t, list, 1)
	assert.Equal(t, "fine", list[0].Text)
	assert.Len(t, e.NextTimes("ok"), 2)
}

func TestRestoreLoadFailureStartsEmpty(t *testing.T) {
	t.Parallel()
	boom := errors.New("disk on fire")
	e, _ := newTestEngine(t, failingStore{loadErr: boom}, &recorder{})

	err := e.Restore(context.Background())
	require.ErrorIs(t, err, boom)
	assert.Empty(t, e.List())
}

func TestSaveFailureKeepsMemoryState(t *testing.T) {
	t.Parallel()
	e, _ := newTestEngine(t, failingStore{saveErr: errors.New("read-only")}, &recorder{})

	id, err := e.Add(context.Background(), drinkWater())
	require.NoError(t, err)
	assert.Len(t, e.List(), 1)
	assert.Len(t, e.NextTimes(id), 3)
}

func TestTickDeliversMatchesOncePerMinute(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	rec := &recorder{}
	e, _ := newTestEngine(t, storage.NewMemory(), rec)

	_, err := e.Add(ctx, drinkWater())
	require.NoError(t, err)
	_, err = e.Add(ctx, reminder.Input{Text: "Stretch", Frequency: 1, StartHour: 10, EndHour: 11})
	require.NoError(t, err)

	e.Tick(ctx, at(8, 59))
	assert.Empty(t, rec.got())

	e.Tick(ctx, at(9, 0))
	assert.Equal(t, []string{"Drink water"}, rec.got())

	// Same wall-clock minute, later second.
	e.Tick(ctx, at(9, 0).Add(40*time.Second))
	assert.Equal(t, []string{"Drink water"}, rec.got())

	e.Tick(ctx, at(10, 0))
	assert.Equal(t, []string{"Drink water", "Drink water", "Stretch"}, rec.got())

	snap := e.Snapshot()
	assert.Equal(t, uint64(3), snap.Fired)
	assert.Equal(t, at(10, 0), snap.LastTick)
}

func TestTickDisabledReminderDoesNotFire(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	rec := &recorder{}
	e, _ := newTestEngine(t, storage.NewMemory(), rec)

	id, err := e.Add(ctx, drinkWater())
	require.NoError(t, err)
	require.NoError(t, e.SetEnabled(ctx, id, false))

	e.Tick(ctx, at(8, 0))
	assert.Empty(t, rec.got())
	assert.Empty(t, e.NextTimes(id))
}

func TestTickFiresDuplicateOccurrencesTwice(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	rec := &recorder{}
	e, _ := newTestEngine(t, storage.NewMemory(), rec)

	// A constant source puts every random-mode draw on 08:00.
	id, err := e.Add(ctx, reminder.Input{Text: "Blink", Frequency: 2, IsRandom: true, StartHour: 8, EndHour: 10})
	require.NoError(t, err)
	assert.Equal(t, []string{"08:00", "08:00"}, e.NextTimes(id))

	e.Tick(ctx, at(8, 0))
	assert.Equal(t, []string{"Blink", "Blink"}, rec.got())
}

func TestTickIsolatesDeliveryFailures(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	rec := &recorder{
		fail:  map[string]error{"first": errors.New("toast failed")},
		panic: map[string]bool{"second": true},
	}
	bus := eventbus.New()
	fired, unsub := bus.Subscribe(8, EventFired)
	defer unsub()

	e, _ := newTestEngine(t, storage.NewMemory(), rec, WithBus(bus))
	for _, text := range []string{"first", "second", "third"} {
		_, err := e.Add(ctx, reminder.Input{Text: text, Frequency: 1, StartHour: 7, EndHour: 8})
		require.NoError(t, err)
	}

	e.Tick(ctx, at(7, 0))
	assert.Equal(t, []string{"first", "third"}, rec.got())

	snap := e.Snapshot()
	assert.Equal(t, uint64(3), snap.Fired)
	assert.Equal(t, uint64(2), snap.Failed)

	require.Len(t, fired, 3)
	var errs int
	for range 3 {
		ev := (<-fired).Data.(ReminderEvent)
		if ev.Error != "" {
			errs++
		}
	}
	assert.Equal(t, 2, errs)
}

func TestTickSchedulesEnabledWithoutSet(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	rec := &recorder{}
	e, _ := newTestEngine(t, storage.NewMemory(), rec)

	id, err := e.Add(ctx, drinkWater())
	require.NoError(t, err)
	e.mu.Lock()
	delete(e.occ, id)
	e.mu.Unlock()
	assert.Empty(t, e.NextTimes(id))

	e.Tick(ctx, at(8, 0))
	assert.Equal(t, []string{"Drink water"}, rec.got())
	assert.Len(t, e.NextTimes(id), 3)
}

func TestMidnightMatchesThenRollsOver(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	rec := &recorder{}
	bus := eventbus.New()
	events, unsub := bus.Subscribe(4, EventRescheduled)
	defer unsub()
	e, rng := newTestEngine(t, storage.NewMemory(), rec, WithBus(bus))

	id, err := e.Add(ctx, reminder.Input{Text: "Sleep", Frequency: 1, StartHour: 0, EndHour: 1})
	require.NoError(t, err)
	assert.Equal(t, []string{"00:00"}, e.NextTimes(id))

	rng.set(7)
	e.Tick(ctx, at(0, 0))

	assert.Equal(t, []string{"Sleep"}, rec.got(), "yesterday's 00:00 still fires")
	assert.Equal(t, []string{"00:07"}, e.NextTimes(id), "fresh set after rollover")
	require.Len(t, events, 1)
	assert.Equal(t, 1, (<-events).Data.(ReminderEvent).Count)
}

func TestRescheduleSkipsDisabled(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	e, rng := newTestEngine(t, storage.NewMemory(), &recorder{})

	a, err := e.Add(ctx, drinkWater())
	require.NoError(t, err)
	b, err := e.Add(ctx, drinkWater())
	require.NoError(t, err)
	require.NoError(t, e.SetEnabled(ctx, b, false))

	rng.set(10)
	e.Reschedule()
	assert.Equal(t, []string{"08:10", "09:10", "10:10"}, e.NextTimes(a))
	assert.Empty(t, e.NextTimes(b))

	snap := e.Snapshot()
	assert.Equal(t, 2, snap.Total)
	assert.Equal(t, 1, snap.Enabled)
	assert.Equal(t, 1, snap.Scheduled)
}

func TestEventsPublished(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	bus := eventbus.New()
	ch, unsub := bus.Subscribe(16, "reminder.")
	defer unsub()
	e, _ := newTestEngine(t, storage.NewMemory(), &recorder{}, WithBus(bus))

	id, err := e.Add(ctx, drinkWater())
	require.NoError(t, err)
	require.NoError(t, e.SetEnabled(ctx, id, false))
	require.NoError(t, e.SetEnabled(ctx, id, false))
	require.NoError(t, e.SetEnabled(ctx, id, true))
	e.Remove(ctx, id)

	var types []string
	for len(ch) > 0 {
		types = append(types, (<-ch).Type)
	}
	assert.Equal(t, []string{EventAdded, EventDisabled, EventEnabled, EventRemoved}, types)
}

func TestConcurrentMutationAndTick(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	e, _ := newTestEngine(t, storage.NewMemory(), &recorder{})

	var wg sync.WaitGroup
	for i := range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range 25 {
				id, err := e.Add(ctx, reminder.Input{Text: "x", Frequency: 2, StartHour: 8, EndHour: 9})
				if err != nil {
					t.Error(err)
					return
				}
				_ = e.SetEnabled(ctx, id, j%2 == 0)
				_ = e.NextTimes(id)
				e.Tick(ctx, at(8, (i*25+j)%60))
			}
		}()
	}
	wg.Wait()

	for _, r := range e.List() {
		if r.Enabled {
			assert.Len(t, e.NextTimes(r.ID), 2)
		} else {
			assert.Empty(t, e.NextTimes(r.ID))
		}
	}
	assert.Len(t, e.List(), 100)
}
