package draw

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	"raffle/internal/models"
	"raffle/internal/roster"
)

func newTestPool(t *testing.T, n int) *roster.Pool {
	t.Helper()
	pool := roster.NewPool()
	for i := 1; i <= n; i++ {
		if _, err := pool.Add(fmt.Sprintf("entrant-%d", i)); err != nil {
			t.Fatalf("Add: %v", err)
		}
	}
	return pool
}

// newTestEngine builds an engine on a fake clock so ticks only happen when the test drives them.
func newTestEngine(pool Pool, prizes []*models.Prize, mode Mode) *Engine {
	return New(pool, prizes, Options{
		Mode:  mode,
		Clock: clockwork.NewFakeClock(),
		Rand:  rand.New(rand.NewSource(42)),
	})
}

func TestEngine_ShuffleCycleVisitsEveryEntrantOnce(t *testing.T) {
	pool := newTestPool(t, 7)
	e := newTestEngine(pool, []*models.Prize{{Name: "A", Count: 1, OriginalCount: 1}}, ModeRepeat)

	if err := e.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	for cycle := 0; cycle < 3; cycle++ {
		seen := make(map[int]bool)
		for i := 0; i < pool.Len(); i++ {
			if !e.Tick() {
				t.Fatalf("cycle %d: tick %d highlighted nothing", cycle, i)
			}
			h := e.Highlighted()
			if seen[h.ID] {
				t.Fatalf("cycle %d: entrant %d highlighted twice before the cycle ended", cycle, h.ID)
			}
			seen[h.ID] = true
		}
		if len(seen) != pool.Len() {
			t.Fatalf("cycle %d: expected %d distinct entrants, got %d", cycle, pool.Len(), len(seen))
		}
	}
}

func TestEngine_SinglePrizeScenario(t *testing.T) {
	pool := roster.NewPool(models.Entry{ID: 1, Name: "X"}, models.Entry{ID: 2, Name: "Y"})
	prizes := []*models.Prize{{Name: "A", Count: 1, OriginalCount: 1}}

	var events []EventType
	e := New(pool, prizes, Options{
		Clock:   clockwork.NewFakeClock(),
		Rand:    rand.New(rand.NewSource(1)),
		OnEvent: func(ev Event) { events = append(events, ev.Type) },
	})

	if err := e.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	res, err := e.Pause()
	if err != nil {
		t.Fatalf("Pause: %v", err)
	}

	if prizes[0].Count != 0 {
		t.Errorf("expected prize A count 0, got %d", prizes[0].Count)
	}
	if e.CurrentPrizeIndex() != 1 {
		t.Errorf("expected prize index 1, got %d", e.CurrentPrizeIndex())
	}
	if !res.Exhausted {
		t.Error("expected the session to be exhausted")
	}
	if res.Winner == nil || (res.Winner.Name != "X" && res.Winner.Name != "Y") {
		t.Errorf("unexpected winner: %+v", res.Winner)
	}
	if e.State() != StateExhausted {
		t.Errorf("expected exhausted state, got %s", e.State())
	}
	if last := events[len(events)-1]; last != EventExhausted {
		t.Errorf("expected last event Exhausted, got %s (all: %v)", last, events)
	}
	if pool.Len() != 2 {
		t.Errorf("repeat mode must not shrink the pool, len=%d", pool.Len())
	}
}

func TestEngine_StartErrors(t *testing.T) {
	t.Run("empty pool", func(t *testing.T) {
		prizes := []*models.Prize{{Name: "A", Count: 1, OriginalCount: 1}}
		e := newTestEngine(roster.NewPool(), prizes, ModeRepeat)

		if err := e.Start(); !errors.Is(err, ErrEmptyPool) {
			t.Fatalf("expected ErrEmptyPool, got %v", err)
		}
		if e.State() != StateIdle {
			t.Errorf("expected idle state, got %s", e.State())
		}
	})

	t.Run("no prizes", func(t *testing.T) {
		e := newTestEngine(newTestPool(t, 2), nil, ModeRepeat)
		if err := e.Start(); !errors.Is(err, ErrNoPrizesRemaining) {
			t.Fatalf("expected ErrNoPrizesRemaining, got %v", err)
		}
	})

	t.Run("all prizes at zero", func(t *testing.T) {
		prizes := []*models.Prize{{Name: "A", Count: 0, OriginalCount: 1}, {Name: "B", Count: 0, OriginalCount: 2}}
		e := newTestEngine(newTestPool(t, 2), prizes, ModeRepeat)
		if err := e.Start(); !errors.Is(err, ErrNoPrizesRemaining) {
			t.Fatalf("expected ErrNoPrizesRemaining, got %v", err)
		}
		if e.State() != StateIdle {
			t.Errorf("expected idle state, got %s", e.State())
		}
	})

	t.Run("already rolling", func(t *testing.T) {
		prizes := []*models.Prize{{Name: "A", Count: 1, OriginalCount: 1}}
		e := newTestEngine(newTestPool(t, 2), prizes, ModeRepeat)
		if err := e.Start(); err != nil {
			t.Fatalf("Start: %v", err)
		}
		if err := e.Start(); !errors.Is(err, ErrAlreadyRolling) {
			t.Fatalf("expected ErrAlreadyRolling, got %v", err)
		}
	})

	t.Run("pause while idle", func(t *testing.T) {
		e := newTestEngine(newTestPool(t, 2), nil, ModeRepeat)
		if _, err := e.Pause(); !errors.Is(err, ErrNotRolling) {
			t.Fatalf("expected ErrNotRolling, got %v", err)
		}
	})
}

func TestEngine_PrizeProgressionAndFloor(t *testing.T) {
	pool := newTestPool(t, 4)
	prizes := []*models.Prize{
		{Name: "Grand", Count: 1, OriginalCount: 1},
		{Name: "Empty", Count: 0, OriginalCount: 3},
		{Name: "Small", Count: 2, OriginalCount: 2},
	}
	e := newTestEngine(pool, prizes, ModeRepeat)

	wantIndex := []int{0, 2, 2}
	for step, want := range wantIndex {
		if err := e.Start(); err != nil {
			t.Fatalf("step %d: Start: %v", step, err)
		}
		if got := e.CurrentPrizeIndex(); got != want {
			t.Fatalf("step %d: expected prize index %d, got %d", step, want, got)
		}
		res, err := e.Pause()
		if err != nil {
			t.Fatalf("step %d: Pause: %v", step, err)
		}
		if res.PrizeIndex != want {
			t.Errorf("step %d: result prize index %d, want %d", step, res.PrizeIndex, want)
		}
	}

	for _, p := range prizes {
		if p.Count < 0 {
			t.Errorf("prize %s went negative: %d", p.Name, p.Count)
		}
	}
	if prizes[1].Count != 0 || prizes[1].OriginalCount != 3 {
		t.Errorf("skipped prize must stay untouched: %+v", prizes[1])
	}
	if e.State() != StateExhausted {
		t.Fatalf("expected exhausted state, got %s", e.State())
	}

	if err := e.Start(); !errors.Is(err, ErrSessionClosed) {
		t.Fatalf("expected ErrSessionClosed after exhaustion, got %v", err)
	}
	if _, err := e.Pause(); !errors.Is(err, ErrNotRolling) {
		t.Fatalf("expected ErrNotRolling after exhaustion, got %v", err)
	}
	if prizes[2].Count != 0 {
		t.Errorf("expected no further decrements, got %d", prizes[2].Count)
	}
}

func TestEngine_CancelLeavesCountsAlone(t *testing.T) {
	pool := newTestPool(t, 3)
	prizes := []*models.Prize{{Name: "A", Count: 2, OriginalCount: 2}}
	e := newTestEngine(pool, prizes, ModeUnique)

	if err := e.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	e.Tick()
	e.Cancel()

	if prizes[0].Count != 2 {
		t.Errorf("cancel must not decrement, count=%d", prizes[0].Count)
	}
	if pool.Len() != 3 {
		t.Errorf("cancel must not remove entrants, len=%d", pool.Len())
	}
	if e.IsRolling() {
		t.Error("engine still rolling after cancel")
	}
	if e.Tick() {
		t.Error("tick after cancel must do nothing")
	}
	if err := e.Start(); !errors.Is(err, ErrSessionClosed) {
		t.Errorf("expected ErrSessionClosed, got %v", err)
	}

	// second cancel is a no-op
	e.Cancel()
	if e.State() != StateCancelled {
		t.Errorf("expected cancelled state, got %s", e.State())
	}
}

func TestEngine_UniqueModeRemovesWinners(t *testing.T) {
	pool := newTestPool(t, 3)
	prizes := []*models.Prize{{Name: "A", Count: 3, OriginalCount: 3}}
	e := newTestEngine(pool, prizes, ModeUnique)

	winners := make(map[int]bool)
	for i := 0; i < 3; i++ {
		if err := e.Start(); err != nil {
			t.Fatalf("round %d: Start: %v", i, err)
		}
		for j := 0; j < 5; j++ {
			e.Tick()
			if h := e.Highlighted(); h != nil && winners[h.ID] {
				t.Fatalf("round %d: previous winner %d highlighted again", i, h.ID)
			}
		}
		res, err := e.Pause()
		if err != nil {
			t.Fatalf("round %d: Pause: %v", i, err)
		}
		if winners[res.Winner.ID] {
			t.Fatalf("entrant %d won twice", res.Winner.ID)
		}
		winners[res.Winner.ID] = true
	}

	if pool.Len() != 0 {
		t.Errorf("expected every winner removed, %d left", pool.Len())
	}
	if e.State() != StateExhausted {
		t.Errorf("expected exhausted, got %s", e.State())
	}
}

func TestEngine_UniqueModeRunsOutOfEntrants(t *testing.T) {
	pool := newTestPool(t, 1)
	prizes := []*models.Prize{{Name: "A", Count: 5, OriginalCount: 5}}
	e := newTestEngine(pool, prizes, ModeUnique)

	if err := e.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if _, err := e.Pause(); err != nil {
		t.Fatalf("Pause: %v", err)
	}
	if err := e.Start(); !errors.Is(err, ErrEmptyPool) {
		t.Fatalf("expected ErrEmptyPool, got %v", err)
	}
	if prizes[0].Count != 4 {
		t.Errorf("expected count 4, got %d", prizes[0].Count)
	}
}

func TestEngine_TickerDrivesHighlights(t *testing.T) {
	clock := clockwork.NewFakeClock()
	events := make(chan Event, 64)
	pool := newTestPool(t, 5)
	prizes := []*models.Prize{{Name: "A", Count: 2, OriginalCount: 2}}

	e := New(pool, prizes, Options{
		TickInterval: 50 * time.Millisecond,
		Clock:        clock,
		Rand:         rand.New(rand.NewSource(7)),
		OnEvent:      func(ev Event) { events <- ev },
	})

	if err := e.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	expectEvent(t, events, EventStarted)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := clock.BlockUntilContext(ctx, 1); err != nil {
		t.Fatalf("ticker never registered: %v", err)
	}

	for i := 0; i < 3; i++ {
		clock.Advance(50 * time.Millisecond)
		ev := expectEvent(t, events, EventHighlighted)
		if ev.Entry == nil {
			t.Fatal("highlight event without an entry")
		}
		if ev.SessionID != e.ID() {
			t.Errorf("event session %s, want %s", ev.SessionID, e.ID())
		}
	}

	if _, err := e.Pause(); err != nil {
		t.Fatalf("Pause: %v", err)
	}
	settled := expectEvent(t, events, EventSettled)
	if settled.Prize == nil || settled.Prize.Count != 1 {
		t.Errorf("expected settled prize with count 1, got %+v", settled.Prize)
	}

	clock.Advance(time.Second)
	select {
	case ev := <-events:
		t.Fatalf("unexpected event after pause: %s", ev.Type)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestParseMode(t *testing.T) {
	for in, want := range map[string]Mode{"": ModeRepeat, "repeat": ModeRepeat, " Unique ": ModeUnique} {
		got, err := ParseMode(in)
		if err != nil || got != want {
			t.Errorf("ParseMode(%q) = %v, %v; want %v", in, got, err, want)
		}
	}
	if _, err := ParseMode("sometimes"); err == nil {
		t.Error("expected error for unknown mode")
	}
}

func expectEvent(t *testing.T, events <-chan Event, want EventType) Event {
	t.Helper()
	select {
	case ev := <-events:
		if ev.Type != want {
			t.Fatalf("expected %s event, got %s", want, ev.Type)
		}
		return ev
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for %s event", want)
	}
	return Event{}
}
