package draw

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"raffle/internal/models"
)

var (
	ErrEmptyPool         = errors.New("no entrants to draw from")
	ErrNoPrizesRemaining = errors.New("no prizes remaining")
	ErrAlreadyRolling    = errors.New("draw is already rolling")
	ErrNotRolling        = errors.New("draw is not rolling")
	ErrSessionClosed     = errors.New("draw session has ended")
)

// DefaultTickInterval is the cadence of the rolling display.
const DefaultTickInterval = 100 * time.Millisecond

// Pool is the part of the entrant pool the engine works with.
type Pool interface {
	Snapshot() []models.Entry
	Remove(id int) bool
}

// Mode decides what happens to a winner once settled.
type Mode int

const (
	// ModeRepeat leaves winners in the pool; one entrant may win several prize steps.
	ModeRepeat Mode = iota
	// ModeUnique removes each winner, so an entrant wins at most once per session.
	ModeUnique
)

func (m Mode) String() string {
	if m == ModeUnique {
		return "unique"
	}
	return "repeat"
}

// ParseMode accepts "repeat" or "unique".
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "repeat":
		return ModeRepeat, nil
	case "unique":
		return ModeUnique, nil
	}
	return ModeRepeat, fmt.Errorf("unknown draw mode %q", s)
}

// State of the engine.
type State int

const (
	StateIdle State = iota
	StateRolling
	StateSettled
	StateExhausted
	StateCancelled
)

func (s State) String() string {
	switch s {
	case StateRolling:
		return "rolling"
	case StateSettled:
		return "settled"
	case StateExhausted:
		return "exhausted"
	case StateCancelled:
		return "cancelled"
	}
	return "idle"
}

// Terminal reports whether the session is over.
func (s State) Terminal() bool {
	return s == StateExhausted || s == StateCancelled
}

// Options configure an engine. Zero values pick the defaults.
type Options struct {
	Mode         Mode
	TickInterval time.Duration
	Clock        clockwork.Clock
	Rand         RandomSource
	OnEvent      Listener
}

// Result describes one settle.
type Result struct {
	Winner *models.Entry `json:"winner,omitempty"`
	// Prize is the awarded prize after its count was decremented.
	Prize      *models.Prize `json:"prize,omitempty"`
	PrizeIndex int           `json:"prizeIndex"`
	Exhausted  bool          `json:"exhausted"`
}

// Engine runs one draw session: it rolls through the entrants on every tick and
// settles a winner for the current prize when paused.
// An engine is not reusable once it reaches a terminal state.
type Engine struct {
	mu     sync.Mutex
	id     uuid.UUID
	pool   Pool
	prizes []*models.Prize
	mode   Mode
	tick   time.Duration
	clock  clockwork.Clock
	rng    RandomSource
	notify Listener

	state       State
	started     bool
	prizeIndex  int
	pending     []models.Entry
	highlighted *models.Entry
	sched       *schedule
}

// New creates an engine over the host's pool and prizes. Prize counts are
// decremented in place, so the caller sees every award.
func New(pool Pool, prizes []*models.Prize, opts Options) *Engine {
	e := &Engine{
		id:     uuid.New(),
		pool:   pool,
		prizes: prizes,
		mode:   opts.Mode,
		tick:   opts.TickInterval,
		clock:  opts.Clock,
		rng:    opts.Rand,
		notify: opts.OnEvent,
	}
	if e.tick <= 0 {
		e.tick = DefaultTickInterval
	}
	if e.clock == nil {
		e.clock = clockwork.NewRealClock()
	}
	if e.rng == nil {
		e.rng = NewRandomSource()
	}
	return e
}

func (e *Engine) ID() uuid.UUID { return e.id }
func (e *Engine) Mode() Mode    { return e.mode }

func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

func (e *Engine) IsRolling() bool {
	return e.State() == StateRolling
}

// CurrentPrizeIndex is the cursor into the prize sequence.
func (e *Engine) CurrentPrizeIndex() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.prizeIndex
}

// CurrentPrize returns a copy of the prize being drawn, or nil when none is left.
func (e *Engine) CurrentPrize() *models.Prize {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.currentPrize()
}

// Highlighted returns the entrant currently on display.
func (e *Engine) Highlighted() *models.Entry {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.highlighted == nil {
		return nil
	}
	h := *e.highlighted
	return &h
}

// Start begins rolling toward the current prize.
func (e *Engine) Start() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	switch {
	case e.state.Terminal():
		return ErrSessionClosed
	case e.state == StateRolling:
		return ErrAlreadyRolling
	}

	entries := e.pool.Snapshot()
	if len(entries) == 0 {
		return ErrEmptyPool
	}

	index := e.prizeIndex
	if !e.started {
		index = 0
	}
	index = e.nextAvailable(index)
	if index >= len(e.prizes) {
		return ErrNoPrizesRemaining
	}

	e.started = true
	e.prizeIndex = index
	e.pending = shuffled(e.rng, entries)
	e.state = StateRolling
	e.sched = every(e.clock, e.tick, e.tickFrom)
	e.emit(EventStarted, nil)
	return nil
}

// Tick advances the rolling display by one entrant. It reports whether an
// entrant was highlighted; outside of Rolling it does nothing.
func (e *Engine) Tick() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.step()
}

func (e *Engine) tickFrom(s *schedule) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.sched != s {
		return
	}
	e.step()
}

func (e *Engine) step() bool {
	if e.state != StateRolling {
		return false
	}
	if len(e.pending) == 0 {
		e.pending = shuffled(e.rng, e.pool.Snapshot())
		if len(e.pending) == 0 {
			return false
		}
	}
	next := e.pending[0]
	e.pending = e.pending[1:]
	e.highlighted = &next
	e.emit(EventHighlighted, &next)
	return true
}

// Pause stops rolling and settles a winner for the current prize.
func (e *Engine) Pause() (Result, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state != StateRolling {
		return Result{}, ErrNotRolling
	}
	e.stopTicking()
	e.state = StateSettled
	return e.settle(), nil
}

func (e *Engine) settle() Result {
	entries := e.pool.Snapshot()
	if len(entries) == 0 {
		return Result{PrizeIndex: e.prizeIndex}
	}

	winner := choose(e.rng, entries)
	if e.mode == ModeUnique {
		e.pool.Remove(winner.ID)
	}
	e.highlighted = &winner
	e.pending = nil

	res := Result{Winner: &winner, PrizeIndex: e.prizeIndex}
	if e.prizeIndex < len(e.prizes) {
		prize := e.prizes[e.prizeIndex]
		if prize.Award() {
			e.prizeIndex = e.nextAvailable(e.prizeIndex + 1)
		}
		awarded := *prize
		res.Prize = &awarded
	}
	e.emitAt(EventSettled, &winner, res.Prize, res.PrizeIndex)

	if e.prizeIndex >= len(e.prizes) {
		e.state = StateExhausted
		res.Exhausted = true
		e.emit(EventExhausted, nil)
	}
	return res
}

// Cancel aborts the session without settling. Calling it on a finished
// session is a no-op.
func (e *Engine) Cancel() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state.Terminal() {
		return
	}
	e.stopTicking()
	e.state = StateCancelled
	e.pending = nil
	e.emit(EventCancelled, nil)
}

func (e *Engine) stopTicking() {
	if e.sched != nil {
		e.sched.Stop()
		e.sched = nil
	}
}

// nextAvailable returns the first index >= from whose prize still has a count.
func (e *Engine) nextAvailable(from int) int {
	for from < len(e.prizes) && !e.prizes[from].Available() {
		from++
	}
	return from
}

func (e *Engine) currentPrize() *models.Prize {
	if e.prizeIndex >= len(e.prizes) {
		return nil
	}
	p := *e.prizes[e.prizeIndex]
	return &p
}

func (e *Engine) emit(t EventType, entry *models.Entry) {
	e.emitAt(t, entry, e.currentPrize(), e.prizeIndex)
}

func (e *Engine) emitAt(t EventType, entry *models.Entry, prize *models.Prize, index int) {
	if e.notify == nil {
		return
	}
	ev := Event{
		ID:         uuid.New(),
		SessionID:  e.id,
		Type:       t,
		Timestamp:  e.clock.Now(),
		Prize:      prize,
		PrizeIndex: index,
	}
	if entry != nil {
		en := *entry
		ev.Entry = &en
	}
	e.notify(ev)
}
