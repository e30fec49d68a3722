package draw

import (
	"time"

	"github.com/google/uuid"

	"raffle/internal/models"
)

// EventType names what happened in a draw session.
type EventType string

const (
	EventStarted     EventType = "Started"
	EventHighlighted EventType = "Highlighted"
	EventSettled     EventType = "Settled"
	EventExhausted   EventType = "Exhausted"
	EventCancelled   EventType = "Cancelled"
)

// Event is emitted by the engine on every state change and on every tick.
// Entry is the highlighted entrant (mid-roll for Highlighted, the winner for Settled).
type Event struct {
	ID         uuid.UUID     `json:"id"`
	SessionID  uuid.UUID     `json:"session_id"`
	Type       EventType     `json:"type"`
	Timestamp  time.Time     `json:"timestamp"`
	Entry      *models.Entry `json:"entry,omitempty"`
	Prize      *models.Prize `json:"prize,omitempty"`
	PrizeIndex int           `json:"prize_index"`
}

// Listener receives engine events. It is called with the engine lock held and
// must not call back into the engine.
type Listener func(Event)
