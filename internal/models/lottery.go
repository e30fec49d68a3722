package models

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

var (
	// ErrInvalidCount is returned when a prize quantity or a paging setting
	// taken from user input is not a positive integer.
	ErrInvalidCount   = errors.New("count must be a positive integer")
	ErrEmptyPrizeName = errors.New("prize name cannot be empty")
)

// Entry is a single entrant of the raffle.
type Entry struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

func (e Entry) String() string {
	return fmt.Sprintf("%d %s", e.ID, e.Name)
}

// Prize represents a prize step of the draw.
// Count is the remaining quantity and OriginalCount the baseline restored by a reset.
type Prize struct {
	Name          string `json:"name"`
	Count         int    `json:"count"`
	OriginalCount int    `json:"original_count"`
}

// NewPrize builds a prize with a full remaining count.
func NewPrize(name string, count int) (*Prize, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, ErrEmptyPrizeName
	}
	if count < 1 {
		return nil, fmt.Errorf("prize %q: %w", name, ErrInvalidCount)
	}
	return &Prize{Name: name, Count: count, OriginalCount: count}, nil
}

// Available reports whether the prize still has something to award.
func (p *Prize) Available() bool {
	return p.Count > 0
}

// Award takes one unit of the prize, never going below zero.
// It reports whether the prize is exhausted afterwards.
func (p *Prize) Award() bool {
	if p.Count > 0 {
		p.Count--
	}
	if p.Count < 0 {
		p.Count = 0
	}
	return p.Count == 0
}

// Reset restores the remaining count to the original quantity.
func (p *Prize) Reset() {
	p.Count = p.OriginalCount
}

// Normalize repairs records written by older versions, which could lack an
// original count or carry a count outside [0, OriginalCount].
func (p *Prize) Normalize() {
	if p.Count < 0 {
		p.Count = 0
	}
	if p.OriginalCount < 1 {
		p.OriginalCount = max(p.Count, 1)
	}
	if p.Count > p.OriginalCount {
		p.Count = p.OriginalCount
	}
}

// ParseCount parses a positive integer typed by the user.
func ParseCount(raw string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("%q: %w", raw, ErrInvalidCount)
	}
	if n <= 0 {
		return 0, fmt.Errorf("%d: %w", n, ErrInvalidCount)
	}
	return n, nil
}

// Settings is the persisted view state of the host application.
type Settings struct {
	EntriesPerPage int     `json:"entries_per_page"`
	CurrentPage    int     `json:"current_page"`
	WindowSize     [2]int  `json:"window_size"`
	Prizes         []Prize `json:"prizes,omitempty"`
}

// DefaultSettings returns the settings used when nothing is stored yet.
func DefaultSettings() Settings {
	return Settings{
		EntriesPerPage: 10,
		CurrentPage:    0,
		WindowSize:     [2]int{800, 1000},
	}
}

// Normalize replaces out of range values with defaults.
func (s *Settings) Normalize() {
	def := DefaultSettings()
	if s.EntriesPerPage <= 0 {
		s.EntriesPerPage = def.EntriesPerPage
	}
	if s.CurrentPage < 0 {
		s.CurrentPage = 0
	}
	if s.WindowSize[0] <= 0 || s.WindowSize[1] <= 0 {
		s.WindowSize = def.WindowSize
	}
}

// LotteryResult stores the outcome of a single settle,
// linking a winner to the prize step it was drawn for.
type LotteryResult struct {
	ID         int64     `json:"id"`
	SessionID  string    `json:"sessionId"`
	PrizeName  string    `json:"prizeName"`
	PrizeIndex int       `json:"prizeIndex"`
	WinnerID   int       `json:"winnerId"`
	WinnerName string    `json:"winnerName"`
	DrawnAt    time.Time `json:"drawnAt"`
}
