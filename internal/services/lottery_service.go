package services

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/logger"
	"github.com/jonboulle/clockwork"

	"raffle/internal/draw"
	"raffle/internal/models"
	"raffle/internal/roster"
	"raffle/internal/storage"
)

var (
	ErrSessionActive = errors.New("a draw session is in progress")
	ErrNoSession     = errors.New("no draw session is in progress")
	ErrPrizeNotFound = errors.New("prize not found")
)

// Store persists the roster, settings and prizes.
type Store interface {
	LoadRoster() ([]models.Entry, error)
	SaveRoster(entries []models.Entry) error
	Backup(entries []models.Entry) error
	LoadSettings() (models.Settings, error)
	SaveSettings(settings models.Settings) error
	LoadPrizes() ([]models.Prize, error)
	SavePrizes(prizes []models.Prize) error
}

// ResultLog keeps the settled draws.
type ResultLog interface {
	Record(r models.LotteryResult) (int64, error)
	List() ([]models.LotteryResult, error)
	Clear() (int64, error)
}

// Options configure the engines built by the service.
type Options struct {
	Mode         draw.Mode
	TickInterval time.Duration
	Clock        clockwork.Clock
	Rand         draw.RandomSource
	// Publish receives every engine event. It runs with the engine lock held.
	Publish func(draw.Event)
}

// DrawStatus is a snapshot of the draw for the host and the display.
type DrawStatus struct {
	SessionID   string         `json:"sessionId,omitempty"`
	State       string         `json:"state"`
	Mode        string         `json:"mode"`
	PrizeIndex  int            `json:"prizeIndex"`
	Prize       *models.Prize  `json:"prize,omitempty"`
	Highlighted *models.Entry  `json:"highlighted,omitempty"`
	Entrants    int            `json:"entrants"`
	Prizes      []models.Prize `json:"prizes"`
}

// LotteryService owns the roster, the prize sequence and the current draw session.
type LotteryService struct {
	mu       sync.RWMutex
	pool     *roster.Pool
	prizes   []*models.Prize
	settings models.Settings
	engine   *draw.Engine

	store   Store
	history ResultLog
	opts    Options
}

// NewLotteryService creates and initializes a new LotteryService.
func NewLotteryService(store Store, history ResultLog, opts Options) *LotteryService {
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	return &LotteryService{
		pool:     roster.NewPool(),
		settings: models.DefaultSettings(),
		store:    store,
		history:  history,
		opts:     opts,
	}
}

// Load reads the roster, settings and prizes from the store. Whatever could
// not be read is left at its default and reported in the returned error.
func (s *LotteryService) Load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var errs []error

	entries, err := s.store.LoadRoster()
	if err != nil {
		errs = append(errs, err)
	}
	s.pool.Replace(entries)

	settings, err := s.store.LoadSettings()
	if err != nil {
		errs = append(errs, err)
	}
	s.settings = settings
	if total, _ := s.pool.TotalPages(settings.EntriesPerPage); settings.CurrentPage >= max(total, 1) {
		logger.Infof("Stored page %d is past the roster, showing the first page", settings.CurrentPage+1)
		s.settings.CurrentPage = 0
	}

	prizes, err := s.store.LoadPrizes()
	if err != nil {
		errs = append(errs, err)
	}
	if len(prizes) == 0 && len(settings.Prizes) > 0 {
		logger.Infof("Using %d prizes stored in settings", len(settings.Prizes))
		prizes = settings.Prizes
	}
	s.settings.Prizes = nil
	s.prizes = make([]*models.Prize, 0, len(prizes))
	for i := range prizes {
		p := prizes[i]
		s.prizes = append(s.prizes, &p)
	}

	logger.Infof("Loaded %d entries and %d prizes", s.pool.Len(), len(s.prizes))
	return errors.Join(errs...)
}

// Save writes everything to the store and takes a roster backup.
func (s *LotteryService) Save() error {
	s.mu.RLock()
	entries := s.pool.Snapshot()
	settings := s.settings
	prizes := s.prizeValues()
	s.mu.RUnlock()

	err := errors.Join(
		s.store.SaveRoster(entries),
		s.store.Backup(entries),
		s.store.SaveSettings(settings),
		s.store.SavePrizes(prizes),
	)
	if err != nil {
		logger.Errorf("Save failed: %v", err)
		return err
	}
	logger.Infof("Saved %d entries and %d prizes", len(entries), len(prizes))
	return nil
}

// live reports whether a session holds the pool and prizes. Callers hold s.mu.
func (s *LotteryService) live() bool {
	return s.engine != nil && !s.engine.State().Terminal()
}

func (s *LotteryService) prizeValues() []models.Prize {
	out := make([]models.Prize, len(s.prizes))
	for i, p := range s.prizes {
		out[i] = *p
	}
	return out
}

func (s *LotteryService) persistRoster() {
	if err := s.store.SaveRoster(s.pool.Snapshot()); err != nil {
		logger.Errorf("Failed to save roster: %v", err)
	}
}

func (s *LotteryService) persistSettings() {
	if err := s.store.SaveSettings(s.settings); err != nil {
		logger.Errorf("Failed to save settings: %v", err)
	}
}

func (s *LotteryService) persistPrizes() {
	if err := s.store.SavePrizes(s.prizeValues()); err != nil {
		logger.Errorf("Failed to save prizes: %v", err)
	}
}

// AddEntry adds a new entrant to the roster.
func (s *LotteryService) AddEntry(name string) (models.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.live() {
		return models.Entry{}, ErrSessionActive
	}
	e, err := s.pool.Add(name)
	if err != nil {
		return models.Entry{}, err
	}
	s.persistRoster()
	return e, nil
}

// DeleteEntries removes entrants by id and returns how many were removed.
func (s *LotteryService) DeleteEntries(ids ...int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.live() {
		return 0, ErrSessionActive
	}
	n := s.pool.Delete(ids...)
	if n == 0 {
		return 0, roster.ErrNotFound
	}
	s.persistRoster()
	return n, nil
}

func (s *LotteryService) RenameEntry(id int, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.live() {
		return ErrSessionActive
	}
	if err := s.pool.Rename(id, name); err != nil {
		return err
	}
	s.persistRoster()
	return nil
}

func (s *LotteryService) Entries() []models.Entry {
	return s.pool.Snapshot()
}

// EntryPage returns a page of the roster. page is 1-based; zero or less
// returns the page stored in the settings.
func (s *LotteryService) EntryPage(page int) (roster.Page, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	index := page - 1
	if page <= 0 {
		index = s.settings.CurrentPage
	}
	return s.pool.Page(index, s.settings.EntriesPerPage)
}

// ImportRoster replaces the roster with the entries read from r. Rows
// repeating an earlier name are skipped.
func (s *LotteryService) ImportRoster(r io.Reader) (int, error) {
	entries, err := storage.ReadRoster(r)
	if err != nil {
		return 0, fmt.Errorf("failed to read roster: %w", err)
	}
	staged := roster.NewPool()
	for _, e := range entries {
		if err := staged.Insert(e); err != nil {
			logger.Infof("Skipping imported entry %s: %v", e, err)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.live() {
		return 0, ErrSessionActive
	}
	s.pool.Replace(staged.Snapshot())
	s.settings.CurrentPage = 0
	s.persistRoster()
	s.persistSettings()
	logger.Infof("Imported %d entries", staged.Len())
	return staged.Len(), nil
}

func (s *LotteryService) ExportRoster(w io.Writer) error {
	return storage.WriteRoster(w, s.pool.Snapshot())
}

func (s *LotteryService) Settings() models.Settings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.settings
}

// SetEntriesPerPage parses the page size typed by the user and jumps back to the first page.
func (s *LotteryService) SetEntriesPerPage(raw string) (int, error) {
	n, err := models.ParseCount(raw)
	if err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.settings.EntriesPerPage = n
	s.settings.CurrentPage = 0
	s.persistSettings()
	return n, nil
}

// SetCurrentPage stores the zero-based page shown by the host.
func (s *LotteryService) SetCurrentPage(index int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	total, err := s.pool.TotalPages(s.settings.EntriesPerPage)
	if err != nil {
		return err
	}
	if index < 0 || index >= max(total, 1) {
		return fmt.Errorf("page %d of %d: %w", index+1, total, roster.ErrNotFound)
	}
	s.settings.CurrentPage = index
	s.persistSettings()
	return nil
}

func (s *LotteryService) SetWindowSize(width, height int) error {
	if width <= 0 || height <= 0 {
		return fmt.Errorf("window size %dx%d: %w", width, height, models.ErrInvalidCount)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.settings.WindowSize = [2]int{width, height}
	s.persistSettings()
	return nil
}

// Prizes returns a copy of the prize sequence.
func (s *LotteryService) Prizes() []models.Prize {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.prizeValues()
}

// AddPrize appends a prize to the end of the sequence.
func (s *LotteryService) AddPrize(name string, count int) (models.Prize, error) {
	p, err := models.NewPrize(name, count)
	if err != nil {
		return models.Prize{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.live() {
		return models.Prize{}, ErrSessionActive
	}
	s.prizes = append(s.prizes, p)
	s.persistPrizes()
	return *p, nil
}

// UpdatePrize replaces the prize at index. The new count also becomes its
// original count.
func (s *LotteryService) UpdatePrize(index int, name string, count int) (models.Prize, error) {
	p, err := models.NewPrize(name, count)
	if err != nil {
		return models.Prize{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.live() {
		return models.Prize{}, ErrSessionActive
	}
	if index < 0 || index >= len(s.prizes) {
		return models.Prize{}, ErrPrizeNotFound
	}
	s.prizes[index] = p
	s.persistPrizes()
	return *p, nil
}

func (s *LotteryService) DeletePrize(index int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.live() {
		return ErrSessionActive
	}
	if index < 0 || index >= len(s.prizes) {
		return ErrPrizeNotFound
	}
	s.prizes = append(s.prizes[:index], s.prizes[index+1:]...)
	s.persistPrizes()
	return nil
}

// ResetPrizes restores every prize to its original count. A running session
// is cancelled and the next one starts from the first prize.
func (s *LotteryService) ResetPrizes() []models.Prize {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.engine != nil {
		s.engine.Cancel()
		s.engine = nil
	}
	for _, p := range s.prizes {
		p.Reset()
	}
	s.persistPrizes()
	logger.Info("Prizes reset to their original counts")
	return s.prizeValues()
}

func (s *LotteryService) newEngine() *draw.Engine {
	return draw.New(s.pool, s.prizes, draw.Options{
		Mode:         s.opts.Mode,
		TickInterval: s.opts.TickInterval,
		Clock:        s.opts.Clock,
		Rand:         s.opts.Rand,
		OnEvent:      s.opts.Publish,
	})
}

// StartDraw starts rolling. Without a live session a new one is opened; a
// session that fails to start is discarded.
func (s *LotteryService) StartDraw() (DrawStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.startLocked()
}

func (s *LotteryService) startLocked() (DrawStatus, error) {
	if s.live() {
		if err := s.engine.Start(); err != nil {
			return s.status(), err
		}
		return s.status(), nil
	}

	e := s.newEngine()
	if err := e.Start(); err != nil {
		logger.Infof("Draw not started: %v", err)
		return s.status(), err
	}
	s.engine = e
	logger.Infof("Draw session %s started in %s mode", e.ID(), e.Mode())
	return s.status(), nil
}

// PauseDraw stops rolling and settles a winner for the current prize.
func (s *LotteryService) PauseDraw() (draw.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pauseLocked()
}

func (s *LotteryService) pauseLocked() (draw.Result, error) {
	if !s.live() {
		return draw.Result{}, ErrNoSession
	}
	res, err := s.engine.Pause()
	if err != nil {
		return draw.Result{}, err
	}

	if res.Winner != nil && res.Prize != nil {
		logger.Infof("Session %s: %s wins %s", s.engine.ID(), res.Winner, res.Prize.Name)
		_, err := s.history.Record(models.LotteryResult{
			SessionID:  s.engine.ID().String(),
			PrizeName:  res.Prize.Name,
			PrizeIndex: res.PrizeIndex,
			WinnerID:   res.Winner.ID,
			WinnerName: res.Winner.Name,
			DrawnAt:    s.opts.Clock.Now(),
		})
		if err != nil {
			logger.Errorf("Failed to record result: %v", err)
		}
		s.persistPrizes()
		if s.engine.Mode() == draw.ModeUnique {
			s.persistRoster()
		}
	}
	if res.Exhausted {
		logger.Infof("Session %s: all prizes drawn", s.engine.ID())
	}
	return res, nil
}

// CancelDraw ends the session without settling.
func (s *LotteryService) CancelDraw() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.live() {
		return ErrNoSession
	}
	s.engine.Cancel()
	logger.Infof("Draw session %s cancelled", s.engine.ID())
	return nil
}

// ToggleDraw starts rolling when idle and settles when rolling, like the
// space key of the host. The result is nil when the draw was started.
func (s *LotteryService) ToggleDraw() (*draw.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.engine != nil && s.engine.IsRolling() {
		res, err := s.pauseLocked()
		if err != nil {
			return nil, err
		}
		return &res, nil
	}
	_, err := s.startLocked()
	return nil, err
}

func (s *LotteryService) DrawStatus() DrawStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status()
}

func (s *LotteryService) status() DrawStatus {
	st := DrawStatus{
		State:    draw.StateIdle.String(),
		Mode:     s.opts.Mode.String(),
		Entrants: s.pool.Len(),
		Prizes:   s.prizeValues(),
	}
	if s.engine == nil {
		for i, p := range s.prizes {
			if p.Available() {
				st.PrizeIndex = i
				prize := *p
				st.Prize = &prize
				break
			}
		}
		return st
	}
	st.SessionID = s.engine.ID().String()
	st.State = s.engine.State().String()
	st.PrizeIndex = s.engine.CurrentPrizeIndex()
	st.Prize = s.engine.CurrentPrize()
	st.Highlighted = s.engine.Highlighted()
	return st
}

func (s *LotteryService) Results() ([]models.LotteryResult, error) {
	return s.history.List()
}

func (s *LotteryService) ExportResultsCSV(w io.Writer) error {
	results, err := s.history.List()
	if err != nil {
		return err
	}
	return storage.WriteResults(w, results)
}

// ClearResults wipes the draw history.
func (s *LotteryService) ClearResults() (int64, error) {
	n, err := s.history.Clear()
	if err != nil {
		return 0, err
	}
	logger.Infof("Cleared %d results", n)
	return n, nil
}
