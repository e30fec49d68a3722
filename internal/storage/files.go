package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"strings"

	"github.com/google/logger"
	"github.com/jonboulle/clockwork"

	"raffle/internal/models"
)

const (
	rosterFile   = "roster.csv"
	settingsFile = "settings.json"
	prizesFile   = "prizes.json"
	backupDir    = "backups"
	backupPrefix = "roster_"
)

// FileStore keeps the roster, settings and prizes as files in one directory.
// Writes replace the whole file; the last write wins.
type FileStore struct {
	dir         string
	backupLimit int
	clock       clockwork.Clock
}

// NewFileStore creates a store rooted at dir. A backupLimit of zero disables backups.
func NewFileStore(dir string, backupLimit int, clock clockwork.Clock) *FileStore {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &FileStore{dir: dir, backupLimit: backupLimit, clock: clock}
}

// Init creates the data directory.
func (s *FileStore) Init() error {
	return wrap("create", s.dir, os.MkdirAll(filepath.Join(s.dir, backupDir), 0o755))
}

func (s *FileStore) Dir() string { return s.dir }

func (s *FileStore) path(name string) string {
	return filepath.Join(s.dir, name)
}

// LoadRoster reads the roster file. A missing file yields an empty roster.
func (s *FileStore) LoadRoster() ([]models.Entry, error) {
	path := s.path(rosterFile)
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		logger.Infof("No roster at %s, starting empty", path)
		return nil, nil
	}
	if err != nil {
		return nil, wrap("open", path, err)
	}
	defer f.Close()

	entries, err := ReadRoster(f)
	if err != nil {
		return nil, wrap("read", path, err)
	}
	return entries, nil
}

// SaveRoster writes the roster file.
func (s *FileStore) SaveRoster(entries []models.Entry) error {
	path := s.path(rosterFile)
	return wrap("write", path, writeAtomic(path, func(w io.Writer) error {
		return WriteRoster(w, entries)
	}))
}

// Backup writes a timestamped copy of the roster and keeps only the newest ones.
func (s *FileStore) Backup(entries []models.Entry) error {
	if s.backupLimit <= 0 {
		return nil
	}
	dir := s.path(backupDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return wrap("create", dir, err)
	}

	existing, err := s.Backups()
	if err != nil {
		return err
	}
	for len(existing) >= s.backupLimit {
		oldest := filepath.Join(dir, existing[0])
		if err := os.Remove(oldest); err != nil {
			return wrap("remove", oldest, err)
		}
		existing = existing[1:]
	}

	// Backups in the same millisecond get a counter so none is overwritten.
	stamp := s.clock.Now().Format("20060102150405.000")
	name := backupPrefix + stamp + ".csv"
	for n := 1; slices.Contains(existing, name); n++ {
		name = fmt.Sprintf("%s%s_%03d.csv", backupPrefix, stamp, n)
	}
	path := filepath.Join(dir, name)
	return wrap("write", path, writeAtomic(path, func(w io.Writer) error {
		return WriteRoster(w, entries)
	}))
}

// Backups lists backup file names, oldest first.
func (s *FileStore) Backups() ([]string, error) {
	dir := s.path(backupDir)
	items, err := os.ReadDir(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, wrap("list", dir, err)
	}

	var names []string
	for _, it := range items {
		if !it.IsDir() && strings.HasPrefix(it.Name(), backupPrefix) {
			names = append(names, it.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

// LoadSettings reads settings.json, falling back to defaults when it is missing.
func (s *FileStore) LoadSettings() (models.Settings, error) {
	settings := models.DefaultSettings()
	if err := readJSON(s.path(settingsFile), &settings); err != nil {
		return models.DefaultSettings(), err
	}
	settings.Normalize()
	for i := range settings.Prizes {
		settings.Prizes[i].Normalize()
	}
	return settings, nil
}

func (s *FileStore) SaveSettings(settings models.Settings) error {
	return writeJSON(s.path(settingsFile), settings)
}

// LoadPrizes reads prizes.json. A missing file yields no prizes.
func (s *FileStore) LoadPrizes() ([]models.Prize, error) {
	var prizes []models.Prize
	if err := readJSON(s.path(prizesFile), &prizes); err != nil {
		return nil, err
	}
	for i := range prizes {
		prizes[i].Normalize()
	}
	return prizes, nil
}

func (s *FileStore) SavePrizes(prizes []models.Prize) error {
	if prizes == nil {
		prizes = []models.Prize{}
	}
	return writeJSON(s.path(prizesFile), prizes)
}

func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return wrap("read", path, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return wrap("decode", path, err)
	}
	return nil
}

func writeJSON(path string, v any) error {
	return wrap("write", path, writeAtomic(path, func(w io.Writer) error {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}))
}

// writeAtomic writes through a temp file in the same directory and renames it into place.
func writeAtomic(path string, fill func(io.Writer) error) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if err := fill(tmp); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
