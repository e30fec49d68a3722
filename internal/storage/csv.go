package storage

import (
	"encoding/csv"
	"errors"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/google/logger"

	"raffle/internal/models"
)

// utf8BOM lets spreadsheet applications detect the encoding of exported files.
const utf8BOM = "\xef\xbb\xbf"

var rosterHeader = []string{"id", "name"}

// ReadRoster parses a two column (id, name) table. A header row is detected by
// a non numeric first cell and skipped; malformed rows are skipped and logged.
func ReadRoster(r io.Reader) ([]models.Entry, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	var entries []models.Entry
	first := true
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		if first && len(record) > 0 {
			record[0] = strings.TrimPrefix(record[0], utf8BOM)
		}

		if len(record) != 2 {
			logger.Infof("Skipping malformed roster record: %v", record)
			first = false
			continue
		}
		id, err := strconv.Atoi(strings.TrimSpace(record[0]))
		if err != nil {
			if !first {
				logger.Infof("Skipping roster record with invalid id: %v", record)
			}
			first = false
			continue
		}
		first = false

		name := strings.TrimSpace(record[1])
		if name == "" {
			logger.Infof("Skipping roster record with empty name: %v", record)
			continue
		}
		entries = append(entries, models.Entry{ID: id, Name: name})
	}
	return entries, nil
}

// WriteRoster writes entries with a header row, prefixed by a UTF-8 BOM.
func WriteRoster(w io.Writer, entries []models.Entry) error {
	if _, err := io.WriteString(w, utf8BOM); err != nil {
		return err
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(rosterHeader); err != nil {
		return err
	}
	for _, e := range entries {
		if err := cw.Write([]string{strconv.Itoa(e.ID), e.Name}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteResults exports the draw history as CSV.
func WriteResults(w io.Writer, results []models.LotteryResult) error {
	if _, err := io.WriteString(w, utf8BOM); err != nil {
		return err
	}

	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"session", "prize", "prize_index", "winner_id", "winner_name", "drawn_at"}); err != nil {
		return err
	}
	for _, r := range results {
		row := []string{
			r.SessionID,
			r.PrizeName,
			strconv.Itoa(r.PrizeIndex),
			strconv.Itoa(r.WinnerID),
			r.WinnerName,
			r.DrawnAt.Format(time.RFC3339),
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
