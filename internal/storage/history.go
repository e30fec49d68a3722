package storage

import (
	"database/sql"
	"embed"
	"strings"

	"raffle/internal/models"
)

//go:embed schema.sql
var embeddedSchema embed.FS

// History keeps every settled draw in SQLite.
type History struct {
	db *sql.DB
}

func NewHistory(db *sql.DB) *History {
	return &History{db: db}
}

func (h *History) InitSchema() error {
	b, err := embeddedSchema.ReadFile("schema.sql")
	if err != nil {
		return err
	}

	schema := strings.TrimSpace(string(b))
	_, err = h.db.Exec(schema)
	return wrap("init schema", "draw_results", err)
}

// Record stores one result and returns its row id.
func (h *History) Record(r models.LotteryResult) (int64, error) {
	res, err := h.db.Exec(`
INSERT INTO draw_results(session_id, prize_name, prize_index, winner_id, winner_name, drawn_at)
VALUES (?, ?, ?, ?, ?, ?)
`, r.SessionID, r.PrizeName, r.PrizeIndex, r.WinnerID, r.WinnerName, r.DrawnAt.UTC())
	if err != nil {
		return 0, wrap("insert", "draw_results", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, wrap("insert", "draw_results", err)
	}
	return id, nil
}

// List returns all results in draw order.
func (h *History) List() ([]models.LotteryResult, error) {
	rows, err := h.db.Query(`
SELECT id, session_id, prize_name, prize_index, winner_id, winner_name, drawn_at
FROM draw_results
ORDER BY id
`)
	if err != nil {
		return nil, wrap("query", "draw_results", err)
	}
	defer rows.Close()

	var results []models.LotteryResult
	for rows.Next() {
		var r models.LotteryResult
		if err := rows.Scan(&r.ID, &r.SessionID, &r.PrizeName, &r.PrizeIndex, &r.WinnerID, &r.WinnerName, &r.DrawnAt); err != nil {
			return nil, wrap("scan", "draw_results", err)
		}
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, wrap("query", "draw_results", err)
	}
	return results, nil
}

// Clear deletes the whole history and reports how many rows went away.
func (h *History) Clear() (int64, error) {
	res, err := h.db.Exec(`DELETE FROM draw_results`)
	if err != nil {
		return 0, wrap("delete", "draw_results", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, wrap("delete", "draw_results", err)
	}
	return affected, nil
}
