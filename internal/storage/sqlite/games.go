package sqlite

import (
	"database/sql"
	"fmt"

	"github.com/vrarcade/kiosk/internal/games"
	"github.com/vrarcade/kiosk/pkg/logger"
)

// GameStorage persists the imported game catalog and ratings.
type GameStorage struct {
	db     *sql.DB
	logger *logger.Logger
}

// NewGameStorage creates a new SQLite game storage
func NewGameStorage(db *sql.DB, log *logger.Logger) *GameStorage {
	return &GameStorage{
		db:     db,
		logger: log.Named("sqlite-games"),
	}
}

// ImportCatalog upserts the configured catalog into the games table so
// session history rows always join against a known game.
func (s *GameStorage) ImportCatalog(catalog []*games.Game) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin catalog import: %w", err)
	}
	defer tx.Rollback()

	for _, g := range catalog {
		_, err := tx.Exec(
			`INSERT INTO games (id, title, executable_path, working_directory, arguments, description, image_url, min_duration_seconds, max_duration_seconds)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				title = excluded.title,
				executable_path = excluded.executable_path,
				working_directory = excluded.working_directory,
				arguments = excluded.arguments,
				description = excluded.description,
				image_url = excluded.image_url,
				min_duration_seconds = excluded.min_duration_seconds,
				max_duration_seconds = excluded.max_duration_seconds,
				updated_at = CURRENT_TIMESTAMP`,
			g.ID, g.Title, g.ExecutablePath, g.WorkingDirectory, g.Arguments,
			g.Description, g.ImageURL, g.MinDurationSecs, g.MaxDurationSecs,
		)
		if err != nil {
			return fmt.Errorf("failed to import game %s: %w", g.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit catalog import: %w", err)
	}

	s.logger.Info("Imported game catalog", logger.Int("game_count", len(catalog)))
	return nil
}

// StoreRating records a rating for a game and returns the game's new
// average rating.
func (s *GameStorage) StoreRating(gameID string, rating int, rfidTag string) (float64, error) {
	var tag sql.NullString
	if rfidTag != "" {
		tag = sql.NullString{String: rfidTag, Valid: true}
	}

	if _, err := s.db.Exec(
		`INSERT INTO ratings (game_id, rating, rfid_tag) VALUES (?, ?, ?)`,
		gameID, rating, tag,
	); err != nil {
		return 0, fmt.Errorf("failed to insert rating: %w", err)
	}

	var avg float64
	if err := s.db.QueryRow(
		`SELECT AVG(rating) FROM ratings WHERE game_id = ?`, gameID,
	).Scan(&avg); err != nil {
		return 0, fmt.Errorf("failed to compute average rating: %w", err)
	}

	return avg, nil
}
