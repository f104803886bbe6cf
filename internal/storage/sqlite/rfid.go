package sqlite

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/vrarcade/kiosk/pkg/logger"
)

// Card lookup errors surfaced to the command dispatcher.
var (
	ErrCardNotFound = errors.New("rfid card not found")
	ErrCardInactive = errors.New("rfid card is not active")
)

// CardRecord represents an RFID card in the registry.
type CardRecord struct {
	TagID      string     `json:"tag_id"`
	Name       string     `json:"name,omitempty"`
	Status     string     `json:"status"`
	CreatedAt  time.Time  `json:"created_at"`
	LastUsedAt *time.Time `json:"last_used_at,omitempty"`
}

// RFIDStorage handles the RFID card registry and per-game permissions.
type RFIDStorage struct {
	db     *sql.DB
	logger *logger.Logger
}

// NewRFIDStorage creates a new SQLite RFID storage
func NewRFIDStorage(db *sql.DB, log *logger.Logger) *RFIDStorage {
	return &RFIDStorage{
		db:     db,
		logger: log.Named("sqlite-rfid"),
	}
}

// Register inserts a new card. A card that already exists is an error.
// An empty name defaults to a short label derived from the tag.
func (s *RFIDStorage) Register(tagID, name string) (*CardRecord, error) {
	if name == "" {
		suffix := tagID
		if len(suffix) > 6 {
			suffix = suffix[len(suffix)-6:]
		}
		name = "Card-" + suffix
	}

	var existing string
	err := s.db.QueryRow(`SELECT tag_id FROM rfid_cards WHERE tag_id = ?`, tagID).Scan(&existing)
	if err == nil {
		return nil, fmt.Errorf("rfid card %s already registered", tagID)
	}
	if err != sql.ErrNoRows {
		return nil, fmt.Errorf("failed to check card: %w", err)
	}

	now := time.Now().UTC()
	_, err = s.db.Exec(
		`INSERT INTO rfid_cards (tag_id, name, status, created_at) VALUES (?, ?, 'active', ?)`,
		tagID, name, now.Format(time.RFC3339),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to insert card: %w", err)
	}

	s.logger.Info("Registered new RFID card", String("tag_id", tagID))
	return &CardRecord{TagID: tagID, Name: name, Status: "active", CreatedAt: now}, nil
}

// Deactivate marks a card inactive.
func (s *RFIDStorage) Deactivate(tagID string) error {
	result, err := s.db.Exec(`UPDATE rfid_cards SET status = 'inactive' WHERE tag_id = ?`, tagID)
	if err != nil {
		return fmt.Errorf("failed to deactivate card: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check deactivation: %w", err)
	}
	if rows == 0 {
		return ErrCardNotFound
	}

	s.logger.Info("Deactivated RFID card", String("tag_id", tagID))
	return nil
}

// Get returns the card with the given tag regardless of status.
func (s *RFIDStorage) Get(tagID string) (*CardRecord, error) {
	var record CardRecord
	var name sql.NullString
	var createdAt string
	var lastUsedAt sql.NullString

	err := s.db.QueryRow(
		`SELECT tag_id, name, status, created_at, last_used_at FROM rfid_cards WHERE tag_id = ?`,
		tagID,
	).Scan(&record.TagID, &name, &record.Status, &createdAt, &lastUsedAt)
	if err == sql.ErrNoRows {
		return nil, ErrCardNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query card: %w", err)
	}

	record.Name = name.String
	if t, err := time.Parse(time.RFC3339, createdAt); err == nil {
		record.CreatedAt = t
	}
	if lastUsedAt.Valid {
		if t, err := time.Parse(time.RFC3339, lastUsedAt.String); err == nil {
			record.LastUsedAt = &t
		}
	}

	return &record, nil
}

// Validate returns the card only when it exists and is active.
func (s *RFIDStorage) Validate(tagID string) (*CardRecord, error) {
	record, err := s.Get(tagID)
	if err != nil {
		return nil, err
	}
	if record.Status != "active" {
		return nil, ErrCardInactive
	}
	return record, nil
}

// SetGamePermission upserts a card's permission for one game.
func (s *RFIDStorage) SetGamePermission(tagID, gameID, permissionType string) error {
	_, err := s.db.Exec(
		`INSERT INTO rfid_game_permissions (tag_id, game_id, permission_type, updated_at)
		VALUES (?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(tag_id, game_id) DO UPDATE SET
			permission_type = excluded.permission_type,
			updated_at = CURRENT_TIMESTAMP`,
		tagID, gameID, permissionType,
	)
	if err != nil {
		return fmt.Errorf("failed to set game permission: %w", err)
	}

	s.logger.Info("Set RFID game permission",
		String("tag_id", tagID),
		String("game_id", gameID),
		String("permission_type", permissionType))
	return nil
}

// GamePermission returns the card's permission for a game. Cards with
// no explicit row are allowed (deny rows opt specific games out).
func (s *RFIDStorage) GamePermission(tagID, gameID string) (string, error) {
	var permission string
	err := s.db.QueryRow(
		`SELECT permission_type FROM rfid_game_permissions WHERE tag_id = ? AND game_id = ?`,
		tagID, gameID,
	).Scan(&permission)
	if err == sql.ErrNoRows {
		return "allow", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to query game permission: %w", err)
	}
	return permission, nil
}
