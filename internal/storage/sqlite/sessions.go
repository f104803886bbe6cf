package sqlite

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/vrarcade/kiosk/pkg/logger"
)

// SessionRecord represents one play session in the history table.
type SessionRecord struct {
	ID              string     `json:"id"`
	GameID          string     `json:"game_id"`
	StartTime       time.Time  `json:"start_time"`
	EndTime         *time.Time `json:"end_time,omitempty"`
	DurationSeconds int        `json:"duration_seconds"`
	RFIDTag         string     `json:"rfid_tag,omitempty"`
	Rating          int        `json:"rating,omitempty"`
	Status          string     `json:"status"`
}

// SessionStorage handles storage of session history records
type SessionStorage struct {
	db     *sql.DB
	logger *logger.Logger
}

// NewSessionStorage creates a new SQLite session storage
func NewSessionStorage(db *sql.DB, log *logger.Logger) *SessionStorage {
	return &SessionStorage{
		db:     db,
		logger: log.Named("sqlite-sessions"),
	}
}

// StartSession records a new active session and returns its id. If an
// RFID tag is supplied the card's last_used_at is touched.
func (s *SessionStorage) StartSession(gameID string, durationSeconds int, rfidTag string) (string, error) {
	sessionID := uuid.NewString()
	now := time.Now().UTC()

	var tag sql.NullString
	if rfidTag != "" {
		tag = sql.NullString{String: rfidTag, Valid: true}
	}

	_, err := s.db.Exec(
		`INSERT INTO sessions (id, game_id, start_time, duration_seconds, rfid_tag, status)
		VALUES (?, ?, ?, ?, ?, 'active')`,
		sessionID, gameID, now.Format(time.RFC3339), durationSeconds, tag,
	)
	if err != nil {
		return "", fmt.Errorf("failed to insert session: %w", err)
	}

	if rfidTag != "" {
		if _, err := s.db.Exec(
			`UPDATE rfid_cards SET last_used_at = ? WHERE tag_id = ?`,
			now.Format(time.RFC3339), rfidTag,
		); err != nil {
			s.logger.Warn("Failed to touch card last_used_at",
				String("tag_id", rfidTag), Error(err))
		}
	}

	return sessionID, nil
}

// EndSession marks a session completed, recording the actual elapsed duration.
func (s *SessionStorage) EndSession(sessionID string) error {
	var startTimeStr string
	err := s.db.QueryRow(
		`SELECT start_time FROM sessions WHERE id = ? AND status = 'active'`,
		sessionID,
	).Scan(&startTimeStr)
	if err == sql.ErrNoRows {
		return fmt.Errorf("no active session with id %s", sessionID)
	}
	if err != nil {
		return fmt.Errorf("failed to query session: %w", err)
	}

	now := time.Now().UTC()
	actual := 0
	if startTime, parseErr := time.Parse(time.RFC3339, startTimeStr); parseErr == nil {
		actual = int(now.Sub(startTime).Seconds())
	}

	_, err = s.db.Exec(
		`UPDATE sessions SET end_time = ?, status = 'completed', duration_seconds = ? WHERE id = ?`,
		now.Format(time.RFC3339), actual, sessionID,
	)
	if err != nil {
		return fmt.Errorf("failed to update session: %w", err)
	}

	return nil
}

// HistoryByTag returns the most recent sessions for an RFID card.
func (s *SessionStorage) HistoryByTag(rfidTag string, limit int) ([]*SessionRecord, error) {
	rows, err := s.db.Query(
		`SELECT id, game_id, start_time, end_time, duration_seconds, rfid_tag, rating, status
		FROM sessions
		WHERE rfid_tag = ?
		ORDER BY start_time DESC
		LIMIT ?`,
		rfidTag, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query session history: %w", err)
	}
	defer rows.Close()

	var records []*SessionRecord
	for rows.Next() {
		var record SessionRecord
		var startTime string
		var endTime, tag sql.NullString
		var duration, rating sql.NullInt64

		if err := rows.Scan(
			&record.ID,
			&record.GameID,
			&startTime,
			&endTime,
			&duration,
			&tag,
			&rating,
			&record.Status,
		); err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}

		if t, err := time.Parse(time.RFC3339, startTime); err == nil {
			record.StartTime = t
		}
		if endTime.Valid {
			if t, err := time.Parse(time.RFC3339, endTime.String); err == nil {
				record.EndTime = &t
			}
		}
		record.DurationSeconds = int(duration.Int64)
		record.RFIDTag = tag.String
		record.Rating = int(rating.Int64)

		records = append(records, &record)
	}

	return records, rows.Err()
}
