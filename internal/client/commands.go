package client

import (
	"context"
	"encoding/json"
	"time"

	"github.com/vrarcade/kiosk/internal/protocol"
)

// LaunchResult is the outcome of a launchGame command.
type LaunchResult struct {
	GameID          string `json:"gameId"`
	Title           string `json:"title"`
	Running         bool   `json:"running"`
	SessionDuration int    `json:"sessionDuration"`
	Replaced        bool   `json:"replaced"`
	Simulated       bool   `json:"simulated"`
}

// EndResult is the outcome of an endSession command.
type EndResult struct {
	WasRunning bool   `json:"wasRunning"`
	Message    string `json:"message"`
}

// PauseResult is the outcome of a pauseSession or resumeSession command.
type PauseResult struct {
	Paused        bool `json:"paused"`
	TimeRemaining int  `json:"timeRemaining"`
}

// RatingResult is the outcome of a submitRating command.
type RatingResult struct {
	GameID    string  `json:"gameId"`
	Rating    int     `json:"rating"`
	AvgRating float64 `json:"avgRating"`
}

// ScanResult is the outcome of a scanRFID command.
type ScanResult struct {
	TagID      string `json:"tagId"`
	Name       string `json:"name"`
	Status     string `json:"status"`
	Registered bool   `json:"registered"`
}

// ValidateResult is the outcome of a validateRFID command.
type ValidateResult struct {
	TagID      string `json:"tagId"`
	Name       string `json:"name"`
	Valid      bool   `json:"valid"`
	GameID     string `json:"gameId,omitempty"`
	Permission string `json:"permission,omitempty"`
}

// Card describes an RFID card as reported by the agent.
type Card struct {
	TagID      string     `json:"tag_id"`
	Name       string     `json:"name,omitempty"`
	Status     string     `json:"status"`
	CreatedAt  time.Time  `json:"created_at"`
	LastUsedAt *time.Time `json:"last_used_at,omitempty"`
}

// HistoryEntry is one prior play session for a card.
type HistoryEntry struct {
	ID              string     `json:"id"`
	GameID          string     `json:"game_id"`
	StartTime       time.Time  `json:"start_time"`
	EndTime         *time.Time `json:"end_time,omitempty"`
	DurationSeconds int        `json:"duration_seconds"`
	RFIDTag         string     `json:"rfid_tag,omitempty"`
	Rating          int        `json:"rating,omitempty"`
	Status          string     `json:"status"`
}

// HistoryResult is the outcome of a getRFIDHistory command.
type HistoryResult struct {
	TagID    string          `json:"tagId"`
	Sessions []*HistoryEntry `json:"sessions"`
}

// Diagnostics is the outcome of a getDiagnostics command.
type Diagnostics struct {
	UptimeSeconds    int      `json:"uptimeSeconds"`
	ConnectedClients int      `json:"connectedClients"`
	CPUUsage         float64  `json:"cpuUsage"`
	MemoryUsage      float64  `json:"memoryUsage"`
	DiskSpaceMB      float64  `json:"diskSpaceMB"`
	Alerts           []string `json:"alerts"`
	GameRunning      bool     `json:"gameRunning"`
	ActiveGame       string   `json:"activeGame"`
	CatalogSize      int      `json:"catalogSize"`
	GoVersion        string   `json:"goVersion"`
	Goroutines       int      `json:"goroutines"`
}

// Heartbeat is the outcome of a heartbeat command.
type Heartbeat struct {
	Timestamp int64 `json:"timestamp"`
}

// call sends one command and decodes the success payload into out.
// Error responses surface as *protocol.CommandError.
func (c *Client) call(ctx context.Context, cmdType protocol.CommandType, params, out any) error {
	resp, err := c.Send(ctx, cmdType, params)
	if err != nil {
		return err
	}
	if resp.Status == protocol.StatusError {
		return protocol.ErrorFromResponse(resp)
	}
	if out == nil || len(resp.Data) == 0 {
		return nil
	}
	return json.Unmarshal(resp.Data, out)
}

// LaunchGame starts a play session for the given game. A zero duration
// lets the agent apply its default.
func (c *Client) LaunchGame(ctx context.Context, gameID string, durationSeconds int) (*LaunchResult, error) {
	params := map[string]any{"gameId": gameID}
	if durationSeconds > 0 {
		params["sessionDuration"] = durationSeconds
	}
	var result LaunchResult
	if err := c.call(ctx, protocol.CmdLaunchGame, params, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// LaunchGameForCard starts a play session attributed to an RFID card.
func (c *Client) LaunchGameForCard(ctx context.Context, gameID string, durationSeconds int, rfidTag string) (*LaunchResult, error) {
	params := map[string]any{"gameId": gameID, "rfidTag": rfidTag}
	if durationSeconds > 0 {
		params["sessionDuration"] = durationSeconds
	}
	var result LaunchResult
	if err := c.call(ctx, protocol.CmdLaunchGame, params, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// EndSession ends the active session. Ending with nothing running is
// not an error; the result reports whether a session was live.
func (c *Client) EndSession(ctx context.Context) (*EndResult, error) {
	var result EndResult
	if err := c.call(ctx, protocol.CmdEndSession, nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// PauseSession freezes the session countdown.
func (c *Client) PauseSession(ctx context.Context) (*PauseResult, error) {
	var result PauseResult
	if err := c.call(ctx, protocol.CmdPauseSession, nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// ResumeSession unfreezes the session countdown.
func (c *Client) ResumeSession(ctx context.Context) (*PauseResult, error) {
	var result PauseResult
	if err := c.call(ctx, protocol.CmdResumeSession, nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// GetStatus fetches the agent's current session and telemetry snapshot.
// The snapshot arrives wrapped in a status envelope.
func (c *Client) GetStatus(ctx context.Context) (*protocol.StatusSnapshot, error) {
	var result struct {
		Status protocol.StatusSnapshot `json:"status"`
	}
	if err := c.call(ctx, protocol.CmdGetStatus, nil, &result); err != nil {
		return nil, err
	}
	return &result.Status, nil
}

// SubmitRating records a 1-5 rating for a game and returns the running
// average.
func (c *Client) SubmitRating(ctx context.Context, gameID string, rating int, rfidTag string) (*RatingResult, error) {
	params := map[string]any{"gameId": gameID, "rating": rating}
	if rfidTag != "" {
		params["rfidTag"] = rfidTag
	}
	var result RatingResult
	if err := c.call(ctx, protocol.CmdSubmitRating, params, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// ScanRFID waits for a card to be presented to the kiosk reader. A zero
// timeout lets the agent apply its default.
func (c *Client) ScanRFID(ctx context.Context, timeoutSeconds int) (*ScanResult, error) {
	var params map[string]any
	if timeoutSeconds > 0 {
		params = map[string]any{"timeoutSeconds": timeoutSeconds}
	}
	var result ScanResult
	if err := c.call(ctx, protocol.CmdScanRFID, params, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// ValidateRFID checks that a card is registered and active. With a
// non-empty gameID the result also carries the card's permission for
// that game.
func (c *Client) ValidateRFID(ctx context.Context, tagID, gameID string) (*ValidateResult, error) {
	params := map[string]any{"tagId": tagID}
	if gameID != "" {
		params["gameId"] = gameID
	}
	var result ValidateResult
	if err := c.call(ctx, protocol.CmdValidateRFID, params, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// RegisterRFID adds a card to the registry. An empty name lets the
// agent derive one from the tag.
func (c *Client) RegisterRFID(ctx context.Context, tagID, name string) (*Card, error) {
	params := map[string]any{"tagId": tagID}
	if name != "" {
		params["name"] = name
	}
	var result Card
	if err := c.call(ctx, protocol.CmdRegisterRFID, params, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// DeactivateRFID marks a card inactive.
func (c *Client) DeactivateRFID(ctx context.Context, tagID string) error {
	return c.call(ctx, protocol.CmdDeactivateRFID, map[string]any{"tagId": tagID}, nil)
}

// GetRFIDHistory returns recent play sessions for a card. A zero limit
// lets the agent apply its default.
func (c *Client) GetRFIDHistory(ctx context.Context, tagID string, limit int) (*HistoryResult, error) {
	params := map[string]any{"tagId": tagID}
	if limit > 0 {
		params["limit"] = limit
	}
	var result HistoryResult
	if err := c.call(ctx, protocol.CmdGetRFIDHistory, params, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// SetRFIDGamePermission sets a card's per-game permission, "allow" or
// "deny".
func (c *Client) SetRFIDGamePermission(ctx context.Context, tagID, gameID, permission string) error {
	params := map[string]any{"tagId": tagID, "gameId": gameID, "permission": permission}
	return c.call(ctx, protocol.CmdSetRFIDGamePermission, params, nil)
}

// GetDiagnostics fetches agent health and runtime information.
func (c *Client) GetDiagnostics(ctx context.Context) (*Diagnostics, error) {
	var result Diagnostics
	if err := c.call(ctx, protocol.CmdGetDiagnostics, nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// SendHeartbeat issues one keepalive round-trip.
func (c *Client) SendHeartbeat(ctx context.Context) (*Heartbeat, error) {
	var result Heartbeat
	if err := c.call(ctx, protocol.CmdHeartbeat, nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}
