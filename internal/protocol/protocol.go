// Package protocol defines the wire format shared by the kiosk agent
// and the command-center client: command frames, responses, status
// snapshots, and the closed command enumeration.
package protocol

import (
	"encoding/json"
	"time"
)

// CommandType identifies a command on the wire. The set is closed;
// anything else is rejected with CodeUnknownCommand.
type CommandType string

const (
	CmdLaunchGame            CommandType = "launchGame"
	CmdEndSession            CommandType = "endSession"
	CmdPauseSession          CommandType = "pauseSession"
	CmdResumeSession         CommandType = "resumeSession"
	CmdGetStatus             CommandType = "getStatus"
	CmdSubmitRating          CommandType = "submitRating"
	CmdScanRFID              CommandType = "scanRFID"
	CmdValidateRFID          CommandType = "validateRFID"
	CmdRegisterRFID          CommandType = "registerRFID"
	CmdDeactivateRFID        CommandType = "deactivateRFID"
	CmdGetRFIDHistory        CommandType = "getRFIDHistory"
	CmdSetRFIDGamePermission CommandType = "setRFIDGamePermission"
	CmdGetDiagnostics        CommandType = "getDiagnostics"
	CmdHeartbeat             CommandType = "heartbeat"
)

// Known reports whether t is part of the recognized command set.
func (t CommandType) Known() bool {
	switch t {
	case CmdLaunchGame, CmdEndSession, CmdPauseSession, CmdResumeSession,
		CmdGetStatus, CmdSubmitRating, CmdScanRFID, CmdValidateRFID,
		CmdRegisterRFID, CmdDeactivateRFID, CmdGetRFIDHistory,
		CmdSetRFIDGamePermission, CmdGetDiagnostics, CmdHeartbeat:
		return true
	}
	return false
}

// ResponseStatus is the outcome field of a response frame.
type ResponseStatus string

const (
	StatusSuccess ResponseStatus = "success"
	StatusError   ResponseStatus = "error"
)

// Command is a client-to-agent frame. ID is a client-generated
// correlation token; the matching response carries the same ID.
type Command struct {
	ID     string          `json:"id"`
	Type   CommandType     `json:"type"`
	Params json.RawMessage `json:"params,omitempty"`
}

// Response is an agent-to-client frame. Responses echo the command ID;
// broadcasts carry a freshly generated ID that matches no pending
// command. Code is additive alongside the free-text Error field so
// existing clients keep working.
type Response struct {
	ID        string          `json:"id"`
	Status    ResponseStatus  `json:"status"`
	Data      json.RawMessage `json:"data,omitempty"`
	Error     string          `json:"error,omitempty"`
	Code      ErrorCode       `json:"code,omitempty"`
	Timestamp int64           `json:"timestamp"`
}

// StatusSnapshot is the agent's session/telemetry snapshot pushed in
// broadcasts and returned by getStatus.
type StatusSnapshot struct {
	Connected     bool     `json:"connected"`
	ActiveGame    *string  `json:"activeGame"` // catalog title, nil when idle
	GameRunning   bool     `json:"gameRunning"`
	IsPaused      bool     `json:"isPaused"`
	TimeRemaining int      `json:"timeRemaining"`
	CPUUsage      float64  `json:"cpuUsage"`
	MemoryUsage   float64  `json:"memoryUsage"`
	DiskSpaceMB   float64  `json:"diskSpaceMB"`
	Alerts        []string `json:"alerts,omitempty"`
}

// Millis returns the current wall clock in milliseconds, the timestamp
// unit used on the wire.
func Millis(t time.Time) int64 {
	return t.UnixMilli()
}

// NewSuccess builds a success response for the given command ID.
func NewSuccess(id string, data any) (*Response, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return &Response{
		ID:        id,
		Status:    StatusSuccess,
		Data:      raw,
		Timestamp: Millis(time.Now()),
	}, nil
}

// NewError builds an error response for the given command ID.
func NewError(id string, code ErrorCode, message string) *Response {
	return &Response{
		ID:        id,
		Status:    StatusError,
		Error:     message,
		Code:      code,
		Timestamp: Millis(time.Now()),
	}
}
