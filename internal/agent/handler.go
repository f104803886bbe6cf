package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"runtime"
	"time"

	"github.com/vrarcade/kiosk/internal/protocol"
	"github.com/vrarcade/kiosk/internal/storage/sqlite"
	"github.com/vrarcade/kiosk/internal/websocket"
	"github.com/vrarcade/kiosk/pkg/logger"
)

type launchGameParams struct {
	GameID          string `json:"gameId"`
	SessionDuration int    `json:"sessionDuration,omitempty"`
	RFIDTag         string `json:"rfidTag,omitempty"`
}

type submitRatingParams struct {
	GameID  string `json:"gameId"`
	Rating  int    `json:"rating"`
	RFIDTag string `json:"rfidTag,omitempty"`
}

type scanRFIDParams struct {
	TimeoutSeconds int `json:"timeoutSeconds,omitempty"`
}

type validateRFIDParams struct {
	TagID  string `json:"tagId"`
	GameID string `json:"gameId,omitempty"`
}

type registerRFIDParams struct {
	TagID string `json:"tagId"`
	Name  string `json:"name,omitempty"`
}

type deactivateRFIDParams struct {
	TagID string `json:"tagId"`
}

type rfidHistoryParams struct {
	TagID string `json:"tagId"`
	Limit int    `json:"limit,omitempty"`
}

type gamePermissionParams struct {
	TagID      string `json:"tagId"`
	GameID     string `json:"gameId"`
	Permission string `json:"permission"`
}

// dispatch executes one command and sends the response back to the
// issuing client.
func (s *Service) dispatch(client *websocket.Client, cmd *protocol.Command) {
	if resp := s.execute(cmd); resp != nil {
		client.Send(resp)
	}
}

// execute routes one command to its handler and returns the response.
func (s *Service) execute(cmd *protocol.Command) *protocol.Response {
	var resp *protocol.Response

	switch cmd.Type {
	case protocol.CmdLaunchGame:
		resp = s.handleLaunchGame(cmd)
	case protocol.CmdEndSession:
		resp = s.handleEndSession(cmd)
	case protocol.CmdPauseSession:
		resp = s.handlePauseSession(cmd)
	case protocol.CmdResumeSession:
		resp = s.handleResumeSession(cmd)
	case protocol.CmdGetStatus:
		resp = s.handleGetStatus(cmd)
	case protocol.CmdSubmitRating:
		resp = s.handleSubmitRating(cmd)
	case protocol.CmdScanRFID:
		resp = s.handleScanRFID(cmd)
	case protocol.CmdValidateRFID:
		resp = s.handleValidateRFID(cmd)
	case protocol.CmdRegisterRFID:
		resp = s.handleRegisterRFID(cmd)
	case protocol.CmdDeactivateRFID:
		resp = s.handleDeactivateRFID(cmd)
	case protocol.CmdGetRFIDHistory:
		resp = s.handleGetRFIDHistory(cmd)
	case protocol.CmdSetRFIDGamePermission:
		resp = s.handleSetGamePermission(cmd)
	case protocol.CmdGetDiagnostics:
		resp = s.handleGetDiagnostics(cmd)
	case protocol.CmdHeartbeat:
		resp = s.handleHeartbeat(cmd)
	default:
		resp = protocol.NewError(cmd.ID, protocol.CodeUnknownCommand,
			fmt.Sprintf("Unknown command type: %s", cmd.Type))
	}

	return resp
}

func (s *Service) success(id string, data any) *protocol.Response {
	resp, err := protocol.NewSuccess(id, data)
	if err != nil {
		s.logger.Error("Failed to encode response data", logger.Error(err))
		return protocol.NewError(id, protocol.CodeInternal, "Failed to encode response")
	}
	return resp
}

func (s *Service) handleLaunchGame(cmd *protocol.Command) *protocol.Response {
	var params launchGameParams
	if err := json.Unmarshal(cmd.Params, &params); err != nil || params.GameID == "" {
		return protocol.NewError(cmd.ID, protocol.CodeInvalidParams, "launchGame requires a gameId")
	}

	game, ok := s.catalog.Get(params.GameID)
	if !ok {
		return protocol.NewError(cmd.ID, protocol.CodeGameNotFound,
			fmt.Sprintf("Game not found: %s", params.GameID))
	}

	duration := params.SessionDuration
	if duration <= 0 {
		duration = s.cfg.Session.DefaultDurationSecs
	}
	if game.MinDurationSecs > 0 && duration < game.MinDurationSecs {
		duration = game.MinDurationSecs
	}
	if game.MaxDurationSecs > 0 && duration > game.MaxDurationSecs {
		duration = game.MaxDurationSecs
	}

	launched, err := s.launcher.Launch(game)
	if err != nil {
		return protocol.NewError(cmd.ID, protocol.CodeHardwareError,
			fmt.Sprintf("Failed to launch game: %v", err))
	}

	if delay := s.cfg.Games.LaunchDelayMs; delay > 0 {
		time.Sleep(time.Duration(delay) * time.Millisecond)
	}

	// Retire the previous countdown before touching session state so a
	// stale tick cannot land on the new session.
	s.timer.Stop()
	replaced := s.session.Launch(game.ID, game.Title, duration)
	s.openSessionRow(game.ID, duration, params.RFIDTag)
	s.timer.Start()
	s.broadcastStatus()

	return s.success(cmd.ID, map[string]any{
		"gameId":          game.ID,
		"title":           game.Title,
		"running":         true,
		"sessionDuration": duration,
		"replaced":        replaced,
		"simulated":       !launched,
	})
}

func (s *Service) handleEndSession(cmd *protocol.Command) *protocol.Response {
	s.timer.Stop()
	wasRunning := s.session.End()
	if wasRunning {
		s.launcher.Terminate()
		s.closeSessionRow()
	}
	s.broadcastStatus()

	return s.success(cmd.ID, map[string]any{
		"wasRunning": wasRunning,
		"message":    "Session ended successfully",
	})
}

func (s *Service) handlePauseSession(cmd *protocol.Command) *protocol.Response {
	remaining, err := s.session.Pause()
	if err != nil {
		return protocol.NewError(cmd.ID, protocol.CodeNoActiveSession, "No active game session to pause")
	}
	s.broadcastStatus()

	return s.success(cmd.ID, map[string]any{
		"paused":        true,
		"timeRemaining": remaining,
	})
}

func (s *Service) handleResumeSession(cmd *protocol.Command) *protocol.Response {
	remaining, err := s.session.Resume()
	if err != nil {
		return protocol.NewError(cmd.ID, protocol.CodeNoActiveSession, "No active game session to resume")
	}
	s.broadcastStatus()

	return s.success(cmd.ID, map[string]any{
		"paused":        false,
		"timeRemaining": remaining,
	})
}

func (s *Service) handleGetStatus(cmd *protocol.Command) *protocol.Response {
	return s.success(cmd.ID, map[string]any{
		"status": s.statusSnapshot(),
	})
}

func (s *Service) handleSubmitRating(cmd *protocol.Command) *protocol.Response {
	var params submitRatingParams
	if err := json.Unmarshal(cmd.Params, &params); err != nil || params.GameID == "" {
		return protocol.NewError(cmd.ID, protocol.CodeInvalidParams, "submitRating requires a gameId")
	}
	if params.Rating < 1 || params.Rating > 5 {
		return protocol.NewError(cmd.ID, protocol.CodeInvalidParams, "Rating must be between 1 and 5")
	}
	if _, ok := s.catalog.Get(params.GameID); !ok {
		return protocol.NewError(cmd.ID, protocol.CodeGameNotFound,
			fmt.Sprintf("Game not found: %s", params.GameID))
	}

	avg, err := s.gameStore.StoreRating(params.GameID, params.Rating, params.RFIDTag)
	if err != nil {
		s.logger.Error("Failed to store rating", logger.Error(err))
		return protocol.NewError(cmd.ID, protocol.CodeInternal, "Failed to store rating")
	}

	return s.success(cmd.ID, map[string]any{
		"gameId":    params.GameID,
		"rating":    params.Rating,
		"avgRating": avg,
	})
}

func (s *Service) handleScanRFID(cmd *protocol.Command) *protocol.Response {
	if s.reader == nil {
		return protocol.NewError(cmd.ID, protocol.CodeHardwareError, "RFID reader unavailable")
	}

	var params scanRFIDParams
	if len(cmd.Params) > 0 {
		if err := json.Unmarshal(cmd.Params, &params); err != nil {
			return protocol.NewError(cmd.ID, protocol.CodeInvalidParams, "Invalid scanRFID parameters")
		}
	}
	timeout := params.TimeoutSeconds
	if timeout <= 0 {
		timeout = s.cfg.RFID.ScanTimeoutSecs
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(timeout)*time.Second)
	defer cancel()

	tagID, err := s.reader.Scan(ctx)
	if err != nil {
		return protocol.NewError(cmd.ID, protocol.CodeHardwareError,
			fmt.Sprintf("RFID scan failed: %v", err))
	}

	// Cards seen for the first time are registered on the spot.
	registered := false
	card, err := s.cardStore.Get(tagID)
	if errors.Is(err, sqlite.ErrCardNotFound) {
		card, err = s.cardStore.Register(tagID, "")
		registered = true
	}
	if err != nil {
		s.logger.Error("Failed to resolve scanned card", logger.Error(err))
		return protocol.NewError(cmd.ID, protocol.CodeInternal, "Failed to resolve scanned card")
	}

	return s.success(cmd.ID, map[string]any{
		"tagId":      card.TagID,
		"name":       card.Name,
		"status":     card.Status,
		"registered": registered,
	})
}

func (s *Service) handleValidateRFID(cmd *protocol.Command) *protocol.Response {
	var params validateRFIDParams
	if err := json.Unmarshal(cmd.Params, &params); err != nil || params.TagID == "" {
		return protocol.NewError(cmd.ID, protocol.CodeInvalidParams, "validateRFID requires a tagId")
	}

	card, err := s.cardStore.Validate(params.TagID)
	switch {
	case errors.Is(err, sqlite.ErrCardNotFound):
		return protocol.NewError(cmd.ID, protocol.CodeCardNotFound,
			fmt.Sprintf("Card not found: %s", params.TagID))
	case errors.Is(err, sqlite.ErrCardInactive):
		return protocol.NewError(cmd.ID, protocol.CodeCardInactive,
			fmt.Sprintf("Card is inactive: %s", params.TagID))
	case err != nil:
		s.logger.Error("Failed to validate card", logger.Error(err))
		return protocol.NewError(cmd.ID, protocol.CodeInternal, "Failed to validate card")
	}

	data := map[string]any{
		"tagId": card.TagID,
		"name":  card.Name,
		"valid": true,
	}
	if params.GameID != "" {
		permission, err := s.cardStore.GamePermission(params.TagID, params.GameID)
		if err != nil {
			s.logger.Error("Failed to look up game permission", logger.Error(err))
			return protocol.NewError(cmd.ID, protocol.CodeInternal, "Failed to look up game permission")
		}
		data["gameId"] = params.GameID
		data["permission"] = permission
	}

	return s.success(cmd.ID, data)
}

func (s *Service) handleRegisterRFID(cmd *protocol.Command) *protocol.Response {
	var params registerRFIDParams
	if err := json.Unmarshal(cmd.Params, &params); err != nil || params.TagID == "" {
		return protocol.NewError(cmd.ID, protocol.CodeInvalidParams, "registerRFID requires a tagId")
	}

	card, err := s.cardStore.Register(params.TagID, params.Name)
	if err != nil {
		return protocol.NewError(cmd.ID, protocol.CodeInvalidParams,
			fmt.Sprintf("Failed to register card: %v", err))
	}

	return s.success(cmd.ID, card)
}

func (s *Service) handleDeactivateRFID(cmd *protocol.Command) *protocol.Response {
	var params deactivateRFIDParams
	if err := json.Unmarshal(cmd.Params, &params); err != nil || params.TagID == "" {
		return protocol.NewError(cmd.ID, protocol.CodeInvalidParams, "deactivateRFID requires a tagId")
	}

	if err := s.cardStore.Deactivate(params.TagID); err != nil {
		if errors.Is(err, sqlite.ErrCardNotFound) {
			return protocol.NewError(cmd.ID, protocol.CodeCardNotFound,
				fmt.Sprintf("Card not found: %s", params.TagID))
		}
		s.logger.Error("Failed to deactivate card", logger.Error(err))
		return protocol.NewError(cmd.ID, protocol.CodeInternal, "Failed to deactivate card")
	}

	return s.success(cmd.ID, map[string]any{
		"tagId":  params.TagID,
		"status": "inactive",
	})
}

func (s *Service) handleGetRFIDHistory(cmd *protocol.Command) *protocol.Response {
	var params rfidHistoryParams
	if err := json.Unmarshal(cmd.Params, &params); err != nil || params.TagID == "" {
		return protocol.NewError(cmd.ID, protocol.CodeInvalidParams, "getRFIDHistory requires a tagId")
	}

	limit := params.Limit
	if limit <= 0 {
		limit = s.cfg.RFID.HistoryLimit
	}

	records, err := s.sessStore.HistoryByTag(params.TagID, limit)
	if err != nil {
		s.logger.Error("Failed to load session history", logger.Error(err))
		return protocol.NewError(cmd.ID, protocol.CodeInternal, "Failed to load session history")
	}

	return s.success(cmd.ID, map[string]any{
		"tagId":    params.TagID,
		"sessions": records,
	})
}

func (s *Service) handleSetGamePermission(cmd *protocol.Command) *protocol.Response {
	var params gamePermissionParams
	if err := json.Unmarshal(cmd.Params, &params); err != nil || params.TagID == "" || params.GameID == "" {
		return protocol.NewError(cmd.ID, protocol.CodeInvalidParams,
			"setRFIDGamePermission requires tagId and gameId")
	}
	if params.Permission != "allow" && params.Permission != "deny" {
		return protocol.NewError(cmd.ID, protocol.CodeInvalidParams,
			"Permission must be \"allow\" or \"deny\"")
	}

	if _, err := s.cardStore.Get(params.TagID); err != nil {
		if errors.Is(err, sqlite.ErrCardNotFound) {
			return protocol.NewError(cmd.ID, protocol.CodeCardNotFound,
				fmt.Sprintf("Card not found: %s", params.TagID))
		}
		s.logger.Error("Failed to look up card", logger.Error(err))
		return protocol.NewError(cmd.ID, protocol.CodeInternal, "Failed to look up card")
	}
	if _, ok := s.catalog.Get(params.GameID); !ok {
		return protocol.NewError(cmd.ID, protocol.CodeGameNotFound,
			fmt.Sprintf("Game not found: %s", params.GameID))
	}

	if err := s.cardStore.SetGamePermission(params.TagID, params.GameID, params.Permission); err != nil {
		s.logger.Error("Failed to set game permission", logger.Error(err))
		return protocol.NewError(cmd.ID, protocol.CodeInternal, "Failed to set game permission")
	}

	return s.success(cmd.ID, map[string]any{
		"tagId":      params.TagID,
		"gameId":     params.GameID,
		"permission": params.Permission,
	})
}

func (s *Service) handleGetDiagnostics(cmd *protocol.Command) *protocol.Response {
	stats := s.monitor.Stats()
	snap := s.session.Snapshot()

	return s.success(cmd.ID, map[string]any{
		"uptimeSeconds":    int(s.Uptime().Seconds()),
		"connectedClients": s.hub.ClientCount(),
		"cpuUsage":         stats.CPUUsage,
		"memoryUsage":      stats.MemoryUsage,
		"diskSpaceMB":      stats.DiskFreeMB,
		"alerts":           s.monitor.Alerts(),
		"gameRunning":      snap.Running,
		"activeGame":       snap.GameID,
		"catalogSize":      s.catalog.Len(),
		"goVersion":        runtime.Version(),
		"goroutines":       runtime.NumGoroutine(),
	})
}

func (s *Service) handleHeartbeat(cmd *protocol.Command) *protocol.Response {
	return s.success(cmd.ID, map[string]any{
		"timestamp": protocol.Millis(time.Now()),
	})
}
