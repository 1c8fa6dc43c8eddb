package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/gray-logic-acbridge/internal/climate"
	"github.com/nerrad567/gray-logic-acbridge/internal/ircode"
	"github.com/nerrad567/gray-logic-acbridge/internal/state"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 200

	// maxQueryParamLen limits path and query parameter length.
	maxQueryParamLen = 100
)

// deviceSummary is one entry of GET /devices.
type deviceSummary struct {
	ID             string         `json:"id"`
	FriendlyName   string         `json:"friendly_name"`
	IRDeviceTopic  string         `json:"ir_device_topic"`
	SupportedModes []climate.Mode `json:"supported_modes"`
	CodeCount      int            `json:"code_count"`
	Available      bool           `json:"available"`
	Error          string         `json:"error,omitempty"`
}

// deviceDetail is the body of GET /devices/{id}.
type deviceDetail struct {
	deviceSummary
	State *climate.State `json:"state,omitempty"`
}

// commandRequest is the body of POST /devices/{id}/commands.
// Value may be a JSON string or number.
type commandRequest struct {
	Kind  string          `json:"kind"`
	Value json.RawMessage `json:"value"`
}

func (s *Server) summary(p ircode.Profile, available bool) deviceSummary {
	sum := deviceSummary{
		ID:             p.ID,
		FriendlyName:   p.FriendlyName,
		IRDeviceTopic:  p.IRDeviceTopic,
		SupportedModes: p.SupportedModes,
		CodeCount:      len(p.Codes),
		Available:      available,
	}
	if s.errors != nil {
		sum.Error, _ = s.errors.Get(p.ID)
	}
	return sum
}

// handleListDevices returns every device in the library with its availability.
func (s *Server) handleListDevices(w http.ResponseWriter, r *http.Request) {
	states, err := s.states.List(r.Context())
	if err != nil {
		s.logger.Error("listing states failed", "error", err)
		writeInternalError(w, "failed to list devices")
		return
	}

	devices := make([]deviceSummary, 0)
	for _, id := range s.library.IDs() {
		p, ok := s.library.Profile(id)
		if !ok {
			continue
		}
		_, hasState := states[id]
		devices = append(devices, s.summary(p, hasState))
	}
	writeJSON(w, http.StatusOK, map[string]any{"devices": devices, "count": len(devices)})
}

// handleGetDevice returns one device's profile summary and state.
func (s *Server) handleGetDevice(w http.ResponseWriter, r *http.Request) {
	p, ok := s.profileParam(w, r)
	if !ok {
		return
	}

	detail := deviceDetail{}
	st, err := s.states.Get(r.Context(), p.ID)
	switch {
	case err == nil:
		detail.deviceSummary = s.summary(p, true)
		detail.State = &st
	case errors.Is(err, state.ErrStateNotFound):
		detail.deviceSummary = s.summary(p, false)
	default:
		s.logger.Error("loading state failed", "device_id", p.ID, "error", err)
		writeInternalError(w, "failed to load state")
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

// handleGetDeviceState returns the current state of a device.
func (s *Server) handleGetDeviceState(w http.ResponseWriter, r *http.Request) {
	p, ok := s.profileParam(w, r)
	if !ok {
		return
	}

	st, err := s.states.Get(r.Context(), p.ID)
	if err != nil {
		if errors.Is(err, state.ErrStateNotFound) {
			writeNotFound(w, "state not found")
			return
		}
		s.logger.Error("loading state failed", "device_id", p.ID, "error", err)
		writeInternalError(w, "failed to load state")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"device_id": p.ID, "state": st})
}

// handleGetDeviceHistory returns state history entries for a device, newest first.
func (s *Server) handleGetDeviceHistory(w http.ResponseWriter, r *http.Request) {
	p, ok := s.profileParam(w, r)
	if !ok {
		return
	}

	limit, err := parseHistoryLimit(r.URL.Query().Get("limit"))
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}

	entries, err := s.states.GetHistory(r.Context(), p.ID, limit)
	if err != nil {
		s.logger.Error("loading history failed", "device_id", p.ID, "error", err)
		writeInternalError(w, "failed to load history")
		return
	}
	if entries == nil {
		entries = []state.HistoryEntry{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"device_id": p.ID,
		"history":   entries,
		"count":     len(entries),
	})
}

// handleCommand runs one command through the dispatcher.
func (s *Server) handleCommand(w http.ResponseWriter, r *http.Request) {
	deviceID := chi.URLParam(r, "id")
	if deviceID == "" || len(deviceID) > maxQueryParamLen {
		writeBadRequest(w, "invalid device ID")
		return
	}

	var req commandRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.Kind == "" {
		writeBadRequest(w, "kind is required")
		return
	}
	value, err := commandValue(req.Value)
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}

	if id, ok := identityFrom(r.Context()); ok {
		s.logger.Debug("api command", "device_id", deviceID, "kind", req.Kind, "subject", id.Subject)
	}

	ctx := state.WithSource(r.Context(), state.SourceAPI)
	res, err := s.dispatcher.Dispatch(ctx, deviceID, req.Kind, value)
	if err != nil {
		writeCommandError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// profileParam resolves the {id} path parameter, writing 400/404 on failure.
func (s *Server) profileParam(w http.ResponseWriter, r *http.Request) (ircode.Profile, bool) {
	deviceID := chi.URLParam(r, "id")
	if deviceID == "" || len(deviceID) > maxQueryParamLen {
		writeBadRequest(w, "invalid device ID")
		return ircode.Profile{}, false
	}
	p, ok := s.library.Profile(deviceID)
	if !ok {
		writeNotFound(w, "device not found")
		return ircode.Profile{}, false
	}
	return p, true
}

// commandValue turns a JSON string or number into the raw command payload.
func commandValue(raw json.RawMessage) (string, error) {
	if len(raw) == 0 {
		return "", fmt.Errorf("value is required")
	}
	var str string
	if err := json.Unmarshal(raw, &str); err == nil {
		return str, nil
	}
	var num json.Number
	if err := json.Unmarshal(raw, &num); err == nil {
		return num.String(), nil
	}
	return "", fmt.Errorf("value must be a string or number")
}

// parseHistoryLimit parses the limit query parameter.
func parseHistoryLimit(raw string) (int, error) {
	if raw == "" {
		return defaultHistoryLimit, nil
	}

	limit, err := strconv.Atoi(raw)
	if err != nil || limit <= 0 {
		return 0, fmt.Errorf("invalid limit")
	}
	if limit > maxHistoryLimit {
		return 0, fmt.Errorf("limit exceeds maximum")
	}
	return limit, nil
}
