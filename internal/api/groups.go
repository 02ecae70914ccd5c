package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/switchwork/pbsg-core/internal/pbsg"
)

// maxQueryParamLen limits URL parameter length to prevent DoS via oversized params.
const maxQueryParamLen = 100

// Journal listing bounds. The ceiling matches what the repository will
// serve in one call.
const (
	defaultEventLimit = 100
	maxEventLimit     = 1000
)

// GroupSnapshot pairs a group's name with an independent copy of its
// current state.
type GroupSnapshot struct {
	Name  string      `json:"name"`
	State *pbsg.State `json:"state"`
}

// snapshotOf captures the named group's state for a response body.
func snapshotOf(in *pbsg.Instance) GroupSnapshot {
	return GroupSnapshot{Name: in.Name(), State: in.Status()}
}

// handleListGroups returns a snapshot of every running group.
func (s *Server) handleListGroups(w http.ResponseWriter, _ *http.Request) {
	instances := s.groups.List()
	snapshots := make([]GroupSnapshot, 0, len(instances))
	for _, in := range instances {
		snapshots = append(snapshots, snapshotOf(in))
	}
	writeJSON(w, http.StatusOK, map[string]any{"groups": snapshots, "count": len(snapshots)})
}

// createGroupRequest is the request body for POST /pbsg.
type createGroupRequest struct {
	Name    string   `json:"name"`
	Buttons []string `json:"buttons"`
	Default string   `json:"default,omitempty"`
	Trace   string   `json:"trace,omitempty"`
}

// handleCreateGroup creates a group, persists its settings and runs the
// first structural build.
func (s *Server) handleCreateGroup(w http.ResponseWriter, r *http.Request) {
	var req createGroupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	in, err := s.groups.Create(r.Context(), req.Name, pbsg.Settings{
		Buttons: req.Buttons,
		Default: req.Default,
	}, traceOrDefault(req.Trace))
	if err != nil {
		if errors.Is(err, pbsg.ErrInstanceExists) {
			writeError(w, http.StatusConflict, ErrCodeConflict, err.Error())
			return
		}
		if errors.Is(err, pbsg.ErrInvalidName) || errors.Is(err, pbsg.ErrInvalidSettings) {
			writeValidationError(w, err.Error())
			return
		}
		s.logger.Error("failed to create group", "group", req.Name, "error", err)
		writeInternalError(w, "failed to create group")
		return
	}

	writeJSON(w, http.StatusCreated, snapshotOf(in))
}

// handleGetGroup returns a single group's snapshot by name.
func (s *Server) handleGetGroup(w http.ResponseWriter, r *http.Request) {
	in, ok := s.groupFromPath(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, snapshotOf(in))
}

// configureGroupRequest is the request body for PUT /pbsg/{name}/config.
type configureGroupRequest struct {
	Buttons []string `json:"buttons"`
	Default string   `json:"default,omitempty"`
	Trace   string   `json:"trace,omitempty"`
}

// handleConfigureGroup applies a structural change: a new button list
// and default. Commands already queued against the old structure are
// discarded when the processor reaches them.
func (s *Server) handleConfigureGroup(w http.ResponseWriter, r *http.Request) {
	in, ok := s.groupFromPath(w, r)
	if !ok {
		return
	}

	var req configureGroupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	settings := pbsg.Settings{Buttons: req.Buttons, Default: req.Default}
	if err := in.Configure(r.Context(), settings, traceOrDefault(req.Trace)); err != nil {
		if errors.Is(err, pbsg.ErrInvalidSettings) {
			writeValidationError(w, err.Error())
			return
		}
		if errors.Is(err, pbsg.ErrInstanceClosed) {
			writeError(w, http.StatusGone, ErrCodeGone, "group has been torn down")
			return
		}
		s.logger.Error("failed to reconfigure group", "group", in.Name(), "error", err)
		writeInternalError(w, "failed to reconfigure group")
		return
	}

	writeJSON(w, http.StatusOK, snapshotOf(in))
}

// handleRemoveGroup tears the group down and deletes its settings along
// with its journal.
func (s *Server) handleRemoveGroup(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if name == "" || len(name) > maxQueryParamLen {
		writeBadRequest(w, "invalid group name")
		return
	}

	if err := s.groups.Remove(r.Context(), name); err != nil {
		if errors.Is(err, pbsg.ErrInstanceNotFound) {
			writeNotFound(w, "group not found")
			return
		}
		s.logger.Error("failed to remove group", "group", name, "error", err)
		writeInternalError(w, "failed to remove group")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// commandRequest is the request body for the activate, deactivate and
// push endpoints.
type commandRequest struct {
	Button   string `json:"button,omitempty"`
	Position int    `json:"position,omitempty"`
	Trace    string `json:"trace,omitempty"`
}

// handleActivate queues a request to make a button the active one.
// The command is enqueued and answered 202; its outcome surfaces through
// the journal and the WebSocket hub.
func (s *Server) handleActivate(w http.ResponseWriter, r *http.Request) {
	in, ok := s.groupFromPath(w, r)
	if !ok {
		return
	}

	req, ok := decodeCommand(w, r)
	if !ok {
		return
	}
	if req.Button == "" {
		writeBadRequest(w, "button is required")
		return
	}

	if err := in.Activate(req.Button, traceOrDefault(req.Trace)); err != nil {
		writeCommandError(w, err)
		return
	}
	writeAccepted(w, in.Name())
}

// handleDeactivate queues a request to retire a button from the active slot.
func (s *Server) handleDeactivate(w http.ResponseWriter, r *http.Request) {
	in, ok := s.groupFromPath(w, r)
	if !ok {
		return
	}

	req, ok := decodeCommand(w, r)
	if !ok {
		return
	}
	if req.Button == "" {
		writeBadRequest(w, "button is required")
		return
	}

	if err := in.Deactivate(req.Button, traceOrDefault(req.Trace)); err != nil {
		writeCommandError(w, err)
		return
	}
	writeAccepted(w, in.Name())
}

// handlePush queues a toggle of one button, addressed either by name or
// by 1-based configuration position.
func (s *Server) handlePush(w http.ResponseWriter, r *http.Request) {
	in, ok := s.groupFromPath(w, r)
	if !ok {
		return
	}

	req, ok := decodeCommand(w, r)
	if !ok {
		return
	}

	trace := traceOrDefault(req.Trace)
	var err error
	switch {
	case req.Button != "":
		err = in.PushButton(req.Button, trace)
	case req.Position > 0:
		err = in.PushPosition(req.Position, trace)
	default:
		writeBadRequest(w, "button or position is required")
		return
	}
	if err != nil {
		writeCommandError(w, err)
		return
	}
	writeAccepted(w, in.Name())
}

// handleListEvents returns a group's transition journal, newest first.
//
// Query parameters:
//   - limit: maximum entries to return (default 100, ceiling 1000)
func (s *Server) handleListEvents(w http.ResponseWriter, r *http.Request) {
	in, ok := s.groupFromPath(w, r)
	if !ok {
		return
	}

	limit, err := parseEventLimit(r.URL.Query().Get("limit"))
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}

	// Memory-only deployments have no journal to read.
	if s.repo == nil {
		writeJSON(w, http.StatusOK, map[string]any{
			"group":  in.Name(),
			"events": []*pbsg.Transition{},
			"count":  0,
		})
		return
	}

	events, err := s.repo.ListTransitions(r.Context(), in.Name(), limit)
	if err != nil {
		s.logger.Error("failed to list transitions", "group", in.Name(), "error", err)
		writeInternalError(w, "failed to list events")
		return
	}
	if events == nil {
		events = []*pbsg.Transition{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"group":  in.Name(),
		"events": events,
		"count":  len(events),
	})
}

// groupFromPath resolves the {name} URL parameter to a running group,
// writing the error response itself when resolution fails.
func (s *Server) groupFromPath(w http.ResponseWriter, r *http.Request) (*pbsg.Instance, bool) {
	name := chi.URLParam(r, "name")
	if name == "" || len(name) > maxQueryParamLen {
		writeBadRequest(w, "invalid group name")
		return nil, false
	}

	in, err := s.groups.Get(name)
	if err != nil {
		writeNotFound(w, "group not found")
		return nil, false
	}
	return in, true
}

// decodeCommand reads a command body, tolerating an absent one so bare
// POSTs with the verb in the URL still work.
func decodeCommand(w http.ResponseWriter, r *http.Request) (commandRequest, bool) {
	var req commandRequest
	if r.Body == nil || r.ContentLength == 0 {
		return req, true
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return req, false
	}
	return req, true
}

// writeCommandError maps an enqueue failure to its HTTP status.
func writeCommandError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, pbsg.ErrEmptyButton), errors.Is(err, pbsg.ErrUnknownButton):
		writeBadRequest(w, err.Error())
	case errors.Is(err, pbsg.ErrInstanceClosed):
		writeError(w, http.StatusGone, ErrCodeGone, "group has been torn down")
	default:
		writeInternalError(w, "failed to enqueue command")
	}
}

// writeAccepted answers an enqueued command. The processor has taken the
// command; whether it changed anything surfaces via the journal.
func writeAccepted(w http.ResponseWriter, group string) {
	writeJSON(w, http.StatusAccepted, map[string]any{
		"group":   group,
		"status":  "accepted",
		"message": "command enqueued, outcome follows via events",
	})
}

// traceOrDefault tags commands that arrived without a caller trace.
func traceOrDefault(trace string) string {
	if trace == "" {
		return "api"
	}
	return trace
}

// parseEventLimit parses the limit query parameter with bounds enforcement.
func parseEventLimit(raw string) (int, error) {
	if raw == "" {
		return defaultEventLimit, nil
	}

	limit, err := strconv.Atoi(raw)
	if err != nil || limit <= 0 {
		return 0, errors.New("invalid limit")
	}
	if limit > maxEventLimit {
		return 0, errors.New("limit exceeds maximum")
	}

	return limit, nil
}
