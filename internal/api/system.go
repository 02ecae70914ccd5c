package api

import (
	"encoding/json"
	"net/http"
	"time"
)

// PruneJournalRequest defines the options for a journal prune.
type PruneJournalRequest struct {
	OlderThanDays int    `json:"older_than_days"`
	Group         string `json:"group,omitempty"`
	Confirm       string `json:"confirm"`
}

// PruneJournalResponse reports what was deleted.
type PruneJournalResponse struct {
	Status  string `json:"status"`
	Deleted int64  `json:"deleted"`
	Cutoff  string `json:"cutoff"`
}

// handlePruneJournal deletes transition journal entries older than the
// requested age, optionally restricted to one group. The journal is
// append-only in normal operation, so this is the only way entries leave.
//
// This is a destructive operation — the request must include an exact
// confirmation string as a safety guard.
func (s *Server) handlePruneJournal(w http.ResponseWriter, r *http.Request) {
	var req PruneJournalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	// Safety guard: require exact confirmation string.
	if req.Confirm != "PRUNE JOURNAL" {
		writeBadRequest(w, `confirm field must be exactly "PRUNE JOURNAL"`)
		return
	}

	if req.OlderThanDays < 1 {
		writeBadRequest(w, "older_than_days must be at least 1")
		return
	}
	if req.Group != "" && len(req.Group) > maxQueryParamLen {
		writeBadRequest(w, "invalid group name")
		return
	}

	if s.db == nil {
		writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, "journal storage not configured")
		return
	}

	cutoff := time.Now().UTC().AddDate(0, 0, -req.OlderThanDays)

	query := `DELETE FROM pbsg_transitions WHERE occurred_at < ?`
	args := []any{cutoff.Format(time.RFC3339Nano)}
	if req.Group != "" {
		query += ` AND instance = ?`
		args = append(args, req.Group)
	}

	result, err := s.db.ExecContext(r.Context(), query, args...)
	if err != nil {
		s.logger.Error("journal prune failed", "error", err)
		writeInternalError(w, "failed to prune journal")
		return
	}
	deleted, err := result.RowsAffected()
	if err != nil {
		s.logger.Error("journal prune count failed", "error", err)
		writeInternalError(w, "failed to prune journal")
		return
	}

	s.logger.Info("journal pruned",
		"deleted", deleted,
		"cutoff", cutoff.Format(time.RFC3339),
		"group", req.Group,
	)

	writeJSON(w, http.StatusOK, PruneJournalResponse{
		Status:  "ok",
		Deleted: deleted,
		Cutoff:  cutoff.Format(time.RFC3339),
	})
}
