package http

import (
	"net/http"

	"bilancio/internal/core"
	applog "bilancio/internal/log"
	"bilancio/internal/services"
)

func (s *Server) handleHorizon(w http.ResponseWriter, r *http.Request) {
	var req horizonRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	today := s.today()
	base, err := dateOr(req.BaseDate, today)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if req.Months == 0 {
		req.Months = s.engine.Horizon
	}

	created, err := s.engine.Projector.PopulateHorizon(r.Context(), services.HorizonRequest{
		Months:       req.Months,
		BaseDate:     base,
		Today:        today,
		FutureOnly:   req.FutureOnly,
		MarkModified: req.MarkModified,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	s.invalidate()
	writeJSON(w, http.StatusOK, map[string]int{"created": created, "months": req.Months})
}

func (s *Server) handleRepropagate(w http.ResponseWriter, r *http.Request) {
	id, err := pathInt64(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req repropagateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if req.Months == 0 {
		req.Months = s.engine.Horizon
	}

	deleted, created, err := s.engine.Projector.Repropagate(r.Context(), id, req.Months, s.today())
	if err != nil {
		writeError(w, r, err)
		return
	}
	s.invalidate()
	writeJSON(w, http.StatusOK, repropagateResponse{RecurringID: id, Deleted: deleted, Created: created})
}

// handleRollover runs the rollover explicitly. Step failures are reported in
// the diagnostics with status 200; only invalid requests fail.
func (s *Server) handleRollover(w http.ResponseWriter, r *http.Request) {
	var req rolloverRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	base, err := dateOr(req.BaseDate, s.today())
	if err != nil {
		writeError(w, r, err)
		return
	}

	diag, err := s.engine.Rollover.Run(r.Context(), services.RolloverRequest{Force: req.Force, Months: req.Months, BaseDate: base})
	if err != nil {
		writeError(w, r, err)
		return
	}
	if !diag.Skipped {
		s.invalidate()
	}
	applog.FromContext(r.Context()).WithComponent(applog.ComponentRollover).InfoContext(r.Context(), "Rollover requested via API",
		applog.FieldRunID, diag.RunID,
		applog.FieldLabel, diag.Label,
		"state", diag.State,
		"skipped", diag.Skipped)
	writeJSON(w, http.StatusOK, newDiagnosticsDTO(diag))
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	var req resetRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if req.OpeningBalance == "" {
		writeError(w, r, core.Validation("opening_balance is required"))
		return
	}
	opening, err := core.ParseBalance(req.OpeningBalance)
	if err != nil {
		writeError(w, r, core.Validation("invalid opening_balance %q", req.OpeningBalance))
		return
	}
	today := s.today()
	base, err := dateOr(req.BaseDate, today)
	if err != nil {
		writeError(w, r, err)
		return
	}

	result, err := s.engine.Reset.Reset(r.Context(), services.ResetRequest{
		OpeningBalance: opening,
		Months:         req.Months,
		FullWipe:       req.FullWipe,
		BaseDate:       base,
		Today:          today,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	s.invalidate()
	writeJSON(w, http.StatusOK, result)
}
