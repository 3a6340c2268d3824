package http

import (
	"net/http"

	"bilancio/internal/core"
)

type archivedPeriodDTO struct {
	PeriodID int    `json:"period_id"`
	Year     int    `json:"year"`
	Month    int    `json:"month"`
	Label    string `json:"label"`
}

func (s *Server) handleArchivedPeriods(w http.ResponseWriter, r *http.Request) {
	ids, err := s.archive.ArchivedPeriods(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	out := make([]archivedPeriodDTO, 0, len(ids))
	for _, id := range ids {
		key, err := core.PeriodKeyFromID(id)
		if err != nil {
			writeError(w, r, err)
			return
		}
		out = append(out, archivedPeriodDTO{
			PeriodID: id,
			Year:     key.Year,
			Month:    key.Month,
			Label:    s.engine.Calendar.ForKey(key).Label(),
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleArchive(w http.ResponseWriter, r *http.Request) {
	id, err := pathInt64(r, "period_id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	if _, err := core.PeriodKeyFromID(int(id)); err != nil {
		writeError(w, r, err)
		return
	}
	entries, err := s.archive.ListArchived(r.Context(), int(id))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newArchivedDTOs(entries))
}
