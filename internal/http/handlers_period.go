package http

import (
	"net/http"

	applog "bilancio/internal/log"
)

// handlePeriod returns the financial month containing ?date (default today).
func (s *Server) handlePeriod(w http.ResponseWriter, r *http.Request) {
	d, err := dateOr(r.URL.Query().Get("date"), s.today())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newPeriodResponse(&d, s.engine.Calendar.Boundaries(d)))
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	key, err := periodKeyFromPath(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	today := s.today()

	cacheKey := detailCacheKey(key, today)
	detail, ok := s.details.Get(cacheKey)
	if !ok {
		detail, err = s.engine.Summaries.Detail(r.Context(), key, today)
		if err != nil {
			writeError(w, r, err)
			return
		}
		s.details.Set(cacheKey, detail)
	}
	writeJSON(w, http.StatusOK, newDetailDTO(detail, today))
}

func (s *Server) handleCategoryTotals(w http.ResponseWriter, r *http.Request) {
	key, err := periodKeyFromPath(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	totals, err := s.engine.Summaries.CategoryTotals(r.Context(), key)
	if err != nil {
		writeError(w, r, err)
		return
	}
	out := make([]categoryTotalDTO, 0, len(totals))
	for _, t := range totals {
		out = append(out, categoryTotalDTO{CategoryID: t.CategoryID, Name: t.Name, Amount: t.Amount.String()})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleRegenerate(w http.ResponseWriter, r *http.Request) {
	key, err := periodKeyFromPath(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	summary, err := s.engine.Summaries.RegenerateSummary(r.Context(), key, s.today())
	if err != nil {
		writeError(w, r, err)
		return
	}
	s.invalidate()
	applog.FromContext(r.Context()).WithComponent(applog.ComponentSummary).InfoContext(r.Context(), "Summary regenerated via API",
		applog.FieldPeriod, key.String(), applog.FieldOperation, applog.OpRegenerate)
	writeJSON(w, http.StatusOK, newSummaryDTO(summary))
}
