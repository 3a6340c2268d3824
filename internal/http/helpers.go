package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"bilancio/internal/core"
	applog "bilancio/internal/log"
)

const maxBodyBytes = 1 << 20

type errorResponse struct {
	Error     string `json:"error"`
	RequestID string `json:"request_id,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

// writeError maps error kinds to status codes. Persistence and unknown
// failures are logged and reported without internal detail.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	msg := "internal error"
	switch {
	case errors.Is(err, core.ErrValidation):
		status, msg = http.StatusBadRequest, err.Error()
	case errors.Is(err, core.ErrNotFound):
		status, msg = http.StatusNotFound, err.Error()
	default:
		applog.FromContext(r.Context()).WithComponent(applog.ComponentHTTP).
			ErrorContext(r.Context(), "Request failed", applog.FieldPath, r.URL.Path, applog.FieldError, err)
	}
	writeJSON(w, status, errorResponse{Error: msg, RequestID: applog.RequestID(r.Context())})
}

// decodeJSON reads an optional JSON body into dst; an empty body leaves dst untouched.
func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return core.Validation("invalid request body: %v", err)
	}
	return nil
}

// dateOr parses s as YYYY-MM-DD, falling back to def when s is empty.
func dateOr(s string, def core.Date) (core.Date, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return def, nil
	}
	d, err := core.ParseDate(s)
	if err != nil {
		return core.Date{}, core.Validation("invalid date %q: want YYYY-MM-DD", s)
	}
	return d, nil
}

// periodKeyFromPath reads the {year} and {month} path values.
func periodKeyFromPath(r *http.Request) (core.PeriodKey, error) {
	year, err := strconv.Atoi(r.PathValue("year"))
	if err != nil || year < 1900 || year > 9999 {
		return core.PeriodKey{}, core.Validation("invalid year %q", r.PathValue("year"))
	}
	month, err := strconv.Atoi(r.PathValue("month"))
	if err != nil || month < 1 || month > 12 {
		return core.PeriodKey{}, core.Validation("invalid month %q", r.PathValue("month"))
	}
	return core.PeriodKey{Year: year, Month: month}, nil
}

func pathInt64(r *http.Request, name string) (int64, error) {
	v, err := strconv.ParseInt(r.PathValue(name), 10, 64)
	if err != nil || v <= 0 {
		return 0, core.Validation("invalid %s %q", name, r.PathValue(name))
	}
	return v, nil
}

func detailCacheKey(k core.PeriodKey, today core.Date) string {
	return fmt.Sprintf("%s@%s", k, today)
}
