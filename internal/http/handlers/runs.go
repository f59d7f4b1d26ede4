package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"mediabridge/internal/history"
)

// RunsList returns recent run records, newest first.
func (a *App) RunsList(w http.ResponseWriter, r *http.Request) {
	if a.Runs == nil {
		a.error(w, http.StatusNotImplemented, "history_disabled", "run history is not configured")
		return
	}
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil {
			limit = n
		}
	}
	runs, err := a.Runs.List(r.Context(), limit)
	if err != nil {
		a.Logger.Error().Err(err).Msg("list runs failed")
		a.error(w, http.StatusInternalServerError, "internal", "could not list runs")
		return
	}
	if runs == nil {
		runs = []history.Run{}
	}
	a.json(w, http.StatusOK, map[string]any{"runs": runs})
}

// RunsGet returns one run record by id.
func (a *App) RunsGet(w http.ResponseWriter, r *http.Request) {
	if a.Runs == nil {
		a.error(w, http.StatusNotImplemented, "history_disabled", "run history is not configured")
		return
	}
	run, err := a.Runs.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, history.ErrNotFound) {
			a.error(w, http.StatusNotFound, "not_found", "unknown run")
			return
		}
		a.Logger.Error().Err(err).Msg("get run failed")
		a.error(w, http.StatusInternalServerError, "internal", "could not load run")
		return
	}
	a.json(w, http.StatusOK, run)
}
