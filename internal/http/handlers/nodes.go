package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"mediabridge/internal/catalog"
	"mediabridge/internal/node"
	"mediabridge/internal/piapi"
)

type nodeSummary struct {
	Name        string `json:"name"`
	DisplayName string `json:"display_name,omitempty"`
	Description string `json:"description,omitempty"`
	Kind        string `json:"kind"`
	Model       string `json:"model"`
	TaskType    string `json:"task_type,omitempty"`
}

// NodesList returns the loaded adapter catalog.
func (a *App) NodesList(w http.ResponseWriter, r *http.Request) {
	descriptors := a.Catalog.List()
	out := make([]nodeSummary, 0, len(descriptors))
	for _, desc := range descriptors {
		out = append(out, nodeSummary{
			Name:        desc.Name,
			DisplayName: desc.DisplayName,
			Description: desc.Description,
			Kind:        string(desc.Kind),
			Model:       desc.Model,
			TaskType:    desc.TaskType,
		})
	}
	a.json(w, http.StatusOK, map[string]any{"nodes": out})
}

// NodesGet returns one full descriptor, parameter schema included.
func (a *App) NodesGet(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	desc, ok := a.Catalog.Get(name)
	if !ok {
		a.error(w, http.StatusNotFound, "not_found", "unknown node")
		return
	}
	a.json(w, http.StatusOK, desc)
}

type executeRequest struct {
	Params map[string]any `json:"params"`
	Wait   *bool          `json:"wait,omitempty"`
}

// NodesExecute runs one adapter invocation. By default the call blocks until
// the remote task reaches a terminal state; wait=false returns right after
// submission with the task identifier.
func (a *App) NodesExecute(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if _, ok := a.Catalog.Get(name); !ok {
		a.error(w, http.StatusNotFound, "not_found", "unknown node")
		return
	}
	var req executeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}
	wait := true
	if req.Wait != nil {
		wait = *req.Wait
	}
	run, err := a.Executor.Execute(r.Context(), name, req.Params, wait)
	if err != nil {
		a.writeExecuteError(w, r.Context(), err)
		return
	}
	a.json(w, http.StatusOK, run)
}

func (a *App) writeExecuteError(w http.ResponseWriter, ctx context.Context, err error) {
	var (
		verr       *catalog.ValidationError
		failedErr  *piapi.TaskFailedError
		timeoutErr *piapi.TimeoutError
		remoteErr  *piapi.RemoteError
		callErr    *piapi.APICallError
	)
	switch {
	case errors.As(err, &verr):
		a.error(w, http.StatusBadRequest, "validation_failed", verr.Error())
	case errors.As(err, &failedErr):
		a.error(w, http.StatusBadGateway, "task_failed", failedErr.Error())
	case errors.As(err, &timeoutErr):
		a.error(w, http.StatusGatewayTimeout, "task_timeout", timeoutErr.Error())
	case errors.As(err, &remoteErr):
		a.error(w, http.StatusBadGateway, "remote_error", remoteErr.Error())
	case errors.As(err, &callErr):
		a.error(w, http.StatusBadGateway, "api_call_failed", callErr.Error())
	case errors.Is(err, node.ErrUnknownNode):
		a.error(w, http.StatusNotFound, "not_found", "unknown node")
	case ctx.Err() != nil:
		// Client went away; the status code will not be seen anyway.
		a.error(w, http.StatusRequestTimeout, "cancelled", "request cancelled")
	default:
		a.Logger.Error().Err(err).Msg("execute failed")
		a.error(w, http.StatusInternalServerError, "internal", "execution failed")
	}
}
