package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"mediabridge/internal/catalog"
	"mediabridge/internal/history"
	"mediabridge/internal/infra"
	"mediabridge/internal/node"
)

// Executor runs one adapter invocation; satisfied by *node.Runner.
type Executor interface {
	Execute(ctx context.Context, name string, params map[string]any, wait bool) (*node.Run, error)
}

// RunStore reads persisted runs; satisfied by *history.Store. Nil when the
// history feature is not configured.
type RunStore interface {
	Get(ctx context.Context, id string) (*history.Run, error)
	List(ctx context.Context, limit int) ([]history.Run, error)
}

// App bundles the dependencies the HTTP handlers need.
type App struct {
	Catalog  *catalog.Catalog
	Executor Executor
	Runs     RunStore
	Logger   infra.Logger
}

// NewApp constructs the handler container.
func NewApp(cat *catalog.Catalog, exec Executor, runs RunStore, logger infra.Logger) *App {
	return &App{Catalog: cat, Executor: exec, Runs: runs, Logger: logger}
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func (a *App) error(w http.ResponseWriter, code int, kind, message string) {
	a.json(w, code, errorBody{Error: kind, Message: message})
}
