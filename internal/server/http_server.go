// Package server exposes the search controller over HTTP, a websocket
// snapshot stream, and gRPC.
package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/GoSim-25-26J-441/co2sim-core/internal/control"
	"github.com/GoSim-25-26J-441/co2sim-core/internal/simclient"
	"github.com/GoSim-25-26J-441/co2sim-core/pkg/logger"
	"github.com/GoSim-25-26J-441/co2sim-core/pkg/models"
)

// DefaultStreamInterval is the snapshot poll interval when none is configured
const DefaultStreamInterval = 3 * time.Second

type HTTPServer struct {
	mux            *http.ServeMux
	controller     *control.Controller
	streamInterval time.Duration
	upgrader       websocket.Upgrader
}

func NewHTTPServer(controller *control.Controller, streamInterval time.Duration) *HTTPServer {
	if streamInterval <= 0 {
		streamInterval = DefaultStreamInterval
	}
	s := &HTTPServer{
		mux:            http.NewServeMux(),
		controller:     controller,
		streamInterval: streamInterval,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}

	s.mux.HandleFunc("/healthz", s.handleHealthz)
	s.mux.HandleFunc("/v1/searches", s.handleSearches)
	s.mux.HandleFunc("/v1/searches/", s.handleSearchByKind)
	s.mux.HandleFunc("/v1/simulations", s.handleSimulations)
	s.mux.HandleFunc("/v1/runs", s.handleRuns)
	s.mux.HandleFunc("/v1/runs/", s.handleRunByID)

	return s
}

func (s *HTTPServer) Handler() http.Handler {
	return s.mux
}

func (s *HTTPServer) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// handleSearches handles GET /v1/searches
func (s *HTTPServer) handleSearches(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"searches": s.controller.Status()})
}

// handleSearchByKind handles /v1/searches/{kind}:toggle, /v1/searches/{kind}/snapshots/{path|mass}
// and /v1/searches/{kind}/stream
func (s *HTTPServer) handleSearchByKind(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/v1/searches/")

	if name, ok := strings.CutSuffix(path, ":toggle"); ok {
		if r.Method != http.MethodPost {
			s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		s.handleToggle(w, name)
		return
	}

	name, rest, _ := strings.Cut(path, "/")
	kind, err := control.ParseKind(name)
	if err != nil {
		s.writeError(w, http.StatusNotFound, err.Error())
		return
	}
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	switch rest {
	case "snapshots/path":
		s.handleSnapshot(w, kind, true)
	case "snapshots/mass":
		s.handleSnapshot(w, kind, false)
	case "stream":
		s.handleStream(w, r, kind)
	default:
		s.writeError(w, http.StatusNotFound, "not found")
	}
}

func (s *HTTPServer) handleToggle(w http.ResponseWriter, name string) {
	kind, err := control.ParseKind(name)
	if err != nil {
		s.writeError(w, http.StatusNotFound, err.Error())
		return
	}
	res, err := s.controller.Toggle(kind)
	if err != nil {
		switch {
		case errors.Is(err, control.ErrPreviousRunDraining):
			s.writeError(w, http.StatusConflict, err.Error())
		default:
			s.writeError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}
	logger.Info("search toggled (HTTP)", "kind", kind, "running", res.Running, "run_id", res.RunID)
	s.writeJSON(w, http.StatusOK, res)
}

func (s *HTTPServer) handleSnapshot(w http.ResponseWriter, kind control.Kind, path bool) {
	pub, err := s.controller.Publisher(kind)
	if err != nil {
		s.writeError(w, http.StatusNotFound, err.Error())
		return
	}
	if path {
		if o := pub.Path(); o != nil {
			s.writeJSON(w, http.StatusOK, o)
			return
		}
	} else if c := pub.Mass(); c != nil {
		s.writeJSON(w, http.StatusOK, c)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// simulationRequest is the body of POST /v1/simulations
type simulationRequest struct {
	Location   *models.Location             `json:"location"`
	Parameters *models.SimulationParameters `json:"parameters,omitempty"`
}

// handleSimulations handles POST /v1/simulations
func (s *HTTPServer) handleSimulations(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var req simulationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Location == nil {
		s.writeError(w, http.StatusBadRequest, "location is required")
		return
	}

	res, chart, err := s.controller.RunSingleSimulation(r.Context(), *req.Location, req.Parameters)
	if err != nil {
		s.writeError(w, simulationErrorStatus(err), err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"result": res,
		"chart":  chart,
	})
}

func simulationErrorStatus(err error) int {
	switch {
	case errors.Is(err, simclient.ErrInvalidLocation):
		return http.StatusUnprocessableEntity
	case errors.Is(err, simclient.ErrSimulationEngine):
		return http.StatusBadGateway
	default:
		return http.StatusBadRequest
	}
}

// handleRuns handles GET /v1/runs
func (s *HTTPServer) handleRuns(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	limit := 50
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if parsed, err := strconv.Atoi(limitStr); err == nil && parsed > 0 {
			limit = min(parsed, 1000)
		}
	}
	runs := s.controller.Store().List(limit)
	s.writeJSON(w, http.StatusOK, map[string]any{
		"runs":  runs,
		"count": len(runs),
	})
}

// handleRunByID handles GET /v1/runs/{id}, GET /v1/runs/{id}/metrics[?name=] and GET /v1/runs/{id}/results
func (s *HTTPServer) handleRunByID(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/v1/runs/")
	if path == "" {
		s.writeError(w, http.StatusBadRequest, "run ID is required")
		return
	}
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	if runID, ok := strings.CutSuffix(path, "/metrics"); ok {
		collector, found := s.controller.Store().Metrics(runID)
		if !found {
			s.writeError(w, http.StatusNotFound, "run not found")
			return
		}
		query := r.URL.Query()
		name := query.Get("name")
		if name == "" {
			s.writeJSON(w, http.StatusOK, map[string]any{
				"metrics": collector.GetSummary(),
				"names":   collector.GetMetricNames(),
			})
			return
		}
		total := collector.GetTotalAggregation(name)
		if total == nil {
			s.writeError(w, http.StatusNotFound, "metric not found")
			return
		}
		// remaining query parameters select one label set, e.g. ?name=simulation_seconds&outcome=ok
		labels := make(map[string]string)
		for k, v := range query {
			if k != "name" && len(v) > 0 {
				labels[k] = v[0]
			}
		}
		s.writeJSON(w, http.StatusOK, map[string]any{
			"name":        name,
			"labels":      labels,
			"points":      collector.GetTimeSeries(name, labels),
			"aggregation": collector.GetAggregation(name, labels),
			"total":       total,
		})
		return
	}

	if runID, ok := strings.CutSuffix(path, "/results"); ok {
		results, err := s.controller.ArchivedResults(r.Context(), runID)
		switch {
		case errors.Is(err, control.ErrRunNotFound):
			s.writeError(w, http.StatusNotFound, "run not found")
		case errors.Is(err, control.ErrArchiveUnavailable):
			s.writeError(w, http.StatusNotImplemented, err.Error())
		case err != nil:
			s.writeError(w, http.StatusInternalServerError, err.Error())
		default:
			s.writeJSON(w, http.StatusOK, map[string]any{"results": results, "count": len(results)})
		}
		return
	}

	rec, ok := s.controller.Store().Get(path)
	if !ok {
		s.writeError(w, http.StatusNotFound, "run not found")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"run": rec})
}

func (s *HTTPServer) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Error("failed to encode JSON response", "error", err)
	}
}

func (s *HTTPServer) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]any{
		"error": message,
	})
}
