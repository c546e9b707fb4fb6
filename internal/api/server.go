// Package api exposes the control surface: a REST API for per-output
// looks, transitions and engine settings, and a WebSocket stream of
// status events.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sort"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/strandlight/beamcast/internal/config"
	"github.com/strandlight/beamcast/internal/display"
	"github.com/strandlight/beamcast/internal/engine"
	"github.com/strandlight/beamcast/internal/logger"
	"github.com/strandlight/beamcast/internal/render"
	"github.com/strandlight/beamcast/internal/sink"
	"github.com/strandlight/beamcast/internal/vnet"
)

// Server is the HTTP control surface over one engine.
type Server struct {
	router    *mux.Router
	engine    *engine.Engine
	configMgr *config.Manager
	registry  *vnet.Registry
	upgrader  websocket.Upgrader
	srv       *http.Server
	log       *zerolog.Logger
}

// NewServer wires the routes. registry may be nil when no network
// outputs exist.
func NewServer(eng *engine.Engine, configMgr *config.Manager, registry *vnet.Registry) *Server {
	s := &Server{
		router:    mux.NewRouter(),
		engine:    eng,
		configMgr: configMgr,
		registry:  registry,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // control surface is LAN-facing
			},
		},
		log: logger.WithComponent("api"),
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	api := s.router.PathPrefix("/api").Subrouter()

	api.HandleFunc("/outputs", s.handleListOutputs).Methods("GET")
	api.HandleFunc("/outputs/{id}", s.handleGetOutput).Methods("GET")
	api.HandleFunc("/outputs/{id}/crop", s.handleSetCrop).Methods("PUT")
	api.HandleFunc("/outputs/{id}/correction", s.handleSetCorrection).Methods("PUT")
	api.HandleFunc("/outputs/{id}/intensity", s.handleSetIntensity).Methods("PUT")
	api.HandleFunc("/outputs/{id}/resolution", s.handleSetResolution).Methods("PUT")
	api.HandleFunc("/outputs/{id}/name", s.handleSetName).Methods("PUT")
	api.HandleFunc("/outputs/{id}/transition", s.handleStartTransition).Methods("POST")
	api.HandleFunc("/outputs/{id}/transition/progress", s.handleTransitionProgress).Methods("POST")
	api.HandleFunc("/outputs/{id}/transition", s.handleCancelTransition).Methods("DELETE")

	api.HandleFunc("/framerate", s.handleGetFrameRate).Methods("GET")
	api.HandleFunc("/framerate", s.handleSetFrameRate).Methods("PUT")
	api.HandleFunc("/displays", s.handleListDisplays).Methods("GET")
	api.HandleFunc("/senders", s.handleListSenders).Methods("GET")
	api.HandleFunc("/stats", s.handleStats).Methods("GET")

	api.HandleFunc("/config", s.handleGetConfig).Methods("GET")
	api.HandleFunc("/config", s.handleUpdateConfig).Methods("PUT")

	api.HandleFunc("/health", s.handleHealth).Methods("GET")
	api.HandleFunc("/events", s.handleEvents)

	s.router.PathPrefix("/").HandlerFunc(s.handleIndex)
}

// Handler returns the root handler with CORS applied.
func (s *Server) Handler() http.Handler {
	return s.enableCORS(s.router)
}

// Start serves until Shutdown or a listener error.
func (s *Server) Start(addr string) error {
	s.srv = &http.Server{Addr: addr, Handler: s.Handler()}
	s.log.Info().Str("addr", addr).Msg("API server starting")
	err := s.srv.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown stops accepting requests and waits out in-flight handlers.
// Hijacked event streams fall when the process exits.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	return s.srv.Shutdown(ctx)
}

func (s *Server) enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// output resolves the {id} route variable. A nil return means the
// response is already written.
func (s *Server) output(w http.ResponseWriter, r *http.Request) sink.Output {
	id, err := strconv.Atoi(mux.Vars(r)["id"])
	if err != nil {
		http.Error(w, "invalid output id", http.StatusBadRequest)
		return nil
	}
	o, ok := s.engine.Output(id)
	if !ok {
		http.Error(w, "output not found", http.StatusNotFound)
		return nil
	}
	return o
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

// transitionState is the transition slice of an output detail response.
type transitionState struct {
	Active   bool    `json:"active"`
	Progress float64 `json:"progress"`
	Source   int     `json:"source"`
}

// outputDetail is the full per-output view.
type outputDetail struct {
	engine.OutputStats
	Capabilities sink.Capabilities `json:"capabilities"`
	Crop         render.CropRegion `json:"crop"`
	Correction   render.Correction `json:"correction"`
	Intensity    float64           `json:"intensity"`
	Transition   transitionState   `json:"transition"`
}

func detailFor(o sink.Output) outputDetail {
	return outputDetail{
		OutputStats:  engine.StatsFor(o),
		Capabilities: o.Capabilities(),
		Crop:         o.Crop(),
		Correction:   o.Correction(),
		Intensity:    o.Intensity(),
		Transition: transitionState{
			Active:   o.TransitionActive(),
			Progress: o.TransitionProgress(),
			Source:   o.Source(),
		},
	}
}

func (s *Server) handleListOutputs(w http.ResponseWriter, r *http.Request) {
	outs := s.engine.Outputs()
	details := make([]outputDetail, 0, len(outs))
	for _, o := range outs {
		details = append(details, detailFor(o))
	}
	writeJSON(w, details)
}

func (s *Server) handleGetOutput(w http.ResponseWriter, r *http.Request) {
	o := s.output(w, r)
	if o == nil {
		return
	}
	writeJSON(w, detailFor(o))
}

func (s *Server) handleSetCrop(w http.ResponseWriter, r *http.Request) {
	o := s.output(w, r)
	if o == nil {
		return
	}
	var crop render.CropRegion
	if err := json.NewDecoder(r.Body).Decode(&crop); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	o.SetCrop(crop)
	writeJSON(w, detailFor(o))
}

func (s *Server) handleSetCorrection(w http.ResponseWriter, r *http.Request) {
	o := s.output(w, r)
	if o == nil {
		return
	}
	var corr render.Correction
	if err := json.NewDecoder(r.Body).Decode(&corr); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	o.SetCorrection(corr)
	writeJSON(w, detailFor(o))
}

func (s *Server) handleSetIntensity(w http.ResponseWriter, r *http.Request) {
	o := s.output(w, r)
	if o == nil {
		return
	}
	var req struct {
		Intensity float64 `json:"intensity"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	o.SetIntensity(req.Intensity)
	writeJSON(w, detailFor(o))
}

func (s *Server) handleSetResolution(w http.ResponseWriter, r *http.Request) {
	o := s.output(w, r)
	if o == nil {
		return
	}
	rz, ok := o.(sink.Resizable)
	if !ok || !o.Capabilities().Resize {
		http.Error(w, "output does not support resizing", http.StatusConflict)
		return
	}
	var req struct {
		Width  int `json:"width"`
		Height int `json:"height"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := rz.SetResolution(req.Width, req.Height); err != nil {
		code := http.StatusInternalServerError
		if errors.Is(err, sink.ErrInvalidResolution) {
			code = http.StatusBadRequest
		}
		http.Error(w, err.Error(), code)
		return
	}
	writeJSON(w, detailFor(o))
}

func (s *Server) handleSetName(w http.ResponseWriter, r *http.Request) {
	o := s.output(w, r)
	if o == nil {
		return
	}
	rn, ok := o.(sink.Renamable)
	if !ok || !o.Capabilities().Rename {
		http.Error(w, "output does not support renaming", http.StatusConflict)
		return
	}
	var req struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if req.Name == "" {
		http.Error(w, "name must not be empty", http.StatusBadRequest)
		return
	}
	if err := rn.SetName(req.Name); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, detailFor(o))
}

func (s *Server) handleStartTransition(w http.ResponseWriter, r *http.Request) {
	o := s.output(w, r)
	if o == nil {
		return
	}
	var req struct {
		Target         int                `json:"target"`
		Kind           string             `json:"kind"`
		DurationFrames int                `json:"duration_frames"`
		Manual         bool               `json:"manual"`
		Crop           *render.CropRegion `json:"crop"`
		Correction     *render.Correction `json:"correction"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	kind, err := sink.ParseTransitionKind(req.Kind)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	// Omitted payload fields keep the output's current look.
	crop := o.Crop()
	if req.Crop != nil {
		crop = *req.Crop
	}
	corr := o.Correction()
	if req.Correction != nil {
		corr = *req.Correction
	}

	if req.Manual {
		o.StartManualTransition(req.Target, kind, crop, corr)
	} else {
		o.StartTransition(req.Target, kind, req.DurationFrames, crop, corr)
	}
	writeJSON(w, detailFor(o))
}

func (s *Server) handleTransitionProgress(w http.ResponseWriter, r *http.Request) {
	o := s.output(w, r)
	if o == nil {
		return
	}
	var req struct {
		Progress float64 `json:"progress"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if !o.SetTransitionProgress(req.Progress) {
		http.Error(w, "no transition in progress", http.StatusConflict)
		return
	}
	writeJSON(w, detailFor(o))
}

func (s *Server) handleCancelTransition(w http.ResponseWriter, r *http.Request) {
	o := s.output(w, r)
	if o == nil {
		return
	}
	o.CancelTransition()
	writeJSON(w, detailFor(o))
}

func (s *Server) handleGetFrameRate(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]float64{"target_fps": s.engine.TargetFrameRate()})
}

func (s *Server) handleSetFrameRate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		TargetFPS float64 `json:"target_fps"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := s.engine.SetTargetFrameRate(req.TargetFPS); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeJSON(w, map[string]float64{"target_fps": s.engine.TargetFrameRate()})
}

func (s *Server) handleListDisplays(w http.ResponseWriter, r *http.Request) {
	displays, err := display.ListDisplays()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, displays)
}

func (s *Server) handleListSenders(w http.ResponseWriter, r *http.Request) {
	if s.registry == nil {
		writeJSON(w, []vnet.SenderInfo{})
		return
	}
	writeJSON(w, s.registry.Senders())
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.engine.Stats())
}

func (s *Server) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.configMgr.Get())
}

func (s *Server) handleUpdateConfig(w http.ResponseWriter, r *http.Request) {
	var cfg config.Config
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := s.configMgr.Update(&cfg); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeJSON(w, map[string]string{"status": "saved"})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]string{"status": "healthy"})
}

// handleEvents streams status transitions. The last known status of
// every output is sent first so a client starts consistent.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	defer conn.Close()

	events, cancel := s.engine.Subscribe()
	defer cancel()

	statuses := s.engine.Statuses()
	ids := make([]int, 0, len(statuses))
	for id := range statuses {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	for _, id := range ids {
		if err := conn.WriteJSON(statuses[id]); err != nil {
			return
		}
	}

	for ev := range events {
		if err := conn.WriteJSON(ev); err != nil {
			return
		}
	}
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/html")
	w.Write([]byte(`<!DOCTYPE html>
<html>
<head><title>beamcast</title></head>
<body>
<h1>beamcast</h1>
<p>Output engine control API.</p>
<ul>
<li><a href="/api/outputs">/api/outputs</a></li>
<li><a href="/api/displays">/api/displays</a></li>
<li><a href="/api/senders">/api/senders</a></li>
<li><a href="/api/stats">/api/stats</a></li>
<li><a href="/api/config">/api/config</a></li>
<li><a href="/api/health">/api/health</a></li>
</ul>
<p>Status events stream on <code>/api/events</code> (WebSocket).</p>
</body>
</html>
`))
}
