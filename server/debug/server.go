//
// Tencent is pleased to support the open source community by making trpc-adk-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-adk-go is licensed under the Apache License Version 2.0.
//
//

// Package debug provides an HTTP server for driving agents from the ADK Web
// UI during development. It exposes app listing, session CRUD and the /run
// and /run_sse execution endpoints over the runner.
package debug

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"sync"

	"github.com/gorilla/mux"
	"github.com/rs/cors"

	"trpc.group/trpc-go/trpc-adk-go/agent"
	"trpc.group/trpc-go/trpc-adk-go/log"
	"trpc.group/trpc-go/trpc-adk-go/runner"
	"trpc.group/trpc-go/trpc-adk-go/server/debug/internal/schema"
	"trpc.group/trpc-go/trpc-adk-go/session"
	sessioninmemory "trpc.group/trpc-go/trpc-adk-go/session/inmemory"
)

// Server maps the REST surface the ADK Web UI expects onto the module's
// sessions, runners and events. Runners are built lazily, one per app.
type Server struct {
	agents map[string]agent.Agent
	router *mux.Router

	mu      sync.RWMutex
	runners map[string]runner.Runner

	sessionService session.Service
	runnerOpts     []runner.Option
}

// Option configures the Server.
type Option func(*Server)

// WithSessionService sets a custom session backend. Defaults to a fresh
// in-memory service.
func WithSessionService(service session.Service) Option {
	return func(s *Server) { s.sessionService = service }
}

// WithRunnerOptions appends runner options applied when the server lazily
// constructs a Runner for an agent.
func WithRunnerOptions(opts ...runner.Option) Option {
	return func(s *Server) { s.runnerOpts = append(s.runnerOpts, opts...) }
}

// New creates a debug server serving the given agents, keyed by app name.
func New(agents map[string]agent.Agent, opts ...Option) *Server {
	s := &Server{
		agents:         agents,
		router:         mux.NewRouter(),
		runners:        make(map[string]runner.Runner),
		sessionService: sessioninmemory.NewSessionService(),
	}
	for _, opt := range opts {
		opt(s)
	}

	// CORS is wide open: the UI runs on its own origin during development.
	c := cors.New(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowCredentials: true,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		ExposedHeaders:   []string{"Content-Length", "Content-Type"},
	})
	s.router.Use(c.Handler)
	s.registerRoutes()
	return s
}

// Handler returns the http.Handler for the server.
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) registerRoutes() {
	s.router.HandleFunc("/list-apps", s.handleListApps).Methods(http.MethodGet)

	// Session APIs. The POST with an explicit session id creates that id;
	// without one the service generates it.
	s.router.HandleFunc("/apps/{appName}/users/{userId}/sessions",
		s.handleListSessions).Methods(http.MethodGet)
	s.router.HandleFunc("/apps/{appName}/users/{userId}/sessions",
		s.handleCreateSession).Methods(http.MethodPost)
	s.router.HandleFunc("/apps/{appName}/users/{userId}/sessions/{sessionId}",
		s.handleGetSession).Methods(http.MethodGet)
	s.router.HandleFunc("/apps/{appName}/users/{userId}/sessions/{sessionId}",
		s.handleCreateSession).Methods(http.MethodPost)
	s.router.HandleFunc("/apps/{appName}/users/{userId}/sessions/{sessionId}",
		s.handleDeleteSession).Methods(http.MethodDelete)

	// Runner APIs.
	s.router.HandleFunc("/run", s.handleRun).Methods(http.MethodPost)
	s.router.HandleFunc("/run_sse", s.handleRunSSE).Methods(http.MethodPost)

	// CORS pre-flight.
	preflight := func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}
	s.router.HandleFunc("/run", preflight).Methods(http.MethodOptions)
	s.router.HandleFunc("/run_sse", preflight).Methods(http.MethodOptions)
}

func (s *Server) handleListApps(w http.ResponseWriter, _ *http.Request) {
	apps := make([]string, 0, len(s.agents))
	for name := range s.agents {
		apps = append(apps, name)
	}
	sort.Strings(apps)
	s.writeJSON(w, apps)
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	userKey := session.UserKey{AppName: vars["appName"], UserID: vars["userId"]}
	sessions, err := s.sessionService.ListSessions(r.Context(), userKey)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	out := make([]schema.Session, 0, len(sessions))
	for _, sess := range sessions {
		// Evaluation sessions stay out of the UI listing.
		if strings.HasPrefix(sess.ID, "eval-") {
			continue
		}
		out = append(out, convertSession(sess))
	}
	s.writeJSON(w, out)
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	key := session.Key{
		AppName:   vars["appName"],
		UserID:    vars["userId"],
		SessionID: vars["sessionId"],
	}

	state, err := decodeStateBody(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	sess, err := s.sessionService.CreateSession(r.Context(), key, state)
	if errors.Is(err, session.ErrSessionAlreadyExists) {
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	s.writeJSON(w, convertSession(sess))
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	sess, err := s.sessionService.GetSession(r.Context(), session.Key{
		AppName:   vars["appName"],
		UserID:    vars["userId"],
		SessionID: vars["sessionId"],
	})
	if errors.Is(err, session.ErrSessionNotFound) {
		http.Error(w, "session not found", http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	s.writeJSON(w, convertSession(sess))
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	err := s.sessionService.DeleteSession(r.Context(), session.Key{
		AppName:   vars["appName"],
		UserID:    vars["userId"],
		SessionID: vars["sessionId"],
	})
	if errors.Is(err, session.ErrSessionNotFound) {
		http.Error(w, "session not found", http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeRunRequest(w, r)
	if !ok {
		return
	}
	if req.Streaming {
		s.serveSSE(w, r, req)
		return
	}

	rn, err := s.getRunner(req.AppName)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	out, err := rn.Run(r.Context(), req.UserID, req.SessionID, toModelContent(req.NewMessage))
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	events := make([]map[string]any, 0)
	for e := range out {
		if ev := convertEvent(e, false); ev != nil {
			events = append(events, ev)
		}
	}
	s.writeJSON(w, events)
}

func (s *Server) handleRunSSE(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeRunRequest(w, r)
	if !ok {
		return
	}
	s.serveSSE(w, r, req)
}

// serveSSE runs the agent and writes one SSE frame per converted event. With
// req.Streaming the run uses SSE streaming mode and forwards partial chunks;
// otherwise only completed events go out.
func (s *Server) serveSSE(w http.ResponseWriter, r *http.Request, req *schema.AgentRunRequest) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	rn, err := s.getRunner(req.AppName)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	var runOpts []agent.RunOption
	if req.Streaming {
		runOpts = append(runOpts, agent.WithStreamingMode(agent.StreamingModeSSE))
	}
	out, err := rn.Run(r.Context(), req.UserID, req.SessionID, toModelContent(req.NewMessage), runOpts...)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	// When chunks streamed out, the aggregated text that follows them would
	// render twice; finals with no preceding chunks pass through.
	var sawPartial bool
	for e := range out {
		if req.Streaming && e.Response != nil {
			if e.Response.Partial {
				sawPartial = true
			} else if sawPartial && isAggregatedText(e.Response) {
				sawPartial = false
				continue
			}
		}
		sseEvent := convertEvent(e, req.Streaming)
		if sseEvent == nil {
			continue
		}
		data, err := json.Marshal(sseEvent)
		if err != nil {
			log.Errorf("debug server: marshal SSE event: %v", err)
			continue
		}
		fmt.Fprintf(w, "data: %s\n\n", data)
		flusher.Flush()
	}
}

func (s *Server) decodeRunRequest(w http.ResponseWriter, r *http.Request) (*schema.AgentRunRequest, bool) {
	defer r.Body.Close()
	req := &schema.AgentRunRequest{}
	if err := json.NewDecoder(r.Body).Decode(req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return nil, false
	}
	return req, true
}

// decodeStateBody reads the optional initial-state object from a create
// session request. An empty body means empty state.
func decodeStateBody(r *http.Request) (session.StateMap, error) {
	defer r.Body.Close()
	body, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, err
	}
	state := session.StateMap{}
	if len(bytes.TrimSpace(body)) == 0 {
		return state, nil
	}
	var values map[string]json.RawMessage
	if err := json.Unmarshal(body, &values); err != nil {
		return nil, fmt.Errorf("invalid state payload: %w", err)
	}
	for k, v := range values {
		state[k] = v
	}
	return state, nil
}

// getRunner returns the runner for the app, building and caching it on first
// use.
func (s *Server) getRunner(appName string) (runner.Runner, error) {
	s.mu.RLock()
	if r, ok := s.runners[appName]; ok {
		s.mu.RUnlock()
		return r, nil
	}
	s.mu.RUnlock()

	ag, ok := s.agents[appName]
	if !ok {
		return nil, fmt.Errorf("agent %q not registered", appName)
	}

	// User-supplied options first; the shared session service always wins.
	allOpts := append([]runner.Option{}, s.runnerOpts...)
	allOpts = append(allOpts, runner.WithSessionService(s.sessionService))

	r := runner.NewRunner(appName, ag, allOpts...)
	s.mu.Lock()
	s.runners[appName] = r
	s.mu.Unlock()
	return r, nil
}

func (s *Server) writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Errorf("debug server: encode response: %v", err)
	}
}
