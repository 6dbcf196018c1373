// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package api serves the bridge's HTTP control surface
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/Thermoquad/nowbridge/pkg/devices"
	"github.com/Thermoquad/nowbridge/pkg/hydration"
	"github.com/Thermoquad/nowbridge/pkg/link"
	"github.com/Thermoquad/nowbridge/pkg/nowlink"
)

const (
	maxBodySize   = 4096
	maxLines      = 1000
	tailWriteWait = 5 * time.Second
)

// Link is the part of the link manager the API reads
type Link interface {
	Status() link.Status
	Stats() *nowlink.Statistics
	Watchdog() *link.Watchdog
	Lines(n int) []link.Line
	Subscribe() (string, <-chan link.Line)
	Unsubscribe(id string)
}

// Commander runs one textual command
type Commander interface {
	Route(line string) error
}

// StateSource reports the hydration state
type StateSource interface {
	State() hydration.State
}

// PresenceSwitch is a manually controlled presence source
type PresenceSwitch interface {
	IsHome() bool
	Set(home bool) bool
}

// Server holds the API dependencies. Any of them may be nil, in which case
// the matching endpoints answer 503.
type Server struct {
	Link      Link
	Commands  Commander
	Hydration StateSource
	Presence  PresenceSwitch

	upgrader websocket.Upgrader
}

// Handler returns the chi router with every endpoint mounted
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger)

	r.Route("/api", func(r chi.Router) {
		r.Post("/command", s.handleCommand)
		r.Get("/hydration", s.handleHydration)
		r.Get("/health", s.handleHealth)
		r.Get("/lines", s.handleLines)
		r.Put("/presence", s.handlePresence)
		r.Get("/presence", s.handlePresence)
		r.Get("/tail", s.handleTail)
	})
	return r
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
// ready is called once the listener is bound.
func (s *Server) ListenAndServe(ctx context.Context, addr string, ready func()) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()
	log.Info().Str("addr", ln.Addr().String()).Msg("HTTP API listening")
	if ready != nil {
		ready()
	}

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("took", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("http request")
	})
}

func jsonResponse(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Debug().Err(err).Msg("failed to write response")
	}
}

func errorResponse(w http.ResponseWriter, status int, message string) {
	jsonResponse(w, status, map[string]any{"error": message})
}

// commandStatus maps a routing error to an HTTP status
func commandStatus(err error) int {
	switch {
	case errors.Is(err, devices.ErrUsage):
		return http.StatusBadRequest
	case errors.Is(err, devices.ErrNoAddress):
		return http.StatusConflict
	case errors.Is(err, link.ErrNotConnected):
		return http.StatusServiceUnavailable
	case errors.Is(err, link.ErrInvalidFrame):
		return http.StatusBadRequest
	default:
		return http.StatusBadGateway
	}
}

type commandRequest struct {
	Command string `json:"command"`
}

func (s *Server) handleCommand(w http.ResponseWriter, r *http.Request) {
	if s.Commands == nil {
		errorResponse(w, http.StatusServiceUnavailable, "commands unavailable")
		return
	}

	var req commandRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodySize)).Decode(&req); err != nil {
		errorResponse(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Command == "" {
		errorResponse(w, http.StatusBadRequest, "command required")
		return
	}

	if err := s.Commands.Route(req.Command); err != nil {
		log.Info().Err(err).Str("command", req.Command).Msg("API command failed")
		errorResponse(w, commandStatus(err), err.Error())
		return
	}
	jsonResponse(w, http.StatusOK, map[string]any{"ok": true, "command": req.Command})
}

func (s *Server) handleHydration(w http.ResponseWriter, r *http.Request) {
	if s.Hydration == nil {
		errorResponse(w, http.StatusServiceUnavailable, "hydration monitor disabled")
		return
	}
	jsonResponse(w, http.StatusOK, s.Hydration.State())
}

type watchdogHealth struct {
	LastPet time.Time `json:"last_pet"`
	Timeout string    `json:"timeout"`
	Trips   uint64    `json:"trips"`
}

type health struct {
	Link     link.Status          `json:"link"`
	Watchdog watchdogHealth       `json:"watchdog"`
	Stats    nowlink.StatsSnapshot `json:"stats"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.Link == nil {
		errorResponse(w, http.StatusServiceUnavailable, "link unavailable")
		return
	}

	wd := s.Link.Watchdog()
	h := health{
		Link: s.Link.Status(),
		Watchdog: watchdogHealth{
			LastPet: wd.LastPet(),
			Timeout: wd.Timeout().String(),
			Trips:   wd.Trips(),
		},
		Stats: s.Link.Stats().Snapshot(),
	}

	status := http.StatusOK
	if !h.Link.Connected {
		status = http.StatusServiceUnavailable
	}
	jsonResponse(w, status, h)
}

func (s *Server) handleLines(w http.ResponseWriter, r *http.Request) {
	if s.Link == nil {
		errorResponse(w, http.StatusServiceUnavailable, "link unavailable")
		return
	}

	n := 50
	if v := r.URL.Query().Get("n"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed < 1 {
			errorResponse(w, http.StatusBadRequest, "n must be a positive integer")
			return
		}
		n = min(parsed, maxLines)
	}
	jsonResponse(w, http.StatusOK, map[string]any{"lines": s.Link.Lines(n)})
}

type presenceRequest struct {
	Home *bool `json:"home"`
}

func (s *Server) handlePresence(w http.ResponseWriter, r *http.Request) {
	if s.Presence == nil {
		errorResponse(w, http.StatusServiceUnavailable, "presence override disabled")
		return
	}

	if r.Method == http.MethodPut {
		var req presenceRequest
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodySize)).Decode(&req); err != nil || req.Home == nil {
			errorResponse(w, http.StatusBadRequest, `body must be {"home": true|false}`)
			return
		}
		s.Presence.Set(*req.Home)
	}
	jsonResponse(w, http.StatusOK, map[string]any{"home": s.Presence.IsHome()})
}

// handleTail streams raw gateway lines as JSON messages until the client
// goes away
func (s *Server) handleTail(w http.ResponseWriter, r *http.Request) {
	if s.Link == nil {
		errorResponse(w, http.StatusServiceUnavailable, "link unavailable")
		return
	}

	// Subscribe before the handshake completes so no line is missed
	id, lines := s.Link.Subscribe()
	defer s.Link.Unsubscribe(id)

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Debug().Err(err).Msg("tail upgrade failed")
		return
	}
	defer conn.Close()
	log.Info().Str("subscriber", id).Str("remote", r.RemoteAddr).Msg("tail client connected")
	defer log.Info().Str("subscriber", id).Msg("tail client disconnected")

	// The reader only notices the close frame
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-gone:
			return
		case <-r.Context().Done():
			return
		case l, ok := <-lines:
			if !ok {
				return
			}
			conn.SetWriteDeadline(time.Now().Add(tailWriteWait))
			if err := conn.WriteJSON(l); err != nil {
				return
			}
		}
	}
}
